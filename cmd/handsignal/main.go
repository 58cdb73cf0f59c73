package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/ayusman/handsignal/internal/app"
	"github.com/ayusman/handsignal/internal/config"
	"github.com/ayusman/handsignal/internal/detector"
	"github.com/ayusman/handsignal/internal/metrics"
	"github.com/ayusman/handsignal/internal/server"
	"github.com/ayusman/handsignal/internal/store"
	"github.com/ayusman/handsignal/internal/tray"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("handsignal - fingertip direction tracking")

	if err := run(cfg); err != nil {
		log.Fatalf("handsignal: %v", err)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	webDir := cfg.WebDir
	if webDir == "" {
		webDir = findWebDir(cfg.DataDir)
	}
	if webDir != "" {
		log.Printf("Serving static files from: %s", webDir)
	}

	var landmarks detector.Detector
	if cfg.MockHands {
		log.Println("Using mock landmark source")
		landmarks = detector.NewMockDetector()
	}

	m := metrics.New()
	application, err := app.New(app.Config{
		Store:         st,
		PluginDir:     cfg.Plugins(),
		Session:       cfg.Session(),
		CameraConfig:  cfg.Camera,
		Landmarks:     landmarks,
		Detector:      cfg.Detector(),
		Metrics:       m,
		PluginTimeout: cfg.PluginTimeout,
		Cooldown:      cfg.Cooldown,
	})
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.DiscoverPlugins(); err != nil {
		log.Printf("Plugin discovery failed: %v", err)
	}

	// A pipeline failure is visible in the readings; a later start retries.
	if err := application.Start(ctx); err != nil {
		log.Printf("Landmark pipeline unavailable: %v", err)
	}
	ctrl := application.Controller()
	if cfg.AutoStart {
		if _, err := ctrl.StartTracking(ctx); err != nil {
			log.Printf("Autostart failed: %v", err)
		}
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		Session:   ctrl,
		Plugins:   application.PluginManager(),
		Settings:  application,
		Metrics:   m,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ctx, cfg.Addr)
		stop()
	}()

	if cfg.Tray {
		runTray(ctx, application, stop, dashboardURL(cfg.Addr))
	} else {
		<-ctx.Done()
	}
	stop()

	log.Println("Shutting down")
	return <-serveErr
}

// runTray blocks in the tray event loop until quit or ctx is done.
func runTray(ctx context.Context, application *app.App, quit func(), url string) {
	t := tray.New()
	ctrl := application.Controller()

	t.OnToggle(func(track bool) {
		if !track {
			ctrl.StopTracking()
			return
		}
		if _, err := ctrl.StartTracking(ctx); err != nil {
			log.Printf("Start tracking failed: %v", err)
		}
	})
	t.OnDashboard(func() {
		if err := openBrowser(url); err != nil {
			log.Printf("Failed to open dashboard: %v", err)
		}
	})
	t.OnQuit(quit)

	readings, cancel := ctrl.Subscribe(8)
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				t.Quit()
				return
			case r, ok := <-readings:
				if !ok {
					return
				}
				t.Update(r)
			}
		}
	}()

	t.Run()
}

func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <dataDir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	// Check relative paths from current working directory
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	dataWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(dataWebDir); err == nil && info.IsDir() {
		return dataWebDir
	}

	return ""
}
