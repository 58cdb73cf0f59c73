// Package config assembles handsignal's runtime configuration from defaults,
// HANDSIGNAL_* environment variables and command-line flags, in that order.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ayusman/handsignal/internal/capture"
	"github.com/ayusman/handsignal/internal/detector"
	"github.com/ayusman/handsignal/internal/movement"
	"github.com/ayusman/handsignal/internal/session"
)

// Defaults.
const (
	DefaultAddr          = ":8080"
	DefaultDataDirName   = ".handsignal"
	DefaultDBName        = "handsignal.db"
	DefaultPluginTimeout = 5 * time.Second
	DefaultCooldown      = 750 * time.Millisecond
)

// Config holds every setting of a handsignal process.
type Config struct {
	Addr      string
	DataDir   string
	PluginDir string
	WebDir    string

	Camera   capture.CameraConfig
	FixedFPS int

	Movement movement.Config

	ScriptPath string
	PythonPath string
	MockHands  bool

	PluginTimeout time.Duration
	Cooldown      time.Duration

	Tray      bool
	AutoStart bool
}

// Default returns the built-in configuration.
func Default() Config {
	dataDir := DefaultDataDirName
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, DefaultDataDirName)
	}

	return Config{
		Addr:          DefaultAddr,
		DataDir:       dataDir,
		Camera:        capture.DefaultCameraConfig(),
		Movement:      movement.DefaultConfig(),
		PluginTimeout: DefaultPluginTimeout,
		Cooldown:      DefaultCooldown,
	}
}

// Load returns Default overlaid with the environment and then args.
func Load(args []string) (Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}

	fs := flag.NewFlagSet("handsignal", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// applyEnv reads HANDSIGNAL_* variables through getenv.
func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"HANDSIGNAL_ADDR":       &c.Addr,
		"HANDSIGNAL_DATA_DIR":   &c.DataDir,
		"HANDSIGNAL_PLUGIN_DIR": &c.PluginDir,
		"HANDSIGNAL_WEB_DIR":    &c.WebDir,
		"HANDSIGNAL_SCRIPT":     &c.ScriptPath,
		"HANDSIGNAL_PYTHON":     &c.PythonPath,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"HANDSIGNAL_CAMERA":       &c.Camera.DeviceID,
		"HANDSIGNAL_WIDTH":        &c.Camera.Width,
		"HANDSIGNAL_HEIGHT":       &c.Camera.Height,
		"HANDSIGNAL_FPS":          &c.FixedFPS,
		"HANDSIGNAL_HISTORY_SIZE": &c.Movement.HistorySize,
		"HANDSIGNAL_VOTE_WINDOW":  &c.Movement.VoteWindow,
	}
	for key, dst := range ints {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if v := getenv("HANDSIGNAL_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("HANDSIGNAL_THRESHOLD: %w", err)
		}
		c.Movement.Threshold = f
	}

	durations := map[string]*time.Duration{
		"HANDSIGNAL_PLUGIN_TIMEOUT": &c.PluginTimeout,
		"HANDSIGNAL_COOLDOWN":       &c.Cooldown,
	}
	for key, dst := range durations {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	bools := map[string]*bool{
		"HANDSIGNAL_MOCK_HANDS": &c.MockHands,
		"HANDSIGNAL_TRAY":       &c.Tray,
		"HANDSIGNAL_AUTOSTART":  &c.AutoStart,
	}
	for key, dst := range bools {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}

	return nil
}

// RegisterFlags binds c's fields to flags on fs, using the current values
// as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "HTTP server address")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "Data directory (database, plugins)")
	fs.StringVar(&c.PluginDir, "plugin-dir", c.PluginDir, "Plugin directory (default <data-dir>/plugins)")
	fs.StringVar(&c.WebDir, "web-dir", c.WebDir, "Static dashboard directory")

	fs.IntVar(&c.Camera.DeviceID, "camera", c.Camera.DeviceID, "Camera device ID")
	fs.IntVar(&c.Camera.Width, "width", c.Camera.Width, "Capture width")
	fs.IntVar(&c.Camera.Height, "height", c.Camera.Height, "Capture height")
	fs.IntVar(&c.FixedFPS, "fps", c.FixedFPS, "Fixed frame rate (0 = motion-paced 5/15 fps)")

	fs.Float64Var(&c.Movement.Threshold, "threshold", c.Movement.Threshold, "Movement threshold in normalized frame units")
	fs.IntVar(&c.Movement.HistorySize, "history", c.Movement.HistorySize, "Movement history capacity")
	fs.IntVar(&c.Movement.VoteWindow, "vote-window", c.Movement.VoteWindow, "Dominant direction vote window")

	fs.StringVar(&c.ScriptPath, "script", c.ScriptPath, "MediaPipe service script")
	fs.StringVar(&c.PythonPath, "python", c.PythonPath, "Python interpreter for the MediaPipe service")
	fs.BoolVar(&c.MockHands, "mock-hands", c.MockHands, "Use the mock landmark source instead of MediaPipe")

	fs.DurationVar(&c.PluginTimeout, "plugin-timeout", c.PluginTimeout, "Plugin execution timeout")
	fs.DurationVar(&c.Cooldown, "cooldown", c.Cooldown, "Minimum time between plugin actions")

	fs.BoolVar(&c.Tray, "tray", c.Tray, "Show the system tray menu")
	fs.BoolVar(&c.AutoStart, "autostart", c.AutoStart, "Start tracking on launch")
}

// Validate checks the settings that cannot fall back to defaults.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	if c.Camera.DeviceID < 0 {
		return fmt.Errorf("camera device %d is invalid", c.Camera.DeviceID)
	}
	if c.FixedFPS < 0 {
		return fmt.Errorf("fps %d is invalid", c.FixedFPS)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown %v is invalid", c.Cooldown)
	}
	return c.Movement.Validate()
}

// DBPath returns the SQLite database path.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, DefaultDBName)
}

// Plugins returns the plugin directory.
func (c *Config) Plugins() string {
	if c.PluginDir != "" {
		return c.PluginDir
	}
	return filepath.Join(c.DataDir, "plugins")
}

// Session returns the session controller configuration.
func (c *Config) Session() session.Config {
	sc := session.DefaultConfig()
	sc.Movement = c.Movement
	if c.FixedFPS > 0 {
		sc.Feeder.FixedFPS = c.FixedFPS
	}
	return sc
}

// Detector returns the MediaPipe landmark source configuration.
func (c *Config) Detector() detector.Config {
	dc := detector.DefaultConfig()
	dc.ScriptPath = c.ScriptPath
	dc.PythonPath = c.PythonPath
	return dc
}
