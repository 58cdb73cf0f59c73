package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

var (
	// ErrNoScript is returned when mediapipe_service.py cannot be located.
	ErrNoScript = errors.New("mediapipe_service.py not found")
	// ErrDetectTimeout is returned when the service does not answer a frame
	// within Config.FrameTimeout.
	ErrDetectTimeout = errors.New("mediapipe service did not answer")
)

const (
	// DefaultLoadTimeout bounds the wait for the Python service to report
	// ready when Detect has to start it lazily.
	DefaultLoadTimeout = 30 * time.Second

	// DefaultFrameTimeout bounds one frame round-trip.
	DefaultFrameTimeout = 2 * time.Second

	// exitGrace is how long shutdown waits after closing stdin before it
	// kills the service.
	exitGrace = 2 * time.Second
)

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
//
// Protocol: after start-up the service writes one {"ready":true} line. Each
// request is a 4-byte big-endian length followed by a JPEG frame; each reply
// is one JSON line {"hands":[...]}.
type MediaPipeDetector struct {
	config Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	mu     sync.Mutex
	loaded bool
}

// NewMediaPipeDetector creates a new MediaPipe detector.
// The Python process is started by Load, or lazily on first detection.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	if config.ScriptPath == "" {
		config.ScriptPath = findMediaPipeScript()
	}
	if config.ScriptPath == "" {
		return nil, ErrNoScript
	}
	if config.FrameTimeout <= 0 {
		config.FrameTimeout = DefaultFrameTimeout
	}

	return &MediaPipeDetector{
		config: config,
	}, nil
}

// Load starts the Python service and waits until it reports ready.
func (d *MediaPipeDetector) Load(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ensureStarted(ctx)
}

// Detect analyzes a frame and returns detected hand landmarks.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultLoadTimeout)
		err := d.ensureStarted(ctx)
		cancel()
		if err != nil {
			return nil, err
		}
	}

	// Encode frame as JPEG
	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	// The exchange runs on its own goroutine so a stalled service cannot
	// hold the caller past FrameTimeout. Killing the service unblocks it.
	reply := make(chan roundTrip, 1)
	go func(stdin io.Writer, stdout *bufio.Reader) {
		line, err := exchange(stdin, stdout, data)
		reply <- roundTrip{line: line, err: err}
	}(d.stdin, d.stdout)

	timer := time.NewTimer(d.config.FrameTimeout)
	defer timer.Stop()

	select {
	case res := <-reply:
		if res.err != nil {
			d.shutdown()
			return nil, res.err
		}
		return parseResponse([]byte(res.line))
	case <-timer.C:
		d.kill()
		<-reply
		return nil, fmt.Errorf("%w within %s", ErrDetectTimeout, d.config.FrameTimeout)
	}
}

type roundTrip struct {
	line string
	err  error
}

// exchange writes one length-prefixed frame and reads the reply line.
func exchange(stdin io.Writer, stdout *bufio.Reader, data []byte) (string, error) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := stdin.Write(length); err != nil {
		return "", fmt.Errorf("write length: %w", err)
	}
	if _, err := stdin.Write(data); err != nil {
		return "", fmt.Errorf("write data: %w", err)
	}

	line, err := stdout.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return line, nil
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *MediaPipeDetector) ensureStarted(ctx context.Context) error {
	if d.loaded {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pythonPath := d.config.PythonPath
	if pythonPath == "" {
		pythonPath = findVenvPython()
	}
	if pythonPath == "" {
		pythonPath = "python3"
	}

	cmd := exec.Command(pythonPath, d.config.ScriptPath,
		"--max-hands", strconv.Itoa(d.config.MaxHands),
		"--min-detection-confidence", strconv.FormatFloat(d.config.MinConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.config.MinTrackingConf, 'f', -1, 64),
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start mediapipe service: %w", err)
	}

	reader := bufio.NewReader(stdout)

	ready := make(chan error, 1)
	go func() {
		line, err := reader.ReadString('\n')
		if err != nil {
			ready <- fmt.Errorf("read ready line: %w", err)
			return
		}
		var msg struct {
			Ready bool   `json:"ready"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			ready <- fmt.Errorf("parse ready line: %w", err)
			return
		}
		if !msg.Ready {
			ready <- fmt.Errorf("mediapipe service not ready: %s", msg.Error)
			return
		}
		ready <- nil
	}()

	select {
	case err = <-ready:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		stdin.Close()
		cmd.Process.Kill()
		cmd.Wait()
		return err
	}

	d.cmd = cmd
	d.stdin = stdin
	d.stdout = reader
	d.loaded = true

	return nil
}

// shutdown closes stdin so the service exits on its own, and kills it if it
// has not exited after exitGrace.
func (d *MediaPipeDetector) shutdown() error {
	if !d.loaded {
		return nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	exited := make(chan error, 1)
	go func(cmd *exec.Cmd) {
		exited <- cmd.Wait()
	}(d.cmd)

	var err error
	select {
	case err = <-exited:
	case <-time.After(exitGrace):
		d.cmd.Process.Kill()
		err = <-exited
	}
	d.reset()

	return err
}

// kill stops the service without waiting for it to finish its frame.
func (d *MediaPipeDetector) kill() {
	if !d.loaded {
		return
	}
	d.stdin.Close()
	d.cmd.Process.Kill()
	d.cmd.Wait()
	d.reset()
}

func (d *MediaPipeDetector) reset() {
	d.loaded = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
}

func findMediaPipeScript() string {
	// Get executable directory
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/mediapipe_service.py",
		"../scripts/mediapipe_service.py",
		filepath.Join(execDir, "scripts/mediapipe_service.py"),
		filepath.Join(os.Getenv("HOME"), ".handsignal/scripts/mediapipe_service.py"),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".handsignal/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(candidates []string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonHand represents the JSON structure from the Python service.
type jsonHand struct {
	Points     []jsonPoint `json:"points"`
	Handedness string      `json:"handedness"`
	Score      float64     `json:"score"`
}

type jsonPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// parseResponse decodes one reply line. A hand with fewer than NumLandmarks
// points is rejected rather than zero-filled.
func parseResponse(line []byte) ([]HandLandmarks, error) {
	var response struct {
		Hands []jsonHand `json:"hands"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("mediapipe service: %s", response.Error)
	}

	result := make([]HandLandmarks, 0, len(response.Hands))
	for _, h := range response.Hands {
		if len(h.Points) < NumLandmarks {
			return nil, fmt.Errorf("%w: hand has %d points, want %d", ErrMalformedLandmark, len(h.Points), NumLandmarks)
		}
		result = append(result, h.toHandLandmarks())
	}

	return result, nil
}

func (h jsonHand) toHandLandmarks() HandLandmarks {
	lm := HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}

	for i := 0; i < NumLandmarks && i < len(h.Points); i++ {
		lm.Points[i] = Point3D{
			X: h.Points[i].X,
			Y: h.Points[i].Y,
			Z: h.Points[i].Z,
		}
	}

	return lm
}
