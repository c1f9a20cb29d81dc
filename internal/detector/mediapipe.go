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
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/glowlens/internal/frame"
	"github.com/ayusman/glowlens/internal/landmark"
	"github.com/ayusman/glowlens/internal/logger"
)

// ScriptName is the landmark service shipped in scripts/.
const ScriptName = "landmark_service.py"

// DefaultIdleTimeout is how long the subprocess may sit unused before it is shut down.
const DefaultIdleTimeout = 30 * time.Second

// MediaPipeConfig configures the subprocess backend.
type MediaPipeConfig struct {
	Topology landmark.Topology
	// Python is the interpreter; empty searches for a virtualenv, then python3.
	Python string
	// Script is the service path; empty searches the usual install locations.
	Script string
	// ModelDir holds the .task model assets.
	ModelDir    string
	IdleTimeout time.Duration
}

// MediaPipeBackend runs landmark detection in a Python MediaPipe subprocess.
// Frames are sent as a 4-byte big-endian length followed by JPEG bytes; the
// service answers each frame with one JSON line.
type MediaPipeBackend struct {
	config MediaPipeConfig
	log    logrus.FieldLogger

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	started   bool
	idleTimer *time.Timer
	// idleGen identifies the current idle timer; older callbacks are ignored
	idleGen   uint64
}

// NewMediaPipeBackend creates a backend. The subprocess is started by Load.
func NewMediaPipeBackend(config MediaPipeConfig, log logrus.FieldLogger) *MediaPipeBackend {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	return &MediaPipeBackend{
		config: config,
		log:    logger.OrDiscard(log).WithField("backend", "mediapipe"),
	}
}

// handshake is the first line the service prints after loading its model.
type handshake struct {
	Topology  string `json:"topology"`
	Points    int    `json:"points"`
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind"` // "network" or "device"
}

// Load starts the service and waits for its handshake.
func (b *MediaPipeBackend) Load(ctx context.Context) (landmark.Topology, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.start(ctx)
}

// Detect encodes f as JPEG and asks the service for landmarks.
func (b *MediaPipeBackend) Detect(f *frame.Sample) (landmark.Set, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		// Restart after an idle shutdown
		if _, err := b.start(context.Background()); err != nil {
			return landmark.Set{}, err
		}
	}

	data, err := encodeJPEG(f)
	if err != nil {
		return landmark.Set{}, err
	}

	// Write length (4 bytes big-endian) + data
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := b.stdin.Write(length); err != nil {
		return landmark.Set{}, b.exited(fmt.Errorf("write length: %w", err))
	}
	if _, err := b.stdin.Write(data); err != nil {
		return landmark.Set{}, b.exited(fmt.Errorf("write data: %w", err))
	}

	line, err := b.stdout.ReadString('\n')
	if err != nil {
		return landmark.Set{}, b.exited(fmt.Errorf("read response: %w", err))
	}

	set, err := parseResponse([]byte(line), b.config.Topology)
	if err != nil {
		return landmark.Set{}, err
	}
	set.Aspect = f.Aspect()

	b.resetIdleTimer()
	return set, nil
}

// Close shuts down the Python process.
func (b *MediaPipeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shutdown()
}

func (b *MediaPipeBackend) start(ctx context.Context) (landmark.Topology, error) {
	if b.started {
		return b.config.Topology, nil
	}

	script := b.config.Script
	if script == "" {
		script = findScript()
	}
	if script == "" {
		return landmark.Topology{}, &ModelLoadError{Kind: UnsupportedDevice, Err: fmt.Errorf("%s not found", ScriptName)}
	}

	python := b.config.Python
	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}

	args := []string{script, "--topology", b.config.Topology.Name}
	if b.config.ModelDir != "" {
		args = append(args, "--model-dir", b.config.ModelDir)
	}
	cmd := exec.Command(python, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return landmark.Topology{}, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return landmark.Topology{}, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return landmark.Topology{}, &ModelLoadError{Kind: UnsupportedDevice, Err: fmt.Errorf("start landmark service: %w", err)}
	}

	reader := bufio.NewReader(stdout)

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := reader.ReadString('\n')
		ch <- result{line, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		stdin.Close()
		cmd.Process.Kill()
		cmd.Wait()
		return landmark.Topology{}, ctx.Err()
	case res = <-ch:
	}

	if res.err != nil {
		stdin.Close()
		cmd.Wait()
		return landmark.Topology{}, &ModelLoadError{Kind: UnsupportedDevice, Err: fmt.Errorf("read handshake: %w", res.err)}
	}

	topo, err := parseHandshake([]byte(res.line))
	if err != nil {
		stdin.Close()
		cmd.Wait()
		return landmark.Topology{}, err
	}

	b.cmd = cmd
	b.stdin = stdin
	b.stdout = reader
	b.started = true
	b.resetIdleTimer()

	b.log.WithField("python", python).Debug("landmark service started")
	return topo, nil
}

// exited tears down a service whose pipes failed so the next Detect starts a
// fresh one.
func (b *MediaPipeBackend) exited(err error) error {
	if b.cmd != nil && b.cmd.Process != nil {
		b.cmd.Process.Kill()
	}
	if werr := b.shutdown(); werr != nil {
		b.log.WithError(werr).Debug("landmark service exited")
	}
	b.log.WithError(err).Warn("landmark service lost, restarting on next frame")
	return err
}

func (b *MediaPipeBackend) shutdown() error {
	if !b.started {
		return nil
	}

	b.idleGen++
	if b.idleTimer != nil {
		b.idleTimer.Stop()
		b.idleTimer = nil
	}

	if b.stdin != nil {
		b.stdin.Close()
	}

	err := b.cmd.Wait()
	b.started = false
	b.cmd = nil
	b.stdin = nil
	b.stdout = nil

	return err
}

func (b *MediaPipeBackend) resetIdleTimer() {
	if b.idleTimer != nil {
		b.idleTimer.Stop()
	}
	b.idleGen++
	gen := b.idleGen
	b.idleTimer = time.AfterFunc(b.config.IdleTimeout, func() {
		b.idleShutdown(gen)
	})
}

// idleShutdown stops the service unless the timer for gen was replaced after
// it fired.
func (b *MediaPipeBackend) idleShutdown(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.idleGen {
		return
	}
	if err := b.shutdown(); err != nil {
		b.log.WithError(err).Debug("idle shutdown")
	}
}

func parseHandshake(line []byte) (landmark.Topology, error) {
	var h handshake
	if err := json.Unmarshal(line, &h); err != nil {
		return landmark.Topology{}, &ModelLoadError{Kind: UnsupportedDevice, Err: fmt.Errorf("parse handshake: %w", err)}
	}

	if h.Error != "" {
		kind := UnsupportedDevice
		if h.ErrorKind == "network" {
			kind = NetworkFailure
		}
		return landmark.Topology{}, &ModelLoadError{Kind: kind, Err: errors.New(h.Error)}
	}

	return landmark.Topology{Name: h.Topology, Points: h.Points}, nil
}

// response is one detection answer. The service reports at most a few
// subjects; only the highest-scoring one is used.
type response struct {
	Subjects []struct {
		Points []landmark.Point `json:"points"`
		Score  float64          `json:"score"`
	} `json:"subjects"`
	Error string `json:"error"`
}

func parseResponse(line []byte, t landmark.Topology) (landmark.Set, error) {
	var r response
	if err := json.Unmarshal(line, &r); err != nil {
		return landmark.Set{}, fmt.Errorf("parse response: %w", err)
	}
	if r.Error != "" {
		return landmark.Set{}, fmt.Errorf("landmark service: %s", r.Error)
	}

	set := landmark.Set{Topology: t}
	for _, s := range r.Subjects {
		if len(set.Points) == 0 || s.Score > set.Score {
			set.Points = s.Points
			set.Score = s.Score
		}
	}
	return set, nil
}

func encodeJPEG(f *frame.Sample) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(f.Image())
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory released by Close
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}

func findScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", ScriptName),
		filepath.Join("..", "scripts", ScriptName),
		filepath.Join(execDir, "scripts", ScriptName),
		filepath.Join(os.Getenv("HOME"), ".glowlens", "scripts", ScriptName),
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
		filepath.Join(os.Getenv("HOME"), ".glowlens/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}
