// Package ffmpeg probes media durations and extracts still frames by running
// the ffprobe and ffmpeg binaries against in-memory resources staged on disk.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const (
	inputName  = "input"
	outputName = "frame.jpg"

	DefaultQuality = 5
)

// Config locates the binaries and the scratch directory.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	WorkDir     string
	Quality     int
}

// Engine is a single decoder instance. Calls are serialized: only one ffmpeg or
// ffprobe process runs at a time.
type Engine struct {
	mu      sync.Mutex
	ffmpeg  string
	ffprobe string
	workDir string
	quality int
	log     *slog.Logger
}

// NewEngine returns an Engine. Empty paths default to "ffmpeg"/"ffprobe" on PATH,
// an empty WorkDir to os.TempDir, and a non-positive Quality to DefaultQuality.
func NewEngine(cfg Config, log *slog.Logger) *Engine {
	e := &Engine{
		ffmpeg:  cfg.FFmpegPath,
		ffprobe: cfg.FFprobePath,
		workDir: cfg.WorkDir,
		quality: cfg.Quality,
		log:     log,
	}
	if e.ffmpeg == "" {
		e.ffmpeg = "ffmpeg"
	}
	if e.ffprobe == "" {
		e.ffprobe = "ffprobe"
	}
	if e.workDir == "" {
		e.workDir = os.TempDir()
	}
	if e.quality <= 0 {
		e.quality = DefaultQuality
	}
	return e
}

// ProbeDuration returns the container duration of data in seconds.
func (e *Engine) ProbeDuration(ctx context.Context, data []byte) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dir, input, err := e.stage(data)
	if err != nil {
		return 0, &ProbeError{Err: err}
	}
	defer os.RemoveAll(dir)

	out, err := exec.CommandContext(ctx, e.ffprobe, ProbeArgs(input)...).Output()
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
		return 0, &ProbeError{Err: err}
	}

	return parseDuration(out)
}

func parseDuration(out []byte) (float64, error) {
	s := strings.TrimSpace(string(out))
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ProbeError{Err: fmt.Errorf("parse duration %q: %w", s, err)}
	}
	if !(d > 0) || math.IsInf(d, 0) {
		return 0, &ProbeError{Err: fmt.Errorf("invalid duration %v", d)}
	}
	return d, nil
}

// ExtractFrame decodes a single frame at seek seconds into data, scaled to width
// pixels wide with the aspect ratio kept, and returns it JPEG-encoded.
func (e *Engine) ExtractFrame(ctx context.Context, data []byte, seek float64, width int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dir, input, err := e.stage(data)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	output := filepath.Join(dir, outputName)
	args := FrameArgs(FrameParams{
		Input:   input,
		Output:  output,
		Seek:    seek,
		Width:   width,
		Quality: e.quality,
	})

	e.log.Debug("ffmpeg exec", slog.String("args", strings.Join(args, " ")))

	combined, err := exec.CommandContext(ctx, e.ffmpeg, args...).CombinedOutput()
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExtractError{Code: exitErr.ExitCode(), Output: strings.TrimSpace(string(combined))}
		}
		return nil, fmt.Errorf("run ffmpeg: %w", err)
	}

	img, err := os.ReadFile(output)
	if err != nil || len(img) == 0 {
		return nil, &ExtractError{Code: -1, Output: strings.TrimSpace(string(combined))}
	}
	return img, nil
}

// stage writes data to a fresh scratch directory and returns the directory and
// the input file path. The caller removes the directory.
func (e *Engine) stage(data []byte) (string, string, error) {
	dir, err := os.MkdirTemp(e.workDir, "thumb-*")
	if err != nil {
		return "", "", fmt.Errorf("create scratch dir: %w", err)
	}
	input := filepath.Join(dir, inputName)
	if err := os.WriteFile(input, data, 0o600); err != nil {
		os.RemoveAll(dir)
		return "", "", fmt.Errorf("write input: %w", err)
	}
	return dir, input, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
