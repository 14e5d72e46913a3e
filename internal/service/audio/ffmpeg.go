package audio

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ai-voice-relay-service/internal/observability/metrics"
)

const stderrTailBytes = 2048

// Job is a single transcoder invocation. Stdin is read to exhaustion and then
// closed; everything the transcoder writes goes to Stdout.
type Job struct {
	Name   string // encode, package
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
}

// Runner executes transcoder jobs. Run must not return until the transcoder
// has exited, and must terminate it when ctx is cancelled.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, job Job) error

// Run calls f(ctx, job).
func (f RunnerFunc) Run(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// FFmpeg runs jobs through the ffmpeg binary.
type FFmpeg struct {
	path    string
	metrics *metrics.Metrics
}

// NewFFmpeg creates a runner for the ffmpeg binary at path (looked up on PATH
// when it has no separator).
func NewFFmpeg(path string) *FFmpeg {
	if strings.TrimSpace(path) == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{path: path, metrics: metrics.DefaultMetrics}
}

// Run starts ffmpeg, feeds it Stdin, drains its output into Stdout and waits
// for it to exit. A non-zero exit is reported as *ProcessingError; context
// cancellation kills the process and returns the context error.
func (f *FFmpeg) Run(ctx context.Context, job Job) error {
	start := time.Now()

	cmd := exec.CommandContext(ctx, f.path, job.Args...)
	cmd.Stdin = job.Stdin
	cmd.Stdout = job.Stdout
	stderr := &tailBuffer{max: stderrTailBytes}
	cmd.Stderr = stderr
	// Bound the wait for the I/O copy goroutines once the process is gone.
	cmd.WaitDelay = 2 * time.Second

	log.Debug().
		Str("job", job.Name).
		Strs("args", job.Args).
		Msg("Starting transcoder")

	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		f.metrics.RecordTranscode(job.Name, ctx.Err(), time.Since(start).Seconds())
		return ctx.Err()
	}
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		perr := &ProcessingError{
			Op:       job.Name,
			ExitCode: code,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
		f.metrics.RecordTranscode(job.Name, perr, time.Since(start).Seconds())
		return perr
	}

	f.metrics.RecordTranscode(job.Name, nil, time.Since(start).Seconds())
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
