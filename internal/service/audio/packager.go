package audio

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"
)

// Artifact is a packaged reply ready for delivery.
type Artifact struct {
	Data     []byte
	Format   string
	MimeType string
	Duration time.Duration
}

// Packager re-encodes accumulated PCM into the target container.
type Packager struct {
	runner Runner
	cfg    StreamConfig
}

// NewPackager creates a packager that transcodes with runner.
func NewPackager(runner Runner, cfg StreamConfig) *Packager {
	return &Packager{runner: runner, cfg: cfg}
}

// Args returns the transcoder arguments for the configured target format.
func (p *Packager) Args() []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(p.cfg.SampleRate),
		"-ac", strconv.Itoa(p.cfg.Channels),
		"-i", "pipe:0",
	}
	switch p.cfg.TargetFormat {
	case FormatMP3:
		args = append(args, "-c:a", "libmp3lame", "-f", "mp3")
	default:
		args = append(args, "-c:a", "libopus", "-f", "ogg")
	}
	return append(args, "pipe:1")
}

// Package encodes pcm. An empty pcm yields ErrNoResponse.
func (p *Packager) Package(ctx context.Context, pcm []byte) (*Artifact, error) {
	if len(pcm) == 0 {
		return nil, ErrNoResponse
	}

	artifact := &Artifact{
		Format:   p.cfg.TargetFormat,
		MimeType: p.cfg.MimeType(),
		Duration: p.cfg.Duration(len(pcm)),
	}

	if p.cfg.TargetFormat == FormatWAV {
		data, err := EncodeWAV(pcm, p.cfg.SampleRate, p.cfg.Channels)
		if err != nil {
			return nil, &ProcessingError{Op: "package", ExitCode: -1, Err: err}
		}
		artifact.Data = data
		return artifact, nil
	}

	var out bytes.Buffer
	err := p.runner.Run(ctx, Job{
		Name:   "package",
		Args:   p.Args(),
		Stdin:  bytes.NewReader(pcm),
		Stdout: &out,
	})
	if err != nil {
		return nil, fmt.Errorf("package response audio: %w", err)
	}
	if out.Len() == 0 {
		return nil, &ProcessingError{Op: "package", ExitCode: -1, Err: fmt.Errorf("transcoder produced no output")}
	}

	artifact.Data = out.Bytes()
	return artifact, nil
}
