package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
)

// Encoder turns compressed source audio into fixed-size PCM16LE chunks at the
// configured rate and channel count.
type Encoder struct {
	runner Runner
	cfg    StreamConfig
}

// NewEncoder creates an encoder that transcodes with runner.
func NewEncoder(runner Runner, cfg StreamConfig) *Encoder {
	return &Encoder{runner: runner, cfg: cfg}
}

// Args returns the transcoder arguments for the configured source format.
func (e *Encoder) Args() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", e.cfg.SourceFormat,
		"-i", "pipe:0",
		"-vn",
		"-acodec", "pcm_s16le",
		"-f", "s16le",
		"-ac", strconv.Itoa(e.cfg.Channels),
		"-ar", strconv.Itoa(e.cfg.SampleRate),
		"pipe:1",
	}
}

// Stream starts transcoding src and returns the chunk sequence. The
// transcoder only runs ahead of the reader by one pipe buffer. The stream
// cannot be restarted; call Close when done with it, whether or not it was
// drained.
func (e *Encoder) Stream(ctx context.Context, src io.Reader) *ChunkStream {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()

	s := &ChunkStream{
		r:          pr,
		cancel:     cancel,
		done:       make(chan struct{}),
		chunkBytes: e.cfg.ChunkBytes(),
	}

	go func() {
		defer close(s.done)
		err := e.runner.Run(ctx, Job{
			Name:   "encode",
			Args:   e.Args(),
			Stdin:  src,
			Stdout: pw,
		})
		if err != nil {
			err = fmt.Errorf("encode source audio: %w", err)
		}
		pw.CloseWithError(err)
	}()

	return s
}

// ChunkStream is a lazy, finite sequence of PCM chunks.
type ChunkStream struct {
	r          *io.PipeReader
	cancel     context.CancelFunc
	done       chan struct{}
	chunkBytes int

	total     int
	err       error
	closeOnce sync.Once
}

// Next returns the next chunk. Every chunk but the last is exactly the
// configured chunk size. After the last chunk Next returns io.EOF; a failed
// transcode returns an error wrapping *ProcessingError.
func (s *ChunkStream) Next() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}

	buf := make([]byte, s.chunkBytes)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case err == nil:
		s.total += n
		return buf, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.total += n
		return buf[:n], nil
	case errors.Is(err, io.EOF):
		if s.total == 0 {
			s.err = &ProcessingError{Op: "encode", ExitCode: -1, Err: errEmptySource}
			return nil, s.err
		}
		s.err = io.EOF
		return nil, io.EOF
	default:
		s.err = err
		return nil, err
	}
}

// BytesRead returns the number of PCM bytes handed out so far.
func (s *ChunkStream) BytesRead() int {
	return s.total
}

// Close stops the transcoder if it is still running and waits for it to exit.
func (s *ChunkStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.r.Close()
		<-s.done
	})
	return nil
}
