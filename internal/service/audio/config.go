// Package audio transcodes voice audio between compressed containers and the
// raw PCM16LE stream exchanged with the voice engine, and accumulates the
// engine's response audio.
package audio

import (
	"fmt"
	"time"
)

// Container formats understood by the encoder and packager.
const (
	FormatOGG  = "ogg"
	FormatMP3  = "mp3"
	FormatWAV  = "wav"
	FormatWebM = "webm"
	FormatFLAC = "flac"
)

// bytesPerSample is fixed: the engine speaks signed 16-bit little-endian PCM.
const bytesPerSample = 2

var sourceFormats = map[string]bool{
	FormatOGG:  true,
	FormatMP3:  true,
	FormatWAV:  true,
	FormatWebM: true,
	FormatFLAC: true,
}

var targetFormats = map[string]string{
	FormatOGG: "audio/ogg; codecs=opus",
	FormatMP3: "audio/mpeg",
	FormatWAV: "audio/wav",
}

// IsSourceFormat reports whether f can be decoded as source audio.
func IsSourceFormat(f string) bool { return sourceFormats[f] }

// IsTargetFormat reports whether replies can be packaged as f.
func IsTargetFormat(f string) bool {
	_, ok := targetFormats[f]
	return ok
}

// StreamConfig describes the PCM shape negotiated with the voice engine and
// the containers on either side of it. Treat it as immutable once a session
// has started.
type StreamConfig struct {
	SampleRate    int           // Hz, applies to both directions
	Channels      int           // 1 or 2
	SourceFormat  string        // container of the inbound voice message
	TargetFormat  string        // container of the packaged reply
	ChunkDuration time.Duration // duration of one outbound PCM chunk
}

// DefaultStreamConfig returns the configuration the voice engine is normally
// driven with: 48 kHz mono, Ogg/Opus in and out, 20ms chunks.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		SampleRate:    48000,
		Channels:      1,
		SourceFormat:  FormatOGG,
		TargetFormat:  FormatOGG,
		ChunkDuration: 20 * time.Millisecond,
	}
}

// Validate checks the invariants of the stream configuration.
func (c StreamConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}
	if !IsSourceFormat(c.SourceFormat) {
		return fmt.Errorf("unsupported source format %q", c.SourceFormat)
	}
	if !IsTargetFormat(c.TargetFormat) {
		return fmt.Errorf("unsupported target format %q", c.TargetFormat)
	}
	if c.ChunkDuration <= 0 {
		return fmt.Errorf("chunk duration must be positive, got %v", c.ChunkDuration)
	}
	return nil
}

// FrameBytes is the size of one sample across all channels.
func (c StreamConfig) FrameBytes() int {
	return c.Channels * bytesPerSample
}

// BytesPerSecond is the PCM byte rate at this configuration.
func (c StreamConfig) BytesPerSecond() int {
	return c.SampleRate * c.FrameBytes()
}

// ChunkBytes returns the size of one outbound chunk, rounded down to a whole
// number of frames and never smaller than one frame.
func (c StreamConfig) ChunkBytes() int {
	n := int(int64(c.BytesPerSecond()) * int64(c.ChunkDuration) / int64(time.Second))
	n -= n % c.FrameBytes()
	if n < c.FrameBytes() {
		n = c.FrameBytes()
	}
	return n
}

// Duration returns the playback duration of n bytes of PCM.
func (c StreamConfig) Duration(n int) time.Duration {
	bps := c.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// MimeType returns the MIME type of the target container.
func (c StreamConfig) MimeType() string {
	return targetFormats[c.TargetFormat]
}
