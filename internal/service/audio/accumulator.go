package audio

import "bytes"

// Accumulator collects the engine's binary audio frames in arrival order.
// It is written by a single goroutine; it does no locking of its own.
type Accumulator struct {
	buf    bytes.Buffer
	frames int
}

// Append adds one frame's payload to the end of the buffer.
// Empty payloads are counted as frames but add no bytes.
func (a *Accumulator) Append(payload []byte) {
	a.buf.Write(payload)
	a.frames++
}

// Len returns the number of accumulated bytes.
func (a *Accumulator) Len() int {
	return a.buf.Len()
}

// Frames returns the number of frames appended.
func (a *Accumulator) Frames() int {
	return a.frames
}

// Bytes returns a copy of the accumulated audio.
func (a *Accumulator) Bytes() []byte {
	return bytes.Clone(a.buf.Bytes())
}
