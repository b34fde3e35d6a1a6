package audio

import (
	"errors"
	"time"
)

var (
	// ErrPermission means the host refused access to the microphone.
	ErrPermission = errors.New("microphone permission denied")
	// ErrDeviceUnavailable means there is no usable input or output device.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrContextClosed is returned by an OutputContext after Close.
	ErrContextClosed = errors.New("audio context closed")
)

// Source is a handle to one buffer scheduled on an OutputContext.
type Source interface {
	// Stop silences the source immediately. Its onEnded callback never runs
	// after Stop. Calling Stop on a finished source is a no-op.
	Stop()
}

// OutputContext is an output device with its own monotonically advancing
// clock, on which buffers can be scheduled at absolute times.
//
// Play must not invoke onEnded synchronously; it runs later, on the context's
// own goroutine, and only when the buffer played to its end.
type OutputContext interface {
	CurrentTime() time.Duration
	Play(buf *Buffer, at time.Duration, onEnded func()) (Source, error)
	Close() error
}

// InputStream delivers fixed-size frames from an opened input device.
type InputStream interface {
	// Read blocks until frame is filled with the next block of samples.
	Read(frame []float32) error
	// Abort unblocks a pending Read and makes further reads fail.
	Abort() error
	Close() error
}

// InputDevice opens the default microphone.
type InputDevice interface {
	Open(sampleRate, frameSize int) (InputStream, error)
}
