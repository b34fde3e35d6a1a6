// Package portaudio connects the audio pipeline to the host's default
// microphone and speakers through PortAudio. It is the only package that
// needs the PortAudio C library.
package portaudio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/room4-2/gensyn-guide/audio"

	pa "github.com/gordonklaus/portaudio"
)

// mapDeviceError folds PortAudio failures into the audio package's error kinds.
func mapDeviceError(err error) error {
	var paErr pa.Error
	if !errors.As(err, &paErr) {
		return fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}
	switch paErr {
	case pa.UnanticipatedHostError:
		// Hosts that gate the microphone behind a consent prompt report
		// a refusal as a host error.
		return fmt.Errorf("%w: %v", audio.ErrPermission, err)
	default:
		return fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}
}

// Input opens the host's default microphone.
type Input struct{}

// Open acquires the default input device as a mono float32 stream.
func (Input) Open(sampleRate, frameSize int) (audio.InputStream, error) {
	if err := pa.Initialize(); err != nil {
		return nil, mapDeviceError(err)
	}
	if _, err := pa.DefaultInputDevice(); err != nil {
		pa.Terminate()
		return nil, mapDeviceError(err)
	}

	in := &inputStream{wake: make(chan struct{}, 1)}
	stream, err := pa.OpenDefaultStream(1, 0, float64(sampleRate), frameSize, in.callback)
	if err != nil {
		pa.Terminate()
		return nil, mapDeviceError(err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		pa.Terminate()
		return nil, mapDeviceError(err)
	}
	in.stream = stream
	return in, nil
}

// inputStream queues frames from the real-time callback so the callback
// never blocks; Read drains the queue in order.
type inputStream struct {
	stream *pa.Stream

	mu      sync.Mutex
	queue   [][]float32
	aborted bool
	wake    chan struct{}

	closeOnce sync.Once
}

func (p *inputStream) callback(in []float32) {
	frame := make([]float32, len(in))
	copy(frame, in)

	p.mu.Lock()
	if !p.aborted {
		p.queue = append(p.queue, frame)
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *inputStream) Read(frame []float32) error {
	for {
		p.mu.Lock()
		if p.aborted {
			p.mu.Unlock()
			return audio.ErrContextClosed
		}
		if len(p.queue) > 0 {
			next := p.queue[0]
			p.queue[0] = nil
			p.queue = p.queue[1:]
			p.mu.Unlock()
			copy(frame, next)
			return nil
		}
		p.mu.Unlock()
		<-p.wake
	}
}

func (p *inputStream) Abort() error {
	p.mu.Lock()
	p.aborted = true
	p.queue = nil
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

func (p *inputStream) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.Abort()
		if stopErr := p.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := p.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		pa.Terminate()
	})
	return err
}
