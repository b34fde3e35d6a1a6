package audio

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// Capture pulls fixed-size frames from the default microphone and hands each
// one to a caller-supplied sink, in capture order, from a single goroutine.
//
// There is no backpressure: a sink slower than the device lets frames queue
// up in the host's buffer.
type Capture struct {
	device     InputDevice
	sampleRate int
	frameSize  int

	mu      sync.Mutex
	stream  InputStream
	running bool
	done    chan struct{}
}

// NewCapture creates a capture pipeline for device. Zero values select
// InputSampleRate and FrameSize.
func NewCapture(device InputDevice, sampleRate, frameSize int) *Capture {
	if sampleRate <= 0 {
		sampleRate = InputSampleRate
	}
	if frameSize <= 0 {
		frameSize = FrameSize
	}
	return &Capture{
		device:     device,
		sampleRate: sampleRate,
		frameSize:  frameSize,
	}
}

// Open acquires the input device without delivering frames yet. It is a
// no-op when the device is already held.
func (c *Capture) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openLocked()
}

func (c *Capture) openLocked() error {
	if c.stream != nil {
		return nil
	}
	if c.device == nil {
		return ErrDeviceUnavailable
	}
	stream, err := c.device.Open(c.sampleRate, c.frameSize)
	if err != nil {
		return fmt.Errorf("open input device: %w", err)
	}
	c.stream = stream
	return nil
}

// Start begins delivering frames to onFrame until Stop. The device is
// acquired first if Open was not called.
func (c *Capture) Start(onFrame func(Frame)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return errors.New("capture already running")
	}
	if err := c.openLocked(); err != nil {
		return err
	}

	c.running = true
	c.done = make(chan struct{})
	go c.readLoop(c.stream, onFrame, c.done)
	return nil
}

func (c *Capture) readLoop(stream InputStream, onFrame func(Frame), done chan struct{}) {
	defer close(done)
	for {
		frame := make(Frame, c.frameSize)
		if err := stream.Read(frame); err != nil {
			c.mu.Lock()
			running := c.running
			c.mu.Unlock()
			if running {
				log.Printf("❌ Microphone read error: %v", err)
			}
			return
		}
		onFrame(frame)
	}
}

// Stop releases the input device and stops frame delivery. It is safe to
// call repeatedly and before Start.
func (c *Capture) Stop() {
	c.mu.Lock()
	stream := c.stream
	done := c.done
	c.stream = nil
	c.done = nil
	c.running = false
	c.mu.Unlock()

	if stream == nil {
		return
	}
	if err := stream.Abort(); err != nil {
		log.Printf("⚠️ Microphone abort: %v", err)
	}
	if done != nil {
		<-done
	}
	if err := stream.Close(); err != nil {
		log.Printf("⚠️ Microphone close: %v", err)
	}
}

// Running reports whether frames are being delivered.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
