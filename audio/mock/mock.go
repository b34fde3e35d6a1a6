// Package mock provides in-memory audio devices with a manually advanced
// clock, for tests that need deterministic playback and capture.
package mock

import (
	"errors"
	"sync"
	"time"

	"github.com/room4-2/gensyn-guide/audio"
)

// Compile-time assertions.
var (
	_ audio.OutputContext = (*Output)(nil)
	_ audio.InputDevice   = (*Input)(nil)
	_ audio.InputStream   = (*Stream)(nil)
)

// Playback records one Play call.
type Playback struct {
	Start    time.Duration
	Duration time.Duration
	Buffer   *audio.Buffer
	Stopped  bool
	Ended    bool

	onEnded func()
	owner   *Output
}

// Stop implements audio.Source.
func (p *Playback) Stop() {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	if !p.Ended {
		p.Stopped = true
	}
}

// Output is an audio.OutputContext whose clock only moves on Advance.
type Output struct {
	mu        sync.Mutex
	now       time.Duration
	playbacks []*Playback
	closed    int
	PlayErr   error
}

// NewOutput returns an output context at time zero.
func NewOutput() *Output {
	return &Output{}
}

// CurrentTime implements audio.OutputContext.
func (o *Output) CurrentTime() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// Play implements audio.OutputContext.
func (o *Output) Play(buf *audio.Buffer, at time.Duration, onEnded func()) (audio.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed > 0 {
		return nil, audio.ErrContextClosed
	}
	if o.PlayErr != nil {
		return nil, o.PlayErr
	}
	p := &Playback{
		Start:    at,
		Duration: buf.Duration(),
		Buffer:   buf,
		onEnded:  onEnded,
		owner:    o,
	}
	o.playbacks = append(o.playbacks, p)
	return p, nil
}

// Advance moves the clock forward by d and fires onEnded for every playback
// that finished in the meantime, outside the lock.
func (o *Output) Advance(d time.Duration) {
	o.mu.Lock()
	o.now += d
	var ended []func()
	for _, p := range o.playbacks {
		if p.Stopped || p.Ended {
			continue
		}
		if p.Start+p.Duration <= o.now {
			p.Ended = true
			if p.onEnded != nil {
				ended = append(ended, p.onEnded)
			}
		}
	}
	o.mu.Unlock()

	for _, fn := range ended {
		fn()
	}
}

// Playbacks returns a snapshot of every Play call so far.
func (o *Output) Playbacks() []Playback {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Playback, len(o.playbacks))
	for i, p := range o.playbacks {
		out[i] = *p
	}
	return out
}

// Close implements audio.OutputContext.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
	return nil
}

// CloseCount reports how many times Close was called.
func (o *Output) CloseCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Input is an audio.InputDevice whose streams deliver frames pushed by the test.
type Input struct {
	mu      sync.Mutex
	OpenErr error
	opened  int
	streams []*Stream
}

// Open implements audio.InputDevice.
func (d *Input) Open(sampleRate, frameSize int) (audio.InputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	d.opened++
	s := &Stream{frames: make(chan []float32, 64), aborted: make(chan struct{})}
	d.streams = append(d.streams, s)
	return s, nil
}

// Opened reports how many streams were opened.
func (d *Input) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Last returns the most recently opened stream, or nil.
func (d *Input) Last() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

// Stream is an audio.InputStream fed by Push.
type Stream struct {
	frames    chan []float32
	aborted   chan struct{}
	abortOnce sync.Once

	mu     sync.Mutex
	closed int
}

var errAborted = errors.New("mock stream aborted")

// Push queues one frame for Read.
func (s *Stream) Push(frame []float32) {
	s.frames <- frame
}

// Read implements audio.InputStream.
func (s *Stream) Read(frame []float32) error {
	select {
	case <-s.aborted:
		return errAborted
	case f := <-s.frames:
		copy(frame, f)
		return nil
	}
}

// Abort implements audio.InputStream.
func (s *Stream) Abort() error {
	s.abortOnce.Do(func() { close(s.aborted) })
	return nil
}

// Close implements audio.InputStream.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Closed reports how many times Close was called.
func (s *Stream) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
