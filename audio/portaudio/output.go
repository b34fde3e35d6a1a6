package portaudio

import (
	"fmt"
	"sync"
	"time"

	"github.com/room4-2/gensyn-guide/audio"

	pa "github.com/gordonklaus/portaudio"
)

var (
	_ audio.OutputContext = (*Output)(nil)
	_ audio.InputDevice   = Input{}
)

// outputFramesPerBuffer keeps the mixer callback around 20 ms at 24 kHz.
const outputFramesPerBuffer = 480

// Output is an audio.OutputContext that mixes scheduled buffers into the
// default output device. Its clock is the number of frames rendered so far.
type Output struct {
	stream     *pa.Stream
	sampleRate int
	channels   int

	mu       sync.Mutex
	rendered int64
	voices   []*voice
	closed   bool
}

type voice struct {
	buf     *audio.Buffer
	start   int64
	pos     int
	stopped bool
	onEnded func()
	owner   *Output
}

func (v *voice) Stop() {
	v.owner.mu.Lock()
	v.stopped = true
	v.owner.mu.Unlock()
}

// NewOutput opens the default output device at sampleRate.
func NewOutput(sampleRate, channels int) (*Output, error) {
	if channels < 1 {
		channels = 1
	}
	if err := pa.Initialize(); err != nil {
		return nil, mapDeviceError(err)
	}
	o := &Output{sampleRate: sampleRate, channels: channels}
	stream, err := pa.OpenDefaultStream(0, channels, float64(sampleRate), outputFramesPerBuffer, o.render)
	if err != nil {
		pa.Terminate()
		return nil, mapDeviceError(err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		pa.Terminate()
		return nil, mapDeviceError(err)
	}
	o.stream = stream
	return o, nil
}

// render is the real-time callback; finished callbacks are dispatched on a
// separate goroutine so it never waits on callers.
func (o *Output) render(out []float32) {
	for i := range out {
		out[i] = 0
	}
	frames := int64(len(out) / o.channels)

	var ended []func()
	o.mu.Lock()
	now := o.rendered
	live := o.voices[:0]
	for _, v := range o.voices {
		if v.stopped {
			continue
		}
		total := v.buf.Frames()
		for f := int64(0); f < frames && v.pos < total; f++ {
			if now+f < v.start {
				continue
			}
			for ch := 0; ch < o.channels; ch++ {
				src := v.buf.Data[ch%len(v.buf.Data)]
				out[int(f)*o.channels+ch] += src[v.pos]
			}
			v.pos++
		}
		if v.pos >= total {
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
			continue
		}
		live = append(live, v)
	}
	o.voices = live
	o.rendered += frames
	o.mu.Unlock()

	for i := range out {
		if out[i] > 1 {
			out[i] = 1
		} else if out[i] < -1 {
			out[i] = -1
		}
	}
	if len(ended) > 0 {
		go func() {
			for _, fn := range ended {
				fn()
			}
		}()
	}
}

// CurrentTime returns the output clock.
func (o *Output) CurrentTime() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return audio.FramesToDuration(o.rendered, o.sampleRate)
}

// Play schedules buf at the absolute output time at.
func (o *Output) Play(buf *audio.Buffer, at time.Duration, onEnded func()) (audio.Source, error) {
	if buf == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", audio.ErrDecode)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, audio.ErrContextClosed
	}
	v := &voice{
		buf:     buf,
		start:   int64(at) * int64(o.sampleRate) / int64(time.Second),
		onEnded: onEnded,
		owner:   o,
	}
	o.voices = append(o.voices, v)
	return v, nil
}

// Close stops the device. Further Play calls fail with ErrContextClosed.
func (o *Output) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.voices = nil
	o.mu.Unlock()

	err := o.stream.Stop()
	if closeErr := o.stream.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	pa.Terminate()
	return err
}
