// Package speech narrates single strings of text through the one-shot
// synthesis endpoint, one utterance at a time.
package speech

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/room4-2/gensyn-guide/audio"
	"github.com/room4-2/gensyn-guide/metrics"
)

var (
	ErrClosed    = errors.New("speech requester closed")
	ErrMissingID = errors.New("speech id required")
)

// Synthesizer turns text into one 24 kHz mono PCM chunk.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio.Chunk, error)
}

// Options configures a Requester.
type Options struct {
	Synthesizer Synthesizer
	// Output is owned by the requester from here on and closed by Close.
	Output audio.OutputContext
	// Pronunciations are literal rewrites applied before synthesis.
	Pronunciations map[string]string
	Metrics        *metrics.Metrics
}

// Requester plays at most one narrated utterance at a time, identified by a
// caller-chosen id such as "card-A".
type Requester struct {
	synth   Synthesizer
	output  audio.OutputContext
	rewrite *strings.Replacer
	metrics *metrics.Metrics

	mu         sync.Mutex
	speakingID string
	source     audio.Source
	cancel     context.CancelFunc
	// gen changes whenever the current utterance is replaced or stopped, so
	// late synthesis responses and ended callbacks can tell they are stale.
	gen      uint64
	onChange func(id string)
	closed   bool
}

// New creates a Requester.
func New(opts Options) *Requester {
	return &Requester{
		synth:   opts.Synthesizer,
		output:  opts.Output,
		rewrite: newRewriter(opts.Pronunciations),
		metrics: opts.Metrics,
	}
}

func newRewriter(pairs map[string]string) *strings.Replacer {
	from := make([]string, 0, len(pairs))
	for k := range pairs {
		from = append(from, k)
	}
	// Longest first so overlapping keys resolve the same way every run.
	sort.Slice(from, func(i, j int) bool {
		if len(from[i]) != len(from[j]) {
			return len(from[i]) > len(from[j])
		}
		return from[i] < from[j]
	})
	args := make([]string, 0, 2*len(from))
	for _, k := range from {
		args = append(args, k, pairs[k])
	}
	return strings.NewReplacer(args...)
}

// OnChange registers fn to be told the speaking id after every change; an
// empty id means nothing is playing. fn runs with the requester locked and
// must not call back into it.
func (r *Requester) OnChange(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// SpeakingID returns the id of the utterance in progress, if any.
func (r *Requester) SpeakingID() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speakingID, r.speakingID != ""
}

// Speak narrates text under id. Calling it again with the id that is already
// speaking stops it instead. Any other utterance is stopped first. Speak
// returns once playback has started or the attempt failed; failures clear the
// speaking id and are returned for logging only.
func (r *Requester) Speak(ctx context.Context, text, id string) error {
	if id == "" {
		return ErrMissingID
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.speakingID == id {
		r.stopLocked()
		r.setSpeakingLocked("")
		r.mu.Unlock()
		log.Printf("⏹️ [%s] Narration stopped", id)
		return nil
	}
	r.stopLocked()
	gen := r.gen
	reqCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.setSpeakingLocked(id)
	r.mu.Unlock()
	defer cancel()

	start := time.Now()
	buf, err := r.synthesize(reqCtx, text)
	r.metrics.ObserveSynthesis(time.Since(start).Seconds(), err != nil)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		// Toggled off or replaced while the request was in flight.
		return nil
	}
	r.cancel = nil
	if err != nil {
		log.Printf("❌ [%s] TTS error: %v", id, err)
		r.setSpeakingLocked("")
		return err
	}

	src, err := r.output.Play(buf, r.output.CurrentTime(), func() { r.ended(gen) })
	if err != nil {
		log.Printf("❌ [%s] Playback error: %v", id, err)
		r.setSpeakingLocked("")
		return err
	}
	r.source = src
	log.Printf("🔊 [%s] Narrating %s", id, buf.Duration().Round(time.Millisecond))
	return nil
}

func (r *Requester) synthesize(ctx context.Context, text string) (*audio.Buffer, error) {
	chunk, err := r.synth.Synthesize(ctx, r.rewrite.Replace(text))
	if err != nil {
		return nil, err
	}
	return audio.DecodeChunkToBuffer(chunk, audio.OutputSampleRate, 1)
}

func (r *Requester) ended(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return
	}
	r.source = nil
	r.setSpeakingLocked("")
}

// stopLocked halts playback and abandons any in-flight request.
func (r *Requester) stopLocked() {
	r.gen++
	if r.source != nil {
		r.source.Stop()
		r.source = nil
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Requester) setSpeakingLocked(id string) {
	if r.speakingID == id {
		return
	}
	r.speakingID = id
	if r.onChange != nil {
		r.onChange(id)
	}
}

// Stop ends whatever is playing.
func (r *Requester) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	r.setSpeakingLocked("")
}

// Close stops playback and releases the output context. It is safe to call
// more than once.
func (r *Requester) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.stopLocked()
	r.setSpeakingLocked("")
	r.mu.Unlock()

	if r.output == nil {
		return nil
	}
	return r.output.Close()
}
