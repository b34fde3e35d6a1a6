package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/room4-2/gensyn-guide/audio"
	"github.com/room4-2/gensyn-guide/audio/mock"
	"github.com/room4-2/gensyn-guide/gemini"

	"google.golang.org/genai"
)

type fakeConn struct {
	msgs    chan gemini.Message
	endOnce sync.Once

	mu     sync.Mutex
	err    error
	sent   []audio.Chunk
	tools  [][]*genai.FunctionResponse
	closed int
}

func newFakeConn() *fakeConn {
	return &fakeConn{msgs: make(chan gemini.Message, 16)}
}

func (f *fakeConn) Messages() <-chan gemini.Message { return f.msgs }

func (f *fakeConn) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeConn) SendAudioBase64(chunk audio.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, chunk)
	return nil
}

func (f *fakeConn) SendToolResponse(r []*genai.FunctionResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools = append(f.tools, r)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	f.end(nil)
	return nil
}

// end finishes the message stream, as the remote side or a transport
// failure would.
func (f *fakeConn) end(err error) {
	f.endOnce.Do(func() {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		close(f.msgs)
	})
}

func (f *fakeConn) sentChunks() []audio.Chunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]audio.Chunk(nil), f.sent...)
}

func (f *fakeConn) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type harness struct {
	ctrl   *Controller
	input  *mock.Input
	output *mock.Output
	conn   *fakeConn
}

const testFrameSize = 4

func newHarness(t *testing.T, dialer Dialer) *harness {
	t.Helper()
	h := &harness{
		input:  &mock.Input{},
		output: mock.NewOutput(),
		conn:   newFakeConn(),
	}
	if dialer == nil {
		dialer = DialerFunc(func(context.Context, gemini.LiveConfig) (Conn, error) {
			return h.conn, nil
		})
	}
	h.ctrl = NewController(Options{
		ID:        "test-session-1234",
		Dialer:    dialer,
		Input:     h.input,
		NewOutput: func() (audio.OutputContext, error) { return h.output, nil },
		FrameSize: testFrameSize,
	})
	t.Cleanup(func() { h.ctrl.Close() })
	return h
}

func (h *harness) open(t *testing.T) {
	t.Helper()
	if err := h.ctrl.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	waitFor(t, "listening", func() bool { return h.ctrl.Status() == StatusListening })
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func chunkOf(t *testing.T, d time.Duration) audio.Chunk {
	t.Helper()
	n := int(d * audio.OutputSampleRate / time.Second)
	return audio.EncodeFrame(make([]float32, n))
}

func TestControllerSendsCapturedFramesInOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.open(t)

	frames := [][]float32{{0.1, 0.2, 0.3, 0.4}, {-0.1, -0.2, -0.3, -0.4}, {1, -1, 0, 0.5}}
	stream := h.input.Last()
	for _, f := range frames {
		stream.Push(f)
	}
	waitFor(t, "frames sent", func() bool { return len(h.conn.sentChunks()) == len(frames) })

	for i, got := range h.conn.sentChunks() {
		if want := audio.EncodeFrame(frames[i]); got != want {
			t.Errorf("chunk %d = %q, want %q", i, got, want)
		}
	}
}

func TestControllerTurnComplete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msgs []gemini.Message
		want []TranscriptItem
	}{
		{
			name: "model only",
			msgs: []gemini.Message{{OutputText: "Gensyn is "}, {OutputText: "a protocol. "}, {TurnComplete: true}},
			want: []TranscriptItem{{Speaker: SpeakerModel, Text: "Gensyn is a protocol."}},
		},
		{
			name: "user before model",
			msgs: []gemini.Message{{InputText: " what is"}, {OutputText: "It is"}, {InputText: " gensyn "}, {TurnComplete: true}},
			want: []TranscriptItem{{Speaker: SpeakerUser, Text: "what is gensyn"}, {Speaker: SpeakerModel, Text: "It is"}},
		},
		{
			name: "whitespace only",
			msgs: []gemini.Message{{InputText: "  "}, {TurnComplete: true}},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, nil)
			h.open(t)
			updates, cancel := h.ctrl.Subscribe(16)
			defer cancel()

			for _, m := range tt.msgs {
				h.conn.msgs <- m
			}

			var flushed *Update
			for flushed == nil {
				select {
				case u := <-updates:
					if u.Status == StatusListening {
						flushed = &u
					}
				case <-time.After(2 * time.Second):
					t.Fatal("no turn-complete update")
				}
			}

			if len(flushed.Items) != len(tt.want) {
				t.Fatalf("items = %+v, want %+v", flushed.Items, tt.want)
			}
			for i := range tt.want {
				if flushed.Items[i] != tt.want[i] {
					t.Errorf("item %d = %+v, want %+v", i, flushed.Items[i], tt.want[i])
				}
			}
			if got := h.ctrl.Transcript(); len(got) != len(tt.want) {
				t.Errorf("transcript = %+v", got)
			}
			if h.ctrl.Status() != StatusListening {
				t.Errorf("status = %s", h.ctrl.Status())
			}
		})
	}
}

func TestControllerModelTextSetsSpeaking(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.open(t)

	h.conn.msgs <- gemini.Message{InputText: "hello"}
	h.conn.msgs <- gemini.Message{OutputText: "Hi"}
	waitFor(t, "speaking", func() bool { return h.ctrl.Status() == StatusSpeaking })
}

func TestControllerSchedulesAudioAndInterrupts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.open(t)

	h.conn.msgs <- gemini.Message{Audio: []audio.Chunk{chunkOf(t, 100*time.Millisecond), "not base64!"}}
	h.conn.msgs <- gemini.Message{Audio: []audio.Chunk{chunkOf(t, 50*time.Millisecond)}}
	waitFor(t, "two playbacks", func() bool { return len(h.output.Playbacks()) == 2 })

	pbs := h.output.Playbacks()
	if pbs[0].Start != 0 || pbs[1].Start != 100*time.Millisecond {
		t.Errorf("starts = %v, %v", pbs[0].Start, pbs[1].Start)
	}

	h.conn.msgs <- gemini.Message{Interrupted: true}
	waitFor(t, "playback stopped", func() bool {
		for _, p := range h.output.Playbacks() {
			if !p.Stopped {
				return false
			}
		}
		return true
	})

	h.output.Advance(20 * time.Millisecond)
	h.conn.msgs <- gemini.Message{Audio: []audio.Chunk{chunkOf(t, 10*time.Millisecond)}}
	waitFor(t, "third playback", func() bool { return len(h.output.Playbacks()) == 3 })
	if got := h.output.Playbacks()[2].Start; got != 20*time.Millisecond {
		t.Errorf("post-interrupt start = %v, want 20ms", got)
	}
}

func TestControllerQueuesSendsWhileConnecting(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var h *harness
	h = newHarness(t, DialerFunc(func(ctx context.Context, _ gemini.LiveConfig) (Conn, error) {
		select {
		case <-release:
			return h.conn, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))

	if err := h.ctrl.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.ctrl.Status() != StatusConnecting {
		t.Fatalf("status = %s", h.ctrl.Status())
	}
	if _, err := h.ctrl.Conn(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Conn err = %v, want ErrNotOpen", err)
	}

	early := []audio.Chunk{audio.EncodeFrame([]float32{0.25}), audio.EncodeFrame([]float32{0.5})}
	for _, c := range early {
		if err := h.ctrl.SendAudio(c); err != nil {
			t.Fatalf("queue: %v", err)
		}
	}
	close(release)
	waitFor(t, "listening", func() bool { return h.ctrl.Status() == StatusListening })

	h.input.Last().Push([]float32{0.75, 0, 0, 0})
	waitFor(t, "live frame", func() bool { return len(h.conn.sentChunks()) == 3 })

	sent := h.conn.sentChunks()
	if sent[0] != early[0] || sent[1] != early[1] {
		t.Errorf("queued chunks sent out of order: %v", sent[:2])
	}
}

func TestControllerTransportError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.open(t)

	h.conn.end(errors.New("socket reset"))
	waitFor(t, "error", func() bool { return h.ctrl.Status() == StatusError })

	if h.input.Last().Closed() != 1 {
		t.Error("microphone not released after transport error")
	}
	if h.output.CloseCount() != 1 {
		t.Error("output context not closed after transport error")
	}
	if err := h.ctrl.SendAudio(audio.EncodeFrame([]float32{0})); !errors.Is(err, ErrNotOpen) {
		t.Errorf("send after error = %v", err)
	}
}

func TestControllerDialFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DialerFunc(func(context.Context, gemini.LiveConfig) (Conn, error) {
		return nil, gemini.ErrConnection
	}))
	if err := h.ctrl.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "error", func() bool { return h.ctrl.Status() == StatusError })
	if h.output.CloseCount() != 1 {
		t.Errorf("output closed %d times", h.output.CloseCount())
	}
}

func TestControllerPermissionDenied(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.input.OpenErr = audio.ErrPermission

	if err := h.ctrl.Open(context.Background()); !errors.Is(err, audio.ErrPermission) {
		t.Fatalf("open err = %v, want ErrPermission", err)
	}
	if h.ctrl.Status() != StatusError {
		t.Errorf("status = %s", h.ctrl.Status())
	}
	if err := h.ctrl.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.Close(); err != nil {
		t.Fatal(err)
	}
	if h.output.CloseCount() != 1 {
		t.Errorf("output closed %d times", h.output.CloseCount())
	}
}

func TestControllerCloseTwice(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.open(t)
	updates, _ := h.ctrl.Subscribe(8)

	if err := h.ctrl.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-h.ctrl.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed")
	}
	if h.conn.closeCount() != 1 {
		t.Errorf("conn closed %d times", h.conn.closeCount())
	}
	if h.output.CloseCount() != 1 {
		t.Errorf("output closed %d times", h.output.CloseCount())
	}
	if h.input.Last().Closed() != 1 {
		t.Errorf("stream closed %d times", h.input.Last().Closed())
	}
	if h.ctrl.Status() != StatusClosed {
		t.Errorf("status = %s", h.ctrl.Status())
	}

	var last Update
	for u := range updates {
		last = u
	}
	if last.Status != StatusClosed {
		t.Errorf("last update = %+v", last)
	}
}

func TestControllerCloseBeforeOpen(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	if err := h.ctrl.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h.ctrl.Open(context.Background()); err == nil {
		t.Error("open after close should fail")
	}
	if h.input.Opened() != 0 || h.output.CloseCount() != 0 {
		t.Error("closed controller touched devices")
	}
}

func TestControllerAnswersToolCalls(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.ctrl.opts.ToolHandler = func(fc *genai.FunctionCall) map[string]any {
		if fc.Name == "known" {
			return map[string]any{"output": "ok"}
		}
		return nil
	}
	h.open(t)

	h.conn.msgs <- gemini.Message{ToolCalls: []*genai.FunctionCall{{ID: "1", Name: "known"}, {ID: "2", Name: "other"}}}
	waitFor(t, "tool response", func() bool {
		h.conn.mu.Lock()
		defer h.conn.mu.Unlock()
		return len(h.conn.tools) == 1
	})

	h.conn.mu.Lock()
	defer h.conn.mu.Unlock()
	resp := h.conn.tools[0]
	if len(resp) != 2 || resp[0].Response["output"] != "ok" || resp[1].Response["error"] == nil {
		t.Errorf("responses = %+v", resp)
	}
}

// exclusiveConn fails a test that lets two writes reach the stream at once,
// which a real websocket does not allow.
type exclusiveConn struct {
	*fakeConn
	inFlight atomic.Int32
	overlaps atomic.Int32
	writes   atomic.Int32
}

func (e *exclusiveConn) write() {
	if e.inFlight.Add(1) > 1 {
		e.overlaps.Add(1)
	}
	time.Sleep(50 * time.Microsecond)
	e.inFlight.Add(-1)
	e.writes.Add(1)
}

func (e *exclusiveConn) SendAudioBase64(audio.Chunk) error {
	e.write()
	return nil
}

func (e *exclusiveConn) SendToolResponse([]*genai.FunctionResponse) error {
	e.write()
	return nil
}

func TestControllerSerializesStreamWrites(t *testing.T) {
	t.Parallel()

	conn := &exclusiveConn{fakeConn: newFakeConn()}
	h := newHarness(t, DialerFunc(func(context.Context, gemini.LiveConfig) (Conn, error) {
		return conn, nil
	}))
	h.open(t)

	const n = 50
	stream := h.input.Last()
	go func() {
		for i := 0; i < n; i++ {
			stream.Push([]float32{0.1, 0.2, 0.3, 0.4})
		}
	}()
	for i := 0; i < n; i++ {
		conn.msgs <- gemini.Message{ToolCalls: []*genai.FunctionCall{{ID: "call", Name: "GetNodeSetupGuide"}}}
	}
	waitFor(t, "all writes", func() bool { return conn.writes.Load() == 2*n })

	if got := conn.overlaps.Load(); got != 0 {
		t.Errorf("%d writes overlapped another write", got)
	}
}
