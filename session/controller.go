package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/room4-2/gensyn-guide/audio"
	"github.com/room4-2/gensyn-guide/gemini"
	"github.com/room4-2/gensyn-guide/metrics"

	"google.golang.org/genai"
)

// ErrNotOpen is returned by Conn while the live stream is not (or no longer) open.
var ErrNotOpen = errors.New("live session not open")

// Status is the lifecycle state of a live conversation.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusListening  Status = "listening"
	StatusSpeaking   Status = "speaking"
	StatusError      Status = "error"
	StatusClosed     Status = "closed"
)

// StatusMessage returns the line shown to the user for s.
func StatusMessage(s Status) string {
	switch s {
	case StatusConnecting:
		return "Connecting to the guide..."
	case StatusListening:
		return "Listening... Ask me anything about Gensyn!"
	case StatusSpeaking:
		return "Thinking..."
	case StatusError:
		return "An error occurred. Please try again."
	case StatusClosed:
		return "Conversation ended."
	default:
		return "Start a conversation with the Gensyn guide."
	}
}

// Speaker identifies who said a transcript item.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerModel Speaker = "model"
)

// TranscriptItem is one finalized utterance.
type TranscriptItem struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Update is pushed to subscribers on every status change and transcript flush.
type Update struct {
	Status  Status
	Message string
	Items   []TranscriptItem
}

// Conn is an open live stream as the controller uses it.
type Conn interface {
	Messages() <-chan gemini.Message
	Err() error
	SendAudioBase64(audio.Chunk) error
	SendToolResponse([]*genai.FunctionResponse) error
	Close() error
}

// Dialer opens live streams.
type Dialer interface {
	Dial(ctx context.Context, cfg gemini.LiveConfig) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, cfg gemini.LiveConfig) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, cfg gemini.LiveConfig) (Conn, error) {
	return f(ctx, cfg)
}

// GeminiDialer dials through proxy.
func GeminiDialer(proxy *gemini.Proxy) Dialer {
	return DialerFunc(func(ctx context.Context, cfg gemini.LiveConfig) (Conn, error) {
		stream, err := proxy.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return stream, nil
	})
}

// ToolHandler answers one function call from the model.
type ToolHandler func(fc *genai.FunctionCall) map[string]any

// Options configures a Controller.
type Options struct {
	ID        string
	Dialer    Dialer
	Input     audio.InputDevice
	NewOutput func() (audio.OutputContext, error)

	SystemPrompt string
	Tools        []*genai.Tool
	ToolHandler  ToolHandler

	FrameSize      int
	MaxQueueBytes  int
	ConnectTimeout time.Duration

	Metrics *metrics.Metrics
}

const defaultMaxQueueBytes = 1024 * 1024

// Controller drives one live conversation: it owns the microphone capture,
// the output context with its playback scheduler, and the network stream,
// and applies inbound messages strictly in arrival order.
type Controller struct {
	ID string

	opts    Options
	capture *audio.Capture
	pending *ChunkQueue
	metrics *metrics.Metrics

	// sendMu serializes every write to the stream and keeps outbound chunks
	// in capture order across the queue flush.
	sendMu sync.Mutex

	mu         sync.Mutex
	status     Status
	output     audio.OutputContext
	scheduler  *audio.Scheduler
	conn       Conn
	cancel     context.CancelFunc
	userText   strings.Builder
	modelText  strings.Builder
	transcript []TranscriptItem
	subs       map[int]chan Update
	nextSub    int
	torn       bool
	closed     bool
	runDone    chan struct{}

	done chan struct{}
}

// NewController creates an idle controller.
func NewController(opts Options) *Controller {
	maxQueue := opts.MaxQueueBytes
	if maxQueue <= 0 {
		maxQueue = defaultMaxQueueBytes
	}
	return &Controller{
		ID:      opts.ID,
		opts:    opts,
		capture: audio.NewCapture(opts.Input, audio.InputSampleRate, opts.FrameSize),
		pending: NewChunkQueue(maxQueue),
		metrics: opts.Metrics,
		status:  StatusIdle,
		subs:    make(map[int]chan Update),
		done:    make(chan struct{}),
	}
}

func (c *Controller) shortID() string {
	if len(c.ID) > 8 {
		return c.ID[:8]
	}
	return c.ID
}

// Open acquires the output context and microphone, then dials in the
// background. The stream's lifetime is bounded by ctx and by Close. Errors
// before the dial move the controller to StatusError and are also returned.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusIdle {
		st := c.status
		c.mu.Unlock()
		return fmt.Errorf("cannot open session in state %s", st)
	}
	c.setStatusLocked(StatusConnecting)
	c.mu.Unlock()

	log.Printf("🔗 [%s] Opening live session", c.shortID())

	if c.opts.NewOutput == nil {
		err := fmt.Errorf("open output: %w", audio.ErrDeviceUnavailable)
		c.fail(err)
		return err
	}
	output, err := c.opts.NewOutput()
	if err != nil {
		err = fmt.Errorf("open output: %w", err)
		c.fail(err)
		return err
	}
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		closeOutput(c.shortID(), output)
		return ErrNotOpen
	}
	c.output = output
	c.scheduler = audio.NewScheduler(output)
	c.mu.Unlock()

	if err := c.capture.Open(); err != nil {
		c.fail(err)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		cancel()
		c.capture.Stop()
		return ErrNotOpen
	}
	c.cancel = cancel
	c.runDone = make(chan struct{})
	runDone := c.runDone
	c.mu.Unlock()

	c.metrics.SessionOpened()
	go c.run(runCtx, runDone)
	return nil
}

func (c *Controller) run(ctx context.Context, runDone chan struct{}) {
	defer close(runDone)

	dialCtx := ctx
	if c.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.opts.ConnectTimeout)
		defer cancel()
	}
	if c.opts.Dialer == nil {
		c.fail(fmt.Errorf("%w: no dialer configured", gemini.ErrConnection))
		return
	}

	conn, err := c.opts.Dialer.Dial(dialCtx, gemini.LiveConfig{
		SystemPrompt: c.opts.SystemPrompt,
		Tools:        c.opts.Tools,
	})
	if err != nil {
		c.fail(err)
		return
	}
	if err := c.ready(conn); err != nil {
		if !errors.Is(err, ErrNotOpen) {
			c.fail(err)
		}
		return
	}

	for msg := range conn.Messages() {
		c.handle(conn, msg)
	}

	if err := conn.Err(); err != nil {
		c.fail(err)
		return
	}
	log.Printf("🔌 [%s] Live connection closed", c.shortID())
}

// ready installs conn, flushes sends queued while connecting and starts the
// microphone. ErrNotOpen means the controller was torn down meanwhile.
func (c *Controller) ready(conn Conn) error {
	c.sendMu.Lock()
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		c.sendMu.Unlock()
		conn.Close()
		return ErrNotOpen
	}
	c.conn = conn
	c.setStatusLocked(StatusListening)
	c.mu.Unlock()

	queued := c.pending.Flush()
	for _, chunk := range queued {
		if err := conn.SendAudioBase64(chunk); err != nil {
			log.Printf("⚠️ [%s] Failed to send queued audio: %v", c.shortID(), err)
			continue
		}
		c.metrics.FrameSent()
	}
	c.sendMu.Unlock()

	if len(queued) > 0 {
		log.Printf("📤 [%s] Flushed %d queued chunk(s)", c.shortID(), len(queued))
	}
	log.Printf("✅ [%s] Live session open, listening", c.shortID())

	// Holding mu orders Start before a concurrent teardown's Stop.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.torn {
		return ErrNotOpen
	}
	return c.capture.Start(c.onFrame)
}

func (c *Controller) onFrame(frame audio.Frame) {
	if err := c.SendAudio(audio.EncodeFrame(frame)); err != nil && !errors.Is(err, ErrNotOpen) {
		log.Printf("⚠️ [%s] Dropping microphone frame: %v", c.shortID(), err)
	}
}

// Conn returns the open stream, or ErrNotOpen.
func (c *Controller) Conn() (Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.torn {
		return nil, ErrNotOpen
	}
	return c.conn, nil
}

// SendAudio sends one encoded frame. While the controller is still connecting
// the chunk is queued and flushed in order once the stream opens; a full
// queue drops it with ErrQueueFull. After teardown it returns ErrNotOpen.
func (c *Controller) SendAudio(chunk audio.Chunk) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	conn, status, torn := c.conn, c.status, c.torn
	c.mu.Unlock()

	if torn {
		return ErrNotOpen
	}
	if conn == nil {
		if status != StatusIdle && status != StatusConnecting {
			return ErrNotOpen
		}
		if err := c.pending.Append(chunk); err != nil {
			c.metrics.FrameDropped()
			return err
		}
		c.metrics.FrameQueued()
		return nil
	}

	if err := conn.SendAudioBase64(chunk); err != nil {
		return err
	}
	c.metrics.FrameSent()
	return nil
}

func (c *Controller) handle(conn Conn, msg gemini.Message) {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	if msg.InputText != "" {
		c.userText.WriteString(msg.InputText)
	}
	if msg.OutputText != "" {
		c.modelText.WriteString(msg.OutputText)
		if c.status != StatusSpeaking {
			c.setStatusLocked(StatusSpeaking)
		}
	}
	if msg.TurnComplete {
		c.completeTurnLocked()
	}
	scheduler := c.scheduler
	c.mu.Unlock()

	for _, chunk := range msg.Audio {
		c.metrics.ChunkReceived()
		buf, err := audio.DecodeChunkToBuffer(chunk, audio.OutputSampleRate, 1)
		if err != nil {
			c.metrics.DecodeError()
			log.Printf("⚠️ [%s] Dropping undecodable audio: %v", c.shortID(), err)
			continue
		}
		if scheduler == nil {
			continue
		}
		if err := scheduler.Enqueue(buf); err != nil {
			log.Printf("⚠️ [%s] Failed to schedule audio: %v", c.shortID(), err)
		}
	}

	if msg.Interrupted && scheduler != nil {
		log.Printf("✋ [%s] Interrupted, stopping playback", c.shortID())
		c.metrics.Interruption()
		scheduler.InterruptAll()
	}

	if len(msg.ToolCalls) > 0 {
		c.answerTools(conn, msg.ToolCalls)
	}
}

// completeTurnLocked flushes both accumulation buffers, user first.
func (c *Controller) completeTurnLocked() {
	var items []TranscriptItem
	if text := strings.TrimSpace(c.userText.String()); text != "" {
		items = append(items, TranscriptItem{Speaker: SpeakerUser, Text: text})
	}
	if text := strings.TrimSpace(c.modelText.String()); text != "" {
		items = append(items, TranscriptItem{Speaker: SpeakerModel, Text: text})
	}
	c.userText.Reset()
	c.modelText.Reset()
	c.transcript = append(c.transcript, items...)
	c.metrics.TurnCompleted()

	c.status = StatusListening
	c.publishLocked(Update{Status: c.status, Message: StatusMessage(c.status), Items: items})
}

func (c *Controller) answerTools(conn Conn, calls []*genai.FunctionCall) {
	responses := make([]*genai.FunctionResponse, 0, len(calls))
	for _, fc := range calls {
		if fc == nil {
			continue
		}
		log.Printf("🔧 [%s] Function call: %s (id: %s)", c.shortID(), fc.Name, fc.ID)

		var response map[string]any
		if c.opts.ToolHandler != nil {
			response = c.opts.ToolHandler(fc)
		}
		if response == nil {
			response = map[string]any{"error": fmt.Sprintf("Unknown function: %s", fc.Name)}
			log.Printf("⚠️ [%s] Unknown function called: %s", c.shortID(), fc.Name)
		}

		responses = append(responses, &genai.FunctionResponse{
			ID:       fc.ID,
			Name:     fc.Name,
			Response: response,
		})
	}
	if len(responses) == 0 {
		return
	}
	c.sendMu.Lock()
	err := conn.SendToolResponse(responses)
	c.sendMu.Unlock()
	if err != nil {
		log.Printf("❌ [%s] Failed to send tool response: %v", c.shortID(), err)
	}
}

// fail moves the controller to StatusError and releases every resource.
// Subscribers stay attached so they can observe the error.
func (c *Controller) fail(err error) {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	log.Printf("❌ [%s] Live session error: %v", c.shortID(), err)
	c.metrics.SessionError()
	c.setStatusLocked(StatusError)
	c.mu.Unlock()

	c.teardown()
}

// teardown releases the network stream, microphone and output context
// exactly once. Parts that were never acquired are skipped.
func (c *Controller) teardown() {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	c.torn = true
	conn := c.conn
	cancel := c.cancel
	scheduler := c.scheduler
	output := c.output
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			log.Printf("⚠️ [%s] Closing live connection: %v", c.shortID(), err)
		}
	}
	c.capture.Stop()
	if scheduler != nil {
		scheduler.InterruptAll()
	}
	if output != nil {
		closeOutput(c.shortID(), output)
	}
	c.pending.Clear()
}

func closeOutput(id string, output audio.OutputContext) {
	if err := output.Close(); err != nil && !errors.Is(err, audio.ErrContextClosed) {
		log.Printf("⚠️ [%s] Closing output context: %v", id, err)
	}
}

// Close tears the session down from any state and ends all subscriptions.
// It is safe to call more than once.
func (c *Controller) Close() error {
	c.teardown()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.setStatusLocked(StatusClosed)
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	runDone := c.runDone

	go func() {
		if runDone != nil {
			<-runDone
		}
		close(c.done)
	}()
	log.Printf("👋 [%s] Live session closed", c.shortID())
	return nil
}

// Done is closed once the controller is closed and its background work has
// ended.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Status returns the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Transcript returns a copy of the finalized transcript.
func (c *Controller) Transcript() []TranscriptItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TranscriptItem, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Subscribe returns a channel of updates and a function that ends the
// subscription. A subscriber that falls more than buffer updates behind
// misses updates rather than stalling the session. The channel is closed by
// cancel or by Close.
func (c *Controller) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Update, buffer)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				close(sub)
				delete(c.subs, id)
			}
		})
	}
}

func (c *Controller) setStatusLocked(s Status) {
	c.status = s
	c.publishLocked(Update{Status: s, Message: StatusMessage(s)})
}

func (c *Controller) publishLocked(u Update) {
	for _, ch := range c.subs {
		select {
		case ch <- u:
		default:
		}
	}
}
