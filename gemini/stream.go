package gemini

import (
	"encoding/base64"
	"fmt"
	"log"
	"sync"

	"github.com/room4-2/gensyn-guide/audio"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"
)

const messageBufferSize = 64

// Message is one inbound event from a Live session, reduced to what the
// guide acts on. Any combination of fields may be set.
type Message struct {
	InputText    string
	OutputText   string
	Audio        []audio.Chunk
	TurnComplete bool
	Interrupted  bool
	ToolCalls    []*genai.FunctionCall
}

// Empty reports whether the message carries nothing the guide handles.
func (m Message) Empty() bool {
	return m.InputText == "" && m.OutputText == "" && len(m.Audio) == 0 &&
		!m.TurnComplete && !m.Interrupted && len(m.ToolCalls) == 0
}

// liveSession is the subset of *genai.Session a stream drives.
type liveSession interface {
	Receive() (*genai.LiveServerMessage, error)
	SendRealtimeInput(genai.LiveRealtimeInput) error
	SendToolResponse(genai.LiveToolResponseInput) error
	Close() error
}

// LiveStream is an open Live session. Inbound messages arrive in order on
// Messages; the channel closes when the session ends, after which Err tells
// whether it ended cleanly.
type LiveStream struct {
	session  liveSession
	messages chan Message
	done     chan struct{}

	// writeMu keeps one writer on the underlying websocket at a time.
	writeMu sync.Mutex

	mu     sync.RWMutex
	closed bool
	err    error
}

func newLiveStream(session liveSession) *LiveStream {
	s := &LiveStream{
		session:  session,
		messages: make(chan Message, messageBufferSize),
		done:     make(chan struct{}),
	}
	go s.receiveLoop()
	return s
}

// Messages returns the inbound message channel.
func (s *LiveStream) Messages() <-chan Message {
	return s.messages
}

// Err returns why the session ended, or nil for a clean or local close.
func (s *LiveStream) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *LiveStream) receiveLoop() {
	defer close(s.messages)

	for {
		resp, err := s.session.Receive()
		if err != nil {
			s.mu.Lock()
			if !s.closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("❌ Gemini receive error: %v", err)
				s.err = fmt.Errorf("%w: %v", ErrConnection, err)
			}
			s.mu.Unlock()
			return
		}

		msg := toMessage(resp)
		if msg.Empty() {
			continue
		}
		select {
		case s.messages <- msg:
		case <-s.done:
			return
		}
	}
}

func toMessage(resp *genai.LiveServerMessage) Message {
	var msg Message
	if resp == nil {
		return msg
	}
	if resp.ToolCall != nil && len(resp.ToolCall.FunctionCalls) > 0 {
		log.Printf("📥 Received from Gemini: %d function call(s)", len(resp.ToolCall.FunctionCalls))
		msg.ToolCalls = resp.ToolCall.FunctionCalls
	}

	sc := resp.ServerContent
	if sc == nil {
		return msg
	}
	if sc.InputTranscription != nil {
		msg.InputText = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		msg.OutputText = sc.OutputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			// The SDK hands over raw bytes; the guide works in wire chunks.
			msg.Audio = append(msg.Audio, encodeBlob(part.InlineData.Data))
		}
	}
	msg.TurnComplete = sc.TurnComplete
	msg.Interrupted = sc.Interrupted
	return msg
}

func encodeBlob(data []byte) audio.Chunk {
	return audio.Chunk(base64.StdEncoding.EncodeToString(data))
}

func (s *LiveStream) open() (liveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("%w: stream is closed", ErrConnection)
	}
	return s.session, nil
}

// SendAudioBase64 forwards one base64 PCM chunk captured at 16 kHz.
func (s *LiveStream) SendAudioBase64(chunk audio.Chunk) error {
	session, err := s.open()
	if err != nil {
		return err
	}
	data, err := audio.DecodeChunk(chunk)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	err = session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			MIMEType: audio.InputMIMEType,
			Data:     data,
		},
	})
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: failed to send audio: %v", ErrConnection, err)
	}
	return nil
}

// SendToolResponse sends function call responses back to Gemini.
func (s *LiveStream) SendToolResponse(responses []*genai.FunctionResponse) error {
	session, err := s.open()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	err = session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: responses,
	})
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: failed to send tool response: %v", ErrConnection, err)
	}

	log.Printf("📤 Sent %d tool response(s) to Gemini", len(responses))
	return nil
}

// Close terminates the Gemini connection. Calling it again returns nil.
func (s *LiveStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	return s.session.Close()
}
