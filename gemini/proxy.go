package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/room4-2/gensyn-guide/audio"

	"google.golang.org/genai"
)

const (
	DefaultLiveModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultTTSModel  = "gemini-2.5-flash-preview-tts"
	// Available voices: Puck, Charon, Kore, Fenrir, Aoede, Leda, Orus, Zephyr
	DefaultLiveVoice = "Zephyr"
	DefaultTTSVoice  = "Kore"
)

var (
	// ErrConnection covers sessions that failed to open or dropped, and
	// failed synthesis requests.
	ErrConnection = errors.New("gemini connection error")
	// ErrSynthesisEmpty is returned when a synthesis response carries no audio.
	ErrSynthesisEmpty = errors.New("gemini synthesis returned no audio")
)

// Option configures a Proxy.
type Option func(*Proxy)

// WithLiveModel sets the model used for streaming conversations.
func WithLiveModel(model string) Option {
	return func(gp *Proxy) {
		if model != "" {
			gp.liveModel = model
		}
	}
}

// WithTTSModel sets the model used for one-shot synthesis.
func WithTTSModel(model string) Option {
	return func(gp *Proxy) {
		if model != "" {
			gp.ttsModel = model
		}
	}
}

// WithVoices sets the prebuilt voices for live and one-shot speech.
func WithVoices(live, tts string) Option {
	return func(gp *Proxy) {
		if live != "" {
			gp.liveVoice = live
		}
		if tts != "" {
			gp.ttsVoice = tts
		}
	}
}

// Proxy is the guide's single entry point to the Gemini API. The API key is
// attached to every request by the underlying client.
type Proxy struct {
	client *genai.Client

	liveModel string
	ttsModel  string
	liveVoice string
	ttsVoice  string
}

// NewProxy creates the GenAI client.
func NewProxy(ctx context.Context, apiKey string, opts ...Option) (*Proxy, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	gp := &Proxy{
		client:    client,
		liveModel: DefaultLiveModel,
		ttsModel:  DefaultTTSModel,
		liveVoice: DefaultLiveVoice,
		ttsVoice:  DefaultTTSVoice,
	}
	for _, o := range opts {
		o(gp)
	}
	return gp, nil
}

// LiveConfig is what a streaming conversation is opened with.
type LiveConfig struct {
	SystemPrompt string
	Tools        []*genai.Tool
}

func prebuiltVoice(name string) *genai.SpeechConfig {
	return &genai.SpeechConfig{
		VoiceConfig: &genai.VoiceConfig{
			PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: name},
		},
	}
}

// liveConnectConfig asks for audio replies with transcription in both
// directions.
func (gp *Proxy) liveConnectConfig(cfg LiveConfig) *genai.LiveConnectConfig {
	return &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig:       prebuiltVoice(gp.liveVoice),
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: cfg.SystemPrompt}},
		},
		Tools:                    cfg.Tools,
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
}

// Connect opens a Live session and starts its receive loop. The returned
// stream is ready to accept audio.
func (gp *Proxy) Connect(ctx context.Context, cfg LiveConfig) (*LiveStream, error) {
	session, err := gp.client.Live.Connect(ctx, gp.liveModel, gp.liveConnectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to Live API: %v", ErrConnection, err)
	}

	log.Printf("✅ Connected to Gemini Live via SDK (%s)", gp.liveModel)
	return newLiveStream(session), nil
}

// Synthesize requests one spoken rendition of text and returns its audio as
// a wire chunk (24 kHz mono PCM).
func (gp *Proxy) Synthesize(ctx context.Context, text string) (audio.Chunk, error) {
	resp, err := gp.client.Models.GenerateContent(ctx, gp.ttsModel, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig:       prebuiltVoice(gp.ttsVoice),
	})
	if err != nil {
		return "", fmt.Errorf("%w: generate speech: %v", ErrConnection, err)
	}
	return firstAudio(resp)
}

func firstAudio(resp *genai.GenerateContentResponse) (audio.Chunk, error) {
	if resp == nil {
		return "", ErrSynthesisEmpty
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return encodeBlob(part.InlineData.Data), nil
			}
		}
	}
	return "", ErrSynthesisEmpty
}
