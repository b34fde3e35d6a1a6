package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all daemon configuration
type Config struct {
	Port            int
	RedisURL        string // empty disables the redis mirror
	RedisPassword   string
	MaxSessions     int           // live sessions share one microphone, so this defaults to 1
	SessionTimeout  time.Duration // expiry of mirrored session keys
	GeminiAPIKey    string
	AllowedOrigins  []string
	KeepAlivePeriod time.Duration
	MaxBufferSize   int // Maximum bytes of audio queued before a live session opens

	LiveModel string
	LiveVoice string
	TTSModel  string
	TTSVoice  string

	CaptureFrameSize   int
	LiveConnectTimeout time.Duration // zero waits for the service indefinitely

	// Pronunciations rewrites words before one-shot synthesis
	Pronunciations map[string]string
}

// DefaultPronunciations keeps the project name from being read as "gen-sin"
func DefaultPronunciations() map[string]string {
	return map[string]string{"Gensyn": "Jensyn"}
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, which is os.Getenv outside tests
func FromEnv(getenv func(string) string) (*Config, error) {
	config := &Config{
		Port:             8080,
		MaxSessions:      1,
		SessionTimeout:   30 * time.Minute,
		AllowedOrigins:   []string{"*"},
		KeepAlivePeriod:  30 * time.Second,
		MaxBufferSize:    1024 * 1024, // 1MB default
		CaptureFrameSize: 4096,
		Pronunciations:   DefaultPronunciations(),
	}

	// Required: GEMINI_API_KEY
	config.GeminiAPIKey = getenv("GEMINI_API_KEY")
	if config.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"PORT", &config.Port},
		{"MAX_SESSIONS", &config.MaxSessions},
		{"MAX_BUFFER_SIZE", &config.MaxBufferSize},
		{"CAPTURE_FRAME_SIZE", &config.CaptureFrameSize},
	}
	for _, v := range ints {
		raw := getenv(v.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", v.name, err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", v.name)
		}
		*v.dst = n
	}

	durations := []struct {
		name string
		unit time.Duration
		dst  *time.Duration
	}{
		{"SESSION_TIMEOUT", time.Minute, &config.SessionTimeout},
		{"KEEPALIVE_PERIOD", time.Second, &config.KeepAlivePeriod},
		{"LIVE_CONNECT_TIMEOUT", time.Second, &config.LiveConnectTimeout},
	}
	for _, v := range durations {
		raw := getenv(v.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", v.name, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", v.name)
		}
		*v.dst = time.Duration(n) * v.unit
	}

	config.RedisURL = getenv("REDIS_URL")
	config.RedisPassword = getenv("REDIS_PASSWORD")
	config.LiveModel = getenv("LIVE_MODEL")
	config.LiveVoice = getenv("LIVE_VOICE")
	config.TTSModel = getenv("TTS_MODEL")
	config.TTSVoice = getenv("TTS_VOICE")

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = splitList(origins)
	}

	// Optional: PRONUNCIATIONS ("from=to,from=to")
	if raw := getenv("PRONUNCIATIONS"); raw != "" {
		p, err := parsePronunciations(raw)
		if err != nil {
			return nil, err
		}
		config.Pronunciations = p
	}

	return config, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parsePronunciations(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range splitList(raw) {
		from, to, ok := strings.Cut(pair, "=")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("invalid PRONUNCIATIONS entry %q: want from=to", pair)
		}
		out[from] = to
	}
	return out, nil
}
