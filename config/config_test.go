package config

import (
	"strings"
	"testing"
	"time"
)

func envOf(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := FromEnv(envOf(map[string]string{"GEMINI_API_KEY": "k"}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8080 || cfg.MaxSessions != 1 || cfg.CaptureFrameSize != 4096 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.LiveConnectTimeout != 0 {
		t.Errorf("connect timeout = %v, want none", cfg.LiveConnectTimeout)
	}
	if cfg.RedisURL != "" {
		t.Errorf("redis should be off by default, got %q", cfg.RedisURL)
	}
	if cfg.Pronunciations["Gensyn"] != "Jensyn" {
		t.Errorf("pronunciations = %v", cfg.Pronunciations)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := FromEnv(envOf(map[string]string{
		"GEMINI_API_KEY":       "k",
		"PORT":                 "9000",
		"SESSION_TIMEOUT":      "5",
		"LIVE_CONNECT_TIMEOUT": "15",
		"ALLOWED_ORIGINS":      "http://localhost:5173, https://abc.gensyn.ai",
		"PRONUNCIATIONS":       "Gensyn=Jensyn, RL=R L",
		"LIVE_VOICE":           "Puck",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9000 || cfg.SessionTimeout != 5*time.Minute || cfg.LiveConnectTimeout != 15*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://abc.gensyn.ai" {
		t.Errorf("origins = %v", cfg.AllowedOrigins)
	}
	if cfg.Pronunciations["RL"] != "R L" || cfg.LiveVoice != "Puck" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestFromEnvErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing key", map[string]string{}, "GEMINI_API_KEY"},
		{"bad port", map[string]string{"GEMINI_API_KEY": "k", "PORT": "eighty"}, "PORT"},
		{"zero sessions", map[string]string{"GEMINI_API_KEY": "k", "MAX_SESSIONS": "0"}, "MAX_SESSIONS"},
		{"negative timeout", map[string]string{"GEMINI_API_KEY": "k", "LIVE_CONNECT_TIMEOUT": "-1"}, "LIVE_CONNECT_TIMEOUT"},
		{"bad pronunciation", map[string]string{"GEMINI_API_KEY": "k", "PRONUNCIATIONS": "Gensyn"}, "PRONUNCIATIONS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := FromEnv(envOf(tt.env))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}
