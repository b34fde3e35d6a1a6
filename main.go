package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/room4-2/gensyn-guide/audio"
	"github.com/room4-2/gensyn-guide/audio/portaudio"
	"github.com/room4-2/gensyn-guide/config"
	"github.com/room4-2/gensyn-guide/gemini"
	"github.com/room4-2/gensyn-guide/metrics"
	"github.com/room4-2/gensyn-guide/server"
	"github.com/room4-2/gensyn-guide/session"
	"github.com/room4-2/gensyn-guide/speech"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proxy, err := gemini.NewProxy(ctx, cfg.GeminiAPIKey,
		gemini.WithLiveModel(cfg.LiveModel),
		gemini.WithTTSModel(cfg.TTSModel),
		gemini.WithVoices(cfg.LiveVoice, cfg.TTSVoice),
	)
	if err != nil {
		log.Fatalf("Failed to create Gemini proxy: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	// The narration output stays open for the daemon's lifetime.
	narrationOut, err := portaudio.NewOutput(audio.OutputSampleRate, 1)
	if err != nil {
		log.Fatalf("Failed to open narration output: %v", err)
	}
	speaker := speech.New(speech.Options{
		Synthesizer:    proxy,
		Output:         narrationOut,
		Pronunciations: cfg.Pronunciations,
		Metrics:        m,
	})
	defer speaker.Close()

	// Create session manager
	sessionManager := session.NewManager(cfg, session.Deps{
		Dialer: session.GeminiDialer(proxy),
		Input:  portaudio.Input{},
		NewOutput: func() (audio.OutputContext, error) {
			return portaudio.NewOutput(audio.OutputSampleRate, 1)
		},
		Metrics: m,
		Store:   session.NewStore(session.ConnectRedis(cfg.RedisURL, cfg.RedisPassword), cfg.SessionTimeout),
	})

	// Start cleanup routine
	go sessionManager.StartCleanupRoutine(ctx)

	srv := server.NewServerWebsocket(cfg, sessionManager, speaker, reg)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("\nReceived shutdown signal...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped")
}
