package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/room4-2/gensyn-guide/audio"
	"github.com/room4-2/gensyn-guide/audio/portaudio"
	"github.com/room4-2/gensyn-guide/config"
	"github.com/room4-2/gensyn-guide/functions"
	"github.com/room4-2/gensyn-guide/gemini"
	"github.com/room4-2/gensyn-guide/session"

	"github.com/google/uuid"
)

func main() {
	// Flags
	quiet := flag.Bool("quiet", false, "Only print transcript lines")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proxy, err := gemini.NewProxy(ctx, cfg.GeminiAPIKey,
		gemini.WithLiveModel(cfg.LiveModel),
		gemini.WithVoices(cfg.LiveVoice, ""),
	)
	if err != nil {
		log.Fatalf("Failed to create Gemini proxy: %v", err)
	}

	ctrl := session.NewController(session.Options{
		ID:     uuid.New().String(),
		Dialer: session.GeminiDialer(proxy),
		Input:  portaudio.Input{},
		NewOutput: func() (audio.OutputContext, error) {
			return portaudio.NewOutput(audio.OutputSampleRate, 1)
		},
		SystemPrompt:   session.DefaultSystemPrompt,
		Tools:          functions.Tools(),
		ToolHandler:    functions.Handle,
		FrameSize:      cfg.CaptureFrameSize,
		MaxQueueBytes:  cfg.MaxBufferSize,
		ConnectTimeout: cfg.LiveConnectTimeout,
	})
	updates, _ := ctrl.Subscribe(64)

	// Handle interrupt
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	if err := ctrl.Open(ctx); err != nil {
		log.Printf("❌ %s (%v)", session.StatusMessage(session.StatusError), err)
		ctrl.Close()
		os.Exit(1)
	}

	for {
		select {
		case <-interrupt:
			log.Println("\n👋 Interrupted, closing...")
			ctrl.Close()
			<-ctrl.Done()
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if !*quiet {
				log.Printf("📊 %s", u.Message)
			}
			for _, item := range u.Items {
				fmt.Printf("%s: %s\n", item.Speaker, item.Text)
			}
			if u.Status == session.StatusError {
				ctrl.Close()
				os.Exit(1)
			}
		}
	}
}
