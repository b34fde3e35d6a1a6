package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"

	"github.com/room4-2/gensyn-guide/audio"
	"github.com/room4-2/gensyn-guide/audio/portaudio"
	"github.com/room4-2/gensyn-guide/config"
	"github.com/room4-2/gensyn-guide/gemini"
	"github.com/room4-2/gensyn-guide/speech"
)

func main() {
	// Flags
	id := flag.String("id", "cli", "Utterance id")
	text := flag.String("text", "", "Text to narrate")
	flag.Parse()

	if *text == "" {
		log.Fatal("-text is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proxy, err := gemini.NewProxy(ctx, cfg.GeminiAPIKey,
		gemini.WithTTSModel(cfg.TTSModel),
		gemini.WithVoices("", cfg.TTSVoice),
	)
	if err != nil {
		log.Fatalf("Failed to create Gemini proxy: %v", err)
	}

	out, err := portaudio.NewOutput(audio.OutputSampleRate, 1)
	if err != nil {
		log.Fatalf("Failed to open output: %v", err)
	}
	speaker := speech.New(speech.Options{
		Synthesizer:    proxy,
		Output:         out,
		Pronunciations: cfg.Pronunciations,
	})
	defer speaker.Close()

	finished := make(chan struct{})
	var once sync.Once
	speaker.OnChange(func(current string) {
		if current == "" {
			once.Do(func() { close(finished) })
		}
	})

	// Handle interrupt
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	log.Printf("📤 Requesting narration for %q", *id)
	if err := speaker.Speak(ctx, *text, *id); err != nil {
		log.Printf("❌ Narration failed: %v", err)
		return
	}

	select {
	case <-finished:
		log.Println("✅ Done")
	case <-interrupt:
		log.Println("\n👋 Interrupted")
	}
}
