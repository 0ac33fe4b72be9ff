// Command sasa-live runs a live voice session against the local microphone
// and speakers, printing the running transcript.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sasa-studio/studio/internal/audio"
	"github.com/sasa-studio/studio/internal/config"
	"github.com/sasa-studio/studio/internal/device"
	"github.com/sasa-studio/studio/internal/gemini"
	"github.com/sasa-studio/studio/internal/live"
	"github.com/sasa-studio/studio/internal/playback"
	"github.com/sasa-studio/studio/internal/reliability"
	"github.com/sasa-studio/studio/internal/studio"
)

func main() {
	voice := flag.String("voice", "", "prebuilt voice for the assistant")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Print("no .env file found; using process environment")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := run(cfg, *voice); err != nil {
		fmt.Fprintf(os.Stderr, "sasa-live: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, voice string) error {
	if voice != "" {
		opts, err := studio.NewLiveOptions(voice)
		if err != nil {
			return err
		}
		voice = opts.Voice
	}
	creds := studio.NewCredentials(cfg.GeminiAPIKey)
	client := gemini.New(cfg.Gemini(), creds)
	connector := client.Live().WithVoice(voice)

	mic, err := device.NewMicrophone()
	if err != nil {
		return err
	}
	defer mic.Close()

	tl := playback.NewTimeline(audio.PlaybackSampleRate)
	speaker, err := device.OpenSpeaker(tl, 100*time.Millisecond)
	if err != nil {
		return err
	}
	defer speaker.Close()

	ended := make(chan error, 1)
	var ctrl *live.Controller
	ctrl = live.NewController(mic, connector, playback.NewScheduler(tl, tl), live.Config{
		StartTimeout:    cfg.LiveStartTimeout,
		TranscriptLimit: cfg.TranscriptDisplayLimit,
	}, live.Hooks{
		OnState: func(s live.State) {
			log.Printf("live: %s", s)
			if s == live.StateIdle {
				select {
				case ended <- nil:
				default:
				}
			}
		},
		OnTranscript: func(live.TranscriptEntry) {
			printTranscript(os.Stdout, ctrl.Transcript().Recent())
		},
		OnInterrupt: func(n int) {
			log.Printf("live: interrupted, stopped %d buffers", n)
		},
		OnFault: func(err error) {
			log.Printf("live: %s: %v", reliability.Classify(err), err)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Start(ctx); err != nil {
		if errors.Is(err, reliability.ErrPermission) {
			return fmt.Errorf("microphone access was denied: %w", err)
		}
		return err
	}
	log.Printf("live: speak now, ctrl-c to stop")

	select {
	case <-ctx.Done():
		return ctrl.Stop()
	case err := <-ended:
		return err
	}
}

// printTranscript redraws the last few transcript lines.
func printTranscript(w io.Writer, entries []live.TranscriptEntry) {
	fmt.Fprintln(w, "----")
	for _, e := range entries {
		fmt.Fprintf(w, "%-10s %s\n", string(e.Role)+":", e.Text)
	}
}
