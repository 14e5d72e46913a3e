// Relay viewer follows relay transcript and outcome topics on Kafka and shows
// them live in a browser.
package main

import (
	"context"
	"embed"
	"flag"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"ai-voice-relay-service/internal/observability/logging"
	"ai-voice-relay-service/internal/viewer"
)

//go:embed static/*
var staticFiles embed.FS

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicTranscript := flag.String("topic-transcript", "voice.relay.transcript", "Transcript topic")
	topicOutcome := flag.String("topic-outcome", "voice.relay.outcome", "Outcome topic")
	since := flag.Duration("since", time.Hour, "How far back to replay events")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console", TimeFormat: time.RFC3339})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := viewer.NewHub()
	go hub.Run(ctx)

	start := time.Now().Add(-*since)
	for _, topic := range []string{*topicTranscript, *topicOutcome} {
		reader := viewer.NewReader(ctx, strings.Split(*brokers, ","), topic, start)
		defer reader.Close()
		go viewer.Consume(ctx, hub, reader, topic)
	}

	staticFS, _ := fs.Sub(staticFiles, "static")
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/ws", hub.Handler())

	server := &http.Server{Addr: ":" + *port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", "http://localhost:"+*port).
		Str("brokers", *brokers).
		Strs("topics", []string{*topicTranscript, *topicOutcome}).
		Msg("Relay viewer starting")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server error")
	}
}
