package app

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"ai-voice-relay-service/internal/config"
	"ai-voice-relay-service/internal/events"
	"ai-voice-relay-service/internal/observability/logging"
	"ai-voice-relay-service/internal/service/audio"
	"ai-voice-relay-service/internal/service/relay"
	"ai-voice-relay-service/internal/service/session"
	"ai-voice-relay-service/internal/service/voiceengine"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config
	Publisher   *events.Publisher
	Relayer     *relay.Relayer
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Config) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	a.Publisher = events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicTranscript: cfg.Kafka.TopicTranscript,
		TopicOutcome:    cfg.Kafka.TopicOutcome,
		Principal:       cfg.Kafka.Principal,
	})
	a.Relayer = NewRelayer(cfg, relay.WithPublisher(a.Publisher))

	appLogger.Info().Msg("AI Voice Relay service application created")
	return a
}

// NewRelayer wires a Relayer from configuration.
func NewRelayer(cfg *config.Config, opts ...relay.Option) *relay.Relayer {
	stream := StreamConfig(cfg)
	ffmpeg := audio.NewFFmpeg(cfg.Stream.FFmpegPath)

	client := voiceengine.NewClient(VoiceEngineConfig(cfg), nil)
	transport := session.NewTransport(session.Config{
		HostHeader:       cfg.VoiceEngine.HostHeader,
		HandshakeTimeout: cfg.Stream.HandshakeTimeout,
		CloseTimeout:     cfg.Stream.CloseTimeout,
		WriteTimeout:     cfg.Stream.WriteTimeout,
	}, audio.NewEncoder(ffmpeg, stream))

	policy := relay.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Delay:       cfg.Retry.Delay,
	}
	return relay.New(client, transport, audio.NewPackager(ffmpeg, stream), policy, opts...)
}

// StreamConfig maps configuration onto the audio stream shape.
func StreamConfig(cfg *config.Config) audio.StreamConfig {
	return audio.StreamConfig{
		SampleRate:    cfg.Stream.SampleRateHz,
		Channels:      cfg.Stream.Channels,
		SourceFormat:  cfg.Stream.SourceFormat,
		TargetFormat:  cfg.Stream.TargetFormat,
		ChunkDuration: cfg.Stream.ChunkDuration,
	}
}

// VoiceEngineConfig maps configuration onto the voice engine client.
func VoiceEngineConfig(cfg *config.Config) voiceengine.Config {
	v := cfg.VoiceEngine
	messages := make([]voiceengine.Message, 0, len(v.InitialMessages))
	for _, m := range v.InitialMessages {
		messages = append(messages, voiceengine.Message{Role: m.Role, Text: m.Text})
	}
	return voiceengine.Config{
		BaseURL:          v.BaseURL,
		APIKey:           v.APIKey,
		Model:            v.Model,
		Voice:            v.Voice,
		SystemPrompt:     v.SystemPrompt,
		Temperature:      v.Temperature,
		MaxDuration:      v.MaxDuration,
		JoinTimeout:      v.JoinTimeout,
		RecordingEnabled: v.RecordingEnabled,
		FirstSpeaker:     v.FirstSpeaker,
		InitialMessages:  messages,
		Metadata:         v.Metadata,
		RequestTimeout:   v.RequestTimeout,
		InputSampleRate:  cfg.Stream.SampleRateHz,
		OutputSampleRate: cfg.Stream.SampleRateHz,
	}
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:      a.Cfg.Observability.LogLevel,
		Format:     a.Cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	a.Logger = logging.Logger().With().
		Str("service", "ai-voice-relay-service").
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", a.Cfg.Observability.LogFormat).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("voiceEngine", a.Cfg.VoiceEngine.BaseURL).
		Int("maxAttempts", a.Cfg.Retry.MaxAttempts).
		Msg("AI Voice Relay service starting")

	return nil
}

// Ready reports whether the relay can take traffic: a wired Relayer and a
// publisher that has not been closed.
func (a *Application) Ready() error {
	if a.Relayer == nil {
		return errors.New("relayer not wired")
	}
	if a.Publisher == nil {
		return errors.New("event publisher not wired")
	}
	return a.Publisher.Ready()
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			shutdownLogger.Error().Err(err).Msg("Failed to close event publisher")
		}
	}
	shutdownLogger.Info().Msg("AI Voice Relay service shutting down")
}
