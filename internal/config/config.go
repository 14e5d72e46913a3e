// Package config loads service configuration from the environment and an
// optional YAML voice profile.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ai-voice-relay-service/internal/service/audio"
)

// Config holds all service configuration.
type Config struct {
	Service       ServiceConfig
	VoiceEngine   VoiceEngineConfig
	Stream        StreamConfig
	Retry         RetryConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds service identity and listener settings.
type ServiceConfig struct {
	Principal      string
	HTTPPort       string
	GRPCPort       string
	MetricsAddr    string
	MaxUploadBytes int64
}

// VoiceEngineConfig holds the voice engine account and call defaults.
type VoiceEngineConfig struct {
	APIKey           string
	BaseURL          string
	Model            string
	Voice            string
	SystemPrompt     string
	Temperature      float64
	MaxDuration      time.Duration
	JoinTimeout      time.Duration
	RecordingEnabled bool
	FirstSpeaker     string
	HostHeader       string
	RequestTimeout   time.Duration
	ProfileFile      string
	InitialMessages  []Message
	Metadata         map[string]string
}

// StreamConfig holds the PCM stream shape and socket timeouts.
type StreamConfig struct {
	SampleRateHz     int
	Channels         int
	SourceFormat     string
	TargetFormat     string
	ChunkDuration    time.Duration
	HandshakeTimeout time.Duration
	CloseTimeout     time.Duration
	WriteTimeout     time.Duration
	FFmpegPath       string
}

// RetryConfig bounds the relay retry loop.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
}

// KafkaConfig holds Kafka publisher configuration.
type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicTranscript string
	TopicOutcome    string
	Principal       string
}

// ObservabilityConfig holds logging configuration.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables. Unset or unparsable
// values fall back to defaults.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-voice-relay")

	return &Config{
		Service: ServiceConfig{
			Principal:      principal,
			HTTPPort:       envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:       envOrDefault("GRPC_PORT", "50051"),
			MetricsAddr:    envOrDefault("METRICS_ADDR", ":9090"),
			MaxUploadBytes: envOrDefaultInt64("MAX_UPLOAD_BYTES", 16*1024*1024),
		},
		VoiceEngine: VoiceEngineConfig{
			APIKey:           os.Getenv("VOICE_ENGINE_API_KEY"),
			BaseURL:          envOrDefault("VOICE_ENGINE_BASE_URL", "https://api.ultravox.ai/api"),
			Model:            envOrDefault("VOICE_ENGINE_MODEL", "fixie-ai/ultravox"),
			Voice:            envOrDefault("VOICE_ID", "Jessica"),
			SystemPrompt:     os.Getenv("VOICE_SYSTEM_PROMPT"),
			Temperature:      envOrDefaultFloat("VOICE_TEMPERATURE", 0.3),
			MaxDuration:      envOrDefaultDuration("VOICE_MAX_DURATION", time.Hour),
			JoinTimeout:      envOrDefaultDuration("VOICE_JOIN_TIMEOUT", 30*time.Second),
			RecordingEnabled: envOrDefaultBool("VOICE_RECORDING_ENABLED", false),
			FirstSpeaker:     envOrDefault("VOICE_FIRST_SPEAKER", "user"),
			HostHeader:       envOrDefault("VOICE_ENGINE_HOST_HEADER", "voice.ultravox.ai"),
			RequestTimeout:   envOrDefaultDuration("VOICE_ENGINE_REQUEST_TIMEOUT", 15*time.Second),
			ProfileFile:      os.Getenv("VOICE_PROFILE_FILE"),
		},
		Stream: StreamConfig{
			SampleRateHz:     envOrDefaultInt("STREAM_SAMPLE_RATE_HZ", 48000),
			Channels:         envOrDefaultInt("STREAM_CHANNELS", 1),
			SourceFormat:     envOrDefault("STREAM_SOURCE_FORMAT", "ogg"),
			TargetFormat:     envOrDefault("STREAM_TARGET_FORMAT", "ogg"),
			ChunkDuration:    envOrDefaultDuration("STREAM_CHUNK_DURATION", 20*time.Millisecond),
			HandshakeTimeout: envOrDefaultDuration("STREAM_HANDSHAKE_TIMEOUT", 10*time.Second),
			CloseTimeout:     envOrDefaultDuration("STREAM_CLOSE_TIMEOUT", 5*time.Second),
			WriteTimeout:     envOrDefaultDuration("STREAM_WRITE_TIMEOUT", 5*time.Second),
			FFmpegPath:       envOrDefault("FFMPEG_PATH", "ffmpeg"),
		},
		Retry: RetryConfig{
			MaxAttempts: envOrDefaultInt("RETRY_MAX_ATTEMPTS", 3),
			Delay:       envOrDefaultDuration("RETRY_DELAY", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envOrDefaultList("KAFKA_BROKERS", nil),
			TopicTranscript: envOrDefault("KAFKA_TOPIC_TRANSCRIPT", "voice.relay.transcript"),
			TopicOutcome:    envOrDefault("KAFKA_TOPIC_OUTCOME", "voice.relay.outcome"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

// Validate checks the configuration invariants. requireAPIKey is set when
// the relay endpoint will actually call the voice engine.
func (c *Config) Validate(requireAPIKey bool) error {
	var errs []error

	s := c.Stream
	if s.SampleRateHz <= 0 {
		errs = append(errs, fmt.Errorf("stream sample rate must be positive, got %d", s.SampleRateHz))
	}
	if s.Channels != 1 && s.Channels != 2 {
		errs = append(errs, fmt.Errorf("stream channels must be 1 or 2, got %d", s.Channels))
	}
	if !audio.IsSourceFormat(s.SourceFormat) {
		errs = append(errs, fmt.Errorf("unsupported source format %q", s.SourceFormat))
	}
	if !audio.IsTargetFormat(s.TargetFormat) {
		errs = append(errs, fmt.Errorf("unsupported target format %q", s.TargetFormat))
	}
	if s.ChunkDuration <= 0 {
		errs = append(errs, fmt.Errorf("chunk duration must be positive, got %s", s.ChunkDuration))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry max attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.Delay < 0 {
		errs = append(errs, fmt.Errorf("retry delay must not be negative, got %s", c.Retry.Delay))
	}

	if requireAPIKey && strings.TrimSpace(c.VoiceEngine.APIKey) == "" {
		errs = append(errs, errors.New("VOICE_ENGINE_API_KEY is required"))
	}
	switch c.VoiceEngine.FirstSpeaker {
	case "user", "agent":
	default:
		errs = append(errs, fmt.Errorf("first speaker must be user or agent, got %q", c.VoiceEngine.FirstSpeaker))
	}
	if c.Service.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max upload bytes must be positive, got %d", c.Service.MaxUploadBytes))
	}

	return errors.Join(errs...)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
