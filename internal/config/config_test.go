package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envVars = []string{
	"SERVICE_PRINCIPAL", "HTTP_PORT", "GRPC_PORT", "METRICS_ADDR", "MAX_UPLOAD_BYTES",
	"VOICE_ENGINE_API_KEY", "VOICE_ENGINE_BASE_URL", "VOICE_ENGINE_MODEL", "VOICE_ID",
	"VOICE_SYSTEM_PROMPT", "VOICE_TEMPERATURE", "VOICE_MAX_DURATION", "VOICE_JOIN_TIMEOUT",
	"VOICE_RECORDING_ENABLED", "VOICE_FIRST_SPEAKER", "VOICE_ENGINE_HOST_HEADER",
	"VOICE_ENGINE_REQUEST_TIMEOUT", "VOICE_PROFILE_FILE",
	"STREAM_SAMPLE_RATE_HZ", "STREAM_CHANNELS", "STREAM_SOURCE_FORMAT", "STREAM_TARGET_FORMAT",
	"STREAM_CHUNK_DURATION", "STREAM_HANDSHAKE_TIMEOUT", "STREAM_CLOSE_TIMEOUT",
	"STREAM_WRITE_TIMEOUT", "FFMPEG_PATH", "RETRY_MAX_ATTEMPTS", "RETRY_DELAY",
	"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_TOPIC_TRANSCRIPT", "KAFKA_TOPIC_OUTCOME",
	"KAFKA_PRINCIPAL", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range envVars {
		if old, ok := os.LookupEnv(v); ok {
			os.Unsetenv(v)
			t.Cleanup(func() { os.Setenv(v, old) })
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Service.Principal != "svc-voice-relay" {
		t.Errorf("expected default principal 'svc-voice-relay', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "8080" || cfg.Service.GRPCPort != "50051" || cfg.Service.MetricsAddr != ":9090" {
		t.Errorf("unexpected listener defaults %+v", cfg.Service)
	}
	if cfg.Service.MaxUploadBytes != 16*1024*1024 {
		t.Errorf("expected 16MiB upload limit, got %d", cfg.Service.MaxUploadBytes)
	}

	v := cfg.VoiceEngine
	if v.BaseURL != "https://api.ultravox.ai/api" || v.Model != "fixie-ai/ultravox" || v.Voice != "Jessica" {
		t.Errorf("unexpected voice engine defaults %+v", v)
	}
	if v.Temperature != 0.3 || v.MaxDuration != time.Hour || v.JoinTimeout != 30*time.Second {
		t.Errorf("unexpected call defaults %+v", v)
	}
	if v.HostHeader != "voice.ultravox.ai" || v.FirstSpeaker != "user" || v.RecordingEnabled {
		t.Errorf("unexpected socket defaults %+v", v)
	}

	s := cfg.Stream
	if s.SampleRateHz != 48000 || s.Channels != 1 || s.SourceFormat != "ogg" || s.TargetFormat != "ogg" {
		t.Errorf("unexpected stream defaults %+v", s)
	}
	if s.ChunkDuration != 20*time.Millisecond || s.CloseTimeout != 5*time.Second || s.FFmpegPath != "ffmpeg" {
		t.Errorf("unexpected stream timing defaults %+v", s)
	}

	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.Delay != 5*time.Second {
		t.Errorf("unexpected retry defaults %+v", cfg.Retry)
	}
	if cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("expected Kafka disabled by default, got %+v", cfg.Kafka)
	}
	if cfg.Observability.LogLevel != "info" || cfg.Observability.LogFormat != "json" {
		t.Errorf("unexpected observability defaults %+v", cfg.Observability)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	t.Setenv("GRPC_PORT", "9999")
	t.Setenv("VOICE_ENGINE_API_KEY", "key-1")
	t.Setenv("VOICE_TEMPERATURE", "0.7")
	t.Setenv("VOICE_RECORDING_ENABLED", "true")
	t.Setenv("STREAM_SAMPLE_RATE_HZ", "16000")
	t.Setenv("STREAM_CHANNELS", "2")
	t.Setenv("STREAM_TARGET_FORMAT", "mp3")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("RETRY_DELAY", "250ms")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" || cfg.Service.GRPCPort != "9999" {
		t.Errorf("unexpected service config %+v", cfg.Service)
	}
	if cfg.VoiceEngine.APIKey != "key-1" || cfg.VoiceEngine.Temperature != 0.7 || !cfg.VoiceEngine.RecordingEnabled {
		t.Errorf("unexpected voice engine config %+v", cfg.VoiceEngine)
	}
	if cfg.Stream.SampleRateHz != 16000 || cfg.Stream.Channels != 2 || cfg.Stream.TargetFormat != "mp3" {
		t.Errorf("unexpected stream config %+v", cfg.Stream)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.Delay != 250*time.Millisecond {
		t.Errorf("unexpected retry config %+v", cfg.Retry)
	}
	if !cfg.Kafka.Enabled || strings.Join(cfg.Kafka.Brokers, "|") != "kafka-1:9092|kafka-2:9092" {
		t.Errorf("unexpected kafka config %+v", cfg.Kafka)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STREAM_SAMPLE_RATE_HZ", "not-a-number")
	t.Setenv("VOICE_TEMPERATURE", "warm")
	t.Setenv("VOICE_RECORDING_ENABLED", "invalid")
	t.Setenv("RETRY_DELAY", "soon")
	t.Setenv("MAX_UPLOAD_BYTES", "big")

	cfg := Load()

	if cfg.Stream.SampleRateHz != 48000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.Stream.SampleRateHz)
	}
	if cfg.VoiceEngine.Temperature != 0.3 {
		t.Errorf("expected default temperature on invalid input, got %v", cfg.VoiceEngine.Temperature)
	}
	if cfg.VoiceEngine.RecordingEnabled {
		t.Error("expected default recording flag on invalid input")
	}
	if cfg.Retry.Delay != 5*time.Second {
		t.Errorf("expected default retry delay on invalid input, got %v", cfg.Retry.Delay)
	}
	if cfg.Service.MaxUploadBytes != 16*1024*1024 {
		t.Errorf("expected default upload limit on invalid input, got %d", cfg.Service.MaxUploadBytes)
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_PRINCIPAL", "my-service")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		apiKey bool
		errMsg string
	}{
		{"defaults without key", func(*Config) {}, false, ""},
		{"key required", func(*Config) {}, true, "VOICE_ENGINE_API_KEY"},
		{"key present", func(c *Config) { c.VoiceEngine.APIKey = "k" }, true, ""},
		{"zero rate", func(c *Config) { c.Stream.SampleRateHz = 0 }, false, "sample rate"},
		{"three channels", func(c *Config) { c.Stream.Channels = 3 }, false, "channels"},
		{"bad source", func(c *Config) { c.Stream.SourceFormat = "aiff" }, false, "source format"},
		{"bad target", func(c *Config) { c.Stream.TargetFormat = "flac" }, false, "target format"},
		{"webm source", func(c *Config) { c.Stream.SourceFormat = "webm" }, false, ""},
		{"mp3 target", func(c *Config) { c.Stream.TargetFormat = "mp3" }, false, ""},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, false, "max attempts"},
		{"negative delay", func(c *Config) { c.Retry.Delay = -time.Second }, false, "retry delay"},
		{"bad first speaker", func(c *Config) { c.VoiceEngine.FirstSpeaker = "bot" }, false, "first speaker"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg := Load()
			tt.mutate(cfg)

			err := cfg.Validate(tt.apiKey)
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error containing %q, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	data := `
systemPrompt: You are a friendly voice assistant.
voice: Mark
temperature: 0.5
firstSpeaker: agent
initialMessages:
  - role: MESSAGE_ROLE_AGENT
    text: Hello, how can I help?
metadata:
  channel: voice-notes
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}

	clearEnv(t)
	cfg := Load()
	cfg.ApplyProfile(p)

	v := cfg.VoiceEngine
	if v.SystemPrompt != "You are a friendly voice assistant." || v.Voice != "Mark" || v.Temperature != 0.5 {
		t.Errorf("profile not applied: %+v", v)
	}
	if v.FirstSpeaker != "agent" || len(v.InitialMessages) != 1 || v.Metadata["channel"] != "voice-notes" {
		t.Errorf("profile not applied: %+v", v)
	}
	if v.Model != "fixie-ai/ultravox" {
		t.Errorf("unset profile fields must keep env values, got model %s", v.Model)
	}
}

func TestLoadProfile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad yaml", "voice: [unclosed"},
		{"temperature out of range", "temperature: 2"},
		{"bad first speaker", "firstSpeaker: robot"},
		{"message without text", "initialMessages:\n  - role: MESSAGE_ROLE_AGENT\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "profile.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadProfile(path); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := LoadProfile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}
