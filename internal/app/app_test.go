package app

import (
	"errors"
	"testing"
	"time"

	"ai-voice-relay-service/internal/config"
	"ai-voice-relay-service/internal/events"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("KAFKA_ENABLED", "false")
	cfg := config.Load()
	cfg.VoiceEngine.APIKey = "key"
	cfg.VoiceEngine.InitialMessages = []config.Message{{Role: "MESSAGE_ROLE_AGENT", Text: "Hi"}}
	return cfg
}

func TestVoiceEngineConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stream.SampleRateHz = 24000

	v := VoiceEngineConfig(cfg)
	if v.APIKey != "key" || v.InputSampleRate != 24000 || v.OutputSampleRate != 24000 {
		t.Errorf("unexpected voice engine config %+v", v)
	}
	if len(v.InitialMessages) != 1 || v.InitialMessages[0].Text != "Hi" {
		t.Errorf("initial messages not mapped: %v", v.InitialMessages)
	}
	if v.MaxDuration != time.Hour {
		t.Errorf("unexpected max duration %s", v.MaxDuration)
	}
}

func TestStreamConfig(t *testing.T) {
	cfg := testConfig(t)

	s := StreamConfig(cfg)
	if err := s.Validate(); err != nil {
		t.Fatalf("default stream config should be valid: %v", err)
	}
	if s.SampleRate != 48000 || s.ChunkBytes() != 1920 {
		t.Errorf("unexpected stream config %+v", s)
	}
}

func TestNew_WiresRelayer(t *testing.T) {
	a := New(testConfig(t))
	defer a.Shutdown()

	if a.Relayer == nil || a.Publisher == nil {
		t.Fatal("expected relayer and publisher to be wired")
	}
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if a.StartupTime.IsZero() {
		t.Error("expected startup time to be set")
	}
}

func TestReady(t *testing.T) {
	a := New(testConfig(t))
	if err := a.Ready(); err != nil {
		t.Fatalf("expected wired application to be ready, got %v", err)
	}

	a.Shutdown()
	if err := a.Ready(); !errors.Is(err, events.ErrPublisherClosed) {
		t.Errorf("expected not ready after shutdown, got %v", err)
	}
}

func TestReady_NoRelayer(t *testing.T) {
	a := New(testConfig(t))
	defer a.Shutdown()
	a.Relayer = nil

	if err := a.Ready(); err == nil {
		t.Error("expected not ready without a relayer")
	}
}
