package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Message is an initial conversation message.
type Message struct {
	Role string `yaml:"role"`
	Text string `yaml:"text"`
}

// Profile is a voice persona loaded from YAML. Set fields override the
// environment.
type Profile struct {
	SystemPrompt    string            `yaml:"systemPrompt"`
	Voice           string            `yaml:"voice"`
	Temperature     *float64          `yaml:"temperature"`
	FirstSpeaker    string            `yaml:"firstSpeaker"`
	InitialMessages []Message         `yaml:"initialMessages"`
	Metadata        map[string]string `yaml:"metadata"`
}

// LoadProfile reads and parses a voice profile file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return &p, nil
}

// Validate checks the profile values that are set.
func (p *Profile) Validate() error {
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1, got %v", *p.Temperature)
	}
	switch p.FirstSpeaker {
	case "", "user", "agent":
	default:
		return fmt.Errorf("firstSpeaker must be user or agent, got %q", p.FirstSpeaker)
	}
	for i, m := range p.InitialMessages {
		if m.Role == "" || m.Text == "" {
			return fmt.Errorf("initialMessages[%d] needs role and text", i)
		}
	}
	return nil
}

// ApplyProfile overrides voice engine settings with the profile's.
func (c *Config) ApplyProfile(p *Profile) {
	v := &c.VoiceEngine
	if p.SystemPrompt != "" {
		v.SystemPrompt = p.SystemPrompt
	}
	if p.Voice != "" {
		v.Voice = p.Voice
	}
	if p.Temperature != nil {
		v.Temperature = *p.Temperature
	}
	if p.FirstSpeaker != "" {
		v.FirstSpeaker = p.FirstSpeaker
	}
	if len(p.InitialMessages) > 0 {
		v.InitialMessages = append([]Message(nil), p.InitialMessages...)
	}
	if len(p.Metadata) > 0 {
		v.Metadata = make(map[string]string, len(p.Metadata))
		for k, val := range p.Metadata {
			v.Metadata[k] = val
		}
	}
}
