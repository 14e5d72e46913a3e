// Package voiceengine creates call sessions on the remote voice engine.
package voiceengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai-voice-relay-service/internal/observability/logging"
	"ai-voice-relay-service/internal/observability/metrics"
	"ai-voice-relay-service/internal/service/session"
)

const maxErrorBody = 4096

// Message is an initial conversation message seeded into the call.
type Message struct {
	Role string `json:"role" yaml:"role"`
	Text string `json:"text" yaml:"text"`
}

// Config holds the voice engine account and the call defaults.
type Config struct {
	BaseURL          string
	APIKey           string
	Model            string
	Voice            string
	SystemPrompt     string
	Temperature      float64
	MaxDuration      time.Duration
	JoinTimeout      time.Duration
	RecordingEnabled bool
	FirstSpeaker     string // user or agent
	InitialMessages  []Message
	Metadata         map[string]string
	RequestTimeout   time.Duration
	InputSampleRate  int
	OutputSampleRate int
}

// CallRequest is the body of a call creation request.
type CallRequest struct {
	SystemPrompt         string                    `json:"systemPrompt,omitempty"`
	Model                string                    `json:"model,omitempty"`
	Voice                string                    `json:"voice,omitempty"`
	Temperature          float64                   `json:"temperature"`
	MaxDuration          string                    `json:"maxDuration,omitempty"`
	JoinTimeout          string                    `json:"joinTimeout,omitempty"`
	RecordingEnabled     bool                      `json:"recordingEnabled"`
	FirstSpeakerSettings map[string]map[string]any `json:"firstSpeakerSettings,omitempty"`
	Medium               Medium                    `json:"medium"`
	InitialMessages      []Message                 `json:"initialMessages,omitempty"`
	Metadata             map[string]string         `json:"metadata,omitempty"`
}

// Medium selects the streaming medium of a call.
type Medium struct {
	ServerWebSocket *ServerWebSocket `json:"serverWebSocket,omitempty"`
}

// ServerWebSocket configures a raw PCM socket.
type ServerWebSocket struct {
	InputSampleRate  int `json:"inputSampleRate"`
	OutputSampleRate int `json:"outputSampleRate"`
}

// Call is a created call.
type Call struct {
	CallID  string `json:"callId"`
	JoinURL string `json:"joinUrl"`
	Created string `json:"created,omitempty"`
}

// Client calls the voice engine REST API.
type Client struct {
	cfg     Config
	http    *http.Client
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a client. A nil httpClient uses one bounded by
// cfg.RequestTimeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		logger:  logging.WithComponent("voiceengine"),
		metrics: metrics.DefaultMetrics,
	}
}

// NewCallRequest builds a call request from the configured defaults.
func (c *Client) NewCallRequest() CallRequest {
	req := CallRequest{
		SystemPrompt:     c.cfg.SystemPrompt,
		Model:            c.cfg.Model,
		Voice:            c.cfg.Voice,
		Temperature:      c.cfg.Temperature,
		RecordingEnabled: c.cfg.RecordingEnabled,
		InitialMessages:  c.cfg.InitialMessages,
		Metadata:         c.cfg.Metadata,
		Medium: Medium{ServerWebSocket: &ServerWebSocket{
			InputSampleRate:  c.cfg.InputSampleRate,
			OutputSampleRate: c.cfg.OutputSampleRate,
		}},
	}
	if c.cfg.MaxDuration > 0 {
		req.MaxDuration = formatSeconds(c.cfg.MaxDuration)
	}
	if c.cfg.JoinTimeout > 0 {
		req.JoinTimeout = formatSeconds(c.cfg.JoinTimeout)
	}
	switch c.cfg.FirstSpeaker {
	case "agent":
		req.FirstSpeakerSettings = map[string]map[string]any{"agent": {}}
	case "", "user":
		req.FirstSpeakerSettings = map[string]map[string]any{"user": {}}
	}
	return req
}

// Initiate creates a call and returns a session in CREATED state bound to
// its join endpoint.
func (c *Client) Initiate(ctx context.Context, relayID string, attempt int) (*session.CallSession, error) {
	call, err := c.CreateCall(ctx, c.NewCallRequest())
	if err != nil {
		return nil, err
	}
	return session.New(session.Params{
		RelayID: relayID,
		Attempt: attempt,
		ID:      call.CallID,
		JoinURL: call.JoinURL,
	}), nil
}

// CreateCall posts req to the calls endpoint. It makes exactly one request.
func (c *Client) CreateCall(ctx context.Context, req CallRequest) (*Call, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal call request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/calls", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build call request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.RecordSessionCreation(0)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RemoteServiceError{Err: err}
	}
	defer resp.Body.Close()
	c.metrics.RecordSessionCreation(resp.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody*16))
	if err != nil {
		return nil, &RemoteServiceError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteServiceError{StatusCode: resp.StatusCode, Body: truncate(raw)}
	}

	var call Call
	if err := json.Unmarshal(raw, &call); err != nil {
		return nil, &RemoteServiceError{StatusCode: resp.StatusCode, Body: truncate(raw), Err: fmt.Errorf("decode response: %w", err)}
	}
	if strings.TrimSpace(call.JoinURL) == "" {
		return nil, &RemoteServiceError{StatusCode: resp.StatusCode, Body: truncate(raw), Err: ErrMissingJoinURL}
	}

	c.logger.Info().
		Str("callId", call.CallID).
		Dur("latency", time.Since(start)).
		Msg("Created voice engine call")
	return &call, nil
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%ds", int64(d/time.Second))
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}
