// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-voice-relay-service/internal/models"
	"ai-voice-relay-service/internal/observability/metrics"
)

// Publisher publishes relay events to separate Kafka topics.
type Publisher struct {
	writerTranscript *kafka.Writer
	writerOutcome    *kafka.Writer
	principal        string
	topicTranscript  string
	topicOutcome     string
	enabled          bool
	metrics          *metrics.Metrics
	closed           atomic.Bool
}

// ErrPublisherClosed is returned by Ready after Close.
var ErrPublisherClosed = errors.New("event publisher closed")

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	TopicTranscript string
	TopicOutcome    string
	Principal       string
	Enabled         bool
}

// New creates a Kafka event publisher. Disabled or broker-less configs log
// events instead of writing them.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:       cfg.Principal,
			topicTranscript: cfg.TopicTranscript,
			topicOutcome:    cfg.TopicOutcome,
			enabled:         false,
			metrics:         m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTranscript", cfg.TopicTranscript).
		Str("topicOutcome", cfg.TopicOutcome).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerTranscript: newWriter(cfg.Brokers, cfg.TopicTranscript, transport),
		writerOutcome:    newWriter(cfg.Brokers, cfg.TopicOutcome, transport),
		principal:        cfg.Principal,
		topicTranscript:  cfg.TopicTranscript,
		topicOutcome:     cfg.TopicOutcome,
		enabled:          true,
		metrics:          m,
	}
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishTranscript publishes a transcript line keyed by relay ID.
func (p *Publisher) PublishTranscript(ctx context.Context, event models.TranscriptEvent) error {
	return p.publish(ctx, p.writerTranscript, p.topicTranscript, "transcript", event.RelayID, event)
}

// PublishOutcome publishes a relay outcome keyed by relay ID.
func (p *Publisher) PublishOutcome(ctx context.Context, event models.RelayOutcome) error {
	return p.publish(ctx, p.writerOutcome, p.topicOutcome, "outcome", event.RelayID, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Ready reports whether events can still be published.
func (p *Publisher) Ready() error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	p.closed.Store(true)
	var err error
	if p.writerTranscript != nil {
		if e := p.writerTranscript.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing transcript writer")
			err = e
		}
	}
	if p.writerOutcome != nil {
		if e := p.writerOutcome.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing outcome writer")
			err = e
		}
	}
	return err
}
