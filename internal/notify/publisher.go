// Package notify announces finished stage runs on a Kafka topic so downstream
// jobs can react to fresh artifacts.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/flightpipe-io/flightpipe/internal/pipeline"
)

// Message header names.
const (
	HeaderStage      = "stage"
	HeaderStatusCode = "status-code"
)

var _ pipeline.Publisher = (*KafkaPublisher)(nil)

type (
	// messageWriter is the subset of *kafka.Writer the publisher uses.
	messageWriter interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// KafkaPublisher writes one JSON message per stage report, keyed by run ID.
	KafkaPublisher struct {
		writer messageWriter
	}

	// StageReport is the message payload.
	StageReport struct {
		*pipeline.Report
		Messages   []string `json:"messages"`
		DurationMS int64    `json:"durationMs"`
	}
)

// NewKafkaPublisher creates a publisher for cfg.
func NewKafkaPublisher(cfg *Config) (*KafkaPublisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.LeastBytes{},
			WriteTimeout:           cfg.WriteTimeout,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

// Publish sends the report.
func (p *KafkaPublisher) Publish(ctx context.Context, report *pipeline.Report) error {
	msg, err := NewMessage(report)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s report %s: %w", report.Stage, report.RunID, err)
	}

	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NewMessage encodes a report as a Kafka message.
func NewMessage(report *pipeline.Report) (kafka.Message, error) {
	data, err := json.Marshal(StageReport{
		Report:     report,
		Messages:   pipeline.Messages(report.Outcomes),
		DurationMS: report.Duration().Milliseconds(),
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode stage report: %w", err)
	}

	return kafka.Message{
		Key:   []byte(report.RunID.String()),
		Value: data,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: HeaderStage, Value: []byte(report.Stage)},
			{Key: HeaderStatusCode, Value: []byte(fmt.Sprint(report.StatusCode))},
		},
	}, nil
}
