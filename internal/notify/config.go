package notify

import (
	"errors"
	"strings"
	"time"

	"github.com/flightpipe-io/flightpipe/internal/config"
)

const (
	defaultTopic        = "flightpipe.stage-reports"
	defaultWriteTimeout = 10 * time.Second
)

var (
	// ErrNoBrokers is returned when the notifier is built without brokers.
	ErrNoBrokers = errors.New("kafka brokers cannot be empty")
	// ErrTopicEmpty is returned when no topic is configured.
	ErrTopicEmpty = errors.New("kafka topic cannot be empty")
)

// Config holds Kafka notifier settings. No brokers disables notifications.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// LoadConfig reads KAFKA_BROKERS (comma separated), KAFKA_TOPIC and KAFKA_WRITE_TIMEOUT.
func LoadConfig() *Config {
	return &Config{
		Brokers:      config.ParseCommaSeparatedList(config.GetEnvStr("KAFKA_BROKERS", "")),
		Topic:        config.GetEnvStr("KAFKA_TOPIC", defaultTopic),
		WriteTimeout: config.GetEnvDuration("KAFKA_WRITE_TIMEOUT", defaultWriteTimeout),
	}
}

// Enabled reports whether any broker is configured.
func (c *Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// Validate checks brokers and topic.
func (c *Config) Validate() error {
	if !c.Enabled() {
		return ErrNoBrokers
	}

	if strings.TrimSpace(c.Topic) == "" {
		return ErrTopicEmpty
	}

	return nil
}
