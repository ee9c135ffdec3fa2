package eventbus

import (
	"context"
	"fmt"
	"log/slog"
)

// Broker types accepted by New.
const (
	TypeLog      = "log"
	TypeKafka    = "kafka"
	TypeNATS     = "nats"
	TypeRedis    = "redis"
	TypeMQTT     = "mqtt"
	TypeRabbitMQ = "rabbitmq"
)

// Config selects and configures the event broker.
type Config struct {
	Type          string   `yaml:"type"`
	URL           string   `yaml:"url"`     // nats, redis address, mqtt broker, amqp url
	Brokers       []string `yaml:"brokers"` // kafka
	Topic         string   `yaml:"topic"`   // kafka
	Exchange      string   `yaml:"exchange"`
	ClientID      string   `yaml:"client_id"`
	QoS           byte     `yaml:"qos"`
	SubjectPrefix string   `yaml:"subject_prefix"`
}

// New connects to the configured broker. An empty type logs events.
func New(ctx context.Context, config Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sender, err := newSender(ctx, config, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("event bus ready", "type", config.Type, "subject_prefix", config.SubjectPrefix)
	return NewPublisher(sender, config.SubjectPrefix, logger), nil
}

func newSender(ctx context.Context, config Config, logger *slog.Logger) (Sender, error) {
	switch config.Type {
	case "", TypeLog:
		return LogSender{Logger: logger}, nil
	case TypeKafka:
		if len(config.Brokers) == 0 || config.Topic == "" {
			return nil, fmt.Errorf("kafka event bus requires brokers and topic")
		}
		return NewKafkaSender(config.Brokers, config.Topic), nil
	case TypeNATS:
		return NewNATSSender(config.URL, logger)
	case TypeRedis:
		return NewRedisSender(ctx, config.URL)
	case TypeMQTT:
		clientID := config.ClientID
		if clientID == "" {
			clientID = "ruleengine"
		}
		return NewMQTTSender(config.URL, clientID, config.QoS, logger)
	case TypeRabbitMQ:
		return NewRabbitMQSender(config.URL, config.Exchange)
	default:
		return nil, fmt.Errorf("unknown event bus type %q", config.Type)
	}
}
