package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// KafkaSender writes every event to one topic, keyed by subject.
type KafkaSender struct {
	writer *kafka.Writer
}

func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return &KafkaSender{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}}
}

func (s *KafkaSender) Send(ctx context.Context, subject string, payload []byte) error {
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(subject),
		Value: payload,
	})
}

func (s *KafkaSender) Close() error { return s.writer.Close() }

// NATSSender publishes on the subject directly.
type NATSSender struct {
	conn *nats.Conn
}

func NewNATSSender(url string, logger *slog.Logger) (*NATSSender, error) {
	conn, err := nats.Connect(url,
		nats.Name("ruleengine"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSSender{conn: conn}, nil
}

func (s *NATSSender) Send(_ context.Context, subject string, payload []byte) error {
	return s.conn.Publish(subject, payload)
}

func (s *NATSSender) Close() error {
	return s.conn.Drain()
}

// RedisSender publishes on a Redis pub/sub channel named after the subject.
type RedisSender struct {
	client *redis.Client
}

func NewRedisSender(ctx context.Context, addr string) (*RedisSender, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisSender{client: client}, nil
}

func (s *RedisSender) Send(ctx context.Context, subject string, payload []byte) error {
	return s.client.Publish(ctx, subject, payload).Err()
}

func (s *RedisSender) Close() error { return s.client.Close() }

// MQTTSender publishes on a topic derived from the subject, with dots
// turned into MQTT level separators.
type MQTTSender struct {
	client mqtt.Client
	qos    byte
}

func NewMQTTSender(broker, clientID string, qos byte, logger *slog.Logger) (*MQTTSender, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", broker, "error", err)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &MQTTSender{client: client, qos: qos}, nil
}

func (s *MQTTSender) Send(ctx context.Context, subject string, payload []byte) error {
	token := s.client.Publish(strings.ReplaceAll(subject, ".", "/"), s.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MQTTSender) Close() error {
	s.client.Disconnect(250)
	return nil
}

// RabbitMQSender publishes to an exchange with the subject as routing key.
// An empty exchange uses the default exchange, so the subject names a queue.
type RabbitMQSender struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewRabbitMQSender(url, exchange string) (*RabbitMQSender, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq publish channel: %w", err)
	}
	if exchange != "" {
		if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("rabbitmq exchange declare %s: %w", exchange, err)
		}
	}
	return &RabbitMQSender{conn: conn, channel: channel, exchange: exchange}, nil
}

func (s *RabbitMQSender) Send(ctx context.Context, subject string, payload []byte) error {
	return s.channel.PublishWithContext(ctx, s.exchange, subject, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
		Timestamp:    time.Now().UTC(),
	})
}

func (s *RabbitMQSender) Close() error {
	return errors.Join(s.channel.Close(), s.conn.Close())
}
