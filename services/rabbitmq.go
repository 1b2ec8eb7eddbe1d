package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPConfig points the event publisher at a RabbitMQ exchange
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
	GatewayID  string
}

// AMQPNotifier publishes notifications to a durable topic exchange so
// a backend consumer can archive gateway events. It dials lazily on the
// first Notify and never reconnects on its own; the next cycle dials again.
type AMQPNotifier struct {
	cfg    AMQPConfig
	logger *zap.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPNotifier(cfg AMQPConfig, logger *zap.Logger) *AMQPNotifier {
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = "gateway." + cfg.GatewayID + ".status"
	}
	return &AMQPNotifier{cfg: cfg, logger: logger}
}

// connectLocked establishes connection to RabbitMQ and declares the exchange
func (r *AMQPNotifier) connectLocked() error {
	if r.channel != nil && !r.channel.IsClosed() {
		return nil
	}

	r.logger.Info("Connecting to RabbitMQ", zap.String("exchange", r.cfg.Exchange))

	conn, err := amqp.DialConfig(r.cfg.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial:      amqp.DefaultDial(15 * time.Second),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		r.cfg.Exchange, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	r.conn = conn
	r.channel = ch
	r.logger.Info("Exchange declared", zap.String("exchange", r.cfg.Exchange))
	return nil
}

// Notify publishes text as one persistent JSON event
func (r *AMQPNotifier) Notify(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.connectLocked(); err != nil {
		return err
	}

	body, err := json.Marshal(statusEvent{
		GatewayID: r.cfg.GatewayID,
		Timestamp: time.Now(),
		Text:      text,
	})
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}

	err = r.channel.PublishWithContext(ctx,
		r.cfg.Exchange,   // exchange
		r.cfg.RoutingKey, // routing key
		false,            // mandatory
		false,            // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	r.logger.Debug("Published event to RabbitMQ", zap.String("routing_key", r.cfg.RoutingKey))
	return nil
}

// Close closes the channel and connection
func (r *AMQPNotifier) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		r.channel.Close()
		r.channel = nil
	}
	if r.conn != nil {
		err := r.conn.Close()
		r.conn = nil
		return err
	}
	return nil
}
