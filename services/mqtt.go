package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// MQTTConfig points the status notifier at a broker
type MQTTConfig struct {
	Broker    string
	Port      int
	ClientID  string
	Topic     string
	GatewayID string
}

type statusEvent struct {
	GatewayID string    `json:"gateway_id"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// MQTTNotifier publishes notifications as JSON events to a broker topic.
// It connects lazily on the first Notify.
type MQTTNotifier struct {
	cfg    MQTTConfig
	client mqtt.Client
	logger *zap.Logger

	mu        sync.RWMutex
	connected bool
}

func NewMQTTNotifier(cfg MQTTConfig, logger *zap.Logger) *MQTTNotifier {
	n := &MQTTNotifier{cfg: cfg, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		n.setConnected(true)
		logger.Info("MQTT connected", zap.String("broker", cfg.Broker), zap.Int("port", cfg.Port))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		n.setConnected(false)
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	n.client = mqtt.NewClient(opts)
	return n
}

func (n *MQTTNotifier) connect(ctx context.Context) error {
	if n.isConnected() {
		return nil
	}
	token := n.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Notify publishes text as one QoS 1 event
func (n *MQTTNotifier) Notify(ctx context.Context, text string) error {
	if err := n.connect(ctx); err != nil {
		return err
	}

	data, err := json.Marshal(statusEvent{
		GatewayID: n.cfg.GatewayID,
		Timestamp: time.Now(),
		Text:      text,
	})
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}

	token := n.client.Publish(n.cfg.Topic, 1, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout for topic %s", n.cfg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish status: %w", err)
	}
	n.logger.Debug("Published status event", zap.String("topic", n.cfg.Topic))
	return nil
}

// Close disconnects from the broker
func (n *MQTTNotifier) Close() error {
	if n.client != nil && n.client.IsConnected() {
		n.client.Disconnect(250)
	}
	n.setConnected(false)
	return nil
}

func (n *MQTTNotifier) isConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected && n.client.IsConnected()
}

func (n *MQTTNotifier) setConnected(v bool) {
	n.mu.Lock()
	n.connected = v
	n.mu.Unlock()
}
