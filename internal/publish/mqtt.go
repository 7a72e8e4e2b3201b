// Package publish forwards spots to an MQTT broker.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/christian-lee/ft8mon/internal/report"
)

// Config selects the broker and topic.
type Config struct {
	Broker   string
	Topic    string
	Username string
	Password string
	QoS      byte
}

// client is the part of mqtt.Client the publisher uses.
type client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes every spot as JSON to one topic.
type MQTTPublisher struct {
	client client
	topic  string
	qos    byte
}

// NewMQTTPublisher connects to the broker. The client keeps reconnecting in
// the background if the connection drops later.
func NewMQTTPublisher(cfg Config) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID("ft8mon_" + uuid.NewString()[:8])
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		slog.Info("mqtt connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "err", err)
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		slog.Info("mqtt reconnecting", "broker", cfg.Broker)
	})

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(15*time.Second) {
		// Connect retries in the background; spots fail until it succeeds.
		slog.Warn("mqtt broker not reachable yet", "broker", cfg.Broker)
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", err)
	}
	return newPublisher(c, cfg), nil
}

func newPublisher(c client, cfg Config) *MQTTPublisher {
	return &MQTTPublisher{client: c, topic: cfg.Topic, qos: cfg.QoS}
}

func (p *MQTTPublisher) Name() string { return "mqtt" }

// Write implements dispatch.Sink.
func (p *MQTTPublisher) Write(ctx context.Context, s report.Spot) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	data, err := s.JSON()
	if err != nil {
		return fmt.Errorf("marshal spot: %w", err)
	}

	token := p.client.Publish(p.topic, p.qos, false, data)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish to %s: %w", p.topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", p.topic, ctx.Err())
	}
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
