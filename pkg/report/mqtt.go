package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"go-boxblur/pkg/config"
	"go-boxblur/pkg/pipeline"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// publisher is the part of mqtt.Client the publisher needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher sends finished run reports to an MQTT broker as JSON.
type MQTTPublisher struct {
	client publisher
	topic  string
	qos    byte
	close  func()
}

// NewMQTTPublisher connects to cfg.Broker and returns a publisher for it.
func NewMQTTPublisher(cfg config.MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		slog.Warn("report: mqtt connection lost", "broker", cfg.Broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	slog.Info("report: connecting to mqtt broker", "broker", cfg.Broker)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	p := newPublisher(client, cfg.Topic, cfg.QoS)
	p.close = func() { client.Disconnect(250) }
	return p, nil
}

func newPublisher(client publisher, topic string, qos byte) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, qos: qos}
}

// Topic is where a report with the given run ID is published.
func (p *MQTTPublisher) Topic(r *pipeline.Report) string {
	return fmt.Sprintf("%s/%s", p.topic, r.RunID)
}

// Publish sends r to <topic>/<run id>.
func (p *MQTTPublisher) Publish(r *pipeline.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	topic := p.Topic(r)
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	slog.Debug("report: published", "topic", topic, "qos", p.qos, "size", len(payload))
	return nil
}

func (p *MQTTPublisher) Close() {
	if p.close != nil {
		p.close()
	}
}
