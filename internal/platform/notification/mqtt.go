// Package notification publishes logged ABG results to an MQTT broker.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/respirasense/abg/internal/domain/abg"
)

// EventResultLogged is the event name carried by every published message.
const EventResultLogged = "abg.result.logged"

const (
	qosAtLeastOnce    = 1
	defaultWait       = 5 * time.Second
	defaultClientID   = "abg-server"
	defaultConnectMax = 10 * time.Second
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	Topic     string
	// WaitTimeout bounds how long Publish waits for the broker ack.
	WaitTimeout time.Duration
}

// ResultEvent is the JSON payload published for each logged record.
type ResultEvent struct {
	Event       string     `json:"event"`
	Timestamp   string     `json:"timestamp"`
	PatientName string     `json:"patient_name"`
	PH          float64    `json:"ph"`
	PCO2        float64    `json:"pco2"`
	PO2         float64    `json:"po2"`
	HCO3        float64    `json:"hco3"`
	SaO2        float64    `json:"sao2"`
	Status      abg.Status `json:"status"`
}

func newResultEvent(rec abg.Record) ResultEvent {
	return ResultEvent{
		Event:       EventResultLogged,
		Timestamp:   rec.Timestamp,
		PatientName: rec.PatientName,
		PH:          rec.PH,
		PCO2:        rec.PCO2,
		PO2:         rec.PO2,
		HCO3:        rec.HCO3,
		SaO2:        rec.SaO2,
		Status:      rec.Status,
	}
}

// MQTTPublisher implements abg.Publisher.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	wait   time.Duration
}

// NewMQTTPublisher connects to the broker. The client reconnects on its own
// after a lost connection.
func NewMQTTPublisher(cfg MQTTConfig, logger zerolog.Logger) (*MQTTPublisher, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("mqtt broker url is required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = defaultClientID
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectMax)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info().Str("broker", cfg.BrokerURL).Msg("connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}

	return NewMQTTPublisherWithClient(client, cfg.Topic, cfg.WaitTimeout), nil
}

// NewMQTTPublisherWithClient wraps an existing client.
func NewMQTTPublisherWithClient(client mqtt.Client, topic string, wait time.Duration) *MQTTPublisher {
	if wait <= 0 {
		wait = defaultWait
	}
	return &MQTTPublisher{client: client, topic: topic, wait: wait}
}

func (p *MQTTPublisher) Publish(ctx context.Context, rec abg.Record) error {
	payload, err := json.Marshal(newResultEvent(rec))
	if err != nil {
		return fmt.Errorf("encode result event: %w", err)
	}

	wait := p.wait
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
	}

	token := p.client.Publish(p.topic, qosAtLeastOnce, false, payload)
	if !token.WaitTimeout(wait) {
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close disconnects, allowing in-flight messages up to 250ms.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
