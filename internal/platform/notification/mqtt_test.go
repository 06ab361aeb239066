package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/respirasense/abg/internal/domain/abg"
)

type fakeToken struct {
	completed bool
	err       error
}

func (t *fakeToken) Wait() bool                     { return t.completed }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.completed }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.completed {
		close(ch)
	}
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mqtt.Client
	token        *fakeToken
	messages     []published
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	return c.token
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.disconnected = true
}

func testRecord() abg.Record {
	return abg.Record{
		Timestamp:   "2025-03-01 09:30:00",
		PatientName: "Jane Doe",
		PH:          7.40,
		PCO2:        40,
		PO2:         90,
		HCO3:        24,
		SaO2:        98,
		Status:      abg.StatusNormal,
	}
}

func TestMQTTPublisher_Publish(t *testing.T) {
	client := &fakeClient{token: &fakeToken{completed: true}}
	p := NewMQTTPublisherWithClient(client, "respirasense/abg/results", 0)

	if err := p.Publish(context.Background(), testRecord()); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	if len(client.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(client.messages))
	}
	msg := client.messages[0]
	if msg.topic != "respirasense/abg/results" {
		t.Errorf("expected topic respirasense/abg/results, got %s", msg.topic)
	}
	if msg.qos != 1 {
		t.Errorf("expected QoS 1, got %d", msg.qos)
	}
	if msg.retained {
		t.Error("expected non-retained message")
	}

	var event ResultEvent
	if err := json.Unmarshal(msg.payload, &event); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if event.Event != EventResultLogged {
		t.Errorf("expected event %s, got %s", EventResultLogged, event.Event)
	}
	if event.PatientName != "Jane Doe" || event.Status != abg.StatusNormal || event.PH != 7.40 {
		t.Errorf("unexpected event: %+v", event)
	}
}

func TestMQTTPublisher_Timeout(t *testing.T) {
	client := &fakeClient{token: &fakeToken{completed: false}}
	p := NewMQTTPublisherWithClient(client, "t", time.Millisecond)

	err := p.Publish(context.Background(), testRecord())
	if !errors.Is(err, ErrPublishTimeout) {
		t.Errorf("expected ErrPublishTimeout, got %v", err)
	}
}

func TestMQTTPublisher_BrokerError(t *testing.T) {
	brokerErr := errors.New("not authorized")
	client := &fakeClient{token: &fakeToken{completed: true, err: brokerErr}}
	p := NewMQTTPublisherWithClient(client, "t", 0)

	err := p.Publish(context.Background(), testRecord())
	if !errors.Is(err, brokerErr) {
		t.Errorf("expected wrapped broker error, got %v", err)
	}
}

func TestMQTTPublisher_Close(t *testing.T) {
	client := &fakeClient{token: &fakeToken{completed: true}}
	p := NewMQTTPublisherWithClient(client, "t", 0)
	p.Close()
	if !client.disconnected {
		t.Error("expected Disconnect to be called")
	}
}

func TestNewMQTTPublisher_RequiresBroker(t *testing.T) {
	_, err := NewMQTTPublisher(MQTTConfig{Topic: "t"}, zerolog.Nop())
	if err == nil {
		t.Error("expected error without broker url")
	}
}

func TestMQTTPublisher_ImplementsPublisher(t *testing.T) {
	var _ abg.Publisher = (*MQTTPublisher)(nil)
}
