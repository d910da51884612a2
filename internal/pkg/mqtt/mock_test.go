package mqtt

import (
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
)

type mockToken struct {
	err      error
	timedOut bool
}

func (t *mockToken) Wait() bool                     { return !t.timedOut }
func (t *mockToken) WaitTimeout(time.Duration) bool { return !t.timedOut }
func (t *mockToken) Error() error                   { return t.err }
func (t *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient implements the calls the service makes; the embedded
// interface panics on anything else.
type mockClient struct {
	paho_mqtt.Client

	mu        sync.Mutex
	published []published

	ConnectFunc   func() paho_mqtt.Token
	PublishFunc   func(topic string, qos byte, retained bool, payload interface{}) paho_mqtt.Token
	SubscribeFunc func(topic string, qos byte, callback paho_mqtt.MessageHandler) paho_mqtt.Token
}

func (m *mockClient) Connect() paho_mqtt.Token {
	if m.ConnectFunc != nil {
		return m.ConnectFunc()
	}
	return &mockToken{}
}

func (m *mockClient) Disconnect(uint) {}

func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho_mqtt.Token {
	m.mu.Lock()
	m.published = append(m.published, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(topic, qos, retained, payload)
	}
	return &mockToken{}
}

func (m *mockClient) Subscribe(topic string, qos byte, callback paho_mqtt.MessageHandler) paho_mqtt.Token {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(topic, qos, callback)
	}
	return &mockToken{}
}

func (m *mockClient) Published() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.published...)
}

type mockMessage struct {
	paho_mqtt.Message
	payload []byte
}

func (m mockMessage) Payload() []byte { return m.payload }
