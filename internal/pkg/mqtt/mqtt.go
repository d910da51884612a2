// Package mqtt bridges the hub to an MQTT broker: variable state and Home
// Assistant discovery out, commands in.
package mqtt

import (
	"errors"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	DefaultPrefix     = "homehub"
	discoveryPrefix   = "homeassistant"
	connectTimeout    = 5 * time.Second
	publishTimeout    = 10 * time.Second
	disconnectQuiesce = 250
)

type service struct {
	client paho_mqtt.Client
	prefix string
	logger *zap.Logger

	configured sync.Map
	sensors    sync.Map
}

func New(client paho_mqtt.Client, prefix string) *service {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &service{
		client: client,
		prefix: prefix,
		logger: zap.L().Named("mqtt"),
	}
}

// NewClient builds a paho client for broker with automatic reconnects.
func NewClient(broker, clientID, username, password string) paho_mqtt.Client {
	opts := paho_mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetUsername(username).
		SetPassword(password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(connectTimeout)
	return paho_mqtt.NewClient(opts)
}

func (s *service) Connect() error {
	token := s.client.Connect()
	res := token.WaitTimeout(connectTimeout)
	if err := token.Error(); err != nil {
		return err
	}
	if res {
		return nil
	}
	return errors.New("unable to connect in time")
}

func (s *service) Disconnect() {
	s.client.Disconnect(disconnectQuiesce)
}

func (s *service) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := s.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("publish timed out: " + topic)
	}
	return token.Error()
}
