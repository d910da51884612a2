package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/bus"
	"github.com/anicoll/homehub/internal/pkg/model"
)

// MessagePublisher is the slice of the bus commands are published to.
type MessagePublisher interface {
	Publish(msg model.Message)
}

type notification struct {
	Type    string    `json:"type"`
	Text    string    `json:"text,omitempty"`
	Gateway string    `json:"gateway,omitempty"`
	Device  string    `json:"device,omitempty"`
	Time    time.Time `json:"time"`
}

func (s *service) NotifyTopic() string {
	return s.prefix + "/notify"
}

func (s *service) CommandTopic() string {
	return s.prefix + "/command"
}

// Listen forwards user notifications and low battery alerts to the notify topic.
func (s *service) Listen(b *bus.Bus) []*bus.Subscription {
	return []*bus.Subscription{
		bus.Subscribe(b, "mqtt-notify", func(msg model.NotifyUserMessage) error {
			return s.notify(notification{Type: "notification", Text: msg.Text, Time: time.Now()})
		}),
		bus.Subscribe(b, "mqtt-battery", func(msg model.LowBatteryMessage) error {
			return s.notify(notification{
				Type:    "low_battery",
				Text:    fmt.Sprintf("%s battery is low", msg.Device.Name),
				Gateway: msg.Gateway,
				Device:  msg.Device.ID,
				Time:    time.Now(),
			})
		}),
	}
}

func (s *service) notify(n notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.publish(s.NotifyTopic(), 1, false, payload)
}

// SubscribeCommands publishes every valid payload received on the command
// topic as a CommandMessage.
func (s *service) SubscribeCommands(publisher MessagePublisher) error {
	token := s.client.Subscribe(s.CommandTopic(), 1, func(_ paho_mqtt.Client, msg paho_mqtt.Message) {
		s.handleCommand(publisher, msg.Payload())
	})
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("subscribe %s: timed out", s.CommandTopic())
	}
	return token.Error()
}

func (s *service) handleCommand(publisher MessagePublisher, payload []byte) {
	var cmd model.ExternalCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		s.logger.Warn("dropping malformed command", zap.Error(err))
		return
	}
	if cmd.ActionID == "" {
		s.logger.Warn("dropping command without action id")
		return
	}
	publisher.Publish(model.CommandMessage{ActionID: cmd.ActionID, Parameters: cmd.Parameters})
}
