package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/model"
)

type statePayload struct {
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Write publishes the state of every changed variable, announcing each new
// sensor to Home Assistant first. A variable that fails does not stop the
// rest of the batch and is sent again on the next write.
func (s *service) Write(ctx context.Context, vars []model.Variable) error {
	var errs []error
	for _, v := range vars {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		value, changed := s.changed(v)
		if !changed {
			continue
		}
		if err := s.registerSensor(v.VariableKey); err != nil {
			errs = append(errs, fmt.Errorf("register %s: %w", sensorID(v.VariableKey), err))
			continue
		}
		if err := s.publishState(v); err != nil {
			errs = append(errs, fmt.Errorf("state %s: %w", sensorID(v.VariableKey), err))
			continue
		}
		s.sensors.Store(v.VariableKey, value)
	}
	return errors.Join(errs...)
}

// StateTopic returns <prefix>/<gateway>/<device>/<slug>/state.
func (s *service) StateTopic(key model.VariableKey) string {
	return fmt.Sprintf("%s/%s/%s/%s/state", s.prefix, key.Gateway, key.DeviceID, slug.Make(key.Name))
}

func (s *service) publishState(v model.Variable) error {
	payload, err := json.Marshal(statePayload{Value: v.Value, Timestamp: v.Timestamp})
	if err != nil {
		return err
	}
	return s.publish(s.StateTopic(v.VariableKey), 0, false, payload)
}

func (s *service) registerSensor(key model.VariableKey) error {
	id := sensorID(key)
	if _, exists := s.configured.Load(id); exists {
		return nil
	}
	payload, err := json.Marshal(s.registerMsg(key))
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/sensor/%s/config", discoveryPrefix, id)
	if err := s.publish(topic, 1, true, payload); err != nil {
		return err
	}
	s.configured.Store(id, struct{}{})
	s.logger.Info("configured sensor", zap.String("sensor", id))
	return nil
}

func (s *service) registerMsg(key model.VariableKey) model.RegisterMessage {
	deviceID := slug.Make(key.Gateway + "_" + key.DeviceID)
	return model.RegisterMessage{
		Name:       key.Name,
		ID:         sensorID(key),
		StateTopic: s.StateTopic(key),
		Template:   "{{ value_json.value }}",
		Device: model.RegisterDevice{
			Name:         key.Gateway + " " + key.DeviceID,
			Identifiers:  []string{deviceID},
			Model:        key.Gateway,
			Manufacturer: "homehub",
		},
	}
}

func sensorID(key model.VariableKey) string {
	return slug.Make(fmt.Sprintf("%s_%s_%s", key.Gateway, key.DeviceID, key.Name))
}

// changed reports whether the value differs from the last one delivered.
func (s *service) changed(v model.Variable) (string, bool) {
	newValue := fmt.Sprint(v.Value)
	oldValue, exists := s.sensors.Load(v.VariableKey)
	if exists && oldValue.(string) == newValue {
		return newValue, false
	}
	return newValue, true
}
