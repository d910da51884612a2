package model

import (
	"errors"
	"fmt"
	"maps"
	"strings"
)

var ErrInvalidConfiguration = errors.New("device: invalid configuration")

type BatteryStatus string

func (b BatteryStatus) String() string {
	return string(b)
}

const (
	BatteryUnknown BatteryStatus = "unknown"
	BatteryOk      BatteryStatus = "ok"
	BatteryLow     BatteryStatus = "low"
)

// Device is an addressable unit owned by exactly one gateway.
// Properties holds the gateway-declared configuration (api keys, coordinates, ...).
type Device struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Icon       string            `json:"icon"`
	Properties map[string]string `json:"properties,omitempty"`
	Battery    BatteryStatus     `json:"battery"`
}

// PropertySpec declares one configuration property of a gateway's devices.
type PropertySpec struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// Clone returns a copy that shares no maps with d.
func (d Device) Clone() Device {
	cpy := d
	cpy.Properties = maps.Clone(d.Properties)
	return cpy
}

// Property returns the named configuration property.
func (d Device) Property(name string) string {
	return d.Properties[name]
}

// Validate checks the device against the declared properties of its gateway.
func (d Device) Validate(specs []PropertySpec) error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidConfiguration)
	}
	if strings.Contains(d.ID, ".") {
		return fmt.Errorf("%w: id %q contains '.'", ErrInvalidConfiguration, d.ID)
	}
	for _, spec := range specs {
		if spec.Required && strings.TrimSpace(d.Properties[spec.Name]) == "" {
			return fmt.Errorf("%w: missing %q", ErrInvalidConfiguration, spec.Name)
		}
	}
	return nil
}
