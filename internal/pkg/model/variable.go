package model

import "time"

// VariableKey identifies a device variable.
type VariableKey struct {
	Gateway  string `json:"gateway"`
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
}

// Variable is the latest value reported for a key.
type Variable struct {
	VariableKey
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}
