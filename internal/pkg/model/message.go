package model

// Kind discriminates message types on the bus.
type Kind string

func (k Kind) String() string {
	return string(k)
}

const (
	KindCommand        Kind = "CommandMessage"
	KindUpdateVariable Kind = "UpdateVariableMessage"
	KindNotifyUser     Kind = "NotifyUserMessage"
	KindLowBattery     Kind = "LowBatteryMessage"
)

// Message is an immutable payload carried by the bus.
type Message interface {
	Kind() Kind
}

// CommandMessage asks the gateway addressed by ActionID to run an action.
type CommandMessage struct {
	ActionID   string            `json:"action_id"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

func (CommandMessage) Kind() Kind { return KindCommand }

// UpdateVariableMessage reports a new value for a device variable.
type UpdateVariableMessage struct {
	Gateway  string `json:"gateway"`
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Value    any    `json:"value"`
}

func (UpdateVariableMessage) Kind() Kind { return KindUpdateVariable }

// Key returns the variable key the message updates.
func (m UpdateVariableMessage) Key() VariableKey {
	return VariableKey{Gateway: m.Gateway, DeviceID: m.DeviceID, Name: m.Name}
}

type NotifyUserMessage struct {
	Text string `json:"text"`
}

func (NotifyUserMessage) Kind() Kind { return KindNotifyUser }

type LowBatteryMessage struct {
	Gateway string `json:"gateway"`
	Device  Device `json:"device"`
}

func (LowBatteryMessage) Kind() Kind { return KindLowBattery }
