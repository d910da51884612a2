package model

import "strings"

// Action describes an operation a gateway can run against its devices.
// Fields lists the parameter names an invoker must supply.
type Action struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields,omitempty"`
}

func NewAction(name string, fields ...string) Action {
	return Action{Name: name, Fields: fields}
}

// HasField reports whether the action declares the named field.
func (a Action) HasField(name string) bool {
	for _, f := range a.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// ActionID addresses an action as Gateway.DeviceID.ActionName.
type ActionID struct {
	Gateway string
	Device  string
	Action  string
}

// ParseActionID splits s into its three segments. It returns false unless
// s has exactly three dot-separated segments.
func ParseActionID(s string) (ActionID, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return ActionID{}, false
	}
	return ActionID{Gateway: parts[0], Device: parts[1], Action: parts[2]}, true
}

func (id ActionID) String() string {
	return id.Gateway + "." + id.Device + "." + id.Action
}
