package model

// RegisterDevice is the device block of a Home Assistant discovery message.
type RegisterDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// RegisterMessage is published to the Home Assistant discovery topic.
type RegisterMessage struct {
	Tilda      string         `json:"~"`
	Name       string         `json:"name"`
	ID         string         `json:"unique_id"`
	StateTopic string         `json:"state_topic"`
	Template   string         `json:"value_template,omitempty"`
	Device     RegisterDevice `json:"device"`
}

// ExternalCommand is the payload accepted on the command topic.
type ExternalCommand struct {
	ActionID   string            `json:"action_id"`
	Parameters map[string]string `json:"parameters"`
}
