package model

// Script is user-authored automation logic.
// Requires names the capabilities the script expects to find bound.
type Script struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Source   string   `json:"source" yaml:"source"`
	Enabled  bool     `json:"enabled" yaml:"enabled"`
	Requires []string `json:"requires,omitempty" yaml:"requires"`
}

// ScheduledScript runs ScriptID on every occurrence of Cron.
type ScheduledScript struct {
	ID       string `json:"id" yaml:"id"`
	ScriptID string `json:"script_id" yaml:"script"`
	Cron     string `json:"cron" yaml:"cron"`
}

// VariableTrigger runs ScriptID whenever the matching variable is updated.
type VariableTrigger struct {
	ScriptID string `json:"script_id" yaml:"script"`
	Gateway  string `json:"gateway" yaml:"gateway"`
	DeviceID string `json:"device_id" yaml:"device"`
	Variable string `json:"variable" yaml:"variable"`
}

// Key returns the variable key the trigger watches.
func (t VariableTrigger) Key() VariableKey {
	return VariableKey{Gateway: t.Gateway, DeviceID: t.DeviceID, Name: t.Variable}
}
