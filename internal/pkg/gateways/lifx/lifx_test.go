package lifx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/homehub/internal/pkg/config"
	"github.com/anicoll/homehub/internal/pkg/gateway"
	"github.com/anicoll/homehub/internal/pkg/model"
	"github.com/anicoll/homehub/internal/pkg/script"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []model.Message
}

func (p *recordingPublisher) Publish(msg model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func (p *recordingPublisher) variables() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := map[string]any{}
	for _, m := range p.msgs {
		if v, ok := m.(model.UpdateVariableMessage); ok {
			out[v.DeviceID+"/"+v.Name] = v.Value
		}
	}
	return out
}

type fakeLifx struct {
	mu     sync.Mutex
	states map[string]map[string]any
}

func (f *fakeLifx) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /lights/all", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[
			{"id":"d073d5","label":"Desk","connected":true,"power":"on","brightness":0.456,
			 "color":{"hue":120,"saturation":1,"kelvin":3500},"group":{"name":"Office"}},
			{"id":"offline","label":"Porch","connected":false,"power":"off"}
		]`))
	})
	mux.HandleFunc("PUT /lights/{selector}/state", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.states[r.PathValue("selector")] = body
		f.mu.Unlock()
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = w.Write([]byte(`{"results":[]}`))
	})
	return mux
}

func (f *fakeLifx) state(selector string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[selector]
}

func newGateway(t *testing.T) (*Gateway, *recordingPublisher, *fakeLifx) {
	t.Helper()
	fake := &fakeLifx{states: map[string]map[string]any{}}
	ts := httptest.NewServer(fake.handler(t))
	t.Cleanup(ts.Close)
	pub := &recordingPublisher{}
	return New(pub, config.Settings{"url": ts.URL, "token": "tok"}), pub, fake
}

func TestGateway_Poll(t *testing.T) {
	g, pub, _ := newGateway(t)

	require.NoError(t, g.Poll(context.Background()))

	devices := g.Devices()
	require.Len(t, devices, 1)
	assert.Equal(t, model.Device{ID: "d073d5", Name: "Desk", Icon: icon, Battery: model.BatteryUnknown}, devices[0])

	vars := pub.variables()
	assert.Equal(t, 0.46, vars["d073d5/Brightness"])
	assert.Equal(t, true, vars["d073d5/IsOn"])
	assert.Equal(t, "Desk", vars["d073d5/Name"])
	assert.Equal(t, "Office", vars["d073d5/GroupName"])
	assert.Equal(t, "#00ff00", vars["d073d5/Color"])
}

func TestGateway_ExecuteAction(t *testing.T) {
	device := model.Device{ID: "d073d5"}
	tests := map[string]struct {
		action    string
		values    map[string]string
		wantState map[string]any
		wantVars  map[string]any
		wantErr   error
	}{
		"switch on": {
			action:    ActionSwitchOn,
			values:    map[string]string{FieldTransition: "3"},
			wantState: map[string]any{"power": "on", "duration": 3.0},
			wantVars:  map[string]any{"d073d5/IsOn": true},
		},
		"switch off without transition": {
			action:    ActionSwitchOff,
			wantState: map[string]any{"power": "off", "duration": 0.0},
			wantVars:  map[string]any{"d073d5/IsOn": false},
		},
		"change color": {
			action:    ActionChangeColor,
			values:    map[string]string{FieldColor: "#ff0000"},
			wantState: map[string]any{"power": "on", "color": "#ff0000", "duration": 0.0},
			wantVars:  map[string]any{"d073d5/IsOn": true, "d073d5/Color": "#ff0000"},
		},
		"change brightness clamps": {
			action:    ActionChangeBrightness,
			values:    map[string]string{FieldBrightness: "1.7", FieldTransition: "x"},
			wantState: map[string]any{"power": "on", "brightness": 1.0, "duration": 0.0},
			wantVars:  map[string]any{"d073d5/IsOn": true, "d073d5/Brightness": 1.0},
		},
		"unknown action": {
			action:  "Blink",
			wantErr: gateway.ErrUnsupported,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			g, pub, fake := newGateway(t)
			err := g.ExecuteAction(context.Background(), device, model.NewAction(tt.action), tt.values)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, fake.state("id:d073d5"))
			assert.Equal(t, tt.wantVars, pub.variables())
		})
	}
}

func TestGateway_ChangeColorRequiresColor(t *testing.T) {
	g, _, fake := newGateway(t)
	err := g.ExecuteAction(context.Background(), model.Device{ID: "d073d5"}, model.NewAction(ActionChangeColor), nil)
	assert.Error(t, err)
	assert.Nil(t, fake.state("id:d073d5"))
}

func TestGateway_NotConfigured(t *testing.T) {
	pub := &recordingPublisher{}
	g := New(pub, config.Settings{})

	require.NoError(t, g.Start(context.Background()))
	require.Len(t, pub.msgs, 1)
	assert.IsType(t, model.NotifyUserMessage{}, pub.msgs[0])

	err := g.ExecuteAction(context.Background(), model.Device{ID: "x"}, model.NewAction(ActionSwitchOn), nil)
	assert.ErrorIs(t, err, errNotConfigured)
}

func TestGateway_Actions(t *testing.T) {
	g := New(&recordingPublisher{}, config.Settings{})
	names := []string{}
	for _, a := range g.Actions(model.Device{}) {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{ActionSwitchOn, ActionSwitchOff, ActionChangeColor, ActionChangeBrightness}, names)
	assert.False(t, g.CanCreateDevices())
}

func TestGateway_ScriptBindings(t *testing.T) {
	g, _, fake := newGateway(t)
	require.NoError(t, g.Poll(context.Background()))

	bindings, err := script.NewBindings(g)
	require.NoError(t, err)

	s := model.Script{ID: "evening", Enabled: true, Source: `
		local bulb = lifx("d073d5")
		bulb:brightness(0.25, 2)
	`}
	require.NoError(t, script.NewLuaHost().Run(context.Background(), s, bindings))
	assert.Equal(t, map[string]any{"power": "on", "brightness": 0.25, "duration": 2.0}, fake.state("id:d073d5"))

	s.Source = `lifx("nope"):on()`
	assert.Error(t, script.NewLuaHost().Run(context.Background(), s, bindings))
}
