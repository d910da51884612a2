package server

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/gateway"
	"github.com/anicoll/homehub/internal/pkg/model"
)

type deviceResponse struct {
	model.Device
	Actions []model.Action `json:"actions"`
}

type gatewayResponse struct {
	Name             string               `json:"name"`
	CanCreateDevices bool                 `json:"can_create_devices"`
	Properties       []model.PropertySpec `json:"properties,omitempty"`
	Devices          []deviceResponse     `json:"devices"`
}

type deviceRequest struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Icon       string            `json:"icon"`
	Properties map[string]string `json:"properties"`
}

func describeDevices(g gateway.Gateway) []deviceResponse {
	return lo.Map(g.Devices(), func(d model.Device, _ int) deviceResponse {
		actions := g.Actions(d)
		if actions == nil {
			actions = []model.Action{}
		}
		return deviceResponse{Device: d, Actions: actions}
	})
}

func (s *server) getGateways(w http.ResponseWriter, _ *http.Request) {
	out := lo.Map(s.gateways.All(), func(g gateway.Gateway, _ int) gatewayResponse {
		resp := gatewayResponse{
			Name:             g.Name(),
			CanCreateDevices: g.CanCreateDevices(),
			Devices:          describeDevices(g),
		}
		if d, ok := g.(gateway.Describer); ok {
			resp.Properties = d.DeviceProperties()
		}
		return resp
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *server) lookupGateway(w http.ResponseWriter, r *http.Request) (gateway.Gateway, bool) {
	name := chi.URLParam(r, "gateway")
	g, ok := s.gateways.Get(name)
	if !ok {
		handleError(w, http.StatusNotFound, fmt.Errorf("gateway %q not found", name))
	}
	return g, ok
}

func (s *server) getDevices(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookupGateway(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, describeDevices(g))
}

func (s *server) postDevice(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookupGateway(w, r)
	if !ok {
		return
	}
	req, err := unmarshalPayload[deviceRequest](r)
	if err != nil {
		handleError(w, http.StatusBadRequest, err)
		return
	}

	device, err := g.CreateEmptyDevice()
	if err != nil {
		handleError(w, deviceErrorStatus(err), err)
		return
	}
	device.ID, device.Name, device.Icon = req.ID, req.Name, req.Icon
	if device.Properties == nil {
		device.Properties = map[string]string{}
	}
	maps.Copy(device.Properties, req.Properties)

	if err := g.AddDevice(r.Context(), device); err != nil {
		handleError(w, deviceErrorStatus(err), err)
		return
	}
	s.logger.Info("device created", zap.String("gateway", g.Name()), zap.String("device", device.ID))
	writeJSON(w, http.StatusCreated, deviceResponse{Device: device, Actions: g.Actions(device)})
}

func (s *server) deleteDevice(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookupGateway(w, r)
	if !ok {
		return
	}
	remover, ok := g.(gateway.Remover)
	if !ok {
		handleError(w, http.StatusMethodNotAllowed, gateway.ErrUnsupported)
		return
	}
	if err := remover.RemoveDevice(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, deviceErrorStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func deviceErrorStatus(err error) int {
	switch {
	case errors.Is(err, gateway.ErrUnsupported):
		return http.StatusMethodNotAllowed
	case errors.Is(err, gateway.ErrInvalidDevice):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrDeviceExists):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrDeviceNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) getVariables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.variables.GetAll(chi.URLParam(r, "gateway"), chi.URLParam(r, "device")))
}

// getAllVariables returns the whole table ordered by key.
func (s *server) getAllVariables(w http.ResponseWriter, _ *http.Request) {
	vars := s.variables.Snapshot()
	slices.SortFunc(vars, func(a, b model.Variable) int {
		return cmp.Or(
			strings.Compare(a.Gateway, b.Gateway),
			strings.Compare(a.DeviceID, b.DeviceID),
			strings.Compare(a.Name, b.Name),
		)
	})
	writeJSON(w, http.StatusOK, vars)
}

// getHistory returns recorded values of one variable. from and to are
// RFC 3339 and must be given together.
func (s *server) getHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		handleError(w, http.StatusNotFound, errors.New("variable history is not recorded"))
		return
	}
	from, err := timeParam(r, "from")
	if err != nil {
		handleError(w, http.StatusBadRequest, err)
		return
	}
	to, err := timeParam(r, "to")
	if err != nil {
		handleError(w, http.StatusBadRequest, err)
		return
	}
	if (from == nil) != (to == nil) {
		handleError(w, http.StatusBadRequest, errors.New("from and to must be given together"))
		return
	}
	if from != nil && to.Before(*from) {
		handleError(w, http.StatusBadRequest, errors.New("to is before from"))
		return
	}

	key := model.VariableKey{
		Gateway:  chi.URLParam(r, "gateway"),
		DeviceID: chi.URLParam(r, "device"),
		Name:     chi.URLParam(r, "name"),
	}
	vars, err := s.history.GetHistory(r.Context(), key, from, to)
	if err != nil {
		s.logger.Error("failed to read history", zap.Error(err), zap.Any("key", key))
		handleError(w, http.StatusInternalServerError, err)
		return
	}
	if vars == nil {
		vars = []model.Variable{}
	}
	writeJSON(w, http.StatusOK, vars)
}

func timeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return &t, nil
}

// postCommand publishes the command and accepts it whether or not it routes.
func (s *server) postCommand(w http.ResponseWriter, r *http.Request) {
	req, err := unmarshalPayload[model.ExternalCommand](r)
	if err != nil {
		handleError(w, http.StatusBadRequest, err)
		return
	}
	if req.ActionID == "" {
		handleError(w, http.StatusBadRequest, errors.New("action_id is required"))
		return
	}
	s.bus.Publish(model.CommandMessage{ActionID: req.ActionID, Parameters: req.Parameters})
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) postScriptExecute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.scripts.Submit(context.WithoutCancel(r.Context()), id)
	w.WriteHeader(http.StatusAccepted)
}

type errorResponse struct {
	Error string `json:"error"`
}

func handleError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func unmarshalPayload[T any](r *http.Request) (*T, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
