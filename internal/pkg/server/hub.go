package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/bus"
	"github.com/anicoll/homehub/internal/pkg/model"
	"github.com/anicoll/homehub/pkg/sockets"
)

const pingIntervalSecs = 30

type event struct {
	Type string        `json:"type"`
	Data model.Message `json:"data"`
}

// hub streams bus events to every connected websocket client.
type hub struct {
	mu      sync.Mutex
	clients map[*sockets.Conn]struct{}
	subs    []*bus.Subscription
	logger  *zap.Logger
}

func newHub(b *bus.Bus) *hub {
	h := &hub{
		clients: make(map[*sockets.Conn]struct{}),
		logger:  zap.L().Named("ws"),
	}
	if b == nil {
		return h
	}
	h.subs = []*bus.Subscription{
		bus.Subscribe(b, "ws-variables", func(msg model.UpdateVariableMessage) error { return h.broadcast(msg) }),
		bus.Subscribe(b, "ws-notify", func(msg model.NotifyUserMessage) error { return h.broadcast(msg) }),
		bus.Subscribe(b, "ws-battery", func(msg model.LowBatteryMessage) error { return h.broadcast(msg) }),
	}
	return h
}

func (h *hub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := sockets.Upgrade(w, r,
		sockets.WithPingIntervalSec(pingIntervalSecs),
		sockets.WithCheckOrigin(func(*http.Request) bool { return true }),
		sockets.OnError(func(err error) {
			h.logger.Debug("client disconnected", zap.Error(err))
		}),
	)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-conn.Done()
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()
}

func (h *hub) broadcast(msg model.Message) error {
	body, err := json.Marshal(event{Type: msg.Kind().String(), Data: msg})
	if err != nil {
		return err
	}
	h.mu.Lock()
	clients := make([]*sockets.Conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.Send(sockets.Msg{Body: body}); err != nil {
			h.logger.Debug("dropping client", zap.Error(err))
		}
	}
	return nil
}

// clientCount returns the number of connected clients.
func (h *hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) close() {
	for _, sub := range h.subs {
		sub.Close()
	}
	for _, sub := range h.subs {
		<-sub.Done()
	}
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*sockets.Conn]struct{})
	h.mu.Unlock()
	for c := range clients {
		_ = c.Close()
	}
}
