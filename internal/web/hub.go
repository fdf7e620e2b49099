package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/spectrum-manager/internal/logging"
	"github.com/signalsfoundry/spectrum-manager/internal/observability"
	"github.com/signalsfoundry/spectrum-manager/kb"
	"github.com/signalsfoundry/spectrum-manager/model"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	clientQueueLen = 16
)

// StreamMessage is one frame pushed to WebSocket clients.
type StreamMessage struct {
	Type     string        `json:"type"`
	Cycle    *model.Cycle  `json:"cycle,omitempty"`
	Settings *SettingsView `json:"settings,omitempty"`
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans knowledge base events out to connected WebSocket clients. Slow
// clients lose frames rather than holding up the cycle loop.
type Hub struct {
	store    *kb.KnowledgeBase
	log      logging.Logger
	metrics  *observability.CycleCollector
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*streamClient]struct{}

	unsubscribe func()
}

// NewHub subscribes a hub to store.
func NewHub(store *kb.KnowledgeBase, log logging.Logger, metrics *observability.CycleCollector) *Hub {
	if log == nil {
		log = logging.Noop()
	}
	h := &Hub{
		store:   store,
		log:     log,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
			EnableCompression: true,
			CheckOrigin:       func(*http.Request) bool { return true },
		},
		clients: make(map[*streamClient]struct{}),
	}
	h.unsubscribe = store.Subscribe(h.onEvent)
	return h
}

// Close detaches the hub from the store and disconnects every client.
func (h *Hub) Close() {
	h.unsubscribe()
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.LoggerFromContext(ctx, h.log)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn(ctx, "websocket upgrade failed", logging.Err(err))
		return
	}

	c := &streamClient{conn: conn, send: make(chan []byte, clientQueueLen)}
	h.enqueue(c, settingsMessage(h.store.Settings()))
	if latest, err := h.store.LatestCycle(); err == nil {
		h.enqueue(c, cycleMessage(latest))
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.AddStreamClients(1)
	log.Info(ctx, "stream client connected", logging.Int("clients", h.Clients()))

	go h.writePump(c)
	h.readPump(ctx, c)

	h.remove(c)
	h.metrics.AddStreamClients(-1)
	log.Info(context.Background(), "stream client disconnected", logging.Int("clients", h.Clients()))
}

func (h *Hub) onEvent(ev kb.Event) {
	var frame []byte
	switch ev.Type {
	case kb.EventCycleCompleted:
		frame = cycleMessage(ev.Cycle)
	case kb.EventSettingsUpdated:
		frame = settingsMessage(ev.Settings)
	default:
		return
	}
	if frame == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		h.enqueue(c, frame)
	}
}

func (h *Hub) enqueue(c *streamClient, frame []byte) {
	if frame == nil {
		return
	}
	select {
	case c.send <- frame:
	default:
		h.log.Debug(context.Background(), "stream client queue full, frame dropped")
	}
}

func (h *Hub) remove(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump discards client input; it exists to notice disconnects and pongs.
func (h *Hub) readPump(ctx context.Context, c *streamClient) {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.LoggerFromContext(ctx, h.log).Debug(ctx, "stream read error", logging.Err(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func cycleMessage(c model.Cycle) []byte {
	return marshalFrame(StreamMessage{Type: kb.EventCycleCompleted.String(), Cycle: &c})
}

func settingsMessage(s model.Settings) []byte {
	view := newSettingsView(s)
	return marshalFrame(StreamMessage{Type: kb.EventSettingsUpdated.String(), Settings: &view})
}

func marshalFrame(m StreamMessage) []byte {
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}
