package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event types sent to watchers.
const (
	EventCellChanged   = "cell_changed"
	EventLevelCreated  = "level_created"
	EventLevelSelected = "level_selected"
)

const writeWait = 10 * time.Second

// Event is one level change pushed to watchers. Renderers refetch the
// layout when they see one for the level they display.
type Event struct {
	Type  string      `json:"type"`
	Level string      `json:"level"`
	Cell  *CellChange `json:"cell,omitempty"`
}

// CellChange is the new height of one cell.
type CellChange struct {
	Row    int    `json:"row"`
	Col    int    `json:"col"`
	Height uint32 `json:"height"`
}

// Hub fans events out to websocket watchers.
type Hub struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	watchers map[*watcher]struct{}
}

type watcher struct {
	ws   *websocket.Conn
	send chan []byte
}

// NewHub creates a hub that accepts upgrades from origins checkOrigin allows.
func NewHub(checkOrigin func(origin string) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return checkOrigin(r.Header.Get("Origin"))
			},
		},
		watchers: make(map[*watcher]struct{}),
	}
}

// ServeHTTP upgrades the request and streams events until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	wt := &watcher{ws: ws, send: make(chan []byte, 64)}
	h.mu.Lock()
	h.watchers[wt] = struct{}{}
	count := len(h.watchers)
	h.mu.Unlock()
	slog.Debug("watcher connected", "remote", r.RemoteAddr, "watchers", count)

	go wt.writePump()
	wt.readPump()
	h.remove(wt)
}

// Broadcast queues v for every watcher. Watchers that cannot keep up are
// disconnected.
func (h *Hub) Broadcast(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode event", "error", err)
		return
	}

	h.mu.Lock()
	var slow []*watcher
	for wt := range h.watchers {
		select {
		case wt.send <- msg:
		default:
			slow = append(slow, wt)
		}
	}
	h.mu.Unlock()

	for _, wt := range slow {
		slog.Warn("dropping slow watcher")
		h.remove(wt)
	}
}

// Count returns the number of connected watchers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

// Close disconnects every watcher.
func (h *Hub) Close() {
	h.mu.Lock()
	all := make([]*watcher, 0, len(h.watchers))
	for wt := range h.watchers {
		all = append(all, wt)
	}
	h.mu.Unlock()

	for _, wt := range all {
		h.remove(wt)
	}
}

// remove closes wt's send channel exactly once; the write pump then sends a
// close frame and shuts the socket.
func (h *Hub) remove(wt *watcher) {
	h.mu.Lock()
	_, ok := h.watchers[wt]
	delete(h.watchers, wt)
	h.mu.Unlock()
	if ok {
		close(wt.send)
	}
}

// readPump discards inbound messages; it exists to notice the peer closing.
func (wt *watcher) readPump() {
	defer wt.ws.Close()
	for {
		if _, _, err := wt.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("watcher read error", "error", err)
			}
			return
		}
	}
}

func (wt *watcher) writePump() {
	defer wt.ws.Close()
	for msg := range wt.send {
		wt.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := wt.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	wt.ws.SetWriteDeadline(time.Now().Add(writeWait))
	wt.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
