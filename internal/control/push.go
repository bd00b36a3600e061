package control

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/roomsync/internal/variables"
)

const (
	pushWriteWait  = 10 * time.Second
	pushPongWait   = 60 * time.Second
	pushPingPeriod = pushPongWait * 9 / 10
	pushBuffer     = 64
)

// Hub streams variable changes to websocket clients. The first frame carries
// the full snapshot.
type Hub struct {
	store    variables.Store
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewHub creates a hub over store.
func NewHub(store variables.Store, logger zerolog.Logger) *Hub {
	return &Hub{
		store: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns:  make(map[*websocket.Conn]struct{}),
		logger: logger.With().Str("component", "push").Logger(),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// ServeHTTP upgrades the request and streams until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	if !h.add(conn) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(pushWriteWait))
		conn.Close()
		return
	}
	defer h.remove(conn)

	updates, unsubscribe := h.store.Subscribe(pushBuffer)
	defer unsubscribe()

	h.logger.Info().Str("remote", r.RemoteAddr).Msg("push client connected")

	if err := h.write(conn, PushFrame{Snapshot: true, Variables: h.store.Snapshot()}); err != nil {
		return
	}

	done := make(chan struct{})
	go h.readPump(conn, done)

	ping := time.NewTicker(pushPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			h.logger.Info().Str("remote", r.RemoteAddr).Msg("push client disconnected")
			return
		case changed, ok := <-updates:
			if !ok {
				return
			}
			if err := h.write(conn, PushFrame{Variables: changed}); err != nil {
				h.logger.Debug().Err(err).Msg("push write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pushWriteWait)); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so control messages are processed.
func (h *Hub) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pushPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pushPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, frame PushFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(pushWriteWait))
	return conn.WriteJSON(frame)
}

func (h *Hub) add(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
	h.wg.Done()
}

// Close disconnects every client and waits for their handlers to return.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(pushWriteWait))
		c.Close()
	}
	h.wg.Wait()
}
