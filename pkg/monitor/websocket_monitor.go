package monitor

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/TheEntropyCollective/evogeneva/pkg/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// event is the JSON frame pushed to connected dashboard clients.
type event struct {
	Type            string  `json:"type"`
	Iteration       uint64  `json:"iteration"`
	BestRaw         float64 `json:"bestRaw,omitempty"`
	BestTransformed float64 `json:"bestTransformed,omitempty"`
	Stalls          uint64  `json:"stalls,omitempty"`
	Reason          string  `json:"reason,omitempty"`
}

// WebSocketMonitor fans out lifecycle events to any number of connected
// websocket clients, grounded on gorilla/websocket's standard
// upgrade-then-write pattern.
type WebSocketMonitor struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	logger  *logging.Logger
}

// NewWebSocketMonitor constructs an empty fan-out monitor.
func NewWebSocketMonitor(logger *logging.Logger) *WebSocketMonitor {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &WebSocketMonitor{
		clients: make(map[*websocket.Conn]struct{}),
		logger:  logger.WithComponent("websocket_monitor"),
	}
}

// HandleUpgrade is an http.HandlerFunc that upgrades a connection and
// registers it as a subscriber until it disconnects.
func (m *WebSocketMonitor) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	m.mu.Lock()
	m.clients[conn] = struct{}{}
	m.mu.Unlock()

	go func() {
		defer m.removeClient(conn)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
}

func (m *WebSocketMonitor) removeClient(conn *websocket.Conn) {
	m.mu.Lock()
	delete(m.clients, conn)
	m.mu.Unlock()
	conn.Close()
}

func (m *WebSocketMonitor) broadcast(e event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			go m.removeClient(conn)
		}
	}
}

func (m *WebSocketMonitor) OnRunStarted(iteration uint64) {
	m.broadcast(event{Type: "run_started", Iteration: iteration})
}

func (m *WebSocketMonitor) OnIteration(iteration uint64, bestRaw, bestTransformed float64, stalls uint64) {
	m.broadcast(event{
		Type: "iteration", Iteration: iteration,
		BestRaw: bestRaw, BestTransformed: bestTransformed, Stalls: stalls,
	})
}

func (m *WebSocketMonitor) OnRunEnded(iteration uint64, reason string, bestRaw float64) {
	m.broadcast(event{Type: "run_ended", Iteration: iteration, Reason: reason, BestRaw: bestRaw})
}
