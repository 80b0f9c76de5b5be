package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestLogMonitorImplementsMonitor(t *testing.T) {
	var _ Monitor = (*LogMonitor)(nil)
	m := NewLogMonitor(nil)
	m.OnRunStarted(0)
	m.OnIteration(1, 2.5, 1.5, 0)
	m.OnRunEnded(10, "maximum iterations reached", 1.5)
}

func TestWebSocketMonitorBroadcastsToConnectedClients(t *testing.T) {
	m := NewWebSocketMonitor(nil)
	srv := httptest.NewServer(http.HandlerFunc(m.HandleUpgrade))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give HandleUpgrade's registration goroutine a moment to add the
	// client before the broadcast fires.
	time.Sleep(20 * time.Millisecond)

	m.OnIteration(3, 9.0, 4.0, 1)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}

	var got event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "iteration" || got.Iteration != 3 || got.BestRaw != 9.0 {
		t.Fatalf("got event %+v, want iteration event for iteration 3", got)
	}
}
