package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tibiaops/opsdash/pkg/types"
	"github.com/tibiaops/opsdash/server/internal/dashboard"
	wsHub "github.com/tibiaops/opsdash/server/internal/ws"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

// views is a settable ViewSource.
type views struct {
	mu sync.Mutex
	v  dashboard.View
}

func (s *views) View() dashboard.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

func (s *views) set(v dashboard.View) {
	s.mu.Lock()
	s.v = v
	s.mu.Unlock()
}

func viewWith(origin types.Origin, deployments string) dashboard.View {
	return dashboard.View{
		Cards:  []dashboard.Card{{ID: dashboard.CardTotalDeployments, Label: "Total Deployments", Value: deployments}},
		Origin: origin,
	}
}

// startHub starts a test HTTP server with the hub as its handler and the
// hub's Run loop on a cancellable context.
func startHub(t *testing.T, src wsHub.ViewSource, interval time.Duration) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(src, interval)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads and decodes one message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) wsHub.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m wsHub.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v (raw: %s)", err, raw)
	}
	return m
}

func deployments(m wsHub.Message) string {
	c, _ := m.Data.Card(dashboard.CardTotalDeployments)
	return c.Value
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateView(t *testing.T) {
	src := &views{v: viewWith(types.OriginRemote, "127")}
	wsURL, _, _ := startHub(t, src, time.Hour)

	m := readMessage(t, dial(t, wsURL))
	if m.Event != "view" {
		t.Errorf("event: got %q, want view", m.Event)
	}
	if m.Data.Origin != types.OriginRemote {
		t.Errorf("origin: got %q, want remote", m.Data.Origin)
	}
	if got := deployments(m); got != "127" {
		t.Errorf("total-deployments: got %q, want 127", got)
	}
}

func TestHub_NotifyPushesNewView(t *testing.T) {
	src := &views{v: viewWith(types.OriginSample, "1")}
	wsURL, hub, _ := startHub(t, src, time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn)

	src.set(viewWith(types.OriginRemote, "128"))
	hub.Notify(nil, types.OriginRemote)

	m := readMessage(t, conn)
	if got := deployments(m); got != "128" {
		t.Errorf("after notify: got %q, want 128", got)
	}
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	src := &views{v: viewWith(types.OriginSample, "1")}
	wsURL, _, _ := startHub(t, src, testInterval)

	conn := dial(t, wsURL)
	readMessage(t, conn)

	src.set(viewWith(types.OriginRemote, "42"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := deployments(readMessage(t, conn)); got == "42" {
			return
		}
	}
	t.Error("tick broadcast never carried the updated view")
}

func TestHub_NotifyWithoutClients(t *testing.T) {
	hub := wsHub.New(&views{}, time.Hour)
	hub.Notify(nil, types.OriginSample)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count: got %d, want 0", n)
	}
}

func TestHub_CountClients_MultipleClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, &views{}, time.Hour)

	for i := 0; i < 3; i++ {
		readMessage(t, dial(t, wsURL))
	}

	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}
}

func TestHub_CountClients_DecreasesOnDisconnect(t *testing.T) {
	wsURL, hub, _ := startHub(t, &views{}, time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	if n := hub.Count(); n != 1 {
		t.Errorf("Count before disconnect: got %d, want 1", n)
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond)

	if n := hub.Count(); n != 0 {
		t.Errorf("Count after disconnect: got %d, want 0", n)
	}
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, &views{}, time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	cancel()

	time.Sleep(50 * time.Millisecond)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after cancel: got %d, want 0", n)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := wsHub.New(&views{}, testInterval)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

// gatedViews holds the first View call after arm until release is closed,
// having already read the view it will return.
type gatedViews struct {
	views
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedViews) View() dashboard.View {
	v := g.views.View()
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return v
}

func TestHub_OlderViewNeverFollowsNewer(t *testing.T) {
	src := &gatedViews{entered: make(chan struct{}), release: make(chan struct{})}
	src.set(viewWith(types.OriginSample, "1"))
	wsURL, hub, _ := startHub(t, src, time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	// The first push reads view 1 and stalls before queueing it.
	src.armed.Store(true)
	go hub.Notify(nil, types.OriginSample)
	<-src.entered

	// The second push reads view 2 while the first is still in flight.
	src.set(viewWith(types.OriginRemote, "2"))
	go hub.Notify(nil, types.OriginRemote)
	time.Sleep(50 * time.Millisecond)
	close(src.release)

	var last string
	for i := 0; i < 2; i++ {
		last = deployments(readMessage(t, conn))
	}
	if last != "2" {
		t.Errorf("last pushed view: got %q, want 2", last)
	}
}
