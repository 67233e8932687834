package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sla-monitor/internal/logging"
	"sla-monitor/internal/models"
)

const healthJSON = `{"overall_status":"healthy","total_metrics":5,"healthy_metrics":5,"warning_metrics":0,
	"critical_metrics":0,"uptime_percentage":99.9,"uptime_duration":"1d","metrics_summary":{"cpu_usage":10}}`

const slaUpdateFrame = `{"type":"sla_update","data":{"system_health":` + healthJSON + `,
	"alerts":[{"id":"a1","severity":"warning","triggered_at":"2026-03-01T10:00:00Z"}],
	"connection_info":{"active_connections":2,"update_interval":30}}}`

// wsServer is a scripted SLA push endpoint.
type wsServer struct {
	srv      *httptest.Server
	conns    chan *websocket.Conn
	inbound  chan models.Envelope
	accepted atomic.Int32
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{
		conns:   make(chan *websocket.Conn, 8),
		inbound: make(chan models.Envelope, 16),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.accepted.Add(1)
		s.conns <- conn
		for {
			var env models.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			s.inbound <- env
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("server did not accept a connection")
		return nil
	}
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c := New(Options{
		URL:              url,
		HandshakeTimeout: time.Second,
		ReconnectBase:    10 * time.Millisecond,
		ReconnectMax:     50 * time.Millisecond,
	}, logging.Discard())
	t.Cleanup(c.Disconnect)
	return c
}

type stateRecorder struct {
	mu     sync.Mutex
	states []models.ConnectionState
}

func (r *stateRecorder) record(s models.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) snapshot() []models.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ConnectionState(nil), r.states...)
}

func TestConnectDeliversEventsInOrder(t *testing.T) {
	srv := newWSServer(t)
	c := newTestClient(t, srv.url())

	var mu sync.Mutex
	var seen []string
	c.SubscribeEstablished(func(m models.ConnectionMeta) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, "established:"+m.ClientID)
	})
	c.SubscribeSnapshot(func(u models.SLAUpdate) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, "snapshot:"+string(u.SystemHealth.OverallStatus))
	})
	c.SubscribeUptime(func(u models.UptimeUpdate) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, "uptime")
	})
	c.SubscribeAlert(func(a models.Alert) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, "alert:"+a.ID)
	})

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, models.StateConnected, c.State())

	conn := srv.nextConn(t)
	frames := []string{
		`{"type":"connection_established","data":{"client_id":"c-1"}}`,
		slaUpdateFrame,
		`{"type":"uptime_update","data":{"uptime_percentage":99.95}}`,
		`{"type":"new_alert","data":{"id":"a2","severity":"critical","triggered_at":"2026-03-01T11:00:00Z"}}`,
	}
	for _, f := range frames {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(f)))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 4
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"established:c-1", "snapshot:healthy", "uptime", "alert:a2"}, seen)
	mu.Unlock()
}

func TestMalformedPayloadsAreDiscarded(t *testing.T) {
	srv := newWSServer(t)
	c := newTestClient(t, srv.url())

	var snapshots, alerts atomic.Int32
	c.SubscribeSnapshot(func(models.SLAUpdate) { snapshots.Add(1) })
	c.SubscribeAlert(func(models.Alert) { alerts.Add(1) })

	require.NoError(t, c.Connect(context.Background()))
	conn := srv.nextConn(t)

	bad := []string{
		`not json at all`,
		`{"type":"sla_update","data":{"system_health":{"total_metrics":5,"healthy_metrics":5,"warning_metrics":0,"critical_metrics":0,"uptime_percentage":99,"metrics_summary":{}}}}`,
		`{"type":"sla_update"}`,
		`{"type":"uptime_update","data":{"uptime_percentage":250}}`,
		`{"type":"new_alert","data":{"severity":"critical","triggered_at":"2026-03-01T11:00:00Z"}}`,
		`{"type":"mystery"}`,
	}
	for _, f := range bad {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(f)))
	}
	// A valid frame after the bad ones proves the loop survived them.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(slaUpdateFrame)))

	require.Eventually(t, func() bool { return snapshots.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), alerts.Load())
	assert.Equal(t, int64(len(bad)), c.Discarded())
	assert.Equal(t, models.StateConnected, c.State())
}

func TestRequestUpdate(t *testing.T) {
	srv := newWSServer(t)
	c := newTestClient(t, srv.url())

	assert.False(t, c.RequestUpdate(), "no connection yet")

	require.NoError(t, c.Connect(context.Background()))
	srv.nextConn(t)
	require.True(t, c.RequestUpdate())

	select {
	case env := <-srv.inbound:
		assert.Equal(t, models.MsgRequestUpdate, env.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw request_update")
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	srv := newWSServer(t)
	c := newTestClient(t, srv.url())

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))
	srv.nextConn(t)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), srv.accepted.Load())
}

func TestConnectFailureLeavesClientDisconnected(t *testing.T) {
	srv := newWSServer(t)
	url := srv.url()
	srv.srv.Close()

	c := newTestClient(t, url)
	rec := &stateRecorder{}
	c.SubscribeState(rec.record)

	err := c.Connect(context.Background())
	assert.Error(t, err)
	assert.Equal(t, models.StateDisconnected, c.State())

	c.Disconnect()
	states := rec.snapshot()
	require.GreaterOrEqual(t, len(states), 2)
	assert.Equal(t, models.StateConnecting, states[0])
	assert.Equal(t, models.StateDisconnected, states[1])
}

func TestReconnectsAfterUnexpectedDrop(t *testing.T) {
	srv := newWSServer(t)
	c := newTestClient(t, srv.url())
	rec := &stateRecorder{}
	c.SubscribeState(rec.record)

	require.NoError(t, c.Connect(context.Background()))
	first := srv.nextConn(t)
	first.Close()

	srv.nextConn(t)
	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 5
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.StateConnected, c.State())

	assert.Equal(t, []models.ConnectionState{
		models.StateConnecting, models.StateConnected,
		models.StateDisconnected,
		models.StateConnecting, models.StateConnected,
	}, rec.snapshot())
}

func TestDisconnectStopsReconnects(t *testing.T) {
	srv := newWSServer(t)
	c := newTestClient(t, srv.url())

	require.NoError(t, c.Connect(context.Background()))
	srv.nextConn(t)
	c.Disconnect()
	assert.Equal(t, models.StateDisconnected, c.State())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), srv.accepted.Load())
	assert.False(t, c.RequestUpdate())
}

func TestDisconnectWhenNeverConnected(t *testing.T) {
	c := New(Options{URL: "ws://127.0.0.1:1/ws"}, logging.Discard())
	rec := &stateRecorder{}
	c.SubscribeState(rec.record)

	assert.NotPanics(t, c.Disconnect)
	assert.NotPanics(t, c.Disconnect)
	assert.Empty(t, rec.snapshot())
}

func TestUnsubscribe(t *testing.T) {
	c := New(Options{URL: "ws://127.0.0.1:1/ws"}, logging.Discard())
	calls := 0
	unsub := c.SubscribeAlert(func(models.Alert) { calls++ })
	assert.Equal(t, 1, c.alerts.len())

	c.dispatch([]byte(`{"type":"new_alert","data":{"id":"a","severity":"warning","triggered_at":"2026-03-01T11:00:00Z"}}`))
	unsub()
	unsub()
	c.dispatch([]byte(`{"type":"new_alert","data":{"id":"b","severity":"warning","triggered_at":"2026-03-01T11:00:00Z"}}`))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, c.alerts.len())
}
