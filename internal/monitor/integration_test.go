package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sla-monitor/internal/cache"
	"sla-monitor/internal/logging"
	"sla-monitor/internal/models"
	"sla-monitor/internal/transport"
)

const goodUpdate = `{"type":"sla_update","data":{"system_health":{"overall_status":"healthy","total_metrics":2,
	"healthy_metrics":2,"warning_metrics":0,"critical_metrics":0,"uptime_percentage":99.9,"metrics_summary":{}},
	"alerts":[{"id":"older","severity":"warning","triggered_at":"2026-03-01T09:00:00Z"},
	{"id":"newer","severity":"critical","triggered_at":"2026-03-01T10:00:00Z"}]}}`

type pushServer struct {
	srv      *httptest.Server
	conns    chan *websocket.Conn
	accepted atomic.Int32
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	s := &pushServer{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.accepted.Add(1)
		s.conns <- conn
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *pushServer) url() string { return "ws" + strings.TrimPrefix(s.srv.URL, "http") }

func (s *pushServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no push connection")
		return nil
	}
}

func newLiveMonitor(t *testing.T, tc *transport.Client, owns bool) *Monitor {
	t.Helper()
	store := cache.NewMemoryStore(cache.Freshness{}, logging.Discard())
	m := New(tc, &fakePoller{}, store, Options{
		HandshakeTimeout: time.Hour,
		PollInterval:     time.Hour,
		OwnsTransport:    owns,
	}, logging.Discard())
	m.Start(context.Background())
	t.Cleanup(m.Stop)
	return m
}

func TestSharedTransportOpensOneConnection(t *testing.T) {
	srv := newPushServer(t)
	tc := transport.New(transport.Options{URL: srv.url(), ReconnectBase: time.Minute}, logging.Discard())
	t.Cleanup(tc.Disconnect)

	first := newLiveMonitor(t, tc, false)
	second := newLiveMonitor(t, tc, false)
	srv.nextConn(t)

	require.Eventually(t, func() bool {
		return first.View().IsConnected && second.View().IsConnected
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), srv.accepted.Load())

	first.Stop()
	assert.Equal(t, models.StateConnected, tc.State(), "a non-owner leaves the shared connection up")
}

func TestMalformedPushNeverReachesView(t *testing.T) {
	srv := newPushServer(t)
	tc := transport.New(transport.Options{URL: srv.url(), ReconnectBase: time.Minute}, logging.Discard())
	m := newLiveMonitor(t, tc, true)
	conn := srv.nextConn(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"sla_update","data":{"system_health":{"total_metrics":1}}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"new_alert","data":{"id":""}}`)))
	require.Eventually(t, func() bool { return tc.Discarded() == 2 }, 2*time.Second, 10*time.Millisecond)

	v := m.View()
	assert.Nil(t, v.SystemHealth)
	assert.Empty(t, v.Alerts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(goodUpdate)))
	require.Eventually(t, func() bool { return m.View().SystemHealth != nil }, 2*time.Second, 10*time.Millisecond)
	v = m.View()
	require.Len(t, v.Alerts, 2)
	assert.Equal(t, "newer", v.Alerts[0].ID)
	assert.False(t, v.IsLoading)
}

func TestServerDropKeepsLastView(t *testing.T) {
	srv := newPushServer(t)
	tc := transport.New(transport.Options{URL: srv.url(), ReconnectBase: time.Minute}, logging.Discard())
	m := newLiveMonitor(t, tc, true)
	conn := srv.nextConn(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(goodUpdate)))
	require.Eventually(t, func() bool { return m.View().SystemHealth != nil }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return !m.View().IsConnected }, 2*time.Second, 10*time.Millisecond)

	v := m.View()
	assert.Len(t, v.Alerts, 2)
	assert.False(t, v.IsLoading)
	assert.Equal(t, models.StateDisconnected, v.ConnectionInfo.State)
}
