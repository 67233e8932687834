// Package monitor reconciles the cached view, the push transport and the
// polling fallback into the single SLA view model consumed by views.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"sla-monitor/internal/cache"
	"sla-monitor/internal/logging"
	"sla-monitor/internal/models"
	"sla-monitor/internal/polling"
)

// ErrAlertNotFound is returned when acknowledging an unknown alert id.
var ErrAlertNotFound = errors.New("alert not found")

// Transport is the push channel as seen by the monitor.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	RequestUpdate() bool
	State() models.ConnectionState
	SubscribeSnapshot(fn func(models.SLAUpdate)) func()
	SubscribeUptime(fn func(models.UptimeUpdate)) func()
	SubscribeAlert(fn func(models.Alert)) func()
	SubscribeEstablished(fn func(models.ConnectionMeta)) func()
	SubscribeState(fn func(models.ConnectionState)) func()
}

// Poller is the request/response fallback.
type Poller interface {
	FetchSnapshot(ctx context.Context) (models.PollResult, error)
	AcknowledgeAlert(ctx context.Context, id string) (models.AckResult, error)
}

// AlertSink is told about alerts arriving on the push channel and about
// confirmed acknowledgements.
type AlertSink interface {
	AlertRaised(a models.Alert)
	AlertAcknowledged(a models.Alert)
}

type Options struct {
	// Actor recorded on optimistic acknowledgements.
	CurrentUser string
	// How long cold start trusts the push handshake before polling on a
	// schedule.
	HandshakeTimeout time.Duration
	PollInterval     time.Duration
	// When set, Stop also disconnects the transport. Leave unset when the
	// transport is shared with other monitors.
	OwnsTransport bool
	Sink          AlertSink
	Now           func() time.Time
}

// View is the state exposed to consumers. It is a copy; mutating it has no
// effect on the monitor.
type View struct {
	SystemHealth   *models.SystemHealth  `json:"system_health"`
	Alerts         []models.Alert        `json:"alerts"`
	ConnectionInfo models.ConnectionInfo `json:"connection_info"`
	IsConnected    bool                  `json:"is_connected"`
	IsLoading      bool                  `json:"is_loading"`
	Error          string                `json:"error,omitempty"`
	LastUpdated    *time.Time            `json:"last_updated,omitempty"`
}

// Monitor is the orchestrator for one consumer. State transitions are
// serialized under mu; the cache is written only by persist.
type Monitor struct {
	id        string
	transport Transport
	poller    Poller
	store     cache.Store
	logger    *logging.Logger
	opts      Options
	now       func() time.Time

	mu          sync.Mutex
	health      *models.SystemHealth
	alerts      []models.Alert
	conn        models.ConnectionInfo
	connected   bool
	loading     bool
	errMsg      string
	lastUpdated *time.Time
	// Time of the newest data held, from the cache or a live update.
	dataAt         time.Time
	polling        bool
	dropped        bool
	fallbackActive bool
	started        bool
	stopped        bool

	persistMu sync.Mutex
	publishMu sync.Mutex
	listeners map[int]func(View)
	nextID    int

	ctx       context.Context
	cancel    context.CancelFunc
	unsubs    []func()
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func New(t Transport, p Poller, store cache.Store, opts Options, logger *logging.Logger) *Monitor {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 5 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.CurrentUser == "" {
		opts.CurrentUser = "unknown"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	id := uuid.NewString()
	return &Monitor{
		id:        id,
		transport: t,
		poller:    p,
		store:     store,
		logger:    logger.Component("monitor").With("monitor_id", id[:8]),
		opts:      opts,
		now:       now,
		loading:   true,
		conn:      models.ConnectionInfo{State: models.StateDisconnected},
		listeners: make(map[int]func(View)),
		ctx:       context.Background(),
	}
}

// ID identifies this monitor instance in logs.
func (m *Monitor) ID() string { return m.id }

// Start hydrates from the cache, subscribes to the transport, opens the push
// connection once and arms the polling fallback.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.ctx, m.cancel = context.WithCancel(ctx)
		m.hydrate()

		m.unsubs = append(m.unsubs,
			m.transport.SubscribeState(m.onState),
			m.transport.SubscribeSnapshot(m.onSnapshot),
			m.transport.SubscribeUptime(m.onUptime),
			m.transport.SubscribeAlert(m.onAlert),
			m.transport.SubscribeEstablished(m.onEstablished),
		)

		state := m.transport.State()
		m.mu.Lock()
		m.started = true
		m.conn.State = state
		m.connected = state == models.StateConnected
		needPoll := !m.connected && !m.freshLocked()
		m.mu.Unlock()

		if state == models.StateConnected {
			// Shared transport that is already up: ask for a snapshot now.
			m.transport.RequestUpdate()
		} else {
			m.spawn(func() {
				if err := m.transport.Connect(m.ctx); err != nil {
					m.logger.Debugf("Initial push connect failed, relying on fallback: %v", err)
				}
			})
		}
		if needPoll {
			m.spawn(func() { _ = m.poll(m.ctx, "cold start", false) })
		}
		m.spawn(m.fallbackLoop)
		m.publish()
	})
}

// Stop unsubscribes from the transport and cancels timers and in-flight
// work. The transport is disconnected only when the monitor owns it.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()

		for _, unsub := range m.unsubs {
			unsub()
		}
		if m.cancel != nil {
			m.cancel()
		}
		m.wg.Wait()
		if m.opts.OwnsTransport {
			m.transport.Disconnect()
		}
		m.logger.Infof("Monitor stopped")
	})
}

// spawn runs fn on a tracked goroutine unless the monitor is stopping.
func (m *Monitor) spawn(fn func()) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()
	go func() {
		defer m.wg.Done()
		fn()
	}()
}

func (m *Monitor) hydrate() {
	entry := m.store.Read(m.ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if entry == nil {
		m.logger.Infof("Cold start without cache")
		m.loading = true
		return
	}
	m.health = entry.SystemHealth
	m.alerts = models.SortAlerts(models.CloneAlerts(entry.Alerts))
	m.conn = entry.ConnectionInfo
	m.conn.State = models.StateDisconnected
	if !entry.LastUpdatedAt.IsZero() {
		t := entry.LastUpdatedAt
		m.lastUpdated = &t
	}
	m.dataAt = entry.CacheTimestamp
	fresh := m.store.IsFresh(entry)
	m.loading = !fresh
	m.logger.Infof("Hydrated from cache (fresh=%t, cached_at=%s)", fresh, entry.CacheTimestamp.Format(time.RFC3339))
}

func (m *Monitor) freshLocked() bool {
	if m.dataAt.IsZero() {
		return false
	}
	return m.store.IsFresh(&models.CacheEntry{CacheTimestamp: m.dataAt})
}

// fallbackLoop waits out the handshake window, then polls on a schedule for
// as long as the push channel is down and the data is not fresh.
func (m *Monitor) fallbackLoop() {
	timer := time.NewTimer(m.opts.HandshakeTimeout)
	defer timer.Stop()
	select {
	case <-m.ctx.Done():
		return
	case <-timer.C:
	}

	m.mu.Lock()
	m.fallbackActive = true
	connected := m.connected
	m.mu.Unlock()
	if !connected {
		m.logger.Infof("Push channel not up after %v, polling fallback active", m.opts.HandshakeTimeout)
		_ = m.poll(m.ctx, "handshake timeout", false)
	}

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			_ = m.poll(m.ctx, "fallback interval", false)
		}
	}
}

func (m *Monitor) onState(s models.ConnectionState) {
	m.mu.Lock()
	prev := m.conn.State
	m.conn.State = s
	needPoll := false
	switch s {
	case models.StateConnecting:
		if m.dropped {
			m.conn.ReconnectAttempts++
		}
	case models.StateConnected:
		m.connected = true
		m.dropped = false
		m.errMsg = ""
		m.conn.ReconnectAttempts = 0
		t := m.now()
		m.conn.LastConnectedAt = &t
	case models.StateDisconnected:
		m.connected = false
		m.dropped = true
		// Keep showing what we have; only refill when it has gone stale.
		// Failed handshakes inside the cold start window are left to the
		// cold start poll.
		needPoll = !m.freshLocked() && (prev == models.StateConnected || m.fallbackActive)
	}
	m.mu.Unlock()

	m.logger.Debugf("Connection state %s -> %s", prev, s)
	if s == models.StateConnected && !m.transport.RequestUpdate() {
		m.logger.Debugf("Request update after connect was not sent")
	}
	if needPoll {
		m.spawn(func() { _ = m.poll(m.ctx, "push connection lost", false) })
	}
	m.publish()
}

func (m *Monitor) onEstablished(meta models.ConnectionMeta) {
	m.mu.Lock()
	m.conn.ConnectionMeta = meta
	m.mu.Unlock()
	m.publish()
}

func (m *Monitor) onSnapshot(u models.SLAUpdate) {
	m.mu.Lock()
	h := u.SystemHealth
	m.health = &h
	m.alerts = carryAcknowledgements(u.Alerts, m.alerts)
	clientID := m.conn.ClientID
	m.conn.ConnectionMeta = u.Connection
	if m.conn.ClientID == "" {
		m.conn.ClientID = clientID
	}
	m.markUpdatedLocked()
	m.mu.Unlock()

	m.persist()
	m.publish()
}

func (m *Monitor) onUptime(u models.UptimeUpdate) {
	m.mu.Lock()
	if m.health == nil {
		m.mu.Unlock()
		m.logger.Debugf("Uptime update before any snapshot, ignoring")
		return
	}
	h := m.health.WithUptime(u)
	m.health = &h
	m.markUpdatedLocked()
	m.mu.Unlock()

	m.persist()
	m.publish()
}

func (m *Monitor) onAlert(a models.Alert) {
	m.mu.Lock()
	m.alerts = models.UpsertAlert(m.alerts, a)
	t := m.now()
	m.lastUpdated = &t
	m.mu.Unlock()

	m.logger.Infof("New %s alert %s: %s", a.Severity, a.ID, a.Title)
	m.persist()
	m.publish()
	if m.opts.Sink != nil {
		m.opts.Sink.AlertRaised(a)
	}
}

// markUpdatedLocked records that a full or uptime update just landed.
func (m *Monitor) markUpdatedLocked() {
	t := m.now()
	m.lastUpdated = &t
	m.dataAt = t
	m.loading = false
	m.errMsg = ""
}

// carryAcknowledgements keeps local acknowledgements on alerts the server
// still reports as open, then sorts newest first.
func carryAcknowledgements(incoming, current []models.Alert) []models.Alert {
	acked := make(map[string]models.Alert)
	for _, a := range current {
		if a.Acknowledged {
			acked[a.ID] = a
		}
	}
	out := models.CloneAlerts(incoming)
	for i, a := range out {
		if prev, ok := acked[a.ID]; ok && !a.Acknowledged {
			out[i].Acknowledged = true
			out[i].AcknowledgedAt = prev.AcknowledgedAt
			out[i].AcknowledgedBy = prev.AcknowledgedBy
		}
	}
	return models.SortAlerts(out)
}

// poll runs the fallback once. Unless force is set it skips when the push
// channel is up or the data is still fresh. Concurrent polls collapse into
// the one already running.
func (m *Monitor) poll(ctx context.Context, reason string, force bool) error {
	m.mu.Lock()
	if m.polling {
		m.mu.Unlock()
		return nil
	}
	if !force && (m.connected || m.freshLocked()) {
		m.mu.Unlock()
		return nil
	}
	m.polling = true
	m.mu.Unlock()

	m.logger.Debugf("Polling snapshot (%s)", reason)
	res, err := m.poller.FetchSnapshot(ctx)

	m.mu.Lock()
	m.polling = false
	if err != nil {
		if m.ctx.Err() != nil {
			m.mu.Unlock()
			return err
		}
		m.errMsg = userMessage(err)
		m.loading = false
		m.mu.Unlock()
		m.logger.Warnf("Polling fallback failed (%s): %v", reason, err)
		m.publish()
		return err
	}
	h := res.Health
	m.health = &h
	m.alerts = carryAcknowledgements(res.Alerts, m.alerts)
	m.markUpdatedLocked()
	m.mu.Unlock()

	m.persist()
	m.publish()
	return nil
}

func userMessage(err error) string {
	switch {
	case polling.IsHTTP(err):
		return fmt.Sprintf("The SLA service returned an error (HTTP %d). Please try again.", polling.StatusCode(err))
	case polling.IsDecode(err):
		return "The SLA service sent data that could not be read. Please try again."
	default:
		return "Unable to reach the SLA service. Showing the last known data; please try again."
	}
}

// RefreshData prefers a push refresh when connected and falls back to a
// forced poll otherwise.
func (m *Monitor) RefreshData(ctx context.Context) error {
	if m.transport.State() == models.StateConnected && m.transport.RequestUpdate() {
		m.logger.Debugf("Refresh requested over push channel")
		return nil
	}
	return m.poll(ctx, "manual refresh", true)
}

// AcknowledgeAlert marks the alert acknowledged locally before the server
// confirms it. A failed confirmation is reported but not rolled back; the
// request is idempotent and can be retried. Acknowledging an already
// acknowledged alert does nothing.
func (m *Monitor) AcknowledgeAlert(ctx context.Context, id string) error {
	m.mu.Lock()
	idx := m.indexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return ErrAlertNotFound
	}
	if m.alerts[idx].Acknowledged {
		m.mu.Unlock()
		return nil
	}
	m.alerts[idx] = m.alerts[idx].Acknowledge(m.opts.CurrentUser, m.now())
	m.mu.Unlock()

	m.persist()
	m.publish()

	res, err := m.poller.AcknowledgeAlert(ctx, id)
	if err != nil {
		m.mu.Lock()
		m.errMsg = "Failed to acknowledge the alert. Please try again."
		m.mu.Unlock()
		m.logger.Warnf("Acknowledge %s failed: %v", id, err)
		m.publish()
		return fmt.Errorf("acknowledge alert %s: %w", id, err)
	}

	var confirmed models.Alert
	m.mu.Lock()
	if idx := m.indexLocked(id); idx >= 0 {
		a := m.alerts[idx]
		at, by := res.AcknowledgedAt, res.AcknowledgedBy
		a.Acknowledged = true
		a.AcknowledgedAt = &at
		a.AcknowledgedBy = &by
		m.alerts[idx] = a
		confirmed = a
	}
	m.mu.Unlock()

	m.persist()
	m.publish()
	if m.opts.Sink != nil && confirmed.ID != "" {
		m.opts.Sink.AlertAcknowledged(confirmed)
	}
	return nil
}

func (m *Monitor) indexLocked(id string) int {
	return slices.IndexFunc(m.alerts, func(a models.Alert) bool { return a.ID == id })
}

// Connect asks the transport to (re)open the push channel.
func (m *Monitor) Connect(ctx context.Context) {
	if err := m.transport.Connect(ctx); err != nil {
		m.logger.Debugf("Connect failed: %v", err)
	}
}

// Disconnect closes the push channel; cached and polled data stay visible.
func (m *Monitor) Disconnect() {
	m.transport.Disconnect()
}

// persist writes the current state through to the cache. Writes are
// serialized and always snapshot the latest state, so the stored entry
// never goes backwards.
func (m *Monitor) persist() {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	entry := models.CacheEntry{
		Alerts:         models.CloneAlerts(m.alerts),
		ConnectionInfo: m.conn,
	}
	if m.health != nil {
		h := *m.health
		entry.SystemHealth = &h
	}
	if m.lastUpdated != nil {
		entry.LastUpdatedAt = *m.lastUpdated
	}
	m.mu.Unlock()

	m.store.Write(m.ctx, entry)
}

func (m *Monitor) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

func (m *Monitor) viewLocked() View {
	v := View{
		Alerts:         models.CloneAlerts(m.alerts),
		ConnectionInfo: m.conn,
		IsConnected:    m.connected,
		IsLoading:      m.loading,
		Error:          m.errMsg,
	}
	if m.health != nil {
		h := *m.health
		v.SystemHealth = &h
	}
	if m.lastUpdated != nil {
		t := *m.lastUpdated
		v.LastUpdated = &t
	}
	return v
}

// Subscribe registers fn to receive every new View. The returned func
// removes it.
func (m *Monitor) Subscribe(fn func(View)) func() {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.publishMu.Lock()
		defer m.publishMu.Unlock()
		delete(m.listeners, id)
	}
}

// publish hands the current View to listeners. Views are taken and
// delivered under publishMu so listeners never see them out of order.
func (m *Monitor) publish() {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()
	if len(m.listeners) == 0 {
		return
	}
	v := m.View()
	for _, fn := range m.listeners {
		fn(v)
	}
}
