// monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/tugofwar/game"
	"github.com/wfunc/tugofwar/logger"
)

type Metrics struct {
	MessagesReceived *prometheus.CounterVec
	MessageLatency   prometheus.Histogram
	RoundsFinished   *prometheus.CounterVec
	MatchesFinished  *prometheus.CounterVec
	RoomsCreated     prometheus.Counter
	FramesDropped    prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound messages by event",
		}, []string{"event"}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Inbound message handling latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		RoundsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_finished_total",
			Help:      "Finished rounds by winning team",
		}, []string{"winner"}),
		MatchesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_finished_total",
			Help:      "Finished matches by winning team",
		}, []string{"winner"}),
		RoomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Rooms created",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Outbound frames dropped on a full or closed outbox",
		}),
	}
}

// Monitor owns a private registry so several servers can live in one process.
type Monitor struct {
	metrics      *Metrics
	registry     *prometheus.Registry
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
	server       *http.Server
}

// NewMonitor registers metrics plus gauges that read rooms and sessions on
// every scrape.
func NewMonitor(namespace string, rooms, sessions func() int) *Monitor {
	m := &Monitor{
		metrics:   NewMetrics(namespace),
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}
	m.registry.MustRegister(
		m.metrics.MessagesReceived,
		m.metrics.MessageLatency,
		m.metrics.RoundsFinished,
		m.metrics.MatchesFinished,
		m.metrics.RoomsCreated,
		m.metrics.FramesDropped,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of live rooms",
		}, func() float64 { return float64(rooms()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of open connections",
		}, func() float64 { return float64(sessions()) }),
	)
	return m
}

func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves /metrics for this monitor's registry and expvar at
// /debug/vars.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	return mux
}

var publishOnce sync.Once

// StartServer serves metrics on addr until Shutdown.
func (m *Monitor) StartServer(addr string) {
	publishOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() any {
			return time.Since(m.startTime).Seconds()
		}))
		expvar.Publish("requests", expvar.Func(func() any {
			return m.RequestCount()
		}))
	})

	m.server = &http.Server{Addr: addr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Log.Infof("Metrics listening on %s", addr)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Errorf("Metrics server: %v", err)
		}
	}()
}

func (m *Monitor) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

func (m *Monitor) IncMessagesReceived(event string) {
	m.metrics.MessagesReceived.WithLabelValues(event).Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) RequestCount() int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.requestCount
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

func (m *Monitor) IncRoomsCreated() {
	m.metrics.RoomsCreated.Inc()
}

func (m *Monitor) IncFramesDropped(roomID string) {
	m.metrics.FramesDropped.Inc()
}

// RoundFinished and MatchFinished make Monitor a room observer.
func (m *Monitor) RoundFinished(roomID string, winner game.Team) {
	m.metrics.RoundsFinished.WithLabelValues(string(winner)).Inc()
}

func (m *Monitor) MatchFinished(result game.MatchResult) {
	m.metrics.MatchesFinished.WithLabelValues(string(result.Winner)).Inc()
}
