// Package metrics exposes Prometheus collectors fed from the domain bus.
package metrics

import (
	"context"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/bus"
)

// Gauges samples live in-memory state at scrape time.
type Gauges struct {
	OnlineUsers  func() float64
	Sockets      func() float64
	TypingActive func() float64
}

// Metrics counts domain events by kind and samples live gauges.
type Metrics struct {
	reg    *prometheus.Registry
	events *prometheus.CounterVec
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func New(b *bus.Bus, g Gauges, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatd",
			Name:      "events_total",
			Help:      "Domain events by kind.",
		}, []string{"domain", "kind"}),
		bus:    b,
		logger: logger,
	}
	reg.MustRegister(
		m.events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if g.OnlineUsers != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "chatd",
			Name:      "online_users",
			Help:      "Users with a registered live connection.",
		}, g.OnlineUsers))
	}
	if g.Sockets != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "chatd",
			Name:      "websocket_connections",
			Help:      "Open WebSocket connections, registered or not.",
		}, g.Sockets))
	}
	if g.TypingActive != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "chatd",
			Name:      "typing_indicators",
			Help:      "Typing indicators waiting for renewal or expiry.",
		}, g.TypingActive))
	}
	if b != nil {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "chatd",
			Name:      "bus_dropped_events_total",
			Help:      "Bus deliveries skipped because a subscriber fell behind.",
		}, func() float64 { return float64(b.Dropped()) }))
	}
	return m
}

// Start begins counting bus events.
func (m *Metrics) Start(ctx context.Context) {
	ch, unsub := m.bus.Subscribe("", 1024)
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				m.Observe(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops counting and waits for the loop to exit.
func (m *Metrics) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

// Observe counts one event.
func (m *Metrics) Observe(evt bus.Event) {
	domain, _, _ := strings.Cut(evt.Kind, ".")
	m.events.WithLabelValues(domain, evt.Kind).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
