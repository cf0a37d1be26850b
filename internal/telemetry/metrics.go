package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/tcplink/internal/link"
	"github.com/nerrad567/tcplink/internal/peer"
)

// Namespace prefixes every metric name.
const Namespace = "tcplink"

// LinkSource is the part of a link client the collectors read.
type LinkSource interface {
	Stats() link.Stats
}

// PeerSource is the part of a peer server the collectors read.
type PeerSource interface {
	Stats() peer.Stats
}

// Metrics owns a Prometheus registry and the tcplink collectors.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry
	start    time.Time

	linkEvents      *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        *prometheus.GaugeVec
	buildInfo       *prometheus.GaugeVec
}

// New creates a Metrics with the event, HTTP, build and process collectors
// registered.
func New(version string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		start:    time.Now(),

		linkEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "link",
				Name:      "events_total",
				Help:      "Link client events by kind.",
			},
			[]string{"kind"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total number of admin API requests.",
			},
			[]string{"op", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency of admin API requests.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
			},
			[]string{"op"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "api",
				Name:      "in_flight_requests",
				Help:      "Current number of in-flight admin API requests.",
			},
			[]string{"op"},
		),
		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "build_info",
				Help:      "Build info (constant 1, labeled by version).",
			},
			[]string{"version"},
		),
	}

	uptime := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(m.start).Seconds() },
	)

	m.registry.MustRegister(
		m.linkEvents, m.requestsTotal, m.requestDuration, m.inFlight, m.buildInfo, uptime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.buildInfo.WithLabelValues(version).Set(1)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveLinkEvent counts one link event. It has the link.Listener
// signature.
func (m *Metrics) ObserveLinkEvent(ev link.Event) {
	m.linkEvents.WithLabelValues(string(ev.Kind)).Inc()
}

// RegisterLink exports the counters of a link client.
func (m *Metrics) RegisterLink(src LinkSource) error {
	counter := func(name, help string, get func(link.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "link", Name: name, Help: help,
		}, func() float64 { return float64(get(src.Stats())) })
	}

	cs := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "link", Name: "connected",
			Help: "1 while the link is connected.",
		}, func() float64 {
			if src.Stats().State == link.StateConnected {
				return 1
			}
			return 0
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "link", Name: "retries",
			Help: "Failed attempts in the current connect cycle.",
		}, func() float64 { return float64(src.Stats().Retries) }),
		counter("connects_total", "Successful connections.", func(s link.Stats) uint64 { return s.Connects }),
		counter("connect_failures_total", "Failed connect attempts.", func(s link.Stats) uint64 { return s.ConnectFailures }),
		counter("permanent_failures_total", "Connect cycles that exhausted their retries.", func(s link.Stats) uint64 { return s.PermanentFailures }),
		counter("received_bytes_total", "Bytes read from the remote.", func(s link.Stats) uint64 { return s.BytesReceived }),
		counter("sent_bytes_total", "Bytes written to the remote.", func(s link.Stats) uint64 { return s.BytesSent }),
		counter("read_errors_total", "Read faults.", func(s link.Stats) uint64 { return s.ReadErrors }),
		counter("write_errors_total", "Write faults.", func(s link.Stats) uint64 { return s.WriteErrors }),
	}
	return register(m.registry, cs)
}

// RegisterPeers exports the counters of a peer server.
func (m *Metrics) RegisterPeers(src PeerSource) error {
	counter := func(name, help string, get func(peer.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "peer", Name: name, Help: help,
		}, func() float64 { return float64(get(src.Stats())) })
	}

	cs := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "peer", Name: "sessions",
			Help: "Connected peers.",
		}, func() float64 { return float64(src.Stats().Active) }),
		counter("accepted_total", "Accepted peer connections.", func(s peer.Stats) uint64 { return s.Accepted }),
		counter("subscriptions_total", "Subscribe commands applied.", func(s peer.Stats) uint64 { return s.Subscriptions }),
		counter("publishes_total", "Publish commands received.", func(s peer.Stats) uint64 { return s.Publishes }),
		counter("parse_errors_total", "Unparseable peer commands.", func(s peer.Stats) uint64 { return s.ParseErrors }),
		counter("forward_errors_total", "Publishes that could not be forwarded.", func(s peer.Stats) uint64 { return s.ForwardErrors }),
		counter("store_errors_total", "Failed session store calls.", func(s peer.Stats) uint64 { return s.StoreErrors }),
	}
	return register(m.registry, cs)
}

func register(reg prometheus.Registerer, cs []prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps next to record request metrics under the op label.
func (m *Metrics) Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.inFlight.WithLabelValues(op).Inc()
		defer m.inFlight.WithLabelValues(op).Dec()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		m.requestsTotal.WithLabelValues(op, class).Inc()
		m.requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}
