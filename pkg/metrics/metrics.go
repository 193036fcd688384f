// Package metrics exposes node activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "lorawan_node"

// Uplink result label values.
const (
	ResultSent    = "sent"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
)

// Metrics holds the node's collectors and the registry they are
// registered with.
type Metrics struct {
	Registry *prometheus.Registry

	JoinAttemptsTotal    *prometheus.CounterVec
	JoinRetries          prometheus.Gauge
	Joined               prometheus.Gauge
	JoinDurationSeconds  prometheus.Histogram
	BackoffDelaySeconds  prometheus.Histogram
	UplinksTotal         *prometheus.CounterVec
	UplinkPayloadBytes   prometheus.Histogram
	LastUplinkTimestamp  prometheus.Gauge
	RadioAirtimeSeconds  prometheus.Counter
	DutyCycleWaitSeconds prometheus.Counter
}

// New creates the node metrics on a fresh registry. Go runtime and process
// collectors are included when withRuntime is set.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		Registry: reg,
		JoinAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "join",
			Name:      "attempts_total",
			Help:      "Join attempts by outcome.",
		}, []string{"outcome"}),
		JoinRetries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "join",
			Name:      "retries",
			Help:      "Current join retry counter.",
		}),
		Joined: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "join",
			Name:      "joined",
			Help:      "1 once the device has joined the network.",
		}),
		JoinDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "join",
			Name:      "attempt_duration_seconds",
			Help:      "Time taken by a single join attempt.",
			Buckets:   []float64{0.1, 1, 5, 6, 10, 30},
		}),
		BackoffDelaySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "join",
			Name:      "backoff_delay_seconds",
			Help:      "Backoff delays between join attempts.",
			Buckets:   []float64{10, 30, 60, 300, 900, 1800, 3600, 4320},
		}),
		UplinksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uplink",
			Name:      "total",
			Help:      "Uplink ticks by result.",
		}, []string{"result"}),
		UplinkPayloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "uplink",
			Name:      "payload_bytes",
			Help:      "Size of sent uplink payloads.",
			Buckets:   prometheus.LinearBuckets(8, 8, 8),
		}),
		LastUplinkTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "uplink",
			Name:      "last_sent_timestamp_seconds",
			Help:      "Unix time of the last successful uplink.",
		}),
		RadioAirtimeSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "radio",
			Name:      "airtime_seconds_total",
			Help:      "Cumulative time on air.",
		}),
		DutyCycleWaitSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "radio",
			Name:      "duty_cycle_wait_seconds_total",
			Help:      "Cumulative time spent waiting for duty-cycle budget.",
		}),
	}

	reg.MustRegister(
		m.JoinAttemptsTotal,
		m.JoinRetries,
		m.Joined,
		m.JoinDurationSeconds,
		m.BackoffDelaySeconds,
		m.UplinksTotal,
		m.UplinkPayloadBytes,
		m.LastUplinkTimestamp,
		m.RadioAirtimeSeconds,
		m.DutyCycleWaitSeconds,
	)
	return m
}

// ObserveJoinAttempt records one join attempt.
func (m *Metrics) ObserveJoinAttempt(outcome string, retries uint32, took time.Duration) {
	if m == nil {
		return
	}
	m.JoinAttemptsTotal.WithLabelValues(outcome).Inc()
	m.JoinRetries.Set(float64(retries))
	m.JoinDurationSeconds.Observe(took.Seconds())
}

// ObserveBackoff records a backoff wait.
func (m *Metrics) ObserveBackoff(retries uint32, delay time.Duration) {
	if m == nil {
		return
	}
	m.JoinRetries.Set(float64(retries))
	m.BackoffDelaySeconds.Observe(delay.Seconds())
}

// SetJoined records the join state.
func (m *Metrics) SetJoined(joined bool) {
	if m == nil {
		return
	}
	if joined {
		m.Joined.Set(1)
	} else {
		m.Joined.Set(0)
	}
}

// ObserveUplink records one uplink tick.
func (m *Metrics) ObserveUplink(result string, size int, at time.Time) {
	if m == nil {
		return
	}
	m.UplinksTotal.WithLabelValues(result).Inc()
	if result == ResultSent {
		m.UplinkPayloadBytes.Observe(float64(size))
		m.LastUplinkTimestamp.Set(float64(at.Unix()))
	}
}

// AddRadio adds airtime and duty-cycle wait deltas.
func (m *Metrics) AddRadio(airtime, dutyWait time.Duration) {
	if m == nil {
		return
	}
	if airtime > 0 {
		m.RadioAirtimeSeconds.Add(airtime.Seconds())
	}
	if dutyWait > 0 {
		m.DutyCycleWaitSeconds.Add(dutyWait.Seconds())
	}
}
