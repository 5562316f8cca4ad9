package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "outcall"

// Collector owns the service's Prometheus metrics on a private registry.
type Collector struct {
	reg *prometheus.Registry

	dials       *prometheus.CounterVec
	joinLatency prometheus.Histogram
	outcomes    *prometheus.CounterVec
	tickErrors  prometheus.Counter
	actions     *prometheus.CounterVec
	live        prometheus.Gauge
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		reg: reg,
		dials: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dials_total",
			Help:      "Dial submissions by result",
		}, []string{"result"}),
		joinLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "join_wait_seconds",
			Help:      "Time from dial submission to the callee joining the room",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 20, 30, 60},
		}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_outcomes_total",
			Help:      "Finished sessions by result and final status",
		}, []string{"result", "status"}),
		tickErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_tick_errors_total",
			Help:      "Status reads that failed during monitoring",
		}),
		actions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Agent actions invoked by name",
		}, []string{"action"}),
		live: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_live",
			Help:      "Sessions currently running",
		}),
	}
}

func (c *Collector) DialSubmitted(ok bool) {
	if ok {
		c.dials.WithLabelValues("ok").Inc()
		return
	}
	c.dials.WithLabelValues("rejected").Inc()
}

func (c *Collector) Joined(wait time.Duration) { c.joinLatency.Observe(wait.Seconds()) }

func (c *Collector) TickError() { c.tickErrors.Inc() }

func (c *Collector) Outcome(result, status string) { c.outcomes.WithLabelValues(result, status).Inc() }

func (c *Collector) Action(name string) { c.actions.WithLabelValues(name).Inc() }

func (c *Collector) SessionStarted() { c.live.Inc() }

func (c *Collector) SessionFinished() { c.live.Dec() }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}
