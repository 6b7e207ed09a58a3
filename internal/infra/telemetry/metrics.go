package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tooldeck/internal/domain"
)

// Metrics exports the engine's operational signals.
type Metrics struct {
	callDuration  *prometheus.HistogramVec
	constructions *prometheus.CounterVec
	unhealthy     prometheus.Gauge
	inFlight      prometheus.Gauge
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tooldeck_call_duration_seconds",
				Help:    "Duration of tool calls in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"tool", "status"},
		),
		constructions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tooldeck_constructions_total",
				Help: "Total tool instance construction attempts",
			},
			[]string{"tool", "outcome"},
		),
		unhealthy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tooldeck_unhealthy_tools",
				Help: "Number of tools currently marked unavailable",
			},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tooldeck_calls_in_flight",
				Help: "Tool calls currently executing",
			},
		),
	}
}

// ObserveCall records one finished call with its outcome status: "success"
// or the error kind.
func (m *Metrics) ObserveCall(tool string, err *domain.Error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = string(err.Kind)
	}
	m.callDuration.WithLabelValues(tool, status).Observe(duration.Seconds())
}

func (m *Metrics) ObserveConstruction(tool string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.constructions.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) SetUnhealthyTools(count int) {
	m.unhealthy.Set(float64(count))
}

func (m *Metrics) CallStarted()  { m.inFlight.Inc() }
func (m *Metrics) CallFinished() { m.inFlight.Dec() }
