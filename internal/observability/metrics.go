package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SolverCollector bundles Prometheus metrics for the optimization loop and
// provides a ready-made /metrics handler.
type SolverCollector struct {
	gatherer prometheus.Gatherer

	Evaluations       prometheus.Counter
	Gradients         prometheus.Counter
	EvaluationSeconds prometheus.Histogram
	GradientSeconds   prometheus.Histogram

	Loss          prometheus.Gauge
	GridCoils     prometheus.Gauge
	SymmetryOrder prometheus.Gauge
}

// NewSolverCollector registers solver Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSolverCollector(reg prometheus.Registerer) (*SolverCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	evaluations, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "psc_objective_evaluations_total",
		Help: "Total number of objective evaluations.",
	}), "psc_objective_evaluations_total")
	if err != nil {
		return nil, err
	}
	gradients, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "psc_gradient_evaluations_total",
		Help: "Total number of gradient evaluations.",
	}), "psc_gradient_evaluations_total")
	if err != nil {
		return nil, err
	}

	evalSeconds, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "psc_objective_evaluation_seconds",
		Help:    "Objective evaluation latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}), "psc_objective_evaluation_seconds")
	if err != nil {
		return nil, err
	}
	gradSeconds, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "psc_gradient_evaluation_seconds",
		Help:    "Gradient evaluation latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}), "psc_gradient_evaluation_seconds")
	if err != nil {
		return nil, err
	}

	loss, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "psc_loss",
		Help: "Most recent normalized squared-flux loss.",
	}), "psc_loss")
	if err != nil {
		return nil, err
	}
	coils, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "psc_grid_coils",
		Help: "Number of passive coils in the fundamental domain.",
	}), "psc_grid_coils")
	if err != nil {
		return nil, err
	}
	order, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "psc_symmetry_order",
		Help: "Number of symmetry replicas per fundamental coil.",
	}), "psc_symmetry_order")
	if err != nil {
		return nil, err
	}

	return &SolverCollector{
		gatherer:          gatherer,
		Evaluations:       evaluations,
		Gradients:         gradients,
		EvaluationSeconds: evalSeconds,
		GradientSeconds:   gradSeconds,
		Loss:              loss,
		GridCoils:         coils,
		SymmetryOrder:     order,
	}, nil
}

// ObserveEvaluation records one objective evaluation.
func (c *SolverCollector) ObserveEvaluation(loss float64, elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.Evaluations != nil {
		c.Evaluations.Inc()
	}
	if c.EvaluationSeconds != nil {
		c.EvaluationSeconds.Observe(elapsed.Seconds())
	}
	if c.Loss != nil {
		c.Loss.Set(loss)
	}
}

// ObserveGradient records one gradient evaluation.
func (c *SolverCollector) ObserveGradient(elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.Gradients != nil {
		c.Gradients.Inc()
	}
	if c.GradientSeconds != nil {
		c.GradientSeconds.Observe(elapsed.Seconds())
	}
}

// SetGridShape publishes the static grid dimensions once after grid build.
func (c *SolverCollector) SetGridShape(coils, symmetryOrder int) {
	if c == nil {
		return
	}
	if c.GridCoils != nil {
		c.GridCoils.Set(float64(coils))
	}
	if c.SymmetryOrder != nil {
		c.SymmetryOrder.Set(float64(symmetryOrder))
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SolverCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
