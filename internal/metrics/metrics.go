package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector receives counters from the hardware and pour layers.
// Calls sit on the bus and pour hot paths, so implementations must not block.
type Collector interface {
	IncPour(outcome string)
	IncBusError(op string)
	IncObserverDropped()
	SetObservers(n int)
	SetWeight(grams float64, ok bool)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncPour(string)          {}
func (noopCollector) IncBusError(string)      {}
func (noopCollector) IncObserverDropped()     {}
func (noopCollector) SetObservers(int)        {}
func (noopCollector) SetWeight(float64, bool) {}

// PrometheusCollector exposes the counters via Prometheus.
type PrometheusCollector struct {
	pours            *prometheus.CounterVec
	busErrors        *prometheus.CounterVec
	observersDropped prometheus.Counter
	observers        prometheus.Gauge
	weight           prometheus.Gauge
	scaleUp          prometheus.Gauge
}

// NewPrometheusCollector registers the metrics with reg (default registerer when nil).
// Registering twice against the same registry reuses the existing collectors.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &PrometheusCollector{
		pours: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "potion_pours_total",
			Help: "Finished preparations by outcome.",
		}, []string{"outcome"}),
		busErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "potion_bus_errors_total",
			Help: "Failed bus operations by operation.",
		}, []string{"op"}),
		observersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "potion_observers_dropped_total",
			Help: "Observers removed because they could not keep up.",
		}),
		observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "potion_observers",
			Help: "Currently subscribed observers.",
		}),
		weight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "potion_scale_weight_ml",
			Help: "Last scale reading.",
		}),
		scaleUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "potion_scale_connected",
			Help: "1 while the scale answers polls.",
		}),
	}

	var err error
	if c.pours, err = register(reg, c.pours); err != nil {
		return nil, err
	}
	if c.busErrors, err = register(reg, c.busErrors); err != nil {
		return nil, err
	}
	if c.observersDropped, err = register(reg, c.observersDropped); err != nil {
		return nil, err
	}
	if c.observers, err = register(reg, c.observers); err != nil {
		return nil, err
	}
	if c.weight, err = register(reg, c.weight); err != nil {
		return nil, err
	}
	if c.scaleUp, err = register(reg, c.scaleUp); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return col, err
	}
	return col, nil
}

func (c *PrometheusCollector) IncPour(outcome string) {
	c.pours.WithLabelValues(outcome).Inc()
}

func (c *PrometheusCollector) IncBusError(op string) {
	c.busErrors.WithLabelValues(op).Inc()
}

func (c *PrometheusCollector) IncObserverDropped() {
	c.observersDropped.Inc()
}

func (c *PrometheusCollector) SetObservers(n int) {
	c.observers.Set(float64(n))
}

func (c *PrometheusCollector) SetWeight(grams float64, ok bool) {
	if !ok {
		c.scaleUp.Set(0)
		return
	}
	c.scaleUp.Set(1)
	c.weight.Set(grams)
}
