package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts lifecycle operations. A nil *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	installed  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcphub",
			Name:      "operations_total",
			Help:      "Lifecycle operations by operation and result.",
		}, []string{"operation", "result"}),
		installed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mcphub",
			Name:      "installed_servers",
			Help:      "Number of servers in the local state store.",
		}),
	}
	reg.MustRegister(m.operations, m.installed)
	return m
}

func (m *Metrics) observe(operation string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) setInstalled(n int) {
	if m == nil {
		return
	}
	m.installed.Set(float64(n))
}
