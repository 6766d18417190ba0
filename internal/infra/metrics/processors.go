package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		processorFailoversTotal,
		processorHealthy,
	)
}

var (
	processorFailoversTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processor_failovers_total",
			Help: "Times a processor failed and the orchestrator moved to the next one.",
		},
		[]string{"processor"},
	)

	processorHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "processor_healthy",
			Help: "1 when the processor is considered healthy by the orchestrator.",
		},
		[]string{"processor"},
	)
)

func IncFailover(processor string) {
	processorFailoversTotal.WithLabelValues(norm(processor)).Inc()
}

func SetProcessorHealthy(processor string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	processorHealthy.WithLabelValues(norm(processor)).Set(v)
}
