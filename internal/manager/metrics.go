package manager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imaged_pipeline_loads_total",
			Help: "Pipeline loads by family and outcome.",
		},
		[]string{"family", "status"},
	)
	loraLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imaged_lora_loads_total",
			Help: "LoRA adapter loads by outcome.",
		},
		[]string{"status"},
	)
	generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imaged_generations_total",
			Help: "Image generations by family and outcome.",
		},
		[]string{"family", "status"},
	)
	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imaged_generation_duration_seconds",
			Help:    "Time spent sampling one image.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"family"},
	)
	backpressure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imaged_backpressure_total",
		Help: "Requests rejected because the queue was full or the wait timed out.",
	})
)

func init() {
	prometheus.MustRegister(pipelineLoads, loraLoads, generations, generationDuration, backpressure)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func observeGeneration(f Family, start time.Time, err error) {
	generations.WithLabelValues(string(f), outcome(err)).Inc()
	if err == nil {
		generationDuration.WithLabelValues(string(f)).Observe(time.Since(start).Seconds())
	}
}
