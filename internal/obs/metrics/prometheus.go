package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder is a Recorder backed by client_golang metrics.
// Host applications construct one and register it with a
// *prometheus.Registry, then pass it to threadpool.CreateWithRecorder.
type PrometheusRecorder struct {
	activeWorkers    *prometheus.GaugeVec
	freeWorkers      *prometheus.GaugeVec
	dispatchLatency  *prometheus.HistogramVec
	timerJitter      *prometheus.HistogramVec
}

// NewPrometheusRecorder builds a PrometheusRecorder and registers its
// collectors with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		activeWorkers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "oswrapper",
			Subsystem: "threadpool",
			Name:      "active_workers",
			Help:      "Number of ThreadPool workers currently executing a task.",
		}, []string{"pool"}),
		freeWorkers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "oswrapper",
			Subsystem: "threadpool",
			Name:      "free_workers",
			Help:      "Number of ThreadPool workers currently idle in the free-runner queue.",
		}, []string{"pool"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "oswrapper",
			Subsystem: "threadpool",
			Name:      "dispatch_latency_seconds",
			Help:      "Time TimedStart spent waiting for a free worker.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pool"}),
		timerJitter: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "oswrapper",
			Subsystem: "timer",
			Name:      "jitter_seconds",
			Help:      "Absolute difference between a timer's configured interval and its actual fire interval.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"timer"}),
	}
	reg.MustRegister(r.activeWorkers, r.freeWorkers, r.dispatchLatency, r.timerJitter)
	return r
}

func (r *PrometheusRecorder) SetActiveWorkers(poolName string, n int) {
	r.activeWorkers.WithLabelValues(poolName).Set(float64(n))
}

func (r *PrometheusRecorder) SetFreeWorkers(poolName string, n int) {
	r.freeWorkers.WithLabelValues(poolName).Set(float64(n))
}

func (r *PrometheusRecorder) ObserveDispatchLatency(poolName string, d time.Duration) {
	r.dispatchLatency.WithLabelValues(poolName).Observe(d.Seconds())
}

func (r *PrometheusRecorder) ObserveTimerJitter(timerName string, d time.Duration) {
	r.timerJitter.WithLabelValues(timerName).Observe(d.Seconds())
}
