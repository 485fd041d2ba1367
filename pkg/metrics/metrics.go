package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "relay", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "relay", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	StoreLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "relay", Name: "store_loads_total", Help: "Document loads by result (ok, missing, corrupt, error)."},
		[]string{"result"},
	)
	StoreSaves = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "relay", Name: "store_saves_total", Help: "Successful atomic document writes."},
	)

	MutationCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "relay", Name: "mutation_cycles_total", Help: "Guarded load-mutate-save cycles by result."},
		[]string{"result"},
	)
	LockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "relay", Name: "lock_wait_seconds", Help: "Time spent acquiring the store lock.", Buckets: prometheus.ExponentialBuckets(0.001, 4, 8)},
	)

	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "relay", Name: "console_login_attempts_total", Help: "Console login attempts by result."},
		[]string{"result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(StoreLoads)
	reg.MustRegister(StoreSaves)
	reg.MustRegister(MutationCycles)
	reg.MustRegister(LockWait)
	reg.MustRegister(LoginAttempts)
}
