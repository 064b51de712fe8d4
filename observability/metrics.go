// Package observability carries the daemon's Prometheus instrumentation and
// the event sink bridging pool events into logs and metrics.
package observability

import (
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolMetrics captures the staking pool's operational counters and gauges.
type PoolMetrics struct {
	deposits    *prometheus.CounterVec
	claims      *prometheus.CounterVec
	delegations prometheus.Counter
	withdrawals prometheus.Counter
	pooledValue prometheus.Gauge
	buffered    prometheus.Gauge
	reserved    prometheus.Gauge
	epoch       prometheus.Gauge
}

// RPCMetrics records JSON-RPC activity segmented by method.
type RPCMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles prometheus.Counter
}

var (
	poolMetricsOnce sync.Once
	poolRegistry    *PoolMetrics

	rpcMetricsOnce sync.Once
	rpcRegistry    *RPCMetrics
)

// Pool returns the lazily-initialised singleton for pool instrumentation.
func Pool() *PoolMetrics {
	poolMetricsOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "liquidstake",
				Subsystem: "pool",
				Name:      "deposits_total",
				Help:      "Count of accepted deposits segmented by outcome.",
			}, []string{"outcome"}),
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "liquidstake",
				Subsystem: "pool",
				Name:      "claims_total",
				Help:      "Count of withdrawal-ticket claims segmented by outcome.",
			}, []string{"outcome"}),
			delegations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "liquidstake",
				Subsystem: "pool",
				Name:      "delegations_total",
				Help:      "Count of delegation sweeps that moved buffered funds to backends.",
			}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "liquidstake",
				Subsystem: "pool",
				Name:      "withdrawal_requests_total",
				Help:      "Count of withdrawal tickets opened.",
			}),
			pooledValue: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "liquidstake",
				Subsystem: "pool",
				Name:      "pooled_value",
				Help:      "Total pool value across buffer and delegated stake, in base units.",
			}),
			buffered: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "liquidstake",
				Subsystem: "pool",
				Name:      "buffered_value",
				Help:      "Undelegated buffer held by the vault, in base units.",
			}),
			reserved: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "liquidstake",
				Subsystem: "pool",
				Name:      "reserved_value",
				Help:      "Buffer slice reserved for pending withdrawal tickets, in base units.",
			}),
			epoch: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "liquidstake",
				Subsystem: "pool",
				Name:      "current_epoch",
				Help:      "Epoch most recently published by the epoch oracle.",
			}),
		}
		prometheus.MustRegister(
			poolRegistry.deposits,
			poolRegistry.claims,
			poolRegistry.delegations,
			poolRegistry.withdrawals,
			poolRegistry.pooledValue,
			poolRegistry.buffered,
			poolRegistry.reserved,
			poolRegistry.epoch,
		)
	})
	return poolRegistry
}

// RecordDeposit counts one deposit attempt by outcome.
func (m *PoolMetrics) RecordDeposit(ok bool) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(outcome(ok)).Inc()
}

// RecordClaim counts one claim attempt by outcome.
func (m *PoolMetrics) RecordClaim(ok bool) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(outcome(ok)).Inc()
}

// RecordDelegation counts one successful delegation sweep.
func (m *PoolMetrics) RecordDelegation() {
	if m == nil {
		return
	}
	m.delegations.Inc()
}

// RecordWithdrawalRequest counts one opened withdrawal ticket.
func (m *PoolMetrics) RecordWithdrawalRequest() {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
}

// SetPoolGauges publishes the pool's balance-sheet gauges.
func (m *PoolMetrics) SetPoolGauges(pooled, buffered, reserved *big.Int) {
	if m == nil {
		return
	}
	m.pooledValue.Set(bigToFloat(pooled))
	m.buffered.Set(bigToFloat(buffered))
	m.reserved.Set(bigToFloat(reserved))
}

// SetEpoch publishes the current epoch.
func (m *PoolMetrics) SetEpoch(epoch uint64) {
	if m == nil {
		return
	}
	m.epoch.Set(float64(epoch))
}

// RPC returns the lazily-initialised singleton for JSON-RPC instrumentation.
func RPC() *RPCMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "liquidstake",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "liquidstake",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "liquidstake",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "liquidstake",
				Subsystem: "rpc",
				Name:      "throttled_total",
				Help:      "Requests rejected by the rate limiter.",
			}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records one JSON-RPC request with its error code, zero for success.
func (m *RPCMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	if code == 0 {
		m.requests.WithLabelValues(method, "success").Inc()
	} else {
		m.requests.WithLabelValues(method, "error").Inc()
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", code)).Inc()
	}
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle counts one rate-limited request.
func (m *RPCMetrics) RecordThrottle() {
	if m == nil {
		return
	}
	m.throttles.Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}
