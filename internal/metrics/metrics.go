// Package metrics exposes Prometheus counters for the replicated chat
// service: messages relayed, write forwards attempted/failed, replica
// adoptions, and clock-sim ticks, served over promhttp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/replichat/replichat/internal/clocksim"
	"github.com/replichat/replichat/internal/replica"
)

var (
	_ replica.Metrics  = (*Registry)(nil)
	_ clocksim.Metrics = (*Registry)(nil)
)

// Registry wraps a dedicated prometheus.Registry and the counters this
// service reports. It implements replica.Metrics and clocksim.Metrics so
// both packages can report into one process-wide set of collectors.
type Registry struct {
	reg *prometheus.Registry

	messagesRelayed  prometheus.Counter
	forwardAttempted prometheus.Counter
	forwardFailed    prometheus.Counter
	replicaAdopted   prometheus.Counter
	clockTicks       prometheus.Counter
}

// New builds a Registry with all collectors registered against a fresh,
// dedicated prometheus.Registry (not the global DefaultRegisterer, so
// multiple Registry instances can coexist in tests without collisions).
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		messagesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "replichat_messages_relayed_total",
			Help: "Total number of chat messages relayed (delivered live or queued) by this replica.",
		}),
		forwardAttempted: factory.NewCounter(prometheus.CounterOpts{
			Name: "replichat_forward_attempted_total",
			Help: "Total number of write-forwarding attempts to the downstream replica.",
		}),
		forwardFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "replichat_forward_failed_total",
			Help: "Total number of write-forwarding attempts that failed, triggering downstream failover.",
		}),
		replicaAdopted: factory.NewCounter(prometheus.CounterOpts{
			Name: "replichat_replica_adopted_total",
			Help: "Total number of times this replica adopted a peer's state via register_replica_source.",
		}),
		clockTicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "replichat_clocksim_ticks_total",
			Help: "Total number of logical-clock simulation ticks processed across all peers.",
		}),
	}
}

// Handler returns the promhttp handler serving this Registry's collectors.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// MessageRelayed implements replica.Metrics.
func (r *Registry) MessageRelayed() { r.messagesRelayed.Inc() }

// ForwardAttempted implements replica.Metrics.
func (r *Registry) ForwardAttempted() { r.forwardAttempted.Inc() }

// ForwardFailed implements replica.Metrics.
func (r *Registry) ForwardFailed() { r.forwardFailed.Inc() }

// ReplicaAdopted implements replica.Metrics.
func (r *Registry) ReplicaAdopted() { r.replicaAdopted.Inc() }

// ClockTick implements clocksim.Metrics.
func (r *Registry) ClockTick() { r.clockTicks.Inc() }
