// Package replica implements the chain-replicated chat state machine:
// client-facing operations at the head, write forwarding and failover down
// the chain, and state transfer for a rejoining replica. It builds on
// internal/chat for the domain model and internal/rpc for the session
// layer each chain link runs over.
package replica

import (
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/replichat/replichat/internal/config"
	"github.com/replichat/replichat/internal/rpc"
)

// ReplicaInfo is a replica's view of its downstream link: the live session
// to its nearest successor, if any, plus the ordered remaining addresses to
// try on failover. Invariant: whenever sess is nil, the head of tail is the
// next address this replica should dial.
type ReplicaInfo struct {
	mu     sync.Mutex
	sess   *rpc.Session
	closer io.Closer
	tail   []config.Addr
}

func newReplicaInfo(tail []config.Addr) *ReplicaInfo {
	return &ReplicaInfo{tail: append([]config.Addr(nil), tail...)}
}

func (r *ReplicaInfo) set(sess *rpc.Session, closer io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sess = sess
	r.closer = closer
}

func (r *ReplicaInfo) get() (*rpc.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil || !r.sess.IsRunning() {
		return nil, false
	}
	return r.sess, true
}

// popTail removes and returns the next failover candidate, or ok=false if
// tail is exhausted.
func (r *ReplicaInfo) popTail() (config.Addr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tail) == 0 {
		return config.Addr{}, false
	}
	next := r.tail[0]
	r.tail = r.tail[1:]
	return next, true
}

func (r *ReplicaInfo) closeLocked() {
	if r.closer != nil {
		r.closer.Close()
	}
	r.sess = nil
	r.closer = nil
}

func (r *ReplicaInfo) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

// AuditSink records locally-applied replication mutations for operator
// inspection. It is strictly supplementary: nothing in the replication
// protocol depends on it succeeding. internal/audit provides the concrete
// implementation; tests may use a no-op.
type AuditSink interface {
	RecordMutation(op string, detail string)
}

// NoopAudit discards every record.
type NoopAudit struct{}

func (NoopAudit) RecordMutation(string, string) {}

// Metrics counts chat and replication events. internal/metrics provides
// the concrete Prometheus-backed implementation.
type Metrics interface {
	MessageRelayed()
	ForwardAttempted()
	ForwardFailed()
	ReplicaAdopted()
}

// NoopMetrics discards every count.
type NoopMetrics struct{}

func (NoopMetrics) MessageRelayed()   {}
func (NoopMetrics) ForwardAttempted() {}
func (NoopMetrics) ForwardFailed()    {}
func (NoopMetrics) ReplicaAdopted()   {}

func namedLogger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.Named("replica")
}
