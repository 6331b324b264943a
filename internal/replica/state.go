package replica

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/replichat/replichat/internal/chat"
	"github.com/replichat/replichat/internal/config"
	"github.com/replichat/replichat/internal/rpc"
	"github.com/replichat/replichat/internal/transport"
)

// State is one replica's chat state machine: the domain Db, the table of
// currently-logged-in users, this replica's position in Config, and its
// downstream replication link. Exactly one State exists per running
// replica process.
//
// Unlike the homework's State, which relies on single-threaded cooperative
// scheduling to avoid locks ("we can avoid locks here due to the
// guarantees of async-await programming"), this implementation runs
// handlers as real goroutines (internal/rpc.Session dispatches each
// request on its own goroutine), so logins and the downstream link are
// protected by real mutexes.
type State struct {
	addr config.Addr
	cfg  config.Config

	db *chat.Db

	mu     sync.Mutex
	logins map[chat.User]*UserSession

	isPrimary atomic.Bool

	// upstreamRegistered flips true the first time this replica serves a
	// register_replica_source call on its upstream link — the gate
	// required before a dropped upstream connection is treated as head
	// loss rather than a transient dial failure.
	upstreamRegistered atomic.Bool

	downstream *ReplicaInfo

	dialer  Dialer
	logger  *zap.Logger
	audit   AuditSink
	metrics Metrics
}

// NewState builds a State for a replica bound to addr within cfg, backed by
// db. audit and metrics may be nil, in which case no-op implementations are
// used.
func NewState(addr config.Addr, cfg config.Config, db *chat.Db, dialer Dialer, logger *zap.Logger, audit AuditSink, m Metrics) *State {
	if audit == nil {
		audit = NoopAudit{}
	}
	if m == nil {
		m = NoopMetrics{}
	}
	s := &State{
		addr:       addr,
		cfg:        cfg,
		db:         db,
		logins:     make(map[chat.User]*UserSession),
		downstream: newReplicaInfo(cfg.Tail(addr)),
		dialer:     dialer,
		logger:     namedLogger(logger),
		audit:      audit,
		metrics:    m,
	}
	s.isPrimary.Store(cfg.IsPrimary(addr))
	return s
}

// IsPrimary reports whether this replica is currently serving as the chain
// head. It can flip true at runtime after head failover.
func (s *State) IsPrimary() bool {
	return s.isPrimary.Load()
}

// Addr returns this replica's own bind address.
func (s *State) Addr() config.Addr {
	return s.addr
}

// Serve accepts connections on ln until ctx is cancelled. Each connection
// gets its own RPC session with the full client+replication handler table
// registered (see handlers.go); the first one accepted while this replica
// still expects a successor is treated as that successor joining the chain.
func (s *State) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("replica: accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *State) handleConn(ctx context.Context, conn net.Conn) {
	ts := transport.NewSession(conn)
	sess := rpc.NewSession(ts, s.logger)
	userSess := newUserSession(sess, s)
	s.registerHandlers(sess, userSess)

	if s.maybeAdoptAsDownstream(ctx, sess, conn) {
		s.logger.Info("accepted downstream join", zap.String("remote", conn.RemoteAddr().String()))
	}

	_ = sess.RunEventLoop(ctx)
	userSess.cleanup()
}

// maybeAdoptAsDownstream claims conn as this replica's downstream link if
// one is expected (cfg.Tail is non-empty) and none is currently live. It
// offers this replica's own snapshot via register_replica_source and
// stores the session as the downstream on success. Returns true if it
// claimed the connection.
func (s *State) maybeAdoptAsDownstream(ctx context.Context, sess *rpc.Session, conn net.Conn) bool {
	if len(s.cfg.Tail(s.addr)) == 0 {
		return false
	}
	if _, ok := s.downstream.get(); ok {
		return false
	}

	go func() {
		if err := s.syncDownstream(ctx, sess); err != nil {
			s.logger.Warn("downstream registration failed", zap.Error(err))
			return
		}
		s.downstream.set(sess, conn)
	}()
	return true
}

// syncDownstream sends register_replica_source to a newly-joined downstream
// link and adopts whichever side's state is older.
func (s *State) syncDownstream(ctx context.Context, sess *rpc.Session) error {
	mtime := fromStat(s.db.Mtime())
	payload := newDbPayload(s.db.Snapshot(), mtime)

	resp, err := sess.Request(ctx, "register_replica_source", []any{payload.Db, payload.Mtime}, false)
	if err != nil {
		return fmt.Errorf("register_replica_source: %w", err)
	}
	if resp.Err != nil {
		return fmt.Errorf("register_replica_source: %s", resp.Err.Message)
	}

	var result registerSourceResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("register_replica_source: decode result: %w", err)
	}

	if !result.Accepted {
		if err := s.db.ReplaceAll(result.Db); err != nil {
			return fmt.Errorf("adopt rejected downstream state: %w", err)
		}
		s.metrics.ReplicaAdopted()
		s.logger.Info("adopted newer state offered by downstream on rejection")

		// Replay the adopted snapshot onto the same link so it cascades past
		// this replica: the downstream's own update_db handler forwards it
		// again to whatever lies beyond it, one hop at a time down the chain.
		cascade, err := sess.Request(ctx, "update_db", []any{result.Db, result.Mtime}, false)
		if err != nil {
			s.logger.Warn("failed to cascade adopted state past new downstream", zap.Error(err))
		} else if cascade.Err != nil {
			s.logger.Warn("downstream rejected cascaded update_db",
				zap.Int("code", cascade.Err.Code), zap.String("message", cascade.Err.Message))
		}
	}
	return nil
}

// ConnectUpstream dials this replica's immediate predecessor (if any) with
// retry/backoff, registers the replication-surface handlers on that link so
// the predecessor can forward writes and call register_replica_source, and
// watches the link for head failover.
func (s *State) ConnectUpstream(ctx context.Context) {
	pred, ok := s.cfg.ImmediatePredecessor(s.addr)
	if !ok {
		return // this replica is the initial primary; it has no upstream.
	}

	go s.upstreamLoop(ctx, pred)
}
