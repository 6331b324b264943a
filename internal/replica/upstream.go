package replica

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/replichat/replichat/internal/config"
	"github.com/replichat/replichat/internal/rpc"
	"github.com/replichat/replichat/internal/transport"
)

// upstreamLoop dials pred with backoff, serves the replication surface on
// that link, and on disconnect either retries (if registration never
// completed) or runs leader election (if it did) — head failover.
func (s *State) upstreamLoop(ctx context.Context, pred config.Addr) {
	backoff := backoffInitial
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialer.Dial(ctx, pred)
		if err != nil {
			s.logger.Warn("upstream dial failed, retrying",
				zap.String("addr", pred.String()), zap.Duration("backoff", backoff), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(jitter(backoff)):
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = backoffInitial
		s.upstreamRegistered.Store(false)

		ts := transport.NewSession(conn)
		sess := rpc.NewSession(ts, s.logger)
		s.registerReplicationHandlers(sess)

		s.logger.Info("connected to upstream", zap.String("addr", pred.String()))
		_ = sess.RunEventLoop(ctx)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		if s.upstreamRegistered.Load() {
			s.logger.Warn("upstream link lost after registration, running leader election",
				zap.String("addr", pred.String()))
			s.runLeaderElection(ctx)
			return
		}

		s.logger.Warn("upstream link dropped before registration completed, retrying",
			zap.String("addr", pred.String()))
	}
}

// runLeaderElection pings every address strictly preceding this replica's
// own position, in Config order. If any answers,
// some predecessor is still alive and this replica remains a backup. If
// none answer, this replica promotes itself to primary.
func (s *State) runLeaderElection(ctx context.Context) {
	for _, addr := range s.cfg.Preceding(s.addr) {
		if s.pingAddr(ctx, addr) {
			s.logger.Info("leader election: predecessor still alive, remaining a backup",
				zap.String("addr", addr.String()))
			return
		}
	}

	s.isPrimary.Store(true)
	s.logger.Info("leader election: no predecessor answered, promoting self to primary")
}

func (s *State) pingAddr(ctx context.Context, addr config.Addr) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	conn, err := s.dialer.Dial(pingCtx, addr)
	if err != nil {
		return false
	}
	defer conn.Close()

	ts := transport.NewSession(conn)
	sess := rpc.NewSession(ts, s.logger)
	go sess.RunEventLoop(pingCtx)

	resp, err := sess.Request(pingCtx, "ping", nil, false)
	return err == nil && resp.Err == nil
}
