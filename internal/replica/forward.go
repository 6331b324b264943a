package replica

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/replichat/replichat/internal/rpc"
	"github.com/replichat/replichat/internal/transport"
)

// forward replays a locally-applied mutation on the downstream link.
// Every state-mutating operation is applied locally, including an
// immediate commit, before being forwarded. Forwarding is
// request/response, so a dead downstream link is detected right here and
// drives the failover procedure inline.
func (s *State) forward(ctx context.Context, method string, params []any) {
	s.metrics.ForwardAttempted()

	for {
		sess, ok := s.downstream.get()
		if !ok {
			newSess, newConn, ok := s.reconnectDownstream(ctx)
			if !ok {
				s.logger.Debug("forward dropped: no live downstream", zap.String("method", method))
				return
			}
			sess = newSess
			s.downstream.set(newSess, newConn)
		}

		resp, err := sess.Request(ctx, method, params, false)
		if err != nil {
			s.metrics.ForwardFailed()
			s.logger.Warn("forward failed, failing over downstream link",
				zap.String("method", method), zap.Error(err))
			s.downstream.close()
			continue
		}
		if resp.Err != nil {
			s.logger.Warn("forward returned an application error",
				zap.String("method", method), zap.Int("code", resp.Err.Code), zap.String("message", resp.Err.Message))
		}
		return
	}
}

// reconnectDownstream pops the next tail candidate, dials it, replays
// register_replica_source, and returns the new live session. Tries
// candidates in order until one succeeds or the tail is exhausted.
func (s *State) reconnectDownstream(ctx context.Context) (*rpc.Session, io.Closer, bool) {
	for {
		addr, ok := s.downstream.popTail()
		if !ok {
			return nil, nil, false
		}

		conn, err := s.dialer.Dial(ctx, addr)
		if err != nil {
			s.logger.Warn("failover dial failed, trying next tail candidate",
				zap.String("addr", addr.String()), zap.Error(err))
			continue
		}

		ts := transport.NewSession(conn)
		sess := rpc.NewSession(ts, s.logger)
		go sess.RunEventLoop(ctx)

		if err := s.syncDownstream(ctx, sess); err != nil {
			s.logger.Warn("failover state sync failed, trying next tail candidate",
				zap.String("addr", addr.String()), zap.Error(err))
			conn.Close()
			continue
		}

		s.logger.Info("downstream failover succeeded", zap.String("addr", addr.String()))
		return sess, conn, true
	}
}
