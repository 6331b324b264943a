package replica

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/replichat/replichat/internal/chat"
	"github.com/replichat/replichat/internal/config"
	"github.com/replichat/replichat/internal/rpc"
	"github.com/replichat/replichat/internal/transport"
)

func pingStub(t *testing.T, ctx context.Context) net.Conn {
	t.Helper()
	serverConn, testConn := net.Pipe()
	sess := rpc.NewSession(transport.NewSession(serverConn), zap.NewNop())
	sess.RegisterHandler("ping", func(ctx context.Context, params []json.RawMessage) (any, error) {
		return chat.Ok{}, nil
	})
	go sess.RunEventLoop(ctx)
	t.Cleanup(func() { serverConn.Close() })
	return testConn
}

func TestLeaderElectionPromotesWhenNoPredecessorAnswers(t *testing.T) {
	p1 := config.Addr{Host: "localhost", Port: 7201}
	p2 := config.Addr{Host: "localhost", Port: 7202}
	self := config.Addr{Host: "localhost", Port: 7203}
	cfg := config.Config{Servers: []config.Addr{p1, p2, self}}

	s, dialer := newTestState(t, self, cfg)
	dialer.failAlways(p1)
	dialer.failAlways(p2)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	s.runLeaderElection(ctx)

	if !s.IsPrimary() {
		t.Fatal("expected self-promotion when no predecessor answers")
	}
}

func TestLeaderElectionStaysBackupWhenAPredecessorAnswers(t *testing.T) {
	p1 := config.Addr{Host: "localhost", Port: 7204}
	p2 := config.Addr{Host: "localhost", Port: 7205}
	self := config.Addr{Host: "localhost", Port: 7206}
	cfg := config.Config{Servers: []config.Addr{p1, p2, self}}

	s, dialer := newTestState(t, self, cfg)
	dialer.failAlways(p1)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	dialer.queue(p2, pingStub(t, ctx))

	s.runLeaderElection(ctx)

	if s.IsPrimary() {
		t.Fatal("expected to remain backup when a predecessor answers ping")
	}
}
