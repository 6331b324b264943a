package replica

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/replichat/replichat/internal/chat"
	"github.com/replichat/replichat/internal/config"
	"github.com/replichat/replichat/internal/rpc"
	"github.com/replichat/replichat/internal/transport"
)

// fakeDialer hands out pre-wired net.Conn endpoints keyed by address,
// recording every dial attempt so failover tests can assert ordering.
type fakeDialer struct {
	conns   map[string][]net.Conn
	dials   []config.Addr
	failing map[string]bool
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(map[string][]net.Conn), failing: make(map[string]bool)}
}

func (f *fakeDialer) queue(addr config.Addr, conn net.Conn) {
	f.conns[addr.String()] = append(f.conns[addr.String()], conn)
}

func (f *fakeDialer) failAlways(addr config.Addr) {
	f.failing[addr.String()] = true
}

func (f *fakeDialer) Dial(ctx context.Context, addr config.Addr) (net.Conn, error) {
	f.dials = append(f.dials, addr)
	if f.failing[addr.String()] {
		return nil, context.DeadlineExceeded
	}
	queued := f.conns[addr.String()]
	if len(queued) == 0 {
		return nil, context.DeadlineExceeded
	}
	conn := queued[0]
	f.conns[addr.String()] = queued[1:]
	return conn, nil
}

// newTestState builds a State backed by a fresh Db in t.TempDir(), wired to
// a fakeDialer, with no-op audit/metrics.
func newTestState(t *testing.T, addr config.Addr, cfg config.Config) (*State, *fakeDialer) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "db.json")
	db, err := chat.LoadDb(dbPath)
	if err != nil {
		t.Fatalf("LoadDb: %v", err)
	}
	dialer := newFakeDialer()
	s := NewState(addr, cfg, db, dialer, zap.NewNop(), nil, nil)
	return s, dialer
}

// connectedClient wires a fresh net.Pipe to s's connection handler on one
// end, returning an rpc.Session bound to the other end for the test to
// drive as a client.
func connectedClient(t *testing.T, ctx context.Context, s *State) *rpc.Session {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() {
		serverConn.Close()
		clientConn.Close()
	})

	go s.handleConn(ctx, serverConn)

	clientSess := rpc.NewSession(transport.NewSession(clientConn), zap.NewNop())
	go clientSess.RunEventLoop(ctx)
	for !clientSess.IsRunning() {
		time.Sleep(time.Millisecond)
	}
	return clientSess
}
