package clientcli

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/replichat/replichat/internal/chat"
	"github.com/replichat/replichat/internal/rpc"
	"github.com/replichat/replichat/internal/transport"
)

// fakeServer answers register_client, create_user, login, list_users, and
// send with canned results, enough to exercise the REPL's dispatch table.
func fakeServer(t *testing.T, ctx context.Context) net.Conn {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	sess := rpc.NewSession(transport.NewSession(serverConn), zap.NewNop())

	sess.RegisterHandler("register_client", func(ctx context.Context, params []json.RawMessage) (any, error) {
		return chat.Ok{}, nil
	})
	sess.RegisterHandler("create_user", func(ctx context.Context, params []json.RawMessage) (any, error) {
		return chat.Ok{}, nil
	})
	sess.RegisterHandler("login", func(ctx context.Context, params []json.RawMessage) (any, error) {
		return chat.MessageList{{Sender: "bob", Recipient: "alice", Content: "hi"}}, nil
	})
	sess.RegisterHandler("list_users", func(ctx context.Context, params []json.RawMessage) (any, error) {
		return []chat.User{"alice", "bob"}, nil
	})
	sess.RegisterHandler("send", func(ctx context.Context, params []json.RawMessage) (any, error) {
		return chat.Ok{}, nil
	})

	go sess.RunEventLoop(ctx)
	t.Cleanup(func() { serverConn.Close() })
	return clientConn
}

func TestREPLDispatchesKnownCommands(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn := fakeServer(t, ctx)
	sess := rpc.NewSession(transport.NewSession(conn), zap.NewNop())
	go sess.RunEventLoop(ctx)
	for !sess.IsRunning() {
		time.Sleep(time.Millisecond)
	}

	resp, err := sess.Request(ctx, "register_client", nil, false)
	if err != nil || resp.Err != nil {
		t.Fatalf("register_client: err=%v resp.Err=%v", err, resp.Err)
	}

	var out bytes.Buffer
	c := &Client{sess: sess, conn: conn, out: &out, logger: zap.NewNop()}

	input := strings.NewReader("create alice\nlogin alice\nlist\nsend bob hello there\nquit\n")
	if err := c.RunREPL(ctx, input); err != nil {
		t.Fatalf("RunREPL: %v", err)
	}

	got := out.String()
	for _, want := range []string{"ok", "logged in as alice", "[bob -> you] hi", "alice", "bob"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, got)
		}
	}
}

func TestDispatchUnknownCommandReportsError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn := fakeServer(t, ctx)
	sess := rpc.NewSession(transport.NewSession(conn), zap.NewNop())
	go sess.RunEventLoop(ctx)

	var out bytes.Buffer
	c := &Client{sess: sess, conn: conn, out: &out, logger: zap.NewNop()}

	if err := c.dispatch(ctx, "frobnicate"); err == nil {
		t.Fatal("expected an error for an unknown command")
	}
}
