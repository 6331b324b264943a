package rpc

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/replichat/replichat/internal/transport"
)

func pair(t *testing.T) (*Session, *Session) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	logger := zap.NewNop()
	client := NewSession(transport.NewSession(a), logger)
	server := NewSession(transport.NewSession(b), logger)
	go client.RunEventLoop(context.Background())
	go server.RunEventLoop(context.Background())
	for !client.IsRunning() || !server.IsRunning() {
		time.Sleep(time.Millisecond)
	}
	return client, server
}

func TestRequestResponseRoundTrip(t *testing.T) {
	client, server := pair(t)

	server.RegisterHandler("echo", func(ctx context.Context, params []json.RawMessage) (any, error) {
		var s string
		if err := json.Unmarshal(params[0], &s); err != nil {
			return nil, err
		}
		return s + s, nil
	})

	resp, err := client.Request(context.Background(), "echo", []any{"ab"}, false)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Err != nil {
		t.Fatalf("unexpected error response: %v", resp.Err)
	}

	var got string
	if err := json.Unmarshal(resp.Result, &got); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if got != "abab" {
		t.Fatalf("got %q, want %q", got, "abab")
	}
}

func TestNoSuchMethod(t *testing.T) {
	client, _ := pair(t)

	resp, err := client.Request(context.Background(), "nope", nil, false)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Err == nil || resp.Err.Code != CodeNoSuchMethod {
		t.Fatalf("got %+v, want code %d", resp.Err, CodeNoSuchMethod)
	}
}

func TestHandlerErrorSurfacesAsError(t *testing.T) {
	client, server := pair(t)

	server.RegisterHandler("boom", func(ctx context.Context, params []json.RawMessage) (any, error) {
		return nil, NewError(301, "no such user", "ana")
	})

	resp, err := client.Request(context.Background(), "boom", nil, false)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Err == nil || resp.Err.Code != 301 {
		t.Fatalf("got %+v, want code 301", resp.Err)
	}
}

func TestGenericHandlerErrorBecomesBadRequest(t *testing.T) {
	client, server := pair(t)

	server.RegisterHandler("panics", func(ctx context.Context, params []json.RawMessage) (any, error) {
		return nil, errNotAnRPCError
	})

	resp, err := client.Request(context.Background(), "panics", nil, false)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Err == nil || resp.Err.Code != CodeBadRequest {
		t.Fatalf("got %+v, want code %d", resp.Err, CodeBadRequest)
	}
}

func TestNotificationProducesNoResponse(t *testing.T) {
	client, server := pair(t)

	called := make(chan struct{}, 1)
	server.RegisterHandler("ping", func(ctx context.Context, params []json.RawMessage) (any, error) {
		called <- struct{}{}
		return "pong", nil
	})

	if _, err := client.Request(context.Background(), "ping", nil, true); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("handler never invoked for notification")
	}
}

func TestDisconnectedAfterEventLoopExit(t *testing.T) {
	a, b := net.Pipe()
	logger := zap.NewNop()
	client := NewSession(transport.NewSession(a), logger)
	done := make(chan error, 1)
	go func() { done <- client.RunEventLoop(context.Background()) }()

	b.Close()
	<-done

	if _, err := client.Request(context.Background(), "anything", nil, false); err != ErrDisconnected {
		t.Fatalf("got %v, want ErrDisconnected", err)
	}
}

var errNotAnRPCError = plainError("boom")

type plainError string

func (e plainError) Error() string { return string(e) }
