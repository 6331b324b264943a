package transport

import (
	"io"
	"net"
	"testing"
)

func pipeSessions(t *testing.T) (*Session, *Session) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return NewSession(a), NewSession(b)
}

func TestRoundTripSmallPayload(t *testing.T) {
	client, server := pipeSessions(t)

	want := []byte("hello, chat")
	errCh := make(chan error, 1)
	go func() { errCh <- client.Send(want) }()

	got, err := server.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRoundTripMultiChunk(t *testing.T) {
	client, server := pipeSessions(t)

	want := make([]byte, MaxMsgSize*3+17)
	for i := range want {
		want[i] = byte(i)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- client.Send(want) }()

	got, err := server.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d bytes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %x, want %x", i, got[i], want[i])
		}
	}
}

func TestInterleavedMessages(t *testing.T) {
	client, server := pipeSessions(t)

	msg1 := make([]byte, MaxMsgSize+10)
	msg2 := []byte("short second message")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := client.Send(msg1); err != nil {
			t.Errorf("send msg1: %v", err)
		}
		if err := client.Send(msg2); err != nil {
			t.Errorf("send msg2: %v", err)
		}
	}()

	got1, err := server.Receive()
	if err != nil {
		t.Fatalf("receive msg1: %v", err)
	}
	got2, err := server.Receive()
	if err != nil {
		t.Fatalf("receive msg2: %v", err)
	}
	<-done

	if len(got1) != len(msg1) {
		t.Fatalf("msg1 len: got %d, want %d", len(got1), len(msg1))
	}
	if string(got2) != string(msg2) {
		t.Fatalf("msg2: got %q, want %q", got2, msg2)
	}
}

func TestReceiveEOF(t *testing.T) {
	client, server := pipeSessions(t)
	client.Close()

	if _, err := server.Receive(); err != io.EOF {
		t.Fatalf("got %v, want io.EOF", err)
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	client, _ := pipeSessions(t)
	client.Close()

	if err := client.Send([]byte("x")); err != ErrClosed {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}
