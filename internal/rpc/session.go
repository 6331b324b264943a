package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/replichat/replichat/internal/transport"
)

// Handler answers one request's positional params and returns a JSON-able
// result, or an error. An *Error is surfaced to the caller verbatim; any
// other error is a bug and is converted to a generic 400 "bad request" with
// diagnostic data — it must never escape a handler onto the wire as-is.
type Handler func(ctx context.Context, params []json.RawMessage) (any, error)

// Session is a JSON-RPC session layered over one transport.Session. Unlike
// the Python homework's single-threaded cooperative event loop, handlers and
// outstanding requests run as real goroutines here, so the maps below are
// mutex-protected rather than relying on cooperative-yield-point reasoning.
type Session struct {
	ts     *transport.Session
	logger *zap.Logger

	mu              sync.Mutex
	currID          RequestID
	pendingRequests map[RequestID]*future[Response]
	handlers        map[string]Handler

	running atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession wraps ts in a JSON-RPC session. Call RegisterHandler for every
// method this side serves, then RunEventLoop to start dispatching.
func NewSession(ts *transport.Session, logger *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ts:              ts,
		logger:          logger,
		pendingRequests: make(map[RequestID]*future[Response]),
		handlers:        make(map[string]Handler),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// RegisterHandler upserts the handler for method. Last registration wins.
func (s *Session) RegisterHandler(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// IsRunning reports whether RunEventLoop is currently draining the
// transport.
func (s *Session) IsRunning() bool {
	return s.running.Load()
}

func (s *Session) freshID() RequestID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.currID
	s.currID++
	return id
}

// Request sends method(params) and, unless notify is true, suspends until
// the matching response arrives. It fails with ErrDisconnected if the event
// loop is not running — there would be nobody to ever fill the completion
// slot.
func (s *Session) Request(ctx context.Context, method string, params []any, notify bool) (Response, error) {
	if !s.running.Load() {
		return Response{}, ErrDisconnected
	}

	raw := make([]json.RawMessage, len(params))
	for i, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			return Response{}, fmt.Errorf("rpc: marshal param %d: %w", i, err)
		}
		raw[i] = b
	}

	req := Request{Method: method, Params: raw}

	if notify {
		payload, err := req.Marshal()
		if err != nil {
			return Response{}, fmt.Errorf("rpc: marshal notification: %w", err)
		}
		if err := s.ts.Send(payload); err != nil {
			return Response{}, fmt.Errorf("rpc: send notification: %w", err)
		}
		return Response{}, nil
	}

	id := s.freshID()
	req.ID = &id

	slot := newFuture[Response]()
	s.mu.Lock()
	s.pendingRequests[id] = slot
	s.mu.Unlock()

	payload, err := req.Marshal()
	if err != nil {
		s.mu.Lock()
		delete(s.pendingRequests, id)
		s.mu.Unlock()
		return Response{}, fmt.Errorf("rpc: marshal request: %w", err)
	}

	if err := s.ts.Send(payload); err != nil {
		s.mu.Lock()
		delete(s.pendingRequests, id)
		s.mu.Unlock()
		return Response{}, fmt.Errorf("rpc: send request: %w", err)
	}

	type result struct {
		resp Response
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		resp, err := slot.Read()
		resultCh <- result{resp, err}
	}()

	select {
	case r := <-resultCh:
		s.mu.Lock()
		delete(s.pendingRequests, id)
		s.mu.Unlock()
		return r.resp, r.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// RunEventLoop drains the transport until it ends, dispatching each payload.
// It blocks until the transport's Receive returns an error (normally io.EOF)
// or ctx is cancelled, then cancels all pending background handler jobs and
// wakes any suspended Request callers with ErrDisconnected.
func (s *Session) RunEventLoop(ctx context.Context) error {
	s.running.Store(true)
	defer func() {
		s.running.Store(false)
		s.cancel()

		s.mu.Lock()
		pending := s.pendingRequests
		s.pendingRequests = make(map[RequestID]*future[Response])
		s.mu.Unlock()
		for _, slot := range pending {
			slot.Cancel(ErrDisconnected)
		}

		s.wg.Wait()
	}()

	stopCh := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.ts.Close()
		case <-stopCh:
		}
	}()
	defer close(stopCh)

	for {
		payload, err := s.ts.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal(payload, &obj); err != nil {
			s.fireAndForgetError(BadRequest(string(payload)))
			continue
		}

		s.dispatch(obj)
	}
}

func (s *Session) dispatch(obj map[string]json.RawMessage) {
	if _, hasMethod := obj["method"]; hasMethod {
		req, err := ParseRequest(obj)
		if err != nil {
			s.fireAndForgetError(BadRequest(err.Error()))
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleRequest(req)
		}()
		return
	}

	if _, hasID := obj["id"]; hasID {
		resp, err := ParseResponse(obj)
		if err != nil {
			s.fireAndForgetError(BadRequest(err.Error()))
			return
		}
		if resp.ID == nil {
			s.logger.Warn("rpc: response with null id, dropping")
			return
		}
		s.mu.Lock()
		slot, ok := s.pendingRequests[*resp.ID]
		if ok {
			delete(s.pendingRequests, *resp.ID)
		}
		s.mu.Unlock()
		if !ok {
			s.fireAndForgetError(NoSuchRequest(*resp.ID))
			return
		}
		slot.Fill(resp)
		return
	}

	s.fireAndForgetError(BadRequest("request has neither method nor id"))
}

func (s *Session) handleRequest(req Request) {
	s.mu.Lock()
	h, ok := s.handlers[req.Method]
	s.mu.Unlock()

	if !ok {
		if !req.IsNotification() {
			s.sendResponse(Response{ID: req.ID, Err: NoSuchMethod(req.Method)})
		}
		return
	}

	result, err := h(s.ctx, req.Params)
	if req.IsNotification() {
		return
	}

	if err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			s.sendResponse(Response{ID: req.ID, Err: rpcErr})
			return
		}
		// A non-*Error escaping a handler is a bug. Never let it onto the
		// wire unmodified — downgrade it to a generic bad-request with
		// diagnostic data.
		s.sendResponse(Response{ID: req.ID, Err: BadRequest(err.Error())})
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		s.sendResponse(Response{ID: req.ID, Err: BadRequest(err.Error())})
		return
	}
	s.sendResponse(Response{ID: req.ID, Result: raw})
}

func (s *Session) sendResponse(resp Response) {
	payload, err := resp.Marshal()
	if err != nil {
		s.logger.Warn("rpc: failed to marshal response", zap.Error(err))
		return
	}
	if err := s.ts.Send(payload); err != nil {
		s.logger.Debug("rpc: failed to send response", zap.Error(err))
	}
}

// fireAndForgetError sends an id=null error response and swallows any send
// failure — a best-effort notification, not a request awaiting a reply.
func (s *Session) fireAndForgetError(e *Error) {
	s.sendResponse(Response{ID: nil, Err: e})
}
