// Package rpc implements a restricted JSON-RPC 2.0 session layer on top of
// internal/transport: positional params only, integer-or-absent ids, no
// batching, and an error envelope of {code, message, data}.
package rpc

import (
	"encoding/json"
	"fmt"
)

// RequestID identifies one outstanding request on a Session. It wraps modulo
// 2^32 per spec, though in practice a session never lives long enough to
// wrap.
type RequestID uint32

// Request is one JSON-RPC 2.0 request (or notification, if ID is nil).
type Request struct {
	Method string
	Params []json.RawMessage
	ID     *RequestID
}

// IsNotification reports whether this request expects no response.
func (r Request) IsNotification() bool {
	return r.ID == nil
}

type wireRequest struct {
	JSONRPC string             `json:"jsonrpc"`
	Method  string             `json:"method"`
	Params  []json.RawMessage  `json:"params"`
	ID      *RequestID         `json:"id,omitempty"`
}

// Marshal serializes r to its wire form.
func (r Request) Marshal() ([]byte, error) {
	w := wireRequest{
		JSONRPC: "2.0",
		Method:  r.Method,
		Params:  r.Params,
		ID:      r.ID,
	}
	if w.Params == nil {
		w.Params = []json.RawMessage{}
	}
	return json.Marshal(w)
}

// ParseRequest decodes obj (a parsed JSON object) as a Request.
func ParseRequest(obj map[string]json.RawMessage) (Request, error) {
	methodRaw, hasMethod := obj["method"]
	paramsRaw, hasParams := obj["params"]
	if !hasMethod || !hasParams {
		return Request{}, fmt.Errorf("rpc: request missing method or params")
	}

	var method string
	if err := json.Unmarshal(methodRaw, &method); err != nil {
		return Request{}, fmt.Errorf("rpc: invalid method: %w", err)
	}

	var params []json.RawMessage
	if err := json.Unmarshal(paramsRaw, &params); err != nil {
		return Request{}, fmt.Errorf("rpc: params must be a positional array: %w", err)
	}

	req := Request{Method: method, Params: params}
	if idRaw, ok := obj["id"]; ok {
		var id RequestID
		if err := json.Unmarshal(idRaw, &id); err != nil {
			return Request{}, fmt.Errorf("rpc: id must be an integer: %w", err)
		}
		req.ID = &id
	}
	return req, nil
}

// Response is one JSON-RPC 2.0 response: exactly one of Result or Err is set.
type Response struct {
	ID     *RequestID
	Result json.RawMessage
	Err    *Error
}

type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *RequestID      `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Marshal serializes r to its wire form.
func (r Response) Marshal() ([]byte, error) {
	return json.Marshal(wireResponse{
		JSONRPC: "2.0",
		ID:      r.ID,
		Result:  r.Result,
		Error:   r.Err,
	})
}

// ParseResponse decodes obj (a parsed JSON object known to carry "id") as a
// Response.
func ParseResponse(obj map[string]json.RawMessage) (Response, error) {
	idRaw, ok := obj["id"]
	if !ok {
		return Response{}, fmt.Errorf("rpc: response missing id")
	}
	var id *RequestID
	if string(idRaw) != "null" {
		var v RequestID
		if err := json.Unmarshal(idRaw, &v); err != nil {
			return Response{}, fmt.Errorf("rpc: invalid response id: %w", err)
		}
		id = &v
	}

	resultRaw, hasResult := obj["result"]
	errRaw, hasError := obj["error"]

	switch {
	case hasResult && hasError:
		return Response{}, fmt.Errorf("rpc: response carries both result and error")
	case hasResult:
		return Response{ID: id, Result: resultRaw}, nil
	case hasError:
		var e Error
		if err := json.Unmarshal(errRaw, &e); err != nil {
			return Response{}, fmt.Errorf("rpc: invalid error envelope: %w", err)
		}
		return Response{ID: id, Err: &e}, nil
	default:
		return Response{}, fmt.Errorf("rpc: response carries neither result nor error")
	}
}
