// Package chat holds the core chat domain model: users, messages, and the
// durable per-replica message store. It has no knowledge of transport, RPC,
// or replication — those live in internal/rpc and internal/replica.
package chat

// User is an opaque, non-empty handle. Equality is plain string identity.
type User string

// Message is an immutable triple once created.
type Message struct {
	Sender    User   `json:"sender"`
	Recipient User   `json:"recipient"`
	Content   string `json:"content"`
}

// MessageList is an ordered, FIFO-on-delivery sequence of Message.
type MessageList []Message

// Ok is the empty success payload returned by operations with no data to
// report, mirroring the homework's `Ok` wrapper.
type Ok struct{}
