// Package transport turns a duplex byte pipe into a duplex stream of
// discrete, arbitrarily large payloads.
//
// Each payload is split into fixed-size chunks, each prefixed with a 9-byte
// header (chunk size, message id, more-flag). The receiving side reassembles
// chunks sharing a message id and emits the payload once the last chunk
// (more=0) arrives. Chunks belonging to different ids may interleave on the
// wire, which is why reassembly is keyed by id rather than relying on
// in-order delivery of whole payloads.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MaxMsgSize bounds the size of a single chunk's payload. Logical payloads
// larger than this are split across multiple chunks sharing one message id.
const MaxMsgSize = 1 << 16

// headerSize is the fixed 9-byte frame header: 4 bytes chunk size, 4 bytes
// message id, 1 byte more-flag. All fields are big-endian.
const headerSize = 9

// ErrClosed is returned by Send when the underlying pipe has been shut down.
var ErrClosed = errors.New("transport: closed")

// Session wraps one io.ReadWriteCloser with chunked framing in both
// directions. It is single-producer/single-consumer per direction: one
// goroutine may call Send at a time, and Receive must be drained by a single
// consumer. The reassembly map used by Receive is not shared with the send
// path.
type Session struct {
	rwc io.ReadWriteCloser

	sendMu sync.Mutex
	nextID uint32
	closed bool

	recvMu   sync.Mutex
	partials map[uint32][]byte
}

// NewSession wraps rwc in a framed Session. rwc is typically a net.Conn, but
// any reliable bidirectional byte stream works (e.g. net.Pipe for tests).
func NewSession(rwc io.ReadWriteCloser) *Session {
	return &Session{
		rwc:      rwc,
		partials: make(map[uint32][]byte),
	}
}

// Close shuts down the underlying pipe. Send calls made after Close return
// ErrClosed; a Send or Receive already using the pipe fails with whatever
// error the pipe reports (wrapped, or io.EOF if it reads as end of stream).
func (s *Session) Close() error {
	s.sendMu.Lock()
	s.closed = true
	s.sendMu.Unlock()
	return s.rwc.Close()
}

// freshID returns the next message id, wrapping at 2^32 as spec'd.
func (s *Session) freshID() uint32 {
	id := s.nextID
	s.nextID++
	return id
}

// Send chunks payload and writes it to the pipe, flushing each chunk before
// moving to the next. Returns ErrClosed if the session has been closed.
func (s *Session) Send(payload []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed {
		return ErrClosed
	}

	id := s.freshID()

	// A zero-length payload is still a single chunk (more=0) so the
	// receiver emits an empty message rather than nothing at all.
	offset := 0
	for {
		end := offset + MaxMsgSize
		last := end >= len(payload)
		if last {
			end = len(payload)
		}

		chunk := payload[offset:end]
		if err := s.writeFrame(chunk, id, !last); err != nil {
			return err
		}

		if last {
			return nil
		}
		offset = end
	}
}

func (s *Session) writeFrame(chunk []byte, id uint32, more bool) error {
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(chunk)))
	binary.BigEndian.PutUint32(header[4:8], id)
	if more {
		header[8] = 1
	}

	if _, err := s.rwc.Write(header); err != nil {
		return fmt.Errorf("transport: write header: %w", err)
	}
	if len(chunk) > 0 {
		if _, err := s.rwc.Write(chunk); err != nil {
			return fmt.Errorf("transport: write chunk: %w", err)
		}
	}
	return nil
}

// Receive reads frames from the pipe until a complete payload is
// reassembled, returning it. It returns io.EOF when the pipe closes cleanly
// (a trailing partial chunk at EOF is discarded silently, per spec) and any
// other error verbatim.
//
// Receive is not safe to call concurrently with itself; the caller is the
// sole reader of this direction.
func (s *Session) Receive() ([]byte, error) {
	for {
		header := make([]byte, headerSize)
		if _, err := io.ReadFull(s.rwc, header); err != nil {
			return nil, eofOrWrap(err)
		}

		size := binary.BigEndian.Uint32(header[0:4])
		id := binary.BigEndian.Uint32(header[4:8])
		more := header[8] == 1

		chunk := make([]byte, size)
		if size > 0 {
			if _, err := io.ReadFull(s.rwc, chunk); err != nil {
				return nil, eofOrWrap(err)
			}
		}

		s.recvMu.Lock()
		buf := append(s.partials[id], chunk...)
		if more {
			s.partials[id] = buf
			s.recvMu.Unlock()
			continue
		}
		delete(s.partials, id)
		s.recvMu.Unlock()

		return buf, nil
	}
}

// eofOrWrap normalizes end of stream to io.EOF, whether it falls at the very
// start of a frame (io.EOF) or partway through one (io.ErrUnexpectedEOF,
// whose partial frame is dropped), and wraps any other read error for
// diagnostics. Both cases end the Receive loop; the
// caller treats any error from Receive as "the stream is done."
func eofOrWrap(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	return fmt.Errorf("transport: read: %w", err)
}
