package replica

import "time"

// Mtime is a nullable filesystem modification time with one ordering rule:
// NONE is older than any numeric mtime. It travels over the wire as a
// nullable unix-nanosecond integer.
type Mtime struct {
	t  time.Time
	ok bool
}

// NoMtime is the NONE case: a replica that has never committed its store.
func NoMtime() Mtime { return Mtime{} }

// FromTime wraps a known filesystem mtime.
func FromTime(t time.Time) Mtime { return Mtime{t: t, ok: true} }

// FromDb reads the mtime off a chat.Db, mapping "never committed" to NONE.
func fromStat(t time.Time, ok bool) Mtime {
	if !ok {
		return NoMtime()
	}
	return FromTime(t)
}

// Before reports whether m is strictly older than other, with NONE treated
// as older than any numeric value and equal to no other NONE.
func (m Mtime) Before(other Mtime) bool {
	if !m.ok {
		return other.ok
	}
	if !other.ok {
		return false
	}
	return m.t.Before(other.t)
}

// wireNanos marshals m as a nullable unix-nanosecond integer.
func (m Mtime) wireNanos() *int64 {
	if !m.ok {
		return nil
	}
	n := m.t.UnixNano()
	return &n
}

// mtimeFromWire is the inverse of wireNanos.
func mtimeFromWire(nanos *int64) Mtime {
	if nanos == nil {
		return NoMtime()
	}
	return FromTime(time.Unix(0, *nanos))
}
