package chat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// dbFileFormat mirrors the homework's SERVER_DB_FORMAT: one store file per
// listening address, so a replica started against "host:port" always finds
// its own state on restart without colliding with any other replica's file.
const dbFileFormat = "%s-%d-db.json"

// DbPath returns the on-disk path for a replica listening on host:port,
// rooted at dir (dir may be "" for the current working directory).
func DbPath(dir, host string, port int) string {
	name := fmt.Sprintf(dbFileFormat, host, port)
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// Db is a replica's durable mailbox store: every user maps to their
// pending (undelivered) messages. It is safe for concurrent use.
//
// Unlike the homework's Db, which writes the file directly and swallows
// IOErrors, every commit here writes atomically via temp-file-plus-rename and
// reports failures to the caller instead of discarding them.
type Db struct {
	mu   sync.RWMutex
	d    map[User]MessageList
	path string
}

// NewDb returns an empty Db that commits to path.
func NewDb(path string) *Db {
	return &Db{d: make(map[User]MessageList), path: path}
}

// LoadDb reads path and reconstructs a Db. A missing file is not an error —
// it yields a fresh, empty Db at that path, matching a replica's first-ever
// startup.
func LoadDb(path string) (*Db, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDb(path), nil
		}
		return nil, fmt.Errorf("chat: read db file: %w", err)
	}

	var d map[User]MessageList
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("chat: corrupted db file %s: %w", path, err)
	}
	if d == nil {
		d = make(map[User]MessageList)
	}
	return &Db{d: d, path: path}, nil
}

// Contains reports whether user has an account on this replica.
func (db *Db) Contains(user User) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.d[user]
	return ok
}

// Get returns user's current mailbox and whether the user exists.
func (db *Db) Get(user User) (MessageList, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	msgs, ok := db.d[user]
	return msgs, ok
}

// Users returns every registered user, in no particular order.
func (db *Db) Users() []User {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]User, 0, len(db.d))
	for u := range db.d {
		out = append(out, u)
	}
	return out
}

// CreateUser registers user with an empty mailbox and commits. Returns
// ErrUserAlreadyExists (an *rpc.Error with code 303) if the user is
// already present.
func (db *Db) CreateUser(user User) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.d[user]; exists {
		return ErrUserAlreadyExists(user)
	}
	db.d[user] = MessageList{}
	return db.commitLocked()
}

// DeleteUser removes user and commits. Returns ErrNoSuchUser if absent.
func (db *Db) DeleteUser(user User) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.d[user]; !exists {
		return ErrNoSuchUser(user)
	}
	delete(db.d, user)
	return db.commitLocked()
}

// Append adds msg to recipient's mailbox and commits. Returns ErrNoSuchUser
// if recipient has no account.
func (db *Db) Append(recipient User, msg Message) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.d[recipient]; !exists {
		return ErrNoSuchUser(recipient)
	}
	db.d[recipient] = append(db.d[recipient], msg)
	return db.commitLocked()
}

// FetchPending atomically empties and returns user's mailbox, the Go
// analogue of the homework's fetch_pending_msgs used on login.
func (db *Db) FetchPending(user User) (MessageList, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	msgs, exists := db.d[user]
	if !exists {
		return nil, ErrNoSuchUser(user)
	}
	db.d[user] = MessageList{}
	if err := db.commitLocked(); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ReplaceAll overwrites the entire store (used by a newly-registered replica
// receiving a state-transfer snapshot from its upstream) and commits.
func (db *Db) ReplaceAll(snapshot map[User]MessageList) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := make(map[User]MessageList, len(snapshot))
	for u, m := range snapshot {
		cp[u] = append(MessageList(nil), m...)
	}
	db.d = cp
	return db.commitLocked()
}

// Snapshot returns a deep copy of the entire store, for sending to a
// downstream replica during state transfer.
func (db *Db) Snapshot() map[User]MessageList {
	db.mu.RLock()
	defer db.mu.RUnlock()
	cp := make(map[User]MessageList, len(db.d))
	for u, m := range db.d {
		cp[u] = append(MessageList(nil), m...)
	}
	return cp
}

// Mtime reports the store file's current modification time. The second
// return value is false if the file has never been committed (a brand new
// replica with nothing on disk yet) — the NONE case, which callers must
// treat as older than any numeric mtime.
func (db *Db) Mtime() (time.Time, bool) {
	fi, err := os.Stat(db.path)
	if err != nil {
		return time.Time{}, false
	}
	return fi.ModTime(), true
}

// Path returns the backing file path this Db commits to.
func (db *Db) Path() string {
	return db.path
}

// commitLocked writes the store to db.path atomically via temp file plus
// rename, so a crash mid-write never leaves a truncated or half-written
// file behind. Callers must hold db.mu. encoding/json marshals map keys in
// sorted order, so the file stays diffable despite db.d being a map.
func (db *Db) commitLocked() error {
	data, err := json.Marshal(db.d)
	if err != nil {
		return fmt.Errorf("chat: marshal db: %w", err)
	}

	dir := filepath.Dir(db.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("chat: create db dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".db-*.tmp")
	if err != nil {
		return fmt.Errorf("chat: create temp db file: %w", err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("chat: write temp db file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("chat: close temp db file: %w", err)
	}
	if err := os.Rename(tmpPath, db.path); err != nil {
		return fmt.Errorf("chat: rename temp db file: %w", err)
	}
	ok = true
	return nil
}
