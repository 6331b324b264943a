package chat

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestCreateUserAndFetchPending(t *testing.T) {
	db := NewDb(filepath.Join(t.TempDir(), "localhost-9000-db.json"))

	if err := db.CreateUser("ana"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := db.CreateUser("ana"); err == nil {
		t.Fatal("expected ErrUserAlreadyExists on duplicate create")
	}

	if err := db.Append("ana", Message{Sender: "bo", Recipient: "ana", Content: "hi"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	pending, err := db.FetchPending("ana")
	if err != nil {
		t.Fatalf("FetchPending: %v", err)
	}
	if len(pending) != 1 || pending[0].Content != "hi" {
		t.Fatalf("got %+v, want one message", pending)
	}

	again, err := db.FetchPending("ana")
	if err != nil {
		t.Fatalf("FetchPending again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("mailbox should be drained after fetch, got %+v", again)
	}
}

func TestAppendNoSuchUser(t *testing.T) {
	db := NewDb(filepath.Join(t.TempDir(), "localhost-9000-db.json"))
	if err := db.Append("ghost", Message{Sender: "a", Recipient: "ghost", Content: "x"}); err == nil {
		t.Fatal("expected ErrNoSuchUser")
	}
}

func TestDeleteUser(t *testing.T) {
	db := NewDb(filepath.Join(t.TempDir(), "localhost-9000-db.json"))
	_ = db.CreateUser("ana")

	if err := db.DeleteUser("ana"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if db.Contains("ana") {
		t.Fatal("ana should be gone")
	}
	if err := db.DeleteUser("ana"); err == nil {
		t.Fatal("expected ErrNoSuchUser on double delete")
	}
}

func TestCommitPersistsAcrossLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "localhost-9000-db.json")
	db := NewDb(path)
	_ = db.CreateUser("ana")
	_ = db.Append("ana", Message{Sender: "bo", Recipient: "ana", Content: "hello"})

	reloaded, err := LoadDb(path)
	if err != nil {
		t.Fatalf("LoadDb: %v", err)
	}
	msgs, ok := reloaded.Get("ana")
	if !ok {
		t.Fatal("ana should exist after reload")
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("got %+v, want one message with content hello", msgs)
	}
}

func TestCommitFileIsUserKeyedObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "localhost-9000-db.json")
	db := NewDb(path)
	_ = db.CreateUser("ana")
	_ = db.Append("ana", Message{Sender: "bo", Recipient: "ana", Content: "hi"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var asObject map[User]MessageList
	if err := json.Unmarshal(data, &asObject); err != nil {
		t.Fatalf("expected the db file to be a user-keyed JSON object, got %s: %v", data, err)
	}
	msgs, ok := asObject["ana"]
	if !ok || len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Fatalf("got %+v, want ana's mailbox with one message", asObject)
	}
}

func TestLoadDbMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist-db.json")
	db, err := LoadDb(path)
	if err != nil {
		t.Fatalf("LoadDb: %v", err)
	}
	if len(db.Users()) != 0 {
		t.Fatalf("expected empty db, got %+v", db.Users())
	}
}

func TestReplaceAllAndSnapshot(t *testing.T) {
	db := NewDb(filepath.Join(t.TempDir(), "localhost-9000-db.json"))
	_ = db.CreateUser("ana")
	_ = db.Append("ana", Message{Sender: "bo", Recipient: "ana", Content: "one"})

	snap := db.Snapshot()

	other := NewDb(filepath.Join(t.TempDir(), "localhost-9001-db.json"))
	if err := other.ReplaceAll(snap); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	msgs, ok := other.Get("ana")
	if !ok || len(msgs) != 1 || msgs[0].Content != "one" {
		t.Fatalf("got %+v, want snapshot copied over", msgs)
	}

	// Mutating the source after snapshot must not affect the copy.
	_ = db.Append("ana", Message{Sender: "bo", Recipient: "ana", Content: "two"})
	msgs, _ = other.Get("ana")
	if len(msgs) != 1 {
		t.Fatalf("snapshot should be a deep copy, got %+v", msgs)
	}
}
