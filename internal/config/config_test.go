package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, servers []Addr) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	data, err := json.Marshal(wireConfig{Servers: servers})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadAndPosition(t *testing.T) {
	servers := []Addr{
		{Host: "localhost", Port: 9000},
		{Host: "localhost", Port: 9001},
		{Host: "localhost", Port: 9002},
	}
	path := writeConfig(t, servers)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Servers) != 3 {
		t.Fatalf("got %d servers, want 3", len(cfg.Servers))
	}
	if !cfg.IsPrimary(servers[0]) {
		t.Fatal("servers[0] should be primary")
	}
	if cfg.IsPrimary(servers[1]) {
		t.Fatal("servers[1] should not be primary")
	}
}

func TestPrecedingAndTail(t *testing.T) {
	servers := []Addr{
		{Host: "h", Port: 1},
		{Host: "h", Port: 2},
		{Host: "h", Port: 3},
	}
	cfg := Config{Servers: servers}

	if p := cfg.Preceding(servers[0]); len(p) != 0 {
		t.Fatalf("primary should have no preceding, got %+v", p)
	}
	if p := cfg.Preceding(servers[2]); len(p) != 2 || p[0] != servers[0] || p[1] != servers[1] {
		t.Fatalf("got %+v, want [servers[0], servers[1]]", p)
	}

	if tl := cfg.Tail(servers[2]); len(tl) != 0 {
		t.Fatalf("last server should have no tail, got %+v", tl)
	}
	if tl := cfg.Tail(servers[0]); len(tl) != 2 || tl[0] != servers[1] || tl[1] != servers[2] {
		t.Fatalf("got %+v, want [servers[1], servers[2]]", tl)
	}
}

func TestContainsAndIndexOf(t *testing.T) {
	servers := []Addr{{Host: "h", Port: 1}, {Host: "h", Port: 2}}
	cfg := Config{Servers: servers}

	if !cfg.Contains(servers[1]) {
		t.Fatal("expected Contains to find servers[1]")
	}
	if cfg.Contains(Addr{Host: "h", Port: 99}) {
		t.Fatal("unexpected Contains hit for unconfigured address")
	}
	if idx := cfg.IndexOf(servers[1]); idx != 1 {
		t.Fatalf("got index %d, want 1", idx)
	}
	if idx := cfg.IndexOf(Addr{Host: "h", Port: 99}); idx != -1 {
		t.Fatalf("got index %d, want -1", idx)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error loading missing file")
	}
}

func TestLoadEmptyServers(t *testing.T) {
	path := writeConfig(t, nil)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty servers list")
	}
}
