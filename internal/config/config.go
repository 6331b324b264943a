// Package config loads the chain topology config file and
// provides the position arithmetic the replication layer needs: who is
// the initial primary, and which addresses strictly precede a given one.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultPath is the config file name used when none is given on the
// command line, matching the homework's config.py default.
const DefaultPath = "config.json"

// Addr is one chain member's bind address.
type Addr struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (a Addr) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// wireConfig is the on-disk JSON shape: {"servers": [{"host","port"}, ...]}.
type wireConfig struct {
	Servers []Addr `json:"servers"`
}

// Config is the ordered chain topology. Index 0 is the initial primary;
// subsequent entries form the chain in order.
type Config struct {
	Servers []Addr
}

// Load reads and parses the config file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var w wireConfig
	if err := json.Unmarshal(data, &w); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if len(w.Servers) == 0 {
		return Config{}, fmt.Errorf("config: %s declares no servers", path)
	}
	return Config{Servers: w.Servers}, nil
}

// Contains reports whether addr is a configured chain member.
func (c Config) Contains(addr Addr) bool {
	for _, s := range c.Servers {
		if s == addr {
			return true
		}
	}
	return false
}

// IndexOf returns addr's position in the chain, or -1 if addr is not
// configured.
func (c Config) IndexOf(addr Addr) int {
	for i, s := range c.Servers {
		if s == addr {
			return i
		}
	}
	return -1
}

// IsPrimary reports whether addr occupies position 0, the initial primary.
func (c Config) IsPrimary(addr Addr) bool {
	return len(c.Servers) > 0 && c.Servers[0] == addr
}

// Preceding returns every configured address strictly before addr's
// position, in configured order — the candidate set a backup pings during
// leader election.
func (c Config) Preceding(addr Addr) []Addr {
	idx := c.IndexOf(addr)
	if idx <= 0 {
		return nil
	}
	out := make([]Addr, idx)
	copy(out, c.Servers[:idx])
	return out
}

// ImmediatePredecessor returns the configured address directly before addr
// in the chain, or ok=false if addr is the primary (position 0) or
// unconfigured.
func (c Config) ImmediatePredecessor(addr Addr) (Addr, bool) {
	idx := c.IndexOf(addr)
	if idx <= 0 {
		return Addr{}, false
	}
	return c.Servers[idx-1], true
}

// Tail returns every configured address strictly after addr's position, in
// configured order — the failover candidate list for a replica's
// downstream link.
func (c Config) Tail(addr Addr) []Addr {
	idx := c.IndexOf(addr)
	if idx < 0 || idx+1 >= len(c.Servers) {
		return nil
	}
	out := make([]Addr, len(c.Servers)-idx-1)
	copy(out, c.Servers[idx+1:])
	return out
}
