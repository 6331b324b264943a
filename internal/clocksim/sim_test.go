package clocksim

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSimulationRunsAndWritesLogs(t *testing.T) {
	dir := t.TempDir()

	sim, err := New(dir, zap.NewNop(), NoopMetrics{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := sim.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for lid := 1; lid <= peerCount; lid++ {
		path := filepath.Join(dir, "log"+strconv.Itoa(lid)+".txt")
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("expected log file for M%d: %v", lid, err)
		}
		if info.Size() == 0 {
			t.Fatalf("expected non-empty log file for M%d", lid)
		}
	}
}
