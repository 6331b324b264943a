package replica

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// StartLivenessProbe runs a periodic ping against the current downstream
// link, independent of write traffic. A chain with no active chat traffic
// would otherwise never notice a dead downstream link until the next write
// arrives; this closes it eagerly so the next forward reconnects without
// waiting on the write path to discover the failure.
func (s *State) StartLivenessProbe(ctx context.Context, interval time.Duration) (func() error, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("replica: failed to create prober scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.probeDownstream(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("replica: failed to schedule downstream prober: %w", err)
	}

	sched.Start()
	return sched.Shutdown, nil
}

func (s *State) probeDownstream(ctx context.Context) {
	sess, ok := s.downstream.get()
	if !ok {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp, err := sess.Request(probeCtx, "ping", nil, false)
	if err != nil || resp.Err != nil {
		s.logger.Warn("downstream liveness probe failed, closing link for reconnect", zap.Error(err))
		s.downstream.close()
	}
}
