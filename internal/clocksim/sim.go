// Package clocksim implements a three-peer Lamport logical clock
// simulation: fixed set of peers, each at a clock rate drawn independently
// and uniformly from 1..6 ticks per second (two peers may share a rate),
// exchanging timestamped messages over point-to-point pipes, each peer
// logging every send/receive/internal event to its own file.
package clocksim

import (
	"context"
	"encoding/gob"
	"fmt"
	"math/rand"
	"net"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const peerCount = 3

// Simulation owns the three peers, their net.Pipe links, and the gocron
// scheduler driving each peer's per-rate tick loop.
type Simulation struct {
	peers     []*Peer
	scheduler gocron.Scheduler
	logger    *zap.Logger
	closers   []func() error
}

// New builds a three-peer Simulation. logDir is where log1.txt, log2.txt,
// and log3.txt are written, one per peer, matching the original's
// log<lid>.txt naming.
func New(logDir string, logger *zap.Logger, metrics Metrics) (*Simulation, error) {
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("clocksim: failed to create scheduler: %w", err)
	}

	linksByPeer := buildLinks()

	sim := &Simulation{scheduler: sched, logger: logger.Named("clocksim")}

	for lid := 1; lid <= peerCount; lid++ {
		rate := rand.Intn(6) + 1
		path := filepath.Join(logDir, fmt.Sprintf("log%d.txt", lid))
		peerLogger, closeFn, err := newPeerLogger(path)
		if err != nil {
			return nil, fmt.Errorf("clocksim: failed to open log for M%d: %w", lid, err)
		}
		sim.closers = append(sim.closers, closeFn)

		peerLogger.Info(fmt.Sprintf("Started up M%d with clock rate %d.", lid, rate))

		peer := newPeer(lid, rate, linksByPeer[lid], peerLogger, closeFn, metrics)
		sim.peers = append(sim.peers, peer)
	}

	return sim, nil
}

// buildLinks creates one net.Pipe per unordered peer pair and returns each
// peer's two links in ascending neighbor-id order, matching the original's
// "others = [x for x in [1,2,3] if x != lid]" ordering.
func buildLinks() map[int][]*link {
	byPeer := make(map[int][]*link, peerCount)
	for i := 1; i <= peerCount; i++ {
		for j := i + 1; j <= peerCount; j++ {
			connI, connJ := net.Pipe()
			byPeer[i] = append(byPeer[i], &link{
				peerID: j,
				conn:   connI,
				enc:    gob.NewEncoder(connI),
				dec:    gob.NewDecoder(connI),
			})
			byPeer[j] = append(byPeer[j], &link{
				peerID: i,
				conn:   connJ,
				enc:    gob.NewEncoder(connJ),
				dec:    gob.NewDecoder(connJ),
			})
		}
	}
	return byPeer
}

// Run starts all three peers' receivers and tick jobs, then blocks until ctx
// is cancelled, at which point it shuts the scheduler and peer logs down
// cleanly.
func (s *Simulation) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, p := range s.peers {
		p := p
		for _, l := range p.links {
			l := l
			g.Go(func() error { return p.receiveLoop(l) })
		}

		interval := time.Duration(float64(time.Second) / float64(p.clockRate))
		if _, err := s.scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(p.tick),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return fmt.Errorf("clocksim: failed to schedule M%d: %w", p.lid, err)
		}
	}

	s.scheduler.Start()
	s.logger.Info("clock simulation started", zap.Int("peers", len(s.peers)))

	// Closing every link's connection is what makes the receiveLoop
	// goroutines above return, so it has to happen from inside the group:
	// g.Wait() would otherwise block on receivers that never see gctx.
	g.Go(func() error {
		<-gctx.Done()
		for _, p := range s.peers {
			for _, l := range p.links {
				_ = l.conn.Close()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Warn("clock simulation receiver error", zap.Error(err))
	}

	return s.shutdown()
}

func (s *Simulation) shutdown() error {
	if err := s.scheduler.Shutdown(); err != nil {
		s.logger.Warn("clocksim scheduler shutdown error", zap.Error(err))
	}
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.logger.Warn("failed to close peer log", zap.Error(err))
		}
	}
	s.logger.Info("clock simulation stopped")
	return nil
}
