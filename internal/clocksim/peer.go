package clocksim

import (
	"encoding/gob"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// link is one peer's view of its full-duplex net.Pipe connection to a
// single other peer: a decoder reading whatever the other side writes, and
// an encoder writing to that same end (the other side reads it on its own
// end of the pipe).
type link struct {
	peerID  int
	conn    net.Conn
	enc     *gob.Encoder
	dec     *gob.Decoder
}

// Peer is one logical-clock simulation participant, the Go counterpart of
// the homework's ModelMachine. Exactly three peers exist in a Simulation,
// each wired to the other two via a dedicated net.Pipe link.
type Peer struct {
	lid       int
	clockRate int
	clock     Clock
	nextMsgID int

	mu    sync.Mutex
	queue []wireMessage

	links []*link
	rng   *rand.Rand

	logger      *zap.Logger
	closeLogger func() error
	metrics     Metrics
}

func newPeer(lid int, clockRate int, links []*link, logger *zap.Logger, closeLogger func() error, metrics Metrics) *Peer {
	return &Peer{
		lid:         lid,
		clockRate:   clockRate,
		links:       links,
		rng:         rand.New(rand.NewSource(int64(lid)*2654435761 + time.Now().UnixNano())),
		logger:      logger,
		closeLogger: closeLogger,
		metrics:     metrics,
	}
}

// receiveLoop blocks on gob.Decode over l, enqueuing every message that
// arrives, until l's connection is closed. A closed pipe is the only
// expected way this returns, so it reports nil rather than the decode
// error; Simulation.Run wires one of these per link into an errgroup so
// shutdown is the one path that stops them.
func (p *Peer) receiveLoop(l *link) error {
	for {
		var msg wireMessage
		if err := l.dec.Decode(&msg); err != nil {
			return nil
		}
		p.mu.Lock()
		p.queue = append(p.queue, msg)
		p.mu.Unlock()
	}
}

// tick performs exactly one event per clock cycle: a dequeue-and-receive
// if the incoming queue is non-empty, else a send (to one or both
// neighbors) or an internal event chosen uniformly at random.
func (p *Peer) tick() {
	p.mu.Lock()
	if len(p.queue) > 0 {
		msg := p.queue[0]
		p.queue = p.queue[1:]
		qlen := len(p.queue)
		p.mu.Unlock()

		newCounter := p.clock.ReceiveUpdate(msg.LocalTime)
		p.logger.Info(fmt.Sprintf("Received message %d from M%d. Global time: %s. Queue length: %d. Logical clock time: %d.",
			msg.ID, msg.Sender, time.Now().Format(time.RFC3339Nano), qlen, newCounter))
		p.metrics.ClockTick()
		return
	}
	p.mu.Unlock()

	r := p.rng.Intn(10) + 1
	switch {
	case r == 1:
		p.sendTo(p.links[0])
	case r == 2:
		p.sendTo(p.links[1])
	case r == 3:
		p.sendToBoth()
	default:
		counter := p.clock.Increment()
		p.logger.Info(fmt.Sprintf("Internal event. Global time: %s. Logical clock time: %d.",
			time.Now().Format(time.RFC3339Nano), counter))
	}
	p.metrics.ClockTick()
}

func (p *Peer) freshMsgID() int {
	p.nextMsgID++
	return p.nextMsgID
}

func (p *Peer) sendTo(l *link) {
	localTime := p.clock.Value()
	id := p.freshMsgID()
	msg := wireMessage{LocalTime: localTime, Sender: p.lid, ID: id}
	if err := l.enc.Encode(msg); err != nil {
		p.logger.Warn(fmt.Sprintf("failed to send message %d to M%d: %v", id, l.peerID, err))
		return
	}
	counter := p.clock.Increment()
	p.logger.Info(fmt.Sprintf("M%d sent message %d to M%d. Global time: %s. Logical clock time: %d.",
		p.lid, id, l.peerID, time.Now().Format(time.RFC3339Nano), counter))
}

func (p *Peer) sendToBoth() {
	localTime := p.clock.Value()
	id1 := p.freshMsgID()
	id2 := p.freshMsgID()

	if err := p.links[0].enc.Encode(wireMessage{LocalTime: localTime, Sender: p.lid, ID: id1}); err != nil {
		p.logger.Warn(fmt.Sprintf("failed to send message %d to M%d: %v", id1, p.links[0].peerID, err))
	}
	if err := p.links[1].enc.Encode(wireMessage{LocalTime: localTime, Sender: p.lid, ID: id2}); err != nil {
		p.logger.Warn(fmt.Sprintf("failed to send message %d to M%d: %v", id2, p.links[1].peerID, err))
	}

	// One atomic counter increment covers both sends.
	counter := p.clock.Increment()
	p.logger.Info(fmt.Sprintf("M%d sent messages %d,%d to M%d and M%d. Global time: %s. Logical clock time: %d.",
		p.lid, id1, id2, p.links[0].peerID, p.links[1].peerID, time.Now().Format(time.RFC3339Nano), counter))
}
