package replica

import (
	"context"
	"fmt"
	"net"

	"github.com/replichat/replichat/internal/config"
)

// Dialer opens a byte pipe to addr. The default dials TCP; tests substitute
// an in-memory implementation wired to net.Pipe so the chain's failover and
// state-transfer logic can be exercised without binding real sockets.
type Dialer interface {
	Dial(ctx context.Context, addr config.Addr) (net.Conn, error)
}

// TCPDialer is the production Dialer.
type TCPDialer struct{}

func (TCPDialer) Dial(ctx context.Context, addr config.Addr) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("replica: dial %s: %w", addr, err)
	}
	return conn, nil
}
