package request

import (
	"context"
	"net"
	"time"

	"github.com/adamancini/launchkit/internal/errs"
)

// DefaultDialTimeout applies when TCPDialer.Timeout is zero.
const DefaultDialTimeout = 10 * time.Second

// TCPDialer connects to the server over TCP.
type TCPDialer struct {
	Address string
	Timeout time.Duration
}

// Dial opens a TCP connection to d.Address.
func (d TCPDialer) Dial(ctx context.Context) (Channel, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}

	nd := net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	conn, err := nd.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, errs.Transport("dial "+d.Address, err)
	}
	return conn, nil
}
