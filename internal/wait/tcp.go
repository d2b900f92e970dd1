package wait

import (
	"context"
	"net"
	"strings"
	"time"
)

const tcpConnectTimeout = 200 * time.Millisecond

// TCPChecker is satisfied once every address has accepted a connection.
// Addresses that connect are dropped from the pending set and never
// dialed again.
type TCPChecker struct {
	addrs   []string
	pending []string
	timeout time.Duration
	dialer  net.Dialer
}

// NewTCPChecker probes the given host:port addresses.
func NewTCPChecker(addrs []string) *TCPChecker {
	return &TCPChecker{
		addrs:   append([]string(nil), addrs...),
		pending: append([]string(nil), addrs...),
		timeout: tcpConnectTimeout,
	}
}

// Check implements Checker.
func (c *TCPChecker) Check(ctx context.Context) (bool, error) {
	remaining := c.pending[:0]
	for _, addr := range c.pending {
		dctx, cancel := context.WithTimeout(ctx, c.timeout)
		conn, err := c.dialer.DialContext(dctx, "tcp", addr)
		cancel()
		if err != nil {
			remaining = append(remaining, addr)
			continue
		}
		conn.Close()
	}
	c.pending = remaining
	return len(c.pending) == 0, nil
}

// Pending returns the addresses not yet reached.
func (c *TCPChecker) Pending() []string {
	return append([]string(nil), c.pending...)
}

// Cleanup implements Checker.
func (c *TCPChecker) Cleanup() {
	c.pending = nil
}

// Label implements Checker.
func (c *TCPChecker) Label() string {
	return "on tcp port '" + strings.Join(c.addrs, ", ") + "'"
}
