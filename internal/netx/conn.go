package netx

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ConnInfo provides information about a connection accepted by a Listener.
type ConnInfo interface {
	ByteCounters() (uint64, uint64)
	AcceptTime() time.Time
	UUID() string
}

// ToConnInfo is a helper function to convert a net.Conn into a netx.ConnInfo.
// It panics if netConn does not contain a type supporting ConnInfo.
func ToConnInfo(netConn net.Conn) ConnInfo {
	switch t := netConn.(type) {
	case *Conn:
		return t
	case *tls.Conn:
		return t.NetConn().(*Conn)
	default:
		panic(fmt.Sprintf("unsupported connection type: %T", t))
	}
}

// Conn is an extended net.Conn that stores its accept time, a unique
// identifier, and counters for read/written bytes.
type Conn struct {
	net.Conn

	uuid         string
	acceptTime   time.Time
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

// FromConn wraps conn into a Conn. The accept time is set to now.
func FromConn(conn net.Conn) *Conn {
	return &Conn{
		Conn:       conn,
		uuid:       uuid.NewString(),
		acceptTime: time.Now(),
	}
}

// Read reads from the underlying net.Conn and updates the read bytes counter.
func (c *Conn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	c.bytesRead.Add(uint64(n))
	return n, err
}

// Write writes to the underlying net.Conn and updates the written bytes counter.
func (c *Conn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	c.bytesWritten.Add(uint64(n))
	return n, err
}

// ByteCounters returns the read and written byte counters, in this order.
func (c *Conn) ByteCounters() (uint64, uint64) {
	return c.bytesRead.Load(), c.bytesWritten.Load()
}

// AcceptTime returns this connection's accept time.
func (c *Conn) AcceptTime() time.Time {
	return c.acceptTime
}

// UUID returns the identifier assigned to this connection.
func (c *Conn) UUID() string {
	return c.uuid
}

type connKey struct{}

// ConnContext stores the ConnInfo of c in ctx. It can be used as an
// http.Server's ConnContext, provided the server uses a Listener.
func ConnContext(ctx context.Context, c net.Conn) context.Context {
	return context.WithValue(ctx, connKey{}, ToConnInfo(c))
}

// FromContext returns the ConnInfo stored in ctx by ConnContext, if any.
func FromContext(ctx context.Context) (ConnInfo, bool) {
	ci, ok := ctx.Value(connKey{}).(ConnInfo)
	return ci, ok
}
