package lws

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
)

// ConnectionRecord tracks one monitored socket: its id, assigned once at
// first observation, and running byte counters refreshed on every monitored
// socket event.
type ConnectionRecord struct {
	ID           int64
	bytesRead    atomic.Int64
	bytesWritten atomic.Int64
}

// BytesRead returns the total bytes read from the socket so far.
func (r *ConnectionRecord) BytesRead() int64 { return r.bytesRead.Load() }

// BytesWritten returns the total bytes written to the socket so far.
func (r *ConnectionRecord) BytesWritten() int64 { return r.bytesWritten.Load() }

// monitoredListener wraps a net.Listener so every accepted connection is
// observed by the aggregator. It sits beneath any TLS listener, so byte
// counters reflect wire bytes rather than plaintext.
type monitoredListener struct {
	net.Listener
	agg *Aggregator
	ctx context.Context
}

func newMonitoredListener(ctx context.Context, inner net.Listener, agg *Aggregator) *monitoredListener {
	return &monitoredListener{Listener: inner, agg: agg, ctx: ctx}
}

// Accept waits for the next connection and wraps it. The socket id is
// assigned here, at first observation, and both the new and connect
// transitions are reported.
func (l *monitoredListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err //nolint:wrapcheck // listener contract passthrough
	}

	mc := &monitoredConn{
		Conn:   conn,
		agg:    l.agg,
		ctx:    l.ctx,
		record: &ConnectionRecord{ID: l.agg.connectionID()},
	}
	l.agg.emitSocket(l.ctx, EventSocketNew, mc.record)
	l.agg.emitSocket(l.ctx, EventSocketConnect, mc.record)
	return mc, nil
}

// monitoredConn reports socket lifecycle transitions on the verbose stream:
// data on reads, drain on writes, end on EOF, timeout on deadline expiry,
// close exactly once, and error for anything else. Errors are reported only;
// the transport decides whether the socket survives.
type monitoredConn struct {
	net.Conn
	agg    *Aggregator
	ctx    context.Context
	record *ConnectionRecord

	closeOnce sync.Once
	endOnce   sync.Once
}

func (c *monitoredConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.record.bytesRead.Add(int64(n))
		c.agg.emitSocket(c.ctx, EventSocketData, c.record)
	}
	if err != nil {
		c.observeError(err, true)
	}
	return n, err //nolint:wrapcheck // conn contract passthrough
}

func (c *monitoredConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	if n > 0 {
		c.record.bytesWritten.Add(int64(n))
		c.agg.emitSocket(c.ctx, EventSocketDrain, c.record)
	}
	if err != nil {
		c.observeError(err, false)
	}
	return n, err //nolint:wrapcheck // conn contract passthrough
}

func (c *monitoredConn) Close() error {
	c.closeOnce.Do(func() {
		c.agg.emitSocket(c.ctx, EventSocketClose, c.record)
	})
	return c.Conn.Close() //nolint:wrapcheck // conn contract passthrough
}

// observeError classifies a socket error into the end, timeout or error
// transitions. EOF on read is the peer half-closing, not a failure.
func (c *monitoredConn) observeError(err error, reading bool) {
	if reading && errors.Is(err, io.EOF) {
		c.endOnce.Do(func() {
			c.agg.emitSocket(c.ctx, EventSocketEnd, c.record)
		})
		return
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.agg.emitSocket(c.ctx, EventSocketTimeout, c.record)
		return
	}

	if errors.Is(err, net.ErrClosed) {
		// Reported through the close transition already.
		return
	}

	c.agg.emitSocketError(c.ctx, err)
}
