// Package radarlink receives observations from the external ranging sensor,
// over a serial line or UDP, and hands each batch to a sink. The sink is
// typically the decision coordinator's radar buffer; delivery never blocks
// the perception cycle.
package radarlink

import (
	"bufio"
	"context"
	"io"
	"net"
	"time"

	"github.com/banshee-data/obstacle.report/internal/monitoring"
	"github.com/banshee-data/obstacle.report/internal/timeutil"
	"github.com/banshee-data/obstacle.report/internal/vision"
)

// ObservationSink receives each decoded observation batch. The decision
// coordinator's radar buffer satisfies it.
type ObservationSink interface {
	UpdateRadar(observations []vision.RadarObservation, now time.Time)
}

// Link reads newline-delimited radar reports from a port and forwards them.
type Link struct {
	port  RadarPorter
	sink  ObservationSink
	clock timeutil.Clock
}

// NewLink builds a Link delivering to sink. A nil clock means wall time.
func NewLink(port RadarPorter, sink ObservationSink, clock timeutil.Clock) *Link {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Link{port: port, sink: sink, clock: clock}
}

// Monitor reads lines until the port closes or ctx is done. Malformed lines
// are logged and skipped; the sensor interleaves status output with reports.
func (l *Link) Monitor(ctx context.Context) error {
	scanner := bufio.NewScanner(l.port)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		now := l.clock.Now()
		obs, err := ParseLine(line, now)
		if err != nil {
			monitoring.Logf("radarlink: skipping line: %v", err)
			continue
		}
		l.sink.UpdateRadar([]vision.RadarObservation{obs}, now)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// Close closes the underlying port, which unblocks Monitor.
func (l *Link) Close() error {
	return l.port.Close()
}

// UDPListener receives radar report datagrams. Each datagram carries one or
// more newline-separated report lines and replaces the buffered set
// atomically.
type UDPListener struct {
	conn  *net.UDPConn
	sink  ObservationSink
	clock timeutil.Clock
}

// ListenUDP binds a UDP listener on addr ("host:port") delivering to sink.
func ListenUDP(addr string, sink ObservationSink, clock timeutil.Clock) (*UDPListener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &UDPListener{conn: conn, sink: sink, clock: clock}, nil
}

// Addr returns the bound address.
func (u *UDPListener) Addr() net.Addr { return u.conn.LocalAddr() }

// Serve reads datagrams until the listener closes or ctx is done.
func (u *UDPListener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		u.conn.Close()
	}()

	buf := make([]byte, 65535)
	for {
		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		now := u.clock.Now()
		batch, err := ParseBatch(string(buf[:n]), now)
		if err != nil {
			monitoring.Logf("radarlink: dropping datagram: %v", err)
			continue
		}
		if len(batch) > 0 {
			u.sink.UpdateRadar(batch, now)
		}
	}
}

// Close closes the socket, which unblocks Serve.
func (u *UDPListener) Close() error {
	return u.conn.Close()
}
