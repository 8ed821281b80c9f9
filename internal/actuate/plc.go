// Package actuate delivers brake directives to the vehicle's brake
// controller, a Siemens PLC reached over S7 TCP.
package actuate

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/robinson/gos7"

	"github.com/banshee-data/obstacle.report/internal/monitoring"
	"github.com/banshee-data/obstacle.report/internal/vision/l5decision"
)

// Client is the subset of the S7 protocol the actuator needs. gos7.Client
// satisfies it.
type Client interface {
	AGWriteDB(dbNumber, byteOffset, size int, buffer []byte) error
}

// Layout of the brake data block on the controller:
//
//	DBW 0  engage flag (byte, 0 or 1)
//	DBD 2  brake level (IEEE 754 real, big endian)
const (
	brakeDB           = 10
	engageOffset      = 0
	levelOffset       = 2
	directiveWireSize = 6
)

// Actuator writes brake directives to an S7 data block. It is registered
// with the decision layer as a brake handler; write failures are logged
// rather than propagated so a controller outage never stalls the
// perception cycle.
type Actuator struct {
	mu     sync.Mutex
	client Client

	writes   int64
	failures int64
}

// NewActuator wraps an S7 client.
func NewActuator(client Client) *Actuator {
	return &Actuator{client: client}
}

// encodeDirective packs a directive into the controller's wire layout.
func encodeDirective(d l5decision.BrakeDirective) []byte {
	buf := make([]byte, directiveWireSize)
	if d.ShouldBrake {
		buf[engageOffset] = 1
	}
	binary.BigEndian.PutUint32(buf[levelOffset:], math.Float32bits(float32(d.BrakeLevel)))
	return buf
}

// Apply writes the directive to the controller.
func (a *Actuator) Apply(d l5decision.BrakeDirective) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf := encodeDirective(d)
	if err := a.client.AGWriteDB(brakeDB, 0, len(buf), buf); err != nil {
		a.failures++
		return fmt.Errorf("brake write: %w", err)
	}
	a.writes++
	return nil
}

// Handler adapts the actuator to the decision layer's handler signature.
func (a *Actuator) Handler() l5decision.BrakeHandler {
	return func(d l5decision.BrakeDirective) {
		if err := a.Apply(d); err != nil {
			monitoring.Logf("actuate: %v (brake=%v level=%.2f)", err, d.ShouldBrake, d.BrakeLevel)
		}
	}
}

// Counters reports delivered and failed writes.
func (a *Actuator) Counters() (writes, failures int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writes, a.failures
}

// SiemensPLC manages the TCP connection to the brake controller.
type SiemensPLC struct {
	IP   string
	Rack int
	Slot int

	mu        sync.Mutex
	handler   *gos7.TCPClientHandler
	client    gos7.Client
	connected bool
}

// NewSiemensPLC targets a controller at the conventional rack 0 slot 1.
func NewSiemensPLC(ip string) *SiemensPLC {
	return &SiemensPLC{IP: ip, Rack: 0, Slot: 1}
}

// Connect establishes the S7 session, tearing down any previous one first.
func (p *SiemensPLC) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cleanupLocked()

	handler := gos7.NewTCPClientHandler(p.IP, p.Rack, p.Slot)
	handler.Timeout = 5 * time.Second
	handler.IdleTimeout = 0

	if err := handler.Connect(); err != nil {
		return fmt.Errorf("plc connect %s: %w", p.IP, err)
	}

	p.handler = handler
	p.client = gos7.NewClient(handler)
	p.connected = true
	monitoring.Logf("actuate: connected to brake controller at %s", p.IP)
	return nil
}

// Disconnect closes the session.
func (p *SiemensPLC) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleanupLocked()
}

func (p *SiemensPLC) cleanupLocked() {
	if p.handler != nil {
		p.handler.Close()
		p.handler = nil
	}
	p.client = nil
	p.connected = false
}

// IsConnected reports whether a session is established.
func (p *SiemensPLC) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected && p.client != nil
}

// AGWriteDB forwards to the live session, reconnecting once on failure so
// a dropped TCP session heals on the next directive.
func (p *SiemensPLC) AGWriteDB(dbNumber, byteOffset, size int, buffer []byte) error {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	if client == nil {
		return fmt.Errorf("plc %s: not connected", p.IP)
	}
	err := client.AGWriteDB(dbNumber, byteOffset, size, buffer)
	if err == nil {
		return nil
	}

	if rerr := p.Connect(); rerr != nil {
		return fmt.Errorf("plc write failed and reconnect failed: %w", err)
	}
	p.mu.Lock()
	client = p.client
	p.mu.Unlock()
	return client.AGWriteDB(dbNumber, byteOffset, size, buffer)
}
