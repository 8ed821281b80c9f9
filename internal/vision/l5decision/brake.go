package l5decision

import (
	"fmt"
	"sync"
)

// BrakeDirective is the engine's sole mutating output: whether to brake, how
// hard, and why.
type BrakeDirective struct {
	ShouldBrake bool    `json:"should_brake"`
	BrakeLevel  float64 `json:"brake_level"` // 0.0 .. 1.0
	Reason      string  `json:"triggering_reason,omitempty"`
}

// BrakeHandler receives directive transitions. Handlers run synchronously on
// the perception cycle and must return quickly.
type BrakeHandler func(BrakeDirective)

// maxBrakeHandlers bounds the registry; actuation plus a handful of
// observers is the expected population.
const maxBrakeHandlers = 8

// BrakeInterface holds the current brake state and dispatches directives to
// registered handlers on state transitions. Delivery is edge-triggered: each
// false→true and true→false transition of ShouldBrake reaches every handler
// exactly once, however noisy the per-frame evaluation is. A change of brake
// level while braking is also delivered.
type BrakeInterface struct {
	mu       sync.Mutex
	handlers []BrakeHandler
	current  BrakeDirective
}

// NewBrakeInterface returns a released brake with no handlers.
func NewBrakeInterface() *BrakeInterface {
	return &BrakeInterface{}
}

// RegisterHandler adds a transition handler. The registry is bounded.
func (b *BrakeInterface) RegisterHandler(h BrakeHandler) error {
	if h == nil {
		return fmt.Errorf("nil brake handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.handlers) >= maxBrakeHandlers {
		return fmt.Errorf("brake handler registry full (%d)", maxBrakeHandlers)
	}
	b.handlers = append(b.handlers, h)
	return nil
}

// Apply records the directive and dispatches it if it changes the brake
// state. The brake level is clamped to [0,1].
func (b *BrakeInterface) Apply(d BrakeDirective) {
	if d.BrakeLevel < 0 {
		d.BrakeLevel = 0
	} else if d.BrakeLevel > 1 {
		d.BrakeLevel = 1
	}
	if !d.ShouldBrake {
		d.BrakeLevel = 0
	}

	b.mu.Lock()
	changed := d.ShouldBrake != b.current.ShouldBrake ||
		(d.ShouldBrake && d.BrakeLevel != b.current.BrakeLevel)
	b.current = d
	handlers := b.handlers
	b.mu.Unlock()

	if !changed {
		return
	}
	for _, h := range handlers {
		h(d)
	}
}

// Status returns the current directive.
func (b *BrakeInterface) Status() BrakeDirective {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Release clears the brake, dispatching the true→false transition if one
// occurs.
func (b *BrakeInterface) Release() {
	b.Apply(BrakeDirective{})
}
