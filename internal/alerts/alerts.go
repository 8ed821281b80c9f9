// Package alerts defines the engine's alert identifiers and the publisher
// contract used to hand them to presentation and voice collaborators.
package alerts

import (
	"time"
)

// Alert identifiers. Downstream consumers key prompts and display state off
// these strings, so they are part of the external contract.
const (
	LowVisibility     = "low_visibility"
	WetRoad           = "wet_road"
	Curve             = "curve"
	NarrowRoad        = "narrow_road"
	TTCWarning        = "ttc_warning"
	ObstacleWarning   = "obstacle_warning"
	ObstacleDanger    = "obstacle_danger"
	DegradedOperation = "degraded_operation"
)

// Alert is one engine-raised condition for a single cycle.
type Alert struct {
	ID        string    `json:"id"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers a cycle's alert set downstream. Implementations must
// not block the perception cycle; slow consumers drop rather than stall.
type Publisher interface {
	Publish(alerts []Alert) error
}

// Set accumulates distinct alert IDs for one cycle, preserving raise order.
type Set struct {
	alerts []Alert
	seen   map[string]bool
}

// NewSet returns an empty alert set.
func NewSet() *Set {
	return &Set{seen: make(map[string]bool)}
}

// Raise adds an alert unless the same ID was already raised this cycle.
func (s *Set) Raise(id, detail string, now time.Time) {
	if s.seen[id] {
		return
	}
	s.seen[id] = true
	s.alerts = append(s.alerts, Alert{ID: id, Detail: detail, Timestamp: now})
}

// Contains reports whether an alert ID has been raised.
func (s *Set) Contains(id string) bool { return s.seen[id] }

// Alerts returns the raised alerts in raise order. The slice is owned by the
// set; callers must not mutate it.
func (s *Set) Alerts() []Alert { return s.alerts }

// Len returns the number of distinct alerts raised.
func (s *Set) Len() int { return len(s.alerts) }
