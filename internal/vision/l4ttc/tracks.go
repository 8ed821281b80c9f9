package l4ttc

import (
	"math"
	"time"

	"github.com/banshee-data/obstacle.report/internal/config"
	"github.com/banshee-data/obstacle.report/internal/vision/l2fusion"
)

// TrackState represents the lifecycle state of a track.
type TrackState string

const (
	TrackTentative TrackState = "tentative" // new track, too little history for TTC
	TrackConfirmed TrackState = "confirmed" // enough history to estimate range rate
	TrackDeleted   TrackState = "deleted"   // aged out, removed next update
)

// rangeSample is one (distance, time) observation in a track's history.
type rangeSample struct {
	Distance  float64
	Timestamp time.Time
}

// Track is one object followed across frames. Range history is bounded at
// the configured size; the oldest sample is evicted first.
type Track struct {
	ID    int64
	Class string

	// Last associated observation.
	Position l2fusion.Position
	Depth    float64

	State  TrackState
	Hits   int // consecutive successful associations
	Misses int // consecutive missed associations

	history []rangeSample
}

// HistoryLen returns the number of range samples the track currently holds.
func (tr *Track) HistoryLen() int { return len(tr.history) }

// oldest and newest assume the caller has checked HistoryLen() > 0.
func (tr *Track) oldest() rangeSample { return tr.history[0] }
func (tr *Track) newest() rangeSample { return tr.history[len(tr.history)-1] }

func (tr *Track) push(sample rangeSample, capacity int) {
	tr.history = append(tr.history, sample)
	if len(tr.history) > capacity {
		copy(tr.history, tr.history[1:])
		tr.history = tr.history[:capacity]
	}
}

// Tracker associates fused objects to tracks across frames by 3D proximity
// and maintains each track's bounded range history. Greedy nearest-first
// association inside a configurable gate; objects that match no track seed
// new tentative tracks, tracks that miss too many cycles in a row are
// dropped.
type Tracker struct {
	Tracks      map[int64]*Track
	NextTrackID int64

	cfg config.TTCConfig
}

// NewTracker builds a Tracker from validated configuration.
func NewTracker(cfg config.TTCConfig) *Tracker {
	return &Tracker{
		Tracks:      make(map[int64]*Track),
		NextTrackID: 1,
		cfg:         cfg,
	}
}

// Update associates the frame's objects to tracks, writes the assigned track
// ID into each object, appends range samples, and ages out stale tracks.
// The caller serialises Update with any track reads; the engine runs one
// perception cycle at a time.
func (t *Tracker) Update(objects []l2fusion.FusedObject, now time.Time) {
	matched := make(map[int64]bool, len(t.Tracks))

	for i := range objects {
		track := t.associate(&objects[i], matched)
		if track == nil {
			track = t.initTrack(&objects[i])
		}
		matched[track.ID] = true

		track.Position = objects[i].Position
		track.Depth = objects[i].Depth
		track.Class = objects[i].Class
		track.Hits++
		track.Misses = 0
		track.push(rangeSample{Distance: objects[i].Depth, Timestamp: now}, t.cfg.HistorySize)
		if track.State == TrackTentative && len(track.history) >= t.cfg.MinFramesForTTC {
			track.State = TrackConfirmed
		}

		objects[i].TrackID = track.ID
	}

	for id, track := range t.Tracks {
		if matched[id] {
			continue
		}
		track.Misses++
		track.Hits = 0
		if track.Misses >= t.cfg.MaxMisses {
			track.State = TrackDeleted
			delete(t.Tracks, id)
		}
	}
}

// associate finds the nearest unmatched track to the object within the
// association gate, or nil if none qualifies. Exact distance ties resolve
// to the lowest track ID so the winner does not depend on map order.
func (t *Tracker) associate(obj *l2fusion.FusedObject, matched map[int64]bool) *Track {
	var best *Track
	bestDist := t.cfg.AssociationMaxDistance
	for _, track := range t.Tracks {
		if matched[track.ID] {
			continue
		}
		d := distance3D(track.Position, obj.Position)
		if d > bestDist {
			continue
		}
		if d < bestDist || best == nil || track.ID < best.ID {
			best = track
			bestDist = d
		}
	}
	return best
}

func (t *Tracker) initTrack(obj *l2fusion.FusedObject) *Track {
	track := &Track{
		ID:    t.NextTrackID,
		Class: obj.Class,
		State: TrackTentative,
	}
	t.NextTrackID++
	t.Tracks[track.ID] = track
	return track
}

// Lookup returns the track for an ID, or nil.
func (t *Tracker) Lookup(id int64) *Track {
	return t.Tracks[id]
}

// ActiveTracks returns the current tracks in no particular order.
func (t *Tracker) ActiveTracks() []*Track {
	active := make([]*Track, 0, len(t.Tracks))
	for _, track := range t.Tracks {
		active = append(active, track)
	}
	return active
}

func distance3D(a, b l2fusion.Position) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
