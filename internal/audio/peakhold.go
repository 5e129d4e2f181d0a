package audio

import (
	"math"
	"sync"
	"time"
)

const (
	// PeakSlots is the number of peak markers held at the same time.
	PeakSlots = 4
	// PeakHoldDuration is how long a peak marker stays valid without a refresh.
	PeakHoldDuration = 4000 * time.Millisecond
	// PeakToleranceDB is the distance within which a new peak joins an existing marker.
	PeakToleranceDB = 2.5
)

// PeakSlot is a single peak marker. A zero Timestamp marks an empty slot.
type PeakSlot struct {
	ValueDB   float64   `json:"value_db"`
	Timestamp time.Time `json:"timestamp"`
}

// Empty reports whether the slot holds no marker.
func (s PeakSlot) Empty() bool {
	return s.Timestamp.IsZero()
}

// Valid reports whether the slot holds a marker that has not expired at now.
func (s PeakSlot) Valid(now time.Time) bool {
	return !s.Empty() && now.Sub(s.Timestamp) <= PeakHoldDuration
}

// PeakState is the published peak reading.
type PeakState struct {
	// CurrentDB is the absolute peak of the latest frame.
	CurrentDB float64 `json:"current_db"`
	// MaxDB is the highest frame peak since start or the last reset.
	MaxDB float64 `json:"max_db"`
	// DisplayedDB is the highest valid peak marker, or MinDB when none is valid.
	DisplayedDB float64 `json:"displayed_db"`
	// Slots are the peak markers.
	Slots [PeakSlots]PeakSlot `json:"slots"`
}

// PeakTracker keeps up to PeakSlots decaying peak markers derived from
// rising power readings. It is safe for concurrent use.
type PeakTracker struct {
	mu        sync.Mutex
	slots     [PeakSlots]PeakSlot
	previous  float64
	displayed float64
	current   float64
	max       float64

	// onChange receives every published state while mu is held, so
	// consumers observe states in the order they were produced.
	onChange func(PeakState)
}

// NewPeakTracker creates a tracker with all slots empty.
func NewPeakTracker() *PeakTracker {
	t := &PeakTracker{}
	t.Reset()
	return t
}

// OnChange registers fn to receive the state after every Update and Clear,
// and after a Prune that cleared a marker. fn runs with the tracker locked
// and must not call back into it.
func (t *PeakTracker) OnChange(fn func(PeakState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// emitLocked builds the current state and hands it to onChange. Caller must hold t.mu.
func (t *PeakTracker) emitLocked() PeakState {
	ps := t.stateLocked()
	if t.onChange != nil {
		t.onChange(ps)
	}
	return ps
}

// Update feeds the power reading of a new frame together with the frame's
// absolute peak and returns the resulting state.
//
// Only a rising power reading creates or refreshes a marker. A reading
// within PeakToleranceDB of a valid marker joins it, keeping the larger
// value. Otherwise it takes the first empty or expired slot. When all
// slots hold valid markers that do not match, the reading is dropped.
func (t *PeakTracker) Update(powerDB, peakDB float64, now time.Time) PeakState {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = peakDB
	t.max = max(t.max, peakDB)

	if powerDB > t.previous {
		t.place(powerDB, now)
	}
	t.previous = powerDB
	t.recompute(now)

	return t.emitLocked()
}

// place assigns a rising reading to a slot. Caller must hold t.mu.
func (t *PeakTracker) place(db float64, now time.Time) {
	for i := range t.slots {
		s := &t.slots[i]
		if s.Valid(now) && math.Abs(s.ValueDB-db) < PeakToleranceDB {
			s.ValueDB = max(s.ValueDB, db)
			s.Timestamp = now
			return
		}
	}
	for i := range t.slots {
		s := &t.slots[i]
		if !s.Valid(now) {
			*s = PeakSlot{ValueDB: db, Timestamp: now}
			return
		}
	}
}

// Prune empties every slot whose marker is older than PeakHoldDuration.
// It reports whether any slot was cleared.
func (t *PeakTracker) Prune(now time.Time) (PeakState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := false
	for i := range t.slots {
		if !t.slots[i].Empty() && !t.slots[i].Valid(now) {
			t.slots[i] = PeakSlot{}
			changed = true
		}
	}
	t.recompute(now)

	if !changed {
		return t.stateLocked(), false
	}
	return t.emitLocked(), true
}

// recompute refreshes the displayed peak. Caller must hold t.mu.
func (t *PeakTracker) recompute(now time.Time) {
	d := MinDB
	for _, s := range t.slots {
		if s.Valid(now) && s.ValueDB > d {
			d = s.ValueDB
		}
	}
	t.displayed = d
}

// Clear empties all markers and drops the session maximum. The rising
// edge reference is kept.
func (t *PeakTracker) Clear() PeakState {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots = [PeakSlots]PeakSlot{}
	t.displayed = MinDB
	t.max = MinDB
	return t.emitLocked()
}

// Reset returns the tracker to its initial state.
func (t *PeakTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots = [PeakSlots]PeakSlot{}
	t.previous = MinDB
	t.displayed = MinDB
	t.current = MinDB
	t.max = MinDB
}

// Displayed returns the highest valid peak marker.
func (t *PeakTracker) Displayed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.displayed
}

// State returns a copy of the tracker state.
func (t *PeakTracker) State() PeakState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *PeakTracker) stateLocked() PeakState {
	return PeakState{
		CurrentDB:   t.current,
		MaxDB:       t.max,
		DisplayedDB: t.displayed,
		Slots:       t.slots,
	}
}
