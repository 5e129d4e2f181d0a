package audio

import "gonum.org/v1/gonum/stat"

// AverageWindow is the number of power readings in the moving average.
const AverageWindow = 32

// MovingAverage is a fixed ring of the most recent decibel readings.
// The mean is recomputed over every slot on each insertion so rounding
// errors never accumulate. It is not safe for concurrent use.
type MovingAverage struct {
	slots [AverageWindow]float64
	next  int
	mean  float64
}

// NewMovingAverage returns a window pre-filled with MinDB.
func NewMovingAverage() *MovingAverage {
	a := &MovingAverage{}
	a.Reset()
	return a
}

// Add overwrites the oldest slot with db and returns the new mean.
func (a *MovingAverage) Add(db float64) float64 {
	a.slots[a.next] = db
	a.next = (a.next + 1) % AverageWindow
	a.mean = stat.Mean(a.slots[:], nil)
	return a.mean
}

// Mean returns the mean of all slots.
func (a *MovingAverage) Mean() float64 {
	return a.mean
}

// Reset refills every slot with MinDB.
func (a *MovingAverage) Reset() {
	for i := range a.slots {
		a.slots[i] = MinDB
	}
	a.next = 0
	a.mean = MinDB
}
