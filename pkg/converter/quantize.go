package converter

import (
	"math"
	"sort"
)

// Tick is a position on the output timeline, in pulses
type Tick int64

// Quantizer converts seconds to ticks by integrating a piecewise-constant tempo map
type Quantizer struct {
	tempo      TempoMap
	resolution int

	// exact (unrounded) tick position of every breakpoint
	breakTicks []float64
}

// NewQuantizer validates the tempo map and resolution and precomputes breakpoint positions
func NewQuantizer(tempo TempoMap, resolution int) (*Quantizer, error) {
	if resolution <= 0 || resolution > maxResolution {
		return nil, invalid("resolution", "must be in 1-%d, got %d", maxResolution, resolution)
	}
	if err := tempo.Validate(); err != nil {
		return nil, err
	}

	q := &Quantizer{
		tempo:      tempo,
		resolution: resolution,
		breakTicks: make([]float64, len(tempo)),
	}
	for i := 1; i < len(tempo); i++ {
		q.breakTicks[i] = q.breakTicks[i-1] + q.ticksPerSecond(i-1)*(tempo[i].Time-tempo[i-1].Time)
	}
	return q, nil
}

// Resolution returns the pulses per quarter note
func (q *Quantizer) Resolution() int {
	return q.resolution
}

func (q *Quantizer) ticksPerSecond(segment int) float64 {
	return float64(q.resolution) * microsPerSecond / float64(q.tempo[segment].MicrosPerQuarter)
}

// segment returns the index of the breakpoint governing time t
func (q *Quantizer) segment(t float64) int {
	i := sort.Search(len(q.tempo), func(i int) bool { return q.tempo[i].Time > t })
	if i == 0 {
		return 0
	}
	return i - 1
}

// ExactTicks returns the unrounded tick position of t. Negative times map to 0.
func (q *Quantizer) ExactTicks(t float64) float64 {
	if !(t > 0) {
		return 0
	}
	i := q.segment(t)
	return q.breakTicks[i] + q.ticksPerSecond(i)*(t-q.tempo[i].Time)
}

// Quantize rounds t to the nearest tick. It is monotonic in t and never negative.
func (q *Quantizer) Quantize(t float64) Tick {
	return Tick(math.Round(q.ExactTicks(t)))
}

// Seconds maps a tick back to a time, inverting the tempo map
func (q *Quantizer) Seconds(tick Tick) float64 {
	if tick <= 0 {
		return 0
	}
	exact := float64(tick)
	i := sort.Search(len(q.breakTicks), func(i int) bool { return q.breakTicks[i] > exact })
	if i > 0 {
		i--
	}
	return q.tempo[i].Time + (exact-q.breakTicks[i])/q.ticksPerSecond(i)
}

// Error returns the absolute quantization error at t, in seconds
func (q *Quantizer) Error(t float64) float64 {
	if t < 0 {
		t = 0
	}
	return math.Abs(q.Seconds(q.Quantize(t)) - t)
}

// TempoTicks returns the quantized tick of every tempo breakpoint
func (q *Quantizer) TempoTicks() []Tick {
	ticks := make([]Tick, len(q.breakTicks))
	for i, bt := range q.breakTicks {
		ticks[i] = Tick(math.Round(bt))
	}
	return ticks
}
