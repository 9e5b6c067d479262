// Package converter translates annotation-layer projects into multi-track MIDI files
package converter

import (
	"fmt"
	"math"
)

// MIDI constants shared by the pipeline stages
const (
	NumChannels = 16
	DrumChannel = 9

	DefaultResolution   = 1024
	DefaultBPM          = 120.0
	DefaultVelocity     = 64
	DefaultVolume       = 100
	PanCenter           = 64
	DefaultMaxPolyphony = 24

	maxDataByte       = 127
	maxTempoMicros    = 0xFFFFFF
	maxResolution     = 0x7FFF
	microsPerMinute   = 60000000.0
	microsPerSecond   = 1000000.0
	printableASCIILow = 0x20
	printableASCIIEnd = 0x7E
)

// NoteEvent is a single annotated note. Times are in seconds.
type NoteEvent struct {
	Start    float64 `json:"start" yaml:"start"`
	End      float64 `json:"end" yaml:"end"`
	Pitch    uint8   `json:"pitch" yaml:"pitch"`
	Velocity uint8   `json:"velocity,omitempty" yaml:"velocity,omitempty"` // 0 means DefaultVelocity
	Label    string  `json:"label,omitempty" yaml:"label,omitempty"`
}

// TextEvent is a label-only annotation
type TextEvent struct {
	Time float64 `json:"time" yaml:"time"`
	Text string  `json:"text" yaml:"text"`
}

// Layer is one annotation layer of a project
type Layer struct {
	Name string `json:"name" yaml:"name"`

	// Channel requests an explicit channel (0-15). Nil lets the allocator choose.
	Channel       *uint8 `json:"channel,omitempty" yaml:"channel,omitempty"`
	SharedChannel bool   `json:"sharedChannel,omitempty" yaml:"sharedChannel,omitempty"`

	Program uint8  `json:"program" yaml:"program"`
	Volume  *uint8 `json:"volume,omitempty" yaml:"volume,omitempty"` // nil: DefaultVolume
	Pan     *uint8 `json:"pan,omitempty" yaml:"pan,omitempty"`       // nil: PanCenter
	Drum    bool   `json:"drum,omitempty" yaml:"drum,omitempty"`
	Mute    bool   `json:"mute,omitempty" yaml:"mute,omitempty"`

	Notes []NoteEvent `json:"notes,omitempty" yaml:"notes,omitempty"`
	Texts []TextEvent `json:"texts,omitempty" yaml:"texts,omitempty"`
}

// TempoBreakpoint sets the tempo from Time (seconds) onwards
type TempoBreakpoint struct {
	Time             float64 `json:"time" yaml:"time"`
	MicrosPerQuarter uint32  `json:"microsPerQuarter" yaml:"microsPerQuarter"`
}

// TempoMap is an ordered list of tempo breakpoints starting at time 0
type TempoMap []TempoBreakpoint

// Project is the normalized input of a conversion run. It is never modified by the pipeline.
type Project struct {
	Name       string      `json:"name,omitempty" yaml:"name,omitempty"`
	Layers     []Layer     `json:"layers" yaml:"layers"`
	Texts      []TextEvent `json:"texts,omitempty" yaml:"texts,omitempty"`
	Tempo      TempoMap    `json:"tempo" yaml:"tempo"`
	Resolution int         `json:"resolution" yaml:"resolution"`
}

// Ch returns a pointer to a channel number, for Layer.Channel literals
func Ch(channel uint8) *uint8 {
	return &channel
}

// Val returns a pointer to a 7-bit value, for Layer.Volume and Layer.Pan literals
func Val(v uint8) *uint8 {
	return &v
}

// ConstantTempo builds a single-breakpoint tempo map for the given BPM
func ConstantTempo(bpm float64) TempoMap {
	return TempoMap{{Time: 0, MicrosPerQuarter: BPMToMicros(bpm)}}
}

// BPMToMicros converts beats per minute to microseconds per quarter note
func BPMToMicros(bpm float64) uint32 {
	if bpm <= 0 {
		bpm = DefaultBPM
	}
	return uint32(math.Round(microsPerMinute / bpm))
}

// EffectiveVolume returns the channel volume of the layer
func (l *Layer) EffectiveVolume() uint8 {
	if l.Volume == nil {
		return DefaultVolume
	}
	return *l.Volume
}

// EffectivePan returns the channel pan of the layer
func (l *Layer) EffectivePan() uint8 {
	if l.Pan == nil {
		return PanCenter
	}
	return *l.Pan
}

// ValidationError reports malformed project input
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid project: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the fatal preconditions of a conversion run
func (p *Project) Validate() error {
	if p.Resolution <= 0 {
		return invalid("resolution", "must be positive, got %d", p.Resolution)
	}
	if p.Resolution > maxResolution {
		return invalid("resolution", "must not exceed %d, got %d", maxResolution, p.Resolution)
	}
	if err := p.Tempo.Validate(); err != nil {
		return err
	}

	for i, t := range p.Texts {
		if !isFinite(t.Time) {
			return invalid(fmt.Sprintf("texts[%d].time", i), "not a finite number")
		}
	}

	for li := range p.Layers {
		layer := &p.Layers[li]
		field := fmt.Sprintf("layers[%d]", li)

		if layer.Channel != nil && *layer.Channel >= NumChannels {
			return invalid(field+".channel", "must be in 0-%d, got %d", NumChannels-1, *layer.Channel)
		}
		if layer.Program > maxDataByte {
			return invalid(field+".program", "must be in 0-127, got %d", layer.Program)
		}
		if layer.Volume != nil && *layer.Volume > maxDataByte {
			return invalid(field+".volume", "must be in 0-127, got %d", *layer.Volume)
		}
		if layer.Pan != nil && *layer.Pan > maxDataByte {
			return invalid(field+".pan", "must be in 0-127, got %d", *layer.Pan)
		}

		for ni, n := range layer.Notes {
			nf := fmt.Sprintf("%s.notes[%d]", field, ni)
			if !isFinite(n.Start) || !isFinite(n.End) {
				return invalid(nf, "start and end must be finite numbers")
			}
			if n.Pitch > maxDataByte {
				return invalid(nf+".pitch", "must be in 0-127, got %d", n.Pitch)
			}
			if n.Velocity > maxDataByte {
				return invalid(nf+".velocity", "must be in 0-127, got %d", n.Velocity)
			}
		}
		for ti, t := range layer.Texts {
			if !isFinite(t.Time) {
				return invalid(fmt.Sprintf("%s.texts[%d].time", field, ti), "not a finite number")
			}
		}
	}

	return nil
}

// Validate checks that the tempo map is non-empty, starts at 0 and has strictly increasing times
func (m TempoMap) Validate() error {
	if len(m) == 0 {
		return invalid("tempo", "tempo map is empty")
	}
	if m[0].Time != 0 {
		return invalid("tempo[0].time", "first breakpoint must be at time 0, got %g", m[0].Time)
	}
	for i, bp := range m {
		field := fmt.Sprintf("tempo[%d]", i)
		if !isFinite(bp.Time) {
			return invalid(field+".time", "not a finite number")
		}
		if bp.MicrosPerQuarter == 0 || bp.MicrosPerQuarter > maxTempoMicros {
			return invalid(field+".microsPerQuarter", "must be in 1-%d, got %d", maxTempoMicros, bp.MicrosPerQuarter)
		}
		if i > 0 && bp.Time <= m[i-1].Time {
			return invalid(field+".time", "breakpoint times must be strictly increasing")
		}
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// isPrintableASCII reports whether s only contains printable 7-bit ASCII characters
func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < printableASCIILow || s[i] > printableASCIIEnd {
			return false
		}
	}
	return true
}
