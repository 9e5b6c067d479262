package converter

import (
	"fmt"
	"math"
	"strconv"
	"sync"
)

// DiagnosticKind identifies a recoverable conversion anomaly
type DiagnosticKind int

const (
	NonASCIILabel DiagnosticKind = iota
	ExcessivePolyphony
	NoteOverlap
	InsufficientResolution
	UnassignableLayer
	CollapsedNote
	ChannelConflict
)

var diagnosticKindNames = map[DiagnosticKind]string{
	NonASCIILabel:          "non_ascii_label",
	ExcessivePolyphony:     "excessive_polyphony",
	NoteOverlap:            "note_overlap",
	InsufficientResolution: "insufficient_resolution",
	UnassignableLayer:      "unassignable_layer",
	CollapsedNote:          "collapsed_note",
	ChannelConflict:        "channel_conflict",
}

// DiagnosticKinds lists every kind in declaration order
func DiagnosticKinds() []DiagnosticKind {
	return []DiagnosticKind{
		NonASCIILabel,
		ExcessivePolyphony,
		NoteOverlap,
		InsufficientResolution,
		UnassignableLayer,
		CollapsedNote,
		ChannelConflict,
	}
}

func (k DiagnosticKind) String() string {
	if name, ok := diagnosticKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("diagnostic(%d)", int(k))
}

// MarshalText encodes the kind by name
func (k DiagnosticKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Diagnostic is one recoverable anomaly found during a conversion run.
// Layer is -1 for project-level diagnostics; Pitch and Channel are -1 when not applicable.
type Diagnostic struct {
	Kind      DiagnosticKind `json:"kind"`
	Layer     int            `json:"layer"`
	LayerName string         `json:"layerName,omitempty"`
	Time      float64        `json:"time"`
	Pitch     int            `json:"pitch"`
	Channel   int            `json:"channel"`
	Text      string         `json:"text,omitempty"`
}

func newDiagnostic(kind DiagnosticKind, layer int, name string) Diagnostic {
	return Diagnostic{
		Kind:      kind,
		Layer:     layer,
		LayerName: name,
		Pitch:     -1,
		Channel:   -1,
	}
}

// Message renders a human-readable description
func (d Diagnostic) Message() string {
	where := fmt.Sprintf("layer '%s'", escape(d.LayerName))
	if d.Layer < 0 {
		where = "project"
	}

	switch d.Kind {
	case NonASCIILabel:
		if d.Text == d.LayerName {
			return fmt.Sprintf("non-ASCII name on %s; it may be mishandled by other music software", where)
		}
		return fmt.Sprintf("non-ASCII label '%s' on %s at %s; it may be mishandled by other music software",
			escape(d.Text), where, FormatSeconds(d.Time))
	case ExcessivePolyphony:
		return fmt.Sprintf("excessive polyphony on %s at %s", where, FormatSeconds(d.Time))
	case NoteOverlap:
		return fmt.Sprintf("note overlap on %s at %s (pitch %d)", where, FormatSeconds(d.Time), d.Pitch)
	case InsufficientResolution:
		return fmt.Sprintf("insufficient resolution to represent MIDI note on %s at %s (pitch %d)",
			where, FormatSeconds(d.Time), d.Pitch)
	case UnassignableLayer:
		return fmt.Sprintf("no MIDI channel available for %s; it will be dropped", where)
	case CollapsedNote:
		return fmt.Sprintf("collapsed note on %s at %s (pitch %d)", where, FormatSeconds(d.Time), d.Pitch)
	case ChannelConflict:
		return fmt.Sprintf("channel %d requested by %s is already taken; assigning automatically", d.Channel, where)
	default:
		return fmt.Sprintf("%s on %s", d.Kind, where)
	}
}

func (d Diagnostic) String() string {
	return d.Message()
}

// Collector accumulates diagnostics for one conversion run. It is safe for concurrent use.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{}
}

// Record appends diagnostics
func (c *Collector) Record(diags ...Diagnostic) {
	if len(diags) == 0 {
		return
	}
	c.mu.Lock()
	c.items = append(c.items, diags...)
	c.mu.Unlock()
}

// Len returns the number of pending diagnostics
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Drain returns all recorded diagnostics and clears the collector
func (c *Collector) Drain() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.items
	c.items = nil
	if out == nil {
		out = []Diagnostic{}
	}
	return out
}

// CountByKind tallies diagnostics per kind
func CountByKind(diags []Diagnostic) map[DiagnosticKind]int {
	counts := make(map[DiagnosticKind]int)
	for _, d := range diags {
		counts[d.Kind]++
	}
	return counts
}

// FormatSeconds renders a signed time as [+-][d:][h:]m:ss.sss
func FormatSeconds(value float64) string {
	sign := "+"
	if math.Signbit(value) {
		sign = "-"
	}
	value = math.Abs(value)

	d := int(value / 86400)
	value = math.Mod(value, 86400)
	h := int(value / 3600)
	value = math.Mod(value, 3600)
	m := int(value / 60)
	s := math.Mod(value, 60)

	switch {
	case d == 0 && h == 0:
		return fmt.Sprintf("%s%d:%06.3f", sign, m, s)
	case d == 0:
		return fmt.Sprintf("%s%d:%02d:%06.3f", sign, h, m, s)
	default:
		return fmt.Sprintf("%s%d:%02d:%02d:%06.3f", sign, d, h, m, s)
	}
}

func escape(s string) string {
	q := strconv.QuoteToASCII(s)
	return q[1 : len(q)-1]
}
