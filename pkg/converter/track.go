package converter

import (
	"sort"
	"strings"
)

// MIDI controller numbers
const (
	ControllerVolume uint8 = 7
	ControllerPan    uint8 = 10
)

// EventKind is the closed set of events the builder emits
type EventKind int

const (
	EventNoteOff EventKind = iota
	EventNoteOn
	EventProgramChange
	EventController
	EventText
	EventTrackName
	EventTempo
	EventEndOfTrack
)

func (k EventKind) String() string {
	switch k {
	case EventNoteOff:
		return "note_off"
	case EventNoteOn:
		return "note_on"
	case EventProgramChange:
		return "program_change"
	case EventController:
		return "controller"
	case EventText:
		return "text"
	case EventTrackName:
		return "track_name"
	case EventTempo:
		return "tempo"
	case EventEndOfTrack:
		return "end_of_track"
	default:
		return "unknown"
	}
}

// MidiEvent is one event at an absolute tick. Only the fields relevant to Kind are set.
type MidiEvent struct {
	Kind    EventKind
	Tick    Tick
	Channel uint8

	Key      uint8 // note events
	Velocity uint8 // note-on
	Program  uint8
	Control  uint8 // controller number
	Value    uint8 // controller value
	Text     string
	Tempo    uint32 // microseconds per quarter note

	// Setup marks track and channel setup events, which precede everything at tick 0
	Setup bool

	noteStart Tick    // note events: tick of the note-on
	seconds   float64 // note events: source time
	layer     int
}

// rank orders events sharing a tick
func (e *MidiEvent) rank() int {
	if e.Setup {
		return 0
	}
	switch e.Kind {
	case EventNoteOff:
		return 1
	case EventNoteOn:
		return 2
	case EventProgramChange, EventController, EventTempo:
		return 3
	case EventText, EventTrackName:
		return 4
	default:
		return 5
	}
}

// Audible reports whether the event counts as content for silence trimming
func (e *MidiEvent) Audible() bool {
	return !e.Setup && (e.Kind == EventNoteOn || e.Kind == EventText)
}

// Track is the event stream of one MIDI track
type Track struct {
	Name    string
	Channel int // -1 for the conductor track
	Events  []MidiEvent
}

// LastTick returns the tick of the final event
func (t *Track) LastTick() Tick {
	var last Tick
	for i := range t.Events {
		if t.Events[i].Tick > last {
			last = t.Events[i].Tick
		}
	}
	return last
}

// Count returns the number of events of a kind
func (t *Track) Count(kind EventKind) int {
	n := 0
	for i := range t.Events {
		if t.Events[i].Kind == kind {
			n++
		}
	}
	return n
}

// sortEvents orders events by tick, then note-offs, note-ons, channel messages and text.
// Note-offs of earlier-started notes come first; ties keep insertion order.
func sortEvents(events []MidiEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := &events[i], &events[j]
		if a.Tick != b.Tick {
			return a.Tick < b.Tick
		}
		ra, rb := a.rank(), b.rank()
		if ra != rb {
			return ra < rb
		}
		if a.Kind == EventNoteOff && b.Kind == EventNoteOff {
			return a.noteStart < b.noteStart
		}
		return false
	})
}

// TrackBuilder assembles the conductor track and one track per assigned channel
type TrackBuilder struct {
	q *Quantizer

	// MaxQuantizationError, in seconds, reports layers whose note times move further than
	// this when snapped to ticks. Zero disables the check.
	MaxQuantizationError float64

	// MaxPolyphony is the simultaneous-note ceiling of a channel shared by several layers.
	// Zero or negative disables the check.
	MaxPolyphony int
}

// NewTrackBuilder creates a builder quantizing with q
func NewTrackBuilder(q *Quantizer) *TrackBuilder {
	return &TrackBuilder{q: q}
}

// Build produces the conductor track followed by the channel tracks in ascending channel order.
// normalized is indexed by layer; entries of unassigned layers are ignored.
func (b *TrackBuilder) Build(p *Project, a ChannelAssignment, normalized []NormalizedLayer) ([]Track, []Diagnostic) {
	var diags []Diagnostic

	conductor, d := b.conductor(p)
	diags = append(diags, d...)
	tracks := []Track{conductor}

	for _, ch := range a.UsedChannels() {
		track, d := b.channelTrack(p, ch, a.Channels[ch], normalized)
		diags = append(diags, d...)
		tracks = append(tracks, track)
	}

	alignEndOfTrack(tracks)
	return tracks, diags
}

func (b *TrackBuilder) conductor(p *Project) (Track, []Diagnostic) {
	var diags []Diagnostic
	track := Track{Name: p.Name, Channel: -1}

	if p.Name != "" {
		track.Events = append(track.Events, MidiEvent{Kind: EventTrackName, Text: p.Name, Setup: true})
		if !isPrintableASCII(p.Name) {
			d := newDiagnostic(NonASCIILabel, -1, "")
			d.Text = p.Name
			diags = append(diags, d)
		}
	}

	for i, tick := range b.q.TempoTicks() {
		track.Events = append(track.Events, MidiEvent{
			Kind:  EventTempo,
			Tick:  tick,
			Tempo: p.Tempo[i].MicrosPerQuarter,
		})
	}

	for _, t := range p.Texts {
		track.Events = append(track.Events, MidiEvent{Kind: EventText, Tick: b.q.Quantize(t.Time), Text: t.Text})
		if !isPrintableASCII(t.Text) {
			d := newDiagnostic(NonASCIILabel, -1, "")
			d.Time = t.Time
			d.Text = t.Text
			diags = append(diags, d)
		}
	}

	sortEvents(track.Events)
	finish(&track)
	return track, diags
}

// sourcedNote is a normalized note tagged with its layer
type sourcedNote struct {
	NoteEvent
	layer int
}

func (b *TrackBuilder) channelTrack(p *Project, ch uint8, layerIDs []int, normalized []NormalizedLayer) (Track, []Diagnostic) {
	var diags []Diagnostic
	first := &p.Layers[layerIDs[0]]

	names := make([]string, 0, len(layerIDs))
	for _, li := range layerIDs {
		names = append(names, p.Layers[li].Name)
	}
	track := Track{Name: strings.Join(names, ", "), Channel: int(ch)}

	track.Events = append(track.Events,
		MidiEvent{Kind: EventTrackName, Channel: ch, Text: track.Name, Setup: true},
		MidiEvent{Kind: EventProgramChange, Channel: ch, Program: first.Program, Setup: true},
		MidiEvent{Kind: EventController, Channel: ch, Control: ControllerVolume, Value: first.EffectiveVolume(), Setup: true},
		MidiEvent{Kind: EventController, Channel: ch, Control: ControllerPan, Value: first.EffectivePan(), Setup: true},
	)

	var notes []sourcedNote
	for _, li := range layerIDs {
		layer := &p.Layers[li]
		for _, n := range normalized[li].Notes {
			if n.Label != "" {
				track.Events = append(track.Events, MidiEvent{Kind: EventText, Tick: b.q.Quantize(n.Start), Channel: ch, Text: n.Label})
			}
			if !layer.Mute {
				notes = append(notes, sourcedNote{NoteEvent: n, layer: li})
			}
		}
		for _, t := range normalized[li].Texts {
			track.Events = append(track.Events, MidiEvent{Kind: EventText, Tick: b.q.Quantize(t.Time), Channel: ch, Text: t.Text})
		}
	}

	if len(layerIDs) > 1 {
		var d []Diagnostic
		notes, d = mergeShared(p, ch, notes)
		diags = append(diags, d...)
		diags = append(diags, b.sharedPolyphony(p, ch, layerIDs, normalized, notes)...)
	}

	warned := make(map[int]bool)
	for _, n := range notes {
		layer := &p.Layers[n.layer]
		on, off := b.q.Quantize(n.Start), b.q.Quantize(n.End)

		if b.MaxQuantizationError > 0 && !warned[n.layer] &&
			(b.q.Error(n.Start) > b.MaxQuantizationError || b.q.Error(n.End) > b.MaxQuantizationError) {
			warned[n.layer] = true
			diags = append(diags, b.resolutionDiagnostic(n.layer, layer.Name, ch, n.Start, n.Pitch))
		}

		if off <= on {
			diags = append(diags, b.resolutionDiagnostic(n.layer, layer.Name, ch, n.Start, n.Pitch))
			continue
		}

		track.Events = append(track.Events,
			MidiEvent{Kind: EventNoteOn, Tick: on, Channel: ch, Key: n.Pitch, Velocity: n.Velocity, noteStart: on, seconds: n.Start, layer: n.layer},
			MidiEvent{Kind: EventNoteOff, Tick: off, Channel: ch, Key: n.Pitch, noteStart: on, seconds: n.End, layer: n.layer},
		)
	}

	sortEvents(track.Events)
	diags = append(diags, b.collisions(p, &track)...)
	finish(&track)
	return track, diags
}

// mergeShared interleaves the notes of layers sharing a channel and resolves overlaps across them
func mergeShared(p *Project, ch uint8, notes []sourcedNote) ([]sourcedNote, []Diagnostic) {
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].Start < notes[j].Start })

	plain := make([]NoteEvent, len(notes))
	for i := range notes {
		plain[i] = notes[i].NoteEvent
	}
	kept, overlaps := resolveOverlaps(plain)

	var diags []Diagnostic
	for _, i := range overlaps {
		d := newDiagnostic(NoteOverlap, notes[i].layer, p.Layers[notes[i].layer].Name)
		d.Time = plain[i].Start
		d.Pitch = int(plain[i].Pitch)
		d.Channel = int(ch)
		diags = append(diags, d)
	}

	out := make([]sourcedNote, len(kept))
	for k, i := range kept {
		out[k] = sourcedNote{NoteEvent: plain[i], layer: notes[i].layer}
	}
	return out, diags
}

// sharedPolyphony reports, once per channel, a shared channel whose merged notes exceed
// the ceiling. Channels where a single layer already exceeds it were reported by the normalizer.
func (b *TrackBuilder) sharedPolyphony(p *Project, ch uint8, layerIDs []int, normalized []NormalizedLayer, notes []sourcedNote) []Diagnostic {
	if b.MaxPolyphony <= 0 || len(notes) == 0 {
		return nil
	}

	merged := make([]NoteEvent, len(notes))
	for i := range notes {
		merged[i] = notes[i].NoteEvent
	}
	at, exceeded := polyphonyExceeded(merged, b.MaxPolyphony)
	if !exceeded {
		return nil
	}

	for _, li := range layerIDs {
		if p.Layers[li].Mute {
			continue
		}
		if _, alone := polyphonyExceeded(normalized[li].Notes, b.MaxPolyphony); alone {
			return nil
		}
	}

	layer := notes[0].layer
	for _, n := range notes {
		if n.Start == at {
			layer = n.layer
			break
		}
	}

	d := newDiagnostic(ExcessivePolyphony, layer, p.Layers[layer].Name)
	d.Time = at
	d.Channel = int(ch)
	return []Diagnostic{d}
}

// collisions reports a note-off and a later note-on of the same key that quantization
// merged onto one tick. The track must be sorted.
func (b *TrackBuilder) collisions(p *Project, track *Track) []Diagnostic {
	var diags []Diagnostic
	lastOff := make(map[uint8]*MidiEvent)

	for i := range track.Events {
		e := &track.Events[i]
		switch e.Kind {
		case EventNoteOff:
			lastOff[e.Key] = e
		case EventNoteOn:
			if off, ok := lastOff[e.Key]; ok && off.Tick == e.Tick && off.seconds < e.seconds {
				diags = append(diags, b.resolutionDiagnostic(e.layer, p.Layers[e.layer].Name, e.Channel, e.seconds, e.Key))
			}
		}
	}
	return diags
}

func (b *TrackBuilder) resolutionDiagnostic(layer int, name string, ch uint8, at float64, pitch uint8) Diagnostic {
	d := newDiagnostic(InsufficientResolution, layer, name)
	d.Time = at
	d.Pitch = int(pitch)
	d.Channel = int(ch)
	return d
}

// finish appends the end-of-track marker at the last tick of a sorted track
func finish(t *Track) {
	t.Events = append(t.Events, MidiEvent{Kind: EventEndOfTrack, Tick: t.LastTick()})
}

// alignEndOfTrack moves every end-of-track marker to the song length, the last tick of any track
func alignEndOfTrack(tracks []Track) {
	var end Tick
	for i := range tracks {
		if last := tracks[i].LastTick(); last > end {
			end = last
		}
	}
	for i := range tracks {
		events := tracks[i].Events
		if n := len(events); n > 0 && events[n-1].Kind == EventEndOfTrack {
			events[n-1].Tick = end
		}
	}
}
