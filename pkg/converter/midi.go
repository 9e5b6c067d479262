package converter

import (
	"bytes"
	"errors"
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// SMF limits
const (
	maxDelta      = 0x0FFFFFFF
	maxTracks     = 0xFFFF
	metaPrefix    = 0xFF
	metaText      = 0x01
	metaTrackName = 0x03
	metaEndTrack  = 0x2F
	metaTempo     = 0x51
)

// Header describes the file header chunk
type Header struct {
	Format     uint16
	Resolution int
}

// SerializationError reports a track stream that can't be encoded. Track and Event are -1
// when the problem concerns the whole file.
type SerializationError struct {
	Track  int
	Event  int
	Reason string
}

func (e *SerializationError) Error() string {
	if e.Track < 0 {
		return "serialization failed: " + e.Reason
	}
	return fmt.Sprintf("serialization failed: track %d, event %d: %s", e.Track, e.Event, e.Reason)
}

// Serialize encodes the header and tracks as a Standard MIDI File
func Serialize(h Header, tracks []Track) ([]byte, error) {
	if h.Resolution <= 0 || h.Resolution > maxResolution {
		return nil, &SerializationError{Track: -1, Event: -1, Reason: fmt.Sprintf("resolution %d out of range 1-%d", h.Resolution, maxResolution)}
	}
	if len(tracks) == 0 || len(tracks) > maxTracks {
		return nil, &SerializationError{Track: -1, Event: -1, Reason: fmt.Sprintf("track count %d out of range 1-%d", len(tracks), maxTracks)}
	}

	var s *smf.SMF
	switch h.Format {
	case 0:
		if len(tracks) != 1 {
			return nil, &SerializationError{Track: -1, Event: -1, Reason: "format 0 holds exactly one track"}
		}
		s = smf.New()
	case 1:
		s = smf.NewSMF1()
	default:
		return nil, &SerializationError{Track: -1, Event: -1, Reason: fmt.Sprintf("unsupported format %d", h.Format)}
	}
	s.TimeFormat = smf.MetricTicks(uint16(h.Resolution))

	for ti := range tracks {
		track, err := encodeTrack(ti, &tracks[ti])
		if err != nil {
			return nil, err
		}
		if err := s.Add(track); err != nil {
			return nil, fmt.Errorf("failed to add track %d: %w", ti, err)
		}
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeTrack(ti int, t *Track) (smf.Track, error) {
	var track smf.Track
	var prev Tick
	closed := false

	for ei := range t.Events {
		e := &t.Events[ei]
		fail := func(format string, args ...interface{}) error {
			return &SerializationError{Track: ti, Event: ei, Reason: fmt.Sprintf(format, args...)}
		}

		if closed {
			return nil, fail("event after end of track")
		}
		if e.Tick < 0 {
			return nil, fail("negative tick %d", e.Tick)
		}
		delta := e.Tick - prev
		if delta < 0 {
			return nil, fail("negative delta %d (tick %d after %d)", delta, e.Tick, prev)
		}
		if delta > maxDelta {
			return nil, fail("delta %d exceeds %d", delta, maxDelta)
		}
		prev = e.Tick

		if e.Kind == EventEndOfTrack {
			track.Close(uint32(delta))
			closed = true
			continue
		}

		msg, err := encodeEvent(e)
		if err != nil {
			return nil, fail("%v", err)
		}
		track.Add(uint32(delta), msg)
	}

	if !closed {
		track.Close(0)
	}
	return track, nil
}

func encodeEvent(e *MidiEvent) ([]byte, error) {
	switch e.Kind {
	case EventNoteOn, EventNoteOff, EventProgramChange, EventController:
		if e.Channel >= NumChannels {
			return nil, fmt.Errorf("channel %d out of range", e.Channel)
		}
	}

	switch e.Kind {
	case EventNoteOn:
		if e.Key > maxDataByte || e.Velocity > maxDataByte || e.Velocity == 0 {
			return nil, fmt.Errorf("invalid note-on key %d velocity %d", e.Key, e.Velocity)
		}
		return midi.NoteOn(e.Channel, e.Key, e.Velocity), nil
	case EventNoteOff:
		if e.Key > maxDataByte {
			return nil, fmt.Errorf("invalid note-off key %d", e.Key)
		}
		return midi.NoteOff(e.Channel, e.Key), nil
	case EventProgramChange:
		if e.Program > maxDataByte {
			return nil, fmt.Errorf("invalid program %d", e.Program)
		}
		return midi.ProgramChange(e.Channel, e.Program), nil
	case EventController:
		if e.Control > maxDataByte || e.Value > maxDataByte {
			return nil, fmt.Errorf("invalid controller %d value %d", e.Control, e.Value)
		}
		return midi.ControlChange(e.Channel, e.Control, e.Value), nil
	case EventText:
		return smf.MetaText(e.Text), nil
	case EventTrackName:
		return smf.MetaTrackSequenceName(e.Text), nil
	case EventTempo:
		if e.Tempo == 0 || e.Tempo > maxTempoMicros {
			return nil, fmt.Errorf("tempo %d out of range", e.Tempo)
		}
		return []byte{
			metaPrefix, metaTempo, 0x03,
			byte(e.Tempo >> 16),
			byte(e.Tempo >> 8),
			byte(e.Tempo),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported event kind %s", e.Kind)
	}
}

// Decode reads a Standard MIDI File back into absolute-tick event streams.
// Events outside the builder's event kinds are skipped.
func Decode(data []byte) (Header, []Track, error) {
	if len(data) < 14 || string(data[:4]) != "MThd" {
		return Header{}, nil, errors.New("not a MIDI file: missing MThd header")
	}

	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return Header{}, nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	h := Header{Format: uint16(data[8])<<8 | uint16(data[9])}
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		h.Resolution = int(mt.Resolution())
	}

	tracks := make([]Track, 0, len(s.Tracks))
	for _, st := range s.Tracks {
		track := Track{Channel: -1}
		var tick Tick

		for _, ev := range st {
			tick += Tick(ev.Delta)
			e, ok := decodeMessage(ev.Message)
			if !ok {
				continue
			}
			e.Tick = tick

			switch e.Kind {
			case EventTrackName:
				if track.Name == "" {
					track.Name = e.Text
				}
			case EventNoteOn, EventNoteOff, EventProgramChange, EventController:
				if track.Channel < 0 {
					track.Channel = int(e.Channel)
				}
			}
			track.Events = append(track.Events, e)
		}
		tracks = append(tracks, track)
	}

	return h, tracks, nil
}

func decodeMessage(msg []byte) (MidiEvent, bool) {
	if len(msg) == 0 {
		return MidiEvent{}, false
	}

	if msg[0] == metaPrefix {
		if len(msg) < 3 {
			return MidiEvent{}, false
		}
		length, n, ok := readVarLen(msg[2:])
		if !ok || 2+n+int(length) > len(msg) {
			return MidiEvent{}, false
		}
		payload := msg[2+n : 2+n+int(length)]

		switch msg[1] {
		case metaText:
			return MidiEvent{Kind: EventText, Text: string(payload)}, true
		case metaTrackName:
			return MidiEvent{Kind: EventTrackName, Text: string(payload)}, true
		case metaTempo:
			if len(payload) != 3 {
				return MidiEvent{}, false
			}
			tempo := uint32(payload[0])<<16 | uint32(payload[1])<<8 | uint32(payload[2])
			return MidiEvent{Kind: EventTempo, Tempo: tempo}, true
		case metaEndTrack:
			return MidiEvent{Kind: EventEndOfTrack}, true
		}
		return MidiEvent{}, false
	}

	status := msg[0] & 0xF0
	ch := msg[0] & 0x0F
	switch {
	case status == 0x90 && len(msg) >= 3 && msg[2] > 0:
		return MidiEvent{Kind: EventNoteOn, Channel: ch, Key: msg[1], Velocity: msg[2]}, true
	case (status == 0x80 || status == 0x90) && len(msg) >= 3:
		return MidiEvent{Kind: EventNoteOff, Channel: ch, Key: msg[1]}, true
	case status == 0xC0 && len(msg) >= 2:
		return MidiEvent{Kind: EventProgramChange, Channel: ch, Program: msg[1]}, true
	case status == 0xB0 && len(msg) >= 3:
		return MidiEvent{Kind: EventController, Channel: ch, Control: msg[1], Value: msg[2]}, true
	}
	return MidiEvent{}, false
}

// readVarLen decodes a variable-length quantity of at most four bytes
func readVarLen(b []byte) (uint32, int, bool) {
	var v uint32
	for i := 0; i < 4 && i < len(b); i++ {
		v = v<<7 | uint32(b[i]&0x7F)
		if b[i]&0x80 == 0 {
			return v, i + 1, true
		}
	}
	return 0, 0, false
}

// TrackSummary describes one decoded track
type TrackSummary struct {
	Name     string   `json:"name"`
	Channel  int      `json:"channel"`
	Events   int      `json:"events"`
	Notes    int      `json:"notes"`
	Texts    []string `json:"texts,omitempty"`
	LastTick int64    `json:"lastTick"`
}

// TempoChange is a tempo event of the conductor track
type TempoChange struct {
	Tick             int64   `json:"tick"`
	MicrosPerQuarter uint32  `json:"microsPerQuarter"`
	BPM              float64 `json:"bpm"`
}

// FileSummary describes a decoded MIDI file
type FileSummary struct {
	Format     uint16         `json:"format"`
	Resolution int            `json:"resolution"`
	Size       int            `json:"size"`
	Tracks     []TrackSummary `json:"tracks"`
	Tempo      []TempoChange  `json:"tempo"`
}

// Inspect summarizes a MIDI file
func Inspect(data []byte) (*FileSummary, error) {
	h, tracks, err := Decode(data)
	if err != nil {
		return nil, err
	}

	summary := &FileSummary{
		Format:     h.Format,
		Resolution: h.Resolution,
		Size:       len(data),
		Tracks:     make([]TrackSummary, 0, len(tracks)),
	}

	for ti := range tracks {
		t := &tracks[ti]
		ts := TrackSummary{
			Name:     t.Name,
			Channel:  t.Channel,
			Events:   len(t.Events),
			LastTick: int64(t.LastTick()),
		}
		for _, e := range t.Events {
			switch e.Kind {
			case EventNoteOn:
				ts.Notes++
			case EventText:
				ts.Texts = append(ts.Texts, e.Text)
			case EventTempo:
				summary.Tempo = append(summary.Tempo, TempoChange{
					Tick:             int64(e.Tick),
					MicrosPerQuarter: e.Tempo,
					BPM:              microsPerMinute / float64(e.Tempo),
				})
			}
		}
		summary.Tracks = append(summary.Tracks, ts)
	}

	return summary, nil
}
