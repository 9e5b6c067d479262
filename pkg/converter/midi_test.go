package converter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTracks() []Track {
	return []Track{
		{
			Name:    "Song",
			Channel: -1,
			Events: []MidiEvent{
				{Kind: EventTrackName, Text: "Song", Setup: true},
				{Kind: EventTempo, Tempo: 500000},
				{Kind: EventText, Tick: 10, Text: "hi"},
				{Kind: EventEndOfTrack, Tick: 10},
			},
		},
		{
			Name:    "Lead",
			Channel: 3,
			Events: []MidiEvent{
				{Kind: EventTrackName, Channel: 3, Text: "Lead", Setup: true},
				{Kind: EventProgramChange, Channel: 3, Program: 5, Setup: true},
				{Kind: EventController, Channel: 3, Control: ControllerVolume, Value: 100, Setup: true},
				{Kind: EventNoteOn, Channel: 3, Key: 60, Velocity: 90},
				{Kind: EventNoteOff, Tick: 480, Channel: 3, Key: 60},
				{Kind: EventEndOfTrack, Tick: 480},
			},
		},
	}
}

func TestSerializeHeader(t *testing.T) {
	data, err := Serialize(Header{Format: 1, Resolution: 1024}, sampleTracks())
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(data), 14)
	assert.Equal(t, "MThd", string(data[0:4]))
	assert.Equal(t, []byte{0, 0, 0, 6}, data[4:8])
	assert.Equal(t, []byte{0, 1}, data[8:10])
	assert.Equal(t, []byte{0, 2}, data[10:12])
	assert.Equal(t, []byte{0x04, 0x00}, data[12:14])
	assert.Equal(t, "MTrk", string(data[14:18]))
}

func TestSerializeRoundTrip(t *testing.T) {
	data, err := Serialize(Header{Format: 1, Resolution: 480}, sampleTracks())
	require.NoError(t, err)

	h, tracks, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), h.Format)
	assert.Equal(t, 480, h.Resolution)
	require.Len(t, tracks, 2)

	assert.Equal(t, "Song", tracks[0].Name)
	assert.Equal(t, -1, tracks[0].Channel)
	assert.Equal(t, []EventKind{EventTrackName, EventTempo, EventText, EventEndOfTrack}, kindsOf(tracks[0].Events))
	assert.Equal(t, uint32(500000), tracks[0].Events[1].Tempo)
	assert.Equal(t, Tick(10), tracks[0].Events[2].Tick)

	lead := tracks[1]
	assert.Equal(t, "Lead", lead.Name)
	assert.Equal(t, 3, lead.Channel)
	assert.Equal(t, []EventKind{EventTrackName, EventProgramChange, EventController, EventNoteOn, EventNoteOff, EventEndOfTrack}, kindsOf(lead.Events))
	assert.Equal(t, uint8(5), lead.Events[1].Program)
	assert.Equal(t, uint8(100), lead.Events[2].Value)
	assert.Equal(t, uint8(90), lead.Events[3].Velocity)
	assert.Equal(t, Tick(480), lead.Events[4].Tick)
}

func TestSerializeAddsEndOfTrack(t *testing.T) {
	tracks := []Track{{Channel: -1, Events: []MidiEvent{{Kind: EventTempo, Tempo: 500000}}}}

	data, err := Serialize(Header{Format: 0, Resolution: 96}, tracks)
	require.NoError(t, err)

	_, decoded, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, EventEndOfTrack, decoded[0].Events[len(decoded[0].Events)-1].Kind)
}

func TestSerializeErrors(t *testing.T) {
	tests := []struct {
		name   string
		header Header
		tracks []Track
		track  int
		event  int
	}{
		{
			name:   "zero resolution",
			header: Header{Format: 1, Resolution: 0},
			tracks: sampleTracks(),
			track:  -1, event: -1,
		},
		{
			name:   "resolution too large",
			header: Header{Format: 1, Resolution: 0x8000},
			tracks: sampleTracks(),
			track:  -1, event: -1,
		},
		{
			name:   "no tracks",
			header: Header{Format: 1, Resolution: 96},
			track:  -1, event: -1,
		},
		{
			name:   "format 0 with two tracks",
			header: Header{Format: 0, Resolution: 96},
			tracks: sampleTracks(),
			track:  -1, event: -1,
		},
		{
			name:   "unsupported format",
			header: Header{Format: 2, Resolution: 96},
			tracks: sampleTracks(),
			track:  -1, event: -1,
		},
		{
			name:   "negative delta",
			header: Header{Format: 1, Resolution: 96},
			tracks: []Track{{Events: []MidiEvent{
				{Kind: EventText, Tick: 10, Text: "a"},
				{Kind: EventText, Tick: 5, Text: "b"},
			}}},
			track: 0, event: 1,
		},
		{
			name:   "negative tick",
			header: Header{Format: 1, Resolution: 96},
			tracks: []Track{{Events: []MidiEvent{{Kind: EventText, Tick: -1}}}},
			track:  0, event: 0,
		},
		{
			name:   "delta too large",
			header: Header{Format: 1, Resolution: 96},
			tracks: []Track{{Events: []MidiEvent{{Kind: EventText, Tick: 0x10000000}}}},
			track:  0, event: 0,
		},
		{
			name:   "event after end of track",
			header: Header{Format: 1, Resolution: 96},
			tracks: []Track{{Events: []MidiEvent{
				{Kind: EventEndOfTrack},
				{Kind: EventText, Text: "late"},
			}}},
			track: 0, event: 1,
		},
		{
			name:   "zero velocity note-on",
			header: Header{Format: 1, Resolution: 96},
			tracks: []Track{sampleTracks()[0], {Events: []MidiEvent{{Kind: EventNoteOn, Key: 60}}}},
			track:  1, event: 0,
		},
		{
			name:   "channel out of range",
			header: Header{Format: 1, Resolution: 96},
			tracks: []Track{{Events: []MidiEvent{{Kind: EventProgramChange, Channel: 16}}}},
			track:  0, event: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Serialize(tt.header, tt.tracks)
			assert.Nil(t, data)

			var serr *SerializationError
			require.True(t, errors.As(err, &serr), "got %v", err)
			assert.Equal(t, tt.track, serr.Track)
			assert.Equal(t, tt.event, serr.Event)
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	_, _, err := Decode([]byte("not midi at all"))
	assert.Error(t, err)

	_, _, err = Decode(nil)
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	data, err := Serialize(Header{Format: 1, Resolution: 480}, sampleTracks())
	require.NoError(t, err)

	summary, err := Inspect(data)
	require.NoError(t, err)

	assert.Equal(t, uint16(1), summary.Format)
	assert.Equal(t, 480, summary.Resolution)
	assert.Equal(t, len(data), summary.Size)
	require.Len(t, summary.Tracks, 2)
	assert.Equal(t, []string{"hi"}, summary.Tracks[0].Texts)
	assert.Equal(t, 1, summary.Tracks[1].Notes)
	assert.Equal(t, int64(480), summary.Tracks[1].LastTick)

	require.Len(t, summary.Tempo, 1)
	assert.InDelta(t, 120.0, summary.Tempo[0].BPM, 1e-9)
}

func TestReadVarLen(t *testing.T) {
	tests := []struct {
		in   []byte
		want uint32
		n    int
		ok   bool
	}{
		{[]byte{0x00}, 0, 1, true},
		{[]byte{0x7F}, 0x7F, 1, true},
		{[]byte{0x81, 0x00}, 0x80, 2, true},
		{[]byte{0xFF, 0xFF, 0xFF, 0x7F}, 0x0FFFFFFF, 4, true},
		{[]byte{0x80, 0x80, 0x80, 0x80}, 0, 0, false},
		{[]byte{}, 0, 0, false},
	}

	for _, tt := range tests {
		v, n, ok := readVarLen(tt.in)
		assert.Equal(t, tt.want, v)
		assert.Equal(t, tt.n, n)
		assert.Equal(t, tt.ok, ok)
	}
}
