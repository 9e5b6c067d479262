package converter

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "+0:00.000"},
		{5, "+0:05.000"},
		{61.5, "+1:01.500"},
		{-3.25, "-0:03.250"},
		{3661, "+1:01:01.000"},
		{90061, "+1:01:01:01.000"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSeconds(tt.in), "FormatSeconds(%g)", tt.in)
	}
}

func TestDiagnosticKindString(t *testing.T) {
	assert.Equal(t, "non_ascii_label", NonASCIILabel.String())
	assert.Equal(t, "channel_conflict", ChannelConflict.String())
	assert.Equal(t, "diagnostic(99)", DiagnosticKind(99).String())
	assert.Len(t, DiagnosticKinds(), 7)
}

func TestDiagnosticJSON(t *testing.T) {
	d := newDiagnostic(NoteOverlap, 2, "Bass")
	d.Time = 5
	d.Pitch = 40

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"note_overlap"`)
	assert.Contains(t, string(data), `"channel":-1`)
}

func TestDiagnosticMessage(t *testing.T) {
	overlap := newDiagnostic(NoteOverlap, 0, "Bass")
	overlap.Time = 5
	overlap.Pitch = 60

	unassignable := newDiagnostic(UnassignableLayer, 16, "Extra")

	name := newDiagnostic(NonASCIILabel, 0, "Café")
	name.Text = "Café"

	label := newDiagnostic(NonASCIILabel, -1, "")
	label.Text = "ça"
	label.Time = 1

	conflict := newDiagnostic(ChannelConflict, 1, "Lead")
	conflict.Channel = 3

	tests := []struct {
		d    Diagnostic
		want string
	}{
		{overlap, "note overlap on layer 'Bass' at +0:05.000 (pitch 60)"},
		{unassignable, "no MIDI channel available for layer 'Extra'; it will be dropped"},
		{name, `non-ASCII name on layer 'Caf\u00e9'; it may be mishandled by other music software`},
		{label, `non-ASCII label '\u00e7a' on project at +0:01.000; it may be mishandled by other music software`},
		{conflict, "channel 3 requested by layer 'Lead' is already taken; assigning automatically"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.d.Message())
		assert.Equal(t, tt.want, tt.d.String())
	}
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(layer int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Record(newDiagnostic(NoteOverlap, layer, "layer"))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1000, c.Len())
	drained := c.Drain()
	assert.Len(t, drained, 1000)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 1000, CountByKind(drained)[NoteOverlap])
}

func TestCollectorDrainEmpty(t *testing.T) {
	c := NewCollector()
	c.Record()

	drained := c.Drain()
	assert.NotNil(t, drained)
	assert.Empty(t, drained)
}
