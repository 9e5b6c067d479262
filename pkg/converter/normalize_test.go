package converter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLayerOverlap(t *testing.T) {
	layer := Layer{Name: "Lead", Notes: []NoteEvent{note(0, 10, 60), note(5, 15, 60)}}

	n, diags := NormalizeLayer(0, layer, DefaultMaxPolyphony)

	require.Len(t, n.Notes, 2)
	assert.Equal(t, 0.0, n.Notes[0].Start)
	assert.Equal(t, 5.0, n.Notes[0].End)
	assert.Equal(t, 5.0, n.Notes[1].Start)
	assert.Equal(t, 15.0, n.Notes[1].End)

	require.Len(t, diags, 1)
	assert.Equal(t, NoteOverlap, diags[0].Kind)
	assert.Equal(t, 5.0, diags[0].Time)
	assert.Equal(t, 60, diags[0].Pitch)

	// input untouched
	assert.Equal(t, 10.0, layer.Notes[0].End)
}

func TestNormalizeLayerOverlapDifferentPitches(t *testing.T) {
	n, diags := NormalizeLayer(0, Layer{Notes: []NoteEvent{note(0, 10, 60), note(5, 15, 64)}}, DefaultMaxPolyphony)
	assert.Empty(t, diags)
	assert.Equal(t, 10.0, n.Notes[0].End)
}

func TestNormalizeLayerOverlapSameStart(t *testing.T) {
	n, diags := NormalizeLayer(0, Layer{Notes: []NoteEvent{note(0, 10, 60), note(0, 5, 60)}}, DefaultMaxPolyphony)

	require.Len(t, n.Notes, 1)
	assert.Equal(t, 5.0, n.Notes[0].End)
	assert.Len(t, filterDiagnostics(diags, NoteOverlap), 1)
}

func TestNormalizeLayerCollapsed(t *testing.T) {
	layer := Layer{Notes: []NoteEvent{note(1, 1, 60), note(2, 1, 62), note(3, 4, 64)}}

	n, diags := NormalizeLayer(2, layer, DefaultMaxPolyphony)

	require.Len(t, n.Notes, 1)
	assert.Equal(t, uint8(64), n.Notes[0].Pitch)

	collapsed := filterDiagnostics(diags, CollapsedNote)
	require.Len(t, collapsed, 2)
	assert.Equal(t, 2, collapsed[0].Layer)
	assert.Equal(t, 1.0, collapsed[0].Time)
	assert.Equal(t, 2.0, collapsed[1].Time)
}

func TestNormalizeLayerSortsAndDefaults(t *testing.T) {
	layer := Layer{Notes: []NoteEvent{
		{Start: 2, End: 3, Pitch: 62},
		{Start: 0, End: 1, Pitch: 60, Velocity: 90},
	}}

	n, diags := NormalizeLayer(0, layer, DefaultMaxPolyphony)

	assert.Empty(t, diags)
	require.Len(t, n.Notes, 2)
	assert.Equal(t, uint8(60), n.Notes[0].Pitch)
	assert.Equal(t, uint8(90), n.Notes[0].Velocity)
	assert.Equal(t, uint8(DefaultVelocity), n.Notes[1].Velocity)
}

func TestNormalizeLayerPolyphony(t *testing.T) {
	tests := []struct {
		name  string
		notes []NoteEvent
		limit int
		want  int
	}{
		{"within limit", []NoteEvent{note(0, 1, 60), note(0, 1, 64)}, 2, 0},
		{"exceeded once", []NoteEvent{note(0, 1, 60), note(0, 1, 64), note(0, 1, 67), note(2, 3, 60), note(2, 3, 64), note(2, 3, 67)}, 2, 1},
		{"back to back", []NoteEvent{note(0, 1, 60), note(1, 2, 62), note(2, 3, 64)}, 1, 0},
		{"disabled", []NoteEvent{note(0, 1, 60), note(0, 1, 64), note(0, 1, 67)}, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, diags := NormalizeLayer(0, Layer{Notes: tt.notes}, tt.limit)
			assert.Len(t, filterDiagnostics(diags, ExcessivePolyphony), tt.want)
		})
	}
}

func TestNormalizeLayerNonASCII(t *testing.T) {
	layer := Layer{
		Name:  "Basse",
		Notes: []NoteEvent{{Start: 0, End: 1, Pitch: 40, Label: "réveil"}},
		Texts: []TextEvent{{Time: 3, Text: "fin"}, {Time: 1, Text: "début"}},
	}

	n, diags := NormalizeLayer(0, layer, DefaultMaxPolyphony)

	assert.Equal(t, "réveil", n.Notes[0].Label)
	assert.Equal(t, "début", n.Texts[0].Text)

	nonASCII := filterDiagnostics(diags, NonASCIILabel)
	require.Len(t, nonASCII, 2)
	assert.Equal(t, "réveil", nonASCII[0].Text)
	assert.Equal(t, "début", nonASCII[1].Text)
}

func TestResolveOverlaps(t *testing.T) {
	notes := []NoteEvent{note(0, 4, 60), note(1, 2, 62), note(2, 6, 60), note(3, 5, 60)}

	kept, overlaps := resolveOverlaps(notes)

	assert.Equal(t, []int{0, 1, 2, 3}, kept)
	assert.Equal(t, []int{2, 3}, overlaps)
	assert.Equal(t, 2.0, notes[0].End)
	assert.Equal(t, 3.0, notes[2].End)
}

func TestNormalizeLayerMutedPolyphony(t *testing.T) {
	layer := Layer{Name: "Ghost", Mute: true, Notes: []NoteEvent{note(0, 1, 60), note(0, 1, 64), note(0, 1, 67)}}

	n, diags := NormalizeLayer(0, layer, 2)

	assert.Empty(t, filterDiagnostics(diags, ExcessivePolyphony))
	assert.Len(t, n.Notes, 3)
}
