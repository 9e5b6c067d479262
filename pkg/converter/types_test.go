package converter

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *Project)
		field  string
	}{
		{"negative resolution", func(p *Project) { p.Resolution = -1 }, "resolution"},
		{"empty tempo", func(p *Project) { p.Tempo = nil }, "tempo"},
		{"channel out of range", func(p *Project) { p.Layers[0].Channel = Ch(16) }, "layers[0].channel"},
		{"program out of range", func(p *Project) { p.Layers[0].Program = 200 }, "layers[0].program"},
		{"volume out of range", func(p *Project) { p.Layers[0].Volume = Val(128) }, "layers[0].volume"},
		{"pan out of range", func(p *Project) { p.Layers[0].Pan = Val(255) }, "layers[0].pan"},
		{"pitch out of range", func(p *Project) { p.Layers[0].Notes[0].Pitch = 128 }, "layers[0].notes[0].pitch"},
		{"velocity out of range", func(p *Project) { p.Layers[0].Notes[0].Velocity = 200 }, "layers[0].notes[0].velocity"},
		{"NaN start", func(p *Project) { p.Layers[0].Notes[0].Start = math.NaN() }, "layers[0].notes[0]"},
		{"infinite end", func(p *Project) { p.Layers[0].Notes[0].End = math.Inf(1) }, "layers[0].notes[0]"},
		{"NaN project text", func(p *Project) { p.Texts = []TextEvent{{Time: math.NaN()}} }, "texts[0].time"},
		{"NaN layer text", func(p *Project) { p.Layers[0].Texts = []TextEvent{{Time: math.Inf(-1)}} }, "layers[0].texts[0].time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testProject(Layer{Name: "Lead", Notes: []NoteEvent{note(0, 1, 60)}})
			tt.modify(p)

			var verr *ValidationError
			require.True(t, errors.As(p.Validate(), &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestProjectValidateAcceptsDiagnosableInput(t *testing.T) {
	p := testProject(Layer{
		Name:  "Ünïcode",
		Notes: []NoteEvent{note(2, 1, 60), note(0, 1, 60), note(0.5, 2, 60)},
	})
	assert.NoError(t, p.Validate())
}

func TestLayerEffectiveValues(t *testing.T) {
	var l Layer
	assert.Equal(t, uint8(DefaultVolume), l.EffectiveVolume())
	assert.Equal(t, uint8(PanCenter), l.EffectivePan())

	l.Volume = Val(0)
	l.Pan = Val(127)
	assert.Equal(t, uint8(0), l.EffectiveVolume())
	assert.Equal(t, uint8(127), l.EffectivePan())
}
