package loaders

import (
	"encoding/json"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/james-see/sv2midi/pkg/converter"
)

// Document loads projects serialized directly as JSON or YAML
type Document struct {
	format     converter.Format
	BPM        float64
	Resolution int
}

// NewJSON creates a JSON project loader. bpm and resolution fill in missing values.
func NewJSON(bpm float64, resolution int) *Document {
	return &Document{format: converter.FormatJSON, BPM: bpm, Resolution: resolution}
}

// NewYAML creates a YAML project loader. bpm and resolution fill in missing values.
func NewYAML(bpm float64, resolution int) *Document {
	return &Document{format: converter.FormatYAML, BPM: bpm, Resolution: resolution}
}

// Name returns the loader name
func (d *Document) Name() string {
	if d.format == converter.FormatYAML {
		return "YAML project"
	}
	return "JSON project"
}

// Format returns the handled format
func (d *Document) Format() converter.Format {
	return d.format
}

// Load decodes a project document
func (d *Document) Load(data []byte) (*converter.Project, error) {
	var p converter.Project

	var err error
	if d.format == converter.FormatYAML {
		err = yaml.Unmarshal(data, &p)
	} else {
		err = json.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProject, err)
	}

	if len(p.Tempo) == 0 {
		p.Tempo = converter.ConstantTempo(d.BPM)
	}
	if p.Resolution == 0 {
		p.Resolution = d.Resolution
	}
	return &p, nil
}

// All returns every loader configured with the same tempo and resolution
func All(bpm float64, resolution int) []converter.Loader {
	return []converter.Loader{
		NewSonicVisualiser(bpm, resolution),
		NewJSON(bpm, resolution),
		NewYAML(bpm, resolution),
	}
}
