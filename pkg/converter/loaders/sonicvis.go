// Package loaders provides project file readers for the converter
package loaders

import (
	"bytes"
	"compress/bzip2"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/james-see/sv2midi/pkg/converter"
)

// ErrMalformedProject wraps every structural problem found in an input file
var ErrMalformedProject = errors.New("malformed project")

// Sonic Visualiser layer types
const (
	layerNotes        = "notes"
	layerTimeInstants = "timeinstants"
	layerText         = "text"
)

// clipId -> General MIDI program
var svPrograms = map[string]uint8{
	"piano":     0,
	"elecpiano": 5,
	"organ":     17,
	"beep":      80,
}

// clipId -> General MIDI percussion key
var svDrumNotes = map[string]uint8{
	"bass":    35,
	"bounce":  27,
	"clap":    39,
	"click":   33,
	"cowbell": 56,
	"hihat":   42,
	"kick":    41,
	"silent":  0,
	"snare":   38,
	"stick":   30,
	"strike":  49,
	"tap":     32,
}

type svDocument struct {
	XMLName xml.Name `xml:"sv"`
	Data    svData   `xml:"data"`
}

type svData struct {
	Models         []svModel          `xml:"model"`
	PlayParameters []svPlayParameters `xml:"playparameters"`
	Layers         []svLayer          `xml:"layer"`
	Datasets       []svDataset        `xml:"dataset"`
}

type svModel struct {
	ID         int    `xml:"id,attr"`
	Name       string `xml:"name,attr"`
	SampleRate int    `xml:"sampleRate,attr"`
	Type       string `xml:"type,attr"`
	Dataset    string `xml:"dataset,attr"`
}

type svPlayParameters struct {
	Mute   bool   `xml:"mute,attr"`
	Pan    string `xml:"pan,attr"`
	Gain   string `xml:"gain,attr"`
	ClipID string `xml:"clipId,attr"`
	Model  int    `xml:"model,attr"`
}

type svDataset struct {
	ID     int       `xml:"id,attr"`
	Points []svPoint `xml:"point"`
}

type svPoint struct {
	Frame    int64  `xml:"frame,attr"`
	Value    string `xml:"value,attr"`
	Duration string `xml:"duration,attr"`
	Level    string `xml:"level,attr"`
	Label    string `xml:"label,attr"`
}

type svLayer struct {
	ID               int    `xml:"id,attr"`
	Type             string `xml:"type,attr"`
	Name             string `xml:"name,attr"`
	Model            int    `xml:"model,attr"`
	PresentationName string `xml:"presentationName,attr"`
}

func (l *svLayer) midiName() string {
	if l.PresentationName != "" {
		return l.PresentationName
	}
	return l.Name
}

// SonicVisualiser loads .sv session files (bzip2-compressed XML)
type SonicVisualiser struct {
	BPM        float64
	Resolution int
}

// NewSonicVisualiser creates a loader exporting at a fixed tempo and resolution
func NewSonicVisualiser(bpm float64, resolution int) *SonicVisualiser {
	return &SonicVisualiser{BPM: bpm, Resolution: resolution}
}

// Name returns the loader name
func (s *SonicVisualiser) Name() string {
	return "Sonic Visualiser"
}

// Format returns the handled format
func (s *SonicVisualiser) Format() converter.Format {
	return converter.FormatSonicVisualiser
}

// Load parses a session and maps notes layers to melodic layers, time instants
// layers to drum layers and text layers to project texts
func (s *SonicVisualiser) Load(data []byte) (*converter.Project, error) {
	xmlData, err := decompress(data)
	if err != nil {
		return nil, err
	}

	var doc svDocument
	if err := xml.Unmarshal(xmlData, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProject, err)
	}

	tempo := converter.ConstantTempo(s.BPM)
	project := &converter.Project{
		Tempo:      tempo,
		Resolution: s.Resolution,
	}
	quarter := float64(tempo[0].MicrosPerQuarter) / 1e6

	for i := range doc.Data.Layers {
		layer := &doc.Data.Layers[i]
		switch layer.Type {
		case layerNotes, layerTimeInstants, layerText:
		default:
			continue
		}

		model, dataset, err := doc.Data.resolve(layer)
		if err != nil {
			return nil, err
		}
		params := doc.Data.playParameters(layer.Model)

		switch layer.Type {
		case layerNotes:
			l, err := notesLayer(layer, model, dataset, params)
			if err != nil {
				return nil, err
			}
			project.Layers = append(project.Layers, l)
		case layerTimeInstants:
			project.Layers = append(project.Layers, instantsLayer(layer, model, dataset, params, quarter))
		case layerText:
			for _, p := range dataset.Points {
				project.Texts = append(project.Texts, converter.TextEvent{
					Time: seconds(p.Frame, model.SampleRate),
					Text: p.Label,
				})
			}
		}
	}

	return project, nil
}

func decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, []byte("BZh")) {
		return data, nil
	}
	out, err := io.ReadAll(bzip2.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: bzip2: %v", ErrMalformedProject, err)
	}
	return out, nil
}

func (d *svData) resolve(layer *svLayer) (*svModel, *svDataset, error) {
	var model *svModel
	for i := range d.Models {
		if d.Models[i].ID == layer.Model {
			model = &d.Models[i]
			break
		}
	}
	if model == nil {
		return nil, nil, fmt.Errorf("%w: layer '%s' references missing model %d", ErrMalformedProject, layer.midiName(), layer.Model)
	}
	if model.SampleRate <= 0 {
		return nil, nil, fmt.Errorf("%w: model %d has no sample rate", ErrMalformedProject, model.ID)
	}

	datasetID, err := strconv.Atoi(model.Dataset)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: model %d doesn't have a dataset", ErrMalformedProject, model.ID)
	}
	for i := range d.Datasets {
		if d.Datasets[i].ID == datasetID {
			return model, &d.Datasets[i], nil
		}
	}
	return nil, nil, fmt.Errorf("%w: dataset %d doesn't exist", ErrMalformedProject, datasetID)
}

func (d *svData) playParameters(model int) *svPlayParameters {
	for i := range d.PlayParameters {
		if d.PlayParameters[i].Model == model {
			return &d.PlayParameters[i]
		}
	}
	return &svPlayParameters{}
}

func notesLayer(layer *svLayer, model *svModel, dataset *svDataset, params *svPlayParameters) (converter.Layer, error) {
	l := converter.Layer{
		Name:    layer.midiName(),
		Program: svPrograms[params.ClipID],
		Volume:  converter.Val(params.volume()),
		Pan:     converter.Val(params.pan()),
		Mute:    params.Mute,
		Notes:   make([]converter.NoteEvent, 0, len(dataset.Points)),
	}

	for _, p := range dataset.Points {
		value, err := strconv.ParseFloat(p.Value, 64)
		if err != nil {
			return l, fmt.Errorf("%w: notes layer '%s' point at frame %d has no value", ErrMalformedProject, l.Name, p.Frame)
		}
		duration, err := strconv.ParseInt(p.Duration, 10, 64)
		if err != nil {
			return l, fmt.Errorf("%w: notes layer '%s' point at frame %d has no duration", ErrMalformedProject, l.Name, p.Frame)
		}

		l.Notes = append(l.Notes, converter.NoteEvent{
			Start:    seconds(p.Frame, model.SampleRate),
			End:      seconds(p.Frame+duration, model.SampleRate),
			Pitch:    clamp7(math.Round(value)),
			Velocity: velocity(p.Level),
			Label:    p.Label,
		})
	}
	return l, nil
}

// instantsLayer expands zero-length instants into quarter-beat drum hits
func instantsLayer(layer *svLayer, model *svModel, dataset *svDataset, params *svPlayParameters, quarter float64) converter.Layer {
	key := svDrumNotes[params.ClipID]
	l := converter.Layer{
		Name:   layer.midiName(),
		Drum:   true,
		Volume: converter.Val(params.volume()),
		Pan:    converter.Val(params.pan()),
		Mute:   params.Mute,
		Notes:  make([]converter.NoteEvent, 0, len(dataset.Points)),
	}
	for _, p := range dataset.Points {
		start := seconds(p.Frame, model.SampleRate)
		l.Notes = append(l.Notes, converter.NoteEvent{
			Start: start,
			End:   start + quarter/4,
			Pitch: key,
		})
	}
	return l
}

// pan maps -1..1 onto the 7-bit pan controller
func (p *svPlayParameters) pan() uint8 {
	v, err := strconv.ParseFloat(p.Pan, 64)
	if err != nil {
		return converter.PanCenter
	}
	return clamp7(math.Floor(64 + v*63.5))
}

// volume maps gain 0..4 (unity 1) onto the 7-bit volume controller (unity 100)
func (p *svPlayParameters) volume() uint8 {
	v, err := strconv.ParseFloat(p.Gain, 64)
	if err != nil {
		return converter.DefaultVolume
	}
	return clamp7(math.Round(v * converter.DefaultVolume))
}

func velocity(level string) uint8 {
	v, err := strconv.ParseFloat(level, 64)
	if err != nil || v <= 0 {
		return converter.DefaultVelocity
	}
	vel := clamp7(math.Round(v * 127))
	if vel == 0 {
		vel = 1
	}
	return vel
}

func seconds(frame int64, sampleRate int) float64 {
	return float64(frame) / float64(sampleRate)
}

func clamp7(v float64) uint8 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 127:
		return 127
	default:
		return uint8(v)
	}
}
