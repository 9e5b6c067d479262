package converter

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Format represents a file format
type Format string

const (
	FormatSonicVisualiser Format = "sv"
	FormatJSON            Format = "json"
	FormatYAML            Format = "yaml"
	FormatMIDI            Format = "midi"
	FormatUnknown         Format = "unknown"
)

// ErrNoLoader is returned when no registered loader handles the input format
var ErrNoLoader = errors.New("no loader for input format")

// DetectFormat detects the format of a file based on extension
func DetectFormat(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".sv":
		return FormatSonicVisualiser
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".mid", ".midi":
		return FormatMIDI
	default:
		return FormatUnknown
	}
}

// DetectFormatFromContent detects format from file content
func DetectFormatFromContent(data []byte) Format {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return FormatUnknown
	}

	switch {
	case bytes.HasPrefix(data, []byte("MThd")):
		return FormatMIDI
	// bzip2 stream magic
	case bytes.HasPrefix(data, []byte("BZh")):
		return FormatSonicVisualiser
	case bytes.HasPrefix(trimmed, []byte("<?xml")), bytes.HasPrefix(trimmed, []byte("<!DOCTYPE sonic-visualiser")),
		bytes.HasPrefix(trimmed, []byte("<sv")):
		return FormatSonicVisualiser
	case trimmed[0] == '{':
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Loader turns an external project file into a Project
type Loader interface {
	Name() string
	Format() Format
	Load(data []byte) (*Project, error)
}

// Options tunes a conversion run
type Options struct {
	// Resolution overrides the project's pulses per quarter note when positive
	Resolution int
	// MaxPolyphony is the simultaneous-note ceiling per layer and per shared channel; 0 uses DefaultMaxPolyphony, negative disables it
	MaxPolyphony int
	// TrimLeadingSilence shifts the timeline so the first note or text starts at tick 0
	TrimLeadingSilence bool
	// Workers bounds parallel layer normalization; 0 uses GOMAXPROCS
	Workers int
	// MaxQuantizationError in seconds; 0 disables the check
	MaxQuantizationError float64
}

// DefaultOptions returns the options used by the command line tool
func DefaultOptions() Options {
	return Options{MaxPolyphony: DefaultMaxPolyphony}
}

// Result is the output of a successful conversion
type Result struct {
	Data        []byte
	Tracks      []Track
	Assignment  ChannelAssignment
	Diagnostics []Diagnostic
	Shift       Tick
}

// Converter runs conversions and dispatches project files to loaders
type Converter struct {
	opts    Options
	loaders map[Format]Loader
}

// New creates a new Converter with the given options and loaders
func New(opts Options, loaders ...Loader) *Converter {
	c := &Converter{opts: opts, loaders: make(map[Format]Loader)}
	for _, l := range loaders {
		c.Register(l)
	}
	return c
}

// Options returns the conversion options
func (c *Converter) Options() Options {
	return c.opts
}

// SetOptions replaces the conversion options
func (c *Converter) SetOptions(opts Options) {
	c.opts = opts
}

// Register adds or replaces the loader for its format
func (c *Converter) Register(l Loader) {
	c.loaders[l.Format()] = l
}

// GetLoader returns the loader for a format
func (c *Converter) GetLoader(f Format) (Loader, bool) {
	l, ok := c.loaders[f]
	return l, ok
}

// Convert runs the full pipeline on a project. Diagnostics never abort the run; malformed
// input and unencodable output return an error and no data.
func (c *Converter) Convert(p *Project) (*Result, error) {
	if p == nil {
		return nil, errors.New("nil project")
	}

	project := *p
	if c.opts.Resolution > 0 {
		project.Resolution = c.opts.Resolution
	}
	if err := project.Validate(); err != nil {
		return nil, err
	}

	q, err := NewQuantizer(project.Tempo, project.Resolution)
	if err != nil {
		return nil, err
	}

	diags := NewCollector()

	assignment, d := AllocateChannels(project.Layers)
	diags.Record(d...)

	normalized, err := c.normalize(&project, assignment, diags)
	if err != nil {
		return nil, err
	}

	builder := NewTrackBuilder(q)
	builder.MaxQuantizationError = c.opts.MaxQuantizationError
	builder.MaxPolyphony = c.maxPolyphony()
	tracks, d := builder.Build(&project, assignment, normalized)
	diags.Record(d...)

	var shift Tick
	if c.opts.TrimLeadingSilence {
		shift = LeadingSilence(tracks)
		tracks = TrimLeadingSilence(tracks)
	}

	data, err := Serialize(Header{Format: 1, Resolution: project.Resolution}, tracks)
	if err != nil {
		return nil, err
	}

	return &Result{
		Data:        data,
		Tracks:      tracks,
		Assignment:  assignment,
		Diagnostics: diags.Drain(),
		Shift:       shift,
	}, nil
}

func (c *Converter) maxPolyphony() int {
	if c.opts.MaxPolyphony == 0 {
		return DefaultMaxPolyphony
	}
	return c.opts.MaxPolyphony
}

// normalize runs the event normalizer on every assigned layer in parallel
func (c *Converter) normalize(p *Project, a ChannelAssignment, diags *Collector) ([]NormalizedLayer, error) {
	maxPoly := c.maxPolyphony()
	workers := c.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	normalized := make([]NormalizedLayer, len(p.Layers))
	var g errgroup.Group
	g.SetLimit(workers)

	for i := range p.Layers {
		if a.Layers[i] < 0 {
			normalized[i] = NormalizedLayer{Index: i}
			continue
		}
		i := i
		g.Go(func() error {
			n, d := NormalizeLayer(i, p.Layers[i], maxPoly)
			normalized[i] = n
			diags.Record(d...)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return normalized, nil
}

// Load reads project data with the loader registered for its format
func (c *Converter) Load(format Format, data []byte) (*Project, error) {
	if format == FormatUnknown {
		format = DetectFormatFromContent(data)
	}
	l, ok := c.loaders[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoLoader, format)
	}
	p, err := l.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.Name(), err)
	}
	return p, nil
}

// ConvertData loads and converts project data
func (c *Converter) ConvertData(format Format, data []byte) (*Result, error) {
	p, err := c.Load(format, data)
	if err != nil {
		return nil, err
	}
	return c.Convert(p)
}

// ConvertFile converts a project file into a MIDI file. Nothing is written on failure.
func (c *Converter) ConvertFile(inputPath, outputPath string) (*Result, error) {
	if DetectFormat(outputPath) != FormatMIDI {
		return nil, errors.New("output file must have a .mid or .midi extension")
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}

	result, err := c.ConvertData(DetectFormat(inputPath), data)
	if err != nil {
		return nil, fmt.Errorf("conversion failed: %w", err)
	}

	if err := os.WriteFile(outputPath, result.Data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write output file: %w", err)
	}

	return result, nil
}

// GetSupportedFormats returns the input formats handled by the registered loaders
func (c *Converter) GetSupportedFormats() []string {
	var formats []string
	for _, f := range []Format{FormatSonicVisualiser, FormatJSON, FormatYAML} {
		if _, ok := c.loaders[f]; ok {
			formats = append(formats, string(f))
		}
	}
	return formats
}
