package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/james-see/sv2midi/pkg/converter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		outputFile = ""
		quiet = false
		resolution = converter.DefaultResolution
		rootCmd.PersistentFlags().Lookup("resolution").Changed = false
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestGetOutputPath(t *testing.T) {
	outputFile = ""
	assert.Equal(t, "songs/demo.mid", getOutputPath("songs/demo.sv"))
	assert.Equal(t, "demo.mid", getOutputPath("demo.yaml"))

	outputFile = "out.mid"
	defer func() { outputFile = "" }()
	assert.Equal(t, "out.mid", getOutputPath("demo.yaml"))
}

func TestConvertAndInspect(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "demo.yaml")
	project := `name: Demo
layers:
  - name: Lead
    notes:
      - {start: 0, end: 2, pitch: 60}
      - {start: 1, end: 3, pitch: 60}
`
	require.NoError(t, os.WriteFile(input, []byte(project), 0644))

	stdout, stderr, err := execute(t, "convert", input)
	require.NoError(t, err)

	output := filepath.Join(dir, "demo.mid")
	assert.FileExists(t, output)
	assert.Contains(t, stdout, "2 tracks")
	assert.Contains(t, stderr, "warning: note overlap on layer 'Lead'")

	stdout, _, err = execute(t, "inspect", output)
	require.NoError(t, err)
	assert.Contains(t, stdout, "format 1, 1024 PPQ")
	assert.Contains(t, stdout, `"Lead"`)
	assert.Contains(t, stdout, "tempo 120.00 BPM at tick 0")
}

func TestConvertQuiet(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "demo.json")
	require.NoError(t, os.WriteFile(input, []byte(`{"layers": [{"name": "A", "notes": [
		{"start": 0, "end": 2, "pitch": 60},
		{"start": 1, "end": 3, "pitch": 60}
	]}]}`), 0644))

	_, stderr, err := execute(t, "convert", "--quiet", input, "-o", filepath.Join(dir, "quiet.mid"))
	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.FileExists(t, filepath.Join(dir, "quiet.mid"))
}

func TestConvertErrors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := execute(t, "convert", filepath.Join(dir, "missing.sv"))
	assert.Error(t, err)

	input := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(input, []byte("hello"), 0644))
	_, _, err = execute(t, "convert", input)
	assert.Error(t, err)
}

func TestConvertKeepsProjectResolution(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "fine.json")
	require.NoError(t, os.WriteFile(input, []byte(`{"resolution": 480, "layers": [
		{"name": "Lead", "notes": [{"start": 0, "end": 1, "pitch": 60}]}
	]}`), 0644))

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"project resolution", nil, 480},
		{"flag overrides", []string{"--resolution", "96"}, 96},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := filepath.Join(dir, "fine.mid")
			args := append([]string{"convert", input, "-o", output}, tt.args...)
			_, _, err := execute(t, args...)
			require.NoError(t, err)

			data, err := os.ReadFile(output)
			require.NoError(t, err)
			summary, err := converter.Inspect(data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, summary.Resolution)
		})
	}
}
