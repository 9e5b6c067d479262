// Package main is the entry point for the sv2midi CLI
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/james-see/sv2midi/internal/config"
	"github.com/james-see/sv2midi/internal/logger"
	"github.com/james-see/sv2midi/pkg/api"
	"github.com/james-see/sv2midi/pkg/converter"
	"github.com/james-see/sv2midi/pkg/converter/loaders"
	"github.com/james-see/sv2midi/pkg/tui"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	outputFile   string
	bpm          float64
	resolution   int
	trimSilence  bool
	maxPolyphony int
	workers      int
	quiet        bool
	verbose      bool
	serverPort   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sv2midi",
	Short: "Convert annotation projects to Standard MIDI Files",
	Long: `sv2midi converts note annotation projects to multi-track Standard MIDI Files.

Sonic Visualiser sessions (.sv), JSON and YAML projects are supported. Each
layer becomes a MIDI track on its own channel; anomalies such as overlapping
notes or channel exhaustion are reported as warnings.

Examples:
  sv2midi convert session.sv -o session.mid
  sv2midi convert song.yaml --bpm 96 --trim-leading-silence
  sv2midi inspect session.mid
  sv2midi tui
  sv2midi serve --port 8080`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var convertCmd = &cobra.Command{
	Use:   "convert <input>",
	Short: "Convert a project to a MIDI file",
	Long:  `Detects the input format from the file extension (or content) and writes a Standard MIDI File.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConvert,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.mid>",
	Short: "Summarize the tracks and tempo map of a MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().Float64VarP(&bpm, "bpm", "t", converter.DefaultBPM, "Tempo for formats without a tempo map")
	rootCmd.PersistentFlags().IntVarP(&resolution, "resolution", "x", converter.DefaultResolution, "Pulses per quarter note")
	rootCmd.PersistentFlags().BoolVarP(&trimSilence, "trim-leading-silence", "s", false, "Start the output at the first note or label")
	rootCmd.PersistentFlags().IntVar(&maxPolyphony, "max-polyphony", converter.DefaultMaxPolyphony, "Simultaneous notes per layer, negative disables the check")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "Parallel layer workers (0: number of CPUs)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Do not print warnings")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log conversion details")

	// convert command
	convertCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output .mid file path")

	// serve command
	serveCmd.Flags().StringVarP(&serverPort, "port", "p", "", "Server port (default: $PORT or 8080)")

	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
}

// conversionOptions overrides the project resolution only when --resolution is given;
// otherwise the flag value is just the loader default for projects that declare none.
func conversionOptions(cmd *cobra.Command) converter.Options {
	opts := converter.DefaultOptions()
	if cmd.Flags().Changed("resolution") {
		opts.Resolution = resolution
	}
	opts.TrimLeadingSilence = trimSilence
	opts.MaxPolyphony = maxPolyphony
	opts.Workers = workers
	return opts
}

func newConverter(cmd *cobra.Command) *converter.Converter {
	return converter.New(conversionOptions(cmd), loaders.All(bpm, resolution)...)
}

func getOutputPath(input string) string {
	if outputFile != "" {
		return outputFile
	}
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + ".mid"
}

func runConvert(cmd *cobra.Command, args []string) error {
	input := args[0]
	output := getOutputPath(input)

	if bpm <= 0 {
		return fmt.Errorf("--bpm must be positive, got %g", bpm)
	}
	if resolution <= 0 {
		return fmt.Errorf("--resolution must be positive, got %d", resolution)
	}

	start := time.Now()
	result, err := newConverter(cmd).ConvertFile(input, output)
	if err != nil {
		return err
	}

	if !quiet {
		printDiagnostics(cmd.ErrOrStderr(), result.Diagnostics)
	}
	if verbose {
		counts := make(map[string]int)
		for kind, n := range converter.CountByKind(result.Diagnostics) {
			counts[kind.String()] = n
		}
		logger.LogConversion(string(converter.DetectFormat(input)), time.Since(start), len(result.Tracks), len(result.Data), counts, logger.Fields{
			"input":  input,
			"output": output,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Converted %s -> %s (%s, %d tracks)\n", input, output, humanize.Bytes(uint64(len(result.Data))), len(result.Tracks))
	return nil
}

func printDiagnostics(w io.Writer, diags []converter.Diagnostic) {
	for _, d := range diags {
		fmt.Fprintf(w, "warning: %s\n", d.Message())
	}
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	summary, err := converter.Inspect(data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: format %d, %d PPQ, %s\n", args[0], summary.Format, summary.Resolution, humanize.Bytes(uint64(summary.Size)))
	for _, tc := range summary.Tempo {
		fmt.Fprintf(out, "  tempo %.2f BPM at tick %d\n", tc.BPM, tc.Tick)
	}
	for i, t := range summary.Tracks {
		channel := "-"
		if t.Channel >= 0 {
			channel = fmt.Sprintf("%d", t.Channel+1)
		}
		fmt.Fprintf(out, "  track %2d  ch %-2s  %-24q %5d notes  %3d texts  ends at tick %d\n",
			i, channel, t.Name, t.Notes, len(t.Texts), t.LastTick)
	}
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	return tui.Run(tui.Config{
		BPM:        bpm,
		Resolution: resolution,
		Options:    conversionOptions(cmd),
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg := config.Load()
	if serverPort != "" {
		cfg.Port = serverPort
	}
	if cmd.Flags().Changed("bpm") {
		cfg.DefaultBPM = bpm
	}
	if cmd.Flags().Changed("resolution") {
		cfg.DefaultResolution = resolution
	}
	if cmd.Flags().Changed("max-polyphony") {
		cfg.MaxPolyphony = maxPolyphony
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = workers
	}

	flush := api.SetupSentry(cfg, version)
	defer flush()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Starting API server on port %s...\n", cfg.Port)
	return api.StartServer(cfg)
}
