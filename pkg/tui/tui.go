// Package tui provides a terminal user interface for sv2midi
package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/james-see/sv2midi/pkg/converter"
	"github.com/james-see/sv2midi/pkg/converter/loaders"
)

// maxListedDiagnostics caps the diagnostics shown on the result screen
const maxListedDiagnostics = 8

var (
	acidGreen  = lipgloss.Color("#39FF14")
	acidYellow = lipgloss.Color("#FFFF00")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(acidGreen).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	menuStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true).
			PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().
			Foreground(acidYellow).
			PaddingTop(1)

	warningStyle = lipgloss.NewStyle().
			Foreground(acidYellow)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(acidGreen).
			Padding(1, 2)
)

// State represents the current TUI state
type State int

const (
	StateMenu State = iota
	StateFilePicker
	StateConverting
	StateResult
)

// Action is what a menu item does
type Action int

const (
	ActionConvert Action = iota
	ActionInspect
	ActionToggleTrim
	ActionExit
)

// MenuItem represents a menu option
type MenuItem struct {
	Title       string
	Description string
	Action      Action
	FileTypes   []string
}

var menuItems = []MenuItem{
	{Title: "PROJECT → MIDI", Description: "Convert a Sonic Visualiser, JSON or YAML project to a MIDI file", Action: ActionConvert, FileTypes: []string{".sv", ".json", ".yaml", ".yml"}},
	{Title: "INSPECT MIDI", Description: "Summarize the tracks and tempo map of a MIDI file", Action: ActionInspect, FileTypes: []string{".mid", ".midi"}},
	{Title: "Trim leading silence", Description: "Start the output at the first note or label", Action: ActionToggleTrim},
	{Title: "Exit", Description: "Exit the application", Action: ActionExit},
}

// Config carries the conversion settings chosen on the command line
type Config struct {
	BPM        float64
	Resolution int
	Options    converter.Options
}

// Model represents the TUI model
type Model struct {
	cfg          Config
	state        State
	menuIndex    int
	filePicker   filepicker.Model
	spinner      spinner.Model
	action       MenuItem
	selectedFile string
	result       resultMsg
	width        int
	height       int
}

// resultMsg signals that a conversion or inspection finished
type resultMsg struct {
	outputFile  string
	size        int
	tracks      int
	diagnostics []converter.Diagnostic
	summary     *converter.FileSummary
	err         error
}

// New creates a new TUI model
func New(cfg Config) Model {
	fp := filepicker.New()
	fp.AllowedTypes = menuItems[0].FileTypes
	fp.CurrentDirectory, _ = os.Getwd()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(acidGreen)

	return Model{
		cfg:        cfg,
		state:      StateMenu,
		filePicker: fp,
		spinner:    s,
	}
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick)
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// the file picker needs to receive all messages
	if m.state == StateFilePicker {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "esc":
				m.state = StateMenu
				return m, nil
			case "q", "ctrl+c":
				return m, tea.Quit
			}
		}

		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(msg)

		if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
			m.selectedFile = path
			m.state = StateConverting
			return m, tea.Batch(m.spinner.Tick, m.perform())
		}

		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case StateMenu:
			return m.updateMenu(msg)
		case StateResult:
			return m.updateResult(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case resultMsg:
		m.state = StateResult
		m.result = msg
		return m, nil
	}

	return m, nil
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.menuIndex > 0 {
			m.menuIndex--
		}
	case "down", "j":
		if m.menuIndex < len(menuItems)-1 {
			m.menuIndex++
		}
	case "t":
		m.cfg.Options.TrimLeadingSilence = !m.cfg.Options.TrimLeadingSilence
	case "enter":
		item := menuItems[m.menuIndex]
		switch item.Action {
		case ActionExit:
			return m, tea.Quit
		case ActionToggleTrim:
			m.cfg.Options.TrimLeadingSilence = !m.cfg.Options.TrimLeadingSilence
			return m, nil
		}
		m.action = item
		m.state = StateFilePicker
		m.filePicker.AllowedTypes = item.FileTypes
		return m, m.filePicker.Init()
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.state = StateMenu
		m.selectedFile = ""
		m.result = resultMsg{}
		return m, nil
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) perform() tea.Cmd {
	if m.action.Action == ActionInspect {
		return inspectFile(m.selectedFile)
	}
	return convertFile(m.cfg, m.selectedFile)
}

func convertFile(cfg Config, input string) tea.Cmd {
	return func() tea.Msg {
		conv := converter.New(cfg.Options, loaders.All(cfg.BPM, cfg.Resolution)...)
		output := strings.TrimSuffix(input, filepath.Ext(input)) + ".mid"

		result, err := conv.ConvertFile(input, output)
		if err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{
			outputFile:  output,
			size:        len(result.Data),
			tracks:      len(result.Tracks),
			diagnostics: result.Diagnostics,
		}
	}
}

func inspectFile(input string) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(input)
		if err != nil {
			return resultMsg{err: err}
		}
		summary, err := converter.Inspect(data)
		if err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{size: len(data), tracks: len(summary.Tracks), summary: summary}
	}
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	switch m.state {
	case StateMenu:
		s.WriteString(m.viewMenu())
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
	case StateConverting:
		s.WriteString(m.viewConverting())
	case StateResult:
		s.WriteString(m.viewResult())
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓: navigate • enter: select • t: toggle trim • q: quit"))

	return s.String()
}

func (m Model) viewMenu() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SV2MIDI "))
	s.WriteString("\n\n")

	for i, item := range menuItems {
		title := item.Title
		if item.Action == ActionToggleTrim {
			title = fmt.Sprintf("%s [%s]", title, onOff(m.cfg.Options.TrimLeadingSilence))
		}

		if i == m.menuIndex {
			s.WriteString(selectedStyle.Render(fmt.Sprintf("▸ %s", title)))
			s.WriteString("\n")
			s.WriteString(lipgloss.NewStyle().Foreground(acidYellow).PaddingLeft(4).Render(item.Description))
		} else {
			s.WriteString(menuStyle.Render(fmt.Sprintf("  %s", title)))
		}
		s.WriteString("\n")
	}

	s.WriteString(statusStyle.Render(fmt.Sprintf("  %.0f BPM • %d PPQ", m.cfg.BPM, m.cfg.Resolution)))

	return boxStyle.Render(s.String())
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(fmt.Sprintf(" SELECT %s FILE ", strings.Join(m.action.FileTypes, " "))))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back to menu"))

	return s.String()
}

func (m Model) viewConverting() string {
	var s strings.Builder

	verb := "Converting"
	if m.action.Action == ActionInspect {
		verb = "Reading"
	}

	s.WriteString(titleStyle.Render(" WORKING "))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("%s %s %s...\n", m.spinner.View(), verb, filepath.Base(m.selectedFile)))

	return boxStyle.Render(s.String())
}

func (m Model) viewResult() string {
	var s strings.Builder
	r := m.result

	switch {
	case r.err != nil:
		s.WriteString(titleStyle.Render(" ERROR "))
		s.WriteString("\n\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ Failed: %s", r.err.Error())))
	case r.summary != nil:
		s.WriteString(titleStyle.Render(" MIDI FILE "))
		s.WriteString("\n\n")
		s.WriteString(fmt.Sprintf("File:       %s (%s)\n", filepath.Base(m.selectedFile), humanize.Bytes(uint64(r.size))))
		s.WriteString(fmt.Sprintf("Format:     %d\n", r.summary.Format))
		s.WriteString(fmt.Sprintf("Resolution: %d PPQ\n", r.summary.Resolution))
		for _, tc := range r.summary.Tempo {
			s.WriteString(fmt.Sprintf("Tempo:      %.2f BPM at tick %d\n", tc.BPM, tc.Tick))
		}
		for i, t := range r.summary.Tracks {
			channel := "conductor"
			if t.Channel >= 0 {
				channel = fmt.Sprintf("ch %d", t.Channel+1)
			}
			s.WriteString(menuStyle.Render(fmt.Sprintf("%2d %-10s %-24s %d notes", i, channel, t.Name, t.Notes)))
			s.WriteString("\n")
		}
	default:
		s.WriteString(titleStyle.Render(" SUCCESS "))
		s.WriteString("\n\n")
		s.WriteString(successStyle.Render("✓ Conversion complete!"))
		s.WriteString("\n\n")
		s.WriteString(fmt.Sprintf("Input:  %s\n", filepath.Base(m.selectedFile)))
		s.WriteString(fmt.Sprintf("Output: %s (%s, %d tracks)", filepath.Base(r.outputFile), humanize.Bytes(uint64(r.size)), r.tracks))
		s.WriteString(m.viewDiagnostics())
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Press enter to continue"))

	return boxStyle.Render(s.String())
}

func (m Model) viewDiagnostics() string {
	diags := m.result.diagnostics
	if len(diags) == 0 {
		return ""
	}

	var s strings.Builder
	s.WriteString("\n\n")
	s.WriteString(warningStyle.Render(fmt.Sprintf("%d %s:", len(diags), plural(len(diags), "warning", "warnings"))))
	for i, d := range diags {
		if i == maxListedDiagnostics {
			s.WriteString(fmt.Sprintf("\n  … and %d more", len(diags)-maxListedDiagnostics))
			break
		}
		s.WriteString("\n  • ")
		s.WriteString(d.Message())
	}
	return s.String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func asciiLogo() string {
	logo := `
   ______   __    ____  __  __ ___ ____ ___
  / ___\ \ / /   |___ \|  \/  |_ _|  _ \_ _|
  \___ \\ V /      __) | |\/| || || | | | |
   ___) || |      / __/| |  | || || |_| | |
  |____/ |_|     |_____|_|  |_|___|____/___|
`
	return lipgloss.NewStyle().Foreground(acidGreen).Render(logo)
}

// Run starts the TUI application
func Run(cfg Config) error {
	p := tea.NewProgram(New(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
