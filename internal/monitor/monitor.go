// Package monitor renders a live console panel of the acquisition output.
package monitor

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/OskarRg/neurohackathon/internal/acquisition"
	"github.com/OskarRg/neurohackathon/internal/eeg"
)

const (
	// RefreshInterval redraws the panel at 10 Hz.
	RefreshInterval = 100 * time.Millisecond
	// BarMax is the stress index that fills the bar.
	BarMax = 3.0
	// AlertThreshold is the index above which the alert line shows.
	AlertThreshold = 1.2
)

type tickMsg time.Time

// KeyMap holds the panel's bindings.
type KeyMap struct {
	Quit key.Binding
}

var DefaultKeyMap = KeyMap{
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "q", "esc"),
		key.WithHelp("q", "quit"),
	),
}

// Model is the bubbletea model of the panel.
type Model struct {
	reader acquisition.Reader
	device string
	bar    progress.Model
	keys   KeyMap
	snap   acquisition.Snapshot
	width  int
}

// New creates a panel polling reader.
func New(reader acquisition.Reader, device string) Model {
	return Model{
		reader: reader,
		device: device,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(30), progress.WithoutPercentage()),
		keys:   DefaultKeyMap,
		snap:   reader.GetData(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		m.snap = m.reader.GetData()
		return m, tick()
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("EEG CONTROL PANEL (%s)", m.device)))
	b.WriteString("\n")

	s := m.snap
	var body string
	switch {
	case s.Connected && s.IsReady && s.Status != acquisition.StatusBuffering:
		body = m.readingView(s)
	case s.Connected:
		body = fmt.Sprintf("Status: %s (please wait...)", s.Status)
	default:
		body = fmt.Sprintf("Status: %s\n%s", s.Status, HintStyle.Render("Trying to connect in the background..."))
	}
	b.WriteString(PanelStyle.Render(body))
	b.WriteString("\n")
	b.WriteString(HintStyle.Render("q: quit"))
	return b.String()
}

func (m Model) readingView(s acquisition.Snapshot) string {
	idx := s.StressIndex
	mood := s.Mood
	if mood == "" {
		mood = eeg.ClassifyMood(idx)
	}
	status := lipgloss.NewStyle().Foreground(MoodColor(mood)).Bold(true).Render(mood.Label())

	lines := []string{
		"Status: " + status,
		fmt.Sprintf("Index:  %.2f", idx),
		fmt.Sprintf("Gauge:  %s %.2f", m.bar.ViewAs(BarFraction(idx)), idx),
		strings.Repeat("-", 30),
		fmt.Sprintf("Alpha power: %.1f%%", s.AlphaRel*100),
		fmt.Sprintf("Beta power:  %.1f%%", s.BetaRel*100),
	}
	if idx > AlertThreshold {
		lines = append(lines, "", AlertStyle.Render(">>> ALERT: high focus or stress detected!"))
	}
	return strings.Join(lines, "\n")
}

// MoodColor picks the status colour for a mood.
func MoodColor(m eeg.Mood) lipgloss.Color {
	switch m {
	case eeg.MoodHighStress:
		return Red
	case eeg.MoodFocus:
		return Yellow
	default:
		return Green
	}
}

// BarFraction clamps index/BarMax into [0, 1].
func BarFraction(idx float64) float64 {
	if idx <= 0 || math.IsNaN(idx) {
		return 0
	}
	if idx >= BarMax {
		return 1
	}
	return idx / BarMax
}

// Run shows the panel until the user quits or ctx is cancelled.
func Run(ctx context.Context, reader acquisition.Reader, device string) error {
	p := tea.NewProgram(New(reader, device), tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
