package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ProgressFunc receives coarse transfer milestones: a message and a
// percentage in [0, 100], or -1 on failure with the message carrying the
// error
type ProgressFunc func(message string, percent float64)

// logProgressSink reports milestones through the logger; used in debug mode
// where the TUI would corrupt output
func logProgressSink(logger *slog.Logger) ProgressFunc {
	return func(message string, percent float64) {
		if percent < 0 {
			logger.Error(fmt.Sprintf("❌ %s", message))
			return
		}
		logger.Info(fmt.Sprintf("[%3.0f%%] %s", percent, message))
	}
}

type progressUpdateMsg struct {
	message string
	percent float64
}

type progressDoneMsg struct{}

var (
	progressHelpStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#626262")).
				Margin(0, 2)

	progressStageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#04B575")).
				Margin(0, 2)

	progressErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FF5555")).
				Margin(0, 2)
)

// progressModel renders milestone updates from the orchestrator's progress
// sink as a single bar with a message log
type progressModel struct {
	bar      progress.Model
	spin     spinner.Model
	percent  float64
	stage    string
	messages []string
	failed   bool
	done     bool
	width    int
}

func newProgressModel() progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	bar := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(60),
	)

	return progressModel{
		bar:      bar,
		spin:     s,
		stage:    "Initializing...",
		messages: make([]string, 0),
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.done = true
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 10
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		barModel, cmd := m.bar.Update(msg)
		if bm, ok := barModel.(progress.Model); ok {
			m.bar = bm
		}
		return m, cmd

	case progressUpdateMsg:
		m.stage = msg.message
		if msg.percent < 0 {
			m.failed = true
			return m, nil
		}
		m.percent = msg.percent / 100
		m.messages = append(m.messages, msg.message)
		if len(m.messages) > 10 {
			m.messages = m.messages[len(m.messages)-10:]
		}
		return m, m.bar.SetPercent(m.percent)

	case progressDoneMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.done && !m.failed {
		return ""
	}

	var sections []string
	sections = append(sections, "")
	sections = append(sections, progressStageStyle.Render("Cluster Transfer"))
	sections = append(sections, "")

	for _, message := range m.messages {
		sections = append(sections, "   "+message)
	}
	sections = append(sections, "")

	if m.failed {
		sections = append(sections, progressErrorStyle.Render("❌ "+m.stage))
	} else {
		sections = append(sections, fmt.Sprintf("   %s %s", m.spin.View(), m.stage))
		sections = append(sections, "   "+m.bar.ViewAs(m.percent))
	}

	sections = append(sections, "")
	sections = append(sections, progressHelpStyle.Render("Press Ctrl+C or 'q' to quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// trimMessage keeps progress messages on one terminal line
func trimMessage(message string, width int) string {
	message = strings.ReplaceAll(message, "\n", " ")
	if width > 4 && len(message) > width {
		return message[:width-3] + "..."
	}
	return message
}

// tuiProgressSink runs the bubbletea model in the background and returns a
// sink that feeds it. The returned stop function blocks until the TUI exits.
func tuiProgressSink() (ProgressFunc, func()) {
	program := tea.NewProgram(newProgressModel())

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_, _ = program.Run()
	}()

	sink := func(message string, percent float64) {
		program.Send(progressUpdateMsg{message: trimMessage(message, 120), percent: percent})
		if percent >= progressDone {
			program.Send(progressDoneMsg{})
		}
	}

	stop := func() {
		program.Send(progressDoneMsg{})
		<-finished
	}

	return sink, stop
}
