package cli

import (
	"context"
	"fmt"
	"os"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

// Style functions for dynamic theming
func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// reportFunc tells the progress display how far the work got.
type reportFunc func(done, total int)

// progressMsg carries a progress report from the worker.
type progressMsg struct {
	done  int
	total int
}

// workDoneMsg signals that the worker returned.
type workDoneMsg struct {
	err error
}

// progressModel is the bubbletea model for a long-running local task.
type progressModel struct {
	title    string
	unit     string
	done     int
	total    int
	progress progress.Model
	theme    Theme
	finished bool
	quitting bool
	err      error
}

// newProgressModel creates a new progress model.
func newProgressModel(title, unit string) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		title:    title,
		unit:     unit,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command.
func (m progressModel) Init() tea.Cmd {
	return m.progress.Init()
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case progressMsg:
		m.done = msg.done
		m.total = msg.total
		return m, nil

	case workDoneMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.finished || m.quitting {
		return m.finalView()
	}

	var pct float64
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.title))
	progressBar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d %s", m.done, m.total, m.unit)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to stop")

	return fmt.Sprintf("%s %s %s\n%s\n", status, progressBar, counts, hint)
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render(fmt.Sprintf("\n%s stopped after %d/%d %s.\n", m.title, m.done, m.total, m.unit))
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s failed: %s\n", m.title, m.err))
	}
	return m.theme.completedStyle().Render(fmt.Sprintf("✓ %s: %d %s\n", m.title, m.done, m.unit))
}

// runWithProgress runs work, showing a progress bar when stdout is a
// terminal. Quitting the display cancels the context passed to work.
func runWithProgress(ctx context.Context, title, unit string, work func(ctx context.Context, report reportFunc) error) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return work(ctx, func(int, int) {})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(title, unit))
	workErr := make(chan error, 1)
	go func() {
		err := work(ctx, func(done, total int) {
			p.Send(progressMsg{done: done, total: total})
		})
		workErr <- err
		p.Send(workDoneMsg{err: err})
	}()

	finalModel, err := p.Run()
	if err != nil {
		cancel()
		<-workErr
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok && m.quitting {
		cancel()
	}
	return <-workErr
}
