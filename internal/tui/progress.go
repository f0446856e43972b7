// Package tui renders live task progress in the terminal.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/shortkeys/internal/event"
)

type taskState int

const (
	stateRunning taskState = iota
	stateSucceeded
	stateFailed
)

type taskRow struct {
	name     string
	state    taskState
	duration time.Duration
	err      error
}

// Model is the bubbletea model for one run. Feed it runner events with
// Attach, or send them directly in tests.
type Model struct {
	title       string
	spinner     spinner.Model
	rows        []*taskRow
	index       map[string]*taskRow
	done        bool
	runErr      error
	interrupted bool
	width       int
}

// New creates a Model for a run of tasks.
func New(tasks []string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = runningStyle
	return Model{
		title:   "shortkeys " + strings.Join(tasks, " "),
		spinner: s,
		index:   make(map[string]*taskRow),
	}
}

// Attach forwards every event on bus to p and returns the subscription id.
func Attach(bus *event.Bus, p *tea.Program) uint64 {
	return bus.SubscribeAll(func(e event.Event) { p.Send(e) })
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.interrupted = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case event.TaskStartedEvent:
		m.row(msg.Task).state = stateRunning
	case event.TaskFinishedEvent:
		r := m.row(msg.Task)
		r.state, r.duration = stateSucceeded, msg.Duration
	case event.TaskFailedEvent:
		r := m.row(msg.Task)
		r.state, r.duration, r.err = stateFailed, msg.Duration, msg.Err
	case event.RunFinishedEvent:
		m.done, m.runErr = true, msg.Err
		return m, tea.Quit
	}
	return m, nil
}

// row returns the row for task, appending it on first sight.
func (m *Model) row(task string) *taskRow {
	if r, ok := m.index[task]; ok {
		return r
	}
	r := &taskRow{name: task}
	m.index[task] = r
	m.rows = append(m.rows, r)
	return r
}

// Interrupted reports whether the user quit before the run finished.
func (m Model) Interrupted() bool {
	return m.interrupted && !m.done
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")

	for _, r := range m.rows {
		switch r.state {
		case stateRunning:
			fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), r.name)
		case stateSucceeded:
			fmt.Fprintf(&b, "%s %s %s\n", successStyle.Render("✓"), r.name, mutedStyle.Render(round(r.duration)))
		case stateFailed:
			fmt.Fprintf(&b, "%s %s %s\n", errorStyle.Render("✗"), r.name, mutedStyle.Render(round(r.duration)))
			if r.err != nil {
				b.WriteString(mutedStyle.Render(m.fit("  "+r.err.Error())) + "\n")
			}
		}
	}

	if m.done {
		if m.runErr != nil {
			b.WriteString(summaryStyle.Render(errorStyle.Render(m.fit("FAILED: " + m.runErr.Error()))))
		} else {
			b.WriteString(summaryStyle.Render(successStyle.Render(fmt.Sprintf("Finished %d tasks", len(m.rows)))))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// fit truncates s to the terminal width, if known.
func (m Model) fit(s string) string {
	if m.width <= 3 || lipgloss.Width(s) <= m.width {
		return s
	}
	return ansi.Truncate(s, m.width, "...")
}

func round(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}
