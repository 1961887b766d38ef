// Package tuidash implements backend-manager trace status: a read-only
// Bubble Tea dashboard that polls a running daemon's session table and
// renders it as a live-updating list.
package tuidash

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/codetracer/pkg/daemonclient"
)

const pollInterval = time.Second

const tracePathColumn = 40

// fitCell pads or truncates s to fit a fixed-width terminal column, counting
// display width rather than bytes so wide-rune trace paths don't blow the
// column alignment the way fmt's %-Ns would.
func fitCell(s string, width int) string {
	if runewidth.StringWidth(s) > width {
		return runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	rowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
)

// Run connects to socketPath and blocks running the dashboard in the
// current terminal until the user quits.
func Run(socketPath string) error {
	c, err := daemonclient.Dial(socketPath)
	if err != nil {
		return fmt.Errorf("tuidash: %w", err)
	}
	defer c.Close()

	m := newModel(c)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

type sessionRow struct {
	SessionID    string `json:"sessionId"`
	TracePath    string `json:"tracePath"`
	LastActivity string `json:"lastActivity"`
	ClientRefs   int32  `json:"clientRefs"`
}

type sessionsMsg struct {
	rows []sessionRow
	err  error
}

type tickMsg time.Time

type model struct {
	client  *daemonclient.Client
	spinner spinner.Model
	rows    []sessionRow
	lastErr error
	loading bool
}

func newModel(c *daemonclient.Client) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = keyStyle
	return model{client: c, spinner: s, loading: true}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchSessions(), tickEvery())
}

func tickEvery() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) fetchSessions() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		resp, err := client.Request(ctx, "ct/list-sessions", nil)
		if err != nil {
			return sessionsMsg{err: err}
		}
		if !resp.Success {
			return sessionsMsg{err: fmt.Errorf("%s", resp.Message)}
		}
		var rows []sessionRow
		if err := json.Unmarshal(resp.Body, &rows); err != nil {
			return sessionsMsg{err: err}
		}
		return sessionsMsg{rows: rows}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.fetchSessions(), tickEvery())
	case sessionsMsg:
		m.loading = false
		m.lastErr = msg.err
		if msg.err == nil {
			m.rows = msg.rows
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	header := headerStyle.Render(fmt.Sprintf("codetracer sessions — %d loaded", len(m.rows)))
	lines := []string{header, ""}

	if m.loading {
		lines = append(lines, fmt.Sprintf("%s loading...", m.spinner.View()))
	} else if m.lastErr != nil {
		lines = append(lines, errorStyle.Render("error: "+m.lastErr.Error()))
	} else if len(m.rows) == 0 {
		lines = append(lines, dimStyle.Render("no sessions loaded"))
	} else {
		lines = append(lines, rowStyle.Render(fmt.Sprintf("%-12s %s %-24s %s", "SESSION", fitCell("TRACE", tracePathColumn), "LAST ACTIVITY", "CLIENTS")))
		for _, r := range m.rows {
			lines = append(lines, rowStyle.Render(fmt.Sprintf("%-12s %s %-24s %d", r.SessionID, fitCell(r.TracePath, tracePathColumn), r.LastActivity, r.ClientRefs)))
		}
	}

	lines = append(lines, "", dimStyle.Render("press q to quit"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
