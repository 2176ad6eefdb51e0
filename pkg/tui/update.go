package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "s":
			if m.monitor.Trigger() {
				m.setStatus("scan requested")
			} else {
				m.setStatus("scan already pending")
			}
			return m, nil
		case "enter":
			if m.state == ViewStateList && m.hasData && len(m.snapshot.SPOFs) > 0 {
				m.state = ViewStateDetail
			}
			return m, nil
		case "esc", "b":
			m.state = ViewStateList
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		h := msg.Height - 10
		if h < 5 {
			h = 5
		}
		m.table.SetHeight(h)
		return m, nil

	case tickMsg:
		m.tickCount++
		m.refreshData()
		return m, m.tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.state == ViewStateList {
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) setStatus(msg string) {
	m.statusMsg = msg
	m.statusTime = time.Now()
}
