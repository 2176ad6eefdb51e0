// Package tui renders a live view of the SPOF monitor.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/DrSkyle/faultline/pkg/engine/spof"
)

// Monitor is the part of spof.Monitor the view reads.
type Monitor interface {
	GetCurrentSPOFs() (spof.Snapshot, bool)
	GetStatistics() spof.Statistics
	Trigger() bool
	Scanning() bool
}

type ViewState int

const (
	ViewStateList ViewState = iota
	ViewStateDetail
)

const defaultRefresh = 2 * time.Second

type Model struct {
	spinner spinner.Model
	table   table.Model
	monitor Monitor

	state    ViewState
	scanning bool
	quitting bool
	width    int
	height   int
	refresh  time.Duration

	snapshot spof.Snapshot
	hasData  bool
	stats    spof.Statistics

	statusMsg  string
	statusTime time.Time

	tickCount int
}

type tickMsg time.Time

var columns = []table.Column{
	{Title: "RESOURCE", Width: 28},
	{Title: "TYPE", Width: 16},
	{Title: "RISK", Width: 6},
	{Title: "LEVEL", Width: 9},
	{Title: "DEPENDENTS", Width: 10},
	{Title: "BLAST", Width: 6},
	{Title: "IMPACT", Width: 9},
}

// NewModel builds the view. refresh <= 0 uses a two second tick.
func NewModel(m Monitor, refresh time.Duration) Model {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = special

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorTextSub).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(colorTextMain).
		Background(lipgloss.Color("#331832")).
		Bold(true)
	t.SetStyles(styles)

	if refresh <= 0 {
		refresh = defaultRefresh
	}

	model := Model{
		spinner: s,
		table:   t,
		monitor: m,
		state:   ViewStateList,
		refresh: refresh,
	}
	model.refreshData()
	return model
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refreshData pulls the latest snapshot and statistics from the monitor.
func (m *Model) refreshData() {
	m.scanning = m.monitor.Scanning()
	m.stats = m.monitor.GetStatistics()
	snap, ok := m.monitor.GetCurrentSPOFs()
	m.hasData = ok
	if !ok {
		return
	}
	m.snapshot = snap
	m.table.SetRows(rows(snap))
}

// Selected returns the entry under the cursor.
func (m Model) Selected() (spof.Entry, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.snapshot.SPOFs) {
		return spof.Entry{}, false
	}
	return m.snapshot.SPOFs[i], true
}
