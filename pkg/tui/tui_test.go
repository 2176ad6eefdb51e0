package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/faultline/pkg/engine/impact"
	"github.com/DrSkyle/faultline/pkg/engine/risk"
	"github.com/DrSkyle/faultline/pkg/engine/spof"
)

type fakeMonitor struct {
	snap     spof.Snapshot
	ok       bool
	triggers int
	pending  bool
}

func (f *fakeMonitor) GetCurrentSPOFs() (spof.Snapshot, bool) { return f.snap, f.ok }

func (f *fakeMonitor) GetStatistics() spof.Statistics {
	return spof.Statistics{Status: spof.StateActive, TotalSPOFs: f.snap.TotalCount, HighRiskCount: f.snap.HighRiskCount}
}

func (f *fakeMonitor) Trigger() bool {
	if f.pending {
		return false
	}
	f.triggers++
	f.pending = true
	return true
}

func (f *fakeMonitor) Scanning() bool { return false }

func sampleSnapshot() spof.Snapshot {
	return spof.Snapshot{
		Timestamp:     time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC),
		TotalCount:    2,
		HighRiskCount: 1,
		SPOFs: []spof.Entry{
			{
				ResourceID:      "orders-db",
				ResourceType:    "database",
				DependentsCount: 7,
				BlastRadius:     12,
				UserImpact:      impact.ImpactHigh,
				DowntimeSeconds: 900,
				CriticalPath:    []string{"orders-db", "orders-api", "web"},
				RiskScore:       91.5,
				RiskLevel:       risk.LevelCritical,
				Recommendations: []string{"Add a read replica in a second zone"},
			},
			{
				ResourceID:      "session-cache",
				ResourceType:    "cache",
				DependentsCount: 2,
				BlastRadius:     2,
				UserImpact:      impact.ImpactLow,
				RiskScore:       44,
				RiskLevel:       risk.LevelMedium,
			},
		},
	}
}

func TestView_WaitingForFirstScan(t *testing.T) {
	m := NewModel(&fakeMonitor{}, time.Second)
	view := m.View()
	assert.Contains(t, view, "Waiting for the first scan")
	assert.Contains(t, view, "FAULTLINE")
}

func TestView_NoSPOFs(t *testing.T) {
	m := NewModel(&fakeMonitor{ok: true}, time.Second)
	assert.Contains(t, m.View(), "No single points of failure detected")
}

func TestView_ListAndDetails(t *testing.T) {
	mon := &fakeMonitor{snap: sampleSnapshot(), ok: true}
	m := NewModel(mon, time.Second)

	view := m.View()
	for _, want := range []string{"orders-db", "session-cache", "91.5", "CRITICAL", "HIGH RISK:"} {
		assert.Contains(t, view, want)
	}

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	require.Equal(t, ViewStateDetail, m.state)

	view = m.View()
	assert.Contains(t, view, "database : orders-db")
	assert.Contains(t, view, "orders-db > orders-api > web")
	assert.Contains(t, view, "Add a read replica")
	assert.Contains(t, view, "15m0s")

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("b")})
	m = updated.(Model)
	assert.Equal(t, ViewStateList, m.state)
}

func TestUpdate_ScanKeyTriggersOnce(t *testing.T) {
	mon := &fakeMonitor{ok: true}
	m := NewModel(mon, time.Second)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	m = updated.(Model)
	assert.Equal(t, 1, mon.triggers)
	assert.True(t, strings.Contains(m.View(), "scan requested"))

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	m = updated.(Model)
	assert.Equal(t, 1, mon.triggers)
	assert.Contains(t, m.View(), "scan already pending")
}

func TestUpdate_TickRefreshes(t *testing.T) {
	mon := &fakeMonitor{}
	m := NewModel(mon, time.Second)
	assert.False(t, m.hasData)

	mon.snap, mon.ok = sampleSnapshot(), true
	updated, cmd := m.Update(tickMsg(time.Now()))
	m = updated.(Model)
	assert.NotNil(t, cmd)
	assert.True(t, m.hasData)
	e, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, "orders-db", e.ResourceID)
}

func TestUpdate_Quit(t *testing.T) {
	m := NewModel(&fakeMonitor{}, 0)
	assert.Equal(t, defaultRefresh, m.refresh)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.NotNil(t, cmd)
	assert.Empty(t, updated.View())
}
