// Package statusboard renders the mapper's live per-worker status grid
// (spec.md section 4.2, "If live_status, the thread periodically emits a
// one-line status ... to a row of the terminal reserved for its id").
// Styling follows arx-os-arxos/cmd/arx/tui/utils/styles.go; unlike the
// teacher's bubbletea program this board is a plain frame built by Render
// from the latest rows, not an interactive Elm-architecture loop, so only
// lipgloss is
// used (see DESIGN.md, "bubbletea specifically is dropped").
package statusboard

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Row is one worker's current progress snapshot.
type Row struct {
	ThreadID          int
	Total             uint64
	Invalid           uint64
	Valid             uint64
	MappingsSinceBest uint64
	BestUtilization   float64
	BestEnergyPJ      float64
	BestCycles        float64
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0066CC"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#006600"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#CC6600"))
)

// Board holds one reserved terminal row per worker, protected by a mutex
// (spec.md section 5: the terminal status grid is one of the three
// structures behind the single global mutex).
type Board struct {
	mu   sync.Mutex
	rows []Row
}

// New allocates a board with n reserved rows.
func New(n int) *Board {
	return &Board{rows: make([]Row, n)}
}

// Update replaces the row for worker id.
func (b *Board) Update(id int, row Row) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id < 0 || id >= len(b.rows) {
		return
	}
	b.rows[id] = row
}

// Render draws the current grid as a multi-line string suitable for
// redrawing over the previous frame.
func (b *Board) Render() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("%-4s %10s %10s %10s %8s %12s %10s", "id", "total", "invalid", "valid", "consec.", "util.", "cycles")))
	sb.WriteString("\n")
	for _, r := range b.rows {
		utilStyle := goodStyle
		if r.BestUtilization < 0.5 {
			utilStyle = warnStyle
		}
		sb.WriteString(fmt.Sprintf("%-4d %10d %10d %10d %8d %s %10.0f\n",
			r.ThreadID, r.Total, r.Invalid, r.Valid, r.MappingsSinceBest,
			utilStyle.Render(fmt.Sprintf("%12.4f", r.BestUtilization)),
			r.BestCycles))
	}
	sb.WriteString(labelStyle.Render("ctrl-c to stop"))
	return sb.String()
}
