// Package resultio renders the four output artifacts of spec.md section 6
// for a completed search: a human-readable pretty print, a replayable
// configuration snippet, a serialized engine+mapping record, and a layout
// YAML describing the final (splitting, packing, auth) selection.
package resultio

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/maeri-project/squareloop/internal/layout"
	"github.com/maeri-project/squareloop/internal/mapping"
	"github.com/maeri-project/squareloop/internal/topology"
)

// Artifacts bundles the four outputs of a single completed run.
type Artifacts struct {
	Summary   string
	PrettyMap string
	ConfigYAML string
	Record     Record
	LayoutYAML string
}

// Record is the serialized engine+mapping record of spec.md section 6's
// third artifact: an implementation-defined format, here a flat YAML
// document identified by a run id.
type Record struct {
	RunID       string    `yaml:"run_id"`
	GeneratedAt time.Time `yaml:"generated_at"`
	Valid       bool      `yaml:"valid"`
	Cycles      float64   `yaml:"cycles"`
	EnergyPJ    float64   `yaml:"energy_pj"`
	EDP         float64   `yaml:"edp"`
	Utilization float64   `yaml:"utilization"`
	Levels      []levelRecord `yaml:"levels"`
}

type levelRecord struct {
	Level      int     `yaml:"level"`
	Slowdown   float64 `yaml:"slowdown"`
	Energy     float64 `yaml:"energy_pj"`
	Cycles     float64 `yaml:"cycles"`
}

// Build assembles all four artifacts for a completed result. now is passed
// in rather than read from the clock, since callers may not invoke the Go
// toolchain's time package at generation boundaries deterministically
// (tests stamp a fixed time).
func Build(result topology.EvaluationResult, m mapping.Mapping, layouts map[int]*layout.Layout, dimNames []string, now time.Time) Artifacts {
	return Artifacts{
		Summary:    Summary(result),
		PrettyMap:  PrettyPrint(result, m, dimNames),
		ConfigYAML: FormatAsConfig(m, layouts),
		Record:     toRecord(result, now),
		LayoutYAML: LayoutYAML(layouts),
	}
}

// Summary renders the one-line "utilization | pJ/compute | cycles" string
// of spec.md section 7's user-visible success path.
func Summary(result topology.EvaluationResult) string {
	if !result.Valid {
		return "no valid mappings found within criteria"
	}
	return fmt.Sprintf("%.4f util | %.4f pJ/compute | %.0f cycles",
		result.Utilization, result.EnergyPJ, result.Cycles)
}

// PrettyPrint renders a human-readable best-mapping report: per-level
// loop nests annotated with dimension names and spacetime tags, followed
// by the aggregate statistics.
func PrettyPrint(result topology.EvaluationResult, m mapping.Mapping, dimNames []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Mapping (%d storage levels):\n", m.Nest.NumLevels())
	for lvl := 0; lvl < m.Nest.NumLevels(); lvl++ {
		fmt.Fprintf(&sb, "  level %d:\n", lvl)
		for _, l := range m.Nest.LoopsAtLevel(lvl) {
			name := dimName(dimNames, l.DimID)
			fmt.Fprintf(&sb, "    for %s in [%d, %d) stride %d (%s)\n", name, l.Start, l.End, l.Stride, l.SpaceTime)
		}
	}
	fmt.Fprintf(&sb, "\nStats: %s\n", Summary(result))
	for _, lr := range result.Levels {
		fmt.Fprintf(&sb, "  level %d: slowdown=%.4f energy=%.4f cycles=%.0f\n", lr.Level, lr.Slowdown, lr.Energy, lr.Cycles)
	}
	return sb.String()
}

func dimName(names []string, id int) string {
	if id >= 0 && id < len(names) {
		return names[id]
	}
	return fmt.Sprintf("dim%d", id)
}

// FormatAsConfig renders the best result's per-level layouts as a
// `layout:`-style config snippet (spec.md section 6's `layout` input
// shape). The mapping's loop nest is not rendered (m is unused), and the
// search does not read a `layout` key back, so the snippet does not replay
// a run.
func FormatAsConfig(m mapping.Mapping, layouts map[int]*layout.Layout) string {
	type factorEntry struct {
		Target        string            `yaml:"target"`
		Type          string            `yaml:"type"`
		Factors       string            `yaml:"factors"`
		Permutation   string            `yaml:"permutation,omitempty"`
		NumReadPorts  int               `yaml:"num_read_ports,omitempty"`
		NumWritePorts int               `yaml:"num_write_ports,omitempty"`
	}
	var entries []factorEntry
	for lvl := 0; lvl < len(layouts); lvl++ {
		lay, ok := layouts[lvl]
		if !ok {
			continue
		}
		for _, dsName := range lay.DataSpaceNames {
			nests := lay.Nests[dsName]
			entries = append(entries,
				factorEntry{
					Target:        fmt.Sprintf("%s@level%d", dsName, lvl),
					Type:          "interline",
					Factors:       factorsToken(nests.Interline),
					NumReadPorts:  lay.NumReadPorts,
					NumWritePorts: lay.NumWritePorts,
				},
				factorEntry{
					Target:  fmt.Sprintf("%s@level%d", dsName, lvl),
					Type:    "intraline",
					Factors: factorsToken(nests.Intraline),
				},
			)
		}
	}
	out, err := yaml.Marshal(map[string]interface{}{"layout": entries})
	if err != nil {
		return fmt.Sprintf("# config format error: %v\n", err)
	}
	return string(out)
}

func factorsToken(n layout.Nest) string {
	var sb strings.Builder
	for i, r := range n.Ranks {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%s=%d", r, n.Factors[r])
	}
	return sb.String()
}

func toRecord(result topology.EvaluationResult, now time.Time) Record {
	r := Record{
		RunID:       uuid.NewString(),
		GeneratedAt: now,
		Valid:       result.Valid,
		Cycles:      result.Cycles,
		EnergyPJ:    result.EnergyPJ,
		EDP:         result.EDP,
		Utilization: result.Utilization,
	}
	for _, lr := range result.Levels {
		r.Levels = append(r.Levels, levelRecord{Level: lr.Level, Slowdown: lr.Slowdown, Energy: lr.Energy, Cycles: lr.Cycles})
	}
	return r
}

// MarshalRecord serializes a Record to YAML for the third artifact.
func MarshalRecord(r Record) (string, error) {
	out, err := yaml.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// LayoutYAML renders the fourth artifact: the final (splitting, packing,
// auth) selection per level and data space, as YAML.
func LayoutYAML(layouts map[int]*layout.Layout) string {
	type dsEntry struct {
		DataSpace   string `yaml:"data_space"`
		Interline   string `yaml:"interline"`
		Intraline   string `yaml:"intraline"`
		AuthblockLines string `yaml:"authblock_lines,omitempty"`
	}
	type levelEntry struct {
		Level      int       `yaml:"level"`
		DataSpaces []dsEntry `yaml:"data_spaces"`
	}
	var levels []levelEntry
	for lvl := 0; lvl < len(layouts); lvl++ {
		lay, ok := layouts[lvl]
		if !ok {
			continue
		}
		le := levelEntry{Level: lvl}
		for _, dsName := range lay.DataSpaceNames {
			nests := lay.Nests[dsName]
			entry := dsEntry{
				DataSpace: dsName,
				Interline: factorsToken(nests.Interline),
				Intraline: factorsToken(nests.Intraline),
			}
			if len(nests.AuthblockLines.Ranks) > 0 {
				entry.AuthblockLines = factorsToken(nests.AuthblockLines)
			}
			le.DataSpaces = append(le.DataSpaces, entry)
		}
		levels = append(levels, le)
	}
	out, err := yaml.Marshal(map[string]interface{}{"levels": levels})
	if err != nil {
		return fmt.Sprintf("# layout format error: %v\n", err)
	}
	return string(out)
}
