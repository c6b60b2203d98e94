package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
architecture:
  levels:
    - name: RF
    - name: MACC
      arithmetic: true
problem:
  dimensions:
    - name: M
      bound: 4
mapper:
  optimization_metric: edp
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile_ParsesAndValidatesAMinimalConfig(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Architecture.Levels, 2)
	assert.Equal(t, "M", cfg.Problem.Dimensions[0].Name)
	assert.Equal(t, "edp", cfg.Mapper.OptimizationMetric)
}

func TestLoadFile_PropagatesInvalidConfigErrors(t *testing.T) {
	path := writeTempConfig(t, `
architecture:
  nodes:
    - foo: bar
  levels:
    - name: RF
problem:
  dimensions:
    - name: M
      bound: 4
`)
	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFile_PropagatesMissingFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

// fixedSource is a test Source returning a pre-built Config at a fixed
// priority, used to exercise Loader's priority-ordered merge without
// touching the filesystem.
type fixedSource struct {
	cfg      *Config
	priority int
	name     string
}

func (f *fixedSource) Load() (*Config, error) { return f.cfg, nil }
func (f *fixedSource) Priority() int          { return f.priority }
func (f *fixedSource) Name() string           { return f.name }

func TestLoader_HigherPrioritySourceWinsOnOverlappingFields(t *testing.T) {
	base := minimalValidConfig()
	base.Mapper.OptimizationMetric = "delay"

	override := minimalValidConfig()
	override.Mapper.OptimizationMetric = "energy"

	l := NewLoader()
	l.AddSource(&fixedSource{cfg: base, priority: 10, name: "base"})
	l.AddSource(&fixedSource{cfg: override, priority: 20, name: "override"})

	got, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "energy", got.Mapper.OptimizationMetric)
}

func TestLoader_LowerPriorityAddedLastStillLoses(t *testing.T) {
	base := minimalValidConfig()
	base.Mapper.OptimizationMetric = "delay"

	override := minimalValidConfig()
	override.Mapper.OptimizationMetric = "energy"

	l := NewLoader()
	l.AddSource(&fixedSource{cfg: override, priority: 20, name: "override"})
	l.AddSource(&fixedSource{cfg: base, priority: 10, name: "base"})

	got, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "energy", got.Mapper.OptimizationMetric)
}
