package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	apperrors "github.com/maeri-project/squareloop/pkg/errors"
)

// Source is one configuration input, ordered by priority (teacher pattern:
// arx-os-arxos/internal/config/loader.go's ConfigSource).
type Source interface {
	Load() (*Config, error)
	Priority() int
	Name() string
}

// FileSource loads a YAML config file.
type FileSource struct {
	Path     string
	priority int
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path, priority: 100}
}

func (f *FileSource) Priority() int { return f.priority }
func (f *FileSource) Name() string  { return fmt.Sprintf("file:%s", f.Path) }

func (f *FileSource) Load() (*Config, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeConfig, fmt.Sprintf("reading config file %s", f.Path), err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, apperrors.New(apperrors.CodeConfig, fmt.Sprintf("parsing YAML config file %s", f.Path), err)
	}
	return &cfg, nil
}

// Loader merges a default configuration with any number of sources in
// ascending priority order (highest applied last, so it wins), then
// validates the result.
type Loader struct {
	sources []Source
}

func NewLoader() *Loader { return &Loader{} }

func (l *Loader) AddSource(s Source) { l.sources = append(l.sources, s) }

// Load merges Default() with every added source, highest priority last so
// it wins, then validates.
func (l *Loader) Load() (*Config, error) {
	sorted := append([]Source(nil), l.sources...)
	for i := 0; i < len(sorted)-1; i++ {
		for j := 0; j < len(sorted)-i-1; j++ {
			if sorted[j].Priority() > sorted[j+1].Priority() {
				sorted[j], sorted[j+1] = sorted[j+1], sorted[j]
			}
		}
	}

	cfg := Default()
	for _, src := range sorted {
		loaded, err := src.Load()
		if err != nil {
			return nil, err
		}
		cfg = merge(cfg, loaded)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile is a convenience wrapper for the common "defaults + one file"
// case used by cmd/mapper.
func LoadFile(path string) (*Config, error) {
	l := NewLoader()
	l.AddSource(NewFileSource(path))
	return l.Load()
}

func merge(base, override *Config) *Config {
	if override == nil {
		return base
	}
	merged := *base
	if len(override.Architecture.Levels) > 0 {
		merged.Architecture = override.Architecture
	}
	if len(override.Problem.Dimensions) > 0 {
		merged.Problem = override.Problem
	}
	if override.Mapspace != nil {
		merged.Mapspace = override.Mapspace
	}
	if override.MapspaceConstraints != nil {
		merged.MapspaceConstraints = override.MapspaceConstraints
	}
	if override.Mapper.OptimizationMetric != "" {
		merged.Mapper = override.Mapper
	}
	if override.SparseOptimizations != nil {
		merged.SparseOptimizations = override.SparseOptimizations
	}
	if override.ERT != nil {
		merged.ERT = override.ERT
	}
	if override.ART != nil {
		merged.ART = override.ART
	}
	if override.Crypto != nil {
		merged.Crypto = override.Crypto
	}
	if len(override.Layout) > 0 {
		merged.Layout = override.Layout
	}
	return &merged
}
