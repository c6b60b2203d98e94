package config

import (
	"fmt"

	apperrors "github.com/maeri-project/squareloop/pkg/errors"
)

// Validate checks the conflicting-key and required-key rules of spec.md
// section 6: the legacy `nodes` sub-key under architecture is fatal, and
// `mapspace`/`mapspace_constraints` may not both be present.
func Validate(cfg *Config) error {
	if len(cfg.Architecture.Nodes) > 0 {
		return apperrors.New(apperrors.CodeConfig, "architecture.nodes is a legacy key and is no longer supported", nil)
	}
	if cfg.Mapspace != nil && cfg.MapspaceConstraints != nil {
		return apperrors.New(apperrors.CodeConfig, "mapspace and mapspace_constraints are mutually exclusive", nil)
	}
	if len(cfg.Architecture.Levels) == 0 {
		return apperrors.New(apperrors.CodeConfig, "architecture.levels is required", nil)
	}
	if len(cfg.Problem.Dimensions) == 0 {
		return apperrors.New(apperrors.CodeConfig, "problem.dimensions is required", nil)
	}
	switch Metric(cfg.Mapper.OptimizationMetric) {
	case MetricDelay, MetricEnergy, MetricEDP, MetricLastLevelAccesses, MetricOrderedAccesses, "":
	default:
		return apperrors.New(apperrors.CodeConfig, fmt.Sprintf("mapper.optimization_metric %q is not recognized", cfg.Mapper.OptimizationMetric), nil)
	}
	return nil
}

// Metric mirrors topology.Metric's string values without importing
// topology (config must not depend on the domain packages it configures).
type Metric string

const (
	MetricDelay             Metric = "delay"
	MetricEnergy            Metric = "energy"
	MetricEDP               Metric = "edp"
	MetricLastLevelAccesses Metric = "last_level_accesses"
	MetricOrderedAccesses   Metric = "ordered_accesses"
)
