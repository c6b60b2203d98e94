package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/maeri-project/squareloop/internal/config"
	"github.com/maeri-project/squareloop/internal/logger"
	"github.com/maeri-project/squareloop/internal/mapper"
	"github.com/maeri-project/squareloop/internal/mapspace"
	"github.com/maeri-project/squareloop/internal/topology"
	"github.com/maeri-project/squareloop/pkg/resultio"
)

var (
	configPath string
	outDir     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load a configuration and search for the best (mapping, layout) pair",
	RunE:  runSearch,
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the configuration file (required)")
	runCmd.Flags().StringVarP(&outDir, "out", "o", "", "directory to write result artifacts into (stdout if empty)")
	runCmd.MarkFlagRequired("config")
}

// runSearch wires C1-C10 together: load+validate config, build shape and
// architecture, construct the map-space, spawn the mapper, and emit the
// four artifacts of spec.md section 6. Exit code: 0 on success or "no
// valid mappings found"; non-zero when loading the configuration, building
// the workload, architecture or map-space, or writing an artifact fails.
// Capacity and block-size failures met during the search reject that
// candidate and do not change the exit code.
func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	shp, err := config.BuildShape(cfg.Problem)
	if err != nil {
		return fmt.Errorf("workload error: %w", err)
	}
	arc, err := config.BuildArchitecture(cfg.Architecture)
	if err != nil {
		return fmt.Errorf("architecture error: %w", err)
	}
	crypto := config.BuildCrypto(cfg.Crypto)

	mc := cfg.Mapspace
	if mc == nil {
		mc = cfg.MapspaceConstraints
	}
	cons, err := config.BuildConstraints(mc, shp, arc)
	if err != nil {
		return fmt.Errorf("map-space constraint error: %w", err)
	}

	ms, err := mapspace.New(shp, arc, cons)
	if err != nil {
		return fmt.Errorf("map-space construction error: %w", err)
	}

	opts := mapper.Options{
		NumThreads:                     cfg.Mapper.NumThreads,
		Metric:                         topology.Metric(cfg.Mapper.OptimizationMetric),
		SearchSize:                     uint64(cfg.Mapper.SearchSize),
		Timeout:                        uint64(cfg.Mapper.Timeout),
		VictoryCondition:               uint64(cfg.Mapper.VictoryCondition),
		SyncInterval:                   uint64(cfg.Mapper.SyncInterval),
		LogInterval:                    cfg.Mapper.LogInterval,
		MaxTemporalLoopsInAMapping:     cfg.Mapper.MaxTemporalLoopsInAMapping,
		LiveStatus:                     cfg.Mapper.LiveStatus,
		LogStats:                       cfg.Mapper.LogStats,
		PenalizeConsecutiveBypassFails: cfg.Mapper.PenalizeConsecutiveBypassFails,
		AuthPhasePatience:              cfg.Mapper.AuthPhasePatience,
		AuthPhaseEpsilon:               cfg.Mapper.AuthPhaseEpsilon,
	}

	m := mapper.New(shp, arc, crypto, opts)
	best, diag := m.Run(ms)

	if !best.Result.Valid {
		logger.Info("no valid mappings found within criteria")
		printNoValidMappingsHelp(diag)
		return nil
	}

	dimNames := make([]string, shp.NumDims())
	for _, d := range shp.Dimensions {
		dimNames[d.ID] = d.Name
	}

	artifacts := resultio.Build(best.Result, best.Mapping, best.Layouts, dimNames, time.Now())

	fmt.Println(artifacts.Summary)
	if cfg.Mapper.Diagnostics {
		for _, s := range diag.Summary() {
			fmt.Printf("  %s@level%d: count=%d reason=%q sample=%q\n", s.Class, s.Level, s.Count, s.Reason, s.Sample)
		}
	}

	if outDir == "" {
		fmt.Println(artifacts.PrettyMap)
		return nil
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("cannot create output directory: %w", err)
	}
	record, err := resultio.MarshalRecord(artifacts.Record)
	if err != nil {
		return fmt.Errorf("cannot serialize result record: %w", err)
	}
	writes := map[string]string{
		"mapping.txt":  artifacts.PrettyMap,
		"mapping.yaml": artifacts.ConfigYAML,
		"record.yaml":  record,
		"layout.yaml":  artifacts.LayoutYAML,
	}
	for name, content := range writes {
		if err := os.WriteFile(outDir+"/"+name, []byte(content), 0o644); err != nil {
			return fmt.Errorf("cannot write %s: %w", name, err)
		}
	}
	return nil
}

func printNoValidMappingsHelp(diag *mapper.Diagnostics) {
	fmt.Println("troubleshooting:")
	fmt.Println("  1. the search terminated without finding a single valid mapping")
	fmt.Println("  2. consider relaxing mapspace constraints (max_spatial_fanout, fixed_bypass)")
	fmt.Println("  3. consider increasing timeout, search_size, or victory_condition")
	fmt.Println("  4. enable mapper.diagnostics to see the most common rejection reasons")
	for _, s := range diag.Summary() {
		fmt.Printf("  %s@level%d: count=%d reason=%q\n", s.Class, s.Level, s.Count, s.Reason)
	}
}
