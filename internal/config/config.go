// Package config holds the configuration tree of spec.md section 6: the
// YAML-sourced description of architecture, workload, map-space
// constraints, mapper search parameters, and the optional sparse/crypto/
// layout/ERT overlays.
package config

// ArchLevel is one level of the architecture tree (spec.md C2).
type ArchLevel struct {
	Name           string             `yaml:"name"`
	Arithmetic     bool               `yaml:"arithmetic"`
	Capacity       int                `yaml:"capacity"`
	BlockSize      int                `yaml:"block_size"`
	ClusterSize    int                `yaml:"cluster_size"`
	Instances      int                `yaml:"instances"`
	Technology     string             `yaml:"technology"`
	ReadBandwidth  float64            `yaml:"read_bandwidth"`
	WriteBandwidth float64            `yaml:"write_bandwidth"`
	SharedBandwidth float64           `yaml:"shared_bandwidth"`
	NumReadPorts   int                `yaml:"num_read_ports"`
	NumWritePorts  int                `yaml:"num_write_ports"`
	NumBanks       int                `yaml:"num_banks"`
	EnergyPerOp    map[string]float64 `yaml:"energy_per_op"`
	LeakEnergyPerCycle float64        `yaml:"leak_energy_per_cycle"`
}

// ArchConfig is the top-level `architecture`/`arch` key. Nodes is the
// legacy sub-key that must trigger a fatal config error if present
// (spec.md section 6).
type ArchConfig struct {
	Levels []ArchLevel            `yaml:"levels"`
	Nodes  []map[string]interface{} `yaml:"nodes,omitempty"`
}

// CoefficientSpec names a coefficient used in a rank projection.
type CoefficientSpec struct {
	Name    string `yaml:"name"`
	Default int    `yaml:"default"`
}

// RankSpec is one rank of a data space's projection.
type RankSpec struct {
	Name         string   `yaml:"name"`
	Dimensions   []string `yaml:"dimensions"`
	Coefficients []string `yaml:"coefficients"`
}

// DataSpaceSpec is one data space of the workload.
type DataSpaceSpec struct {
	Name      string     `yaml:"name"`
	ReadWrite bool       `yaml:"read_write"`
	Ranks     []RankSpec `yaml:"ranks"`
}

// DimensionSpec is one factorized workload dimension.
type DimensionSpec struct {
	Name  string `yaml:"name"`
	Bound int    `yaml:"bound"`
}

// ProblemConfig is the top-level `problem` key (spec.md C1).
type ProblemConfig struct {
	Dimensions   []DimensionSpec   `yaml:"dimensions"`
	Coefficients []CoefficientSpec `yaml:"coefficients"`
	DataSpaces   []DataSpaceSpec   `yaml:"data_spaces"`
}

// MapspaceConfig is the top-level `mapspace` key (constraints only;
// `mapspace_constraints` is its legacy alias and the two are mutually
// exclusive, spec.md section 6).
type MapspaceConfig struct {
	MaxSpatialFanout map[string]int `yaml:"max_spatial_fanout"`
	FixedBypass      map[string]int `yaml:"fixed_bypass"`
}

// MapperConfig is the top-level `mapper` key (spec.md section 6).
type MapperConfig struct {
	NumThreads                  int      `yaml:"num_threads"`
	OptimizationMetric           string   `yaml:"optimization_metric"`
	SearchSize                   int      `yaml:"search_size"`
	Timeout                      int      `yaml:"timeout"`
	VictoryCondition              int      `yaml:"victory_condition"`
	SyncInterval                  int      `yaml:"sync_interval"`
	LogInterval                   int      `yaml:"log_interval"`
	MaxTemporalLoopsInAMapping    int      `yaml:"max_temporal_loops_in_a_mapping"`
	LiveStatus                    bool     `yaml:"live_status"`
	Diagnostics                   bool     `yaml:"diagnostics"`
	LogStats                      bool     `yaml:"log_stats"`
	PenalizeConsecutiveBypassFails bool    `yaml:"penalize_consecutive_bypass_fails"`

	// AuthPhasePatience and AuthPhaseEpsilon promote spec.md section 9's
	// magic numbers (LESS_IMPROVEMENT_COUNTER_THRESHOLD, 0.1 pJ/compute
	// cutoff) to configuration, per DESIGN.md Open Question 3.
	AuthPhasePatience int     `yaml:"auth_phase_patience"`
	AuthPhaseEpsilon  float64 `yaml:"auth_phase_epsilon"`
}

// CryptoConfig is the optional top-level `crypto` key (spec.md section 6).
type CryptoConfig struct {
	Datapath               int     `yaml:"datapath"`
	AuthCyclePerDatapath   float64 `yaml:"auth_cycle_per_datapath"`
	AuthEnergyPerDatapath  float64 `yaml:"auth_energy_per_datapath"`
	EncCyclePerDatapath    float64 `yaml:"enc_cycle_per_datapath"`
	EncEnergyPerDatapath   float64 `yaml:"enc_energy_per_datapath"`
	AuthAdditionalCyclePerBlock  float64 `yaml:"auth_additional_cycle_per_block"`
	AuthAdditionalEnergyPerBlock float64 `yaml:"auth_additional_energy_per_block"`
	AuthEncParallel        bool    `yaml:"auth_enc_parallel"`
	HashSize               int     `yaml:"hash_size"`
	XorCycle               float64 `yaml:"xor_cycle"`
	XorEnergyPerDatapath   float64 `yaml:"xor_energy_per_datapath"`
	Name                   string  `yaml:"name"`
	Family                 string  `yaml:"family"`
	EnginesShared          bool    `yaml:"engines_shared"`
	NumEngines             int     `yaml:"num_engines"`
}

// LayoutEntry is one user-supplied layout override of spec.md section 6.
type LayoutEntry struct {
	Target        string            `yaml:"target"`
	Type          string            `yaml:"type"` // interline | intraline
	Factors       map[string]int    `yaml:"factors"`
	Permutation   string            `yaml:"permutation"`
	NumReadPorts  int               `yaml:"num_read_ports"`
	NumWritePorts int               `yaml:"num_write_ports"`
}

// Config is the full configuration tree. ERT/ART and sparse_optimizations
// are carried as opaque maps: this module's scope does not implement the
// compressed-tile density model or ERT energy import in depth (spec.md C2
// "external collaborator"), but a well-formed config must still parse and
// round-trip them without data loss.
type Config struct {
	Architecture        ArchConfig             `yaml:"architecture"`
	Problem              ProblemConfig          `yaml:"problem"`
	Mapspace              *MapspaceConfig       `yaml:"mapspace,omitempty"`
	MapspaceConstraints   *MapspaceConfig       `yaml:"mapspace_constraints,omitempty"`
	Mapper                 MapperConfig          `yaml:"mapper"`
	SparseOptimizations    map[string]interface{} `yaml:"sparse_optimizations,omitempty"`
	ERT                    map[string]interface{} `yaml:"ERT,omitempty"`
	ART                    map[string]interface{} `yaml:"ART,omitempty"`
	Crypto                 *CryptoConfig         `yaml:"crypto,omitempty"`
	Layout                 []LayoutEntry         `yaml:"layout,omitempty"`
}

// Default returns the baseline configuration applied before any file is
// merged in, mirroring the teacher's getDefaultConfig pattern.
func Default() *Config {
	return &Config{
		Mapper: MapperConfig{
			NumThreads:         0, // 0 means "hardware concurrency"
			OptimizationMetric: "edp",
			SyncInterval:       1000,
			LogInterval:        1,
			AuthPhasePatience:  10,
			AuthPhaseEpsilon:   0.1,
		},
	}
}
