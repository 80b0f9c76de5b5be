// Package config implements the runtime's typed configuration surface,
// following the teacher's JSON-file + environment-override + validation
// pattern (pkg/common/config/config.go): a single Config struct composed of
// per-subsystem structs, defaults, presets, and an actionable Validate.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/multiformats/go-multiaddr"
)

// AlgorithmConfig covers spec.md 6's "Configuration (algorithm)" keys.
type AlgorithmConfig struct {
	MaxIteration                           uint64        `json:"maxIteration"`
	MinIteration                           uint64        `json:"minIteration"`
	MaxStallIteration                      uint64        `json:"maxStallIteration"`
	TerminationFile                        string        `json:"terminationFile"`
	TouchedTerminationActive               bool          `json:"touchedTerminationActive"`
	IndividualUpdateStallCounterThreshold  uint64        `json:"individualUpdateStallCounterThreshold"`
	ReportIteration                        uint64        `json:"reportIteration"`
	NRecordBestIndividuals                 int           `json:"nRecordBestIndividuals"`
	CPInterval                             int           `json:"cpInterval"`
	CPDirectory                            string        `json:"cpDirectory"`
	CPBaseName                             string        `json:"cpBaseName"`
	CPOverwrite                            bool          `json:"cpOverwrite"`
	CPSerMode                              int           `json:"cpSerMode"`
	Threshold                              float64       `json:"threshold"`
	ThresholdActive                        bool          `json:"thresholdActive"`
	MaxDuration                            time.Duration `json:"maxDuration"`
	MinDuration                            time.Duration `json:"minDuration"`
	EmitTerminationReason                  bool          `json:"emitTerminationReason"`
	EvalPolicy                             int           `json:"evalPolicy"`
	Steepness                              float64       `json:"steepness"`
	Barrier                                float64       `json:"barrier"`
	MaxUnsuccessfulAdaptions               uint          `json:"maxUnsuccessfulAdaptions"`
	Maximize                               bool          `json:"maximize"`
}

// EAConfig covers spec.md 6's "Configuration (EA)" additions.
type EAConfig struct {
	SortingMethod        int `json:"sortingMethod"`
	Size                 int `json:"size"`
	NParents             int `json:"nParents"`
	RecombinationMethod  int `json:"recombinationMethod"`
	GrowthRate           int `json:"growthRate"`
	MaxPopulationSize    int `json:"maxPopulationSize"`
	NAdaptionThreads     int `json:"nAdaptionThreads"`
}

// SwarmConfig covers spec.md 6's "Configuration (Swarm)" additions.
type SwarmConfig struct {
	NNeighborhoods          int     `json:"nNeighborhoods"`
	NNeighborhoodMembers    int     `json:"nNeighborhoodMembers"`
	CPersonal               float64 `json:"cPersonal"`
	CNeighborhood           float64 `json:"cNeighborhood"`
	CGlobal                 float64 `json:"cGlobal"`
	CVelocity               float64 `json:"cVelocity"`
	VelocityRangePercentage float64 `json:"velocityRangePercentage"`
	UpdateRule              int     `json:"updateRule"`
	RandomFillUp            bool    `json:"randomFillUp"`
	RepulsionThreshold      uint64  `json:"repulsionThreshold"`
}

// BrokerConfig covers spec.md 6's "Configuration (Broker consumer)" additions.
type BrokerConfig struct {
	WSAddr                   string `json:"wsAddr"` // plain host:port or a multiaddr
	WSSerializationMode      int    `json:"wsSerializationMode"`
	WSMaxStalls              int    `json:"wsMaxStalls"`
	WSMaxConnectionAttempts  int    `json:"wsMaxConnectionAttempts"`
	WSNListenerThreads       int    `json:"wsNListenerThreads"`
}

// Config is the full runtime configuration.
type Config struct {
	Algorithm AlgorithmConfig `json:"algorithm"`
	EA        EAConfig        `json:"ea"`
	Swarm     SwarmConfig     `json:"swarm"`
	Broker    BrokerConfig    `json:"broker"`
}

// DefaultConfig returns the baseline configuration: thread-pool execution,
// minimization, simple evaluation policy.
func DefaultConfig() *Config {
	return &Config{
		Algorithm: AlgorithmConfig{
			MaxIteration:            1000,
			MinIteration:            0,
			MaxStallIteration:       0,
			ReportIteration:         1,
			NRecordBestIndividuals:  10,
			CPInterval:              0,
			CPDirectory:             "./checkpoints",
			CPBaseName:              "checkpoint.dat",
			CPOverwrite:             true,
			CPSerMode:               0,
			MaxDuration:             0,
			MinDuration:             0,
			EmitTerminationReason:   true,
			EvalPolicy:              0,
			Steepness:               1,
			Barrier:                 10,
			MaxUnsuccessfulAdaptions: 0,
			Maximize:                false,
		},
		EA: EAConfig{
			SortingMethod:       0,
			Size:                100,
			NParents:            10,
			RecombinationMethod: 0,
			GrowthRate:          0,
			MaxPopulationSize:   0,
			NAdaptionThreads:    4,
		},
		Swarm: SwarmConfig{
			NNeighborhoods:          5,
			NNeighborhoodMembers:    20,
			CPersonal:               1.49,
			CNeighborhood:           1.49,
			CGlobal:                 0,
			CVelocity:               0.72,
			VelocityRangePercentage: 0.5,
			UpdateRule:              0,
			RandomFillUp:            true,
			RepulsionThreshold:      0,
		},
		Broker: BrokerConfig{
			WSAddr:                  ":9090",
			WSSerializationMode:     0,
			WSMaxStalls:             0,
			WSMaxConnectionAttempts: 0,
			WSNListenerThreads:      4,
		},
	}
}

// QuickStartConfig returns a minimal preset for local debugging: small
// population, no periodic checkpointing, tight iteration cap. It does not
// select an executor.
func QuickStartConfig() *Config {
	cfg := DefaultConfig()
	cfg.Algorithm.MaxIteration = 50
	cfg.Algorithm.CPInterval = 0
	cfg.EA.Size = 16
	cfg.EA.NParents = 4
	return cfg
}

// DistributedPresetConfig returns a preset for runs with TCP workers: a
// larger population, a checkpoint every 10 iterations and 16 listener
// threads. It does not select an executor.
func DistributedPresetConfig() *Config {
	cfg := DefaultConfig()
	cfg.Algorithm.CPInterval = 10
	cfg.EA.Size = 256
	cfg.EA.NParents = 32
	cfg.Broker.WSNListenerThreads = 16
	return cfg
}

// GetPresetConfig resolves a named preset, defaulting to DefaultConfig for
// an unrecognized name.
func GetPresetConfig(preset string) *Config {
	switch preset {
	case "quickstart":
		return QuickStartConfig()
	case "distributed":
		return DistributedPresetConfig()
	default:
		return DefaultConfig()
	}
}

// LoadConfig merges defaults, an optional JSON file, and environment
// overrides, then validates. A missing configPath is not an error (the
// defaults stand), matching the teacher's loadFromFile behavior.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, err
		}
	}

	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides reads EVOGENEVA_* environment variables,
// mirroring the teacher's NOISEFS_* convention.
func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("EVOGENEVA_MAX_ITERATION"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Algorithm.MaxIteration = n
		}
	}
	if v := os.Getenv("EVOGENEVA_MAXIMIZE"); v != "" {
		cfg.Algorithm.Maximize = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("EVOGENEVA_CP_DIRECTORY"); v != "" {
		cfg.Algorithm.CPDirectory = v
	}
	if v := os.Getenv("EVOGENEVA_BROKER_ADDR"); v != "" {
		cfg.Broker.WSAddr = v
	}
	if v := os.Getenv("EVOGENEVA_EA_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EA.Size = n
		}
	}
}

// Validate checks cross-field invariants and returns actionable,
// preset-suggesting error messages, matching the teacher's config
// validation style.
func (c *Config) Validate() error {
	if c.Algorithm.MaxIteration == 0 && c.Algorithm.MaxStallIteration == 0 &&
		!c.Algorithm.ThresholdActive && !c.Algorithm.TouchedTerminationActive {
		return fmt.Errorf("config: no halt criterion is enabled (maxIteration, maxStallIteration, threshold, or terminationFile); " +
			"this run would never stop — consider the \"quickstart\" preset for local debugging")
	}
	if c.EA.NParents <= 0 {
		return fmt.Errorf("config: ea.nParents must be positive, got %d", c.EA.NParents)
	}
	if c.EA.Size < c.EA.NParents {
		return fmt.Errorf("config: ea.size (%d) must be >= ea.nParents (%d)", c.EA.Size, c.EA.NParents)
	}
	if c.Algorithm.EvalPolicy < 0 || c.Algorithm.EvalPolicy > 3 {
		return fmt.Errorf("config: algorithm.evalPolicy must be 0..3, got %d", c.Algorithm.EvalPolicy)
	}
	if c.Algorithm.EvalPolicy == 2 && c.Algorithm.Barrier <= 0 {
		return fmt.Errorf("config: sigmoid policy (evalPolicy=2) requires a positive barrier")
	}
	if c.Swarm.NNeighborhoods > 0 && c.Swarm.NNeighborhoodMembers <= 0 {
		return fmt.Errorf("config: swarm.nNeighborhoodMembers must be positive when neighborhoods are configured")
	}
	if c.Broker.WSAddr != "" {
		if _, err := ResolveAddr(c.Broker.WSAddr); err != nil {
			return fmt.Errorf("config: broker.wsAddr %q is neither a valid multiaddr nor host:port: %w", c.Broker.WSAddr, err)
		}
	}
	return nil
}

// ResolveAddr parses addr as a multiaddr (e.g. "/ip4/10.0.0.1/tcp/9090")
// and falls back to plain "host:port" parsing when it is not one, returning
// the resolved "host:port" string either way.
func ResolveAddr(addr string) (string, error) {
	if ma, err := multiaddr.NewMultiaddr(addr); err == nil {
		host, hostErr := ma.ValueForProtocol(multiaddr.P_IP4)
		if hostErr != nil {
			host, hostErr = ma.ValueForProtocol(multiaddr.P_IP6)
		}
		port, portErr := ma.ValueForProtocol(multiaddr.P_TCP)
		if hostErr == nil && portErr == nil {
			return fmt.Sprintf("%s:%s", host, port), nil
		}
	}
	if strings.Contains(addr, ":") || addr == "" || strings.HasPrefix(addr, ":") {
		return addr, nil
	}
	return "", fmt.Errorf("not a recognizable address")
}

// SaveToFile writes cfg as indented JSON to path.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
