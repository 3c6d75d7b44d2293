package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"mvsim/internal/model"

	"gopkg.in/yaml.v3"
)

//go:embed weights.yaml
var defaultWeights []byte

// Config is the on-disk runtime settings shape (YAML).
type Config struct {
	// Optional: load the energy carrier weights from a separate YAML.
	// Relative paths are resolved against the settings file directory.
	WeightsFile string           `yaml:"energy_carrier_weights_file"`
	Solver      SolverConfig     `yaml:"solver"`
	Thresholds  ThresholdsConfig `yaml:"thresholds"`
	Output      OutputConfig     `yaml:"output"`
	Store       StoreConfig      `yaml:"store"`
	Log         LogConfig        `yaml:"log"`
	API         APIConfig        `yaml:"api"`

	weights model.Weights
}

type SolverConfig struct {
	Tolerance float64 `yaml:"tolerance"`
	// MaxCells bounds the dense simplex tableau; larger problems fail
	// with a SolverError before any allocation.
	MaxCells int `yaml:"max_cells"`
	// MaxConcurrent bounds simplex runs in flight, including runs whose
	// caller has timed out.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// ThresholdsConfig holds the numeric tolerances of extraction and verification.
type ThresholdsConfig struct {
	Clamp            float64 `yaml:"clamp"`
	BusBalance       float64 `yaml:"bus_balance"`
	RenewableFactor  float64 `yaml:"renewable_factor"`
	ExcessGeneration float64 `yaml:"excess_generation"`
}

type OutputConfig struct {
	Dir           string `yaml:"dir"`
	FlowsCSV      bool   `yaml:"flows_csv"`
	CostMatrixCSV bool   `yaml:"cost_matrix_csv"`
}

type StoreConfig struct {
	Backend   string        `yaml:"backend"` // memory|redis
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type APIConfig struct {
	Port string `yaml:"port"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		Solver: SolverConfig{
			Tolerance:     1e-10,
			MaxCells:      1_000_000,
			MaxConcurrent: runtime.NumCPU(),
		},
		Thresholds: ThresholdsConfig{
			Clamp:            1e-6,
			BusBalance:       1e-4,
			RenewableFactor:  1e-6,
			ExcessGeneration: 0.9,
		},
		Output: OutputConfig{Dir: "outputs", FlowsCSV: true, CostMatrixCSV: true},
		Store:  StoreConfig{Backend: "memory", TTL: time.Hour},
		Log:    LogConfig{Level: "info"},
		API:    APIConfig{Port: "8080"},
	}
}

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads the file over the defaults and resolves the weights
// table, but does not validate the result. An empty path yields the defaults.
func LoadUnchecked(path string) (*Config, error) {
	base := Default()
	if path == "" {
		w, err := ParseWeights(defaultWeights)
		if err != nil {
			return nil, err
		}
		base.weights = w
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := Merge(*base, c)
	if err := out.loadWeights(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Config) loadWeights(dir string) error {
	if c.WeightsFile == "" {
		w, err := ParseWeights(defaultWeights)
		if err != nil {
			return err
		}
		c.weights = w
		return nil
	}
	p := c.WeightsFile
	if !filepath.IsAbs(p) {
		// Prefer the settings file directory, fall back to cwd.
		cand := filepath.Join(dir, p)
		if _, err := os.Stat(cand); err == nil {
			p = cand
		}
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return fmt.Errorf("energy carrier weights: %w", err)
	}
	w, err := ParseWeights(raw)
	if err != nil {
		return fmt.Errorf("energy carrier weights %s: %w", p, err)
	}
	c.weights = w
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MVSIM_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MVSIM_REDIS_ADDR"); v != "" {
		c.Store.Backend = "redis"
		c.Store.RedisAddr = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		c.API.Port = v
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Solver.Tolerance <= 0 {
		return errors.New("solver.tolerance must be > 0")
	}
	if c.Solver.MaxCells <= 0 {
		return errors.New("solver.max_cells must be > 0")
	}
	if c.Solver.MaxConcurrent <= 0 {
		return errors.New("solver.max_concurrent must be > 0")
	}
	t := c.Thresholds
	if t.Clamp < 0 || t.BusBalance < 0 || t.RenewableFactor < 0 {
		return errors.New("thresholds must be >= 0")
	}
	if t.ExcessGeneration <= 0 || t.ExcessGeneration > 1 {
		return errors.New("thresholds.excess_generation must be in (0, 1]")
	}
	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend %q: want memory or redis", c.Store.Backend)
	}
	if len(c.weights) == 0 {
		return errors.New("energy carrier weights table is empty")
	}
	if _, ok := c.weights[model.Electricity]; !ok {
		return fmt.Errorf("energy carrier weights must define %s", model.Electricity)
	}
	return nil
}

// Weights returns the energy carrier equivalence table.
func (c *Config) Weights() model.Weights {
	if c.weights == nil {
		w, err := ParseWeights(defaultWeights)
		if err != nil {
			panic(fmt.Sprintf("embedded weights: %v", err))
		}
		c.weights = w
	}
	return c.weights
}

// SetWeights replaces the table, e.g. with one supplied by a request.
func (c *Config) SetWeights(w model.Weights) { c.weights = w }

// DefaultWeights parses the embedded table.
func DefaultWeights() model.Weights {
	w, err := ParseWeights(defaultWeights)
	if err != nil {
		panic(fmt.Sprintf("embedded weights: %v", err))
	}
	return w
}

type weightsFile struct {
	Weights map[string]model.Weight `yaml:"energy_carrier_weights"`
}

func ParseWeights(raw []byte) (model.Weights, error) {
	var f weightsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	out := make(model.Weights, len(f.Weights))
	for k, w := range f.Weights {
		if w.Value < 0 {
			return nil, fmt.Errorf("weight of %s must be >= 0", k)
		}
		out[model.EnergyVector(k)] = w
	}
	return out, nil
}

// Merge overlays non-zero fields from override onto base.
func Merge(base, override Config) Config {
	out := base
	if override.WeightsFile != "" {
		out.WeightsFile = override.WeightsFile
	}
	if override.Solver.Tolerance != 0 {
		out.Solver.Tolerance = override.Solver.Tolerance
	}
	if override.Solver.MaxCells != 0 {
		out.Solver.MaxCells = override.Solver.MaxCells
	}
	if override.Solver.MaxConcurrent != 0 {
		out.Solver.MaxConcurrent = override.Solver.MaxConcurrent
	}
	if override.Thresholds.Clamp != 0 {
		out.Thresholds.Clamp = override.Thresholds.Clamp
	}
	if override.Thresholds.BusBalance != 0 {
		out.Thresholds.BusBalance = override.Thresholds.BusBalance
	}
	if override.Thresholds.RenewableFactor != 0 {
		out.Thresholds.RenewableFactor = override.Thresholds.RenewableFactor
	}
	if override.Thresholds.ExcessGeneration != 0 {
		out.Thresholds.ExcessGeneration = override.Thresholds.ExcessGeneration
	}
	if override.Output.Dir != "" {
		out.Output.Dir = override.Output.Dir
	}
	// Booleans cannot be told apart from unset; a file that mentions output
	// switches sets both.
	if override.Output.Dir != "" || override.Output.FlowsCSV || override.Output.CostMatrixCSV {
		out.Output.FlowsCSV = override.Output.FlowsCSV
		out.Output.CostMatrixCSV = override.Output.CostMatrixCSV
	}
	if override.Store.Backend != "" {
		out.Store.Backend = override.Store.Backend
	}
	if override.Store.RedisAddr != "" {
		out.Store.RedisAddr = override.Store.RedisAddr
	}
	if override.Store.TTL != 0 {
		out.Store.TTL = override.Store.TTL
	}
	if override.Log.Level != "" {
		out.Log.Level = override.Log.Level
	}
	if override.API.Port != "" {
		out.API.Port = override.API.Port
	}
	return out
}
