package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"abdkv/internal/results"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

const (
	// TransportMemory delivers envelopes through in-process mailboxes.
	TransportMemory = "memory"
	// TransportGRPC sends every envelope through a loopback gRPC server, even
	// between endpoints of the same process.
	TransportGRPC = "grpc"
)

// Config holds the benchmark configuration.
type Config struct {
	Replicas   int `yaml:"replicas"`   // N
	Faults     int `yaml:"faults"`     // f
	Operations int `yaml:"operations"` // M

	LogPath       string `yaml:"log_path"`
	ResultsPath   string `yaml:"results_path"`
	ResultsFormat string `yaml:"results_format"`

	Transport string `yaml:"transport"`
	// Listen is the gRPC listen address. All endpoints of a run are
	// registered on this one server.
	Listen string `yaml:"listen"`

	// Seed makes crash selection reproducible. Zero picks a random seed.
	Seed int64 `yaml:"seed"`
	// Deadline aborts the whole run after this long. Zero waits forever.
	Deadline time.Duration `yaml:"deadline"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Replicas:      3,
		Faults:        1,
		Operations:    3,
		LogPath:       "logs/operations.log",
		ResultsPath:   "results.csv",
		ResultsFormat: results.FormatCSV,
		Transport:     TransportMemory,
		Listen:        "127.0.0.1:0",
	}
}

// Validate checks N > 0, 0 <= f < N and M >= 0, plus the ambient settings.
func (c Config) Validate() error {
	if c.Replicas <= 0 {
		return fmt.Errorf("%w: replicas must be positive, got %d", ErrInvalid, c.Replicas)
	}
	if c.Faults < 0 || c.Faults >= c.Replicas {
		return fmt.Errorf("%w: faults must be in [0, %d), got %d", ErrInvalid, c.Replicas, c.Faults)
	}
	if c.Operations < 0 {
		return fmt.Errorf("%w: operations must not be negative, got %d", ErrInvalid, c.Operations)
	}
	if c.Deadline < 0 {
		return fmt.Errorf("%w: deadline must not be negative, got %s", ErrInvalid, c.Deadline)
	}
	switch strings.ToLower(c.ResultsFormat) {
	case "", results.FormatCSV, results.FormatSQLite, "sqlite3":
	default:
		return fmt.Errorf("%w: unknown results format %q", ErrInvalid, c.ResultsFormat)
	}
	switch c.Transport {
	case "", TransportMemory:
	case TransportGRPC:
		if c.Listen == "" {
			return fmt.Errorf("%w: grpc transport needs a listen address", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalid, c.Transport)
	}
	return nil
}

// Tolerable reports whether a majority of replicas stays live. A run that is
// not tolerable never finishes unless a deadline is set.
func (c Config) Tolerable() bool {
	return c.Faults < c.Replicas-c.Replicas/2
}

// Load reads a YAML file on top of Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
