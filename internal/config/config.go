// Package config loads and validates the cluster configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/kubeboot/kubeboot/internal/executor"
	"github.com/kubeboot/kubeboot/internal/inventory"
	"github.com/kubeboot/kubeboot/internal/stage"
)

// DefaultFile is the configuration file looked up when none is given.
const DefaultFile = "kubeboot.yaml"

// Config is the full cluster configuration.
type Config struct {
	ClusterName string `mapstructure:"cluster_name" yaml:"cluster_name"`

	Versions VersionsConfig   `mapstructure:"versions" yaml:"versions"`
	SSH      SSHConfig        `mapstructure:"ssh" yaml:"ssh"`
	Run      RunConfig        `mapstructure:"run" yaml:"run"`
	Nodes    []inventory.Node `mapstructure:"nodes" yaml:"nodes"`

	// Commands overrides the payload for any stage by name. Overridden
	// payloads are opaque to the orchestration core and must stay
	// idempotent.
	Commands map[string]CommandConfig `mapstructure:"commands" yaml:"commands,omitempty"`
}

// VersionsConfig carries the software versions handed to the payload catalog.
type VersionsConfig struct {
	Kubernetes string `mapstructure:"kubernetes" yaml:"kubernetes"` // control-plane version (e.g. v1.31.2)
	Mesh       string `mapstructure:"mesh" yaml:"mesh"`             // service mesh version
	CD         string `mapstructure:"cd" yaml:"cd"`                 // CD controller version
}

// SSHConfig holds connection defaults applied to nodes that do not set
// their own.
type SSHConfig struct {
	User    string `mapstructure:"user" yaml:"user"`
	KeyPath string `mapstructure:"key" yaml:"key"`
}

// RunConfig tunes orchestration.
type RunConfig struct {
	Concurrency    int    `mapstructure:"concurrency" yaml:"concurrency,omitempty"`
	RetryAttempts  int    `mapstructure:"retry_attempts" yaml:"retry_attempts,omitempty"`
	AttemptTimeout string `mapstructure:"attempt_timeout" yaml:"attempt_timeout,omitempty"`
	StateFile      string `mapstructure:"state_file" yaml:"state_file,omitempty"`
}

// CommandConfig is one stage payload override.
type CommandConfig struct {
	Argv      []string `mapstructure:"argv" yaml:"argv"`
	Stdin     string   `mapstructure:"stdin" yaml:"stdin,omitempty"`
	Sensitive bool     `mapstructure:"sensitive" yaml:"sensitive,omitempty"`
}

// LoadFile reads and validates the configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	var cfg Config
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Run.RetryAttempts == 0 {
		c.Run.RetryAttempts = 3
	}
	if c.Run.AttemptTimeout == "" {
		c.Run.AttemptTimeout = "10m"
	}
	if c.Run.StateFile == "" {
		c.Run.StateFile = "kubeboot-state.json"
	}
}

func (c *Config) validate() error {
	var errs []string

	if c.ClusterName == "" {
		errs = append(errs, "cluster_name is required")
	}
	if c.Versions.Kubernetes == "" {
		errs = append(errs, "versions.kubernetes is required")
	}
	if c.Versions.Mesh == "" {
		errs = append(errs, "versions.mesh is required")
	}
	if c.Versions.CD == "" {
		errs = append(errs, "versions.cd is required")
	}
	if c.Run.Concurrency < 0 {
		errs = append(errs, "run.concurrency must not be negative")
	}
	if c.Run.RetryAttempts < 1 {
		errs = append(errs, "run.retry_attempts must be at least 1")
	}
	if _, err := time.ParseDuration(c.Run.AttemptTimeout); err != nil {
		errs = append(errs, fmt.Sprintf("run.attempt_timeout: %v", err))
	}
	for name, cc := range c.Commands {
		if len(cc.Argv) == 0 {
			errs = append(errs, fmt.Sprintf("commands.%s: argv must not be empty", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(errs, "\n  "))
	}

	// Inventory rules (exactly one primary, unique addresses) are
	// enforced by the inventory package.
	if _, err := c.Inventory(); err != nil {
		return err
	}
	return nil
}

// Inventory builds the validated node inventory.
func (c *Config) Inventory() (*inventory.Inventory, error) {
	return inventory.New(c.Nodes)
}

// StageVersions returns the versions in the payload catalog's shape.
func (c *Config) StageVersions() stage.Versions {
	return stage.Versions{
		Kubernetes: c.Versions.Kubernetes,
		Mesh:       c.Versions.Mesh,
		CD:         c.Versions.CD,
	}
}

// Overrides returns the configured payload overrides as executor commands.
func (c *Config) Overrides() map[string]executor.Command {
	if len(c.Commands) == 0 {
		return nil
	}
	out := make(map[string]executor.Command, len(c.Commands))
	for name, cc := range c.Commands {
		out[name] = executor.Command{Argv: cc.Argv, Stdin: cc.Stdin, Sensitive: cc.Sensitive}
	}
	return out
}

// AttemptTimeout returns the parsed per-attempt timeout. Validation
// guarantees the duration parses.
func (c *Config) AttemptTimeout() time.Duration {
	d, err := time.ParseDuration(c.Run.AttemptTimeout)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}
