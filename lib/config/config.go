// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/cloister-foundation/cloister/consensus"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for a Cloister runtime.
type Config struct {
	// Environment identifies the deployment type (development,
	// staging, production).
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Server configures the RPC server.
	Server ServerConfig `yaml:"server"`

	// Storage configures the untrusted local store.
	Storage StorageConfig `yaml:"storage"`

	// Consensus configures consensus verification.
	Consensus ConsensusConfig `yaml:"consensus"`

	// Identity configures the runtime's sealed identity.
	Identity IdentityConfig `yaml:"identity"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`

	// EnvironmentOverrides contains per-environment overrides,
	// applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per
// environment.
type ConfigOverrides struct {
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
	Server    *ServerConfig    `yaml:"server,omitempty"`
	Storage   *StorageConfig   `yaml:"storage,omitempty"`
	Consensus *ConsensusConfig `yaml:"consensus,omitempty"`
	Log       *LogConfig       `yaml:"log,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for Cloister data.
	Root string `yaml:"root"`

	// State is where runtime state (identity files, databases) is
	// stored.
	State string `yaml:"state"`

	// Run is where sockets are created.
	Run string `yaml:"run"`
}

// ServerConfig configures the RPC server.
type ServerConfig struct {
	// SocketPath is the Unix socket the runtime serves on.
	// Default: ${CLOISTER_ROOT}/run/runtime.sock
	SocketPath string `yaml:"socket_path"`
}

// StorageConfig configures the untrusted local store.
type StorageConfig struct {
	// Path is the SQLite database file. Empty selects an in-memory
	// store, which loses everything on restart.
	Path string `yaml:"path"`
}

// ConsensusMode selects how consensus claims are verified.
type ConsensusMode string

const (
	// TrustRootMode verifies headers against a pinned trust root.
	TrustRootMode ConsensusMode = "trust_root"
	// InsecureMode disables verification entirely. Development only.
	InsecureMode ConsensusMode = "insecure"
)

// ConsensusConfig configures consensus verification.
type ConsensusConfig struct {
	// Mode is "trust_root" or "insecure".
	Mode ConsensusMode `yaml:"mode"`

	// TrustRoot pins the verification anchor. Required in
	// trust_root mode.
	TrustRoot TrustRootConfig `yaml:"trust_root"`
}

// TrustRootConfig is the YAML form of a consensus trust root.
type TrustRootConfig struct {
	// Height is the block height of the pinned header.
	Height uint64 `yaml:"height"`
	// Hash is the hex-encoded 32-byte header hash.
	Hash string `yaml:"hash"`
	// PublicKey is the hex-encoded Ed25519 consensus key.
	PublicKey string `yaml:"public_key"`
}

// Parse converts the YAML form into a consensus.TrustRoot.
func (t TrustRootConfig) Parse() (consensus.TrustRoot, error) {
	var root consensus.TrustRoot
	root.Height = t.Height

	hash, err := hex.DecodeString(t.Hash)
	if err != nil {
		return root, fmt.Errorf("consensus.trust_root.hash: %w", err)
	}
	if len(hash) != len(root.Hash) {
		return root, fmt.Errorf("consensus.trust_root.hash is %d bytes, want %d", len(hash), len(root.Hash))
	}
	copy(root.Hash[:], hash)

	key, err := hex.DecodeString(t.PublicKey)
	if err != nil {
		return root, fmt.Errorf("consensus.trust_root.public_key: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return root, fmt.Errorf("consensus.trust_root.public_key is %d bytes, want %d", len(key), ed25519.PublicKeySize)
	}
	root.PublicKey = ed25519.PublicKey(key)

	return root, root.Validate()
}

// IdentityConfig configures the runtime's sealed identity.
type IdentityConfig struct {
	// Dir is the directory holding identity.sealed and identity.pub.
	// Default: ${CLOISTER_ROOT}/state/identity
	Dir string `yaml:"dir"`

	// SealingKeyFile is the path to the age private key that seals
	// the identity, or "-" to read it from stdin.
	SealingKeyFile string `yaml:"sealing_key_file"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is "debug", "info", "warn", or "error". Default: info.
	Level string `yaml:"level"`

	// Format is "text" or "json". Default: json.
	Format string `yaml:"format"`
}

// NewLogger builds the process logger described by the config,
// writing to stderr. Unknown levels fall back to info.
func (l LogConfig) NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch l.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if l.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file. They exist primarily to
// ensure all fields have sensible zero-values, not as a fallback -
// the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "cloister")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:  defaultRoot,
			State: filepath.Join(defaultRoot, "state"),
			Run:   filepath.Join(defaultRoot, "run"),
		},
		Server: ServerConfig{
			SocketPath: filepath.Join(defaultRoot, "run", "runtime.sock"),
		},
		Storage: StorageConfig{
			Path: filepath.Join(defaultRoot, "state", "untrusted.db"),
		},
		Consensus: ConsensusConfig{
			Mode: InsecureMode,
		},
		Identity: IdentityConfig{
			Dir: filepath.Join(defaultRoot, "state", "identity"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from the CLOISTER_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit
// path. There are no fallbacks or defaults - if CLOISTER_CONFIG is
// not set, this fails. This ensures deterministic, auditable
// configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("CLOISTER_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CLOISTER_CONFIG environment variable not set; " +
			"set it to the path of your cloister.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment
// variables do not override config values. The only expansion
// performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific
// overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.State != "" {
			c.Paths.State = overrides.Paths.State
		}
		if overrides.Paths.Run != "" {
			c.Paths.Run = overrides.Paths.Run
		}
	}

	if overrides.Server != nil {
		if overrides.Server.SocketPath != "" {
			c.Server.SocketPath = overrides.Server.SocketPath
		}
	}

	if overrides.Storage != nil {
		if overrides.Storage.Path != "" {
			c.Storage.Path = overrides.Storage.Path
		}
	}

	if overrides.Consensus != nil {
		if overrides.Consensus.Mode != "" {
			c.Consensus.Mode = overrides.Consensus.Mode
		}
		if overrides.Consensus.TrustRoot.Hash != "" {
			c.Consensus.TrustRoot = overrides.Consensus.TrustRoot
		}
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"CLOISTER_ROOT": c.Paths.Root,
		"HOME":          os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["CLOISTER_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Run = expandVars(c.Paths.Run, vars)
	c.Server.SocketPath = expandVars(c.Server.SocketPath, vars)
	c.Storage.Path = expandVars(c.Storage.Path, vars)
	c.Identity.Dir = expandVars(c.Identity.Dir, vars)
	c.Identity.SealingKeyFile = expandVars(c.Identity.SealingKeyFile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	if c.Server.SocketPath == "" {
		errs = append(errs, fmt.Errorf("server.socket_path is required"))
	}

	switch c.Consensus.Mode {
	case TrustRootMode:
		if _, err := c.Consensus.TrustRoot.Parse(); err != nil {
			errs = append(errs, err)
		}
	case InsecureMode:
		if c.Environment == Production {
			errs = append(errs, fmt.Errorf("consensus.mode insecure is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("consensus.mode must be %q or %q", TrustRootMode, InsecureMode))
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: debug, info, warn, error"))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.State,
		c.Paths.Run,
		c.Identity.Dir,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
