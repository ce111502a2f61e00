// Package config loads process-wide settings for whichever driver embeds
// the engine (CLI, MCP server): data directory, active project, storage
// backend selection, logging, and the default hybrid-search fusion weights.
// A plain struct is loaded from config.toml through BurntSushi/toml and
// layered into a viper instance so environment variables and future flag
// bindings take precedence over the file, which in turn takes precedence
// over the built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Config is the subset of process settings the engine's drivers need before
// a Store is opened.
type Config struct {
	DataDir string `mapstructure:"data_dir" toml:"data_dir"`
	Project string `mapstructure:"project" toml:"project"`
	Backend string `mapstructure:"backend" toml:"backend"`
	Log     string `mapstructure:"log" toml:"log"`

	// HybridFuzzyWeight + HybridFullTextWeight are the hybrid fusion
	// weights as loaded from config.toml. The search package does not read
	// them or any per-project Settings; it fuses 0.5/0.5 unless a query sets
	// its own weights through Builder.HybridWeights.
	HybridFuzzyWeight    float64 `mapstructure:"hybrid_fuzzy_weight" toml:"hybrid_fuzzy_weight"`
	HybridFullTextWeight float64 `mapstructure:"hybrid_fulltext_weight" toml:"hybrid_fulltext_weight"`
}

const (
	defaultBackend              = "sqlite"
	defaultHybridFuzzyWeight    = 0.5
	defaultHybridFullTextWeight = 0.5
	configFileName              = "config.toml"
)

// Default returns a Config with every field at its documented default,
// data directory resolved per the platform defaults.
func Default() *Config {
	return &Config{
		DataDir:              DefaultDataDir(),
		Backend:              defaultBackend,
		HybridFuzzyWeight:    defaultHybridFuzzyWeight,
		HybridFullTextWeight: defaultHybridFullTextWeight,
	}
}

// DefaultDataDir returns the platform-appropriate default data directory:
// Linux ~/.local/share/parsnip, macOS ~/Library/Application Support/parsnip,
// Windows %APPDATA%/parsnip. Falls back to "." if the home directory cannot
// be resolved.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "parsnip")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "parsnip")
	default:
		return filepath.Join(home, ".local", "share", "parsnip")
	}
}

// Load resolves a Config from, in ascending precedence: built-in defaults,
// <dataDir>/config.toml if present, then the PARSNIP_DATA_DIR/
// PARSNIP_PROJECT/PARSNIP_LOG environment variables. dataDir is the
// directory to look for config.toml in; pass "" to use DefaultDataDir().
func Load(dataDir string) (*Config, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	v := viper.New()
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("backend", defaultBackend)
	v.SetDefault("hybrid_fuzzy_weight", defaultHybridFuzzyWeight)
	v.SetDefault("hybrid_fulltext_weight", defaultHybridFullTextWeight)

	path := filepath.Join(dataDir, configFileName)
	if data, err := os.ReadFile(path); err == nil {
		var fileValues map[string]any
		if _, err := toml.Decode(string(data), &fileValues); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if err := v.MergeConfigMap(fileValues); err != nil {
			return nil, fmt.Errorf("merging %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	v.SetEnvPrefix("PARSNIP")
	for _, key := range []string{"data_dir", "project", "log", "backend"} {
		_ = v.BindEnv(key)
	}

	cfg := Default()
	cfg.DataDir = dataDir
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Backend == "" {
		cfg.Backend = defaultBackend
	}
	return cfg, nil
}

// Save writes cfg to <DataDir>/config.toml, creating the data directory if
// needed. Used by a driver's `config set`/`config init` surface; the engine
// itself never calls this.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(c.DataDir, configFileName), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open config.toml: %w", err)
	}
	defer func() { _ = f.Close() }()
	return toml.NewEncoder(f).Encode(c)
}
