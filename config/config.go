// CLAUDE:SUMMARY pairwatch configuration: YAML file sections for browser, discovery, processing, paths, log and API, with defaults and validation.
// Package config handles pairwatch configuration from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level pairwatch configuration.
type Config struct {
	Browser    BrowserConfig    `yaml:"browser"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Processing ProcessingConfig `yaml:"processing"`
	Paths      PathsConfig      `yaml:"paths"`
	Log        LogConfig        `yaml:"log"`
	API        APIConfig        `yaml:"api"`
}

// BrowserConfig controls the Chrome connection.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"` // ws URL, host:port or port; empty = launch
	Bin              string        `yaml:"bin"`
	UserDataDir      string        `yaml:"user_data_dir"`
	Headless         bool          `yaml:"headless"`
	Stealth          bool          `yaml:"stealth"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
}

// DiscoveryConfig drives the list-page loop.
type DiscoveryConfig struct {
	ListURL     string        `yaml:"list_url"`
	Selector    string        `yaml:"selector"`
	Prefix      string        `yaml:"prefix"`
	PageWait    time.Duration `yaml:"page_wait"`
	Interval    time.Duration `yaml:"interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
	Multiplier  float64       `yaml:"multiplier"`
}

// ProcessingConfig drives the detail-page loop.
type ProcessingConfig struct {
	PageURL        string        `yaml:"page_url"` // must contain {id}
	RegionSelector string        `yaml:"region_selector"`
	PopupSelector  string        `yaml:"popup_selector"`
	LoadDelay      time.Duration `yaml:"load_delay"`
	PopupTimeout   time.Duration `yaml:"popup_timeout"`
	SettleDelay    time.Duration `yaml:"settle_delay"`
	SuccessDelay   time.Duration `yaml:"success_delay"`
	IdleDelay      time.Duration `yaml:"idle_delay"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier"`
	MaxAttempts    int           `yaml:"max_attempts"`
	Snapshots      bool          `yaml:"snapshots"`
}

// PathsConfig locates the files shared by the loops.
type PathsConfig struct {
	DataDir       string `yaml:"data_dir"`
	IdentifierLog string `yaml:"identifier_log"`
	StoreDir      string `yaml:"store_dir"`
	StateDB       string `yaml:"state_db"`
	SnapshotDir   string `yaml:"snapshot_dir"`
}

// LockPath is the single-instance lock of the processing loop.
func (p PathsConfig) LockPath() string { return p.StateDB + ".lock" }

// LogConfig configures logging.
type LogConfig struct {
	Level   string   `yaml:"level"`
	Format  string   `yaml:"format"`
	Outputs []string `yaml:"outputs"`
}

// APIConfig configures the read-only service.
type APIConfig struct {
	Addr string `yaml:"addr"`
	MCP  bool   `yaml:"mcp"`
}

// Default returns a runnable configuration.
func Default() *Config {
	cfg := base()
	cfg.applyDefaults()
	return cfg
}

// base holds the fixed constants; derived fields are filled by applyDefaults
// so that a file overriding paths.data_dir moves every path under it.
func base() *Config {
	return &Config{
		Browser: BrowserConfig{
			Remote:  "9223",
			Stealth: true,
		},
		Discovery: DiscoveryConfig{
			ListURL:  "https://gmgn.ai/new-pair?chain=sol",
			Selector: "div.g-table-tbody-virtual-holder-inner a.css-5uoabp",
		},
		Processing: ProcessingConfig{
			PageURL:        "https://gmgn.ai/sol/token/{id}",
			RegionSelector: "div.css-1jy8g2v",
			PopupSelector:  `button[aria-label="Close"]`,
			LoadDelay:      5 * time.Second,
			SettleDelay:    10 * time.Second,
			MaxAttempts:    5,
		},
		API: APIConfig{MCP: true},
	}
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the built-in constants, applies defaults and
// validates.
func Parse(data []byte) (*Config, error) {
	cfg := base()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}

	if c.Discovery.Prefix == "" {
		c.Discovery.Prefix = "/sol/token/"
	}
	if c.Discovery.PageWait <= 0 {
		c.Discovery.PageWait = 30 * time.Second
	}
	if c.Discovery.Interval <= 0 {
		c.Discovery.Interval = 5 * time.Second
	}
	if c.Discovery.Multiplier <= 0 {
		c.Discovery.Multiplier = 1
	}
	if c.Discovery.MaxInterval <= 0 {
		c.Discovery.MaxInterval = time.Minute
	}

	p := &c.Processing
	if p.PopupTimeout <= 0 {
		p.PopupTimeout = 30 * time.Second
	}
	if p.SuccessDelay <= 0 {
		p.SuccessDelay = 5 * time.Second
	}
	if p.IdleDelay <= 0 {
		p.IdleDelay = 10 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 2 * time.Minute
	}

	if c.Paths.DataDir == "" {
		c.Paths.DataDir = "./data"
	}
	if c.Paths.IdentifierLog == "" {
		c.Paths.IdentifierLog = filepath.Join(c.Paths.DataDir, "new_coins.txt")
	}
	if c.Paths.StoreDir == "" {
		c.Paths.StoreDir = c.Paths.DataDir
	}
	if c.Paths.StateDB == "" {
		c.Paths.StateDB = filepath.Join(c.Paths.DataDir, "state.db")
	}
	if c.Paths.SnapshotDir == "" {
		c.Paths.SnapshotDir = filepath.Join(c.Paths.DataDir, "snapshots")
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout", filepath.Join(c.Paths.DataDir, "log.txt")}
	}

	if c.API.Addr == "" {
		c.API.Addr = "127.0.0.1:8000"
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Discovery.ListURL == "" {
		errs = append(errs, errors.New("discovery.list_url is required"))
	}
	if c.Discovery.Selector == "" {
		errs = append(errs, errors.New("discovery.selector is required"))
	}
	if !strings.Contains(c.Processing.PageURL, "{id}") {
		errs = append(errs, fmt.Errorf("processing.page_url %q must contain {id}", c.Processing.PageURL))
	}
	if c.Processing.LoadDelay < 0 || c.Processing.SettleDelay < 0 {
		errs = append(errs, errors.New("processing.load_delay and settle_delay must be >= 0"))
	}
	if c.Processing.MaxAttempts < 0 {
		errs = append(errs, errors.New("processing.max_attempts must be >= 0"))
	}
	if c.Discovery.Multiplier < 1 {
		errs = append(errs, errors.New("discovery.multiplier must be >= 1"))
	}
	if c.Processing.Multiplier < 1 {
		errs = append(errs, errors.New("processing.multiplier must be >= 1"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w", errors.Join(errs...))
}
