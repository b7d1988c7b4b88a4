package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

const (
	configFile   = "config.json"
	accountsFile = "accounts.json"
)

var algorithms = []string{"failover", "fastest", "round-robin"}

// Load reads config from dir (or creates defaults). An empty dir falls back
// to $W3DAPP_CONFIG_DIR, then ~/.w3dapp. Environment overrides are applied
// after the file is read.
func Load(dir string) (*Config, error) {
	cfg, err := LoadFile(dir)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFile is Load without the environment overrides, for editing the
// stored file.
func LoadFile(dir string) (*Config, error) {
	if dir == "" {
		dir = os.Getenv(EnvConfigDir)
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home dir: %w", err)
		}
		dir = filepath.Join(home, ".w3dapp")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create config dir: %w", err)
	}

	cfg := defaults(dir)

	data, err := os.ReadFile(filepath.Join(dir, configFile))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.configDir = dir
	cfg.Timeouts = cfg.Timeouts.WithDefaults()
	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.configDir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.configDir, configFile), data, 0o600)
}

// Validate reports the first problem found in c, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if len(c.FallbackRPCs) == 0 && c.InjectedRPC == "" {
		return fmt.Errorf("%w: no rpc endpoint configured", ErrInvalidConfig)
	}
	if !slices.Contains(algorithms, c.RPCAlgorithm) {
		return fmt.Errorf("%w: unknown rpc_algorithm %q", ErrInvalidConfig, c.RPCAlgorithm)
	}
	if c.TokenContract == "" {
		return fmt.Errorf("%w: token_contract is empty", ErrInvalidConfig)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrInvalidConfig, err)
	}
	if c.PollInterval.Duration <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalidConfig)
	}
	if c.MaxResubscribe < 0 {
		return fmt.Errorf("%w: max_resubscribe must not be negative", ErrInvalidConfig)
	}
	return nil
}

// AddRPC appends a fallback endpoint.
func (c *Config) AddRPC(url string) error {
	if slices.Contains(c.FallbackRPCs, url) {
		return fmt.Errorf("RPC %s already configured", url)
	}
	c.FallbackRPCs = append(c.FallbackRPCs, url)
	return nil
}

// RemoveRPC drops a fallback endpoint.
func (c *Config) RemoveRPC(url string) error {
	idx := slices.Index(c.FallbackRPCs, url)
	if idx == -1 {
		return fmt.Errorf("RPC %s not configured", url)
	}
	c.FallbackRPCs = slices.Delete(c.FallbackRPCs, idx, idx+1)
	return nil
}

// Keys lists the settings accepted by Set.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

var setters = map[string]func(c *Config, v string) error{
	"injected_rpc":      func(c *Config, v string) error { c.InjectedRPC = v; return nil },
	"rpc_algorithm":     func(c *Config, v string) error { c.RPCAlgorithm = v; return nil },
	"artifacts_dir":     func(c *Config, v string) error { c.ArtifactsDir = v; return nil },
	"deployments_file":  func(c *Config, v string) error { c.DeploymentsFile = v; return nil },
	"token_contract":    func(c *Config, v string) error { c.TokenContract = v; return nil },
	"exchange_contract": func(c *Config, v string) error { c.ExchangeContract = v; return nil },
	"log_level":         func(c *Config, v string) error { c.LogLevel = v; return nil },
	"poll_interval":     func(c *Config, v string) error { return setDuration(&c.PollInterval, v) },
	"max_resubscribe": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.MaxResubscribe = n
		return nil
	},
	"timeouts.dial":         func(c *Config, v string) error { return setDuration(&c.Timeouts.Dial, v) },
	"timeouts.call":         func(c *Config, v string) error { return setDuration(&c.Timeouts.Call, v) },
	"timeouts.submit":       func(c *Config, v string) error { return setDuration(&c.Timeouts.Submit, v) },
	"timeouts.receipt_wait": func(c *Config, v string) error { return setDuration(&c.Timeouts.ReceiptWait, v) },
}

func setDuration(d *Duration, v string) error {
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Set assigns one setting by its JSON key and validates the result. On
// failure c is left unchanged.
func (c *Config) Set(key, value string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("%w: unknown key %q (known: %s)", ErrInvalidConfig, key, strings.Join(Keys(), ", "))
	}
	next := *c
	next.FallbackRPCs = slices.Clone(c.FallbackRPCs)
	if err := set(&next, value); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// Dir returns the config directory.
func (c *Config) Dir() string {
	return c.configDir
}

// AccountsPath is where externally supplied accounts are persisted.
func (c *Config) AccountsPath() string {
	return filepath.Join(c.configDir, accountsFile)
}

// --- helpers ---

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvInjectedRPC); v != "" {
		c.InjectedRPC = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

func defaults(dir string) *Config {
	return &Config{
		FallbackRPCs:     []string{DefaultRPC},
		RPCAlgorithm:     DefaultAlgorithm,
		ArtifactsDir:     DefaultArtifactsDir,
		TokenContract:    DefaultTokenContract,
		ExchangeContract: DefaultExchangeContract,
		LogLevel:         DefaultLogLevel,
		PollInterval:     D(DefaultPollInterval),
		MaxResubscribe:   DefaultMaxResubscribe,
		Timeouts:         Timeouts{}.WithDefaults(),
		configDir:        dir,
	}
}
