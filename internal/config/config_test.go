package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Mohsinsiddi/w3dapp/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultConfig(t *testing.T) {
	t.Setenv(config.EnvInjectedRPC, "")
	t.Setenv(config.EnvLogLevel, "")

	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, []string{"http://localhost:8545"}, cfg.FallbackRPCs)
	assert.Equal(t, "failover", cfg.RPCAlgorithm)
	assert.Equal(t, "FixedSupplyToken", cfg.TokenContract)
	assert.Equal(t, "Exchange", cfg.ExchangeContract)
	assert.Equal(t, "build/contracts", cfg.ArtifactsDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.PollInterval.Duration)
	assert.Equal(t, 5, cfg.MaxResubscribe)
	assert.Empty(t, cfg.InjectedRPC)
	require.NoError(t, cfg.Validate())
}

func TestDefaultTimeouts(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Timeouts.Dial.Duration)
	assert.Equal(t, 12*time.Second, cfg.Timeouts.Call.Duration)
	assert.Equal(t, 25*time.Second, cfg.Timeouts.Submit.Duration)
	assert.Equal(t, 90*time.Second, cfg.Timeouts.ReceiptWait.Duration)
}

func TestTimeoutsWithDefaultsKeepsExplicitValues(t *testing.T) {
	tt := config.Timeouts{Call: config.D(time.Second)}.WithDefaults()
	assert.Equal(t, time.Second, tt.Call.Duration)
	assert.Equal(t, config.DefaultReceiptWait, tt.ReceiptWait.Duration)
}

func TestSaveAndReloadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	cfg.FallbackRPCs = []string{"http://127.0.0.1:7545"}
	cfg.RPCAlgorithm = "fastest"
	cfg.PollInterval = config.D(500 * time.Millisecond)
	cfg.Timeouts.ReceiptWait = config.D(time.Minute)

	require.NoError(t, cfg.Save())

	reloaded, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"http://127.0.0.1:7545"}, reloaded.FallbackRPCs)
	assert.Equal(t, "fastest", reloaded.RPCAlgorithm)
	assert.Equal(t, 500*time.Millisecond, reloaded.PollInterval.Duration)
	assert.Equal(t, time.Minute, reloaded.Timeouts.ReceiptWait.Duration)
}

func TestConfigFileCreatedOnSave(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Load(dir)
	require.NoError(t, cfg.Save())

	_, err := os.Stat(filepath.Join(dir, "config.json"))
	assert.NoError(t, err, "config.json should be created on save")
}

func TestLoadNumericDurationAsSeconds(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"poll_interval": 3, "timeouts": {"call": "1500ms"}}`), 0o600))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.PollInterval.Duration)
	assert.Equal(t, 1500*time.Millisecond, cfg.Timeouts.Call.Duration)
	// untouched timeouts still get defaults
	assert.Equal(t, config.DefaultSubmitTimeout, cfg.Timeouts.Submit.Duration)
}

func TestLoadBadJSONErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{not json`), 0o600))

	_, err := config.Load(dir)
	assert.Error(t, err)
}

func TestLoadBadDurationErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"poll_interval": "soon"}`), 0o600))

	_, err := config.Load(dir)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvConfigDir, dir)
	t.Setenv(config.EnvInjectedRPC, "ws://127.0.0.1:8546")
	t.Setenv(config.EnvLogLevel, "debug")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Dir())
	assert.Equal(t, "ws://127.0.0.1:8546", cfg.InjectedRPC)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFileIgnoresEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvInjectedRPC, "ws://127.0.0.1:8546")
	t.Setenv(config.EnvLogLevel, "debug")

	cfg, err := config.LoadFile(dir)
	require.NoError(t, err)
	assert.Empty(t, cfg.InjectedRPC)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromNonExistentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "subdir")
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Dir())
	assert.Equal(t, filepath.Join(dir, "accounts.json"), cfg.AccountsPath())
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(c *config.Config){
		"no endpoints":       func(c *config.Config) { c.FallbackRPCs = nil; c.InjectedRPC = "" },
		"unknown algorithm":  func(c *config.Config) { c.RPCAlgorithm = "random" },
		"empty token":        func(c *config.Config) { c.TokenContract = "" },
		"bad log level":      func(c *config.Config) { c.LogLevel = "loud" },
		"zero poll interval": func(c *config.Config) { c.PollInterval = config.D(0) },
		"negative retries":   func(c *config.Config) { c.MaxResubscribe = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := config.Load(t.TempDir())
			require.NoError(t, err)
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), config.ErrInvalidConfig)
		})
	}
}

func TestValidateInjectedOnly(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	cfg.FallbackRPCs = nil
	cfg.InjectedRPC = "ws://127.0.0.1:8546"
	assert.NoError(t, cfg.Validate())
}

// ---------------------------------------------------------------------------
// fallback endpoints
// ---------------------------------------------------------------------------

func TestAddAndRemoveRPC(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, cfg.AddRPC("http://rpc2"))
	assert.Error(t, cfg.AddRPC("http://rpc2"), "duplicate should error")
	assert.Equal(t, []string{"http://localhost:8545", "http://rpc2"}, cfg.FallbackRPCs)

	require.NoError(t, cfg.RemoveRPC("http://localhost:8545"))
	assert.Equal(t, []string{"http://rpc2"}, cfg.FallbackRPCs)
	assert.Error(t, cfg.RemoveRPC("http://nope"))
}

// ---------------------------------------------------------------------------
// Set
// ---------------------------------------------------------------------------

func TestSetKnownKeys(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, cfg.Set("rpc_algorithm", "fastest"))
	require.NoError(t, cfg.Set("poll_interval", "250ms"))
	require.NoError(t, cfg.Set("max_resubscribe", "9"))
	require.NoError(t, cfg.Set("timeouts.receipt_wait", "2m"))
	require.NoError(t, cfg.Set("token_contract", "MyToken"))

	assert.Equal(t, "fastest", cfg.RPCAlgorithm)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval.Duration)
	assert.Equal(t, 9, cfg.MaxResubscribe)
	assert.Equal(t, 2*time.Minute, cfg.Timeouts.ReceiptWait.Duration)
	assert.Equal(t, "MyToken", cfg.TokenContract)
}

func TestSetRejectsAndKeepsConfig(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	cases := [][2]string{
		{"nope", "x"},
		{"rpc_algorithm", "random"},
		{"poll_interval", "soon"},
		{"poll_interval", "0s"},
		{"max_resubscribe", "-1"},
		{"log_level", "loud"},
		{"token_contract", ""},
	}
	for _, c := range cases {
		t.Run(c[0]+"="+c[1], func(t *testing.T) {
			assert.ErrorIs(t, cfg.Set(c[0], c[1]), config.ErrInvalidConfig)
		})
	}
	assert.Equal(t, "failover", cfg.RPCAlgorithm)
	assert.Equal(t, 2*time.Second, cfg.PollInterval.Duration)
	assert.Equal(t, "FixedSupplyToken", cfg.TokenContract)
}

func TestKeysSorted(t *testing.T) {
	keys := config.Keys()
	assert.Contains(t, keys, "injected_rpc")
	assert.Contains(t, keys, "timeouts.dial")
	assert.IsNonDecreasing(t, keys)
}
