package config

import "time"

// Environment overrides.
const (
	EnvConfigDir   = "W3DAPP_CONFIG_DIR"
	EnvInjectedRPC = "W3DAPP_INJECTED_RPC"
	EnvLogLevel    = "W3DAPP_LOG_LEVEL"
)

// Defaults applied by Load and Timeouts.WithDefaults.
const (
	DefaultRPC              = "http://localhost:8545"
	DefaultAlgorithm        = "failover"
	DefaultArtifactsDir     = "build/contracts"
	DefaultTokenContract    = "FixedSupplyToken"
	DefaultExchangeContract = "Exchange"
	DefaultLogLevel         = "info"
	DefaultPollInterval     = 2 * time.Second
	DefaultMaxResubscribe   = 5

	DefaultDialTimeout   = 5 * time.Second
	DefaultCallTimeout   = 12 * time.Second
	DefaultSubmitTimeout = 25 * time.Second
	DefaultReceiptWait   = 90 * time.Second
)
