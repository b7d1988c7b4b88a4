package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config holds all w3dapp configuration.
type Config struct {
	FallbackRPCs     []string `json:"fallback_rpcs"`
	InjectedRPC      string   `json:"injected_rpc,omitempty"` // preferred over fallbacks when set
	RPCAlgorithm     string   `json:"rpc_algorithm"`          // "failover" | "fastest" | "round-robin"
	ArtifactsDir     string   `json:"artifacts_dir,omitempty"`
	DeploymentsFile  string   `json:"deployments_file,omitempty"`
	TokenContract    string   `json:"token_contract"`
	ExchangeContract string   `json:"exchange_contract"`
	LogLevel         string   `json:"log_level"`
	PollInterval     Duration `json:"poll_interval"`
	MaxResubscribe   int      `json:"max_resubscribe"`
	Timeouts         Timeouts `json:"timeouts"`

	// internal: config dir path used for Save()
	configDir string
}

// Timeouts bounds every wait on the provider. Zero values are replaced by
// WithDefaults.
type Timeouts struct {
	Dial        Duration `json:"dial"`         // provider resolution / health check
	Call        Duration `json:"call"`         // eth_call, balances, accounts, logs
	Submit      Duration `json:"submit"`       // eth_sendTransaction
	ReceiptWait Duration `json:"receipt_wait"` // pending -> receipt
}

// WithDefaults returns a copy of t with zero values replaced by defaults:
//
//	Dial:        5s
//	Call:        12s
//	Submit:      25s
//	ReceiptWait: 90s
func (t Timeouts) WithDefaults() Timeouts {
	tt := t
	if tt.Dial.Duration == 0 {
		tt.Dial.Duration = DefaultDialTimeout
	}
	if tt.Call.Duration == 0 {
		tt.Call.Duration = DefaultCallTimeout
	}
	if tt.Submit.Duration == 0 {
		tt.Submit.Duration = DefaultSubmitTimeout
	}
	if tt.ReceiptWait.Duration == 0 {
		tt.ReceiptWait.Duration = DefaultReceiptWait
	}
	return tt
}

// Duration is a time.Duration that reads and writes as "5s" in JSON.
// Plain numbers are accepted as seconds.
type Duration struct {
	time.Duration
}

// D wraps d.
func D(d time.Duration) Duration { return Duration{d} }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		d.Duration = time.Duration(val * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}
