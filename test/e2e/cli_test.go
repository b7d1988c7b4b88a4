package e2e_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var binaryPath string

func TestMain(m *testing.M) {
	// Build the binary before all E2E tests.
	tmp, err := os.MkdirTemp("", "w3dapp-e2e-test")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmp)

	binaryPath = filepath.Join(tmp, "w3dapp")
	// Build from the module root (two levels up from test/e2e/).
	moduleRoot, err := filepath.Abs(filepath.Join("..", ".."))
	if err != nil {
		panic(err)
	}
	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = moduleRoot
	if out, err := cmd.CombinedOutput(); err != nil {
		panic("build failed: " + string(out))
	}

	os.Exit(m.Run())
}

func runCLI(t *testing.T, configDir string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	cmd.Env = append(os.Environ(),
		"W3DAPP_CONFIG_DIR="+configDir,
		"W3DAPP_INJECTED_RPC=",
		"W3DAPP_LOG_LEVEL=",
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// unreachable points the fallbacks at a closed port so no local node is hit.
func unreachable(t *testing.T, dir string) {
	t.Helper()
	_, err := runCLI(t, dir, "config", "add-rpc", "http://127.0.0.1:1")
	require.NoError(t, err)
	_, err = runCLI(t, dir, "config", "remove-rpc", "http://localhost:8545")
	require.NoError(t, err)
}

func TestVersionFlag(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "w3dapp")
	assert.Contains(t, out, "0.1.0")
}

func TestHelpListsCommands(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "--help")
	require.NoError(t, err)
	for _, c := range []string{"balance", "transfer", "approve", "add-token", "events", "watch", "accounts"} {
		assert.Contains(t, out, c)
	}
}

func TestInitThenConfigList(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, dir, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Config written")

	out, err = runCLI(t, dir, "config", "list")
	require.NoError(t, err)
	assert.Contains(t, out, `"rpc_algorithm": "failover"`)
	assert.Contains(t, out, `"token_contract": "FixedSupplyToken"`)
}

func TestConfigSet(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "config", "set", "rpc_algorithm", "round-robin")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "config", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "round-robin")

	out, err = runCLI(t, dir, "config", "set", "rpc_algorithm", "random")
	assert.Error(t, err)
	assert.Contains(t, out, "invalid config")
}

func TestRemovingLastFallbackRejected(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "config", "remove-rpc", "http://localhost:8545")
	assert.Error(t, err)
}

func TestNoProvider(t *testing.T) {
	dir := t.TempDir()
	unreachable(t, dir)

	out, err := runCLI(t, dir, "balance")
	require.Error(t, err)
	assert.Contains(t, out, "No Ethereum provider available; see log.")
	assert.Contains(t, strings.ToLower(out), "provider")
}

func TestInvalidArgsFailBeforeDialing(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, dir, "transfer", "0xabc")
	assert.Error(t, err, "missing amount")

	_, err = runCLI(t, dir, "allowance", "not-an-address")
	assert.Error(t, err)
}
