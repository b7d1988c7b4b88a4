package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3dapp/internal/chain/chaintest"
	"github.com/Mohsinsiddi/w3dapp/internal/config"
	"github.com/Mohsinsiddi/w3dapp/internal/contract"
	"github.com/Mohsinsiddi/w3dapp/internal/session"
	"github.com/Mohsinsiddi/w3dapp/internal/txn"
)

// node keeps the in-memory chain alive across commands; every command
// closes its session and with it the provider.
type node struct{ *chaintest.Chain }

func (node) Close() {}

type env struct {
	chain *chaintest.Chain
	token common.Address
	dir   string
}

// newEnv deploys the token (100 to Alice) and the exchange and writes a
// config dir pointing at them.
func newEnv(t *testing.T) *env {
	t.Helper()
	t.Setenv(config.EnvInjectedRPC, "")
	t.Setenv(config.EnvLogLevel, "")

	c := chaintest.New()
	e := &env{
		chain: c,
		token: c.DeployToken(chaintest.Alice, big.NewInt(100)),
		dir:   t.TempDir(),
	}
	exchange := c.DeployExchange()

	deployments := filepath.Join(e.dir, "deployments.json")
	data, err := json.Marshal(map[string]map[string]string{
		contract.FixedSupplyToken: {"5777": e.token.Hex()},
		contract.Exchange:         {"5777": exchange.Hex()},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(deployments, data, 0o600))

	cfg, err := config.LoadFile(e.dir)
	require.NoError(t, err)
	require.NoError(t, cfg.Set("artifacts_dir", ""))
	require.NoError(t, cfg.Set("deployments_file", deployments))
	require.NoError(t, cfg.Set("log_level", "error"))
	require.NoError(t, cfg.Set("poll_interval", "5ms"))
	require.NoError(t, cfg.Save())

	sessionOptions = []session.Option{session.WithProvider(node{c})}
	t.Cleanup(func() { sessionOptions = nil })
	return e
}

// syncBuffer is written by the spinner and the status sink concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type result struct {
	out, errOut string
	err         error
}

// run executes the root command with args against e's config dir.
func (e *env) run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut syncBuffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--config", e.dir}, args...))

	_, err := rootCmd.ExecuteContextC(context.Background())
	return result{out: out.String(), errOut: errOut.String(), err: err}
}

// resetFlags puts every flag of c and its children back to its default.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// ---------------------------------------------------------------------------
// Read commands
// ---------------------------------------------------------------------------

func TestInfo(t *testing.T) {
	e := newEnv(t)
	r := e.run(t, "", "info")
	require.NoError(t, r.err, r.errOut)

	assert.Contains(t, r.out, "5777")
	assert.Contains(t, r.out, e.token.Hex())
	assert.Contains(t, r.out, chaintest.Alice.Hex())
	assert.Contains(t, r.out, "100.0000 ETH")
	assert.Regexp(t, `Tokens:\s+100\s`, r.out)
}

func TestAccountsListAddRemove(t *testing.T) {
	e := newEnv(t)
	ext := "0x00000000000000000000000000000000000000aa"

	r := e.run(t, "", "accounts")
	require.NoError(t, r.err)
	for _, a := range []common.Address{chaintest.Alice, chaintest.Bob, chaintest.Carol} {
		assert.Contains(t, r.out, a.Hex())
	}

	r = e.run(t, "", "accounts", "add", ext, "--label", "cold")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "Added")

	r = e.run(t, "", "accounts")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, common.HexToAddress(ext).Hex())
	assert.Contains(t, r.out, "cold")

	r = e.run(t, "", "accounts", "remove", ext)
	require.NoError(t, r.err)
	r = e.run(t, "", "accounts")
	require.NoError(t, r.err)
	assert.NotContains(t, r.out, "cold")
}

func TestBalanceOwnerAndFrom(t *testing.T) {
	e := newEnv(t)

	r := e.run(t, "", "balance")
	require.NoError(t, r.err)
	assert.Regexp(t, `Balance:\s+100\s`, r.out)

	r = e.run(t, "", "balance", "--from", chaintest.Bob.Hex())
	require.NoError(t, r.err)
	assert.Contains(t, r.out, chaintest.Bob.Hex())
	assert.Regexp(t, `Balance:\s+0\s`, r.out)

	r = e.run(t, "", "balance", "not-an-address")
	assert.ErrorIs(t, r.err, txn.ErrValidation)
}

func TestFromUnknownAccount(t *testing.T) {
	e := newEnv(t)
	r := e.run(t, "", "balance", "--from", "0x00000000000000000000000000000000000000ff")
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "--from")
}

// ---------------------------------------------------------------------------
// Write commands
// ---------------------------------------------------------------------------

func TestTransferThenBalance(t *testing.T) {
	e := newEnv(t)

	r := e.run(t, "", "transfer", chaintest.Bob.Hex(), "10", "--yes")
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.out, "confirmed")
	assert.Contains(t, r.errOut, "Initiating transaction... (please wait)")
	assert.Contains(t, r.errOut, "Transaction complete!")

	r = e.run(t, "", "balance", chaintest.Bob.Hex())
	require.NoError(t, r.err)
	assert.Regexp(t, `Balance:\s+10\s`, r.out)
	assert.Equal(t, int64(90), e.chain.TokenBalance(e.token, chaintest.Alice).Int64())
}

func TestTransferDeclined(t *testing.T) {
	e := newEnv(t)
	r := e.run(t, "n\n", "transfer", chaintest.Bob.Hex(), "10")
	require.NoError(t, r.err)
	assert.Contains(t, r.errOut, "Cancelled.")
	assert.Equal(t, int64(100), e.chain.TokenBalance(e.token, chaintest.Alice).Int64())
}

func TestTransferConfirmedByPrompt(t *testing.T) {
	e := newEnv(t)
	r := e.run(t, "yes\n", "transfer", chaintest.Carol.Hex(), "1")
	require.NoError(t, r.err, r.errOut)
	assert.Equal(t, int64(1), e.chain.TokenBalance(e.token, chaintest.Carol).Int64())
}

func TestTransferInvalidAmount(t *testing.T) {
	e := newEnv(t)
	r := e.run(t, "", "transfer", chaintest.Bob.Hex(), "1.5", "--yes")
	assert.ErrorIs(t, r.err, txn.ErrValidation)
	assert.Contains(t, r.errOut, "Error sending coin; see log.")
}

func TestTransferMoreThanBalanceFails(t *testing.T) {
	e := newEnv(t)
	r := e.run(t, "", "transfer", chaintest.Bob.Hex(), "1000", "--yes")
	require.Error(t, r.err)
	assert.Contains(t, r.errOut, "Error sending coin; see log.")
	assert.Equal(t, int64(100), e.chain.TokenBalance(e.token, chaintest.Alice).Int64())
}

func TestApproveThenAllowance(t *testing.T) {
	e := newEnv(t)

	r := e.run(t, "", "approve", chaintest.Bob.Hex(), "42", "-y")
	require.NoError(t, r.err, r.errOut)

	r = e.run(t, "", "allowance", chaintest.Bob.Hex())
	require.NoError(t, r.err)
	assert.Regexp(t, `Remaining:\s+42\s`, r.out)

	r = e.run(t, "", "allowance", chaintest.Bob.Hex(), "--owner", chaintest.Carol.Hex())
	require.NoError(t, r.err)
	assert.Regexp(t, `Remaining:\s+0\s`, r.out)
}

func TestAddToken(t *testing.T) {
	e := newEnv(t)

	r := e.run(t, "", "add-token", "FIXED", e.token.Hex())
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.errOut, "Token added")
	assert.Contains(t, r.out, "confirmed")

	r = e.run(t, "", "add-token", "FIXED", e.token.Hex())
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "addToken failed")
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

func TestEventsReplayToHead(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.run(t, "", "transfer", chaintest.Bob.Hex(), "3", "--yes").err)
	require.NoError(t, e.run(t, "", "approve", chaintest.Carol.Hex(), "7", "--yes").err)

	r := e.run(t, "", "events")
	require.NoError(t, r.err, r.errOut)
	lines := strings.Split(strings.TrimSpace(r.out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Transfer")
	assert.Contains(t, lines[1], "Approval")
	assert.Contains(t, r.errOut, "2 event(s)")

	r = e.run(t, "", "events", "--event", "Approval")
	require.NoError(t, r.err)
	assert.NotContains(t, r.out, "Transfer")
	assert.Contains(t, r.out, "_value=7")
}

func TestEventsBadRange(t *testing.T) {
	e := newEnv(t)
	r := e.run(t, "", "events", "--since", "10", "--until", "2")
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "before --since")

	r = e.run(t, "", "events", "--until", "2", "--follow")
	assert.Error(t, r.err)
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

func TestConfigSetAndList(t *testing.T) {
	e := newEnv(t)

	r := e.run(t, "", "config", "set", "rpc_algorithm", "fastest")
	require.NoError(t, r.err)

	r = e.run(t, "", "config", "list")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, `"rpc_algorithm": "fastest"`)

	r = e.run(t, "", "config", "set", "rpc_algorithm", "random")
	assert.ErrorIs(t, r.err, config.ErrInvalidConfig)
}

func TestConfigDoesNotPersistOverrides(t *testing.T) {
	e := newEnv(t)
	r := e.run(t, "", "--rpc", "http://127.0.0.1:1", "config", "add-rpc", "http://rpc2")
	require.NoError(t, r.err)

	saved, err := config.LoadFile(e.dir)
	require.NoError(t, err)
	assert.Empty(t, saved.InjectedRPC)
	assert.Contains(t, saved.FallbackRPCs, "http://rpc2")

	r = e.run(t, "", "config", "remove-rpc", "http://rpc2")
	require.NoError(t, r.err)
	saved, err = config.LoadFile(e.dir)
	require.NoError(t, err)
	assert.NotContains(t, saved.FallbackRPCs, "http://rpc2")
}

func TestInitWritesConfig(t *testing.T) {
	dir := t.TempDir()
	e := &env{dir: dir}
	r := e.run(t, "", "init", "--rpc-fallback", "ws://127.0.0.1:8546")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "Config written")
	assert.FileExists(t, filepath.Join(dir, "config.json"))

	saved, err := config.LoadFile(dir)
	require.NoError(t, err)
	assert.Contains(t, saved.FallbackRPCs, "ws://127.0.0.1:8546")
}

// ---------------------------------------------------------------------------
// Deployments
// ---------------------------------------------------------------------------

func manifestServer(t *testing.T, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestDeploymentsList(t *testing.T) {
	e := newEnv(t)
	r := e.run(t, "", "deployments")
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.out, contract.FixedSupplyToken)
	assert.Contains(t, r.out, e.token.Hex())
	assert.Contains(t, r.out, "5777")
}

func TestDeploymentsSyncMerges(t *testing.T) {
	e := newEnv(t)
	moved := common.HexToAddress("0x000000000000000000000000000000000000beef")
	url := manifestServer(t, `{"Exchange":{"5777":"`+moved.Hex()+`"}}`)

	r := e.run(t, "", "deployments", "sync", url)
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.out, "Synced 2 contract(s)")

	r = e.run(t, "", "deployments")
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.out, moved.Hex())
	assert.Contains(t, r.out, e.token.Hex())
}

func TestDeploymentsSyncRejectsBadManifest(t *testing.T) {
	e := newEnv(t)
	url := manifestServer(t, `{"Exchange":{"5777":"nope"}}`)

	r := e.run(t, "", "deployments", "sync", url)
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "invalid deployments manifest")

	r = e.run(t, "", "info")
	require.NoError(t, r.err, r.errOut)
}

func TestDeploymentsSyncRemembersPath(t *testing.T) {
	e := newEnv(t)
	saved, err := config.LoadFile(e.dir)
	require.NoError(t, err)
	require.NoError(t, saved.Set("deployments_file", ""))
	require.NoError(t, saved.Save())

	url := manifestServer(t, `{"FixedSupplyToken":{"5777":"`+e.token.Hex()+`"}}`)
	r := e.run(t, "", "deployments", "sync", url)
	require.NoError(t, r.err, r.errOut)

	saved, err = config.LoadFile(e.dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.dir, "deployments.json"), saved.DeploymentsFile)
}
