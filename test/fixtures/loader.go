// Package fixtures loads canned JSON-RPC responses and deployment files for
// the integration tests.
package fixtures

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// fixturesDir returns the absolute path to the fixtures directory.
func fixturesDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Dir(file)
}

// LoadRPCResponses loads a method -> result map from rpc/<filename>.
func LoadRPCResponses(t *testing.T, filename string) map[string]interface{} {
	t.Helper()
	path := filepath.Join(fixturesDir(), "rpc", filename)
	data, err := os.ReadFile(path)
	require.NoError(t, err, "failed to load fixture RPC responses: %s", filename)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

// DeploymentsPath returns the deployments file mapping the dapp contracts
// to their addresses on network 5777.
func DeploymentsPath() string {
	return filepath.Join(fixturesDir(), "deployments.json")
}
