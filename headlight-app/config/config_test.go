package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
api:
  listen_addr: ":9090"

log:
  level: debug

gateway:
  endpoint: "http://gateway.local:8545"
  bearer_token: "secret"
  gas_budget: 2000000

client:
  header_range_function_id: "0x0101010101010101010101010101010101010101010101010101010101010101"
  rotate_function_id: "0x0202020202020202020202020202020202020202020202020202020202020202"
  genesis_height: 100
  genesis_header_hash: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
  genesis_authority_set_id: 1
  genesis_authority_hash: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
  admin_keys:
    - admin-1
    - admin-2
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfigYAML))
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.API.ListenAddr)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "http://gateway.local:8545", cfg.Gateway.Endpoint)
	require.Equal(t, "secret", cfg.Gateway.BearerToken)
	require.Equal(t, uint64(2000000), cfg.Gateway.GasBudget)

	fn, err := cfg.HeaderRangeFunctionID()
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("01", 32), fn.Hex()[2:])

	require.True(t, cfg.HasGenesis())
	require.Equal(t, uint32(100), cfg.Client.GenesisHeight)
	require.Equal(t, uint64(1), cfg.Client.GenesisAuthoritySetID)
	require.Equal(t, []string{"admin-1", "admin-2"}, cfg.Client.AdminKeys)

	// defaults still apply for omitted sections
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_RequiresGatewayEndpoint(t *testing.T) {
	content := strings.Replace(validConfigYAML, `endpoint: "http://gateway.local:8545"`, `endpoint: ""`, 1)
	_, err := Load(writeConfig(t, content))
	require.Error(t, err)
	require.Contains(t, err.Error(), "gateway.endpoint")
}

func TestLoad_RequiresFunctionIDs(t *testing.T) {
	content := strings.Replace(validConfigYAML,
		`header_range_function_id: "0x0101010101010101010101010101010101010101010101010101010101010101"`,
		`header_range_function_id: "0x1234"`, 1)
	_, err := Load(writeConfig(t, content))
	require.Error(t, err)
	require.Contains(t, err.Error(), "header_range_function_id")
}

func TestLoad_GenesisHashesValidatedTogether(t *testing.T) {
	content := strings.Replace(validConfigYAML,
		`genesis_authority_hash: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"`,
		`genesis_authority_hash: ""`, 1)
	_, err := Load(writeConfig(t, content))
	require.Error(t, err)
	require.Contains(t, err.Error(), "genesis_authority_hash")
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfigYAML))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, cfg.Save(path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Gateway, reloaded.Gateway)
	require.Equal(t, cfg.Client, reloaded.Client)
	require.Equal(t, cfg.Log, reloaded.Log)
}

func TestValidate_GasBudget(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfigYAML))
	require.NoError(t, err)

	cfg.Gateway.GasBudget = 0
	require.Error(t, cfg.Validate())
}

func TestKeeperConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfigYAML))
	require.NoError(t, err)

	// defaults: disabled, 60s, step 128
	require.False(t, cfg.Keeper.Enabled)

	interval, err := cfg.KeeperInterval()
	require.NoError(t, err)
	require.Equal(t, "1m0s", interval.String())
	require.Equal(t, uint32(128), cfg.Keeper.Step)

	payment, err := cfg.KeeperPayment()
	require.NoError(t, err)
	require.Equal(t, "0", payment.String())

	cfg.Keeper.Enabled = true
	cfg.Keeper.Interval = "not-a-duration"
	require.Error(t, cfg.Validate())

	cfg.Keeper.Interval = "30s"
	cfg.Keeper.Payment = "-1"
	require.Error(t, cfg.Validate())

	cfg.Keeper.Payment = "500000"
	require.NoError(t, cfg.Validate())
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, ":8081", cfg.API.ListenAddr)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, uint64(1000000), cfg.Gateway.GasBudget)

	// not runnable without an endpoint and function ids
	require.Error(t, cfg.Validate())
}
