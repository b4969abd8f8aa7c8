package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	apisrv "github.com/headlight-network/headlight/server/api"
)

// Config holds the complete application configuration
type Config struct {
	API     apisrv.Config `mapstructure:"api"     yaml:"api"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig     `mapstructure:"log"     yaml:"log"`
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`
	Client  ClientConfig  `mapstructure:"client"  yaml:"client"`
	Keeper  KeeperConfig  `mapstructure:"keeper"  yaml:"keeper"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"METRICS_PATH"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// GatewayConfig holds proof gateway configuration
type GatewayConfig struct {
	Endpoint    string `mapstructure:"endpoint"     yaml:"endpoint"     env:"GATEWAY_ENDPOINT"`
	BearerToken string `mapstructure:"bearer_token" yaml:"bearer_token" env:"GATEWAY_BEARER_TOKEN"`
	GasBudget   uint64 `mapstructure:"gas_budget"   yaml:"gas_budget"   env:"GATEWAY_GAS_BUDGET"`
}

// ClientConfig holds light client routing and genesis configuration
type ClientConfig struct {
	HeaderRangeFunctionID string   `mapstructure:"header_range_function_id" yaml:"header_range_function_id"`
	RotateFunctionID      string   `mapstructure:"rotate_function_id"       yaml:"rotate_function_id"`
	GenesisHeight         uint32   `mapstructure:"genesis_height"           yaml:"genesis_height"`
	GenesisHeaderHash     string   `mapstructure:"genesis_header_hash"      yaml:"genesis_header_hash"`
	GenesisAuthoritySetID uint64   `mapstructure:"genesis_authority_set_id" yaml:"genesis_authority_set_id"`
	GenesisAuthorityHash  string   `mapstructure:"genesis_authority_hash"   yaml:"genesis_authority_hash"`
	AdminKeys             []string `mapstructure:"admin_keys"               yaml:"admin_keys"`
}

// KeeperConfig holds the automatic head-advance loop configuration
type KeeperConfig struct {
	Enabled  bool   `mapstructure:"enabled"  yaml:"enabled"  env:"KEEPER_ENABLED"`
	Interval string `mapstructure:"interval" yaml:"interval" env:"KEEPER_INTERVAL"`
	Step     uint32 `mapstructure:"step"     yaml:"step"     env:"KEEPER_STEP"`
	Payment  string `mapstructure:"payment"  yaml:"payment"  env:"KEEPER_PAYMENT"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Fallback env alias for the gateway endpoint
	if strings.TrimSpace(cfg.Gateway.Endpoint) == "" {
		if env := strings.TrimSpace(os.Getenv("GATEWAY_ENDPOINT")); env != "" {
			cfg.Gateway.Endpoint = env
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.listen_addr", ":8081")
	v.SetDefault("api.read_header_timeout", "5s")
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "30s")
	v.SetDefault("api.idle_timeout", "120s")
	v.SetDefault("api.max_header_bytes", 1048576)
	v.SetDefault("api.enable_cors", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("gateway.endpoint", "")
	v.SetDefault("gateway.bearer_token", "")
	v.SetDefault("gateway.gas_budget", 1000000)

	v.SetDefault("client.header_range_function_id", "")
	v.SetDefault("client.rotate_function_id", "")
	v.SetDefault("client.genesis_height", 0)
	v.SetDefault("client.genesis_header_hash", "")
	v.SetDefault("client.genesis_authority_set_id", 0)
	v.SetDefault("client.genesis_authority_hash", "")
	v.SetDefault("client.admin_keys", []string{})

	v.SetDefault("keeper.enabled", false)
	v.SetDefault("keeper.interval", "60s")
	v.SetDefault("keeper.step", 128)
	v.SetDefault("keeper.payment", "0")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Gateway.Endpoint) == "" {
		return fmt.Errorf("gateway.endpoint is required")
	}
	if c.Gateway.GasBudget == 0 {
		return fmt.Errorf("gateway.gas_budget must be positive")
	}
	if _, err := c.HeaderRangeFunctionID(); err != nil {
		return err
	}
	if _, err := c.RotateFunctionID(); err != nil {
		return err
	}
	if c.Keeper.Enabled {
		if _, err := c.KeeperInterval(); err != nil {
			return err
		}
		if _, err := c.KeeperPayment(); err != nil {
			return err
		}
	}
	if c.Client.GenesisHeaderHash != "" {
		if _, err := parseHash(c.Client.GenesisHeaderHash, "client.genesis_header_hash"); err != nil {
			return err
		}
		if _, err := parseHash(c.Client.GenesisAuthorityHash, "client.genesis_authority_hash"); err != nil {
			return err
		}
	}
	return nil
}

// HeaderRangeFunctionID parses the configured header-range proof program id.
func (c *Config) HeaderRangeFunctionID() (common.Hash, error) {
	return parseHash(c.Client.HeaderRangeFunctionID, "client.header_range_function_id")
}

// RotateFunctionID parses the configured rotate proof program id.
func (c *Config) RotateFunctionID() (common.Hash, error) {
	return parseHash(c.Client.RotateFunctionID, "client.rotate_function_id")
}

// GenesisHeaderHash parses the configured genesis header hash.
func (c *Config) GenesisHeaderHash() (common.Hash, error) {
	return parseHash(c.Client.GenesisHeaderHash, "client.genesis_header_hash")
}

// GenesisAuthorityHash parses the configured genesis authority hash.
func (c *Config) GenesisAuthorityHash() (common.Hash, error) {
	return parseHash(c.Client.GenesisAuthorityHash, "client.genesis_authority_hash")
}

// KeeperInterval parses the configured keeper interval.
func (c *Config) KeeperInterval() (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(c.Keeper.Interval))
	if err != nil {
		return 0, fmt.Errorf("keeper.interval must be a duration: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("keeper.interval must be positive")
	}
	return d, nil
}

// KeeperPayment parses the configured per-request payment in wei.
func (c *Config) KeeperPayment() (*big.Int, error) {
	raw := strings.TrimSpace(c.Keeper.Payment)
	if raw == "" {
		return new(big.Int), nil
	}
	payment, ok := new(big.Int).SetString(raw, 10)
	if !ok || payment.Sign() < 0 {
		return nil, fmt.Errorf("keeper.payment must be a non-negative decimal wei amount")
	}
	return payment, nil
}

// HasGenesis reports whether genesis bootstrap values are configured.
func (c *Config) HasGenesis() bool {
	return strings.TrimSpace(c.Client.GenesisHeaderHash) != ""
}

func parseHash(raw, field string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s must be 0x-prefixed hex: %w", field, err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%s must be %d bytes, got %d", field, common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		API: apisrv.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
		Gateway: GatewayConfig{
			GasBudget: 1000000,
		},
		Keeper: KeeperConfig{
			Enabled:  false,
			Interval: "60s",
			Step:     128,
			Payment:  "0",
		},
	}
}
