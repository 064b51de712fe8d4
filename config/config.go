package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// BackendConfig bootstraps one validator-operator backend at startup.
type BackendConfig struct {
	Address     string `toml:"Address"`
	Weight      uint64 `toml:"Weight"`
	RewardAddr  string `toml:"RewardAddr"`
	UnbondDelay uint64 `toml:"UnbondDelay"`
}

type Config struct {
	RPCAddress           string          `toml:"RPCAddress"`
	MetricsAddress       string          `toml:"MetricsAddress"`
	DataDir              string          `toml:"DataDir"`
	ServiceName          string          `toml:"ServiceName"`
	Env                  string          `toml:"Env"`
	RPCToken             string          `toml:"RPCToken"`
	ModuleAddress        string          `toml:"ModuleAddress"`
	MinDeposit           string          `toml:"MinDeposit"`
	MaxDeposit           string          `toml:"MaxDeposit"`
	DelegationLowerBound string          `toml:"DelegationLowerBound"`
	BackendMinStake      string          `toml:"BackendMinStake"`
	EpochDelay           uint64          `toml:"EpochDelay"`
	TreasuryFeeBps       uint64          `toml:"TreasuryFeeBps"`
	OperatorFeeBps       uint64          `toml:"OperatorFeeBps"`
	RPCRateLimit         float64         `toml:"RPCRateLimit"`
	RPCRateBurst         int             `toml:"RPCRateBurst"`
	Backends             []BackendConfig `toml:"Backends"`
}

// Load reads the configuration at path, writing a default file first when
// none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "0.0.0.0:8645"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = "0.0.0.0:9464"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./pooldata"
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "liquidstaked"
	}
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.MinDeposit) == "" {
		cfg.MinDeposit = "0"
	}
	if strings.TrimSpace(cfg.MaxDeposit) == "" {
		cfg.MaxDeposit = "0"
	}
	if strings.TrimSpace(cfg.DelegationLowerBound) == "" {
		cfg.DelegationLowerBound = "0"
	}
	if strings.TrimSpace(cfg.BackendMinStake) == "" {
		cfg.BackendMinStake = "0"
	}
	if cfg.EpochDelay == 0 {
		cfg.EpochDelay = 7
	}
	if cfg.RPCRateLimit <= 0 {
		cfg.RPCRateLimit = 50
	}
	if cfg.RPCRateBurst <= 0 {
		cfg.RPCRateBurst = 100
	}
	if cfg.Backends == nil {
		cfg.Backends = []BackendConfig{}
	}
}

// Validate rejects configurations the daemon cannot safely run with.
func (cfg *Config) Validate() error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"MinDeposit", cfg.MinDeposit},
		{"MaxDeposit", cfg.MaxDeposit},
		{"DelegationLowerBound", cfg.DelegationLowerBound},
		{"BackendMinStake", cfg.BackendMinStake},
	} {
		amount, err := ParseAmount(field.value)
		if err != nil {
			return fmt.Errorf("config: %s: %w", field.name, err)
		}
		if amount.Sign() < 0 {
			return fmt.Errorf("config: %s must not be negative", field.name)
		}
	}
	if cfg.TreasuryFeeBps+cfg.OperatorFeeBps > 10_000 {
		return fmt.Errorf("config: fee split exceeds 10000 basis points")
	}
	seen := make(map[string]struct{}, len(cfg.Backends))
	for i, b := range cfg.Backends {
		addr := strings.ToLower(strings.TrimSpace(b.Address))
		if addr == "" {
			return fmt.Errorf("config: Backends[%d] missing Address", i)
		}
		if _, ok := seen[addr]; ok {
			return fmt.Errorf("config: duplicate backend address %s", b.Address)
		}
		seen[addr] = struct{}{}
		if b.Weight == 0 {
			return fmt.Errorf("config: Backends[%d] Weight must be positive", i)
		}
	}
	return nil
}

// ParseAmount parses a decimal base-asset amount from the config file.
func ParseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return new(big.Int), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", value)
	}
	return amount, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
