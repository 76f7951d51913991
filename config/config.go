package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    Server    `toml:"server" yaml:"server"`
	Auth      Auth      `toml:"auth" yaml:"auth"`
	Storage   Storage   `toml:"storage" yaml:"storage"`
	Logging   Logging   `toml:"logging" yaml:"logging"`
	Telemetry Telemetry `toml:"telemetry" yaml:"telemetry"`
	Escrow    Escrow    `toml:"escrow" yaml:"escrow"`
	Tiers     Tiers     `toml:"tiers" yaml:"tiers"`
	KYC       KYC       `toml:"kyc" yaml:"kyc"`
}

// Load loads the configuration from the given path. A missing file is created
// with defaults. Files ending in .yaml or .yml are decoded as YAML, everything
// else as TOML. Unknown keys are rejected in both formats.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}

	if cfg.KYC.Approved == nil {
		cfg.KYC.Approved = []string{}
	}
	if cfg.KYC.Operators == nil {
		cfg.KYC.Operators = []string{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written for new deployments.
func Default() *Config {
	return &Config{
		Server: Server{
			ListenAddress:         ":8080",
			ReadHeaderTimeoutSecs: 5,
			ReadTimeoutSecs:       15,
			WriteTimeoutSecs:      15,
			IdleTimeoutSecs:       60,
			ShutdownTimeoutSecs:   10,
			RateLimitPerSec:       10,
			RateBurst:             20,
		},
		Auth: Auth{
			JWTSecretEnv: "ESCROW_JWT_SECRET",
			Issuer:       "tradeescrow",
		},
		Storage: Storage{
			Backend:      "leveldb",
			Path:         "./escrow-data/state",
			EventLogPath: "./escrow-data/events.db",
		},
		Logging: Logging{
			Level:      "info",
			Env:        "local",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Telemetry: Telemetry{
			Endpoint: "localhost:4318",
			Insecure: true,
		},
		Escrow: Escrow{
			DeploymentID:         "local",
			ProtocolArbiter:      "0x00000000000000000000000000000000000000fa",
			FeeTreasury:          "0x00000000000000000000000000000000000000fe",
			MinAmount:            "1",
			MaxAmount:            "1000000000000000000000000000000",
			MinCollateralBps:     1_000,
			MaxCollateralBps:     5_000,
			MinMaturityDays:      1,
			MaxMaturityDays:      365,
			DisputeWindowSecs:    14 * 24 * 60 * 60,
			EscalationWindowSecs: 7 * 24 * 60 * 60,
		},
		Tiers: Tiers{
			SilverTrades:          10,
			GoldTrades:            50,
			DiamondTrades:         200,
			SilverCapDisputesLost: 2,
			BronzeCapDisputesLost: 5,
			BronzeFeeBps:          100,
			SilverFeeBps:          75,
			GoldFeeBps:            50,
			DiamondFeeBps:         25,
		},
		KYC: KYC{
			Approved:  []string{},
			Operators: []string{},
		},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// JWTSecret resolves the signing secret, preferring the environment.
func (c *Config) JWTSecret() []byte {
	if env := strings.TrimSpace(c.Auth.JWTSecretEnv); env != "" {
		if v := os.Getenv(env); v != "" {
			return []byte(v)
		}
	}
	return []byte(c.Auth.JWTSecret)
}
