package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tradeescrow/native/fees"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "escrowd.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.ListenAddress)
	require.FileExists(t, path)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}

func TestLoadParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrowd.toml")
	contents := `[server]
ListenAddress = "127.0.0.1:9090"
RateLimitPerSec = 2.5
RateBurst = 5

[storage]
Backend = "bolt"
Path = "./state.bolt"

[escrow]
DeploymentID = "marketplace-eu"
ProtocolArbiter = "0x00000000000000000000000000000000000000aa"
FeeTreasury = "0x00000000000000000000000000000000000000bb"
MinAmount = "1000"
MaxAmount = "5000000"
MinCollateralBps = 500
MaxCollateralBps = 2000
MinMaturityDays = 7
MaxMaturityDays = 90
DisputeWindowSecs = 86400
EscalationWindowSecs = 3600
Paused = true

[kyc]
Approved = ["0x00000000000000000000000000000000000000b1"]
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9090", cfg.Server.ListenAddress)
	require.Equal(t, "bolt", cfg.Storage.Backend)
	require.True(t, cfg.Escrow.Paused)
	// Sections not present keep their defaults.
	require.Equal(t, "info", cfg.Logging.Level)

	params, err := cfg.EscrowParams()
	require.NoError(t, err)
	require.Equal(t, "marketplace-eu", params.DeploymentID)
	require.Equal(t, byte(0xaa), params.ProtocolArbiter[19])
	require.Equal(t, "1000", params.MinAmount.String())
	require.Equal(t, int64(86400), params.DisputeWindow)
	require.Equal(t, fees.DefaultSchedule(), params.Tiers)

	approved, err := cfg.ApprovedIdentities()
	require.NoError(t, err)
	require.Len(t, approved, 1)
	require.Equal(t, byte(0xb1), approved[0][19])
}

func TestLoadRejectsUnknownTOMLKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrowd.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nListenAddr = \":1\"\n"), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "server.ListenAddr")
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrowd.yaml")
	contents := `server:
  ListenAddress: ":7070"
  RateLimitPerSec: 1
  RateBurst: 1
tiers:
  SilverTrades: 5
  GoldTrades: 10
  DiamondTrades: 20
  BronzeFeeBps: 200
  SilverFeeBps: 150
  GoldFeeBps: 100
  DiamondFeeBps: 50
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.Server.ListenAddress)
	schedule := cfg.TierSchedule()
	require.Equal(t, uint64(5), schedule.SilverTrades)
	require.Equal(t, [4]uint32{200, 150, 100, 50}, schedule.FeeBps)
}

func TestLoadRejectsUnknownYAMLKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrowd.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  Port: 1\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestDefaultYAMLRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrowd.yaml")
	created, err := Load(path)
	require.NoError(t, err)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, created, loaded)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"listen":      func(c *Config) { c.Server.ListenAddress = "" },
		"burst":       func(c *Config) { c.Server.RateBurst = 0 },
		"backend":     func(c *Config) { c.Storage.Backend = "redis" },
		"sample":      func(c *Config) { c.Telemetry.SampleRatio = 2 },
		"arbiter":     func(c *Config) { c.Escrow.ProtocolArbiter = "0x00" },
		"zeroArbiter": func(c *Config) { c.Escrow.ProtocolArbiter = "0x0000000000000000000000000000000000000000" },
		"amount":      func(c *Config) { c.Escrow.MinAmount = "ten" },
		"negative":    func(c *Config) { c.Escrow.MaxAmount = "-1" },
		"collateral":  func(c *Config) { c.Escrow.MinCollateralBps = 6_000 },
		"tiers":       func(c *Config) { c.Tiers.GoldTrades = 5 },
		"kyc":         func(c *Config) { c.KYC.Approved = []string{"nope"} },
		"operator":    func(c *Config) { c.KYC.Operators = []string{""} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, Default().Validate())
}

func TestJWTSecretPrefersEnvironment(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "file-secret"
	cfg.Auth.JWTSecretEnv = "ESCROW_TEST_JWT"
	t.Setenv("ESCROW_TEST_JWT", "")
	require.Equal(t, []byte("file-secret"), cfg.JWTSecret())

	t.Setenv("ESCROW_TEST_JWT", "env-secret")
	require.Equal(t, []byte("env-secret"), cfg.JWTSecret())
}
