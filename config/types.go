package config

// Server controls the HTTP API listener.
type Server struct {
	ListenAddress         string  `toml:"ListenAddress" yaml:"ListenAddress"`
	ReadHeaderTimeoutSecs uint32  `toml:"ReadHeaderTimeoutSecs" yaml:"ReadHeaderTimeoutSecs"`
	ReadTimeoutSecs       uint32  `toml:"ReadTimeoutSecs" yaml:"ReadTimeoutSecs"`
	WriteTimeoutSecs      uint32  `toml:"WriteTimeoutSecs" yaml:"WriteTimeoutSecs"`
	IdleTimeoutSecs       uint32  `toml:"IdleTimeoutSecs" yaml:"IdleTimeoutSecs"`
	ShutdownTimeoutSecs   uint32  `toml:"ShutdownTimeoutSecs" yaml:"ShutdownTimeoutSecs"`
	RateLimitPerSec       float64 `toml:"RateLimitPerSec" yaml:"RateLimitPerSec"`
	RateBurst             int     `toml:"RateBurst" yaml:"RateBurst"`
}

// Auth configures bearer token verification. The secret is read from
// JWTSecretEnv when set, otherwise from JWTSecret.
type Auth struct {
	JWTSecret    string `toml:"JWTSecret" yaml:"JWTSecret"`
	JWTSecretEnv string `toml:"JWTSecretEnv" yaml:"JWTSecretEnv"`
	Issuer       string `toml:"Issuer" yaml:"Issuer"`
	Audience     string `toml:"Audience" yaml:"Audience"`
}

// Storage selects the state backend and the event log location.
type Storage struct {
	Backend      string `toml:"Backend" yaml:"Backend"`
	Path         string `toml:"Path" yaml:"Path"`
	EventLogPath string `toml:"EventLogPath" yaml:"EventLogPath"`
	AllowMigrate bool   `toml:"AllowMigrate" yaml:"AllowMigrate"`
}

// Logging configures the structured logger. An empty File logs to stdout.
type Logging struct {
	Level      string `toml:"Level" yaml:"Level"`
	Env        string `toml:"Env" yaml:"Env"`
	File       string `toml:"File" yaml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups" yaml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"MaxAgeDays"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint" yaml:"Endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"Insecure"`
	Headers     string  `toml:"Headers" yaml:"Headers"`
	Traces      bool    `toml:"Traces" yaml:"Traces"`
	Metrics     bool    `toml:"Metrics" yaml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"SampleRatio"`
}

// Escrow is the deployment context of the engine. Identities are 0x-prefixed
// hex and amounts are decimal strings.
type Escrow struct {
	DeploymentID         string `toml:"DeploymentID" yaml:"DeploymentID"`
	ProtocolArbiter      string `toml:"ProtocolArbiter" yaml:"ProtocolArbiter"`
	FeeTreasury          string `toml:"FeeTreasury" yaml:"FeeTreasury"`
	MinAmount            string `toml:"MinAmount" yaml:"MinAmount"`
	MaxAmount            string `toml:"MaxAmount" yaml:"MaxAmount"`
	MinCollateralBps     uint32 `toml:"MinCollateralBps" yaml:"MinCollateralBps"`
	MaxCollateralBps     uint32 `toml:"MaxCollateralBps" yaml:"MaxCollateralBps"`
	MinMaturityDays      uint32 `toml:"MinMaturityDays" yaml:"MinMaturityDays"`
	MaxMaturityDays      uint32 `toml:"MaxMaturityDays" yaml:"MaxMaturityDays"`
	DisputeWindowSecs    uint64 `toml:"DisputeWindowSecs" yaml:"DisputeWindowSecs"`
	EscalationWindowSecs uint64 `toml:"EscalationWindowSecs" yaml:"EscalationWindowSecs"`
	Paused               bool   `toml:"Paused" yaml:"Paused"`
}

// Tiers is the fee ladder.
type Tiers struct {
	SilverTrades          uint64 `toml:"SilverTrades" yaml:"SilverTrades"`
	GoldTrades            uint64 `toml:"GoldTrades" yaml:"GoldTrades"`
	DiamondTrades         uint64 `toml:"DiamondTrades" yaml:"DiamondTrades"`
	SilverCapDisputesLost uint64 `toml:"SilverCapDisputesLost" yaml:"SilverCapDisputesLost"`
	BronzeCapDisputesLost uint64 `toml:"BronzeCapDisputesLost" yaml:"BronzeCapDisputesLost"`
	BronzeFeeBps          uint32 `toml:"BronzeFeeBps" yaml:"BronzeFeeBps"`
	SilverFeeBps          uint32 `toml:"SilverFeeBps" yaml:"SilverFeeBps"`
	GoldFeeBps            uint32 `toml:"GoldFeeBps" yaml:"GoldFeeBps"`
	DiamondFeeBps         uint32 `toml:"DiamondFeeBps" yaml:"DiamondFeeBps"`
}

// KYC seeds the allow-list. Operators may approve identities and credit
// balances through the API.
type KYC struct {
	Approved  []string `toml:"Approved" yaml:"Approved"`
	Operators []string `toml:"Operators" yaml:"Operators"`
}
