package config

// Genesis seeds the arbitration configuration the first time the daemon
// starts against an empty data directory. Leaving Judge empty skips
// initialisation so an operator can call the initialize endpoint instead.
type Genesis struct {
	Judge      string `toml:"Judge" yaml:"judge"`
	Treasury   string `toml:"Treasury" yaml:"treasury"`
	TaxBps     uint16 `toml:"TaxBps" yaml:"taxBps"`
	FeePercent uint8  `toml:"FeePercent" yaml:"feePercent"`
	// Tokens are registered with the ledger so escrows may hold them.
	Tokens []Token `toml:"Tokens" yaml:"tokens"`
	// Allocations credit opening balances. They are applied only once, together
	// with the configuration.
	Allocations []Allocation `toml:"Allocations" yaml:"allocations"`
}

// Token describes a fungible token mint.
type Token struct {
	Mint     string `toml:"Mint" yaml:"mint"`
	Symbol   string `toml:"Symbol" yaml:"symbol"`
	Decimals uint8  `toml:"Decimals" yaml:"decimals"`
}

// Allocation is an opening balance. An empty Mint means the native asset.
type Allocation struct {
	Holder string `toml:"Holder" yaml:"holder"`
	Mint   string `toml:"Mint" yaml:"mint"`
	Amount string `toml:"Amount" yaml:"amount"`
}

// Auth controls bearer-token verification at the HTTP gateway.
type Auth struct {
	Enabled    bool   `toml:"Enabled" yaml:"enabled"`
	HMACSecret string `toml:"HMACSecret" yaml:"hmacSecret"`
	// HMACSecretEnv names an environment variable that overrides HMACSecret.
	HMACSecretEnv    string `toml:"HMACSecretEnv" yaml:"hmacSecretEnv"`
	Issuer           string `toml:"Issuer" yaml:"issuer"`
	Audience         string `toml:"Audience" yaml:"audience"`
	ClockSkewSeconds int    `toml:"ClockSkewSeconds" yaml:"clockSkewSeconds"`
	// AllowAnonymousReads lets unauthenticated clients call GET routes.
	AllowAnonymousReads bool `toml:"AllowAnonymousReads" yaml:"allowAnonymousReads"`
}

// RateLimit bounds requests per client.
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute" yaml:"requestsPerMinute"`
	Burst             int     `toml:"Burst" yaml:"burst"`
}

// Observability groups metrics, tracing and the event archive.
type Observability struct {
	ServiceName string `toml:"ServiceName" yaml:"serviceName"`
	Metrics     bool   `toml:"Metrics" yaml:"metrics"`
	Tracing     bool   `toml:"Tracing" yaml:"tracing"`
	// OTLPEndpoint receives OTLP metrics and traces. Empty keeps telemetry
	// in-process: Prometheus still serves /metrics.
	OTLPEndpoint string `toml:"OTLPEndpoint" yaml:"otlpEndpoint"`
	OTLPInsecure bool   `toml:"OTLPInsecure" yaml:"otlpInsecure"`
	OTLPHeaders  string `toml:"OTLPHeaders" yaml:"otlpHeaders"`
	// TraceSampleRatio keeps this fraction of root spans. Zero keeps all.
	TraceSampleRatio float64 `toml:"TraceSampleRatio" yaml:"traceSampleRatio"`
	LogRequests      bool    `toml:"LogRequests" yaml:"logRequests"`
	// EventLog is the SQLite archive path. Relative paths resolve against
	// DataDir; empty disables the archive.
	EventLog string `toml:"EventLog" yaml:"eventLog"`
}

// Logging configures the structured logger.
type Logging struct {
	Env   string `toml:"Env" yaml:"env"`
	Level string `toml:"Level" yaml:"level"`
	// File enables rotating file output in addition to stdout.
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `toml:"MaxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"maxAgeDays"`
}
