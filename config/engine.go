package config

import "time"

// EngineConfig is the full environment-scoped configuration for the wallet
// server: the ambient database/cache sections the teacher already had, plus
// the engine-specific sections from spec.md §6.
type EngineConfig struct {
	Database struct {
		Host            string `toml:"host" env:"WALLET_DB_HOST"`
		Port            string `toml:"port" env:"WALLET_DB_PORT" env-default:"5432"`
		User            string `toml:"user" env:"WALLET_DB_USER"`
		Password        string `toml:"password" env:"WALLET_DB_PASSWORD"`
		DB              string `toml:"db" env:"WALLET_DB_NAME"`
		SslMode         string `toml:"ssl_mode" env:"WALLET_DB_SSL_MODE" env-default:"disable"`
		MaxConns        int    `toml:"max_conns" env:"WALLET_DB_MAX_CONNS" env-default:"25"`
		MinConns        int    `toml:"min_conns" env:"WALLET_DB_MIN_CONNS" env-default:"5"`
		MaxConnLifetime int    `toml:"max_conn_lifetime" env:"WALLET_DB_MAX_CONN_LIFETIME" env-default:"5"`
		MaxConnIdleTime int    `toml:"max_conn_idle_time" env:"WALLET_DB_MAX_CONN_IDLE_TIME" env-default:"1"`
	} `toml:"database"`

	Redis struct {
		Host     string `toml:"host" env:"WALLET_REDIS_HOST"`
		Port     string `toml:"port" env:"WALLET_REDIS_PORT" env-default:"6379"`
		Password string `toml:"password" env:"WALLET_REDIS_PASSWORD"`
		DB       int    `toml:"db" env:"WALLET_REDIS_DB" env-default:"0"`
	} `toml:"redis"`

	// Port is the HTTP listen port for cmd/api.
	Port string `toml:"port" env:"WALLET_API_PORT" env-default:"8080"`

	// Domain is the server's own domain, used to mint LN addresses
	// (user@domain) and to detect internal-payment shortcuts.
	Domain string `toml:"domain" env:"WALLET_DOMAIN"`

	// BtcWalletSeedHex is the hex-encoded BIP-32 seed for the treasury
	// signer (internal/btcwallet); the engine's single point of
	// private-key custody.
	BtcWalletSeedHex string `toml:"btc_wallet_seed" env:"WALLET_BTC_SEED"`

	// InvoiceExpirySeconds is the default BOLT-11 expiry when a caller
	// doesn't specify one.
	InvoiceExpirySeconds int64 `toml:"invoice_expiry" env:"WALLET_INVOICE_EXPIRY" env-default:"3600"`

	// FeeBuffer is the fractional routing-fee margin added to outbound
	// Lightning payments during admission control (spec.md §4.3 step 3).
	FeeBuffer float64 `toml:"fee_buffer" env:"WALLET_FEE_BUFFER" env-default:"0.01"`

	JWT struct {
		Domain              string        `toml:"domain" env:"WALLET_JWT_DOMAIN"`
		Audience            string        `toml:"audience" env:"WALLET_JWT_AUDIENCE"`
		JWKSURL             string        `toml:"jwks_url" env:"WALLET_JWT_JWKS_URL"`
		JWKSRefreshInterval time.Duration `toml:"jwks_refresh_interval" env:"WALLET_JWT_JWKS_REFRESH_INTERVAL" env-default:"10m"`
		Leeway              time.Duration `toml:"leeway" env:"WALLET_JWT_LEEWAY" env-default:"30s"`
	} `toml:"jwt"`

	// LnProvider selects which node adapter backend is wired up at startup.
	LnProvider string `toml:"ln_provider" env:"WALLET_LN_PROVIDER" env-default:"lnd"`

	Lnd struct {
		GRPCHost              string `toml:"grpc_host" env:"WALLET_LND_GRPC_HOST"`
		GRPCPort              string `toml:"grpc_port" env:"WALLET_LND_GRPC_PORT" env-default:"10009"`
		TLSCertPath           string `toml:"tls_cert_path" env:"WALLET_LND_TLS_CERT_PATH"`
		MacaroonPath          string `toml:"macaroon_path" env:"WALLET_LND_MACAROON_PATH"`
		Network               string `toml:"network" env:"WALLET_LND_NETWORK" env-default:"testnet"`
		PaymentTimeoutSeconds int    `toml:"payment_timeout_seconds" env:"WALLET_LND_PAYMENT_TIMEOUT" env-default:"30"`
	} `toml:"lnd"`

	ClnGrpc struct {
		Host        string `toml:"host" env:"WALLET_CLN_GRPC_HOST"`
		Port        string `toml:"port" env:"WALLET_CLN_GRPC_PORT" env-default:"9736"`
		CertPath    string `toml:"cert_path" env:"WALLET_CLN_GRPC_CERT_PATH"`
		Network     string `toml:"network" env:"WALLET_CLN_GRPC_NETWORK" env-default:"testnet"`
	} `toml:"cln_grpc"`

	ClnRest struct {
		BaseURL string `toml:"base_url" env:"WALLET_CLN_REST_BASE_URL"`
		Rune    string `toml:"rune" env:"WALLET_CLN_REST_RUNE"`
	} `toml:"cln_rest"`

	Breez struct {
		APIKey      string `toml:"api_key" env:"WALLET_BREEZ_API_KEY"`
		Seed        string `toml:"seed" env:"WALLET_BREEZ_SEED"`
		WorkingDir  string `toml:"working_dir" env:"WALLET_BREEZ_WORKING_DIR"`
		Network     string `toml:"network" env:"WALLET_BREEZ_NETWORK" env-default:"mainnet"`
	} `toml:"breez"`

	BitcoinNetwork string `toml:"bitcoin_network" env:"WALLET_BITCOIN_NETWORK" env-default:"testnet"`
}
