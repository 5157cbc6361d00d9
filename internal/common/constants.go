package common

import "time"

// Model and market symbols
const (
	ETHModelName = "eth"
	ETHUSDSymbol = "ETH-USD"
	ETHToken     = "ETH"
)

// Environment variable keys
const (
	EnvConfigFile      = "CONFIG_FILE"
	EnvPort            = "PORT"
	EnvManifestPath    = "MANIFEST_PATH"
	EnvDefaultModel    = "DEFAULT_MODEL"
	EnvPreloadModels   = "PRELOAD_MODELS"
	EnvVenue           = "MARKET_VENUE"
	EnvBaseURL         = "BASE_URL"
	EnvCandleInterval  = "CANDLE_INTERVAL"
	EnvRESTTimeout     = "REST_TIMEOUT"
	EnvFetchTimeout    = "FETCH_TIMEOUT"
	EnvFetchRetries    = "FETCH_RETRIES"
	EnvRetryDelay      = "RETRY_DELAY"
	EnvAllowedOrigins  = "ALLOWED_ORIGINS"
	EnvDataPath        = "DATA_PATH"
	EnvCacheTTL        = "CACHE_TTL"
	EnvRedisAddr       = "REDIS_ADDR"
	EnvRedisPassword   = "REDIS_PASSWORD"
	EnvRedisDB         = "REDIS_DB"
	EnvSchedule        = "SCHEDULE"
	EnvScheduledModels = "SCHEDULED_MODELS"
	EnvStreamInterval  = "STREAM_INTERVAL"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFormat       = "LOG_FORMAT"
)

// Configuration defaults
const (
	DefaultPort           = 8000
	DefaultManifestPath   = "models/manifest.yaml"
	DefaultModel          = ETHModelName
	DefaultVenue          = VenueCoinbase
	DefaultCoinbaseURL    = "https://api.exchange.coinbase.com"
	DefaultBitunixURL     = "https://api.bitunix.com"
	DefaultCandleInterval = "1d"
	DefaultFetchRetries   = 2
	DefaultRESTTimeout    = 5 * time.Second
	DefaultFetchTimeout   = 10 * time.Second
	DefaultRetryDelay     = 500 * time.Millisecond
	DefaultCacheTTL       = time.Minute
	DefaultStreamInterval = 30 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
)

// Market venues
const (
	VenueCoinbase = "coinbase"
	VenueBitunix  = "bitunix"
)

// Common error messages
const (
	ErrMsgManifestRequired = "model manifest path is required"
	ErrMsgBaseURLRequired  = "baseURL is required"
	ErrMsgUnknownVenue     = "market venue must be coinbase or bitunix"
)

// Validation constants
const (
	MinPort         = 1024
	MaxPort         = 65535
	MaxFetchRetries = 10
	MaxSeriesLength = 1000
)
