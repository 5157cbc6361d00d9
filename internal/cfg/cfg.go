package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"trendcast/internal/common"
)

type Settings struct {
	Port           int
	AllowedOrigins []string
	StreamInterval time.Duration

	ManifestPath  string
	DefaultModel  string
	PreloadModels bool

	Venue          string
	BaseURL        string
	CandleInterval string
	RESTTimeout    time.Duration
	FetchTimeout   time.Duration
	FetchRetries   int
	RetryDelay     time.Duration

	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Schedule        string
	ScheduledModels []string

	DataPath  string
	LogLevel  string
	LogFormat string
}

type ConfigFile struct {
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		StreamInterval string   `yaml:"streamInterval"`
	} `yaml:"server"`

	Models struct {
		ManifestPath string `yaml:"manifestPath"`
		DefaultModel string `yaml:"defaultModel"`
		Preload      *bool  `yaml:"preload"`
	} `yaml:"models"`

	Market struct {
		Venue          string `yaml:"venue"`
		BaseURL        string `yaml:"baseURL"`
		CandleInterval string `yaml:"candleInterval"`
		RESTTimeout    string `yaml:"restTimeout"`
		FetchTimeout   string `yaml:"fetchTimeout"`
		FetchRetries   *int   `yaml:"fetchRetries"`
		RetryDelay     string `yaml:"retryDelay"`
	} `yaml:"market"`

	Cache struct {
		TTL           string `yaml:"ttl"`
		RedisAddr     string `yaml:"redisAddr"`
		RedisPassword string `yaml:"redisPassword"`
		RedisDB       int    `yaml:"redisDB"`
	} `yaml:"cache"`

	Schedule struct {
		Cron   string   `yaml:"cron"`
		Models []string `yaml:"models"`
	} `yaml:"schedule"`

	System struct {
		DataPath  string `yaml:"dataPath"`
		LogLevel  string `yaml:"logLevel"`
		LogFormat string `yaml:"logFormat"`
	} `yaml:"system"`
}

// Load reads a .env file if present, then builds settings from the YAML file
// named by CONFIG_FILE or from the environment alone. Environment variables
// override YAML values.
func Load() (Settings, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	venue := getEnvOrDefault(common.EnvVenue, orString(config.Market.Venue, common.DefaultVenue))
	fetchRetries := common.DefaultFetchRetries
	if config.Market.FetchRetries != nil {
		fetchRetries = *config.Market.FetchRetries
	}
	preload := true
	if config.Models.Preload != nil {
		preload = *config.Models.Preload
	}

	settings := Settings{
		Port:           getIntFromEnvOrConfig(common.EnvPort, config.Server.Port, common.DefaultPort),
		AllowedOrigins: getListFromEnvOrConfig(common.EnvAllowedOrigins, config.Server.AllowedOrigins, []string{"*"}),
		StreamInterval: getDurationFromEnvOrConfig(common.EnvStreamInterval, config.Server.StreamInterval, common.DefaultStreamInterval),

		ManifestPath:  getEnvOrDefault(common.EnvManifestPath, orString(config.Models.ManifestPath, common.DefaultManifestPath)),
		DefaultModel:  getEnvOrDefault(common.EnvDefaultModel, orString(config.Models.DefaultModel, common.DefaultModel)),
		PreloadModels: getBoolOrDefault(common.EnvPreloadModels, preload),

		Venue:          venue,
		BaseURL:        getEnvOrDefault(common.EnvBaseURL, orString(config.Market.BaseURL, defaultBaseURL(venue))),
		CandleInterval: getEnvOrDefault(common.EnvCandleInterval, orString(config.Market.CandleInterval, common.DefaultCandleInterval)),
		RESTTimeout:    getDurationFromEnvOrConfig(common.EnvRESTTimeout, config.Market.RESTTimeout, common.DefaultRESTTimeout),
		FetchTimeout:   getDurationFromEnvOrConfig(common.EnvFetchTimeout, config.Market.FetchTimeout, common.DefaultFetchTimeout),
		FetchRetries:   getIntOrDefault(common.EnvFetchRetries, fetchRetries),
		RetryDelay:     getDurationFromEnvOrConfig(common.EnvRetryDelay, config.Market.RetryDelay, common.DefaultRetryDelay),

		CacheTTL:      getDurationFromEnvOrConfig(common.EnvCacheTTL, config.Cache.TTL, common.DefaultCacheTTL),
		RedisAddr:     getEnvOrDefault(common.EnvRedisAddr, config.Cache.RedisAddr),
		RedisPassword: getEnvOrDefault(common.EnvRedisPassword, config.Cache.RedisPassword),
		RedisDB:       getIntOrDefault(common.EnvRedisDB, config.Cache.RedisDB),

		Schedule:        getEnvOrDefault(common.EnvSchedule, config.Schedule.Cron),
		ScheduledModels: getListFromEnvOrConfig(common.EnvScheduledModels, config.Schedule.Models, nil),

		DataPath:  getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		LogLevel:  getEnvOrDefault(common.EnvLogLevel, orString(config.System.LogLevel, common.DefaultLogLevel)),
		LogFormat: getEnvOrDefault(common.EnvLogFormat, orString(config.System.LogFormat, common.DefaultLogFormat)),
	}
	if len(settings.ScheduledModels) == 0 {
		settings.ScheduledModels = []string{settings.DefaultModel}
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	venue := getEnvOrDefault(common.EnvVenue, common.DefaultVenue)
	defaultModel := getEnvOrDefault(common.EnvDefaultModel, common.DefaultModel)

	settings := Settings{
		Port:           getIntOrDefault(common.EnvPort, common.DefaultPort),
		AllowedOrigins: splitOrDefault(os.Getenv(common.EnvAllowedOrigins), []string{"*"}),
		StreamInterval: getDurationOrDefault(common.EnvStreamInterval, common.DefaultStreamInterval),

		ManifestPath:  getEnvOrDefault(common.EnvManifestPath, common.DefaultManifestPath),
		DefaultModel:  defaultModel,
		PreloadModels: getBoolOrDefault(common.EnvPreloadModels, true),

		Venue:          venue,
		BaseURL:        getEnvOrDefault(common.EnvBaseURL, defaultBaseURL(venue)),
		CandleInterval: getEnvOrDefault(common.EnvCandleInterval, common.DefaultCandleInterval),
		RESTTimeout:    getDurationOrDefault(common.EnvRESTTimeout, common.DefaultRESTTimeout),
		FetchTimeout:   getDurationOrDefault(common.EnvFetchTimeout, common.DefaultFetchTimeout),
		FetchRetries:   getIntOrDefault(common.EnvFetchRetries, common.DefaultFetchRetries),
		RetryDelay:     getDurationOrDefault(common.EnvRetryDelay, common.DefaultRetryDelay),

		CacheTTL:      getDurationOrDefault(common.EnvCacheTTL, common.DefaultCacheTTL),
		RedisAddr:     os.Getenv(common.EnvRedisAddr), // optional
		RedisPassword: os.Getenv(common.EnvRedisPassword),
		RedisDB:       getIntOrDefault(common.EnvRedisDB, 0),

		Schedule:        os.Getenv(common.EnvSchedule), // optional
		ScheduledModels: splitOrDefault(os.Getenv(common.EnvScheduledModels), []string{defaultModel}),

		DataPath:  os.Getenv(common.EnvDataPath), // optional
		LogLevel:  getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat: getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func defaultBaseURL(venue string) string {
	if venue == common.VenueBitunix {
		return common.DefaultBitunixURL
	}
	return common.DefaultCoinbaseURL
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getListFromEnvOrConfig(key string, configValue, def []string) []string {
	if env := os.Getenv(key); env != "" {
		return splitOrDefault(env, def)
	}
	if len(configValue) > 0 {
		return configValue
	}
	return def
}

func getIntFromEnvOrConfig(key string, configValue, def int) int {
	if configValue != 0 {
		def = configValue
	}
	return getIntOrDefault(key, def)
}

func getDurationFromEnvOrConfig(key, configValue string, def time.Duration) time.Duration {
	if configValue != "" {
		if d, err := time.ParseDuration(configValue); err == nil {
			def = d
		}
	}
	return getDurationOrDefault(key, def)
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.Port < common.MinPort || settings.Port > common.MaxPort {
		return fmt.Errorf("port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.Port)
	}
	if len(settings.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}
	if settings.StreamInterval < time.Second || settings.StreamInterval > time.Hour {
		return fmt.Errorf("stream interval must be between 1s and 1h, got %v", settings.StreamInterval)
	}

	if settings.ManifestPath == "" {
		return fmt.Errorf(common.ErrMsgManifestRequired)
	}
	if settings.DefaultModel == "" {
		return fmt.Errorf("default model cannot be empty")
	}

	// Validate market data source
	if settings.Venue != common.VenueCoinbase && settings.Venue != common.VenueBitunix {
		return fmt.Errorf("%s, got %q", common.ErrMsgUnknownVenue, settings.Venue)
	}
	if settings.BaseURL == "" {
		return fmt.Errorf(common.ErrMsgBaseURLRequired)
	}
	if settings.CandleInterval == "" {
		return fmt.Errorf("candle interval cannot be empty")
	}

	// Validate time durations
	if settings.RESTTimeout < time.Second || settings.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", settings.RESTTimeout)
	}
	if settings.FetchTimeout < time.Second || settings.FetchTimeout > 5*time.Minute {
		return fmt.Errorf("fetch timeout must be between 1s and 5m, got %v", settings.FetchTimeout)
	}
	if settings.RetryDelay <= 0 || settings.RetryDelay > time.Minute {
		return fmt.Errorf("retry delay must be between 0 and 1m, got %v", settings.RetryDelay)
	}
	if settings.CacheTTL < 0 {
		return fmt.Errorf("cache TTL cannot be negative, got %v", settings.CacheTTL)
	}

	if settings.FetchRetries < 0 || settings.FetchRetries > common.MaxFetchRetries {
		return fmt.Errorf("fetch retries must be between 0 and %d, got %d", common.MaxFetchRetries, settings.FetchRetries)
	}
	if settings.RedisDB < 0 {
		return fmt.Errorf("redis DB cannot be negative, got %d", settings.RedisDB)
	}

	if settings.Schedule != "" && len(settings.ScheduledModels) == 0 {
		return fmt.Errorf("a schedule needs at least one model")
	}

	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", settings.LogLevel)
	}
	if settings.LogFormat != "json" && settings.LogFormat != "console" {
		return fmt.Errorf("log format must be json or console, got %q", settings.LogFormat)
	}

	return nil
}
