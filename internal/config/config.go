package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	Cron    CronConfig    `mapstructure:"cron"`
	DFlow   DFlowConfig   `mapstructure:"dflow"`
	Solana  SolanaConfig  `mapstructure:"solana"`
	Oracle  OracleConfig  `mapstructure:"oracle"`
	Refresh RefreshConfig `mapstructure:"refresh"`
	Stream  StreamConfig  `mapstructure:"stream"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	PriceRefresh   string `mapstructure:"price_refresh"`
	MetricsRefresh string `mapstructure:"metrics_refresh"`
	DiscoverySweep string `mapstructure:"discovery_sweep"`
	Snapshot       string `mapstructure:"snapshot"`
	CacheCleanup   string `mapstructure:"cache_cleanup"`
}

type DFlowConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryWaitMin  time.Duration `mapstructure:"retry_wait_min"`
	RetryWaitMax  time.Duration `mapstructure:"retry_wait_max"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	RateBurst     int           `mapstructure:"rate_burst"`
}

type SolanaConfig struct {
	RPCURL  string        `mapstructure:"rpc_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type OracleConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type RefreshConfig struct {
	PositionBatch int `mapstructure:"position_batch"`
	WalletBatch   int `mapstructure:"wallet_batch"`
}

type StreamConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.price_refresh", "@every 30s")
	v.SetDefault("cron.metrics_refresh", "@every 5m")
	v.SetDefault("cron.discovery_sweep", "@every 10m")
	v.SetDefault("cron.snapshot", "@every 1h")
	v.SetDefault("cron.cache_cleanup", "@every 24h")
	v.SetDefault("dflow.base_url", "https://quote-api.dflow.net")
	v.SetDefault("dflow.timeout", "10s")
	v.SetDefault("dflow.retry_count", 3)
	v.SetDefault("dflow.retry_wait_min", "500ms")
	v.SetDefault("dflow.retry_wait_max", "4s")
	v.SetDefault("dflow.rate_per_second", 10)
	v.SetDefault("dflow.rate_burst", 20)
	v.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("solana.timeout", "10s")
	v.SetDefault("oracle.ttl", "30s")
	v.SetDefault("refresh.position_batch", 100)
	v.SetDefault("refresh.wallet_batch", 50)
	v.SetDefault("stream.enabled", false)
	v.SetDefault("stream.url", "")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
