package domain

import "time"

// Config holds all runtime configuration for moonsync.
type Config struct {
	DatabaseDir       string        `toml:"database_dir" mapstructure:"database_dir"`
	RedisAddr         string        `toml:"redis_addr" mapstructure:"redis_addr"`
	RedisDB           int           `toml:"redis_db" mapstructure:"redis_db"`
	DiscordWebhookURL string        `toml:"discord_webhook_url" mapstructure:"discord_webhook_url"`
	ModifierFile      string        `toml:"modifier_file" mapstructure:"modifier_file"`
	UserAgent         string        `toml:"user_agent" mapstructure:"user_agent"`
	APIBaseURL        string        `toml:"api_base_url" mapstructure:"api_base_url"`
	Datasource        string        `toml:"datasource" mapstructure:"datasource"`
	Language          string        `toml:"language" mapstructure:"language"`
	RetryCount        int           `toml:"retry_count" mapstructure:"retry_count"`
	RetryBaseDelay    time.Duration `toml:"retry_base_delay" mapstructure:"retry_base_delay"`
	LimitPerHost      int           `toml:"limit_per_host" mapstructure:"limit_per_host"`
	CacheTTL          time.Duration `toml:"cache_ttl" mapstructure:"cache_ttl"`
	RefreshInterval   time.Duration `toml:"refresh_interval" mapstructure:"refresh_interval"`
	EventQueueSize    int           `toml:"event_queue_size" mapstructure:"event_queue_size"`
	LogLevel          string        `toml:"log_level" mapstructure:"log_level"`
}

// Defaults that mirror the upstream API's operational limits.
const (
	DefaultAPIBaseURL      = "https://esi.evetech.net/latest"
	DefaultDatasource      = "tranquility"
	DefaultLanguage        = "en"
	DefaultRetryCount      = 11
	DefaultRetryBaseDelay  = 7 * time.Second
	DefaultLimitPerHost    = 13
	DefaultCacheTTL        = 2 * time.Hour
	DefaultRefreshInterval = 540 * time.Second
	DefaultEventQueueSize  = 256
)
