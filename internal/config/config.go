package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/varoOP/moonsync/internal/domain"
)

// Load loads configuration from multiple sources:
// 1. Config file (config.toml/config.yaml, optional)
// 2. Environment variables (MOONSYNC_*)
func Load() (*domain.Config, error) {
	cfg := &domain.Config{
		DatabaseDir:       viper.GetString("database_dir"),
		RedisAddr:         viper.GetString("redis_addr"),
		RedisDB:           viper.GetInt("redis_db"),
		DiscordWebhookURL: viper.GetString("discord_webhook_url"),
		ModifierFile:      viper.GetString("modifier_file"),
		UserAgent:         viper.GetString("user_agent"),
		APIBaseURL:        viper.GetString("api_base_url"),
		Datasource:        viper.GetString("datasource"),
		Language:          viper.GetString("language"),
		RetryCount:        viper.GetInt("retry_count"),
		RetryBaseDelay:    viper.GetDuration("retry_base_delay"),
		LimitPerHost:      viper.GetInt("limit_per_host"),
		CacheTTL:          viper.GetDuration("cache_ttl"),
		RefreshInterval:   viper.GetDuration("refresh_interval"),
		EventQueueSize:    viper.GetInt("event_queue_size"),
		LogLevel:          viper.GetString("log_level"),
	}

	if cfg.DatabaseDir == "" {
		cfg.DatabaseDir = "."
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = domain.DefaultAPIBaseURL
	}
	if cfg.Datasource == "" {
		cfg.Datasource = domain.DefaultDatasource
	}
	if cfg.Language == "" {
		cfg.Language = domain.DefaultLanguage
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = domain.DefaultRetryCount
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = domain.DefaultRetryBaseDelay
	}
	if cfg.LimitPerHost <= 0 {
		cfg.LimitPerHost = domain.DefaultLimitPerHost
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = domain.DefaultCacheTTL
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = domain.DefaultRefreshInterval
	}
	if cfg.EventQueueSize <= 0 {
		cfg.EventQueueSize = domain.DefaultEventQueueSize
	}

	if cfg.RefreshInterval < time.Minute {
		return nil, fmt.Errorf("refresh_interval %s is below the 1m floor the upstream rate limits allow", cfg.RefreshInterval)
	}

	return cfg, nil
}
