package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ttm0z/stock-analyzer-sub001/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept both
// "90s"-style strings and integer nanoseconds. Only fields present in the
// file override the current values.
type JsonConfig struct {
	EndpointAddrGRPC string `json:"endpoint_addr_grpc"`
	MetricsAddr      string `json:"metrics_addr"`
	DatabaseDSN      string `json:"database_dsn"`
	RedisURL         string `json:"redis_url"`
	SecretKey        string `json:"secret_key"`

	TokenTTL           *timex.Duration `json:"token_ttl"`
	ClockSkew          *timex.Duration `json:"clock_skew"`
	RevocationFailOpen *bool           `json:"revocation_fail_open"`

	SessionTTL           *timex.Duration `json:"session_ttl"`
	SessionPolicy        string          `json:"session_policy"`
	TouchPersistInterval *timex.Duration `json:"touch_persist_interval"`
	SweepInterval        *timex.Duration `json:"sweep_interval"`
	SweepRetention       *timex.Duration `json:"sweep_retention"`

	APIKeyPrefix string `json:"api_key_prefix"`
	APIKeyBytes  int    `json:"api_key_bytes"`
	APIKeyPepper string `json:"api_key_pepper"`

	StoreTimeout *timex.Duration `json:"store_timeout"`
	CacheTimeout *timex.Duration `json:"cache_timeout"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

func parseJSON(config *Config, path string) error {
	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.MetricsAddr, c.MetricsAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.SessionPolicy, c.SessionPolicy)
	setString(&config.APIKeyPrefix, c.APIKeyPrefix)
	setString(&config.APIKeyPepper, c.APIKeyPepper)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)

	setDuration(&config.TokenTTL, c.TokenTTL)
	setDuration(&config.ClockSkew, c.ClockSkew)
	setDuration(&config.SessionTTL, c.SessionTTL)
	setDuration(&config.TouchPersistInterval, c.TouchPersistInterval)
	setDuration(&config.SweepInterval, c.SweepInterval)
	setDuration(&config.SweepRetention, c.SweepRetention)
	setDuration(&config.StoreTimeout, c.StoreTimeout)
	setDuration(&config.CacheTimeout, c.CacheTimeout)

	if c.RevocationFailOpen != nil {
		config.RevocationFailOpen = *c.RevocationFailOpen
	}
	if c.APIKeyBytes != 0 {
		config.APIKeyBytes = c.APIKeyBytes
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
