// Package config loads DLSC's configuration from environment
// variables (and an optional .env file), the way the rest of the
// bunbase family loads config via Viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable named in the specification plus the
// ambient settings the coordinator process itself needs.
type Config struct {
	// Store-facing tunables (spec section 6).
	ZKRetries                  int           `mapstructure:"zk_retries"`
	MaxResubmit                int           `mapstructure:"max_resubmit"`
	ManagerTimeout             time.Duration `mapstructure:"manager_timeout"`
	ManagerUnassignedTimeout   time.Duration `mapstructure:"manager_unassigned_timeout"`
	ManagerTimeoutMonitorPeriod time.Duration `mapstructure:"manager_timeoutmonitor_period"`

	// Ambient process settings.
	StoreBackend     string `mapstructure:"store_backend"`
	StoreSQLitePath  string `mapstructure:"store_sqlite_path"`
	HTTPListen       string `mapstructure:"http_listen"`
	AuditPath        string `mapstructure:"audit_path"`
	MetricsNamespace string `mapstructure:"metrics_namespace"`
}

// Default returns the configuration defaults named in the
// specification.
func Default() *Config {
	return &Config{
		ZKRetries:                   3,
		MaxResubmit:                 3,
		ManagerTimeout:              25 * time.Second,
		ManagerUnassignedTimeout:    180 * time.Second,
		ManagerTimeoutMonitorPeriod: 1 * time.Second,
		StoreBackend:                "memory",
		StoreSQLitePath:             "./dlsc.db",
		MetricsNamespace:            "dlsc",
	}
}

// Load starts from Default, then overlays an optional .env file and
// DLSC_-prefixed environment variables, mirroring pkg/config.Load's
// approach for the rest of the bunbase family.
func Load(envFile string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(envFile)
	if envFile != "" {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: reading %s: %w", envFile, err)
			}
		}
	}

	const prefix = "DLSC_"
	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		if len(pair) != 2 {
			continue
		}
		key, value := pair[0], pair[1]
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		propKey := strings.ToLower(strings.TrimPrefix(key, prefix))
		v.Set(propKey, value)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
