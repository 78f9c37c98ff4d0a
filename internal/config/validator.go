package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ValidateConfig validates configuration values and returns an error if any are invalid.
// This function should be called after viper has loaded the configuration.
func ValidateConfig() error {
	var errors []string

	if viper.IsSet("cache.ttl") {
		var ttl time.Duration
		if d := viper.GetDuration("cache.ttl"); d != 0 {
			ttl = d
		} else if s := viper.GetInt("cache.ttl"); s != 0 {
			ttl = time.Duration(s) * time.Second
		}
		if ttl <= 0 {
			errors = append(errors, fmt.Sprintf("cache.ttl must be positive, got: %v", ttl))
		}
	}

	if viper.IsSet("cache.max_entries") {
		max := viper.GetInt("cache.max_entries")
		if max <= 0 {
			errors = append(errors, fmt.Sprintf("cache.max_entries must be positive, got: %d", max))
		}
	}

	switch backend := viper.GetString("cache.backend"); backend {
	case "", "sqlite", "sqlite3":
	default:
		errors = append(errors, fmt.Sprintf("cache.backend must be sqlite, got: %s", backend))
	}

	if viper.IsSet("metrics_port") {
		port := viper.GetInt("metrics_port")
		if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("metrics_port must be between 1 and 65535, got: %d", port))
		}
	}

	if dir := viper.GetString("advisories.dir"); dir == "" {
		errors = append(errors, "advisories.dir must not be empty")
	}

	if cfg, err := Scoring(); err != nil {
		errors = append(errors, err.Error())
	} else if err := cfg.Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	// If there are any errors, return them
	if len(errors) > 0 {
		errorMsg := errors[0]
		for i := 1; i < len(errors); i++ {
			errorMsg += "\n  " + errors[i]
		}
		return fmt.Errorf("configuration validation failed:\n  %s", errorMsg)
	}

	return nil
}
