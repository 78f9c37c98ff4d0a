package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"depgate/internal/score"
)

// Load initializes the configuration from file and environment variables.
func Load(cfgFile string) {
	// explicit .env loading; a missing .env is fine
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search config in the working directory with name ".depgate".
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".depgate")
	}

	viper.SetEnvPrefix("DEPGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// Set defaults
	viper.SetDefault("advisories.dir", "advisories")
	viper.SetDefault("policy.files", []string{})
	viper.SetDefault("reachability.report", "")
	viper.SetDefault("cache.backend", "sqlite")
	viper.SetDefault("cache.path", ".depgate.db")
	viper.SetDefault("cache.ttl", "1h")
	viper.SetDefault("cache.max_entries", 128)
	viper.SetDefault("metrics_port", 2112)
	viper.SetDefault("metrics_enabled", false)
	viper.SetDefault("verbose", false)

	def := score.DefaultConfig()
	viper.SetDefault("scoring.weights.cvss", def.Weights.CVSS)
	viper.SetDefault("scoring.weights.epss", def.Weights.EPSS)
	viper.SetDefault("scoring.weights.kev", def.Weights.KEV)
	viper.SetDefault("scoring.weights.reachability", def.Weights.Reachability)
	viper.SetDefault("scoring.weights.age", def.Weights.Age)
	viper.SetDefault("scoring.weights.exploit", def.Weights.Exploit)
	viper.SetDefault("scoring.thresholds.p0", def.Thresholds.P0)
	viper.SetDefault("scoring.thresholds.p1", def.Thresholds.P1)
	viper.SetDefault("scoring.thresholds.p2", def.Thresholds.P2)
	viper.SetDefault("scoring.thresholds.p3", def.Thresholds.P3)
	viper.SetDefault("scoring.age_window_days", def.AgeWindowDays)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// Scoring returns the scorer configuration assembled from the loaded
// settings. The caller validates it before use.
func Scoring() (score.Config, error) {
	cfg := score.DefaultConfig()
	if err := viper.UnmarshalKey("scoring", &cfg); err != nil {
		return score.Config{}, fmt.Errorf("failed to decode scoring config: %w", err)
	}
	return cfg, nil
}
