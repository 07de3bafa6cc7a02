package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "mplan.db")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{})

	// Search defaults
	v.SetDefault("search.result_limit", 10)
	v.SetDefault("search.exact_match_score", 100)
	v.SetDefault("search.prefix_match_score", 50)
	v.SetDefault("search.contains_score", 25)

	// Auth defaults
	v.SetDefault("auth.session_expiry_days", 30)
	v.SetDefault("auth.login_rate_per_minute", 10.0)
	v.SetDefault("auth.login_burst", 5)
}
