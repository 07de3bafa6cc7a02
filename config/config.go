package config

// Config represents the core mplan configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Search   SearchConfig   `mapstructure:"search"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the mplan web server
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DefaultServerPort is used when no port is configured.
const DefaultServerPort = 4040

// SearchConfig configures action name search.
// Scores rank matches: exact > prefix > substring; ties break on name.
type SearchConfig struct {
	ResultLimit      int `mapstructure:"result_limit"`       // max results returned (default: 10)
	ExactMatchScore  int `mapstructure:"exact_match_score"`  // score for exact matches
	PrefixMatchScore int `mapstructure:"prefix_match_score"` // score for prefix matches
	ContainsScore    int `mapstructure:"contains_score"`     // score for substring matches
}

// AuthConfig configures user sessions and login throttling
type AuthConfig struct {
	SessionExpiryDays  int     `mapstructure:"session_expiry_days"`   // session validity window (default: 30)
	LoginRatePerMinute float64 `mapstructure:"login_rate_per_minute"` // sustained login attempts per IP
	LoginBurst         int     `mapstructure:"login_burst"`           // burst login attempts per IP
}
