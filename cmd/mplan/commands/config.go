package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/mplan/config"
	"github.com/teranos/mplan/errors"
	"github.com/teranos/mplan/sym"
)

// ConfigCmd represents the config command
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: sym.Config + " Manage mplan configuration",
	Long: sym.Config + ` config — Inspect mplan configuration

Configuration is resolved from MPLAN_* environment variables and the
nearest mplan.toml (or config.toml) walking up from the working
directory, falling back to built-in defaults.

Examples:
  mplan config show    # Show resolved configuration`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show resolved configuration",
	RunE:  runConfigShow,
}

func init() {
	ConfigCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	source := config.FindProjectConfig()
	if source == "" {
		source = "(defaults and environment only)"
	}

	fmt.Printf("%s Configuration\n", sym.Config)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Source:                %s\n\n", source)
	fmt.Printf("database.path:         %s\n", cfg.Database.Path)
	fmt.Printf("server.port:           %d\n", cfg.Server.Port)
	fmt.Printf("server.allowed_origins: %v\n", cfg.Server.AllowedOrigins)
	fmt.Printf("search.result_limit:   %d\n", cfg.Search.ResultLimit)
	fmt.Printf("search.exact_match_score:   %d\n", cfg.Search.ExactMatchScore)
	fmt.Printf("search.prefix_match_score:  %d\n", cfg.Search.PrefixMatchScore)
	fmt.Printf("search.contains_score:      %d\n", cfg.Search.ContainsScore)
	fmt.Printf("auth.session_expiry_days:   %d\n", cfg.Auth.SessionExpiryDays)
	fmt.Printf("auth.login_rate_per_minute: %.1f\n", cfg.Auth.LoginRatePerMinute)
	fmt.Printf("auth.login_burst:           %d\n", cfg.Auth.LoginBurst)
	return nil
}
