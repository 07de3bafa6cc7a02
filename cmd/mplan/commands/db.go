package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/mplan/config"
	"github.com/teranos/mplan/errors"
	"github.com/teranos/mplan/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage mplan database",
	Long: sym.DB + ` db — Manage mplan database operations

Examples:
  mplan db stats      # Show database statistics
  mplan db migrate    # Apply pending schema migrations`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Long:  "Display row counts for plans, actions, executions and users.",
	RunE:  runDbStats,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

func init() {
	DbCmd.AddCommand(dbStatsCmd)
	DbCmd.AddCommand(dbMigrateCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	counts := []struct {
		label string
		query string
	}{
		{"Actions", "SELECT COUNT(*) FROM actions"},
		{"Plans (active)", "SELECT COUNT(*) FROM action_plans WHERE deleted_at IS NULL OR deleted_at <= 0"},
		{"Plans (deleted)", "SELECT COUNT(*) FROM action_plans WHERE deleted_at IS NOT NULL AND deleted_at > 0"},
		{"Plan items", "SELECT COUNT(*) FROM action_items"},
		{"Executions (open)", "SELECT COUNT(*) FROM action_plan_executions WHERE finished IS NULL OR finished <= 0"},
		{"Executions (finished)", "SELECT COUNT(*) FROM action_plan_executions WHERE finished IS NOT NULL AND finished > 0"},
		{"Item snapshots", "SELECT COUNT(*) FROM action_item_executions"},
		{"Users", "SELECT COUNT(*) FROM users"},
		{"Sessions", "SELECT COUNT(*) FROM user_sessions"},
	}

	fmt.Printf("%s Database Statistics\n", sym.DB)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path: %s\n\n", cfg.Database.Path)

	for _, c := range counts {
		var n int
		if err := database.QueryRow(c.query).Scan(&n); err != nil {
			return errors.Wrapf(err, "failed to count %s", c.label)
		}
		fmt.Printf("%-22s %d\n", c.label+":", n)
	}
	return nil
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	// openDatabase migrates as part of opening.
	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	var applied int
	if err := database.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
		return errors.Wrap(err, "failed to read migration ledger")
	}

	fmt.Printf("%s Database is up to date (%d migrations applied)\n", sym.DB, applied)
	return nil
}
