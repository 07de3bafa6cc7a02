// Package sym defines canonical symbols used as log and CLI markers.
// These symbols are stable across CLI output and documentation.
package sym

// System markers — prefix log lines and CLI banners.
const (
	DB     = "⛁" // database operations
	Plan   = "☰" // action plans and items
	Exec   = "▶" // plan executions
	Check  = "✓" // item completion
	Search = "⌕" // action name search
	User   = "⍟" // users and sessions
	Backup = "⎘" // backup export/import
	Server = "⇄" // HTTP server
	Config = "≡" // configuration
)

// Name returns a human-readable name for a symbol, or "" if unknown.
func Name(symbol string) string {
	switch symbol {
	case DB:
		return "database"
	case Plan:
		return "plan"
	case Exec:
		return "execution"
	case Check:
		return "check"
	case Search:
		return "search"
	case User:
		return "user"
	case Backup:
		return "backup"
	case Server:
		return "server"
	case Config:
		return "config"
	default:
		return ""
	}
}
