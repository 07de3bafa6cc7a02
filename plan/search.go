package plan

import (
	"strings"

	"github.com/teranos/mplan/errors"
)

// Default relevance scoring for action search.
const (
	DefaultSearchLimit   = 10
	DefaultExactScore    = 100
	DefaultPrefixScore   = 50
	DefaultContainsScore = 25
)

// SearchOptions tunes action search relevance scoring.
type SearchOptions struct {
	Limit         int
	ExactScore    int
	PrefixScore   int
	ContainsScore int
}

// DefaultSearchOptions returns the standard scoring configuration
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Limit:         DefaultSearchLimit,
		ExactScore:    DefaultExactScore,
		PrefixScore:   DefaultPrefixScore,
		ContainsScore: DefaultContainsScore,
	}
}

func (o SearchOptions) withDefaults() SearchOptions {
	d := DefaultSearchOptions()
	if o.Limit <= 0 {
		o.Limit = d.Limit
	}
	if o.ExactScore <= 0 {
		o.ExactScore = d.ExactScore
	}
	if o.PrefixScore <= 0 {
		o.PrefixScore = d.PrefixScore
	}
	if o.ContainsScore <= 0 {
		o.ContainsScore = d.ContainsScore
	}
	return o
}

// SearchActions finds actions whose name contains the query, case-insensitive.
// Exact matches rank above prefix matches, which rank above substring matches;
// ties break alphabetically. An empty or whitespace query returns no results
// without touching the database.
func (s *Store) SearchActions(query string) ([]Action, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	escaped := escapeLike(query)
	rows, err := s.db.Query(`
		SELECT id, name,
		       CASE
		           WHEN name = ? COLLATE NOCASE THEN ?
		           WHEN name LIKE ? ESCAPE '\' THEN ?
		           ELSE ?
		       END AS score
		FROM actions
		WHERE name LIKE ? ESCAPE '\'
		ORDER BY score DESC, name ASC
		LIMIT ?
	`,
		query, s.search.ExactScore,
		escaped+"%", s.search.PrefixScore,
		s.search.ContainsScore,
		"%"+escaped+"%", s.search.Limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search actions")
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var a Action
		var score int
		if err := rows.Scan(&a.ID, &a.Name, &score); err != nil {
			return nil, errors.Wrap(err, "failed to scan search result")
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// escapeLike escapes LIKE wildcards so user input matches literally
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func normalizeName(name string) string {
	return strings.TrimSpace(name)
}
