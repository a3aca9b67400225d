package dbutil

import (
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
)

var limitRegex = regexp.MustCompile(`(?i)LIMIT\s+\?\s*,\s*\?`)

// Finalize rewrites a builder-generated query for postgres: the
// MySQL-style "LIMIT ?,?" becomes "LIMIT ? OFFSET ?" (swapping the two
// args to match) and placeholders are rebound to dollar form.
func Finalize(query string, args []interface{}) (string, []interface{}) {
	loc := limitRegex.FindStringIndex(query)
	if loc != nil {
		prefix := query[:loc[0]]
		qCount := strings.Count(prefix, "?")
		if qCount+1 < len(args) {
			args[qCount], args[qCount+1] = args[qCount+1], args[qCount]
			query = limitRegex.ReplaceAllString(query, "LIMIT ? OFFSET ?")
		}
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}
