// Package migrate implements the relationship-aware filtering engine and the
// phased row, routine, and schema migration it drives.
package migrate

import "strings"

// SplitPatternList tokenizes a comma-separated pattern list, dropping blank
// entries.
func SplitPatternList(raw string) []string {
	var result []string
	for _, token := range strings.Split(raw, ",") {
		if token = strings.TrimSpace(token); token != "" {
			result = append(result, token)
		}
	}
	return result
}

// MatchesSkipPattern returns true if the table matches any skip pattern.
// Supported shapes: "DB.TABLE" (exact), "DB.*" (all tables in DB), "*.TABLE"
// (table in any database). Matching is case-insensitive.
func MatchesSkipPattern(patterns []string, database, table string) bool {
	fullName := strings.ToLower(database + "." + table)
	tableLower := strings.ToLower(table)
	databaseLower := strings.ToLower(database)

	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		switch {
		case pattern == "":
		case pattern == fullName:
			return true
		case strings.HasSuffix(pattern, ".*") && databaseLower == strings.TrimSuffix(pattern, ".*"):
			return true
		case strings.HasPrefix(pattern, "*.") && tableLower == strings.TrimPrefix(pattern, "*."):
			return true
		}
	}
	return false
}

// MatchesForcePattern returns true if the table matches any force-migrate
// pattern. Supported shapes: "DB.TABLE" (exact), "*.TABLE", or a bare
// "TABLE" which matches in any database. Matching is case-insensitive.
func MatchesForcePattern(patterns []string, database, table string) bool {
	fullName := strings.ToLower(database + "." + table)
	tableLower := strings.ToLower(table)

	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		switch {
		case pattern == "":
		case pattern == fullName:
			return true
		case strings.HasPrefix(pattern, "*.") && tableLower == strings.TrimPrefix(pattern, "*."):
			return true
		case !strings.Contains(pattern, ".") && tableLower == pattern:
			return true
		}
	}
	return false
}
