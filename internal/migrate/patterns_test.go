package migrate

import "testing"

func TestSplitPatternList(t *testing.T) {
	cases := []struct {
		input    string
		expected int
	}{
		{"", 0},
		{" , ,", 0},
		{"STARFOX.ROLE", 1},
		{"*.schema_version, *.flyway_schema_history", 2},
		{"a,b,,c", 3},
	}
	for _, tc := range cases {
		if actual := SplitPatternList(tc.input); len(actual) != tc.expected {
			t.Errorf("SplitPatternList(%q) returned %d tokens, expected %d", tc.input, len(actual), tc.expected)
		}
	}
}

func TestMatchesSkipPattern(t *testing.T) {
	patterns := []string{"STARFOX.AUDIT_LOG", "LEGACY.*", "*.temp_data"}
	cases := []struct {
		database string
		table    string
		expected bool
	}{
		{"STARFOX", "AUDIT_LOG", true},
		{"starfox", "audit_log", true}, // case-insensitive
		{"STARFOX", "ROLE", false},
		{"LEGACY", "ANYTHING", true},
		{"legacy", "OTHER", true},
		{"ONBOARDING", "temp_data", true},
		{"ONBOARDING", "TEMP_DATA", true},
		{"ONBOARDING", "temp_data_2", false},
	}
	for _, tc := range cases {
		if actual := MatchesSkipPattern(patterns, tc.database, tc.table); actual != tc.expected {
			t.Errorf("MatchesSkipPattern(%s.%s) returned %t, expected %t", tc.database, tc.table, actual, tc.expected)
		}
	}
	if MatchesSkipPattern(nil, "STARFOX", "ROLE") {
		t.Error("MatchesSkipPattern with no patterns should never match")
	}
}

func TestMatchesForcePattern(t *testing.T) {
	patterns := []string{"STARFOX.schema_version", "*.flyway_schema_history", "access_right"}
	cases := []struct {
		database string
		table    string
		expected bool
	}{
		{"STARFOX", "schema_version", true},
		{"ONBOARDING", "schema_version", false}, // exact pattern names a different db
		{"ONBOARDING", "flyway_schema_history", true},
		{"STARFOX", "FLYWAY_SCHEMA_HISTORY", true},
		{"ANYDB", "ACCESS_RIGHT", true}, // bare table name matches any database
		{"ANYDB", "ACCESS_RIGHTS", false},
	}
	for _, tc := range cases {
		if actual := MatchesForcePattern(patterns, tc.database, tc.table); actual != tc.expected {
			t.Errorf("MatchesForcePattern(%s.%s) returned %t, expected %t", tc.database, tc.table, actual, tc.expected)
		}
	}
}

// Force patterns do not honor the skip list's DATABASE.* shape; that shape is
// only meaningful for exclusion.
func TestForcePatternNoDatabaseWildcard(t *testing.T) {
	if MatchesForcePattern([]string{"STARFOX.*"}, "STARFOX", "ROLE") {
		t.Error("MatchesForcePattern should not support the DATABASE.* shape")
	}
}
