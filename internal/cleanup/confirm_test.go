package cleanup

import (
	"bytes"
	"strings"
	"testing"
)

func confirmer(input string) (*Confirmer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &Confirmer{In: strings.NewReader(input), Out: out}, out
}

func TestYesNo(t *testing.T) {
	cases := []struct {
		input    string
		expected bool
	}{
		{"yes\n", true},
		{"y\n", true},
		{"YES\n", true},
		{"no\n", false},
		{"n\n", false},
		{"\n", false},
		{"", false}, // EOF declines
		{"maybe\n", false},
	}
	for _, tc := range cases {
		c, _ := confirmer(tc.input)
		if actual := c.YesNo("Proceed?"); actual != tc.expected {
			t.Errorf("YesNo with input %q returned %t, expected %t", tc.input, actual, tc.expected)
		}
	}
}

func TestPhrase(t *testing.T) {
	cases := []struct {
		input    string
		phrase   string
		expected bool
	}{
		{"DELETE DATA\n", DeleteConfirmation, true},
		{"delete data\n", DeleteConfirmation, false}, // case matters
		{"DELETE DATA \n", DeleteConfirmation, true}, // surrounding space trimmed
		{"DROP DATABASES\n", DropConfirmation, true},
		{"DROP DATABASE\n", DropConfirmation, false},
		{"", DropConfirmation, false},
	}
	for _, tc := range cases {
		c, _ := confirmer(tc.input)
		if actual := c.Phrase(tc.phrase); actual != tc.expected {
			t.Errorf("Phrase(%q) with input %q returned %t, expected %t", tc.phrase, tc.input, actual, tc.expected)
		}
	}
}

func TestMultiStep(t *testing.T) {
	scope := &Scope{TotalRows: 5, TotalTables: 1}
	cases := []struct {
		name     string
		input    string
		expected bool
	}{
		{"full assent", "yes\nyes\nDELETE DATA\n", true},
		{"first step declines", "no\n", false},
		{"second step declines", "yes\nno\n", false},
		{"phrase mismatch", "yes\nyes\nDELETE EVERYTHING\n", false},
		{"eof mid-dialog", "yes\n", false},
	}
	for _, tc := range cases {
		c, _ := confirmer(tc.input)
		var planShown bool
		actual := c.MultiStep("delete 5 rows from 1 tables", DeleteConfirmation, scope, func() { planShown = true })
		if actual != tc.expected {
			t.Errorf("%s: MultiStep returned %t, expected %t", tc.name, actual, tc.expected)
		}
		if tc.name != "first step declines" && !planShown {
			t.Errorf("%s: plan was never displayed", tc.name)
		}
	}
}
