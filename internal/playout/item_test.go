package playout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSeverity(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input    string
		expected SeverityLevel
	}{
		{"Extreme", SeverityExtreme},
		{"EXTREME", SeverityExtreme},
		{"severe", SeveritySevere},
		{"Moderate", SeverityModerate},
		{"Minor", SeverityMinor},
		{"", SeverityUnknown},
		{"bogus", SeverityUnknown},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, ParseSeverity(tc.input), "input %q", tc.input)
	}
}

func TestParseUrgency(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input    string
		expected UrgencyLevel
	}{
		{"Immediate", UrgencyImmediate},
		{"expected", UrgencyExpected},
		{"Future", UrgencyFuture},
		{"Past", UrgencyPast},
		{"", UrgencyUnknown},
		{"whenever", UrgencyUnknown},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, ParseUrgency(tc.input), "input %q", tc.input)
	}
}

func TestDeterminePrecedence(t *testing.T) {
	t.Parallel()

	sets := DefaultPrecedenceSets()

	testCases := []struct {
		name        string
		eventCode   string
		scope       string
		messageType string
		expected    PrecedenceLevel
	}{
		{"presidential", "EAN", "Public", "Alert", PrecedencePresidential},
		{"presidential any scope", "EAN", "", "", PrecedencePresidential},
		{"nationwide test", "NPT", "Public", "Alert", PrecedenceNationwideTest},
		{"required monthly test", "RMT", "Public", "Alert", PrecedenceTest},
		{"required weekly test", "RWT", "Public", "Alert", PrecedenceTest},
		{"test message type", "TOR", "Public", "Test", PrecedenceTest},
		{"public local", "TOR", "Public", "Alert", PrecedenceLocal},
		{"public state", "SPW", "Public", "Alert", PrecedenceState},
		{"public national", "NIC", "Public", "Alert", PrecedenceNational},
		{"restricted scope", "TOR", "Restricted", "Alert", PrecedenceUnknown},
		{"no event code", "", "Public", "Alert", PrecedenceUnknown},
		{"lowercase code", "ean", "Public", "Alert", PrecedencePresidential},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc := tc
			t.Parallel()
			got := DeterminePrecedence(tc.eventCode, tc.scope, tc.messageType, sets)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestNewPrecedenceSetsOverrides(t *testing.T) {
	t.Parallel()

	sets := NewPrecedenceSets([]string{"abc"}, nil)
	assert.True(t, sets.State["ABC"])
	assert.False(t, sets.State["SPW"], "override replaces the default state set")
	assert.True(t, sets.National["NIC"], "empty override keeps the default national set")
}
