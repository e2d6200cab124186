// ABOUTME: Tests for shared severity parsing and risk scoring helpers.
// ABOUTME: Covers score bounds, monotonicity, and severity normalization.

package types

import "testing"

func findings(critical, high, medium, low int) []Vulnerability {
	var vulns []Vulnerability
	add := func(n int, severity Severity) {
		for i := 0; i < n; i++ {
			vulns = append(vulns, Vulnerability{CVEID: "CVE-0000-0000", Severity: severity})
		}
	}
	add(critical, SeverityCritical)
	add(high, SeverityHigh)
	add(medium, SeverityMedium)
	add(low, SeverityLow)
	return vulns
}

func TestRiskScore(t *testing.T) {
	tests := []struct {
		name     string
		summary  map[Severity]int
		expected int
	}{
		{"no findings", map[Severity]int{}, 0},
		{"single critical", map[Severity]int{SeverityCritical: 1}, 10},
		{"mixed severities", map[Severity]int{SeverityCritical: 1, SeverityHigh: 2, SeverityMedium: 3, SeverityLow: 1}, 27}, // 10+10+6+0.5 rounds to 27
		{"clamped at 100", map[Severity]int{SeverityCritical: 50}, 100},
		{"unknown ignored", map[Severity]int{SeverityUnknown: 40}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RiskScore(tt.summary); got != tt.expected {
				t.Errorf("RiskScore() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestRiskScoreMonotonic(t *testing.T) {
	base := SummarizeSeverities(findings(1, 1, 1, 1))
	more := SummarizeSeverities(findings(2, 1, 1, 1))

	if RiskScore(more) < RiskScore(base) {
		t.Errorf("Adding a finding lowered the score: %d -> %d", RiskScore(base), RiskScore(more))
	}
}

func TestSummarizeSeverities(t *testing.T) {
	summary := SummarizeSeverities(findings(2, 3, 1, 0))

	if summary[SeverityCritical] != 2 {
		t.Errorf("CRITICAL = %d, want 2", summary[SeverityCritical])
	}
	if summary[SeverityHigh] != 3 {
		t.Errorf("HIGH = %d, want 3", summary[SeverityHigh])
	}
	if summary[SeverityLow] != 0 {
		t.Errorf("LOW = %d, want 0", summary[SeverityLow])
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		input    string
		expected Severity
	}{
		{"CRITICAL", SeverityCritical},
		{"critical", SeverityCritical},
		{"High", SeverityHigh},
		{"", SeverityUnknown},
		{"bogus", SeverityUnknown},
	}

	for _, tt := range tests {
		if got := ParseSeverity(tt.input); got != tt.expected {
			t.Errorf("ParseSeverity(%q) = %s, want %s", tt.input, got, tt.expected)
		}
	}
}
