// ABOUTME: Tests for alert creation idempotency, the status state machine, and statistics.
// ABOUTME: Uses fixed clocks and the in-memory store.

package alerts

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vigilsec/vulnengine/internal/ext"
	"github.com/vigilsec/vulnengine/internal/types"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager() *Manager {
	return NewManager(NewMemoryStore(), ext.NewFixedClock(testNow), ext.NewSimpleIDGenerator(), logrus.New())
}

func testRecord() types.VulnerabilityRecord {
	return types.VulnerabilityRecord{
		ID:            "CVE-2026-1234",
		Title:         "Remote code execution in examplelib",
		Severity:      types.SeverityCritical,
		PublishedDate: testNow.Add(-72 * time.Hour),
		IsKEV:         true,
		EPSSScore:     0.92,
		AffectedProducts: []types.AffectedProduct{
			{Product: "examplelib", VersionEndExcluding: "2.0.0"},
		},
	}
}

func testPackages() []types.TrackedPackage {
	return []types.TrackedPackage{
		{TenantID: "t1", SourceID: "sbom-1", ComponentName: "examplelib", ComponentVersion: "1.4.0", PURL: "pkg:generic/examplelib@1.4.0"},
		{TenantID: "t1", SourceID: "sbom-2", ComponentName: "examplelib", ComponentVersion: "1.4.0"},
		{TenantID: "t1", SourceID: "sbom-2", ComponentName: "examplelib", ComponentVersion: "1.9.0"},
	}
}

func TestEnsureAlertIdempotent(t *testing.T) {
	m := newTestManager()
	record := testRecord()

	first, created, err := m.EnsureAlert("t1", record, testPackages())
	if err != nil {
		t.Fatalf("EnsureAlert failed: %v", err)
	}
	if !created {
		t.Fatal("expected first EnsureAlert to create")
	}

	// Same record matched again in a later sweep: exactly one alert exists.
	second, created, err := m.EnsureAlert("t1", record, testPackages())
	if err != nil {
		t.Fatalf("EnsureAlert failed: %v", err)
	}
	if created {
		t.Error("re-matching must not create a duplicate alert")
	}
	if second.ID != first.ID {
		t.Errorf("expected the existing alert back, got %s vs %s", second.ID, first.ID)
	}

	if _, total, _ := m.List("t1", ListFilter{}); total != 1 {
		t.Errorf("expected exactly 1 alert, have %d", total)
	}
}

func TestEnsureAlertNoMatchesNoAlert(t *testing.T) {
	m := newTestManager()

	alert, created, err := m.EnsureAlert("t1", testRecord(), nil)
	if err != nil {
		t.Fatalf("EnsureAlert failed: %v", err)
	}
	if created || alert != nil {
		t.Error("no matched packages must not produce an alert")
	}
}

func TestEnsureAlertDedupsAffectedPackages(t *testing.T) {
	m := newTestManager()

	alert, _, err := m.EnsureAlert("t1", testRecord(), testPackages())
	if err != nil {
		t.Fatalf("EnsureAlert failed: %v", err)
	}

	if len(alert.AffectedPackages) != 2 {
		t.Fatalf("expected 2 deduplicated packages, got %d", len(alert.AffectedPackages))
	}

	first := alert.AffectedPackages[0]
	if first.Name != "examplelib" || first.Version != "1.4.0" {
		t.Errorf("unexpected first package: %+v", first)
	}
	if len(first.SourceIDs) != 2 {
		t.Errorf("expected source IDs accumulated, got %v", first.SourceIDs)
	}
	if first.PURL != "pkg:generic/examplelib@1.4.0" {
		t.Errorf("expected PURL kept from first occurrence, got %s", first.PURL)
	}
}

func TestZeroDayWindow(t *testing.T) {
	m := newTestManager()

	recent := testRecord()
	recent.ID = "CVE-2026-0001"
	recent.PublishedDate = testNow.Add(-24 * time.Hour)

	alert, _, err := m.EnsureAlert("t1", recent, testPackages())
	if err != nil {
		t.Fatalf("EnsureAlert failed: %v", err)
	}
	if !alert.IsZeroDay {
		t.Error("record published 24h ago must be flagged zero-day")
	}

	old := testRecord()
	old.ID = "CVE-2026-0002"
	old.PublishedDate = testNow.Add(-49 * time.Hour)

	alert, _, err = m.EnsureAlert("t1", old, testPackages())
	if err != nil {
		t.Fatalf("EnsureAlert failed: %v", err)
	}
	if alert.IsZeroDay {
		t.Error("record published 49h ago must not be flagged zero-day")
	}
}

func TestStatusTransitions(t *testing.T) {
	t.Run("open acknowledged resolved stamps both timestamps", func(t *testing.T) {
		m := newTestManager()
		m.EnsureAlert("t1", testRecord(), testPackages())

		alert, err := m.Acknowledge("t1", "CVE-2026-1234")
		if err != nil {
			t.Fatalf("Acknowledge failed: %v", err)
		}
		if alert.Status != types.AlertStatusAcknowledged || alert.AcknowledgedAt == nil {
			t.Errorf("acknowledge did not stamp: %+v", alert)
		}

		alert, err = m.Resolve("t1", "CVE-2026-1234")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if alert.Status != types.AlertStatusResolved {
			t.Errorf("status = %s", alert.Status)
		}
		if alert.AcknowledgedAt == nil || alert.ResolvedAt == nil {
			t.Error("both acknowledgedAt and resolvedAt must be stamped")
		}
	})

	t.Run("open resolved directly stamps only resolvedAt", func(t *testing.T) {
		m := newTestManager()
		m.EnsureAlert("t1", testRecord(), testPackages())

		alert, err := m.Resolve("t1", "CVE-2026-1234")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if alert.AcknowledgedAt != nil {
			t.Error("direct resolve must not stamp acknowledgedAt")
		}
		if alert.ResolvedAt == nil {
			t.Error("resolvedAt must be stamped")
		}
	})

	t.Run("resolved is terminal", func(t *testing.T) {
		m := newTestManager()
		m.EnsureAlert("t1", testRecord(), testPackages())
		m.Resolve("t1", "CVE-2026-1234")

		if _, err := m.Acknowledge("t1", "CVE-2026-1234"); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("suppressed is terminal", func(t *testing.T) {
		m := newTestManager()
		m.EnsureAlert("t1", testRecord(), testPackages())
		m.Suppress("t1", "CVE-2026-1234")

		if _, err := m.Resolve("t1", "CVE-2026-1234"); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("acknowledged cannot be suppressed", func(t *testing.T) {
		m := newTestManager()
		m.EnsureAlert("t1", testRecord(), testPackages())
		m.Acknowledge("t1", "CVE-2026-1234")

		if _, err := m.Suppress("t1", "CVE-2026-1234"); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("unknown alert", func(t *testing.T) {
		m := newTestManager()
		if _, err := m.Acknowledge("t1", "CVE-0000-0000"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStats(t *testing.T) {
	m := newTestManager()

	critical := testRecord() // KEV, critical, published 72h ago
	m.EnsureAlert("t1", critical, testPackages())

	zeroDay := testRecord()
	zeroDay.ID = "CVE-2026-2000"
	zeroDay.Severity = types.SeverityHigh
	zeroDay.IsKEV = false
	zeroDay.PublishedDate = testNow.Add(-1 * time.Hour)
	m.EnsureAlert("t1", zeroDay, testPackages())

	resolved := testRecord()
	resolved.ID = "CVE-2026-3000"
	resolved.Severity = types.SeverityMedium
	resolved.IsKEV = false
	m.EnsureAlert("t1", resolved, testPackages())
	m.Resolve("t1", "CVE-2026-3000")

	// Another tenant's alert must not leak into t1 stats.
	m.EnsureAlert("t2", critical, []types.TrackedPackage{
		{TenantID: "t2", SourceID: "sbom-9", ComponentName: "examplelib", ComponentVersion: "1.0.0"},
	})

	stats, err := m.Stats("t1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.Open != 2 {
		t.Errorf("Open = %d, want 2", stats.Open)
	}
	if stats.ZeroDay != 1 {
		t.Errorf("ZeroDay = %d, want 1", stats.ZeroDay)
	}
	if stats.KEV != 1 {
		t.Errorf("KEV = %d, want 1", stats.KEV)
	}
	if stats.SeverityCounts[types.SeverityCritical] != 1 || stats.SeverityCounts[types.SeverityHigh] != 1 {
		t.Errorf("unexpected histogram: %v", stats.SeverityCounts)
	}
	// 1*10 + 1*5 = 15
	if stats.RiskScore != 15 {
		t.Errorf("RiskScore = %d, want 15", stats.RiskScore)
	}
}

func TestListFiltering(t *testing.T) {
	m := newTestManager()

	m.EnsureAlert("t1", testRecord(), testPackages())

	high := testRecord()
	high.ID = "CVE-2026-2000"
	high.Severity = types.SeverityHigh
	high.IsKEV = false
	m.EnsureAlert("t1", high, testPackages())
	m.Acknowledge("t1", "CVE-2026-2000")

	open, total, err := m.List("t1", ListFilter{Statuses: []types.AlertStatus{types.AlertStatusOpen}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 1 || len(open) != 1 || open[0].VulnerabilityID != "CVE-2026-1234" {
		t.Errorf("status filter failed: total=%d %+v", total, open)
	}

	kev, total, err := m.List("t1", ListFilter{KEVOnly: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 1 || kev[0].VulnerabilityID != "CVE-2026-1234" {
		t.Errorf("KEV filter failed: total=%d", total)
	}

	paged, total, err := m.List("t1", ListFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 2 || len(paged) != 1 {
		t.Errorf("pagination failed: total=%d page=%d", total, len(paged))
	}
}
