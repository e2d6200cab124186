// ABOUTME: Unit tests for the alert query and lifecycle endpoints.
// ABOUTME: Tests parameter validation, filtering, and status transition responses.

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vigilsec/vulnengine/internal/alerts"
	"github.com/vigilsec/vulnengine/internal/ext"
	"github.com/vigilsec/vulnengine/internal/types"
)

var serverNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

func seededAlertManager(t *testing.T) *alerts.Manager {
	t.Helper()

	manager := alerts.NewManager(alerts.NewMemoryStore(), ext.NewFixedClock(serverNow), ext.NewSimpleIDGenerator(), testLogger())

	records := []types.VulnerabilityRecord{
		{
			ID:            "CVE-2026-0001",
			Severity:      types.SeverityCritical,
			PublishedDate: serverNow.Add(-12 * time.Hour), // zero-day window
			IsKEV:         true,
			AffectedProducts: []types.AffectedProduct{
				{Product: "liba", VersionEndExcluding: "2.0.0"},
			},
		},
		{
			ID:            "CVE-2026-0002",
			Severity:      types.SeverityLow,
			PublishedDate: serverNow.Add(-30 * 24 * time.Hour),
			AffectedProducts: []types.AffectedProduct{
				{Product: "libb", VersionEndExcluding: "9.0.0"},
			},
		},
	}

	for i, record := range records {
		pkg := types.TrackedPackage{
			TenantID:         "acme",
			SourceID:         "sbom-1",
			ComponentName:    record.AffectedProducts[0].Product,
			ComponentVersion: "1.0.0",
		}
		if _, _, err := manager.EnsureAlert("acme", record, []types.TrackedPackage{pkg}); err != nil {
			t.Fatalf("seeding alert %d: %v", i, err)
		}
	}

	return manager
}

func TestAlertListEndpoint(t *testing.T) {
	handler := NewAlertsHandler(seededAlertManager(t), testLogger())

	tests := []struct {
		name         string
		queryParams  string
		expectedCode int
		checkFunc    func(*testing.T, *AlertListResponse)
	}{
		{
			name:         "missing tenant",
			queryParams:  "",
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "all alerts for tenant",
			queryParams:  "?tenant=acme",
			expectedCode: http.StatusOK,
			checkFunc: func(t *testing.T, resp *AlertListResponse) {
				if resp.Total != 2 {
					t.Errorf("Expected 2 alerts, got %d", resp.Total)
				}
			},
		},
		{
			name:         "severity filter",
			queryParams:  "?tenant=acme&severity=CRITICAL",
			expectedCode: http.StatusOK,
			checkFunc: func(t *testing.T, resp *AlertListResponse) {
				if resp.Total != 1 {
					t.Errorf("Expected 1 critical alert, got %d", resp.Total)
				}
				if len(resp.Alerts) == 1 && resp.Alerts[0].VulnerabilityID != "CVE-2026-0001" {
					t.Errorf("Unexpected alert: %s", resp.Alerts[0].VulnerabilityID)
				}
			},
		},
		{
			name:         "zero day filter",
			queryParams:  "?tenant=acme&zero_day=true",
			expectedCode: http.StatusOK,
			checkFunc: func(t *testing.T, resp *AlertListResponse) {
				if resp.Total != 1 {
					t.Errorf("Expected 1 zero-day alert, got %d", resp.Total)
				}
			},
		},
		{
			name:         "kev filter",
			queryParams:  "?tenant=acme&kev=true",
			expectedCode: http.StatusOK,
			checkFunc: func(t *testing.T, resp *AlertListResponse) {
				if resp.Total != 1 {
					t.Errorf("Expected 1 KEV alert, got %d", resp.Total)
				}
			},
		},
		{
			name:         "pagination",
			queryParams:  "?tenant=acme&limit=1&offset=1",
			expectedCode: http.StatusOK,
			checkFunc: func(t *testing.T, resp *AlertListResponse) {
				if resp.Total != 2 {
					t.Errorf("Total must report the unpaginated count, got %d", resp.Total)
				}
				if len(resp.Alerts) != 1 {
					t.Errorf("Expected 1 alert in page, got %d", len(resp.Alerts))
				}
			},
		},
		{
			name:         "unknown tenant returns empty list",
			queryParams:  "?tenant=nobody",
			expectedCode: http.StatusOK,
			checkFunc: func(t *testing.T, resp *AlertListResponse) {
				if resp.Total != 0 || resp.Alerts == nil {
					t.Errorf("Expected empty but non-nil alert list, got %+v", resp)
				}
			},
		},
		{
			name:         "invalid severity",
			queryParams:  "?tenant=acme&severity=SEVERE",
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "invalid status",
			queryParams:  "?tenant=acme&status=closed",
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "invalid limit",
			queryParams:  "?tenant=acme&limit=-1",
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/alerts"+tt.queryParams, nil)
			rr := httptest.NewRecorder()
			handler.List(rr, req)

			if rr.Code != tt.expectedCode {
				t.Fatalf("Expected status code %d, got %d: %s", tt.expectedCode, rr.Code, rr.Body.String())
			}

			if tt.checkFunc != nil {
				var response AlertListResponse
				if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
					t.Fatalf("Failed to unmarshal response: %v", err)
				}
				tt.checkFunc(t, &response)
			}
		})
	}
}

func TestAlertStatsEndpoint(t *testing.T) {
	handler := NewAlertsHandler(seededAlertManager(t), testLogger())

	req := httptest.NewRequest("GET", "/alerts/stats?tenant=acme", nil)
	rr := httptest.NewRecorder()
	handler.Stats(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var stats alerts.TenantStats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("Expected 2 total alerts, got %d", stats.Total)
	}
	if stats.Open != 2 {
		t.Errorf("Expected 2 open alerts, got %d", stats.Open)
	}
	if stats.ZeroDay != 1 {
		t.Errorf("Expected 1 zero-day alert, got %d", stats.ZeroDay)
	}
	if stats.KEV != 1 {
		t.Errorf("Expected 1 KEV alert, got %d", stats.KEV)
	}

	rr = httptest.NewRecorder()
	handler.Stats(rr, httptest.NewRequest("GET", "/alerts/stats", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without tenant, got %d", rr.Code)
	}
}

func TestAlertStatusEndpoint(t *testing.T) {
	handler := NewAlertsHandler(seededAlertManager(t), testLogger())

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/alerts/status", strings.NewReader(body))
		rr := httptest.NewRecorder()
		handler.UpdateStatus(rr, req)
		return rr
	}

	rr := post(`{"tenant":"acme","vulnerability_id":"CVE-2026-0001","status":"acknowledged"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var alert types.Alert
	if err := json.Unmarshal(rr.Body.Bytes(), &alert); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if alert.Status != types.AlertStatusAcknowledged {
		t.Errorf("Expected acknowledged, got %s", alert.Status)
	}
	if alert.AcknowledgedAt == nil {
		t.Error("Expected acknowledgement timestamp")
	}

	// Acknowledged alerts cannot be suppressed.
	rr = post(`{"tenant":"acme","vulnerability_id":"CVE-2026-0001","status":"suppressed"}`)
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 for invalid transition, got %d", rr.Code)
	}

	rr = post(`{"tenant":"acme","vulnerability_id":"CVE-9999-0000","status":"resolved"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown alert, got %d", rr.Code)
	}

	rr = post(`{"tenant":"acme","vulnerability_id":"CVE-2026-0002","status":"open"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid target status, got %d", rr.Code)
	}

	rr = post(`{"tenant":"acme"`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON, got %d", rr.Code)
	}

	rr = post(`{"status":"resolved"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing fields, got %d", rr.Code)
	}
}
