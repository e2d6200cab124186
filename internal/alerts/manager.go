// ABOUTME: Alert lifecycle manager: idempotent creation, status transitions, statistics.
// ABOUTME: One alert per (tenant, vulnerability); resolved and suppressed are terminal.

package alerts

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vigilsec/vulnengine/internal/ext"
	"github.com/vigilsec/vulnengine/internal/types"
)

// ErrInvalidTransition is returned for a status change the state machine
// does not allow.
var ErrInvalidTransition = errors.New("invalid alert status transition")

// ZeroDayWindow is how recently a record must have been published for an
// alert on it to be flagged zero-day. The flag is frozen at creation time.
const ZeroDayWindow = 48 * time.Hour

// TenantStats is the aggregate alert posture of one tenant, computed by a
// full scan of the tenant's alerts.
type TenantStats struct {
	Total          int                    `json:"total"`
	Open           int                    `json:"open"`
	ZeroDay        int                    `json:"zero_day"`
	KEV            int                    `json:"kev"`
	SeverityCounts map[types.Severity]int `json:"severity_counts"`
	RiskScore      int                    `json:"risk_score"`
}

// Manager owns alert creation and state transitions.
type Manager struct {
	store  Store
	clock  ext.Clock
	ids    ext.IDGenerator
	logger *logrus.Logger
}

func NewManager(store Store, clock ext.Clock, ids ext.IDGenerator, logger *logrus.Logger) *Manager {
	return &Manager{
		store:  store,
		clock:  clock,
		ids:    ids,
		logger: logger,
	}
}

// EnsureAlert creates an alert for the (tenant, record) pair unless one
// already exists. Re-matching the same vulnerability in later sweeps never
// creates a duplicate. Returns the alert and whether it was created now.
func (m *Manager) EnsureAlert(tenantID string, record types.VulnerabilityRecord, matched []types.TrackedPackage) (*types.Alert, bool, error) {
	if len(matched) == 0 {
		return nil, false, nil
	}

	existing, err := m.store.Get(tenantID, record.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("failed to look up alert for %s/%s: %w", tenantID, record.ID, err)
	}

	now := m.clock.Now()

	title := record.Title
	if title == "" {
		title = record.ID
	}

	alert := &types.Alert{
		ID:               m.ids.GenerateID(),
		TenantID:         tenantID,
		VulnerabilityID:  record.ID,
		Title:            title,
		Severity:         types.ParseSeverity(string(record.Severity)),
		IsZeroDay:        now.Sub(record.PublishedDate) <= ZeroDayWindow,
		IsKEV:            record.IsKEV,
		EPSSScore:        record.EPSSScore,
		AffectedPackages: dedupPackages(matched),
		Status:           types.AlertStatusOpen,
		CreatedAt:        now,
	}

	if err := m.store.Create(alert); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			// Lost a create race; the winner's alert is the alert.
			if existing, getErr := m.store.Get(tenantID, record.ID); getErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to create alert for %s/%s: %w", tenantID, record.ID, err)
	}

	m.logger.WithFields(logrus.Fields{
		"tenant":            tenantID,
		"vulnerability":     record.ID,
		"severity":          alert.Severity,
		"zero_day":          alert.IsZeroDay,
		"kev":               alert.IsKEV,
		"affected_packages": len(alert.AffectedPackages),
	}).Info("Created alert")

	return alert, true, nil
}

// Acknowledge moves an open alert to acknowledged and stamps the time.
func (m *Manager) Acknowledge(tenantID, vulnerabilityID string) (*types.Alert, error) {
	return m.UpdateStatus(tenantID, vulnerabilityID, types.AlertStatusAcknowledged)
}

// Resolve moves an open or acknowledged alert to resolved and stamps the time.
func (m *Manager) Resolve(tenantID, vulnerabilityID string) (*types.Alert, error) {
	return m.UpdateStatus(tenantID, vulnerabilityID, types.AlertStatusResolved)
}

// Suppress moves an open alert to suppressed.
func (m *Manager) Suppress(tenantID, vulnerabilityID string) (*types.Alert, error) {
	return m.UpdateStatus(tenantID, vulnerabilityID, types.AlertStatusSuppressed)
}

// UpdateStatus applies one state-machine transition.
func (m *Manager) UpdateStatus(tenantID, vulnerabilityID string, target types.AlertStatus) (*types.Alert, error) {
	alert, err := m.store.Get(tenantID, vulnerabilityID)
	if err != nil {
		return nil, err
	}

	if !canTransition(alert.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, alert.Status, target)
	}

	now := m.clock.Now()
	alert.Status = target
	switch target {
	case types.AlertStatusAcknowledged:
		alert.AcknowledgedAt = &now
	case types.AlertStatusResolved:
		alert.ResolvedAt = &now
	}

	if err := m.store.Update(alert); err != nil {
		return nil, fmt.Errorf("failed to update alert %s/%s: %w", tenantID, vulnerabilityID, err)
	}

	m.logger.WithFields(logrus.Fields{
		"tenant":        tenantID,
		"vulnerability": vulnerabilityID,
		"status":        target,
	}).Info("Alert status updated")

	return alert, nil
}

// List returns a filtered, paginated page of a tenant's alerts plus the
// total match count.
func (m *Manager) List(tenantID string, filter ListFilter) ([]types.Alert, int, error) {
	return m.store.List(tenantID, filter)
}

// Stats scans all of a tenant's alerts. Alert volume per tenant is bounded,
// so the full scan stays cheap; the histogram and risk score cover open
// alerts only, since those represent current exposure.
func (m *Manager) Stats(tenantID string) (*TenantStats, error) {
	all, _, err := m.store.List(tenantID, ListFilter{})
	if err != nil {
		return nil, err
	}

	stats := &TenantStats{
		Total: len(all),
		SeverityCounts: map[types.Severity]int{
			types.SeverityCritical: 0,
			types.SeverityHigh:     0,
			types.SeverityMedium:   0,
			types.SeverityLow:      0,
			types.SeverityUnknown:  0,
		},
	}

	for _, alert := range all {
		if alert.Status != types.AlertStatusOpen {
			continue
		}
		stats.Open++
		if alert.IsZeroDay {
			stats.ZeroDay++
		}
		if alert.IsKEV {
			stats.KEV++
		}
		stats.SeverityCounts[alert.Severity]++
	}

	stats.RiskScore = types.RiskScore(stats.SeverityCounts)
	return stats, nil
}

// canTransition encodes the state machine: open fans out to acknowledged,
// resolved, or suppressed; acknowledged may only resolve; resolved and
// suppressed are terminal.
func canTransition(from, to types.AlertStatus) bool {
	switch from {
	case types.AlertStatusOpen:
		return to == types.AlertStatusAcknowledged || to == types.AlertStatusResolved || to == types.AlertStatusSuppressed
	case types.AlertStatusAcknowledged:
		return to == types.AlertStatusResolved
	default:
		return false
	}
}

// dedupPackages collapses matched packages to unique (name, version) pairs,
// accumulating the inventory sources each pair was seen in.
func dedupPackages(matched []types.TrackedPackage) []types.AffectedPackage {
	index := make(map[string]int)
	var packages []types.AffectedPackage

	for _, pkg := range matched {
		key := pkg.ComponentName + "|" + pkg.ComponentVersion

		if i, exists := index[key]; exists {
			if !containsString(packages[i].SourceIDs, pkg.SourceID) {
				packages[i].SourceIDs = append(packages[i].SourceIDs, pkg.SourceID)
			}
			if packages[i].PURL == "" {
				packages[i].PURL = pkg.PURL
			}
			continue
		}

		index[key] = len(packages)
		entry := types.AffectedPackage{
			Name:    pkg.ComponentName,
			Version: pkg.ComponentVersion,
			PURL:    pkg.PURL,
		}
		if pkg.SourceID != "" {
			entry.SourceIDs = []string{pkg.SourceID}
		}
		packages = append(packages, entry)
	}

	return packages
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
