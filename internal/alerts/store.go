// ABOUTME: Alert storage contract and the in-memory implementation.
// ABOUTME: Alerts are keyed by (tenant, vulnerability) and never hard-deleted.

package alerts

import (
	"errors"
	"sort"
	"sync"

	"github.com/vigilsec/vulnengine/internal/types"
)

var (
	ErrNotFound      = errors.New("alert not found")
	ErrAlreadyExists = errors.New("alert already exists")
)

// ListFilter narrows and paginates alert listings. Zero values mean "no
// constraint"; Limit 0 means unbounded.
type ListFilter struct {
	Statuses    []types.AlertStatus
	Severities  []types.Severity
	ZeroDayOnly bool
	KEVOnly     bool
	Limit       int
	Offset      int
}

// Store persists alerts. Implementations must be safe for concurrent use.
// There is deliberately no delete: removal is an administrative operation
// outside the engine.
type Store interface {
	Get(tenantID, vulnerabilityID string) (*types.Alert, error)
	Create(alert *types.Alert) error
	Update(alert *types.Alert) error
	// List returns the filtered page plus the total match count before
	// pagination, newest first.
	List(tenantID string, filter ListFilter) ([]types.Alert, int, error)
}

func matchesFilter(alert types.Alert, filter ListFilter) bool {
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if alert.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(filter.Severities) > 0 {
		found := false
		for _, severity := range filter.Severities {
			if alert.Severity == severity {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.ZeroDayOnly && !alert.IsZeroDay {
		return false
	}
	if filter.KEVOnly && !alert.IsKEV {
		return false
	}

	return true
}

// filterPage applies filter, ordering, and pagination to a tenant's alerts.
func filterPage(alerts []types.Alert, filter ListFilter) ([]types.Alert, int) {
	var matched []types.Alert
	for _, alert := range alerts {
		if matchesFilter(alert, filter) {
			matched = append(matched, alert)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].VulnerabilityID < matched[j].VulnerabilityID
	})

	total := len(matched)

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, total
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	return matched, total
}

// MemoryStore is the in-memory Store used in tests and mock mode.
type MemoryStore struct {
	mutex  sync.RWMutex
	alerts map[string]types.Alert
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{alerts: make(map[string]types.Alert)}
}

func alertKey(tenantID, vulnerabilityID string) string {
	return tenantID + "/" + vulnerabilityID
}

func (s *MemoryStore) Get(tenantID, vulnerabilityID string) (*types.Alert, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	alert, exists := s.alerts[alertKey(tenantID, vulnerabilityID)]
	if !exists {
		return nil, ErrNotFound
	}

	copied := alert
	return &copied, nil
}

func (s *MemoryStore) Create(alert *types.Alert) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := alertKey(alert.TenantID, alert.VulnerabilityID)
	if _, exists := s.alerts[key]; exists {
		return ErrAlreadyExists
	}

	s.alerts[key] = *alert
	return nil
}

func (s *MemoryStore) Update(alert *types.Alert) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := alertKey(alert.TenantID, alert.VulnerabilityID)
	if _, exists := s.alerts[key]; !exists {
		return ErrNotFound
	}

	s.alerts[key] = *alert
	return nil
}

func (s *MemoryStore) List(tenantID string, filter ListFilter) ([]types.Alert, int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var tenantAlerts []types.Alert
	for _, alert := range s.alerts {
		if alert.TenantID == tenantID {
			tenantAlerts = append(tenantAlerts, alert)
		}
	}

	page, total := filterPage(tenantAlerts, filter)
	return page, total, nil
}
