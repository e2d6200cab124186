// ABOUTME: Read-only boundary to the vulnerability knowledge base and package inventory.
// ABOUTME: Interface plus the in-memory implementation used by tests and mock mode.

package kb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vigilsec/vulnengine/internal/types"
)

// KnowledgeBase is the engine's read interface to the externally owned
// vulnerability record store and tracked-package inventory. The ingestion
// pipelines (CVE/KEV/EPSS sync, SBOM intake) own the data; the engine only
// queries it.
type KnowledgeBase interface {
	// RecentRecords returns vulnerability records published at or after since.
	RecentRecords(ctx context.Context, since time.Time) ([]types.VulnerabilityRecord, error)
	// Tenants enumerates tenants that have tracked packages.
	Tenants(ctx context.Context) ([]string, error)
	// TrackedPackages returns a tenant's tracked inventory components.
	TrackedPackages(ctx context.Context, tenantID string) ([]types.TrackedPackage, error)
}

// MemoryKnowledgeBase is an in-memory KnowledgeBase.
type MemoryKnowledgeBase struct {
	mutex    sync.RWMutex
	records  []types.VulnerabilityRecord
	packages map[string][]types.TrackedPackage
}

func NewMemoryKnowledgeBase() *MemoryKnowledgeBase {
	return &MemoryKnowledgeBase{
		packages: make(map[string][]types.TrackedPackage),
	}
}

// AddRecord registers a vulnerability record.
func (m *MemoryKnowledgeBase) AddRecord(record types.VulnerabilityRecord) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.records = append(m.records, record)
}

// AddPackage registers a tracked package under its tenant.
func (m *MemoryKnowledgeBase) AddPackage(pkg types.TrackedPackage) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.packages[pkg.TenantID] = append(m.packages[pkg.TenantID], pkg)
}

func (m *MemoryKnowledgeBase) RecentRecords(ctx context.Context, since time.Time) ([]types.VulnerabilityRecord, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var recent []types.VulnerabilityRecord
	for _, record := range m.records {
		if !record.PublishedDate.Before(since) {
			recent = append(recent, record)
		}
	}
	return recent, nil
}

func (m *MemoryKnowledgeBase) Tenants(ctx context.Context) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	tenants := make([]string, 0, len(m.packages))
	for tenant := range m.packages {
		tenants = append(tenants, tenant)
	}
	sort.Strings(tenants)
	return tenants, nil
}

func (m *MemoryKnowledgeBase) TrackedPackages(ctx context.Context, tenantID string) ([]types.TrackedPackage, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	packages := make([]types.TrackedPackage, len(m.packages[tenantID]))
	copy(packages, m.packages[tenantID])
	return packages, nil
}
