// ABOUTME: Seeded knowledge base for mock mode, no external services required.
// ABOUTME: Provides realistic records and inventories covering KEV and zero-day cases.

package kb

import (
	"time"

	"github.com/vigilsec/vulnengine/internal/ext"
	"github.com/vigilsec/vulnengine/internal/types"
)

// NewMockKnowledgeBase returns a memory knowledge base pre-seeded with
// sample records and two tenant inventories for local testing.
func NewMockKnowledgeBase(clock ext.Clock) *MemoryKnowledgeBase {
	m := NewMemoryKnowledgeBase()
	now := clock.Now()

	m.AddRecord(types.VulnerabilityRecord{
		ID:            "CVE-2021-44228",
		Title:         "Apache Log4j2 JNDI remote code execution",
		Description:   "JNDI features used in configuration do not protect against attacker controlled LDAP endpoints.",
		Severity:      types.SeverityCritical,
		PublishedDate: now.Add(-90 * 24 * time.Hour),
		IsKEV:         true,
		EPSSScore:     0.97,
		AffectedProducts: []types.AffectedProduct{
			{Product: "log4j", VersionStartIncluding: "2.0.0", VersionEndExcluding: "2.15.0"},
		},
	})

	m.AddRecord(types.VulnerabilityRecord{
		ID:            "CVE-2026-10001",
		Title:         "Heap overflow in libwebp decoding",
		Severity:      types.SeverityHigh,
		PublishedDate: now.Add(-12 * time.Hour), // inside the zero-day window
		EPSSScore:     0.31,
		AffectedProducts: []types.AffectedProduct{
			{Product: "libwebp", VersionEndExcluding: "1.3.2"},
		},
	})

	m.AddRecord(types.VulnerabilityRecord{
		ID:            "CVE-2026-10002",
		Title:         "Denial of service in zlib inflate",
		Severity:      types.SeverityMedium,
		PublishedDate: now.Add(-30 * 24 * time.Hour),
		EPSSScore:     0.04,
		AffectedProducts: []types.AffectedProduct{
			{Product: "zlib", VersionStartIncluding: "1.2.0", VersionEndExcluding: "1.2.13"},
		},
	})

	for _, pkg := range []types.TrackedPackage{
		{TenantID: "acme", SourceID: "sbom-payments", ComponentName: "log4j-core", ComponentVersion: "2.14.1", PURL: "pkg:maven/org.apache.logging.log4j/log4j-core@2.14.1"},
		{TenantID: "acme", SourceID: "sbom-payments", ComponentName: "zlib", ComponentVersion: "1.2.11", PURL: "pkg:generic/zlib@1.2.11"},
		{TenantID: "acme", SourceID: "image-frontend", ComponentName: "libwebp", ComponentVersion: "1.2.4", PURL: "pkg:generic/libwebp@1.2.4"},
		{TenantID: "globex", SourceID: "sbom-api", ComponentName: "log4j-core", ComponentVersion: "2.17.1", PURL: "pkg:maven/org.apache.logging.log4j/log4j-core@2.17.1"},
		{TenantID: "globex", SourceID: "sbom-api", ComponentName: "libwebp", ComponentVersion: "1.1.0", PURL: "pkg:generic/libwebp@1.1.0"},
	} {
		m.AddPackage(pkg)
	}

	return m
}
