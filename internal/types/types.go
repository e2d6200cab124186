// ABOUTME: Core domain types shared across the vulnerability engine.
// ABOUTME: Defines image references, manifests, vulnerability records, tracked packages, and alerts.

package types

import (
	"math"
	"strings"
	"time"
)

// Severity levels as reported by scanners and the knowledge base
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityUnknown  Severity = "UNKNOWN"
)

// Severities lists all known severity levels in descending order of impact.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityUnknown}

// ParseSeverity maps a free-form severity string to a known Severity level.
func ParseSeverity(s string) Severity {
	normalized := Severity(strings.ToUpper(s))
	switch normalized {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return normalized
	default:
		return SeverityUnknown
	}
}

// ImageReference is the structured form of a container image reference.
// FullName is always reconstructible as registry/repository:tag. When Digest
// is set it takes precedence over Tag for content fetches.
type ImageReference struct {
	Registry   string `json:"registry"`
	Repository string `json:"repository"`
	Tag        string `json:"tag"`
	Digest     string `json:"digest,omitempty"`
	FullName   string `json:"full_name"`
}

// CredentialType identifies which registry auth flow applies
type CredentialType string

const (
	CredentialDockerHub CredentialType = "docker_hub"
	CredentialGCR       CredentialType = "gcr"
	CredentialECR       CredentialType = "ecr"
	CredentialACR       CredentialType = "acr"
	CredentialGHCR      CredentialType = "ghcr"
	CredentialCustom    CredentialType = "custom"
)

// RegistryCredentials are supplied per request and never persisted by the engine.
type RegistryCredentials struct {
	Type     CredentialType `json:"type"`
	Registry string         `json:"registry"`
	Username string         `json:"username,omitempty"`
	Password string         `json:"password,omitempty"`
	Token    string         `json:"token,omitempty"`
}

// Descriptor points at a content-addressable blob in a registry.
type Descriptor struct {
	MediaType string `json:"mediaType"`
	Size      int64  `json:"size"`
	Digest    string `json:"digest"`
}

// Manifest is a registry image manifest (Docker v2 or OCI v1).
type Manifest struct {
	SchemaVersion int          `json:"schemaVersion"`
	MediaType     string       `json:"mediaType"`
	Config        Descriptor   `json:"config"`
	Layers        []Descriptor `json:"layers"`

	// Raw holds the manifest bytes exactly as served by the registry.
	// Digest verification hashes these bytes, not a re-serialization.
	Raw []byte `json:"-"`
}

// HistoryEntry is one build step recorded in an image config.
type HistoryEntry struct {
	Created    string `json:"created,omitempty"`
	CreatedBy  string `json:"created_by,omitempty"`
	EmptyLayer bool   `json:"empty_layer,omitempty"`
}

// RootFS describes the layer diff IDs of an image config.
type RootFS struct {
	Type    string   `json:"type"`
	DiffIDs []string `json:"diff_ids"`
}

// ImageConfig is the image-config blob referenced by a manifest.
type ImageConfig struct {
	Architecture string         `json:"architecture"`
	OS           string         `json:"os"`
	Created      string         `json:"created,omitempty"`
	History      []HistoryEntry `json:"history,omitempty"`
	RootFS       RootFS         `json:"rootfs"`
	Config       struct {
		Labels map[string]string `json:"Labels,omitempty"`
	} `json:"config"`
}

// ImageInfo aggregates everything the analyzer derives about an image.
type ImageInfo struct {
	Reference    ImageReference    `json:"reference"`
	Manifest     *Manifest         `json:"manifest"`
	Config       *ImageConfig      `json:"config"`
	TotalSize    int64             `json:"total_size"`
	LayerCount   int               `json:"layer_count"`
	BaseImage    string            `json:"base_image,omitempty"`
	Architecture string            `json:"architecture"`
	OS           string            `json:"os"`
	Created      time.Time         `json:"created"`
	Labels       map[string]string `json:"labels,omitempty"`
}

// Vulnerability is a single finding against a package in an image.
type Vulnerability struct {
	CVEID            string   `json:"cve_id"`
	Severity         Severity `json:"severity"`
	Package          string   `json:"package"`
	InstalledVersion string   `json:"installed_version"`
	FixedVersion     string   `json:"fixed_version,omitempty"`
	Title            string   `json:"title"`
	Description      string   `json:"description,omitempty"`
	References       []string `json:"references,omitempty"`
}

// VulnerabilityScanResult is the outcome of scanning one image.
type VulnerabilityScanResult struct {
	Image           string           `json:"image"`
	ScannedAt       time.Time        `json:"scanned_at"`
	Vulnerabilities []Vulnerability  `json:"vulnerabilities"`
	Summary         map[Severity]int `json:"summary"`
	RiskScore       int              `json:"risk_score"`
}

// TrackedPackage is one component from an ingested software inventory.
// Read-only to this engine; ingestion owns the records.
type TrackedPackage struct {
	TenantID         string `json:"tenant_id"`
	SourceID         string `json:"source_id"` // SBOM or image that contributed it
	ComponentName    string `json:"component_name"`
	ComponentVersion string `json:"component_version"`
	PURL             string `json:"purl,omitempty"`
}

// AffectedProduct is one product/version-range entry on a knowledge-base record.
type AffectedProduct struct {
	Product               string `json:"product"`
	VersionStartIncluding string `json:"version_start_including,omitempty"`
	VersionEndExcluding   string `json:"version_end_excluding,omitempty"`
}

// VulnerabilityRecord is a knowledge-base entry, consumed read-only.
type VulnerabilityRecord struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	AffectedProducts []AffectedProduct `json:"affected_products"`
	PublishedDate    time.Time         `json:"published_date"`
	Severity         Severity          `json:"severity"`
	IsKEV            bool              `json:"is_kev"`
	EPSSScore        float64           `json:"epss_score"`
}

// AlertStatus is the lifecycle state of an alert
type AlertStatus string

const (
	AlertStatusOpen         AlertStatus = "open"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusSuppressed   AlertStatus = "suppressed"
)

// AffectedPackage is one deduplicated (name, version) pair on an alert,
// accumulating the inventory sources it was seen in.
type AffectedPackage struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	PURL      string   `json:"purl,omitempty"`
	SourceIDs []string `json:"source_ids"`
}

// Alert is the stateful, deduplicated outcome of matching a vulnerability
// record against a tenant's tracked packages. Exactly one alert exists per
// (tenant, vulnerability) pair; it is only ever mutated through status
// transitions and is never hard-deleted by the engine.
type Alert struct {
	ID               string            `json:"id"`
	TenantID         string            `json:"tenant_id"`
	VulnerabilityID  string            `json:"vulnerability_id"`
	Title            string            `json:"title"`
	Severity         Severity          `json:"severity"`
	IsZeroDay        bool              `json:"is_zero_day"`
	IsKEV            bool              `json:"is_kev"`
	EPSSScore        float64           `json:"epss_score"`
	AffectedPackages []AffectedPackage `json:"affected_packages"`
	Status           AlertStatus       `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	AcknowledgedAt   *time.Time        `json:"acknowledged_at,omitempty"`
	ResolvedAt       *time.Time        `json:"resolved_at,omitempty"`
}

// SummarizeSeverities counts vulnerabilities per severity level.
func SummarizeSeverities(vulns []Vulnerability) map[Severity]int {
	summary := map[Severity]int{
		SeverityCritical: 0,
		SeverityHigh:     0,
		SeverityMedium:   0,
		SeverityLow:      0,
		SeverityUnknown:  0,
	}
	for _, v := range vulns {
		summary[ParseSeverity(string(v.Severity))]++
	}
	return summary
}

// RiskScore folds a severity summary into a 0-100 score. The same weighting
// is used for image scan results and tenant alert statistics.
func RiskScore(summary map[Severity]int) int {
	raw := float64(summary[SeverityCritical])*10 +
		float64(summary[SeverityHigh])*5 +
		float64(summary[SeverityMedium])*2 +
		float64(summary[SeverityLow])*0.5

	score := int(math.Round(raw))
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}
