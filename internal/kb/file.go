// ABOUTME: YAML file-backed knowledge base for local development and testing.
// ABOUTME: Reads records and tracked packages from disk without external services.

package kb

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vigilsec/vulnengine/internal/types"
)

// FileKnowledgeBase reads the knowledge base from a YAML file on every
// query, so edits to the file show up without a restart.
type FileKnowledgeBase struct {
	path   string
	logger *logrus.Logger
}

func NewFileKnowledgeBase(path string, logger *logrus.Logger) *FileKnowledgeBase {
	return &FileKnowledgeBase{
		path:   path,
		logger: logger,
	}
}

type fileRecord struct {
	ID               string  `yaml:"id"`
	Title            string  `yaml:"title"`
	Description      string  `yaml:"description"`
	Severity         string  `yaml:"severity"`
	PublishedDate    string  `yaml:"published_date"`
	IsKEV            bool    `yaml:"is_kev"`
	EPSSScore        float64 `yaml:"epss_score"`
	AffectedProducts []struct {
		Product               string `yaml:"product"`
		VersionStartIncluding string `yaml:"version_start_including"`
		VersionEndExcluding   string `yaml:"version_end_excluding"`
	} `yaml:"affected_products"`
}

type filePackage struct {
	TenantID         string `yaml:"tenant_id"`
	SourceID         string `yaml:"source_id"`
	ComponentName    string `yaml:"component_name"`
	ComponentVersion string `yaml:"component_version"`
	PURL             string `yaml:"purl"`
}

type fileContents struct {
	Records  []fileRecord  `yaml:"records"`
	Packages []filePackage `yaml:"packages"`
}

func (f *FileKnowledgeBase) load() (*fileContents, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base file '%s': %w", f.path, err)
	}

	var contents fileContents
	if err := yaml.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge base YAML: %w", err)
	}

	return &contents, nil
}

func (f *FileKnowledgeBase) RecentRecords(ctx context.Context, since time.Time) ([]types.VulnerabilityRecord, error) {
	contents, err := f.load()
	if err != nil {
		return nil, err
	}

	var records []types.VulnerabilityRecord
	for _, raw := range contents.Records {
		published, err := time.Parse(time.RFC3339, raw.PublishedDate)
		if err != nil {
			f.logger.WithFields(logrus.Fields{
				"record_id":      raw.ID,
				"published_date": raw.PublishedDate,
			}).Warn("Skipping record with unparseable published date")
			continue
		}
		if published.Before(since) {
			continue
		}

		record := types.VulnerabilityRecord{
			ID:            raw.ID,
			Title:         raw.Title,
			Description:   raw.Description,
			Severity:      types.ParseSeverity(raw.Severity),
			PublishedDate: published,
			IsKEV:         raw.IsKEV,
			EPSSScore:     raw.EPSSScore,
		}
		for _, product := range raw.AffectedProducts {
			record.AffectedProducts = append(record.AffectedProducts, types.AffectedProduct{
				Product:               product.Product,
				VersionStartIncluding: product.VersionStartIncluding,
				VersionEndExcluding:   product.VersionEndExcluding,
			})
		}
		records = append(records, record)
	}

	f.logger.WithField("record_count", len(records)).Debug("Loaded vulnerability records from file")
	return records, nil
}

func (f *FileKnowledgeBase) Tenants(ctx context.Context) ([]string, error) {
	contents, err := f.load()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var tenants []string
	for _, pkg := range contents.Packages {
		if pkg.TenantID != "" && !seen[pkg.TenantID] {
			seen[pkg.TenantID] = true
			tenants = append(tenants, pkg.TenantID)
		}
	}
	sort.Strings(tenants)
	return tenants, nil
}

func (f *FileKnowledgeBase) TrackedPackages(ctx context.Context, tenantID string) ([]types.TrackedPackage, error) {
	contents, err := f.load()
	if err != nil {
		return nil, err
	}

	var packages []types.TrackedPackage
	for _, pkg := range contents.Packages {
		if pkg.TenantID != tenantID {
			continue
		}
		packages = append(packages, types.TrackedPackage{
			TenantID:         pkg.TenantID,
			SourceID:         pkg.SourceID,
			ComponentName:    pkg.ComponentName,
			ComponentVersion: pkg.ComponentVersion,
			PURL:             pkg.PURL,
		})
	}
	return packages, nil
}
