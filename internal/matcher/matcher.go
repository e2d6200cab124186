// ABOUTME: Matches tracked packages against vulnerability records.
// ABOUTME: Name matching is substring-based; version ranges use a pluggable comparator.

package matcher

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vigilsec/vulnengine/internal/types"
)

// Matcher correlates knowledge-base records with tracked packages.
type Matcher struct {
	comparator VersionComparator
	logger     *logrus.Logger
}

func NewMatcher(comparator VersionComparator, logger *logrus.Logger) *Matcher {
	return &Matcher{
		comparator: comparator,
		logger:     logger,
	}
}

// Match returns the subset of packages affected by the record. A package
// matches when its lowercased component name contains an affected product
// name as a substring and its version falls inside the affected range.
// Malformed affected-product entries are skipped individually.
func (m *Matcher) Match(record types.VulnerabilityRecord, packages []types.TrackedPackage) []types.TrackedPackage {
	var matched []types.TrackedPackage
	taken := make(map[int]bool)

	for _, product := range record.AffectedProducts {
		productName := strings.ToLower(strings.TrimSpace(product.Product))
		if productName == "" {
			m.logger.WithField("record_id", record.ID).Debug("Skipping affected-product entry with empty product name")
			continue
		}

		for i, pkg := range packages {
			if taken[i] {
				continue
			}
			if !strings.Contains(strings.ToLower(pkg.ComponentName), productName) {
				continue
			}
			if m.IsVersionAffected(pkg.ComponentVersion, product.VersionStartIncluding, product.VersionEndExcluding) {
				taken[i] = true
				matched = append(matched, pkg)
			}
		}
	}

	return matched
}

// IsVersionAffected checks an installed version against an inclusive start
// and exclusive end bound. A missing installed version is treated as
// affected, the conservative default.
func (m *Matcher) IsVersionAffected(version, startIncluding, endExcluding string) bool {
	if version == "" {
		return true
	}
	if startIncluding != "" && m.comparator.Compare(version, startIncluding) < 0 {
		return false
	}
	if endExcluding != "" && m.comparator.Compare(version, endExcluding) >= 0 {
		return false
	}
	return true
}
