// ABOUTME: Version comparators used for affected-range checks.
// ABOUTME: Coarse numeric default plus a SemVer-aware alternative.

package matcher

import (
	"strconv"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// VersionComparator orders two version strings. Compare returns a negative
// value when a < b, zero when equal, positive when a > b. Ecosystems with
// their own version semantics (PEP 440, Maven, ...) plug in here.
type VersionComparator interface {
	Compare(a, b string) int
}

// NewNumericComparator returns the default comparator: versions split on
// dots, each segment parsed as an integer (non-numeric segments count as 0),
// missing trailing segments count as 0. No pre-release or build-metadata
// semantics.
func NewNumericComparator() VersionComparator {
	return numericComparator{}
}

type numericComparator struct{}

func (numericComparator) Compare(a, b string) int {
	aParts := strings.Split(a, ".")
	bParts := strings.Split(b, ".")

	length := len(aParts)
	if len(bParts) > length {
		length = len(bParts)
	}

	for i := 0; i < length; i++ {
		aSeg := numericSegment(aParts, i)
		bSeg := numericSegment(bParts, i)
		if aSeg != bSeg {
			if aSeg < bSeg {
				return -1
			}
			return 1
		}
	}
	return 0
}

func numericSegment(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
	if err != nil {
		return 0
	}
	return n
}

// NewSemverComparator returns a comparator with SemVer ordering, including
// pre-release precedence. Versions that fail to parse fall back to the
// numeric comparator.
func NewSemverComparator() VersionComparator {
	return semverComparator{fallback: numericComparator{}}
}

type semverComparator struct {
	fallback VersionComparator
}

func (c semverComparator) Compare(a, b string) int {
	va, errA := goversion.NewVersion(a)
	vb, errB := goversion.NewVersion(b)
	if errA != nil || errB != nil {
		return c.fallback.Compare(a, b)
	}
	return va.Compare(vb)
}
