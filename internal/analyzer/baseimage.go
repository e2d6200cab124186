// ABOUTME: Base image detection from image-config build history.
// ABOUTME: Heuristic implementation behind an interface so it can be replaced.

package analyzer

import (
	"regexp"
	"strings"

	"github.com/vigilsec/vulnengine/internal/types"
)

// BaseImageDetector guesses the base image an image was built from. Detect
// returns an empty string when no candidate is found.
type BaseImageDetector interface {
	Detect(config *types.ImageConfig) string
}

var fromInstruction = regexp.MustCompile(`(?i)\bFROM\s+(\S+)`)

// commonBaseImages is the fallback list matched against the first history
// entry when no FROM instruction survives in the build history.
var commonBaseImages = []string{"alpine", "debian", "ubuntu", "node", "python"}

type heuristicBaseImageDetector struct{}

// NewHeuristicBaseImageDetector returns the history-scanning detector.
func NewHeuristicBaseImageDetector() BaseImageDetector {
	return &heuristicBaseImageDetector{}
}

func (d *heuristicBaseImageDetector) Detect(config *types.ImageConfig) string {
	if config == nil {
		return ""
	}

	for _, entry := range config.History {
		if match := fromInstruction.FindStringSubmatch(entry.CreatedBy); match != nil {
			return match[1]
		}
	}

	if len(config.History) > 0 {
		first := strings.ToLower(config.History[0].CreatedBy)
		for _, name := range commonBaseImages {
			if strings.Contains(first, name) {
				return name
			}
		}
	}

	return ""
}
