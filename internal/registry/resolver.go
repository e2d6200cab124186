// ABOUTME: Resolves free-form image reference strings into structured tuples.
// ABOUTME: Handles bare tags, qualified registry paths, and digest-pinned references.

package registry

import (
	"strings"

	"github.com/vigilsec/vulnengine/internal/types"
)

// DefaultRegistry is the Docker Hub content endpoint used when a reference
// names no registry of its own.
const DefaultRegistry = "registry-1.docker.io"

const defaultTag = "latest"

// registryMarkers are substrings that identify the first path segment of a
// reference as a registry host even without a dot or port.
var registryMarkers = []string{"gcr", "ghcr", "ecr", "azurecr", "quay"}

// Resolve parses a raw image reference into its registry, repository, tag,
// and digest parts. Resolution is total: ambiguous inputs degrade to Docker
// Hub defaults rather than failing.
//
// Accepted shapes: "repo:tag", "registry/repo:tag", "repo@sha256:...".
func Resolve(reference string) types.ImageReference {
	image := types.ImageReference{
		Registry: DefaultRegistry,
		Tag:      defaultTag,
	}

	rest := reference
	if at := strings.Index(rest, "@"); at >= 0 {
		image.Digest = rest[at+1:]
		rest = rest[:at]
	} else if colon := strings.LastIndex(rest, ":"); colon >= 0 {
		if tag := rest[colon+1:]; tag != "" {
			image.Tag = tag
		}
		rest = rest[:colon]
	}

	if slash := strings.Index(rest, "/"); slash >= 0 {
		if isRegistryHost(rest[:slash]) {
			image.Registry = rest[:slash]
			image.Repository = rest[slash+1:]
		} else {
			image.Repository = rest
		}
	} else {
		// Docker Hub official-image convention
		image.Repository = "library/" + rest
	}

	image.FullName = image.Registry + "/" + image.Repository + ":" + image.Tag
	return image
}

func isRegistryHost(segment string) bool {
	if strings.ContainsAny(segment, ".:") {
		return true
	}
	for _, marker := range registryMarkers {
		if strings.Contains(segment, marker) {
			return true
		}
	}
	return false
}
