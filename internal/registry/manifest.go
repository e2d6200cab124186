// ABOUTME: Fetches image manifests and config blobs over the registry content API.
// ABOUTME: Negotiates Docker v2 and OCI v1 media types; failures surface immediately.

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/sirupsen/logrus"

	"github.com/vigilsec/vulnengine/internal/types"
)

// Docker media types not covered by the OCI image-spec constants.
const (
	MediaTypeDockerManifest     = "application/vnd.docker.distribution.manifest.v2+json"
	MediaTypeDockerManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"
)

var manifestAccept = strings.Join([]string{
	MediaTypeDockerManifest,
	MediaTypeDockerManifestList,
	ispec.MediaTypeImageManifest,
	ispec.MediaTypeImageIndex,
}, ", ")

// Fetcher retrieves manifests and image-config blobs from a registry's
// content-addressable API. Each call is a single blocking GET with no retry;
// any non-2xx response or transport failure is returned to the caller.
type Fetcher struct {
	httpClient *http.Client
	scheme     string
	logger     *logrus.Logger
}

func NewFetcher(logger *logrus.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		scheme:     "https",
		logger:     logger,
	}
}

// GetManifest fetches the manifest for an image. A supplied digest takes
// precedence over the tag as the manifest reference.
func (f *Fetcher) GetManifest(ctx context.Context, image types.ImageReference, token *Token) (*types.Manifest, error) {
	reference := image.Digest
	if reference == "" {
		reference = image.Tag
	}

	endpoint := fmt.Sprintf("%s://%s/v2/%s/manifests/%s", f.scheme, image.Registry, image.Repository, reference)

	body, err := f.get(ctx, endpoint, manifestAccept, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest for %s: %w", image.FullName, err)
	}

	var manifest types.Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest for %s: %w", image.FullName, err)
	}
	manifest.Raw = body

	f.logger.WithFields(logrus.Fields{
		"image":       image.FullName,
		"media_type":  manifest.MediaType,
		"layer_count": len(manifest.Layers),
	}).Debug("Fetched manifest")

	return &manifest, nil
}

// GetConfig fetches the image-config blob referenced by a manifest.
func (f *Fetcher) GetConfig(ctx context.Context, image types.ImageReference, configDigest string, token *Token) (*types.ImageConfig, error) {
	endpoint := fmt.Sprintf("%s://%s/v2/%s/blobs/%s", f.scheme, image.Registry, image.Repository, configDigest)

	body, err := f.get(ctx, endpoint, ispec.MediaTypeImageConfig, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image config for %s: %w", image.FullName, err)
	}

	var imageConfig types.ImageConfig
	if err := json.Unmarshal(body, &imageConfig); err != nil {
		return nil, fmt.Errorf("failed to parse image config for %s: %w", image.FullName, err)
	}

	return &imageConfig, nil
}

func (f *Fetcher) get(ctx context.Context, endpoint, accept string, token *Token) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", accept)
	if token != nil {
		req.Header.Set("Authorization", token.AuthorizationHeader())
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("registry returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return body, nil
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
