// ABOUTME: Image analyzer composing reference resolution, auth, and manifest fetching.
// ABOUTME: Produces aggregate image metadata, digest verification, and scan results.

package analyzer

import (
	"context"
	"time"

	godigest "github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"

	"github.com/vigilsec/vulnengine/internal/ext"
	"github.com/vigilsec/vulnengine/internal/registry"
	"github.com/vigilsec/vulnengine/internal/types"
)

// TokenSource yields registry access tokens; nil means unauthenticated.
type TokenSource interface {
	GetToken(ctx context.Context, image types.ImageReference, creds *types.RegistryCredentials) *registry.Token
}

// ContentFetcher retrieves manifests and config blobs from a registry.
type ContentFetcher interface {
	GetManifest(ctx context.Context, image types.ImageReference, token *registry.Token) (*types.Manifest, error)
	GetConfig(ctx context.Context, image types.ImageReference, configDigest string, token *registry.Token) (*types.ImageConfig, error)
}

// VerificationResult reports the outcome of a digest verification. Verified
// is true whenever the manifest could be fetched and hashed; a digest
// mismatch is reported through Match, never as an error.
type VerificationResult struct {
	Verified bool   `json:"verified"`
	Digest   string `json:"digest"`
	Match    *bool  `json:"match,omitempty"`
}

// Analyzer inspects container images through the registry content API.
type Analyzer struct {
	tokens    TokenSource
	fetcher   ContentFetcher
	scanner   Scanner
	baseImage BaseImageDetector
	clock     ext.Clock
	logger    *logrus.Logger
}

func NewAnalyzer(tokens TokenSource, fetcher ContentFetcher, scanner Scanner, baseImage BaseImageDetector, clock ext.Clock, logger *logrus.Logger) *Analyzer {
	return &Analyzer{
		tokens:    tokens,
		fetcher:   fetcher,
		scanner:   scanner,
		baseImage: baseImage,
		clock:     clock,
		logger:    logger,
	}
}

// GetImageInfo resolves a reference and aggregates manifest and config
// metadata: total size, layer count, platform, creation time, labels, and a
// best-effort base image.
func (a *Analyzer) GetImageInfo(ctx context.Context, reference string, creds *types.RegistryCredentials) (*types.ImageInfo, error) {
	image := registry.Resolve(reference)
	token := a.tokens.GetToken(ctx, image, creds)

	manifest, err := a.fetcher.GetManifest(ctx, image, token)
	if err != nil {
		return nil, err
	}

	imageConfig, err := a.fetcher.GetConfig(ctx, image, manifest.Config.Digest, token)
	if err != nil {
		return nil, err
	}

	totalSize := manifest.Config.Size
	for _, layer := range manifest.Layers {
		totalSize += layer.Size
	}

	var created time.Time
	if imageConfig.Created != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, imageConfig.Created); err == nil {
			created = parsed
		}
	}

	info := &types.ImageInfo{
		Reference:    image,
		Manifest:     manifest,
		Config:       imageConfig,
		TotalSize:    totalSize,
		LayerCount:   len(manifest.Layers),
		BaseImage:    a.baseImage.Detect(imageConfig),
		Architecture: imageConfig.Architecture,
		OS:           imageConfig.OS,
		Created:      created,
		Labels:       imageConfig.Config.Labels,
	}

	a.logger.WithFields(logrus.Fields{
		"image":       image.FullName,
		"total_size":  totalSize,
		"layer_count": info.LayerCount,
		"base_image":  info.BaseImage,
	}).Debug("Analyzed image")

	return info, nil
}

// ScanImage runs the configured scanner over the image's metadata and folds
// the findings into a severity summary and risk score. The scanner is
// swappable; summary and score computation never change with it.
func (a *Analyzer) ScanImage(ctx context.Context, reference string, creds *types.RegistryCredentials) (*types.VulnerabilityScanResult, error) {
	info, err := a.GetImageInfo(ctx, reference, creds)
	if err != nil {
		return nil, err
	}

	vulnerabilities := a.scanner.ScanImage(info)
	summary := types.SummarizeSeverities(vulnerabilities)

	return &types.VulnerabilityScanResult{
		Image:           info.Reference.FullName,
		ScannedAt:       a.clock.Now(),
		Vulnerabilities: vulnerabilities,
		Summary:         summary,
		RiskScore:       types.RiskScore(summary),
	}, nil
}

// VerifyImage fetches the manifest and hashes the bytes exactly as served,
// so the computed digest matches the registry's own content digest. When an
// expected digest is supplied the comparison is reported via Match; a
// mismatch is never a hard failure.
func (a *Analyzer) VerifyImage(ctx context.Context, reference, expectedDigest string, creds *types.RegistryCredentials) (*VerificationResult, error) {
	image := registry.Resolve(reference)
	token := a.tokens.GetToken(ctx, image, creds)

	manifest, err := a.fetcher.GetManifest(ctx, image, token)
	if err != nil {
		return nil, err
	}

	computed := godigest.FromBytes(manifest.Raw).String()

	result := &VerificationResult{
		Verified: true,
		Digest:   computed,
	}
	if expectedDigest != "" {
		match := computed == expectedDigest
		result.Match = &match
	}

	return result, nil
}
