// ABOUTME: HTTP handlers for on-demand image inspection endpoints.
// ABOUTME: Exposes manifest-backed image info, scanning, and digest verification.

package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/vigilsec/vulnengine/internal/analyzer"
	"github.com/vigilsec/vulnengine/internal/types"

	"github.com/sirupsen/logrus"
)

// ImageInspector is the subset of the analyzer the HTTP layer needs.
type ImageInspector interface {
	GetImageInfo(ctx context.Context, reference string, creds *types.RegistryCredentials) (*types.ImageInfo, error)
	ScanImage(ctx context.Context, reference string, creds *types.RegistryCredentials) (*types.VulnerabilityScanResult, error)
	VerifyImage(ctx context.Context, reference, expectedDigest string, creds *types.RegistryCredentials) (*analyzer.VerificationResult, error)
}

type ImagesHandler struct {
	inspector ImageInspector
	logger    *logrus.Logger
}

func NewImagesHandler(inspector ImageInspector, logger *logrus.Logger) *ImagesHandler {
	return &ImagesHandler{
		inspector: inspector,
		logger:    logger,
	}
}

func (h *ImagesHandler) Info(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.WithField("endpoint", "/images/info")

	reference, creds, ok := h.imageRequest(w, r)
	if !ok {
		return
	}

	info, err := h.inspector.GetImageInfo(r.Context(), reference, creds)
	if err != nil {
		logger.WithError(err).WithField("image", reference).Error("Failed to inspect image")
		http.Error(w, "Failed to inspect image", http.StatusBadGateway)
		return
	}

	writeJSON(w, r, info, logger)

	logger.WithField("image", reference).Info("Served image info")
}

func (h *ImagesHandler) Scan(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.WithField("endpoint", "/images/scan")

	reference, creds, ok := h.imageRequest(w, r)
	if !ok {
		return
	}

	result, err := h.inspector.ScanImage(r.Context(), reference, creds)
	if err != nil {
		logger.WithError(err).WithField("image", reference).Error("Failed to scan image")
		http.Error(w, "Failed to scan image", http.StatusBadGateway)
		return
	}

	writeJSON(w, r, result, logger)

	logger.WithFields(logrus.Fields{
		"image":      reference,
		"findings":   len(result.Vulnerabilities),
		"risk_score": result.RiskScore,
	}).Info("Served image scan")
}

func (h *ImagesHandler) Verify(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.WithField("endpoint", "/images/verify")

	reference, creds, ok := h.imageRequest(w, r)
	if !ok {
		return
	}
	expectedDigest := strings.TrimSpace(r.URL.Query().Get("digest"))

	result, err := h.inspector.VerifyImage(r.Context(), reference, expectedDigest, creds)
	if err != nil {
		logger.WithError(err).WithField("image", reference).Error("Failed to verify image")
		http.Error(w, "Failed to verify image", http.StatusBadGateway)
		return
	}

	writeJSON(w, r, result, logger)

	logger.WithFields(logrus.Fields{
		"image":  reference,
		"digest": result.Digest,
	}).Info("Served image verification")
}

// imageRequest validates the common image parameter and extracts any
// caller-supplied registry credentials from headers. Credentials travel in
// headers rather than query parameters so they stay out of access logs.
func (h *ImagesHandler) imageRequest(w http.ResponseWriter, r *http.Request) (string, *types.RegistryCredentials, bool) {
	reference := strings.TrimSpace(r.URL.Query().Get("image"))
	if reference == "" {
		http.Error(w, "Missing required parameter: image", http.StatusBadRequest)
		return "", nil, false
	}
	if len(reference) > 500 {
		http.Error(w, "Image reference too long. Maximum allowed is 500 characters", http.StatusBadRequest)
		return "", nil, false
	}

	creds := &types.RegistryCredentials{
		Type:     types.CredentialType(r.Header.Get("X-Registry-Type")),
		Username: r.Header.Get("X-Registry-Username"),
		Password: r.Header.Get("X-Registry-Password"),
		Token:    r.Header.Get("X-Registry-Token"),
	}
	if creds.Type == "" && creds.Username == "" && creds.Password == "" && creds.Token == "" {
		creds = nil
	}

	return reference, creds, true
}
