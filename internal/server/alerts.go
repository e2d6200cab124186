// ABOUTME: HTTP handlers for the alert query and lifecycle API.
// ABOUTME: Serves per-tenant alert listings, aggregate statistics, and status updates.

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/vigilsec/vulnengine/internal/alerts"
	"github.com/vigilsec/vulnengine/internal/types"

	"github.com/sirupsen/logrus"
)

// AlertService is the subset of the alert manager the HTTP layer needs.
type AlertService interface {
	List(tenantID string, filter alerts.ListFilter) ([]types.Alert, int, error)
	Stats(tenantID string) (*alerts.TenantStats, error)
	UpdateStatus(tenantID, vulnerabilityID string, target types.AlertStatus) (*types.Alert, error)
}

type AlertsHandler struct {
	service AlertService
	logger  *logrus.Logger
}

type AlertListResponse struct {
	Alerts []types.Alert `json:"alerts"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit,omitempty"`
	Offset int           `json:"offset,omitempty"`
}

type StatusUpdateRequest struct {
	Tenant          string `json:"tenant"`
	VulnerabilityID string `json:"vulnerability_id"`
	Status          string `json:"status"`
}

func NewAlertsHandler(service AlertService, logger *logrus.Logger) *AlertsHandler {
	return &AlertsHandler{
		service: service,
		logger:  logger,
	}
}

func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.WithField("endpoint", "/alerts")

	tenant := strings.TrimSpace(r.URL.Query().Get("tenant"))
	if tenant == "" {
		http.Error(w, "Missing required parameter: tenant", http.StatusBadRequest)
		return
	}

	filter := alerts.ListFilter{}

	for _, raw := range splitParam(r.URL.Query().Get("status")) {
		status := types.AlertStatus(strings.ToLower(raw))
		switch status {
		case types.AlertStatusOpen, types.AlertStatusAcknowledged, types.AlertStatusResolved, types.AlertStatusSuppressed:
			filter.Statuses = append(filter.Statuses, status)
		default:
			http.Error(w, "Invalid status filter. Must be one of: open, acknowledged, resolved, suppressed", http.StatusBadRequest)
			return
		}
	}

	for _, raw := range splitParam(r.URL.Query().Get("severity")) {
		severity := types.Severity(strings.ToUpper(raw))
		switch severity {
		case types.SeverityCritical, types.SeverityHigh, types.SeverityMedium, types.SeverityLow:
			filter.Severities = append(filter.Severities, severity)
		default:
			http.Error(w, "Invalid severity filter. Must be one of: CRITICAL, HIGH, MEDIUM, LOW", http.StatusBadRequest)
			return
		}
	}

	filter.ZeroDayOnly = r.URL.Query().Get("zero_day") == "true"
	filter.KEVOnly = r.URL.Query().Get("kev") == "true"

	var err error
	filter.Limit, err = parseBoundedInt(r.URL.Query().Get("limit"), 10000)
	if err != nil {
		http.Error(w, "Invalid limit parameter. Must be a positive integer up to 10000", http.StatusBadRequest)
		return
	}
	filter.Offset, err = parseBoundedInt(r.URL.Query().Get("offset"), 1<<30)
	if err != nil {
		http.Error(w, "Invalid offset parameter. Must be a positive integer", http.StatusBadRequest)
		return
	}

	page, total, err := h.service.List(tenant, filter)
	if err != nil {
		logger.WithError(err).WithField("tenant", tenant).Error("Failed to list alerts")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := AlertListResponse{
		Alerts: page,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	if response.Alerts == nil {
		response.Alerts = []types.Alert{}
	}

	writeJSON(w, r, response, logger)

	logger.WithFields(logrus.Fields{
		"tenant":   tenant,
		"returned": len(page),
		"total":    total,
	}).Info("Served alert listing")
}

func (h *AlertsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.WithField("endpoint", "/alerts/stats")

	tenant := strings.TrimSpace(r.URL.Query().Get("tenant"))
	if tenant == "" {
		http.Error(w, "Missing required parameter: tenant", http.StatusBadRequest)
		return
	}

	stats, err := h.service.Stats(tenant)
	if err != nil {
		logger.WithError(err).WithField("tenant", tenant).Error("Failed to compute alert statistics")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, stats, logger)

	logger.WithFields(logrus.Fields{
		"tenant": tenant,
		"total":  stats.Total,
		"open":   stats.Open,
	}).Info("Served alert statistics")
}

func (h *AlertsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.WithField("endpoint", "/alerts/status")

	var req StatusUpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON request body", http.StatusBadRequest)
		return
	}

	if req.Tenant == "" || req.VulnerabilityID == "" {
		http.Error(w, "Missing required fields: tenant, vulnerability_id", http.StatusBadRequest)
		return
	}

	target := types.AlertStatus(strings.ToLower(req.Status))
	switch target {
	case types.AlertStatusAcknowledged, types.AlertStatusResolved, types.AlertStatusSuppressed:
	default:
		http.Error(w, "Invalid target status. Must be one of: acknowledged, resolved, suppressed", http.StatusBadRequest)
		return
	}

	alert, err := h.service.UpdateStatus(req.Tenant, req.VulnerabilityID, target)
	if err != nil {
		switch {
		case errors.Is(err, alerts.ErrNotFound):
			http.Error(w, "Alert not found", http.StatusNotFound)
		case errors.Is(err, alerts.ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			logger.WithError(err).Error("Failed to update alert status")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, r, alert, logger)

	logger.WithFields(logrus.Fields{
		"tenant":        req.Tenant,
		"vulnerability": req.VulnerabilityID,
		"status":        target,
	}).Info("Updated alert status")
}

func splitParam(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func parseBoundedInt(raw string, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 || parsed > max {
		return 0, errors.New("out of range")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, payload any, logger *logrus.Entry) {
	w.Header().Set("Content-Type", "application/json")

	encoder := json.NewEncoder(w)
	if r.URL.Query().Get("pretty") != "" {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(payload); err != nil {
		logger.WithError(err).Error("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
