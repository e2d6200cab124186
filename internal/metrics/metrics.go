// ABOUTME: Prometheus metrics exposition for alert and sweep telemetry.
// ABOUTME: Defines metrics structure and provides HTTP handler for /metrics endpoint.

package metrics

import (
	"net/http"
	"strings"

	"github.com/vigilsec/vulnengine/internal/alerts"
	"github.com/vigilsec/vulnengine/internal/registry"
	"github.com/vigilsec/vulnengine/internal/sweep"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// AlertStatsProvider supplies per-tenant alert aggregates.
type AlertStatsProvider interface {
	Stats(tenantID string) (*alerts.TenantStats, error)
}

// TokenCacheStats reports registry token cache effectiveness.
type TokenCacheStats interface {
	Stats() registry.CacheStats
}

// SweepStatus reports the outcome of the most recent matching sweep.
type SweepStatus interface {
	LastSummary() (sweep.Summary, bool)
}

type MetricsHandler struct {
	tenants func() []string
	stats   AlertStatsProvider
	tokens  TokenCacheStats
	sweeps  SweepStatus
	logger  *logrus.Logger

	// Prometheus metrics
	alertsTotal    *prometheus.GaugeVec
	openAlerts     *prometheus.GaugeVec
	zeroDayAlerts  *prometheus.GaugeVec
	kevAlerts      *prometheus.GaugeVec
	tenantRisk     *prometheus.GaugeVec
	sweepInfo      *prometheus.GaugeVec
	tokenCacheInfo *prometheus.GaugeVec
}

func NewMetricsHandler(tenants func() []string, stats AlertStatsProvider, tokens TokenCacheStats, sweeps SweepStatus, logger *logrus.Logger) *MetricsHandler {
	return &MetricsHandler{
		tenants: tenants,
		stats:   stats,
		tokens:  tokens,
		sweeps:  sweeps,
		logger:  logger,

		alertsTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vulnengine_alerts_total",
				Help: "Total number of alerts ever created per tenant",
			},
			[]string{"tenant"},
		),

		openAlerts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vulnengine_open_alerts",
				Help: "Number of open alerts per tenant and severity",
			},
			[]string{"tenant", "severity"},
		),

		zeroDayAlerts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vulnengine_zero_day_alerts",
				Help: "Number of open alerts for vulnerabilities published within the zero-day window",
			},
			[]string{"tenant"},
		),

		kevAlerts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vulnengine_kev_alerts",
				Help: "Number of open alerts for known exploited vulnerabilities",
			},
			[]string{"tenant"},
		),

		tenantRisk: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vulnengine_tenant_risk_score",
				Help: "Aggregate risk score over open alerts per tenant (0-100)",
			},
			[]string{"tenant"},
		),

		sweepInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vulnengine_sweep_info",
				Help: "Information about the most recent matching sweep",
			},
			[]string{"info_type"},
		),

		tokenCacheInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vulnengine_token_cache_requests",
				Help: "Registry token cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Create a new registry for this request to avoid conflicts
	promRegistry := prometheus.NewRegistry()

	promRegistry.MustRegister(m.alertsTotal)
	promRegistry.MustRegister(m.openAlerts)
	promRegistry.MustRegister(m.zeroDayAlerts)
	promRegistry.MustRegister(m.kevAlerts)
	promRegistry.MustRegister(m.tenantRisk)
	promRegistry.MustRegister(m.sweepInfo)
	promRegistry.MustRegister(m.tokenCacheInfo)

	// Reset all metrics to avoid stale data
	m.alertsTotal.Reset()
	m.openAlerts.Reset()
	m.zeroDayAlerts.Reset()
	m.kevAlerts.Reset()
	m.tenantRisk.Reset()
	m.sweepInfo.Reset()
	m.tokenCacheInfo.Reset()

	for _, tenant := range m.tenants() {
		stats, err := m.stats.Stats(tenant)
		if err != nil {
			m.logger.WithError(err).WithField("tenant", tenant).Error("Failed to compute alert statistics for metrics")
			continue
		}

		label := sanitizeLabelValue(tenant)

		m.alertsTotal.WithLabelValues(label).Set(float64(stats.Total))
		for severity, count := range stats.SeverityCounts {
			m.openAlerts.WithLabelValues(label, string(severity)).Set(float64(count))
		}
		m.zeroDayAlerts.WithLabelValues(label).Set(float64(stats.ZeroDay))
		m.kevAlerts.WithLabelValues(label).Set(float64(stats.KEV))
		m.tenantRisk.WithLabelValues(label).Set(float64(stats.RiskScore))
	}

	if m.sweeps != nil {
		if summary, ok := m.sweeps.LastSummary(); ok {
			m.sweepInfo.WithLabelValues("last_sweep_timestamp").Set(float64(summary.StartedAt.Unix()))
			m.sweepInfo.WithLabelValues("duration_seconds").Set(summary.Duration.Seconds())
			m.sweepInfo.WithLabelValues("records_scanned").Set(float64(summary.RecordsScanned))
			m.sweepInfo.WithLabelValues("alerts_created").Set(float64(summary.AlertsCreated))
			m.sweepInfo.WithLabelValues("errors").Set(float64(summary.Errors))
		}
	}

	if m.tokens != nil {
		cacheStats := m.tokens.Stats()
		m.tokenCacheInfo.WithLabelValues("hit").Set(float64(cacheStats.Hits))
		m.tokenCacheInfo.WithLabelValues("miss").Set(float64(cacheStats.Misses))
		m.tokenCacheInfo.WithLabelValues("entries").Set(float64(cacheStats.Entries))
	}

	// Serve metrics
	handler := promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})
	handler.ServeHTTP(w, r)
}

// sanitizeLabelValue cleans strings for use as Prometheus labels
func sanitizeLabelValue(value string) string {
	if value == "" {
		return "unknown"
	}

	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\t", " ")

	if len(value) > 200 {
		value = value[:200] + "..."
	}

	return strings.TrimSpace(value)
}

// CreateMetricsHandler creates a standard HTTP handler that can be used with http.ServeMux
func CreateMetricsHandler(tenants func() []string, stats AlertStatsProvider, tokens TokenCacheStats, sweeps SweepStatus, logger *logrus.Logger) http.HandlerFunc {
	metricsHandler := NewMetricsHandler(tenants, stats, tokens, sweeps, logger)
	return metricsHandler.ServeHTTP
}
