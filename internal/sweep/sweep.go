// ABOUTME: Periodic matching sweep correlating knowledge-base records with tracked packages.
// ABOUTME: Runs serialized on an interval or cron schedule; bad records never abort a run.

package sweep

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/sirupsen/logrus"

	"github.com/vigilsec/vulnengine/internal/alerts"
	"github.com/vigilsec/vulnengine/internal/ext"
	"github.com/vigilsec/vulnengine/internal/kb"
	"github.com/vigilsec/vulnengine/internal/matcher"
	"github.com/vigilsec/vulnengine/internal/types"
)

// ErrSweepInProgress is returned when a run is requested while another run
// holds the sweep lock.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Config controls sweep scheduling and record selection.
type Config struct {
	// Interval between runs when no Schedule is set.
	Interval time.Duration
	// Schedule is an optional cron expression; it wins over Interval.
	Schedule string
	// RecordWindow bounds how far back published records are considered.
	RecordWindow time.Duration
}

// Summary describes one completed sweep run.
type Summary struct {
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	Tenants        int           `json:"tenants"`
	RecordsScanned int           `json:"records_scanned"`
	AlertsCreated  int           `json:"alerts_created"`
	Errors         int           `json:"errors"`
}

// Sweeper drives the package-to-vulnerability correlation. Runs are
// serialized: alert creation is check-then-act, so overlapping runs could
// race duplicate alerts into existence.
type Sweeper struct {
	knowledgeBase kb.KnowledgeBase
	matcher       *matcher.Matcher
	alerts        *alerts.Manager
	config        *Config
	clock         ext.Clock
	logger        *logrus.Logger

	cron *cronexpr.Expression

	runLock sync.Mutex

	mutex       sync.RWMutex
	lastSummary *Summary
}

func NewSweeper(knowledgeBase kb.KnowledgeBase, m *matcher.Matcher, alertManager *alerts.Manager, config *Config, clock ext.Clock, logger *logrus.Logger) (*Sweeper, error) {
	s := &Sweeper{
		knowledgeBase: knowledgeBase,
		matcher:       m,
		alerts:        alertManager,
		config:        config,
		clock:         clock,
		logger:        logger,
	}

	if config.Schedule != "" {
		expr, err := cronexpr.Parse(config.Schedule)
		if err != nil {
			return nil, err
		}
		s.cron = expr
	}

	return s, nil
}

// Start runs an initial sweep and then loops on the configured schedule
// until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	logger := s.logger.WithField("component", "matching_sweep")

	if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
		logger.WithError(err).Error("Initial matching sweep failed")
	}

	for {
		wait := s.config.Interval
		if s.cron != nil {
			now := time.Now()
			wait = s.cron.Next(now).Sub(now)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("Matching sweep stopping")
			return
		case <-timer.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
				logger.WithError(err).Error("Matching sweep failed")
			}
		}
	}
}

// RunOnce executes a single sweep. Concurrent invocations are rejected with
// ErrSweepInProgress rather than queued.
func (s *Sweeper) RunOnce(ctx context.Context) (*Summary, error) {
	if !s.runLock.TryLock() {
		return nil, ErrSweepInProgress
	}
	defer s.runLock.Unlock()

	logger := s.logger.WithField("operation", "matching_sweep")
	startTime := s.clock.Now()

	summary := &Summary{StartedAt: startTime}

	since := startTime.Add(-s.config.RecordWindow)
	records, err := s.knowledgeBase.RecentRecords(ctx, since)
	if err != nil {
		return nil, err
	}

	tenants, err := s.knowledgeBase.Tenants(ctx)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"records": len(records),
		"tenants": len(tenants),
	}).Info("Starting matching sweep")

	summary.Tenants = len(tenants)

	for _, tenant := range tenants {
		packages, err := s.knowledgeBase.TrackedPackages(ctx, tenant)
		if err != nil {
			logger.WithError(err).WithField("tenant", tenant).Error("Failed to load tracked packages, skipping tenant")
			summary.Errors++
			continue
		}

		for _, record := range records {
			if !validRecord(record) {
				logger.WithField("record_id", record.ID).Debug("Skipping malformed vulnerability record")
				continue
			}
			summary.RecordsScanned++

			matched := s.matcher.Match(record, packages)
			if len(matched) == 0 {
				continue
			}

			// A persistence failure for one pair is logged and skipped;
			// it must not stop the sweep for other pairs or tenants.
			_, created, err := s.alerts.EnsureAlert(tenant, record, matched)
			if err != nil {
				logger.WithError(err).WithFields(logrus.Fields{
					"tenant":        tenant,
					"vulnerability": record.ID,
				}).Error("Failed to persist alert, skipping")
				summary.Errors++
				continue
			}
			if created {
				summary.AlertsCreated++
			}
		}
	}

	summary.Duration = s.clock.Now().Sub(startTime)

	s.mutex.Lock()
	s.lastSummary = summary
	s.mutex.Unlock()

	logger.WithFields(logrus.Fields{
		"duration":        summary.Duration,
		"records_scanned": summary.RecordsScanned,
		"alerts_created":  summary.AlertsCreated,
		"errors":          summary.Errors,
	}).Info("Matching sweep completed")

	return summary, nil
}

// LastSummary returns the most recent completed run, if any.
func (s *Sweeper) LastSummary() (Summary, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.lastSummary == nil {
		return Summary{}, false
	}
	return *s.lastSummary, true
}

func validRecord(record types.VulnerabilityRecord) bool {
	return record.ID != "" && len(record.AffectedProducts) > 0
}
