// Package retention purges data belonging to reports that were
// soft-deleted longer ago than the configured retention window.
package retention

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/finsight/finsight/internal/model"
	"github.com/finsight/finsight/internal/store"
	"github.com/finsight/finsight/pkg/logger"
)

const (
	// DefaultRetentionDays is the default number of days soft-deleted
	// reports are kept before being purged
	DefaultRetentionDays = 30
	// DefaultSchedule is the default cron schedule for the sweep (daily at 3 AM)
	DefaultSchedule = "0 3 * * *"
	// sweepBatchSize limits how many reports a single sweep purges
	sweepBatchSize = 100
)

// Service manages periodic purging of expired soft-deleted reports.
// History entries and snapshots are append-only for live data; only rows
// belonging to a soft-deleted report ever get hard-deleted.
type Service struct {
	store    store.Store
	cron     *cron.Cron
	schedule string
	days     int
	entryID  cron.EntryID
	mu       sync.RWMutex
}

// NewService creates a new retention service
func NewService(st store.Store, schedule string, days int) *Service {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if days <= 0 {
		days = DefaultRetentionDays
	}

	return &Service{
		store:    st,
		cron:     cron.New(),
		schedule: schedule,
		days:     days,
	}
}

// Start starts the retention service with the scheduled sweep
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.cron.AddFunc(s.schedule, s.sweep)
	if err != nil {
		logger.Error("Failed to schedule retention sweep", zap.Error(err))
		return err
	}

	s.entryID = entryID
	s.cron.Start()

	logger.Info("Retention service started",
		zap.String("schedule", s.schedule),
		zap.Int("retention_days", s.days),
	)

	// Run initial sweep immediately (non-blocking)
	go s.sweep()

	return nil
}

// Stop stops the retention service gracefully
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		logger.Info("Stopping retention service")
		ctx := s.cron.Stop()
		<-ctx.Done()
		logger.Info("Retention service stopped")
	}
}

// sweep purges all reports soft-deleted before the retention cutoff
func (s *Service) sweep() {
	s.mu.RLock()
	days := s.days
	s.mu.RUnlock()

	cutoff := time.Now().AddDate(0, 0, -days).Unix()

	logger.Info("Starting retention sweep",
		zap.Int("retention_days", days),
	)

	startTime := time.Now()
	reports, err := s.store.Report().ListDeletedBefore(cutoff, sweepBatchSize)
	if err != nil {
		logger.Error("Failed to list expired reports", zap.Error(err))
		return
	}

	purged := 0
	for _, report := range reports {
		if err := s.purgeReport(report.ID); err != nil {
			logger.Error("Failed to purge report",
				zap.String("report_id", report.ID),
				zap.Error(err),
			)
			continue
		}
		purged++
	}

	logger.Info("Retention sweep completed",
		zap.Int("purged_count", purged),
		zap.Int("retention_days", days),
		zap.Duration("duration", time.Since(startTime)),
	)
}

// purgeReport permanently removes a report and everything attached to it:
// sections, edit history for both resource types, and context snapshots.
func (s *Service) purgeReport(reportID string) error {
	sections, err := s.store.Section().ListByReportUnscoped(reportID)
	if err != nil {
		return err
	}

	return s.store.Transaction(func(tx store.Store) error {
		for _, section := range sections {
			if err := tx.History().DeleteByResource(model.ResourceTypeSection, section.ID); err != nil {
				return err
			}
		}
		if err := tx.History().DeleteByResource(model.ResourceTypeReport, reportID); err != nil {
			return err
		}
		if err := tx.Snapshot().DeleteByEntity(model.EntityTypeReport, reportID); err != nil {
			return err
		}
		if err := tx.Section().HardDeleteByReport(reportID); err != nil {
			return err
		}
		return tx.Report().HardDelete(reportID)
	})
}

// SetRetentionDays updates the retention period (takes effect on next sweep)
func (s *Service) SetRetentionDays(days int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if days <= 0 {
		days = DefaultRetentionDays
	}

	s.days = days
	logger.Info("Retention days updated", zap.Int("retention_days", days))
}
