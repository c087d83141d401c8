package editor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/finsight/finsight/internal/model"
	"github.com/finsight/finsight/internal/store"
	"github.com/finsight/finsight/pkg/errors"
	"github.com/finsight/finsight/pkg/logger"
	"github.com/finsight/finsight/pkg/telemetry"
)

// RestoreResult reports the state after a committed restore
type RestoreResult struct {
	ResourceID      string `json:"resource_id"`
	Version         int    `json:"version"`
	RestoredVersion int    `json:"restored_version"`
	Content         string `json:"content"`
}

// RestoreSection restores a section to the content it had at an earlier
// version. A restore is an ordinary edit: it appends the current content to
// history and increments the version, so history is never truncated and a
// restore can itself be undone. Restoring the current version is rejected.
func (s *Service) RestoreSection(ctx context.Context, sectionID string, version int, restoredBy string) (*RestoreResult, error) {
	if _, err := s.loadSection(sectionID); err != nil {
		return nil, err
	}

	return s.restore(ctx, restoreTarget{
		resourceType: model.ResourceTypeSection,
		resourceID:   sectionID,
		load: func() (int, string, error) {
			section, err := s.loadSection(sectionID)
			if err != nil {
				return 0, "", err
			}
			return section.Version, section.Content, nil
		},
		persist: func(st store.Store, content string, newVersion int) error {
			return st.Section().UpdateContent(sectionID, content, newVersion)
		},
	}, version, restoredBy)
}

// RestoreReport restores a monolithic report's content to an earlier version
func (s *Service) RestoreReport(ctx context.Context, reportID string, version int, restoredBy string) (*RestoreResult, error) {
	report, err := s.loadReport(reportID)
	if err != nil {
		return nil, err
	}

	if report.Mode != model.ReportModeMonolithic {
		return nil, errors.ErrInvalidState("report content is section-based, restore its sections instead")
	}

	return s.restore(ctx, restoreTarget{
		resourceType: model.ResourceTypeReport,
		resourceID:   report.ID,
		load: func() (int, string, error) {
			current, err := s.loadReport(reportID)
			if err != nil {
				return 0, "", err
			}
			return current.Version, current.Content, nil
		},
		persist: func(st store.Store, content string, newVersion int) error {
			return st.Report().UpdateContent(reportID, content, newVersion)
		},
	}, version, restoredBy)
}

type restoreTarget struct {
	resourceType model.ResourceType
	resourceID   string
	load         func() (version int, content string, err error)
	persist      func(st store.Store, content string, newVersion int) error
}

func (s *Service) restore(ctx context.Context, target restoreTarget, version int, restoredBy string) (*RestoreResult, error) {
	lock, err := s.locks.Acquire(target.resourceType, target.resourceID, restoredBy)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := s.locks.Release(lock); releaseErr != nil {
			logger.Warn("Failed to release edit lock after restore",
				zap.String("resource_id", target.resourceID),
				zap.Error(releaseErr))
		}
	}()

	// Current state is read and validated under the lock, so the version the
	// restore builds on cannot move before the commit
	currentVersion, currentContent, err := target.load()
	if err != nil {
		return nil, err
	}

	if version >= currentVersion {
		return nil, errors.ErrInvalidState(
			fmt.Sprintf("version %d is not older than the current version %d", version, currentVersion))
	}

	entry, err := s.store.History().GetByResourceAndVersion(target.resourceType, target.resourceID, version)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrNotFound("history version")
		}
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to load history entry", err)
	}

	// Restore commits like any other edit: current content goes to history,
	// the version moves forward.
	err = s.store.Transaction(func(tx store.Store) error {
		histEntry := &model.EditHistoryEntry{
			ResourceType: target.resourceType,
			ResourceID:   target.resourceID,
			Version:      currentVersion,
			Content:      currentContent,
			EditedBy:     restoredBy,
			EditedAt:     time.Now(),
		}
		if err := tx.History().Append(histEntry); err != nil {
			return err
		}
		return target.persist(tx, entry.Content, currentVersion+1)
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePersistenceFailure, "failed to commit restore", err)
	}

	telemetry.GetMetrics().RecordEditCommit(ctx, string(target.resourceType))

	logger.Info("Restored resource to earlier version",
		zap.String("resource_type", string(target.resourceType)),
		zap.String("resource_id", target.resourceID),
		zap.Int("restored_version", version),
		zap.Int("new_version", currentVersion+1))

	return &RestoreResult{
		ResourceID:      target.resourceID,
		Version:         currentVersion + 1,
		RestoredVersion: version,
		Content:         entry.Content,
	}, nil
}

// History returns the full edit history for a resource, oldest first
func (s *Service) History(resourceType model.ResourceType, resourceID string) ([]model.EditHistoryEntry, error) {
	entries, err := s.store.History().ListByResource(resourceType, resourceID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to load history", err)
	}
	return entries, nil
}
