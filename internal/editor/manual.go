package editor

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/finsight/finsight/internal/model"
	"github.com/finsight/finsight/internal/store"
	"github.com/finsight/finsight/pkg/errors"
	"github.com/finsight/finsight/pkg/logger"
	"github.com/finsight/finsight/pkg/telemetry"
)

// ApplyResult reports a committed manual edit
type ApplyResult struct {
	ResourceID string `json:"resource_id"`
	Version    int    `json:"version"`
}

// ApplySectionContent commits caller-provided content to a section as a
// normal versioned edit, without involving the generator. The history entry
// carries no prompt.
func (s *Service) ApplySectionContent(ctx context.Context, sectionID, content, editedBy string) (*ApplyResult, error) {
	if _, err := s.loadSection(sectionID); err != nil {
		return nil, err
	}

	return s.applyContent(ctx, streamTarget{
		resourceType: model.ResourceTypeSection,
		resourceID:   sectionID,
		load: func() (int, string, error) {
			section, err := s.loadSection(sectionID)
			if err != nil {
				return 0, "", err
			}
			return section.Version, section.Content, nil
		},
		persist: func(st store.Store, newContent string, version int) error {
			return st.Section().UpdateContent(sectionID, newContent, version)
		},
	}, content, editedBy)
}

// ApplyReportContent commits caller-provided content to a monolithic report
func (s *Service) ApplyReportContent(ctx context.Context, reportID, content, editedBy string) (*ApplyResult, error) {
	report, err := s.loadReport(reportID)
	if err != nil {
		return nil, err
	}

	if report.Mode != model.ReportModeMonolithic {
		return nil, errors.ErrInvalidState("report content is section-based, edit its sections instead")
	}

	return s.applyContent(ctx, streamTarget{
		resourceType: model.ResourceTypeReport,
		resourceID:   report.ID,
		load: func() (int, string, error) {
			current, err := s.loadReport(reportID)
			if err != nil {
				return 0, "", err
			}
			return current.Version, current.Content, nil
		},
		persist: func(st store.Store, newContent string, version int) error {
			return st.Report().UpdateContent(reportID, newContent, version)
		},
	}, content, editedBy)
}

func (s *Service) applyContent(ctx context.Context, target streamTarget, content, editedBy string) (*ApplyResult, error) {
	if content == "" {
		return nil, errors.ErrValidation("content is required")
	}

	lock, err := s.locks.Acquire(target.resourceType, target.resourceID, editedBy)
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(lock)

	// Read the resource under the lock so a commit that slipped in before
	// the acquire is the state this edit builds on
	version, current, err := target.load()
	if err != nil {
		return nil, err
	}

	err = s.store.Transaction(func(tx store.Store) error {
		entry := &model.EditHistoryEntry{
			ResourceType: target.resourceType,
			ResourceID:   target.resourceID,
			Version:      version,
			Content:      current,
			EditedBy:     editedBy,
			EditedAt:     time.Now(),
		}
		if err := tx.History().Append(entry); err != nil {
			return err
		}
		return target.persist(tx, content, version+1)
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePersistenceFailure, "failed to commit manual edit", err)
	}

	telemetry.GetMetrics().RecordEditCommit(ctx, string(target.resourceType))

	logger.Info("Committed manual edit",
		zap.String("resource_type", string(target.resourceType)),
		zap.String("resource_id", target.resourceID),
		zap.Int("version", version+1))

	return &ApplyResult{
		ResourceID: target.resourceID,
		Version:    version + 1,
	}, nil
}

// DeleteReport soft-deletes a report and its sections, then invalidates any
// edit locks held on them so a lock can never outlive its resource. The
// delete itself serializes on the report lock.
func (s *Service) DeleteReport(ctx context.Context, reportID, deletedBy string) error {
	if _, err := s.loadReport(reportID); err != nil {
		return err
	}

	lock, err := s.locks.Acquire(model.ResourceTypeReport, reportID, deletedBy)
	if err != nil {
		return err
	}

	// Section list read under the lock so every live section is deleted and
	// has its lock invalidated
	report, err := s.store.Report().GetByIDWithSections(reportID)
	if err != nil {
		s.releaseLock(lock)
		if err == gorm.ErrRecordNotFound {
			return errors.ErrNotFound("report")
		}
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to load report", err)
	}

	err = s.store.Transaction(func(tx store.Store) error {
		for _, section := range report.Sections {
			if err := tx.Section().Delete(section.ID); err != nil {
				return err
			}
		}
		return tx.Report().Delete(report.ID)
	})
	if err != nil {
		s.releaseLock(lock)
		return errors.Wrap(errors.ErrCodePersistenceFailure, "failed to delete report", err)
	}

	// Invalidate rather than release: the resources are gone, so any lock on
	// them, including our own, must go with them
	for _, section := range report.Sections {
		s.locks.Invalidate(model.ResourceTypeSection, section.ID)
	}
	s.locks.Invalidate(model.ResourceTypeReport, report.ID)

	logger.Info("Deleted report",
		zap.String("report_id", report.ID),
		zap.Int("sections", len(report.Sections)))

	return nil
}
