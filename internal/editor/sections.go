package editor

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/finsight/finsight/internal/editlock"
	"github.com/finsight/finsight/internal/model"
	"github.com/finsight/finsight/internal/store"
	"github.com/finsight/finsight/pkg/errors"
	"github.com/finsight/finsight/pkg/idgen"
	"github.com/finsight/finsight/pkg/logger"
	"github.com/finsight/finsight/pkg/telemetry"
)

// Structural operations on a report's section list. Every operation takes the
// report-level lock, so concurrent reorders serialize, and leaves section
// orders contiguous (0..N-1).

// InsertRequest describes a new section to generate and insert
type InsertRequest struct {
	// Title of the new section
	Title string
	// Prompt is the generation instruction for the section content
	Prompt string
	// Context is optional supporting context for the generator
	Context string
	// At is the requested position; clamped to [0, N]
	At int
	// EditedBy identifies the actor
	EditedBy string
}

// InsertSection generates a new section's content as a stream and inserts it
// at the requested position. The position is clamped to the valid range;
// existing sections at or after it shift up by one. The new section starts at
// version 1 with empty history. Nothing is persisted if generation fails.
func (s *Service) InsertSection(ctx context.Context, reportID string, req *InsertRequest, sink FrameSink) error {
	if req == nil || req.Prompt == "" {
		return errors.ErrValidation("prompt is required")
	}

	report, err := s.getInteractiveReport(reportID)
	if err != nil {
		return err
	}

	lock, err := s.locks.Acquire(model.ResourceTypeReport, report.ID, req.EditedBy)
	if err != nil {
		return err
	}
	defer s.releaseLock(lock)

	session := newSession(lock.Resource)
	s.sessions.add(session)
	defer s.sessions.remove(session)

	metrics := telemetry.GetMetrics()
	metrics.RecordEditStream(ctx, string(model.ResourceTypeReport))
	metrics.RecordStreamActive(ctx, 1)
	start := time.Now()
	defer func() {
		metrics.RecordStreamActive(ctx, -1)
		metrics.RecordStreamDuration(ctx, time.Since(start).Seconds())
	}()

	streamCtx, cancel := context.WithTimeout(ctx, s.maxStreamDuration)
	defer cancel()

	if err := session.beginStreaming(); err != nil {
		return err
	}

	content, err := s.runStream(streamCtx, session, streamTarget{
		resourceType: model.ResourceTypeReport,
		resourceID:   report.ID,
	}, "", &EditRequest{Prompt: req.Prompt, Context: req.Context, EditedBy: req.EditedBy}, sink)
	if err != nil {
		session.fail()
		metrics.RecordEditFailure(ctx, failureReason(err))
		s.emitError(sink, err)
		return err
	}

	section := &model.Section{
		ID:      idgen.NewSectionID(),
		Title:   req.Title,
		Content: content,
		Version: 1,
	}

	err = s.store.Transaction(func(tx store.Store) error {
		count, err := tx.Section().CountByReportID(report.ID)
		if err != nil {
			return err
		}
		at := clampOrder(req.At, int(count))
		if err := tx.Section().ShiftOrdersUp(report.ID, at); err != nil {
			return err
		}
		section.ReportID = report.ID
		section.Order = at
		if err := tx.Section().Create(section); err != nil {
			return err
		}
		return bumpReportVersion(tx, report)
	})
	if err != nil {
		session.fail()
		metrics.RecordEditFailure(ctx, "persistence")
		persistErr := errors.Wrap(errors.ErrCodePersistenceFailure, "failed to insert section", err)
		s.emitError(sink, persistErr)
		return persistErr
	}

	if err := session.commit(); err != nil {
		return err
	}
	metrics.RecordEditCommit(ctx, string(model.ResourceTypeSection))

	logger.Info("Inserted section",
		zap.String("report_id", report.ID),
		zap.String("section_id", section.ID),
		zap.Int("order", section.Order))

	return sink(CompleteFrame{
		ResourceID: section.ID,
		Version:    section.Version,
	})
}

// DeleteSection removes a section and closes the resulting gap so orders
// stay contiguous. Any lock held on the deleted section is invalidated, a
// lock cannot outlive its resource.
func (s *Service) DeleteSection(ctx context.Context, reportID, sectionID, editedBy string) error {
	report, err := s.getInteractiveReport(reportID)
	if err != nil {
		return err
	}

	lock, err := s.locks.Acquire(model.ResourceTypeReport, report.ID, editedBy)
	if err != nil {
		return err
	}
	defer s.releaseLock(lock)

	// Loaded under the report lock so the order used for the gap close
	// cannot be shifted by a concurrent structural change
	section, err := s.getOwnedSection(report.ID, sectionID)
	if err != nil {
		return err
	}

	err = s.store.Transaction(func(tx store.Store) error {
		if err := tx.Section().Delete(section.ID); err != nil {
			return err
		}
		if err := tx.Section().CloseOrderGap(report.ID, section.Order); err != nil {
			return err
		}
		return bumpReportVersion(tx, report)
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistenceFailure, "failed to delete section", err)
	}

	s.locks.Invalidate(model.ResourceTypeSection, section.ID)

	logger.Info("Deleted section",
		zap.String("report_id", report.ID),
		zap.String("section_id", section.ID),
		zap.Int("order", section.Order))

	return nil
}

// DuplicateSection copies a section's current content and title into a new
// section placed directly after the source. The copy starts at version 1
// with empty history; the source's history is not shared or copied.
func (s *Service) DuplicateSection(ctx context.Context, reportID, sectionID, editedBy string) (*model.Section, error) {
	report, err := s.getInteractiveReport(reportID)
	if err != nil {
		return nil, err
	}

	lock, err := s.locks.Acquire(model.ResourceTypeReport, report.ID, editedBy)
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(lock)

	// Source content and position read under the report lock
	source, err := s.getOwnedSection(report.ID, sectionID)
	if err != nil {
		return nil, err
	}

	dup := &model.Section{
		ID:       idgen.NewSectionID(),
		ReportID: report.ID,
		Order:    source.Order + 1,
		Title:    source.Title,
		Content:  source.Content,
		Version:  1,
	}

	err = s.store.Transaction(func(tx store.Store) error {
		if err := tx.Section().ShiftOrdersUp(report.ID, source.Order+1); err != nil {
			return err
		}
		if err := tx.Section().Create(dup); err != nil {
			return err
		}
		return bumpReportVersion(tx, report)
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePersistenceFailure, "failed to duplicate section", err)
	}

	logger.Info("Duplicated section",
		zap.String("report_id", report.ID),
		zap.String("source_id", source.ID),
		zap.String("copy_id", dup.ID))

	return dup, nil
}

// MoveSectionUp swaps a section with its predecessor. Moving the first
// section up is a no-op, not an error.
func (s *Service) MoveSectionUp(ctx context.Context, reportID, sectionID, editedBy string) ([]model.Section, error) {
	return s.moveSection(ctx, reportID, sectionID, editedBy, -1)
}

// MoveSectionDown swaps a section with its successor. Moving the last
// section down is a no-op, not an error.
func (s *Service) MoveSectionDown(ctx context.Context, reportID, sectionID, editedBy string) ([]model.Section, error) {
	return s.moveSection(ctx, reportID, sectionID, editedBy, 1)
}

func (s *Service) moveSection(ctx context.Context, reportID, sectionID, editedBy string, direction int) ([]model.Section, error) {
	report, err := s.getInteractiveReport(reportID)
	if err != nil {
		return nil, err
	}

	lock, err := s.locks.Acquire(model.ResourceTypeReport, report.ID, editedBy)
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(lock)

	// Position read under the report lock, like the neighbor lookup below
	section, err := s.getOwnedSection(report.ID, sectionID)
	if err != nil {
		return nil, err
	}

	targetOrder := section.Order + direction
	neighbor, err := s.store.Section().GetByReportAndOrder(report.ID, targetOrder)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			// Boundary move, leave everything as is
			return s.store.Section().GetByReportID(report.ID)
		}
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to load neighbor section", err)
	}

	err = s.store.Transaction(func(tx store.Store) error {
		if err := tx.Section().UpdateOrder(section.ID, targetOrder); err != nil {
			return err
		}
		if err := tx.Section().UpdateOrder(neighbor.ID, section.Order); err != nil {
			return err
		}
		return bumpReportVersion(tx, report)
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePersistenceFailure, "failed to move section", err)
	}

	logger.Info("Moved section",
		zap.String("report_id", report.ID),
		zap.String("section_id", section.ID),
		zap.Int("from", section.Order),
		zap.Int("to", targetOrder))

	return s.store.Section().GetByReportID(report.ID)
}

// getInteractiveReport loads a report and verifies it is section-based
func (s *Service) getInteractiveReport(reportID string) (*model.Report, error) {
	report, err := s.store.Report().GetByID(reportID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrNotFound("report")
		}
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to load report", err)
	}
	if report.Mode != model.ReportModeInteractive {
		return nil, errors.ErrInvalidState("report has no section list")
	}
	return report, nil
}

// getOwnedSection loads a section and verifies it belongs to the report
func (s *Service) getOwnedSection(reportID, sectionID string) (*model.Section, error) {
	section, err := s.store.Section().GetByID(sectionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrNotFound("section")
		}
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to load section", err)
	}
	if section.ReportID != reportID {
		return nil, errors.ErrNotFound("section")
	}
	return section, nil
}

// releaseLock releases with a warning on failure, for defer use
func (s *Service) releaseLock(lock *editlock.Lock) {
	if err := s.locks.Release(lock); err != nil {
		logger.Warn("Failed to release edit lock", zap.Error(err))
	}
}

// clampOrder clamps a requested insert position to [0, count]
func clampOrder(at, count int) int {
	if at < 0 {
		return 0
	}
	if at > count {
		return count
	}
	return at
}

// bumpReportVersion increments a report's version inside a transaction,
// recording the structural change.
func bumpReportVersion(tx store.Store, report *model.Report) error {
	return tx.DB().Model(&model.Report{}).
		Where("id = ?", report.ID).
		Update("version", gorm.Expr("version + 1")).Error
}
