package editor

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/finsight/finsight/internal/editlock"
	"github.com/finsight/finsight/internal/generator"
	"github.com/finsight/finsight/internal/model"
	"github.com/finsight/finsight/internal/store"
	"github.com/finsight/finsight/pkg/errors"
	"github.com/finsight/finsight/pkg/logger"
	"github.com/finsight/finsight/pkg/telemetry"
)

// DefaultMaxStreamDuration bounds a single streaming edit
const DefaultMaxStreamDuration = 10 * time.Minute

// Config holds editor configuration
type Config struct {
	LockTTL           time.Duration `yaml:"lock_ttl" json:"lock_ttl"`
	LockSweepInterval time.Duration `yaml:"lock_sweep_interval" json:"lock_sweep_interval"`
	MaxStreamDuration time.Duration `yaml:"max_stream_duration" json:"max_stream_duration"`
}

// DefaultConfig returns the default editor configuration
func DefaultConfig() Config {
	return Config{
		LockTTL:           editlock.DefaultTTL,
		LockSweepInterval: editlock.DefaultSweepInterval,
		MaxStreamDuration: DefaultMaxStreamDuration,
	}
}

// Service is the streaming edit engine. It owns the protocol sequence for
// every edit: acquire the resource lock, stream generated fragments to the
// caller, and on success commit history, content, and version atomically
// before releasing the lock. A failed or disconnected stream commits nothing.
type Service struct {
	store store.Store
	locks *editlock.Registry
	gen   generator.Client

	maxStreamDuration time.Duration
	sessions          *sessionTracker
}

// NewService creates an editor service
func NewService(st store.Store, locks *editlock.Registry, gen generator.Client, cfg Config) *Service {
	if cfg.MaxStreamDuration <= 0 {
		cfg.MaxStreamDuration = DefaultMaxStreamDuration
	}
	return &Service{
		store:             st,
		locks:             locks,
		gen:               gen,
		maxStreamDuration: cfg.MaxStreamDuration,
		sessions:          newSessionTracker(),
	}
}

// Locks exposes the lock registry for callers that coordinate with edits
func (s *Service) Locks() *editlock.Registry {
	return s.locks
}

// ActiveSession returns the in-flight edit session for a resource, or nil
// when the resource is not being edited.
func (s *Service) ActiveSession(resourceType model.ResourceType, resourceID string) *Session {
	return s.sessions.get(editlock.Resource{Type: resourceType, ID: resourceID})
}

// EditRequest describes one requested edit
type EditRequest struct {
	// Prompt is the edit instruction
	Prompt string
	// Context is optional supporting context passed to the generator
	Context string
	// EditedBy identifies the actor for the history entry
	EditedBy string
}

// EditSection performs a streaming edit of one section. Frames are written
// to sink in order; on success the section's previous content is appended to
// history, its version incremented, and the new content stored, all in one
// transaction while the section lock is held.
func (s *Service) EditSection(ctx context.Context, sectionID string, req *EditRequest, sink FrameSink) error {
	if _, err := s.loadSection(sectionID); err != nil {
		return err
	}

	return s.streamEdit(ctx, streamTarget{
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
	}, req, sink)
}

// EditReport performs a streaming edit of a monolithic report's content.
// Reports in interactive mode are edited through their sections; editing the
// report body directly is rejected.
func (s *Service) EditReport(ctx context.Context, reportID string, req *EditRequest, sink FrameSink) error {
	report, err := s.loadReport(reportID)
	if err != nil {
		return err
	}

	if report.Mode != model.ReportModeMonolithic {
		return errors.ErrInvalidState("report content is section-based, edit its sections instead")
	}

	return s.streamEdit(ctx, streamTarget{
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
	}, req, sink)
}

// streamTarget captures what streamEdit needs to know about the resource
// being edited without caring whether it is a report or a section. load is
// called only while the resource lock is held, so the version and content it
// returns cannot be invalidated by a concurrent commit.
type streamTarget struct {
	resourceType model.ResourceType
	resourceID   string
	load         func() (version int, content string, err error)
	persist      func(st store.Store, newContent string, version int) error
}

// loadSection loads a section, mapping a missing row to a not found error
func (s *Service) loadSection(sectionID string) (*model.Section, error) {
	section, err := s.store.Section().GetByID(sectionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrNotFound("section")
		}
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to load section", err)
	}
	return section, nil
}

// loadReport loads a report, mapping a missing row to a not found error
func (s *Service) loadReport(reportID string) (*model.Report, error) {
	report, err := s.store.Report().GetByID(reportID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrNotFound("report")
		}
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to load report", err)
	}
	return report, nil
}

func (s *Service) streamEdit(ctx context.Context, target streamTarget, req *EditRequest, sink FrameSink) error {
	if req == nil || req.Prompt == "" {
		return errors.ErrValidation("prompt is required")
	}

	lock, err := s.locks.Acquire(target.resourceType, target.resourceID, req.EditedBy)
	if err != nil {
		return err
	}
	// Exactly one release per acquire, on every exit path
	defer func() {
		if releaseErr := s.locks.Release(lock); releaseErr != nil {
			logger.Warn("Failed to release edit lock",
				zap.String("resource_id", target.resourceID),
				zap.Error(releaseErr))
		}
	}()

	// Read the resource under the lock. An edit that committed between the
	// route lookup and the acquire is part of the state we build on, not
	// state we overwrite.
	version, content, err := target.load()
	if err != nil {
		return err
	}

	session := newSession(lock.Resource)
	s.sessions.add(session)
	defer s.sessions.remove(session)

	metrics := telemetry.GetMetrics()
	metrics.RecordEditStream(ctx, string(target.resourceType))
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

	newContent, err := s.runStream(streamCtx, session, target, content, req, sink)
	if err != nil {
		session.fail()
		metrics.RecordEditFailure(ctx, failureReason(err))
		s.emitError(sink, err)
		logger.Warn("Streaming edit failed",
			zap.String("resource_type", string(target.resourceType)),
			zap.String("resource_id", target.resourceID),
			zap.Int("fragments", session.Fragments()),
			zap.Error(err))
		return err
	}

	// Commit atomically: history append, content, and version move together
	err = s.store.Transaction(func(tx store.Store) error {
		entry := &model.EditHistoryEntry{
			ResourceType: target.resourceType,
			ResourceID:   target.resourceID,
			Version:      version,
			Content:      content,
			Prompt:       &req.Prompt,
			EditedBy:     req.EditedBy,
			EditedAt:     time.Now(),
		}
		if err := tx.History().Append(entry); err != nil {
			return err
		}
		return target.persist(tx, newContent, version+1)
	})
	if err != nil {
		session.fail()
		metrics.RecordEditFailure(ctx, "persistence")
		persistErr := errors.Wrap(errors.ErrCodePersistenceFailure, "failed to commit edit", err)
		s.emitError(sink, persistErr)
		logger.Error("Failed to commit streaming edit",
			zap.String("resource_type", string(target.resourceType)),
			zap.String("resource_id", target.resourceID),
			zap.Error(err))
		return persistErr
	}

	if err := session.commit(); err != nil {
		return err
	}
	metrics.RecordEditCommit(ctx, string(target.resourceType))

	logger.Info("Committed streaming edit",
		zap.String("resource_type", string(target.resourceType)),
		zap.String("resource_id", target.resourceID),
		zap.Int("version", version+1),
		zap.Int("fragments", session.Fragments()))

	return sink(CompleteFrame{
		ResourceID: target.resourceID,
		Version:    version + 1,
	})
}

// runStream drives the generator and forwards fragments to the sink, using
// current as the default generation context. It returns the full generated
// content on success.
func (s *Service) runStream(ctx context.Context, session *Session, target streamTarget, current string, req *EditRequest, sink FrameSink) (string, error) {
	genReq := generator.NewRequest(req.Prompt).
		WithContext(req.Context).
		WithMetadata("resource_type", string(target.resourceType)).
		WithMetadata("resource_id", target.resourceID)
	if genReq.Context == "" {
		genReq.Context = current
	}

	var sinkErr error
	resp, err := s.gen.ExecuteStream(ctx, genReq, func(chunk *generator.StreamChunk) {
		if sinkErr != nil || chunk == nil {
			return
		}
		if chunk.Type != generator.ChunkTypeText || chunk.Delta == "" {
			return
		}
		session.recordFragment()
		sinkErr = sink(ContentFrame{Content: chunk.Delta})
	})
	if sinkErr != nil {
		// Client went away mid-stream; nothing was committed
		return "", errors.Wrap(errors.ErrCodeInternal, "edit stream consumer failed", sinkErr)
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(errors.ErrCodeUpstreamFailure, "edit stream aborted", ctx.Err())
		}
		return "", errors.Wrap(errors.ErrCodeUpstreamFailure, "generation failed", err)
	}
	if resp == nil || resp.Content == "" {
		return "", errors.New(errors.ErrCodeUpstreamFailure, "generator returned empty content")
	}
	return resp.Content, nil
}

// emitError writes a terminal error frame, best effort. The sink may already
// be gone (disconnected client), which is fine.
func (s *Service) emitError(sink FrameSink, err error) {
	if sink == nil {
		return
	}
	if sinkErr := sink(NewErrorFrame(err)); sinkErr != nil {
		logger.Debug("Could not deliver error frame", zap.Error(sinkErr))
	}
}

// failureReason maps an error to a low-cardinality metric label
func failureReason(err error) string {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		return "internal"
	}
	switch appErr.Code {
	case errors.ErrCodeUpstreamFailure:
		return "upstream"
	case errors.ErrCodePersistenceFailure:
		return "persistence"
	case errors.ErrCodeBusy:
		return "busy"
	default:
		return "internal"
	}
}
