// Package contextbudget maintains derived context snapshots for reports and
// threads and keeps their token footprint inside a configured budget.
//
// A snapshot is the markdown rendering of an entity used as generation input.
// It is created lazily on first request, regenerated in place on demand, and
// never duplicated per entity.
package contextbudget

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/finsight/finsight/internal/generator"
	"github.com/finsight/finsight/internal/model"
	"github.com/finsight/finsight/internal/store"
	"github.com/finsight/finsight/pkg/errors"
	"github.com/finsight/finsight/pkg/logger"
	"github.com/finsight/finsight/pkg/telemetry"
)

// CharsPerToken is the character-to-token heuristic used for estimates.
// Close enough for budget decisions without shipping tokenizer tables.
const CharsPerToken = 4.0

// DefaultMaxTokens is the default context budget
const DefaultMaxTokens = 32000

// Config holds context budget configuration
type Config struct {
	// MaxTokens is the budget a snapshot should stay within
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
	// CompressThreshold is the budget fraction above which estimates
	// recommend compression
	CompressThreshold float64 `yaml:"compress_threshold" json:"compress_threshold"`
}

// DefaultConfig returns the default context budget configuration
func DefaultConfig() Config {
	return Config{
		MaxTokens:         DefaultMaxTokens,
		CompressThreshold: 0.8,
	}
}

// EstimateTokens estimates the token count of a string
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return int(math.Ceil(float64(len(s)) / CharsPerToken))
}

// Manager owns snapshot lifecycle and budget decisions
type Manager struct {
	store store.Store
	gen   generator.Client
	cfg   Config
}

// NewManager creates a context budget manager
func NewManager(st store.Store, gen generator.Client, cfg Config) *Manager {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.CompressThreshold <= 0 || cfg.CompressThreshold > 1 {
		cfg.CompressThreshold = 0.8
	}
	return &Manager{store: st, gen: gen, cfg: cfg}
}

// Snapshot returns the entity's snapshot, creating it on first request
func (m *Manager) Snapshot(ctx context.Context, entityType model.EntityType, entityID string) (*model.ContextSnapshot, error) {
	snapshot, err := m.store.Snapshot().GetByEntity(entityType, entityID)
	if err == nil {
		return snapshot, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to load snapshot", err)
	}
	return m.Regenerate(ctx, entityType, entityID)
}

// Regenerate rebuilds the snapshot from the entity's current state and
// stores it in place, bumping the snapshot version.
func (m *Manager) Regenerate(ctx context.Context, entityType model.EntityType, entityID string) (*model.ContextSnapshot, error) {
	var markdown string
	var sectionCount, messageCount int
	var err error

	switch entityType {
	case model.EntityTypeReport:
		markdown, sectionCount, err = m.renderReport(entityID)
	case model.EntityTypeThread:
		markdown, messageCount, err = m.renderThread(entityID)
	default:
		return nil, errors.ErrValidation(fmt.Sprintf("unknown entity type '%s'", entityType))
	}
	if err != nil {
		return nil, err
	}

	snapshot := &model.ContextSnapshot{
		EntityType:      entityType,
		EntityID:        entityID,
		MarkdownContent: markdown,
		WordCount:       len(strings.Fields(markdown)),
		CharacterCount:  len(markdown),
		SectionCount:    sectionCount,
		MessageCount:    messageCount,
		TotalTokens:     EstimateTokens(markdown),
	}

	if err := m.store.Snapshot().Upsert(snapshot); err != nil {
		return nil, errors.Wrap(errors.ErrCodePersistenceFailure, "failed to store snapshot", err)
	}

	logger.Debug("Regenerated context snapshot",
		zap.String("entity_type", string(entityType)),
		zap.String("entity_id", entityID),
		zap.Int("tokens", snapshot.TotalTokens),
		zap.Int("version", snapshot.Version))

	return snapshot, nil
}

// freshSnapshot returns the entity's snapshot, regenerating it first when the
// entity was edited after the snapshot was last written. A compressed snapshot
// stays in place until the underlying content actually changes.
func (m *Manager) freshSnapshot(ctx context.Context, entityType model.EntityType, entityID string) (*model.ContextSnapshot, error) {
	snapshot, err := m.store.Snapshot().GetByEntity(entityType, entityID)
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to load snapshot", err)
		}
		return m.Regenerate(ctx, entityType, entityID)
	}

	stale, err := m.contentChangedSince(entityType, entityID, snapshot.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if stale {
		return m.Regenerate(ctx, entityType, entityID)
	}
	return snapshot, nil
}

// contentChangedSince reports whether the entity's content was modified after
// ts. Section edits touch only the section row, so report freshness checks
// every section timestamp, not just the report's own.
func (m *Manager) contentChangedSince(entityType model.EntityType, entityID string, ts time.Time) (bool, error) {
	switch entityType {
	case model.EntityTypeReport:
		report, err := m.store.Report().GetByIDWithSections(entityID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return false, errors.ErrNotFound("report")
			}
			return false, errors.Wrap(errors.ErrCodeDBQuery, "failed to load report", err)
		}
		if report.UpdatedAt.After(ts) {
			return true, nil
		}
		for _, section := range report.Sections {
			if section.UpdatedAt.After(ts) {
				return true, nil
			}
		}
		return false, nil
	case model.EntityTypeThread:
		reports, err := m.store.Report().ListByThread(entityID)
		if err != nil {
			return false, errors.Wrap(errors.ErrCodeDBQuery, "failed to load thread reports", err)
		}
		for _, report := range reports {
			if report.UpdatedAt.After(ts) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, errors.ErrValidation(fmt.Sprintf("unknown entity type '%s'", entityType))
	}
}

// Estimate reports the entity's current token footprint against the budget.
// The estimate is recomputed from the snapshot content on every call, it is
// never served from the stored stats alone.
type Estimate struct {
	EntityType      model.EntityType `json:"entity_type"`
	EntityID        string           `json:"entity_id"`
	TotalTokens     int              `json:"total_tokens"`
	MaxTokens       int              `json:"max_tokens"`
	UsedPercent     float64          `json:"used_percent"`
	WithinBudget    bool             `json:"within_budget"`
	ShouldCompress  bool             `json:"should_compress"`
	WordCount       int              `json:"word_count"`
	CharacterCount  int              `json:"character_count"`
	SnapshotVersion int              `json:"snapshot_version"`
}

// Estimate computes the budget estimate for an entity. The snapshot is
// created if it does not exist yet and regenerated if the entity was edited
// since it was last built, so the estimate always reflects current content.
func (m *Manager) Estimate(ctx context.Context, entityType model.EntityType, entityID string) (*Estimate, error) {
	snapshot, err := m.freshSnapshot(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}

	tokens := EstimateTokens(snapshot.MarkdownContent)
	usedPercent := 0.0
	if m.cfg.MaxTokens > 0 {
		usedPercent = float64(tokens) / float64(m.cfg.MaxTokens) * 100
	}

	return &Estimate{
		EntityType:      entityType,
		EntityID:        entityID,
		TotalTokens:     tokens,
		MaxTokens:       m.cfg.MaxTokens,
		UsedPercent:     usedPercent,
		WithinBudget:    tokens <= m.cfg.MaxTokens,
		ShouldCompress:  float64(tokens) >= float64(m.cfg.MaxTokens)*m.cfg.CompressThreshold,
		WordCount:       len(strings.Fields(snapshot.MarkdownContent)),
		CharacterCount:  len(snapshot.MarkdownContent),
		SnapshotVersion: snapshot.Version,
	}, nil
}

// CompressResult reports the outcome of a compression attempt
type CompressResult struct {
	EntityType     model.EntityType `json:"entity_type"`
	EntityID       string           `json:"entity_id"`
	TokensBefore   int              `json:"tokens_before"`
	TokensAfter    int              `json:"tokens_after"`
	SavingsPercent float64          `json:"savings_percent"`
	// Applied is false when compression produced no savings and the
	// original snapshot was kept
	Applied bool `json:"applied"`
}

// Compress asks the generator to condense the snapshot, regenerating it
// first if the entity was edited since it was last built. Compression is best
// effort and idempotent: a snapshot that cannot be shrunk further is left
// untouched and the result reports zero or negative savings.
func (m *Manager) Compress(ctx context.Context, entityType model.EntityType, entityID string) (*CompressResult, error) {
	snapshot, err := m.freshSnapshot(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}

	tokensBefore := EstimateTokens(snapshot.MarkdownContent)
	if tokensBefore == 0 {
		return &CompressResult{
			EntityType: entityType,
			EntityID:   entityID,
			Applied:    false,
		}, nil
	}

	req := generator.NewRequest(
		"Condense the following context. Preserve every figure, entity name, and conclusion; drop repetition and filler. Return only the condensed markdown.").
		WithContext(snapshot.MarkdownContent).
		WithMetadata("entity_type", string(entityType)).
		WithMetadata("entity_id", entityID)

	resp, err := m.gen.Execute(ctx, req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpstreamFailure, "compression generation failed", err)
	}

	compressed := strings.TrimSpace(resp.Content)
	tokensAfter := EstimateTokens(compressed)
	savings := float64(tokensBefore-tokensAfter) / float64(tokensBefore) * 100

	result := &CompressResult{
		EntityType:     entityType,
		EntityID:       entityID,
		TokensBefore:   tokensBefore,
		TokensAfter:    tokensAfter,
		SavingsPercent: savings,
	}

	if compressed == "" || tokensAfter >= tokensBefore {
		logger.Warn("Compression produced no savings, keeping original snapshot",
			zap.String("entity_type", string(entityType)),
			zap.String("entity_id", entityID),
			zap.Int("tokens_before", tokensBefore),
			zap.Int("tokens_after", tokensAfter))
		telemetry.GetMetrics().RecordCompression(ctx, string(entityType), savings)
		return result, nil
	}

	snapshot.MarkdownContent = compressed
	snapshot.WordCount = len(strings.Fields(compressed))
	snapshot.CharacterCount = len(compressed)
	snapshot.TotalTokens = tokensAfter
	if err := m.store.Snapshot().Upsert(snapshot); err != nil {
		return nil, errors.Wrap(errors.ErrCodePersistenceFailure, "failed to store compressed snapshot", err)
	}

	result.Applied = true
	telemetry.GetMetrics().RecordCompression(ctx, string(entityType), savings)

	logger.Info("Compressed context snapshot",
		zap.String("entity_type", string(entityType)),
		zap.String("entity_id", entityID),
		zap.Float64("savings_percent", savings))

	return result, nil
}

// renderReport builds the markdown view of a report
func (m *Manager) renderReport(reportID string) (string, int, error) {
	report, err := m.store.Report().GetByIDWithSections(reportID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", 0, errors.ErrNotFound("report")
		}
		return "", 0, errors.Wrap(errors.ErrCodeDBQuery, "failed to load report", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", report.Title)

	if len(report.Insights) > 0 {
		b.WriteString("## Insights\n\n")
		for _, insight := range report.Insights {
			fmt.Fprintf(&b, "- **%s**: %s\n", insight.Label, insight.Text)
		}
		b.WriteString("\n")
	}

	if report.Mode == model.ReportModeMonolithic {
		b.WriteString(report.Content)
		b.WriteString("\n")
		return b.String(), 0, nil
	}

	for _, section := range report.Sections {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", section.Title, section.Content)
	}
	return b.String(), len(report.Sections), nil
}

// renderThread builds the markdown view of a conversation thread's reports
func (m *Manager) renderThread(threadID string) (string, int, error) {
	reports, err := m.store.Report().ListByThread(threadID)
	if err != nil {
		return "", 0, errors.Wrap(errors.ErrCodeDBQuery, "failed to load thread reports", err)
	}
	if len(reports) == 0 {
		return "", 0, errors.ErrNotFound("thread")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Thread %s\n\n", threadID)
	for _, report := range reports {
		fmt.Fprintf(&b, "## %s (version %d)\n\n", report.Title, report.Version)
		for _, insight := range report.Insights {
			fmt.Fprintf(&b, "- **%s**: %s\n", insight.Label, insight.Text)
		}
		b.WriteString("\n")
	}
	return b.String(), len(reports), nil
}
