package store

import (
	"errors"

	"gorm.io/gorm"

	"github.com/finsight/finsight/internal/model"
)

// SnapshotStore defines operations for context snapshots. A snapshot is
// unique per (entity_type, entity_id) and regenerated in place.
type SnapshotStore interface {
	GetByEntity(entityType model.EntityType, entityID string) (*model.ContextSnapshot, error)
	// Upsert creates the snapshot if missing, otherwise overwrites its
	// content and stats and bumps the version.
	Upsert(snapshot *model.ContextSnapshot) error
	Save(snapshot *model.ContextSnapshot) error
	DeleteByEntity(entityType model.EntityType, entityID string) error
	ListEntityIDs(entityType model.EntityType) ([]string, error)
}

// snapshotStore implements SnapshotStore using GORM.
type snapshotStore struct {
	db *gorm.DB
}

func newSnapshotStore(db *gorm.DB) SnapshotStore {
	return &snapshotStore{db: db}
}

func (s *snapshotStore) GetByEntity(entityType model.EntityType, entityID string) (*model.ContextSnapshot, error) {
	var snapshot model.ContextSnapshot
	err := s.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).First(&snapshot).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *snapshotStore) Upsert(snapshot *model.ContextSnapshot) error {
	existing, err := s.GetByEntity(snapshot.EntityType, snapshot.EntityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			snapshot.Version = 1
			return s.db.Create(snapshot).Error
		}
		return err
	}

	existing.MarkdownContent = snapshot.MarkdownContent
	existing.WordCount = snapshot.WordCount
	existing.CharacterCount = snapshot.CharacterCount
	existing.MessageCount = snapshot.MessageCount
	existing.SectionCount = snapshot.SectionCount
	existing.TotalTokens = snapshot.TotalTokens
	existing.Version++
	if err := s.db.Save(existing).Error; err != nil {
		return err
	}
	*snapshot = *existing
	return nil
}

func (s *snapshotStore) Save(snapshot *model.ContextSnapshot) error {
	return s.db.Save(snapshot).Error
}

func (s *snapshotStore) DeleteByEntity(entityType model.EntityType, entityID string) error {
	return s.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Delete(&model.ContextSnapshot{}).Error
}

func (s *snapshotStore) ListEntityIDs(entityType model.EntityType) ([]string, error) {
	var ids []string
	err := s.db.Model(&model.ContextSnapshot{}).
		Where("entity_type = ?", entityType).
		Pluck("entity_id", &ids).Error
	return ids, err
}
