package store

import (
	"gorm.io/gorm"

	"github.com/finsight/finsight/internal/model"
)

// HistoryStore defines operations for the append-only edit history.
// Entries are never updated or reordered; deletion happens only through
// retention sweeps of hard-deleted resources.
type HistoryStore interface {
	Append(entry *model.EditHistoryEntry) error
	ListByResource(resourceType model.ResourceType, resourceID string) ([]model.EditHistoryEntry, error)
	GetByResourceAndVersion(resourceType model.ResourceType, resourceID string, version int) (*model.EditHistoryEntry, error)
	CountByResource(resourceType model.ResourceType, resourceID string) (int64, error)
	DeleteByResource(resourceType model.ResourceType, resourceID string) error
}

// historyStore implements HistoryStore using GORM.
type historyStore struct {
	db *gorm.DB
}

func newHistoryStore(db *gorm.DB) HistoryStore {
	return &historyStore{db: db}
}

func (s *historyStore) Append(entry *model.EditHistoryEntry) error {
	return s.db.Create(entry).Error
}

// ListByResource returns history entries oldest first, so the slice index
// mirrors the version progression.
func (s *historyStore) ListByResource(resourceType model.ResourceType, resourceID string) ([]model.EditHistoryEntry, error) {
	var entries []model.EditHistoryEntry
	err := s.db.Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("version ASC").
		Find(&entries).Error
	return entries, err
}

func (s *historyStore) GetByResourceAndVersion(resourceType model.ResourceType, resourceID string, version int) (*model.EditHistoryEntry, error) {
	var entry model.EditHistoryEntry
	err := s.db.Where("resource_type = ? AND resource_id = ? AND version = ?", resourceType, resourceID, version).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *historyStore) CountByResource(resourceType model.ResourceType, resourceID string) (int64, error) {
	var count int64
	err := s.db.Model(&model.EditHistoryEntry{}).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Count(&count).Error
	return count, err
}

func (s *historyStore) DeleteByResource(resourceType model.ResourceType, resourceID string) error {
	return s.db.Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Delete(&model.EditHistoryEntry{}).Error
}
