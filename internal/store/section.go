package store

import (
	"gorm.io/gorm"

	"github.com/finsight/finsight/internal/model"
)

// SectionStore defines operations for the Section model.
type SectionStore interface {
	// Section CRUD
	Create(section *model.Section) error
	BatchCreate(sections []model.Section) error
	GetByID(id string) (*model.Section, error)
	GetByReportID(reportID string) ([]model.Section, error)
	GetByReportAndOrder(reportID string, order int) (*model.Section, error)
	Save(section *model.Section) error
	Delete(id string) error

	// Section content updates
	UpdateContent(id string, content string, version int) error
	UpdateOrder(id string, order int) error

	// Order management. ShiftOrdersUp makes room at fromOrder by
	// incrementing every section at or after it.
	ShiftOrdersUp(reportID string, fromOrder int) error
	// CloseOrderGap decrements every section after removedOrder so orders
	// stay contiguous after a delete.
	CloseOrderGap(reportID string, removedOrder int) error

	CountByReportID(reportID string) (int64, error)

	// Retention support. ListByReportUnscoped includes soft-deleted rows;
	// HardDeleteByReport permanently removes all of a report's sections.
	ListByReportUnscoped(reportID string) ([]model.Section, error)
	HardDeleteByReport(reportID string) error
}

// sectionStore implements SectionStore using GORM.
type sectionStore struct {
	db *gorm.DB
}

func newSectionStore(db *gorm.DB) SectionStore {
	return &sectionStore{db: db}
}

func (s *sectionStore) Create(section *model.Section) error {
	return s.db.Create(section).Error
}

func (s *sectionStore) BatchCreate(sections []model.Section) error {
	if len(sections) == 0 {
		return nil
	}
	return s.db.Create(&sections).Error
}

func (s *sectionStore) GetByID(id string) (*model.Section, error) {
	var section model.Section
	err := s.db.First(&section, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &section, nil
}

func (s *sectionStore) GetByReportID(reportID string) ([]model.Section, error) {
	var sections []model.Section
	err := s.db.Where("report_id = ?", reportID).Order("order_index ASC").Find(&sections).Error
	return sections, err
}

func (s *sectionStore) GetByReportAndOrder(reportID string, order int) (*model.Section, error) {
	var section model.Section
	err := s.db.Where("report_id = ? AND order_index = ?", reportID, order).First(&section).Error
	if err != nil {
		return nil, err
	}
	return &section, nil
}

func (s *sectionStore) Save(section *model.Section) error {
	return s.db.Save(section).Error
}

func (s *sectionStore) Delete(id string) error {
	return s.db.Delete(&model.Section{}, "id = ?", id).Error
}

func (s *sectionStore) UpdateContent(id string, content string, version int) error {
	return s.db.Model(&model.Section{}).Where("id = ?", id).Updates(map[string]interface{}{
		"content": content,
		"version": version,
	}).Error
}

func (s *sectionStore) UpdateOrder(id string, order int) error {
	return s.db.Model(&model.Section{}).Where("id = ?", id).Update("order_index", order).Error
}

func (s *sectionStore) ShiftOrdersUp(reportID string, fromOrder int) error {
	return s.db.Model(&model.Section{}).
		Where("report_id = ? AND order_index >= ?", reportID, fromOrder).
		Update("order_index", gorm.Expr("order_index + 1")).Error
}

func (s *sectionStore) CloseOrderGap(reportID string, removedOrder int) error {
	return s.db.Model(&model.Section{}).
		Where("report_id = ? AND order_index > ?", reportID, removedOrder).
		Update("order_index", gorm.Expr("order_index - 1")).Error
}

func (s *sectionStore) CountByReportID(reportID string) (int64, error) {
	var count int64
	err := s.db.Model(&model.Section{}).Where("report_id = ?", reportID).Count(&count).Error
	return count, err
}

func (s *sectionStore) ListByReportUnscoped(reportID string) ([]model.Section, error) {
	var sections []model.Section
	err := s.db.Unscoped().Where("report_id = ?", reportID).Find(&sections).Error
	return sections, err
}

func (s *sectionStore) HardDeleteByReport(reportID string) error {
	return s.db.Unscoped().Where("report_id = ?", reportID).Delete(&model.Section{}).Error
}
