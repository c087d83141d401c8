package store

import (
	"gorm.io/gorm"

	"github.com/finsight/finsight/internal/model"
)

// ReportStore defines operations for the Report model.
type ReportStore interface {
	// Report CRUD
	Create(report *model.Report) error
	GetByID(id string) (*model.Report, error)
	GetByIDWithSections(id string) (*model.Report, error)
	Update(report *model.Report) error
	Save(report *model.Report) error
	Delete(id string) error

	// Report content updates
	UpdateContent(id string, content string, version int) error
	UpdateTitle(id string, title string) error
	AppendInsight(id string, insight model.Insight) error

	// Report queries
	List(ownerID, threadID string, page, pageSize int) ([]model.Report, int64, error)
	ListByThread(threadID string) ([]model.Report, error)
	GetLatestByThread(threadID string) (*model.Report, error)
	CountAll() (int64, error)

	// ListDeletedBefore returns soft-deleted reports whose deletion happened
	// before the cutoff, for retention sweeps.
	ListDeletedBefore(cutoff int64, limit int) ([]model.Report, error)
	HardDelete(id string) error
}

// reportStore implements ReportStore using GORM.
type reportStore struct {
	db *gorm.DB
}

func newReportStore(db *gorm.DB) ReportStore {
	return &reportStore{db: db}
}

// Report CRUD implementations

func (s *reportStore) Create(report *model.Report) error {
	return s.db.Create(report).Error
}

func (s *reportStore) GetByID(id string) (*model.Report, error) {
	var report model.Report
	err := s.db.First(&report, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// GetByIDWithSections retrieves a report by ID and preloads its sections
// in order.
func (s *reportStore) GetByIDWithSections(id string) (*model.Report, error) {
	var report model.Report
	err := s.db.Preload("Sections", func(db *gorm.DB) *gorm.DB {
		return db.Order("order_index ASC")
	}).First(&report, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *reportStore) Update(report *model.Report) error {
	return s.db.Model(report).Updates(report).Error
}

func (s *reportStore) Save(report *model.Report) error {
	return s.db.Save(report).Error
}

func (s *reportStore) Delete(id string) error {
	return s.db.Delete(&model.Report{}, "id = ?", id).Error
}

// Report content updates

func (s *reportStore) UpdateContent(id string, content string, version int) error {
	return s.db.Model(&model.Report{}).Where("id = ?", id).Updates(map[string]interface{}{
		"content": content,
		"version": version,
	}).Error
}

func (s *reportStore) UpdateTitle(id string, title string) error {
	return s.db.Model(&model.Report{}).Where("id = ?", id).Update("title", title).Error
}

// AppendInsight appends an insight to the report's insight list.
func (s *reportStore) AppendInsight(id string, insight model.Insight) error {
	var report model.Report
	if err := s.db.First(&report, "id = ?", id).Error; err != nil {
		return err
	}
	report.Insights = append(report.Insights, insight)
	return s.db.Model(&report).Update("insights", report.Insights).Error
}

// Report queries

// List lists reports with optional filters and pagination.
func (s *reportStore) List(ownerID, threadID string, page, pageSize int) ([]model.Report, int64, error) {
	var reports []model.Report
	var total int64

	query := s.db.Model(&model.Report{})

	if ownerID != "" {
		query = query.Where("owner_id = ?", ownerID)
	}
	if threadID != "" {
		query = query.Where("thread_id = ?", threadID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&reports).Error
	return reports, total, err
}

func (s *reportStore) ListByThread(threadID string) ([]model.Report, error) {
	var reports []model.Report
	err := s.db.Where("thread_id = ?", threadID).Order("created_at ASC").Find(&reports).Error
	return reports, err
}

func (s *reportStore) GetLatestByThread(threadID string) (*model.Report, error) {
	var report model.Report
	err := s.db.Where("thread_id = ?", threadID).
		Order("created_at DESC").
		First(&report).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *reportStore) CountAll() (int64, error) {
	var count int64
	err := s.db.Model(&model.Report{}).Count(&count).Error
	return count, err
}

func (s *reportStore) ListDeletedBefore(cutoff int64, limit int) ([]model.Report, error) {
	var reports []model.Report
	err := s.db.Unscoped().
		Where("deleted_at IS NOT NULL AND deleted_at < datetime(?, 'unixepoch')", cutoff).
		Limit(limit).
		Find(&reports).Error
	return reports, err
}

func (s *reportStore) HardDelete(id string) error {
	return s.db.Unscoped().Delete(&model.Report{}, "id = ?", id).Error
}
