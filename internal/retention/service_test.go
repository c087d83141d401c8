package retention

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/finsight/finsight/internal/model"
	"github.com/finsight/finsight/internal/store"
)

// backdateDeletion soft-deletes a report and moves its deleted_at past the
// retention cutoff.
func backdateDeletion(t *testing.T, st store.Store, reportID string, daysAgo int) {
	t.Helper()
	if err := st.Report().Delete(reportID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	past := time.Now().AddDate(0, 0, -daysAgo)
	err := st.DB().Unscoped().Model(&model.Report{}).
		Where("id = ?", reportID).
		Update("deleted_at", past).Error
	if err != nil {
		t.Fatalf("Failed to backdate deleted_at: %v", err)
	}
}

func appendHistory(t *testing.T, st store.Store, resourceType model.ResourceType, resourceID string) {
	t.Helper()
	entry := &model.EditHistoryEntry{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Version:      1,
		Content:      "<p>archived</p>",
		EditedBy:     "user-1",
		EditedAt:     time.Now(),
	}
	if err := st.History().Append(entry); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
}

// TestSweep_PurgesExpiredReports tests that a sweep removes every row
// belonging to a report soft-deleted past the retention window
func TestSweep_PurgesExpiredReports(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	report := store.CreateTestReport(t, st)
	section := store.CreateTestSection(t, st, report.ID, 0)
	appendHistory(t, st, model.ResourceTypeReport, report.ID)
	appendHistory(t, st, model.ResourceTypeSection, section.ID)

	snapshot := &model.ContextSnapshot{
		EntityType:      model.EntityTypeReport,
		EntityID:        report.ID,
		MarkdownContent: "## Holdings Overview",
	}
	if err := st.Snapshot().Upsert(snapshot); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	backdateDeletion(t, st, report.ID, 40)

	svc := NewService(st, "", 30)
	svc.sweep()

	var count int64
	if err := st.DB().Unscoped().Model(&model.Report{}).Where("id = ?", report.ID).Count(&count).Error; err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 0 {
		t.Error("Expected report row to be hard-deleted")
	}

	sections, err := st.Section().ListByReportUnscoped(report.ID)
	if err != nil {
		t.Fatalf("ListByReportUnscoped() failed: %v", err)
	}
	if len(sections) != 0 {
		t.Errorf("Expected 0 sections after purge, got %d", len(sections))
	}

	reportHistory, err := st.History().ListByResource(model.ResourceTypeReport, report.ID)
	if err != nil {
		t.Fatalf("ListByResource() failed: %v", err)
	}
	if len(reportHistory) != 0 {
		t.Errorf("Expected report history to be purged, got %d entries", len(reportHistory))
	}

	sectionHistory, err := st.History().ListByResource(model.ResourceTypeSection, section.ID)
	if err != nil {
		t.Fatalf("ListByResource() failed: %v", err)
	}
	if len(sectionHistory) != 0 {
		t.Errorf("Expected section history to be purged, got %d entries", len(sectionHistory))
	}

	if _, err := st.Snapshot().GetByEntity(model.EntityTypeReport, report.ID); err != gorm.ErrRecordNotFound {
		t.Errorf("Expected snapshot to be purged, got err %v", err)
	}
}

// TestSweep_KeepsRecentAndLiveReports tests that the sweep leaves live
// reports and recently deleted reports alone
func TestSweep_KeepsRecentAndLiveReports(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	live := store.CreateTestReport(t, st)
	liveSection := store.CreateTestSection(t, st, live.ID, 0)
	appendHistory(t, st, model.ResourceTypeSection, liveSection.ID)

	recent := store.CreateTestReport(t, st, func(r *model.Report) {
		r.ThreadID = "thread-recent"
	})
	backdateDeletion(t, st, recent.ID, 5)

	svc := NewService(st, "", 30)
	svc.sweep()

	if _, err := st.Report().GetByID(live.ID); err != nil {
		t.Errorf("Expected live report to survive, got err %v", err)
	}
	entries, err := st.History().ListByResource(model.ResourceTypeSection, liveSection.ID)
	if err != nil {
		t.Fatalf("ListByResource() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected live section history to survive, got %d entries", len(entries))
	}

	var count int64
	if err := st.DB().Unscoped().Model(&model.Report{}).Where("id = ?", recent.ID).Count(&count).Error; err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 1 {
		t.Error("Expected recently deleted report to survive the sweep")
	}
}

// TestNewService_Defaults tests fallback to default schedule and days
func TestNewService_Defaults(t *testing.T) {
	st, cleanup := store.SetupTestDB(t)
	defer cleanup()

	svc := NewService(st, "", 0)
	if svc.schedule != DefaultSchedule {
		t.Errorf("Expected default schedule, got %s", svc.schedule)
	}
	if svc.days != DefaultRetentionDays {
		t.Errorf("Expected default days, got %d", svc.days)
	}

	svc.SetRetentionDays(-1)
	if svc.days != DefaultRetentionDays {
		t.Errorf("Expected default days after invalid update, got %d", svc.days)
	}
}
