package store

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/finsight/finsight/internal/model"
)

// TestHistoryStore_Append tests appending history entries
func TestHistoryStore_Append(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	report := CreateTestReport(t, store)
	section := CreateTestSection(t, store, report.ID, 0)

	prompt := "Make the summary more concise"
	entry := &model.EditHistoryEntry{
		ResourceType: model.ResourceTypeSection,
		ResourceID:   section.ID,
		Version:      1,
		Content:      section.Content,
		Prompt:       &prompt,
		EditedBy:     "user-1",
		EditedAt:     time.Now(),
	}

	if err := store.History().Append(entry); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	entries, err := store.History().ListByResource(model.ResourceTypeSection, section.ID)
	if err != nil {
		t.Fatalf("ListByResource() failed: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Version != 1 {
		t.Errorf("Expected Version 1, got %d", entries[0].Version)
	}
	if entries[0].Prompt == nil || *entries[0].Prompt != prompt {
		t.Errorf("Expected prompt to round-trip, got %v", entries[0].Prompt)
	}
}

// TestHistoryStore_ListByResource tests ordering by version
func TestHistoryStore_ListByResource(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	report := CreateTestReport(t, store)
	section := CreateTestSection(t, store, report.ID, 0)

	for _, v := range []int{2, 1, 3} {
		entry := &model.EditHistoryEntry{
			ResourceType: model.ResourceTypeSection,
			ResourceID:   section.ID,
			Version:      v,
			Content:      "<p>snapshot</p>",
			EditedBy:     "user-1",
			EditedAt:     time.Now(),
		}
		if err := store.History().Append(entry); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	entries, err := store.History().ListByResource(model.ResourceTypeSection, section.ID)
	if err != nil {
		t.Fatalf("ListByResource() failed: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	for i, entry := range entries {
		if entry.Version != i+1 {
			t.Errorf("Expected version %d at index %d, got %d", i+1, i, entry.Version)
		}
	}
}

// TestHistoryStore_GetByResourceAndVersion tests version lookup
func TestHistoryStore_GetByResourceAndVersion(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	report := CreateTestReport(t, store)
	section := CreateTestSection(t, store, report.ID, 0)

	entry := &model.EditHistoryEntry{
		ResourceType: model.ResourceTypeSection,
		ResourceID:   section.ID,
		Version:      1,
		Content:      "<p>original</p>",
		EditedBy:     "user-1",
		EditedAt:     time.Now(),
	}
	if err := store.History().Append(entry); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	found, err := store.History().GetByResourceAndVersion(model.ResourceTypeSection, section.ID, 1)
	if err != nil {
		t.Fatalf("GetByResourceAndVersion() failed: %v", err)
	}
	if found.Content != "<p>original</p>" {
		t.Errorf("Expected content '<p>original</p>', got '%s'", found.Content)
	}

	_, err = store.History().GetByResourceAndVersion(model.ResourceTypeSection, section.ID, 99)
	if err != gorm.ErrRecordNotFound {
		t.Errorf("Expected gorm.ErrRecordNotFound for missing version, got %v", err)
	}
}

// TestHistoryStore_ResourceIsolation tests that section and report history
// with the same ID do not collide
func TestHistoryStore_ResourceIsolation(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	sectionEntry := &model.EditHistoryEntry{
		ResourceType: model.ResourceTypeSection,
		ResourceID:   "shared-id",
		Version:      1,
		Content:      "section content",
		EditedAt:     time.Now(),
	}
	reportEntry := &model.EditHistoryEntry{
		ResourceType: model.ResourceTypeReport,
		ResourceID:   "shared-id",
		Version:      1,
		Content:      "report content",
		EditedAt:     time.Now(),
	}
	if err := store.History().Append(sectionEntry); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if err := store.History().Append(reportEntry); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	entries, err := store.History().ListByResource(model.ResourceTypeSection, "shared-id")
	if err != nil {
		t.Fatalf("ListByResource() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 section entry, got %d", len(entries))
	}
	if entries[0].Content != "section content" {
		t.Errorf("Expected section content, got '%s'", entries[0].Content)
	}
}

// TestHistoryStore_DeleteByResource tests retention cleanup
func TestHistoryStore_DeleteByResource(t *testing.T) {
	store, cleanup := SetupTestDB(t)
	defer cleanup()

	for v := 1; v <= 3; v++ {
		entry := &model.EditHistoryEntry{
			ResourceType: model.ResourceTypeSection,
			ResourceID:   "sec-gone",
			Version:      v,
			Content:      "old",
			EditedAt:     time.Now(),
		}
		if err := store.History().Append(entry); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	if err := store.History().DeleteByResource(model.ResourceTypeSection, "sec-gone"); err != nil {
		t.Fatalf("DeleteByResource() failed: %v", err)
	}

	count, err := store.History().CountByResource(model.ResourceTypeSection, "sec-gone")
	if err != nil {
		t.Fatalf("CountByResource() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected count 0 after delete, got %d", count)
	}
}
