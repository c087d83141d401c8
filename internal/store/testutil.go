// Package store provides test utilities for database testing.
package store

import (
	"os"
	"testing"

	"gorm.io/gorm"

	"github.com/finsight/finsight/internal/database"
	"github.com/finsight/finsight/internal/model"
	"github.com/finsight/finsight/pkg/idgen"
)

// SetupTestDB creates a temporary SQLite database for testing.
// It returns a Store instance and a cleanup function.
// The cleanup function should be called with defer in tests.
func SetupTestDB(t *testing.T) (Store, func()) {
	// Reset database state to allow re-initialization
	database.ResetForTesting()

	// Create temporary database file
	tmpFile, err := os.CreateTemp("", "test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()

	// Initialize database with temp path
	if err := database.InitWithPath(tmpPath); err != nil {
		os.Remove(tmpPath)
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	db := database.Get()
	store := NewStore(db)

	// Cleanup function
	cleanup := func() {
		database.Close()
		database.ResetForTesting()
		os.Remove(tmpPath)
	}

	return store, cleanup
}

// SetupTestDBWithModels creates a temporary SQLite database and runs migrations.
// This is a convenience function that ensures all models are migrated.
func SetupTestDBWithModels(t *testing.T) (*gorm.DB, func()) {
	// Reset database state
	database.ResetForTesting()

	// Create temporary database file
	tmpFile, err := os.CreateTemp("", "test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()

	// Initialize database
	if err := database.InitWithPath(tmpPath); err != nil {
		os.Remove(tmpPath)
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	db := database.Get()

	// Ensure all models are migrated
	models := model.AllModels()
	if err := db.AutoMigrate(models...); err != nil {
		database.Close()
		database.ResetForTesting()
		os.Remove(tmpPath)
		t.Fatalf("Failed to migrate models: %v", err)
	}

	// Cleanup function
	cleanup := func() {
		database.Close()
		database.ResetForTesting()
		os.Remove(tmpPath)
	}

	return db, cleanup
}

// CreateTestReport creates a test Report with default values.
// Fields can be overridden by passing a function that modifies the report.
func CreateTestReport(t *testing.T, store Store, overrides ...func(*model.Report)) *model.Report {
	report := &model.Report{
		ID:       idgen.NewReportID(),
		OwnerID:  "user-test",
		ThreadID: "thread-test",
		Mode:     model.ReportModeInteractive,
		Title:    "Q3 Portfolio Review",
		Version:  1,
	}

	// Apply overrides
	for _, override := range overrides {
		override(report)
	}

	if err := store.Report().Create(report); err != nil {
		t.Fatalf("Failed to create test report: %v", err)
	}

	return report
}

// CreateTestSection creates a test Section with default values.
func CreateTestSection(t *testing.T, store Store, reportID string, order int, overrides ...func(*model.Section)) *model.Section {
	section := &model.Section{
		ID:       idgen.NewSectionID(),
		ReportID: reportID,
		Order:    order,
		Title:    "Holdings Overview",
		Content:  "<h2>Holdings Overview</h2><p>Initial content.</p>",
		Version:  1,
	}

	// Apply overrides
	for _, override := range overrides {
		override(section)
	}

	if err := store.Section().Create(section); err != nil {
		t.Fatalf("Failed to create test section: %v", err)
	}

	return section
}
