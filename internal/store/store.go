// Package store provides data access layer interfaces and implementations.
// This package abstracts database operations to improve maintainability
// and decouple business logic from specific database implementations.
package store

import "gorm.io/gorm"

// Store aggregates all data store interfaces.
// It provides a single point of access for all database operations.
type Store interface {
	Report() ReportStore
	Section() SectionStore
	History() HistoryStore
	Snapshot() SnapshotStore

	// DB returns the underlying database connection for advanced operations.
	// Use sparingly - prefer using specific store methods.
	DB() *gorm.DB

	// Transaction executes operations within a database transaction.
	Transaction(fn func(Store) error) error
}

// gormStore implements Store interface using GORM.
type gormStore struct {
	db            *gorm.DB
	reportStore   ReportStore
	sectionStore  SectionStore
	historyStore  HistoryStore
	snapshotStore SnapshotStore
}

// NewStore creates a new Store instance with GORM backend.
func NewStore(db *gorm.DB) Store {
	return &gormStore{
		db:            db,
		reportStore:   newReportStore(db),
		sectionStore:  newSectionStore(db),
		historyStore:  newHistoryStore(db),
		snapshotStore: newSnapshotStore(db),
	}
}

func (s *gormStore) Report() ReportStore {
	return s.reportStore
}

func (s *gormStore) Section() SectionStore {
	return s.sectionStore
}

func (s *gormStore) History() HistoryStore {
	return s.historyStore
}

func (s *gormStore) Snapshot() SnapshotStore {
	return s.snapshotStore
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Transaction(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		txStore := &gormStore{
			db:            tx,
			reportStore:   newReportStore(tx),
			sectionStore:  newSectionStore(tx),
			historyStore:  newHistoryStore(tx),
			snapshotStore: newSnapshotStore(tx),
		}
		return fn(txStore)
	})
}
