// Package model defines the data models for the application.
package model

import (
	"time"

	"gorm.io/gorm"
)

// ReportMode determines how a report's content is structured
type ReportMode string

const (
	// ReportModeMonolithic holds the whole report as a single HTML blob
	ReportModeMonolithic ReportMode = "monolithic"
	// ReportModeInteractive composes the report from ordered, independently
	// editable sections; the report's own Content field is ignored by editors
	ReportModeInteractive ReportMode = "interactive"
)

// Report represents a user-facing financial report document
type Report struct {
	ID        string         `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Ownership references (opaque to the editing engine)
	OwnerID  string `gorm:"size:64;index" json:"owner_id"`
	ThreadID string `gorm:"size:64;index" json:"thread_id"`

	// Mode and content
	Mode    ReportMode `gorm:"size:20;not null;default:interactive" json:"mode"`
	Title   string     `gorm:"size:512" json:"title"`
	Content string     `gorm:"type:text" json:"content,omitempty"` // HTML blob, monolithic mode only

	// Version is incremented on every committed mutation
	Version int `gorm:"not null;default:1" json:"version"`

	// Insights are short annotation records, append-only, not mutated here
	Insights InsightList `gorm:"type:json" json:"insights,omitempty"`

	// Relations
	Sections []Section `gorm:"foreignKey:ReportID" json:"sections,omitempty"`
}

// Section represents an ordered, independently versioned sub-unit of an
// interactive report
type Section struct {
	ID        string         `gorm:"primarykey;size:20" json:"id"` // xid
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Association; sections are exclusively owned by their report
	ReportID string `gorm:"size:20;not null;index" json:"report_id"`

	// Order is unique within a report and contiguous (0..N-1) after any
	// successful mutation
	Order int `gorm:"column:order_index;not null" json:"order"`

	Title   string `gorm:"size:512" json:"title"`
	Content string `gorm:"type:text" json:"content,omitempty"` // HTML blob

	// Version is incremented on every committed mutation
	Version int `gorm:"not null;default:1" json:"version"`

	// Relations
	// Edit history is keyed by (resource_type, resource_id) and loaded
	// explicitly through the store rather than preloaded here.
	Report Report `json:"-"`
}

// ResourceType identifies the kind of editable resource an edit targets
type ResourceType string

const (
	ResourceTypeReport  ResourceType = "report"
	ResourceTypeSection ResourceType = "section"
)

// EditHistoryEntry is an immutable snapshot of a resource's content before
// an edit was applied. History is strictly append-only.
type EditHistoryEntry struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// Resource association; sections and monolithic reports both keep history
	ResourceType ResourceType `gorm:"size:20;not null;index:idx_resource,priority:1" json:"resource_type"`
	ResourceID   string       `gorm:"size:20;not null;index:idx_resource,priority:2" json:"resource_id"`

	// Version is the version number before the edit, i.e. the snapshot
	// being superseded
	Version int `gorm:"not null" json:"version"`

	// Content is the superseded HTML blob
	Content string `gorm:"type:text" json:"content"`

	// Prompt is the instruction that produced the next version; nil for
	// manual edits
	Prompt *string `gorm:"type:text" json:"prompt,omitempty"`

	EditedBy string    `gorm:"size:64" json:"edited_by"`
	EditedAt time.Time `json:"edited_at"`
}

// EntityType identifies the kind of entity a context snapshot describes
type EntityType string

const (
	EntityTypeThread EntityType = "thread"
	EntityTypeReport EntityType = "report"
)

// SnapshotVisibility controls who can read a context snapshot
type SnapshotVisibility string

const (
	VisibilityPrivate      SnapshotVisibility = "private"
	VisibilityShared       SnapshotVisibility = "shared"
	VisibilityPublic       SnapshotVisibility = "public"
	VisibilityOrganization SnapshotVisibility = "organization"
)

// ContextSnapshot is the derived textual representation of an entity used
// as input for future generation calls. Created lazily on first request and
// regenerated in place on each triggering event; never duplicated.
type ContextSnapshot struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Unique key
	EntityType EntityType `gorm:"size:20;not null;uniqueIndex:idx_entity,priority:1" json:"entity_type"`
	EntityID   string     `gorm:"size:64;not null;uniqueIndex:idx_entity,priority:2" json:"entity_id"`

	MarkdownContent string `gorm:"type:text" json:"markdown_content"`

	// Stats
	WordCount      int `gorm:"default:0" json:"word_count"`
	CharacterCount int `gorm:"default:0" json:"character_count"`
	MessageCount   int `gorm:"default:0" json:"message_count"`
	SectionCount   int `gorm:"default:0" json:"section_count"`
	TotalTokens    int `gorm:"default:0" json:"total_tokens"`

	// Version is incremented on every regeneration
	Version int `gorm:"not null;default:1" json:"version"`

	Visibility SnapshotVisibility `gorm:"size:20;not null;default:private" json:"visibility"`
}
