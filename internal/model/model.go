// Package model defines the data models for the application.
// All models use GORM for ORM operations with SQLite database.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// JSONMap is a custom type for storing JSON maps in SQLite
type JSONMap map[string]interface{}

// Value implements driver.Valuer interface
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	data, err := json.Marshal(j)
	return string(data), err
}

// Scan implements sql.Scanner interface
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	}
	return json.Unmarshal(bytes, j)
}

// Insight is a short annotation record attached to a report.
// Insights are produced by the generation pipeline and are not mutated
// by the editing engine.
type Insight struct {
	Label     string    `json:"label"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// InsightList is a custom type for storing an ordered list of insights in SQLite
type InsightList []Insight

// Value implements driver.Valuer interface
func (l InsightList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	return string(data), err
}

// Scan implements sql.Scanner interface
func (l *InsightList) Scan(value interface{}) error {
	if value == nil {
		*l = InsightList{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	}
	return json.Unmarshal(bytes, l)
}

// AllModels returns all models for auto-migration
func AllModels() []interface{} {
	return []interface{}{
		&Report{},
		&Section{},
		&EditHistoryEntry{},
		&ContextSnapshot{},
	}
}
