// Package idgen provides ID generation utilities for the application.
// It encapsulates the ID generation implementation, making it easy to change
// the underlying ID generation strategy in the future.
package idgen

import (
	"github.com/rs/xid"
)

// NewID generates a new globally unique, sortable identifier.
// Returns a 20-character string using xid format.
// The generated ID is:
// - Globally unique
// - Sortable by creation time
// - URL-safe (base32 encoded)
// - 20 characters long
func NewID() string {
	return xid.New().String()
}

// NewReportID generates a unique ID for Report entities.
func NewReportID() string {
	return NewID()
}

// NewSectionID generates a unique ID for Section entities.
func NewSectionID() string {
	return NewID()
}

// NewLockToken generates a unique token for edit lock acquisition.
func NewLockToken() string {
	return NewID()
}

// NewRequestID generates a unique ID for request tracking.
func NewRequestID() string {
	return NewID()
}
