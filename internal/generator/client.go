// Package generator provides a unified interface for content generation
// backends. It abstracts away the differences between real model providers
// and the mock backend used in tests and development.
package generator

import (
	"context"
)

// Client defines the interface for content generation backends.
type Client interface {
	// Name returns the client identifier (e.g., "mock", "openai")
	Name() string

	// Available checks if the backend is available for use
	Available() bool

	// Execute performs a synchronous generation and returns the complete response.
	Execute(ctx context.Context, req *Request) (*Response, error)

	// ExecuteStream performs a streaming generation, calling the callback for
	// each chunk. The callback is invoked from the calling goroutine in order.
	// A context cancellation aborts the stream and returns ctx.Err().
	ExecuteStream(ctx context.Context, req *Request, callback StreamCallback) (*Response, error)

	// Close releases any resources held by the client
	Close() error
}

// StreamCallback is the callback function for streaming output
type StreamCallback func(chunk *StreamChunk)

// ChunkType represents the type of streaming data chunk
type ChunkType string

const (
	// ChunkTypeText represents generated content
	ChunkTypeText ChunkType = "text"
	// ChunkTypeError represents an error message
	ChunkTypeError ChunkType = "error"
	// ChunkTypeResult represents the final result
	ChunkTypeResult ChunkType = "result"
)

// StreamChunk represents a chunk of streaming data
type StreamChunk struct {
	// Type indicates the kind of chunk
	Type ChunkType

	// Content is the accumulated content so far
	Content string

	// Delta is the incremental content since the last chunk
	Delta string

	// IsComplete indicates whether the stream is complete
	IsComplete bool

	// Metadata contains additional information
	Metadata map[string]string
}

// Request represents a generation request
type Request struct {
	// Prompt is the edit instruction or generation prompt
	Prompt string

	// Context is the supporting context passed alongside the prompt
	// (current content, surrounding sections, conversation snapshot)
	Context string

	// Model specifies which model to use (optional, backend default if empty)
	Model string

	// Metadata contains additional information (e.g., resource_id, request_id)
	Metadata map[string]string
}

// Response represents a completed generation
type Response struct {
	// Content is the full generated content
	Content string

	// Model is the actual model used for the request
	Model string

	// Metadata contains additional response information
	Metadata map[string]string
}

// NewRequest creates a new Request with the given prompt
func NewRequest(prompt string) *Request {
	return &Request{Prompt: prompt}
}

// WithContext sets the supporting context
func (r *Request) WithContext(context string) *Request {
	r.Context = context
	return r
}

// WithModel sets the model for the request
func (r *Request) WithModel(model string) *Request {
	r.Model = model
	return r
}

// WithMetadata sets a metadata value
func (r *Request) WithMetadata(key, value string) *Request {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
	return r
}

// GetMetadata returns a metadata value, or empty string if not found
func (r *Request) GetMetadata(key string) string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata[key]
}
