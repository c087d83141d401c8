// Package mock implements a mock generator Client for testing and development.
// It produces deterministic HTML output derived from the prompt so streaming
// and commit behavior can be verified without a real model backend.
package mock

import (
	"context"
	"fmt"
	"time"

	"github.com/finsight/finsight/internal/generator"
)

// ClientName is the identifier for the mock client
const ClientName = "mock"

func init() {
	// Register the mock client factory
	generator.Register(ClientName, func() (generator.Client, error) {
		return NewClient(), nil
	})
}

// Client implements the generator.Client interface with canned responses
type Client struct {
	// ChunkSize controls how many bytes each streamed delta carries
	ChunkSize int

	// ChunkDelay adds an artificial pause between chunks, useful for
	// exercising client-side streaming
	ChunkDelay time.Duration

	// Fail forces ExecuteStream to emit an error mid-stream
	Fail bool

	// FixedContent overrides the derived content when non-empty
	FixedContent string
}

// NewClient creates a new mock client
func NewClient() *Client {
	return &Client{ChunkSize: 50}
}

// Name returns the client identifier
func (c *Client) Name() string {
	return ClientName
}

// Available always returns true for the mock client
func (c *Client) Available() bool {
	return true
}

// Execute performs a synchronous generation and returns a mock response
func (c *Client) Execute(ctx context.Context, req *generator.Request) (*generator.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &generator.Response{
		Content: c.content(req),
		Model:   "mock-model",
	}, nil
}

// ExecuteStream performs a streaming generation with callback
func (c *Client) ExecuteStream(ctx context.Context, req *generator.Request, callback generator.StreamCallback) (*generator.Response, error) {
	content := c.content(req)

	chunkSize := c.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 50
	}

	sent := 0
	for i := 0; i < len(content); i += chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.Fail && sent == 1 {
			if callback != nil {
				callback(&generator.StreamChunk{
					Type:  generator.ChunkTypeError,
					Delta: "mock generation failure",
				})
			}
			return nil, fmt.Errorf("mock generation failure")
		}

		end := i + chunkSize
		if end > len(content) {
			end = len(content)
		}
		if callback != nil {
			callback(&generator.StreamChunk{
				Type:    generator.ChunkTypeText,
				Content: content[:end],
				Delta:   content[i:end],
			})
		}
		sent++

		if c.ChunkDelay > 0 {
			select {
			case <-time.After(c.ChunkDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	if callback != nil {
		callback(&generator.StreamChunk{
			Type:       generator.ChunkTypeResult,
			Content:    content,
			IsComplete: true,
		})
	}

	return &generator.Response{
		Content: content,
		Model:   "mock-model",
	}, nil
}

// Close releases any resources held by the client
func (c *Client) Close() error {
	return nil
}

// content derives the mock output for a request
func (c *Client) content(req *generator.Request) string {
	if c.FixedContent != "" {
		return c.FixedContent
	}
	prompt := ""
	if req != nil {
		prompt = req.Prompt
	}
	return fmt.Sprintf(
		"<section><h2>Generated Content</h2><p>Revised per instruction: %s</p><p>This is mock output used for development and testing.</p></section>",
		prompt,
	)
}
