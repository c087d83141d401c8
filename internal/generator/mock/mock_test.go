package mock

import (
	"context"
	"strings"
	"testing"

	"github.com/finsight/finsight/internal/generator"
)

// TestClient_ExecuteStream tests ordered streaming with a terminal result chunk
func TestClient_ExecuteStream(t *testing.T) {
	client := NewClient()
	client.ChunkSize = 10

	var chunks []*generator.StreamChunk
	resp, err := client.ExecuteStream(context.Background(), generator.NewRequest("tighten the summary"), func(chunk *generator.StreamChunk) {
		chunks = append(chunks, chunk)
	})
	if err != nil {
		t.Fatalf("ExecuteStream() failed: %v", err)
	}

	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}

	// All but the last are text chunks; deltas reassemble the content
	var assembled strings.Builder
	for _, chunk := range chunks[:len(chunks)-1] {
		if chunk.Type != generator.ChunkTypeText {
			t.Errorf("Expected text chunk, got %s", chunk.Type)
		}
		if chunk.IsComplete {
			t.Error("Non-terminal chunk marked complete")
		}
		assembled.WriteString(chunk.Delta)
	}

	last := chunks[len(chunks)-1]
	if last.Type != generator.ChunkTypeResult {
		t.Errorf("Expected terminal result chunk, got %s", last.Type)
	}
	if !last.IsComplete {
		t.Error("Terminal chunk not marked complete")
	}
	if assembled.String() != resp.Content {
		t.Error("Assembled deltas do not match response content")
	}
	if last.Content != resp.Content {
		t.Error("Terminal chunk content does not match response content")
	}
}

// TestClient_ExecuteStream_Fail tests mid-stream failure
func TestClient_ExecuteStream_Fail(t *testing.T) {
	client := NewClient()
	client.ChunkSize = 10
	client.Fail = true

	var sawError bool
	_, err := client.ExecuteStream(context.Background(), generator.NewRequest("x"), func(chunk *generator.StreamChunk) {
		if chunk.Type == generator.ChunkTypeError {
			sawError = true
		}
		if chunk.Type == generator.ChunkTypeResult {
			t.Error("Failed stream must not emit a result chunk")
		}
	})
	if err == nil {
		t.Fatal("Expected error from failing stream")
	}
	if !sawError {
		t.Error("Expected an error chunk before the stream ended")
	}
}

// TestClient_ExecuteStream_Cancel tests context cancellation
func TestClient_ExecuteStream_Cancel(t *testing.T) {
	client := NewClient()
	client.ChunkSize = 1

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ExecuteStream(ctx, generator.NewRequest("x"), nil)
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

// TestCreate tests factory registration
func TestCreate(t *testing.T) {
	if !generator.IsRegistered(ClientName) {
		t.Fatal("Expected mock client to be registered")
	}

	client, err := generator.Create(ClientName)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if client.Name() != ClientName {
		t.Errorf("Expected name '%s', got '%s'", ClientName, client.Name())
	}
	if !client.Available() {
		t.Error("Expected mock client to be available")
	}
}

// TestCreate_Unknown tests the not-registered error path
func TestCreate_Unknown(t *testing.T) {
	_, err := generator.Create("no-such-backend")
	if err == nil {
		t.Fatal("Expected error for unknown generator")
	}
}
