package editor

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/finsight/finsight/pkg/errors"
)

// TestMarshalFrame tests that every frame carries its type tag
func TestMarshalFrame(t *testing.T) {
	tests := []struct {
		frame    Frame
		wantType string
	}{
		{ContentFrame{Content: "<p>hi</p>"}, "content"},
		{CompleteFrame{ResourceID: "sec-1", Version: 2}, "complete"},
		{ErrorFrame{Code: errors.ErrCodeUpstreamFailure, Message: "boom"}, "error"},
	}

	for _, tt := range tests {
		data, err := MarshalFrame(tt.frame)
		if err != nil {
			t.Fatalf("MarshalFrame() failed: %v", err)
		}

		var decoded map[string]interface{}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Frame is not valid JSON: %v", err)
		}
		if decoded["type"] != tt.wantType {
			t.Errorf("Expected type '%s', got '%v'", tt.wantType, decoded["type"])
		}
	}
}

// TestMarshalFrame_Fields tests field round-trips per frame kind
func TestMarshalFrame_Fields(t *testing.T) {
	data, err := MarshalFrame(CompleteFrame{ResourceID: "sec-1", Version: 3})
	if err != nil {
		t.Fatalf("MarshalFrame() failed: %v", err)
	}
	var decoded map[string]interface{}
	json.Unmarshal(data, &decoded)
	if decoded["resource_id"] != "sec-1" {
		t.Errorf("Expected resource_id 'sec-1', got %v", decoded["resource_id"])
	}
	if decoded["version"] != float64(3) {
		t.Errorf("Expected version 3, got %v", decoded["version"])
	}
}

// TestEncodeFrame tests the server-sent event wire format
func TestEncodeFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeFrame(&buf, ContentFrame{Content: "chunk"}); err != nil {
		t.Fatalf("EncodeFrame() failed: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "data: ") {
		t.Errorf("Expected 'data: ' prefix, got %q", out)
	}
	if !strings.HasSuffix(out, "\n\n") {
		t.Errorf("Expected double newline terminator, got %q", out)
	}

	payload := strings.TrimSuffix(strings.TrimPrefix(out, "data: "), "\n\n")
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("Payload is not valid JSON: %v", err)
	}
	if decoded["type"] != "content" || decoded["content"] != "chunk" {
		t.Errorf("Unexpected payload: %v", decoded)
	}
}

// TestFrame_Terminal tests terminal classification
func TestFrame_Terminal(t *testing.T) {
	if (ContentFrame{}).Terminal() {
		t.Error("Content frame must not be terminal")
	}
	if !(CompleteFrame{}).Terminal() {
		t.Error("Complete frame must be terminal")
	}
	if !(ErrorFrame{}).Terminal() {
		t.Error("Error frame must be terminal")
	}
}

// TestNewErrorFrame tests error mapping
func TestNewErrorFrame(t *testing.T) {
	frame := NewErrorFrame(errors.New(errors.ErrCodeBusy, "busy"))
	if frame.Code != errors.ErrCodeBusy {
		t.Errorf("Expected busy code, got %s", frame.Code)
	}

	frame = NewErrorFrame(bytes.ErrTooLarge)
	if frame.Code != errors.ErrCodeInternal {
		t.Errorf("Expected internal code for plain error, got %s", frame.Code)
	}
}
