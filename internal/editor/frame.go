// Package editor implements the streaming edit engine: versioned edits over
// reports and sections, the edit history, and section reordering.
package editor

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/finsight/finsight/pkg/errors"
)

// FrameType identifies a streaming frame kind
type FrameType string

const (
	FrameTypeContent  FrameType = "content"
	FrameTypeComplete FrameType = "complete"
	FrameTypeError    FrameType = "error"
)

// Frame is one server-sent event on an edit stream. A stream is a sequence
// of content frames followed by exactly one terminal frame, either complete
// or error. No frame follows a terminal frame.
type Frame interface {
	// Type returns the frame kind
	Type() FrameType
	// Terminal reports whether this frame ends the stream
	Terminal() bool
}

// ContentFrame carries one generated fragment, in generation order
type ContentFrame struct {
	Content string `json:"content"`
}

func (f ContentFrame) Type() FrameType { return FrameTypeContent }
func (f ContentFrame) Terminal() bool  { return false }

// CompleteFrame is the success terminal frame. The bare frame only signals
// completion; the committed resource id and version are carried as an
// extension so clients can update their view without refetching, and
// consumers that only care about success can ignore them.
type CompleteFrame struct {
	ResourceID string `json:"resource_id"`
	Version    int    `json:"version"`
	Content    string `json:"content,omitempty"`
}

func (f CompleteFrame) Type() FrameType { return FrameTypeComplete }
func (f CompleteFrame) Terminal() bool  { return true }

// ErrorFrame is the failure terminal frame
type ErrorFrame struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

func (f ErrorFrame) Type() FrameType { return FrameTypeError }
func (f ErrorFrame) Terminal() bool  { return true }

// NewErrorFrame builds an error frame from any error, mapping non-application
// errors to the internal code.
func NewErrorFrame(err error) ErrorFrame {
	if appErr, ok := errors.AsAppError(err); ok {
		return ErrorFrame{Code: appErr.Code, Message: appErr.Message}
	}
	return ErrorFrame{Code: errors.ErrCodeInternal, Message: err.Error()}
}

// FrameSink consumes frames in order. Implementations are not required to be
// safe for concurrent use; the editor writes frames from a single goroutine.
// A sink error aborts the stream.
type FrameSink func(Frame) error

// EncodeFrame writes a frame to w in server-sent event format:
// a single "data:" line holding the JSON-encoded frame with its type tag.
func EncodeFrame(w io.Writer, frame Frame) error {
	payload, err := MarshalFrame(frame)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// MarshalFrame encodes a frame as JSON with its type tag injected
func MarshalFrame(frame Frame) ([]byte, error) {
	var body map[string]interface{}

	raw, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	if body == nil {
		body = make(map[string]interface{})
	}
	body["type"] = string(frame.Type())

	return json.Marshal(body)
}
