// Package handler provides HTTP handlers for the API.
package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/finsight/finsight/internal/editor"
)

// streamFrames bridges an editor frame stream onto the HTTP response as
// server-sent events. Headers are written lazily on the first frame, so an
// edit that fails before streaming (busy lock, missing resource, bad input)
// still gets a proper JSON error status through the ErrorHandler middleware.
// Once a frame has been written, failures arrive as terminal error frames
// emitted by the editor itself.
func streamFrames(c *gin.Context, run func(sink editor.FrameSink) error) {
	started := false

	sink := func(frame editor.Frame) error {
		if !started {
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Header("X-Accel-Buffering", "no")
			c.Writer.WriteHeaderNow()
			started = true
		}
		if err := editor.EncodeFrame(c.Writer, frame); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	if err := run(sink); err != nil && !started {
		c.Error(err)
	}
}
