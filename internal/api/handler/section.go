package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/finsight/finsight/internal/editor"
	"github.com/finsight/finsight/internal/store"
	"github.com/finsight/finsight/pkg/errors"
)

// SectionHandler handles structural section operations on a report
type SectionHandler struct {
	store  store.Store
	editor *editor.Service
}

// NewSectionHandler creates a new section handler
func NewSectionHandler(s store.Store, e *editor.Service) *SectionHandler {
	return &SectionHandler{store: s, editor: e}
}

// InsertSectionRequest represents the request body for inserting a section
type InsertSectionRequest struct {
	Title    string `json:"title"`
	Prompt   string `json:"prompt" binding:"required"`
	Context  string `json:"context"`
	Position int    `json:"position"` // Clamped into [0, N]
	EditedBy string `json:"edited_by"`
}

// InsertSection handles POST /api/v1/reports/:id/sections
// The section body is generated from the prompt and streamed back as SSE
// frames; the section is persisted only when generation completes.
func (h *SectionHandler) InsertSection(c *gin.Context) {
	reportID := c.Param("id")

	var req InsertSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	editedBy := req.EditedBy
	if editedBy == "" {
		editedBy = actor(c)
	}

	streamFrames(c, func(sink editor.FrameSink) error {
		return h.editor.InsertSection(c.Request.Context(), reportID, &editor.InsertRequest{
			Title:    req.Title,
			Prompt:   req.Prompt,
			Context:  req.Context,
			At:       req.Position,
			EditedBy: editedBy,
		}, sink)
	})
}

// DeleteSection handles DELETE /api/v1/reports/:id/sections/:sid
func (h *SectionHandler) DeleteSection(c *gin.Context) {
	reportID := c.Param("id")
	sectionID := c.Param("sid")

	if err := h.editor.DeleteSection(c.Request.Context(), reportID, sectionID, actor(c)); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Section deleted"})
}

// DuplicateSection handles POST /api/v1/reports/:id/sections/:sid/duplicate
func (h *SectionHandler) DuplicateSection(c *gin.Context) {
	reportID := c.Param("id")
	sectionID := c.Param("sid")

	section, err := h.editor.DuplicateSection(c.Request.Context(), reportID, sectionID, actor(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, section)
}

// MoveSectionRequest represents the request body for moving a section
type MoveSectionRequest struct {
	Direction string `json:"direction" binding:"required"` // "up" or "down"
}

// MoveSection handles POST /api/v1/reports/:id/sections/:sid/move
// Moving past either boundary is a no-op that still returns the current
// section order.
func (h *SectionHandler) MoveSection(c *gin.Context) {
	reportID := c.Param("id")
	sectionID := c.Param("sid")

	var req MoveSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	var sections interface{}
	var err error
	switch req.Direction {
	case "up":
		sections, err = h.editor.MoveSectionUp(c.Request.Context(), reportID, sectionID, actor(c))
	case "down":
		sections, err = h.editor.MoveSectionDown(c.Request.Context(), reportID, sectionID, actor(c))
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Invalid direction: " + req.Direction,
		})
		return
	}
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sections})
}
