package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/finsight/finsight/internal/editor"
	"github.com/finsight/finsight/internal/model"
	"github.com/finsight/finsight/internal/store"
	"github.com/finsight/finsight/pkg/errors"
)

// EditHandler handles streaming edits, restores, and edit introspection
type EditHandler struct {
	store  store.Store
	editor *editor.Service
}

// NewEditHandler creates a new edit handler
func NewEditHandler(s store.Store, e *editor.Service) *EditHandler {
	return &EditHandler{store: s, editor: e}
}

// EditContentRequest represents the request body for an edit. Exactly one of
// Prompt (generated edit, streamed) or HTML (manual edit, synchronous) is
// expected.
type EditContentRequest struct {
	Prompt   string `json:"prompt"`
	Context  string `json:"context"`
	HTML     string `json:"html"`
	EditedBy string `json:"edited_by"`
}

func (r *EditContentRequest) editedBy(c *gin.Context) string {
	if r.EditedBy != "" {
		return r.EditedBy
	}
	return actor(c)
}

// EditSection handles POST /api/v1/reports/:id/sections/:sid/edit
// Prompt edits respond as an SSE frame stream; manual HTML edits respond
// synchronously with the committed version.
func (h *EditHandler) EditSection(c *gin.Context) {
	section, ok := h.ownedSection(c)
	if !ok {
		return
	}

	var req EditContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	if req.HTML != "" {
		result, err := h.editor.ApplySectionContent(c.Request.Context(), section.ID, req.HTML, req.editedBy(c))
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	streamFrames(c, func(sink editor.FrameSink) error {
		return h.editor.EditSection(c.Request.Context(), section.ID, &editor.EditRequest{
			Prompt:   req.Prompt,
			Context:  req.Context,
			EditedBy: req.editedBy(c),
		}, sink)
	})
}

// EditReport handles POST /api/v1/reports/:id/edit (monolithic reports only)
func (h *EditHandler) EditReport(c *gin.Context) {
	reportID := c.Param("id")

	var req EditContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	if req.HTML != "" {
		result, err := h.editor.ApplyReportContent(c.Request.Context(), reportID, req.HTML, req.editedBy(c))
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	streamFrames(c, func(sink editor.FrameSink) error {
		return h.editor.EditReport(c.Request.Context(), reportID, &editor.EditRequest{
			Prompt:   req.Prompt,
			Context:  req.Context,
			EditedBy: req.editedBy(c),
		}, sink)
	})
}

// RestoreRequest represents the request body for a restore
type RestoreRequest struct {
	TargetVersion int    `json:"target_version" binding:"required"`
	RestoredBy    string `json:"restored_by"`
}

// RestoreSection handles POST /api/v1/reports/:id/sections/:sid/restore
func (h *EditHandler) RestoreSection(c *gin.Context) {
	section, ok := h.ownedSection(c)
	if !ok {
		return
	}

	var req RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	restoredBy := req.RestoredBy
	if restoredBy == "" {
		restoredBy = actor(c)
	}

	result, err := h.editor.RestoreSection(c.Request.Context(), section.ID, req.TargetVersion, restoredBy)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RestoreReport handles POST /api/v1/reports/:id/restore (monolithic only)
func (h *EditHandler) RestoreReport(c *gin.Context) {
	reportID := c.Param("id")

	var req RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	restoredBy := req.RestoredBy
	if restoredBy == "" {
		restoredBy = actor(c)
	}

	result, err := h.editor.RestoreReport(c.Request.Context(), reportID, req.TargetVersion, restoredBy)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetSectionHistory handles GET /api/v1/reports/:id/sections/:sid/history
func (h *EditHandler) GetSectionHistory(c *gin.Context) {
	section, ok := h.ownedSection(c)
	if !ok {
		return
	}

	entries, err := h.editor.History(model.ResourceTypeSection, section.ID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":            entries,
		"current_version": section.Version,
	})
}

// GetReportHistory handles GET /api/v1/reports/:id/history
func (h *EditHandler) GetReportHistory(c *gin.Context) {
	reportID := c.Param("id")

	report, err := h.store.Report().GetByID(reportID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    errors.ErrCodeNotFound,
			"message": "Report not found",
		})
		return
	}

	entries, err := h.editor.History(model.ResourceTypeReport, report.ID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":            entries,
		"current_version": report.Version,
	})
}

// GetActiveEdit handles GET /api/v1/reports/:id/sections/:sid/edits/active
// It reports whether an edit stream is currently in flight for the section.
func (h *EditHandler) GetActiveEdit(c *gin.Context) {
	section, ok := h.ownedSection(c)
	if !ok {
		return
	}

	session := h.editor.ActiveSession(model.ResourceTypeSection, section.ID)
	if session == nil {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"active":     true,
		"session_id": session.ID,
		"state":      session.State(),
		"fragments":  session.Fragments(),
		"started_at": session.StartedAt(),
	})
}

// ownedSection loads the section from the route and verifies it belongs to
// the report in the route. Cross-report access reads as not found.
func (h *EditHandler) ownedSection(c *gin.Context) (*model.Section, bool) {
	reportID := c.Param("id")
	sectionID := c.Param("sid")

	section, err := h.store.Section().GetByID(sectionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    errors.ErrCodeNotFound,
				"message": "Section not found",
			})
			return nil, false
		}
		c.Error(errors.Wrap(errors.ErrCodeDBQuery, "failed to load section", err))
		return nil, false
	}
	if section.ReportID != reportID {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    errors.ErrCodeNotFound,
			"message": "Section not found",
		})
		return nil, false
	}

	return section, true
}
