package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/finsight/finsight/internal/editor"
	"github.com/finsight/finsight/internal/model"
	"github.com/finsight/finsight/internal/store"
	"github.com/finsight/finsight/pkg/errors"
	"github.com/finsight/finsight/pkg/idgen"
	"github.com/finsight/finsight/pkg/logger"
)

// ReportHandler handles report-related HTTP requests
type ReportHandler struct {
	store  store.Store
	editor *editor.Service
}

// NewReportHandler creates a new report handler
func NewReportHandler(s store.Store, e *editor.Service) *ReportHandler {
	return &ReportHandler{store: s, editor: e}
}

// CreateReportRequest represents the request body for creating a report
type CreateReportRequest struct {
	OwnerID  string `json:"owner_id" binding:"required"` // Owning user reference
	ThreadID string `json:"thread_id"`                   // Conversation thread reference
	Title    string `json:"title" binding:"required"`
	Mode     string `json:"mode"`    // interactive (default) or monolithic
	Content  string `json:"content"` // Initial HTML, monolithic mode only

	// Sections are the initial ordered sections, interactive mode only
	Sections []CreateSectionRequest `json:"sections"`
}

// CreateSectionRequest is one initial section in a report creation request
type CreateSectionRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content"`
}

// CreateReport handles POST /api/v1/reports
func (h *ReportHandler) CreateReport(c *gin.Context) {
	var req CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	mode := model.ReportModeInteractive
	switch req.Mode {
	case "", string(model.ReportModeInteractive):
	case string(model.ReportModeMonolithic):
		mode = model.ReportModeMonolithic
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Invalid report mode: " + req.Mode,
		})
		return
	}

	if mode == model.ReportModeMonolithic && len(req.Sections) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Monolithic reports do not take sections",
		})
		return
	}

	rpt := &model.Report{
		ID:       idgen.NewReportID(),
		OwnerID:  req.OwnerID,
		ThreadID: req.ThreadID,
		Mode:     mode,
		Title:    req.Title,
		Content:  req.Content,
		Version:  1,
	}

	err := h.store.Transaction(func(tx store.Store) error {
		if err := tx.Report().Create(rpt); err != nil {
			return err
		}
		for i, sec := range req.Sections {
			section := &model.Section{
				ID:       idgen.NewSectionID(),
				ReportID: rpt.ID,
				Order:    i,
				Title:    sec.Title,
				Content:  sec.Content,
				Version:  1,
			}
			if err := tx.Section().Create(section); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to create report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    errors.ErrCodeDBQuery,
			"message": "Failed to create report",
		})
		return
	}

	logger.Info("Report created",
		zap.String("report_id", rpt.ID),
		zap.String("mode", string(rpt.Mode)),
		zap.Int("sections", len(req.Sections)),
	)

	created, err := h.store.Report().GetByIDWithSections(rpt.ID)
	if err != nil {
		c.JSON(http.StatusCreated, rpt)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetReport handles GET /api/v1/reports/:id
func (h *ReportHandler) GetReport(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Invalid report ID",
		})
		return
	}

	rpt, err := h.store.Report().GetByIDWithSections(id)
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    errors.ErrCodeNotFound,
			"message": "Report not found",
		})
		return
	} else if err != nil {
		logger.Error("Database error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    errors.ErrCodeDBQuery,
			"message": "Database error",
		})
		return
	}

	c.JSON(http.StatusOK, rpt)
}

// ListReports handles GET /api/v1/reports
func (h *ReportHandler) ListReports(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	ownerID := c.Query("owner_id")
	threadID := c.Query("thread_id")

	if page < 1 {
		page = 1
	}
	// Allow small page sizes for dashboard widgets (min 1)
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	reports, total, err := h.store.Report().List(ownerID, threadID, page, pageSize)
	if err != nil {
		logger.Error("Database error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    errors.ErrCodeDBQuery,
			"message": "Database error",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      reports,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// UpdateReportTitleRequest represents the request body for a title change
type UpdateReportTitleRequest struct {
	Title string `json:"title" binding:"required"`
}

// UpdateReportTitle handles PATCH /api/v1/reports/:id/title
func (h *ReportHandler) UpdateReportTitle(c *gin.Context) {
	id := c.Param("id")

	var req UpdateReportTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	if _, err := h.store.Report().GetByID(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    errors.ErrCodeNotFound,
			"message": "Report not found",
		})
		return
	}

	if err := h.store.Report().UpdateTitle(id, req.Title); err != nil {
		logger.Error("Failed to update report title", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    errors.ErrCodeDBQuery,
			"message": "Database error",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Title updated"})
}

// DeleteReport handles DELETE /api/v1/reports/:id
// Deletion cascades to the report's sections and invalidates any edit locks
// held on them.
func (h *ReportHandler) DeleteReport(c *gin.Context) {
	id := c.Param("id")

	if err := h.editor.DeleteReport(c.Request.Context(), id, actor(c)); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Report deleted"})
}

// actor resolves the acting user for history attribution. Without an auth
// layer this is the caller-supplied header, falling back to "anonymous".
func actor(c *gin.Context) string {
	if v := c.GetHeader("X-Actor-ID"); v != "" {
		return v
	}
	return "anonymous"
}
