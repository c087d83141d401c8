package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/finsight/finsight/internal/contextbudget"
	"github.com/finsight/finsight/internal/model"
	"github.com/finsight/finsight/pkg/errors"
)

// ContextHandler handles context snapshot and budget requests
type ContextHandler struct {
	manager *contextbudget.Manager
}

// NewContextHandler creates a new context handler
func NewContextHandler(m *contextbudget.Manager) *ContextHandler {
	return &ContextHandler{manager: m}
}

// GetSnapshot handles GET /api/v1/context/:entity_type/:entity_id
// The snapshot is created on first request.
func (h *ContextHandler) GetSnapshot(c *gin.Context) {
	entityType, ok := parseEntityType(c)
	if !ok {
		return
	}

	snapshot, err := h.manager.Snapshot(c.Request.Context(), entityType, c.Param("entity_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// RegenerateSnapshot handles POST /api/v1/context/:entity_type/:entity_id/regenerate
func (h *ContextHandler) RegenerateSnapshot(c *gin.Context) {
	entityType, ok := parseEntityType(c)
	if !ok {
		return
	}

	snapshot, err := h.manager.Regenerate(c.Request.Context(), entityType, c.Param("entity_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// GetEstimate handles GET /api/v1/context/:entity_type/:entity_id/estimate
func (h *ContextHandler) GetEstimate(c *gin.Context) {
	entityType, ok := parseEntityType(c)
	if !ok {
		return
	}

	estimate, err := h.manager.Estimate(c.Request.Context(), entityType, c.Param("entity_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, estimate)
}

// Compress handles POST /api/v1/context/:entity_type/:entity_id/compress
// Compression is best effort; a result with applied=false and zero or
// negative savings is still a success.
func (h *ContextHandler) Compress(c *gin.Context) {
	entityType, ok := parseEntityType(c)
	if !ok {
		return
	}

	result, err := h.manager.Compress(c.Request.Context(), entityType, c.Param("entity_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func parseEntityType(c *gin.Context) (model.EntityType, bool) {
	switch c.Param("entity_type") {
	case string(model.EntityTypeReport):
		return model.EntityTypeReport, true
	case string(model.EntityTypeThread):
		return model.EntityTypeThread, true
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Invalid entity type: " + c.Param("entity_type"),
		})
		return "", false
	}
}
