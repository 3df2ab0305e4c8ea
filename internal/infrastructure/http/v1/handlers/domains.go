package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"linkpress/internal/core/apperror"
	"linkpress/internal/domain/deletion"
	"linkpress/internal/domain/domains"
)

// DomainReader loads domain rows for the read endpoints.
type DomainReader interface {
	GetByName(ctx context.Context, name string) (*domains.Domain, error)
}

// DomainHandler exposes the deletion flows over HTTP.
type DomainHandler struct {
	*BaseHandler
	svc    *deletion.Service
	reader DomainReader
}

// NewDomainHandler creates a new domain handler.
func NewDomainHandler(base *BaseHandler, svc *deletion.Service, reader DomainReader) *DomainHandler {
	return &DomainHandler{BaseHandler: base, svc: svc, reader: reader}
}

// Get handles GET /api/v1/domains/:name.
func (h *DomainHandler) Get(c *gin.Context) {
	name := domains.Normalize(c.Param("name"))
	if name == "" {
		h.HandleError(c, apperror.NewValidation("domain name is required"))
		return
	}

	d, err := h.reader.GetByName(c.Request.Context(), name)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, d)
}

// Delete handles DELETE /api/v1/domains/:name.
// It runs the detach flow: ownership is released immediately and the
// heavy cleanup is scheduled. Partial failures are reported back but do
// not change the 202 outcome; the scheduled job converges them.
func (h *DomainHandler) Delete(c *gin.Context) {
	name := domains.Normalize(c.Param("name"))
	if name == "" {
		h.HandleError(c, apperror.NewValidation("domain name is required"))
		return
	}

	workspaceID := c.Query("workspace_id")
	if workspaceID == "" {
		h.HandleError(c, apperror.NewValidation("workspace_id is required"))
		return
	}

	outcomes := h.svc.Detach(c.Request.Context(), name, workspaceID)

	failed := make([]string, 0)
	for _, o := range outcomes {
		if o.Failed() {
			failed = append(failed, o.Op)
		}
	}

	c.JSON(http.StatusAccepted, gin.H{
		"domain": name,
		"status": string(domains.StatusDetached),
		"failed": failed,
	})
}

// cleanupRequest is the payload of a scheduled pipeline re-invocation.
type cleanupRequest struct {
	DomainName  string `json:"domainName" binding:"required"`
	WorkspaceID string `json:"workspaceId" binding:"required"`
}

// Cleanup handles POST /internal/v1/domains/cleanup.
// It runs one pass of the deletion pipeline, the same entry point the
// job relay uses for scheduled retries.
func (h *DomainHandler) Cleanup(c *gin.Context) {
	var req cleanupRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.svc.Run(c.Request.Context(), req.DomainName, req.WorkspaceID)
	if err != nil {
		h.HandleError(c, apperror.NewInternal(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"domain":    res.Domain,
		"deleted":   res.Deleted,
		"deferred":  res.Deferred,
		"batchSize": res.BatchSize,
		"remaining": res.Remaining,
	})
}
