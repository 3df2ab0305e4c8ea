package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"linkpress/internal/core/apperror"
	"linkpress/internal/domain/domains"
	"linkpress/internal/infrastructure/storage/postgres"
)

// ArchiveReader loads pre-delete batch snapshots for a domain.
type ArchiveReader interface {
	GetByDomain(ctx context.Context, domain string, limit int) ([]postgres.ArchiveEntry, error)
}

// ArchiveHandler exposes archived link batches for support tooling.
type ArchiveHandler struct {
	*BaseHandler
	reader ArchiveReader
}

// NewArchiveHandler creates a new archive handler.
func NewArchiveHandler(base *BaseHandler, reader ArchiveReader) *ArchiveHandler {
	return &ArchiveHandler{BaseHandler: base, reader: reader}
}

// List handles GET /internal/v1/domains/:name/archive.
// Returns the most recent snapshots first, payloads decompressed.
func (h *ArchiveHandler) List(c *gin.Context) {
	name := domains.Normalize(c.Param("name"))
	if name == "" {
		h.HandleError(c, apperror.NewValidation("domain name is required"))
		return
	}

	limit := h.ParseIntQuery(c, "limit", 20)

	entries, err := h.reader.GetByDomain(c.Request.Context(), name, limit)
	if err != nil {
		h.HandleError(c, apperror.NewInternal(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"domain":  name,
		"entries": entries,
	})
}
