package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/booknova-api/internal/models"
	"github.com/noah-isme/booknova-api/internal/service"
	appErrors "github.com/noah-isme/booknova-api/pkg/errors"
	"github.com/noah-isme/booknova-api/pkg/export"
	"github.com/noah-isme/booknova-api/pkg/response"
)

type exportService interface {
	ExportBooks(ctx context.Context, format export.Format, meta models.AuditMeta) (*service.ExportResult, error)
	ExportOverdueLoans(ctx context.Context, format export.Format, meta models.AuditMeta) (*service.ExportResult, error)
	Open(ctx context.Context, token string) (*service.ExportDownload, error)
}

// ExportHandler generates report files and serves them through signed links.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the export handler.
func NewExportHandler(svc exportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Books godoc
// @Summary Export the catalogue
// @Tags Exports
// @Produce json
// @Param format query string false "csv or pdf"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /exports/books [post]
func (h *ExportHandler) Books(c *gin.Context) {
	h.generate(c, h.service.ExportBooks)
}

// OverdueLoans godoc
// @Summary Export overdue loans
// @Description Every unreturned loan past its due date with the fine accrued so far.
// @Tags Exports
// @Produce json
// @Param format query string false "csv or pdf"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /exports/overdue-loans [post]
func (h *ExportHandler) OverdueLoans(c *gin.Context) {
	h.generate(c, h.service.ExportOverdueLoans)
}

func (h *ExportHandler) generate(c *gin.Context, fn func(context.Context, export.Format, models.AuditMeta) (*service.ExportResult, error)) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}
	result, err := fn(c.Request.Context(), format, auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download an export
// @Description Public endpoint; the signed token is the credential.
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.service.Open(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.Body.Close() //nolint:errcheck

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", download.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, -1, download.ContentType, download.Body, nil)
}
