package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/booknova-api/internal/middleware"
	"github.com/noah-isme/booknova-api/internal/models"
	"github.com/noah-isme/booknova-api/internal/service"
	appErrors "github.com/noah-isme/booknova-api/pkg/errors"
	"github.com/noah-isme/booknova-api/pkg/response"
)

type bookService interface {
	AddBook(ctx context.Context, req service.CreateBookRequest, meta models.AuditMeta) (*models.Book, error)
	UpdateBook(ctx context.Context, id string, req service.UpdateBookRequest, meta models.AuditMeta) (*models.Book, error)
	Get(ctx context.Context, id string) (*models.Book, error)
	GetByISBN(ctx context.Context, isbn string) (*models.Book, error)
	List(ctx context.Context, filter models.BookFilter) ([]models.Book, *models.Pagination, error)
	Availability(ctx context.Context, id string) (*models.BookAvailability, error)
	UpdateStock(ctx context.Context, id string, stock int, meta models.AuditMeta) (*models.Book, error)
	AddStock(ctx context.Context, id string, quantity int, meta models.AuditMeta) (*models.Book, error)
	RemoveBook(ctx context.Context, id string, meta models.AuditMeta) error
}

// BookHandler serves the catalogue.
type BookHandler struct {
	service bookService
}

// NewBookHandler constructs a book handler.
func NewBookHandler(svc bookService) *BookHandler {
	return &BookHandler{service: svc}
}

// List godoc
// @Summary List books
// @Description Page through the catalogue. title and author match case-insensitively.
// @Tags Books
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param search query string false "Title or author contains"
// @Param title query string false "Title contains"
// @Param author query string false "Author contains"
// @Param available query bool false "Only books in stock"
// @Param sort_by query string false "title, author, stock or created_at"
// @Param sort_order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /books [get]
func (h *BookHandler) List(c *gin.Context) {
	var filter models.BookFilter
	filter.Page, filter.PageSize = parsePaging(c)
	filter.Search = c.Query("search")
	filter.Title = c.Query("title")
	filter.Author = c.Query("author")
	if available := parseQueryBool(c, "available"); available != nil {
		filter.AvailableOnly = *available
	}
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	books, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, books, pagination, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get book
// @Tags Books
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /books/{id} [get]
func (h *BookHandler) Get(c *gin.Context) {
	book, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, book)
}

// GetByISBN godoc
// @Summary Find book by ISBN
// @Tags Books
// @Produce json
// @Param isbn path string true "ISBN"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /books/isbn/{isbn} [get]
func (h *BookHandler) GetByISBN(c *gin.Context) {
	book, err := h.service.GetByISBN(c.Request.Context(), c.Param("isbn"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, book)
}

// Availability godoc
// @Summary Book availability
// @Tags Books
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /books/{id}/availability [get]
func (h *BookHandler) Availability(c *gin.Context) {
	result, err := h.service.Availability(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Create godoc
// @Summary Add book
// @Tags Books
// @Accept json
// @Produce json
// @Param payload body service.CreateBookRequest true "Book payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /books [post]
func (h *BookHandler) Create(c *gin.Context) {
	var req service.CreateBookRequest
	if !bindJSON(c, &req, "invalid book payload") {
		return
	}
	book, err := h.service.AddBook(c.Request.Context(), req, auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, book)
}

// Update godoc
// @Summary Update book
// @Tags Books
// @Accept json
// @Produce json
// @Param id path string true "Book ID"
// @Param payload body service.UpdateBookRequest true "Book payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /books/{id} [put]
func (h *BookHandler) Update(c *gin.Context) {
	var req service.UpdateBookRequest
	if !bindJSON(c, &req, "invalid book payload") {
		return
	}
	book, err := h.service.UpdateBook(c.Request.Context(), c.Param("id"), req, auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, book)
}

// Stock godoc
// @Summary Adjust stock
// @Description Send stock to overwrite the count or quantity to add copies.
// @Tags Books
// @Accept json
// @Produce json
// @Param id path string true "Book ID"
// @Param payload body service.StockRequest true "Stock payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /books/{id}/stock [patch]
func (h *BookHandler) Stock(c *gin.Context) {
	var req service.StockRequest
	if !bindJSON(c, &req, "invalid stock payload") {
		return
	}

	var (
		book *models.Book
		err  error
	)
	switch {
	case req.Stock != nil && req.Quantity != nil:
		err = appErrors.Clone(appErrors.ErrValidation, "send either stock or quantity, not both")
	case req.Stock != nil:
		book, err = h.service.UpdateStock(c.Request.Context(), c.Param("id"), *req.Stock, auditMeta(c))
	case req.Quantity != nil:
		book, err = h.service.AddStock(c.Request.Context(), c.Param("id"), *req.Quantity, auditMeta(c))
	default:
		err = appErrors.Clone(appErrors.ErrValidation, "stock or quantity is required")
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, book)
}

// Delete godoc
// @Summary Remove book
// @Description Books with unreturned loans cannot be removed.
// @Tags Books
// @Param id path string true "Book ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /books/{id} [delete]
func (h *BookHandler) Delete(c *gin.Context) {
	if err := h.service.RemoveBook(c.Request.Context(), c.Param("id"), auditMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
