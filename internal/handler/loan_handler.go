package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/booknova-api/internal/middleware"
	"github.com/noah-isme/booknova-api/internal/models"
	"github.com/noah-isme/booknova-api/internal/service"
	appErrors "github.com/noah-isme/booknova-api/pkg/errors"
	"github.com/noah-isme/booknova-api/pkg/response"
)

type loanService interface {
	CreateLoan(ctx context.Context, req service.CreateLoanRequest, meta models.AuditMeta) (*models.Loan, error)
	ReturnLoan(ctx context.Context, id string, meta models.AuditMeta) (*models.Loan, error)
	ReturnByMemberAndBook(ctx context.Context, req service.ReturnByMemberBookRequest, meta models.AuditMeta) (*models.Loan, error)
	ExtendLoan(ctx context.Context, id string, req service.ExtendLoanRequest, meta models.AuditMeta) (*models.Loan, error)
	CalculateFine(ctx context.Context, id string) (*models.LoanFine, error)
	FineFor(due time.Time, returned *time.Time) float64
	Get(ctx context.Context, id string) (*models.Loan, error)
	List(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error)
	ListOverdue(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error)
	ListDueOn(ctx context.Context, date time.Time, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error)
	ListDueToday(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error)
}

// LoanHandler exposes loan administration endpoints.
type LoanHandler struct {
	service loanService
}

// NewLoanHandler constructs a loan handler.
func NewLoanHandler(svc loanService) *LoanHandler {
	return &LoanHandler{service: svc}
}

// List godoc
// @Summary List loans
// @Tags Loans
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param member_id query string false "Member ID"
// @Param book_id query string false "Book ID"
// @Param active query bool false "Only unreturned loans"
// @Param overdue query bool false "Only overdue loans"
// @Param from query string false "Loan date from (YYYY-MM-DD)"
// @Param to query string false "Loan date to (YYYY-MM-DD)"
// @Param sort_by query string false "loan_date, due_date or return_date"
// @Param sort_order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /loans [get]
func (h *LoanHandler) List(c *gin.Context) {
	filter, err := parseLoanFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	loans, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loans, pagination, middleware.ExtractMeta(c))
}

func parseLoanFilter(c *gin.Context) (models.LoanFilter, error) {
	var filter models.LoanFilter
	filter.Page, filter.PageSize = parsePaging(c)
	filter.MemberID = c.Query("member_id")
	filter.BookID = c.Query("book_id")
	if active := parseQueryBool(c, "active"); active != nil {
		filter.ActiveOnly = *active
	}
	if overdue := parseQueryBool(c, "overdue"); overdue != nil {
		filter.OverdueOnly = *overdue
	}
	from, err := parseDateParam(c.Query("from"))
	if err != nil {
		return filter, err
	}
	to, err := parseDateParam(c.Query("to"))
	if err != nil {
		return filter, err
	}
	filter.LoanedFrom, filter.LoanedTo = from, to
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")
	return filter, nil
}

// Get godoc
// @Summary Get loan
// @Tags Loans
// @Produce json
// @Param id path string true "Loan ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /loans/{id} [get]
func (h *LoanHandler) Get(c *gin.Context) {
	loan, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, loan)
}

// Create godoc
// @Summary Lend a book
// @Description Creates a loan for the member and takes one copy off the shelf.
// @Tags Loans
// @Accept json
// @Produce json
// @Param payload body service.CreateLoanRequest true "Loan payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /loans [post]
func (h *LoanHandler) Create(c *gin.Context) {
	var req service.CreateLoanRequest
	if !bindJSON(c, &req, "invalid loan payload") {
		return
	}
	loan, err := h.service.CreateLoan(c.Request.Context(), req, auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, loan)
}

// Return godoc
// @Summary Return a loan
// @Tags Loans
// @Produce json
// @Param id path string true "Loan ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /loans/{id}/return [post]
func (h *LoanHandler) Return(c *gin.Context) {
	loan, err := h.service.ReturnLoan(c.Request.Context(), c.Param("id"), auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondWithFine(c, loan)
}

// ReturnByMemberBook godoc
// @Summary Return by member and book
// @Description Closes the open loan of the book held by the member.
// @Tags Loans
// @Accept json
// @Produce json
// @Param payload body service.ReturnByMemberBookRequest true "Member and book"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /loans/return [post]
func (h *LoanHandler) ReturnByMemberBook(c *gin.Context) {
	var req service.ReturnByMemberBookRequest
	if !bindJSON(c, &req, "invalid return payload") {
		return
	}
	loan, err := h.service.ReturnByMemberAndBook(c.Request.Context(), req, auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondWithFine(c, loan)
}

func (h *LoanHandler) respondWithFine(c *gin.Context, loan *models.Loan) {
	response.JSON(c, http.StatusOK, loan, nil, map[string]interface{}{
		"fine": h.service.FineFor(loan.DueDate, loan.ReturnDate),
	})
}

// Extend godoc
// @Summary Extend a loan
// @Tags Loans
// @Accept json
// @Produce json
// @Param id path string true "Loan ID"
// @Param payload body service.ExtendLoanRequest true "Extension"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /loans/{id}/extend [post]
func (h *LoanHandler) Extend(c *gin.Context) {
	var req service.ExtendLoanRequest
	if !bindJSON(c, &req, "invalid extension payload") {
		return
	}
	loan, err := h.service.ExtendLoan(c.Request.Context(), c.Param("id"), req, auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, loan)
}

// Fine godoc
// @Summary Loan fine
// @Tags Loans
// @Produce json
// @Param id path string true "Loan ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /loans/{id}/fine [get]
func (h *LoanHandler) Fine(c *gin.Context) {
	fine, err := h.service.CalculateFine(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, fine)
}

// CalculateFine godoc
// @Summary Fine calculator
// @Description Fine for arbitrary due and return dates.
// @Tags Loans
// @Produce json
// @Param due query string true "Due date (YYYY-MM-DD)"
// @Param returned query string false "Return date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /loans/fine [get]
func (h *LoanHandler) CalculateFine(c *gin.Context) {
	due, err := parseDateParam(c.Query("due"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if due == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "due is required"))
		return
	}
	returned, err := parseDateParam(c.Query("returned"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"amount": h.service.FineFor(*due, returned)})
}

// Overdue godoc
// @Summary Overdue loans
// @Tags Loans
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /loans/overdue [get]
func (h *LoanHandler) Overdue(c *gin.Context) {
	var filter models.LoanFilter
	filter.Page, filter.PageSize = parsePaging(c)
	loans, pagination, err := h.service.ListOverdue(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loans, pagination)
}

// Due godoc
// @Summary Loans due on a date
// @Description Defaults to today when date is omitted.
// @Tags Loans
// @Produce json
// @Param date query string false "Due date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /loans/due [get]
func (h *LoanHandler) Due(c *gin.Context) {
	var filter models.LoanFilter
	filter.Page, filter.PageSize = parsePaging(c)

	date, err := parseDateParam(c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}

	var (
		loans      []models.LoanDetail
		pagination *models.Pagination
	)
	if date == nil {
		loans, pagination, err = h.service.ListDueToday(c.Request.Context(), filter)
	} else {
		loans, pagination, err = h.service.ListDueOn(c.Request.Context(), *date, filter)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loans, pagination)
}
