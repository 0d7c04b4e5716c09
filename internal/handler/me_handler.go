package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/booknova-api/internal/models"
	"github.com/noah-isme/booknova-api/internal/service"
	appErrors "github.com/noah-isme/booknova-api/pkg/errors"
	"github.com/noah-isme/booknova-api/pkg/response"
)

type memberDirectory interface {
	GetByUserID(ctx context.Context, userID string) (*models.Member, error)
}

type selfServiceLoans interface {
	CreateLoan(ctx context.Context, req service.CreateLoanRequest, meta models.AuditMeta) (*models.Loan, error)
	ReturnForMember(ctx context.Context, memberID, loanID string, meta models.AuditMeta) (*models.Loan, error)
	ListByMember(ctx context.Context, memberID string, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error)
	ListActiveByMember(ctx context.Context, memberID string, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error)
	Eligibility(ctx context.Context, memberID string) (*models.Eligibility, error)
}

// borrowRequest carries only the book; self-service loans always run for the
// default period.
type borrowRequest struct {
	BookID string `json:"book_id" binding:"required"`
}

// MeHandler serves the signed-in user's own membership and loans.
type MeHandler struct {
	members memberDirectory
	loans   selfServiceLoans
}

// NewMeHandler constructs the self-service handler.
func NewMeHandler(members memberDirectory, loans selfServiceLoans) *MeHandler {
	return &MeHandler{members: members, loans: loans}
}

func (h *MeHandler) currentMember(c *gin.Context) (*models.Member, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	member, err := h.members.GetByUserID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return member, true
}

// Member godoc
// @Summary My member record
// @Tags Me
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /me/member [get]
func (h *MeHandler) Member(c *gin.Context) {
	member, ok := h.currentMember(c)
	if !ok {
		return
	}
	response.OK(c, member)
}

// Eligibility godoc
// @Summary Can I borrow another book
// @Tags Me
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /me/eligibility [get]
func (h *MeHandler) Eligibility(c *gin.Context) {
	member, ok := h.currentMember(c)
	if !ok {
		return
	}
	result, err := h.loans.Eligibility(c.Request.Context(), member.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Loans godoc
// @Summary My loans
// @Tags Me
// @Produce json
// @Param active query bool false "Only unreturned loans"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /me/loans [get]
func (h *MeHandler) Loans(c *gin.Context) {
	member, ok := h.currentMember(c)
	if !ok {
		return
	}
	var filter models.LoanFilter
	filter.Page, filter.PageSize = parsePaging(c)

	list := h.loans.ListByMember
	if active := parseQueryBool(c, "active"); active != nil && *active {
		list = h.loans.ListActiveByMember
	}
	loans, pagination, err := list(c.Request.Context(), member.ID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loans, pagination)
}

// Borrow godoc
// @Summary Borrow a book
// @Tags Me
// @Accept json
// @Produce json
// @Param payload body borrowRequest true "Book to borrow"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /me/loans [post]
func (h *MeHandler) Borrow(c *gin.Context) {
	var req borrowRequest
	if !bindJSON(c, &req, "invalid borrow payload") {
		return
	}
	member, ok := h.currentMember(c)
	if !ok {
		return
	}

	loan, err := h.loans.CreateLoan(c.Request.Context(), service.CreateLoanRequest{
		MemberID: member.ID,
		BookID:   req.BookID,
	}, auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, loan)
}

// Return godoc
// @Summary Return one of my loans
// @Tags Me
// @Produce json
// @Param id path string true "Loan ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /me/loans/{id}/return [post]
func (h *MeHandler) Return(c *gin.Context) {
	member, ok := h.currentMember(c)
	if !ok {
		return
	}
	loan, err := h.loans.ReturnForMember(c.Request.Context(), member.ID, c.Param("id"), auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, loan)
}
