package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/booknova-api/internal/models"
	"github.com/noah-isme/booknova-api/internal/service"
	"github.com/noah-isme/booknova-api/pkg/response"
)

type memberService interface {
	RegisterWithRole(ctx context.Context, req service.CreateMemberRequest, meta models.AuditMeta) (*models.Member, error)
	Update(ctx context.Context, id string, req service.UpdateMemberRequest, meta models.AuditMeta) (*models.Member, error)
	Get(ctx context.Context, id string) (*models.Member, error)
	List(ctx context.Context, filter models.MemberFilter) ([]models.Member, *models.Pagination, error)
	Activate(ctx context.Context, id string, meta models.AuditMeta) (*models.Member, error)
	Deactivate(ctx context.Context, id string, meta models.AuditMeta) (*models.Member, error)
	UpgradeToPremium(ctx context.Context, id string, meta models.AuditMeta) (*models.Member, error)
	DowngradeToRegular(ctx context.Context, id string, meta models.AuditMeta) (*models.Member, error)
	Remove(ctx context.Context, id string, meta models.AuditMeta) error
}

type memberLoanService interface {
	Eligibility(ctx context.Context, memberID string) (*models.Eligibility, error)
	ListByMember(ctx context.Context, memberID string, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error)
	ListActiveByMember(ctx context.Context, memberID string, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error)
}

// MemberHandler exposes member administration endpoints.
type MemberHandler struct {
	service memberService
	loans   memberLoanService
}

// NewMemberHandler constructs a member handler.
func NewMemberHandler(svc memberService, loans memberLoanService) *MemberHandler {
	return &MemberHandler{service: svc, loans: loans}
}

// List godoc
// @Summary List members
// @Tags Members
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param role query string false "REGULAR or PREMIUM"
// @Param active query bool false "Active filter"
// @Param search query string false "Name contains"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /members [get]
func (h *MemberHandler) List(c *gin.Context) {
	var filter models.MemberFilter
	filter.Page, filter.PageSize = parsePaging(c)
	if role := c.Query("role"); role != "" {
		r := models.MemberRole(role)
		filter.Role = &r
	}
	filter.Active = parseQueryBool(c, "active")
	filter.Search = c.Query("search")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	members, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, members, pagination)
}

// Get godoc
// @Summary Get member
// @Tags Members
// @Produce json
// @Param id path string true "Member ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /members/{id} [get]
func (h *MemberHandler) Get(c *gin.Context) {
	member, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, member)
}

// Create godoc
// @Summary Register member
// @Tags Members
// @Accept json
// @Produce json
// @Param payload body service.CreateMemberRequest true "Member payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /members [post]
func (h *MemberHandler) Create(c *gin.Context) {
	var req service.CreateMemberRequest
	if !bindJSON(c, &req, "invalid member payload") {
		return
	}
	member, err := h.service.RegisterWithRole(c.Request.Context(), req, auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, member)
}

// Update godoc
// @Summary Update member
// @Tags Members
// @Accept json
// @Produce json
// @Param id path string true "Member ID"
// @Param payload body service.UpdateMemberRequest true "Member payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /members/{id} [put]
func (h *MemberHandler) Update(c *gin.Context) {
	var req service.UpdateMemberRequest
	if !bindJSON(c, &req, "invalid member payload") {
		return
	}
	member, err := h.service.Update(c.Request.Context(), c.Param("id"), req, auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, member)
}

// Activate godoc
// @Summary Activate member
// @Tags Members
// @Param id path string true "Member ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /members/{id}/activate [post]
func (h *MemberHandler) Activate(c *gin.Context) {
	h.transition(c, h.service.Activate)
}

// Deactivate godoc
// @Summary Deactivate member
// @Tags Members
// @Param id path string true "Member ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /members/{id}/deactivate [post]
func (h *MemberHandler) Deactivate(c *gin.Context) {
	h.transition(c, h.service.Deactivate)
}

// Upgrade godoc
// @Summary Upgrade member to PREMIUM
// @Tags Members
// @Param id path string true "Member ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /members/{id}/upgrade [post]
func (h *MemberHandler) Upgrade(c *gin.Context) {
	h.transition(c, h.service.UpgradeToPremium)
}

// Downgrade godoc
// @Summary Downgrade member to REGULAR
// @Tags Members
// @Param id path string true "Member ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /members/{id}/downgrade [post]
func (h *MemberHandler) Downgrade(c *gin.Context) {
	h.transition(c, h.service.DowngradeToRegular)
}

func (h *MemberHandler) transition(c *gin.Context, fn func(context.Context, string, models.AuditMeta) (*models.Member, error)) {
	member, err := fn(c.Request.Context(), c.Param("id"), auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, member)
}

// Delete godoc
// @Summary Remove member
// @Tags Members
// @Param id path string true "Member ID"
// @Success 204
// @Security BearerAuth
// @Router /members/{id} [delete]
func (h *MemberHandler) Delete(c *gin.Context) {
	if err := h.service.Remove(c.Request.Context(), c.Param("id"), auditMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Eligibility godoc
// @Summary Borrowing eligibility
// @Description Active loan count against the member's role limit
// @Tags Members
// @Produce json
// @Param id path string true "Member ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /members/{id}/eligibility [get]
func (h *MemberHandler) Eligibility(c *gin.Context) {
	result, err := h.loans.Eligibility(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Loans godoc
// @Summary Member loan history
// @Tags Members
// @Produce json
// @Param id path string true "Member ID"
// @Param active query bool false "Only unreturned loans"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /members/{id}/loans [get]
func (h *MemberHandler) Loans(c *gin.Context) {
	var filter models.LoanFilter
	filter.Page, filter.PageSize = parsePaging(c)

	list := h.loans.ListByMember
	if active := parseQueryBool(c, "active"); active != nil && *active {
		list = h.loans.ListActiveByMember
	}
	loans, pagination, err := list(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loans, pagination)
}
