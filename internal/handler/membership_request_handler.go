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

type membershipRequestService interface {
	CreateRequest(ctx context.Context, userID string, req service.CreateMembershipRequest, meta models.AuditMeta) (*models.MembershipRequest, error)
	ListPending(ctx context.Context) ([]models.MembershipRequest, error)
	ListAll(ctx context.Context, status models.RequestStatus) ([]models.MembershipRequest, error)
	ListMine(ctx context.Context, userID string) ([]models.MembershipRequest, error)
	Get(ctx context.Context, id string) (*models.MembershipRequest, error)
	Approve(ctx context.Context, id string, meta models.AuditMeta) (*models.MembershipRequest, *models.Member, error)
	Reject(ctx context.Context, id string, meta models.AuditMeta) (*models.MembershipRequest, error)
}

// MembershipRequestHandler handles applications for a library card.
type MembershipRequestHandler struct {
	service membershipRequestService
}

// NewMembershipRequestHandler constructs the handler.
func NewMembershipRequestHandler(svc membershipRequestService) *MembershipRequestHandler {
	return &MembershipRequestHandler{service: svc}
}

// Create godoc
// @Summary Request membership
// @Tags Membership Requests
// @Accept json
// @Produce json
// @Param payload body service.CreateMembershipRequest true "Reason"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /membership-requests [post]
func (h *MembershipRequestHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateMembershipRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "invalid membership request payload") {
		return
	}

	request, err := h.service.CreateRequest(c.Request.Context(), claims.UserID, req, auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// Mine godoc
// @Summary My membership requests
// @Tags Membership Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /membership-requests/mine [get]
func (h *MembershipRequestHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	requests, err := h.service.ListMine(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, requests)
}

// List godoc
// @Summary List membership requests
// @Tags Membership Requests
// @Produce json
// @Param status query string false "PENDING, APPROVED or REJECTED"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /membership-requests [get]
func (h *MembershipRequestHandler) List(c *gin.Context) {
	requests, err := h.service.ListAll(c.Request.Context(), models.RequestStatus(c.Query("status")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, requests)
}

// Pending godoc
// @Summary Pending membership requests
// @Tags Membership Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /membership-requests/pending [get]
func (h *MembershipRequestHandler) Pending(c *gin.Context) {
	requests, err := h.service.ListPending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, requests)
}

// Get godoc
// @Summary Get membership request
// @Tags Membership Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /membership-requests/{id} [get]
func (h *MembershipRequestHandler) Get(c *gin.Context) {
	request, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, request)
}

// Approve godoc
// @Summary Approve membership request
// @Description Creates a REGULAR member linked to the requesting user.
// @Tags Membership Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /membership-requests/{id}/approve [post]
func (h *MembershipRequestHandler) Approve(c *gin.Context) {
	request, member, err := h.service.Approve(c.Request.Context(), c.Param("id"), auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"request": request, "member": member}, nil)
}

// Reject godoc
// @Summary Reject membership request
// @Tags Membership Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /membership-requests/{id}/reject [post]
func (h *MembershipRequestHandler) Reject(c *gin.Context) {
	request, err := h.service.Reject(c.Request.Context(), c.Param("id"), auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, request)
}
