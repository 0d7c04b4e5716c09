package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/booknova-api/internal/models"
	"github.com/noah-isme/booknova-api/internal/repository"
	appErrors "github.com/noah-isme/booknova-api/pkg/errors"
	"github.com/noah-isme/booknova-api/pkg/validation"
)

type membershipRequestRepository interface {
	FindByID(ctx context.Context, id string) (*models.MembershipRequest, error)
	HasPending(ctx context.Context, userID string) (bool, error)
	List(ctx context.Context, status *models.RequestStatus) ([]models.MembershipRequest, error)
	ListByUser(ctx context.Context, userID string) ([]models.MembershipRequest, error)
	Create(ctx context.Context, req *models.MembershipRequest) error
	Approve(ctx context.Context, id, adminID string, member *models.Member) (*models.MembershipRequest, error)
	Reject(ctx context.Context, id, adminID string) (*models.MembershipRequest, error)
}

type requestUserLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type requestMemberLookup interface {
	FindByUserID(ctx context.Context, userID string) (*models.Member, error)
}

// CreateMembershipRequest is a user's application for a library card.
type CreateMembershipRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// MembershipRequestService handles applications from users to become members.
type MembershipRequestService struct {
	repo      membershipRequestRepository
	users     requestUserLookup
	members   requestMemberLookup
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMembershipRequestService constructs a MembershipRequestService.
func NewMembershipRequestService(repo membershipRequestRepository, users requestUserLookup, members requestMemberLookup, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *MembershipRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	return &MembershipRequestService{
		repo:      repo,
		users:     users,
		members:   members,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// CreateRequest files a pending request for userID. A user may hold at most
// one pending request and cannot apply once linked to a member.
func (s *MembershipRequestService) CreateRequest(ctx context.Context, userID string, req CreateMembershipRequest, meta models.AuditMeta) (*models.MembershipRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid membership request")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "user not found", "failed to load user")
	}
	if !user.CanLogin() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "inactive users cannot request membership")
	}

	if s.members != nil {
		member, err := s.members.FindByUserID(ctx, userID)
		switch {
		case err == nil && member != nil && !member.Deleted:
			return nil, appErrors.Clone(appErrors.ErrConflict, "user is already a member")
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Internal(err, "failed to check membership")
		}
	}

	pending, err := s.repo.HasPending(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check pending requests")
	}
	if pending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user already has a pending membership request")
	}

	request := &models.MembershipRequest{
		UserID:        user.ID,
		UserName:      user.Name,
		UserEmail:     user.Email,
		RequestReason: strings.TrimSpace(req.Reason),
	}
	if err := s.repo.Create(ctx, request); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "user already has a pending membership request")
		}
		return nil, appErrors.Internal(err, "failed to create membership request")
	}

	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionMembershipRequest,
		Resource:   "membership_requests",
		ResourceID: request.ID,
		New:        request,
	})
	return request, nil
}

// ListPending returns pending requests, oldest first.
func (s *MembershipRequestService) ListPending(ctx context.Context) ([]models.MembershipRequest, error) {
	status := models.RequestPending
	return s.list(ctx, &status)
}

// ListAll returns every request, newest first. A non-empty status narrows the result.
func (s *MembershipRequestService) ListAll(ctx context.Context, status models.RequestStatus) ([]models.MembershipRequest, error) {
	if status == "" {
		return s.list(ctx, nil)
	}
	switch status {
	case models.RequestPending, models.RequestApproved, models.RequestRejected:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be one of PENDING, APPROVED, REJECTED")
	}
	return s.list(ctx, &status)
}

func (s *MembershipRequestService) list(ctx context.Context, status *models.RequestStatus) ([]models.MembershipRequest, error) {
	requests, err := s.repo.List(ctx, status)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list membership requests")
	}
	if requests == nil {
		requests = []models.MembershipRequest{}
	}
	return requests, nil
}

// ListMine returns the requests filed by userID.
func (s *MembershipRequestService) ListMine(ctx context.Context, userID string) ([]models.MembershipRequest, error) {
	requests, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list membership requests")
	}
	if requests == nil {
		requests = []models.MembershipRequest{}
	}
	return requests, nil
}

// Get returns a request by ID.
func (s *MembershipRequestService) Get(ctx context.Context, id string) (*models.MembershipRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "membership request not found", "failed to load membership request")
	}
	return request, nil
}

// HasPending reports whether userID has a request awaiting review.
func (s *MembershipRequestService) HasPending(ctx context.Context, userID string) (bool, error) {
	pending, err := s.repo.HasPending(ctx, userID)
	if err != nil {
		return false, appErrors.Internal(err, "failed to check pending requests")
	}
	return pending, nil
}

// Approve turns a pending request into an active REGULAR member linked to
// the applicant. meta.ActorID is recorded as the reviewing admin.
func (s *MembershipRequestService) Approve(ctx context.Context, id string, meta models.AuditMeta) (*models.MembershipRequest, *models.Member, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !current.Pending() {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "only pending requests can be approved")
	}

	member := models.NewMember(current.UserName)
	request, err := s.repo.Approve(ctx, id, meta.ActorID, member)
	if err != nil {
		return nil, nil, s.reviewError(err, "approved")
	}

	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionMembershipApprove,
		Resource:   "membership_requests",
		ResourceID: request.ID,
		Old:        map[string]models.RequestStatus{"status": models.RequestPending},
		New:        map[string]string{"status": string(request.Status), "member_id": member.ID},
	})
	return request, member, nil
}

// Reject closes a pending request without creating a member.
func (s *MembershipRequestService) Reject(ctx context.Context, id string, meta models.AuditMeta) (*models.MembershipRequest, error) {
	request, err := s.repo.Reject(ctx, id, meta.ActorID)
	if err != nil {
		return nil, s.reviewError(err, "rejected")
	}

	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionMembershipReject,
		Resource:   "membership_requests",
		ResourceID: request.ID,
		Old:        map[string]models.RequestStatus{"status": models.RequestPending},
		New:        map[string]models.RequestStatus{"status": request.Status},
	})
	return request, nil
}

func (s *MembershipRequestService) reviewError(err error, verb string) *appErrors.Error {
	if errors.Is(err, repository.ErrRequestNotPending) {
		return appErrors.Clone(appErrors.ErrConflict, "only pending requests can be "+verb)
	}
	return notFoundOr(err, "membership request not found", "failed to review membership request")
}
