package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/booknova-api/internal/models"
	appErrors "github.com/noah-isme/booknova-api/pkg/errors"
	"github.com/noah-isme/booknova-api/pkg/validation"
)

type memberRepository interface {
	FindByID(ctx context.Context, id string) (*models.Member, error)
	FindByUserID(ctx context.Context, userID string) (*models.Member, error)
	List(ctx context.Context, filter models.MemberFilter) ([]models.Member, int, error)
	Create(ctx context.Context, member *models.Member) error
	Update(ctx context.Context, member *models.Member) error
	SetActive(ctx context.Context, id string, active bool) error
	SetRole(ctx context.Context, id string, role models.MemberRole) error
	Delete(ctx context.Context, id string) error
}

// CreateMemberRequest registers a member. Role and access level default to
// REGULAR and READ_WRITE.
type CreateMemberRequest struct {
	Name        string             `json:"name" validate:"required,max=100,notnumeric"`
	Role        models.MemberRole  `json:"role" validate:"omitempty,oneof=REGULAR PREMIUM"`
	AccessLevel models.AccessLevel `json:"access_level" validate:"omitempty,oneof=READ_ONLY READ_WRITE MANAGE"`
	UserID      *string            `json:"user_id" validate:"omitempty,uuid"`
}

// UpdateMemberRequest replaces the mutable member fields.
type UpdateMemberRequest struct {
	Name        string             `json:"name" validate:"required,max=100,notnumeric"`
	Role        models.MemberRole  `json:"role" validate:"required,oneof=REGULAR PREMIUM"`
	AccessLevel models.AccessLevel `json:"access_level" validate:"required,oneof=READ_ONLY READ_WRITE MANAGE"`
	Active      *bool              `json:"active"`
}

// MemberService manages library members.
type MemberService struct {
	repo      memberRepository
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMemberService constructs a MemberService.
func NewMemberService(repo memberRepository, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *MemberService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	return &MemberService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// Register creates an active REGULAR member.
func (s *MemberService) Register(ctx context.Context, name string, meta models.AuditMeta) (*models.Member, error) {
	return s.RegisterWithRole(ctx, CreateMemberRequest{Name: name}, meta)
}

// RegisterWithRole creates a member with an explicit tier and access level.
func (s *MemberService) RegisterWithRole(ctx context.Context, req CreateMemberRequest, meta models.AuditMeta) (*models.Member, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid member payload")
	}

	member := models.NewMember(strings.TrimSpace(req.Name))
	if req.Role != "" {
		member.Role = req.Role
	}
	if req.AccessLevel != "" {
		member.AccessLevel = req.AccessLevel
	}
	member.UserID = req.UserID

	if err := s.repo.Create(ctx, member); err != nil {
		return nil, appErrors.Internal(err, "failed to create member")
	}

	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionMemberCreate,
		Resource:   "members",
		ResourceID: member.ID,
		New:        map[string]interface{}{"name": member.Name, "role": member.Role, "access_level": member.AccessLevel},
	})
	return member, nil
}

// Update replaces name, tier, access level and optionally the active flag.
func (s *MemberService) Update(ctx context.Context, id string, req UpdateMemberRequest, meta models.AuditMeta) (*models.Member, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid member payload")
	}

	member, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if member.Deleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "member has been removed")
	}
	before := memberSnapshot(member)

	member.Name = strings.TrimSpace(req.Name)
	member.Role = req.Role
	member.AccessLevel = req.AccessLevel
	if req.Active != nil {
		member.Active = *req.Active
	}

	if err := s.repo.Update(ctx, member); err != nil {
		return nil, appErrors.Internal(err, "failed to update member")
	}

	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionMemberUpdate,
		Resource:   "members",
		ResourceID: member.ID,
		Old:        before,
		New:        memberSnapshot(member),
	})
	return member, nil
}

// Get returns a member by ID.
func (s *MemberService) Get(ctx context.Context, id string) (*models.Member, error) {
	member, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "member not found", "failed to load member")
	}
	return member, nil
}

// GetByUserID returns the member linked to an account.
func (s *MemberService) GetByUserID(ctx context.Context, userID string) (*models.Member, error) {
	member, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "no member is linked to this account", "failed to load member")
	}
	return member, nil
}

// List returns paginated members.
func (s *MemberService) List(ctx context.Context, filter models.MemberFilter) ([]models.Member, *models.Pagination, error) {
	members, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list members")
	}
	return members, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// SearchByName matches name case-insensitively. An empty query matches nothing.
func (s *MemberService) SearchByName(ctx context.Context, name string, filter models.MemberFilter) ([]models.Member, *models.Pagination, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return []models.Member{}, models.NewPagination(filter.Page, filter.PageSize, 0), nil
	}
	filter.Search = name
	return s.List(ctx, filter)
}

// ListActive returns members that can borrow.
func (s *MemberService) ListActive(ctx context.Context, filter models.MemberFilter) ([]models.Member, *models.Pagination, error) {
	active := true
	filter.Active = &active
	filter.IncludeDeleted = false
	return s.List(ctx, filter)
}

// CanBorrow reports whether the member is active and not removed.
// Unknown members cannot borrow.
func (s *MemberService) CanBorrow(ctx context.Context, id string) (bool, error) {
	member, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return member.CanBorrow(), nil
}

// Activate re-enables borrowing.
func (s *MemberService) Activate(ctx context.Context, id string, meta models.AuditMeta) (*models.Member, error) {
	return s.setActive(ctx, id, true, meta)
}

// Deactivate suspends borrowing without removing the member.
func (s *MemberService) Deactivate(ctx context.Context, id string, meta models.AuditMeta) (*models.Member, error) {
	return s.setActive(ctx, id, false, meta)
}

func (s *MemberService) setActive(ctx context.Context, id string, active bool, meta models.AuditMeta) (*models.Member, error) {
	member, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if member.Deleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "member has been removed")
	}
	if member.Active == active {
		return member, nil
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, appErrors.Internal(err, "failed to update member status")
	}
	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionMemberUpdate,
		Resource:   "members",
		ResourceID: id,
		Old:        map[string]bool{"active": member.Active},
		New:        map[string]bool{"active": active},
	})
	member.Active = active
	return member, nil
}

// UpgradeToPremium moves the member to the PREMIUM tier.
func (s *MemberService) UpgradeToPremium(ctx context.Context, id string, meta models.AuditMeta) (*models.Member, error) {
	return s.setRole(ctx, id, models.MemberPremium, meta)
}

// DowngradeToRegular moves the member to the REGULAR tier. Loans already
// held above the REGULAR limit stay open; new loans are refused until the
// count drops below it.
func (s *MemberService) DowngradeToRegular(ctx context.Context, id string, meta models.AuditMeta) (*models.Member, error) {
	return s.setRole(ctx, id, models.MemberRegular, meta)
}

func (s *MemberService) setRole(ctx context.Context, id string, role models.MemberRole, meta models.AuditMeta) (*models.Member, error) {
	member, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if member.Deleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "member has been removed")
	}
	if member.Role == role {
		return member, nil
	}
	if err := s.repo.SetRole(ctx, id, role); err != nil {
		return nil, appErrors.Internal(err, "failed to change member tier")
	}
	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionMemberUpdate,
		Resource:   "members",
		ResourceID: id,
		Old:        map[string]models.MemberRole{"role": member.Role},
		New:        map[string]models.MemberRole{"role": role},
	})
	member.Role = role
	return member, nil
}

// Remove soft deletes a member.
func (s *MemberService) Remove(ctx context.Context, id string, meta models.AuditMeta) error {
	member, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if member.Deleted {
		return nil
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Internal(err, "failed to remove member")
	}
	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionMemberDelete,
		Resource:   "members",
		ResourceID: id,
		Old:        memberSnapshot(member),
		New:        map[string]bool{"active": false, "deleted": true},
	})
	return nil
}

func memberSnapshot(m *models.Member) map[string]interface{} {
	return map[string]interface{}{
		"name":         m.Name,
		"role":         m.Role,
		"access_level": m.AccessLevel,
		"active":       m.Active,
	}
}
