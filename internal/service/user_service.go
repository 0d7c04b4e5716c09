package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/booknova-api/internal/models"
	"github.com/noah-isme/booknova-api/internal/repository"
	appErrors "github.com/noah-isme/booknova-api/pkg/errors"
	"github.com/noah-isme/booknova-api/pkg/validation"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

// CreateUserRequest is the administrator payload for creating accounts.
type CreateUserRequest struct {
	Name        string             `json:"name" validate:"required,max=100,notnumeric"`
	Email       string             `json:"email" validate:"required,max=120,email"`
	Password    string             `json:"password" validate:"required,min=8,max=255"`
	Phone       string             `json:"phone" validate:"required,max=30,phone"`
	Role        models.UserRole    `json:"role" validate:"required,oneof=USER ADMIN"`
	AccessLevel models.AccessLevel `json:"access_level" validate:"required,oneof=READ_ONLY READ_WRITE MANAGE"`
}

// UpdateUserRequest payload for updating users.
type UpdateUserRequest struct {
	Name        string             `json:"name" validate:"required,max=100,notnumeric"`
	Email       string             `json:"email" validate:"required,max=120,email"`
	Phone       string             `json:"phone" validate:"required,max=30,phone"`
	Role        models.UserRole    `json:"role" validate:"required,oneof=USER ADMIN"`
	AccessLevel models.AccessLevel `json:"access_level" validate:"required,oneof=READ_ONLY READ_WRITE MANAGE"`
	Active      *bool              `json:"active"`
}

// UserService handles account management.
type UserService struct {
	repo      userRepository
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	return &UserService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// Register creates a self-service account with role USER and READ_WRITE access.
func (s *UserService) Register(ctx context.Context, req models.RegisterRequest, meta models.AuditMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid registration payload")
	}
	user := &models.User{
		Name:        strings.TrimSpace(req.Name),
		Email:       req.Email,
		Phone:       strings.TrimSpace(req.Phone),
		Role:        models.RoleUser,
		AccessLevel: models.AccessReadWrite,
		Active:      true,
	}
	if err := s.create(ctx, user, req.Password); err != nil {
		return nil, err
	}

	meta.ActorID = user.ID
	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionRegister,
		Resource:   "users",
		ResourceID: user.ID,
		New:        map[string]interface{}{"email": user.Email, "role": user.Role},
	})
	return user, nil
}

// AdminRegister creates an account with an explicit role and access level.
func (s *UserService) AdminRegister(ctx context.Context, req CreateUserRequest, meta models.AuditMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid create user payload")
	}
	user := &models.User{
		Name:        strings.TrimSpace(req.Name),
		Email:       req.Email,
		Phone:       strings.TrimSpace(req.Phone),
		Role:        req.Role,
		AccessLevel: req.AccessLevel,
		Active:      true,
	}
	if err := s.create(ctx, user, req.Password); err != nil {
		return nil, err
	}

	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionUserCreate,
		Resource:   "users",
		ResourceID: user.ID,
		New:        map[string]interface{}{"email": user.Email, "role": user.Role, "access_level": user.AccessLevel},
	})
	return user, nil
}

func (s *UserService) create(ctx context.Context, user *models.User, password string) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	exists, err := s.repo.ExistsByEmail(ctx, user.Email)
	if err != nil {
		return appErrors.Internal(err, "failed to check email uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Internal(err, "failed to hash password")
	}
	user.PasswordHash = string(hash)

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return appErrors.Internal(err, "failed to create user")
	}
	return nil
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list users")
	}
	return users, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// ListActive returns active, non-deleted users.
func (s *UserService) ListActive(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	active := true
	filter.Active = &active
	filter.IncludeDeleted = false
	return s.List(ctx, filter)
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "user not found", "failed to load user")
	}
	return user, nil
}

// GetByEmail returns a user by email address.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, notFoundOr(err, "user not found", "failed to load user")
	}
	return user, nil
}

// Exists reports whether an account uses email.
func (s *UserService) Exists(ctx context.Context, email string) (bool, error) {
	exists, err := s.repo.ExistsByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return false, appErrors.Internal(err, "failed to check email")
	}
	return exists, nil
}

// Update modifies the user attributes.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, meta models.AuditMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid update payload")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := map[string]interface{}{"name": user.Name, "email": user.Email, "role": user.Role, "access_level": user.AccessLevel, "active": user.Active}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email != user.Email {
		exists, err := s.repo.ExistsByEmail(ctx, email)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to check email uniqueness")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
	}

	user.Name = strings.TrimSpace(req.Name)
	user.Email = email
	user.Phone = strings.TrimSpace(req.Phone)
	user.Role = req.Role
	user.AccessLevel = req.AccessLevel
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, appErrors.Internal(err, "failed to update user")
	}

	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionUserUpdate,
		Resource:   "users",
		ResourceID: user.ID,
		Old:        before,
		New:        map[string]interface{}{"name": user.Name, "email": user.Email, "role": user.Role, "access_level": user.AccessLevel, "active": user.Active},
	})
	return user, nil
}

// Activate re-enables login for a user.
func (s *UserService) Activate(ctx context.Context, id string, meta models.AuditMeta) (*models.User, error) {
	return s.setActive(ctx, id, true, meta)
}

// Deactivate blocks login for a user.
func (s *UserService) Deactivate(ctx context.Context, id string, meta models.AuditMeta) (*models.User, error) {
	return s.setActive(ctx, id, false, meta)
}

func (s *UserService) setActive(ctx context.Context, id string, active bool, meta models.AuditMeta) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Deleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user has been deleted")
	}
	if user.Active == active {
		return user, nil
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, appErrors.Internal(err, "failed to update user status")
	}

	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionUserUpdate,
		Resource:   "users",
		ResourceID: id,
		Old:        map[string]bool{"active": user.Active},
		New:        map[string]bool{"active": active},
	})
	user.Active = active
	return user, nil
}

// Delete soft deletes a user: the account is flagged deleted and deactivated.
func (s *UserService) Delete(ctx context.Context, id string, meta models.AuditMeta) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.Deleted {
		return nil
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Internal(err, "failed to delete user")
	}

	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionUserDelete,
		Resource:   "users",
		ResourceID: user.ID,
		Old:        map[string]bool{"active": user.Active, "deleted": false},
		New:        map[string]bool{"active": false, "deleted": true},
	})
	return nil
}
