package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/booknova-api/internal/models"
)

const memberColumns = `id, name, role, access_level, active, deleted, user_id, created_at, updated_at`

// MemberRepository provides database access for members.
type MemberRepository struct {
	db *sqlx.DB
}

// NewMemberRepository constructs the repository.
func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// FindByID returns a member, including soft-deleted ones.
func (r *MemberRepository) FindByID(ctx context.Context, id string) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`
	var member models.Member
	if err := r.db.GetContext(ctx, &member, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find member: %w", err)
	}
	return &member, nil
}

// FindByUserID returns the non-deleted member linked to an account.
func (r *MemberRepository) FindByUserID(ctx context.Context, userID string) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE user_id = $1 AND deleted = FALSE ORDER BY created_at DESC LIMIT 1`
	var member models.Member
	if err := r.db.GetContext(ctx, &member, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find member by user: %w", err)
	}
	return &member, nil
}

// List returns members matching filter with the total count.
func (r *MemberRepository) List(ctx context.Context, filter models.MemberFilter) ([]models.Member, int, error) {
	var conditions []string
	var args []interface{}

	if !filter.IncludeDeleted {
		conditions = append(conditions, "deleted = FALSE")
	}
	if filter.Role != nil {
		args = append(args, *filter.Role)
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, likePattern(filter.Search))
		conditions = append(conditions, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)))
	}

	baseQuery := `FROM members WHERE 1=1`
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy, order, limit, offset := listWindow(filter.SortBy, filter.SortOrder, "created_at", map[string]bool{
		"name":       true,
		"role":       true,
		"created_at": true,
	}, filter.Page, filter.PageSize)

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", memberColumns, baseQuery, sortBy, order, limit, offset)
	var members []models.Member
	if err := r.db.SelectContext(ctx, &members, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list members: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count members: %w", err)
	}
	return members, total, nil
}

// Create inserts a new member.
func (r *MemberRepository) Create(ctx context.Context, member *models.Member) error {
	return createMember(ctx, r.db, member)
}

func createMember(ctx context.Context, exec sqlx.ExtContext, member *models.Member) error {
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if member.CreatedAt.IsZero() {
		member.CreatedAt = now
	}
	member.UpdatedAt = now

	const query = `INSERT INTO members (id, name, role, access_level, active, deleted, user_id, created_at, updated_at)
VALUES (:id, :name, :role, :access_level, :active, :deleted, :user_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, member); err != nil {
		return fmt.Errorf("create member: %w", err)
	}
	return nil
}

// Update writes the mutable member fields.
func (r *MemberRepository) Update(ctx context.Context, member *models.Member) error {
	member.UpdatedAt = time.Now().UTC()
	const query = `UPDATE members SET name = :name, role = :role, access_level = :access_level, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, member); err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	return nil
}

// SetActive toggles the active flag.
func (r *MemberRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE members SET active = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("set member active: %w", err)
	}
	return nil
}

// SetRole moves the member between tiers.
func (r *MemberRepository) SetRole(ctx context.Context, id string, role models.MemberRole) error {
	const query = `UPDATE members SET role = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, role, time.Now().UTC()); err != nil {
		return fmt.Errorf("set member role: %w", err)
	}
	return nil
}

// Delete soft deletes a member: deleted is set and the member deactivated.
func (r *MemberRepository) Delete(ctx context.Context, id string) error {
	const query = `UPDATE members SET deleted = TRUE, active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}
