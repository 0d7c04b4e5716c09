package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/booknova-api/internal/models"
)

const requestColumns = `id, user_id, user_name, user_email, status, request_reason, processed_by, requested_at, processed_at`

// MembershipRequestRepository stores membership applications.
type MembershipRequestRepository struct {
	db *sqlx.DB
}

// NewMembershipRequestRepository constructs the repository.
func NewMembershipRequestRepository(db *sqlx.DB) *MembershipRequestRepository {
	return &MembershipRequestRepository{db: db}
}

// FindByID returns a request by identifier.
func (r *MembershipRequestRepository) FindByID(ctx context.Context, id string) (*models.MembershipRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM membership_requests WHERE id = $1`
	var req models.MembershipRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find membership request: %w", err)
	}
	return &req, nil
}

// HasPending reports whether the user already has a request awaiting review.
func (r *MembershipRequestRepository) HasPending(ctx context.Context, userID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM membership_requests WHERE user_id = $1 AND status = 'PENDING')`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID); err != nil {
		return false, fmt.Errorf("check pending request: %w", err)
	}
	return exists, nil
}

// List returns requests, optionally restricted to one status. Pending
// requests are listed oldest first so reviewers work through the backlog in
// order; everything else is newest first.
func (r *MembershipRequestRepository) List(ctx context.Context, status *models.RequestStatus) ([]models.MembershipRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM membership_requests`
	args := []interface{}{}
	order := " ORDER BY requested_at DESC"
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
		if *status == models.RequestPending {
			order = " ORDER BY requested_at ASC"
		}
	}

	requests := make([]models.MembershipRequest, 0)
	if err := r.db.SelectContext(ctx, &requests, query+order, args...); err != nil {
		return nil, fmt.Errorf("list membership requests: %w", err)
	}
	return requests, nil
}

// ListByUser returns a user's requests, newest first.
func (r *MembershipRequestRepository) ListByUser(ctx context.Context, userID string) ([]models.MembershipRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM membership_requests WHERE user_id = $1 ORDER BY requested_at DESC`
	requests := make([]models.MembershipRequest, 0)
	if err := r.db.SelectContext(ctx, &requests, query, userID); err != nil {
		return nil, fmt.Errorf("list user membership requests: %w", err)
	}
	return requests, nil
}

// Create stores a new pending request. The partial unique index on pending
// requests turns a concurrent duplicate into ErrDuplicate.
func (r *MembershipRequestRepository) Create(ctx context.Context, req *models.MembershipRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	req.Status = models.RequestPending

	const query = `INSERT INTO membership_requests (id, user_id, user_name, user_email, status, request_reason, requested_at)
VALUES (:id, :user_id, :user_name, :user_email, :status, :request_reason, :requested_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create membership request: %w", err)
	}
	return nil
}

// Approve creates member and marks the request approved in one transaction.
func (r *MembershipRequestRepository) Approve(ctx context.Context, id, adminID string, member *models.Member) (*models.MembershipRequest, error) {
	var req models.MembershipRequest
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockPendingRequest(ctx, tx, id, &req); err != nil {
			return err
		}

		member.UserID = &req.UserID
		if err := createMember(ctx, tx, member); err != nil {
			return err
		}
		return closeRequest(ctx, tx, &req, models.RequestApproved, adminID)
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Reject marks a pending request rejected.
func (r *MembershipRequestRepository) Reject(ctx context.Context, id, adminID string) (*models.MembershipRequest, error) {
	var req models.MembershipRequest
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockPendingRequest(ctx, tx, id, &req); err != nil {
			return err
		}
		return closeRequest(ctx, tx, &req, models.RequestRejected, adminID)
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func lockPendingRequest(ctx context.Context, tx *sqlx.Tx, id string, req *models.MembershipRequest) error {
	if err := tx.GetContext(ctx, req, `SELECT `+requestColumns+` FROM membership_requests WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("lock membership request: %w", err)
	}
	if !req.Pending() {
		return ErrRequestNotPending
	}
	return nil
}

func closeRequest(ctx context.Context, tx *sqlx.Tx, req *models.MembershipRequest, status models.RequestStatus, adminID string) error {
	now := time.Now().UTC()
	const query = `UPDATE membership_requests SET status = $2, processed_by = $3, processed_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, req.ID, status, adminID, now); err != nil {
		return fmt.Errorf("update membership request: %w", err)
	}
	req.Status = status
	req.ProcessedBy = &adminID
	req.ProcessedAt = &now
	return nil
}
