package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	// ErrDuplicate signals a unique constraint violation.
	ErrDuplicate = errors.New("duplicate record")
	// ErrBookUnavailable is returned when no copy is left to lend.
	ErrBookUnavailable = errors.New("book is not available for lending")
	// ErrLoanLimitReached is returned when a member already holds the maximum number of loans.
	ErrLoanLimitReached = errors.New("member has reached borrowing limit")
	// ErrLoanAlreadyReturned is returned when returning or extending a closed loan.
	ErrLoanAlreadyReturned = errors.New("loan already returned")
	// ErrMemberInactive is returned when an inactive or deleted member tries to borrow.
	ErrMemberInactive = errors.New("member not found or inactive")
	// ErrBookOnLoan is returned when removing a book that still has copies out.
	ErrBookOnLoan = errors.New("book has active loans")
	// ErrRequestNotPending is returned when a processed membership request is reviewed again.
	ErrRequestNotPending = errors.New("membership request is not pending")
)

const uniqueViolation = "23505"

// isUniqueViolation recognises duplicate key errors from both lib/pq and pgx.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}

// withTx runs fn in a transaction, committing on success and rolling back on
// error or panic.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("commit tx: %w", cerr)
		}
	}()

	return fn(tx)
}

// listWindow resolves ORDER BY and LIMIT/OFFSET for list queries. Unknown sort
// columns fall back to fallback.
func listWindow(sortBy, sortOrder, fallback string, allowed map[string]bool, page, pageSize int) (string, string, int, int) {
	if sortBy == "" || !allowed[sortBy] {
		sortBy = fallback
	}
	order := strings.ToUpper(sortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return sortBy, order, pageSize, (page - 1) * pageSize
}

func likePattern(raw string) string {
	return "%" + strings.ToLower(strings.TrimSpace(raw)) + "%"
}
