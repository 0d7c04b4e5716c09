package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/booknova-api/internal/models"
)

const loanColumns = `id, member_id, book_id, loan_date, due_date, returned, return_date, created_at, updated_at`

var pg = goqu.Dialect("postgres")

var loanSorts = map[string]bool{
	"loan_date":  true,
	"due_date":   true,
	"created_at": true,
}

// LimitFunc resolves the maximum number of concurrent loans for a tier.
type LimitFunc func(models.MemberRole) int

// LoanRepository provides database access for loans. Checkout and Return
// touch both the loan and the book stock inside one transaction.
type LoanRepository struct {
	db *sqlx.DB
}

// NewLoanRepository constructs the repository.
func NewLoanRepository(db *sqlx.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

// sqlDate renders a calendar date for DATE columns so the session time zone
// cannot shift it.
func sqlDate(t time.Time) string {
	return models.Date(t).Format(models.DateLayout)
}

// FindByID returns a loan by identifier.
func (r *LoanRepository) FindByID(ctx context.Context, id string) (*models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`
	var loan models.Loan
	if err := r.db.GetContext(ctx, &loan, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find loan: %w", err)
	}
	return &loan, nil
}

// FindActiveByMemberAndBook returns the member's open loan for a book.
func (r *LoanRepository) FindActiveByMemberAndBook(ctx context.Context, memberID, bookID string) (*models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE member_id = $1 AND book_id = $2 AND returned = FALSE ORDER BY loan_date ASC LIMIT 1`
	var loan models.Loan
	if err := r.db.GetContext(ctx, &loan, query, memberID, bookID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find active loan: %w", err)
	}
	return &loan, nil
}

// CountActiveByMember counts the member's unreturned loans.
func (r *LoanRepository) CountActiveByMember(ctx context.Context, memberID string) (int, error) {
	const query = `SELECT COUNT(*) FROM loans WHERE member_id = $1 AND returned = FALSE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, memberID); err != nil {
		return 0, fmt.Errorf("count active loans: %w", err)
	}
	return count, nil
}

func loanConditions(filter models.LoanFilter) []exp.Expression {
	conds := make([]exp.Expression, 0, 6)
	if filter.MemberID != "" {
		conds = append(conds, goqu.I("l.member_id").Eq(filter.MemberID))
	}
	if filter.BookID != "" {
		conds = append(conds, goqu.I("l.book_id").Eq(filter.BookID))
	}
	if filter.ActiveOnly || filter.OverdueOnly {
		conds = append(conds, goqu.I("l.returned").IsFalse())
	}
	if filter.OverdueOnly {
		asOf := filter.AsOf
		if asOf.IsZero() {
			asOf = time.Now()
		}
		conds = append(conds, goqu.I("l.due_date").Lt(sqlDate(asOf)))
	}
	if filter.DueOn != nil {
		conds = append(conds, goqu.I("l.due_date").Eq(sqlDate(*filter.DueOn)))
	}
	if filter.LoanedFrom != nil {
		conds = append(conds, goqu.I("l.loan_date").Gte(sqlDate(*filter.LoanedFrom)))
	}
	if filter.LoanedTo != nil {
		conds = append(conds, goqu.I("l.loan_date").Lte(sqlDate(*filter.LoanedTo)))
	}
	return conds
}

// List returns loans joined with member and book labels plus the total count.
func (r *LoanRepository) List(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, int, error) {
	conds := loanConditions(filter)

	sortBy, order, limit, offset := listWindow(filter.SortBy, filter.SortOrder, "loan_date", loanSorts, filter.Page, filter.PageSize)
	orderExpr := goqu.I("l." + sortBy).Desc()
	if order == "ASC" {
		orderExpr = goqu.I("l." + sortBy).Asc()
	}

	listQuery, listArgs, err := pg.From(goqu.T("loans").As("l")).
		InnerJoin(goqu.T("members").As("m"), goqu.On(goqu.I("m.id").Eq(goqu.I("l.member_id")))).
		InnerJoin(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("l.book_id")))).
		Select(
			goqu.I("l.id"), goqu.I("l.member_id"), goqu.I("l.book_id"),
			goqu.I("l.loan_date"), goqu.I("l.due_date"), goqu.I("l.returned"), goqu.I("l.return_date"),
			goqu.I("l.created_at"), goqu.I("l.updated_at"),
			goqu.I("m.name").As("member_name"),
			goqu.I("b.title").As("book_title"),
			goqu.I("b.isbn").As("book_isbn"),
		).
		Where(conds...).
		Order(orderExpr, goqu.I("l.id").Asc()).
		Limit(uint(limit)).
		Offset(uint(offset)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build loan list query: %w", err)
	}

	var loans []models.LoanDetail
	if err := r.db.SelectContext(ctx, &loans, listQuery, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list loans: %w", err)
	}

	countQuery, countArgs, err := pg.From(goqu.T("loans").As("l")).
		Select(goqu.COUNT(goqu.Star())).
		Where(conds...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build loan count query: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count loans: %w", err)
	}
	return loans, total, nil
}

// Checkout opens a loan. Inside one transaction it locks the member row,
// rechecks standing and the tier limit, takes one copy off the shelf and
// inserts the loan. Failures map to ErrMemberInactive, ErrLoanLimitReached,
// sql.ErrNoRows (unknown book) and ErrBookUnavailable.
func (r *LoanRepository) Checkout(ctx context.Context, loan *models.Loan, limitFor LimitFunc) error {
	if loan.ID == "" {
		loan.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	loan.CreatedAt, loan.UpdatedAt = now, now
	loan.Returned = false
	loan.ReturnDate = nil
	loan.LoanDate = models.Date(loan.LoanDate)
	loan.DueDate = models.Date(loan.DueDate)

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var member struct {
			Role    models.MemberRole `db:"role"`
			Active  bool              `db:"active"`
			Deleted bool              `db:"deleted"`
		}
		if err := tx.GetContext(ctx, &member, `SELECT role, active, deleted FROM members WHERE id = $1 FOR UPDATE`, loan.MemberID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrMemberInactive
			}
			return fmt.Errorf("lock member: %w", err)
		}
		if !member.Active || member.Deleted {
			return ErrMemberInactive
		}

		var active int
		if err := tx.GetContext(ctx, &active, `SELECT COUNT(*) FROM loans WHERE member_id = $1 AND returned = FALSE`, loan.MemberID); err != nil {
			return fmt.Errorf("count active loans: %w", err)
		}
		if active >= limitFor(member.Role) {
			return ErrLoanLimitReached
		}

		var stock int
		err := tx.GetContext(ctx, &stock, `UPDATE books SET stock = stock - 1, updated_at = $2 WHERE id = $1 AND stock > 0 AND deleted = FALSE RETURNING stock`, loan.BookID, now)
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM books WHERE id = $1 AND deleted = FALSE)`, loan.BookID); err != nil {
				return fmt.Errorf("check book: %w", err)
			}
			if !exists {
				return sql.ErrNoRows
			}
			return ErrBookUnavailable
		}
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}

		const insert = `INSERT INTO loans (id, member_id, book_id, loan_date, due_date, returned, return_date, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, FALSE, NULL, $6, $6)`
		if _, err := tx.ExecContext(ctx, insert, loan.ID, loan.MemberID, loan.BookID, sqlDate(loan.LoanDate), sqlDate(loan.DueDate), now); err != nil {
			return fmt.Errorf("insert loan: %w", err)
		}
		return nil
	})
}

// Return closes an open loan on returnDate and puts the copy back on the
// shelf. A loan that is already closed yields ErrLoanAlreadyReturned.
func (r *LoanRepository) Return(ctx context.Context, id string, returnDate time.Time) (*models.Loan, error) {
	var loan models.Loan
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &loan, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("lock loan: %w", err)
		}
		if loan.Returned {
			return ErrLoanAlreadyReturned
		}

		now := time.Now().UTC()
		returned := models.Date(returnDate)
		if _, err := tx.ExecContext(ctx, `UPDATE loans SET returned = TRUE, return_date = $2, updated_at = $3 WHERE id = $1 AND returned = FALSE`, id, sqlDate(returned), now); err != nil {
			return fmt.Errorf("mark loan returned: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE books SET stock = stock + 1, updated_at = $2 WHERE id = $1`, loan.BookID, now); err != nil {
			return fmt.Errorf("increment stock: %w", err)
		}

		loan.Returned = true
		loan.ReturnDate = &returned
		loan.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// Extend moves the due date of an open loan forward by days.
func (r *LoanRepository) Extend(ctx context.Context, id string, days int) (*models.Loan, error) {
	var loan models.Loan
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &loan, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("lock loan: %w", err)
		}
		if loan.Returned {
			return ErrLoanAlreadyReturned
		}

		loan.DueDate = models.Date(loan.DueDate).AddDate(0, 0, days)
		loan.UpdatedAt = time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `UPDATE loans SET due_date = $2, updated_at = $3 WHERE id = $1`, id, sqlDate(loan.DueDate), loan.UpdatedAt); err != nil {
			return fmt.Errorf("extend loan: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &loan, nil
}
