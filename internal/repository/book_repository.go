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

const bookColumns = `id, isbn, title, author, stock, created_at, updated_at`

// BookRepository provides database access for the catalogue.
type BookRepository struct {
	db *sqlx.DB
}

// NewBookRepository constructs the repository.
func NewBookRepository(db *sqlx.DB) *BookRepository {
	return &BookRepository{db: db}
}

// FindByID returns a book by identifier.
func (r *BookRepository) FindByID(ctx context.Context, id string) (*models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1 AND deleted = FALSE`
	var book models.Book
	if err := r.db.GetContext(ctx, &book, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find book: %w", err)
	}
	return &book, nil
}

// FindByISBN returns a book by its normalised ISBN.
func (r *BookRepository) FindByISBN(ctx context.Context, isbn string) (*models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE isbn = $1 AND deleted = FALSE`
	var book models.Book
	if err := r.db.GetContext(ctx, &book, query, isbn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find book by isbn: %w", err)
	}
	return &book, nil
}

// List returns books matching filter with the total count. Title and author
// filters are case-insensitive substring matches.
func (r *BookRepository) List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		args = append(args, likePattern(filter.Search))
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(author) LIKE $%d OR isbn LIKE $%d)", len(args), len(args), len(args)))
	}
	if filter.Title != "" {
		args = append(args, likePattern(filter.Title))
		conditions = append(conditions, fmt.Sprintf("LOWER(title) LIKE $%d", len(args)))
	}
	if filter.Author != "" {
		args = append(args, likePattern(filter.Author))
		conditions = append(conditions, fmt.Sprintf("LOWER(author) LIKE $%d", len(args)))
	}
	if filter.AvailableOnly {
		conditions = append(conditions, "stock > 0")
	}

	baseQuery := `FROM books WHERE deleted = FALSE`
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy, order, limit, offset := listWindow(filter.SortBy, filter.SortOrder, "title", map[string]bool{
		"title":      true,
		"author":     true,
		"isbn":       true,
		"stock":      true,
		"created_at": true,
	}, filter.Page, filter.PageSize)
	if filter.SortOrder == "" && sortBy == "title" {
		order = "ASC"
	}

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", bookColumns, baseQuery, sortBy, order, limit, offset)
	var books []models.Book
	if err := r.db.SelectContext(ctx, &books, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}
	return books, total, nil
}

// Create inserts a book. A taken ISBN yields ErrDuplicate.
func (r *BookRepository) Create(ctx context.Context, book *models.Book) error {
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = now

	const query = `INSERT INTO books (id, isbn, title, author, stock, created_at, updated_at) VALUES (:id, :isbn, :title, :author, :stock, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, book); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

// Update writes the descriptive fields of a book. Stock is changed through
// SetStock and AddStock only.
func (r *BookRepository) Update(ctx context.Context, book *models.Book) error {
	book.UpdatedAt = time.Now().UTC()
	const query = `UPDATE books SET isbn = :isbn, title = :title, author = :author, updated_at = :updated_at WHERE id = :id AND deleted = FALSE`
	if _, err := r.db.NamedExecContext(ctx, query, book); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

// SetStock overwrites the stock count and returns sql.ErrNoRows for unknown books.
func (r *BookRepository) SetStock(ctx context.Context, id string, stock int) error {
	const query = `UPDATE books SET stock = $2, updated_at = $3 WHERE id = $1 AND deleted = FALSE RETURNING stock`
	var updated int
	if err := r.db.GetContext(ctx, &updated, query, id, stock, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("set book stock: %w", err)
	}
	return nil
}

// AddStock increments stock atomically and returns the new count.
func (r *BookRepository) AddStock(ctx context.Context, id string, quantity int) (int, error) {
	const query = `UPDATE books SET stock = stock + $2, updated_at = $3 WHERE id = $1 AND deleted = FALSE RETURNING stock`
	var stock int
	if err := r.db.GetContext(ctx, &stock, query, id, quantity, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		return 0, fmt.Errorf("add book stock: %w", err)
	}
	return stock, nil
}

// Delete takes a book with no unreturned loans out of the catalogue. The row
// is kept, flagged deleted, so closed loans and their fines still resolve.
// The book row is locked first so no loan can be opened between the check
// and the update.
func (r *BookRepository) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var locked string
		if err := tx.GetContext(ctx, &locked, `SELECT id FROM books WHERE id = $1 AND deleted = FALSE FOR UPDATE`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("lock book: %w", err)
		}

		var active bool
		if err := tx.GetContext(ctx, &active, `SELECT EXISTS(SELECT 1 FROM loans WHERE book_id = $1 AND returned = FALSE)`, id); err != nil {
			return fmt.Errorf("check active loans: %w", err)
		}
		if active {
			return ErrBookOnLoan
		}

		if _, err := tx.ExecContext(ctx, `UPDATE books SET deleted = TRUE, stock = 0, updated_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
			return fmt.Errorf("delete book: %w", err)
		}
		return nil
	})
}
