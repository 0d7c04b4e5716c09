package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/booknova-api/internal/models"
	"github.com/noah-isme/booknova-api/internal/repository"
	"github.com/noah-isme/booknova-api/pkg/cache"
	appErrors "github.com/noah-isme/booknova-api/pkg/errors"
	"github.com/noah-isme/booknova-api/pkg/validation"
)

type bookRepository interface {
	FindByID(ctx context.Context, id string) (*models.Book, error)
	FindByISBN(ctx context.Context, isbn string) (*models.Book, error)
	List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error)
	Create(ctx context.Context, book *models.Book) error
	Update(ctx context.Context, book *models.Book) error
	SetStock(ctx context.Context, id string, stock int) error
	AddStock(ctx context.Context, id string, quantity int) (int, error)
	Delete(ctx context.Context, id string) error
}

// CreateBookRequest adds a title to the catalogue.
type CreateBookRequest struct {
	ISBN   string `json:"isbn" validate:"required,max=20,bookisbn"`
	Title  string `json:"title" validate:"required,max=100"`
	Author string `json:"author" validate:"required,max=100"`
	Stock  int    `json:"stock" validate:"gte=0"`
}

// UpdateBookRequest edits the descriptive fields of a book.
type UpdateBookRequest struct {
	ISBN   string `json:"isbn" validate:"required,max=20,bookisbn"`
	Title  string `json:"title" validate:"required,max=100"`
	Author string `json:"author" validate:"required,max=100"`
}

// StockRequest carries an absolute stock value or a quantity to add.
type StockRequest struct {
	Stock    *int `json:"stock" validate:"omitempty,gte=0"`
	Quantity *int `json:"quantity" validate:"omitempty,gt=0"`
}

type bookPage struct {
	Books []models.Book `json:"books"`
	Total int           `json:"total"`
}

// BookService manages the catalogue and its stock counts. Listings are
// cached and every write invalidates the cached pages.
type BookService struct {
	repo      bookRepository
	cache     *CacheService
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBookService constructs a BookService. cache may be nil.
func NewBookService(repo bookRepository, cacheSvc *CacheService, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *BookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	return &BookService{repo: repo, cache: cacheSvc, audit: audit, validator: validate, logger: logger}
}

// AddBook creates a catalogue entry. ISBNs are stored without spaces or dashes.
func (s *BookService) AddBook(ctx context.Context, req CreateBookRequest, meta models.AuditMeta) (*models.Book, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid book payload")
	}

	book := &models.Book{
		ISBN:   validation.NormalizeISBN(req.ISBN),
		Title:  strings.TrimSpace(req.Title),
		Author: strings.TrimSpace(req.Author),
		Stock:  req.Stock,
	}

	exists, err := s.Exists(ctx, book.ISBN)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("book already exists with ISBN %s", book.ISBN))
	}

	if err := s.repo.Create(ctx, book); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("book already exists with ISBN %s", book.ISBN))
		}
		return nil, appErrors.Internal(err, "failed to create book")
	}
	s.InvalidateCatalogue(ctx)

	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionBookCreate,
		Resource:   "books",
		ResourceID: book.ID,
		New:        book,
	})
	return book, nil
}

// UpdateBook edits ISBN, title and author.
func (s *BookService) UpdateBook(ctx context.Context, id string, req UpdateBookRequest, meta models.AuditMeta) (*models.Book, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid book payload")
	}

	book, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *book

	book.ISBN = validation.NormalizeISBN(req.ISBN)
	book.Title = strings.TrimSpace(req.Title)
	book.Author = strings.TrimSpace(req.Author)

	if err := s.repo.Update(ctx, book); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("book already exists with ISBN %s", book.ISBN))
		}
		return nil, appErrors.Internal(err, "failed to update book")
	}
	s.InvalidateCatalogue(ctx)

	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionBookUpdate,
		Resource:   "books",
		ResourceID: book.ID,
		Old:        before,
		New:        book,
	})
	return book, nil
}

// Get returns a book by ID.
func (s *BookService) Get(ctx context.Context, id string) (*models.Book, error) {
	book, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "book not found", "failed to load book")
	}
	return book, nil
}

// GetByISBN returns a book by ISBN, ignoring spaces and dashes.
func (s *BookService) GetByISBN(ctx context.Context, isbn string) (*models.Book, error) {
	book, err := s.repo.FindByISBN(ctx, validation.NormalizeISBN(isbn))
	if err != nil {
		return nil, notFoundOr(err, "book not found", "failed to load book")
	}
	return book, nil
}

// Exists reports whether a book with isbn is catalogued.
func (s *BookService) Exists(ctx context.Context, isbn string) (bool, error) {
	isbn = validation.NormalizeISBN(isbn)
	if isbn == "" {
		return false, nil
	}
	if _, err := s.GetByISBN(ctx, isbn); err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns a page of the catalogue, served from cache when possible.
func (s *BookService) List(ctx context.Context, filter models.BookFilter) ([]models.Book, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	key := bookListKey(filter)

	var page bookPage
	if s.cache.Get(ctx, key, &page) {
		return page.Books, models.NewPagination(filter.Page, filter.PageSize, page.Total), nil
	}

	books, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list books")
	}
	if books == nil {
		books = []models.Book{}
	}
	s.cache.Set(ctx, key, bookPage{Books: books, Total: total}, 0)
	return books, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// ListAvailable returns books with at least one copy on the shelf.
func (s *BookService) ListAvailable(ctx context.Context, filter models.BookFilter) ([]models.Book, *models.Pagination, error) {
	filter.AvailableOnly = true
	return s.List(ctx, filter)
}

// SearchByTitle matches title case-insensitively. An empty query matches nothing.
func (s *BookService) SearchByTitle(ctx context.Context, title string, filter models.BookFilter) ([]models.Book, *models.Pagination, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return []models.Book{}, models.NewPagination(filter.Page, filter.PageSize, 0), nil
	}
	filter.Title = title
	return s.List(ctx, filter)
}

// SearchByAuthor matches author case-insensitively. An empty query matches nothing.
func (s *BookService) SearchByAuthor(ctx context.Context, author string, filter models.BookFilter) ([]models.Book, *models.Pagination, error) {
	author = strings.TrimSpace(author)
	if author == "" {
		return []models.Book{}, models.NewPagination(filter.Page, filter.PageSize, 0), nil
	}
	filter.Author = author
	return s.List(ctx, filter)
}

// IsAvailable reports whether the book has stock. Unknown books are unavailable.
func (s *BookService) IsAvailable(ctx context.Context, id string) (bool, error) {
	book, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return book.Available(), nil
}

// Availability reports the stock of one book.
func (s *BookService) Availability(ctx context.Context, id string) (*models.BookAvailability, error) {
	book, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.BookAvailability{BookID: book.ID, Stock: book.Stock, Available: book.Available()}, nil
}

// GetStock returns the number of copies on the shelf.
func (s *BookService) GetStock(ctx context.Context, id string) (int, error) {
	book, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return book.Stock, nil
}

// UpdateStock overwrites the stock count.
func (s *BookService) UpdateStock(ctx context.Context, id string, stock int, meta models.AuditMeta) (*models.Book, error) {
	if stock < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "stock must be zero or greater")
	}
	book, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := book.Stock

	if err := s.repo.SetStock(ctx, id, stock); err != nil {
		return nil, notFoundOr(err, "book not found", "failed to update stock")
	}
	book.Stock = stock
	s.InvalidateCatalogue(ctx)

	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionBookStock,
		Resource:   "books",
		ResourceID: id,
		Old:        map[string]int{"stock": previous},
		New:        map[string]int{"stock": stock},
	})
	return book, nil
}

// AddStock adds quantity copies to the shelf.
func (s *BookService) AddStock(ctx context.Context, id string, quantity int, meta models.AuditMeta) (*models.Book, error) {
	if quantity <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "quantity must be positive")
	}
	book, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	stock, err := s.repo.AddStock(ctx, id, quantity)
	if err != nil {
		return nil, notFoundOr(err, "book not found", "failed to add stock")
	}
	s.InvalidateCatalogue(ctx)

	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionBookStock,
		Resource:   "books",
		ResourceID: id,
		Old:        map[string]int{"stock": stock - quantity},
		New:        map[string]int{"stock": stock, "added": quantity},
	})
	book.Stock = stock
	return book, nil
}

// RemoveBook deletes a book that has no unreturned loans.
func (s *BookService) RemoveBook(ctx context.Context, id string, meta models.AuditMeta) error {
	book, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrBookOnLoan) {
			return appErrors.Clone(appErrors.ErrConflict, "book has active loans and cannot be removed")
		}
		return notFoundOr(err, "book not found", "failed to remove book")
	}
	s.InvalidateCatalogue(ctx)

	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionBookDelete,
		Resource:   "books",
		ResourceID: id,
		Old:        book,
	})
	return nil
}

// InvalidateCatalogue drops every cached catalogue page.
func (s *BookService) InvalidateCatalogue(ctx context.Context) {
	s.cache.Invalidate(ctx, cache.Key("books")+"*")
}

func bookListKey(filter models.BookFilter) string {
	return cache.Key("books", "list", fmt.Sprintf("q=%s|t=%s|a=%s|avail=%t|p=%d|s=%d|sort=%s:%s",
		strings.ToLower(strings.TrimSpace(filter.Search)),
		strings.ToLower(strings.TrimSpace(filter.Title)),
		strings.ToLower(strings.TrimSpace(filter.Author)),
		filter.AvailableOnly,
		filter.Page,
		filter.PageSize,
		filter.SortBy,
		filter.SortOrder,
	))
}
