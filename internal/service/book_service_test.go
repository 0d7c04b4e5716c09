package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/booknova-api/internal/models"
	"github.com/noah-isme/booknova-api/internal/repository"
	appErrors "github.com/noah-isme/booknova-api/pkg/errors"
)

type mockBookRepo struct {
	books     map[string]*models.Book
	listCalls int
	lastList  models.BookFilter
	deleteErr error
}

func newMockBookRepo(books ...*models.Book) *mockBookRepo {
	repo := &mockBookRepo{books: map[string]*models.Book{}}
	for _, b := range books {
		repo.books[b.ID] = b
	}
	return repo
}

func (m *mockBookRepo) FindByID(ctx context.Context, id string) (*models.Book, error) {
	book, ok := m.books[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *book
	return &copied, nil
}

func (m *mockBookRepo) FindByISBN(ctx context.Context, isbn string) (*models.Book, error) {
	for _, book := range m.books {
		if book.ISBN == isbn {
			copied := *book
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockBookRepo) List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error) {
	m.listCalls++
	m.lastList = filter
	var out []models.Book
	for _, book := range m.books {
		if filter.AvailableOnly && !book.Available() {
			continue
		}
		if filter.Title != "" && !strings.Contains(strings.ToLower(book.Title), strings.ToLower(filter.Title)) {
			continue
		}
		out = append(out, *book)
	}
	return out, len(out), nil
}

func (m *mockBookRepo) Create(ctx context.Context, book *models.Book) error {
	if _, err := m.FindByISBN(ctx, book.ISBN); err == nil {
		return repository.ErrDuplicate
	}
	book.ID = uuid.NewString()
	copied := *book
	m.books[book.ID] = &copied
	return nil
}

func (m *mockBookRepo) Update(ctx context.Context, book *models.Book) error {
	copied := *book
	m.books[book.ID] = &copied
	return nil
}

func (m *mockBookRepo) SetStock(ctx context.Context, id string, stock int) error {
	book, ok := m.books[id]
	if !ok {
		return sql.ErrNoRows
	}
	book.Stock = stock
	return nil
}

func (m *mockBookRepo) AddStock(ctx context.Context, id string, quantity int) (int, error) {
	book, ok := m.books[id]
	if !ok {
		return 0, sql.ErrNoRows
	}
	book.Stock += quantity
	return book.Stock, nil
}

func (m *mockBookRepo) Delete(ctx context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.books, id)
	return nil
}

// memoryCache is a CacheRepository over a map, encoding values like the
// Redis repository does.
type memoryCache struct {
	entries     map[string][]byte
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return jsoniter.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := jsoniter.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.invalidated = append(c.invalidated, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func TestBookServiceAddBook(t *testing.T) {
	repo := newMockBookRepo()
	audit := &auditRecorder{}
	svc := NewBookService(repo, nil, audit, nil, zap.NewNop())

	book, err := svc.AddBook(context.Background(), CreateBookRequest{ISBN: "978-0-13-468599-1", Title: " Dune ", Author: "Frank Herbert", Stock: 3}, models.AuditMeta{})
	require.NoError(t, err)
	assert.Equal(t, "9780134685991", book.ISBN)
	assert.Equal(t, "Dune", book.Title)
	assert.Equal(t, 3, book.Stock)
	assert.Equal(t, []string{models.AuditActionBookCreate}, audit.actions())

	_, err = svc.AddBook(context.Background(), CreateBookRequest{ISBN: "9780134685991", Title: "Dune", Author: "Frank Herbert"}, models.AuditMeta{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "book already exists with ISBN 9780134685991", appErr.Message)
}

func TestBookServiceAddBookValidation(t *testing.T) {
	svc := NewBookService(newMockBookRepo(), nil, nil, nil, zap.NewNop())

	tests := []struct {
		name string
		req  CreateBookRequest
	}{
		{name: "short isbn", req: CreateBookRequest{ISBN: "12345", Title: "Dune", Author: "Herbert"}},
		{name: "missing title", req: CreateBookRequest{ISBN: "0441013597", Author: "Herbert"}},
		{name: "negative stock", req: CreateBookRequest{ISBN: "0441013597", Title: "Dune", Author: "Herbert", Stock: -1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AddBook(context.Background(), tc.req, models.AuditMeta{})
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestBookServiceStock(t *testing.T) {
	repo := newMockBookRepo(&models.Book{ID: "b1", ISBN: "0441013597", Title: "Dune", Author: "Herbert", Stock: 1})
	svc := NewBookService(repo, nil, nil, nil, zap.NewNop())
	ctx := context.Background()

	book, err := svc.AddStock(ctx, "b1", 4, models.AuditMeta{})
	require.NoError(t, err)
	assert.Equal(t, 5, book.Stock)

	_, err = svc.AddStock(ctx, "b1", 0, models.AuditMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	book, err = svc.UpdateStock(ctx, "b1", 0, models.AuditMeta{})
	require.NoError(t, err)
	assert.Equal(t, 0, book.Stock)

	_, err = svc.UpdateStock(ctx, "b1", -2, models.AuditMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	available, err := svc.IsAvailable(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, available)

	available, err = svc.IsAvailable(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, available)

	_, err = svc.GetStock(ctx, "unknown")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestBookServiceRemoveBookWithActiveLoans(t *testing.T) {
	repo := newMockBookRepo(&models.Book{ID: "b1", ISBN: "0441013597", Title: "Dune", Author: "Herbert", Stock: 1})
	repo.deleteErr = repository.ErrBookOnLoan
	svc := NewBookService(repo, nil, nil, nil, zap.NewNop())

	err := svc.RemoveBook(context.Background(), "b1", models.AuditMeta{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "book has active loans and cannot be removed", appErr.Message)

	repo.deleteErr = nil
	require.NoError(t, svc.RemoveBook(context.Background(), "b1", models.AuditMeta{}))
	assert.Empty(t, repo.books)
}

func TestBookServiceListUsesCache(t *testing.T) {
	repo := newMockBookRepo(
		&models.Book{ID: "b1", ISBN: "0441013597", Title: "Dune", Author: "Herbert", Stock: 1},
		&models.Book{ID: "b2", ISBN: "0441172717", Title: "Dune Messiah", Author: "Herbert", Stock: 0},
	)
	backend := newMemoryCache()
	metrics := NewMetricsService()
	cacheSvc := NewCacheService(backend, metrics, time.Minute, zap.NewNop(), true)
	svc := NewBookService(repo, cacheSvc, nil, nil, zap.NewNop())
	ctx := context.Background()

	books, page, err := svc.ListAvailable(ctx, models.BookFilter{})
	require.NoError(t, err)
	assert.Len(t, books, 1)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 1, repo.listCalls)

	books, _, err = svc.ListAvailable(ctx, models.BookFilter{})
	require.NoError(t, err)
	assert.Len(t, books, 1)
	assert.Equal(t, 1, repo.listCalls)
	assert.InDelta(t, 0.5, metrics.Snapshot().CacheHitRatio, 0.0001)

	_, err = svc.AddStock(ctx, "b2", 1, models.AuditMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, backend.invalidated)

	books, _, err = svc.ListAvailable(ctx, models.BookFilter{})
	require.NoError(t, err)
	assert.Len(t, books, 2)
	assert.Equal(t, 2, repo.listCalls)
}

func TestBookServiceSearch(t *testing.T) {
	repo := newMockBookRepo(&models.Book{ID: "b1", ISBN: "0441013597", Title: "Dune", Author: "Herbert", Stock: 1})
	svc := NewBookService(repo, nil, nil, nil, zap.NewNop())

	books, _, err := svc.SearchByTitle(context.Background(), "", models.BookFilter{})
	require.NoError(t, err)
	assert.Empty(t, books)
	assert.Zero(t, repo.listCalls)

	books, _, err = svc.SearchByTitle(context.Background(), "dUnE", models.BookFilter{})
	require.NoError(t, err)
	assert.Len(t, books, 1)

	_, _, err = svc.SearchByAuthor(context.Background(), "herb", models.BookFilter{})
	require.NoError(t, err)
	assert.Equal(t, "herb", repo.lastList.Author)
}
