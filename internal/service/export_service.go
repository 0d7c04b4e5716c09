package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/booknova-api/internal/models"
	appErrors "github.com/noah-isme/booknova-api/pkg/errors"
	"github.com/noah-isme/booknova-api/pkg/export"
	"github.com/noah-isme/booknova-api/pkg/storage"
)

type exportBookSource interface {
	List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error)
}

type exportLoanSource interface {
	List(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, int, error)
}

// Export kinds, also used as the storage key prefix.
const (
	ExportKindBooks        = "books"
	ExportKindOverdueLoans = "overdue-loans"
)

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix  string
	ResultTTL  time.Duration
	FinePerDay float64
}

// ExportResult describes a stored export and its download token.
type ExportResult struct {
	ID        string        `json:"id"`
	Kind      string        `json:"kind"`
	Key       string        `json:"-"`
	Token     string        `json:"token"`
	URL       string        `json:"url"`
	Format    export.Format `json:"format"`
	Rows      int           `json:"rows"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// ExportDownload is an opened export file.
type ExportDownload struct {
	Body        io.ReadCloser
	Filename    string
	ContentType string
}

// ExportService renders catalogue and loan reports, stores them and hands out
// signed download tokens.
type ExportService struct {
	books  exportBookSource
	loans  exportLoanSource
	store  storage.Store
	signer *storage.SignedURLSigner
	audit  auditWriter
	logger *zap.Logger
	cfg    ExportConfig
	now    func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(books exportBookSource, loans exportLoanSource, store storage.Store, signer *storage.SignedURLSigner, audit auditWriter, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.FinePerDay <= 0 {
		cfg.FinePerDay = DefaultLoanPolicy().FinePerDay
	}
	return &ExportService{
		books:  books,
		loans:  loans,
		store:  store,
		signer: signer,
		audit:  audit,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// ExportBooks renders the whole catalogue.
func (s *ExportService) ExportBooks(ctx context.Context, format export.Format, meta models.AuditMeta) (*ExportResult, error) {
	dataset, err := s.booksDataset(ctx)
	if err != nil {
		return nil, err
	}
	return s.publish(ctx, ExportKindBooks, format, dataset, meta)
}

// ExportOverdueLoans renders every unreturned loan past its due date together
// with the fine accrued so far.
func (s *ExportService) ExportOverdueLoans(ctx context.Context, format export.Format, meta models.AuditMeta) (*ExportResult, error) {
	dataset, err := s.OverdueLoansDataset(ctx)
	if err != nil {
		return nil, err
	}
	return s.publish(ctx, ExportKindOverdueLoans, format, dataset, meta)
}

func (s *ExportService) booksDataset(ctx context.Context) (export.Dataset, error) {
	dataset := export.Dataset{
		Title:   "Book Catalogue",
		Headers: []string{"ISBN", "Title", "Author", "Stock", "Available"},
	}
	for page := 1; ; page++ {
		books, total, err := s.books.List(ctx, models.BookFilter{Page: page, PageSize: models.MaxPageSize, SortBy: "title"})
		if err != nil {
			return export.Dataset{}, appErrors.Internal(err, "failed to load books for export")
		}
		for _, book := range books {
			dataset.Rows = append(dataset.Rows, map[string]string{
				"ISBN":      book.ISBN,
				"Title":     book.Title,
				"Author":    book.Author,
				"Stock":     strconv.Itoa(book.Stock),
				"Available": strconv.FormatBool(book.Available()),
			})
		}
		if len(books) == 0 || page*models.MaxPageSize >= total {
			break
		}
	}
	return dataset, nil
}

// OverdueLoansDataset builds the overdue report without storing it.
func (s *ExportService) OverdueLoansDataset(ctx context.Context) (export.Dataset, error) {
	today := models.Date(s.now())
	dataset := export.Dataset{
		Title:   "Overdue Loans " + today.Format(models.DateLayout),
		Headers: []string{"Loan ID", "Member", "Book", "ISBN", "Loan Date", "Due Date", "Days Overdue", "Fine To Date"},
	}
	for page := 1; ; page++ {
		loans, total, err := s.loans.List(ctx, models.LoanFilter{
			OverdueOnly: true,
			AsOf:        today,
			Page:        page,
			PageSize:    models.MaxPageSize,
			SortBy:      "due_date",
			SortOrder:   "asc",
		})
		if err != nil {
			return export.Dataset{}, appErrors.Internal(err, "failed to load overdue loans for export")
		}
		for _, loan := range loans {
			late := -loan.DaysUntilDue(today)
			dataset.Rows = append(dataset.Rows, map[string]string{
				"Loan ID":      loan.ID,
				"Member":       loan.MemberName,
				"Book":         loan.BookTitle,
				"ISBN":         loan.BookISBN,
				"Loan Date":    loan.LoanDate.Format(models.DateLayout),
				"Due Date":     loan.DueDate.Format(models.DateLayout),
				"Days Overdue": strconv.Itoa(late),
				"Fine To Date": fmt.Sprintf("%.2f", models.CalculateFine(loan.DueDate, &today, s.cfg.FinePerDay)),
			})
		}
		if len(loans) == 0 || page*models.MaxPageSize >= total {
			break
		}
	}
	return dataset, nil
}

func (s *ExportService) publish(ctx context.Context, kind string, format export.Format, dataset export.Dataset, meta models.AuditMeta) (*ExportResult, error) {
	payload, err := export.Render(format, dataset)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	id := uuid.NewString()
	key := path.Join(kind, fmt.Sprintf("%s_%s.%s", s.now().UTC().Format("20060102_150405"), id[:8], format.Extension()))
	if err := s.store.Put(ctx, key, bytes.NewReader(payload), format.ContentType()); err != nil {
		return nil, appErrors.Internal(err, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(id, key)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign export")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	result := &ExportResult{
		ID:        id,
		Kind:      kind,
		Key:       key,
		Token:     token,
		URL:       fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:    format,
		Rows:      len(dataset.Rows),
		ExpiresAt: expiresAt,
	}

	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     models.AuditActionExport,
		Resource:   "exports",
		ResourceID: id,
		New:        map[string]interface{}{"kind": kind, "format": format, "rows": result.Rows},
	})
	s.logger.Info("export generated", zap.String("kind", kind), zap.String("format", string(format)), zap.Int("rows", result.Rows))
	return result, nil
}

// Open validates a download token and opens the referenced file.
func (s *ExportService) Open(ctx context.Context, token string) (*ExportDownload, error) {
	signed, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}

	body, err := s.store.Get(ctx, signed.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, appErrors.Internal(err, "failed to open export")
	}

	format, err := export.ParseFormat(strings.TrimPrefix(path.Ext(signed.Key), "."))
	if err != nil {
		format = export.FormatCSV
	}
	return &ExportDownload{
		Body:        body,
		Filename:    path.Base(signed.Key),
		ContentType: format.ContentType(),
	}, nil
}

// Cleanup removes exports older than ttl, or the configured result TTL when ttl <= 0.
func (s *ExportService) Cleanup(ctx context.Context, ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.store.CleanupOlderThan(ctx, ttl)
}

// StartCleanup runs Cleanup every interval until ctx is cancelled.
func (s *ExportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.Cleanup(ctx, 0)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(removed) > 0 {
					s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
				}
			}
		}
	}()
}
