package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/booknova-api/internal/models"
	appErrors "github.com/noah-isme/booknova-api/pkg/errors"
	"github.com/noah-isme/booknova-api/pkg/export"
	"github.com/noah-isme/booknova-api/pkg/storage"
)

func newExportServiceForTest(t *testing.T) (*ExportService, *fakeLibrary, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	books := newMockBookRepo(
		&models.Book{ID: "b1", ISBN: "0441013597", Title: "Dune", Author: "Frank Herbert", Stock: 2},
		&models.Book{ID: "b2", ISBN: "0553293354", Title: "Foundation", Author: "Isaac Asimov", Stock: 0},
	)
	lib := newFakeLibrary()
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(books, lib, store, signer, &auditRecorder{}, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC) }
	return svc, lib, dir
}

func TestExportServiceBooksCSV(t *testing.T) {
	svc, _, _ := newExportServiceForTest(t)

	result, err := svc.ExportBooks(context.Background(), export.FormatCSV, models.AuditMeta{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Rows)
	assert.True(t, strings.HasPrefix(result.URL, "/api/v1/exports/"))
	assert.True(t, strings.HasPrefix(result.Key, ExportKindBooks+"/"))
	assert.True(t, strings.HasSuffix(result.Key, ".csv"))

	download, err := svc.Open(context.Background(), result.Token)
	require.NoError(t, err)
	defer download.Body.Close()
	body, err := io.ReadAll(download.Body)
	require.NoError(t, err)

	assert.Equal(t, "text/csv", download.ContentType)
	assert.Contains(t, string(body), "ISBN,Title,Author,Stock,Available")
	assert.Contains(t, string(body), "Dune")
	assert.Contains(t, string(body), "Foundation")
}

func TestExportServiceOverdueLoansPDF(t *testing.T) {
	svc, lib, _ := newExportServiceForTest(t)
	memberID := lib.addMember(models.MemberRegular, true)
	bookID := lib.addBook(1)
	due := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	lib.loans["l1"] = &models.Loan{ID: "l1", MemberID: memberID, BookID: bookID, LoanDate: due.AddDate(0, 0, -14), DueDate: due}
	lib.loans["l2"] = &models.Loan{ID: "l2", MemberID: memberID, BookID: bookID, LoanDate: due, DueDate: due.AddDate(0, 0, 14)}

	dataset, err := svc.OverdueLoansDataset(context.Background())
	require.NoError(t, err)
	require.Len(t, dataset.Rows, 1)
	assert.Equal(t, "l1", dataset.Rows[0]["Loan ID"])
	assert.Equal(t, "5", dataset.Rows[0]["Days Overdue"])
	assert.Equal(t, "2.50", dataset.Rows[0]["Fine To Date"])

	result, err := svc.ExportOverdueLoans(context.Background(), export.FormatPDF, models.AuditMeta{})
	require.NoError(t, err)
	assert.Equal(t, export.FormatPDF, result.Format)

	download, err := svc.Open(context.Background(), result.Token)
	require.NoError(t, err)
	defer download.Body.Close()
	body, err := io.ReadAll(download.Body)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", download.ContentType)
	assert.True(t, strings.HasPrefix(string(body), "%PDF"))
}

func TestExportServiceOpenRejectsBadTokens(t *testing.T) {
	svc, _, dir := newExportServiceForTest(t)

	_, err := svc.Open(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	result, err := svc.ExportBooks(context.Background(), export.FormatCSV, models.AuditMeta{})
	require.NoError(t, err)
	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, filepath.FromSlash(result.Key)), stale, stale))
	removed, err := svc.Cleanup(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{result.Key}, removed)

	_, err = svc.Open(context.Background(), result.Token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
