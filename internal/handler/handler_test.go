package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/booknova-api/internal/middleware"
	"github.com/noah-isme/booknova-api/internal/models"
	"github.com/noah-isme/booknova-api/internal/service"
	appErrors "github.com/noah-isme/booknova-api/pkg/errors"
	"github.com/noah-isme/booknova-api/pkg/export"
)

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope map[string]interface{}
	require.NoError(t, jsoniter.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	envelope := decodeEnvelope(t, w)
	errObj, ok := envelope["error"].(map[string]interface{})
	require.True(t, ok, "expected error envelope, got %s", w.Body.String())
	code, _ := errObj["code"].(string)
	return code
}

type fakeLoanService struct {
	lastCreate service.CreateLoanRequest
	lastMeta   models.AuditMeta
	lastOwner  string
	createErr  error
	returned   *models.Loan
	dueOnCalls int
	todayCalls int
}

func (f *fakeLoanService) CreateLoan(_ context.Context, req service.CreateLoanRequest, meta models.AuditMeta) (*models.Loan, error) {
	f.lastCreate, f.lastMeta = req, meta
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &models.Loan{ID: "loan-1", MemberID: req.MemberID, BookID: req.BookID}, nil
}

func (f *fakeLoanService) ReturnLoan(context.Context, string, models.AuditMeta) (*models.Loan, error) {
	return f.returned, nil
}

func (f *fakeLoanService) ReturnByMemberAndBook(context.Context, service.ReturnByMemberBookRequest, models.AuditMeta) (*models.Loan, error) {
	return f.returned, nil
}

func (f *fakeLoanService) ReturnForMember(_ context.Context, memberID, _ string, _ models.AuditMeta) (*models.Loan, error) {
	f.lastOwner = memberID
	return f.returned, nil
}

func (f *fakeLoanService) ExtendLoan(context.Context, string, service.ExtendLoanRequest, models.AuditMeta) (*models.Loan, error) {
	return &models.Loan{ID: "loan-1"}, nil
}

func (f *fakeLoanService) CalculateFine(_ context.Context, id string) (*models.LoanFine, error) {
	return &models.LoanFine{LoanID: id}, nil
}

func (f *fakeLoanService) FineFor(due time.Time, returned *time.Time) float64 {
	return models.CalculateFine(due, returned, 0.5)
}

func (f *fakeLoanService) Get(_ context.Context, id string) (*models.Loan, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "loan not found")
}

func (f *fakeLoanService) List(context.Context, models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	return []models.LoanDetail{}, models.NewPagination(1, 20, 0), nil
}

func (f *fakeLoanService) ListOverdue(context.Context, models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	return []models.LoanDetail{}, models.NewPagination(1, 20, 0), nil
}

func (f *fakeLoanService) ListDueOn(context.Context, time.Time, models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	f.dueOnCalls++
	return []models.LoanDetail{}, models.NewPagination(1, 20, 0), nil
}

func (f *fakeLoanService) ListDueToday(context.Context, models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	f.todayCalls++
	return []models.LoanDetail{}, models.NewPagination(1, 20, 0), nil
}

func (f *fakeLoanService) ListByMember(context.Context, string, models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	return []models.LoanDetail{}, models.NewPagination(1, 20, 0), nil
}

func (f *fakeLoanService) ListActiveByMember(context.Context, string, models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	return []models.LoanDetail{}, models.NewPagination(1, 20, 0), nil
}

func (f *fakeLoanService) Eligibility(_ context.Context, memberID string) (*models.Eligibility, error) {
	return &models.Eligibility{MemberID: memberID, Limit: 3, CanBorrow: true}, nil
}

func TestLoanHandlerCreate(t *testing.T) {
	svc := &fakeLoanService{}
	h := NewLoanHandler(svc)

	c, w := newGinContext(http.MethodPost, "/loans", []byte(`{"member_id":"m-1","book_id":"b-1","period_days":7}`))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 7, svc.lastCreate.PeriodDays)
	assert.Equal(t, "admin-1", svc.lastMeta.ActorID)
}

func TestLoanHandlerCreateMapsServiceErrors(t *testing.T) {
	svc := &fakeLoanService{createErr: appErrors.Clone(appErrors.ErrConflict, "book is not available for lending")}
	h := NewLoanHandler(svc)

	c, w := newGinContext(http.MethodPost, "/loans", []byte(`{"member_id":"m-1","book_id":"b-1"}`))
	h.Create(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", errorCode(t, w))
}

func TestLoanHandlerCreateRejectsMalformedBody(t *testing.T) {
	h := NewLoanHandler(&fakeLoanService{})
	c, w := newGinContext(http.MethodPost, "/loans", []byte(`{"member_id":`))
	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
}

func TestLoanHandlerReturnReportsFine(t *testing.T) {
	due := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	returned := due.AddDate(0, 0, 4)
	h := NewLoanHandler(&fakeLoanService{returned: &models.Loan{ID: "loan-1", DueDate: due, Returned: true, ReturnDate: &returned}})

	c, w := newGinContext(http.MethodPost, "/loans/loan-1/return", nil)
	c.Params = gin.Params{{Key: "id", Value: "loan-1"}}
	h.Return(c)

	require.Equal(t, http.StatusOK, w.Code)
	meta := decodeEnvelope(t, w)["meta"].(map[string]interface{})
	assert.InDelta(t, 2.0, meta["fine"], 0.0001)
}

func TestLoanHandlerCalculateFine(t *testing.T) {
	h := NewLoanHandler(&fakeLoanService{})

	tests := []struct {
		name   string
		query  string
		status int
		amount float64
	}{
		{name: "late", query: "due=2024-03-01&returned=2024-03-06", status: http.StatusOK, amount: 2.5},
		{name: "not returned", query: "due=2024-03-01", status: http.StatusOK, amount: 0},
		{name: "missing due", query: "returned=2024-03-06", status: http.StatusBadRequest},
		{name: "bad date", query: "due=03/01/2024", status: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, w := newGinContext(http.MethodGet, "/loans/fine?"+tc.query, nil)
			h.CalculateFine(c)
			require.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				data := decodeEnvelope(t, w)["data"].(map[string]interface{})
				assert.InDelta(t, tc.amount, data["amount"], 0.0001)
			}
		})
	}
}

func TestLoanHandlerDueDefaultsToToday(t *testing.T) {
	svc := &fakeLoanService{}
	h := NewLoanHandler(svc)

	c, _ := newGinContext(http.MethodGet, "/loans/due", nil)
	h.Due(c)
	c, _ = newGinContext(http.MethodGet, "/loans/due?date=2024-03-10", nil)
	h.Due(c)

	assert.Equal(t, 1, svc.todayCalls)
	assert.Equal(t, 1, svc.dueOnCalls)
}

type fakeMemberDirectory struct {
	members map[string]*models.Member
}

func (f fakeMemberDirectory) GetByUserID(_ context.Context, userID string) (*models.Member, error) {
	if member, ok := f.members[userID]; ok {
		return member, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "member not found")
}

func TestMeHandlerBorrowUsesOwnMember(t *testing.T) {
	loans := &fakeLoanService{}
	h := NewMeHandler(fakeMemberDirectory{members: map[string]*models.Member{
		"user-1": {ID: "member-1"},
	}}, loans)

	c, w := newGinContext(http.MethodPost, "/me/loans", []byte(`{"book_id":"b-9","member_id":"someone-else"}`))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleUser})
	h.Borrow(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "member-1", loans.lastCreate.MemberID)
	assert.Equal(t, "b-9", loans.lastCreate.BookID)
}

func TestMeHandlerBorrowIgnoresRequestedPeriod(t *testing.T) {
	loans := &fakeLoanService{}
	h := NewMeHandler(fakeMemberDirectory{members: map[string]*models.Member{
		"user-1": {ID: "member-1"},
	}}, loans)

	c, w := newGinContext(http.MethodPost, "/me/loans", []byte(`{"book_id":"b-9","period_days":36500}`))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleUser})
	h.Borrow(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Zero(t, loans.lastCreate.PeriodDays)
}

func TestMeHandlerWithoutMembership(t *testing.T) {
	h := NewMeHandler(fakeMemberDirectory{}, &fakeLoanService{})

	c, w := newGinContext(http.MethodGet, "/me/member", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-2"})
	h.Member(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	c, w = newGinContext(http.MethodGet, "/me/member", nil)
	h.Member(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMeHandlerReturnChecksOwner(t *testing.T) {
	loans := &fakeLoanService{returned: &models.Loan{ID: "loan-1"}}
	h := NewMeHandler(fakeMemberDirectory{members: map[string]*models.Member{"user-1": {ID: "member-1"}}}, loans)

	c, w := newGinContext(http.MethodPost, "/me/loans/loan-1/return", nil)
	c.Params = gin.Params{{Key: "id", Value: "loan-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})
	h.Return(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "member-1", loans.lastOwner)
}

type fakeBookService struct {
	bookService
	setTo   *int
	addedBy *int
}

func (f *fakeBookService) UpdateStock(_ context.Context, id string, stock int, _ models.AuditMeta) (*models.Book, error) {
	f.setTo = &stock
	return &models.Book{ID: id, Stock: stock}, nil
}

func (f *fakeBookService) AddStock(_ context.Context, id string, quantity int, _ models.AuditMeta) (*models.Book, error) {
	f.addedBy = &quantity
	return &models.Book{ID: id, Stock: 10 + quantity}, nil
}

func TestBookHandlerStock(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		set    bool
		added  bool
	}{
		{name: "absolute", body: `{"stock":4}`, status: http.StatusOK, set: true},
		{name: "increment", body: `{"quantity":2}`, status: http.StatusOK, added: true},
		{name: "both", body: `{"stock":4,"quantity":2}`, status: http.StatusBadRequest},
		{name: "neither", body: `{}`, status: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeBookService{}
			h := NewBookHandler(svc)
			c, w := newGinContext(http.MethodPatch, "/books/b-1/stock", []byte(tc.body))
			c.Params = gin.Params{{Key: "id", Value: "b-1"}}
			h.Stock(c)

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.set, svc.setTo != nil)
			assert.Equal(t, tc.added, svc.addedBy != nil)
		})
	}
}

type fakeExportService struct {
	lastFormat export.Format
	download   *service.ExportDownload
	openErr    error
}

func (f *fakeExportService) ExportBooks(_ context.Context, format export.Format, _ models.AuditMeta) (*service.ExportResult, error) {
	f.lastFormat = format
	return &service.ExportResult{ID: "exp-1", Kind: service.ExportKindBooks, Format: format, URL: "/api/v1/exports/tok"}, nil
}

func (f *fakeExportService) ExportOverdueLoans(_ context.Context, format export.Format, _ models.AuditMeta) (*service.ExportResult, error) {
	f.lastFormat = format
	return &service.ExportResult{ID: "exp-2", Kind: service.ExportKindOverdueLoans, Format: format}, nil
}

func (f *fakeExportService) Open(context.Context, string) (*service.ExportDownload, error) {
	return f.download, f.openErr
}

func TestExportHandlerFormats(t *testing.T) {
	svc := &fakeExportService{}
	h := NewExportHandler(svc)

	c, w := newGinContext(http.MethodPost, "/exports/books?format=pdf", nil)
	h.Books(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, export.FormatPDF, svc.lastFormat)

	c, w = newGinContext(http.MethodPost, "/exports/overdue-loans", nil)
	h.OverdueLoans(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, export.FormatCSV, svc.lastFormat)

	c, w = newGinContext(http.MethodPost, "/exports/books?format=xlsx", nil)
	h.Books(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportHandlerDownload(t *testing.T) {
	svc := &fakeExportService{download: &service.ExportDownload{
		Body:        io.NopCloser(strings.NewReader("# Book Catalogue\nISBN\n")),
		Filename:    "books.csv",
		ContentType: "text/csv",
	}}
	h := NewExportHandler(svc)

	c, w := newGinContext(http.MethodGet, "/exports/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}
	h.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "books.csv")
	assert.Contains(t, w.Body.String(), "# Book Catalogue")

	svc.openErr = appErrors.Clone(appErrors.ErrForbidden, "download link expired")
	c, w = newGinContext(http.MethodGet, "/exports/tok", nil)
	h.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

type stubTokens map[string]*models.JWTClaims

func (s stubTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.ErrUnauthorized
}

type okPinger struct{ err error }

func (p okPinger) PingContext(context.Context) error { return p.err }

func newTestAPI(loans *fakeLoanService, members fakeMemberDirectory) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	Router{
		Prefix: "/api/v1",
		Tokens: stubTokens{
			"admin":  {UserID: "admin-1", Role: models.RoleAdmin, AccessLevel: models.AccessManage},
			"reader": {UserID: "user-1", Role: models.RoleUser, AccessLevel: models.AccessReadOnly},
			"member": {UserID: "user-2", Role: models.RoleUser, AccessLevel: models.AccessReadWrite},
		},
		Auth:               NewAuthHandler(nil, nil),
		Users:              NewUserHandler(nil),
		Members:            NewMemberHandler(nil, loans),
		Books:              NewBookHandler(nil),
		Loans:              NewLoanHandler(loans),
		MembershipRequests: NewMembershipRequestHandler(nil),
		Me:                 NewMeHandler(members, loans),
		Exports:            NewExportHandler(&fakeExportService{}),
		Metrics:            NewMetricsHandler(service.NewMetricsService(), okPinger{}),
	}.Register(r)
	return r
}

func TestRouterAccessControl(t *testing.T) {
	loans := &fakeLoanService{}
	r := newTestAPI(loans, fakeMemberDirectory{members: map[string]*models.Member{
		"user-1": {ID: "member-1"},
		"user-2": {ID: "member-2"},
	}})

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		want   int
	}{
		{name: "health is public", method: http.MethodGet, path: "/health", want: http.StatusOK},
		{name: "ready pings db", method: http.MethodGet, path: "/ready", want: http.StatusOK},
		{name: "loans need a token", method: http.MethodGet, path: "/api/v1/loans", want: http.StatusUnauthorized},
		{name: "loans are admin only", method: http.MethodGet, path: "/api/v1/loans", token: "member", want: http.StatusForbidden},
		{name: "admin lists loans", method: http.MethodGet, path: "/api/v1/loans", token: "admin", want: http.StatusOK},
		{name: "read only cannot borrow", method: http.MethodPost, path: "/api/v1/me/loans", token: "reader", body: `{"book_id":"b-1"}`, want: http.StatusForbidden},
		{name: "read write can borrow", method: http.MethodPost, path: "/api/v1/me/loans", token: "member", body: `{"book_id":"b-1"}`, want: http.StatusCreated},
		{name: "read only sees own loans", method: http.MethodGet, path: "/api/v1/me/loans", token: "reader", want: http.StatusOK},
		{name: "summary is admin only", method: http.MethodGet, path: "/api/v1/metrics/summary", token: "member", want: http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, "member-2", loans.lastCreate.MemberID)
}

func TestReadyReportsDatabaseFailure(t *testing.T) {
	h := NewMetricsHandler(nil, okPinger{err: assert.AnError})
	c, w := newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
