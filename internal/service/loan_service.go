package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/booknova-api/internal/models"
	"github.com/noah-isme/booknova-api/internal/repository"
	appErrors "github.com/noah-isme/booknova-api/pkg/errors"
	"github.com/noah-isme/booknova-api/pkg/events"
	"github.com/noah-isme/booknova-api/pkg/validation"
)

type loanRepository interface {
	FindByID(ctx context.Context, id string) (*models.Loan, error)
	FindActiveByMemberAndBook(ctx context.Context, memberID, bookID string) (*models.Loan, error)
	CountActiveByMember(ctx context.Context, memberID string) (int, error)
	List(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, int, error)
	Checkout(ctx context.Context, loan *models.Loan, limitFor repository.LimitFunc) error
	Return(ctx context.Context, id string, returnDate time.Time) (*models.Loan, error)
	Extend(ctx context.Context, id string, days int) (*models.Loan, error)
}

type loanMemberLookup interface {
	FindByID(ctx context.Context, id string) (*models.Member, error)
}

type catalogueInvalidator interface {
	InvalidateCatalogue(ctx context.Context)
}

type eventDispatcher interface {
	Dispatch(eventType string, payload interface{}) error
}

// LoanPolicy holds the borrowing rules.
type LoanPolicy struct {
	RegularLimit      int
	PremiumLimit      int
	DefaultPeriodDays int
	FinePerDay        float64
}

// DefaultLoanPolicy is three loans for REGULAR members, five for PREMIUM,
// a fourteen day period and a fine of 0.50 per late day.
func DefaultLoanPolicy() LoanPolicy {
	return LoanPolicy{RegularLimit: 3, PremiumLimit: 5, DefaultPeriodDays: 14, FinePerDay: 0.5}
}

// LimitFor returns the concurrent loan limit of a tier.
func (p LoanPolicy) LimitFor(role models.MemberRole) int {
	if role == models.MemberPremium {
		return p.PremiumLimit
	}
	return p.RegularLimit
}

// LoanServiceDeps are the optional collaborators of LoanService.
type LoanServiceDeps struct {
	Members   loanMemberLookup
	Catalogue catalogueInvalidator
	Events    eventDispatcher
	Metrics   *MetricsService
	Audit     auditWriter
	Validator *validator.Validate
	Logger    *zap.Logger
}

// CreateLoanRequest opens a loan. PeriodDays 0 selects the default period;
// neither a period nor an extension may exceed 90 days.
type CreateLoanRequest struct {
	MemberID   string `json:"member_id" validate:"required,uuid"`
	BookID     string `json:"book_id" validate:"required,uuid"`
	PeriodDays int    `json:"period_days" validate:"gte=0,lte=90"`
}

// ReturnByMemberBookRequest identifies an open loan by member and book.
type ReturnByMemberBookRequest struct {
	MemberID string `json:"member_id" validate:"required,uuid"`
	BookID   string `json:"book_id" validate:"required,uuid"`
}

// ExtendLoanRequest moves a due date forward.
type ExtendLoanRequest struct {
	AdditionalDays int `json:"additional_days" validate:"required,gt=0,lte=90"`
}

// LoanEvent is the payload published for loan lifecycle events.
type LoanEvent struct {
	LoanID     string  `json:"loan_id"`
	MemberID   string  `json:"member_id"`
	BookID     string  `json:"book_id"`
	LoanDate   string  `json:"loan_date"`
	DueDate    string  `json:"due_date"`
	ReturnDate string  `json:"return_date,omitempty"`
	Fine       float64 `json:"fine,omitempty"`
}

// LoanService runs the loan lifecycle: checkout, return, extension and
// fines, plus the eligibility queries built on them.
type LoanService struct {
	repo      loanRepository
	members   loanMemberLookup
	catalogue catalogueInvalidator
	events    eventDispatcher
	metrics   *MetricsService
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
	policy    LoanPolicy
	now       func() time.Time
}

// NewLoanService constructs a LoanService. Zero policy values fall back to
// DefaultLoanPolicy.
func NewLoanService(repo loanRepository, policy LoanPolicy, deps LoanServiceDeps) *LoanService {
	defaults := DefaultLoanPolicy()
	if policy.RegularLimit <= 0 {
		policy.RegularLimit = defaults.RegularLimit
	}
	if policy.PremiumLimit <= 0 {
		policy.PremiumLimit = defaults.PremiumLimit
	}
	if policy.DefaultPeriodDays <= 0 {
		policy.DefaultPeriodDays = defaults.DefaultPeriodDays
	}
	if policy.FinePerDay <= 0 {
		policy.FinePerDay = defaults.FinePerDay
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validation.New()
	}
	return &LoanService{
		repo:      repo,
		members:   deps.Members,
		catalogue: deps.Catalogue,
		events:    deps.Events,
		metrics:   deps.Metrics,
		audit:     deps.Audit,
		validator: deps.Validator,
		logger:    deps.Logger,
		policy:    policy,
		now:       time.Now,
	}
}

// Policy returns the rules in force.
func (s *LoanService) Policy() LoanPolicy {
	return s.policy
}

func (s *LoanService) today() time.Time {
	return models.Date(s.now())
}

// CreateLoan lends one copy of a book to a member for PeriodDays days.
// The member must be active and below the tier limit and the book must be
// in stock. On success stock drops by exactly one.
func (s *LoanService) CreateLoan(ctx context.Context, req CreateLoanRequest, meta models.AuditMeta) (*models.Loan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid loan payload")
	}
	period := req.PeriodDays
	if period == 0 {
		period = s.policy.DefaultPeriodDays
	}

	if s.members != nil {
		if _, err := s.members.FindByID(ctx, req.MemberID); err != nil {
			s.metrics.RecordLoanOperation(LoanOpCreate, false)
			return nil, notFoundOr(err, "member not found or inactive", "failed to load member")
		}
	}

	today := s.today()
	loan := &models.Loan{
		MemberID: req.MemberID,
		BookID:   req.BookID,
		LoanDate: today,
		DueDate:  today.AddDate(0, 0, period),
	}

	if err := s.repo.Checkout(ctx, loan, s.policy.LimitFor); err != nil {
		s.metrics.RecordLoanOperation(LoanOpCreate, false)
		switch {
		case errors.Is(err, repository.ErrMemberInactive):
			return nil, appErrors.Clone(appErrors.ErrConflict, "member not found or inactive")
		case errors.Is(err, repository.ErrLoanLimitReached):
			return nil, appErrors.Clone(appErrors.ErrConflict, "member has reached borrowing limit")
		case errors.Is(err, repository.ErrBookUnavailable):
			return nil, appErrors.Clone(appErrors.ErrConflict, "book is not available for lending")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		default:
			return nil, appErrors.Internal(err, "failed to create loan")
		}
	}

	s.metrics.RecordLoanOperation(LoanOpCreate, true)
	s.afterChange(ctx, loan, events.LoanCreated, models.AuditActionLoanCreate, meta, nil)
	return loan, nil
}

// ReturnLoan closes a loan today and puts the copy back on the shelf.
func (s *LoanService) ReturnLoan(ctx context.Context, id string, meta models.AuditMeta) (*models.Loan, error) {
	loan, err := s.repo.Return(ctx, id, s.today())
	if err != nil {
		s.metrics.RecordLoanOperation(LoanOpReturn, false)
		if errors.Is(err, repository.ErrLoanAlreadyReturned) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "book has already been returned")
		}
		return nil, notFoundOr(err, "loan not found", "failed to return loan")
	}

	s.metrics.RecordLoanOperation(LoanOpReturn, true)
	s.afterChange(ctx, loan, events.LoanReturned, models.AuditActionLoanReturn, meta, map[string]bool{"returned": false})
	return loan, nil
}

// ReturnByMemberAndBook returns the member's open loan for a book.
func (s *LoanService) ReturnByMemberAndBook(ctx context.Context, req ReturnByMemberBookRequest, meta models.AuditMeta) (*models.Loan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "invalid return payload")
	}
	loan, err := s.repo.FindActiveByMemberAndBook(ctx, req.MemberID, req.BookID)
	if err != nil {
		return nil, notFoundOr(err, "no active loan found for member and book", "failed to load loan")
	}
	return s.ReturnLoan(ctx, loan.ID, meta)
}

// ReturnForMember returns a loan on behalf of the member that holds it.
func (s *LoanService) ReturnForMember(ctx context.Context, memberID, loanID string, meta models.AuditMeta) (*models.Loan, error) {
	loan, err := s.Get(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.MemberID != memberID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "loan not found")
	}
	return s.ReturnLoan(ctx, loanID, meta)
}

// ExtendLoan moves the due date of an open loan forward by additionalDays.
func (s *LoanService) ExtendLoan(ctx context.Context, id string, req ExtendLoanRequest, meta models.AuditMeta) (*models.Loan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalid(err, "additional days must be positive")
	}

	loan, err := s.repo.Extend(ctx, id, req.AdditionalDays)
	if err != nil {
		s.metrics.RecordLoanOperation(LoanOpExtend, false)
		if errors.Is(err, repository.ErrLoanAlreadyReturned) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "cannot extend a returned loan")
		}
		return nil, notFoundOr(err, "loan not found", "failed to extend loan")
	}

	s.metrics.RecordLoanOperation(LoanOpExtend, true)
	s.afterChange(ctx, loan, events.LoanExtended, models.AuditActionLoanExtend, meta,
		map[string]string{"due_date": loan.DueDate.AddDate(0, 0, -req.AdditionalDays).Format(models.DateLayout)})
	return loan, nil
}

// afterChange runs the side effects of a successful mutation. None of them
// can fail the operation.
func (s *LoanService) afterChange(ctx context.Context, loan *models.Loan, eventType, action string, meta models.AuditMeta, old interface{}) {
	if s.catalogue != nil && eventType != events.LoanExtended {
		s.catalogue.InvalidateCatalogue(ctx)
	}

	payload := s.eventPayload(loan)
	recordAudit(ctx, s.audit, s.logger, meta, auditEntry{
		Action:     action,
		Resource:   "loans",
		ResourceID: loan.ID,
		Old:        old,
		New:        payload,
	})

	if s.events != nil {
		if err := s.events.Dispatch(eventType, payload); err != nil {
			s.logger.Warn("failed to dispatch loan event", zap.String("type", eventType), zap.String("loan_id", loan.ID), zap.Error(err))
		}
	}
}

func (s *LoanService) eventPayload(loan *models.Loan) LoanEvent {
	evt := LoanEvent{
		LoanID:   loan.ID,
		MemberID: loan.MemberID,
		BookID:   loan.BookID,
		LoanDate: loan.LoanDate.Format(models.DateLayout),
		DueDate:  loan.DueDate.Format(models.DateLayout),
	}
	if loan.ReturnDate != nil {
		evt.ReturnDate = loan.ReturnDate.Format(models.DateLayout)
		evt.Fine = loan.Fine(s.policy.FinePerDay)
	}
	return evt
}

// CalculateFine charges FinePerDay for every day a loan came back late.
// Open loans and loans returned on time carry no fine.
func (s *LoanService) CalculateFine(ctx context.Context, id string) (*models.LoanFine, error) {
	loan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.LoanFine{
		LoanID:     loan.ID,
		DueDate:    loan.DueDate,
		ReturnDate: loan.ReturnDate,
		LateDays:   loan.LateDays(),
		PerDay:     s.policy.FinePerDay,
		Amount:     loan.Fine(s.policy.FinePerDay),
	}, nil
}

// FineFor computes the fine for arbitrary due and return dates.
func (s *LoanService) FineFor(due time.Time, returned *time.Time) float64 {
	return models.CalculateFine(due, returned, s.policy.FinePerDay)
}

// Get returns a loan by ID.
func (s *LoanService) Get(ctx context.Context, id string) (*models.Loan, error) {
	loan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "loan not found", "failed to load loan")
	}
	return loan, nil
}

// List returns loans matching filter.
func (s *LoanService) List(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	if filter.LoanedFrom != nil && filter.LoanedTo != nil && models.Date(*filter.LoanedFrom).After(models.Date(*filter.LoanedTo)) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "start date cannot be after end date")
	}
	if filter.OverdueOnly && filter.AsOf.IsZero() {
		filter.AsOf = s.today()
	}
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)

	loans, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list loans")
	}
	if loans == nil {
		loans = []models.LoanDetail{}
	}
	return loans, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// ListByMember returns every loan of a member.
func (s *LoanService) ListByMember(ctx context.Context, memberID string, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	filter.MemberID = memberID
	return s.List(ctx, filter)
}

// ListActiveByMember returns the member's unreturned loans.
func (s *LoanService) ListActiveByMember(ctx context.Context, memberID string, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	filter.MemberID = memberID
	filter.ActiveOnly = true
	return s.List(ctx, filter)
}

// ListByBook returns every loan of a book.
func (s *LoanService) ListByBook(ctx context.Context, bookID string, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	filter.BookID = bookID
	return s.List(ctx, filter)
}

// ListOverdue returns open loans whose due date has passed.
func (s *LoanService) ListOverdue(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	filter.OverdueOnly = true
	filter.AsOf = s.today()
	return s.List(ctx, filter)
}

// ListDueOn returns loans due on date.
func (s *LoanService) ListDueOn(ctx context.Context, date time.Time, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	due := models.Date(date)
	filter.DueOn = &due
	return s.List(ctx, filter)
}

// ListDueToday returns loans due today.
func (s *LoanService) ListDueToday(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	return s.ListDueOn(ctx, s.today(), filter)
}

// ListByDateRange returns loans opened between from and to inclusive.
func (s *LoanService) ListByDateRange(ctx context.Context, from, to time.Time, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	filter.LoanedFrom = &from
	filter.LoanedTo = &to
	return s.List(ctx, filter)
}

// ListAllActive returns every unreturned loan.
func (s *LoanService) ListAllActive(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	filter.ActiveOnly = true
	return s.List(ctx, filter)
}

// ActiveLoanCount counts the member's unreturned loans.
func (s *LoanService) ActiveLoanCount(ctx context.Context, memberID string) (int, error) {
	count, err := s.repo.CountActiveByMember(ctx, memberID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to count active loans")
	}
	return count, nil
}

// HasActiveLoans reports whether the member holds any unreturned loan.
func (s *LoanService) HasActiveLoans(ctx context.Context, memberID string) (bool, error) {
	count, err := s.ActiveLoanCount(ctx, memberID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MemberLoanLimit returns the limit of the member's tier.
func (s *LoanService) MemberLoanLimit(ctx context.Context, memberID string) (int, error) {
	member, err := s.member(ctx, memberID)
	if err != nil {
		return 0, err
	}
	return s.policy.LimitFor(member.Role), nil
}

// CanMemberBorrowMore reports whether the member is below the tier limit.
func (s *LoanService) CanMemberBorrowMore(ctx context.Context, memberID string) (bool, error) {
	eligibility, err := s.Eligibility(ctx, memberID)
	if err != nil {
		return false, err
	}
	return eligibility.ActiveLoans < eligibility.Limit, nil
}

// Eligibility summarises the member's standing, loan count and limit.
func (s *LoanService) Eligibility(ctx context.Context, memberID string) (*models.Eligibility, error) {
	member, err := s.member(ctx, memberID)
	if err != nil {
		return nil, err
	}
	count, err := s.ActiveLoanCount(ctx, memberID)
	if err != nil {
		return nil, err
	}
	limit := s.policy.LimitFor(member.Role)
	return &models.Eligibility{
		MemberID:    member.ID,
		Role:        member.Role,
		ActiveLoans: count,
		Limit:       limit,
		CanBorrow:   member.CanBorrow() && count < limit,
	}, nil
}

func (s *LoanService) member(ctx context.Context, id string) (*models.Member, error) {
	if s.members == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "member lookup is not configured")
	}
	member, err := s.members.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "member not found", "failed to load member")
	}
	return member, nil
}
