package models

import (
	"math"
	"time"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// Loan records a book lent to a member.
type Loan struct {
	ID         string     `db:"id" json:"id"`
	MemberID   string     `db:"member_id" json:"member_id"`
	BookID     string     `db:"book_id" json:"book_id"`
	LoanDate   time.Time  `db:"loan_date" json:"loan_date"`
	DueDate    time.Time  `db:"due_date" json:"due_date"`
	Returned   bool       `db:"returned" json:"returned"`
	ReturnDate *time.Time `db:"return_date" json:"return_date,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// LoanDetail joins a loan with member and book labels for listings.
type LoanDetail struct {
	Loan
	MemberName string `db:"member_name" json:"member_name"`
	BookTitle  string `db:"book_title" json:"book_title"`
	BookISBN   string `db:"book_isbn" json:"book_isbn"`
}

// Date truncates t to midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole calendar days from a to b; negative when b is earlier.
func DaysBetween(a, b time.Time) int {
	return int(math.Round(Date(b).Sub(Date(a)).Hours() / 24))
}

// Overdue reports whether the loan is unreturned past its due date.
func (l Loan) Overdue(now time.Time) bool {
	return !l.Returned && Date(now).After(Date(l.DueDate))
}

// DaysUntilDue is negative once the loan is overdue.
func (l Loan) DaysUntilDue(now time.Time) int {
	return DaysBetween(now, l.DueDate)
}

// LateDays is the number of days the return came after the due date.
func (l Loan) LateDays() int {
	if !l.Returned || l.ReturnDate == nil || l.DueDate.IsZero() {
		return 0
	}
	days := DaysBetween(l.DueDate, *l.ReturnDate)
	if days < 0 {
		return 0
	}
	return days
}

// Fine charges perDay for every late day of a returned loan.
func (l Loan) Fine(perDay float64) float64 {
	return CalculateFine(l.DueDate, l.ReturnDate, perDay)
}

// CalculateFine returns max(0, daysBetween(due, returned)) * perDay, or 0
// when either date is missing.
func CalculateFine(due time.Time, returned *time.Time, perDay float64) float64 {
	if due.IsZero() || returned == nil || returned.IsZero() {
		return 0
	}
	days := DaysBetween(due, *returned)
	if days <= 0 {
		return 0
	}
	return float64(days) * perDay
}

// LoanFilter captures filtering criteria for listing loans.
type LoanFilter struct {
	MemberID    string
	BookID      string
	ActiveOnly  bool
	OverdueOnly bool
	AsOf        time.Time
	DueOn       *time.Time
	LoanedFrom  *time.Time
	LoanedTo    *time.Time
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// LoanFine is the fine breakdown for a single loan.
type LoanFine struct {
	LoanID     string     `json:"loan_id"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
	LateDays   int        `json:"late_days"`
	PerDay     float64    `json:"per_day"`
	Amount     float64    `json:"amount"`
}
