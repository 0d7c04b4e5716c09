package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func TestCalculateFine(t *testing.T) {
	due := day("2024-03-10")

	assert.Equal(t, 0.0, CalculateFine(due, nil, 0.5))
	assert.Equal(t, 0.0, CalculateFine(time.Time{}, ptr(day("2024-03-20")), 0.5))
	assert.Equal(t, 0.0, CalculateFine(due, ptr(day("2024-03-10")), 0.5))
	assert.Equal(t, 0.0, CalculateFine(due, ptr(day("2024-03-01")), 0.5))
	assert.Equal(t, 0.5, CalculateFine(due, ptr(day("2024-03-11")), 0.5))
	assert.Equal(t, 5.0, CalculateFine(due, ptr(day("2024-03-20")), 0.5))
	// spans the leap day
	assert.Equal(t, 11.0, CalculateFine(day("2024-02-20"), ptr(day("2024-03-13")), 0.5))
}

func TestLoanOverdueAndDaysUntilDue(t *testing.T) {
	loan := Loan{LoanDate: day("2024-03-01"), DueDate: day("2024-03-15")}
	now := time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC)

	assert.False(t, loan.Overdue(now))
	assert.Equal(t, 0, loan.DaysUntilDue(now))

	later := now.Add(2 * time.Hour)
	assert.True(t, loan.Overdue(later))
	assert.Equal(t, -1, loan.DaysUntilDue(later))

	loan.Returned = true
	assert.False(t, loan.Overdue(later))
}

func TestLoanLateDaysAndFine(t *testing.T) {
	loan := Loan{DueDate: day("2024-03-15"), Returned: true, ReturnDate: ptr(day("2024-03-18"))}
	assert.Equal(t, 3, loan.LateDays())
	assert.Equal(t, 1.5, loan.Fine(0.5))

	loan.ReturnDate = ptr(day("2024-03-14"))
	assert.Equal(t, 0, loan.LateDays())
	assert.Equal(t, 0.0, loan.Fine(0.5))
}

func TestAccessLevelAtLeast(t *testing.T) {
	assert.True(t, AccessManage.AtLeast(AccessReadWrite))
	assert.True(t, AccessReadWrite.AtLeast(AccessReadWrite))
	assert.False(t, AccessReadOnly.AtLeast(AccessReadWrite))
	assert.False(t, AccessLevel("ROOT").Valid())
}

func TestNormalizePage(t *testing.T) {
	page, size := NormalizePage(0, 500)
	assert.Equal(t, 1, page)
	assert.Equal(t, MaxPageSize, size)

	p := NewPagination(2, 0, 41)
	assert.Equal(t, &Pagination{Page: 2, PageSize: DefaultPageSize, TotalCount: 41}, p)
}
