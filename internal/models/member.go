package models

import "time"

// MemberRole is the borrowing tier of a member.
type MemberRole string

const (
	MemberRegular MemberRole = "REGULAR"
	MemberPremium MemberRole = "PREMIUM"
)

// Valid reports whether r is a known tier.
func (r MemberRole) Valid() bool {
	return r == MemberRegular || r == MemberPremium
}

// Member is a library patron who can borrow books.
type Member struct {
	ID          string      `db:"id" json:"id"`
	Name        string      `db:"name" json:"name"`
	Role        MemberRole  `db:"role" json:"role"`
	AccessLevel AccessLevel `db:"access_level" json:"access_level"`
	Active      bool        `db:"active" json:"active"`
	Deleted     bool        `db:"deleted" json:"deleted"`
	UserID      *string     `db:"user_id" json:"user_id,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// NewMember returns an active REGULAR member with read/write access.
func NewMember(name string) *Member {
	return &Member{
		Name:        name,
		Role:        MemberRegular,
		AccessLevel: AccessReadWrite,
		Active:      true,
	}
}

// CanBorrow reports whether the member is in good standing.
func (m Member) CanBorrow() bool {
	return m.Active && !m.Deleted
}

// MemberFilter captures filtering criteria for listing members.
type MemberFilter struct {
	Role           *MemberRole
	Active         *bool
	IncludeDeleted bool
	Search         string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// Eligibility summarises whether a member may borrow another book.
type Eligibility struct {
	MemberID    string     `json:"member_id"`
	Role        MemberRole `json:"role"`
	ActiveLoans int        `json:"active_loans"`
	Limit       int        `json:"limit"`
	CanBorrow   bool       `json:"can_borrow"`
}
