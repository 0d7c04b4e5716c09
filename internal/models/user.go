package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// AccessLevel grades what an account may do regardless of its role.
type AccessLevel string

const (
	AccessReadOnly  AccessLevel = "READ_ONLY"
	AccessReadWrite AccessLevel = "READ_WRITE"
	AccessManage    AccessLevel = "MANAGE"
)

var accessRank = map[AccessLevel]int{
	AccessReadOnly:  1,
	AccessReadWrite: 2,
	AccessManage:    3,
}

// Valid reports whether a is a known access level.
func (a AccessLevel) Valid() bool {
	_, ok := accessRank[a]
	return ok
}

// AtLeast reports whether a grants at least the permissions of min.
func (a AccessLevel) AtLeast(min AccessLevel) bool {
	return accessRank[a] >= accessRank[min]
}

// User represents an application user stored in the users table.
type User struct {
	ID           string      `db:"id" json:"id"`
	Name         string      `db:"name" json:"name"`
	Email        string      `db:"email" json:"email"`
	PasswordHash string      `db:"password_hash" json:"-"`
	Phone        string      `db:"phone" json:"phone"`
	Role         UserRole    `db:"role" json:"role"`
	AccessLevel  AccessLevel `db:"access_level" json:"access_level"`
	Active       bool        `db:"active" json:"active"`
	Deleted      bool        `db:"deleted" json:"deleted"`
	LastLogin    *time.Time  `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// CanLogin reports whether the account may authenticate.
func (u User) CanLogin() bool {
	return u.Active && !u.Deleted
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role           *UserRole
	Active         *bool
	IncludeDeleted bool
	Search         string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
