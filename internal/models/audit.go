package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionUserCreate     = "USER_CREATE"
	AuditActionUserUpdate     = "USER_UPDATE"
	AuditActionUserDelete     = "USER_DELETE"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionRegister       = "REGISTER"

	AuditActionMemberCreate = "MEMBER_CREATE"
	AuditActionMemberUpdate = "MEMBER_UPDATE"
	AuditActionMemberDelete = "MEMBER_DELETE"

	AuditActionBookCreate = "BOOK_CREATE"
	AuditActionBookUpdate = "BOOK_UPDATE"
	AuditActionBookStock  = "BOOK_STOCK"
	AuditActionBookDelete = "BOOK_DELETE"

	AuditActionLoanCreate = "LOAN_CREATE"
	AuditActionLoanReturn = "LOAN_RETURN"
	AuditActionLoanExtend = "LOAN_EXTEND"

	AuditActionMembershipRequest = "MEMBERSHIP_REQUEST"
	AuditActionMembershipApprove = "MEMBERSHIP_APPROVE"
	AuditActionMembershipReject  = "MEMBERSHIP_REJECT"

	AuditActionExport = "EXPORT"
)

// AuditMeta carries request details recorded alongside audit entries.
type AuditMeta struct {
	ActorID   string
	IP        string
	UserAgent string
}

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
