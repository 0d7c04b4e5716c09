package models

import "time"

// RequestStatus tracks a membership request through review.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
)

// MembershipRequest is a user's application to become a member.
type MembershipRequest struct {
	ID            string        `db:"id" json:"id"`
	UserID        string        `db:"user_id" json:"user_id"`
	UserName      string        `db:"user_name" json:"user_name"`
	UserEmail     string        `db:"user_email" json:"user_email"`
	Status        RequestStatus `db:"status" json:"status"`
	RequestReason string        `db:"request_reason" json:"request_reason"`
	ProcessedBy   *string       `db:"processed_by" json:"processed_by,omitempty"`
	RequestedAt   time.Time     `db:"requested_at" json:"requested_at"`
	ProcessedAt   *time.Time    `db:"processed_at" json:"processed_at,omitempty"`
}

// Pending reports whether the request still awaits a decision.
func (r MembershipRequest) Pending() bool {
	return r.Status == RequestPending
}
