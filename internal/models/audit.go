package models

import "time"

// AuditAction constants represent circulation actions to be logged.
const (
	AuditActionBorrowSubmit    = "BORROW_SUBMIT"
	AuditActionBorrowApprove   = "BORROW_APPROVE"
	AuditActionBorrowReject    = "BORROW_REJECT"
	AuditActionBorrowRetrieve  = "BORROW_RETRIEVE"
	AuditActionReturnRecord    = "RETURN_RECORD"
	AuditActionMarkLost        = "MARK_LOST"
	AuditActionOverdueReminder = "BORROW_OVERDUE_REMINDER"
	AuditActionSettingsUpdate  = "CIRCULATION_SETTINGS_UPDATE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Details    []byte    `db:"details" json:"details,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
