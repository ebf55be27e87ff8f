package models

import "time"

// Notification type codes emitted by the circulation engine. Codes must be
// registered in notification_types or creation is silently skipped.
const (
	NotifyBookRequestSubmitted = "BORROW_BOOK_REQUEST_SUBMITTED"
	NotifyDocRequestSubmitted  = "BORROW_DOC_REQUEST_SUBMITTED"
	NotifyBorrowApproved       = "BORROW_APPROVED"
	NotifyReadyForPickup       = "READY_FOR_PICKUP"
	NotifyBorrowRejected       = "BORROW_REJECTED"
	NotifyBorrowRetrieved      = "BORROW_RETRIEVED"
	NotifyReturnRecorded       = "BORROW_RETURN_RECORDED"
	NotifyOverdueReminder      = "BORROW_OVERDUE_REMINDER"
)

// RelatedTypeBorrow is the related-entity tag for borrow notifications.
const RelatedTypeBorrow = "Borrow"

// Notification is a message fanned out to one or more recipients.
type Notification struct {
	ID           string    `db:"id" json:"id"`
	Type         string    `db:"type" json:"type"`
	Title        string    `db:"title" json:"title"`
	Message      string    `db:"message" json:"message"`
	SenderUserID *string   `db:"sender_user_id" json:"sender_user_id,omitempty"`
	RelatedType  string    `db:"related_type" json:"related_type"`
	RelatedID    int64     `db:"related_id" json:"related_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`

	Recipients []string `db:"-" json:"recipients,omitempty"`
}
