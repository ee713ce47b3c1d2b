package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys published on the treasury events exchange.
const (
	EventPaymentConfirmed            = "payment.confirmed"
	EventPaymentVerified             = "payment.verified"
	EventPaymentRejected             = "payment.rejected"
	EventPaymentResubmitted          = "payment.resubmitted"
	EventPaymentResubmissionRejected = "payment.resubmission_rejected"
	EventPaymentManualCreated        = "payment.manual_created"
	EventPaymentOverdue              = "payment.overdue"
	EventWalletCredited              = "wallet.credited"
	EventWalletDebited               = "wallet.debited"
	EventTemplateCreated             = "template.created"
)

// Routing keys consumed from the user directory.
const (
	EventMemberCreated     = "member.created"
	EventMemberUpdated     = "member.updated"
	EventMemberDeactivated = "member.deactivated"
)

// TreasuryEvent is the notification payload for state changes.
type TreasuryEvent struct {
	EventID    uuid.UUID  `json:"event_id"`
	EventType  string     `json:"event_type"`
	RecordID   *uuid.UUID `json:"record_id,omitempty"`
	MemberID   *uuid.UUID `json:"member_id,omitempty"`
	Month      time.Month `json:"month,omitempty"`
	Year       int        `json:"year,omitempty"`
	Amount     int64      `json:"amount"`
	Reason     string     `json:"reason,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// NewRecordEvent builds an event describing a payment record.
func NewRecordEvent(eventType string, r *PaymentRecord, reason string, now time.Time) TreasuryEvent {
	recordID := r.ID
	memberID := r.MemberID
	return TreasuryEvent{
		EventID:    uuid.New(),
		EventType:  eventType,
		RecordID:   &recordID,
		MemberID:   &memberID,
		Month:      r.Month,
		Year:       r.Year,
		Amount:     r.Amount,
		Reason:     reason,
		OccurredAt: now,
	}
}

// MemberEvent is the payload the user directory publishes for member changes.
type MemberEvent struct {
	MemberID uuid.UUID `json:"member_id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Year     YearTier  `json:"year"`
	Role     Role      `json:"role"`
	Active   *bool     `json:"active,omitempty"`
}
