/**
 * @description
 * PaymentRecord is one member's dues obligation for one month, together with the
 * transitions that move it between statuses. Transition methods are pure: they
 * validate against the current state first and only then mutate, so a returned
 * error always leaves the record untouched. Money movement is described by the
 * returned Settlement and applied by the store in the same atomic unit.
 */

package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	StatusPending              PaymentStatus = "pending"
	StatusAwaitingVerification PaymentStatus = "awaiting_verification"
	StatusPaid                 PaymentStatus = "paid"
	StatusFailed               PaymentStatus = "failed"
)

type PaymentMethod string

const (
	MethodUPI          PaymentMethod = "upi"
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodOther        PaymentMethod = "other"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodUPI, MethodCash, MethodBankTransfer, MethodOther:
		return true
	}
	return false
}

// FailureSource records who moved a record into failed. Only deadline failures
// are eligible for automatic recovery.
type FailureSource string

const (
	FailureNone      FailureSource = ""
	FailureDeadline  FailureSource = "deadline"
	FailureTreasurer FailureSource = "treasurer"
)

// StatusChange is one append-only audit entry.
type StatusChange struct {
	From    PaymentStatus `json:"from,omitempty"`
	To      PaymentStatus `json:"to"`
	ActorID *uuid.UUID    `json:"actor_id,omitempty"`
	Reason  string        `json:"reason"`
	At      time.Time     `json:"at"`
}

// FailedPaymentSubmission is a member's second proof attempt on a failed record.
type FailedPaymentSubmission struct {
	ResubmittedPhoto string    `json:"resubmitted_photo"`
	ResubmittedAt    time.Time `json:"resubmitted_at"`
	Note             string    `json:"note,omitempty"`
}

// PaymentRecord maps to the `payment_records` table.
type PaymentRecord struct {
	ID                     uuid.UUID                `json:"id"`
	MemberID               uuid.UUID                `json:"member_id"`
	Month                  time.Month               `json:"month"`
	Year                   int                      `json:"year"`
	AcademicYear           string                   `json:"academic_year"`
	Amount                 int64                    `json:"amount"` // in paise
	Status                 PaymentStatus            `json:"status"`
	Deadline               time.Time                `json:"deadline"`
	MemberConfirmedPayment bool                     `json:"member_confirmed_payment"`
	MemberConfirmedAt      *time.Time               `json:"member_confirmed_at,omitempty"`
	PaymentProof           *string                  `json:"payment_proof,omitempty"`
	PaymentDate            *time.Time               `json:"payment_date,omitempty"`
	PaymentMethod          PaymentMethod            `json:"payment_method,omitempty"`
	TransactionRef         *string                  `json:"transaction_ref,omitempty"`
	VerifiedBy             *uuid.UUID               `json:"verified_by,omitempty"`
	VerifiedAt             *time.Time               `json:"verified_at,omitempty"`
	FailedSubmission       *FailedPaymentSubmission `json:"failed_submission,omitempty"`
	RejectionReason        *string                  `json:"rejection_reason,omitempty"`
	FailureSource          FailureSource            `json:"failure_source,omitempty"`
	StatusHistory          []StatusChange           `json:"status_history"`
	Notes                  string                   `json:"notes,omitempty"`
	TemplateID             *uuid.UUID               `json:"template_id,omitempty"`
	CreatedAt              time.Time                `json:"created_at"`
	UpdatedAt              time.Time                `json:"updated_at"`
	Version                int64                    `json:"-"`
}

// TreasurerNote is the treasurer's private cash-collection mark. It lives in its own
// table and never participates in status, wallet, or total computations.
type TreasurerNote struct {
	RecordID         uuid.UUID `json:"record_id"`
	AcknowledgedCash bool      `json:"acknowledged_cash"`
	By               uuid.UUID `json:"by"`
	At               time.Time `json:"at"`
}

// Settlement is the money movement owed when a record becomes paid.
type Settlement struct {
	RecordID    uuid.UUID
	MemberID    uuid.UUID
	ActorID     uuid.UUID
	Amount      int64
	Description string
}

// ConfirmDetails carries the optional self-reported payment details.
type ConfirmDetails struct {
	ProofURL       string
	Method         PaymentMethod
	TransactionRef string
}

// HasPendingResubmission reports whether a resubmitted proof awaits review.
func (r *PaymentRecord) HasPendingResubmission() bool {
	return r.FailedSubmission != nil && r.FailedSubmission.ResubmittedPhoto != ""
}

// Clone returns a deep copy.
func (r *PaymentRecord) Clone() *PaymentRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.MemberConfirmedAt = cloneTime(r.MemberConfirmedAt)
	c.PaymentProof = cloneString(r.PaymentProof)
	c.PaymentDate = cloneTime(r.PaymentDate)
	c.TransactionRef = cloneString(r.TransactionRef)
	c.VerifiedAt = cloneTime(r.VerifiedAt)
	c.RejectionReason = cloneString(r.RejectionReason)
	if r.VerifiedBy != nil {
		v := *r.VerifiedBy
		c.VerifiedBy = &v
	}
	if r.TemplateID != nil {
		v := *r.TemplateID
		c.TemplateID = &v
	}
	if r.FailedSubmission != nil {
		fs := *r.FailedSubmission
		c.FailedSubmission = &fs
	}
	c.StatusHistory = make([]StatusChange, len(r.StatusHistory))
	copy(c.StatusHistory, r.StatusHistory)
	return &c
}

// ConfirmIntent moves pending -> awaiting_verification on the member's self-report.
func (r *PaymentRecord) ConfirmIntent(memberID uuid.UUID, details ConfirmDetails, now time.Time) error {
	if r.MemberID != memberID {
		return ErrUnauthorized
	}
	if r.Status != StatusPending {
		return fmt.Errorf("%w: cannot confirm a %s payment", ErrInvalidStateTransition, r.Status)
	}
	proof := strings.TrimSpace(details.ProofURL)
	if proof != "" {
		if err := ValidateProofURL(proof); err != nil {
			return err
		}
	}
	if details.Method != "" && !details.Method.Valid() {
		return NewValidationError("payment_method", "unsupported payment method")
	}

	at := now
	r.MemberConfirmedPayment = true
	r.MemberConfirmedAt = &at
	if proof != "" {
		r.PaymentProof = &proof
	}
	if details.Method != "" {
		r.PaymentMethod = details.Method
	}
	if ref := strings.TrimSpace(details.TransactionRef); ref != "" {
		r.TransactionRef = &ref
	}
	r.transition(StatusAwaitingVerification, &memberID, "member confirmed payment", now)
	return nil
}

// Verify approves a confirmed payment and returns the settlement to apply.
func (r *PaymentRecord) Verify(treasurerID uuid.UUID, now time.Time) (*Settlement, error) {
	if r.Status == StatusPaid {
		return nil, ErrAlreadyVerified
	}
	if !r.MemberConfirmedPayment {
		return nil, ErrNotConfirmed
	}
	if r.Status != StatusAwaitingVerification {
		return nil, fmt.Errorf("%w: cannot verify a %s payment", ErrInvalidStateTransition, r.Status)
	}

	r.markVerified(treasurerID, now)
	if r.PaymentDate == nil {
		at := now
		r.PaymentDate = &at
	}
	r.transition(StatusPaid, &treasurerID, "payment verified by treasurer", now)
	return r.settlement(treasurerID), nil
}

// Reject fails a pending or awaiting payment with a mandatory reason.
func (r *PaymentRecord) Reject(treasurerID uuid.UUID, reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return NewValidationError("reason", "rejection reason is required")
	}
	if r.Status != StatusPending && r.Status != StatusAwaitingVerification {
		return fmt.Errorf("%w: cannot reject a %s payment", ErrInvalidStateTransition, r.Status)
	}

	r.RejectionReason = &reason
	r.FailureSource = FailureTreasurer
	r.transition(StatusFailed, &treasurerID, reason, now)
	return nil
}

// Resubmit attaches a new proof to a failed record. Status stays failed until judged.
func (r *PaymentRecord) Resubmit(memberID uuid.UUID, proofURL, note string, now time.Time) error {
	if r.MemberID != memberID {
		return ErrUnauthorized
	}
	if r.Status != StatusFailed {
		return fmt.Errorf("%w: only failed payments can be resubmitted", ErrInvalidStateTransition)
	}
	if r.HasPendingResubmission() {
		return ErrAlreadyPending
	}
	proofURL = strings.TrimSpace(proofURL)
	if proofURL == "" {
		return NewValidationError("proof_url", "proof of payment is required")
	}
	if err := ValidateProofURL(proofURL); err != nil {
		return err
	}

	r.FailedSubmission = &FailedPaymentSubmission{
		ResubmittedPhoto: proofURL,
		ResubmittedAt:    now,
		Note:             strings.TrimSpace(note),
	}
	r.transition(StatusFailed, &memberID, "payment resubmitted", now)
	return nil
}

// ApproveResubmission settles a failed record from its resubmitted proof.
func (r *PaymentRecord) ApproveResubmission(treasurerID uuid.UUID, now time.Time) (*Settlement, error) {
	if r.Status == StatusPaid {
		return nil, ErrAlreadyVerified
	}
	if r.Status != StatusFailed {
		return nil, fmt.Errorf("%w: cannot judge a resubmission on a %s payment", ErrInvalidStateTransition, r.Status)
	}
	if !r.HasPendingResubmission() {
		return nil, ErrNoPendingResubmission
	}

	sub := *r.FailedSubmission
	photo := sub.ResubmittedPhoto
	paidAt := sub.ResubmittedAt
	r.PaymentProof = &photo
	r.PaymentDate = &paidAt
	r.MemberConfirmedPayment = true
	if r.MemberConfirmedAt == nil {
		confirmedAt := sub.ResubmittedAt
		r.MemberConfirmedAt = &confirmedAt
	}
	r.FailedSubmission = nil
	r.RejectionReason = nil
	r.FailureSource = FailureNone
	r.markVerified(treasurerID, now)
	r.transition(StatusPaid, &treasurerID, "resubmission approved by treasurer", now)
	return r.settlement(treasurerID), nil
}

// RejectResubmission clears the outstanding resubmission so the member may try again.
func (r *PaymentRecord) RejectResubmission(treasurerID uuid.UUID, reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return NewValidationError("reason", "rejection reason is required")
	}
	if r.Status != StatusFailed {
		return fmt.Errorf("%w: cannot judge a resubmission on a %s payment", ErrInvalidStateTransition, r.Status)
	}
	if !r.HasPendingResubmission() {
		return ErrNoPendingResubmission
	}

	r.FailedSubmission = nil
	r.RejectionReason = &reason
	r.FailureSource = FailureTreasurer
	r.transition(StatusFailed, &treasurerID, "resubmission rejected: "+reason, now)
	return nil
}

// AcknowledgeCash produces the treasurer's cash note for a pending record. It reads
// the record but never changes it.
func AcknowledgeCash(r *PaymentRecord, existing *TreasurerNote, treasurerID uuid.UUID, now time.Time) (*TreasurerNote, error) {
	if r.Status != StatusPending {
		return nil, fmt.Errorf("%w: manual mark requires a pending payment, got %s", ErrInvalidStateTransition, r.Status)
	}
	if existing != nil && existing.AcknowledgedCash {
		return nil, fmt.Errorf("%w: payment already marked by treasurer", ErrInvalidStateTransition)
	}
	return &TreasurerNote{
		RecordID:         r.ID,
		AcknowledgedCash: true,
		By:               treasurerID,
		At:               now,
	}, nil
}

// NewSeededRecord creates the pending record a template owes a member.
func NewSeededRecord(member Member, tmpl *MonthlyTemplate, now time.Time) *PaymentRecord {
	templateID := tmpl.ID
	r := &PaymentRecord{
		ID:           uuid.New(),
		MemberID:     member.ID,
		Month:        tmpl.Month,
		Year:         tmpl.Year,
		AcademicYear: AcademicYear(tmpl.Month, tmpl.Year),
		Amount:       tmpl.Amounts[member.Year],
		Deadline:     tmpl.Deadline,
		TemplateID:   &templateID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.transition(StatusPending, &tmpl.CreatedBy, "seeded from monthly template", now)
	return r
}

// ManualPayment is a treasurer-recorded payment that is settled on creation.
type ManualPayment struct {
	MemberID uuid.UUID
	Month    time.Month
	Year     int
	Amount   int64
	Method   PaymentMethod
	Note     string
	Deadline time.Time
}

func (p ManualPayment) Validate() error {
	if p.MemberID == uuid.Nil {
		return NewValidationError("member_id", "member id is required")
	}
	if err := ValidatePeriod(p.Month, p.Year); err != nil {
		return err
	}
	if p.Amount <= 0 {
		return NewValidationError("amount", "amount must be greater than zero")
	}
	if p.Method != "" && !p.Method.Valid() {
		return NewValidationError("payment_method", "unsupported payment method")
	}
	return nil
}

// NewManualPaidRecord builds a record that is paid from the moment it exists.
func NewManualPaidRecord(p ManualPayment, treasurerID uuid.UUID, now time.Time) (*PaymentRecord, *Settlement) {
	method := p.Method
	if method == "" {
		method = MethodCash
	}
	confirmedAt := now
	paidAt := now
	r := &PaymentRecord{
		ID:                     uuid.New(),
		MemberID:               p.MemberID,
		Month:                  p.Month,
		Year:                   p.Year,
		AcademicYear:           AcademicYear(p.Month, p.Year),
		Amount:                 p.Amount,
		Deadline:               p.Deadline,
		MemberConfirmedPayment: true,
		MemberConfirmedAt:      &confirmedAt,
		PaymentDate:            &paidAt,
		PaymentMethod:          method,
		Notes:                  strings.TrimSpace(p.Note),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	r.markVerified(treasurerID, now)
	r.transition(StatusPaid, &treasurerID, "manual payment recorded by treasurer", now)
	return r, r.settlement(treasurerID)
}

// SettlementDescription is the wallet ledger line for a dues credit.
func SettlementDescription(month time.Month, year int, memberName string) string {
	desc := fmt.Sprintf("Monthly dues %s %d", month, year)
	if name := strings.TrimSpace(memberName); name != "" {
		desc += " - " + name
	}
	return desc
}

// ValidateProofURL accepts absolute http(s) URLs returned by the blob store.
func ValidateProofURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return NewValidationError("proof_url", "proof must be an http(s) URL")
	}
	return nil
}

func (r *PaymentRecord) markVerified(treasurerID uuid.UUID, now time.Time) {
	by := treasurerID
	at := now
	r.VerifiedBy = &by
	r.VerifiedAt = &at
}

func (r *PaymentRecord) settlement(actorID uuid.UUID) *Settlement {
	return &Settlement{
		RecordID: r.ID,
		MemberID: r.MemberID,
		ActorID:  actorID,
		Amount:   r.Amount,
	}
}

func (r *PaymentRecord) transition(to PaymentStatus, actorID *uuid.UUID, reason string, now time.Time) {
	var actor *uuid.UUID
	if actorID != nil {
		a := *actorID
		actor = &a
	}
	r.StatusHistory = append(r.StatusHistory, StatusChange{
		From:    r.Status,
		To:      to,
		ActorID: actor,
		Reason:  reason,
		At:      now,
	})
	r.Status = to
	r.UpdatedAt = now
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
