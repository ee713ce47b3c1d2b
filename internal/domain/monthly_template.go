package domain

import (
	"time"

	"github.com/google/uuid"
)

type TemplateStatus string

const (
	TemplateActive    TemplateStatus = "active"
	TemplateCompleted TemplateStatus = "completed"
	TemplateCancelled TemplateStatus = "cancelled"
)

// MonthlyTemplate is the treasurer's per-month amount schedule and deadline.
// At most one active template exists for a (month, year).
type MonthlyTemplate struct {
	ID            uuid.UUID          `json:"id"`
	Month         time.Month         `json:"month"`
	Year          int                `json:"year"`
	Status        TemplateStatus     `json:"status"`
	Amounts       map[YearTier]int64 `json:"amounts"` // in paise
	IncludedYears []YearTier         `json:"included_years"`
	Deadline      time.Time          `json:"deadline"`
	CreatedBy     uuid.UUID          `json:"created_by"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// TemplateInput is the treasurer-supplied shape of a template.
type TemplateInput struct {
	Month         time.Month
	Year          int
	Amounts       map[YearTier]int64
	IncludedYears []YearTier
	Deadline      time.Time
}

// Validate enforces the template creation rules.
func (in TemplateInput) Validate() error {
	if err := ValidatePeriod(in.Month, in.Year); err != nil {
		return err
	}
	if err := validateSchedule(in.Amounts, in.IncludedYears); err != nil {
		return err
	}
	if in.Deadline.IsZero() {
		return NewValidationError("deadline", "deadline is required")
	}
	return nil
}

func validateSchedule(amounts map[YearTier]int64, included []YearTier) error {
	if len(included) == 0 {
		return NewValidationError("included_years", "at least one year must be included")
	}
	seen := make(map[YearTier]bool, len(included))
	positive := false
	for _, tier := range included {
		if !tier.Valid() {
			return NewValidationError("included_years", "unknown year tier "+string(tier))
		}
		if seen[tier] {
			return NewValidationError("included_years", "duplicate year tier "+string(tier))
		}
		seen[tier] = true
		amount, ok := amounts[tier]
		if !ok {
			continue
		}
		if amount < 0 {
			return NewValidationError("amounts", "amount for "+string(tier)+" must not be negative")
		}
		if amount > 0 {
			positive = true
		}
	}
	if !positive {
		return NewValidationError("amounts", "an amount is required for at least one included year")
	}
	return nil
}

// NewMonthlyTemplate builds an active template from validated input.
func NewMonthlyTemplate(in TemplateInput, createdBy uuid.UUID, now time.Time) *MonthlyTemplate {
	amounts := make(map[YearTier]int64, len(in.Amounts))
	for tier, amount := range in.Amounts {
		amounts[tier] = amount
	}
	included := make([]YearTier, len(in.IncludedYears))
	copy(included, in.IncludedYears)
	return &MonthlyTemplate{
		ID:            uuid.New(),
		Month:         in.Month,
		Year:          in.Year,
		Status:        TemplateActive,
		Amounts:       amounts,
		IncludedYears: included,
		Deadline:      in.Deadline,
		CreatedBy:     createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Includes reports whether the tier owes dues under this template.
func (t *MonthlyTemplate) Includes(tier YearTier) bool {
	for _, included := range t.IncludedYears {
		if included == tier {
			return true
		}
	}
	return false
}

// Owes reports whether a member should have a record seeded: included tier with a
// positive amount.
func (t *MonthlyTemplate) Owes(m Member) bool {
	return m.Active && t.Includes(m.Year) && t.Amounts[m.Year] > 0
}

// TemplateUpdate carries optional edits to a template.
type TemplateUpdate struct {
	Amounts        map[YearTier]int64
	IncludedYears  []YearTier
	Deadline       *time.Time
	ApplyToPending bool
}

// Apply validates and applies the update to the template in place.
func (t *MonthlyTemplate) Apply(u TemplateUpdate, now time.Time) error {
	if t.Status != TemplateActive {
		return ErrInvalidStateTransition
	}
	amounts := t.Amounts
	if u.Amounts != nil {
		amounts = u.Amounts
	}
	included := t.IncludedYears
	if u.IncludedYears != nil {
		included = u.IncludedYears
	}
	if err := validateSchedule(amounts, included); err != nil {
		return err
	}
	if u.Deadline != nil && u.Deadline.IsZero() {
		return NewValidationError("deadline", "deadline is required")
	}

	next := make(map[YearTier]int64, len(amounts))
	for tier, amount := range amounts {
		next[tier] = amount
	}
	t.Amounts = next
	t.IncludedYears = append([]YearTier(nil), included...)
	if u.Deadline != nil {
		t.Deadline = *u.Deadline
	}
	t.UpdatedAt = now
	return nil
}

// SetStatus closes an active template.
func (t *MonthlyTemplate) SetStatus(status TemplateStatus, now time.Time) error {
	if status != TemplateCompleted && status != TemplateCancelled {
		return NewValidationError("status", "status must be completed or cancelled")
	}
	if t.Status != TemplateActive {
		return ErrInvalidStateTransition
	}
	t.Status = status
	t.UpdatedAt = now
	return nil
}

// RetargetPending rewrites an untouched record to the template's current amount and
// deadline. Pending records qualify, as do records failed only by the clock, which
// Reconcile may then restore. It reports whether anything changed.
func (t *MonthlyTemplate) RetargetPending(r *PaymentRecord, tier YearTier, actorID uuid.UUID, now time.Time) bool {
	if r.MemberConfirmedPayment || r.VerifiedBy != nil {
		return false
	}
	deadlineFailure := r.Status == StatusFailed && r.FailureSource == FailureDeadline && !r.HasPendingResubmission()
	if r.Status != StatusPending && !deadlineFailure {
		return false
	}
	amount, ok := t.Amounts[tier]
	if !ok || amount <= 0 || !t.Includes(tier) {
		return false
	}
	if r.Amount == amount && r.Deadline.Equal(t.Deadline) {
		return false
	}
	r.Amount = amount
	r.Deadline = t.Deadline
	r.transition(r.Status, &actorID, "monthly template updated", now)
	return true
}
