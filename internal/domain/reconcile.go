package domain

import "time"

const (
	ReasonDeadlinePassed   = "deadline passed without confirmation"
	ReasonDeadlineRestored = "deadline not yet reached; restored to pending"
)

// Reconciliation is a clock-driven status correction.
type Reconciliation struct {
	From   PaymentStatus
	To     PaymentStatus
	Reason string
}

// IsFailure reports whether the correction fails the record.
func (c Reconciliation) IsFailure() bool {
	return c.To == StatusFailed
}

// ReconcileRecord derives the status correction a record needs at now, if any.
// Recovery requires deadline > now and failure requires now > deadline, so at
// most one applies and a record exactly at its deadline is left alone.
func ReconcileRecord(r *PaymentRecord, now time.Time) (Reconciliation, bool) {
	if r == nil || r.MemberConfirmedPayment || r.VerifiedBy != nil {
		return Reconciliation{}, false
	}

	if r.Status == StatusFailed &&
		r.Deadline.After(now) &&
		r.FailureSource == FailureDeadline &&
		!r.HasPendingResubmission() {
		return Reconciliation{From: StatusFailed, To: StatusPending, Reason: ReasonDeadlineRestored}, true
	}

	if (r.Status == StatusPending || r.Status == StatusAwaitingVerification) && now.After(r.Deadline) {
		return Reconciliation{From: r.Status, To: StatusFailed, Reason: ReasonDeadlinePassed}, true
	}

	return Reconciliation{}, false
}

// Reconcile applies ReconcileRecord in place, appending the history entry.
func (r *PaymentRecord) Reconcile(now time.Time) (Reconciliation, bool) {
	change, ok := ReconcileRecord(r, now)
	if !ok {
		return change, false
	}
	if change.IsFailure() {
		r.FailureSource = FailureDeadline
	} else {
		r.FailureSource = FailureNone
	}
	r.transition(change.To, nil, change.Reason, now)
	return change, true
}

// Reconciled returns the record as it should be seen at now without touching the input.
func Reconciled(r *PaymentRecord, now time.Time) *PaymentRecord {
	if _, ok := ReconcileRecord(r, now); !ok {
		return r
	}
	c := r.Clone()
	c.Reconcile(now)
	return c
}
