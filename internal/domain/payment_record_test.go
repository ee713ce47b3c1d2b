package domain

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
)

var (
	testNow      = time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	testDeadline = time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC)
)

func newPendingRecord(memberID uuid.UUID) *PaymentRecord {
	r := &PaymentRecord{
		ID:           uuid.New(),
		MemberID:     memberID,
		Month:        time.March,
		Year:         2025,
		AcademicYear: "2024-2025",
		Amount:       5000,
		Deadline:     testDeadline,
	}
	r.transition(StatusPending, nil, "seeded from monthly template", testNow.Add(-48*time.Hour))
	return r
}

func TestConfirmIntent_MovesPendingToAwaiting(t *testing.T) {
	member := uuid.New()
	r := newPendingRecord(member)

	err := r.ConfirmIntent(member, ConfirmDetails{ProofURL: "https://blob.example.com/p.png", Method: MethodUPI, TransactionRef: " UTR123 "}, testNow)
	if err != nil {
		t.Fatalf("ConfirmIntent returned error: %v", err)
	}
	if r.Status != StatusAwaitingVerification {
		t.Fatalf("expected awaiting_verification, got %s", r.Status)
	}
	if !r.MemberConfirmedPayment || r.MemberConfirmedAt == nil || !r.MemberConfirmedAt.Equal(testNow) {
		t.Fatalf("expected confirmation to be recorded at %v", testNow)
	}
	if r.TransactionRef == nil || *r.TransactionRef != "UTR123" {
		t.Fatalf("expected trimmed transaction ref, got %v", r.TransactionRef)
	}
	if len(r.StatusHistory) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(r.StatusHistory))
	}
}

func TestConfirmIntent_Rejections(t *testing.T) {
	member := uuid.New()

	tests := []struct {
		name    string
		setup   func(r *PaymentRecord)
		actor   uuid.UUID
		details ConfirmDetails
		wantErr error
	}{
		{
			name:    "other member",
			actor:   uuid.New(),
			wantErr: ErrUnauthorized,
		},
		{
			name:    "already awaiting",
			setup:   func(r *PaymentRecord) { r.Status = StatusAwaitingVerification },
			actor:   member,
			wantErr: ErrInvalidStateTransition,
		},
		{
			name:    "bad proof url",
			actor:   member,
			details: ConfirmDetails{ProofURL: "ftp://nope"},
			wantErr: ErrValidation,
		},
		{
			name:    "unknown method",
			actor:   member,
			details: ConfirmDetails{Method: "cheque"},
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newPendingRecord(member)
			if tt.setup != nil {
				tt.setup(r)
			}
			before := r.Clone()
			err := r.ConfirmIntent(tt.actor, tt.details, testNow)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if !reflect.DeepEqual(before, r) {
				t.Fatalf("expected record to be untouched on error")
			}
		})
	}
}

func TestVerify_ErrorOrdering(t *testing.T) {
	treasurer := uuid.New()

	t.Run("paid record reports already verified", func(t *testing.T) {
		r := newPendingRecord(uuid.New())
		r.Status = StatusPaid
		r.MemberConfirmedPayment = true
		if _, err := r.Verify(treasurer, testNow); !errors.Is(err, ErrAlreadyVerified) {
			t.Fatalf("expected ErrAlreadyVerified, got %v", err)
		}
	})

	t.Run("unconfirmed record reports not confirmed", func(t *testing.T) {
		r := newPendingRecord(uuid.New())
		if _, err := r.Verify(treasurer, testNow); !errors.Is(err, ErrNotConfirmed) {
			t.Fatalf("expected ErrNotConfirmed, got %v", err)
		}
	})

	t.Run("already verified is an invalid transition", func(t *testing.T) {
		if !errors.Is(ErrAlreadyVerified, ErrInvalidStateTransition) {
			t.Fatalf("expected ErrAlreadyVerified to wrap ErrInvalidStateTransition")
		}
	})
}

func TestVerify_SettlesOnce(t *testing.T) {
	member := uuid.New()
	treasurer := uuid.New()
	r := newPendingRecord(member)
	if err := r.ConfirmIntent(member, ConfirmDetails{}, testNow); err != nil {
		t.Fatalf("ConfirmIntent returned error: %v", err)
	}

	settlement, err := r.Verify(treasurer, testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if settlement.Amount != 5000 || settlement.RecordID != r.ID || settlement.ActorID != treasurer {
		t.Fatalf("unexpected settlement %+v", settlement)
	}
	if r.Status != StatusPaid || r.VerifiedBy == nil || *r.VerifiedBy != treasurer {
		t.Fatalf("expected paid record verified by treasurer, got %s", r.Status)
	}
	if r.PaymentDate == nil {
		t.Fatalf("expected payment date to be set")
	}

	if _, err := r.Verify(treasurer, testNow.Add(2*time.Hour)); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected second verify to fail with ErrAlreadyVerified, got %v", err)
	}
}

func TestReject_RequiresReasonAndMovesToFailed(t *testing.T) {
	treasurer := uuid.New()
	r := newPendingRecord(uuid.New())

	if err := r.Reject(treasurer, "   ", testNow); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for blank reason, got %v", err)
	}
	if err := r.Reject(treasurer, "test", testNow); err != nil {
		t.Fatalf("Reject returned error: %v", err)
	}
	if r.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", r.Status)
	}
	if r.RejectionReason == nil || *r.RejectionReason != "test" {
		t.Fatalf("expected rejection reason test, got %v", r.RejectionReason)
	}
	if r.FailureSource != FailureTreasurer {
		t.Fatalf("expected treasurer failure source, got %q", r.FailureSource)
	}
	if err := r.Reject(treasurer, "again", testNow); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected rejecting a failed record to be invalid, got %v", err)
	}
}

func TestResubmission_RejectThenResubmitAgain(t *testing.T) {
	member := uuid.New()
	treasurer := uuid.New()
	r := newPendingRecord(member)
	if err := r.Reject(treasurer, "blurry screenshot", testNow); err != nil {
		t.Fatalf("Reject returned error: %v", err)
	}

	if err := r.Resubmit(member, "https://blob.example.com/a.png", "second try", testNow); err != nil {
		t.Fatalf("Resubmit returned error: %v", err)
	}
	if r.Status != StatusFailed || !r.HasPendingResubmission() {
		t.Fatalf("expected failed record with pending resubmission")
	}
	if err := r.Resubmit(member, "https://blob.example.com/b.png", "", testNow); !errors.Is(err, ErrAlreadyPending) {
		t.Fatalf("expected ErrAlreadyPending, got %v", err)
	}

	if err := r.RejectResubmission(treasurer, "amount mismatch", testNow); err != nil {
		t.Fatalf("RejectResubmission returned error: %v", err)
	}
	if r.Status != StatusFailed || r.FailedSubmission != nil {
		t.Fatalf("expected failed record with cleared submission")
	}
	if err := r.Resubmit(member, "https://blob.example.com/c.png", "", testNow); err != nil {
		t.Fatalf("expected resubmission to be allowed again, got %v", err)
	}
}

func TestApproveResubmission_CopiesProofAndDate(t *testing.T) {
	member := uuid.New()
	treasurer := uuid.New()
	r := newPendingRecord(member)
	_ = r.Reject(treasurer, "no proof", testNow)
	resubmittedAt := testNow.Add(time.Hour)
	if err := r.Resubmit(member, "https://blob.example.com/a.png", "", resubmittedAt); err != nil {
		t.Fatalf("Resubmit returned error: %v", err)
	}

	settlement, err := r.ApproveResubmission(treasurer, testNow.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ApproveResubmission returned error: %v", err)
	}
	if settlement.Amount != r.Amount {
		t.Fatalf("expected settlement of %d, got %d", r.Amount, settlement.Amount)
	}
	if r.Status != StatusPaid {
		t.Fatalf("expected paid, got %s", r.Status)
	}
	if r.PaymentProof == nil || *r.PaymentProof != "https://blob.example.com/a.png" {
		t.Fatalf("expected proof to be copied, got %v", r.PaymentProof)
	}
	if r.PaymentDate == nil || !r.PaymentDate.Equal(resubmittedAt) {
		t.Fatalf("expected payment date %v, got %v", resubmittedAt, r.PaymentDate)
	}
	if r.FailedSubmission != nil || r.RejectionReason != nil {
		t.Fatalf("expected submission and rejection reason to be cleared")
	}
}

func TestResubmit_RequiresFailedStatus(t *testing.T) {
	member := uuid.New()
	r := newPendingRecord(member)
	if err := r.Resubmit(member, "https://blob.example.com/a.png", "", testNow); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
	if _, err := r.ApproveResubmission(uuid.New(), testNow); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestAcknowledgeCash_OnlyPending(t *testing.T) {
	member := uuid.New()
	treasurer := uuid.New()

	r := newPendingRecord(member)
	before := r.Clone()
	note, err := AcknowledgeCash(r, nil, treasurer, testNow)
	if err != nil {
		t.Fatalf("AcknowledgeCash returned error: %v", err)
	}
	if !note.AcknowledgedCash || note.By != treasurer || note.RecordID != r.ID {
		t.Fatalf("unexpected note %+v", note)
	}
	if !reflect.DeepEqual(before, r) {
		t.Fatalf("expected record to be untouched by cash acknowledgement")
	}
	if _, err := AcknowledgeCash(r, note, treasurer, testNow); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected double acknowledgement to fail, got %v", err)
	}

	awaiting := newPendingRecord(member)
	_ = awaiting.ConfirmIntent(member, ConfirmDetails{}, testNow)
	if _, err := AcknowledgeCash(awaiting, nil, treasurer, testNow); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition for awaiting record, got %v", err)
	}
}

func TestNewManualPaidRecord(t *testing.T) {
	treasurer := uuid.New()
	p := ManualPayment{MemberID: uuid.New(), Month: time.April, Year: 2025, Amount: 7500, Deadline: testDeadline}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}

	r, settlement := NewManualPaidRecord(p, treasurer, testNow)
	if r.Status != StatusPaid || r.PaymentMethod != MethodCash {
		t.Fatalf("expected paid cash record, got %s/%s", r.Status, r.PaymentMethod)
	}
	if settlement.Amount != 7500 || settlement.RecordID != r.ID {
		t.Fatalf("unexpected settlement %+v", settlement)
	}
	if len(r.StatusHistory) != 1 || r.StatusHistory[0].To != StatusPaid {
		t.Fatalf("expected a single history entry to paid, got %+v", r.StatusHistory)
	}

	bad := p
	bad.Amount = 0
	if err := bad.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}
}

func TestStatusHistory_OnlyGrows(t *testing.T) {
	member := uuid.New()
	treasurer := uuid.New()
	r := newPendingRecord(member)

	snapshots := [][]StatusChange{append([]StatusChange(nil), r.StatusHistory...)}
	steps := []func() error{
		func() error { return r.Reject(treasurer, "missing", testNow) },
		func() error { return r.Resubmit(member, "https://blob.example.com/x.png", "", testNow) },
		func() error { return r.RejectResubmission(treasurer, "still missing", testNow) },
		func() error { return r.Resubmit(member, "https://blob.example.com/y.png", "", testNow) },
		func() error { _, err := r.ApproveResubmission(treasurer, testNow); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d returned error: %v", i, err)
		}
		prev := snapshots[len(snapshots)-1]
		if len(r.StatusHistory) <= len(prev) {
			t.Fatalf("step %d: history did not grow", i)
		}
		if !reflect.DeepEqual(prev, r.StatusHistory[:len(prev)]) {
			t.Fatalf("step %d: existing history entries were mutated", i)
		}
		snapshots = append(snapshots, append([]StatusChange(nil), r.StatusHistory...))
	}
}
