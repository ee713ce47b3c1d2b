package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/domain"
	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/store"
	"github.com/google/uuid"
)

const (
	rateScopeConfirm  = "payment_confirm"
	rateScopeResubmit = "payment_resubmit"
)

// Viewer identifies who is reading a record.
type Viewer struct {
	ID        uuid.UUID
	Treasurer bool
}

// ResubmissionDecision is the treasurer's judgement on a resubmitted proof.
type ResubmissionDecision struct {
	Approve bool
	Reason  string
}

// transitionRecord reconciles the locked record against the clock, then applies
// fn. A settlement returned by fn is labelled with the member's name and committed
// in the same unit as the record.
func (s *Service) transitionRecord(ctx context.Context, recordID uuid.UUID, fn func(rec *domain.PaymentRecord, now time.Time) (*domain.Settlement, error)) (*domain.PaymentRecord, error) {
	current, err := s.repo.GetPaymentRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	memberName := ""
	if member, err := s.repo.GetMember(ctx, current.MemberID); err == nil {
		memberName = member.Name
	} else if !errors.Is(err, store.ErrMemberNotFound) {
		return nil, err
	}

	now := s.now()
	return s.repo.MutatePaymentRecord(ctx, recordID, func(locked *domain.PaymentRecord) (*domain.Settlement, error) {
		locked.Reconcile(now)
		settlement, err := fn(locked, now)
		if err != nil {
			return nil, err
		}
		if settlement != nil {
			settlement.Description = domain.SettlementDescription(locked.Month, locked.Year, memberName)
		}
		return settlement, nil
	})
}

func (s *Service) publishSettlement(rec *domain.PaymentRecord, eventType string) {
	now := s.now()
	s.publishEvent(domain.NewRecordEvent(eventType, rec, "", now))
	s.publishEvent(domain.NewRecordEvent(domain.EventWalletCredited, rec, "", now))
}

// ConfirmPaymentIntent records the member's claim that they have paid.
func (s *Service) ConfirmPaymentIntent(ctx context.Context, recordID, memberID uuid.UUID, details domain.ConfirmDetails) (*domain.PaymentRecord, error) {
	if err := s.checkMemberRateLimit(ctx, rateScopeConfirm, memberID); err != nil {
		return nil, err
	}
	rec, err := s.transitionRecord(ctx, recordID, func(rec *domain.PaymentRecord, now time.Time) (*domain.Settlement, error) {
		return nil, rec.ConfirmIntent(memberID, details, now)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=service msg=\"payment confirmed by member\" record_id=%s member_id=%s", rec.ID, memberID)
	s.publishEvent(domain.NewRecordEvent(domain.EventPaymentConfirmed, rec, "", s.now()))
	return rec, nil
}

// VerifyPayment settles a confirmed payment: paid status, wallet credit and member
// total, all at once.
func (s *Service) VerifyPayment(ctx context.Context, recordID, treasurerID uuid.UUID) (*domain.PaymentRecord, error) {
	rec, err := s.transitionRecord(ctx, recordID, func(rec *domain.PaymentRecord, now time.Time) (*domain.Settlement, error) {
		return rec.Verify(treasurerID, now)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=service msg=\"payment verified\" record_id=%s treasurer_id=%s amount=%d", rec.ID, treasurerID, rec.Amount)
	s.publishSettlement(rec, domain.EventPaymentVerified)
	return rec, nil
}

// RejectPayment fails a pending or awaiting payment with a reason.
func (s *Service) RejectPayment(ctx context.Context, recordID, treasurerID uuid.UUID, reason string) (*domain.PaymentRecord, error) {
	rec, err := s.transitionRecord(ctx, recordID, func(rec *domain.PaymentRecord, now time.Time) (*domain.Settlement, error) {
		return nil, rec.Reject(treasurerID, reason, now)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=service msg=\"payment rejected\" record_id=%s treasurer_id=%s", rec.ID, treasurerID)
	s.publishEvent(domain.NewRecordEvent(domain.EventPaymentRejected, rec, strings.TrimSpace(reason), s.now()))
	return rec, nil
}

// ResubmitPayment attaches new proof to the member's failed payment.
func (s *Service) ResubmitPayment(ctx context.Context, recordID, memberID uuid.UUID, proofURL, note string) (*domain.PaymentRecord, error) {
	if err := s.checkMemberRateLimit(ctx, rateScopeResubmit, memberID); err != nil {
		return nil, err
	}
	rec, err := s.transitionRecord(ctx, recordID, func(rec *domain.PaymentRecord, now time.Time) (*domain.Settlement, error) {
		return nil, rec.Resubmit(memberID, proofURL, note, now)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=service msg=\"payment resubmitted\" record_id=%s member_id=%s", rec.ID, memberID)
	s.publishEvent(domain.NewRecordEvent(domain.EventPaymentResubmitted, rec, "", s.now()))
	return rec, nil
}

// JudgeResubmission approves (settling the payment) or rejects a resubmitted proof.
func (s *Service) JudgeResubmission(ctx context.Context, recordID, treasurerID uuid.UUID, decision ResubmissionDecision) (*domain.PaymentRecord, error) {
	rec, err := s.transitionRecord(ctx, recordID, func(rec *domain.PaymentRecord, now time.Time) (*domain.Settlement, error) {
		if decision.Approve {
			return rec.ApproveResubmission(treasurerID, now)
		}
		return nil, rec.RejectResubmission(treasurerID, decision.Reason, now)
	})
	if err != nil {
		return nil, err
	}
	if decision.Approve {
		log.Printf("level=info component=service msg=\"resubmission approved\" record_id=%s treasurer_id=%s amount=%d", rec.ID, treasurerID, rec.Amount)
		s.publishSettlement(rec, domain.EventPaymentVerified)
		return rec, nil
	}
	log.Printf("level=info component=service msg=\"resubmission rejected\" record_id=%s treasurer_id=%s", rec.ID, treasurerID)
	s.publishEvent(domain.NewRecordEvent(domain.EventPaymentResubmissionRejected, rec, strings.TrimSpace(decision.Reason), s.now()))
	return rec, nil
}

// ManualMarkPaid records that the treasurer collected cash for a pending payment.
// Only the treasurer note changes; the record and the wallet are left alone.
func (s *Service) ManualMarkPaid(ctx context.Context, recordID, treasurerID uuid.UUID) (*domain.TreasurerNote, error) {
	now := s.now()
	note, err := s.repo.SaveTreasurerNote(ctx, recordID, func(rec *domain.PaymentRecord, existing *domain.TreasurerNote) (*domain.TreasurerNote, error) {
		return domain.AcknowledgeCash(domain.Reconciled(rec, now), existing, treasurerID, now)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=service msg=\"cash acknowledged by treasurer\" record_id=%s treasurer_id=%s", recordID, treasurerID)
	return note, nil
}

// ClearManualMark removes the treasurer's cash note from a record.
func (s *Service) ClearManualMark(ctx context.Context, recordID uuid.UUID) error {
	return s.repo.DeleteTreasurerNote(ctx, recordID)
}

// CreateManualPaidRecord records a payment the treasurer received directly. The
// record is paid and settled on creation.
func (s *Service) CreateManualPaidRecord(ctx context.Context, treasurerID uuid.UUID, in domain.ManualPayment) (*domain.PaymentRecord, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	member, err := s.repo.GetMember(ctx, in.MemberID)
	if err != nil {
		return nil, err
	}

	var templateID *uuid.UUID
	tmpl, err := s.repo.FindActiveTemplate(ctx, in.Month, in.Year)
	switch {
	case err == nil:
		templateID = &tmpl.ID
		if in.Deadline.IsZero() {
			in.Deadline = tmpl.Deadline
		}
	case errors.Is(err, store.ErrTemplateNotFound):
		if in.Deadline.IsZero() {
			in.Deadline = domain.EndOfMonth(in.Month, in.Year, s.loc)
		}
	default:
		return nil, err
	}

	rec, settlement := domain.NewManualPaidRecord(in, treasurerID, s.now())
	rec.TemplateID = templateID
	settlement.Description = domain.SettlementDescription(rec.Month, rec.Year, member.Name)
	if err := s.repo.CreateSettledPaymentRecord(ctx, rec, settlement); err != nil {
		return nil, err
	}
	log.Printf("level=info component=service msg=\"manual payment recorded\" record_id=%s member_id=%s treasurer_id=%s amount=%d", rec.ID, member.ID, treasurerID, rec.Amount)
	s.publishSettlement(rec, domain.EventPaymentManualCreated)
	return rec, nil
}

// GetPaymentRecord returns a record reconciled against the clock. Members may only
// read their own records.
func (s *Service) GetPaymentRecord(ctx context.Context, recordID uuid.UUID, viewer Viewer) (*domain.PaymentRecord, error) {
	rec, err := s.repo.GetPaymentRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !viewer.Treasurer && rec.MemberID != viewer.ID {
		return nil, domain.ErrUnauthorized
	}
	return domain.Reconciled(rec, s.now()), nil
}

// ListMemberPayments is the member's own payment history, newest month first.
func (s *Service) ListMemberPayments(ctx context.Context, memberID uuid.UUID) ([]*domain.PaymentRecord, error) {
	records, err := s.repo.ListPaymentRecords(ctx, store.RecordFilter{MemberID: &memberID})
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]*domain.PaymentRecord, len(records))
	for i, rec := range records {
		out[i] = domain.Reconciled(rec, now)
	}
	return out, nil
}
