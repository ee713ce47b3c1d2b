package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/domain"
	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/store"
	"github.com/google/uuid"
)

// RecreateInput replaces a month's template and records. Confirm must be set.
type RecreateInput struct {
	Template domain.TemplateInput
	Confirm  bool
}

// SeedError reports a template that was stored but whose records were not seeded.
// The template stays active; SeedPaymentRecords can be run again for it.
type SeedError struct {
	TemplateID uuid.UUID
	Err        error
}

func (e *SeedError) Error() string {
	return fmt.Sprintf("template %s created but seeding failed: %v", e.TemplateID, e.Err)
}

func (e *SeedError) Unwrap() error { return e.Err }

// CreateMonthlyTemplate stores a new active template and seeds records for every
// active member it covers. A seeding failure returns the stored template together
// with a *SeedError.
func (s *Service) CreateMonthlyTemplate(ctx context.Context, actorID uuid.UUID, in domain.TemplateInput) (*domain.MonthlyTemplate, int, error) {
	if err := in.Validate(); err != nil {
		return nil, 0, err
	}
	tmpl := domain.NewMonthlyTemplate(in, actorID, s.now())
	if err := s.repo.CreateTemplate(ctx, tmpl); err != nil {
		return nil, 0, err
	}
	log.Printf("level=info component=service msg=\"monthly template created\" template_id=%s month=%s year=%d", tmpl.ID, tmpl.Month, tmpl.Year)

	s.publishEvent(domain.TreasuryEvent{
		EventID:    uuid.New(),
		EventType:  domain.EventTemplateCreated,
		Month:      tmpl.Month,
		Year:       tmpl.Year,
		OccurredAt: s.now(),
	})

	seeded, err := s.SeedPaymentRecords(ctx, tmpl.ID)
	if err != nil {
		log.Printf("level=error component=service msg=\"seeding failed after template create\" template_id=%s err=%v", tmpl.ID, err)
		return tmpl, 0, &SeedError{TemplateID: tmpl.ID, Err: err}
	}
	return tmpl, seeded, nil
}

// SeedPaymentRecords creates the missing pending records for an active template.
// Running it again creates nothing new.
func (s *Service) SeedPaymentRecords(ctx context.Context, templateID uuid.UUID) (int, error) {
	tmpl, err := s.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return 0, err
	}
	if tmpl.Status != domain.TemplateActive {
		return 0, fmt.Errorf("%w: template is %s", domain.ErrInvalidStateTransition, tmpl.Status)
	}

	members, err := s.repo.ListMembers(ctx)
	if err != nil {
		return 0, err
	}
	existing, err := s.repo.ListPaymentRecords(ctx, store.RecordFilter{Month: tmpl.Month, Year: tmpl.Year})
	if err != nil {
		return 0, err
	}
	records := seedRecords(tmpl, members, existing, s.now())

	inserted, err := s.repo.InsertPaymentRecords(ctx, records)
	if err != nil {
		return inserted, err
	}
	log.Printf("level=info component=service msg=\"payment records seeded\" template_id=%s candidates=%d inserted=%d", tmpl.ID, len(records), inserted)
	return inserted, nil
}

func seedRecords(tmpl *domain.MonthlyTemplate, members []domain.Member, existing []*domain.PaymentRecord, now time.Time) []*domain.PaymentRecord {
	has := make(map[uuid.UUID]bool, len(existing))
	for _, rec := range existing {
		has[rec.MemberID] = true
	}
	var records []*domain.PaymentRecord
	for _, m := range members {
		if has[m.ID] || !tmpl.Owes(m) {
			continue
		}
		records = append(records, domain.NewSeededRecord(m, tmpl, now))
	}
	return records
}

// UpdateMonthlyTemplate edits an active template. Existing records change only when
// ApplyToPending is set, and then only untouched pending ones or ones failed by the
// old deadline. It returns how many records were rewritten.
func (s *Service) UpdateMonthlyTemplate(ctx context.Context, actorID, templateID uuid.UUID, update domain.TemplateUpdate) (*domain.MonthlyTemplate, int, error) {
	tmpl, err := s.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	if err := tmpl.Apply(update, now); err != nil {
		return nil, 0, err
	}
	if err := s.repo.UpdateTemplate(ctx, tmpl); err != nil {
		return nil, 0, err
	}
	if !update.ApplyToPending {
		return tmpl, 0, nil
	}

	members, err := s.repo.ListMembers(ctx)
	if err != nil {
		return tmpl, 0, err
	}
	tiers := make(map[uuid.UUID]domain.YearTier, len(members))
	for _, m := range members {
		tiers[m.ID] = m.Year
	}
	records, err := s.repo.ListPaymentRecords(ctx, store.RecordFilter{
		TemplateID: &tmpl.ID,
		Statuses:   []domain.PaymentStatus{domain.StatusPending, domain.StatusFailed},
	})
	if err != nil {
		return tmpl, 0, err
	}

	updated := 0
	for _, rec := range records {
		tier := tiers[rec.MemberID]
		if !tmpl.RetargetPending(rec.Clone(), tier, actorID, now) {
			continue
		}
		_, err := s.repo.MutatePaymentRecord(ctx, rec.ID, func(locked *domain.PaymentRecord) (*domain.Settlement, error) {
			if !tmpl.RetargetPending(locked, tier, actorID, now) {
				return nil, errNoChange
			}
			locked.Reconcile(now)
			return nil, nil
		})
		if errors.Is(err, errNoChange) {
			continue
		}
		if err != nil {
			log.Printf("level=warn component=service msg=\"failed to apply template update to record\" record_id=%s err=%v", rec.ID, err)
			continue
		}
		updated++
	}
	log.Printf("level=info component=service msg=\"template update applied to pending records\" template_id=%s updated=%d", tmpl.ID, updated)
	return tmpl, updated, nil
}

// SetMonthlyTemplateStatus closes an active template as completed or cancelled.
func (s *Service) SetMonthlyTemplateStatus(ctx context.Context, templateID uuid.UUID, status domain.TemplateStatus) (*domain.MonthlyTemplate, error) {
	tmpl, err := s.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if err := tmpl.SetStatus(status, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateTemplate(ctx, tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// RecreateMonthlyRecords discards a month's records and template and starts over.
// It refuses once any record of the month is paid.
func (s *Service) RecreateMonthlyRecords(ctx context.Context, actorID uuid.UUID, in RecreateInput) (*domain.MonthlyTemplate, int, error) {
	if !in.Confirm {
		return nil, 0, domain.NewValidationError("confirm", "confirmation required to recreate monthly records")
	}
	if err := in.Template.Validate(); err != nil {
		return nil, 0, err
	}
	members, err := s.repo.ListMembers(ctx)
	if err != nil {
		return nil, 0, err
	}

	now := s.now()
	tmpl := domain.NewMonthlyTemplate(in.Template, actorID, now)
	records := seedRecords(tmpl, members, nil, now)

	inserted, err := s.repo.ReplaceMonthRecords(ctx, tmpl, records)
	if err != nil {
		return nil, 0, err
	}
	log.Printf("level=warn component=service msg=\"monthly records recreated\" template_id=%s month=%s year=%d inserted=%d actor_id=%s", tmpl.ID, tmpl.Month, tmpl.Year, inserted, actorID)
	return tmpl, inserted, nil
}

func (s *Service) GetMonthlyTemplate(ctx context.Context, templateID uuid.UUID) (*domain.MonthlyTemplate, error) {
	return s.repo.GetTemplate(ctx, templateID)
}

func (s *Service) ListMonthlyTemplates(ctx context.Context, year int) ([]domain.MonthlyTemplate, error) {
	return s.repo.ListTemplates(ctx, year)
}
