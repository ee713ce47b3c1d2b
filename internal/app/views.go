package app

import (
	"context"
	"errors"
	"time"

	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/domain"
	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/store"
)

// Statistics summarises the treasury across all months.
func (s *Service) Statistics(ctx context.Context) (domain.Statistics, error) {
	members, err := s.repo.ListMembers(ctx)
	if err != nil {
		return domain.Statistics{}, err
	}
	records, err := s.repo.ListPaymentRecords(ctx, store.RecordFilter{})
	if err != nil {
		return domain.Statistics{}, err
	}
	wallet, err := s.repo.GetOrCreateWallet(ctx)
	if err != nil {
		return domain.Statistics{}, err
	}
	return domain.BuildStatistics(members, records, wallet.Balance, s.now()), nil
}

// MonthRoster lists every active member's standing for one month.
func (s *Service) MonthRoster(ctx context.Context, month time.Month, year int) (domain.MonthRoster, error) {
	if err := domain.ValidatePeriod(month, year); err != nil {
		return domain.MonthRoster{}, err
	}
	var tmpl *domain.MonthlyTemplate
	found, err := s.repo.FindActiveTemplate(ctx, month, year)
	switch {
	case err == nil:
		tmpl = found
	case !errors.Is(err, store.ErrTemplateNotFound):
		return domain.MonthRoster{}, err
	}

	members, err := s.repo.ListMembers(ctx)
	if err != nil {
		return domain.MonthRoster{}, err
	}
	records, err := s.repo.ListPaymentRecords(ctx, store.RecordFilter{Month: month, Year: year})
	if err != nil {
		return domain.MonthRoster{}, err
	}
	notes, err := s.repo.ListTreasurerNotes(ctx, month, year)
	if err != nil {
		return domain.MonthRoster{}, err
	}
	return domain.BuildMonthRoster(month, year, tmpl, members, records, notes, s.now()), nil
}

// FailedPaymentsSummary groups failed payments by month, newest first.
func (s *Service) FailedPaymentsSummary(ctx context.Context) ([]domain.FailedMonthGroup, error) {
	members, err := s.repo.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	// Overdue records are still stored as pending until the sweep runs, so the
	// status filter cannot be pushed down.
	records, err := s.repo.ListPaymentRecords(ctx, store.RecordFilter{})
	if err != nil {
		return nil, err
	}
	return domain.BuildFailedSummary(members, records, s.now()), nil
}
