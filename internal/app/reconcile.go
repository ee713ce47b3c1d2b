package app

import (
	"context"
	"errors"
	"log"

	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/domain"
)

var errNoChange = errors.New("record already reconciled")

// SweepResult summarises one reconciliation run.
type SweepResult struct {
	Evaluated    int `json:"evaluated"`
	MarkedFailed int `json:"marked_failed"`
	Recovered    int `json:"recovered"`
	Errors       int `json:"errors"`
}

// RunReconciliationSweep persists the clock-driven corrections for every record
// whose stored status has gone stale. A failing record is logged and skipped.
func (s *Service) RunReconciliationSweep(ctx context.Context) (SweepResult, error) {
	now := s.now()
	candidates, err := s.repo.ListReconciliationCandidates(ctx, now)
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			log.Printf("level=warn component=reconciliation msg=\"sweep interrupted\" evaluated=%d err=%v", result.Evaluated, err)
			return result, err
		}
		result.Evaluated++

		var change domain.Reconciliation
		rec, err := s.repo.MutatePaymentRecord(ctx, candidate.ID, func(locked *domain.PaymentRecord) (*domain.Settlement, error) {
			c, ok := locked.Reconcile(now)
			if !ok {
				return nil, errNoChange
			}
			change = c
			return nil, nil
		})
		if errors.Is(err, errNoChange) {
			continue
		}
		if err != nil {
			result.Errors++
			log.Printf("level=error component=reconciliation msg=\"failed to reconcile record\" record_id=%s err=%v", candidate.ID, err)
			continue
		}

		if change.IsFailure() {
			result.MarkedFailed++
			s.publishEvent(domain.NewRecordEvent(domain.EventPaymentOverdue, rec, change.Reason, now))
		} else {
			result.Recovered++
		}
		log.Printf("level=info component=reconciliation msg=\"record reconciled\" record_id=%s from=%s to=%s", rec.ID, change.From, change.To)
	}

	log.Printf("level=info component=reconciliation msg=\"sweep finished\" evaluated=%d marked_failed=%d recovered=%d errors=%d",
		result.Evaluated, result.MarkedFailed, result.Recovered, result.Errors)
	return result, nil
}
