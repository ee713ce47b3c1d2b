package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/domain"
	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/store"
	"github.com/google/uuid"
)

const (
	defaultTransactionPageSize = 50
	maxTransactionPageSize     = 200
)

func (s *Service) GetWallet(ctx context.Context) (*domain.Wallet, error) {
	return s.repo.GetOrCreateWallet(ctx)
}

// AddMoney credits the club wallet outside of dues, e.g. a sponsorship.
func (s *Service) AddMoney(ctx context.Context, actorID uuid.UUID, amount int64, description string) (*domain.Wallet, *domain.WalletTransaction, error) {
	return s.applyWalletEntry(ctx, domain.WalletEntry{
		Type:        domain.WalletCredit,
		Amount:      amount,
		Description: description,
		ActorID:     actorID,
	}, domain.EventWalletCredited)
}

// RemoveMoney debits the club wallet. It fails with domain.ErrInsufficientBalance
// rather than going below zero.
func (s *Service) RemoveMoney(ctx context.Context, actorID uuid.UUID, amount int64, description string) (*domain.Wallet, *domain.WalletTransaction, error) {
	return s.applyWalletEntry(ctx, domain.WalletEntry{
		Type:        domain.WalletDebit,
		Amount:      amount,
		Description: description,
		ActorID:     actorID,
	}, domain.EventWalletDebited)
}

// applyWalletEntry retries the whole read-apply-write unit when another writer
// moved the wallet version underneath it.
func (s *Service) applyWalletEntry(ctx context.Context, entry domain.WalletEntry, eventType string) (*domain.Wallet, *domain.WalletTransaction, error) {
	if err := entry.Validate(); err != nil {
		return nil, nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.walletMaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		wallet, row, err := s.repo.ApplyWalletEntry(ctx, entry)
		if err == nil {
			log.Printf("level=info component=service msg=\"wallet updated\" type=%s amount=%d balance=%d actor_id=%s attempt=%d", row.Type, row.Amount, wallet.Balance, entry.ActorID, attempt)
			s.publishEvent(domain.TreasuryEvent{
				EventID:    uuid.New(),
				EventType:  eventType,
				Amount:     row.Amount,
				Reason:     row.Description,
				OccurredAt: s.now(),
			})
			return wallet, row, nil
		}
		if !errors.Is(err, store.ErrWalletVersionConflict) {
			return nil, nil, err
		}
		lastErr = err
		log.Printf("level=warn component=service msg=\"wallet version conflict; retrying\" attempt=%d max_attempts=%d", attempt, s.walletMaxRetries)
	}
	return nil, nil, fmt.Errorf("wallet update gave up after %d attempts: %w", s.walletMaxRetries, lastErr)
}

// ListWalletTransactions pages the ledger newest first.
func (s *Service) ListWalletTransactions(ctx context.Context, limit, offset int) ([]domain.WalletTransaction, error) {
	if limit <= 0 {
		limit = defaultTransactionPageSize
	}
	if limit > maxTransactionPageSize {
		limit = maxTransactionPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListWalletTransactions(ctx, limit, offset)
}

// AuditWallet replays the full ledger against the stored balance.
func (s *Service) AuditWallet(ctx context.Context) (domain.LedgerAudit, error) {
	wallet, err := s.repo.GetOrCreateWallet(ctx)
	if err != nil {
		return domain.LedgerAudit{}, err
	}
	txs, err := s.repo.ListAllWalletTransactions(ctx)
	if err != nil {
		return domain.LedgerAudit{}, err
	}
	audit := domain.ReplayLedger(txs, wallet.Balance)
	if !audit.Consistent {
		log.Printf("level=error component=service msg=\"wallet ledger inconsistent\" balance=%d replayed=%d problems=%d", audit.Balance, audit.Replayed, len(audit.Problems))
	}
	return audit, nil
}
