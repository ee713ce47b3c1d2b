package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type WalletTxType string

const (
	WalletCredit WalletTxType = "credit"
	WalletDebit  WalletTxType = "debit"
)

// Wallet is the club's single treasury balance. Version increments on every
// applied entry and guards concurrent writers.
type Wallet struct {
	ID        uuid.UUID `json:"id"`
	Balance   int64     `json:"balance"` // in paise
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WalletTransaction is an append-only ledger row. Each row carries the balance
// before and after it so it can be audited on its own.
type WalletTransaction struct {
	ID              uuid.UUID    `json:"id"`
	WalletID        uuid.UUID    `json:"wallet_id"`
	Type            WalletTxType `json:"type"`
	Amount          int64        `json:"amount"`
	Description     string       `json:"description"`
	ActorID         uuid.UUID    `json:"actor_id"`
	PaymentRecordID *uuid.UUID   `json:"payment_record_id,omitempty"`
	PreviousBalance int64        `json:"previous_balance"`
	NewBalance      int64        `json:"new_balance"`
	CreatedAt       time.Time    `json:"created_at"`
}

// WalletEntry is a requested ledger movement.
type WalletEntry struct {
	Type            WalletTxType
	Amount          int64
	Description     string
	ActorID         uuid.UUID
	PaymentRecordID *uuid.UUID
}

func (e WalletEntry) Validate() error {
	switch e.Type {
	case WalletCredit:
		if e.Amount < 0 {
			return NewValidationError("amount", "amount must not be negative")
		}
	case WalletDebit:
		if e.Amount <= 0 {
			return NewValidationError("amount", "amount must be greater than zero")
		}
	default:
		return NewValidationError("type", "unknown wallet entry type")
	}
	if strings.TrimSpace(e.Description) == "" {
		return NewValidationError("description", "description is required")
	}
	return nil
}

// CreditEntry turns a settlement into the wallet credit it owes.
func CreditEntry(s *Settlement) WalletEntry {
	recordID := s.RecordID
	return WalletEntry{
		Type:            WalletCredit,
		Amount:          s.Amount,
		Description:     s.Description,
		ActorID:         s.ActorID,
		PaymentRecordID: &recordID,
	}
}

// Apply moves the balance and returns the ledger row. The wallet is unchanged on error.
func (w *Wallet) Apply(e WalletEntry, now time.Time) (*WalletTransaction, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	next := w.Balance
	switch e.Type {
	case WalletCredit:
		next += e.Amount
	case WalletDebit:
		if e.Amount > w.Balance {
			return nil, ErrInsufficientBalance
		}
		next -= e.Amount
	}

	tx := &WalletTransaction{
		ID:              uuid.New(),
		WalletID:        w.ID,
		Type:            e.Type,
		Amount:          e.Amount,
		Description:     strings.TrimSpace(e.Description),
		ActorID:         e.ActorID,
		PaymentRecordID: e.PaymentRecordID,
		PreviousBalance: w.Balance,
		NewBalance:      next,
		CreatedAt:       now,
	}
	w.Balance = next
	w.Version++
	w.UpdatedAt = now
	return tx, nil
}

// LedgerAudit is the result of replaying the ledger from zero.
type LedgerAudit struct {
	Balance    int64    `json:"balance"`
	Replayed   int64    `json:"replayed_balance"`
	Credits    int64    `json:"total_credits"`
	Debits     int64    `json:"total_debits"`
	Entries    int      `json:"entries"`
	Consistent bool     `json:"consistent"`
	Problems   []string `json:"problems,omitempty"`
}

// ReplayLedger checks that txs, oldest first, chain from zero to balance.
func ReplayLedger(txs []WalletTransaction, balance int64) LedgerAudit {
	audit := LedgerAudit{Balance: balance, Entries: len(txs)}
	var running int64
	for _, tx := range txs {
		if tx.PreviousBalance != running {
			audit.Problems = append(audit.Problems, fmt.Sprintf("transaction %s: previous balance %d, expected %d", tx.ID, tx.PreviousBalance, running))
		}
		switch tx.Type {
		case WalletCredit:
			audit.Credits += tx.Amount
			running += tx.Amount
		case WalletDebit:
			audit.Debits += tx.Amount
			running -= tx.Amount
		default:
			audit.Problems = append(audit.Problems, fmt.Sprintf("transaction %s: unknown type %q", tx.ID, tx.Type))
		}
		if tx.NewBalance != running {
			audit.Problems = append(audit.Problems, fmt.Sprintf("transaction %s: new balance %d, expected %d", tx.ID, tx.NewBalance, running))
			running = tx.NewBalance
		}
		if running < 0 {
			audit.Problems = append(audit.Problems, fmt.Sprintf("transaction %s: balance went negative", tx.ID))
		}
	}
	audit.Replayed = audit.Credits - audit.Debits
	if audit.Replayed != balance {
		audit.Problems = append(audit.Problems, fmt.Sprintf("stored balance %d does not match replayed %d", balance, audit.Replayed))
	}
	audit.Consistent = len(audit.Problems) == 0
	return audit
}
