/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the treasury-service. Business logic depends on
 * the interface only; PostgreSQL backs it in production and an in-memory
 * implementation backs local runs without a database and the service tests.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrMemberNotFound        = fmt.Errorf("member %w", domain.ErrNotFound)
	ErrTemplateNotFound      = fmt.Errorf("monthly template %w", domain.ErrNotFound)
	ErrPaymentRecordNotFound = fmt.Errorf("payment record %w", domain.ErrNotFound)
	ErrTreasurerNoteNotFound = fmt.Errorf("treasurer note %w", domain.ErrNotFound)
	ErrWalletVersionConflict = errors.New("wallet was modified concurrently")
)

// PaymentMutation transforms a locked record. A returned settlement is credited to
// the wallet and the member's total in the same transaction; a returned error aborts
// everything.
type PaymentMutation func(rec *domain.PaymentRecord) (*domain.Settlement, error)

// NoteMutation derives a treasurer note from the locked record and its current note.
type NoteMutation func(rec *domain.PaymentRecord, existing *domain.TreasurerNote) (*domain.TreasurerNote, error)

// RecordFilter narrows ListPaymentRecords. Zero values do not filter.
type RecordFilter struct {
	MemberID   *uuid.UUID
	TemplateID *uuid.UUID
	Month      time.Month
	Year       int
	Statuses   []domain.PaymentStatus
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Member methods
	UpsertMember(ctx context.Context, m *domain.Member) error
	GetMember(ctx context.Context, id uuid.UUID) (*domain.Member, error)
	ListMembers(ctx context.Context) ([]domain.Member, error)

	// Monthly template methods
	CreateTemplate(ctx context.Context, t *domain.MonthlyTemplate) error
	GetTemplate(ctx context.Context, id uuid.UUID) (*domain.MonthlyTemplate, error)
	FindActiveTemplate(ctx context.Context, month time.Month, year int) (*domain.MonthlyTemplate, error)
	ListTemplates(ctx context.Context, year int) ([]domain.MonthlyTemplate, error)
	UpdateTemplate(ctx context.Context, t *domain.MonthlyTemplate) error

	// Payment record methods
	InsertPaymentRecords(ctx context.Context, records []*domain.PaymentRecord) (int, error)
	GetPaymentRecord(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error)
	ListPaymentRecords(ctx context.Context, filter RecordFilter) ([]*domain.PaymentRecord, error)
	ListReconciliationCandidates(ctx context.Context, now time.Time) ([]*domain.PaymentRecord, error)
	MutatePaymentRecord(ctx context.Context, id uuid.UUID, fn PaymentMutation) (*domain.PaymentRecord, error)
	CreateSettledPaymentRecord(ctx context.Context, rec *domain.PaymentRecord, settlement *domain.Settlement) error
	ReplaceMonthRecords(ctx context.Context, tmpl *domain.MonthlyTemplate, records []*domain.PaymentRecord) (int, error)

	// Treasurer note methods
	SaveTreasurerNote(ctx context.Context, recordID uuid.UUID, fn NoteMutation) (*domain.TreasurerNote, error)
	DeleteTreasurerNote(ctx context.Context, recordID uuid.UUID) error
	ListTreasurerNotes(ctx context.Context, month time.Month, year int) (map[uuid.UUID]domain.TreasurerNote, error)

	// Wallet methods
	GetOrCreateWallet(ctx context.Context) (*domain.Wallet, error)
	ApplyWalletEntry(ctx context.Context, entry domain.WalletEntry) (*domain.Wallet, *domain.WalletTransaction, error)
	ListWalletTransactions(ctx context.Context, limit, offset int) ([]domain.WalletTransaction, error)
	ListAllWalletTransactions(ctx context.Context) ([]domain.WalletTransaction, error)
}
