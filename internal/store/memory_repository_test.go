package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/domain"
	"github.com/google/uuid"
)

var (
	storeNow      = time.Date(2025, time.March, 2, 9, 0, 0, 0, time.UTC)
	storeDeadline = time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC)
)

func seedMember(t *testing.T, repo *MemoryRepository, name string, year domain.YearTier) domain.Member {
	t.Helper()
	m := domain.Member{ID: uuid.New(), Name: name, Year: year, Role: domain.RoleMember, Active: true}
	if err := repo.UpsertMember(context.Background(), &m); err != nil {
		t.Fatalf("UpsertMember returned error: %v", err)
	}
	return m
}

func seedTemplate(t *testing.T, repo *MemoryRepository) *domain.MonthlyTemplate {
	t.Helper()
	tmpl := domain.NewMonthlyTemplate(domain.TemplateInput{
		Month:         time.March,
		Year:          2025,
		Amounts:       map[domain.YearTier]int64{domain.YearFirst: 5000, domain.YearSecond: 10000},
		IncludedYears: []domain.YearTier{domain.YearFirst, domain.YearSecond},
		Deadline:      storeDeadline,
	}, uuid.New(), storeNow)
	if err := repo.CreateTemplate(context.Background(), tmpl); err != nil {
		t.Fatalf("CreateTemplate returned error: %v", err)
	}
	return tmpl
}

func TestMemoryRepository_DuplicateActiveTemplate(t *testing.T) {
	repo := NewMemoryRepository()
	first := seedTemplate(t, repo)

	dup := *first
	dup.ID = uuid.New()
	if err := repo.CreateTemplate(context.Background(), &dup); !errors.Is(err, domain.ErrDuplicateActiveTemplate) {
		t.Fatalf("expected ErrDuplicateActiveTemplate, got %v", err)
	}

	first.Status = domain.TemplateCancelled
	if err := repo.UpdateTemplate(context.Background(), first); err != nil {
		t.Fatalf("UpdateTemplate returned error: %v", err)
	}
	if err := repo.CreateTemplate(context.Background(), &dup); err != nil {
		t.Fatalf("expected new active template after cancelling, got %v", err)
	}
}

func TestMemoryRepository_InsertPaymentRecordsSkipsExisting(t *testing.T) {
	repo := NewMemoryRepository()
	m := seedMember(t, repo, "Asha", domain.YearFirst)
	tmpl := seedTemplate(t, repo)

	first := domain.NewSeededRecord(m, tmpl, storeNow)
	n, err := repo.InsertPaymentRecords(context.Background(), []*domain.PaymentRecord{first})
	if err != nil || n != 1 {
		t.Fatalf("expected 1 insert, got %d (err=%v)", n, err)
	}

	again := domain.NewSeededRecord(m, tmpl, storeNow)
	n, err = repo.InsertPaymentRecords(context.Background(), []*domain.PaymentRecord{again})
	if err != nil || n != 0 {
		t.Fatalf("expected duplicate to be skipped, got %d (err=%v)", n, err)
	}
}

func TestMemoryRepository_MutateRollsBackOnError(t *testing.T) {
	repo := NewMemoryRepository()
	m := seedMember(t, repo, "Asha", domain.YearFirst)
	tmpl := seedTemplate(t, repo)
	rec := domain.NewSeededRecord(m, tmpl, storeNow)
	if _, err := repo.InsertPaymentRecords(context.Background(), []*domain.PaymentRecord{rec}); err != nil {
		t.Fatalf("InsertPaymentRecords returned error: %v", err)
	}

	boom := errors.New("boom")
	_, err := repo.MutatePaymentRecord(context.Background(), rec.ID, func(r *domain.PaymentRecord) (*domain.Settlement, error) {
		r.Status = domain.StatusPaid
		r.Amount = 1
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	stored, _ := repo.GetPaymentRecord(context.Background(), rec.ID)
	if stored.Status != domain.StatusPending || stored.Amount != 5000 {
		t.Fatalf("expected record untouched, got %s/%d", stored.Status, stored.Amount)
	}
}

func TestMemoryRepository_SettlementCreditsOnce(t *testing.T) {
	repo := NewMemoryRepository()
	m := seedMember(t, repo, "Asha", domain.YearFirst)
	tmpl := seedTemplate(t, repo)
	rec := domain.NewSeededRecord(m, tmpl, storeNow)
	if _, err := repo.InsertPaymentRecords(context.Background(), []*domain.PaymentRecord{rec}); err != nil {
		t.Fatalf("InsertPaymentRecords returned error: %v", err)
	}

	settle := func(r *domain.PaymentRecord) (*domain.Settlement, error) {
		return &domain.Settlement{RecordID: r.ID, MemberID: r.MemberID, ActorID: uuid.New(), Amount: r.Amount, Description: "dues"}, nil
	}
	if _, err := repo.MutatePaymentRecord(context.Background(), rec.ID, settle); err != nil {
		t.Fatalf("first settlement returned error: %v", err)
	}
	if _, err := repo.MutatePaymentRecord(context.Background(), rec.ID, settle); !errors.Is(err, domain.ErrAlreadyVerified) {
		t.Fatalf("expected second settlement to be refused, got %v", err)
	}

	w, _ := repo.GetOrCreateWallet(context.Background())
	if w.Balance != 5000 {
		t.Fatalf("expected balance 5000, got %d", w.Balance)
	}
	member, _ := repo.GetMember(context.Background(), m.ID)
	if member.TotalPaid != 5000 {
		t.Fatalf("expected total paid 5000, got %d", member.TotalPaid)
	}
}

func TestMemoryRepository_UpsertMemberKeepsTotalPaid(t *testing.T) {
	repo := NewMemoryRepository()
	m := seedMember(t, repo, "Asha", domain.YearFirst)
	rec, settlement := domain.NewManualPaidRecord(domain.ManualPayment{
		MemberID: m.ID, Month: time.January, Year: 2025, Amount: 3000, Deadline: storeDeadline,
	}, uuid.New(), storeNow)
	settlement.Description = "manual"
	if err := repo.CreateSettledPaymentRecord(context.Background(), rec, settlement); err != nil {
		t.Fatalf("CreateSettledPaymentRecord returned error: %v", err)
	}

	update := m
	update.Name = "Asha K"
	update.TotalPaid = 0
	if err := repo.UpsertMember(context.Background(), &update); err != nil {
		t.Fatalf("UpsertMember returned error: %v", err)
	}
	got, _ := repo.GetMember(context.Background(), m.ID)
	if got.Name != "Asha K" || got.TotalPaid != 3000 {
		t.Fatalf("expected renamed member with total 3000, got %q/%d", got.Name, got.TotalPaid)
	}
}

func TestMemoryRepository_ReplaceMonthRecordsRefusesPaidMonth(t *testing.T) {
	repo := NewMemoryRepository()
	m := seedMember(t, repo, "Asha", domain.YearFirst)
	old := seedTemplate(t, repo)
	rec, settlement := domain.NewManualPaidRecord(domain.ManualPayment{
		MemberID: m.ID, Month: time.March, Year: 2025, Amount: 5000, Deadline: storeDeadline,
	}, uuid.New(), storeNow)
	settlement.Description = "manual"
	if err := repo.CreateSettledPaymentRecord(context.Background(), rec, settlement); err != nil {
		t.Fatalf("CreateSettledPaymentRecord returned error: %v", err)
	}

	replacement := domain.NewMonthlyTemplate(domain.TemplateInput{
		Month: time.March, Year: 2025,
		Amounts:       map[domain.YearTier]int64{domain.YearFirst: 6000},
		IncludedYears: []domain.YearTier{domain.YearFirst},
		Deadline:      storeDeadline,
	}, uuid.New(), storeNow)
	_, err := repo.ReplaceMonthRecords(context.Background(), replacement, nil)
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
	still, _ := repo.GetTemplate(context.Background(), old.ID)
	if still.Status != domain.TemplateActive {
		t.Fatalf("expected original template to stay active, got %s", still.Status)
	}
}

func TestMemoryRepository_ConcurrentWalletEntries(t *testing.T) {
	repo := NewMemoryRepository()
	actor := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.ApplyWalletEntry(context.Background(), domain.WalletEntry{
				Type: domain.WalletCredit, Amount: 10, Description: "donation", ActorID: actor,
			})
			if err != nil {
				t.Errorf("ApplyWalletEntry returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	w, _ := repo.GetOrCreateWallet(context.Background())
	if w.Balance != 500 {
		t.Fatalf("expected balance 500, got %d", w.Balance)
	}
	txs, _ := repo.ListAllWalletTransactions(context.Background())
	audit := domain.ReplayLedger(txs, w.Balance)
	if !audit.Consistent {
		t.Fatalf("expected consistent ledger, problems: %v", audit.Problems)
	}

	page, _ := repo.ListWalletTransactions(context.Background(), 5, 0)
	if len(page) != 5 || page[0].NewBalance != 500 {
		t.Fatalf("expected newest-first page of 5, got %d entries", len(page))
	}
}
