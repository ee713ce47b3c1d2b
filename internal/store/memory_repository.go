package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/domain"
	"github.com/google/uuid"
)

type periodKey struct {
	memberID uuid.UUID
	month    time.Month
	year     int
}

// MemoryRepository keeps everything in process memory behind one mutex. Every
// operation works on copies and commits only when it succeeds, matching the
// transactional behaviour of PostgresRepository.
type MemoryRepository struct {
	mu        sync.Mutex
	now       func() time.Time
	members   map[uuid.UUID]domain.Member
	templates map[uuid.UUID]*domain.MonthlyTemplate
	records   map[uuid.UUID]*domain.PaymentRecord
	byPeriod  map[periodKey]uuid.UUID
	notes     map[uuid.UUID]domain.TreasurerNote
	wallet    *domain.Wallet
	walletTxs []domain.WalletTransaction
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		now:       func() time.Time { return time.Now().UTC() },
		members:   make(map[uuid.UUID]domain.Member),
		templates: make(map[uuid.UUID]*domain.MonthlyTemplate),
		records:   make(map[uuid.UUID]*domain.PaymentRecord),
		byPeriod:  make(map[periodKey]uuid.UUID),
		notes:     make(map[uuid.UUID]domain.TreasurerNote),
	}
}

// SetClock overrides the timestamp source used for ledger rows.
func (r *MemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryRepository) UpsertMember(_ context.Context, m *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	next := *m
	if existing, ok := r.members[m.ID]; ok {
		next.TotalPaid = existing.TotalPaid
		next.CreatedAt = existing.CreatedAt
	} else {
		next.TotalPaid = 0
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	r.members[m.ID] = next
	return nil
}

func (r *MemoryRepository) GetMember(_ context.Context, id uuid.UUID) (*domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return nil, ErrMemberNotFound
	}
	return &m, nil
}

func (r *MemoryRepository) ListMembers(_ context.Context) ([]domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *MemoryRepository) CreateTemplate(_ context.Context, t *domain.MonthlyTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertTemplateLocked(t)
}

func (r *MemoryRepository) insertTemplateLocked(t *domain.MonthlyTemplate) error {
	if t.Status == domain.TemplateActive && r.activeTemplateLocked(t.Month, t.Year, t.ID) != nil {
		return domain.ErrDuplicateActiveTemplate
	}
	r.templates[t.ID] = cloneTemplate(t)
	return nil
}

func (r *MemoryRepository) activeTemplateLocked(month time.Month, year int, except uuid.UUID) *domain.MonthlyTemplate {
	for id, t := range r.templates {
		if id != except && t.Month == month && t.Year == year && t.Status == domain.TemplateActive {
			return t
		}
	}
	return nil
}

func (r *MemoryRepository) GetTemplate(_ context.Context, id uuid.UUID) (*domain.MonthlyTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return cloneTemplate(t), nil
}

func (r *MemoryRepository) FindActiveTemplate(_ context.Context, month time.Month, year int) (*domain.MonthlyTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.activeTemplateLocked(month, year, uuid.Nil)
	if t == nil {
		return nil, ErrTemplateNotFound
	}
	return cloneTemplate(t), nil
}

func (r *MemoryRepository) ListTemplates(_ context.Context, year int) ([]domain.MonthlyTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.MonthlyTemplate
	for _, t := range r.templates {
		if year > 0 && t.Year != year {
			continue
		}
		out = append(out, *cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		if out[i].Month != out[j].Month {
			return out[i].Month > out[j].Month
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) UpdateTemplate(_ context.Context, t *domain.MonthlyTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[t.ID]; !ok {
		return ErrTemplateNotFound
	}
	if t.Status == domain.TemplateActive && r.activeTemplateLocked(t.Month, t.Year, t.ID) != nil {
		return domain.ErrDuplicateActiveTemplate
	}
	r.templates[t.ID] = cloneTemplate(t)
	return nil
}

func (r *MemoryRepository) InsertPaymentRecords(_ context.Context, records []*domain.PaymentRecord) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inserted := 0
	for _, rec := range records {
		if _, exists := r.byPeriod[recordKey(rec)]; exists {
			continue
		}
		if err := r.insertRecordLocked(rec); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func (r *MemoryRepository) insertRecordLocked(rec *domain.PaymentRecord) error {
	if _, ok := r.members[rec.MemberID]; !ok {
		return ErrMemberNotFound
	}
	key := recordKey(rec)
	if _, exists := r.byPeriod[key]; exists {
		return domain.ErrDuplicateRecord
	}
	r.records[rec.ID] = rec.Clone()
	r.byPeriod[key] = rec.ID
	return nil
}

func (r *MemoryRepository) GetPaymentRecord(_ context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrPaymentRecordNotFound
	}
	return rec.Clone(), nil
}

func (r *MemoryRepository) ListPaymentRecords(_ context.Context, filter RecordFilter) ([]*domain.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PaymentRecord
	for _, rec := range r.records {
		if filter.MemberID != nil && rec.MemberID != *filter.MemberID {
			continue
		}
		if filter.TemplateID != nil && (rec.TemplateID == nil || *rec.TemplateID != *filter.TemplateID) {
			continue
		}
		if filter.Month != 0 && rec.Month != filter.Month {
			continue
		}
		if filter.Year != 0 && rec.Year != filter.Year {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, rec.Status) {
			continue
		}
		out = append(out, rec.Clone())
	}
	sortRecords(out)
	return out, nil
}

func (r *MemoryRepository) ListReconciliationCandidates(_ context.Context, now time.Time) ([]*domain.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PaymentRecord
	for _, rec := range r.records {
		if _, ok := domain.ReconcileRecord(rec, now); ok {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out, nil
}

func (r *MemoryRepository) MutatePaymentRecord(_ context.Context, id uuid.UUID, fn PaymentMutation) (*domain.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.records[id]
	if !ok {
		return nil, ErrPaymentRecordNotFound
	}

	working := stored.Clone()
	settlement, err := fn(working)
	if err != nil {
		return nil, err
	}

	var member domain.Member
	var wallet *domain.Wallet
	var row *domain.WalletTransaction
	if settlement != nil {
		member, wallet, row, err = r.prepareSettlementLocked(settlement)
		if err != nil {
			return nil, err
		}
	}

	working.Version++
	r.records[id] = working.Clone()
	if settlement != nil {
		r.commitSettlementLocked(member, wallet, row)
	}
	return working, nil
}

func (r *MemoryRepository) CreateSettledPaymentRecord(_ context.Context, rec *domain.PaymentRecord, settlement *domain.Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[rec.MemberID]; !ok {
		return ErrMemberNotFound
	}
	if _, exists := r.byPeriod[recordKey(rec)]; exists {
		return domain.ErrDuplicateRecord
	}
	member, wallet, row, err := r.prepareSettlementLocked(settlement)
	if err != nil {
		return err
	}
	if err := r.insertRecordLocked(rec); err != nil {
		return err
	}
	r.commitSettlementLocked(member, wallet, row)
	return nil
}

func (r *MemoryRepository) ReplaceMonthRecords(_ context.Context, tmpl *domain.MonthlyTemplate, records []*domain.PaymentRecord) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var doomed []uuid.UUID
	paid := 0
	for id, rec := range r.records {
		if rec.Month != tmpl.Month || rec.Year != tmpl.Year {
			continue
		}
		if rec.Status == domain.StatusPaid {
			paid++
		}
		doomed = append(doomed, id)
	}
	if paid > 0 {
		return 0, fmt.Errorf("%w: %d verified payments exist for %s %d", domain.ErrInvalidStateTransition, paid, tmpl.Month, tmpl.Year)
	}
	for _, rec := range records {
		if _, ok := r.members[rec.MemberID]; !ok {
			return 0, ErrMemberNotFound
		}
	}

	now := r.now()
	for _, id := range doomed {
		delete(r.byPeriod, recordKey(r.records[id]))
		delete(r.records, id)
		delete(r.notes, id)
	}
	for _, t := range r.templates {
		if t.Month == tmpl.Month && t.Year == tmpl.Year && t.Status == domain.TemplateActive {
			t.Status = domain.TemplateCancelled
			t.UpdatedAt = now
		}
	}
	r.templates[tmpl.ID] = cloneTemplate(tmpl)

	inserted := 0
	for _, rec := range records {
		if err := r.insertRecordLocked(rec); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func (r *MemoryRepository) SaveTreasurerNote(_ context.Context, recordID uuid.UUID, fn NoteMutation) (*domain.TreasurerNote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[recordID]
	if !ok {
		return nil, ErrPaymentRecordNotFound
	}
	var existing *domain.TreasurerNote
	if n, ok := r.notes[recordID]; ok {
		existing = &n
	}
	next, err := fn(rec.Clone(), existing)
	if err != nil {
		return nil, err
	}
	r.notes[recordID] = *next
	return next, nil
}

func (r *MemoryRepository) DeleteTreasurerNote(_ context.Context, recordID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.notes[recordID]; !ok {
		return ErrTreasurerNoteNotFound
	}
	delete(r.notes, recordID)
	return nil
}

func (r *MemoryRepository) ListTreasurerNotes(_ context.Context, month time.Month, year int) (map[uuid.UUID]domain.TreasurerNote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uuid.UUID]domain.TreasurerNote)
	for id, note := range r.notes {
		rec, ok := r.records[id]
		if ok && rec.Month == month && rec.Year == year {
			out[id] = note
		}
	}
	return out, nil
}

func (r *MemoryRepository) GetOrCreateWallet(_ context.Context) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := *r.walletLocked()
	return &w, nil
}

func (r *MemoryRepository) ApplyWalletEntry(_ context.Context, entry domain.WalletEntry) (*domain.Wallet, *domain.WalletTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := *r.walletLocked()
	row, err := next.Apply(entry, r.now())
	if err != nil {
		return nil, nil, err
	}
	r.wallet = &next
	r.walletTxs = append(r.walletTxs, *row)
	w := next
	return &w, row, nil
}

func (r *MemoryRepository) ListWalletTransactions(_ context.Context, limit, offset int) ([]domain.WalletTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || offset < 0 {
		return []domain.WalletTransaction{}, nil
	}
	out := make([]domain.WalletTransaction, 0, limit)
	for i := len(r.walletTxs) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.walletTxs[i])
	}
	return out, nil
}

func (r *MemoryRepository) ListAllWalletTransactions(_ context.Context) ([]domain.WalletTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.WalletTransaction, len(r.walletTxs))
	copy(out, r.walletTxs)
	return out, nil
}

func (r *MemoryRepository) walletLocked() *domain.Wallet {
	if r.wallet == nil {
		now := r.now()
		r.wallet = &domain.Wallet{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
	}
	return r.wallet
}

// prepareSettlementLocked computes the member and wallet state a settlement leads
// to without committing it.
func (r *MemoryRepository) prepareSettlementLocked(s *domain.Settlement) (domain.Member, *domain.Wallet, *domain.WalletTransaction, error) {
	member, ok := r.members[s.MemberID]
	if !ok {
		return domain.Member{}, nil, nil, ErrMemberNotFound
	}
	for _, tx := range r.walletTxs {
		if tx.Type == domain.WalletCredit && tx.PaymentRecordID != nil && *tx.PaymentRecordID == s.RecordID {
			return domain.Member{}, nil, nil, domain.ErrAlreadyVerified
		}
	}
	wallet := *r.walletLocked()
	row, err := wallet.Apply(domain.CreditEntry(s), r.now())
	if err != nil {
		return domain.Member{}, nil, nil, err
	}
	member.TotalPaid += s.Amount
	member.UpdatedAt = r.now()
	return member, &wallet, row, nil
}

func (r *MemoryRepository) commitSettlementLocked(member domain.Member, wallet *domain.Wallet, row *domain.WalletTransaction) {
	r.members[member.ID] = member
	r.wallet = wallet
	r.walletTxs = append(r.walletTxs, *row)
}

func recordKey(rec *domain.PaymentRecord) periodKey {
	return periodKey{memberID: rec.MemberID, month: rec.Month, year: rec.Year}
}

func containsStatus(statuses []domain.PaymentStatus, s domain.PaymentStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func sortRecords(records []*domain.PaymentRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		if a.Month != b.Month {
			return a.Month > b.Month
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

func cloneTemplate(t *domain.MonthlyTemplate) *domain.MonthlyTemplate {
	c := *t
	c.Amounts = make(map[domain.YearTier]int64, len(t.Amounts))
	for tier, amount := range t.Amounts {
		c.Amounts[tier] = amount
	}
	c.IncludedYears = append([]domain.YearTier(nil), t.IncludedYears...)
	return &c
}
