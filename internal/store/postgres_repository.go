/**
 * @description
 * This file provides the PostgreSQL implementation of the Repository interface.
 * All money-moving operations run inside a single database transaction: the
 * payment record is locked with `SELECT ... FOR UPDATE`, transformed, persisted,
 * and the wallet credit and member total are written before COMMIT.
 *
 * @dependencies
 * - context, encoding/json, errors, fmt, strings, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver and toolkit for Go.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	memberColumns   = `id, name, email, year, role, total_paid, active, created_at, updated_at`
	templateColumns = `id, month, year, status, amounts, included_years, deadline, created_by, created_at, updated_at`
	recordColumns   = `id, member_id, month, year, academic_year, amount, status, deadline,
		member_confirmed_payment, member_confirmed_at, payment_proof, payment_date, payment_method,
		transaction_ref, verified_by, verified_at, failed_submission, rejection_reason, failure_source,
		status_history, notes, template_id, version, created_at, updated_at`
	walletColumns   = `id, balance, version, created_at, updated_at`
	walletTxColumns = `id, wallet_id, type, amount, description, actor_id, payment_record_id,
		previous_balance, new_balance, created_at`

	activeTemplateIndex = "monthly_templates_active_period_idx"
	memberPeriodKey     = "payment_records_member_period_key"
	recordCreditIndex   = "wallet_transactions_record_credit_idx"
)

// PostgresRepository is the concrete implementation of the Repository for PostgreSQL.
type PostgresRepository struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return constraint == "" || pgErr.ConstraintName == constraint
	}
	return false
}

// --- Members ---

// UpsertMember inserts or refreshes a member's directory fields. total_paid is owned
// by settlements and never overwritten here.
func (r *PostgresRepository) UpsertMember(ctx context.Context, m *domain.Member) error {
	now := r.now()
	query := `
		INSERT INTO members (id, name, email, year, role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			email = EXCLUDED.email,
			year = EXCLUDED.year,
			role = EXCLUDED.role,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query, m.ID, m.Name, m.Email, string(m.Year), string(m.Role), m.Active, now)
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetMember(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	m, err := scanMember(r.db.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to load member: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) ListMembers(ctx context.Context) ([]domain.Member, error) {
	rows, err := r.db.Query(ctx, `SELECT `+memberColumns+` FROM members ORDER BY year, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func scanMember(row rowScanner) (*domain.Member, error) {
	var m domain.Member
	var year, role string
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &year, &role, &m.TotalPaid, &m.Active, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Year = domain.YearTier(year)
	m.Role = domain.Role(role)
	return &m, nil
}

// --- Monthly templates ---

func (r *PostgresRepository) CreateTemplate(ctx context.Context, t *domain.MonthlyTemplate) error {
	return insertTemplate(ctx, r.db, t)
}

func insertTemplate(ctx context.Context, q querier, t *domain.MonthlyTemplate) error {
	amounts, err := json.Marshal(t.Amounts)
	if err != nil {
		return fmt.Errorf("failed to encode template amounts: %w", err)
	}
	query := `
		INSERT INTO monthly_templates (` + templateColumns + `)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10)
	`
	_, err = q.Exec(ctx, query,
		t.ID, int(t.Month), t.Year, string(t.Status), string(amounts), tierStrings(t.IncludedYears),
		t.Deadline, t.CreatedBy, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, activeTemplateIndex) {
			return domain.ErrDuplicateActiveTemplate
		}
		return fmt.Errorf("failed to insert monthly template: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetTemplate(ctx context.Context, id uuid.UUID) (*domain.MonthlyTemplate, error) {
	t, err := scanTemplate(r.db.QueryRow(ctx, `SELECT `+templateColumns+` FROM monthly_templates WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to load monthly template: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) FindActiveTemplate(ctx context.Context, month time.Month, year int) (*domain.MonthlyTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM monthly_templates WHERE month = $1 AND year = $2 AND status = 'active'`
	t, err := scanTemplate(r.db.QueryRow(ctx, query, int(month), year))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to load active template: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) ListTemplates(ctx context.Context, year int) ([]domain.MonthlyTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM monthly_templates`
	var args []any
	if year > 0 {
		query += ` WHERE year = $1`
		args = append(args, year)
	}
	query += ` ORDER BY year DESC, month DESC, created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list monthly templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.MonthlyTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monthly template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

func (r *PostgresRepository) UpdateTemplate(ctx context.Context, t *domain.MonthlyTemplate) error {
	amounts, err := json.Marshal(t.Amounts)
	if err != nil {
		return fmt.Errorf("failed to encode template amounts: %w", err)
	}
	query := `
		UPDATE monthly_templates
		SET status = $2, amounts = $3::jsonb, included_years = $4, deadline = $5, updated_at = $6
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, t.ID, string(t.Status), string(amounts), tierStrings(t.IncludedYears), t.Deadline, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, activeTemplateIndex) {
			return domain.ErrDuplicateActiveTemplate
		}
		return fmt.Errorf("failed to update monthly template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func scanTemplate(row rowScanner) (*domain.MonthlyTemplate, error) {
	var t domain.MonthlyTemplate
	var month int
	var status string
	var amounts []byte
	var included []string
	if err := row.Scan(&t.ID, &month, &t.Year, &status, &amounts, &included, &t.Deadline, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Month = time.Month(month)
	t.Status = domain.TemplateStatus(status)
	t.Amounts = make(map[domain.YearTier]int64)
	if len(amounts) > 0 {
		if err := json.Unmarshal(amounts, &t.Amounts); err != nil {
			return nil, fmt.Errorf("failed to decode template amounts: %w", err)
		}
	}
	for _, tier := range included {
		t.IncludedYears = append(t.IncludedYears, domain.YearTier(tier))
	}
	return &t, nil
}

func tierStrings(tiers []domain.YearTier) []string {
	out := make([]string, len(tiers))
	for i, tier := range tiers {
		out[i] = string(tier)
	}
	return out
}

// --- Payment records ---

// InsertPaymentRecords inserts records, skipping any (member, month, year) that
// already exists. It returns how many rows were created.
func (r *PostgresRepository) InsertPaymentRecords(ctx context.Context, records []*domain.PaymentRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted, err := insertRecords(ctx, tx, records, true)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

func insertRecords(ctx context.Context, q querier, records []*domain.PaymentRecord, skipExisting bool) (int, error) {
	query := `
		INSERT INTO payment_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17::jsonb, $18, $19, $20::jsonb, $21, $22, $23, $24, $25)
	`
	if skipExisting {
		query += ` ON CONFLICT (member_id, month, year) DO NOTHING`
	}

	inserted := 0
	for _, rec := range records {
		args, err := recordArgs(rec)
		if err != nil {
			return inserted, err
		}
		tag, err := q.Exec(ctx, query, args...)
		if err != nil {
			if isUniqueViolation(err, memberPeriodKey) {
				return inserted, domain.ErrDuplicateRecord
			}
			return inserted, fmt.Errorf("failed to insert payment record: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (r *PostgresRepository) GetPaymentRecord(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM payment_records WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentRecordNotFound
		}
		return nil, fmt.Errorf("failed to load payment record: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) ListPaymentRecords(ctx context.Context, filter RecordFilter) ([]*domain.PaymentRecord, error) {
	var clauses []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.MemberID != nil {
		add("member_id = $%d", *filter.MemberID)
	}
	if filter.TemplateID != nil {
		add("template_id = $%d", *filter.TemplateID)
	}
	if filter.Month != 0 {
		add("month = $%d", int(filter.Month))
	}
	if filter.Year != 0 {
		add("year = $%d", filter.Year)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d::text[])", statuses)
	}

	query := `SELECT ` + recordColumns + ` FROM payment_records`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY year DESC, month DESC, created_at ASC`

	return r.queryRecords(ctx, r.db, query, args...)
}

// ListReconciliationCandidates returns records whose stored status disagrees with
// the clock: overdue unconfirmed records, and deadline failures whose deadline is
// back in the future.
func (r *PostgresRepository) ListReconciliationCandidates(ctx context.Context, now time.Time) ([]*domain.PaymentRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM payment_records
		WHERE member_confirmed_payment = FALSE
		  AND verified_by IS NULL
		  AND (
			(status IN ('pending', 'awaiting_verification') AND deadline < $1)
			OR (status = 'failed' AND deadline > $1 AND failure_source = 'deadline' AND failed_submission IS NULL)
		  )
		ORDER BY deadline ASC
	`
	return r.queryRecords(ctx, r.db, query, now)
}

func (r *PostgresRepository) queryRecords(ctx context.Context, q querier, query string, args ...any) ([]*domain.PaymentRecord, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment records: %w", err)
	}
	defer rows.Close()

	var records []*domain.PaymentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MutatePaymentRecord locks the record, applies fn, and persists the result together
// with any settlement it returns.
func (r *PostgresRepository) MutatePaymentRecord(ctx context.Context, id uuid.UUID, fn PaymentMutation) (*domain.PaymentRecord, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := scanRecord(tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM payment_records WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentRecordNotFound
		}
		return nil, fmt.Errorf("failed to lock payment record: %w", err)
	}

	settlement, err := fn(rec)
	if err != nil {
		return nil, err
	}

	if err := r.updateRecord(ctx, tx, rec); err != nil {
		return nil, err
	}
	if settlement != nil {
		if err := r.settle(ctx, tx, settlement); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return rec, nil
}

// CreateSettledPaymentRecord inserts an already-paid record and its settlement atomically.
func (r *PostgresRepository) CreateSettledPaymentRecord(ctx context.Context, rec *domain.PaymentRecord, settlement *domain.Settlement) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := insertRecords(ctx, tx, []*domain.PaymentRecord{rec}, false); err != nil {
		return err
	}
	if err := r.settle(ctx, tx, settlement); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ReplaceMonthRecords deletes every record of the template's month, cancels the
// month's active template, and inserts tmpl with records. It refuses when any
// record of the month is already paid.
func (r *PostgresRepository) ReplaceMonthRecords(ctx context.Context, tmpl *domain.MonthlyTemplate, records []*domain.PaymentRecord) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT status FROM payment_records WHERE month = $1 AND year = $2 FOR UPDATE`, int(tmpl.Month), tmpl.Year)
	if err != nil {
		return 0, fmt.Errorf("failed to lock month records: %w", err)
	}
	paid := 0
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan record status: %w", err)
		}
		if domain.PaymentStatus(status) == domain.StatusPaid {
			paid++
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read month records: %w", err)
	}
	if paid > 0 {
		return 0, fmt.Errorf("%w: %d verified payments exist for %s %d", domain.ErrInvalidStateTransition, paid, tmpl.Month, tmpl.Year)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM payment_records WHERE month = $1 AND year = $2`, int(tmpl.Month), tmpl.Year); err != nil {
		return 0, fmt.Errorf("failed to delete month records: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE monthly_templates SET status = 'cancelled', updated_at = $3 WHERE month = $1 AND year = $2 AND status = 'active'`,
		int(tmpl.Month), tmpl.Year, r.now(),
	); err != nil {
		return 0, fmt.Errorf("failed to cancel active template: %w", err)
	}
	if err := insertTemplate(ctx, tx, tmpl); err != nil {
		return 0, err
	}
	inserted, err := insertRecords(ctx, tx, records, false)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

func (r *PostgresRepository) updateRecord(ctx context.Context, tx pgx.Tx, rec *domain.PaymentRecord) error {
	failed, history, err := encodeRecordJSON(rec)
	if err != nil {
		return err
	}
	rec.Version++
	query := `
		UPDATE payment_records
		SET amount = $2, status = $3, deadline = $4, member_confirmed_payment = $5, member_confirmed_at = $6,
			payment_proof = $7, payment_date = $8, payment_method = $9, transaction_ref = $10,
			verified_by = $11, verified_at = $12, failed_submission = $13::jsonb, rejection_reason = $14,
			failure_source = $15, status_history = $16::jsonb, notes = $17, version = $18, updated_at = $19
		WHERE id = $1
	`
	_, err = tx.Exec(ctx, query,
		rec.ID, rec.Amount, string(rec.Status), rec.Deadline, rec.MemberConfirmedPayment, rec.MemberConfirmedAt,
		rec.PaymentProof, rec.PaymentDate, string(rec.PaymentMethod), rec.TransactionRef,
		rec.VerifiedBy, rec.VerifiedAt, failed, rec.RejectionReason,
		string(rec.FailureSource), history, rec.Notes, rec.Version, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment record: %w", err)
	}
	return nil
}

// settle credits the wallet and the member total inside tx.
func (r *PostgresRepository) settle(ctx context.Context, tx pgx.Tx, s *domain.Settlement) error {
	tag, err := tx.Exec(ctx,
		`UPDATE members SET total_paid = total_paid + $2, updated_at = $3 WHERE id = $1`,
		s.MemberID, s.Amount, r.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to increment member total: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	if _, _, err := r.applyWalletEntry(ctx, tx, domain.CreditEntry(s), true); err != nil {
		return err
	}
	return nil
}

func recordArgs(rec *domain.PaymentRecord) ([]any, error) {
	failed, history, err := encodeRecordJSON(rec)
	if err != nil {
		return nil, err
	}
	return []any{
		rec.ID, rec.MemberID, int(rec.Month), rec.Year, rec.AcademicYear, rec.Amount, string(rec.Status), rec.Deadline,
		rec.MemberConfirmedPayment, rec.MemberConfirmedAt, rec.PaymentProof, rec.PaymentDate, string(rec.PaymentMethod),
		rec.TransactionRef, rec.VerifiedBy, rec.VerifiedAt, failed, rec.RejectionReason, string(rec.FailureSource),
		history, rec.Notes, rec.TemplateID, rec.Version, rec.CreatedAt, rec.UpdatedAt,
	}, nil
}

func encodeRecordJSON(rec *domain.PaymentRecord) (*string, string, error) {
	var failed *string
	if rec.FailedSubmission != nil {
		raw, err := json.Marshal(rec.FailedSubmission)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode failed submission: %w", err)
		}
		s := string(raw)
		failed = &s
	}
	history := rec.StatusHistory
	if history == nil {
		history = []domain.StatusChange{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode status history: %w", err)
	}
	return failed, string(raw), nil
}

func scanRecord(row rowScanner) (*domain.PaymentRecord, error) {
	var rec domain.PaymentRecord
	var month int
	var status, method, source string
	var failed, history []byte
	err := row.Scan(
		&rec.ID, &rec.MemberID, &month, &rec.Year, &rec.AcademicYear, &rec.Amount, &status, &rec.Deadline,
		&rec.MemberConfirmedPayment, &rec.MemberConfirmedAt, &rec.PaymentProof, &rec.PaymentDate, &method,
		&rec.TransactionRef, &rec.VerifiedBy, &rec.VerifiedAt, &failed, &rec.RejectionReason, &source,
		&history, &rec.Notes, &rec.TemplateID, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Month = time.Month(month)
	rec.Status = domain.PaymentStatus(status)
	rec.PaymentMethod = domain.PaymentMethod(method)
	rec.FailureSource = domain.FailureSource(source)
	if len(failed) > 0 {
		var sub domain.FailedPaymentSubmission
		if err := json.Unmarshal(failed, &sub); err != nil {
			return nil, fmt.Errorf("failed to decode failed submission: %w", err)
		}
		rec.FailedSubmission = &sub
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &rec.StatusHistory); err != nil {
			return nil, fmt.Errorf("failed to decode status history: %w", err)
		}
	}
	return &rec, nil
}

// --- Treasurer notes ---

func (r *PostgresRepository) SaveTreasurerNote(ctx context.Context, recordID uuid.UUID, fn NoteMutation) (*domain.TreasurerNote, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := scanRecord(tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM payment_records WHERE id = $1 FOR UPDATE`, recordID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentRecordNotFound
		}
		return nil, fmt.Errorf("failed to lock payment record: %w", err)
	}

	var existing *domain.TreasurerNote
	note, err := scanNote(tx.QueryRow(ctx,
		`SELECT record_id, acknowledged_cash, acknowledged_by, acknowledged_at FROM treasurer_notes WHERE record_id = $1`, recordID))
	switch {
	case err == nil:
		existing = note
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, fmt.Errorf("failed to load treasurer note: %w", err)
	}

	next, err := fn(rec, existing)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO treasurer_notes (record_id, acknowledged_cash, acknowledged_by, acknowledged_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (record_id) DO UPDATE
		SET acknowledged_cash = EXCLUDED.acknowledged_cash,
			acknowledged_by = EXCLUDED.acknowledged_by,
			acknowledged_at = EXCLUDED.acknowledged_at
	`
	if _, err := tx.Exec(ctx, query, next.RecordID, next.AcknowledgedCash, next.By, next.At); err != nil {
		return nil, fmt.Errorf("failed to save treasurer note: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

func (r *PostgresRepository) DeleteTreasurerNote(ctx context.Context, recordID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM treasurer_notes WHERE record_id = $1`, recordID)
	if err != nil {
		return fmt.Errorf("failed to delete treasurer note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTreasurerNoteNotFound
	}
	return nil
}

func (r *PostgresRepository) ListTreasurerNotes(ctx context.Context, month time.Month, year int) (map[uuid.UUID]domain.TreasurerNote, error) {
	query := `
		SELECT n.record_id, n.acknowledged_cash, n.acknowledged_by, n.acknowledged_at
		FROM treasurer_notes n
		JOIN payment_records p ON p.id = n.record_id
		WHERE p.month = $1 AND p.year = $2
	`
	rows, err := r.db.Query(ctx, query, int(month), year)
	if err != nil {
		return nil, fmt.Errorf("failed to list treasurer notes: %w", err)
	}
	defer rows.Close()

	notes := make(map[uuid.UUID]domain.TreasurerNote)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan treasurer note: %w", err)
		}
		notes[note.RecordID] = *note
	}
	return notes, rows.Err()
}

func scanNote(row rowScanner) (*domain.TreasurerNote, error) {
	var n domain.TreasurerNote
	if err := row.Scan(&n.RecordID, &n.AcknowledgedCash, &n.By, &n.At); err != nil {
		return nil, err
	}
	return &n, nil
}

// --- Wallet ---

func (r *PostgresRepository) GetOrCreateWallet(ctx context.Context) (*domain.Wallet, error) {
	if err := r.ensureWallet(ctx, r.db); err != nil {
		return nil, err
	}
	w, err := scanWallet(r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE singleton`))
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	return w, nil
}

// ApplyWalletEntry reads the wallet without locking and writes back only if the
// version is unchanged. A concurrent writer yields ErrWalletVersionConflict.
func (r *PostgresRepository) ApplyWalletEntry(ctx context.Context, entry domain.WalletEntry) (*domain.Wallet, *domain.WalletTransaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	w, row, err := r.applyWalletEntry(ctx, tx, entry, false)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return w, row, nil
}

func (r *PostgresRepository) applyWalletEntry(ctx context.Context, tx pgx.Tx, entry domain.WalletEntry, lock bool) (*domain.Wallet, *domain.WalletTransaction, error) {
	if err := r.ensureWallet(ctx, tx); err != nil {
		return nil, nil, err
	}
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE singleton`
	if lock {
		query += ` FOR UPDATE`
	}
	w, err := scanWallet(tx.QueryRow(ctx, query))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	readVersion := w.Version
	row, err := w.Apply(entry, r.now())
	if err != nil {
		return nil, nil, err
	}

	insert := `
		INSERT INTO wallet_transactions (` + walletTxColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := tx.Exec(ctx, insert,
		row.ID, row.WalletID, string(row.Type), row.Amount, row.Description, row.ActorID, row.PaymentRecordID,
		row.PreviousBalance, row.NewBalance, row.CreatedAt,
	); err != nil {
		if isUniqueViolation(err, recordCreditIndex) {
			return nil, nil, domain.ErrAlreadyVerified
		}
		return nil, nil, fmt.Errorf("failed to append wallet transaction: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = $2, version = $3, updated_at = $4 WHERE id = $1 AND version = $5`,
		w.ID, w.Balance, w.Version, w.UpdatedAt, readVersion,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil, ErrWalletVersionConflict
	}
	return w, row, nil
}

func (r *PostgresRepository) ensureWallet(ctx context.Context, q querier) error {
	_, err := q.Exec(ctx,
		`INSERT INTO wallets (id, singleton, balance, version) VALUES ($1, TRUE, 0, 0) ON CONFLICT (singleton) DO NOTHING`,
		uuid.New(),
	)
	if err != nil {
		return fmt.Errorf("failed to ensure wallet: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListWalletTransactions(ctx context.Context, limit, offset int) ([]domain.WalletTransaction, error) {
	query := `SELECT ` + walletTxColumns + ` FROM wallet_transactions ORDER BY seq DESC LIMIT $1 OFFSET $2`
	return r.queryWalletTransactions(ctx, query, limit, offset)
}

func (r *PostgresRepository) ListAllWalletTransactions(ctx context.Context) ([]domain.WalletTransaction, error) {
	return r.queryWalletTransactions(ctx, `SELECT `+walletTxColumns+` FROM wallet_transactions ORDER BY seq ASC`)
}

func (r *PostgresRepository) queryWalletTransactions(ctx context.Context, query string, args ...any) ([]domain.WalletTransaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.WalletTransaction
	for rows.Next() {
		var t domain.WalletTransaction
		var kind string
		if err := rows.Scan(&t.ID, &t.WalletID, &kind, &t.Amount, &t.Description, &t.ActorID, &t.PaymentRecordID,
			&t.PreviousBalance, &t.NewBalance, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet transaction: %w", err)
		}
		t.Type = domain.WalletTxType(kind)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func scanWallet(row rowScanner) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := row.Scan(&w.ID, &w.Balance, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}
