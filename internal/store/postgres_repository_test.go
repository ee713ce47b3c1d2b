package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "any unique violation", err: &pgconn.PgError{Code: "23505", ConstraintName: "x"}, want: true},
		{name: "matching constraint", err: &pgconn.PgError{Code: "23505", ConstraintName: memberPeriodKey}, constraint: memberPeriodKey, want: true},
		{name: "other constraint", err: &pgconn.PgError{Code: "23505", ConstraintName: "x"}, constraint: memberPeriodKey, want: false},
		{name: "wrapped", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: activeTemplateIndex}), constraint: activeTemplateIndex, want: true},
		{name: "foreign key violation", err: &pgconn.PgError{Code: "23503"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err, tt.constraint); got != tt.want {
				t.Fatalf("expected %t, got %t", tt.want, got)
			}
		})
	}
}

type fakeRow struct {
	values []any
}

func (f fakeRow) Scan(dest ...any) error {
	if len(dest) != len(f.values) {
		return fmt.Errorf("expected %d destinations, got %d", len(f.values), len(dest))
	}
	for i, d := range dest {
		if err := assign(d, f.values[i]); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, value any) error {
	switch d := dest.(type) {
	case *uuid.UUID:
		*d = value.(uuid.UUID)
	case **uuid.UUID:
		*d = value.(*uuid.UUID)
	case *int:
		*d = value.(int)
	case *int64:
		*d = value.(int64)
	case *string:
		*d = value.(string)
	case **string:
		*d = value.(*string)
	case *bool:
		*d = value.(bool)
	case *time.Time:
		*d = value.(time.Time)
	case **time.Time:
		*d = value.(*time.Time)
	case *[]byte:
		s, _ := value.(*string)
		if s == nil {
			*d = nil
			return nil
		}
		*d = []byte(*s)
	default:
		return fmt.Errorf("unsupported destination %T", dest)
	}
	return nil
}

func TestRecordArgsRoundTripThroughScan(t *testing.T) {
	member := domain.Member{ID: uuid.New(), Name: "Asha", Year: domain.YearFirst, Active: true}
	tmpl := domain.NewMonthlyTemplate(domain.TemplateInput{
		Month: time.March, Year: 2025,
		Amounts:       map[domain.YearTier]int64{domain.YearFirst: 5000},
		IncludedYears: []domain.YearTier{domain.YearFirst},
		Deadline:      storeDeadline,
	}, uuid.New(), storeNow)
	rec := domain.NewSeededRecord(member, tmpl, storeNow)
	if err := rec.Reject(uuid.New(), "unclear", storeNow); err != nil {
		t.Fatalf("Reject returned error: %v", err)
	}
	if err := rec.Resubmit(member.ID, "https://blob.example.com/p.png", "second", storeNow); err != nil {
		t.Fatalf("Resubmit returned error: %v", err)
	}

	args, err := recordArgs(rec)
	if err != nil {
		t.Fatalf("recordArgs returned error: %v", err)
	}
	if len(args) != 25 {
		t.Fatalf("expected 25 args, got %d", len(args))
	}
	history := args[19].(string)
	args[19] = &history

	got, err := scanRecord(fakeRow{values: args})
	if err != nil {
		t.Fatalf("scanRecord returned error: %v", err)
	}
	if got.Status != domain.StatusFailed || got.Month != time.March || got.FailureSource != domain.FailureTreasurer {
		t.Fatalf("unexpected scalar fields %s/%s/%q", got.Status, got.Month, got.FailureSource)
	}
	if got.FailedSubmission == nil || got.FailedSubmission.ResubmittedPhoto != "https://blob.example.com/p.png" {
		t.Fatalf("expected failed submission to survive, got %+v", got.FailedSubmission)
	}
	if len(got.StatusHistory) != len(rec.StatusHistory) {
		t.Fatalf("expected %d history entries, got %d", len(rec.StatusHistory), len(got.StatusHistory))
	}
}

func TestScanTemplateDecodesAmounts(t *testing.T) {
	id := uuid.New()
	createdBy := uuid.New()
	amounts, _ := json.Marshal(map[domain.YearTier]int64{domain.YearFirst: 5000, domain.YearSecond: 10000})
	var amountsBuf []byte = amounts

	row := templateRow{
		id: id, month: 3, year: 2025, status: "active", amounts: amountsBuf,
		included: []string{"1st", "2nd"}, deadline: storeDeadline, createdBy: createdBy, at: storeNow,
	}
	tmpl, err := scanTemplate(row)
	if err != nil {
		t.Fatalf("scanTemplate returned error: %v", err)
	}
	if tmpl.Month != time.March || tmpl.Amounts[domain.YearSecond] != 10000 || len(tmpl.IncludedYears) != 2 {
		t.Fatalf("unexpected template %+v", tmpl)
	}
}

type templateRow struct {
	id        uuid.UUID
	month     int
	year      int
	status    string
	amounts   []byte
	included  []string
	deadline  time.Time
	createdBy uuid.UUID
	at        time.Time
}

func (r templateRow) Scan(dest ...any) error {
	*dest[0].(*uuid.UUID) = r.id
	*dest[1].(*int) = r.month
	*dest[2].(*int) = r.year
	*dest[3].(*string) = r.status
	*dest[4].(*[]byte) = r.amounts
	*dest[5].(*[]string) = r.included
	*dest[6].(*time.Time) = r.deadline
	*dest[7].(*uuid.UUID) = r.createdBy
	*dest[8].(*time.Time) = r.at
	*dest[9].(*time.Time) = r.at
	return nil
}
