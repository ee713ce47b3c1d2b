package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAcademicYear(t *testing.T) {
	tests := []struct {
		month time.Month
		year  int
		want  string
	}{
		{time.March, 2025, "2024-2025"},
		{time.July, 2025, "2024-2025"},
		{time.August, 2025, "2025-2026"},
		{time.December, 2025, "2025-2026"},
	}
	for _, tt := range tests {
		if got := AcademicYear(tt.month, tt.year); got != tt.want {
			t.Fatalf("AcademicYear(%s, %d): expected %s, got %s", tt.month, tt.year, tt.want, got)
		}
	}
}

func TestParseMonth(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Month
		wantErr bool
	}{
		{in: "March", want: time.March},
		{in: "mar", want: time.March},
		{in: " 3 ", want: time.March},
		{in: "SEPTEMBER", want: time.September},
		{in: "13", wantErr: true},
		{in: "ma", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMonth(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("expected %s, got %s (err=%v)", tt.want, got, err)
			}
		})
	}
}

func TestEndOfMonth(t *testing.T) {
	got := EndOfMonth(time.February, 2024, time.UTC)
	if got.Day() != 29 || got.Hour() != 23 {
		t.Fatalf("expected Feb 29 end of day, got %v", got)
	}
}

func TestTemplateInputValidate(t *testing.T) {
	base := TemplateInput{
		Month:         time.March,
		Year:          2025,
		Amounts:       map[YearTier]int64{YearFirst: 5000, YearSecond: 10000},
		IncludedYears: []YearTier{YearFirst, YearSecond},
		Deadline:      testDeadline,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(in *TemplateInput)
	}{
		{name: "no included years", mutate: func(in *TemplateInput) { in.IncludedYears = nil }},
		{name: "no amounts for included years", mutate: func(in *TemplateInput) { in.Amounts = map[YearTier]int64{YearFourth: 100} }},
		{name: "unknown tier", mutate: func(in *TemplateInput) { in.IncludedYears = []YearTier{"5th"} }},
		{name: "negative amount", mutate: func(in *TemplateInput) { in.Amounts[YearFirst] = -1 }},
		{name: "missing deadline", mutate: func(in *TemplateInput) { in.Deadline = time.Time{} }},
		{name: "bad month", mutate: func(in *TemplateInput) { in.Month = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			in.Amounts = map[YearTier]int64{YearFirst: 5000, YearSecond: 10000}
			tt.mutate(&in)
			if err := in.Validate(); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRetargetPending(t *testing.T) {
	actor := uuid.New()
	m := Member{ID: uuid.New(), Year: YearFirst, Active: true}
	tmpl := NewMonthlyTemplate(TemplateInput{
		Month: time.March, Year: 2025,
		Amounts:       map[YearTier]int64{YearFirst: 5000},
		IncludedYears: []YearTier{YearFirst},
		Deadline:      testDeadline,
	}, actor, testNow)
	rec := NewSeededRecord(m, tmpl, testNow)

	newDeadline := testDeadline.Add(72 * time.Hour)
	if err := tmpl.Apply(TemplateUpdate{Amounts: map[YearTier]int64{YearFirst: 6000}, Deadline: &newDeadline}, testNow); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !tmpl.RetargetPending(rec, m.Year, actor, testNow) {
		t.Fatalf("expected pending record to be retargeted")
	}
	if rec.Amount != 6000 || !rec.Deadline.Equal(newDeadline) {
		t.Fatalf("expected amount 6000 and new deadline, got %d %v", rec.Amount, rec.Deadline)
	}

	_ = rec.ConfirmIntent(m.ID, ConfirmDetails{}, testNow)
	_ = tmpl.Apply(TemplateUpdate{Amounts: map[YearTier]int64{YearFirst: 7000}}, testNow)
	if tmpl.RetargetPending(rec, m.Year, actor, testNow) {
		t.Fatalf("expected confirmed record to be left alone")
	}
}

func TestRetargetPendingRevivesDeadlineFailure(t *testing.T) {
	actor := uuid.New()
	m := Member{ID: uuid.New(), Year: YearFirst, Active: true}
	tmpl := NewMonthlyTemplate(TemplateInput{
		Month: time.March, Year: 2025,
		Amounts:       map[YearTier]int64{YearFirst: 5000},
		IncludedYears: []YearTier{YearFirst},
		Deadline:      testDeadline,
	}, actor, testNow)
	rec := NewSeededRecord(m, tmpl, testNow)

	late := testDeadline.Add(24 * time.Hour)
	if _, ok := rec.Reconcile(late); !ok || rec.Status != StatusFailed {
		t.Fatalf("expected overdue record to fail, got %s", rec.Status)
	}

	extended := testDeadline.Add(7 * 24 * time.Hour)
	if err := tmpl.Apply(TemplateUpdate{Deadline: &extended}, late); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !tmpl.RetargetPending(rec, m.Year, actor, late) {
		t.Fatalf("expected deadline failure to be retargeted")
	}
	if rec.Status != StatusFailed {
		t.Fatalf("expected status to stay failed until reconciled, got %s", rec.Status)
	}
	if _, ok := rec.Reconcile(late); !ok || rec.Status != StatusPending {
		t.Fatalf("expected record restored to pending, got %s", rec.Status)
	}

	if err := rec.Reject(actor, "bounced", late); err != nil {
		t.Fatalf("Reject returned error: %v", err)
	}
	further := extended.Add(24 * time.Hour)
	_ = tmpl.Apply(TemplateUpdate{Deadline: &further}, late)
	if tmpl.RetargetPending(rec, m.Year, actor, late) {
		t.Fatalf("expected treasurer rejection to be left alone")
	}
}
