package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RosterStatus is the status shown on the treasurer's month roster. It extends
// PaymentStatus with two synthetic values for members without a record.
type RosterStatus string

const (
	RosterNotRequired RosterStatus = "not_required"
	RosterNotCreated  RosterStatus = "not_created"
)

// RosterEntry joins a member to their (possibly absent) record for the month.
// OrigStatus is the official status; DisplayStatus may show a cash-acknowledged
// pending record as paid. Money totals read OrigStatus only.
type RosterEntry struct {
	Member        Member         `json:"member"`
	Record        *PaymentRecord `json:"record"`
	DisplayStatus RosterStatus   `json:"display_status"`
	OrigStatus    RosterStatus   `json:"orig_status"`
	TreasurerNote *TreasurerNote `json:"treasurer_note,omitempty"`
}

type RosterTotals struct {
	Expected         int64                `json:"expected"`
	Collected        int64                `json:"collected"`
	CashAcknowledged int64                `json:"cash_acknowledged"`
	Counts           map[RosterStatus]int `json:"counts"`
}

type MonthRoster struct {
	Month    time.Month       `json:"month"`
	Year     int              `json:"year"`
	Template *MonthlyTemplate `json:"template,omitempty"`
	Entries  []RosterEntry    `json:"entries"`
	Totals   RosterTotals     `json:"totals"`
}

// BuildMonthRoster is a pure join of members, records and notes for one month.
// Inactive members appear only when they hold a record.
// Records are reconciled against now before use.
func BuildMonthRoster(month time.Month, year int, tmpl *MonthlyTemplate, members []Member, records []*PaymentRecord, notes map[uuid.UUID]TreasurerNote, now time.Time) MonthRoster {
	byMember := make(map[uuid.UUID]*PaymentRecord, len(records))
	for _, rec := range records {
		if rec.Month != month || rec.Year != year {
			continue
		}
		byMember[rec.MemberID] = Reconciled(rec, now)
	}

	roster := MonthRoster{
		Month:    month,
		Year:     year,
		Template: tmpl,
		Entries:  make([]RosterEntry, 0, len(members)),
		Totals:   RosterTotals{Counts: make(map[RosterStatus]int)},
	}

	for _, m := range members {
		rec, ok := byMember[m.ID]
		// Inactive members stay listed while they hold a record for the month.
		if !m.Active && !ok {
			continue
		}
		entry := RosterEntry{Member: m}
		switch {
		case ok:
			entry.Record = rec
			entry.OrigStatus = RosterStatus(rec.Status)
			entry.DisplayStatus = entry.OrigStatus
			if note, has := notes[rec.ID]; has && note.AcknowledgedCash {
				n := note
				entry.TreasurerNote = &n
				if rec.Status == StatusPending {
					entry.DisplayStatus = RosterStatus(StatusPaid)
					roster.Totals.CashAcknowledged += rec.Amount
				}
			}
			roster.Totals.Expected += rec.Amount
			if rec.Status == StatusPaid {
				roster.Totals.Collected += rec.Amount
			}
		case tmpl != nil && !tmpl.Includes(m.Year):
			entry.OrigStatus = RosterNotRequired
			entry.DisplayStatus = RosterNotRequired
		default:
			entry.OrigStatus = RosterNotCreated
			entry.DisplayStatus = RosterNotCreated
		}
		roster.Totals.Counts[entry.OrigStatus]++
		roster.Entries = append(roster.Entries, entry)
	}

	sort.SliceStable(roster.Entries, func(i, j int) bool {
		a, b := roster.Entries[i].Member, roster.Entries[j].Member
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return roster
}

type Statistics struct {
	TotalMembers              int   `json:"total_members"`
	TotalCollected            int64 `json:"total_collected"`
	PendingCount              int   `json:"pending_count"`
	AwaitingVerificationCount int   `json:"awaiting_verification_count"`
	FailedCount               int   `json:"failed_count"`
	PendingResubmissionCount  int   `json:"pending_resubmission_count"`
	WalletBalance             int64 `json:"wallet_balance"`
}

// BuildStatistics summarises all records as seen at now.
func BuildStatistics(members []Member, records []*PaymentRecord, walletBalance int64, now time.Time) Statistics {
	stats := Statistics{WalletBalance: walletBalance}
	for _, m := range members {
		if m.Active {
			stats.TotalMembers++
		}
	}
	for _, raw := range records {
		rec := Reconciled(raw, now)
		switch rec.Status {
		case StatusPaid:
			stats.TotalCollected += rec.Amount
		case StatusPending:
			stats.PendingCount++
		case StatusAwaitingVerification:
			stats.AwaitingVerificationCount++
		case StatusFailed:
			stats.FailedCount++
			if rec.HasPendingResubmission() {
				stats.PendingResubmissionCount++
			}
		}
	}
	return stats
}

type FailedPaymentItem struct {
	RecordID            uuid.UUID  `json:"record_id"`
	MemberID            uuid.UUID  `json:"member_id"`
	MemberName          string     `json:"member_name"`
	MemberEmail         string     `json:"member_email"`
	MemberYear          YearTier   `json:"member_year"`
	Amount              int64      `json:"amount"`
	Deadline            time.Time  `json:"deadline"`
	RejectionReason     *string    `json:"rejection_reason,omitempty"`
	PendingResubmission bool       `json:"pending_resubmission"`
	ResubmittedPhoto    string     `json:"resubmitted_photo,omitempty"`
	ResubmittedAt       *time.Time `json:"resubmitted_at,omitempty"`
}

type FailedMonthGroup struct {
	Month       time.Month          `json:"month"`
	Year        int                 `json:"year"`
	Label       string              `json:"label"`
	Count       int                 `json:"count"`
	TotalAmount int64               `json:"total_amount"`
	Items       []FailedPaymentItem `json:"items"`
}

// BuildFailedSummary groups failed records by month, newest month first.
func BuildFailedSummary(members []Member, records []*PaymentRecord, now time.Time) []FailedMonthGroup {
	memberByID := make(map[uuid.UUID]Member, len(members))
	for _, m := range members {
		memberByID[m.ID] = m
	}

	type period struct {
		year  int
		month time.Month
	}
	groups := make(map[period]*FailedMonthGroup)
	for _, raw := range records {
		rec := Reconciled(raw, now)
		if rec.Status != StatusFailed {
			continue
		}
		key := period{year: rec.Year, month: rec.Month}
		g, ok := groups[key]
		if !ok {
			g = &FailedMonthGroup{Month: rec.Month, Year: rec.Year, Label: rec.Month.String() + " " + strconv.Itoa(rec.Year)}
			groups[key] = g
		}
		m := memberByID[rec.MemberID]
		item := FailedPaymentItem{
			RecordID:            rec.ID,
			MemberID:            rec.MemberID,
			MemberName:          m.Name,
			MemberEmail:         m.Email,
			MemberYear:          m.Year,
			Amount:              rec.Amount,
			Deadline:            rec.Deadline,
			RejectionReason:     rec.RejectionReason,
			PendingResubmission: rec.HasPendingResubmission(),
		}
		if rec.FailedSubmission != nil {
			at := rec.FailedSubmission.ResubmittedAt
			item.ResubmittedPhoto = rec.FailedSubmission.ResubmittedPhoto
			item.ResubmittedAt = &at
		}
		g.Items = append(g.Items, item)
		g.Count++
		g.TotalAmount += rec.Amount
	}

	out := make([]FailedMonthGroup, 0, len(groups))
	for _, g := range groups {
		sort.SliceStable(g.Items, func(i, j int) bool {
			return strings.ToLower(g.Items[i].MemberName) < strings.ToLower(g.Items[j].MemberName)
		})
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	return out
}
