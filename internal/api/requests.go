package api

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/domain"
	"github.com/Abdul-Basith14/AuroraTreasury-sub000/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// monthField accepts "March", "mar", "3" or 3.
type monthField time.Month

func (m *monthField) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		var n int
		if err := json.Unmarshal(b, &n); err != nil {
			return domain.NewValidationError("month", "month must be a name or a number")
		}
		raw = strconv.Itoa(n)
	}
	month, err := domain.ParseMonth(raw)
	if err != nil {
		return err
	}
	*m = monthField(month)
	return nil
}

// parseDeadline accepts RFC 3339 or a bare date, which means the end of that day
// in loc.
func parseDeadline(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, domain.NewValidationError("deadline", "deadline is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	day, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return time.Time{}, domain.NewValidationError("deadline", "deadline must be YYYY-MM-DD or RFC 3339")
	}
	return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

func toPaise(field string, amount decimal.Decimal) (int64, error) {
	paise, err := money.ToPaise(amount)
	if err != nil {
		return 0, domain.NewValidationError(field, err.Error())
	}
	return paise, nil
}

func amountsToPaise(amounts map[domain.YearTier]decimal.Decimal) (map[domain.YearTier]int64, error) {
	if amounts == nil {
		return nil, nil
	}
	out := make(map[domain.YearTier]int64, len(amounts))
	for tier, amount := range amounts {
		paise, err := toPaise("amounts."+string(tier), amount)
		if err != nil {
			return nil, err
		}
		out[tier] = paise
	}
	return out, nil
}

type templateRequest struct {
	Month         monthField                          `json:"month"`
	Year          int                                 `json:"year"`
	Amounts       map[domain.YearTier]decimal.Decimal `json:"amounts"`
	IncludedYears []domain.YearTier                   `json:"included_years"`
	Deadline      string                              `json:"deadline"`
}

func (req templateRequest) toInput(loc *time.Location) (domain.TemplateInput, error) {
	amounts, err := amountsToPaise(req.Amounts)
	if err != nil {
		return domain.TemplateInput{}, err
	}
	deadline, err := parseDeadline(req.Deadline, loc)
	if err != nil {
		return domain.TemplateInput{}, err
	}
	return domain.TemplateInput{
		Month:         time.Month(req.Month),
		Year:          req.Year,
		Amounts:       amounts,
		IncludedYears: req.IncludedYears,
		Deadline:      deadline,
	}, nil
}

type templateUpdateRequest struct {
	Amounts        map[domain.YearTier]decimal.Decimal `json:"amounts"`
	IncludedYears  []domain.YearTier                   `json:"included_years"`
	Deadline       *string                             `json:"deadline"`
	ApplyToPending bool                                `json:"apply_to_pending"`
}

func (req templateUpdateRequest) toUpdate(loc *time.Location) (domain.TemplateUpdate, error) {
	amounts, err := amountsToPaise(req.Amounts)
	if err != nil {
		return domain.TemplateUpdate{}, err
	}
	update := domain.TemplateUpdate{
		Amounts:        amounts,
		IncludedYears:  req.IncludedYears,
		ApplyToPending: req.ApplyToPending,
	}
	if req.Deadline != nil {
		deadline, err := parseDeadline(*req.Deadline, loc)
		if err != nil {
			return domain.TemplateUpdate{}, err
		}
		update.Deadline = &deadline
	}
	return update, nil
}

type recreateRequest struct {
	templateRequest
	Confirm bool `json:"confirm"`
}

type templateStatusRequest struct {
	Status domain.TemplateStatus `json:"status"`
}

type confirmRequest struct {
	ProofURL       string               `json:"proof_url"`
	PaymentMethod  domain.PaymentMethod `json:"payment_method"`
	TransactionRef string               `json:"transaction_ref"`
}

type resubmitRequest struct {
	ProofURL string `json:"proof_url"`
	Note     string `json:"note"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type resubmissionDecisionRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

type manualPaymentRequest struct {
	MemberID      uuid.UUID            `json:"member_id"`
	Month         monthField           `json:"month"`
	Year          int                  `json:"year"`
	Amount        decimal.Decimal      `json:"amount"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Note          string               `json:"note"`
	Deadline      string               `json:"deadline"`
}

func (req manualPaymentRequest) toPayment(loc *time.Location) (domain.ManualPayment, error) {
	amount, err := toPaise("amount", req.Amount)
	if err != nil {
		return domain.ManualPayment{}, err
	}
	payment := domain.ManualPayment{
		MemberID: req.MemberID,
		Month:    time.Month(req.Month),
		Year:     req.Year,
		Amount:   amount,
		Method:   req.PaymentMethod,
		Note:     req.Note,
	}
	if strings.TrimSpace(req.Deadline) != "" {
		if payment.Deadline, err = parseDeadline(req.Deadline, loc); err != nil {
			return domain.ManualPayment{}, err
		}
	}
	return payment, nil
}

type walletEntryRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type walletResponse struct {
	*domain.Wallet
	BalanceDisplay string `json:"balance_display"`
}

func newWalletResponse(w *domain.Wallet) walletResponse {
	return walletResponse{Wallet: w, BalanceDisplay: money.Format(w.Balance)}
}

type walletEntryResponse struct {
	Wallet      walletResponse            `json:"wallet"`
	Transaction *domain.WalletTransaction `json:"transaction"`
}
