/**
 * @description
 * This file contains the HTTP handlers for the treasury-service's API endpoints.
 * Handlers parse incoming requests, call the application service, and write the
 * HTTP response. Request amounts are decimal rupees; responses carry paise.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameters.
 * - internal/app, internal/domain, internal/store: Service logic, models, and errors.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/app"
	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/domain"
	"github.com/Abdul-Basith14/AuroraTreasury-sub000/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxRequestBodyBytes = 1 << 20

// Handler holds the application service that handlers will use.
type Handler struct {
	service *app.Service
	loc     *time.Location
}

// NewHandler creates a new Handler. Bare dates in requests are read in loc.
func NewHandler(service *app.Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{service: service, loc: loc}
}

// --- Member endpoints ---

func (h *Handler) ListMyPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	records, err := h.service.ListMemberPayments(r.Context(), memberID)
	if err != nil {
		h.writeServiceError(w, "list_my_payments", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payments": records})
}

func (h *Handler) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	recordID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	role, _ := RoleFromContext(r.Context())
	rec, err := h.service.GetPaymentRecord(r.Context(), recordID, app.Viewer{ID: memberID, Treasurer: role == domain.RoleTreasurer})
	if err != nil {
		h.writeServiceError(w, "get_payment", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ConfirmPaymentHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	recordID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req confirmRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.ConfirmPaymentIntent(r.Context(), recordID, memberID, domain.ConfirmDetails{
		ProofURL:       req.ProofURL,
		Method:         req.PaymentMethod,
		TransactionRef: req.TransactionRef,
	})
	if err != nil {
		h.writeServiceError(w, "confirm_payment", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ResubmitPaymentHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	recordID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req resubmitRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.ResubmitPayment(r.Context(), recordID, memberID, req.ProofURL, req.Note)
	if err != nil {
		h.writeServiceError(w, "resubmit_payment", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- Treasurer: templates ---

func (h *Handler) CreateTemplateHandler(w http.ResponseWriter, r *http.Request) {
	treasurerID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req templateRequest
	if !h.decode(w, r, &req) {
		return
	}
	input, err := req.toInput(h.loc)
	if err != nil {
		h.writeServiceError(w, "create_template", err)
		return
	}
	tmpl, seeded, err := h.service.CreateMonthlyTemplate(r.Context(), treasurerID, input)
	var seedErr *app.SeedError
	if errors.As(err, &seedErr) {
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"template":        tmpl,
			"records_created": 0,
			"seeding_error":   "Template saved but records were not created; retry with POST /treasurer/templates/" + tmpl.ID.String() + "/seed",
		})
		return
	}
	if err != nil {
		h.writeServiceError(w, "create_template", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"template": tmpl, "records_created": seeded})
}

func (h *Handler) ListTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	year := 0
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year")
			return
		}
		year = parsed
	}
	templates, err := h.service.ListMonthlyTemplates(r.Context(), year)
	if err != nil {
		h.writeServiceError(w, "list_templates", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": templates})
}

func (h *Handler) GetTemplateHandler(w http.ResponseWriter, r *http.Request) {
	templateID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	tmpl, err := h.service.GetMonthlyTemplate(r.Context(), templateID)
	if err != nil {
		h.writeServiceError(w, "get_template", err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (h *Handler) UpdateTemplateHandler(w http.ResponseWriter, r *http.Request) {
	treasurerID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	templateID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req templateUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	update, err := req.toUpdate(h.loc)
	if err != nil {
		h.writeServiceError(w, "update_template", err)
		return
	}
	tmpl, updated, err := h.service.UpdateMonthlyTemplate(r.Context(), treasurerID, templateID, update)
	if err != nil {
		h.writeServiceError(w, "update_template", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"template": tmpl, "records_updated": updated})
}

func (h *Handler) SeedTemplateHandler(w http.ResponseWriter, r *http.Request) {
	templateID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	seeded, err := h.service.SeedPaymentRecords(r.Context(), templateID)
	if err != nil {
		h.writeServiceError(w, "seed_template", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"records_created": seeded})
}

func (h *Handler) SetTemplateStatusHandler(w http.ResponseWriter, r *http.Request) {
	templateID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req templateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	tmpl, err := h.service.SetMonthlyTemplateStatus(r.Context(), templateID, req.Status)
	if err != nil {
		h.writeServiceError(w, "set_template_status", err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (h *Handler) RecreateMonthlyRecordsHandler(w http.ResponseWriter, r *http.Request) {
	treasurerID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req recreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	input, err := req.toInput(h.loc)
	if err != nil {
		h.writeServiceError(w, "recreate_monthly_records", err)
		return
	}
	tmpl, inserted, err := h.service.RecreateMonthlyRecords(r.Context(), treasurerID, app.RecreateInput{Template: input, Confirm: req.Confirm})
	if err != nil {
		h.writeServiceError(w, "recreate_monthly_records", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"template": tmpl, "records_created": inserted})
}

// --- Treasurer: payments ---

func (h *Handler) VerifyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	treasurerID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	recordID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	rec, err := h.service.VerifyPayment(r.Context(), recordID, treasurerID)
	if err != nil {
		h.writeServiceError(w, "verify_payment", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) RejectPaymentHandler(w http.ResponseWriter, r *http.Request) {
	treasurerID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	recordID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.RejectPayment(r.Context(), recordID, treasurerID, req.Reason)
	if err != nil {
		h.writeServiceError(w, "reject_payment", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) JudgeResubmissionHandler(w http.ResponseWriter, r *http.Request) {
	treasurerID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	recordID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req resubmissionDecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.JudgeResubmission(r.Context(), recordID, treasurerID, app.ResubmissionDecision{Approve: req.Approve, Reason: req.Reason})
	if err != nil {
		h.writeServiceError(w, "judge_resubmission", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ManualMarkHandler(w http.ResponseWriter, r *http.Request) {
	treasurerID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	recordID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	note, err := h.service.ManualMarkPaid(r.Context(), recordID, treasurerID)
	if err != nil {
		h.writeServiceError(w, "manual_mark", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (h *Handler) ClearManualMarkHandler(w http.ResponseWriter, r *http.Request) {
	recordID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.ClearManualMark(r.Context(), recordID); err != nil {
		h.writeServiceError(w, "clear_manual_mark", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateManualPaymentHandler(w http.ResponseWriter, r *http.Request) {
	treasurerID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req manualPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	payment, err := req.toPayment(h.loc)
	if err != nil {
		h.writeServiceError(w, "create_manual_payment", err)
		return
	}
	rec, err := h.service.CreateManualPaidRecord(r.Context(), treasurerID, payment)
	if err != nil {
		h.writeServiceError(w, "create_manual_payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// --- Treasurer: views ---

func (h *Handler) MonthRosterHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	month, err := domain.ParseMonth(query.Get("month"))
	if err != nil {
		h.writeServiceError(w, "month_roster", err)
		return
	}
	year, err := strconv.Atoi(query.Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year")
		return
	}
	roster, err := h.service.MonthRoster(r.Context(), month, year)
	if err != nil {
		h.writeServiceError(w, "month_roster", err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

func (h *Handler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		h.writeServiceError(w, "statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) FailedPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.FailedPaymentsSummary(r.Context())
	if err != nil {
		h.writeServiceError(w, "failed_payments", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"months": groups})
}

func (h *Handler) RunReconciliationHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RunReconciliationSweep(r.Context())
	if err != nil {
		h.writeServiceError(w, "run_reconciliation", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Treasurer: wallet ---

func (h *Handler) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.service.GetWallet(r.Context())
	if err != nil {
		h.writeServiceError(w, "get_wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, newWalletResponse(wallet))
}

func (h *Handler) ListWalletTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset := 0, 0
	query := r.URL.Query()
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}
	if raw := query.Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid offset")
			return
		}
		offset = parsed
	}
	txs, err := h.service.ListWalletTransactions(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, "list_wallet_transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

func (h *Handler) AuditWalletHandler(w http.ResponseWriter, r *http.Request) {
	audit, err := h.service.AuditWallet(r.Context())
	if err != nil {
		h.writeServiceError(w, "audit_wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, audit)
}

func (h *Handler) AddMoneyHandler(w http.ResponseWriter, r *http.Request) {
	h.walletEntry(w, r, "add_money", h.service.AddMoney)
}

func (h *Handler) RemoveMoneyHandler(w http.ResponseWriter, r *http.Request) {
	h.walletEntry(w, r, "remove_money", h.service.RemoveMoney)
}

type walletOperation func(ctx context.Context, actorID uuid.UUID, amount int64, description string) (*domain.Wallet, *domain.WalletTransaction, error)

func (h *Handler) walletEntry(w http.ResponseWriter, r *http.Request, endpoint string, apply walletOperation) {
	treasurerID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req walletEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := toPaise("amount", req.Amount)
	if err != nil {
		h.writeServiceError(w, endpoint, err)
		return
	}
	wallet, tx, err := apply(r.Context(), treasurerID, amount, req.Description)
	if err != nil {
		h.writeServiceError(w, endpoint, err)
		return
	}
	writeJSON(w, http.StatusOK, walletEntryResponse{Wallet: newWalletResponse(wallet), Transaction: tx})
}

// --- helpers ---

func (h *Handler) callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	memberID, ok := MemberIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Could not get member ID from context")
		return uuid.Nil, false
	}
	return memberID, true
}

func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var validation *domain.ValidationError
		if errors.As(err, &validation) {
			writeError(w, http.StatusBadRequest, validation.Error())
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// writeServiceError maps service errors onto HTTP statuses. Unknown errors are
// logged and hidden behind a 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	var validation *domain.ValidationError
	var rateLimited *app.RateLimitError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &rateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(rateLimited.RetryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, rateLimited.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "Not allowed to access this payment")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, domain.ErrDuplicateRecord),
		errors.Is(err, domain.ErrDuplicateActiveTemplate),
		errors.Is(err, domain.ErrInvalidStateTransition),
		errors.Is(err, domain.ErrNotConfirmed),
		errors.Is(err, store.ErrWalletVersionConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("level=error component=api endpoint=%s outcome=error err=%v", endpoint, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("level=warn component=api msg=\"failed to encode response\" err=%v", err)
		}
	}
}

// writeError is a helper for writing JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
