// Package server is the thin JSON/HTTP surface over the ledger service.
// It does request decoding, user scoping, and error mapping only; every
// rule lives in the service layer.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/finbook/backend/internal/auth"
	"github.com/finbook/backend/internal/model"
	"github.com/finbook/backend/internal/service"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// UserIDHeader names the header carrying the authenticated user's ID. The
// deployment's auth proxy is expected to set it; the core treats it as
// trusted input.
const UserIDHeader = "X-User-Id"

// Server routes HTTP requests to the ledger service.
type Server struct {
	svc *service.LedgerService
	log zerolog.Logger
}

// New creates a Server.
func New(svc *service.LedgerService, log zerolog.Logger) *Server {
	return &Server{svc: svc, log: log}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.Handle("GET /v1/summary", s.withUser(s.handleComputeSummary))
	mux.Handle("POST /v1/periods/{year}/{month}/estimate", s.withUser(s.handleEstimate))
	mux.Handle("DELETE /v1/estimates/{id}", s.withUser(s.handleDeleteEstimate))
	mux.Handle("GET /v1/years", s.withUser(s.handleYears))

	mux.Handle("GET /v1/accounts", s.withUser(s.handleListAccounts))
	mux.Handle("POST /v1/accounts", s.withUser(s.handleCreateAccount))
	mux.Handle("PUT /v1/accounts/{id}", s.withUser(s.handleUpdateAccount))
	mux.Handle("DELETE /v1/accounts/{id}", s.withUser(s.handleDeleteAccount))
	mux.Handle("POST /v1/accounts/reorder", s.withUser(s.handleReorderAccounts))

	mux.Handle("GET /v1/balances", s.withUser(s.handleListBalances))
	mux.Handle("PUT /v1/balances", s.withUser(s.handleUpsertBalance))
	mux.Handle("DELETE /v1/balances/{id}", s.withUser(s.handleDeleteBalance))

	mux.Handle("GET /v1/transactions", s.withUser(s.handleListTransactions))
	mux.Handle("POST /v1/transactions", s.withUser(s.handleCreateTransaction))
	mux.Handle("PUT /v1/transactions/{id}", s.withUser(s.handleUpdateTransaction))
	mux.Handle("DELETE /v1/transactions/{id}", s.withUser(s.handleDeleteTransaction))
	mux.Handle("POST /v1/transactions/batch", s.withUser(s.handleBatchCreateTransactions))
	mux.Handle("POST /v1/transactions/batch-delete", s.withUser(s.handleBatchDeleteTransactions))

	return mux
}

// withUser resolves the user header into context claims and rejects
// requests without one.
func (s *Server) withUser(next func(http.ResponseWriter, *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserIDHeader)
		if userID == "" {
			s.writeError(w, http.StatusUnauthorized, "missing "+UserIDHeader+" header")
			return
		}
		ctx := auth.WithUserClaims(r.Context(), &auth.UserClaims{UID: userID})
		next(w, r.WithContext(ctx))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case service.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidArgument):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error().Err(err).Msg("internal error")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func mustUser(r *http.Request) string {
	claims, _ := auth.GetUserClaims(r.Context())
	return claims.UID
}

func yearMonthParams(r *http.Request) (int, time.Month, error) {
	var yearStr, monthStr string
	if yearStr = r.PathValue("year"); yearStr != "" {
		monthStr = r.PathValue("month")
	} else {
		yearStr = r.URL.Query().Get("year")
		monthStr = r.URL.Query().Get("month")
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return 0, 0, errors.New("invalid year")
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, errors.New("invalid month")
	}
	return year, time.Month(month), nil
}

// Reconciliation endpoints

type summaryResponse struct {
	PeriodID        string          `json:"period_id"`
	Label           string          `json:"label"`
	Status          string          `json:"status"`
	ShortfallAmount decimal.Decimal `json:"shortfall_amount"`
	ShortfallFlow   string          `json:"shortfall_flow,omitempty"`
	Details         summaryDetails  `json:"details"`
}

type summaryDetails struct {
	RealIncome           decimal.Decimal `json:"real_income"`
	RealExpenses         decimal.Decimal `json:"real_expenses"`
	RealInvestments      decimal.Decimal `json:"real_investments"`
	EstimatedIncome      decimal.Decimal `json:"estimated_income"`
	EstimatedExpenses    decimal.Decimal `json:"estimated_expenses"`
	EstimatedInvestments decimal.Decimal `json:"estimated_investments"`
	SavingsCurrent       decimal.Decimal `json:"savings_current"`
	SavingsNext          decimal.Decimal `json:"savings_next"`
}

func (s *Server) handleComputeSummary(w http.ResponseWriter, r *http.Request) {
	year, month, err := yearMonthParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.svc.ComputeSummary(r.Context(), mustUser(r), year, month)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summaryResponse{
		PeriodID:        summary.Period.ID,
		Label:           summary.Period.Label,
		Status:          string(summary.Status),
		ShortfallAmount: summary.ShortfallAmount,
		ShortfallFlow:   string(summary.ShortfallFlow),
		Details: summaryDetails{
			RealIncome:           summary.Details.RealIncome,
			RealExpenses:         summary.Details.RealExpenses,
			RealInvestments:      summary.Details.RealInvestments,
			EstimatedIncome:      summary.Details.EstimatedIncome,
			EstimatedExpenses:    summary.Details.EstimatedExpenses,
			EstimatedInvestments: summary.Details.EstimatedInvestments,
			SavingsCurrent:       summary.Details.SavingsCurrent,
			SavingsNext:          summary.Details.SavingsNext,
		},
	})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	year, month, err := yearMonthParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.svc.Estimate(r.Context(), mustUser(r), year, month)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"transaction_id": result.TransactionID,
		"status":         string(result.Status),
	})
}

func (s *Server) handleDeleteEstimate(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteEstimate(r.Context(), mustUser(r), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	years, err := s.svc.YearsWithBalances(r.Context(), mustUser(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]int{"years": years})
}

// Account endpoints

type accountRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Currency string `json:"currency"`
}

type accountResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Currency string `json:"currency"`
	Position int32  `json:"position"`
}

func toAccountResponse(a *model.Account) accountResponse {
	return accountResponse{
		ID:       a.ID,
		Name:     a.Name,
		Category: string(a.Category),
		Currency: a.Currency,
		Position: a.Position,
	}
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := s.svc.CreateAccount(r.Context(), mustUser(r), service.AccountInput{
		Name:     req.Name,
		Category: model.AccountCategory(req.Category),
		Currency: req.Currency,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := s.svc.UpdateAccount(r.Context(), mustUser(r), r.PathValue("id"), service.AccountInput{
		Name:     req.Name,
		Category: model.AccountCategory(req.Category),
		Currency: req.Currency,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteAccount(r.Context(), mustUser(r), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.svc.ListAccounts(r.Context(), mustUser(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	resp := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, toAccountResponse(a))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": resp})
}

func (s *Server) handleReorderAccounts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountIDs []string `json:"account_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.svc.ReorderAccounts(r.Context(), mustUser(r), req.AccountIDs); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Balance endpoints

type balanceRequest struct {
	AccountID string          `json:"account_id"`
	Year      int             `json:"year"`
	Month     int             `json:"month"`
	Reported  decimal.Decimal `json:"reported"`
}

type balanceResponse struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	PeriodID  string          `json:"period_id"`
	Reported  decimal.Decimal `json:"reported"`
}

func (s *Server) handleUpsertBalance(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	balance, err := s.svc.UpsertBalance(r.Context(), mustUser(r), service.BalanceInput{
		AccountID: req.AccountID,
		Year:      req.Year,
		Month:     time.Month(req.Month),
		Reported:  req.Reported,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balanceResponse{
		ID:        balance.ID,
		AccountID: balance.AccountID,
		PeriodID:  balance.PeriodID,
		Reported:  balance.Reported,
	})
}

func (s *Server) handleDeleteBalance(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteBalance(r.Context(), mustUser(r), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.svc.ListBalances(r.Context(), mustUser(r), r.URL.Query().Get("period"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	resp := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		resp = append(resp, balanceResponse{
			ID:        b.ID,
			AccountID: b.AccountID,
			PeriodID:  b.PeriodID,
			Reported:  b.Reported,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"balances": resp})
}

// Transaction endpoints

type transactionRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Flow      string          `json:"flow"`
	Year      int             `json:"year"`
	Month     int             `json:"month"`
	Category  string          `json:"category"`
	AccountID string          `json:"account_id"`
	Tags      []string        `json:"tags"`
	Note      string          `json:"note"`
}

func (req *transactionRequest) toInput() service.TransactionInput {
	return service.TransactionInput{
		Amount:    req.Amount,
		Flow:      model.FlowType(req.Flow),
		Year:      req.Year,
		Month:     time.Month(req.Month),
		Category:  req.Category,
		AccountID: req.AccountID,
		Tags:      req.Tags,
		Note:      req.Note,
	}
}

type transactionResponse struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Flow        string          `json:"flow"`
	PeriodID    string          `json:"period_id"`
	Category    string          `json:"category"`
	AccountID   string          `json:"account_id,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Note        string          `json:"note,omitempty"`
	IsEstimated bool            `json:"is_estimated"`
	IsSystem    bool            `json:"is_system"`
}

func toTransactionResponse(tx *model.Transaction) transactionResponse {
	return transactionResponse{
		ID:          tx.ID,
		Amount:      tx.Amount,
		Flow:        string(tx.Flow),
		PeriodID:    tx.PeriodID,
		Category:    tx.Category,
		AccountID:   tx.AccountID,
		Tags:        tx.Tags,
		Note:        tx.Note,
		IsEstimated: tx.IsEstimated,
		IsSystem:    tx.IsSystem,
	}
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx, err := s.svc.CreateTransaction(r.Context(), mustUser(r), req.toInput())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx, err := s.svc.UpdateTransaction(r.Context(), mustUser(r), r.PathValue("id"), req.toInput())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteTransaction(r.Context(), mustUser(r), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBatchCreateTransactions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Transactions []transactionRequest `json:"transactions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inputs := make([]service.TransactionInput, 0, len(req.Transactions))
	for i := range req.Transactions {
		inputs = append(inputs, req.Transactions[i].toInput())
	}
	txs, err := s.svc.BatchCreateTransactions(r.Context(), mustUser(r), inputs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	resp := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, toTransactionResponse(tx))
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{"transactions": resp})
}

func (s *Server) handleBatchDeleteTransactions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionIDs []string `json:"transaction_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.svc.BatchDeleteTransactions(r.Context(), mustUser(r), req.TransactionIDs); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.TransactionFilter{
		PeriodID:  q.Get("period"),
		Flow:      model.FlowType(q.Get("flow")),
		Category:  q.Get("category"),
		AccountID: q.Get("account"),
		Tag:       q.Get("tag"),
	}
	if v := q.Get("estimated"); v != "" {
		estimated := v == "true"
		filter.IsEstimated = &estimated
	}

	var pageSize int32
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid page_size")
			return
		}
		pageSize = int32(n)
	}

	page, err := s.svc.ListTransactions(r.Context(), mustUser(r), filter, pageSize, q.Get("page_token"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	resp := make([]transactionResponse, 0, len(page.Transactions))
	for _, tx := range page.Transactions {
		resp = append(resp, toTransactionResponse(tx))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions":    resp,
		"next_page_token": page.NextPageToken,
	})
}
