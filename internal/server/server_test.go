package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/finbook/backend/internal/cache"
	"github.com/finbook/backend/internal/service"
	"github.com/finbook/backend/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() http.Handler {
	svc := service.NewLedgerService(store.NewMemoryStore(), cache.New(time.Minute), zerolog.Nop())
	return New(svc, zerolog.Nop()).Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthNoAuth(t *testing.T) {
	handler := newTestHandler()
	rec := doJSON(t, handler, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingUserHeader(t *testing.T) {
	handler := newTestHandler()
	rec := doJSON(t, handler, http.MethodGet, "/v1/accounts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAccountLifecycle(t *testing.T) {
	handler := newTestHandler()
	userID := "user123"

	rec := doJSON(t, handler, http.MethodPost, "/v1/accounts", userID, map[string]string{
		"name":     "Main savings",
		"category": "saving",
		"currency": "eur",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID       string `json:"id"`
		Currency string `json:"currency"`
	}
	decodeBody(t, rec, &created)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "EUR", created.Currency)

	rec = doJSON(t, handler, http.MethodGet, "/v1/accounts", userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Accounts []struct {
			ID string `json:"id"`
		} `json:"accounts"`
	}
	decodeBody(t, rec, &listed)
	require.Len(t, listed.Accounts, 1)

	// Other users never see it.
	rec = doJSON(t, handler, http.MethodGet, "/v1/accounts", "someone-else", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &listed)
	assert.Empty(t, listed.Accounts)

	rec = doJSON(t, handler, http.MethodDelete, "/v1/accounts/"+created.ID, userID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestInvalidAccountRejected(t *testing.T) {
	handler := newTestHandler()
	rec := doJSON(t, handler, http.MethodPost, "/v1/accounts", "user123", map[string]string{
		"name":     "Checking",
		"category": "checking",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummaryNotFoundWithoutData(t *testing.T) {
	handler := newTestHandler()
	rec := doJSON(t, handler, http.MethodGet, "/v1/summary?year=2025&month=3", "user123", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSummaryBadParams(t *testing.T) {
	handler := newTestHandler()

	rec := doJSON(t, handler, http.MethodGet, "/v1/summary?year=abc&month=3", "user123", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/v1/summary?year=2025&month=13", "user123", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// seedMonth records a saving balance through the API.
func seedMonth(t *testing.T, handler http.Handler, userID, accountID string, year, month int, reported string) {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPut, "/v1/balances", userID, map[string]interface{}{
		"account_id": accountID,
		"year":       year,
		"month":      month,
		"reported":   reported,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestReconcileAndEstimateFlow(t *testing.T) {
	handler := newTestHandler()
	userID := "user123"

	rec := doJSON(t, handler, http.MethodPost, "/v1/accounts", userID, map[string]string{
		"name": "Main savings", "category": "saving", "currency": "EUR",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var account struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &account)

	seedMonth(t, handler, userID, account.ID, 2025, 3, "1000")
	seedMonth(t, handler, userID, account.ID, 2025, 4, "700")

	for _, tx := range []map[string]interface{}{
		{"amount": "200", "flow": "income", "year": 2025, "month": 3},
		{"amount": "450", "flow": "expense", "year": 2025, "month": 3},
	} {
		rec = doJSON(t, handler, http.MethodPost, "/v1/transactions", userID, tx)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/v1/summary?year=2025&month=3", userID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary struct {
		Status          string `json:"status"`
		ShortfallAmount string `json:"shortfall_amount"`
		ShortfallFlow   string `json:"shortfall_flow"`
	}
	decodeBody(t, rec, &summary)
	assert.Equal(t, "missing_expenses", summary.Status)
	assert.Equal(t, "50", summary.ShortfallAmount)
	assert.Equal(t, "expense", summary.ShortfallFlow)

	rec = doJSON(t, handler, http.MethodPost, "/v1/periods/2025/3/estimate", userID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var estimate struct {
		TransactionID string `json:"transaction_id"`
		Status        string `json:"status"`
	}
	decodeBody(t, rec, &estimate)
	assert.Equal(t, "missing_expenses", estimate.Status)
	require.NotEmpty(t, estimate.TransactionID)

	rec = doJSON(t, handler, http.MethodDelete, "/v1/estimates/"+estimate.TransactionID, userID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/v1/transactions?period=%s&estimated=true", "2025-03"), userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Transactions []json.RawMessage `json:"transactions"`
	}
	decodeBody(t, rec, &page)
	assert.Empty(t, page.Transactions)
}

func TestYearsEndpoint(t *testing.T) {
	handler := newTestHandler()
	userID := "user123"

	rec := doJSON(t, handler, http.MethodPost, "/v1/accounts", userID, map[string]string{
		"name": "Main savings", "category": "saving", "currency": "EUR",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var account struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &account)

	seedMonth(t, handler, userID, account.ID, 2023, 6, "500")
	seedMonth(t, handler, userID, account.ID, 2025, 3, "1000")

	rec = doJSON(t, handler, http.MethodGet, "/v1/years", userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var years struct {
		Years []int `json:"years"`
	}
	decodeBody(t, rec, &years)
	assert.Equal(t, []int{2023, 2025}, years.Years)
}
