package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/handler"
	"github.com/segyhp/loan-ledger/internal/mocks"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
	"github.com/segyhp/loan-ledger/pkg/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type errorBody struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newRouter(svc *mocks.MockLoanService) *mux.Router {
	router := mux.NewRouter()
	handler.NewLoanHandler(svc, nil).RegisterRoutes(router)
	return router
}

func serve(router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	var payload []byte
	switch b := body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		payload, _ = json.Marshal(b)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body
}

func sampleLoan(direction domain.Direction, status domain.LoanStatus) *domain.Loan {
	return &domain.Loan{
		ID:          uuid.New(),
		Direction:   direction,
		Status:      status,
		TotalAmount: decimal.NewFromInt(100000),
		PaidAmount:  decimal.Zero,
		BranchID:    "dhaka",
		Profile:     domain.Profile{Name: "Abdul Karim"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func TestLoanHandler_CreateLoan(t *testing.T) {
	valid := map[string]interface{}{
		"direction":    "receiving",
		"total_amount": "100000",
		"branch_id":    "dhaka",
		"created_by":   "emp-1",
		"profile":      map[string]string{"name": "Abdul Karim"},
	}
	with := func(key string, value interface{}) map[string]interface{} {
		body := make(map[string]interface{}, len(valid))
		for k, v := range valid {
			body[k] = v
		}
		body[key] = value
		return body
	}

	tests := []struct {
		name           string
		requestBody    interface{}
		setupMock      func(*mocks.MockLoanService)
		expectedStatus int
		checkResponse  func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:        "successful receiving loan",
			requestBody: valid,
			setupMock: func(m *mocks.MockLoanService) {
				loan := sampleLoan(domain.DirectionReceiving, domain.LoanStatusPending)
				m.On("CreateLoan", mock.Anything, mock.MatchedBy(func(req *domain.CreateLoanRequest) bool {
					return req.Direction == "receiving" &&
						req.TotalAmount.Equal(decimal.NewFromInt(100000)) &&
						req.Profile.Name == "Abdul Karim"
				})).Return(loan, nil).Once()
			},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, w *httptest.ResponseRecorder) {
				var wrapper struct {
					Success   bool        `json:"success"`
					Data      domain.Loan `json:"data"`
					Timestamp time.Time   `json:"timestamp"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wrapper))
				assert.True(t, wrapper.Success)
				assert.Equal(t, domain.LoanStatusPending, wrapper.Data.Status)
				assert.Equal(t, "Abdul Karim", wrapper.Data.Name)

				keys := w.Header().Get(handler.CacheInvalidateHeader)
				assert.Contains(t, keys, "loan:"+wrapper.Data.ID.String())
				assert.Contains(t, keys, "dashboard:branch:dhaka")
			},
		},
		{
			name:           "zero amount is an invalid amount",
			requestBody:    with("total_amount", "0"),
			expectedStatus: http.StatusBadRequest,
			checkResponse: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Equal(t, customError.ErrCodeInvalidAmount, decodeError(t, w).Code)
			},
		},
		{
			name:           "missing creator",
			requestBody:    with("created_by", ""),
			expectedStatus: http.StatusBadRequest,
			checkResponse: func(t *testing.T, w *httptest.ResponseRecorder) {
				body := decodeError(t, w)
				assert.Equal(t, customError.ErrCodeInvalidRequest, body.Code)
				assert.Contains(t, body.Message, "created_by")
			},
		},
		{
			name:           "missing party name",
			requestBody:    with("profile", map[string]string{}),
			expectedStatus: http.StatusBadRequest,
			checkResponse: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Contains(t, decodeError(t, w).Message, "name")
			},
		},
		{
			name:           "malformed body",
			requestBody:    `{"direction":`,
			expectedStatus: http.StatusBadRequest,
			checkResponse: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Equal(t, customError.ErrCodeInvalidRequest, decodeError(t, w).Code)
			},
		},
		{
			name:        "service rejects unknown direction",
			requestBody: with("direction", "sideways"),
			setupMock: func(m *mocks.MockLoanService) {
				m.On("CreateLoan", mock.Anything, mock.Anything).
					Return(nil, customError.WrapInvalidRequest(`unknown direction "sideways"`)).Once()
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mocks.MockLoanService{}
			if tt.setupMock != nil {
				tt.setupMock(svc)
			}

			w := serve(newRouter(svc), http.MethodPost, "/api/v1/loans", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.checkResponse != nil {
				tt.checkResponse(t, w)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestLoanHandler_RecordPaymentErrors(t *testing.T) {
	loanID := uuid.New()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
		retryAfter     string
	}{
		{"loan not found", customError.WrapLoanNotFound(loanID.String()), http.StatusNotFound, customError.ErrCodeLoanNotFound, ""},
		{"overpayment", customError.WrapOverpaymentRejected(loanID.String(), "500", "100"), http.StatusUnprocessableEntity, customError.ErrCodeOverpaymentRejected, ""},
		{"duplicate key", customError.WrapDuplicateTransaction(loanID.String(), "r-1"), http.StatusConflict, customError.ErrCodeDuplicateTransaction, ""},
		{"wrong state", customError.WrapInvalidTransition(loanID.String(), "Pending", "payment"), http.StatusConflict, customError.ErrCodeInvalidTransition, ""},
		{"concurrent write", customError.WrapConcurrencyConflict(loanID.String()), http.StatusConflict, customError.ErrCodeConcurrencyConflict, "1"},
		{"invalid amount", customError.WrapInvalidAmount("-5"), http.StatusBadRequest, customError.ErrCodeInvalidAmount, ""},
		{"database down", customError.WrapDatabaseError(errors.New("dial tcp")), http.StatusInternalServerError, "", ""},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mocks.MockLoanService{}
			svc.On("RecordPayment", mock.Anything, loanID, mock.Anything).Return(nil, tt.err).Once()

			w := serve(newRouter(svc), http.MethodPost, "/api/v1/loans/"+loanID.String()+"/payments",
				map[string]string{"amount": "500", "performed_by": "emp-1"})

			assert.Equal(t, tt.expectedStatus, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.expectedCode, body.Code)
			assert.Equal(t, tt.retryAfter, w.Header().Get("Retry-After"))
			assert.NotContains(t, w.Body.String(), "dial tcp")
			svc.AssertExpectations(t)
		})
	}
}

func TestLoanHandler_SettlementRoutes(t *testing.T) {
	svc := &mocks.MockLoanService{}
	router := newRouter(svc)

	giving := sampleLoan(domain.DirectionGiving, domain.LoanStatusActive)
	giving.PaidAmount = decimal.NewFromInt(500)
	svc.On("RecordPayment", mock.Anything, giving.ID, mock.MatchedBy(func(req *domain.PaymentRequest) bool {
		return req.Amount.Equal(decimal.NewFromInt(500)) && req.IdempotencyKey != nil && *req.IdempotencyKey == "rcpt-1"
	})).Return(giving, nil).Once()

	w := serve(router, http.MethodPost, "/api/v1/loans/"+giving.ID.String()+"/payments",
		map[string]string{"amount": "500", "idempotency_key": "rcpt-1", "performed_by": "emp-1"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"due_amount":"99500"`)

	receiving := sampleLoan(domain.DirectionReceiving, domain.LoanStatusCompleted)
	svc.On("RecordRepayment", mock.Anything, receiving.ID, mock.Anything).Return(receiving, nil).Once()

	w = serve(router, http.MethodPost, "/api/v1/loans/"+receiving.ID.String()+"/repayments",
		map[string]string{"amount": "100000", "performed_by": "emp-1"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get(handler.CacheInvalidateHeader), "dashboard:direction:receiving")

	w = serve(router, http.MethodPost, "/api/v1/loans/"+receiving.ID.String()+"/repayments",
		map[string]string{"amount": "100"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "performed_by is required")

	svc.AssertExpectations(t)
}

func TestLoanHandler_ApproveAndReject(t *testing.T) {
	svc := &mocks.MockLoanService{}
	router := newRouter(svc)

	loan := sampleLoan(domain.DirectionReceiving, domain.LoanStatusActive)
	accountID := uuid.New()
	svc.On("ApproveLoan", mock.Anything, loan.ID, mock.MatchedBy(func(req *domain.ApproveLoanRequest) bool {
		return req.TargetAccountID == accountID && req.ApprovedBy == "emp-2"
	})).Return(loan, nil).Once()

	w := serve(router, http.MethodPost, "/api/v1/loans/"+loan.ID.String()+"/approve",
		map[string]string{"target_account_id": accountID.String(), "approved_by": "emp-2"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get(handler.CacheInvalidateHeader), "account:"+accountID.String())

	w = serve(router, http.MethodPost, "/api/v1/loans/"+loan.ID.String()+"/approve",
		map[string]string{"approved_by": "emp-2"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "target account is required")

	rejected := sampleLoan(domain.DirectionReceiving, domain.LoanStatusRejected)
	svc.On("RejectLoan", mock.Anything, rejected.ID, mock.Anything).Return(rejected, nil).Once()

	w = serve(router, http.MethodPost, "/api/v1/loans/"+rejected.ID.String()+"/reject",
		map[string]string{"rejection_reason": "incomplete documents", "rejected_by": "emp-2"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodPost, "/api/v1/loans/"+rejected.ID.String()+"/reject",
		map[string]string{"rejected_by": "emp-2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Message, "rejection_reason")

	svc.AssertExpectations(t)
}

func TestLoanHandler_DashboardRouteWinsOverLoanID(t *testing.T) {
	svc := &mocks.MockLoanService{}
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	svc.On("GetLoanDashboard", mock.Anything, mock.MatchedBy(func(f domain.DashboardFilter) bool {
		return f.Direction == domain.DirectionReceiving &&
			f.BranchID == "dhaka" &&
			f.DateFrom != nil && f.DateFrom.Equal(day) &&
			f.DateTo != nil && f.DateTo.Equal(utils.EndOfDay(day))
	})).Return(&domain.Dashboard{}, nil).Once()

	w := serve(newRouter(svc), http.MethodGet,
		"/api/v1/loans/dashboard?direction=RECEIVING&branch_id=dhaka&date_from=2025-03-01&date_to=2025-03-01", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
	svc.AssertNotCalled(t, "GetLoan", mock.Anything, mock.Anything)
}

func TestLoanHandler_DashboardRejectsBadFilters(t *testing.T) {
	for _, query := range []string{"direction=sideways", "date_from=03/01/2025", "date_to=yesterday"} {
		t.Run(query, func(t *testing.T) {
			svc := &mocks.MockLoanService{}
			w := serve(newRouter(svc), http.MethodGet, "/api/v1/loans/dashboard?"+query, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			svc.AssertNotCalled(t, "GetLoanDashboard", mock.Anything, mock.Anything)
		})
	}
}

func TestLoanHandler_ListLoans(t *testing.T) {
	svc := &mocks.MockLoanService{}
	router := newRouter(svc)

	svc.On("ListLoans", mock.Anything, mock.MatchedBy(func(q domain.ListLoansQuery) bool {
		return q.Direction == "giving" && q.Status == "active" && q.Search == "karim" &&
			q.Page == 2 && q.Limit == 5 && q.DateFrom == nil && q.DateTo == nil
	})).Return(&domain.LoanList{Loans: []*domain.Loan{}, CurrentPage: 2}, nil).Once()

	w := serve(router, http.MethodGet, "/api/v1/loans?direction=giving&status=active&search=karim&page=2&limit=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodGet, "/api/v1/loans?page=two", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertExpectations(t)
}

func TestLoanHandler_GetLoan(t *testing.T) {
	svc := &mocks.MockLoanService{}
	router := newRouter(svc)

	loan := sampleLoan(domain.DirectionGiving, domain.LoanStatusActive)
	detail := &domain.LoanDetail{Loan: loan, TransactionSummary: domain.Summarize(nil), Reconciled: true}
	svc.On("GetLoan", mock.Anything, loan.ID).Return(detail, nil).Once()

	missing := uuid.New()
	svc.On("GetLoan", mock.Anything, missing).Return(nil, customError.WrapLoanNotFound(missing.String())).Once()

	w := serve(router, http.MethodGet, "/api/v1/loans/"+loan.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reconciled":true`)

	w = serve(router, http.MethodGet, "/api/v1/loans/"+missing.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, customError.ErrCodeLoanNotFound, decodeError(t, w).Code)

	w = serve(router, http.MethodGet, "/api/v1/loans/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertExpectations(t)
}

func TestLoanHandler_UpdateAndDelete(t *testing.T) {
	svc := &mocks.MockLoanService{}
	router := newRouter(svc)

	loan := sampleLoan(domain.DirectionGiving, domain.LoanStatusActive)
	svc.On("UpdateLoan", mock.Anything, loan.ID, mock.MatchedBy(func(req *domain.UpdateLoanRequest) bool {
		return len(req.ImmutableFields()) == 1
	})).Return(nil, customError.WrapImmutableField("total_amount")).Once()
	svc.On("DeleteLoan", mock.Anything, loan.ID).Return(nil, customError.WrapHasTransactions(loan.ID.String(), 1)).Once()

	w := serve(router, http.MethodPatch, "/api/v1/loans/"+loan.ID.String(), map[string]string{"total_amount": "5"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, customError.ErrCodeImmutableField, decodeError(t, w).Code)

	w = serve(router, http.MethodDelete, "/api/v1/loans/"+loan.ID.String(), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, customError.ErrCodeHasTransactions, decodeError(t, w).Code)

	pending := sampleLoan(domain.DirectionReceiving, domain.LoanStatusPending)
	svc.On("DeleteLoan", mock.Anything, pending.ID).Return(pending, nil).Once()

	w = serve(router, http.MethodDelete, "/api/v1/loans/"+pending.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get(handler.CacheInvalidateHeader), "loan:"+pending.ID.String()))

	svc.AssertExpectations(t)
}

func TestLoanHandler_StatusAndOverdue(t *testing.T) {
	svc := &mocks.MockLoanService{}
	router := newRouter(svc)

	loan := sampleLoan(domain.DirectionGiving, domain.LoanStatusOverdue)
	svc.On("UpdateLoanStatus", mock.Anything, loan.ID, &domain.UpdateStatusRequest{Status: "overdue"}).Return(loan, nil).Once()
	svc.On("MarkOverdue", mock.Anything, loan.ID).
		Return(nil, customError.WrapInvalidTransition(loan.ID.String(), "Overdue", "mark_overdue")).Once()

	w := serve(router, http.MethodPatch, "/api/v1/loans/"+loan.ID.String()+"/status", map[string]string{"status": "overdue"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodPatch, "/api/v1/loans/"+loan.ID.String()+"/status", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(router, http.MethodPost, "/api/v1/loans/"+loan.ID.String()+"/overdue", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	svc.AssertExpectations(t)
}

func TestLoanHandler_Accounts(t *testing.T) {
	svc := &mocks.MockLoanService{}
	router := newRouter(svc)

	account := &domain.BankAccount{ID: uuid.New(), Name: "Operating", BranchID: "dhaka", Balance: decimal.NewFromInt(1000)}
	svc.On("CreateAccount", mock.Anything, mock.Anything).Return(account, nil).Once()
	svc.On("GetAccount", mock.Anything, account.ID).Return(account, nil).Once()

	w := serve(router, http.MethodPost, "/api/v1/accounts",
		map[string]string{"name": "Operating", "branch_id": "dhaka", "opening_balance": "1000"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "account:"+account.ID.String(), w.Header().Get(handler.CacheInvalidateHeader))

	w = serve(router, http.MethodPost, "/api/v1/accounts",
		map[string]string{"name": "Operating", "branch_id": "dhaka", "opening_balance": "-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, customError.ErrCodeInvalidAmount, decodeError(t, w).Code)

	w = serve(router, http.MethodGet, "/api/v1/accounts/"+account.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"balance":"1000"`)

	svc.AssertExpectations(t)
}
