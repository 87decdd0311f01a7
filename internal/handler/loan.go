package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/events"
	"github.com/segyhp/loan-ledger/internal/observability"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
	"github.com/segyhp/loan-ledger/pkg/response"
	"github.com/segyhp/loan-ledger/pkg/utils"
	"github.com/shopspring/decimal"
)

// CacheInvalidateHeader lists the cache keys a successful write made stale.
const CacheInvalidateHeader = "X-Cache-Invalidate"

// LoanService is the surface the HTTP layer drives.
type LoanService interface {
	CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, error)
	GetLoan(ctx context.Context, id uuid.UUID) (*domain.LoanDetail, error)
	ListLoans(ctx context.Context, query domain.ListLoansQuery) (*domain.LoanList, error)
	UpdateLoan(ctx context.Context, id uuid.UUID, request *domain.UpdateLoanRequest) (*domain.Loan, error)
	DeleteLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	UpdateLoanStatus(ctx context.Context, id uuid.UUID, request *domain.UpdateStatusRequest) (*domain.Loan, error)
	MarkOverdue(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	ApproveLoan(ctx context.Context, id uuid.UUID, request *domain.ApproveLoanRequest) (*domain.Loan, error)
	RejectLoan(ctx context.Context, id uuid.UUID, request *domain.RejectLoanRequest) (*domain.Loan, error)
	RecordPayment(ctx context.Context, id uuid.UUID, request *domain.PaymentRequest) (*domain.Loan, error)
	RecordRepayment(ctx context.Context, id uuid.UUID, request *domain.PaymentRequest) (*domain.Loan, error)
	GetLoanDashboard(ctx context.Context, filter domain.DashboardFilter) (*domain.Dashboard, error)
	CreateAccount(ctx context.Context, request *domain.CreateAccountRequest) (*domain.BankAccount, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error)
}

type LoanHandler struct {
	service   LoanService
	validator *validator.Validate
	logger    *slog.Logger
}

func NewLoanHandler(service LoanService, logger *slog.Logger) *LoanHandler {
	if logger == nil {
		logger = observability.Discard()
	}
	return &LoanHandler{
		service:   service,
		validator: newValidator(),
		logger:    logger,
	}
}

// newValidator teaches the validator to compare decimal amounts.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// RegisterRoutes mounts the loan and account endpoints under /api/v1.
func (h *LoanHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()

	// dashboard before {loanId} so it is not read as an id
	api.HandleFunc("/loans/dashboard", h.GetLoanDashboard).Methods("GET")
	api.HandleFunc("/loans", h.CreateLoan).Methods("POST")
	api.HandleFunc("/loans", h.ListLoans).Methods("GET")
	api.HandleFunc("/loans/{loanId}", h.GetLoan).Methods("GET")
	api.HandleFunc("/loans/{loanId}", h.UpdateLoan).Methods("PATCH", "PUT")
	api.HandleFunc("/loans/{loanId}", h.DeleteLoan).Methods("DELETE")
	api.HandleFunc("/loans/{loanId}/approve", h.ApproveLoan).Methods("POST")
	api.HandleFunc("/loans/{loanId}/reject", h.RejectLoan).Methods("POST")
	api.HandleFunc("/loans/{loanId}/payments", h.RecordPayment).Methods("POST")
	api.HandleFunc("/loans/{loanId}/repayments", h.RecordRepayment).Methods("POST")
	api.HandleFunc("/loans/{loanId}/status", h.UpdateLoanStatus).Methods("PATCH", "PUT")
	api.HandleFunc("/loans/{loanId}/overdue", h.MarkOverdue).Methods("POST")

	api.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	api.HandleFunc("/accounts/{accountId}", h.GetAccount).Methods("GET")
}

func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLoanRequest
	if !h.decode(w, r, &req) {
		return
	}

	loan, err := h.service.CreateLoan(r.Context(), &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	setInvalidation(w, loan)
	response.Created(w, loan)
}

func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "loanId")
	if !ok {
		return
	}

	detail, err := h.service.GetLoan(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.Success(w, detail)
}

func (h *LoanHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := domain.ListLoansQuery{
		Direction: q.Get("direction"),
		Status:    q.Get("status"),
		BranchID:  q.Get("branch_id"),
		Search:    q.Get("search"),
	}

	var err error
	if query.DateFrom, err = utils.ParseDateParam(q.Get("date_from"), false); err != nil {
		response.FromError(w, customError.WrapInvalidRequest(err.Error()))
		return
	}
	if query.DateTo, err = utils.ParseDateParam(q.Get("date_to"), true); err != nil {
		response.FromError(w, customError.WrapInvalidRequest(err.Error()))
		return
	}
	if query.Page, err = intParam(q.Get("page")); err != nil {
		response.FromError(w, customError.WrapInvalidRequest("page must be an integer"))
		return
	}
	if query.Limit, err = intParam(q.Get("limit")); err != nil {
		response.FromError(w, customError.WrapInvalidRequest("limit must be an integer"))
		return
	}

	list, err := h.service.ListLoans(r.Context(), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.Success(w, list)
}

func (h *LoanHandler) UpdateLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "loanId")
	if !ok {
		return
	}

	var req domain.UpdateLoanRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.write(w, r, func(ctx context.Context) (*domain.Loan, error) {
		return h.service.UpdateLoan(ctx, id, &req)
	})
}

func (h *LoanHandler) DeleteLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "loanId")
	if !ok {
		return
	}

	loan, err := h.service.DeleteLoan(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	setInvalidation(w, loan)
	response.Success(w, map[string]string{
		"id":      loan.ID.String(),
		"message": "loan deleted",
	})
}

func (h *LoanHandler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "loanId")
	if !ok {
		return
	}

	var req domain.ApproveLoanRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.write(w, r, func(ctx context.Context) (*domain.Loan, error) {
		return h.service.ApproveLoan(ctx, id, &req)
	}, events.AccountKey(req.TargetAccountID))
}

func (h *LoanHandler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "loanId")
	if !ok {
		return
	}

	var req domain.RejectLoanRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.write(w, r, func(ctx context.Context) (*domain.Loan, error) {
		return h.service.RejectLoan(ctx, id, &req)
	})
}

func (h *LoanHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.service.RecordPayment)
}

func (h *LoanHandler) RecordRepayment(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.service.RecordRepayment)
}

type settleFunc func(ctx context.Context, id uuid.UUID, request *domain.PaymentRequest) (*domain.Loan, error)

func (h *LoanHandler) settle(w http.ResponseWriter, r *http.Request, record settleFunc) {
	id, ok := pathID(w, r, "loanId")
	if !ok {
		return
	}

	var req domain.PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.write(w, r, func(ctx context.Context) (*domain.Loan, error) {
		return record(ctx, id, &req)
	})
}

func (h *LoanHandler) UpdateLoanStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "loanId")
	if !ok {
		return
	}

	var req domain.UpdateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.write(w, r, func(ctx context.Context) (*domain.Loan, error) {
		return h.service.UpdateLoanStatus(ctx, id, &req)
	})
}

func (h *LoanHandler) MarkOverdue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "loanId")
	if !ok {
		return
	}

	h.write(w, r, func(ctx context.Context) (*domain.Loan, error) {
		return h.service.MarkOverdue(ctx, id)
	})
}

func (h *LoanHandler) GetLoanDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.DashboardFilter{BranchID: q.Get("branch_id")}

	if raw := q.Get("direction"); raw != "" {
		direction, err := domain.ParseDirection(raw)
		if err != nil {
			response.FromError(w, customError.WrapInvalidRequest(err.Error()))
			return
		}
		filter.Direction = direction
	}

	var err error
	if filter.DateFrom, err = utils.ParseDateParam(q.Get("date_from"), false); err != nil {
		response.FromError(w, customError.WrapInvalidRequest(err.Error()))
		return
	}
	if filter.DateTo, err = utils.ParseDateParam(q.Get("date_to"), true); err != nil {
		response.FromError(w, customError.WrapInvalidRequest(err.Error()))
		return
	}

	dashboard, err := h.service.GetLoanDashboard(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.Success(w, dashboard)
}

func (h *LoanHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	account, err := h.service.CreateAccount(r.Context(), &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set(CacheInvalidateHeader, events.AccountKey(account.ID))
	response.Created(w, account)
}

func (h *LoanHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}

	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.Success(w, account)
}

// write runs a loan mutation and answers with the updated loan and the
// cache keys it invalidated.
func (h *LoanHandler) write(w http.ResponseWriter, r *http.Request, op func(context.Context) (*domain.Loan, error), extraKeys ...string) {
	loan, err := op(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	setInvalidation(w, loan, extraKeys...)
	response.Success(w, loan)
}

// decode reads and validates a JSON body, answering 400 itself on failure.
func (h *LoanHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.FromError(w, customError.WrapInvalidRequest("Invalid request body"))
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		response.FromError(w, validationError(err))
		return false
	}
	return true
}

func (h *LoanHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if customError.Code(err) == "" || customError.Code(err) == customError.ErrCodeDatabaseError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	response.FromError(w, err)
}

var amountFields = map[string]bool{
	"amount":          true,
	"total_amount":    true,
	"opening_balance": true,
}

// validationError reports amount rule failures as INVALID_AMOUNT and
// everything else as INVALID_REQUEST.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return customError.WrapInvalidRequest(err.Error())
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if amountFields[fe.Field()] {
			return customError.WrapInvalidAmount(fmt.Sprint(fe.Value()))
		}
		messages = append(messages, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return customError.WrapInvalidRequest(strings.Join(messages, "; "))
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := mux.Vars(r)[name]
	id, err := uuid.Parse(raw)
	if err != nil {
		response.FromError(w, customError.WrapInvalidRequest(fmt.Sprintf("Invalid %s: %q", name, raw)))
		return uuid.Nil, false
	}
	return id, true
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func setInvalidation(w http.ResponseWriter, loan *domain.Loan, extraKeys ...string) {
	keys := append(events.InvalidationKeys(loan), extraKeys...)
	w.Header().Set(CacheInvalidateHeader, strings.Join(keys, ","))
}
