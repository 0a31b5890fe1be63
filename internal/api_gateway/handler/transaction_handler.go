package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/multicurrency-ledger/internal/api_gateway/middleware"
	"github.com/multicurrency-ledger/internal/api_gateway/service"
	"github.com/multicurrency-ledger/internal/domain/account"
	"github.com/multicurrency-ledger/internal/domain/ledger"
)

// IdempotencyKeyHeader carries the client-chosen key of a money-movement request
const IdempotencyKeyHeader = "Idempotency-Key"

// TransactionHandler handles HTTP requests for money movements and the journal
type TransactionHandler struct {
	transactionService service.TransactionService
	logger             *slog.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(logger *slog.Logger, transactionService service.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		logger:             logger,
	}
}

// Deposit credits an account
func (h *TransactionHandler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	destination, err := parseOptionalID(req.AccountID)
	if err != nil {
		RespondBadRequest(c, "Invalid account ID")
		return
	}

	h.submit(c, ledger.Operation{
		Kind:                 ledger.KindDeposit,
		Amount:               req.Amount,
		Currency:             account.Currency(req.Currency),
		DestinationAccountID: destination,
		Description:          req.Description,
	})
}

// Withdraw debits an account
func (h *TransactionHandler) Withdraw(c *gin.Context) {
	var req WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	source, err := parseOptionalID(req.AccountID)
	if err != nil {
		RespondBadRequest(c, "Invalid account ID")
		return
	}

	h.submit(c, ledger.Operation{
		Kind:            ledger.KindWithdraw,
		Amount:          req.Amount,
		Currency:        account.Currency(req.Currency),
		SourceAccountID: source,
		Description:     req.Description,
	})
}

// Transfer moves funds between two accounts
func (h *TransactionHandler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	source, err := parseOptionalID(req.SourceAccountID)
	if err != nil {
		RespondBadRequest(c, "Invalid source account ID")
		return
	}
	destination, err := parseOptionalID(req.DestinationAccountID)
	if err != nil {
		RespondBadRequest(c, "Invalid destination account ID")
		return
	}

	h.submit(c, ledger.Operation{
		Kind:                 ledger.KindTransfer,
		Amount:               req.Amount,
		Currency:             account.Currency(req.Currency),
		SourceAccountID:      source,
		DestinationAccountID: destination,
		Description:          req.Description,
	})
}

// submit runs op under the request's idempotency key.
// Replays produce the same status code as the first response.
func (h *TransactionHandler) submit(c *gin.Context, op ledger.Operation) {
	op.IdempotencyKey = strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if op.IdempotencyKey == "" {
		RespondBadRequest(c, IdempotencyKeyHeader+" header is required")
		return
	}

	logger := h.logger.With("idempotency_key", op.IdempotencyKey, "correlation_id", middleware.GetCorrelationID(c))

	tx, err := h.transactionService.Submit(c.Request.Context(), op)
	if err != nil {
		h.respondSubmitError(c, logger, err)
		return
	}

	response := mapTransactionToResponse(tx)
	if tx.Committed() {
		RespondCreated(c, response)
		return
	}
	RespondUnprocessable(c, response, string(tx.Rejection.Reason), tx.Rejection.Message)
}

func (h *TransactionHandler) respondSubmitError(c *gin.Context, logger *slog.Logger, err error) {
	var lerr *ledger.Error
	if !errors.As(err, &lerr) {
		logger.Error("Failed to submit operation", "error", err)
		RespondInternalError(c)
		return
	}

	switch lerr.Reason {
	case ledger.ReasonIdempotencyKeyReuse, ledger.ReasonIdempotencyInFlight:
		logger.Warn("Idempotency key conflict", "reason", string(lerr.Reason))
		RespondConflict(c, string(lerr.Reason), lerr.Message)
	case ledger.ReasonInvalidOperation:
		RespondBadRequest(c, lerr.Message)
	case ledger.ReasonConcurrencyConflict:
		logger.Warn("Operation lost to concurrent updates", "error", err)
		RespondServiceUnavailable(c, string(lerr.Reason), lerr.Message)
	case ledger.ReasonJournalUnavailable:
		logger.Error("Operation applied but not journaled", "error", err)
		RespondServiceUnavailable(c, string(lerr.Reason), lerr.Message)
	case ledger.ReasonInternalInconsistency:
		logger.Error("Operation left the ledger inconsistent", "error", err)
		RespondWithError(c, http.StatusInternalServerError, string(lerr.Reason), "The operation could not be completed safely")
	default:
		logger.Error("Failed to submit operation", "error", err)
		RespondInternalError(c)
	}
}

// GetByID retrieves transaction details by its ID, returns 404 if not found
func (h *TransactionHandler) GetByID(c *gin.Context) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid transaction ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid transaction ID")
		return
	}

	tx, err := h.transactionService.GetTransactionByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get transaction", "id", idParam, "error", err)
		RespondInternalError(c)
		return
	}
	if tx == nil {
		RespondNotFound(c, "Transaction not found")
		return
	}

	RespondOK(c, mapTransactionToResponse(tx))
}

// List pages through the journal, newest first
func (h *TransactionHandler) List(c *gin.Context) {
	var params ListTransactionsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.logger.Error("Invalid query parameters", "error", err)
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	filter, err := params.filter()
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	txs, total, err := h.transactionService.ListTransactions(c.Request.Context(), filter, params.Page, params.PerPage)
	if err != nil {
		h.logger.Error("Failed to list transactions", "error", err)
		RespondInternalError(c)
		return
	}

	transactions := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		transactions = append(transactions, mapTransactionToResponse(tx))
	}

	RespondWithPaginatedData(c, http.StatusOK, transactions, params.Page, params.PerPage, int(total))
}

func (p ListTransactionsParams) filter() (ledger.Filter, error) {
	filter := ledger.Filter{
		Kind:   ledger.Kind(p.Kind),
		Status: ledger.Status(p.Status),
	}

	var err error
	if filter.AccountID, err = parseOptionalID(p.AccountID); err != nil {
		return filter, errors.New("invalid account_id")
	}
	if filter.From, err = parseTime(p.From); err != nil {
		return filter, fmt.Errorf("invalid from: %w", err)
	}
	if filter.To, err = parseTime(p.To); err != nil {
		return filter, fmt.Errorf("invalid to: %w", err)
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return filter, errors.New("from must be before to")
	}
	return filter, nil
}

// parseTime accepts RFC 3339 timestamps or plain dates (midnight UTC)
func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("expected RFC 3339 timestamp or YYYY-MM-DD date, got %q", s)
	}
	return &t, nil
}

func parseOptionalID(s string) (*uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// mapTransactionToResponse maps a journal transaction to a response DTO
func mapTransactionToResponse(tx *ledger.Transaction) TransactionResponse {
	response := TransactionResponse{
		ID:             tx.ID.String(),
		Reference:      tx.Reference,
		Kind:           string(tx.Kind),
		Status:         string(tx.Status),
		Amount:         tx.Amount.String(),
		Currency:       string(tx.Currency),
		Description:    tx.Description,
		IdempotencyKey: tx.IdempotencyKey,
		OccurredAt:     tx.OccurredAt.Format(time.RFC3339Nano),
	}
	if tx.SourceAccountID != nil {
		response.SourceAccountID = tx.SourceAccountID.String()
	}
	if tx.DestinationAccountID != nil {
		response.DestinationAccountID = tx.DestinationAccountID.String()
	}

	if r := tx.Rejection; r != nil {
		response.Rejection = &RejectionResponse{
			Reason:  string(r.Reason),
			Field:   r.Field,
			Message: r.Message,
		}
		if r.AccountID != nil {
			response.Rejection.AccountID = r.AccountID.String()
		}
		if r.Balance != nil {
			response.Rejection.Balance = r.Balance.StringFixed(2)
		}
	}
	return response
}
