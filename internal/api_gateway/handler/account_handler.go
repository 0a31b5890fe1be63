package handler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/multicurrency-ledger/internal/api_gateway/service"
	"github.com/multicurrency-ledger/internal/domain/account"
)

// AccountHandler handles HTTP requests for account operations
type AccountHandler struct {
	accountService service.AccountService
	logger         *slog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(logger *slog.Logger, accountService service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		logger:         logger,
	}
}

// Create opens an empty account. Funds arrive through deposits only.
func (h *AccountHandler) Create(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		RespondBadRequest(c, "Invalid owner ID")
		return
	}

	acc, err := h.accountService.CreateAccount(c.Request.Context(), ownerID, req.Currency)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCurrency) || errors.Is(err, account.ErrEmptyOwner) {
			RespondBadRequest(c, err.Error())
			return
		}
		var duplicate account.ErrDuplicateAccount
		if errors.As(err, &duplicate) {
			h.logger.Warn("Account id collision", "account_id", duplicate.AccountID.String())
			RespondConflict(c, "CONFLICT", "Account already exists")
			return
		}
		h.logger.Error("Failed to create account", "error", err)
		RespondInternalError(c)
		return
	}

	RespondCreated(c, mapAccountToResponse(acc))
}

// GetByID retrieves an account by its ID, returning 404 if not found
func (h *AccountHandler) GetByID(c *gin.Context) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid account ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid account ID")
		return
	}

	acc, err := h.accountService.GetAccountByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound{}) {
			RespondNotFound(c, "Account not found")
			return
		}
		h.logger.Error("Failed to get account", "id", idParam, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapAccountToResponse(acc))
}

// ListByOwner lists an owner's accounts with their balances
func (h *AccountHandler) ListByOwner(c *gin.Context) {
	ownerParam := c.Query("owner_id")
	ownerID, err := uuid.Parse(ownerParam)
	if err != nil || ownerID == uuid.Nil {
		RespondBadRequest(c, "owner_id query parameter must be a UUID")
		return
	}

	accounts, err := h.accountService.ListAccountsByOwner(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Error("Failed to list accounts", "owner_id", ownerParam, "error", err)
		RespondInternalError(c)
		return
	}

	response := make([]AccountResponse, 0, len(accounts))
	for _, acc := range accounts {
		response = append(response, mapAccountToResponse(acc))
	}
	RespondOK(c, response)
}

// BalanceTotals reports the sum of balances per currency
func (h *AccountHandler) BalanceTotals(c *gin.Context) {
	totals, err := h.accountService.BalanceTotals(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to compute balance totals", "error", err)
		RespondInternalError(c)
		return
	}

	response := make([]BalanceTotalResponse, 0, len(totals))
	for _, t := range totals {
		response = append(response, BalanceTotalResponse{
			Currency:         string(t.Currency),
			Balance:          t.Balance.StringFixed(2),
			AvailableBalance: t.AvailableBalance.StringFixed(2),
			Accounts:         t.Accounts,
		})
	}
	RespondOK(c, response)
}

// mapAccountToResponse maps an account entity to an account response DTO
func mapAccountToResponse(acc *account.Account) AccountResponse {
	return AccountResponse{
		ID:               acc.ID.String(),
		OwnerID:          acc.OwnerID.String(),
		Currency:         string(acc.Currency),
		Balance:          acc.Balance.StringFixed(2),
		AvailableBalance: acc.AvailableBalance.StringFixed(2),
		Version:          acc.Version,
		CreatedAt:        acc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        acc.UpdatedAt.Format(time.RFC3339),
	}
}
