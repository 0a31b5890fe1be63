package handler

import (
	"github.com/shopspring/decimal"
)

// CreateAccountRequest represents a request to open an account
type CreateAccountRequest struct {
	OwnerID  string `json:"owner_id" binding:"required,uuid"`
	Currency string `json:"currency" binding:"required,len=3"`
}

// AccountResponse represents an account in API responses
type AccountResponse struct {
	ID               string `json:"id"`
	OwnerID          string `json:"owner_id"`
	Currency         string `json:"currency"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"available_balance"`
	Version          int    `json:"version"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// BalanceTotalResponse is the sum of balances held in one currency
type BalanceTotalResponse struct {
	Currency         string `json:"currency"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"available_balance"`
	Accounts         int64  `json:"accounts"`
}

// Account ids stay strings so that a missing id reaches the engine as an
// INVALID_OPERATION rejection while a malformed one is a 400.

// DepositRequest credits account_id
type DepositRequest struct {
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
}

// WithdrawalRequest debits account_id
type WithdrawalRequest struct {
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
}

// TransferRequest moves funds between two accounts of the same currency
type TransferRequest struct {
	SourceAccountID      string          `json:"source_account_id"`
	DestinationAccountID string          `json:"destination_account_id"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Description          string          `json:"description"`
}

// RejectionResponse explains why a transaction was rejected
type RejectionResponse struct {
	Reason    string `json:"reason"`
	Field     string `json:"field,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	Balance   string `json:"balance,omitempty"`
	Message   string `json:"message"`
}

// TransactionResponse represents a transaction in API responses
type TransactionResponse struct {
	ID                   string             `json:"id"`
	Reference            string             `json:"reference"`
	Kind                 string             `json:"kind"`
	Status               string             `json:"status"`
	Amount               string             `json:"amount"`
	Currency             string             `json:"currency"`
	SourceAccountID      string             `json:"source_account_id,omitempty"`
	DestinationAccountID string             `json:"destination_account_id,omitempty"`
	Description          string             `json:"description,omitempty"`
	IdempotencyKey       string             `json:"idempotency_key"`
	OccurredAt           string             `json:"occurred_at"`
	Rejection            *RejectionResponse `json:"rejection,omitempty"`
}

// ListTransactionsParams are the query parameters of the transaction listing
type ListTransactionsParams struct {
	AccountID string `form:"account_id" binding:"omitempty,uuid"`
	Kind      string `form:"kind" binding:"omitempty,oneof=deposit transfer withdraw"`
	Status    string `form:"status" binding:"omitempty,oneof=committed rejected"`
	From      string `form:"from"`
	To        string `form:"to"`
	PaginationParams
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=20" binding:"min=1,max=100"`
}
