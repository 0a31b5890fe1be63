// Package intake feeds operation requests from Kafka into the engine.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/multicurrency-ledger/internal/domain/account"
	"github.com/multicurrency-ledger/internal/domain/ledger"
	"github.com/multicurrency-ledger/internal/engine"
	"github.com/multicurrency-ledger/internal/platform/messaging/producers"
)

// OperationMessage is the wire format of the operation topic
type OperationMessage struct {
	Kind                 string          `json:"kind"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	SourceAccountID      *uuid.UUID      `json:"source_account_id,omitempty"`
	DestinationAccountID *uuid.UUID      `json:"destination_account_id,omitempty"`
	Description          string          `json:"description,omitempty"`
	IdempotencyKey       string          `json:"idempotency_key"`
	CorrelationID        string          `json:"correlation_id,omitempty"`
}

// Operation converts the message into an engine operation
func (m OperationMessage) Operation() ledger.Operation {
	return ledger.Operation{
		Kind:                 ledger.Kind(m.Kind),
		Amount:               m.Amount,
		Currency:             account.Currency(m.Currency),
		SourceAccountID:      m.SourceAccountID,
		DestinationAccountID: m.DestinationAccountID,
		Description:          m.Description,
		IdempotencyKey:       m.IdempotencyKey,
	}
}

// OperationHandler submits operation messages to the engine.
// Returning nil commits the message offset.
type OperationHandler struct {
	submitter engine.Submitter
	producer  producers.DeadLetterPublisher
	logger    *slog.Logger
}

func NewOperationHandler(
	logger *slog.Logger,
	submitter engine.Submitter,
	producer producers.DeadLetterPublisher,
) *OperationHandler {
	return &OperationHandler{
		submitter: submitter,
		producer:  producer,
		logger:    logger,
	}
}

// HandleMessage decodes and submits one operation message
func (h *OperationHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var msg OperationMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		h.logger.Error("Failed to unmarshal operation message", "message_key", string(key), "error", err)
		return h.park(ctx, key, value, fmt.Sprintf("undecodable operation: %s", err), err)
	}

	logger := h.logger.With("idempotency_key", msg.IdempotencyKey)
	if msg.CorrelationID != "" {
		logger = logger.With("correlation_id", msg.CorrelationID)
	}
	logger.Info("Received operation for processing", "kind", msg.Kind, "amount", msg.Amount.String(), "currency", msg.Currency)

	tx, err := h.submitter.Submit(ctx, msg.Operation())
	if err != nil {
		if permanent(err) {
			logger.Warn("Operation can never succeed, parking it", "error", err)
			return h.park(ctx, key, value, err.Error(), err)
		}
		logger.Error("Failed to submit operation", "error", err)
		return fmt.Errorf("submitting operation %q failed: %w", msg.IdempotencyKey, err)
	}

	logger.Info("Processed operation",
		"transaction_id", tx.ID.String(),
		"status", string(tx.Status),
	)
	return nil
}

// park sends the message to the DLQ; the offset is committed only if that worked
func (h *OperationHandler) park(ctx context.Context, key, value []byte, reason string, cause error) error {
	if h.producer == nil {
		return fmt.Errorf("no dead letter queue for message %q: %w", string(key), cause)
	}
	if err := h.producer.PublishToDLQ(ctx, string(key), value, reason); err != nil {
		h.logger.Error("Failed to publish message to DLQ",
			"dlq_error", err,
			"original_error", cause,
			"message_key", string(key),
		)
		return errors.Join(cause, err)
	}
	return nil
}

// permanent reports engine errors that a redelivery cannot fix
func permanent(err error) bool {
	reason, ok := ledger.ReasonOf(err)
	if !ok {
		return false
	}
	switch reason {
	case ledger.ReasonIdempotencyKeyReuse, ledger.ReasonInvalidOperation, ledger.ReasonInternalInconsistency:
		return true
	}
	return false
}
