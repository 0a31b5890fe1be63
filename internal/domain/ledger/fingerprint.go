package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint hashes the normalized payload of an operation.
// Keys are sorted and amounts rendered as plain decimal strings so that
// equivalent requests ("50", "50.00") hash the same.
func Fingerprint(op Operation) (string, error) {
	payload := map[string]string{
		"kind":     string(op.Kind),
		"amount":   op.Amount.String(),
		"currency": string(op.Currency),
	}
	if op.SourceAccountID != nil {
		payload["source_account_id"] = op.SourceAccountID.String()
	}
	if op.DestinationAccountID != nil {
		payload["destination_account_id"] = op.DestinationAccountID.String()
	}
	if op.Description != "" {
		payload["description"] = op.Description
	}

	// encoding/json writes map keys in sorted order
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
