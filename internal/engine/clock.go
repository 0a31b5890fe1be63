package engine

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Clock supplies transaction timestamps
type Clock interface {
	Now() time.Time
}

// IDGenerator supplies transaction ids and human-shareable references
type IDGenerator interface {
	NewTransactionID() uuid.UUID
	NewReference() string
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type randomIDs struct{}

func (randomIDs) NewTransactionID() uuid.UUID { return uuid.New() }

// NewReference returns 32 lowercase hex characters
func (randomIDs) NewReference() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
