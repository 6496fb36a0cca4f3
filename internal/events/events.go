package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	CardCreated   = "card.created"
	CardBlocked   = "card.blocked"
	CardActivated = "card.activated"
	CardDeleted   = "card.deleted"
	CardExpired   = "card.expired"

	TransferCompleted = "transfer.completed"

	BlockRequestCreated  = "block_request.created"
	BlockRequestApproved = "block_request.approved"
	BlockRequestRejected = "block_request.rejected"
)

// CardEventsStream is the Redis stream every card event goes to
const CardEventsStream = "card.events"

// Event is the envelope written to the stream
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Publisher emits domain events after a unit of work commits
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any) error
}

// CardEvent is the payload of card lifecycle events
type CardEvent struct {
	CardID int64  `json:"cardId"`
	UserID int64  `json:"userId"`
	Status string `json:"status"`
}

// TransferEvent is the payload of transfer.completed
type TransferEvent struct {
	FromCardID int64           `json:"fromCardId"`
	ToCardID   int64           `json:"toCardId"`
	UserID     int64           `json:"userId"`
	Amount     decimal.Decimal `json:"amount"`
}

// BlockRequestEvent is the payload of block request events
type BlockRequestEvent struct {
	RequestID int64  `json:"requestId"`
	CardID    int64  `json:"cardId"`
	UserID    int64  `json:"userId"`
	AdminID   int64  `json:"adminId,omitempty"`
	Status    string `json:"status"`
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
