package models

import "time"

// BlockRequestStatus is the state of a cardholder's block request
type BlockRequestStatus string

const (
	BlockRequestPending  BlockRequestStatus = "PENDING"
	BlockRequestApproved BlockRequestStatus = "APPROVED"
	BlockRequestRejected BlockRequestStatus = "REJECTED"
)

// BlockRequest represents a cardholder's request to have a card blocked
type BlockRequest struct {
	ID          int64              `json:"id"`
	CardID      int64              `json:"card_id"`
	UserID      int64              `json:"user_id"`
	Status      BlockRequestStatus `json:"status"`
	Reason      string             `json:"reason"`
	CreatedAt   time.Time          `json:"created_at"`
	ProcessedAt *time.Time         `json:"processed_at,omitempty"`
	ProcessedBy *int64             `json:"processed_by,omitempty"`
}

// BlockRequestView is the caller-facing projection of a block request
type BlockRequestView struct {
	ID               int64              `json:"id"`
	CardID           int64              `json:"card_id"`
	MaskedCardNumber string             `json:"masked_card_number"`
	UserID           int64              `json:"user_id"`
	UserFullName     string             `json:"user_full_name,omitempty"`
	Status           BlockRequestStatus `json:"status"`
	CreatedAt        time.Time          `json:"created_at"`
	ProcessedAt      *time.Time         `json:"processed_at,omitempty"`
	ProcessedBy      *int64             `json:"processed_by,omitempty"`
	Reason           string             `json:"reason,omitempty"`
}
