package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CardStatus is the lifecycle state of a card
type CardStatus string

const (
	CardStatusActive  CardStatus = "ACTIVE"
	CardStatusBlocked CardStatus = "BLOCKED"
	CardStatusExpired CardStatus = "EXPIRED"
)

// Card represents a bank card
type Card struct {
	ID              int64           `json:"id"`
	EncryptedNumber string          `json:"-"` // Never leaves the service layer
	NumberHash      string          `json:"-"` // Keyed fingerprint, detects duplicate numbers
	Owner           string          `json:"owner"`
	ExpirationDate  time.Time       `json:"expiration_date"`
	Status          CardStatus      `json:"status"`
	Balance         decimal.Decimal `json:"balance"`
	UserID          int64           `json:"user_id"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CardView is the caller-facing projection of a card with a masked number
type CardView struct {
	ID             int64           `json:"id"`
	CardNumber     string          `json:"card_number"`
	Owner          string          `json:"owner"`
	ExpirationDate string          `json:"expiration_date"` // Format: YYYY-MM-DD
	Status         CardStatus      `json:"status"`
	Balance        decimal.Decimal `json:"balance"`
	UserID         int64           `json:"user_id"`
}

// NewCard holds the data required to issue a card record
type NewCard struct {
	Number         string
	Owner          string
	ExpirationDate time.Time
	UserID         int64
}
