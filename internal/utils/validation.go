package utils

import (
	"time"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/shopspring/decimal"
)

// Policy holds the configured money ceilings
type Policy struct {
	MaxTransferAmount decimal.Decimal
	MaxBalance        decimal.Decimal
	now               func() time.Time
}

// NewPolicy initializes a validation policy
func NewPolicy(maxTransferAmount, maxBalance decimal.Decimal) *Policy {
	return &Policy{
		MaxTransferAmount: maxTransferAmount,
		MaxBalance:        maxBalance,
		now:               time.Now,
	}
}

// ValidateAmount requires 0 < amount <= MaxTransferAmount with at most two decimal places
func (p *Policy) ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || amount.GreaterThan(p.MaxTransferAmount) {
		return models.Validationf("invalid amount: must be positive and not exceed %s", p.MaxTransferAmount.StringFixed(2))
	}
	if !amount.Equal(amount.Round(2)) {
		return models.Validationf("invalid amount: at most two decimal places allowed")
	}
	return nil
}

// ValidateExpirationDate rejects a zero date and dates before today
func (p *Policy) ValidateExpirationDate(date time.Time) error {
	if date.IsZero() {
		return models.Validationf("expiration date is required")
	}
	if truncateDay(date).Before(truncateDay(p.now())) {
		return models.Validationf("card has expired")
	}
	return nil
}

// ValidateBalance requires 0 <= balance <= MaxBalance
func (p *Policy) ValidateBalance(balance decimal.Decimal) error {
	if balance.IsNegative() || balance.GreaterThan(p.MaxBalance) {
		return models.Validationf("invalid balance: must be non-negative and not exceed %s", p.MaxBalance.StringFixed(2))
	}
	return nil
}

// Today returns the current calendar date at midnight UTC
func (p *Policy) Today() time.Time {
	return truncateDay(p.now())
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
