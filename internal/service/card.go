package service

import (
	"context"
	"strings"

	"github.com/Dan9191/bank-cards/internal/events"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CardService owns every mutation of card status and balance
type CardService struct {
	repo      repository.Store
	vault     *utils.Vault
	policy    *utils.Policy
	publisher events.Publisher
	log       *logrus.Logger
}

// NewCardService initializes the card ledger
func NewCardService(repo repository.Store, vault *utils.Vault, policy *utils.Policy, publisher events.Publisher, log *logrus.Logger) *CardService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &CardService{repo: repo, vault: vault, policy: policy, publisher: publisher, log: log}
}

// CreateCard validates and encrypts the number and stores an ACTIVE card with zero balance
func (s *CardService) CreateCard(ctx context.Context, caller models.Caller, in models.NewCard) (*models.CardView, error) {
	if !caller.CanAccess(in.UserID) {
		return nil, models.AccessDeniedf("cannot create a card for another user")
	}
	if strings.TrimSpace(in.Owner) == "" {
		return nil, models.Validationf("card owner is required")
	}
	if err := utils.ValidatePAN(in.Number); err != nil {
		return nil, err
	}
	if err := s.policy.ValidateExpirationDate(in.ExpirationDate); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindUserByID(ctx, in.UserID); err != nil {
		return nil, err
	}

	encrypted, err := s.vault.Encrypt(in.Number)
	if err != nil {
		return nil, err
	}

	card := &models.Card{
		EncryptedNumber: encrypted,
		NumberHash:      s.vault.Fingerprint(in.Number),
		Owner:           strings.TrimSpace(in.Owner),
		ExpirationDate:  in.ExpirationDate,
		Status:          models.CardStatusActive,
		Balance:         decimal.Zero,
		UserID:          in.UserID,
	}
	if err := s.repo.CreateCard(ctx, card); err != nil {
		return nil, err
	}

	publish(ctx, s.publisher, s.log, events.CardCreated, cardEvent(card))
	s.log.Infof("Card %d created for user %d", card.ID, card.UserID)
	return s.toView(card), nil
}

// GetCard returns one card to its owner or an admin
func (s *CardService) GetCard(ctx context.Context, caller models.Caller, cardID int64) (*models.CardView, error) {
	card, err := s.repo.FindCardByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(card.UserID) {
		return nil, models.AccessDeniedf("access to card %d denied", cardID)
	}
	return s.toView(card), nil
}

// ListUserCards returns a user's cards to that user or an admin
func (s *CardService) ListUserCards(ctx context.Context, caller models.Caller, userID int64) ([]models.CardView, error) {
	if !caller.CanAccess(userID) {
		return nil, models.AccessDeniedf("access to cards of user %d denied", userID)
	}
	cards, err := s.repo.FindCardsByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.toViews(cards), nil
}

// ListCards returns every card; admin only
func (s *CardService) ListCards(ctx context.Context, caller models.Caller) ([]models.CardView, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	cards, err := s.repo.FindAllCards(ctx)
	if err != nil {
		return nil, err
	}
	return s.toViews(cards), nil
}

// BlockCard moves an ACTIVE card to BLOCKED; admin only
func (s *CardService) BlockCard(ctx context.Context, caller models.Caller, cardID int64) (*models.CardView, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	card, err := s.changeStatus(ctx, cardID, func(card *models.Card) error {
		switch card.Status {
		case models.CardStatusBlocked:
			return models.Validationf("card %d is already blocked", card.ID)
		case models.CardStatusExpired:
			return models.Validationf("expired card %d cannot be blocked", card.ID)
		}
		card.Status = models.CardStatusBlocked
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.publisher, s.log, events.CardBlocked, cardEvent(card))
	s.log.Infof("Card %d blocked by admin %d", card.ID, caller.UserID)
	return s.toView(card), nil
}

// ActivateCard moves a BLOCKED card back to ACTIVE; admin only
func (s *CardService) ActivateCard(ctx context.Context, caller models.Caller, cardID int64) (*models.CardView, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	card, err := s.changeStatus(ctx, cardID, func(card *models.Card) error {
		if card.Status != models.CardStatusBlocked {
			return models.Validationf("only blocked cards can be activated, card %d is %s", card.ID, card.Status)
		}
		card.Status = models.CardStatusActive
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.publisher, s.log, events.CardActivated, cardEvent(card))
	s.log.Infof("Card %d activated by admin %d", card.ID, caller.UserID)
	return s.toView(card), nil
}

// DeleteCard removes a card permanently; admin only
func (s *CardService) DeleteCard(ctx context.Context, caller models.Caller, cardID int64) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	exists, err := s.repo.CardExists(ctx, cardID)
	if err != nil {
		return err
	}
	if !exists {
		return models.NotFoundf("card %d not found", cardID)
	}

	// The card row is locked before the cascade reaches its block requests,
	// the same order the approval workflow locks them in.
	err = s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		locked, err := tx.LockCards(ctx, cardID)
		if err != nil {
			return err
		}
		if locked[cardID] == nil {
			return models.NotFoundf("card %d not found", cardID)
		}
		return tx.DeleteCard(ctx, cardID)
	})
	if err != nil {
		return err
	}

	publish(ctx, s.publisher, s.log, events.CardDeleted, events.CardEvent{CardID: cardID})
	s.log.Infof("Card %d deleted by admin %d", cardID, caller.UserID)
	return nil
}

// GetBalance returns the balance to the card owner or an admin
func (s *CardService) GetBalance(ctx context.Context, caller models.Caller, cardID int64) (decimal.Decimal, error) {
	card, err := s.repo.FindCardByID(ctx, cardID)
	if err != nil {
		return decimal.Zero, err
	}
	if !caller.CanAccess(card.UserID) {
		return decimal.Zero, models.AccessDeniedf("access to card %d denied", cardID)
	}
	return card.Balance, nil
}

// Transfer moves amount between two ACTIVE cards of the caller.
// Preconditions are checked on a plain read, then both cards are locked in
// ascending id order and checked again before the debit and credit are written
// in the same transaction.
func (s *CardService) Transfer(ctx context.Context, caller models.Caller, fromCardID, toCardID int64, amount decimal.Decimal) error {
	if fromCardID == toCardID {
		return models.Validationf("cannot transfer to the same card")
	}

	from, err := s.repo.FindCardByID(ctx, fromCardID)
	if err != nil {
		return err
	}
	to, err := s.repo.FindCardByID(ctx, toCardID)
	if err != nil {
		return err
	}
	if err := s.checkTransfer(caller, from, to, amount); err != nil {
		return err
	}

	err = s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		locked, err := tx.LockCards(ctx, fromCardID, toCardID)
		if err != nil {
			return err
		}
		from, to = locked[fromCardID], locked[toCardID]
		if from == nil {
			return models.NotFoundf("card %d not found", fromCardID)
		}
		if to == nil {
			return models.NotFoundf("card %d not found", toCardID)
		}
		if err := s.checkTransfer(caller, from, to, amount); err != nil {
			return err
		}

		from.Balance = from.Balance.Sub(amount)
		to.Balance = to.Balance.Add(amount)
		if err := tx.UpdateCard(ctx, from); err != nil {
			return err
		}
		return tx.UpdateCard(ctx, to)
	})
	if err != nil {
		return err
	}

	publish(ctx, s.publisher, s.log, events.TransferCompleted, events.TransferEvent{
		FromCardID: fromCardID,
		ToCardID:   toCardID,
		UserID:     caller.UserID,
		Amount:     amount,
	})
	s.log.Infof("Transferred %s from card %d to card %d for user %d", amount.StringFixed(2), fromCardID, toCardID, caller.UserID)
	return nil
}

func (s *CardService) checkTransfer(caller models.Caller, from, to *models.Card, amount decimal.Decimal) error {
	if from.UserID != caller.UserID || to.UserID != caller.UserID {
		return models.AccessDeniedf("transfers are only allowed between your own cards")
	}
	if from.Status != models.CardStatusActive || to.Status != models.CardStatusActive {
		return models.Validationf("both cards must be active")
	}
	if from.Balance.LessThan(amount) {
		return models.Validationf("insufficient funds on card %d", from.ID)
	}
	if err := s.policy.ValidateAmount(amount); err != nil {
		return err
	}
	return s.policy.ValidateBalance(to.Balance.Add(amount))
}

// ExpireCards marks every card whose expiration date has passed as EXPIRED
func (s *CardService) ExpireCards(ctx context.Context) ([]int64, error) {
	ids, err := s.repo.ExpireCards(ctx, s.policy.Today())
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		publish(ctx, s.publisher, s.log, events.CardExpired, events.CardEvent{CardID: id, Status: string(models.CardStatusExpired)})
	}
	if len(ids) > 0 {
		s.log.Infof("Expired %d cards", len(ids))
	}
	return ids, nil
}

// blockForRequest applies the card side of an approved block request to a card
// already locked in tx. A BLOCKED card keeps its status and blocked is false.
func (s *CardService) blockForRequest(ctx context.Context, tx repository.Tx, card *models.Card) (blocked bool, err error) {
	switch card.Status {
	case models.CardStatusBlocked:
		return false, nil
	case models.CardStatusExpired:
		return false, models.Validationf("expired card %d cannot be blocked", card.ID)
	}
	card.Status = models.CardStatusBlocked
	if err := tx.UpdateCard(ctx, card); err != nil {
		return false, err
	}
	return true, nil
}

// changeStatus locks one card, lets mutate check and change it, and saves it
func (s *CardService) changeStatus(ctx context.Context, cardID int64, mutate func(card *models.Card) error) (*models.Card, error) {
	var card *models.Card
	err := s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		locked, err := tx.LockCards(ctx, cardID)
		if err != nil {
			return err
		}
		if card = locked[cardID]; card == nil {
			return models.NotFoundf("card %d not found", cardID)
		}
		if err := mutate(card); err != nil {
			return err
		}
		return tx.UpdateCard(ctx, card)
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// maskNumber never fails: an undecryptable number is shown as the placeholder mask
func (s *CardService) maskNumber(card *models.Card) string {
	masked, err := s.vault.MaskStored(card.EncryptedNumber)
	if err != nil {
		s.log.Warnf("Failed to mask number of card %d: %v", card.ID, err)
	}
	return masked
}

func (s *CardService) toView(card *models.Card) *models.CardView {
	return &models.CardView{
		ID:             card.ID,
		CardNumber:     s.maskNumber(card),
		Owner:          card.Owner,
		ExpirationDate: card.ExpirationDate.Format("2006-01-02"),
		Status:         card.Status,
		Balance:        card.Balance,
		UserID:         card.UserID,
	}
}

func (s *CardService) toViews(cards []models.Card) []models.CardView {
	views := make([]models.CardView, 0, len(cards))
	for i := range cards {
		views = append(views, *s.toView(&cards[i]))
	}
	return views
}

func cardEvent(card *models.Card) events.CardEvent {
	return events.CardEvent{CardID: card.ID, UserID: card.UserID, Status: string(card.Status)}
}
