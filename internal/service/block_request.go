package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Dan9191/bank-cards/internal/events"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/utils"
	"github.com/sirupsen/logrus"
)

// Notifier tells a cardholder the outcome of their block request
type Notifier interface {
	NotifyBlockRequestProcessed(ctx context.Context, user *models.User, req *models.BlockRequestView) error
}

// BlockRequestService runs the request/approve/reject workflow for blocking cards
type BlockRequestService struct {
	repo      repository.Store
	cards     *CardService
	vault     *utils.Vault
	publisher events.Publisher
	notifier  Notifier
	log       *logrus.Logger
	now       func() time.Time
}

// NewBlockRequestService initializes the workflow. notifier may be nil.
func NewBlockRequestService(repo repository.Store, cards *CardService, vault *utils.Vault, publisher events.Publisher, notifier Notifier, log *logrus.Logger) *BlockRequestService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &BlockRequestService{
		repo:      repo,
		cards:     cards,
		vault:     vault,
		publisher: publisher,
		notifier:  notifier,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateBlockRequest files a PENDING request from the caller for one of their ACTIVE cards
func (s *BlockRequestService) CreateBlockRequest(ctx context.Context, caller models.Caller, cardID int64, reason string) (*models.BlockRequestView, error) {
	card, err := s.repo.FindCardByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	exists, err := s.repo.UserExists(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.NotFoundf("user %d not found", caller.UserID)
	}
	if card.UserID != caller.UserID {
		return nil, models.Validationf("card %d does not belong to user %d", cardID, caller.UserID)
	}
	pending, err := s.repo.ExistsBlockRequestByCardIDAndStatus(ctx, cardID, models.BlockRequestPending)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, models.Validationf("card %d already has a pending block request", cardID)
	}
	if card.Status != models.CardStatusActive {
		return nil, models.Validationf("only active cards can be blocked on request, card %d is %s", cardID, card.Status)
	}

	req := &models.BlockRequest{
		CardID:    cardID,
		UserID:    caller.UserID,
		Status:    models.BlockRequestPending,
		Reason:    strings.TrimSpace(reason),
		CreatedAt: s.now(),
	}

	// The card lock serializes concurrent requests for the same card
	err = s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		locked, err := tx.LockCards(ctx, cardID)
		if err != nil {
			return err
		}
		if card = locked[cardID]; card == nil {
			return models.NotFoundf("card %d not found", cardID)
		}
		if card.Status != models.CardStatusActive {
			return models.Validationf("only active cards can be blocked on request, card %d is %s", cardID, card.Status)
		}
		existing, err := tx.FindBlockRequestByCardIDAndStatus(ctx, cardID, models.BlockRequestPending)
		if err == nil {
			return models.Validationf("card %d already has a pending block request %d", cardID, existing.ID)
		}
		if !errors.Is(err, models.ErrNotFound) {
			return err
		}
		return tx.CreateBlockRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.publisher, s.log, events.BlockRequestCreated, blockRequestEvent(req))
	s.log.Infof("Block request %d created for card %d by user %d", req.ID, cardID, caller.UserID)
	return s.toView(ctx, req, card), nil
}

// ApproveRequest blocks the card and marks the request APPROVED in one transaction.
// A request for an EXPIRED card cannot be approved and stays PENDING.
func (s *BlockRequestService) ApproveRequest(ctx context.Context, caller models.Caller, requestID int64) (*models.BlockRequestView, error) {
	var (
		card    *models.Card
		blocked bool
	)
	req, err := s.process(ctx, caller.UserID, requestID, func(tx repository.Tx, req *models.BlockRequest, locked *models.Card) error {
		var err error
		if blocked, err = s.cards.blockForRequest(ctx, tx, locked); err != nil {
			return err
		}
		card = locked
		req.Status = models.BlockRequestApproved
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.publisher, s.log, events.BlockRequestApproved, blockRequestEvent(req))
	if blocked {
		publish(ctx, s.publisher, s.log, events.CardBlocked, cardEvent(card))
	}
	s.log.Infof("Block request %d approved by admin %d, card %d is %s", req.ID, caller.UserID, card.ID, card.Status)

	view := s.toView(ctx, req, card)
	s.notify(ctx, req, view)
	return view, nil
}

// RejectRequest marks the request REJECTED; a non-blank note is appended to the reason
func (s *BlockRequestService) RejectRequest(ctx context.Context, caller models.Caller, requestID int64, rejectionReason string) (*models.BlockRequestView, error) {
	req, err := s.process(ctx, caller.UserID, requestID, func(_ repository.Tx, req *models.BlockRequest, _ *models.Card) error {
		req.Status = models.BlockRequestRejected
		req.Reason = appendRejectionReason(req.Reason, rejectionReason)
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.publisher, s.log, events.BlockRequestRejected, blockRequestEvent(req))
	s.log.Infof("Block request %d rejected by admin %d", req.ID, caller.UserID)

	view := s.toView(ctx, req, nil)
	s.notify(ctx, req, view)
	return view, nil
}

// process locks the request's card and then the PENDING request, checks the admin,
// applies decide and stamps the request. Card before request is the order
// DeleteCard and its cascade take the same rows in.
func (s *BlockRequestService) process(ctx context.Context, adminID, requestID int64, decide func(tx repository.Tx, req *models.BlockRequest, card *models.Card) error) (*models.BlockRequest, error) {
	var req *models.BlockRequest
	err := s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		unlocked, err := tx.FindBlockRequestByID(ctx, requestID)
		if err != nil {
			return err
		}
		cards, err := tx.LockCards(ctx, unlocked.CardID)
		if err != nil {
			return err
		}
		card := cards[unlocked.CardID]
		if card == nil {
			return models.NotFoundf("card %d not found", unlocked.CardID)
		}
		if req, err = tx.LockBlockRequest(ctx, requestID); err != nil {
			return err
		}
		if req.CardID != card.ID {
			return models.Validationf("block request %d changed while being processed", requestID)
		}

		admin, err := tx.FindUserByID(ctx, adminID)
		if err != nil {
			return err
		}
		if !admin.IsAdmin() {
			return models.Validationf("only an administrator can process block requests")
		}
		if req.Status != models.BlockRequestPending {
			return models.Validationf("block request %d is already %s", req.ID, req.Status)
		}

		if err := decide(tx, req, card); err != nil {
			return err
		}
		processedAt := s.now()
		req.ProcessedAt = &processedAt
		req.ProcessedBy = &admin.ID
		return tx.UpdateBlockRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// GetPendingRequests lists every PENDING request; admin only
func (s *BlockRequestService) GetPendingRequests(ctx context.Context, caller models.Caller) ([]models.BlockRequestView, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	reqs, err := s.repo.FindBlockRequestsByStatus(ctx, models.BlockRequestPending)
	if err != nil {
		return nil, err
	}
	return s.toViews(ctx, reqs), nil
}

// GetUserBlockRequests lists a user's requests to that user or an admin
func (s *BlockRequestService) GetUserBlockRequests(ctx context.Context, caller models.Caller, userID int64) ([]models.BlockRequestView, error) {
	if !caller.CanAccess(userID) {
		return nil, models.AccessDeniedf("access to block requests of user %d denied", userID)
	}
	reqs, err := s.repo.FindBlockRequestsByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.toViews(ctx, reqs), nil
}

// appendRejectionReason keeps the cardholder's reason and adds the admin's note after it
func appendRejectionReason(reason, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return reason
	}
	suffix := "(rejection reason: " + note + ")"
	if reason == "" {
		return suffix
	}
	return reason + " " + suffix
}

func (s *BlockRequestService) notify(ctx context.Context, req *models.BlockRequest, view *models.BlockRequestView) {
	if s.notifier == nil {
		return
	}
	user, err := s.repo.FindUserByID(ctx, req.UserID)
	if err != nil {
		s.log.Warnf("Failed to load user %d for block request %d notification: %v", req.UserID, req.ID, err)
		return
	}
	if err := s.notifier.NotifyBlockRequestProcessed(ctx, user, view); err != nil {
		s.log.Warnf("Failed to notify user %d about block request %d: %v", req.UserID, req.ID, err)
	}
}

// toView resolves the masked card number and the requester's name; card may be nil
func (s *BlockRequestService) toView(ctx context.Context, req *models.BlockRequest, card *models.Card) *models.BlockRequestView {
	view := &models.BlockRequestView{
		ID:               req.ID,
		CardID:           req.CardID,
		MaskedCardNumber: utils.PlaceholderMask,
		UserID:           req.UserID,
		Status:           req.Status,
		CreatedAt:        req.CreatedAt,
		ProcessedAt:      req.ProcessedAt,
		ProcessedBy:      req.ProcessedBy,
		Reason:           req.Reason,
	}

	if card == nil {
		if found, err := s.repo.FindCardByID(ctx, req.CardID); err == nil {
			card = found
		}
	}
	if card != nil {
		masked, err := s.vault.MaskStored(card.EncryptedNumber)
		if err != nil {
			s.log.Warnf("Failed to mask number of card %d: %v", card.ID, err)
		}
		view.MaskedCardNumber = masked
	}

	if user, err := s.repo.FindUserByID(ctx, req.UserID); err == nil {
		view.UserFullName = user.FullName()
	}
	return view
}

func (s *BlockRequestService) toViews(ctx context.Context, reqs []models.BlockRequest) []models.BlockRequestView {
	views := make([]models.BlockRequestView, 0, len(reqs))
	for i := range reqs {
		views = append(views, *s.toView(ctx, &reqs[i], nil))
	}
	return views
}

func blockRequestEvent(req *models.BlockRequest) events.BlockRequestEvent {
	ev := events.BlockRequestEvent{
		RequestID: req.ID,
		CardID:    req.CardID,
		UserID:    req.UserID,
		Status:    string(req.Status),
	}
	if req.ProcessedBy != nil {
		ev.AdminID = *req.ProcessedBy
	}
	return ev
}
