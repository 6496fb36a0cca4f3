package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/shopspring/decimal"
)

type createCardRequest struct {
	CardNumber     string `json:"card_number" validate:"required"`
	Owner          string `json:"owner" validate:"required,max=100"`
	ExpirationDate string `json:"expiration_date" validate:"required,datetime=2006-01-02"`
	// UserID defaults to the caller; only admins may issue cards to others
	UserID int64 `json:"user_id" validate:"gte=0"`
}

type transferRequest struct {
	FromCardID int64           `json:"from_card_id" validate:"required,gt=0"`
	ToCardID   int64           `json:"to_card_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
}

// CreateCard handles card creation
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req createCardRequest
	if !h.decode(w, r, &req) {
		return
	}

	expiration, err := time.Parse("2006-01-02", req.ExpirationDate)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Message: "Date must be in YYYY-MM-DD format"})
		return
	}
	userID := req.UserID
	if userID == 0 {
		userID = caller.UserID
	}

	card, err := h.cards.CreateCard(r.Context(), caller, models.NewCard{
		Number:         req.CardNumber,
		Owner:          req.Owner,
		ExpirationDate: expiration,
		UserID:         userID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, card)
}

// GetCard returns a single card
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	cardID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	card, err := h.cards.GetCard(r.Context(), caller, cardID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, card)
}

// MyCards lists the caller's cards
func (h *Handler) MyCards(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	cards, err := h.cards.ListUserCards(r.Context(), caller, caller.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cards)
}

// ListCards lists every card for an admin
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	cards, err := h.cards.ListCards(r.Context(), caller)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cards)
}

// GetBalance returns the balance of one card
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	cardID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	balance, err := h.cards.GetBalance(r.Context(), caller, cardID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"card_id": cardID, "balance": balance})
}

// BlockCard blocks a card (admin)
func (h *Handler) BlockCard(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.cards.BlockCard)
}

// ActivateCard re-activates a blocked card (admin)
func (h *Handler) ActivateCard(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.cards.ActivateCard)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, caller models.Caller, cardID int64) (*models.CardView, error)) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	cardID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	card, err := apply(r.Context(), caller, cardID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, card)
}

// DeleteCard removes a card (admin)
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	cardID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.cards.DeleteCard(r.Context(), caller, cardID); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transfer moves money between two of the caller's cards
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.cards.Transfer(r.Context(), caller, req.FromCardID, req.ToCardID, req.Amount); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Transfer completed"})
}
