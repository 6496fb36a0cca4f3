package handler

import (
	"net/http"
)

type blockRequestRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type rejectRequest struct {
	RejectionReason string `json:"rejection_reason" validate:"max=500"`
}

// CreateBlockRequest files a block request for one of the caller's cards
func (h *Handler) CreateBlockRequest(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	cardID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	// reason is optional, so an empty body is accepted
	var req blockRequestRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	view, err := h.blockRequests.CreateBlockRequest(r.Context(), caller, cardID, req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

// MyBlockRequests lists the caller's block requests
func (h *Handler) MyBlockRequests(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	views, err := h.blockRequests.GetUserBlockRequests(r.Context(), caller, caller.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, views)
}

// PendingBlockRequests lists every pending request (admin)
func (h *Handler) PendingBlockRequests(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	views, err := h.blockRequests.GetPendingRequests(r.Context(), caller)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, views)
}

// ApproveBlockRequest approves a pending request and blocks its card (admin)
func (h *Handler) ApproveBlockRequest(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	requestID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	view, err := h.blockRequests.ApproveRequest(r.Context(), caller, requestID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// RejectBlockRequest rejects a pending request with an optional note (admin)
func (h *Handler) RejectBlockRequest(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	requestID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req rejectRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	view, err := h.blockRequests.RejectRequest(r.Context(), caller, requestID, req.RejectionReason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}
