package handler

import (
	"net/http"

	"github.com/Dan9191/bank-cards/internal/middleware"
	"github.com/gorilla/mux"
)

// NewRouter wires every route; everything except /register and /login needs a bearer token
func NewRouter(h *Handler, tokens middleware.TokenParser) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(h.logger))

	// Public routes
	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)

	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(tokens))

	authRouter.HandleFunc("/cards", h.CreateCard).Methods(http.MethodPost)
	authRouter.HandleFunc("/cards", h.ListCards).Methods(http.MethodGet)
	authRouter.HandleFunc("/cards/me", h.MyCards).Methods(http.MethodGet)
	authRouter.HandleFunc("/cards/transfer", h.Transfer).Methods(http.MethodPost)
	authRouter.HandleFunc("/cards/block-requests/my", h.MyBlockRequests).Methods(http.MethodGet)
	authRouter.HandleFunc("/cards/{id:[0-9]+}", h.GetCard).Methods(http.MethodGet)
	authRouter.HandleFunc("/cards/{id:[0-9]+}", h.DeleteCard).Methods(http.MethodDelete)
	authRouter.HandleFunc("/cards/{id:[0-9]+}/balance", h.GetBalance).Methods(http.MethodGet)
	authRouter.HandleFunc("/cards/{id:[0-9]+}/block", h.BlockCard).Methods(http.MethodPut)
	authRouter.HandleFunc("/cards/{id:[0-9]+}/activate", h.ActivateCard).Methods(http.MethodPut)
	authRouter.HandleFunc("/cards/{id:[0-9]+}/block-request", h.CreateBlockRequest).Methods(http.MethodPost)

	authRouter.HandleFunc("/admin/block-requests/pending", h.PendingBlockRequests).Methods(http.MethodGet)
	authRouter.HandleFunc("/admin/block-requests/{id:[0-9]+}/approve", h.ApproveBlockRequest).Methods(http.MethodPost)
	authRouter.HandleFunc("/admin/block-requests/{id:[0-9]+}/reject", h.RejectBlockRequest).Methods(http.MethodPost)

	return r
}
