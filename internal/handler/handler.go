package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Dan9191/bank-cards/internal/middleware"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

var validate = validator.New()

type Handler struct {
	auth          *service.AuthService
	cards         *service.CardService
	blockRequests *service.BlockRequestService
	logger        *logrus.Logger
}

func NewHandler(auth *service.AuthService, cards *service.CardService, blockRequests *service.BlockRequestService, logger *logrus.Logger) *Handler {
	return &Handler{auth: auth, cards: cards, blockRequests: blockRequests, logger: logger}
}

// ValidationError describes one rejected request field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type errorResponse struct {
	Message string            `json:"message"`
	Details []ValidationError `json:"details,omitempty"`
}

// decode reads a JSON body into dst and runs struct validation
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid request body"})
		return false
	}
	if details := validateRequest(dst); len(details) > 0 {
		respondJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid request data", Details: details})
		return false
	}
	return true
}

func validateRequest(obj any) []ValidationError {
	err := validate.Struct(obj)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{Field: fe.Field(), Message: errorMsg(fe), Type: fe.Tag()})
	}
	return out
}

func errorMsg(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		return "Value is too short"
	case "max":
		return "Value is too long"
	case "datetime":
		return "Date must be in YYYY-MM-DD format"
	case "nefield":
		return "Value must differ from " + fe.Param()
	default:
		return "Invalid value"
	}
}

// respondError maps error kinds to HTTP statuses
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrAccessDenied):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrUnauthenticated):
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		h.logger.Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
		respondJSON(w, status, errorResponse{Message: "Internal server error"})
		return
	}
	respondJSON(w, status, errorResponse{Message: models.Message(err)})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// caller returns the identity AuthMiddleware put on the request
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (models.Caller, bool) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Authentication required"})
	}
	return caller, ok
}

// pathID parses a numeric path variable
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		respondJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid " + name})
		return 0, false
	}
	return id, true
}
