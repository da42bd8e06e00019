package booking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hearthhq/hearth/internal/middleware"
	"github.com/hearthhq/hearth/pkg/types"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
	}
}

var validate = validator.New()

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	logger := middleware.GetLogger(ctx)
	logger.Info().Msg("Received request to create booking")

	var req types.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error().Err(err).Msg("Failed to decode booking request")
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	if err := validate.Struct(&req); err != nil {
		logger.Error().Err(err).Msg("Validation error on booking request")
		http.Error(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	b, err := h.service.Create(ctx, &req)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create booking")
		http.Error(w, "Failed to create booking: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(b)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid booking id", http.StatusBadRequest)
		return
	}

	b, err := h.service.Get(ctx, id)
	if errors.Is(err, ErrBookingNotFound) {
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch booking")
		http.Error(w, "Failed to fetch booking", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(b)
}

func (h *Handler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Confirm)
}

func (h *Handler) DeclineBooking(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Decline)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

// transition runs one guarded lifecycle action. A failed guard is reported
// as a conflict, not an internal error, since concurrent actors are expected.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID) (bool, error)) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid booking id", http.StatusBadRequest)
		return
	}

	applied, err := fn(ctx, id)
	if errors.Is(err, ErrBookingNotFound) {
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("booking_id", id.String()).Msg("Booking transition failed")
		http.Error(w, "Booking transition failed", http.StatusInternalServerError)
		return
	}
	if !applied {
		http.Error(w, "Booking is not in a state that allows this action", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusOK)
}
