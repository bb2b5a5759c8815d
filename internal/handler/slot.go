package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/fulfillment-core/internal/slot"
)

type CreateSlotRequest struct {
	Zip         string    `json:"zip" validate:"required,min=3"`
	WindowStart time.Time `json:"window_start" validate:"required"`
	WindowEnd   time.Time `json:"window_end" validate:"required"`
	Capacity    int       `json:"capacity" validate:"required,gt=0"`
}

type SlotHandler struct {
	service  *slot.Service
	validate *validator.Validate
}

func NewSlotHandler(service *slot.Service) *SlotHandler {
	return &SlotHandler{service: service, validate: validator.New()}
}

func (h *SlotHandler) RegisterRoutes(router chi.Router) {
	router.Post("/stores/{id}/slots", h.handleCreateSlot)
	router.Get("/stores/{id}/slots", h.handleListOpen)
}

func (h *SlotHandler) handleCreateSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req CreateSlotRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	s := &slot.Slot{
		StoreID:     id,
		Zip:         req.Zip,
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
		Capacity:    req.Capacity,
	}
	if err := h.service.Create(r.Context(), s); err != nil {
		log.Error().Err(err).Stringer("store_id", id).Msg("Failed to create slot")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, s)
}

func (h *SlotHandler) handleListOpen(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	zip := r.URL.Query().Get("zip")
	if zip == "" {
		respondWithError(w, http.StatusBadRequest, "zip query parameter is required")
		return
	}
	slots, err := h.service.ListOpen(r.Context(), id, zip)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list slots")
		return
	}
	respondWithJSON(w, http.StatusOK, slots)
}
