package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/fulfillment-core/internal/store"
)

type CreateStoreRequest struct {
	Code                  string   `json:"code" validate:"required,min=2"`
	Name                  string   `json:"name" validate:"required,min=2"`
	OwnerID               string   `json:"owner_id" validate:"required,uuid4"`
	Description           string   `json:"description"`
	Phone                 string   `json:"phone"`
	Email                 string   `json:"email" validate:"omitempty,email"`
	DeliveryFee           float64  `json:"delivery_fee" validate:"gte=0"`
	MinOrderValue         float64  `json:"min_order_value" validate:"gte=0"`
	FreeDeliveryThreshold *float64 `json:"free_delivery_threshold,omitempty" validate:"omitempty,gte=0"`
	Is24Hours             bool     `json:"is_24_hours"`
}

type SetHoursRequest struct {
	Weekday  int    `json:"weekday" validate:"gte=0,lte=6"`
	OpensAt  string `json:"opens_at" validate:"required"`
	ClosesAt string `json:"closes_at" validate:"required"`
	Closed   bool   `json:"closed"`
}

type RequestClosureRequest struct {
	RequestedBy    string    `json:"requested_by" validate:"required,uuid4"`
	Reason         string    `json:"reason" validate:"required,min=3"`
	RequestedUntil time.Time `json:"requested_until" validate:"required"`
}

type DecideClosureRequest struct {
	AdminID string `json:"admin_id" validate:"required,uuid4"`
	Approve bool   `json:"approve"`
}

type AdminActionRequest struct {
	AdminID string `json:"admin_id" validate:"required,uuid4"`
}

type StoreHandler struct {
	service      *store.Service
	availability *store.AvailabilityService
	validate     *validator.Validate
}

func NewStoreHandler(service *store.Service, availability *store.AvailabilityService) *StoreHandler {
	return &StoreHandler{service: service, availability: availability, validate: validator.New()}
}

func (h *StoreHandler) RegisterRoutes(router chi.Router) {
	router.Post("/stores", h.handleCreateStore)
	router.Get("/stores", h.handleListStores)
	router.Get("/stores/{id}", h.handleGetStore)
	router.Put("/stores/{id}/hours", h.handleSetHours)
	router.Get("/stores/{id}/availability", h.handleAvailability)
	router.Post("/stores/{id}/closure-requests", h.handleRequestClosure)
	router.Get("/stores/{id}/closure-requests/pending", h.handlePendingClosure)
	router.Post("/closure-requests/{id}/decision", h.handleDecideClosure)
	router.Post("/closure-requests/{id}/lift", h.handleLiftClosure)
	router.Post("/stores/{id}/force-close", h.handleForceClose)
	router.Post("/stores/{id}/force-reopen", h.handleForceReopen)
}

func (h *StoreHandler) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var req CreateStoreRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	ownerID, _ := uuid.FromString(req.OwnerID)

	created, err := h.service.CreateStore(r.Context(), &store.Store{
		Code:                  req.Code,
		Name:                  req.Name,
		OwnerID:               ownerID,
		Description:           req.Description,
		Phone:                 req.Phone,
		Email:                 req.Email,
		DeliveryFee:           req.DeliveryFee,
		MinOrderValue:         req.MinOrderValue,
		FreeDeliveryThreshold: req.FreeDeliveryThreshold,
		Is24Hours:             req.Is24Hours,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create store")
		if errors.Is(err, store.ErrStoreCodeTaken) {
			respondWithError(w, http.StatusConflict, "Store code already taken")
			return
		}
		respondWithError(w, mapErrorToStatusCode(err), "Failed to create store")
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *StoreHandler) handleListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.service.ListStores(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list stores")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list stores")
		return
	}
	respondWithJSON(w, http.StatusOK, stores)
}

func (h *StoreHandler) handleGetStore(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	st, err := h.service.GetStore(r.Context(), id)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Failed to get store")
		return
	}
	respondWithJSON(w, http.StatusOK, st)
}

func (h *StoreHandler) handleSetHours(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req SetHoursRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	err := h.service.SetHours(r.Context(), store.Hours{
		StoreID:  id,
		Weekday:  time.Weekday(req.Weekday),
		OpensAt:  req.OpensAt,
		ClosesAt: req.ClosesAt,
		Closed:   req.Closed,
	})
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *StoreHandler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	// Staff see the pending state; customers only ever get the public status.
	var (
		status store.AvailabilityStatus
		err    error
	)
	if r.URL.Query().Get("view") == "internal" {
		status, err = h.availability.InternalState(r.Context(), id, time.Now().UTC())
	} else {
		status, err = h.availability.EffectiveStatus(r.Context(), id, time.Now().UTC())
	}
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Failed to resolve availability")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (h *StoreHandler) handleRequestClosure(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req RequestClosureRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	requestedBy, _ := uuid.FromString(req.RequestedBy)

	created, err := h.service.RequestClosure(r.Context(), id, requestedBy, req.Reason, req.RequestedUntil)
	if err != nil {
		log.Error().Err(err).Stringer("store_id", id).Msg("Failed to request closure")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *StoreHandler) handlePendingClosure(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	pending, err := h.service.PendingClosure(r.Context(), id)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Failed to get pending closure")
		return
	}
	if pending == nil {
		respondWithError(w, http.StatusNotFound, "No pending closure request")
		return
	}
	respondWithJSON(w, http.StatusOK, pending)
}

func (h *StoreHandler) handleDecideClosure(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req DecideClosureRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	adminID, _ := uuid.FromString(req.AdminID)

	decided, err := h.service.DecideClosure(r.Context(), id, req.Approve, adminID)
	if err != nil {
		log.Error().Err(err).Stringer("request_id", id).Msg("Failed to decide closure")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, decided)
}

func (h *StoreHandler) handleLiftClosure(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req AdminActionRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	adminID, _ := uuid.FromString(req.AdminID)

	if err := h.service.LiftClosure(r.Context(), id, adminID); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "lifted"})
}

func (h *StoreHandler) handleForceClose(w http.ResponseWriter, r *http.Request) {
	h.handleForce(w, r, true)
}

func (h *StoreHandler) handleForceReopen(w http.ResponseWriter, r *http.Request) {
	h.handleForce(w, r, false)
}

func (h *StoreHandler) handleForce(w http.ResponseWriter, r *http.Request, close bool) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req AdminActionRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	adminID, _ := uuid.FromString(req.AdminID)

	var err error
	if close {
		err = h.service.ForceClose(r.Context(), id, adminID)
	} else {
		err = h.service.ForceReopen(r.Context(), id, adminID)
	}
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
