package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/fulfillment-core/internal/coverage"
)

type SetCoverageRequest struct {
	Zip           string   `json:"zip" validate:"required,min=3"`
	DeliveryFee   *float64 `json:"delivery_fee,omitempty" validate:"omitempty,gte=0"`
	MinOrderValue *float64 `json:"min_order_value,omitempty" validate:"omitempty,gte=0"`
	SLAMinutes    int      `json:"sla_minutes" validate:"gte=0"`
}

type CoverageHandler struct {
	index    *coverage.Index
	validate *validator.Validate
}

func NewCoverageHandler(index *coverage.Index) *CoverageHandler {
	return &CoverageHandler{index: index, validate: validator.New()}
}

func (h *CoverageHandler) RegisterRoutes(router chi.Router) {
	router.Get("/zips/{zip}/stores", h.handleResolveStores)
	router.Put("/stores/{id}/coverage", h.handleSetCoverage)
	router.Delete("/stores/{id}/coverage/{zip}", h.handleDeactivate)
}

func (h *CoverageHandler) handleResolveStores(w http.ResponseWriter, r *http.Request) {
	zip := chi.URLParam(r, "zip")
	stores, err := h.index.ResolveStores(r.Context(), zip)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, stores)
}

func (h *CoverageHandler) handleSetCoverage(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req SetCoverageRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	c := &coverage.Coverage{
		StoreID:       id,
		Zip:           req.Zip,
		DeliveryFee:   req.DeliveryFee,
		MinOrderValue: req.MinOrderValue,
		SLAMinutes:    req.SLAMinutes,
	}
	if err := h.index.SetCoverage(r.Context(), c); err != nil {
		log.Error().Err(err).Stringer("store_id", id).Msg("Failed to set coverage")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

func (h *CoverageHandler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	zip := chi.URLParam(r, "zip")
	if err := h.index.Deactivate(r.Context(), id, zip); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
