package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/fulfillment-core/internal/order"
)

type TransitionRequest struct {
	Actor string `json:"actor" validate:"required,min=2"`
}

type CancelOrderRequest struct {
	Actor  string `json:"actor" validate:"required,min=2"`
	Reason string `json:"reason"`
}

type OrderHandler struct {
	service  *order.Service
	validate *validator.Validate
}

func NewOrderHandler(service *order.Service) *OrderHandler {
	return &OrderHandler{service: service, validate: validator.New()}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Get("/orders/{id}/history", h.handleHistory)
	router.Get("/customers/{id}/orders", h.handleListByCustomer)
	router.Get("/stores/{id}/orders", h.handleListByStore)
	router.Post("/orders/{id}/accept", h.handleAccept)
	router.Post("/orders/{id}/pack", h.handlePack)
	router.Post("/orders/{id}/dispatch", h.handleDispatch)
	router.Post("/orders/{id}/deliver", h.handleDeliver)
	router.Post("/orders/{id}/cancel", h.handleCancel)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	o, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Failed to get order")
		return
	}
	items, err := h.service.ItemsOf(r.Context(), id)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Failed to get order items")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"order": o, "items": items})
}

func (h *OrderHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	history, err := h.service.History(r.Context(), id)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Failed to get order history")
		return
	}
	respondWithJSON(w, http.StatusOK, history)
}

func (h *OrderHandler) handleListByCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	orders, err := h.service.ListByCustomer(r.Context(), id)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list orders")
		return
	}
	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleListByStore(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var status *order.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := order.Status(raw)
		status = &s
	}
	orders, err := h.service.ListByStore(r.Context(), id, status)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list orders")
		return
	}
	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleAccept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "accepted", h.service.Accept)
}

func (h *OrderHandler) handlePack(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "packed", h.service.MarkPacked)
}

func (h *OrderHandler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "out_for_delivery", h.service.Dispatch)
}

func (h *OrderHandler) handleDeliver(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "delivered", h.service.Deliver)
}

func (h *OrderHandler) transition(w http.ResponseWriter, r *http.Request, name string, fn func(ctx context.Context, id uuid.UUID, actor string) error) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req TransitionRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	if err := fn(r.Context(), id, req.Actor); err != nil {
		log.Error().Err(err).Stringer("order_id", id).Str("transition", name).Msg("Order transition failed")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": name})
}

func (h *OrderHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req CancelOrderRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	if err := h.service.Cancel(r.Context(), id, req.Actor, req.Reason); err != nil {
		log.Error().Err(err).Stringer("order_id", id).Msg("Failed to cancel order")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
