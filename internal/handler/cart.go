package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/fulfillment-core/internal/cart"
)

type AddCartItemRequest struct {
	CustomerID     string `json:"customer_id" validate:"required,uuid4"`
	Zip            string `json:"zip" validate:"required,min=3"`
	StoreProductID string `json:"store_product_id" validate:"required,uuid4"`
	Qty            int    `json:"qty" validate:"required,gt=0"`
}

type UpdateCartItemRequest struct {
	Qty int `json:"qty" validate:"gte=0"`
}

type CheckoutRequest struct {
	SlotID  *string  `json:"slot_id,omitempty" validate:"omitempty,uuid4"`
	Address string   `json:"address" validate:"required,min=5"`
	DropLat *float64 `json:"drop_lat,omitempty"`
	DropLng *float64 `json:"drop_lng,omitempty"`
}

type CartHandler struct {
	service  *cart.Service
	validate *validator.Validate
}

func NewCartHandler(service *cart.Service) *CartHandler {
	return &CartHandler{service: service, validate: validator.New()}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Post("/cart/items", h.handleAddItem)
	router.Get("/carts/{id}", h.handleGetCart)
	router.Put("/carts/{id}/items/{itemID}", h.handleUpdateItem)
	router.Delete("/carts/{id}/items/{itemID}", h.handleRemoveItem)
	router.Get("/carts/{id}/quote", h.handleQuote)
	router.Post("/carts/{id}/checkout", h.handleCheckout)
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req AddCartItemRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	customerID, _ := uuid.FromString(req.CustomerID)
	storeProductID, _ := uuid.FromString(req.StoreProductID)

	c, err := h.service.AddItem(r.Context(), customerID, req.Zip, storeProductID, req.Qty)
	if err != nil {
		log.Error().Err(err).Msg("Failed to add cart item")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	c, items, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Failed to get cart")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"cart": c, "items": items})
}

func (h *CartHandler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := uuidParam(w, r, "itemID")
	if !ok {
		return
	}
	var req UpdateCartItemRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	if err := h.service.UpdateQty(r.Context(), cartID, itemID, req.Qty); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := uuidParam(w, r, "itemID")
	if !ok {
		return
	}
	if err := h.service.RemoveItem(r.Context(), cartID, itemID); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *CartHandler) handleQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	quote, err := h.service.ValidateForCheckout(r.Context(), id)
	if err != nil {
		// A below-minimum cart still returns its quote so the client can
		// show how much is missing.
		if quote != nil {
			respondWithJSON(w, mapErrorToStatusCode(err), map[string]interface{}{
				"error": err.Error(),
				"quote": quote,
			})
			return
		}
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, quote)
}

func (h *CartHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req CheckoutRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	in := cart.CheckoutInput{
		CartID:  id,
		Address: req.Address,
		DropLat: req.DropLat,
		DropLng: req.DropLng,
	}
	if req.SlotID != nil {
		slotID, _ := uuid.FromString(*req.SlotID)
		in.SlotID = &slotID
	}

	placed, err := h.service.Checkout(r.Context(), in)
	if err != nil {
		log.Error().Err(err).Stringer("cart_id", id).Msg("Checkout failed")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, placed)
}
