package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/fulfillment-core/internal/inventory"
)

type SetStockRequest struct {
	ProductID         string `json:"product_id" validate:"required,uuid4"`
	StockQty          int    `json:"stock_qty" validate:"gte=0"`
	LowStockThreshold int    `json:"low_stock_threshold" validate:"gte=0"`
	MaxPerOrder       *int   `json:"max_per_order,omitempty" validate:"omitempty,gt=0"`
	Frozen            bool   `json:"frozen"`
}

type InventoryHandler struct {
	ledger   *inventory.Ledger
	validate *validator.Validate
}

func NewInventoryHandler(ledger *inventory.Ledger) *InventoryHandler {
	return &InventoryHandler{ledger: ledger, validate: validator.New()}
}

func (h *InventoryHandler) RegisterRoutes(router chi.Router) {
	router.Put("/stores/{id}/stock", h.handleSetStock)
	router.Get("/stores/{id}/stock/{productID}", h.handleGetItem)
}

func (h *InventoryHandler) handleSetStock(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req SetStockRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	productID, _ := uuid.FromString(req.ProductID)

	item := &inventory.Item{
		StoreID:           id,
		ProductID:         productID,
		StockQty:          req.StockQty,
		LowStockThreshold: req.LowStockThreshold,
		MaxPerOrder:       req.MaxPerOrder,
		Frozen:            req.Frozen,
	}
	if err := h.ledger.SetStock(r.Context(), item); err != nil {
		log.Error().Err(err).Stringer("store_id", id).Msg("Failed to set stock")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}

func (h *InventoryHandler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	productID, ok := uuidParam(w, r, "productID")
	if !ok {
		return
	}
	item, err := h.ledger.Item(r.Context(), id, productID)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Failed to get inventory item")
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}
