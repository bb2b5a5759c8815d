package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/fulfillment-core/internal/catalog"
)

type CreateCategoryRequest struct {
	Name         string `json:"name" validate:"required,min=2"`
	Slug         string `json:"slug"`
	DisplayOrder int    `json:"display_order" validate:"gte=0"`
}

type CreateProductRequest struct {
	CategoryID string `json:"category_id" validate:"required,uuid4"`
	Name       string `json:"name" validate:"required,min=2"`
	SKU        string `json:"sku"`
	Approved   bool   `json:"approved"`
}

type UpsertStoreProductRequest struct {
	ProductID string  `json:"product_id" validate:"required,uuid4"`
	Price     float64 `json:"price" validate:"gte=0"`
	Hidden    bool    `json:"hidden"`
}

type CatalogHandler struct {
	resolver *catalog.Resolver
	validate *validator.Validate
}

func NewCatalogHandler(resolver *catalog.Resolver) *CatalogHandler {
	return &CatalogHandler{resolver: resolver, validate: validator.New()}
}

func (h *CatalogHandler) RegisterRoutes(router chi.Router) {
	router.Get("/zips/{zip}/catalog", h.handleList)
	router.Get("/categories", h.handleListCategories)
	router.Post("/categories", h.handleCreateCategory)
	router.Post("/products", h.handleCreateProduct)
	router.Put("/stores/{id}/products", h.handleUpsertStoreProduct)
}

func (h *CatalogHandler) handleList(w http.ResponseWriter, r *http.Request) {
	zip := chi.URLParam(r, "zip")

	var storeID *uuid.UUID
	if raw := r.URL.Query().Get("store_id"); raw != "" {
		id, err := uuid.FromString(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid store_id")
			return
		}
		storeID = &id
	}

	views, err := h.resolver.List(r.Context(), zip, storeID)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, views)
}

func (h *CatalogHandler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.resolver.ListCategories(r.Context())
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list categories")
		return
	}
	respondWithJSON(w, http.StatusOK, categories)
}

func (h *CatalogHandler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	c := &catalog.Category{
		Name:         req.Name,
		Slug:         req.Slug,
		DisplayOrder: req.DisplayOrder,
	}
	if err := h.resolver.CreateCategory(r.Context(), c); err != nil {
		log.Error().Err(err).Msg("Failed to create category")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, c)
}

func (h *CatalogHandler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	categoryID, _ := uuid.FromString(req.CategoryID)

	p := &catalog.Product{
		CategoryID: categoryID,
		Name:       req.Name,
		SKU:        req.SKU,
		Approved:   req.Approved,
	}
	if err := h.resolver.CreateProduct(r.Context(), p); err != nil {
		log.Error().Err(err).Msg("Failed to create product")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, p)
}

func (h *CatalogHandler) handleUpsertStoreProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req UpsertStoreProductRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	productID, _ := uuid.FromString(req.ProductID)

	sp := &catalog.StoreProduct{
		StoreID:   id,
		ProductID: productID,
		Price:     req.Price,
		Hidden:    req.Hidden,
	}
	if err := h.resolver.UpsertStoreProduct(r.Context(), sp); err != nil {
		log.Error().Err(err).Stringer("store_id", id).Msg("Failed to upsert store product")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, sp)
}
