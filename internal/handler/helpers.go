package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/fulfillment-core/internal/cart"
	"github.com/vasiliy-maslov/fulfillment-core/internal/catalog"
	"github.com/vasiliy-maslov/fulfillment-core/internal/coverage"
	"github.com/vasiliy-maslov/fulfillment-core/internal/delivery"
	"github.com/vasiliy-maslov/fulfillment-core/internal/inventory"
	"github.com/vasiliy-maslov/fulfillment-core/internal/order"
	"github.com/vasiliy-maslov/fulfillment-core/internal/slot"
	"github.com/vasiliy-maslov/fulfillment-core/internal/store"
)

// respondWithError отправляет JSON ошибку
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Interface("payload", payload).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrStoreNotFound),
		errors.Is(err, store.ErrRequestNotFound),
		errors.Is(err, coverage.ErrCoverageNotFound),
		errors.Is(err, coverage.ErrUnsupportedZip),
		errors.Is(err, catalog.ErrCategoryNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrStoreProductNotFound),
		errors.Is(err, inventory.ErrItemNotFound),
		errors.Is(err, inventory.ErrReservationNotFound),
		errors.Is(err, cart.ErrCartNotFound),
		errors.Is(err, cart.ErrCartItemNotFound),
		errors.Is(err, slot.ErrSlotNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, delivery.ErrAgentNotFound),
		errors.Is(err, delivery.ErrAssignmentNotFound),
		errors.Is(err, delivery.ErrProofNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrStoreCodeTaken),
		errors.Is(err, store.ErrRequestAlreadyPending),
		errors.Is(err, store.ErrRequestAlreadyDecided),
		errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, inventory.ErrStockBelowReserved),
		errors.Is(err, cart.ErrPriceChanged),
		errors.Is(err, cart.ErrOutOfStock),
		errors.Is(err, slot.ErrSlotFull),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrCancellationWindowClosed),
		errors.Is(err, delivery.ErrAgentNotIdle),
		errors.Is(err, delivery.ErrStalePing):
		return http.StatusConflict
	case errors.Is(err, inventory.ErrReservationExpired):
		return http.StatusGone
	case errors.Is(err, cart.ErrBelowMinOrder),
		errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, inventory.ErrMaxPerOrderExceeded),
		errors.Is(err, inventory.ErrItemFrozen),
		errors.Is(err, slot.ErrSlotInPast),
		errors.Is(err, slot.ErrSlotClosed),
		errors.Is(err, catalog.ErrStoreNotServing),
		errors.Is(err, order.ErrProofRequired),
		errors.Is(err, order.ErrAgentNotAssigned):
		return http.StatusUnprocessableEntity
	case errors.Is(err, delivery.ErrNoAgentAvailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		details[fe.Field()] = fmt.Sprintf("failed on the '%s' rule", fe.Tag())
	}
	return details
}

// decodeAndValidate decodes a JSON body into dst and runs struct validation,
// writing the error response itself. Returns false when the request was
// already answered.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		log.Error().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload %v", err))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:   "Validation failed",
				Details: formatValidationErrors(validationErrors),
			})
		} else {
			log.Error().Err(err).Msg("Unexpected error type during validation")
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return false
	}
	return true
}

// uuidParam parses a UUID path parameter, answering the request on failure.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.FromString(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}
