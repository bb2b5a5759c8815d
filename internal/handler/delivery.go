package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/fulfillment-core/internal/delivery"
	"github.com/vasiliy-maslov/fulfillment-core/internal/order"
)

type RegisterAgentRequest struct {
	StoreID string `json:"store_id" validate:"required,uuid4"`
	Name    string `json:"name" validate:"required,min=2"`
	Phone   string `json:"phone"`
}

type AgentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=IDLE ASSIGNED OFFLINE"`
}

type ManualAssignRequest struct {
	AgentID string `json:"agent_id" validate:"required,uuid4"`
}

type PingRequest struct {
	Lat       float64   `json:"lat" validate:"required"`
	Lng       float64   `json:"lng" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

type ProofRequest struct {
	AgentID  string `json:"agent_id" validate:"required,uuid4"`
	Kind     string `json:"kind" validate:"required,oneof=PHOTO OTP"`
	PhotoRef string `json:"photo_ref"`
	OTPCode  string `json:"otp_code"`
}

type DeliveryHandler struct {
	engine   *delivery.Engine
	tracking *delivery.TrackingStream
	orders   *order.Service
	validate *validator.Validate
}

func NewDeliveryHandler(engine *delivery.Engine, tracking *delivery.TrackingStream, orders *order.Service) *DeliveryHandler {
	return &DeliveryHandler{engine: engine, tracking: tracking, orders: orders, validate: validator.New()}
}

func (h *DeliveryHandler) RegisterRoutes(router chi.Router) {
	router.Post("/agents", h.handleRegisterAgent)
	router.Get("/stores/{id}/agents", h.handleListAgents)
	router.Put("/agents/{id}/status", h.handleSetStatus)
	router.Post("/agents/{id}/pings", h.handleIngestPing)
	router.Post("/orders/{id}/assign", h.handleManualAssign)
	router.Get("/orders/{id}/tracking", h.handleTracking)
	router.Post("/orders/{id}/proof", h.handleRecordProof)
}

func (h *DeliveryHandler) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req RegisterAgentRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	storeID, _ := uuid.FromString(req.StoreID)

	a := &delivery.Agent{
		StoreID: storeID,
		Name:    req.Name,
		Phone:   req.Phone,
	}
	if err := h.engine.RegisterAgent(r.Context(), a); err != nil {
		log.Error().Err(err).Msg("Failed to register agent")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, a)
}

func (h *DeliveryHandler) handleListAgents(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	agents, err := h.engine.Agents(r.Context(), id)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list agents")
		return
	}
	respondWithJSON(w, http.StatusOK, agents)
}

func (h *DeliveryHandler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req AgentStatusRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	if err := h.engine.SetAgentStatus(r.Context(), id, delivery.AgentStatus(req.Status)); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

func (h *DeliveryHandler) handleIngestPing(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req PingRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	if err := h.tracking.Ingest(r.Context(), id, req.Lat, req.Lng, req.Timestamp); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *DeliveryHandler) handleManualAssign(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req ManualAssignRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	agentID, _ := uuid.FromString(req.AgentID)

	asg, err := h.engine.ManualAssign(r.Context(), orderID, agentID)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Manual assignment failed")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	if err := h.orders.SetAgent(r.Context(), orderID, agentID); err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to record agent on order")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, asg)
}

func (h *DeliveryHandler) handleTracking(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	pos, err := h.tracking.Latest(r.Context(), id)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, pos)
}

func (h *DeliveryHandler) handleRecordProof(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req ProofRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	agentID, _ := uuid.FromString(req.AgentID)

	p := &delivery.Proof{
		OrderID:  orderID,
		AgentID:  agentID,
		Kind:     delivery.ProofKind(req.Kind),
		PhotoRef: req.PhotoRef,
		OTPCode:  req.OTPCode,
	}
	if err := h.engine.RecordProof(r.Context(), p); err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to record proof")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, p)
}
