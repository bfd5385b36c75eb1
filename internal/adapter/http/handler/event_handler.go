package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"webhook-delivery-gateway/internal/adapter/http/dto"
	"webhook-delivery-gateway/internal/adapter/http/middleware"
	"webhook-delivery-gateway/internal/core/domain"
	"webhook-delivery-gateway/internal/core/ports"
	"webhook-delivery-gateway/pkg/apperror"
	"webhook-delivery-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// HeaderCorrelationID carries the producer's identifier for the event,
	// stored on the ledger row for traceability.
	HeaderCorrelationID = "X-Correlation-Id"
	// HeaderIdempotencyKey dedupes client retries of the same trigger.
	HeaderIdempotencyKey = "Idempotency-Key"

	triggerCacheTTL = 24 * time.Hour
)

// EventTypes are the event categories that can be dispatched.
var EventTypes = map[string]string{
	"audit":           "audit.completed",
	"inventory":       "inventory.updated",
	"delivery-photos": "delivery_photo.uploaded",
}

// EventHandler handles the authenticated event trigger endpoints. The request
// body becomes the delivery payload byte for byte: the signature the receiver
// verifies is computed over exactly what the producer sent.
type EventHandler struct {
	regRepo     ports.RegistrationRepository
	deliverySvc ports.DeliveryService
	cache       ports.TriggerCache // nil = idempotency replay disabled
	log         zerolog.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(
	regRepo ports.RegistrationRepository,
	deliverySvc ports.DeliveryService,
	cache ports.TriggerCache,
	log zerolog.Logger,
) *EventHandler {
	return &EventHandler{
		regRepo:     regRepo,
		deliverySvc: deliverySvc,
		cache:       cache,
		log:         log,
	}
}

// Trigger returns the handler for POST /api/v1/events/:category endpoints.
func (h *EventHandler) Trigger(category string) gin.HandlerFunc {
	eventType := EventTypes[category]

	return func(c *gin.Context) {
		cred, ok := credentialFromContext(c)
		if !ok {
			response.Error(c, apperror.ErrInvalidAPIKey())
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.Error(c, apperror.Validation("cannot read request body"))
			return
		}
		if len(body) == 0 || !json.Valid(body) {
			response.Error(c, apperror.Validation("body must be a JSON document"))
			return
		}

		// Client retry of an already-accepted trigger: replay the recorded
		// response instead of creating a second delivery.
		idemKey := c.GetHeader(HeaderIdempotencyKey)
		if h.cache != nil && idemKey != "" {
			cached, err := h.cache.Get(c.Request.Context(), cred.ID.String()+":"+idemKey)
			if err != nil {
				h.log.Warn().Err(err).Msg("trigger cache read failed")
			} else if cached != nil {
				var resp dto.TriggerResponse
				if err := json.Unmarshal(cached, &resp); err == nil {
					c.Header("X-Idempotent-Replay", "true")
					c.JSON(http.StatusAccepted, resp)
					return
				}
			}
		}

		reg, err := h.regRepo.GetActiveByCredential(c.Request.Context(), cred.ID)
		if err != nil {
			response.Error(c, apperror.ErrDatabaseError(err))
			return
		}
		if reg == nil {
			response.Error(c, apperror.ErrNotFound("active webhook"))
			return
		}

		correlationID := c.GetHeader(HeaderCorrelationID)
		deliveryID, err := h.deliverySvc.Deliver(c.Request.Context(), reg, body, correlationID)
		if err != nil {
			response.Error(c, err)
			return
		}

		resp := dto.TriggerResponse{
			DeliveryID: deliveryID.String(),
			EventType:  eventType,
			Status:     string(domain.DeliveryStatusPending),
		}
		if h.cache != nil && idemKey != "" {
			if raw, err := json.Marshal(resp); err == nil {
				if err := h.cache.Set(c.Request.Context(), cred.ID.String()+":"+idemKey, raw, triggerCacheTTL); err != nil {
					h.log.Warn().Err(err).Msg("trigger cache write failed")
				}
			}
		}

		c.JSON(http.StatusAccepted, resp)
	}
}

func credentialFromContext(c *gin.Context) (*domain.Credential, bool) {
	v, ok := c.Get(middleware.CtxCredential)
	if !ok {
		return nil, false
	}
	cred, ok := v.(*domain.Credential)
	return cred, ok
}
