package handler

import (
	"strconv"

	"webhook-delivery-gateway/internal/adapter/http/dto"
	"webhook-delivery-gateway/internal/adapter/http/middleware"
	"webhook-delivery-gateway/internal/core/ports"
	"webhook-delivery-gateway/pkg/apperror"
	"webhook-delivery-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// defaultHistoryLimit caps GET /webhooks/:id/deliveries when no limit is given.
const defaultHistoryLimit = 50

// WebhookHandler handles the dashboard webhook management endpoints.
type WebhookHandler struct {
	regSvc ports.RegistrationService
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(regSvc ports.RegistrationService) *WebhookHandler {
	return &WebhookHandler{regSvc: regSvc}
}

// Register handles POST /api/v1/webhooks.
func (h *WebhookHandler) Register(c *gin.Context) {
	accountID, ok := accountFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.RegisterWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	credentialID, err := uuid.Parse(req.CredentialID)
	if err != nil {
		response.Error(c, apperror.Validation("credential_id must be a UUID"))
		return
	}

	out, err := h.regSvc.Register(c.Request.Context(), ports.RegisterWebhookInput{
		AccountID:         accountID,
		CredentialID:      credentialID,
		URL:               req.URL,
		MaxAttempts:       req.MaxRetries,
		RetryDelaySeconds: req.RetryDelaySeconds,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, gin.H{"webhook": dto.RegisterWebhookResponse{
		WebhookResponse: dto.FromRegistration(&out.Registration),
		WebhookSecret:   out.Secret,
	}})
}

// List handles GET /api/v1/webhooks.
func (h *WebhookHandler) List(c *gin.Context) {
	accountID, ok := accountFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	regs, err := h.regSvc.List(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.WebhookResponse, 0, len(regs))
	for i := range regs {
		items = append(items, dto.FromRegistration(&regs[i]))
	}
	response.OK(c, dto.WebhookListResponse{Items: items})
}

// Update handles PUT /api/v1/webhooks/:id.
func (h *WebhookHandler) Update(c *gin.Context) {
	accountID, ok := accountFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("webhook id must be a UUID"))
		return
	}

	var req dto.UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	reg, err := h.regSvc.Update(c.Request.Context(), id, accountID, ports.UpdateWebhookInput{
		URL:               req.URL,
		Active:            req.Active,
		MaxAttempts:       req.MaxRetries,
		RetryDelaySeconds: req.RetryDelaySeconds,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromRegistration(reg))
}

// Deactivate handles DELETE /api/v1/webhooks/:id. The registration row is
// kept; only the active flag is cleared.
func (h *WebhookHandler) Deactivate(c *gin.Context) {
	accountID, ok := accountFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("webhook id must be a UUID"))
		return
	}

	if _, err := h.regSvc.Deactivate(c.Request.Context(), id, accountID); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"message": "webhook deactivated"})
}

// History handles GET /api/v1/webhooks/:id/deliveries.
func (h *WebhookHandler) History(c *gin.Context) {
	accountID, ok := accountFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("webhook id must be a UUID"))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if limit < 1 || limit > 200 {
		limit = defaultHistoryLimit
	}

	deliveries, err := h.regSvc.History(c.Request.Context(), id, accountID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.DeliveryResponse, 0, len(deliveries))
	for i := range deliveries {
		items = append(items, dto.FromDelivery(&deliveries[i]))
	}
	response.OK(c, dto.DeliveryListResponse{Items: items})
}

func accountFromContext(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
