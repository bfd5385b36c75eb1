package dto

import (
	"time"

	"webhook-delivery-gateway/internal/core/domain"
)

// RegisterWebhookRequest is the request body for webhook registration.
type RegisterWebhookRequest struct {
	CredentialID      string `json:"credential_id" binding:"required,uuid"`
	URL               string `json:"webhook_url" binding:"required,safe_url,max=2048"`
	MaxRetries        *int   `json:"max_retries,omitempty" binding:"omitempty,min=1,max=10"`
	RetryDelaySeconds *int   `json:"retry_delay_seconds,omitempty" binding:"omitempty,min=1,max=3600"`
}

// UpdateWebhookRequest is the request body for webhook updates. Absent fields
// keep their current value.
type UpdateWebhookRequest struct {
	URL               *string `json:"webhook_url,omitempty" binding:"omitempty,safe_url,max=2048"`
	Active            *bool   `json:"active,omitempty"`
	MaxRetries        *int    `json:"max_retries,omitempty" binding:"omitempty,min=1,max=10"`
	RetryDelaySeconds *int    `json:"retry_delay_seconds,omitempty" binding:"omitempty,min=1,max=3600"`
}

// WebhookResponse describes a registration. The signing secret is never part
// of this shape.
type WebhookResponse struct {
	ID                string  `json:"id"`
	CredentialID      string  `json:"credential_id"`
	URL               string  `json:"webhook_url"`
	Active            bool    `json:"active"`
	MaxRetries        int     `json:"max_retries"`
	RetryDelaySeconds int     `json:"retry_delay_seconds"`
	LastTriggeredAt   *string `json:"last_triggered_at,omitempty"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

// RegisterWebhookResponse is returned from registration. WebhookSecret is the
// plaintext signing secret, shown exactly once.
type RegisterWebhookResponse struct {
	WebhookResponse
	WebhookSecret string `json:"webhook_secret"`
}

// WebhookListResponse wraps the account's registrations.
type WebhookListResponse struct {
	Items []WebhookResponse `json:"items"`
}

// DeliveryResponse describes one ledger entry.
type DeliveryResponse struct {
	ID            string  `json:"id"`
	CorrelationID string  `json:"correlation_id,omitempty"`
	Status        string  `json:"status"`
	AttemptCount  int     `json:"attempt_count"`
	ResponseCode  *int    `json:"response_code,omitempty"`
	ErrorMessage  *string `json:"error_message,omitempty"`
	NextRetryAt   *string `json:"next_retry_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
	DeliveredAt   *string `json:"delivered_at,omitempty"`
}

// DeliveryListResponse wraps a registration's delivery history.
type DeliveryListResponse struct {
	Items []DeliveryResponse `json:"items"`
}

// TriggerResponse is returned from an event trigger. The delivery itself runs
// asynchronously; only the ledger id is known at response time.
type TriggerResponse struct {
	DeliveryID string `json:"delivery_id"`
	EventType  string `json:"event_type"`
	Status     string `json:"status"`
}

// FromRegistration maps a domain registration to its response shape.
func FromRegistration(reg *domain.Registration) WebhookResponse {
	out := WebhookResponse{
		ID:                reg.ID.String(),
		CredentialID:      reg.CredentialID.String(),
		URL:               reg.URL,
		Active:            reg.Active,
		MaxRetries:        reg.MaxAttempts,
		RetryDelaySeconds: reg.RetryDelaySeconds,
		CreatedAt:         reg.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         reg.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if reg.LastTriggeredAt != nil {
		s := reg.LastTriggeredAt.UTC().Format(time.RFC3339)
		out.LastTriggeredAt = &s
	}
	return out
}

// FromDelivery maps a domain delivery to its response shape.
func FromDelivery(d *domain.Delivery) DeliveryResponse {
	out := DeliveryResponse{
		ID:            d.ID.String(),
		CorrelationID: d.CorrelationID,
		Status:        string(d.Status),
		AttemptCount:  d.AttemptCount,
		ResponseCode:  d.ResponseCode,
		ErrorMessage:  d.ErrorMessage,
		CreatedAt:     d.CreatedAt.UTC().Format(time.RFC3339),
	}
	if d.NextRetryAt != nil {
		s := d.NextRetryAt.UTC().Format(time.RFC3339)
		out.NextRetryAt = &s
	}
	if d.DeliveredAt != nil {
		s := d.DeliveredAt.UTC().Format(time.RFC3339)
		out.DeliveredAt = &s
	}
	return out
}
