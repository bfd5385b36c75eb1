package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus represents the lifecycle state of a delivery.
type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "PENDING"
	DeliveryStatusInProgress DeliveryStatus = "IN_PROGRESS"
	DeliveryStatusRetrying   DeliveryStatus = "RETRYING"
	DeliveryStatusSent       DeliveryStatus = "SENT"
	DeliveryStatusFailed     DeliveryStatus = "FAILED"
)

// IsTerminal returns true for states that are never left again.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusSent || s == DeliveryStatusFailed
}

// Delivery tracks one logical event's dispatch through possibly multiple HTTP
// attempts to a single terminal outcome. The payload is write-once: retries
// resend the identical bytes, so the signature header is identical on every
// attempt. IN_PROGRESS is a transient claim marker held only while an attempt
// is executing; it is what keeps concurrent sweepers from double-sending.
type Delivery struct {
	ID             uuid.UUID      `json:"id"`
	RegistrationID uuid.UUID      `json:"registration_id"`
	CorrelationID  string         `json:"correlation_id,omitempty"`
	Status         DeliveryStatus `json:"status"`
	AttemptCount   int            `json:"attempt_count"`
	Payload        []byte         `json:"payload"`
	ResponseCode   *int           `json:"response_code,omitempty"`
	ResponseBody   *string        `json:"response_body,omitempty"`
	ErrorMessage   *string        `json:"error_message,omitempty"`
	NextRetryAt    *time.Time     `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
