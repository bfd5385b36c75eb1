package domain

import (
	"time"

	"github.com/google/uuid"
)

// Default retry policy applied when a registration does not specify one.
const (
	DefaultMaxAttempts       = 3
	DefaultRetryDelaySeconds = 60
)

// Registration is a stored webhook configuration: where to deliver events for
// a given credential, and how hard to retry. At most one registration per
// (account, credential) pair is active at a time. Rows are never hard-deleted;
// deactivation flips the active flag so the audit trail survives.
type Registration struct {
	ID                uuid.UUID  `json:"id"`
	AccountID         uuid.UUID  `json:"account_id"`
	CredentialID      uuid.UUID  `json:"credential_id"`
	URL               string     `json:"webhook_url"`
	SecretEnc         string     `json:"-"` // Encrypted at rest, never expose
	Active            bool       `json:"active"`
	MaxAttempts       int        `json:"max_attempts"`
	RetryDelaySeconds int        `json:"retry_delay_seconds"`
	LastTriggeredAt   *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// RetryDelay returns the inter-attempt delay as a duration.
func (r *Registration) RetryDelay() time.Duration {
	return time.Duration(r.RetryDelaySeconds) * time.Second
}
