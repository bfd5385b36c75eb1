package domain

import (
	"time"

	"github.com/google/uuid"
)

// Credential is an API key issued to an account. Event producers authenticate
// trigger requests with it, and webhook registrations are scoped to it.
// Credentials are provisioned by the main product; this service only reads them.
type Credential struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	APIKey    string    `json:"api_key"`
	SecretEnc string    `json:"-"` // Encrypted, never expose
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// IsActive returns true if the credential may trigger events.
func (c *Credential) IsActive() bool {
	return c.Active
}
