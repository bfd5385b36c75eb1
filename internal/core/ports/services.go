package ports

import (
	"context"
	"time"

	"webhook-delivery-gateway/internal/core/domain"

	"github.com/google/uuid"
)

// EncryptionService handles AES-256-GCM encryption/decryption of secrets at rest.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
}

// TokenService handles JWT token operations. Tokens are issued by the
// product's auth provider with a shared secret; this service validates them
// and can mint its own for tests and tooling.
type TokenService interface {
	Generate(accountID uuid.UUID) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	AccountID uuid.UUID
}

// NonceStore manages nonce uniqueness for replay attack prevention on the
// trigger endpoints.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, credentialID string, nonce string, ttl time.Duration) (bool, error)
}

// TriggerCache caches trigger responses keyed by the client's idempotency
// key, so a retried trigger request does not dispatch a duplicate delivery.
type TriggerCache interface {
	// Get returns the cached response, or nil, nil when absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// --- Service Ports (Business Logic) ---

// RegisterWebhookInput holds validated input for webhook registration.
type RegisterWebhookInput struct {
	AccountID         uuid.UUID
	CredentialID      uuid.UUID
	URL               string
	MaxAttempts       *int
	RetryDelaySeconds *int
}

// RegisteredWebhook is the registration result. Secret is plaintext and is
// exposed to the caller exactly once, here.
type RegisteredWebhook struct {
	Registration domain.Registration
	Secret       string
}

// UpdateWebhookInput holds the mutable registration fields. Nil means leave
// unchanged.
type UpdateWebhookInput struct {
	URL               *string
	Active            *bool
	MaxAttempts       *int
	RetryDelaySeconds *int
}

// RegistrationService manages webhook registrations for an account.
type RegistrationService interface {
	Register(ctx context.Context, in RegisterWebhookInput) (*RegisteredWebhook, error)
	List(ctx context.Context, accountID uuid.UUID) ([]domain.Registration, error)
	Update(ctx context.Context, id, accountID uuid.UUID, in UpdateWebhookInput) (*domain.Registration, error)
	Deactivate(ctx context.Context, id, accountID uuid.UUID) (bool, error)
	History(ctx context.Context, id, accountID uuid.UUID, limit int) ([]domain.Delivery, error)
}

// DeliveryService is the delivery engine: it creates ledger entries and drives
// each delivery to a terminal state.
type DeliveryService interface {
	// Deliver creates the ledger row synchronously and returns its id; the
	// HTTP attempt sequence runs in a detached goroutine so producers are
	// never blocked by a slow receiver.
	Deliver(ctx context.Context, reg *domain.Registration, payload []byte, correlationID string) (uuid.UUID, error)
	// Resubmit performs a single attempt for a delivery scheduled for retry.
	// It claims the row first; if another worker already holds it, no attempt
	// is made and (false, nil) is returned. Used by the sweeper.
	Resubmit(ctx context.Context, reg *domain.Registration, d *domain.Delivery) (bool, error)
}

// SweeperService resubmits deliveries that are due for retry.
type SweeperService interface {
	// Sweep claims and retries up to batchLimit due deliveries, oldest first.
	// Returns the number of deliveries for which an attempt was made.
	Sweep(ctx context.Context, batchLimit int) (int, error)
}

// AuditService records audited actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
