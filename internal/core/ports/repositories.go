package ports

import (
	"context"
	"time"

	"webhook-delivery-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CredentialRepository defines read access to API credentials. Credentials are
// provisioned by the main product in the shared database; Create exists for
// seeding and tests only.
type CredentialRepository interface {
	Create(ctx context.Context, cred *domain.Credential) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Credential, error)
	GetByKey(ctx context.Context, apiKey string) (*domain.Credential, error)
}

// RegistrationRepository defines persistence operations for webhook
// registrations. Methods accepting pgx.Tx run inside the registration
// transaction that enforces the single-active-per-credential invariant.
type RegistrationRepository interface {
	Create(ctx context.Context, tx pgx.Tx, reg *domain.Registration) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Registration, error)
	GetActiveByCredential(ctx context.Context, credentialID uuid.UUID) (*domain.Registration, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Registration, error)
	Update(ctx context.Context, reg *domain.Registration) error
	DeactivateActiveForCredential(ctx context.Context, tx pgx.Tx, credentialID uuid.UUID) error
	SetLastTriggered(ctx context.Context, id uuid.UUID, at time.Time) error
}

// DeliveryRepository defines persistence operations for the delivery ledger.
type DeliveryRepository interface {
	Create(ctx context.Context, d *domain.Delivery) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Delivery, error)
	// Update persists the mutable attempt fields: status, attempt_count,
	// response_code, response_body, error_message, next_retry_at, delivered_at.
	// The payload is write-once and never updated.
	Update(ctx context.Context, d *domain.Delivery) error
	// Claim atomically transitions a delivery from the given status to
	// IN_PROGRESS. Returns false if the row was not in that status, which
	// means another worker already claimed it.
	Claim(ctx context.Context, id uuid.UUID, from domain.DeliveryStatus) (bool, error)
	// ListDue returns RETRYING deliveries with next_retry_at before now,
	// oldest first, up to limit.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error)
	ListByRegistration(ctx context.Context, registrationID uuid.UUID, limit int) ([]domain.Delivery, error)
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
