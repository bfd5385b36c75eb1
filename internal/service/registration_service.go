package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"webhook-delivery-gateway/internal/core/domain"
	"webhook-delivery-gateway/internal/core/ports"
	"webhook-delivery-gateway/pkg/apperror"

	"github.com/google/uuid"
)

// webhookSecretBytes is the entropy of a generated webhook secret. Hex-encoded
// it yields a 64-character string.
const webhookSecretBytes = 32

// RegistrationServiceImpl implements ports.RegistrationService.
type RegistrationServiceImpl struct {
	regRepo      ports.RegistrationRepository
	credRepo     ports.CredentialRepository
	deliveryRepo ports.DeliveryRepository
	encSvc       ports.EncryptionService
	transactor   ports.DBTransactor
}

// NewRegistrationService creates a new registration service.
func NewRegistrationService(
	regRepo ports.RegistrationRepository,
	credRepo ports.CredentialRepository,
	deliveryRepo ports.DeliveryRepository,
	encSvc ports.EncryptionService,
	transactor ports.DBTransactor,
) *RegistrationServiceImpl {
	return &RegistrationServiceImpl{
		regRepo:      regRepo,
		credRepo:     credRepo,
		deliveryRepo: deliveryRepo,
		encSvc:       encSvc,
		transactor:   transactor,
	}
}

// Register validates the target URL, generates a fresh secret, and inserts an
// active registration. Any previously active registration for the credential
// is deactivated in the same transaction, keeping the single-active invariant.
// The plaintext secret is returned to the caller here and never again.
func (s *RegistrationServiceImpl) Register(ctx context.Context, in ports.RegisterWebhookInput) (*ports.RegisteredWebhook, error) {
	if err := validateWebhookURL(in.URL); err != nil {
		return nil, apperror.ErrInvalidWebhookURL()
	}

	cred, err := s.credRepo.GetByID(ctx, in.CredentialID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if cred == nil || cred.AccountID != in.AccountID {
		return nil, apperror.ErrNotFound("credential")
	}

	secret, err := generateRandomHex(webhookSecretBytes)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generating webhook secret: %w", err))
	}
	secretEnc, err := s.encSvc.Encrypt(secret)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(err)
	}

	now := time.Now().UTC()
	reg := &domain.Registration{
		ID:                uuid.New(),
		AccountID:         in.AccountID,
		CredentialID:      in.CredentialID,
		URL:               in.URL,
		SecretEnc:         secretEnc,
		Active:            true,
		MaxAttempts:       domain.DefaultMaxAttempts,
		RetryDelaySeconds: domain.DefaultRetryDelaySeconds,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.MaxAttempts != nil {
		reg.MaxAttempts = *in.MaxAttempts
	}
	if in.RetryDelaySeconds != nil {
		reg.RetryDelaySeconds = *in.RetryDelaySeconds
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.regRepo.DeactivateActiveForCredential(ctx, dbTx, in.CredentialID); err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if err := s.regRepo.Create(ctx, dbTx, reg); err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	return &ports.RegisteredWebhook{
		Registration: *reg,
		Secret:       secret,
	}, nil
}

// List returns all registrations for the account, active or not. Secrets are
// never included.
func (s *RegistrationServiceImpl) List(ctx context.Context, accountID uuid.UUID) ([]domain.Registration, error) {
	regs, err := s.regRepo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	return regs, nil
}

// Update mutates the url, active flag, and retry policy of a registration
// owned by the account. A mismatched (id, account) pair yields NotFound so
// cross-tenant modification is indistinguishable from a missing row.
func (s *RegistrationServiceImpl) Update(ctx context.Context, id, accountID uuid.UUID, in ports.UpdateWebhookInput) (*domain.Registration, error) {
	reg, err := s.getOwned(ctx, id, accountID)
	if err != nil {
		return nil, err
	}

	if in.URL != nil {
		if err := validateWebhookURL(*in.URL); err != nil {
			return nil, apperror.ErrInvalidWebhookURL()
		}
		reg.URL = *in.URL
	}
	if in.Active != nil {
		reg.Active = *in.Active
	}
	if in.MaxAttempts != nil {
		reg.MaxAttempts = *in.MaxAttempts
	}
	if in.RetryDelaySeconds != nil {
		reg.RetryDelaySeconds = *in.RetryDelaySeconds
	}
	reg.UpdatedAt = time.Now().UTC()

	if err := s.regRepo.Update(ctx, reg); err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	return reg, nil
}

// Deactivate flips the active flag off. Idempotent: deactivating an already
// inactive registration succeeds. The row is retained for audit.
func (s *RegistrationServiceImpl) Deactivate(ctx context.Context, id, accountID uuid.UUID) (bool, error) {
	reg, err := s.getOwned(ctx, id, accountID)
	if err != nil {
		return false, err
	}
	if !reg.Active {
		return true, nil
	}

	reg.Active = false
	reg.UpdatedAt = time.Now().UTC()
	if err := s.regRepo.Update(ctx, reg); err != nil {
		return false, apperror.ErrDatabaseError(err)
	}
	return true, nil
}

// History returns the most recent deliveries for a registration owned by the
// account. This read is the only place delivery failures surface.
func (s *RegistrationServiceImpl) History(ctx context.Context, id, accountID uuid.UUID, limit int) ([]domain.Delivery, error) {
	if _, err := s.getOwned(ctx, id, accountID); err != nil {
		return nil, err
	}

	deliveries, err := s.deliveryRepo.ListByRegistration(ctx, id, limit)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	return deliveries, nil
}

func (s *RegistrationServiceImpl) getOwned(ctx context.Context, id, accountID uuid.UUID) (*domain.Registration, error) {
	reg, err := s.regRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if reg == nil || reg.AccountID != accountID {
		return nil, apperror.ErrNotFound("webhook")
	}
	return reg, nil
}

// validateWebhookURL accepts only absolute http/https URLs with a host.
func validateWebhookURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// generateRandomHex generates a random hex string of n bytes.
func generateRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
