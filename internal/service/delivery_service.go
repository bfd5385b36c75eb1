package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"webhook-delivery-gateway/internal/core/domain"
	"webhook-delivery-gateway/internal/core/ports"
	"webhook-delivery-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Headers attached to every outbound delivery request.
const (
	HeaderWebhookSignature  = "X-Webhook-Signature"
	HeaderWebhookTimestamp  = "X-Webhook-Timestamp"
	HeaderWebhookDeliveryID = "X-Webhook-Delivery-Id"
)

// maxStoredResponseBody caps how much of the receiver's response body is kept
// in the ledger for diagnostics.
const maxStoredResponseBody = 4096

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DeliveryServiceImpl implements ports.DeliveryService. It owns every status
// transition of a delivery: the direct dispatch loop and the sweeper's
// resubmission both funnel into attemptOnce, so the state machine has exactly
// one implementation.
type DeliveryServiceImpl struct {
	deliveryRepo ports.DeliveryRepository
	regRepo      ports.RegistrationRepository
	encSvc       ports.EncryptionService
	sigSvc       ports.SignatureService
	httpClient   HTTPClient
	log          zerolog.Logger
}

// NewDeliveryService creates a new delivery engine. httpClient should carry
// the delivery request timeout (30s by default).
func NewDeliveryService(
	deliveryRepo ports.DeliveryRepository,
	regRepo ports.RegistrationRepository,
	encSvc ports.EncryptionService,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	log zerolog.Logger,
) *DeliveryServiceImpl {
	return &DeliveryServiceImpl{
		deliveryRepo: deliveryRepo,
		regRepo:      regRepo,
		encSvc:       encSvc,
		sigSvc:       sigSvc,
		httpClient:   httpClient,
		log:          log,
	}
}

// Deliver creates the ledger row synchronously and returns its id. The HTTP
// attempt sequence runs in a detached goroutine: webhook delivery is a
// best-effort side channel and must never sit on the critical path of the
// event producer.
func (s *DeliveryServiceImpl) Deliver(ctx context.Context, reg *domain.Registration, payload []byte, correlationID string) (uuid.UUID, error) {
	now := time.Now().UTC()
	d := &domain.Delivery{
		ID:             uuid.New(),
		RegistrationID: reg.ID,
		CorrelationID:  correlationID,
		Status:         domain.DeliveryStatusPending,
		Payload:        payload,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.deliveryRepo.Create(ctx, d); err != nil {
		return uuid.Nil, apperror.ErrDatabaseError(err)
	}

	go s.runDeliveryLoop(*reg, d)

	return d.ID, nil
}

// Resubmit performs a single attempt for a delivery scheduled for retry.
// It claims the row first; if another worker holds it, no attempt is made and
// (false, nil) is returned. Used by the sweeper.
func (s *DeliveryServiceImpl) Resubmit(ctx context.Context, reg *domain.Registration, d *domain.Delivery) (bool, error) {
	claimed, err := s.deliveryRepo.Claim(ctx, d.ID, domain.DeliveryStatusRetrying)
	if err != nil {
		return false, apperror.ErrDatabaseError(err)
	}
	if !claimed {
		s.log.Debug().Str("delivery_id", d.ID.String()).Msg("delivery: claim lost, skipping resubmit")
		return false, nil
	}

	if err := s.attemptOnce(ctx, reg, d); err != nil {
		return true, err
	}
	return true, nil
}

// runDeliveryLoop drives a freshly created delivery to a terminal state,
// sleeping between attempts. It runs detached from the producer request, so it
// uses a background context. Before every attempt the row is claimed with a
// compare-and-swap on status; losing the claim means a sweeper picked the row
// up, and the loop exits rather than double-send.
func (s *DeliveryServiceImpl) runDeliveryLoop(reg domain.Registration, d *domain.Delivery) {
	ctx := context.Background()
	from := domain.DeliveryStatusPending

	for {
		claimed, err := s.deliveryRepo.Claim(ctx, d.ID, from)
		if err != nil {
			s.log.Error().Err(err).Str("delivery_id", d.ID.String()).Msg("delivery: claim failed, abandoning attempt")
			return
		}
		if !claimed {
			s.log.Debug().Str("delivery_id", d.ID.String()).Msg("delivery: row claimed elsewhere, exiting loop")
			return
		}

		if err := s.attemptOnce(ctx, &reg, d); err != nil {
			s.log.Error().Err(err).Str("delivery_id", d.ID.String()).Msg("delivery: recording attempt outcome failed, abandoning")
			return
		}
		if d.Status != domain.DeliveryStatusRetrying {
			return
		}

		from = domain.DeliveryStatusRetrying
		time.Sleep(reg.RetryDelay())
	}
}

// attemptOnce performs a single signed HTTP attempt and records the outcome.
// The delivery must be claimed (IN_PROGRESS) by the caller. A 2xx response is
// terminal success; a non-2xx response and a network error are treated
// identically, consuming one attempt and scheduling a retry while budget
// remains.
func (s *DeliveryServiceImpl) attemptOnce(ctx context.Context, reg *domain.Registration, d *domain.Delivery) error {
	secret, err := s.encSvc.Decrypt(reg.SecretEnc)
	if err != nil {
		msg := fmt.Sprintf("signing secret unavailable: %v", err)
		d.Status = domain.DeliveryStatusFailed
		d.ErrorMessage = &msg
		d.NextRetryAt = nil
		s.log.Error().Err(err).Str("registration_id", reg.ID.String()).Msg("delivery: cannot decrypt registration secret")
		return s.deliveryRepo.Update(ctx, d)
	}

	d.AttemptCount++
	now := time.Now().UTC()
	code, body, httpErr := s.post(ctx, reg.URL, d, secret)

	if httpErr == nil && code >= 200 && code < 300 {
		d.Status = domain.DeliveryStatusSent
		d.ResponseCode = &code
		d.ResponseBody = &body
		d.ErrorMessage = nil
		d.NextRetryAt = nil
		d.DeliveredAt = &now
		if err := s.deliveryRepo.Update(ctx, d); err != nil {
			return err
		}
		if err := s.regRepo.SetLastTriggered(ctx, reg.ID, now); err != nil {
			s.log.Warn().Err(err).Str("registration_id", reg.ID.String()).Msg("delivery: failed to record last_triggered_at")
		}
		s.log.Info().
			Str("delivery_id", d.ID.String()).
			Int("attempt", d.AttemptCount).
			Int("status", code).
			Msg("delivery: delivered successfully")
		return nil
	}

	var msg string
	if httpErr != nil {
		msg = httpErr.Error()
	} else {
		msg = fmt.Sprintf("non-2xx response: %d", code)
		d.ResponseCode = &code
		d.ResponseBody = &body
	}
	d.ErrorMessage = &msg

	if d.AttemptCount < reg.MaxAttempts {
		d.Status = domain.DeliveryStatusRetrying
		next := now.Add(reg.RetryDelay())
		d.NextRetryAt = &next
		s.log.Warn().
			Str("delivery_id", d.ID.String()).
			Int("attempt", d.AttemptCount).
			Str("error", msg).
			Time("next_retry_at", next).
			Msg("delivery: attempt failed, retry scheduled")
	} else {
		d.Status = domain.DeliveryStatusFailed
		d.NextRetryAt = nil
		s.log.Error().
			Str("delivery_id", d.ID.String()).
			Int("attempt", d.AttemptCount).
			Str("error", msg).
			Msg("delivery: retry budget exhausted")
	}

	return s.deliveryRepo.Update(ctx, d)
}

// post sends the signed payload. The signature covers the exact payload bytes,
// so it is identical on every attempt; the timestamp header reflects this
// attempt.
func (s *DeliveryServiceImpl) post(ctx context.Context, targetURL string, d *domain.Delivery, secret string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(d.Payload))
	if err != nil {
		return 0, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderWebhookSignature, s.sigSvc.Sign(secret, string(d.Payload)))
	req.Header.Set(HeaderWebhookTimestamp, time.Now().UTC().Format(time.RFC3339))
	req.Header.Set(HeaderWebhookDeliveryID, d.ID.String())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxStoredResponseBody))
	return resp.StatusCode, string(body), nil
}
