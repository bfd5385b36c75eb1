package service

import (
	"context"
	"time"

	"webhook-delivery-gateway/internal/core/ports"
	"webhook-delivery-gateway/pkg/apperror"

	"github.com/rs/zerolog"
)

// DefaultSweepBatchLimit bounds how many due deliveries one sweep processes.
const DefaultSweepBatchLimit = 100

// SweeperServiceImpl implements ports.SweeperService. It is safe to run from
// several workers at once: the engine's claim step guarantees each due row is
// attempted by exactly one of them.
type SweeperServiceImpl struct {
	deliveryRepo ports.DeliveryRepository
	regRepo      ports.RegistrationRepository
	engine       ports.DeliveryService
	log          zerolog.Logger
}

// NewSweeperService creates a new retry sweeper.
func NewSweeperService(
	deliveryRepo ports.DeliveryRepository,
	regRepo ports.RegistrationRepository,
	engine ports.DeliveryService,
	log zerolog.Logger,
) *SweeperServiceImpl {
	return &SweeperServiceImpl{
		deliveryRepo: deliveryRepo,
		regRepo:      regRepo,
		engine:       engine,
		log:          log,
	}
}

// Sweep claims and retries up to batchLimit due deliveries, oldest
// next_retry_at first. Returns the number of deliveries actually attempted.
// Rows whose claim is lost to a concurrent worker are skipped, not counted.
func (s *SweeperServiceImpl) Sweep(ctx context.Context, batchLimit int) (int, error) {
	if batchLimit <= 0 {
		batchLimit = DefaultSweepBatchLimit
	}

	due, err := s.deliveryRepo.ListDue(ctx, time.Now().UTC(), batchLimit)
	if err != nil {
		return 0, apperror.ErrDatabaseError(err)
	}

	retried := 0
	for i := range due {
		d := &due[i]

		reg, err := s.regRepo.GetByID(ctx, d.RegistrationID)
		if err != nil {
			s.log.Error().Err(err).Str("delivery_id", d.ID.String()).Msg("sweep: failed to load registration")
			continue
		}
		if reg == nil {
			s.log.Warn().
				Str("delivery_id", d.ID.String()).
				Str("registration_id", d.RegistrationID.String()).
				Msg("sweep: delivery references missing registration")
			continue
		}

		attempted, err := s.engine.Resubmit(ctx, reg, d)
		if err != nil {
			s.log.Error().Err(err).Str("delivery_id", d.ID.String()).Msg("sweep: resubmit failed")
			continue
		}
		if attempted {
			retried++
		}
	}

	if retried > 0 {
		s.log.Info().Int("retried", retried).Int("due", len(due)).Msg("sweep: completed")
	}
	return retried, nil
}
