package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"webhook-delivery-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentTriggers fires 50 concurrent trigger requests with distinct
// nonces against the same registration. Every request must be accepted with
// its own delivery id, and the receiver must see exactly one request per
// delivery.
func TestConcurrentTriggers(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	rec := newReceiver(t, http.StatusOK)
	cred, producerSecret := app.seedCredential(t)
	app.registerWebhook(t, cred, rec.server.URL, 3, 1)

	const workers = 50

	var wg sync.WaitGroup
	deliveryIDs := make([]string, workers)
	statuses := make([]int, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := app.signedTrigger(t, cred, producerSecret, "audit", []byte(`{"session_id":"abc"}`), uuid.NewString())
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			defer resp.Body.Close()
			statuses[i] = resp.StatusCode
			var trigger struct {
				DeliveryID string `json:"delivery_id"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&trigger); err == nil {
				deliveryIDs[i] = trigger.DeliveryID
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < workers; i++ {
		assert.Equal(t, http.StatusAccepted, statuses[i])
		require.NotEmpty(t, deliveryIDs[i])
		assert.False(t, seen[deliveryIDs[i]], "delivery id reused: %s", deliveryIDs[i])
		seen[deliveryIDs[i]] = true
	}

	require.Eventually(t, func() bool {
		return rec.callCount() == workers
	}, 10*time.Second, 50*time.Millisecond)

	// No delivery is dispatched twice.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, workers, rec.callCount())
}

// TestConcurrentSweepers runs several sweepers over the same batch of due
// deliveries. The claim step must hand each delivery to exactly one sweeper:
// the receiver sees one request per delivery, never two.
func TestConcurrentSweepers(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	rec := newReceiver(t, http.StatusOK)
	cred, _ := app.seedCredential(t)
	webhookID, _ := app.registerWebhook(t, cred, rec.server.URL, 3, 60)
	regID := uuid.MustParse(webhookID)

	const deliveries = 20
	past := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < deliveries; i++ {
		due := past
		d := &domain.Delivery{
			ID:             uuid.New(),
			RegistrationID: regID,
			Status:         domain.DeliveryStatusRetrying,
			AttemptCount:   1,
			Payload:        []byte(`{"session_id":"abc"}`),
			NextRetryAt:    &due,
			CreatedAt:      past,
			UpdatedAt:      past,
		}
		require.NoError(t, app.deliveryRepo.Create(context.Background(), d))
	}

	const sweepers = 4
	var wg sync.WaitGroup
	retried := make([]int, sweepers)
	for i := 0; i < sweepers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := app.sweeper.Sweep(context.Background(), deliveries)
			assert.NoError(t, err)
			retried[i] = n
		}(i)
	}
	wg.Wait()

	total := 0
	for _, n := range retried {
		total += n
	}
	assert.Equal(t, deliveries, total)
	assert.Equal(t, deliveries, rec.callCount())
}

// TestConcurrentClaim hammers a single delivery row from many goroutines.
// Exactly one caller may win the PENDING -> IN_PROGRESS transition.
func TestConcurrentClaim(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	d := &domain.Delivery{
		ID:             uuid.New(),
		RegistrationID: uuid.New(),
		Status:         domain.DeliveryStatusPending,
		Payload:        []byte(`{}`),
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, app.deliveryRepo.Create(context.Background(), d))

	const claimers = 32
	var wg sync.WaitGroup
	wins := make([]bool, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			won, err := app.deliveryRepo.Claim(context.Background(), d.ID, domain.DeliveryStatusPending)
			assert.NoError(t, err)
			wins[i] = won
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}
