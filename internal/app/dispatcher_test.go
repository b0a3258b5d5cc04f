package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/escalator/internal/core/incident"
	"github.com/example/escalator/internal/ports/secondary"
)

// fakeGateway implements secondary.NotificationGateway for testing.
type fakeGateway struct {
	mu    sync.Mutex
	calls []secondary.NotificationRequest
	err   error
	delay time.Duration
}

func (g *fakeGateway) Send(ctx context.Context, req secondary.NotificationRequest) (string, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.err != nil {
		return "", g.err
	}
	return fmt.Sprintf("ATT-%d", len(g.calls)), nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// recordingRecorder implements DeliveryRecorder for testing.
type recordingRecorder struct {
	mu      sync.Mutex
	updates []secondary.DeliveryUpdate
}

func (r *recordingRecorder) UpdateNotificationDelivery(ctx context.Context, update secondary.DeliveryUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
	return nil
}

func (r *recordingRecorder) snapshot() []secondary.DeliveryUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]secondary.DeliveryUpdate(nil), r.updates...)
}

func notification(id string) secondary.NotificationRequest {
	return secondary.NotificationRequest{
		NotificationID: id,
		TenantID:       "T1",
		CaseID:         "CASE-1",
		Level:          1,
		RecipientID:    "role:counselor",
		Method:         "email",
	}
}

func TestDispatcher_InlineAccepted(t *testing.T) {
	gateway := &fakeGateway{}
	recorder := &recordingRecorder{}
	d := NewDispatcher(gateway, recorder, DispatcherConfig{Inline: true}, nil, nil)

	ok := d.Enqueue(context.Background(), notification("N-1"))
	require.True(t, ok)

	updates := recorder.snapshot()
	require.Len(t, updates, 1)
	assert.Equal(t, secondary.DeliveryUpdate{
		TenantID:       "T1",
		NotificationID: "N-1",
		AttemptID:      "ATT-1",
		Status:         incident.DeliveryAccepted,
	}, updates[0])
}

func TestDispatcher_GatewayFailureIsRecorded(t *testing.T) {
	gateway := &fakeGateway{err: errors.New("smtp 451")}
	recorder := &recordingRecorder{}
	d := NewDispatcher(gateway, recorder, DispatcherConfig{Inline: true}, nil, nil)

	d.Enqueue(context.Background(), notification("N-1"))

	updates := recorder.snapshot()
	require.Len(t, updates, 1)
	assert.Equal(t, incident.DeliveryFailed, updates[0].Status)
	assert.Equal(t, "T1", updates[0].TenantID)
	assert.Contains(t, updates[0].Error, "smtp 451")
}

func TestDispatcher_TimeoutIsFailure(t *testing.T) {
	gateway := &fakeGateway{delay: time.Second}
	recorder := &recordingRecorder{}
	d := NewDispatcher(gateway, recorder, DispatcherConfig{Inline: true, Timeout: 10 * time.Millisecond}, nil, nil)

	d.Enqueue(context.Background(), notification("N-1"))

	updates := recorder.snapshot()
	require.Len(t, updates, 1)
	assert.Equal(t, incident.DeliveryFailed, updates[0].Status)
	assert.Contains(t, updates[0].Error, context.DeadlineExceeded.Error())
}

func TestDispatcher_QueueFullDrops(t *testing.T) {
	gateway := &fakeGateway{}
	recorder := &recordingRecorder{}
	d := NewDispatcher(gateway, recorder, DispatcherConfig{QueueSize: 1}, nil, nil)

	assert.True(t, d.Enqueue(context.Background(), notification("N-1")))
	assert.False(t, d.Enqueue(context.Background(), notification("N-2")))
	assert.Equal(t, 1, d.Pending())

	updates := recorder.snapshot()
	require.Len(t, updates, 1)
	assert.Equal(t, "N-2", updates[0].NotificationID)
	assert.Equal(t, incident.DeliveryDropped, updates[0].Status)
	assert.Zero(t, gateway.callCount())
}

func TestDispatcher_RunDrainsQueue(t *testing.T) {
	gateway := &fakeGateway{}
	recorder := &recordingRecorder{}
	d := NewDispatcher(gateway, recorder, DispatcherConfig{QueueSize: 16, Workers: 3}, nil, nil)

	for i := 1; i <= 10; i++ {
		require.True(t, d.Enqueue(context.Background(), notification(fmt.Sprintf("N-%d", i))))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return len(recorder.snapshot()) == 10
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}

	for _, u := range recorder.snapshot() {
		assert.Equal(t, incident.DeliveryAccepted, u.Status)
	}
}

func TestDispatcher_BreakerOpens(t *testing.T) {
	gateway := &fakeGateway{err: errors.New("gateway down")}
	recorder := &recordingRecorder{}
	d := NewDispatcher(gateway, recorder, DispatcherConfig{
		Inline:              true,
		BreakerMinRequests:  2,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  time.Minute,
	}, nil, nil)

	for i := 1; i <= 3; i++ {
		d.Enqueue(context.Background(), notification(fmt.Sprintf("N-%d", i)))
	}

	assert.Equal(t, 2, gateway.callCount())
	assert.Equal(t, gobreaker.StateOpen, d.BreakerState())

	updates := recorder.snapshot()
	require.Len(t, updates, 3)
	assert.Equal(t, incident.DeliveryFailed, updates[2].Status)
	assert.Contains(t, updates[2].Error, gobreaker.ErrOpenState.Error())
}
