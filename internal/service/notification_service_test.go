package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openfund-labs/fundflow-api/internal/models"
)

type captureDispatcher struct {
	mu     sync.Mutex
	events []models.Event
	fail   int
}

func (d *captureDispatcher) Deliver(_ context.Context, event models.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail > 0 {
		d.fail--
		return errors.New("broker unavailable")
	}
	d.events = append(d.events, event)
	return nil
}

func (d *captureDispatcher) delivered() []models.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Event, len(d.events))
	copy(out, d.events)
	return out
}

func TestNotificationDispatchDeliversAsync(t *testing.T) {
	dispatcher := &captureDispatcher{}
	svc := NewNotificationService(dispatcher, NotificationConfig{Workers: 2, QueueSize: 8, MaxRetries: 1}, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Dispatch(context.Background(), models.Event{
		Kind:       models.EventContributionApproved,
		Recipients: []string{"donor-1"},
	})

	require.Eventually(t, func() bool {
		return len(dispatcher.delivered()) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, models.EventContributionApproved, dispatcher.delivered()[0].Kind)
}

func TestNotificationDeliveryRetries(t *testing.T) {
	dispatcher := &captureDispatcher{fail: 1}
	svc := NewNotificationService(dispatcher, NotificationConfig{Workers: 1, QueueSize: 8, MaxRetries: 3}, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Dispatch(context.Background(), models.Event{Kind: models.EventCaseStatusChanged, CaseID: "case-1"})

	require.Eventually(t, func() bool {
		return len(dispatcher.delivered()) == 1
	}, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, "case-1", dispatcher.delivered()[0].CaseID)
}

func TestDispatcherFuncAdapts(t *testing.T) {
	var got models.Event
	f := DispatcherFunc(func(_ context.Context, event models.Event) error {
		got = event
		return nil
	})
	require.NoError(t, f.Deliver(context.Background(), models.Event{Kind: models.EventProjectCompleted}))
	require.Equal(t, models.EventProjectCompleted, got.Kind)
}
