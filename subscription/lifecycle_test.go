package subscription

import (
	"context"
	"fmt"
	"testing"

	"github.com/resumly/billing/event"
	"github.com/resumly/billing/gateway"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLifecycle(t *testing.T, store *fakeStore, gw *fakeGateway, producer event.Producer) *Lifecycle {
	t.Helper()
	table := DefaultPricingTable()
	table.GatewayPlans = map[Tier]map[BillingCycle]string{
		TierPremium: {
			CycleMonthly: "plan_monthly",
			CycleAnnual:  "plan_annual",
		},
	}
	lifecycle, err := NewLifecycle(LifecycleOptions{
		Store:    store,
		Gateway:  gw,
		Table:    table,
		Producer: producer,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	return lifecycle
}

func TestCancelWithoutSubscription(t *testing.T) {
	store := &fakeStore{}
	gw := &fakeGateway{configured: true}
	lifecycle := newTestLifecycle(t, store, gw, nil)

	err := lifecycle.Cancel(context.Background(), User{ID: "user_1"})
	requireCode(t, err, CodeNoActiveSubscription)
	require.Equal(t, 0, gw.cancelCalls)
}

func TestCancelHappyPath(t *testing.T) {
	producer := &recordingProducer{}
	store := &fakeStore{sub: trialSubscription()}
	gw := &fakeGateway{configured: true}
	lifecycle := newTestLifecycle(t, store, gw, producer)

	err := lifecycle.Cancel(context.Background(), User{ID: "user_1"})
	require.NoError(t, err)

	require.Equal(t, 1, gw.cancelCalls)
	require.Equal(t, "sub_gw_1", gw.lastCancelID)
	require.Equal(t, []string{"local_1"}, store.cancelled)
	require.Equal(t, StatusCancelled, store.sub.Status)

	require.Len(t, producer.events, 1)
	require.Equal(t, event.TypeCancelled, producer.events[0].Type)
}

func TestCancelGatewayFailureLeavesRowUntouched(t *testing.T) {
	store := &fakeStore{sub: trialSubscription()}
	gw := &fakeGateway{configured: true, cancelErr: fmt.Errorf("connection refused")}
	lifecycle := newTestLifecycle(t, store, gw, nil)

	err := lifecycle.Cancel(context.Background(), User{ID: "user_1"})
	requireCode(t, err, CodeGatewayUnreachable)
	require.Empty(t, store.cancelled)
	require.Equal(t, StatusActive, store.sub.Status)
}

func TestReactivateRejectsLiveSubscription(t *testing.T) {
	store := &fakeStore{sub: trialSubscription()}
	gw := &fakeGateway{configured: true}
	lifecycle := newTestLifecycle(t, store, gw, nil)

	_, err := lifecycle.Reactivate(context.Background(), User{ID: "user_1"}, TierPremium, CycleMonthly, RegionIndia)
	requireCode(t, err, CodeSubscriptionExists)
	require.Equal(t, 0, gw.createCalls)
}

func TestReactivateFirstTimeGetsTrial(t *testing.T) {
	store := &fakeStore{prior: false}
	gw := &fakeGateway{
		configured: true,
		newSub: &gateway.Subscription{
			ID:         "sub_gw_2",
			CustomerID: "cust_gw_2",
			Status:     gateway.StatusCreated,
			ShortURL:   "https://rzp.io/i/new",
		},
	}
	lifecycle := newTestLifecycle(t, store, gw, nil)

	result, err := lifecycle.Reactivate(context.Background(), User{ID: "user_1"}, TierPremium, CycleMonthly, RegionIndia)
	require.NoError(t, err)

	require.Equal(t, TrialDays, result.TrialDays)
	require.Equal(t, "https://rzp.io/i/new", result.ShortURL)
	require.Equal(t, "plan_monthly", gw.lastCreate.PlanID)

	require.Len(t, store.created, 1)
	created := store.created[0]
	require.Equal(t, StatusCreated, created.Status)
	require.Equal(t, "sub_gw_2", created.GatewaySubscriptionID)
	// trial starts only once the mandate authenticates
	require.False(t, created.TrialActive)
	require.Equal(t, TrialDays, created.TrialDays)
}

func TestReactivateReturningUserGetsNoTrial(t *testing.T) {
	store := &fakeStore{prior: true}
	gw := &fakeGateway{
		configured: true,
		newSub: &gateway.Subscription{
			ID:     "sub_gw_2",
			Status: gateway.StatusCreated,
		},
	}
	lifecycle := newTestLifecycle(t, store, gw, nil)

	result, err := lifecycle.Reactivate(context.Background(), User{ID: "user_1"}, TierPremium, CycleAnnual, RegionRow)
	require.NoError(t, err)

	require.Equal(t, 0, result.TrialDays)
	require.Equal(t, "plan_annual", gw.lastCreate.PlanID)
	require.Len(t, store.created, 1)
	require.Equal(t, 0, store.created[0].TrialDays)
	require.Equal(t, "0", gw.lastCreate.Notes["trial_days"])
}

func TestReactivateWithoutPlanMapping(t *testing.T) {
	store := &fakeStore{}
	gw := &fakeGateway{configured: true}
	lifecycle := newTestLifecycle(t, store, gw, nil)

	_, err := lifecycle.Reactivate(context.Background(), User{ID: "user_1"}, TierFree, CycleMonthly, RegionIndia)
	requireCode(t, err, CodePricingUnavailable)
	require.Equal(t, 0, gw.createCalls)
}
