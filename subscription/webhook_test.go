package subscription

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/resumly/billing/event"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testWebhookSecret = "whsec_test_123456"

func newTestWebhook(t *testing.T, store *fakeStore, producer event.Producer) *Webhook {
	t.Helper()
	hook, err := NewWebhook(WebhookOptions{
		Store:    store,
		Secret:   testWebhookSecret,
		Producer: producer,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	return hook
}

func signBody(body string) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func deliver(t *testing.T, hook *Webhook, body, signature, eventID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/razorpay", strings.NewReader(body))
	if len(signature) > 0 {
		req.Header.Set("X-Razorpay-Signature", signature)
	}
	if len(eventID) > 0 {
		req.Header.Set("X-Razorpay-Event-Id", eventID)
	}
	recorder := httptest.NewRecorder()
	hook.Router().ServeHTTP(recorder, req)
	return recorder
}

func subscriptionEventBody(eventName, gatewayID string) string {
	return fmt.Sprintf(`{
		"entity": "event",
		"event": %q,
		"payload": {
			"subscription": {
				"entity": {
					"id": %q,
					"status": "active",
					"current_start": 1700000000,
					"current_end": 1702592000
				}
			}
		}
	}`, eventName, gatewayID)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	store := &fakeStore{}
	hook := newTestWebhook(t, store, nil)

	body := subscriptionEventBody("subscription.activated", "sub_gw_1")

	recorder := deliver(t, hook, body, "deadbeef", "evt_1")
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Empty(t, store.synced)

	recorder = deliver(t, hook, body, "", "evt_1")
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Empty(t, store.synced)
}

func TestWebhookAuthenticatedStartsTrial(t *testing.T) {
	store := &fakeStore{}
	hook := newTestWebhook(t, store, nil)

	body := subscriptionEventBody("subscription.authenticated", "sub_gw_1")
	recorder := deliver(t, hook, body, signBody(body), "evt_1")

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Len(t, store.synced, 1)
	opt := store.synced[0]
	require.Equal(t, "sub_gw_1", opt.GatewaySubscriptionID)
	require.Equal(t, StatusAuthenticated, opt.Status)
	require.True(t, opt.StartTrial)
	require.False(t, opt.EndTrial)
	require.Equal(t, int64(1700000000), opt.PeriodStart.Unix())
	require.Equal(t, int64(1702592000), opt.PeriodEnd.Unix())
}

func TestWebhookChargedEndsTrial(t *testing.T) {
	store := &fakeStore{}
	hook := newTestWebhook(t, store, nil)

	body := subscriptionEventBody("subscription.charged", "sub_gw_1")
	recorder := deliver(t, hook, body, signBody(body), "evt_2")

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Len(t, store.synced, 1)
	require.Equal(t, StatusActive, store.synced[0].Status)
	require.True(t, store.synced[0].EndTrial)
}

func TestWebhookHaltedCancels(t *testing.T) {
	store := &fakeStore{}
	hook := newTestWebhook(t, store, nil)

	body := subscriptionEventBody("subscription.halted", "sub_gw_1")
	recorder := deliver(t, hook, body, signBody(body), "evt_3")

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Len(t, store.synced, 1)
	require.Equal(t, StatusCancelled, store.synced[0].Status)
	require.True(t, store.synced[0].EndTrial)
}

func TestWebhookDuplicateDeliveryAppliesOnce(t *testing.T) {
	store := &fakeStore{}
	hook := newTestWebhook(t, store, nil)

	body := subscriptionEventBody("subscription.authenticated", "sub_gw_1")

	first := deliver(t, hook, body, signBody(body), "evt_dup")
	require.Equal(t, http.StatusOK, first.Code)
	require.Len(t, store.synced, 1)

	second := deliver(t, hook, body, signBody(body), "evt_dup")
	require.Equal(t, http.StatusOK, second.Code)
	require.Contains(t, second.Body.String(), `"duplicate":true`)
	require.Len(t, store.synced, 1)
}

func TestWebhookIgnoresUnknownEvent(t *testing.T) {
	store := &fakeStore{}
	hook := newTestWebhook(t, store, nil)

	body := subscriptionEventBody("payment.captured", "sub_gw_1")
	recorder := deliver(t, hook, body, signBody(body), "evt_4")

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Empty(t, store.synced)
}

func TestWebhookPublishesObservedEvent(t *testing.T) {
	store := &fakeStore{sub: trialSubscription()}
	producer := &recordingProducer{}
	hook := newTestWebhook(t, store, producer)

	body := subscriptionEventBody("subscription.charged", store.sub.GatewaySubscriptionID)
	recorder := deliver(t, hook, body, signBody(body), "evt_5")

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Len(t, producer.events, 1)
	require.Equal(t, event.TypeGatewayObserved, producer.events[0].Type)
	require.Equal(t, store.sub.UserID, producer.events[0].UserID)
	require.Equal(t, "subscription.charged", producer.events[0].GatewayEvent)
}
