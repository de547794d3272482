package subscription

import (
	"context"
	"fmt"
	"testing"

	"github.com/resumly/billing/gateway"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDetectTrustsNotesTag(t *testing.T) {
	gw := &fakeGateway{
		tokens: []gateway.Token{
			{ID: "token_1", Method: "upi"},
		},
	}
	sub := &gateway.Subscription{
		ID:         "sub_1",
		CustomerID: "cust_1",
		Notes:      gateway.Notes{"payment_method": "card"},
	}

	method, source := DetectPaymentMethod(context.Background(), gw, sub, zap.NewNop())
	require.Equal(t, MethodCard, method)
	require.Equal(t, DetectedFromNotes, source)
	// notes short-circuit the token lookup entirely
	require.Equal(t, 0, gw.tokenCalls)
}

func TestDetectNonCardNotesMeanUPI(t *testing.T) {
	gw := &fakeGateway{}
	sub := &gateway.Subscription{
		ID:    "sub_1",
		Notes: gateway.Notes{"payment_method": "emandate"},
	}

	method, source := DetectPaymentMethod(context.Background(), gw, sub, zap.NewNop())
	require.Equal(t, MethodUPI, method)
	require.Equal(t, DetectedFromNotes, source)
}

func TestDetectUsesFirstToken(t *testing.T) {
	cases := []struct {
		name   string
		tokens []gateway.Token
		want   PaymentMethod
	}{
		{
			name: "card token",
			tokens: []gateway.Token{
				{ID: "token_1", Method: "card", Card: &gateway.TokenCard{Network: "Visa"}},
				{ID: "token_2", Method: "upi"},
			},
			want: MethodCard,
		},
		{
			name: "upi token",
			tokens: []gateway.Token{
				{ID: "token_1", Method: "upi"},
			},
			want: MethodUPI,
		},
		{
			name: "vpa without method",
			tokens: []gateway.Token{
				{ID: "token_1", VPA: &gateway.TokenVPA{Address: "someone@upi"}},
			},
			want: MethodUPI,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := &fakeGateway{tokens: tc.tokens}
			sub := &gateway.Subscription{
				ID:         "sub_1",
				CustomerID: "cust_1",
			}

			method, source := DetectPaymentMethod(context.Background(), gw, sub, zap.NewNop())
			require.Equal(t, tc.want, method)
			require.Equal(t, DetectedFromToken, source)
		})
	}
}

func TestDetectDefaultsToUPI(t *testing.T) {
	cases := []struct {
		name string
		gw   *fakeGateway
		sub  *gateway.Subscription
	}{
		{
			name: "no customer id",
			gw:   &fakeGateway{},
			sub:  &gateway.Subscription{ID: "sub_1"},
		},
		{
			name: "empty token list",
			gw:   &fakeGateway{},
			sub:  &gateway.Subscription{ID: "sub_1", CustomerID: "cust_1"},
		},
		{
			name: "token lookup fails",
			gw:   &fakeGateway{tokensErr: fmt.Errorf("gateway timeout")},
			sub:  &gateway.Subscription{ID: "sub_1", CustomerID: "cust_1"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			method, source := DetectPaymentMethod(context.Background(), tc.gw, tc.sub, zap.NewNop())
			require.Equal(t, MethodUPI, method)
			require.Equal(t, DetectionUnknown, source)
		})
	}
}
