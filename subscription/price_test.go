package subscription

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestResolver(t *testing.T, rates RateSource) *Resolver {
	t.Helper()
	resolver, err := NewResolver(ResolverOptions{
		Table:  DefaultPricingTable(),
		Rates:  rates,
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	return resolver
}

func TestAmountIndiaIsExactPaise(t *testing.T) {
	resolver := newTestResolver(t, fixedRate{rate: 83})
	table := resolver.Table

	for tier, price := range table.India {
		monthly, err := resolver.Amount(context.Background(), tier, RegionIndia, CycleMonthly)
		require.NoError(t, err)
		require.Equal(t, price.Monthly*100, monthly)

		annual, err := resolver.Amount(context.Background(), tier, RegionIndia, CycleAnnual)
		require.NoError(t, err)
		require.Equal(t, price.Annual*100, annual)
	}
}

func TestAmountIndiaUnknownTierFallsBack(t *testing.T) {
	resolver := newTestResolver(t, fixedRate{rate: 83})

	amount, err := resolver.Amount(context.Background(), Tier("enterprise"), RegionIndia, CycleMonthly)
	require.NoError(t, err)
	require.Equal(t, resolver.Table.IndiaDefault.Monthly*100, amount)
}

func TestAmountRowUsesLiveRate(t *testing.T) {
	price := DefaultPricingTable().Row[TierPremium]

	for _, rate := range []float64{74.5, 83, 88.13} {
		resolver := newTestResolver(t, fixedRate{rate: rate})

		amount, err := resolver.Amount(context.Background(), TierPremium, RegionRow, CycleMonthly)
		require.NoError(t, err)
		require.Equal(t, int64(price.Monthly*rate*100+0.5), amount)

		annual, err := resolver.Amount(context.Background(), TierPremium, RegionRow, CycleAnnual)
		require.NoError(t, err)
		require.Equal(t, int64(price.Annual*rate*100+0.5), annual)
	}
}

func TestAmountRowFailsLoudlyWithoutRate(t *testing.T) {
	resolver := newTestResolver(t, fixedRate{err: fmt.Errorf("currency service down")})

	_, err := resolver.Amount(context.Background(), TierPremium, RegionRow, CycleMonthly)
	require.Error(t, err)
}

func TestAmountRejectsUnknownRegion(t *testing.T) {
	resolver := newTestResolver(t, fixedRate{rate: 83})

	_, err := resolver.Amount(context.Background(), TierPremium, Region("mars"), CycleMonthly)
	require.Error(t, err)
}

func TestPlanIDLookup(t *testing.T) {
	table := DefaultPricingTable()
	table.GatewayPlans = map[Tier]map[BillingCycle]string{
		TierPremium: {
			CycleMonthly: "plan_monthly",
		},
	}

	planID, err := table.PlanID(TierPremium, CycleMonthly)
	require.NoError(t, err)
	require.Equal(t, "plan_monthly", planID)

	_, err = table.PlanID(TierPremium, CycleAnnual)
	require.Error(t, err)

	_, err = table.PlanID(TierFree, CycleMonthly)
	require.Error(t, err)
}
