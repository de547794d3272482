package subscription

import (
	"context"
	"fmt"
	"math"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// INRPrice is a price pair in whole rupees. India-region amounts are integer
// rupees, so converting to paise is an exact multiplication.
type INRPrice struct {
	Monthly int64 `json:"monthly"`
	Annual  int64 `json:"annual"`
}

// USDPrice is a price pair in dollars. ROW amounts settle in INR and go
// through the live exchange rate before use.
type USDPrice struct {
	Monthly float64 `json:"monthly"`
	Annual  float64 `json:"annual"`
}

// PricingTable defines what each tier costs per region. The table is injected
// into the Resolver so tests stay deterministic; a tier missing from a map
// falls back to the default price for that region instead of failing.
type PricingTable struct {
	India        map[Tier]INRPrice `json:"india"`
	Row          map[Tier]USDPrice `json:"row"`
	IndiaDefault INRPrice          `json:"indiaDefault"`
	RowDefault   USDPrice          `json:"rowDefault"`

	// GatewayPlans maps (tier, cycle) to the gateway plan id used when
	// creating a fresh mandate on reactivation.
	GatewayPlans map[Tier]map[BillingCycle]string `json:"gatewayPlans"`
}

// DefaultPricingTable returns the production price points
func DefaultPricingTable() PricingTable {
	return PricingTable{
		India: map[Tier]INRPrice{
			TierPremium: {
				Monthly: 499,
				Annual:  3999,
			},
		},
		Row: map[Tier]USDPrice{
			TierPremium: {
				Monthly: 9,
				Annual:  72,
			},
		},
		IndiaDefault: INRPrice{
			Monthly: 499,
			Annual:  3999,
		},
		RowDefault: USDPrice{
			Monthly: 9,
			Annual:  72,
		},
		GatewayPlans: map[Tier]map[BillingCycle]string{},
	}
}

// PlanID looks up the gateway plan id for a tier and cycle
func (t *PricingTable) PlanID(tier Tier, cycle BillingCycle) (string, error) {
	cycles, ok := t.GatewayPlans[tier]
	if !ok {
		return "", fmt.Errorf("no gateway plans defined for tier %q", tier)
	}
	planID, ok := cycles[cycle]
	if !ok {
		return "", fmt.Errorf("no gateway plan defined for tier %q cycle %q", tier, cycle)
	}
	return planID, nil
}

// RateSource provides the current USD to INR exchange rate
type RateSource interface {
	USDToINR(ctx context.Context) (float64, error)
}

// ResolverOptions contains the configuration for the pricing Resolver
type ResolverOptions struct {
	Table  PricingTable
	Rates  RateSource
	Logger *zap.Logger
}

// Resolver maps (tier, region, cycle) to a settlement amount in paise.
// It is pure given its inputs except for the live exchange-rate lookup.
type Resolver struct {
	ResolverOptions
}

// NewResolver will create a pricing Resolver
func NewResolver(option ResolverOptions) (*Resolver, error) {
	if option.Rates == nil {
		return nil, fmt.Errorf("nil Rates is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Resolver{
		ResolverOptions: option,
	}, nil
}

// Amount resolves the settlement amount in paise for one billing cycle.
// A failed exchange-rate lookup fails loudly; a stale or zero rate must
// never be charged.
func (r *Resolver) Amount(ctx context.Context, tier Tier, region Region, cycle BillingCycle) (int64, error) {
	switch region {
	case RegionIndia:
		price, ok := r.Table.India[tier]
		if !ok {
			r.Logger.Warn("Tier missing from India pricing table, using default price",
				zap.String("Tier", string(tier)),
			)
			price = r.Table.IndiaDefault
		}
		return r.pick(price.Monthly, price.Annual, cycle) * 100, nil
	case RegionRow:
		price, ok := r.Table.Row[tier]
		if !ok {
			r.Logger.Warn("Tier missing from ROW pricing table, using default price",
				zap.String("Tier", string(tier)),
			)
			price = r.Table.RowDefault
		}
		rate, err := r.Rates.USDToINR(ctx)
		if err != nil {
			return 0, extErrors.Wrap(err, "Cannot fetch USD to INR exchange rate")
		}
		usd := r.pickUSD(price.Monthly, price.Annual, cycle)
		return int64(math.Round(usd * rate * 100)), nil
	default:
		return 0, fmt.Errorf("unknown pricing region %q", region)
	}
}

func (r *Resolver) pick(monthly, annual int64, cycle BillingCycle) int64 {
	if cycle == CycleAnnual {
		return annual
	}
	return monthly
}

func (r *Resolver) pickUSD(monthly, annual float64, cycle BillingCycle) float64 {
	if cycle == CycleAnnual {
		return annual
	}
	return monthly
}
