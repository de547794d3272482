package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v7"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

const rateCacheKey = "billing:usd_inr_rate"

// HTTPRateSource fetches the USD to INR rate from the currency service.
// The endpoint is expected to return {"rates": {"INR": <rate>}}.
type HTTPRateSource struct {
	Endpoint string
	Client   *http.Client
}

var _ RateSource = &HTTPRateSource{}

type rateResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// USDToINR fetches the current exchange rate from the currency service
func (h *HTTPRateSource) USDToINR(ctx context.Context) (float64, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{
			Timeout: time.Second * 10,
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.Endpoint, nil)
	if err != nil {
		return 0, extErrors.Wrap(err, "Cannot construct currency service request")
	}
	res, err := client.Do(req)
	if err != nil {
		return 0, extErrors.Wrap(err, "Cannot reach currency service")
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("currency service returned HTTP %d", res.StatusCode)
	}
	var body rateResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, extErrors.Wrap(err, "Cannot decode currency service response")
	}
	rate, ok := body.Rates["INR"]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("currency service did not return a usable INR rate")
	}
	return rate, nil
}

// CachedRateSource caches the upstream rate in Redis with a TTL so that one
// activation burst does not hammer the currency service. A cache miss or a
// Redis failure falls through to the upstream source; an upstream failure is
// never papered over with a stale rate.
type CachedRateSource struct {
	Redis  redis.UniversalClient
	Source RateSource
	TTL    time.Duration
	Logger *zap.Logger
}

var _ RateSource = &CachedRateSource{}

// USDToINR returns the cached rate, refreshing it from upstream on miss
func (c *CachedRateSource) USDToINR(ctx context.Context) (float64, error) {
	cached, err := c.Redis.Get(rateCacheKey).Float64()
	if err == nil && cached > 0 {
		return cached, nil
	}
	if err != nil && err != redis.Nil {
		c.Logger.Warn("Cannot read exchange rate from cache",
			zap.Error(err),
		)
	}

	rate, err := c.Source.USDToINR(ctx)
	if err != nil {
		return 0, err
	}

	ttl := c.TTL
	if ttl == 0 {
		ttl = time.Hour
	}
	if err := c.Redis.Set(rateCacheKey, rate, ttl).Err(); err != nil {
		c.Logger.Warn("Cannot write exchange rate to cache",
			zap.Error(err),
		)
	}
	return rate, nil
}
