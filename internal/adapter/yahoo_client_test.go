package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-tracker/internal/circuitbreaker"
	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/types"
)

const chartBody = `{
  "chart": {
    "result": [{
      "meta": {
        "currency": "INR",
        "symbol": "CDSL.NS",
        "regularMarketPrice": 1523.4,
        "previousClose": 1500.0,
        "chartPreviousClose": 1498.0,
        "regularMarketDayHigh": 1530.0,
        "regularMarketDayLow": 1495.5,
        "regularMarketVolume": 845210
      },
      "timestamp": [1700000000, 1700000300, 1700000600],
      "indicators": {
        "quote": [{
          "open":   [1500.0, 1510.0, null],
          "high":   [1512.0, 1520.0, null],
          "low":    [1499.0, 1505.0, null],
          "close":  [1510.0, 1518.5, null],
          "volume": [1200, 3400, null]
        }]
      }
    }],
    "error": null
  }
}`

const notFoundBody = `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`

func newTestClient(t *testing.T, urls ...string) *YahooClient {
	t.Helper()
	pool, err := NewEndpointPool(EndpointPoolConfig{URLs: urls})
	require.NoError(t, err)
	client, err := NewYahooClient(YahooConfig{Pool: pool, Timeout: 2 * time.Second, UserAgent: "tracker-test"})
	require.NoError(t, err)
	return client
}

func TestYahooClient_FetchQuote_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/CDSL.NS", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("range"))
		assert.Equal(t, "5m", r.URL.Query().Get("interval"))
		assert.Equal(t, "tracker-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chartBody))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	quote, err := client.FetchQuote(context.Background(), "CDSL.NS", types.GranularityIntraday)
	require.NoError(t, err)

	assert.Equal(t, "CDSL.NS", quote.Symbol)
	assert.Equal(t, types.GranularityIntraday, quote.Granularity)
	assert.Equal(t, 1523.4, quote.Meta.RegularMarketPrice)
	assert.Equal(t, 1500.0, quote.Meta.PreviousClose)
	assert.Equal(t, 1530.0, quote.Meta.DayHigh)
	assert.Equal(t, 1495.5, quote.Meta.DayLow)
	assert.Equal(t, int64(845210), quote.Meta.Volume)
	assert.Equal(t, "INR", quote.Meta.Currency)

	require.Len(t, quote.History, 2, "bar with null close is dropped")
	assert.Equal(t, 1518.5, quote.History[1].Close)
	assert.Equal(t, int64(3400), quote.History[1].Volume)
	assert.Equal(t, time.Unix(1700000300, 0).UTC(), quote.History[1].Time)
	assert.Equal(t, 1518.5, quote.LastClose())
}

func TestYahooClient_FetchQuote_DailyGranularity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5d", r.URL.Query().Get("range"))
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(chartBody))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).FetchQuote(context.Background(), "CDSL.NS", types.GranularityDaily)
	require.NoError(t, err)
}

const dailyChartBody = `{
  "chart": {
    "result": [{
      "meta": {
        "currency": "INR",
        "symbol": "CDSL.NS",
        "regularMarketPrice": 100.0,
        "chartPreviousClose": 80.0
      },
      "timestamp": [1700000000, 1700086400, 1700172800, 1700259200, 1700345600],
      "indicators": {
        "quote": [{
          "close":  [84.0, 88.0, 92.0, 98.0, 100.0],
          "volume": [1000, 1000, 1000, 1000, 1000]
        }]
      }
    }],
    "error": null
  }
}`

func TestYahooClient_FetchQuote_PreviousCloseFallback(t *testing.T) {
	tests := []struct {
		name        string
		granularity types.Granularity
		body        string
		want        float64
	}{
		{
			name:        "daily uses prior session close",
			granularity: types.GranularityDaily,
			body:        dailyChartBody,
			want:        98.0,
		},
		{
			name:        "intraday uses chart previous close",
			granularity: types.GranularityIntraday,
			body:        dailyChartBody,
			want:        80.0,
		},
		{
			name:        "explicit previous close wins on daily",
			granularity: types.GranularityDaily,
			body:        chartBody,
			want:        1500.0,
		},
		{
			name:        "single daily bar leaves previous close unset",
			granularity: types.GranularityDaily,
			body: `{"chart":{"result":[{"meta":{"regularMarketPrice":100.0,"chartPreviousClose":80.0},
				"timestamp":[1700000000],"indicators":{"quote":[{"close":[100.0]}]}}],"error":null}}`,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			quote, err := newTestClient(t, server.URL).FetchQuote(context.Background(), "CDSL.NS", tt.granularity)
			require.NoError(t, err)
			assert.Equal(t, tt.want, quote.Meta.PreviousClose)
		})
	}
}

func TestYahooClient_FetchQuote_Classification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		outcome apperrors.FetchOutcome
	}{
		{name: "http 429", status: http.StatusTooManyRequests, body: "Too Many Requests", outcome: apperrors.OutcomeRateLimited},
		{name: "rate limit text", status: http.StatusOK, body: "Edge: Too Many Requests", outcome: apperrors.OutcomeRateLimited},
		{name: "unknown symbol", status: http.StatusNotFound, body: notFoundBody, outcome: apperrors.OutcomeNoData},
		{name: "empty result", status: http.StatusOK, body: `{"chart":{"result":[],"error":null}}`, outcome: apperrors.OutcomeNoData},
		{name: "server error", status: http.StatusInternalServerError, body: "oops", outcome: apperrors.OutcomeInvalid},
		{name: "malformed json", status: http.StatusOK, body: `{"chart":`, outcome: apperrors.OutcomeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			quote, err := newTestClient(t, server.URL).FetchQuote(context.Background(), "MAZDOCK.NS", types.GranularityIntraday)
			require.Error(t, err)
			assert.Nil(t, quote)
			assert.Equal(t, tt.outcome, apperrors.ClassifyFetch(err), "err = %v", err)

			var adapterErr *AdapterError
			require.True(t, errors.As(err, &adapterErr))
			assert.Equal(t, "MAZDOCK.NS", adapterErr.Symbol)
		})
	}
}

func TestYahooClient_FailoverToSecondary(t *testing.T) {
	var primaryHits int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&primaryHits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chartBody))
	}))
	defer secondary.Close()

	client := newTestClient(t, primary.URL, secondary.URL)
	quote, err := client.FetchQuote(context.Background(), "CDSL.NS", types.GranularityIntraday)
	require.NoError(t, err)
	assert.Equal(t, 1523.4, quote.Meta.LivePrice())
	assert.Equal(t, secondary.URL, client.Pool().CurrentURL())

	// sticks to the secondary afterwards
	_, err = client.FetchQuote(context.Background(), "CDSL.NS", types.GranularityIntraday)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&primaryHits))

	health := client.Pool().GetAllHealth()
	require.Len(t, health, 2)
	assert.Equal(t, int64(1), health[0].FailedReqs)
	assert.False(t, health[0].Current)
	assert.True(t, health[1].Current)
	assert.Equal(t, int64(2), health[1].SuccessfulReqs)
}

func TestYahooClient_NoDataDoesNotFailover(t *testing.T) {
	var secondaryHits int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(notFoundBody))
	}))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&secondaryHits, 1)
		_, _ = w.Write([]byte(chartBody))
	}))
	defer secondary.Close()

	_, err := newTestClient(t, primary.URL, secondary.URL).FetchQuote(context.Background(), "MDL.NS", types.GranularityIntraday)
	assert.ErrorIs(t, err, apperrors.ErrNoData)
	assert.Equal(t, int32(0), atomic.LoadInt32(&secondaryHits))
}

func TestEndpointPool_RateLimitCooldown(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }
	pool, err := NewEndpointPool(EndpointPoolConfig{
		URLs:     []string{"https://query1.example", "https://query2.example/"},
		Cooldown: time.Minute,
		Now:      clock,
	})
	require.NoError(t, err)

	var calls []string
	rateLimitPrimary := func(ctx context.Context, baseURL string) error {
		calls = append(calls, baseURL)
		if baseURL == "https://query1.example" {
			return apperrors.NewRateLimitedError("CDSL.NS", nil)
		}
		return nil
	}

	require.NoError(t, pool.Do(context.Background(), rateLimitPrimary))
	assert.Equal(t, []string{"https://query1.example", "https://query2.example"}, calls)

	health := pool.GetAllHealth()
	assert.Equal(t, int64(1), health[0].RateLimitedReqs)
	assert.False(t, health[0].IsHealthy)
	assert.Equal(t, now.Add(time.Minute), health[0].CooldownUntil)

	pool.Reset()
	assert.Equal(t, "https://query1.example", pool.CurrentURL())
	assert.True(t, pool.GetAllHealth()[0].IsHealthy)
}

func TestEndpointPool_AllRateLimited(t *testing.T) {
	pool, err := NewEndpointPool(EndpointPoolConfig{URLs: []string{"https://query1.example"}})
	require.NoError(t, err)

	err = pool.Do(context.Background(), func(ctx context.Context, baseURL string) error {
		return apperrors.NewRateLimitedError("GRSE.NS", nil)
	})
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)

	// in cooldown, nothing is tried
	err = pool.Do(context.Background(), func(ctx context.Context, baseURL string) error {
		t.Fatal("endpoint in cooldown must not be called")
		return nil
	})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestEndpointPool_OpenBreakerSkipsEndpoint(t *testing.T) {
	breakers := circuitbreaker.NewManager(&circuitbreaker.Config{
		MaxFailures: 1,
		Timeout:     time.Hour,
		IsFailure:   EndpointFailure,
	})
	pool, err := NewEndpointPool(EndpointPoolConfig{
		URLs:     []string{"https://query1.example", "https://query2.example"},
		Breakers: breakers,
	})
	require.NoError(t, err)

	primaryBreaker, err := breakers.Get("https://query1.example")
	require.NoError(t, err)
	primaryBreaker.ForceOpen()

	var used string
	require.NoError(t, pool.Do(context.Background(), func(ctx context.Context, baseURL string) error {
		used = baseURL
		return nil
	}))
	assert.Equal(t, "https://query2.example", used)

	health := pool.GetAllHealth()
	assert.Equal(t, circuitbreaker.StateOpen, health[0].Breaker)
	assert.False(t, health[0].IsHealthy)
}

func TestNewEndpointPool_RequiresURL(t *testing.T) {
	_, err := NewEndpointPool(EndpointPoolConfig{URLs: []string{" ", ""}})
	assert.Error(t, err)
}
