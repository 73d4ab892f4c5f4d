package salestax

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	return newRetryingTestClient(t, 1, handler)
}

func newRetryingTestClient(t *testing.T, attempts uint, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.APIKey = "secret"
	cfg.Timeout = 5 * time.Second
	cfg.Breaker.ConsecutiveFailures = 2
	cfg.Breaker.Timeout = time.Minute
	cfg.Retry.MaxAttempts = attempts
	cfg.Retry.InitialInterval = time.Millisecond
	cfg.Retry.MaxInterval = 5 * time.Millisecond

	client, err := NewClient(cfg, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	require.NoError(t, err)
	return client
}

func TestNewClientRejectsInvalidBaseURL(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "not a url"}, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	assert.Error(t, err)
}

func TestGetCustomerBySourcePlatformID(t *testing.T) {
	customerID := uuid.New()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/corporations/corp_1/customers", r.URL.Path)
		assert.Equal(t, "STRIPE", r.URL.Query().Get("source_platform"))
		assert.Equal(t, "cus_1", r.URL.Query().Get("source_platform_id"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(Customer{
			ID:               customerID,
			CorporationID:    "corp_1",
			SourcePlatform:   "STRIPE",
			SourcePlatformID: "cus_1",
		})
	})

	customer, err := client.GetCustomerBySourcePlatformID(context.Background(), "corp_1", "STRIPE", "cus_1")
	require.NoError(t, err)
	require.NotNil(t, customer)
	assert.Equal(t, customerID, customer.ID)
}

func TestGetCustomerNotFoundReturnsNil(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	customer, err := client.GetCustomerBySourcePlatformID(context.Background(), "corp_1", "STRIPE", "cus_missing")
	require.NoError(t, err)
	assert.Nil(t, customer)
}

func TestGetProductsBySourcePlatforms(t *testing.T) {
	productID := uuid.New()
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/corporations/corp_1/products/lookup", r.URL.Path)

		var body productLookupRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"prod_1", "prod_2"}, body.SourcePlatformIDs)
		assert.Equal(t, []string{"STRIPE", "STRIPE"}, body.SourcePlatforms)

		_ = json.NewEncoder(w).Encode(productLookupResponse{Products: []Product{{ID: productID, SourcePlatformID: "prod_1"}}})
	})

	products, err := client.GetProductsBySourcePlatforms(context.Background(), "corp_1", []string{"STRIPE", "STRIPE"}, []string{"prod_1", "prod_2"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, productID, products[0].ID)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetProductsWithNoIDsSkipsCall(t *testing.T) {
	client := newTestClient(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("no request expected")
	})

	products, err := client.GetProductsBySourcePlatforms(context.Background(), "corp_1", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestGetProductsRejectsMismatchedLists(t *testing.T) {
	client := newTestClient(t, func(_ http.ResponseWriter, _ *http.Request) {})

	_, err := client.GetProductsBySourcePlatforms(context.Background(), "corp_1", []string{"STRIPE"}, nil)
	assert.Error(t, err)
}

func TestCalculateTax(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/corporations/corp_1/tax/calculate", r.URL.Path)

		var body TaxCalculationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, TransactionTypeSale, body.TransactionType)
		require.Len(t, body.LineItems, 1)
		assert.True(t, decimal.RequireFromString("100").Equal(body.LineItems[0].Amount))

		_ = json.NewEncoder(w).Encode(CalculationResult{ID: "calc_1", TotalTax: decimal.RequireFromString("8.25")})
	})

	result, err := client.CalculateTax(context.Background(), TaxCalculationRequest{
		CorporationID:   "corp_1",
		TransactionType: TransactionTypeSale,
		LineItems: []LineItem{{
			TaxabilityCode: DefaultTaxabilityCode,
			Quantity:       1,
			Amount:         decimal.RequireFromString("100"),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "calc_1", result.ID)
	assert.True(t, decimal.RequireFromString("8.25").Equal(result.TotalTax))
}

func TestClientErrorDoesNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad"}`))
	})

	for range 4 {
		_, err := client.CalculateTax(context.Background(), TaxCalculationRequest{CorporationID: "corp_1"})
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
		assert.False(t, statusErr.Temporary())
	}
	assert.Equal(t, int32(4), calls.Load())
}

func TestServerErrorsOpenBreaker(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for range 2 {
		_, err := client.GetCustomerBySourcePlatformID(context.Background(), "corp_1", "STRIPE", "cus_1")
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.True(t, statusErr.Temporary())
	}

	_, err := client.GetCustomerBySourcePlatformID(context.Background(), "corp_1", "STRIPE", "cus_1")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTemporaryFailuresAreRetried(t *testing.T) {
	var calls atomic.Int32
	client := newRetryingTestClient(t, 3, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"calc_1","total_tax":"1.25"}`))
	})

	result, err := client.CalculateTax(context.Background(), TaxCalculationRequest{CorporationID: "corp_1"})
	require.NoError(t, err)
	assert.Equal(t, "calc_1", result.ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRateLimitedAnswersAreRetried(t *testing.T) {
	var calls atomic.Int32
	client := newRetryingTestClient(t, 3, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.GetCustomerBySourcePlatformID(context.Background(), "corp_1", "STRIPE", "cus_1")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newRetryingTestClient(t, 3, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	_, err := client.CalculateTax(context.Background(), TaxCalculationRequest{CorporationID: "corp_1"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenBreakerStopsRetries(t *testing.T) {
	var calls atomic.Int32
	client := newRetryingTestClient(t, 5, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.GetCustomerBySourcePlatformID(context.Background(), "corp_1", "STRIPE", "cus_1")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}
