package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRateReferenceCurrencySkipsProvider(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "key", "USD", ts.Client())

	rate, err := c.Rate(context.Background(), "USD")
	require.NoError(t, err)
	require.Equal(t, 1.0, rate)
	require.False(t, called, "provider must not be invoked for the reference currency")
}

func TestRateFetchesLiveRate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "key", r.URL.Query().Get("apikey"))
		require.Equal(t, "EUR", r.URL.Query().Get("base_currency"))
		require.Equal(t, "USD", r.URL.Query().Get("currencies"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"USD":{"value":1.08}}}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "key", "USD", ts.Client())

	rate, err := c.Rate(context.Background(), "EUR")
	require.NoError(t, err)
	require.Equal(t, 1.08, rate)
}

func TestRateUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "missing expected field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"data":{}}`))
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "non-positive rate",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"data":{"USD":{"value":0}}}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			c := NewClient(ts.URL, "key", "USD", ts.Client())

			_, err := c.Rate(context.Background(), "EUR")
			require.ErrorIs(t, err, ErrRateUnavailable)
		})
	}
}

func TestRateProviderUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	c := NewClient(ts.URL, "key", "USD", nil)

	_, err := c.Rate(context.Background(), "EUR")
	require.ErrorIs(t, err, ErrRateUnavailable)
}
