package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// ErrRateUnavailable is returned when the rate provider cannot supply a
// usable rate: transport failure, non-2xx response, or a response missing
// the expected field.
var ErrRateUnavailable = errors.New("conversion rate unavailable")

// Provider supplies the conversion rate from a source currency into the
// reference currency.
type Provider interface {
	Rate(ctx context.Context, currency string) (float64, error)
}

// Client queries a currencyapi-style provider over HTTP. The provider is
// asked for the price of one unit of the source currency expressed in the
// reference currency.
//
// A request never leaves the process when the source currency already is
// the reference currency: the rate is 1 by definition, and the common path
// must not depend on provider availability.
type Client struct {
	BaseURL   string
	APIKey    string
	Reference string
	HTTP      *http.Client
}

// NewClient creates a rate client for the given provider endpoint.
func NewClient(baseURL, apiKey, reference string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		Reference: reference,
		HTTP:      httpClient,
	}
}

type rateResponse struct {
	Data map[string]struct {
		Value float64 `json:"value"`
	} `json:"data"`
}

// Rate returns the conversion rate from currency into the reference
// currency. The rate is fetched live on every call; the core never caches
// rates, so a single operation applies exactly one fetch.
func (c *Client) Rate(ctx context.Context, currency string) (float64, error) {
	if currency == c.Reference {
		return 1, nil
	}

	q := url.Values{}
	q.Set("apikey", c.APIKey)
	q.Set("base_currency", currency)
	q.Set("currencies", c.Reference)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: provider returned status %d", ErrRateUnavailable, resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}

	entry, ok := body.Data[c.Reference]
	if !ok {
		return 0, fmt.Errorf("%w: response missing %s field", ErrRateUnavailable, c.Reference)
	}
	if entry.Value <= 0 {
		return 0, fmt.Errorf("%w: non-positive rate %v", ErrRateUnavailable, entry.Value)
	}

	return entry.Value, nil
}
