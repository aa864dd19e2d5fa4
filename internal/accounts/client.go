package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

var (
	// ErrUnreachable is returned on transport failure or a server-side
	// error from the account service.
	ErrUnreachable = errors.New("account service unreachable")

	// ErrNotFound is returned when the account service reports no account
	// with the given id.
	ErrNotFound = errors.New("account not found")
)

// View is the account service's representation of an account, as returned
// by reads and mutations. The orchestrator holds it only transiently.
type View struct {
	ID               int64   `json:"id"`
	FirstName        string  `json:"first_name"`
	LastName         string  `json:"last_name"`
	Balance          float64 `json:"balance"`
	RegistrationDate string  `json:"registration_date"`
}

// Client talks to the remote account service. The service is the sole owner
// of account state: it serializes concurrent deltas to the same account and
// enforces any floor-at-zero constraint. The client performs no retries; a
// single failed attempt surfaces immediately.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates an account service client for the given endpoint.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{BaseURL: baseURL, HTTP: httpClient}
}

// ReadBalance fetches the current balance of an account in the reference
// currency.
func (c *Client) ReadBalance(ctx context.Context, accountID int64) (float64, error) {
	view, err := c.get(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return view.Balance, nil
}

// ApplyDelta applies a signed delta to an account balance and returns the
// updated view. Positive deltas credit, negative deltas debit.
func (c *Client) ApplyDelta(ctx context.Context, accountID int64, delta float64) (*View, error) {
	q := url.Values{}
	q.Set("id", strconv.FormatInt(accountID, 10))
	q.Set("delta", strconv.FormatFloat(delta, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.BaseURL+"/user?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return c.do(req, accountID)
}

func (c *Client) get(ctx context.Context, accountID int64) (*View, error) {
	q := url.Values{}
	q.Set("id", strconv.FormatInt(accountID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/user?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return c.do(req, accountID)
}

func (c *Client) do(req *http.Request, accountID int64) (*View, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, accountID)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	var view View
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return &view, nil
}
