package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrUnreachable is returned when the ledger service cannot be reached or
// rejects the call.
var ErrUnreachable = errors.New("ledger service unreachable")

// ExternalParty is the sentinel account id used in transaction records to
// denote the external world: the source of a deposit or the sink of a
// withdrawal. It is never a real account id.
const ExternalParty int64 = -1

// Transaction is one immutable ledger record. Amount is kept in the
// original currency together with the rate actually applied, so the
// reference-currency magnitude stays reconstructible as Amount * Rate.
type Transaction struct {
	SourceID       int64     `json:"id_source"`
	TargetID       int64     `json:"id_target"`
	Amount         float64   `json:"amount"`
	CurrencySource string    `json:"currency_source"`
	CurrencyTarget string    `json:"currency_target"`
	Rate           float64   `json:"translation_rate"`
	RecordedAt     time.Time `json:"registration_date,omitempty"`
}

// Client appends records to and reads records from the remote ledger
// service. Appends are best-effort from the orchestrator's point of view: a
// failed append does not undo a completed balance mutation.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a ledger service client for the given endpoint.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{BaseURL: baseURL, HTTP: httpClient}
}

// Record appends one transaction record.
func (c *Client) Record(ctx context.Context, tx Transaction) error {
	body, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/transaction", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	return nil
}

type listResponse struct {
	Transactions []Transaction `json:"transactions"`
}

// ListForAccount returns every record where the account participates as
// source or target, in the order the ledger service stores them.
func (c *Client) ListForAccount(ctx context.Context, accountID int64) ([]Transaction, error) {
	q := url.Values{}
	q.Set("id_user", strconv.FormatInt(accountID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/transactions?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return body.Transactions, nil
}
