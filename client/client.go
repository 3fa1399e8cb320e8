/*
client.go - HTTP client for the wallet backend

PURPOSE:
  Implements generic.Committer against the wallet HTTP contract and fetches
  the read-side inputs the client engine needs: the card catalog and the
  user's snapshot.

ERROR MAPPING:
  Every failure is a *generic.NetworkError with Op set to the endpoint name.
  - No response (transport error, timeout):  Retryable
  - 5xx, 429:                                 Retryable, server message kept
  - Other 4xx:                                Not retryable, server message kept
  - 2xx with success=false:                   Not retryable

SEE ALSO:
  - generic/store.go: Committer interface and wire contract
  - stream.go: Snapshot subscription
  - api/handlers.go: Server side
*/
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/warp/card-wallet/factory"
	"github.com/warp/card-wallet/generic"
	"github.com/warp/card-wallet/wallet"
)

// DefaultTimeout bounds each HTTP request.
const DefaultTimeout = 15 * time.Second

// UserHeader carries the wallet user on every request.
const UserHeader = "X-Wallet-User"

const maxBody = 4 << 20

type Client struct {
	baseURL    string
	user       generic.UserID
	httpClient *http.Client
}

type Option func(*Client)

// WithUser selects the wallet user. Without it the server's default user
// is used.
func WithUser(user generic.UserID) Option {
	return func(c *Client) { c.user = user }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ generic.Committer = (*Client)(nil)

type mutationResponse struct {
	Success     bool                 `json:"success"`
	Error       string               `json:"error"`
	Personality *generic.Personality `json:"personality"`
}

// =============================================================================
// COMMITTER
// =============================================================================

func (c *Client) UpdateBenefit(ctx context.Context, cardID generic.CardID, benefit generic.BenefitIndex, update generic.UsageUpdate) error {
	path := "/wallet/update-benefit/" + segment(string(cardID)) + "/" + benefit.String() + "/"
	_, err := c.mutate(ctx, generic.OpUpdateBenefit, path, update)
	return err
}

func (c *Client) ToggleIgnore(ctx context.Context, cardID generic.CardID, benefit generic.BenefitIndex, ignored bool) error {
	path := "/wallet/toggle-ignore-benefit/" + segment(string(cardID)) + "/" + benefit.String() + "/"
	_, err := c.mutate(ctx, generic.OpToggleIgnore, path, map[string]bool{"is_ignored": ignored})
	return err
}

func (c *Client) UpdateAnniversary(ctx context.Context, cardID generic.CardID, date generic.Date) error {
	path := "/wallet/update-anniversary/" + segment(string(cardID)) + "/"
	_, err := c.mutate(ctx, generic.OpUpdateAnniversary, path, map[string]string{"anniversary_date": date.String()})
	return err
}

func (c *Client) AddCard(ctx context.Context, cardID generic.CardID, anniversary *generic.Date) (*generic.Personality, error) {
	path := "/wallet/add-card/" + segment(string(cardID)) + "/"
	var body any
	if anniversary != nil {
		body = map[string]string{"anniversary_date": anniversary.String()}
	}
	return c.mutate(ctx, generic.OpAddCard, path, body)
}

func (c *Client) RemoveCard(ctx context.Context, cardID generic.CardID) (*generic.Personality, error) {
	return c.mutate(ctx, generic.OpRemoveCard, "/wallet/remove-card/"+segment(string(cardID))+"/", nil)
}

func (c *Client) mutate(ctx context.Context, op, path string, body any) (*generic.Personality, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &generic.NetworkError{Op: op, Message: "encode request", Err: err}
		}
		reader = bytes.NewReader(data)
	}

	status, data, err := c.do(ctx, op, http.MethodPost, path, reader)
	if err != nil {
		return nil, err
	}

	var resp mutationResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		if status >= 300 {
			return nil, statusError(op, status, strings.TrimSpace(string(data)))
		}
		return nil, &generic.NetworkError{Op: op, StatusCode: status, Message: "malformed response", Err: err}
	}
	if status >= 300 {
		return nil, statusError(op, status, resp.Error)
	}
	if !resp.Success {
		return nil, &generic.NetworkError{Op: op, StatusCode: status, Message: resp.Error}
	}
	return resp.Personality, nil
}

// =============================================================================
// READS
// =============================================================================

// FetchCatalog loads the server's card catalog.
func (c *Client) FetchCatalog(ctx context.Context) (*wallet.Catalog, error) {
	data, err := c.get(ctx, "catalog", "/catalog/")
	if err != nil {
		return nil, err
	}
	return factory.NewCatalogFactory().ParseJSON(data)
}

// FetchSnapshot loads the user's holdings as confirmed by the server.
func (c *Client) FetchSnapshot(ctx context.Context) ([]wallet.Holding, error) {
	data, err := c.get(ctx, "snapshot", "/wallet/snapshot/")
	if err != nil {
		return nil, err
	}
	return wallet.DecodeSnapshot(data)
}

// Sync replaces the confirmed layer of state with a fresh snapshot.
func (c *Client) Sync(ctx context.Context, state *wallet.State) ([]wallet.DiscardedChange, error) {
	holdings, err := c.FetchSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return state.ApplySnapshot(holdings), nil
}

// LoadScenario replaces the user's wallet with a server-side demo wallet.
func (c *Client) LoadScenario(ctx context.Context, id string) (*generic.Personality, error) {
	return c.mutate(ctx, "load-scenario", "/api/scenarios/load", map[string]string{"scenario_id": id})
}

// ResetWallet clears the user's wallet on the server.
func (c *Client) ResetWallet(ctx context.Context) error {
	_, err := c.mutate(ctx, "reset-wallet", "/api/scenarios/reset", nil)
	return err
}

func (c *Client) get(ctx context.Context, op, path string) ([]byte, error) {
	status, data, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		var resp mutationResponse
		_ = json.Unmarshal(data, &resp)
		return nil, statusError(op, status, resp.Error)
	}
	return data, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, &generic.NetworkError{Op: op, Message: "create request", Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.user != "" {
		req.Header.Set(UserHeader, string(c.user))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, transportError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, transportError(op, err)
	}
	return resp.StatusCode, data, nil
}

func transportError(op string, err error) error {
	msg := "request failed"
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		msg = "timed out"
	}
	return &generic.NetworkError{Op: op, Message: msg, Retryable: true, Err: err}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func statusError(op string, status int, msg string) error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &generic.NetworkError{
		Op:         op,
		StatusCode: status,
		Message:    msg,
		Retryable:  status >= 500 || status == http.StatusTooManyRequests,
	}
}

func segment(s string) string { return url.PathEscape(s) }
