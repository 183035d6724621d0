// Package teller fetches accounts and transactions from the Teller API over
// mutual-TLS HTTP. Raw provider records are validated and converted into
// typed domain values here, at the boundary; nothing untyped leaks inward.
package teller

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sprout-dev/sprout/internal/core"
)

const defaultBaseURL = "https://api.teller.io"

// Client calls the Teller API. Transient rate limiting (HTTP 429) is retried
// internally with exponential backoff; auth failures surface as tagged auth
// errors distinguishable from rate limits.
type Client struct {
	baseURL         string
	httpc           *http.Client
	maxRetries      uint64
	backoffInterval time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the mTLS HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpc = hc }
}

// WithMaxRetries caps internal 429 retries.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBackoffInterval overrides the initial backoff interval (tests).
func WithBackoffInterval(d time.Duration) Option {
	return func(c *Client) { c.backoffInterval = d }
}

// New builds a client authenticating with the given certificate pair.
func New(certPath, keyPath string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:         defaultBaseURL,
		maxRetries:      4,
		backoffInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpc == nil {
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, core.E(core.KindAuth, "teller.New", fmt.Errorf("load client certificate: %w", err))
		}
		c.httpc = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
			},
		}
	}
	return c, nil
}

// Accounts fetches all accounts visible to an access token.
func (c *Client) Accounts(ctx context.Context, token string) ([]core.RawAccount, error) {
	var raw []apiAccount
	if err := c.get(ctx, token, "/accounts", nil, &raw); err != nil {
		return nil, err
	}

	accounts := make([]core.RawAccount, 0, len(raw))
	for _, a := range raw {
		converted, err := a.toRawAccount()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, converted)
	}
	return accounts, nil
}

// Transactions fetches transactions for one account from the given date
// onward. The API only supports a lower bound; callers clip the upper bound.
func (c *Client) Transactions(ctx context.Context, token, accountRef string, from time.Time) ([]core.Transaction, error) {
	params := url.Values{}
	if !from.IsZero() {
		params.Set("from_date", from.Format(core.DateFormat))
	}

	var raw []apiTransaction
	path := fmt.Sprintf("/accounts/%s/transactions", accountRef)
	if err := c.get(ctx, token, path, params, &raw); err != nil {
		return nil, err
	}

	txs := make([]core.Transaction, 0, len(raw))
	for _, t := range raw {
		converted, err := t.toTransaction()
		if err != nil {
			return nil, err
		}
		txs = append(txs, converted)
	}
	return txs, nil
}

func (c *Client) get(ctx context.Context, token, path string, params url.Values, out any) error {
	op := "teller " + path

	attempt := func() error {
		u := c.baseURL + path
		if len(params) > 0 {
			u += "?" + params.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(core.E(core.KindFatal, op, err))
		}
		req.SetBasicAuth(token, "")
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpc.Do(req)
		if err != nil {
			return core.E(core.KindTransient, op, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(core.E(core.KindFatal, op, fmt.Errorf("decode response: %w", err)))
			}
			return nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(core.Errorf(core.KindAuth, op,
				"status %d: token invalid or expired, re-authenticate", resp.StatusCode))
		case resp.StatusCode == http.StatusTooManyRequests:
			slog.WarnContext(ctx, "rate limited by provider, backing off", "path", path)
			return core.Errorf(core.KindRateLimited, op, "status 429")
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(core.Errorf(core.KindFatal, op,
				"status %d: %s", resp.StatusCode, body))
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoffInterval
	b.MaxInterval = 60 * time.Second

	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx))
	if core.IsRateLimited(err) {
		// Internal retries exhausted; for the caller this account fetch is
		// over, not rate-limit-retryable.
		return core.E(core.KindTransient, op, err)
	}
	return err
}
