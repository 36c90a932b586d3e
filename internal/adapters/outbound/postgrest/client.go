// Package postgrest implements the ledger ports over a PostgREST HTTP API in
// front of the ledger schema.
//
// PostgREST offers no multi-request transactions, so Store buffers the writes
// of an operation and commits them at the end. Transaction and ledger rows are
// inserted first, then the wallet balance is written with a conditional PATCH
// (balance=eq.<observed>); if another writer got there first no row matches,
// the rows already written are removed and the whole operation is retried.
// Entry sequence order therefore follows the order of successful balance
// writes. Written steps are undone in reverse order if a later step fails.
package postgrest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/pkg/httpclient"
)

// ClientConfig holds configuration for the PostgREST client.
type ClientConfig struct {
	// BaseURL is the PostgREST root, e.g. https://db.example.com/rest/v1.
	BaseURL string

	// APIKey is sent as both the apikey header and a bearer token.
	APIKey string

	HTTP httpclient.Config

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client issues table requests against PostgREST.
type Client struct {
	baseURL string
	apiKey  string
	http    *httpclient.Client
	logger  *slog.Logger
}

// NewClient creates a PostgREST client. An empty BaseURL yields
// entity.ErrConnectionUnavailable.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required: %w", entity.ErrConnectionUnavailable)
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "postgrest-client")
	if config.HTTP == (httpclient.Config{}) {
		config.HTTP = httpclient.DefaultConfig()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		http:    httpclient.NewClient(config.HTTP, config.HTTPClient, logger),
		logger:  logger,
	}, nil
}

// errConflict marks a 409 from PostgREST, typically a unique violation.
var errConflict = errors.New("row conflict")

func (c *Client) do(ctx context.Context, method, table string, query url.Values, prefer string, body, out any) error {
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["apikey"] = c.apiKey
		headers["Authorization"] = "Bearer " + c.apiKey
	}
	if prefer != "" {
		headers["Prefer"] = prefer
	}

	_, err := c.http.Do(ctx, httpclient.Request{
		Method:  method,
		URL:     c.baseURL + "/" + table,
		Query:   query,
		Headers: headers,
		Body:    body,
	}, out)
	if err == nil {
		return nil
	}

	var statusErr *httpclient.StatusError
	switch {
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict:
		return fmt.Errorf("%s %s: %w: %s", method, table, errConflict, statusErr.Body)
	case errors.Is(err, httpclient.ErrUnavailable):
		return fmt.Errorf("%w: %s %s: %w", entity.ErrStoreUnavailable, method, table, err)
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %s %s: %w", entity.ErrStoreUnavailable, method, table, ctx.Err())
	default:
		return fmt.Errorf("%s %s: %w", method, table, err)
	}
}

func (c *Client) get(ctx context.Context, table string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, table, query, "", nil, out)
}

// insert POSTs rows and decodes the stored representation into out.
func (c *Client) insert(ctx context.Context, table string, rows, out any) error {
	prefer := "return=minimal"
	if out != nil {
		prefer = "return=representation"
	}
	return c.do(ctx, http.MethodPost, table, nil, prefer, rows, out)
}

// insertIgnore inserts rows, skipping those that collide on conflictColumn.
func (c *Client) insertIgnore(ctx context.Context, table, conflictColumn string, rows any) error {
	q := url.Values{"on_conflict": {conflictColumn}}
	return c.do(ctx, http.MethodPost, table, q, "resolution=ignore-duplicates,return=minimal", rows, nil)
}

// upsert inserts rows, updating only the supplied columns of rows that
// collide on conflictColumn.
func (c *Client) upsert(ctx context.Context, table, conflictColumn string, rows any) error {
	q := url.Values{"on_conflict": {conflictColumn}}
	return c.do(ctx, http.MethodPost, table, q, "resolution=merge-duplicates,return=minimal", rows, nil)
}

// patch updates the rows matched by query and returns how many matched.
func (c *Client) patch(ctx context.Context, table string, query url.Values, body any) (int, error) {
	var rows []map[string]any
	if err := c.do(ctx, http.MethodPatch, table, query, "return=representation", body, &rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// remove deletes the rows matched by query and returns how many matched.
func (c *Client) remove(ctx context.Context, table string, query url.Values) (int, error) {
	var rows []map[string]any
	if err := c.do(ctx, http.MethodDelete, table, query, "return=representation", nil, &rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Ping checks that the REST endpoint answers by reading at most one wallet.
func (c *Client) Ping(ctx context.Context) error {
	var rows []walletRow
	return c.get(ctx, "wallets", url.Values{"select": {"wallet_id"}, "limit": {"1"}}, &rows)
}

func eq(v string) string { return "eq." + v }

func in(values []string) string { return "in.(" + strings.Join(values, ",") + ")" }
