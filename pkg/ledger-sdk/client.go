// Package ledgersdk is a Go client for the ledger HTTP API.
package ledgersdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/pkg/httpclient"
)

// Trade actions accepted by Trade.
const (
	ActionBuy    = "buy"
	ActionSell   = "sell"
	ActionInvest = "invest"
	ActionRedeem = "redeem"
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the API root, e.g. http://localhost:8080.
	BaseURL string

	// UserID and Email identify the caller on every request.
	UserID string
	Email  string

	HTTP httpclient.Config

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client is the main entry point for the SDK.
type Client struct {
	baseURL string
	userID  string
	email   string
	http    *httpclient.Client
}

// NewClient creates a client. Replies of 5xx or 429 and transport failures
// are retried; 4xx replies come back as *APIError.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if config.HTTP == (httpclient.Config{}) {
		config.HTTP = httpclient.DefaultConfig()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		userID:  config.UserID,
		email:   config.Email,
		http:    httpclient.NewClient(config.HTTP, config.HTTPClient, config.Logger),
	}, nil
}

// APIError is a 4xx reply from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// IsInsufficient reports whether err is a 422 from a balance or quantity check.
func IsInsufficient(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity
}

// Wallet is the caller's cash account.
type Wallet struct {
	WalletID  string          `json:"walletId"`
	UserID    string          `json:"userId"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Holding is a position after a trade.
type Holding struct {
	HoldingID    string          `json:"holdingId"`
	AssetID      string          `json:"assetId"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"averagePrice"`
}

// Operation is the result of a committed ledger operation.
type Operation struct {
	TransactionID string           `json:"transactionId"`
	Wallet        Wallet           `json:"wallet"`
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	Holding       *Holding         `json:"holding,omitempty"`
}

// Transaction is one entry of the caller's history.
type Transaction struct {
	TransactionID string           `json:"transactionId"`
	Type          string           `json:"type"`
	AssetID       *string          `json:"assetId,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	Status        string           `json:"status"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Rank          int             `json:"rank"`
	UserID        string          `json:"userId"`
	Score         int64           `json:"score"`
	Badge         string          `json:"badge,omitempty"`
	HoldingsValue decimal.Decimal `json:"holdingsValue"`
}

// Payment is a gateway callback forwarded for confirmation.
type Payment struct {
	OrderID   string          `json:"orderId"`
	PaymentID string          `json:"paymentId"`
	Signature string          `json:"signature"`
	Amount    decimal.Decimal `json:"amount"`
}

type amountBody struct {
	Amount decimal.Decimal `json:"amount"`
}

type tradeBody struct {
	AssetID  string           `json:"assetId"`
	Quantity *decimal.Decimal `json:"quantity,omitempty"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
}

// Wallet returns the caller's wallet, creating it on first use.
func (c *Client) Wallet(ctx context.Context) (*Wallet, error) {
	var w Wallet
	if err := c.do(ctx, http.MethodGet, "/v1/wallet", nil, nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Deposit credits amount to the caller's wallet.
func (c *Client) Deposit(ctx context.Context, amount decimal.Decimal) (*Operation, error) {
	return c.operation(ctx, "/v1/wallet/deposit", amountBody{Amount: amount})
}

// Withdraw debits amount from the caller's wallet.
func (c *Client) Withdraw(ctx context.Context, amount decimal.Decimal) (*Operation, error) {
	return c.operation(ctx, "/v1/wallet/withdraw", amountBody{Amount: amount})
}

// Buy purchases quantity units of a stock.
func (c *Client) Buy(ctx context.Context, assetID string, quantity decimal.Decimal) (*Operation, error) {
	return c.operation(ctx, "/v1/trades/"+ActionBuy, tradeBody{AssetID: assetID, Quantity: &quantity})
}

// Sell sells quantity units of a stock.
func (c *Client) Sell(ctx context.Context, assetID string, quantity decimal.Decimal) (*Operation, error) {
	return c.operation(ctx, "/v1/trades/"+ActionSell, tradeBody{AssetID: assetID, Quantity: &quantity})
}

// Invest puts amount into a mutual fund.
func (c *Client) Invest(ctx context.Context, assetID string, amount decimal.Decimal) (*Operation, error) {
	return c.operation(ctx, "/v1/trades/"+ActionInvest, tradeBody{AssetID: assetID, Amount: &amount})
}

// Redeem redeems quantity units of a mutual fund.
func (c *Client) Redeem(ctx context.Context, assetID string, quantity decimal.Decimal) (*Operation, error) {
	return c.operation(ctx, "/v1/trades/"+ActionRedeem, tradeBody{AssetID: assetID, Quantity: &quantity})
}

// ConfirmPayment credits a verified gateway payment.
func (c *Client) ConfirmPayment(ctx context.Context, p Payment) (*Operation, error) {
	return c.operation(ctx, "/v1/payments/confirm", p)
}

// Transactions lists the caller's history, newest first. limit 0 uses the
// server default.
func (c *Client) Transactions(ctx context.Context, limit int) ([]Transaction, error) {
	var out []Transaction
	if err := c.do(ctx, http.MethodGet, "/v1/wallet/transactions", limitQuery(limit), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Leaderboard returns the ranked board. It needs no identity.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	var out []LeaderboardEntry
	if err := c.do(ctx, http.MethodGet, "/v1/leaderboard", limitQuery(limit), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) operation(ctx context.Context, path string, body any) (*Operation, error) {
	var op Operation
	if err := c.do(ctx, http.MethodPost, path, nil, body, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	headers := map[string]string{}
	if c.userID != "" {
		headers["X-User-ID"] = c.userID
	}
	if c.email != "" {
		headers["X-User-Email"] = c.email
	}

	_, err := c.http.Do(ctx, httpclient.Request{
		Method:  method,
		URL:     c.baseURL + path,
		Query:   query,
		Headers: headers,
		Body:    body,
	}, result)
	if err == nil {
		return nil
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return &APIError{StatusCode: statusErr.StatusCode, Message: errorMessage(statusErr.Body)}
	}
	return fmt.Errorf("%s %s: %w", method, path, err)
}

func errorMessage(body string) string {
	var reply struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(body), &reply) == nil && reply.Error != "" {
		return reply.Error
	}
	return strings.TrimSpace(body)
}

func limitQuery(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": {strconv.Itoa(limit)}}
}
