// handler.go provides the HTTP REST API of the ledger.
//
// Routes:
//   - GET  /v1/wallet                  current balance (creates an empty wallet)
//   - POST /v1/wallet/deposit          {"amount": "100.00"}
//   - POST /v1/wallet/withdraw         {"amount": "40.00"}
//   - GET  /v1/wallet/transactions     ?limit=N, newest first
//   - POST /v1/trades/{buy,sell}       {"assetId": "...", "quantity": "2"}
//   - POST /v1/trades/invest           {"assetId": "...", "amount": "500"}
//   - POST /v1/trades/redeem           {"assetId": "...", "quantity": "1.5"}
//   - GET  /v1/leaderboard             ?limit=N
//   - POST /v1/payments/confirm        payment gateway callback
//
// Authentication happens upstream; the caller is identified by X-User-ID and
// optionally X-User-Email.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/pkg/identity"
	"github.com/archon-research/ledger-engine/internal/ports/inbound"
)

const (
	headerUserID    = "X-User-ID"
	headerUserEmail = "X-User-Email"

	maxBodyBytes = 1 << 20
)

type userIDKey struct{}

// Services groups the use cases exposed over HTTP.
type Services struct {
	Wallet      inbound.WalletService
	Trade       inbound.TradeService
	Leaderboard inbound.LeaderboardService
	Payment     inbound.PaymentService
}

// Handler implements HTTP handlers for the API.
type Handler struct {
	services Services
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler with the given services.
func NewHandler(services Services, logger *slog.Logger) (*Handler, error) {
	if services.Wallet == nil || services.Trade == nil || services.Leaderboard == nil || services.Payment == nil {
		return nil, fmt.Errorf("all services are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		services: services,
		logger:   logger.With("component", "http-api"),
	}, nil
}

// RegisterRoutes registers the HTTP routes with the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /v1/wallet", h.authenticated(h.GetWallet))
	mux.Handle("POST /v1/wallet/deposit", h.authenticated(h.Deposit))
	mux.Handle("POST /v1/wallet/withdraw", h.authenticated(h.Withdraw))
	mux.Handle("GET /v1/wallet/transactions", h.authenticated(h.Transactions))
	mux.Handle("POST /v1/trades/{action}", h.authenticated(h.Trade))
	mux.Handle("POST /v1/payments/confirm", h.authenticated(h.ConfirmPayment))
	mux.HandleFunc("GET /v1/leaderboard", h.Leaderboard)
}

// authenticated requires X-User-ID and carries the caller's identity in the
// request context.
func (h *Handler) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(headerUserID)
		if userID == "" {
			h.respondError(w, http.StatusUnauthorized, "missing "+headerUserID+" header")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		ctx = identity.WithEmail(ctx, r.Header.Get(headerUserEmail))
		next(w, r.WithContext(ctx))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey{}).(string)
	return id
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type tradeRequest struct {
	AssetID  string           `json:"assetId"`
	Quantity *decimal.Decimal `json:"quantity,omitempty"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
}

type paymentRequest struct {
	OrderID   string          `json:"orderId"`
	PaymentID string          `json:"paymentId"`
	Signature string          `json:"signature"`
	Amount    decimal.Decimal `json:"amount"`
}

type walletResponse struct {
	WalletID  string          `json:"walletId"`
	UserID    string          `json:"userId"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type holdingResponse struct {
	HoldingID    string          `json:"holdingId"`
	AssetID      string          `json:"assetId"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"averagePrice"`
}

type operationResponse struct {
	TransactionID string           `json:"transactionId"`
	Wallet        walletResponse   `json:"wallet"`
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	Holding       *holdingResponse `json:"holding,omitempty"`
}

type transactionResponse struct {
	TransactionID string                   `json:"transactionId"`
	Type          entity.TransactionType   `json:"type"`
	AssetID       *string                  `json:"assetId,omitempty"`
	Amount        decimal.Decimal          `json:"amount"`
	Quantity      *decimal.Decimal         `json:"quantity,omitempty"`
	Status        entity.TransactionStatus `json:"status"`
	CreatedAt     time.Time                `json:"createdAt"`
}

type leaderboardResponse struct {
	Rank          int             `json:"rank"`
	UserID        string          `json:"userId"`
	Score         int64           `json:"score"`
	Badge         entity.Badge    `json:"badge,omitempty"`
	HoldingsValue decimal.Decimal `json:"holdingsValue"`
}

func toWalletResponse(w *entity.Wallet) walletResponse {
	return walletResponse{
		WalletID:  w.WalletID,
		UserID:    w.UserID,
		Balance:   w.Balance,
		Currency:  w.Currency,
		UpdatedAt: w.UpdatedAt,
	}
}

func toOperationResponse(res *inbound.OperationResult) operationResponse {
	out := operationResponse{
		TransactionID: res.TransactionID,
		Wallet:        toWalletResponse(res.Wallet),
	}
	if !res.Quantity.IsZero() {
		q := res.Quantity
		out.Quantity = &q
	}
	if res.Holding != nil {
		out.Holding = &holdingResponse{
			HoldingID:    res.Holding.HoldingID,
			AssetID:      res.Holding.AssetID,
			Quantity:     res.Holding.Quantity,
			AveragePrice: res.Holding.AveragePrice,
		}
	}
	return out
}

// GetWallet returns the caller's wallet.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.services.Wallet.GetBalance(r.Context(), userID(r))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toWalletResponse(wallet))
}

// Deposit credits the caller's wallet.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.moveCash(w, r, h.services.Wallet.Deposit)
}

// Withdraw debits the caller's wallet.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.moveCash(w, r, h.services.Wallet.Withdraw)
}

func (h *Handler) moveCash(w http.ResponseWriter, r *http.Request, op func(context.Context, string, decimal.Decimal) (*inbound.OperationResult, error)) {
	var req amountRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := op(r.Context(), userID(r), req.Amount)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toOperationResponse(res))
}

// Transactions lists the caller's transactions, newest first.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	txs, err := h.services.Wallet.History(r.Context(), userID(r), limit)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionResponse{
			TransactionID: t.TransactionID,
			Type:          t.Type,
			AssetID:       t.AssetID,
			Amount:        t.Amount,
			Quantity:      t.Quantity,
			Status:        t.Status,
			CreatedAt:     t.CreatedAt,
		})
	}
	h.respondJSON(w, http.StatusOK, out)
}

// Trade settles buy, sell, invest and redeem orders.
func (h *Handler) Trade(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")

	var req tradeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.AssetID == "" {
		h.respondError(w, http.StatusBadRequest, "assetId is required")
		return
	}

	ctx, user := r.Context(), userID(r)
	var (
		res *inbound.OperationResult
		err error
	)
	switch action {
	case "buy", "sell", "redeem":
		if req.Quantity == nil {
			h.respondError(w, http.StatusBadRequest, "quantity is required")
			return
		}
		switch action {
		case "buy":
			res, err = h.services.Trade.Buy(ctx, user, req.AssetID, *req.Quantity)
		case "sell":
			res, err = h.services.Trade.Sell(ctx, user, req.AssetID, *req.Quantity)
		default:
			res, err = h.services.Trade.Redeem(ctx, user, req.AssetID, *req.Quantity)
		}
	case "invest":
		if req.Amount == nil {
			h.respondError(w, http.StatusBadRequest, "amount is required")
			return
		}
		res, err = h.services.Trade.Invest(ctx, user, req.AssetID, *req.Amount)
	default:
		h.respondError(w, http.StatusNotFound, "unknown trade action "+strconv.Quote(action))
		return
	}
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toOperationResponse(res))
}

// ConfirmPayment credits a verified payment to the caller's wallet.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.services.Payment.Confirm(r.Context(), inbound.PaymentConfirmation{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		Amount:    req.Amount,
		UserID:    userID(r),
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toOperationResponse(res))
}

// Leaderboard returns the ranked board.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	entries, err := h.services.Leaderboard.Top(r.Context(), limit)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	out := make([]leaderboardResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, leaderboardResponse{
			Rank:          e.Rank,
			UserID:        e.UserID,
			Score:         e.Score,
			Badge:         e.Badge,
			HoldingsValue: e.HoldingsValue,
		})
	}
	h.respondJSON(w, http.StatusOK, out)
}

func (h *Handler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		h.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrInvalidAmount),
		errors.Is(err, entity.ErrInvalidQuantity),
		errors.Is(err, entity.ErrInvalidUser),
		errors.Is(err, entity.ErrInvalidPrice),
		errors.Is(err, entity.ErrAssetTypeMismatch):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, entity.ErrAssetNotFound),
		errors.Is(err, entity.ErrHoldingNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrInsufficientBalance),
		errors.Is(err, entity.ErrInsufficientFunds),
		errors.Is(err, entity.ErrInsufficientQuantity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entity.ErrStoreUnavailable),
		errors.Is(err, entity.ErrConcurrentUpdate):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if entity.IsBusinessError(err) {
		h.respondError(w, status, err.Error())
		return
	}
	h.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"userId", userID(r),
		"error", err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
		h.respondError(w, status, "ledger temporarily unavailable")
		return
	}
	h.respondError(w, status, "internal error")
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
