package http

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

// Compile-time check that BalanceHub implements outbound.BalanceBroadcaster
var _ outbound.BalanceBroadcaster = (*BalanceHub)(nil)

// BalanceHubConfig holds websocket timing configuration.
type BalanceHubConfig struct {
	// PingInterval is how often the server pings idle clients.
	PingInterval time.Duration

	// ReadTimeout closes a connection that has not answered a ping in time.
	ReadTimeout time.Duration

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration

	// SendBuffer is the number of queued messages per client. A client that
	// falls further behind is disconnected.
	SendBuffer int

	// CheckOrigin validates the Origin header. Nil accepts same-origin only.
	CheckOrigin func(r *http.Request) bool

	Logger *slog.Logger
}

// BalanceHubConfigDefaults returns a config with default values.
func BalanceHubConfigDefaults() BalanceHubConfig {
	return BalanceHubConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   16,
	}
}

// BalanceUpdate is the message pushed to clients after a committed operation.
type BalanceUpdate struct {
	Type          string                 `json:"type"`
	UserID        string                 `json:"userId"`
	WalletID      string                 `json:"walletId"`
	Balance       decimal.Decimal        `json:"balance"`
	Currency      string                 `json:"currency"`
	TransactionID string                 `json:"transactionId"`
	Operation     entity.TransactionType `json:"operation"`
	OccurredAt    time.Time              `json:"occurredAt"`
}

type wsClient struct {
	userID string
	conn   *websocket.Conn
	send   chan BalanceUpdate
	once   sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// BalanceHub fans balance updates out to the websocket connections of each user.
type BalanceHub struct {
	config   BalanceHubConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[*wsClient]struct{}
}

// NewBalanceHub creates a hub.
func NewBalanceHub(config BalanceHubConfig) *BalanceHub {
	defaults := BalanceHubConfigDefaults()
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = defaults.SendBuffer
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &BalanceHub{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     config.CheckOrigin,
		},
		logger:  config.Logger.With("component", "balance-hub"),
		clients: make(map[string]map[*wsClient]struct{}),
	}
}

// RegisterRoutes mounts the websocket endpoint behind the identity middleware.
func (hub *BalanceHub) RegisterRoutes(mux *http.ServeMux, h *Handler) {
	mux.Handle("GET /ws/balance", h.authenticated(hub.ServeWS))
}

// ServeWS upgrades the request and streams the caller's balance updates.
func (hub *BalanceHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		hub.logger.Warn("websocket upgrade failed", "userId", user, "error", err)
		return
	}

	c := &wsClient{
		userID: user,
		conn:   conn,
		send:   make(chan BalanceUpdate, hub.config.SendBuffer),
	}
	hub.register(c)

	go hub.writeLoop(c)
	hub.readLoop(c)
}

// NotifyBalance queues an update for every connection of the user. It never blocks.
func (hub *BalanceHub) NotifyBalance(userID string, event entity.LedgerEvent) {
	msg := BalanceUpdate{
		Type:          "balance_update",
		UserID:        userID,
		WalletID:      event.WalletID,
		Balance:       event.BalanceAfter,
		Currency:      event.Currency,
		TransactionID: event.TransactionID,
		Operation:     event.Type,
		OccurredAt:    event.OccurredAt,
	}

	hub.mu.RLock()
	var slow []*wsClient
	for c := range hub.clients[userID] {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	hub.mu.RUnlock()

	for _, c := range slow {
		hub.logger.Warn("dropping slow websocket client", "userId", userID)
		hub.unregister(c)
	}
}

// Connections returns the number of open connections for a user.
func (hub *BalanceHub) Connections(userID string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients[userID])
}

// Close disconnects every client.
func (hub *BalanceHub) Close() {
	hub.mu.Lock()
	all := hub.clients
	hub.clients = make(map[string]map[*wsClient]struct{})
	hub.mu.Unlock()

	for _, set := range all {
		for c := range set {
			c.close()
		}
	}
}

func (hub *BalanceHub) register(c *wsClient) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	set, ok := hub.clients[c.userID]
	if !ok {
		set = make(map[*wsClient]struct{})
		hub.clients[c.userID] = set
	}
	set[c] = struct{}{}
}

func (hub *BalanceHub) unregister(c *wsClient) {
	hub.mu.Lock()
	if set, ok := hub.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(hub.clients, c.userID)
		}
	}
	hub.mu.Unlock()
	c.close()
}

// readLoop discards client frames and tracks liveness through pongs.
func (hub *BalanceHub) readLoop(c *wsClient) {
	defer hub.unregister(c)

	c.conn.SetReadLimit(512)
	if err := c.conn.SetReadDeadline(time.Now().Add(hub.config.ReadTimeout)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hub.config.ReadTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				hub.logger.Debug("websocket read failed", "userId", c.userID, "error", err)
			}
			return
		}
	}
}

func (hub *BalanceHub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			deadline := time.Now().Add(hub.config.WriteTimeout)
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				return
			}
			if err := c.conn.SetWriteDeadline(deadline); err != nil {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				hub.logger.Debug("websocket write failed", "userId", c.userID, "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(hub.config.WriteTimeout)); err != nil {
				return
			}
		}
	}
}
