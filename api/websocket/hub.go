package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Hub maintains the set of active clients and broadcasts market updates.
// Reserve and price updates are buffered and flushed on a fixed interval;
// health and liquidation updates are pushed as they happen.
type Hub struct {
	clients  map[*Client]bool
	channels map[string]map[*Client]bool // channel -> clients

	broadcast chan []byte

	register   chan *Client
	unregister chan *Client

	subscribe   chan *SubscriptionRequest
	unsubscribe chan *SubscriptionRequest

	// Buffered periodic channels
	reserveBuffer map[string]*ReserveMessage
	priceBuffer   map[string]*PriceMessage

	mu sync.RWMutex

	config *HubConfig
}

// HubConfig contains hub configuration
type HubConfig struct {
	// Flush intervals for buffered channels
	ReserveInterval time.Duration
	PriceInterval   time.Duration

	// Connection limits
	MaxClientsPerIP  int
	MaxSubscriptions int

	// Rate limiting
	MessageRateLimit int // messages per second per client
}

// DefaultHubConfig returns default hub configuration
func DefaultHubConfig() *HubConfig {
	return &HubConfig{
		ReserveInterval:  time.Second,
		PriceInterval:    500 * time.Millisecond,
		MaxClientsPerIP:  10,
		MaxSubscriptions: 50,
		MessageRateLimit: 100,
	}
}

// SubscriptionRequest represents a subscription request
type SubscriptionRequest struct {
	Client  *Client
	Channel string
	Action  string // "subscribe" or "unsubscribe"
}

// NewHub creates a new Hub
func NewHub(config *HubConfig) *Hub {
	if config == nil {
		config = DefaultHubConfig()
	}

	return &Hub{
		clients:       make(map[*Client]bool),
		channels:      make(map[string]map[*Client]bool),
		broadcast:     make(chan []byte, 256),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		subscribe:     make(chan *SubscriptionRequest, 256),
		unsubscribe:   make(chan *SubscriptionRequest, 256),
		reserveBuffer: make(map[string]*ReserveMessage),
		priceBuffer:   make(map[string]*PriceMessage),
		config:        config,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	reserveTicker := time.NewTicker(h.config.ReserveInterval)
	priceTicker := time.NewTicker(h.config.PriceInterval)

	defer reserveTicker.Stop()
	defer priceTicker.Stop()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case req := <-h.subscribe:
			h.handleSubscription(req)

		case req := <-h.unsubscribe:
			h.handleUnsubscription(req)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-reserveTicker.C:
			h.broadcastReserves()

		case <-priceTicker.C:
			h.broadcastPrices()
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)

		for channel, clients := range h.channels {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.channels, channel)
			}
		}

		close(client.send)
	}
}

func (h *Hub) handleSubscription(req *SubscriptionRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	channel := req.Channel
	client := req.Client

	if _, ok := h.channels[channel]; !ok {
		h.channels[channel] = make(map[*Client]bool)
	}
	h.channels[channel][client] = true

	confirmation := &WSMessage{
		Type:    "subscribed",
		Channel: channel,
	}
	data, _ := json.Marshal(confirmation)
	client.send <- data
}

func (h *Hub) handleUnsubscription(req *SubscriptionRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	channel := req.Channel
	client := req.Client

	if clients, ok := h.channels[channel]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}

	confirmation := &WSMessage{
		Type:    "unsubscribed",
		Channel: channel,
	}
	data, _ := json.Marshal(confirmation)
	client.send <- data
}

func (h *Hub) broadcastMessage(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// client buffer full, skip
		}
	}
}

// BroadcastToChannel sends a message to all clients subscribed to a channel
func (h *Hub) BroadcastToChannel(channel string, message interface{}) {
	h.mu.RLock()
	clients, ok := h.channels[channel]
	if !ok {
		h.mu.RUnlock()
		return
	}

	clientList := make([]*Client, 0, len(clients))
	for client := range clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		return
	}

	for _, client := range clientList {
		select {
		case client.send <- data:
		default:
			// client buffer full, skip
		}
	}
}

// ============ Channel-specific broadcasts ============

// UpdateReserve updates the reserve buffer for an asset
func (h *Hub) UpdateReserve(assetID string, reserve *ReserveMessage) {
	h.mu.Lock()
	h.reserveBuffer[assetID] = reserve
	h.mu.Unlock()
}

// UpdatePrice updates the price buffer for an asset
func (h *Hub) UpdatePrice(assetID string, price *PriceMessage) {
	h.mu.Lock()
	h.priceBuffer[assetID] = price
	h.mu.Unlock()
}

func (h *Hub) broadcastReserves() {
	h.mu.RLock()
	reserves := make(map[string]*ReserveMessage, len(h.reserveBuffer))
	for k, v := range h.reserveBuffer {
		reserves[k] = v
	}
	h.mu.RUnlock()

	for assetID, reserve := range reserves {
		channel := "reserves:" + assetID
		msg := &WSMessage{
			Type:    "reserve",
			Channel: channel,
			Data:    reserve,
		}
		h.BroadcastToChannel(channel, msg)
	}
}

func (h *Hub) broadcastPrices() {
	h.mu.RLock()
	prices := make(map[string]*PriceMessage, len(h.priceBuffer))
	for k, v := range h.priceBuffer {
		prices[k] = v
	}
	h.mu.RUnlock()

	for assetID, price := range prices {
		channel := "prices:" + assetID
		msg := &WSMessage{
			Type:    "price",
			Channel: channel,
			Data:    price,
		}
		h.BroadcastToChannel(channel, msg)
	}
}

// BroadcastHealth pushes a health update to a specific account's channel
func (h *Hub) BroadcastHealth(owner string, health *HealthMessage) {
	channel := "health:" + owner
	msg := &WSMessage{
		Type:    "health",
		Channel: channel,
		Data:    health,
	}
	h.BroadcastToChannel(channel, msg)
}

// BroadcastLiquidation pushes an executed liquidation to the public channel
func (h *Hub) BroadcastLiquidation(liquidation *LiquidationMessage) {
	msg := &WSMessage{
		Type:    "liquidation",
		Channel: "liquidations",
		Data:    liquidation,
	}
	h.BroadcastToChannel("liquidations", msg)
}

// ============ Message Types ============

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Channel string      `json:"channel"`
	Data    interface{} `json:"data,omitempty"`
}

// ReserveMessage represents a reserve state update
type ReserveMessage struct {
	AssetID       string `json:"asset_id"`
	TotalDeposits string `json:"total_deposits"`
	TotalBorrows  string `json:"total_borrows"`
	Utilization   string `json:"utilization"`
	BorrowRate    string `json:"borrow_rate"`
	SupplyRate    string `json:"supply_rate"`
	Timestamp     int64  `json:"timestamp"`
}

// PriceMessage represents an aggregated price update
type PriceMessage struct {
	AssetID    string `json:"asset_id"`
	Price      string `json:"price"`
	Confidence string `json:"confidence"`
	Timestamp  int64  `json:"timestamp"`
}

// HealthMessage represents a solvency update for one account
type HealthMessage struct {
	Owner        string `json:"owner"`
	HealthFactor string `json:"health_factor"`
	Liquidatable bool   `json:"liquidatable"`
	Timestamp    int64  `json:"timestamp"`
}

// LiquidationMessage represents an executed liquidation
type LiquidationMessage struct {
	RecordID          string `json:"record_id"`
	Borrower          string `json:"borrower"`
	DebtAssetID       string `json:"debt_asset_id"`
	CollateralAssetID string `json:"collateral_asset_id"`
	RepaidAmount      string `json:"repaid_amount"`
	CollateralSeized  string `json:"collateral_seized"`
	Timestamp         int64  `json:"timestamp"`
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetChannelCount returns the number of active channels
func (h *Hub) GetChannelCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// GetChannelClientCount returns the number of clients in a channel
func (h *Hub) GetChannelClientCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.channels[channel]; ok {
		return len(clients)
	}
	return 0
}

// ServeWS handles WebSocket upgrade requests
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = generateID()
	}

	userID := r.URL.Query().Get("user_id")
	ip := getClientIPFromRequest(r)

	client := NewClient(h, conn, clientID, userID, ip)

	h.register <- client

	go client.writePump()
	go client.readPump()
}

func getClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	for i := len(ip) - 1; i >= 0; i-- {
		if ip[i] == ':' {
			return ip[:i]
		}
	}
	return ip
}

func generateID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
