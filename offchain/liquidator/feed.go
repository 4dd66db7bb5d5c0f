package liquidator

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	reconnectDelay = 5 * time.Second
)

// PriceUpdate is one streamed price tick for an asset
type PriceUpdate struct {
	AssetID    string `json:"asset_id"`
	Price      string `json:"price"`
	Confidence string `json:"confidence"`
	Timestamp  int64  `json:"timestamp"`
}

// subscribeMessage is the channel subscription request sent on connect
type subscribeMessage struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// PriceFeed maintains a websocket subscription to the price stream and
// forwards decoded ticks. The connection reconnects with a fixed backoff
// until the context is cancelled.
type PriceFeed struct {
	url     string
	assets  []string
	updates chan PriceUpdate

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewPriceFeed creates a feed for the given websocket endpoint
func NewPriceFeed(url string, assets []string) *PriceFeed {
	return &PriceFeed{
		url:     url,
		assets:  assets,
		updates: make(chan PriceUpdate, 256),
	}
}

// Updates returns the tick channel
func (f *PriceFeed) Updates() <-chan PriceUpdate {
	return f.updates
}

// Run connects and pumps ticks until the context is cancelled
func (f *PriceFeed) Run(ctx context.Context) {
	for {
		if err := f.connect(ctx); err != nil {
			log.Printf("price feed connection failed: %v, retrying in %s", err, reconnectDelay)
		}
		select {
		case <-ctx.Done():
			f.close()
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *PriceFeed) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	defer f.close()

	for _, asset := range f.assets {
		sub := subscribeMessage{Action: "subscribe", Channel: "prices:" + asset}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(sub); err != nil {
			return err
		}
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go f.pingLoop(ctx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var update PriceUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			log.Printf("price feed: dropping malformed message: %v", err)
			continue
		}
		if update.AssetID == "" {
			continue
		}
		select {
		case f.updates <- update:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// channel full, skip the tick
		}
	}
}

func (f *PriceFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *PriceFeed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
}
