package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/ksred/autotrader-api/internal/types"
)

const kiteBaseURL = "https://api.kite.trade"

// KiteGateway talks to the Zerodha Kite Connect REST API. HTTP clients are
// cached per broker connection and must be invalidated when the connection's
// credentials are refreshed.
type KiteGateway struct {
	baseURL string

	mu      sync.Mutex
	clients map[uint]*resty.Client
}

// NewKiteGateway creates a gateway against the production Kite endpoint.
func NewKiteGateway() *KiteGateway {
	return NewKiteGatewayWithBaseURL(kiteBaseURL)
}

// NewKiteGatewayWithBaseURL creates a gateway against a custom endpoint,
// used by tests to point at a local server.
func NewKiteGatewayWithBaseURL(baseURL string) *KiteGateway {
	return &KiteGateway{
		baseURL: baseURL,
		clients: make(map[uint]*resty.Client),
	}
}

func (g *KiteGateway) Name() string {
	return "zerodha"
}

// Invalidate drops the cached client for a connection. Call after a token
// refresh so the next request picks up the new credentials.
func (g *KiteGateway) Invalidate(connectionID uint) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.clients, connectionID)

	log.Debug().
		Str("component", "kite_gateway").
		Uint("connection_id", connectionID).
		Msg("cached client invalidated")
}

// client returns the cached HTTP client for the connection, creating one if
// needed. Credential problems surface as ErrAuthExpired.
func (g *KiteGateway) client(conn *types.BrokerConnection) (*resty.Client, error) {
	if conn.APIKey == "" || conn.AccessToken == "" {
		return nil, errors.Wrap(ErrAuthExpired, "connection has no usable credentials")
	}
	if conn.AccessTokenExpiresAt > 0 && conn.AccessTokenExpiresAt < time.Now().Unix() {
		return nil, errors.Wrap(ErrAuthExpired, "access token has expired")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.clients[conn.ID]; ok {
		return c, nil
	}

	c := resty.New().
		SetBaseURL(g.baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("X-Kite-Version", "3").
		SetHeader("Authorization", fmt.Sprintf("token %s:%s", conn.APIKey, conn.AccessToken))

	g.clients[conn.ID] = c
	return c, nil
}

// kiteEnvelope is the common Kite Connect response wrapper.
type kiteEnvelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

type kiteOrder struct {
	OrderID        string  `json:"order_id"`
	Status         string  `json:"status"`
	StatusMessage  string  `json:"status_message"`
	AveragePrice   float64 `json:"average_price"`
	FilledQuantity float64 `json:"filled_quantity"`
	Price          float64 `json:"price"`
	Quantity       float64 `json:"quantity"`
}

type kitePosition struct {
	TradingSymbol string  `json:"tradingsymbol"`
	Exchange      string  `json:"exchange"`
	Product       string  `json:"product"`
	Quantity      float64 `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
	LastPrice     float64 `json:"last_price"`
	PnL           float64 `json:"pnl"`
}

// FetchOrderStatus reads the order's history from Kite; the last entry is the
// latest broker-side state. Returns (nil, nil) when the broker has no history
// for the order yet.
func (g *KiteGateway) FetchOrderStatus(ctx context.Context, conn *types.BrokerConnection, brokerOrderID string) (*OrderSnapshot, error) {
	c, err := g.client(conn)
	if err != nil {
		return nil, err
	}

	var envelope kiteEnvelope
	resp, err := c.R().
		SetContext(ctx).
		SetResult(&envelope).
		SetError(&envelope).
		Get(fmt.Sprintf("/orders/%s", brokerOrderID))
	if err != nil {
		return nil, errors.Wrap(err, "kite order status request failed")
	}

	if err := g.checkResponse(conn.ID, resp, &envelope); err != nil {
		return nil, err
	}

	var history []kiteOrder
	if err := json.Unmarshal(envelope.Data, &history); err != nil {
		return nil, errors.Wrap(err, "kite order history payload malformed")
	}
	if len(history) == 0 {
		return nil, nil
	}

	latest := history[len(history)-1]
	raw, _ := json.Marshal(latest)

	return &OrderSnapshot{
		Status:         latest.Status,
		AveragePrice:   latest.AveragePrice,
		FilledQuantity: latest.FilledQuantity,
		Price:          latest.Price,
		Quantity:       latest.Quantity,
		Raw:            string(raw),
	}, nil
}

// FetchPositions returns the connection's net positions.
func (g *KiteGateway) FetchPositions(ctx context.Context, conn *types.BrokerConnection) ([]PositionSnapshot, error) {
	c, err := g.client(conn)
	if err != nil {
		return nil, err
	}

	var envelope kiteEnvelope
	resp, err := c.R().
		SetContext(ctx).
		SetResult(&envelope).
		SetError(&envelope).
		Get("/portfolio/positions")
	if err != nil {
		return nil, errors.Wrap(err, "kite positions request failed")
	}

	if err := g.checkResponse(conn.ID, resp, &envelope); err != nil {
		return nil, err
	}

	var data struct {
		Net []kitePosition `json:"net"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, errors.Wrap(err, "kite positions payload malformed")
	}

	positions := make([]PositionSnapshot, 0, len(data.Net))
	for _, p := range data.Net {
		positions = append(positions, PositionSnapshot{
			Symbol:       p.TradingSymbol,
			Exchange:     p.Exchange,
			Product:      p.Product,
			Quantity:     p.Quantity,
			AveragePrice: p.AveragePrice,
			LastPrice:    p.LastPrice,
			PnL:          p.PnL,
		})
	}
	return positions, nil
}

// checkResponse maps Kite error responses onto the gateway error taxonomy.
// TokenException and HTTP 401/403 invalidate the cached client and surface as
// ErrAuthExpired so the caller stops the watch instead of retrying.
func (g *KiteGateway) checkResponse(connectionID uint, resp *resty.Response, envelope *kiteEnvelope) error {
	if resp.StatusCode() == http.StatusUnauthorized ||
		resp.StatusCode() == http.StatusForbidden ||
		envelope.ErrorType == "TokenException" {
		g.Invalidate(connectionID)
		return errors.Wrap(ErrAuthExpired, envelope.Message)
	}
	if resp.IsError() || envelope.Status == "error" {
		return errors.Errorf("kite request failed: %s (%s)", envelope.Message, envelope.ErrorType)
	}
	return nil
}
