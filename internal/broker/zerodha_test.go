package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/autotrader-api/internal/types"
)

func activeConnection(id uint) *types.BrokerConnection {
	conn := &types.BrokerConnection{
		BrokerName:  "zerodha",
		APIKey:      "key",
		APISecret:   "secret",
		AccessToken: "token",
		IsActive:    true,
	}
	conn.ID = id
	return conn
}

func TestKiteFetchOrderStatusReturnsLatestHistoryEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/BRK-1", r.URL.Path)
		assert.Equal(t, "3", r.Header.Get("X-Kite-Version"))
		assert.Equal(t, "token key:token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","data":[
			{"order_id":"BRK-1","status":"OPEN","price":100,"quantity":10},
			{"order_id":"BRK-1","status":"COMPLETE","average_price":101.5,"filled_quantity":10,"price":100,"quantity":10}
		]}`))
	}))
	defer srv.Close()

	g := NewKiteGatewayWithBaseURL(srv.URL)
	snapshot, err := g.FetchOrderStatus(context.Background(), activeConnection(1), "BRK-1")
	require.NoError(t, err)
	require.NotNil(t, snapshot)

	assert.Equal(t, "COMPLETE", snapshot.Status)
	assert.Equal(t, 101.5, snapshot.AveragePrice)
	assert.Equal(t, 10.0, snapshot.FilledQuantity)
	assert.Contains(t, snapshot.Raw, `"COMPLETE"`)
}

func TestKiteFetchOrderStatusEmptyHistoryMeansNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","data":[]}`))
	}))
	defer srv.Close()

	g := NewKiteGatewayWithBaseURL(srv.URL)
	snapshot, err := g.FetchOrderStatus(context.Background(), activeConnection(1), "BRK-1")
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func TestKiteTokenExceptionIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"status":"error","message":"Token is invalid or has expired.","error_type":"TokenException"}`))
	}))
	defer srv.Close()

	g := NewKiteGatewayWithBaseURL(srv.URL)
	_, err := g.FetchOrderStatus(context.Background(), activeConnection(1), "BRK-1")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
}

func TestKiteExpiredStoredTokenIsAuthErrorWithoutNetwork(t *testing.T) {
	conn := activeConnection(1)
	conn.AccessTokenExpiresAt = time.Now().Add(-time.Hour).Unix()

	g := NewKiteGatewayWithBaseURL("http://127.0.0.1:0")
	_, err := g.FetchOrderStatus(context.Background(), conn, "BRK-1")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
}

func TestKiteMissingCredentialsIsAuthError(t *testing.T) {
	conn := activeConnection(1)
	conn.AccessToken = ""

	g := NewKiteGatewayWithBaseURL("http://127.0.0.1:0")
	_, err := g.FetchOrderStatus(context.Background(), conn, "BRK-1")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
}

func TestKiteClientCacheInvalidation(t *testing.T) {
	var seenAuth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = append(seenAuth, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","data":[]}`))
	}))
	defer srv.Close()

	g := NewKiteGatewayWithBaseURL(srv.URL)
	conn := activeConnection(3)

	_, err := g.FetchOrderStatus(context.Background(), conn, "BRK-1")
	require.NoError(t, err)

	// A refreshed token is only picked up after invalidation.
	conn.AccessToken = "refreshed"
	_, err = g.FetchOrderStatus(context.Background(), conn, "BRK-1")
	require.NoError(t, err)

	g.Invalidate(conn.ID)
	_, err = g.FetchOrderStatus(context.Background(), conn, "BRK-1")
	require.NoError(t, err)

	require.Len(t, seenAuth, 3)
	assert.Equal(t, "token key:token", seenAuth[0])
	assert.Equal(t, "token key:token", seenAuth[1])
	assert.Equal(t, "token key:refreshed", seenAuth[2])
}

func TestKiteFetchPositions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/portfolio/positions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","data":{"net":[
			{"tradingsymbol":"RELIANCE","exchange":"NSE","product":"MIS","quantity":10,"average_price":100,"last_price":101.5,"pnl":15}
		],"day":[]}}`))
	}))
	defer srv.Close()

	g := NewKiteGatewayWithBaseURL(srv.URL)
	positions, err := g.FetchPositions(context.Background(), activeConnection(1))
	require.NoError(t, err)
	require.Len(t, positions, 1)

	assert.Equal(t, "RELIANCE", positions[0].Symbol)
	assert.Equal(t, 10.0, positions[0].Quantity)
	assert.Equal(t, 101.5, positions[0].LastPrice)
}

func TestRegistryResolve(t *testing.T) {
	g := NewKiteGatewayWithBaseURL("http://localhost")
	registry := NewRegistry(g)

	resolved, err := registry.Resolve("Zerodha")
	require.NoError(t, err)
	assert.Same(t, Gateway(g), resolved)

	_, err = registry.Resolve("interactivebrokers")
	assert.ErrorIs(t, err, ErrUnsupportedBroker)
}
