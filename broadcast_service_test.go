package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialHub connects a test viewer to a hub served over httptest.
func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readJSON reads the next message with a deadline so a missing broadcast
// fails the test instead of hanging it.
func readJSON(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func newTestHub(t *testing.T, onRoute RouteHintFunc, onAuth AuthFunc) (*BroadcastHub, *httptest.Server) {
	t.Helper()
	var hits atomic.Int64
	backend := newAirportBackend(t, &hits)
	hub := NewBroadcastHub(NewAirportService(backend.URL), onRoute, onAuth)
	t.Cleanup(hub.Close)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return hub, srv
}

func TestHubWelcomeRoute(t *testing.T) {
	t.Run("null placeholder before any route", func(t *testing.T) {
		_, srv := newTestHub(t, nil, nil)
		ws := dialHub(t, srv)

		welcome := readJSON(t, ws)
		assert.Equal(t, "route", welcome["type"])
		assert.Nil(t, welcome["route"])
	})

	t.Run("late joiner gets the current route", func(t *testing.T) {
		_, srv := newTestHub(t, nil, nil)
		first := dialHub(t, srv)
		readJSON(t, first)

		require.NoError(t, first.WriteJSON(map[string]any{
			"type": "route",
			"data": map[string]string{"origin": "egll", "destination": " eddf "},
		}))
		readJSON(t, first) // route confirmation

		late := dialHub(t, srv)
		welcome := readJSON(t, late)
		assert.Equal(t, "route", welcome["type"])
		route, ok := welcome["route"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "EGLL", route["origin"])
		assert.Equal(t, "EDDF", route["destination"])
	})
}

func TestHubPingPong(t *testing.T) {
	_, srv := newTestHub(t, nil, nil)
	ws := dialHub(t, srv)
	readJSON(t, ws)

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", readJSON(t, ws)["type"])
}

func TestHubRouteUpdate(t *testing.T) {
	var mu sync.Mutex
	var hintOrigin, hintDest string
	hub, srv := newTestHub(t, func(origin, destination string) {
		mu.Lock()
		defer mu.Unlock()
		hintOrigin, hintDest = origin, destination
	}, nil)

	sender := dialHub(t, srv)
	other := dialHub(t, srv)
	readJSON(t, sender)
	readJSON(t, other)

	require.NoError(t, sender.WriteJSON(map[string]any{
		"type": "route",
		"data": map[string]string{"origin": "egll", "destination": "eddf"},
	}))

	// Both the sender and the other viewer get the confirmation.
	for _, ws := range []*websocket.Conn{sender, other} {
		msg := readJSON(t, ws)
		assert.Equal(t, "route", msg["type"])
		route := msg["route"].(map[string]any)
		assert.Equal(t, "EGLL", route["origin"])
		assert.Equal(t, "EDDF", route["destination"])
	}

	route := hub.Route()
	require.NotNil(t, route)
	assert.Equal(t, "EGLL", route.Origin)
	assert.Equal(t, "EDDF", route.Destination)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "EGLL", hintOrigin)
	assert.Equal(t, "EDDF", hintDest)
}

func TestHubGetAirport(t *testing.T) {
	_, srv := newTestHub(t, nil, nil)
	ws := dialHub(t, srv)
	readJSON(t, ws)

	t.Run("known airport", func(t *testing.T) {
		require.NoError(t, ws.WriteJSON(map[string]string{"type": "getAirport", "data": "egll"}))
		msg := readJSON(t, ws)
		assert.Equal(t, "airportCoords", msg["type"])
		assert.Equal(t, "EGLL", msg["icao"])
		coords := msg["coords"].(map[string]any)
		assert.InDelta(t, 51.4775, coords["lat"].(float64), 1e-6)
	})

	t.Run("unknown airport degrades to not_found", func(t *testing.T) {
		require.NoError(t, ws.WriteJSON(map[string]string{"type": "getAirport", "data": "ZZZZ"}))
		msg := readJSON(t, ws)
		assert.Equal(t, "airportCoords", msg["type"])
		assert.Nil(t, msg["coords"])
		assert.Equal(t, "not_found", msg["error"])
	})

	t.Run("implausible identifier rejected without lookup", func(t *testing.T) {
		require.NoError(t, ws.WriteJSON(map[string]string{"type": "getAirport", "data": "TOOLONGID"}))
		msg := readJSON(t, ws)
		assert.Equal(t, "not_found", msg["error"])
	})
}

func TestHubAuth(t *testing.T) {
	var mu sync.Mutex
	var gotUser, gotToken string
	_, srv := newTestHub(t, nil, func(userID, token string) {
		mu.Lock()
		defer mu.Unlock()
		gotUser, gotToken = userID, token
	})

	ws := dialHub(t, srv)
	readJSON(t, ws)

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "auth", "data": "user-42", "token": "secret"}))

	// Credentials must never be echoed back; prove delivery with a ping
	// round trip, which also orders us after the auth dispatch.
	require.NoError(t, ws.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", readJSON(t, ws)["type"])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "user-42", gotUser)
	assert.Equal(t, "secret", gotToken)
}

func TestHubIgnoresUnknownAndMalformed(t *testing.T) {
	_, srv := newTestHub(t, nil, nil)
	ws := dialHub(t, srv)
	readJSON(t, ws)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, ws.WriteJSON(map[string]string{"type": "fancyNewThing"}))

	// The connection survives both.
	require.NoError(t, ws.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", readJSON(t, ws)["type"])
}

func TestHubBroadcastAndDisconnect(t *testing.T) {
	hub, srv := newTestHub(t, nil, nil)

	a := dialHub(t, srv)
	b := dialHub(t, srv)
	c := dialHub(t, srv)
	for _, ws := range []*websocket.Conn{a, b, c} {
		readJSON(t, ws)
	}
	require.Eventually(t, func() bool { return hub.ConnCount() == 3 },
		2*time.Second, 10*time.Millisecond)

	// One viewer drops; the others keep receiving.
	b.Close()
	require.Eventually(t, func() bool { return hub.ConnCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	hub.BroadcastJSON(statusMessage{Type: "status", Connected: true, Simulator: "X-Plane"})
	for _, ws := range []*websocket.Conn{a, c} {
		msg := readJSON(t, ws)
		assert.Equal(t, "status", msg["type"])
		assert.Equal(t, true, msg["connected"])
	}
}

func TestHubRelay(t *testing.T) {
	hub, srv := newTestHub(t, nil, nil)

	var mu sync.Mutex
	var relayed [][]byte
	hub.SetRelay(func(payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		relayed = append(relayed, payload)
	})

	ws := dialHub(t, srv)
	readJSON(t, ws)

	hub.Broadcast([]byte(`{"type":"status","connected":false}`))
	readJSON(t, ws)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, relayed, 1)
	assert.JSONEq(t, `{"type":"status","connected":false}`, string(relayed[0]))
}

func TestHubCloseRefusesNewViewers(t *testing.T) {
	hub, srv := newTestHub(t, nil, nil)
	ws := dialHub(t, srv)
	readJSON(t, ws)

	hub.Close()
	require.Eventually(t, func() bool { return hub.ConnCount() == 0 },
		2*time.Second, 10*time.Millisecond)

	// A viewer arriving after Close is turned away immediately.
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		late.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, readErr := late.ReadMessage()
		assert.Error(t, readErr)
		late.Close()
	}
	assert.Zero(t, hub.ConnCount())
}
