package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// RouteSpec is the shared "current route"; last write wins.
type RouteSpec struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// RouteHintFunc receives route updates for use as airport fallbacks.
type RouteHintFunc func(origin, destination string)

// AuthFunc receives credential updates from viewers; empty values mean
// logout.
type AuthFunc func(userID, token string)

// RelayFunc mirrors a broadcast payload to the remote relay channel.
type RelayFunc func(payload []byte)

type inboundMessage struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Token string          `json:"token"`
}

type routeMessage struct {
	Type  string     `json:"type"`
	Route *RouteSpec `json:"route"`
}

type landingMessage struct {
	Type    string        `json:"type"`
	Landing *LandingEvent `json:"landing"`
}

type statusMessage struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
	Simulator string `json:"simulator,omitempty"`
}

type coordsPayload struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type airportCoordsMessage struct {
	Type   string         `json:"type"`
	ICAO   string         `json:"icao"`
	Coords *coordsPayload `json:"coords"`
	Error  string         `json:"error,omitempty"`
}

type pongMessage struct {
	Type string `json:"type"`
}

// clientConn is one connected viewer. Writes go through a buffered channel
// drained by writePump so a stalled socket never blocks the others.
type clientConn struct {
	hub  *BroadcastHub
	ws   *websocket.Conn
	send chan []byte
}

// BroadcastHub upgrades viewer connections, routes their messages and fans
// telemetry out to every open connection.
type BroadcastHub struct {
	airports *AirportService
	onRoute  RouteHintFunc
	onAuth   AuthFunc

	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*clientConn]struct{}
	route  *RouteSpec
	relay  RelayFunc
	closed bool
}

func NewBroadcastHub(airports *AirportService, onRoute RouteHintFunc, onAuth AuthFunc) *BroadcastHub {
	return &BroadcastHub{
		airports: airports,
		onRoute:  onRoute,
		onAuth:   onAuth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Viewers connect from secondary devices on the LAN.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*clientConn]struct{}),
	}
}

// SetRelay installs the remote relay sink. Pass nil to disable.
func (h *BroadcastHub) SetRelay(relay RelayFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relay = relay
}

// ServeHTTP accepts a new viewer connection. Late joiners immediately get
// the current route, or a null placeholder when none is set yet.
func (h *BroadcastHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &clientConn{hub: h, ws: ws, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		ws.Close()
		return
	}
	h.conns[c] = struct{}{}
	welcome := marshalMessage(routeMessage{Type: "route", Route: h.route})
	h.trySend(c, welcome)
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()

	slog.Info("viewer connected", "remote", ws.RemoteAddr().String())
}

// ConnCount reports how many viewers are connected.
func (h *BroadcastHub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Route returns the current shared route, or nil.
func (h *BroadcastHub) Route() *RouteSpec {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.route
}

// Broadcast fans one payload out to every open connection and the relay.
// A connection that cannot accept it is dropped so the rest are
// unaffected.
func (h *BroadcastHub) Broadcast(payload []byte) {
	if payload == nil {
		return
	}

	h.mu.Lock()
	var stalled []*clientConn
	for c := range h.conns {
		if !h.trySend(c, payload) {
			stalled = append(stalled, c)
		}
	}
	for _, c := range stalled {
		slog.Warn("dropping stalled viewer", "remote", c.ws.RemoteAddr().String())
		h.removeLocked(c)
	}
	relay := h.relay
	h.mu.Unlock()

	if relay != nil {
		relay(payload)
	}
}

// BroadcastJSON marshals v and broadcasts it.
func (h *BroadcastHub) BroadcastJSON(v any) {
	h.Broadcast(marshalMessage(v))
}

// Close drops every viewer and refuses new connections.
func (h *BroadcastHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.conns {
		h.removeLocked(c)
	}
}

// trySend hands payload to the connection's writer without blocking; a
// full buffer counts as a failed send. Caller must hold h.mu.
func (h *BroadcastHub) trySend(c *clientConn, payload []byte) bool {
	if payload == nil {
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// sendTo delivers payload to a single connection if it is still
// registered, dropping it on failure.
func (h *BroadcastHub) sendTo(c *clientConn, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		return
	}
	if !h.trySend(c, payload) {
		h.removeLocked(c)
	}
}

// removeLocked unregisters a connection and releases its resources.
// Caller must hold h.mu; safe to call twice for the same connection.
func (h *BroadcastHub) removeLocked(c *clientConn) {
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	close(c.send)
	if c.ws != nil {
		c.ws.Close()
	}
}

func (h *BroadcastHub) drop(c *clientConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (c *clientConn) readPump() {
	defer c.hub.drop(c)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("viewer read ended", "error", err)
			}
			return
		}
		c.hub.dispatch(c, data)
	}
}

func (c *clientConn) writePump() {
	for payload := range c.send {
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			slog.Debug("viewer send failed", "error", err)
			c.hub.drop(c)
			break
		}
	}
	// Drain anything queued between the failure and the unregister.
	for range c.send {
	}
}

// dispatch routes one inbound message by kind. Malformed or unknown
// messages are ignored without error so old clients stay compatible.
func (h *BroadcastHub) dispatch(c *clientConn, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Debug("ignoring malformed message", "error", err)
		return
	}

	switch msg.Type {
	case "ping":
		h.sendTo(c, marshalMessage(pongMessage{Type: "pong"}))
	case "route":
		h.handleRoute(msg.Data)
	case "getAirport":
		h.handleGetAirport(c, msg.Data)
	case "auth":
		h.handleAuth(msg)
	default:
		slog.Debug("ignoring unknown message kind", "kind", msg.Type)
	}
}

// handleRoute updates the shared route, feeds the tracker hint, and
// confirms to every connection including the sender.
func (h *BroadcastHub) handleRoute(data json.RawMessage) {
	var r RouteSpec
	if err := json.Unmarshal(data, &r); err != nil {
		slog.Debug("ignoring malformed route", "error", err)
		return
	}
	r.Origin = strings.ToUpper(strings.TrimSpace(r.Origin))
	r.Destination = strings.ToUpper(strings.TrimSpace(r.Destination))

	h.mu.Lock()
	h.route = &r
	h.mu.Unlock()
	slog.Info("route updated", "origin", r.Origin, "destination", r.Destination)

	if h.onRoute != nil {
		h.onRoute(r.Origin, r.Destination)
	}
	h.BroadcastJSON(routeMessage{Type: "route", Route: &r})
}

// handleGetAirport answers the sender only. Cache hits are answered
// inline; a miss goes to the lookup API off the reader goroutine, and any
// failure degrades to not_found.
func (h *BroadcastHub) handleGetAirport(c *clientConn, data json.RawMessage) {
	var icao string
	if err := json.Unmarshal(data, &icao); err != nil {
		slog.Debug("ignoring malformed getAirport", "error", err)
		return
	}
	icao = strings.ToUpper(strings.TrimSpace(icao))

	if len(icao) < 3 || len(icao) > 4 {
		h.sendTo(c, marshalMessage(airportCoordsMessage{Type: "airportCoords", ICAO: icao, Error: "not_found"}))
		return
	}

	if coords, ok := h.airports.Cached(icao); ok {
		h.sendTo(c, marshalMessage(airportCoordsMessage{
			Type: "airportCoords", ICAO: icao,
			Coords: &coordsPayload{Lat: coords.Lat, Lon: coords.Lon},
		}))
		return
	}

	go func() {
		coords, err := h.airports.Lookup(icao)
		if err != nil {
			if !errors.Is(err, errAirportNotFound) {
				slog.Warn("airport lookup failed", "icao", icao, "error", err)
			}
			h.sendTo(c, marshalMessage(airportCoordsMessage{Type: "airportCoords", ICAO: icao, Error: "not_found"}))
			return
		}
		h.sendTo(c, marshalMessage(airportCoordsMessage{
			Type: "airportCoords", ICAO: icao,
			Coords: &coordsPayload{Lat: coords.Lat, Lon: coords.Lon},
		}))
	}()
}

// handleAuth surfaces credentials to the auth sink; never broadcast.
func (h *BroadcastHub) handleAuth(msg inboundMessage) {
	var userID string
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &userID); err != nil {
			slog.Debug("ignoring malformed auth", "error", err)
			return
		}
	}
	if h.onAuth != nil {
		h.onAuth(userID, msg.Token)
	}
}

func marshalMessage(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal broadcast payload", "error", err)
		return nil
	}
	return data
}
