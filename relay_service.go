package main

import (
	"crypto/rand"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// sessionAlphabet is the 32-symbol code alphabet; visually ambiguous
// characters (0/O, 1/I) are excluded.
const sessionAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const relaySubjectPrefix = "bridge.session."

// NewSessionCode returns a human-readable relay channel code in the form
// XXXX-XXXX, e.g. "7KQF-PW2X".
func NewSessionCode() string {
	var buf [8]byte
	rand.Read(buf[:])

	code := make([]byte, 0, 9)
	for i, b := range buf {
		if i == 4 {
			code = append(code, '-')
		}
		code = append(code, sessionAlphabet[int(b)%len(sessionAlphabet)])
	}
	return string(code)
}

// RelayService mirrors broadcast payloads onto a NATS subject so remote
// viewers can follow a session by its code instead of a direct connection.
type RelayService struct {
	conn    *nats.Conn
	subject string
	code    string
}

func NewRelayService(url, code string) (*RelayService, error) {
	if code == "" {
		code = NewSessionCode()
	}
	conn, err := nats.Connect(url,
		nats.Name("simchecklist-bridge"),
		nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect relay: %w", err)
	}
	return &RelayService{
		conn:    conn,
		subject: relaySubjectPrefix + code,
		code:    code,
	}, nil
}

// SessionCode returns the code viewers use to address this session.
func (r *RelayService) SessionCode() string {
	return r.code
}

// Publish forwards one broadcast payload. Delivery is best-effort; the
// tick path never waits on the relay.
func (r *RelayService) Publish(payload []byte) {
	if err := r.conn.Publish(r.subject, payload); err != nil {
		slog.Debug("relay publish failed", "error", err)
	}
}

func (r *RelayService) Close() {
	r.conn.Close()
}
