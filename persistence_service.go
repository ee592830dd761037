package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// PersistenceService submits completed flight records to the remote data
// store and holds the viewer-supplied credentials used to authorize them.
// Storage, retry and dedup are the server's concern.
type PersistenceService struct {
	baseURL string
	client  *http.Client

	mu     sync.Mutex
	userID string
	token  string
}

func NewPersistenceService(baseURL string) *PersistenceService {
	return &PersistenceService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// SetCredentials updates the (userID, token) pair from an auth message.
// Empty values represent logout.
func (p *PersistenceService) SetCredentials(userID, token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userID = userID
	p.token = token
	if userID == "" && token == "" {
		slog.Info("credentials cleared")
	} else {
		slog.Info("credentials updated", "userId", userID)
	}
}

func (p *PersistenceService) credentials() (userID, token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userID, p.token
}

// SubmitFlight POSTs one record to the store. Callers run it from a
// goroutine so the tick path never waits on the network.
func (p *PersistenceService) SubmitFlight(rec *FlightRecord) error {
	userID, token := p.credentials()

	body, err := json.Marshal(struct {
		UserID string        `json:"userId,omitempty"`
		Flight *FlightRecord `json:"flight"`
	}{UserID: userID, Flight: rec})
	if err != nil {
		return fmt.Errorf("marshal flight record: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, p.baseURL+"/api/flights", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submit flight: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit flight: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("submit flight: server returned %d", resp.StatusCode)
	}

	slog.Info("flight record submitted", "id", rec.ID, "score", rec.Score)
	return nil
}
