package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const coordCacheSize = 4096

var errAirportNotFound = errors.New("airport not found")

// AirportCoords is the typed response of the coordinate lookup API.
type AirportCoords struct {
	ICAO string  `json:"icao"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// AirportService resolves airport coordinates through a remote lookup API,
// caching results for the life of the process, and answers nearest-airport
// queries from the cache. Safe for concurrent use.
type AirportService struct {
	baseURL string
	client  *http.Client
	cache   *lru.Cache[string, AirportCoords]
}

func NewAirportService(baseURL string) *AirportService {
	cache, _ := lru.New[string, AirportCoords](coordCacheSize)
	return &AirportService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		cache:   cache,
	}
}

// Cached returns the coordinates for an identifier without touching the
// network.
func (a *AirportService) Cached(icao string) (AirportCoords, bool) {
	return a.cache.Get(strings.ToUpper(icao))
}

// Lookup returns the coordinates for an ICAO identifier, from cache when
// possible. A missing airport is errAirportNotFound; transport failures
// are wrapped separately so callers can degrade them to "not found".
func (a *AirportService) Lookup(icao string) (AirportCoords, error) {
	icao = strings.ToUpper(icao)
	if c, ok := a.cache.Get(icao); ok {
		return c, nil
	}

	resp, err := a.client.Get(fmt.Sprintf("%s/airports/%s", a.baseURL, icao))
	if err != nil {
		return AirportCoords{}, fmt.Errorf("airport lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return AirportCoords{}, errAirportNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return AirportCoords{}, fmt.Errorf("airport lookup: server returned %d", resp.StatusCode)
	}

	var c AirportCoords
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		return AirportCoords{}, fmt.Errorf("parse airport response: %w", err)
	}
	if c.ICAO == "" {
		c.ICAO = icao
	}
	a.cache.Add(icao, c)
	return c, nil
}

// Nearest scans the cached airports for the closest one within maxRadiusNM
// of the given position. It never goes to the network, so it is cheap
// enough for the tick path.
func (a *AirportService) Nearest(lat, lon, maxRadiusNM float64) (string, bool) {
	best := ""
	bestDist := maxRadiusNM
	for _, key := range a.cache.Keys() {
		c, ok := a.cache.Peek(key)
		if !ok {
			continue
		}
		if d := distanceNM(lat, lon, c.Lat, c.Lon); d <= bestDist {
			best, bestDist = c.ICAO, d
		}
	}
	return best, best != ""
}
