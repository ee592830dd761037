package main

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// TelemetryStore keeps a short rolling window of raw telemetry in a local
// sqlite database. Rows older than the window are pruned on every insert,
// so the file never grows past a few minutes of history.
type TelemetryStore struct {
	db     *sql.DB
	window time.Duration
}

func OpenTelemetryStore(path string, window time.Duration) (*TelemetryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS telemetry (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts DATETIME NOT NULL,
		latitude REAL,
		longitude REAL,
		altitude REAL,
		altitude_agl REAL,
		ground_speed REAL,
		vertical_speed REAL,
		g_force REAL,
		heading REAL,
		on_ground INTEGER
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &TelemetryStore{db: db, window: window}, nil
}

// Insert appends one sample and prunes whatever fell out of the window.
func (s *TelemetryStore) Insert(snap *Snapshot) error {
	_, err := s.db.Exec(
		`INSERT INTO telemetry (ts, latitude, longitude, altitude, altitude_agl, ground_speed, vertical_speed, g_force, heading, on_ground)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Time.UTC(), snap.Latitude, snap.Longitude, snap.Altitude, snap.AltitudeAGL,
		snap.GroundSpeed, snap.VerticalSpeed, snap.GForce, snap.Heading, snap.OnGround,
	)
	if err != nil {
		return fmt.Errorf("insert telemetry: %w", err)
	}

	cutoff := snap.Time.Add(-s.window).UTC()
	if _, err := s.db.Exec(`DELETE FROM telemetry WHERE ts < ?`, cutoff); err != nil {
		return fmt.Errorf("prune telemetry: %w", err)
	}
	return nil
}

// Count reports how many samples are currently retained.
func (s *TelemetryStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM telemetry`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count telemetry: %w", err)
	}
	return n, nil
}

// ExportCSV writes the retained window as CSV, oldest row first.
func (s *TelemetryStore) ExportCSV(out io.Writer) error {
	rows, err := s.db.Query(
		`SELECT ts, latitude, longitude, altitude, altitude_agl, ground_speed, vertical_speed, g_force, heading, on_ground
		 FROM telemetry ORDER BY id`)
	if err != nil {
		return fmt.Errorf("query telemetry: %w", err)
	}
	defer rows.Close()

	w := csv.NewWriter(out)
	defer w.Flush()

	w.Write([]string{"timestamp", "latitude", "longitude", "altitude", "altitude_agl", "ground_speed", "vertical_speed", "g_force", "heading", "on_ground"})

	for rows.Next() {
		var ts time.Time
		var lat, lon, alt, agl, gs, vs, g, hdg float64
		var onGround bool
		if err := rows.Scan(&ts, &lat, &lon, &alt, &agl, &gs, &vs, &g, &hdg, &onGround); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		w.Write([]string{
			ts.Format(time.RFC3339),
			strconv.FormatFloat(lat, 'f', 6, 64),
			strconv.FormatFloat(lon, 'f', 6, 64),
			strconv.FormatFloat(alt, 'f', 2, 64),
			strconv.FormatFloat(agl, 'f', 2, 64),
			strconv.FormatFloat(gs, 'f', 2, 64),
			strconv.FormatFloat(vs, 'f', 2, 64),
			strconv.FormatFloat(g, 'f', 3, 64),
			strconv.FormatFloat(hdg, 'f', 2, 64),
			strconv.FormatBool(onGround),
		})
	}
	return rows.Err()
}

func (s *TelemetryStore) Close() error {
	return s.db.Close()
}
