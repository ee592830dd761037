package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	settingsService := NewSettingsService()
	cfg := settingsService.GetSettings()

	store, err := OpenTelemetryStore(cfg.StorePath, time.Duration(cfg.WindowMinutes)*time.Minute)
	if err != nil {
		log.Fatal("failed to open telemetry store:", err)
	}
	defer store.Close()

	airports := NewAirportService(cfg.AirportAPIURL)
	persist := NewPersistenceService(cfg.APIBaseURL)
	tracker := NewFlightTracker(airports)
	hub := NewBroadcastHub(airports, tracker.SetRouteHint, persist.SetCredentials)

	if cfg.RelayURL != "" {
		relay, err := NewRelayService(cfg.RelayURL, cfg.SessionCode)
		if err != nil {
			slog.Warn("relay unavailable, continuing without it", "error", err)
		} else {
			defer relay.Close()
			hub.SetRelay(relay.Publish)
			slog.Info("relay session open", "code", relay.SessionCode())
		}
	}

	telemetry := NewTelemetryService(tracker, hub, store, persist)
	if err := telemetry.ConnectSim(cfg.SimType, cfg.XPlaneHost, cfg.XPlanePort); err != nil {
		// The loop keeps polling; a simulator started later is picked up.
		slog.Warn("simulator not connected", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/export.csv", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="telemetry.csv"`)
		if err := store.ExportCSV(w); err != nil {
			slog.Error("telemetry export failed", "error", err)
		}
	})
	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		slog.Info("broadcast server listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("broadcast server:", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	telemetry.Stop()
	telemetry.DisconnectSim()
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
}
