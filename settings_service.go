package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	SimType       string `yaml:"simType"`
	XPlaneHost    string `yaml:"xplaneHost"`
	XPlanePort    int    `yaml:"xplanePort"`
	ListenAddr    string `yaml:"listenAddr"`
	APIBaseURL    string `yaml:"apiBaseURL"`
	AirportAPIURL string `yaml:"airportApiUrl"`
	RelayURL      string `yaml:"relayUrl"`
	SessionCode   string `yaml:"sessionCode"`
	StorePath     string `yaml:"storePath"`
	WindowMinutes int    `yaml:"windowMinutes"`
}

// SettingsService loads and saves the YAML settings file, falling back to
// defaults when the file is absent.
type SettingsService struct {
	mu       sync.RWMutex
	settings Settings
	filePath string
}

func NewSettingsService() *SettingsService {
	configDir, _ := os.UserConfigDir()
	dir := filepath.Join(configDir, "simchecklist-bridge")

	s := &SettingsService{
		filePath: filepath.Join(dir, "settings.yaml"),
		settings: Settings{
			SimType:       "auto",
			XPlaneHost:    "127.0.0.1",
			XPlanePort:    49000,
			ListenAddr:    ":8320",
			APIBaseURL:    "https://api.simchecklist.app",
			AirportAPIURL: "https://api.simchecklist.app",
			StorePath:     filepath.Join(dir, "telemetry.db"),
			WindowMinutes: 15,
		},
	}
	s.load()
	return s
}

func (s *SettingsService) GetSettings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *SettingsService) UpdateSettings(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return s.save()
}

func (s *SettingsService) load() {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return
	}
	if err := yaml.Unmarshal(data, &s.settings); err != nil {
		// A broken file keeps the defaults rather than aborting startup.
		return
	}
}

func (s *SettingsService) save() error {
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(s.settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	return os.WriteFile(s.filePath, data, 0o644)
}
