package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// RemoteOptions holds parameters for fetching config from a central
// management endpoint.
type RemoteOptions struct {
	URL     string // e.g. https://manage.example.com/api/ticketview/config
	APIKey  string
	Site    string // sent as X-Site-ID
	DataDir string // local data directory, default /data
}

// LoadRemote fetches the configuration as JSON, points the store at a local
// data directory and returns the validated Config.
func LoadRemote(opts RemoteOptions) (*Config, error) {
	if opts.DataDir == "" {
		opts.DataDir = "/data"
	}

	req, err := http.NewRequest("GET", opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("remote config: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+opts.APIKey)
	if opts.Site != "" {
		req.Header.Set("X-Site-ID", opts.Site)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote config: fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote config: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote config: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var cfg Config
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("remote config: parse: %w", err)
	}

	// Override data dir with local path
	cfg.Store.DataDir = opts.DataDir
	if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("remote config: create data dir: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("remote config: %w", err)
	}
	return &cfg, nil
}
