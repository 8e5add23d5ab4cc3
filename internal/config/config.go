package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/ticketview/ticketview/internal/ingest"
	"github.com/ticketview/ticketview/internal/localtime"
	"github.com/ticketview/ticketview/internal/timeentry"
)

// Config is the top-level ticketview configuration.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Display   DisplayConfig   `json:"display" yaml:"display"`
	Calendar  CalendarConfig  `json:"calendar" yaml:"calendar"`
	TimeEntry TimeEntryConfig `json:"time_entry" yaml:"time_entry"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
}

// ServerConfig holds REST API server settings.
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	Key  string `json:"api_key" yaml:"api_key"`
}

// StoreConfig holds database settings.
type StoreConfig struct {
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// DBPath is the SQLite database inside the data directory.
func (s StoreConfig) DBPath() string {
	return filepath.Join(s.DataDir, "ticketview.db")
}

// DisplayConfig holds presentation settings.
type DisplayConfig struct {
	// Timezone is the IANA zone used for every displayed time.
	Timezone string `json:"timezone" yaml:"timezone"`
}

// CalendarConfig locates the meeting feed and how often it is re-imported.
type CalendarConfig struct {
	ICSPath string `json:"ics_path,omitempty" yaml:"ics_path,omitempty"`
	ICSURL  string `json:"ics_url,omitempty" yaml:"ics_url,omitempty"`
	Refresh string `json:"refresh" yaml:"refresh"` // cron expression
	Owner   string `json:"owner,omitempty" yaml:"owner,omitempty"`
}

// Enabled reports whether a feed is configured.
func (c CalendarConfig) Enabled() bool {
	return c.ICSPath != "" || c.ICSURL != ""
}

// FeedName names the feed in the store.
func (c CalendarConfig) FeedName() string {
	if c.Owner != "" {
		return c.Owner
	}
	return "default"
}

// TimeEntryConfig holds time-entry settings.
type TimeEntryConfig struct {
	DefaultAttendee string `json:"default_attendee" yaml:"default_attendee"`
}

// IngestConfig lists the sources allowed to push tickets.
type IngestConfig struct {
	Endpoints map[string]ingest.EndpointConfig `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
}

// Enabled reports whether any push source is configured.
func (c IngestConfig) Enabled() bool {
	return len(c.Endpoints) > 0
}

const (
	defaultHost    = "0.0.0.0"
	defaultPort    = 8080
	defaultRefresh = "@every 15m"
)

// Load reads configuration from a JSON or YAML file. The format follows
// the file extension; anything but .yaml or .yml is read as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables with TICKETVIEW_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getenv("TICKETVIEW_HOST", defaultHost),
			Port: getenvInt("TICKETVIEW_PORT", defaultPort),
			Key:  os.Getenv("TICKETVIEW_API_KEY"),
		},
		Store: StoreConfig{
			DataDir: getenv("TICKETVIEW_DATA_DIR", "/data"),
		},
		Display: DisplayConfig{
			Timezone: os.Getenv("TICKETVIEW_TIMEZONE"),
		},
		Calendar: CalendarConfig{
			ICSPath: os.Getenv("TICKETVIEW_ICS_PATH"),
			ICSURL:  os.Getenv("TICKETVIEW_ICS_URL"),
			Refresh: os.Getenv("TICKETVIEW_CALENDAR_REFRESH"),
			Owner:   os.Getenv("TICKETVIEW_CALENDAR_OWNER"),
		},
		TimeEntry: TimeEntryConfig{
			DefaultAttendee: os.Getenv("TICKETVIEW_DEFAULT_ATTENDEE"),
		},
	}
	if token := os.Getenv("TICKETVIEW_INGEST_TOKEN"); token != "" {
		cfg.Ingest.Endpoints = map[string]ingest.EndpointConfig{
			getenv("TICKETVIEW_INGEST_SOURCE", "helpdesk"): {BearerToken: token},
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = defaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Display.Timezone == "" {
		c.Display.Timezone = localtime.DefaultZone
	}
	if c.Calendar.Refresh == "" {
		c.Calendar.Refresh = defaultRefresh
	}
	if c.TimeEntry.DefaultAttendee == "" {
		c.TimeEntry.DefaultAttendee = timeentry.DefaultAttendee
	}
}

// Validate checks for required fields.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.Store.DataDir == "" {
		errs = append(errs, "store.data_dir is required")
	}
	if _, err := localtime.New(c.Display.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("display.timezone %q is not a known zone", c.Display.Timezone))
	}
	if c.Calendar.Enabled() {
		if _, err := cron.ParseStandard(c.Calendar.Refresh); err != nil {
			errs = append(errs, fmt.Sprintf("calendar.refresh %q: %v", c.Calendar.Refresh, err))
		}
	}
	if c.Calendar.ICSPath != "" && c.Calendar.ICSURL != "" {
		errs = append(errs, "calendar.ics_path and calendar.ics_url are mutually exclusive")
	}
	if a := c.TimeEntry.DefaultAttendee; a != "" && !strings.Contains(a, "@") {
		errs = append(errs, fmt.Sprintf("time_entry.default_attendee %q is not an email address", a))
	}

	for name, ep := range c.Ingest.Endpoints {
		if strings.TrimSpace(name) == "" || strings.Contains(name, "/") {
			errs = append(errs, fmt.Sprintf("ingest.endpoints: invalid source name %q", name))
		}
		if ep.Secret == "" && ep.BearerToken == "" {
			errs = append(errs, fmt.Sprintf("ingest.endpoints.%s: secret or bearer_token is required", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
