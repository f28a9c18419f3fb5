package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"hallcal/internal/feed"
	appLog "hallcal/internal/log"
)

// ErrEmptyPath is returned by Load/Save for an empty config path.
var ErrEmptyPath = errors.New("config path is empty")

// Environment overrides applied after the YAML file.
const (
	EnvFeedURL  = "HALLCAL_FEED_URL"
	EnvListen   = "HALLCAL_LISTEN"
	EnvLogLevel = "HALLCAL_LOG_LEVEL"
	EnvSchema   = "HALLCAL_SCHEMA"
)

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "Europe/London"
	defaultRefreshCron = "*/15 * * * *"
	defaultCacheDir    = "/var/lib/hallcal/feed-cache"
	defaultCacheTTL    = 30
)

// Columns overrides individual column positions of the selected schema.
// Nil fields keep the schema's value; -1 removes a column.
type Columns struct {
	Date         *int `yaml:"date,omitempty" json:"date,omitempty"`
	Day          *int `yaml:"day,omitempty" json:"day,omitempty"`
	Start        *int `yaml:"start,omitempty" json:"start,omitempty"`
	End          *int `yaml:"end,omitempty" json:"end,omitempty"`
	Room         *int `yaml:"room,omitempty" json:"room,omitempty"`
	Hirer        *int `yaml:"hirer,omitempty" json:"hirer,omitempty"`
	Contact      *int `yaml:"contact,omitempty" json:"contact,omitempty"`
	SessionType  *int `yaml:"session_type,omitempty" json:"session_type,omitempty"`
	PublicName   *int `yaml:"public_name,omitempty" json:"public_name,omitempty"`
	Visible      *int `yaml:"visible,omitempty" json:"visible,omitempty"`
	ContactEmail *int `yaml:"contact_email,omitempty" json:"contact_email,omitempty"`
	Notes        *int `yaml:"notes,omitempty" json:"notes,omitempty"`
	Width        *int `yaml:"width,omitempty" json:"width,omitempty"`
}

// FeedConfig describes the published sheet export.
type FeedConfig struct {
	// ID is used in logs.
	ID string `yaml:"id" json:"id"`
	// URL is the CSV or JSON export endpoint.
	URL string `yaml:"url" json:"url"`
	// Format is auto, csv or json.
	Format string `yaml:"format" json:"format"`
	// Schema names a known column layout (v1, v2).
	Schema string `yaml:"schema" json:"schema"`
	// Columns optionally overrides single positions of Schema.
	Columns *Columns `yaml:"columns,omitempty" json:"columns,omitempty"`
	// RoomFilter switches the room allow-list off (false) while keeping
	// Rooms in the file. Unset means on whenever Rooms is non-empty.
	RoomFilter *bool `yaml:"room_filter,omitempty" json:"room_filter,omitempty"`
	// Rooms is the allow-list of room labels.
	Rooms []string `yaml:"rooms,omitempty" json:"rooms,omitempty"`
	// CacheFallback serves the last downloaded copy when the sheet is
	// unreachable.
	CacheFallback bool `yaml:"cache_fallback" json:"cache_fallback"`
}

// StyleRule adds a CSS class to sessions whose public name contains any of
// Match (case-insensitive).
type StyleRule struct {
	Class string   `yaml:"class" json:"class"`
	Match []string `yaml:"match" json:"match"`
}

// CaptureConfig controls the headless browser screenshot.
type CaptureConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Output  string `yaml:"output" json:"output"`
	Width   int    `yaml:"width" json:"width"`
	Height  int    `yaml:"height" json:"height"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the web UI.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	// Password is plain text, or a bcrypt hash ("$2a$...", "$2b$...").
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used for "today" and sheet dates.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a standard 5-field cron spec for feed refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LogLevel is debug, info or error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// CacheDir holds downloaded feed bodies and HTTP validators.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// CacheTTLSeconds keeps parsed sessions in memory between requests.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`

	Feed    FeedConfig    `yaml:"feed" json:"feed"`
	Styles  []StyleRule   `yaml:"styles" json:"styles"`
	Capture CaptureConfig `yaml:"capture" json:"capture"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultStyles mirrors the activity colours of the public timetable.
func DefaultStyles() []StyleRule {
	return []StyleRule{
		{Class: "table-tennis", Match: []string{"table tennis", "tt "}},
		{Class: "pickleball", Match: []string{"pickleball"}},
		{Class: "yoga", Match: []string{"yoga"}},
		{Class: "taekwondo", Match: []string{"taekwondo"}},
		{Class: "cheerleading", Match: []string{"cheerleading"}},
		{Class: "footsteps", Match: []string{"footsteps"}},
		{Class: "tournament", Match: []string{"tournament", "edttl", "tte "}},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          defaultListen,
		Timezone:        defaultTimezone,
		RefreshCron:     defaultRefreshCron,
		LogLevel:        "info",
		CacheDir:        defaultCacheDir,
		CacheTTLSeconds: defaultCacheTTL,
		Feed: FeedConfig{
			ID:     "public-calendar",
			Format: string(feed.FormatAuto),
			Schema: "v1",
		},
		Styles: DefaultStyles(),
		Capture: CaptureConfig{
			Output: "/var/lib/hallcal/preview.png",
			Width:  1280,
			Height: 800,
		},
	}
}

// Normalize fills in missing values and replaces invalid ones with defaults
// so that partial or older configs still work.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		appLog.Error("invalid refresh cron; using default", err, "refresh", c.RefreshCron)
		c.RefreshCron = defaultRefreshCron
	}
	if _, ok := appLog.ParseLevel(c.LogLevel); !ok || c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.CacheTTLSeconds < 0 {
		c.CacheTTLSeconds = 0
	}

	if c.Feed.ID == "" {
		c.Feed.ID = "public-calendar"
	}
	if f, ok := feed.ParseFormat(c.Feed.Format); ok {
		c.Feed.Format = string(f)
	} else {
		c.Feed.Format = string(feed.FormatAuto)
	}
	if s, ok := feed.SchemaByName(c.Feed.Schema); ok {
		c.Feed.Schema = s.Name
	} else {
		appLog.Error("unknown feed schema; using v1", errors.New("unknown schema"), "schema", c.Feed.Schema)
		c.Feed.Schema = "v1"
	}

	if c.Styles == nil {
		c.Styles = DefaultStyles()
	}
	if c.Capture.Output == "" {
		c.Capture.Output = "/var/lib/hallcal/preview.png"
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = 1280
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = 800
	}
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// CacheTTL is CacheTTLSeconds as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// FeedSchema builds the effective column layout from the named schema plus
// overrides, and validates it.
func (c *Config) FeedSchema() (feed.Schema, error) {
	s, ok := feed.SchemaByName(c.Feed.Schema)
	if !ok {
		return feed.Schema{}, fmt.Errorf("unknown feed schema %q (known: %s)", c.Feed.Schema, strings.Join(feed.SchemaNames(), ", "))
	}

	if cols := c.Feed.Columns; cols != nil {
		s.Name += "+custom"
		override(&s.Date, cols.Date)
		override(&s.Day, cols.Day)
		override(&s.Start, cols.Start)
		override(&s.End, cols.End)
		override(&s.Room, cols.Room)
		override(&s.Hirer, cols.Hirer)
		override(&s.Contact, cols.Contact)
		override(&s.SessionType, cols.SessionType)
		override(&s.PublicName, cols.PublicName)
		override(&s.Visible, cols.Visible)
		override(&s.ContactEmail, cols.ContactEmail)
		override(&s.Notes, cols.Notes)
		override(&s.Width, cols.Width)
	}
	if len(c.Feed.Rooms) > 0 {
		s.Rooms = append([]string(nil), c.Feed.Rooms...)
		s.RoomFilter = true
	}
	if c.Feed.RoomFilter != nil {
		s.RoomFilter = *c.Feed.RoomFilter
	}

	if err := s.Validate(); err != nil {
		return feed.Schema{}, err
	}
	return s, nil
}

func override(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// FeedFormat returns the configured payload format.
func (c *Config) FeedFormat() feed.Format {
	f, _ := feed.ParseFormat(c.Feed.Format)
	return f
}

// ApplyEnv loads a .env file from the working directory when present and
// applies HALLCAL_* overrides.
func (c *Config) ApplyEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		appLog.Error("failed to read .env", err)
	}
	if v := os.Getenv(EnvFeedURL); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvSchema); v != "" {
		c.Feed.Schema = v
	}
	c.Normalize()
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     permissions and returned.
//   - Otherwise the YAML is read and normalized.
//
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return ErrEmptyPath
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".hallcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience wrapper around the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
