// Package config loads and saves ~/.threadline/config.json.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Layout is passed through to rendering untouched.
type Layout string

const (
	LayoutCompact  Layout = "compact"
	LayoutExpanded Layout = "expanded"
)

// FeedKind says where a configured feed comes from.
type FeedKind string

const (
	KindServer FeedKind = "server"
	KindRSS    FeedKind = "rss"
)

// Config is the persistent application configuration
type Config struct {
	Server   ServerConfig `json:"server"`
	Settings Settings     `json:"settings"`
	Scroll   ScrollConfig `json:"scroll"`
	Feeds    []FeedConfig `json:"feeds"`
}

// ServerConfig locates the API.
type ServerConfig struct {
	BaseURL           string  `json:"base_url"`
	Token             string  `json:"token,omitempty"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

// Settings are the device/user preferences the feed engine reads.
type Settings struct {
	InfiniteScrollingDisabled bool   `json:"infinite_scrolling_disabled"`
	HideDownvotes             bool   `json:"hide_downvotes"`
	FeedLayout                Layout `json:"feed_layout"`
}

// ScrollConfig tunes paging.
type ScrollConfig struct {
	PrefetchMargin int `json:"prefetch_margin"` // rows before the end that trigger a fetch
	PageSize       int `json:"page_size"`
}

// FeedConfig defines one tab.
type FeedConfig struct {
	Name     string            `json:"name"`
	Kind     FeedKind          `json:"kind"`
	Endpoint string            `json:"endpoint,omitempty"` // server feeds
	URL      string            `json:"url,omitempty"`      // rss feeds
	Sorts    []string          `json:"sorts,omitempty"`    // first is the default; s cycles
	Filters  map[string]string `json:"filters,omitempty"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:           "http://localhost:8080/api",
			RequestsPerSecond: 4,
		},
		Settings: Settings{
			FeedLayout: LayoutExpanded,
		},
		Scroll: ScrollConfig{
			PrefetchMargin: 5,
			PageSize:       20,
		},
		Feeds: []FeedConfig{
			{Name: "Home", Kind: KindServer, Endpoint: "/feed/home", Sorts: []string{"hot", "new", "top"}},
			{Name: "Inbox", Kind: KindServer, Endpoint: "/notifications"},
			{Name: "Saved", Kind: KindServer, Endpoint: "/lists/saved"},
			{Name: "Communities", Kind: KindServer, Endpoint: "/communities", Sorts: []string{"active", "new"}},
			{Name: "Lobsters", Kind: KindRSS, URL: "https://lobste.rs/rss"},
		},
	}
}

// Dir is the application directory, ~/.threadline.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".threadline")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(Dir(), "config.json")
}

// Load reads the default config file.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads config from path, or returns defaults when it does not
// exist. Fields missing from the file keep their default values.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.AutoPopulateFromEnv()
			return cfg, nil
		}
		return nil, err
	}

	defaults := cfg.Feeds
	cfg.Feeds = nil
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Feeds) == 0 {
		cfg.Feeds = defaults
	}
	cfg.AutoPopulateFromEnv()
	return cfg, nil
}

// Save writes config to the default path.
func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

// SaveTo writes config to path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600) // holds the API token
}

// AutoPopulateFromEnv overrides server settings from the environment.
func (c *Config) AutoPopulateFromEnv() {
	if v := os.Getenv("THREADLINE_SERVER"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("THREADLINE_TOKEN"); v != "" {
		c.Server.Token = v
	}
}

// LoadKeysFromFile reads export KEY=value lines (a keys.sh) and applies the
// threadline ones.
func (c *Config) LoadKeysFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimPrefix(strings.TrimSpace(line), "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"'`)

		switch key {
		case "THREADLINE_SERVER":
			c.Server.BaseURL = value
		case "THREADLINE_TOKEN":
			c.Server.Token = value
		}
	}

	return nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Settings.FeedLayout {
	case LayoutCompact, LayoutExpanded:
	default:
		errs = append(errs, fmt.Errorf("feed_layout %q: want compact or expanded", c.Settings.FeedLayout))
	}
	if len(c.Feeds) == 0 {
		errs = append(errs, errors.New("no feeds configured"))
	}

	seen := make(map[string]bool)
	needServer := false
	for i, f := range c.Feeds {
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("feeds[%d]: name is required", i))
		} else if seen[f.Name] {
			errs = append(errs, fmt.Errorf("feeds[%d]: duplicate name %q", i, f.Name))
		}
		seen[f.Name] = true

		switch f.Kind {
		case KindServer:
			needServer = true
			if f.Endpoint == "" {
				errs = append(errs, fmt.Errorf("feed %q: endpoint is required", f.Name))
			}
		case KindRSS:
			if f.URL == "" {
				errs = append(errs, fmt.Errorf("feed %q: url is required", f.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("feed %q: unknown kind %q", f.Name, f.Kind))
		}
	}
	if needServer && c.Server.BaseURL == "" {
		errs = append(errs, errors.New("server.base_url is required for server feeds"))
	}

	return errors.Join(errs...)
}

// Sort returns the active sort for feed given how many times it was cycled.
func (f FeedConfig) Sort(cycle int) string {
	if len(f.Sorts) == 0 {
		return ""
	}
	return f.Sorts[cycle%len(f.Sorts)]
}
