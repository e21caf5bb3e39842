package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"meta-pixel-relay/internal/model"
)

// Content-id format preferences for catalog matching.
const (
	ContentIDSKUFallback = "sku_fallback"
	ContentIDProductID   = "product_id"
)

var pixelIDPattern = regexp.MustCompile(`^\d{15,16}$`)

// Settings is the persisted option set owned by the settings store. It is a
// value object: components receive copies and never mutate shared state.
type Settings struct {
	PixelEnabled    bool   `yaml:"pixel_enabled"`
	CAPIEnabled     bool   `yaml:"capi_enabled"`
	TestMode        bool   `yaml:"test_mode"`
	TestEventCode   string `yaml:"test_event_code"`
	EnableLogging   bool   `yaml:"enable_logging"`
	PixelID         string `yaml:"pixel_id"`
	AccessToken     string `yaml:"access_token"`
	APIVersion      string `yaml:"api_version"`
	ContentIDFormat string `yaml:"content_id_format"`

	Events     EventToggles `yaml:"events"`
	DefaultGeo GeoDefaults  `yaml:"default_geo"`
}

// EventToggles enables or disables tracking per business event type.
type EventToggles struct {
	PageView             bool `yaml:"pageview"`
	ViewContent          bool `yaml:"viewcontent"`
	ViewCategory         bool `yaml:"viewcategory"`
	AddToWishlist        bool `yaml:"addtowishlist"`
	AddToCart            bool `yaml:"addtocart"`
	InitiateCheckout     bool `yaml:"initiatecheckout"`
	AddPaymentInfo       bool `yaml:"addpaymentinfo"`
	Purchase             bool `yaml:"purchase"`
	Search               bool `yaml:"search"`
	Lead                 bool `yaml:"lead"`
	CompleteRegistration bool `yaml:"completeregistration"`
}

// GeoDefaults are optional fallback location values used to keep match rate
// acceptable for single-region deployments. Empty fields mean no fallback is
// fabricated.
type GeoDefaults struct {
	City    string `yaml:"city"`
	State   string `yaml:"state"`
	Zip     string `yaml:"zip"`
	Country string `yaml:"country"`
}

// DefaultSettings mirrors the option defaults of a fresh install.
func DefaultSettings() Settings {
	return Settings{
		EnableLogging:   true,
		APIVersion:      "v17.0",
		ContentIDFormat: ContentIDSKUFallback,
		Events: EventToggles{
			PageView:             true,
			ViewContent:          true,
			ViewCategory:         true,
			AddToWishlist:        true,
			AddToCart:            true,
			InitiateCheckout:     true,
			AddPaymentInfo:       true,
			Purchase:             true,
			Search:               true,
			Lead:                 false,
			CompleteRegistration: false,
		},
	}
}

// EventEnabled reports whether tracking is on for the given event type.
func (s Settings) EventEnabled(name model.EventName) bool {
	switch name {
	case model.PageView:
		return s.Events.PageView
	case model.ViewContent:
		return s.Events.ViewContent
	case model.ViewCategory:
		return s.Events.ViewCategory
	case model.AddToWishlist:
		return s.Events.AddToWishlist
	case model.AddToCart:
		return s.Events.AddToCart
	case model.InitiateCheckout:
		return s.Events.InitiateCheckout
	case model.AddPaymentInfo:
		return s.Events.AddPaymentInfo
	case model.Purchase:
		return s.Events.Purchase
	case model.Search:
		return s.Events.Search
	case model.Lead:
		return s.Events.Lead
	case model.CompleteRegistration:
		return s.Events.CompleteRegistration
	default:
		return false
	}
}

// ValidatePixelID checks the 15-16 digit pixel identifier format.
func ValidatePixelID(id string) error {
	if !pixelIDPattern.MatchString(id) {
		return fmt.Errorf("pixel id must be 15-16 digits, got %q", id)
	}
	return nil
}

// Normalize fills unset enum-like fields with their defaults.
func (s Settings) Normalize() Settings {
	if s.APIVersion == "" {
		s.APIVersion = "v17.0"
	}
	if s.ContentIDFormat != ContentIDProductID {
		s.ContentIDFormat = ContentIDSKUFallback
	}
	return s
}

// Config bundles process-level configuration sourced from environment
// variables with the reloadable persisted settings.
type Config struct {
	ListenAddr       string
	LogPath          string
	LogMaxBytes      int64
	LogKeepLines     int
	WebhookSecret    string
	AdminToken       string
	CORSAllowOrigins []string
	BotUserAgents    []string
	SettingsPath     string
	AsyncDelivery    bool
	QueueSize        int
	SendTimeout      time.Duration

	mu       sync.RWMutex
	settings Settings
	store    Store
}

// Load parses process environment variables, opens the settings store and
// reads the persisted option set. A missing settings file yields defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:       getenv("RELAY_ADDR", ":8080"),
		LogPath:          getenv("RELAY_LOG_PATH", "log/relay-capi.log"),
		LogMaxBytes:      int64(atoiDefault("RELAY_LOG_MAX_BYTES", 10*1024*1024)),
		LogKeepLines:     atoiDefault("RELAY_LOG_KEEP_LINES", 1000),
		WebhookSecret:    os.Getenv("RELAY_WEBHOOK_SECRET"),
		AdminToken:       os.Getenv("RELAY_ADMIN_TOKEN"),
		CORSAllowOrigins: splitAndTrim(getenv("RELAY_CORS_ALLOW_ORIGINS", "*")),
		BotUserAgents:    splitAndTrim(getenv("RELAY_BOT_UA_DENYLIST", "bot,crawler,spider")),
		SettingsPath:     getenv("RELAY_SETTINGS_PATH", "config/settings.yml"),
		AsyncDelivery:    boolDefault("RELAY_ASYNC_DELIVERY", false),
		QueueSize:        atoiDefault("RELAY_QUEUE_SIZE", 256),
		SendTimeout:      durationDefault("RELAY_SEND_TIMEOUT_MS", 30000),
	}
	cfg.store = NewFileStore(cfg.SettingsPath)
	if err := cfg.Reload(); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return cfg, nil
}

// Settings returns a copy of the current persisted option set.
func (c *Config) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Reload re-reads the option set from the store, e.g. after a settings save.
func (c *Config) Reload() error {
	loaded, err := c.store.Load()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.settings = loaded.Normalize()
	c.mu.Unlock()
	return nil
}

// UpdateSettings validates, persists and swaps in a new option set.
func (c *Config) UpdateSettings(s Settings) error {
	s = s.Normalize()
	if s.PixelID != "" {
		if err := ValidatePixelID(s.PixelID); err != nil {
			return err
		}
	}
	if err := c.store.Save(s); err != nil {
		return err
	}
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
	return nil
}

// SetStore swaps the backing settings store, mainly for tests.
func (c *Config) SetStore(store Store) {
	c.mu.Lock()
	c.store = store
	c.mu.Unlock()
}

func getenv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return def
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func atoiDefault(key string, def int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func boolDefault(key string, def bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func durationDefault(key string, defMS int) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return time.Duration(defMS) * time.Millisecond
}
