package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Quote is the portfolio currency all markets trade against.
	Quote         string              `yaml:"quote"`
	State         StateConfig         `yaml:"state"`
	Markets       []MarketConfig      `yaml:"markets"`
	Price         PriceConfig         `yaml:"price"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type StateConfig struct {
	Dir string `yaml:"dir"`
}

type MarketConfig struct {
	Name     string  `yaml:"name"`
	Driver   string  `yaml:"driver"`
	URL      string  `yaml:"url"`
	WSURL    string  `yaml:"ws_url"`
	MakerFee Decimal `yaml:"maker_fee"`
	TakerFee Decimal `yaml:"taker_fee"`
}

type PriceConfig struct {
	BaseURL    string `yaml:"base_url"`
	Fiat       string `yaml:"fiat"`
	TimeoutSec int64  `yaml:"timeout_sec"`
	CacheSec   int64  `yaml:"cache_sec"`
}

type ObservabilityConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	APIBaseURL string `yaml:"api_base_url"`
	TimeoutSec int64  `yaml:"timeout_sec"`
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("config must contain a single YAML document")
		}
		return Config{}, err
	}
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Quote = strings.ToUpper(strings.TrimSpace(c.Quote))
	c.State.Dir = strings.TrimSpace(c.State.Dir)
	for i := range c.Markets {
		c.Markets[i].Name = strings.TrimSpace(c.Markets[i].Name)
		c.Markets[i].Driver = strings.ToLower(strings.TrimSpace(c.Markets[i].Driver))
		c.Markets[i].URL = strings.TrimSpace(c.Markets[i].URL)
		c.Markets[i].WSURL = strings.TrimSpace(c.Markets[i].WSURL)
	}
	c.Price.BaseURL = strings.TrimSpace(c.Price.BaseURL)
	c.Price.Fiat = strings.ToUpper(strings.TrimSpace(c.Price.Fiat))
	c.Observability.Telegram.BotToken = strings.TrimSpace(c.Observability.Telegram.BotToken)
	c.Observability.Telegram.ChatID = strings.TrimSpace(c.Observability.Telegram.ChatID)
	c.Observability.Telegram.APIBaseURL = strings.TrimSpace(c.Observability.Telegram.APIBaseURL)
}

func (c *Config) applyDefaults() {
	if c.Quote == "" {
		c.Quote = "BTC"
	}
	if c.State.Dir == "" {
		c.State.Dir = "state"
	}
	if c.Price.Fiat == "" {
		c.Price.Fiat = "USD"
	}
	if c.Price.TimeoutSec == 0 {
		c.Price.TimeoutSec = 10
	}
	if c.Price.CacheSec == 0 {
		c.Price.CacheSec = 5
	}
	if c.Observability.Telegram.APIBaseURL == "" {
		c.Observability.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if c.Observability.Telegram.TimeoutSec == 0 {
		c.Observability.Telegram.TimeoutSec = 10
	}
}

func (c Config) Validate() error {
	if !isValidCurrency(c.Quote) {
		return fmt.Errorf("quote must match [A-Z0-9], length 2..10")
	}
	if len(c.Markets) == 0 {
		return fmt.Errorf("at least one market is required")
	}
	seen := make(map[string]bool, len(c.Markets))
	for _, m := range c.Markets {
		if m.Name == "" {
			return fmt.Errorf("market name is required")
		}
		key := strings.ToLower(m.Name)
		if seen[key] {
			return fmt.Errorf("duplicate market %q", m.Name)
		}
		seen[key] = true
		if m.Driver == "" {
			return fmt.Errorf("market %s: driver is required", m.Name)
		}
		if m.URL != "" {
			if err := validateURL(m.URL, "http", "https"); err != nil {
				return fmt.Errorf("market %s: url %v", m.Name, err)
			}
		}
		if m.WSURL != "" {
			if err := validateURL(m.WSURL, "ws", "wss"); err != nil {
				return fmt.Errorf("market %s: ws_url %v", m.Name, err)
			}
		}
		if m.MakerFee.Cmp(decimal.Zero) < 0 || m.MakerFee.Cmp(decimal.NewFromInt(100)) >= 0 {
			return fmt.Errorf("market %s: maker_fee must be a percentage in [0, 100)", m.Name)
		}
		if m.TakerFee.Cmp(decimal.Zero) < 0 || m.TakerFee.Cmp(decimal.NewFromInt(100)) >= 0 {
			return fmt.Errorf("market %s: taker_fee must be a percentage in [0, 100)", m.Name)
		}
	}
	if c.Price.TimeoutSec < 1 || c.Price.TimeoutSec > 120 {
		return fmt.Errorf("price.timeout_sec must be between 1 and 120")
	}
	if c.Price.CacheSec < 1 || c.Price.CacheSec > 3600 {
		return fmt.Errorf("price.cache_sec must be between 1 and 3600")
	}
	if !isValidCurrency(c.Price.Fiat) {
		return fmt.Errorf("price.fiat must match [A-Z0-9], length 2..10")
	}
	if c.Price.BaseURL != "" {
		if err := validateURL(c.Price.BaseURL, "http", "https"); err != nil {
			return fmt.Errorf("price.base_url %v", err)
		}
	}
	if c.Observability.Telegram.Enabled {
		if c.Observability.Telegram.BotToken == "" {
			return fmt.Errorf("observability.telegram.bot_token is required when telegram enabled")
		}
		if c.Observability.Telegram.ChatID == "" {
			return fmt.Errorf("observability.telegram.chat_id is required when telegram enabled")
		}
		if c.Observability.Telegram.TimeoutSec < 1 || c.Observability.Telegram.TimeoutSec > 120 {
			return fmt.Errorf("observability.telegram.timeout_sec must be between 1 and 120")
		}
		if err := validateURL(c.Observability.Telegram.APIBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("observability.telegram.api_base_url %v", err)
		}
	}
	return nil
}

// Market returns the catalog entry for name, matched case-insensitively.
func (c Config) Market(name string) (MarketConfig, bool) {
	for _, m := range c.Markets {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return MarketConfig{}, false
}

func isValidCurrency(v string) bool {
	if len(v) < 2 || len(v) > 10 {
		return false
	}
	for _, r := range v {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
