// Package config is the storefront configuration: the core bot settings plus
// shop texts, payment providers, mail, storage and the HTTP listener.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	coredatabase "github.com/m3rciful/shopbot/core/database"
)

// ShopConfig holds the customer-facing texts and catalog source.
type ShopConfig struct {
	Name          string `yaml:"name" envconfig:"SHOP_NAME"`
	SupplierPhone string `yaml:"supplier_phone" envconfig:"SUPPLIER_PHONE"`
	InfoText      string `yaml:"info_text" envconfig:"SHOP_INFO_TEXT"`
	ContactsText  string `yaml:"contacts_text" envconfig:"SHOP_CONTACTS_TEXT"`
	// CatalogFile replaces the embedded catalog when set.
	CatalogFile string `yaml:"catalog_file" envconfig:"SHOP_CATALOG_FILE"`
	// Currency overrides the catalog currency.
	Currency string `yaml:"currency" envconfig:"SHOP_CURRENCY"`
}

// HTTPConfig configures the payment webhook listener.
type HTTPConfig struct {
	Listen string `yaml:"listen" envconfig:"HTTP_LISTEN"`
	Port   int    `yaml:"port" envconfig:"PORT"`
	// BaseURL is the public URL of this listener, used for checkout return links.
	BaseURL      string        `yaml:"base_url" envconfig:"WEBHOOK_URL"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"HTTP_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"HTTP_WRITE_TIMEOUT"`
}

// Addr is the listen address.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Listen, h.Port)
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key" envconfig:"STRIPE_SECRET_KEY"`
	WebhookSecret string `yaml:"webhook_secret" envconfig:"STRIPE_ENDPOINT_SECRET"`
}

type PayPalConfig struct {
	ClientID     string `yaml:"client_id" envconfig:"PAYPAL_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" envconfig:"PAYPAL_CLIENT_SECRET"`
	WebhookID    string `yaml:"webhook_id" envconfig:"PAYPAL_WEBHOOK_ID"`
	Sandbox      bool   `yaml:"sandbox" envconfig:"PAYPAL_SANDBOX"`
}

type ManualConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"MANUAL_PAYMENT_ENABLED"`
	// Instructions may contain {order_id}.
	Instructions string `yaml:"instructions" envconfig:"MANUAL_PAYMENT_INSTRUCTIONS"`
}

// PaymentsConfig lists the providers; each one is enabled by its credentials.
type PaymentsConfig struct {
	Timeout time.Duration `yaml:"timeout" envconfig:"PAYMENTS_TIMEOUT"`
	Stripe  StripeConfig  `yaml:"stripe"`
	PayPal  PayPalConfig  `yaml:"paypal"`
	Manual  ManualConfig  `yaml:"manual"`
}

// StripeEnabled reports whether Stripe checkout can be offered.
func (p PaymentsConfig) StripeEnabled() bool { return strings.TrimSpace(p.Stripe.SecretKey) != "" }

// PayPalEnabled reports whether PayPal checkout can be offered.
func (p PaymentsConfig) PayPalEnabled() bool {
	return strings.TrimSpace(p.PayPal.ClientID) != "" && strings.TrimSpace(p.PayPal.ClientSecret) != ""
}

// ManualEnabled reports whether the manually confirmed method is offered.
func (p PaymentsConfig) ManualEnabled() bool {
	return p.Manual.Enabled && strings.TrimSpace(p.Manual.Instructions) != ""
}

// MailConfig is the SMTP relay for notification emails.
type MailConfig struct {
	Host          string        `yaml:"host" envconfig:"MAIL_HOST"`
	Port          int           `yaml:"port" envconfig:"MAIL_PORT"`
	Username      string        `yaml:"username" envconfig:"EMAIL_USER"`
	Password      string        `yaml:"password" envconfig:"EMAIL_PASS"`
	From          string        `yaml:"from" envconfig:"MAIL_FROM"`
	OperatorEmail string        `yaml:"operator_email" envconfig:"ADMIN_EMAIL"`
	TLS           string        `yaml:"tls" envconfig:"MAIL_TLS"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"MAIL_TIMEOUT"`
}

// Enabled reports whether email can be sent.
func (m MailConfig) Enabled() bool {
	return strings.TrimSpace(m.Host) != "" && strings.TrimSpace(m.From) != ""
}

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// StorageConfig selects the session and order backends.
type StorageConfig struct {
	Sessions   string        `yaml:"sessions" envconfig:"STORAGE_SESSIONS"`
	Orders     string        `yaml:"orders" envconfig:"STORAGE_ORDERS"`
	SessionTTL time.Duration `yaml:"session_ttl" envconfig:"STORAGE_SESSION_TTL"`
}

// Config is the full storefront configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Shop     ShopConfig             `yaml:"shop"`
	HTTP     HTTPConfig             `yaml:"http"`
	Payments PaymentsConfig         `yaml:"payments"`
	Mail     MailConfig             `yaml:"mail"`
	Storage  StorageConfig          `yaml:"storage"`
	Database coredatabase.Config    `yaml:"database"`
	Redis    coreconfig.RedisConfig `yaml:"redis"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Load reads YAML and environment, applies defaults and validates.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Payments.Timeout <= 0 {
		c.Payments.Timeout = 15 * time.Second
	}
	if c.Mail.Username != "" && c.Mail.Host == "" {
		c.Mail.Host = "smtp.gmail.com"
	}
	if c.Mail.From == "" {
		c.Mail.From = c.Mail.Username
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	if c.Mail.Timeout <= 0 {
		c.Mail.Timeout = 15 * time.Second
	}
	c.Storage.Sessions = strings.ToLower(strings.TrimSpace(c.Storage.Sessions))
	if c.Storage.Sessions == "" {
		c.Storage.Sessions = BackendMemory
	}
	c.Storage.Orders = strings.ToLower(strings.TrimSpace(c.Storage.Orders))
	if c.Storage.Orders == "" {
		c.Storage.Orders = BackendMemory
	}
	c.HTTP.BaseURL = strings.TrimRight(strings.TrimSpace(c.HTTP.BaseURL), "/")
}

// Validate rejects malformed values and a configuration without any usable
// payment method.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be in 1..65535, got %d", c.HTTP.Port)
	}
	if c.Telegram.RunMode == coreconfig.RunModeWebhook && c.Webhook.Port == c.HTTP.Port {
		return fmt.Errorf("http.port %d collides with webhook.port", c.HTTP.Port)
	}
	if c.HTTP.BaseURL != "" {
		u, err := url.Parse(c.HTTP.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("http.base_url must be an absolute http(s) URL, got %q (WEBHOOK_URL)", c.HTTP.BaseURL)
		}
	}

	p := c.Payments
	if !p.StripeEnabled() && !p.PayPalEnabled() && !p.ManualEnabled() {
		return fmt.Errorf("no payment method configured: set STRIPE_SECRET_KEY, PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET, or payments.manual")
	}
	if p.StripeEnabled() && strings.TrimSpace(p.Stripe.WebhookSecret) == "" {
		return fmt.Errorf("payments.stripe.webhook_secret is required with stripe.secret_key; paid sessions arrive only by webhook (STRIPE_ENDPOINT_SECRET)")
	}
	if (strings.TrimSpace(p.PayPal.ClientID) == "") != (strings.TrimSpace(p.PayPal.ClientSecret) == "") {
		return fmt.Errorf("paypal needs both client_id and client_secret (PAYPAL_CLIENT_ID, PAYPAL_CLIENT_SECRET)")
	}
	if p.PayPalEnabled() && strings.TrimSpace(p.PayPal.WebhookID) == "" {
		return fmt.Errorf("payments.paypal.webhook_id is required with paypal credentials; approved orders are captured by webhook (PAYPAL_WEBHOOK_ID)")
	}
	if (p.StripeEnabled() || p.PayPalEnabled()) && c.HTTP.BaseURL == "" {
		return fmt.Errorf("http.base_url is required for hosted checkout return links (WEBHOOK_URL)")
	}
	if p.Manual.Enabled && strings.TrimSpace(p.Manual.Instructions) == "" {
		return fmt.Errorf("payments.manual.instructions is required when manual payments are enabled")
	}

	if c.Mail.Port <= 0 || c.Mail.Port > 65535 {
		return fmt.Errorf("mail.port must be in 1..65535, got %d", c.Mail.Port)
	}
	switch strings.ToLower(c.Mail.TLS) {
	case "", "mandatory", "opportunistic", "none":
	default:
		return fmt.Errorf("invalid mail.tls %q; allowed: mandatory, opportunistic, none", c.Mail.TLS)
	}

	switch c.Storage.Sessions {
	case BackendMemory:
	case BackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("redis.addr is required when storage.sessions is 'redis' (REDIS_ADDR)")
		}
	default:
		return fmt.Errorf("invalid storage.sessions %q; allowed: memory, redis", c.Storage.Sessions)
	}
	switch c.Storage.Orders {
	case BackendMemory:
	case BackendPostgres:
		if strings.TrimSpace(c.Database.Host) == "" || strings.TrimSpace(c.Database.Name) == "" {
			return fmt.Errorf("database.host and database.name are required when storage.orders is 'postgres'")
		}
	default:
		return fmt.Errorf("invalid storage.orders %q; allowed: memory, postgres", c.Storage.Orders)
	}
	if c.Storage.SessionTTL < 0 {
		return fmt.Errorf("storage.session_ttl must be >= 0")
	}
	return nil
}

// Missing lists absent optional settings and the feature each one disables.
func (c *Config) Missing() map[string]string {
	out := c.Config.Missing()
	p := c.Payments
	if !p.StripeEnabled() {
		out["STRIPE_SECRET_KEY"] = "stripe payments"
	}
	if !p.PayPalEnabled() {
		if p.PayPal.ClientID == "" {
			out["PAYPAL_CLIENT_ID"] = "paypal payments"
		}
		if p.PayPal.ClientSecret == "" {
			out["PAYPAL_CLIENT_SECRET"] = "paypal payments"
		}
	}
	if !c.Mail.Enabled() {
		out["EMAIL_USER"] = "email notifications"
	} else if c.Mail.Username != "" && c.Mail.Password == "" {
		out["EMAIL_PASS"] = "smtp authentication"
	}
	if c.Mail.OperatorEmail == "" {
		out["ADMIN_EMAIL"] = "operator email"
	}
	if c.Shop.SupplierPhone == "" {
		out["SUPPLIER_PHONE"] = "supplier phone in payment confirmations"
	}
	return out
}
