package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Server holds the HTTP listener configuration.
type Server struct {
	ListenAddress  string   `yaml:"listenAddress"`
	TLSCertFile    string   `yaml:"tlsCertFile"`
	TLSKeyFile     string   `yaml:"tlsKeyFile"`
	TrustedProxies []string `yaml:"trustedProxies"` // IPs/CIDRs to trust for X-Forwarded-For headers
	// PublicBaseURL is the externally reachable base URL of this service,
	// used to build the OAuth redirect URL and the re-authorization action
	// link in operator notifications (e.g. "https://relay.example.com").
	PublicBaseURL string `yaml:"publicBaseURL"`
	// StaticDir is the directory holding the static result pages served
	// under /pages. Defaults to "./web/static".
	StaticDir string `yaml:"staticDir"`
}

// Webhook configures authentication for the inbound support webhook.
type Webhook struct {
	// Secret is the shared secret accepted either verbatim in the
	// X-Webhook-Secret header or as the HMAC key of a bearer JWT.
	Secret string `yaml:"secret"`
}

// Telegram configures the operator notification channel.
type Telegram struct {
	BotToken string `yaml:"botToken"`
	ChatID   int64  `yaml:"chatID"`
	// APIBaseURL overrides the Bot API endpoint, mainly for tests.
	APIBaseURL string `yaml:"apiBaseURL"`
}

// Google configures the OAuth2 client used for the Gmail provider and the
// re-authorization flow.
type Google struct {
	ClientID     string `yaml:"clientID"`
	ClientSecret string `yaml:"clientSecret"`
	// AllowedAccount is the single mailbox address permitted to complete
	// the re-authorization flow. The flow is intentionally single-tenant.
	AllowedAccount string `yaml:"allowedAccount"`
}

// Mail configures the outbound confirmation mails.
type Mail struct {
	SenderAddress string `yaml:"senderAddress"`
	SenderName    string `yaml:"senderName"`
	BrandingName  string `yaml:"brandingName"`
}

// Credentials selects where the durable refresh-credential record lives.
type Credentials struct {
	// Backend is "file" (default) or "keyring".
	Backend string `yaml:"backend"`
	// Path is the credential file location for the file backend.
	Path string `yaml:"path"`
	// KeyringService is the OS keyring service name for the keyring backend.
	KeyringService string `yaml:"keyringService"`
}

// Queue configures the fallback queue and delivery retry behavior.
type Queue struct {
	// DrainInterval is how often the fallback queue retries everything it
	// holds (e.g. "10m").
	DrainInterval string `yaml:"drainInterval"`
	// MaxAttempts bounds the in-place retries of a single delivery.
	MaxAttempts int `yaml:"maxAttempts"`
}

// Audit configures the optional Kafka audit sink. Leaving Brokers empty
// disables the sink; audit events still go to the structured log.
type Audit struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// CORS configures allowed browser origins for the API.
type CORS struct {
	AllowOrigins []string `yaml:"allowOrigins"`
}

type Config struct {
	Server      Server      `yaml:"server"`
	Webhook     Webhook     `yaml:"webhook"`
	Telegram    Telegram    `yaml:"telegram"`
	Google      Google      `yaml:"google"`
	Mail        Mail        `yaml:"mail"`
	Credentials Credentials `yaml:"credentials"`
	Queue       Queue       `yaml:"queue"`
	Audit       Audit       `yaml:"audit"`
	CORS        CORS        `yaml:"cors"`
}

// Load loads the relay configuration from a file path.
// If configPath is empty, defaults to "./config.yaml".
// The config file path can also be overridden via the SUPPORT_RELAY_CONFIG
// environment variable. Secrets can be supplied via environment variables
// instead of the file (TELEGRAM_BOT_TOKEN, WEBHOOK_SECRET,
// GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET).
func Load(configPath ...string) (Config, error) {
	var path string

	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	} else if env := os.Getenv("SUPPORT_RELAY_CONFIG"); env != "" {
		path = env
	} else {
		path = "./config.yaml"
	}

	var config Config

	content, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("trying to open support-relay config file %s: %v", path, err)
	}

	err = yaml.Unmarshal(content, &config)
	if err != nil {
		return config, fmt.Errorf("error unmarshaling YAML %s: %v", path, err)
	}

	config.applyEnvOverrides()
	return config, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		c.Webhook.Secret = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		c.Google.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		c.Google.ClientSecret = v
	}
}

// Defaults fills in defaults for optional settings.
func (c *Config) Defaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":8080"
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "./web/static"
	}
	if c.Credentials.Backend == "" {
		c.Credentials.Backend = "file"
	}
	if c.Credentials.Path == "" {
		c.Credentials.Path = "./credentials.json"
	}
	if c.Credentials.KeyringService == "" {
		c.Credentials.KeyringService = "support-relay"
	}
	if c.Queue.DrainInterval == "" {
		c.Queue.DrainInterval = "10m"
	}
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Mail.SenderName == "" && c.Mail.BrandingName != "" {
		c.Mail.SenderName = c.Mail.BrandingName
	}
	if c.Audit.Topic == "" {
		c.Audit.Topic = "support-relay.audit"
	}
}

// Validate checks the settings the process cannot start without. Missing
// Google credentials are deliberately not fatal: the relay degrades to
// credential-less mode and the re-authorization flow reports itself as
// unconfigured.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.botToken is required (or TELEGRAM_BOT_TOKEN)")
	}
	if c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chatID is required")
	}
	if c.Webhook.Secret == "" {
		return fmt.Errorf("webhook.secret is required (or WEBHOOK_SECRET)")
	}
	return nil
}

// DrainInterval parses the configured drain interval, falling back to ten
// minutes on malformed input.
func (c *Config) DrainInterval() time.Duration {
	d, err := time.ParseDuration(c.Queue.DrainInterval)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}
