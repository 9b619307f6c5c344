package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/enquirywitch/enquirywitch/internal/markup"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up next to a story.
const FileName = "enquirywitch.yaml"

// Config represents the enquirywitch configuration
type Config struct {
	Story    StoryConfig    `yaml:"story"`
	Server   ServerConfig   `yaml:"server"`
	Form     FormConfig     `yaml:"form"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Store    StoreConfig    `yaml:"store"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StoryConfig selects the story and the markup switches applied to it
type StoryConfig struct {
	Path    string         `yaml:"path,omitempty"` // Twine HTML file or passage directory
	Options markup.Options `yaml:"options"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port       int              `yaml:"port" validate:"min=0,max=65535"`
	Host       string           `yaml:"host"`
	Debug      bool             `yaml:"debug"`
	Watch      bool             `yaml:"watch"`
	SessionTTL string           `yaml:"session_ttl,omitempty" validate:"omitempty,duration"` // Idle session lifetime. Default: 2h
	CORS       *CORSConfig      `yaml:"cors,omitempty"`
	RateLimit  *RateLimitConfig `yaml:"rate_limit,omitempty"`
	AdminToken string           `yaml:"admin_token,omitempty"` // Bearer token for the submissions archive (env vars expanded)
}

// CORSConfig holds CORS configuration for the API
type CORSConfig struct {
	Origins []string `yaml:"origins,omitempty"` // Allowed origins (e.g., ["http://localhost:3000", "*"])
}

// RateLimitConfig limits submissions per client IP
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" validate:"gte=0"` // Default: 1
	Burst             int     `yaml:"burst,omitempty" validate:"gte=0"`               // Default: 5
	MaxTrackedIPs     int     `yaml:"max_tracked_ips,omitempty" validate:"gte=0"`     // Default: 10000
}

// FormConfig describes where submissions go and how they are screened
type FormConfig struct {
	EnablePreview bool   `yaml:"enable_preview"` // Navigate to the target without sending
	PostURL       string `yaml:"post_url,omitempty" validate:"omitempty,url"`
	BackupEmail   string `yaml:"backup_email,omitempty" validate:"omitempty,email"`
	// Allow post_url and captcha.url to point at internal networks
	AllowPrivateEndpoints bool           `yaml:"allow_private_endpoints"`
	MinFillTime           string         `yaml:"min_fill_time,omitempty" validate:"omitempty,duration"` // Default: 10s
	MaxUploadSize         int64          `yaml:"max_upload_size,omitempty" validate:"gte=0"`            // Bytes. Default: 5MB
	Captcha               *CaptchaConfig `yaml:"captcha,omitempty"`
}

// CaptchaConfig configures the challenge shown to readers the spam check
// rejected
type CaptchaConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty" validate:"required_if=Enabled true,omitempty,url"`
	SiteKey string `yaml:"site_key,omitempty" validate:"required_if=Enabled true"`
}

// DeliveryConfig controls how submissions reach their outputs
type DeliveryConfig struct {
	Timeout string         `yaml:"timeout,omitempty" validate:"omitempty,duration"` // Default: 10s
	Retry   *RetryConfig   `yaml:"retry,omitempty"`
	Circuit *CircuitConfig `yaml:"circuit,omitempty"`
	SMTP    *SMTPConfig    `yaml:"smtp,omitempty"`
}

// RetryConfig configures retry behavior for deliveries
type RetryConfig struct {
	MaxRetries int    `yaml:"max_retries,omitempty"` // Maximum retry attempts (default: 3)
	BaseDelay  string `yaml:"base_delay,omitempty" validate:"omitempty,duration"`
	MaxDelay   string `yaml:"max_delay,omitempty" validate:"omitempty,duration"`
}

// CircuitConfig configures the circuit breaker around the webhook
type CircuitConfig struct {
	FailureThreshold int    `yaml:"failure_threshold,omitempty" validate:"gte=0"`
	SuccessThreshold int    `yaml:"success_threshold,omitempty" validate:"gte=0"`
	Timeout          string `yaml:"timeout,omitempty" validate:"omitempty,duration"`
}

// SMTPConfig holds the mail server used for backup email. Host, user and
// password support environment variable expansion.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port,omitempty" validate:"min=0,max=65535"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	From     string `yaml:"from,omitempty" validate:"omitempty,email"`
}

// StoreConfig selects where submissions and save slots are kept
type StoreConfig struct {
	Type string `yaml:"type" validate:"oneof=memory sqlite postgres bolt"`
	DSN  string `yaml:"dsn,omitempty" validate:"required_unless=Type memory"` // File path or connection string (env vars expanded)
}

// GetSessionTTL returns the idle session lifetime (default: 2h)
func (c ServerConfig) GetSessionTTL() time.Duration {
	return parseDuration(c.SessionTTL, 2*time.Hour)
}

// GetCORSOrigins returns the configured CORS origins, or nil if not configured
func (c ServerConfig) GetCORSOrigins() []string {
	if c.CORS == nil {
		return nil
	}
	return c.CORS.Origins
}

// GetAdminToken returns the archive token with environment variable
// expansion. Empty disables the archive endpoint.
func (c ServerConfig) GetAdminToken() string {
	return os.ExpandEnv(c.AdminToken)
}

// GetRateLimitRPS returns the submission rate limit in requests per second (default: 1)
func (c ServerConfig) GetRateLimitRPS() float64 {
	if c.RateLimit == nil || c.RateLimit.RequestsPerSecond <= 0 {
		return 1
	}
	return c.RateLimit.RequestsPerSecond
}

// GetRateLimitBurst returns the burst size (default: 5)
func (c ServerConfig) GetRateLimitBurst() int {
	if c.RateLimit == nil || c.RateLimit.Burst <= 0 {
		return 5
	}
	return c.RateLimit.Burst
}

// GetMaxTrackedIPs returns how many client IPs the rate limiter remembers (default: 10000)
func (c ServerConfig) GetMaxTrackedIPs() int {
	if c.RateLimit == nil || c.RateLimit.MaxTrackedIPs <= 0 {
		return 10000
	}
	return c.RateLimit.MaxTrackedIPs
}

// GetMinFillTime returns how long a reader must spend before a submission
// is trusted (default: 10s)
func (c FormConfig) GetMinFillTime() time.Duration {
	return parseDuration(c.MinFillTime, 10*time.Second)
}

// GetMaxUploadSize returns the largest accepted upload (default: 5MB)
func (c FormConfig) GetMaxUploadSize() int64 {
	if c.MaxUploadSize <= 0 {
		return 5 << 20
	}
	return c.MaxUploadSize
}

// IsCaptchaEnabled returns true if the captcha fallback is switched on
func (c FormConfig) IsCaptchaEnabled() bool {
	return c.Captcha != nil && c.Captcha.Enabled
}

// GetTimeout returns the per-attempt delivery timeout (default: 10s)
func (c DeliveryConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

// GetRetryMaxRetries returns the max retries (default: 3, set to 0 to disable retries)
func (c DeliveryConfig) GetRetryMaxRetries() int {
	if c.Retry == nil || c.Retry.MaxRetries < 0 {
		return 3
	}
	return c.Retry.MaxRetries
}

// GetRetryBaseDelay returns the base delay (default: 100ms)
func (c DeliveryConfig) GetRetryBaseDelay() time.Duration {
	if c.Retry == nil {
		return 100 * time.Millisecond
	}
	return parseDuration(c.Retry.BaseDelay, 100*time.Millisecond)
}

// GetRetryMaxDelay returns the max delay (default: 5s)
func (c DeliveryConfig) GetRetryMaxDelay() time.Duration {
	if c.Retry == nil {
		return 5 * time.Second
	}
	return parseDuration(c.Retry.MaxDelay, 5*time.Second)
}

// GetCircuitFailureThreshold returns failures before the circuit opens (default: 5)
func (c DeliveryConfig) GetCircuitFailureThreshold() int {
	if c.Circuit == nil || c.Circuit.FailureThreshold <= 0 {
		return 5
	}
	return c.Circuit.FailureThreshold
}

// GetCircuitSuccessThreshold returns successes needed to close the circuit (default: 2)
func (c DeliveryConfig) GetCircuitSuccessThreshold() int {
	if c.Circuit == nil || c.Circuit.SuccessThreshold <= 0 {
		return 2
	}
	return c.Circuit.SuccessThreshold
}

// GetCircuitTimeout returns how long the circuit stays open (default: 30s)
func (c DeliveryConfig) GetCircuitTimeout() time.Duration {
	if c.Circuit == nil {
		return 30 * time.Second
	}
	return parseDuration(c.Circuit.Timeout, 30*time.Second)
}

// GetHost returns the SMTP host with environment variable expansion
func (c *SMTPConfig) GetHost() string {
	if c == nil {
		return ""
	}
	return os.ExpandEnv(c.Host)
}

// GetPort returns the SMTP port (default: 587)
func (c *SMTPConfig) GetPort() int {
	if c == nil || c.Port == 0 {
		return 587
	}
	return c.Port
}

// GetUser returns the SMTP user with environment variable expansion
func (c *SMTPConfig) GetUser() string {
	if c == nil {
		return ""
	}
	return os.ExpandEnv(c.User)
}

// GetPassword returns the SMTP password with environment variable expansion
func (c *SMTPConfig) GetPassword() string {
	if c == nil {
		return ""
	}
	return os.ExpandEnv(c.Password)
}

// GetDSN returns the store DSN with environment variable expansion
func (c StoreConfig) GetDSN() string {
	return os.ExpandEnv(c.DSN)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Store: StoreConfig{
			Type: "memory",
		},
		Logging: LoggingConfig{
			ConsoleLogger: LoggerConfig{Level: "normal"},
			FileLogger:    LoggerConfig{Level: "none"},
		},
	}
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("duration", validDuration); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Logging.FileLogger.Level != "none" && c.Logging.FileLogger.Destination == "" {
		return errors.New("invalid configuration: logging.file.destination is required when file logging is enabled")
	}
	return nil
}

func validDuration(fl validator.FieldLevel) bool {
	_, err := time.ParseDuration(fl.Field().String())
	return err == nil
}

// Load loads configuration from a YAML file on top of the defaults.
// If the file doesn't exist, returns the default configuration
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromDir looks for enquirywitch.yaml in the given directory.
// If none is found, returns the default configuration
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Dump renders the configuration as YAML.
func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := Dump(c)
	if err != nil {
		return err
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
