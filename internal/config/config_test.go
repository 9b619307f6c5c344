package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestServerConfigGetSessionTTL(t *testing.T) {
	tests := []struct {
		name     string
		ttl      string
		expected time.Duration
	}{
		{"empty", "", 2 * time.Hour},
		{"invalid", "soon", 2 * time.Hour},
		{"30 minutes", "30m", 30 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ServerConfig{SessionTTL: tt.ttl}
			if got := cfg.GetSessionTTL(); got != tt.expected {
				t.Errorf("GetSessionTTL() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestServerConfigRateLimit(t *testing.T) {
	var cfg ServerConfig
	if got := cfg.GetRateLimitRPS(); got != 1 {
		t.Errorf("GetRateLimitRPS() = %v, want 1", got)
	}
	if got := cfg.GetRateLimitBurst(); got != 5 {
		t.Errorf("GetRateLimitBurst() = %v, want 5", got)
	}
	if got := cfg.GetCORSOrigins(); got != nil {
		t.Errorf("GetCORSOrigins() = %v, want nil", got)
	}

	cfg.RateLimit = &RateLimitConfig{RequestsPerSecond: 0.5, Burst: 2}
	cfg.CORS = &CORSConfig{Origins: []string{"*"}}
	if got := cfg.GetRateLimitRPS(); got != 0.5 {
		t.Errorf("GetRateLimitRPS() = %v, want 0.5", got)
	}
	if got := cfg.GetRateLimitBurst(); got != 2 {
		t.Errorf("GetRateLimitBurst() = %v, want 2", got)
	}
	if got := cfg.GetMaxTrackedIPs(); got != 10000 {
		t.Errorf("GetMaxTrackedIPs() = %v, want 10000", got)
	}
	if got := cfg.GetCORSOrigins(); len(got) != 1 || got[0] != "*" {
		t.Errorf("GetCORSOrigins() = %v, want [*]", got)
	}
}

func TestFormConfigDefaults(t *testing.T) {
	var cfg FormConfig
	if got := cfg.GetMinFillTime(); got != 10*time.Second {
		t.Errorf("GetMinFillTime() = %v, want 10s", got)
	}
	if got := cfg.GetMaxUploadSize(); got != 5*1024*1024 {
		t.Errorf("GetMaxUploadSize() = %v, want 5MB", got)
	}
	if cfg.IsCaptchaEnabled() {
		t.Error("IsCaptchaEnabled() = true for nil captcha")
	}

	cfg = FormConfig{MinFillTime: "3s", MaxUploadSize: 1024, Captcha: &CaptchaConfig{Enabled: true}}
	if got := cfg.GetMinFillTime(); got != 3*time.Second {
		t.Errorf("GetMinFillTime() = %v, want 3s", got)
	}
	if got := cfg.GetMaxUploadSize(); got != 1024 {
		t.Errorf("GetMaxUploadSize() = %v, want 1024", got)
	}
	if !cfg.IsCaptchaEnabled() {
		t.Error("IsCaptchaEnabled() = false")
	}
}

func TestDeliveryConfigRetry(t *testing.T) {
	tests := []struct {
		name       string
		retry      *RetryConfig
		maxRetries int
		baseDelay  time.Duration
		maxDelay   time.Duration
	}{
		{"nil retry", nil, 3, 100 * time.Millisecond, 5 * time.Second},
		{"disabled", &RetryConfig{MaxRetries: 0}, 0, 100 * time.Millisecond, 5 * time.Second},
		{"negative", &RetryConfig{MaxRetries: -1}, 3, 100 * time.Millisecond, 5 * time.Second},
		{"custom", &RetryConfig{MaxRetries: 5, BaseDelay: "1s", MaxDelay: "1m"}, 5, time.Second, time.Minute},
		{"invalid delays", &RetryConfig{MaxRetries: 1, BaseDelay: "x", MaxDelay: "y"}, 1, 100 * time.Millisecond, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DeliveryConfig{Retry: tt.retry}
			if got := cfg.GetRetryMaxRetries(); got != tt.maxRetries {
				t.Errorf("GetRetryMaxRetries() = %v, want %v", got, tt.maxRetries)
			}
			if got := cfg.GetRetryBaseDelay(); got != tt.baseDelay {
				t.Errorf("GetRetryBaseDelay() = %v, want %v", got, tt.baseDelay)
			}
			if got := cfg.GetRetryMaxDelay(); got != tt.maxDelay {
				t.Errorf("GetRetryMaxDelay() = %v, want %v", got, tt.maxDelay)
			}
		})
	}
}

func TestDeliveryConfigCircuit(t *testing.T) {
	var cfg DeliveryConfig
	if got := cfg.GetCircuitFailureThreshold(); got != 5 {
		t.Errorf("GetCircuitFailureThreshold() = %v, want 5", got)
	}
	if got := cfg.GetCircuitSuccessThreshold(); got != 2 {
		t.Errorf("GetCircuitSuccessThreshold() = %v, want 2", got)
	}
	if got := cfg.GetCircuitTimeout(); got != 30*time.Second {
		t.Errorf("GetCircuitTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetTimeout(); got != 10*time.Second {
		t.Errorf("GetTimeout() = %v, want 10s", got)
	}

	cfg.Circuit = &CircuitConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: "1s"}
	if got := cfg.GetCircuitTimeout(); got != time.Second {
		t.Errorf("GetCircuitTimeout() = %v, want 1s", got)
	}
}

func TestSMTPConfigExpandsEnv(t *testing.T) {
	t.Setenv("WITCH_SMTP_PASSWORD", "hunter2")
	cfg := &SMTPConfig{Host: "mail.example.com", Password: "${WITCH_SMTP_PASSWORD}"}
	if got := cfg.GetPassword(); got != "hunter2" {
		t.Errorf("GetPassword() = %q, want hunter2", got)
	}
	if got := cfg.GetPort(); got != 587 {
		t.Errorf("GetPort() = %v, want 587", got)
	}

	var none *SMTPConfig
	if none.GetHost() != "" || none.GetUser() != "" || none.GetPassword() != "" {
		t.Error("nil SMTPConfig should expand to empty strings")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"bad store type", func(c *Config) { c.Store.Type = "redis" }, "Type"},
		{"sqlite without dsn", func(c *Config) { c.Store.Type = "sqlite" }, "DSN"},
		{"bad post url", func(c *Config) { c.Form.PostURL = "not a url" }, "PostURL"},
		{"bad email", func(c *Config) { c.Form.BackupEmail = "nobody" }, "BackupEmail"},
		{"bad duration", func(c *Config) { c.Form.MinFillTime = "ten seconds" }, "MinFillTime"},
		{"captcha without site key", func(c *Config) {
			c.Form.Captcha = &CaptchaConfig{Enabled: true, URL: "https://captcha.example.com/verify"}
		}, "SiteKey"},
		{"bad log level", func(c *Config) { c.Logging.ConsoleLogger.Level = "loud" }, "Level"},
		{"file log without destination", func(c *Config) { c.Logging.FileLogger.Level = "debug" }, "destination"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "Port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	content := `story:
  path: story.html
  options:
    allow_uploads: true
server:
  port: 9090
form:
  post_url: https://hooks.example.com/enquiry
  backup_email: desk@example.com
store:
  type: sqlite
  dsn: witch.db
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("LoadFromDir() error = %v", err)
	}
	if cfg.Story.Path != "story.html" || !cfg.Story.Options.AllowUploads {
		t.Errorf("story config = %+v", cfg.Story)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("Server.Host = %q, defaults should be kept", cfg.Server.Host)
	}
	if cfg.Store.Type != "sqlite" || cfg.Store.GetDSN() != "witch.db" {
		t.Errorf("store config = %+v", cfg.Store)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := LoadFromDir(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFromDir() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected defaults, got port %d", cfg.Server.Port)
	}

	cfg, err = Load("")
	if err != nil || cfg == nil {
		t.Fatalf("Load(\"\") = %v, %v", cfg, err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("server:\n  prot: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	cfg := DefaultConfig()
	cfg.Form.PostURL = "https://hooks.example.com/x"
	cfg.Delivery.Retry = &RetryConfig{MaxRetries: 2, BaseDelay: "50ms"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Form.PostURL != cfg.Form.PostURL {
		t.Errorf("PostURL = %q, want %q", loaded.Form.PostURL, cfg.Form.PostURL)
	}
	if loaded.Delivery.GetRetryBaseDelay() != 50*time.Millisecond {
		t.Errorf("BaseDelay = %v", loaded.Delivery.GetRetryBaseDelay())
	}
}

func TestPrepareLogger(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "witch.log")
	conf := LoggingConfig{
		ConsoleLogger: LoggerConfig{Level: "none"},
		FileLogger:    LoggerConfig{Level: "debug", Destination: dest},
	}
	log, err := conf.Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	log.Debug("hello from test")
	_ = log.Sync()

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Errorf("log file missing entry: %q", data)
	}

	conf.FileLogger.Destination = filepath.Join(t.TempDir(), "missing", "x.log")
	if _, err := conf.Prepare(); err == nil {
		t.Error("expected error for unreachable log destination")
	}
}
