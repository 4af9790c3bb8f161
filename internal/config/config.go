// Package config loads and validates the YAML run configuration.
// Credentials may be supplied in the file or injected through the
// environment (optionally via a .env file) so that config files can be
// committed without secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/likewindccc/seatgrab/internal/models"
)

// Config is the immutable run configuration, constructed once at
// startup and injected into every worker.
type Config struct {
	Portal   PortalConfig     `yaml:"portal"`
	Accounts []models.Account `yaml:"accounts"`
	Browser  BrowserConfig    `yaml:"browser"`
	Timeouts TimeoutConfig    `yaml:"timeouts"`
	Captcha  CaptchaConfig    `yaml:"captcha"`
	Notify   NotifyConfig     `yaml:"notify"`
	Paths    PathConfig       `yaml:"paths"`

	// Selectors is populated with the defaults at load time and is not
	// part of the file format.
	Selectors Selectors `yaml:"-"`
}

// PortalConfig identifies the scheduling portal.
type PortalConfig struct {
	LoginURL     string `yaml:"login_url"`
	Room         string `yaml:"room"`
	SeatQueryURL string `yaml:"seat_query_url"`
}

// BrowserConfig controls the playwright session.
type BrowserConfig struct {
	Headless  bool   `yaml:"headless"`
	UserAgent string `yaml:"user_agent"`
}

// TimeoutConfig carries the run's deadline constants, in seconds.
type TimeoutConfig struct {
	GlobalSec      int `yaml:"global"`
	ElementWaitSec int `yaml:"element_wait"`
	CaptchaSec     int `yaml:"captcha"`
}

// Global is the wall-clock deadline for one account's whole run.
func (t TimeoutConfig) Global() time.Duration { return time.Duration(t.GlobalSec) * time.Second }

// ElementWait bounds a single element wait in the portal UI.
func (t TimeoutConfig) ElementWait() time.Duration {
	return time.Duration(t.ElementWaitSec) * time.Second
}

// Captcha bounds one full slider solve session.
func (t TimeoutConfig) Captcha() time.Duration { return time.Duration(t.CaptchaSec) * time.Second }

// CaptchaConfig tunes the slider solve loop. DistanceOffset and
// SafeMargin are manually tuned pixel corrections with no derivation;
// treat them as portal-specific calibration.
type CaptchaConfig struct {
	MaxAttempts    int    `yaml:"max_attempts"`
	DistanceOffset int    `yaml:"distance_offset"`
	SafeMargin     int    `yaml:"safe_margin"`
	MinDistance    int    `yaml:"min_distance"`
	RecognizerURL  string `yaml:"recognizer_url"`
}

// NotifyConfig groups the optional outcome sinks.
type NotifyConfig struct {
	WeChat WeChatConfig `yaml:"wechat"`
	Email  EmailConfig  `yaml:"email"`
}

// WeChatConfig configures the WeCom group-bot webhook.
type WeChatConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	MentionAll bool   `yaml:"mention_all"`
	TimeoutSec int    `yaml:"timeout"`
	OnSuccess  bool   `yaml:"on_success"`
	OnFailure  bool   `yaml:"on_failure"`
}

// Timeout bounds one webhook request.
func (w WeChatConfig) Timeout() time.Duration { return time.Duration(w.TimeoutSec) * time.Second }

// EmailConfig configures the SMTP outcome sink.
type EmailConfig struct {
	Enabled bool       `yaml:"enabled"`
	SMTP    SMTPConfig `yaml:"smtp"`
	From    string     `yaml:"from"`
	To      []string   `yaml:"to"`
	Subject string     `yaml:"subject"`
}

// SMTPConfig holds SMTP server settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// PathConfig locates run artifacts.
type PathConfig struct {
	ErrorDir   string `yaml:"error_dir"`
	ProfileDir string `yaml:"profile_dir"` // base dir for accounts without an explicit one
}

// GetConfigPath locates the configuration file: next to the executable,
// in the working directory, then under the user's home.
func GetConfigPath() string {
	if execPath, err := os.Executable(); err == nil {
		p := filepath.Join(filepath.Dir(execPath), "configs", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	p := filepath.Join("configs", "config.yaml")
	if _, err := os.Stat(p); err == nil {
		return p
	}

	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".seatgrab", "config.yaml")
}

// Load reads, defaults and validates the configuration at path. An
// empty path triggers auto-discovery.
func Load(path string) (*Config, error) {
	if path == "" {
		path = GetConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration back to path, creating directories as
// needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = GetConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Example builds a starter configuration with placeholder credentials,
// used by the init command to seed a new config file.
func Example() *Config {
	cfg := &Config{
		Portal: PortalConfig{
			LoginURL: "https://portal.example.edu/login",
			Room:     "自习室",
		},
		Accounts: []models.Account{
			{
				Name:     "account1",
				Username: "20230001",
				Password: "change-me",
				Seats:    []int{158, 160, 162},
				Window:   models.WindowRect{X: 0, Y: 0, Width: 500, Height: 800},
			},
		},
		Browser: BrowserConfig{Headless: true},
		Captcha: CaptchaConfig{RecognizerURL: "http://127.0.0.1:9898"},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Timeouts.GlobalSec == 0 {
		c.Timeouts.GlobalSec = 300
	}
	if c.Timeouts.ElementWaitSec == 0 {
		c.Timeouts.ElementWaitSec = 10
	}
	if c.Timeouts.CaptchaSec == 0 {
		c.Timeouts.CaptchaSec = 120
	}
	if c.Captcha.MaxAttempts == 0 {
		c.Captcha.MaxAttempts = 10
	}
	if c.Captcha.MinDistance == 0 {
		c.Captcha.MinDistance = 10
	}
	if c.Notify.WeChat.TimeoutSec == 0 {
		c.Notify.WeChat.TimeoutSec = 10
	}
	if c.Paths.ErrorDir == "" {
		c.Paths.ErrorDir = "errors"
	}
	if c.Paths.ProfileDir == "" {
		c.Paths.ProfileDir = filepath.Join(os.TempDir(), "seatgrab-profiles")
	}
	if c.Browser.UserAgent == "" {
		c.Browser.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	for i := range c.Accounts {
		if c.Accounts[i].Name == "" {
			c.Accounts[i].Name = fmt.Sprintf("account%d", i+1)
		}
		if c.Accounts[i].ProfileDir == "" {
			c.Accounts[i].ProfileDir = filepath.Join(c.Paths.ProfileDir, c.Accounts[i].Name)
		}
	}
	c.Selectors = DefaultSelectors()
}

// applyEnv overlays credentials from the environment. A .env file in
// the working directory is honored when present. Variables:
// SEATGRAB_USERNAME_<N>, SEATGRAB_PASSWORD_<N> (1-based account index)
// and SEATGRAB_WECHAT_WEBHOOK.
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	for i := range c.Accounts {
		if v := os.Getenv(fmt.Sprintf("SEATGRAB_USERNAME_%d", i+1)); v != "" {
			c.Accounts[i].Username = v
		}
		if v := os.Getenv(fmt.Sprintf("SEATGRAB_PASSWORD_%d", i+1)); v != "" {
			c.Accounts[i].Password = v
		}
	}
	if v := os.Getenv("SEATGRAB_WECHAT_WEBHOOK"); v != "" {
		c.Notify.WeChat.WebhookURL = v
	}
}

// Validate rejects configurations that cannot produce a meaningful run.
func (c *Config) Validate() error {
	if c.Portal.LoginURL == "" {
		return fmt.Errorf("portal.login_url is required")
	}
	if c.Portal.Room == "" {
		return fmt.Errorf("portal.room is required")
	}
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	for i, acct := range c.Accounts {
		if acct.Username == "" || acct.Password == "" {
			return fmt.Errorf("account %q: username and password are required (file or SEATGRAB_USERNAME_%d/SEATGRAB_PASSWORD_%d)", acct.Name, i+1, i+1)
		}
		if len(acct.Seats) == 0 {
			return fmt.Errorf("account %q: seat list must not be empty", acct.Name)
		}
		seen := make(map[int]bool, len(acct.Seats))
		for _, s := range acct.Seats {
			if s <= 0 {
				return fmt.Errorf("account %q: invalid seat number %d", acct.Name, s)
			}
			if seen[s] {
				return fmt.Errorf("account %q: duplicate seat number %d", acct.Name, s)
			}
			seen[s] = true
		}
	}
	if c.Captcha.MaxAttempts < 1 {
		return fmt.Errorf("captcha.max_attempts must be at least 1")
	}
	if c.Captcha.MinDistance < 1 {
		return fmt.Errorf("captcha.min_distance must be at least 1")
	}
	if c.Notify.WeChat.Enabled && c.Notify.WeChat.WebhookURL == "" {
		return fmt.Errorf("notify.wechat.enabled is set but webhook_url is empty")
	}
	return nil
}
