// Package config loads run settings from the environment.
//
// Values come from process environment variables, optionally seeded from a
// .env file. Variables already present in the environment win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pfrederiksen/notice-watch/internal/notice"
	"github.com/pfrederiksen/notice-watch/internal/notifier"
)

const (
	DefaultStatePath  = "state.json"
	DefaultPages      = 3
	DefaultSMTPHost   = "smtp.naver.com"
	DefaultSMTPPort   = 465
	DefaultTimeoutSec = 30
	DefaultTimezone   = "Asia/Seoul"
	DefaultLogLevel   = "info"
)

// Config holds the settings of one run.
type Config struct {
	NoticeURL      string     `mapstructure:"notice_url" validate:"required,url"`
	StatePath      string     `mapstructure:"state_path" validate:"required"`
	Pages          int        `mapstructure:"pages"`
	MaxSeenIDs     int        `mapstructure:"max_seen_ids" validate:"gte=1"`
	HTTPTimeoutSec int        `mapstructure:"http_timeout_sec" validate:"gte=1"`
	SubjectPrefix  string     `mapstructure:"mail_subject_prefix"`
	Timezone       string     `mapstructure:"notice_timezone" validate:"required"`
	LogLevel       string     `mapstructure:"log_level" validate:"oneof=debug info warn warning error"`
	MetricsFile    string     `mapstructure:"metrics_file"`
	SMTP           SMTPConfig `mapstructure:"smtp"`

	// Location is resolved from Timezone.
	Location *time.Location `mapstructure:"-" validate:"-"`
}

// SMTPConfig holds the mail delivery settings. Credentials are optional
// here; they are only required once a digest has to be sent.
type SMTPConfig struct {
	Host       string `mapstructure:"host" validate:"required"`
	Port       int    `mapstructure:"port" validate:"gte=1,lte=65535"`
	Security   string `mapstructure:"security" validate:"omitempty,oneof=ssl smtps starttls tls plain none"`
	TimeoutSec int    `mapstructure:"timeout_sec" validate:"gte=1"`
	To         string `mapstructure:"to" validate:"omitempty,email"`
	From       string `mapstructure:"from"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	UserDomain string `mapstructure:"user_domain"`

	// Debug is set from SMTP_DEBUG, which accepts 1/true/yes/on.
	Debug bool `mapstructure:"-"`
}

// Options controls where Load reads from.
type Options struct {
	// EnvFile is a .env file to load. When empty, ".env" in the working
	// directory is loaded if it exists.
	EnvFile string

	// Overrides replaces values by config key (e.g. "pages"), taking
	// precedence over the environment.
	Overrides map[string]any
}

// bindings maps config keys to environment variables.
var bindings = map[string]string{
	"notice_url":          "NOTICE_URL",
	"state_path":          "STATE_PATH",
	"pages":               "PAGES",
	"max_seen_ids":        "MAX_SEEN_IDS",
	"http_timeout_sec":    "HTTP_TIMEOUT_SEC",
	"mail_subject_prefix": "MAIL_SUBJECT_PREFIX",
	"notice_timezone":     "NOTICE_TIMEZONE",
	"log_level":           "LOG_LEVEL",
	"metrics_file":        "METRICS_FILE",
	"smtp.host":           "SMTP_HOST",
	"smtp.port":           "SMTP_PORT",
	"smtp.security":       "SMTP_SECURITY",
	"smtp.timeout_sec":    "SMTP_TIMEOUT_SEC",
	"smtp.debug":          "SMTP_DEBUG",
	"smtp.to":             "SMTP_TO",
	"smtp.from":           "SMTP_FROM",
	"smtp.user":           "SMTP_USER",
	"smtp.password":       "SMTP_PASS",
	"smtp.user_domain":    "SMTP_USER_DOMAIN",
}

// Load reads, normalizes and validates the configuration.
func Load(opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault("notice_url", notice.DefaultBaseURL)
	v.SetDefault("state_path", DefaultStatePath)
	v.SetDefault("pages", DefaultPages)
	v.SetDefault("max_seen_ids", notice.DefaultMaxSeenIDs)
	v.SetDefault("http_timeout_sec", DefaultTimeoutSec)
	v.SetDefault("mail_subject_prefix", notifier.DefaultSubjectPrefix)
	v.SetDefault("notice_timezone", DefaultTimezone)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("smtp.host", DefaultSMTPHost)
	v.SetDefault("smtp.port", DefaultSMTPPort)
	v.SetDefault("smtp.timeout_sec", DefaultTimeoutSec)

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}
	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.SMTP.Debug = truthy(v.GetString("smtp.debug"))
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("loading env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// normalize trims values and clamps the page count to at least one.
func (c *Config) normalize() {
	for _, s := range []*string{
		&c.NoticeURL, &c.StatePath, &c.SubjectPrefix, &c.Timezone, &c.MetricsFile,
		&c.SMTP.Host, &c.SMTP.To, &c.SMTP.From, &c.SMTP.User, &c.SMTP.Password, &c.SMTP.UserDomain,
	} {
		*s = strings.TrimSpace(*s)
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.SMTP.Security = strings.ToLower(strings.TrimSpace(c.SMTP.Security))
	if c.Pages < 1 {
		c.Pages = 1
	}
}

// Validate checks field constraints and resolves the timezone.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	loc, err := loadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid configuration: NOTICE_TIMEZONE: %w", err)
	}
	c.Location = loc
	return nil
}

// loadLocation falls back to a fixed +09:00 zone for the default timezone
// when the tz database is unavailable.
func loadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if name == DefaultTimezone {
		return time.FixedZone("KST", 9*60*60), nil
	}
	return nil, err
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Warnings lists settings that load fine but are unlikely to work as meant.
// A plaintext SMTP profile to a remote host is one: net/smtp refuses to send
// credentials over it, so the attempt fails before reaching the server.
func (c *Config) Warnings() []string {
	var warnings []string
	security := notifier.NormalizeSecurity(c.SMTP.Security, c.SMTP.Port)
	if security == notifier.SecurityPlain && !isLocalHost(c.SMTP.Host) {
		warnings = append(warnings, fmt.Sprintf(
			"SMTP_SECURITY resolves to plain for %s:%d; AUTH is refused without TLS except on localhost, set SMTP_SECURITY=ssl or starttls",
			c.SMTP.Host, c.SMTP.Port))
	}
	return warnings
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// HTTPTimeout returns the page fetch timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

// Email returns the notifier settings.
func (c *Config) Email() notifier.EmailConfig {
	return notifier.EmailConfig{
		Host:          c.SMTP.Host,
		Port:          c.SMTP.Port,
		Security:      c.SMTP.Security,
		Timeout:       time.Duration(c.SMTP.TimeoutSec) * time.Second,
		To:            c.SMTP.To,
		From:          c.SMTP.From,
		User:          c.SMTP.User,
		Password:      c.SMTP.Password,
		UserDomain:    c.SMTP.UserDomain,
		SubjectPrefix: c.SubjectPrefix,
		Location:      c.Location,
	}
}
