// Package config loads configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/nsvirk/ocbridge/pkg/utils/zaplogger"
)

// Config represents the application configuration
type Config struct {
	APIName        string `env:"OCB_APP_NAME" default:"Option Chain Bridge"`
	APIVersion     string `env:"OCB_APP_VERSION" default:"v1.0.0"`
	APIKey         string `env:"OCB_API_KEY" default:""`
	ServerPort     string `env:"OCB_SERVER_PORT" default:"8000"`
	ServerLogLevel string `env:"OCB_SERVER_LOG_LEVEL" default:"info"`
	Timezone       string `env:"OCB_TIMEZONE" default:"Asia/Kolkata"`

	WorkbookBackend  string `env:"OCB_WORKBOOK_BACKEND" default:"com"`
	WorkbookPath     string `env:"OCB_WORKBOOK_PATH" default:"SmartOptionChainExcel_Zerodha.xlsm"`
	WorkbookSheet    string `env:"OCB_WORKBOOK_SHEET" default:"Option_Chain"`
	TerminalExePath  string `env:"OCB_TERMINAL_EXE_PATH" default:""`
	TerminalExeName  string `env:"OCB_TERMINAL_EXE_NAME" default:"SmartOptionChainExcel.exe"`
	SettleWait       string `env:"OCB_SETTLE_WAIT" default:"15s"`
	BreakerThreshold string `env:"OCB_BREAKER_THRESHOLD" default:"3"`
	BreakerTimeout   string `env:"OCB_BREAKER_TIMEOUT" default:"60s"`

	CacheBackend string `env:"OCB_CACHE_BACKEND" default:"file"`
	CacheDir     string `env:"OCB_CACHE_DIR" default:"."`

	LoginMode       string `env:"OCB_LOGIN_MODE" default:"browser"`
	LoginURL        string `env:"OCB_LOGIN_URL" default:"https://kite.zerodha.com/"`
	LoginWait       string `env:"OCB_LOGIN_WAIT" default:"120s"`
	LoginCutoff     string `env:"OCB_LOGIN_CUTOFF" default:"17:00"`
	BrowserHeadless string `env:"OCB_BROWSER_HEADLESS" default:"false"`
	VerifyToken     string `env:"OCB_VERIFY_TOKEN" default:"false"`
	KiteUserID      string `env:"OCB_KITE_USER_ID" default:""`
	KitePassword    string `env:"OCB_KITE_PASSWORD" default:""`
	KiteTotpSecret  string `env:"OCB_KITE_TOTP_SECRET" default:""`

	PostgresDsn      string `env:"OCB_PG_DSN" default:""`
	PostgresSchema   string `env:"OCB_PG_SCHEMA" default:"ocbridge"`
	PostgresLogLevel string `env:"OCB_PG_LOG_LEVEL" default:"warn"`
	RedisHost        string `env:"OCB_REDIS_HOST" default:""`
	RedisPort        string `env:"OCB_REDIS_PORT" default:"6379"`
	RedisPassword    string `env:"OCB_REDIS_PASSWORD" default:""`

	TelegramBotToken string `env:"OCB_TELEGRAM_BOT_TOKEN" default:""`
	TelegramChatID   string `env:"OCB_TELEGRAM_CHAT_ID" default:""`
}

var (
	SingleLine string = "--------------------------------------------------"
)

var (
	instance *Config
	once     sync.Once
	err      error
)

// Get returns the application configuration, loading `.env` on first use
func Get() (*Config, error) {
	once.Do(func() {
		zaplogger.Info(SingleLine)
		zaplogger.Info("Loading Configuration")
		if loadErr := godotenv.Load(); loadErr != nil && !errors.Is(loadErr, os.ErrNotExist) {
			zaplogger.Warn("could not read .env file", zaplogger.Fields{"error": loadErr.Error()})
		}
		instance, err = Load(os.LookupEnv)
	})
	return instance, err
}

// LoadEnvFile loads an explicit env file before Get is called
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	return godotenv.Load(path)
}

// Load builds a Config from the given lookup function and validates it
func Load(lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	if err := cfg.loadFromEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromEnv fills every field from its env tag, using the default tag when unset
func (c *Config) loadFromEnv(lookup func(string) (string, bool)) error {
	t := reflect.TypeOf(*c)
	v := reflect.ValueOf(c).Elem()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		envTag := field.Tag.Get("env")
		if envTag == "" {
			return fmt.Errorf("missing env tag for field %s", field.Name)
		}

		value, ok := lookup(envTag)
		if !ok || value == "" {
			value = field.Tag.Get("default")
		}
		v.Field(i).SetString(strings.TrimSpace(value))
	}

	return nil
}

// Validate checks enums, durations and backend prerequisites
func (c *Config) Validate() error {
	if !oneOf(c.WorkbookBackend, "com", "file") {
		return fmt.Errorf("OCB_WORKBOOK_BACKEND must be one of com, file: got %q", c.WorkbookBackend)
	}
	if !oneOf(c.CacheBackend, "file", "redis", "postgres") {
		return fmt.Errorf("OCB_CACHE_BACKEND must be one of file, redis, postgres: got %q", c.CacheBackend)
	}
	if !oneOf(c.LoginMode, "browser", "totp") {
		return fmt.Errorf("OCB_LOGIN_MODE must be one of browser, totp: got %q", c.LoginMode)
	}
	for name, value := range map[string]string{
		"OCB_SETTLE_WAIT":     c.SettleWait,
		"OCB_LOGIN_WAIT":      c.LoginWait,
		"OCB_BREAKER_TIMEOUT": c.BreakerTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s is not a duration: %w", name, err)
		}
	}
	if _, err := strconv.Atoi(c.BreakerThreshold); err != nil {
		return fmt.Errorf("OCB_BREAKER_THRESHOLD is not an integer: %w", err)
	}
	if _, _, err := c.Cutoff(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("OCB_TIMEZONE is invalid: %w", err)
	}
	if c.LoginMode == "totp" && (c.KiteUserID == "" || c.KitePassword == "" || c.KiteTotpSecret == "") {
		return errors.New("OCB_LOGIN_MODE=totp requires OCB_KITE_USER_ID, OCB_KITE_PASSWORD and OCB_KITE_TOTP_SECRET")
	}
	if c.CacheBackend == "redis" && c.RedisHost == "" {
		return errors.New("OCB_CACHE_BACKEND=redis requires OCB_REDIS_HOST")
	}
	if c.CacheBackend == "postgres" && c.PostgresDsn == "" {
		return errors.New("OCB_CACHE_BACKEND=postgres requires OCB_PG_DSN")
	}
	return nil
}

// SettleWaitDuration is the pause between triggering a refresh and reading results
func (c *Config) SettleWaitDuration() time.Duration {
	d, _ := time.ParseDuration(c.SettleWait)
	return d
}

// LoginWaitDuration bounds the wait for an interactive login
func (c *Config) LoginWaitDuration() time.Duration {
	d, _ := time.ParseDuration(c.LoginWait)
	return d
}

// BreakerTimeoutDuration is how long the fetch breaker stays open
func (c *Config) BreakerTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.BreakerTimeout)
	return d
}

// BreakerFailures is the consecutive failure count that opens the breaker
func (c *Config) BreakerFailures() uint32 {
	n, _ := strconv.Atoi(c.BreakerThreshold)
	if n < 1 {
		n = 1
	}
	return uint32(n)
}

// Headless reports whether the login browser runs without a window
func (c *Config) Headless() bool {
	b, _ := strconv.ParseBool(c.BrowserHeadless)
	return b
}

// VerifyCachedToken reports whether cached tokens are checked against Kite
func (c *Config) VerifyCachedToken() bool {
	b, _ := strconv.ParseBool(c.VerifyToken)
	return b
}

// Location returns the configured timezone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Cutoff returns the hour and minute after which a cached credential expires
func (c *Config) Cutoff() (int, int, error) {
	t, err := time.Parse("15:04", c.LoginCutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("OCB_LOGIN_CUTOFF must be HH:MM: %w", err)
	}
	return t.Hour(), t.Minute(), nil
}

// String returns the configuration as a string
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n--------------------------------------\n")
	sb.WriteString("Configuration:\n")
	sb.WriteString("--------------------------------------\n")

	t := reflect.TypeOf(*c)
	v := reflect.ValueOf(*c)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := maskSensitiveField(field.Name, v.Field(i).String())
		sb.WriteString(fmt.Sprintf("  %s:  %s\n", field.Name, value))
	}

	sb.WriteString("--------------------------------------\n")

	return sb.String()
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

func maskSensitiveField(fieldName, value string) string {
	if value == "" {
		return value
	}
	sensitiveFields := []string{"token", "dsn", "secret", "password", "key"}

	fieldNameLower := strings.ToLower(fieldName)
	for _, sensitive := range sensitiveFields {
		if strings.Contains(fieldNameLower, sensitive) {
			return maskValue(value)
		}
	}

	return value
}

func maskValue(value string) string {
	if len(value) <= 3 {
		return strings.Repeat("*", 7)
	}
	return value[:3] + strings.Repeat("*", 7)
}
