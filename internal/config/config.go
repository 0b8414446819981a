package config

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "GRADSCRAPE_CONFIG"
	databaseDSNEnv  = "DATABASE_DSN"
	dbDriverEnv     = "DB_DRIVER"
	dbUserEnv       = "DB_USER"
	dbPasswordEnv   = "DB_PASSWORD"
	dbHostEnv       = "DB_HOST"
	dbPortEnv       = "DB_PORT"
	dbNameEnv       = "DB_NAME"
	httpAddrEnv     = "HTTP_ADDR"
	logLevelEnv     = "LOG_LEVEL"
	logFormatEnv    = "LOG_FORMAT"
	llmEndpointEnv  = "LLM_ENDPOINT"
	llmAPIKeyEnv    = "LLM_API_KEY"
	telegramToken   = "TELEGRAM_BOT_TOKEN"
	telegramChatID  = "TELEGRAM_CHAT_ID"
	seedPathEnv     = "SEED_PATH"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	HTTP          HTTPConfig         `yaml:"http"`
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Scraper       ScraperConfig      `yaml:"scraper"`
	Sources       []SourceConfig     `yaml:"sources"`
	Validation    ValidationConfig   `yaml:"validation"`
	LLM           LLMConfig          `yaml:"llm"`
	Notifications NotificationConfig `yaml:"notifications"`
	Seed          SeedConfig         `yaml:"seed"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// DatabaseConfig picks the record store backend.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // postgres | sqlite | memory
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
	AutoMigrate  bool   `yaml:"autoMigrate"`
}

// SchedulerConfig defines whether and how often ingestion runs unattended.
type SchedulerConfig struct {
	Enabled    bool           `yaml:"enabled"`
	Interval   time.Duration  `yaml:"interval"`
	RunOnStart bool           `yaml:"runOnStart"`
	Timezone   string         `yaml:"timezone"`
	location   *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// ScraperConfig tunes the HTTP behaviour shared by page scanners.
type ScraperConfig struct {
	UserAgent         string        `yaml:"userAgent"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Timeout           time.Duration `yaml:"timeout"`
	Attempts          uint          `yaml:"attempts"`
}

// SourceConfig describes a single source with its scanner strategy.
type SourceConfig struct {
	Name      string            `yaml:"name"`
	Scanner   string            `yaml:"scanner"`
	URL       string            `yaml:"url"`
	StartPage int               `yaml:"startPage"`
	EndPage   int               `yaml:"endPage"`
	Options   map[string]string `yaml:"options"`
}

// ValidationConfig bounds the numeric fields accepted by the cleaner.
type ValidationConfig struct {
	MaxGPA        float64 `yaml:"maxGpa"`
	MinGRE        float64 `yaml:"minGre"`
	MaxGRE        float64 `yaml:"maxGre"`
	MinGREVerbal  float64 `yaml:"minGreVerbal"`
	MaxGREVerbal  float64 `yaml:"maxGreVerbal"`
	MaxGREWriting float64 `yaml:"maxGreWriting"`
}

// LLMConfig points at the program/university standardization service.
type LLMConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"apiKey"`
	Timeout  time.Duration `yaml:"timeout"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	BaseURL  string `yaml:"baseUrl"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// SeedConfig names the raw dump loaded into an empty store on first start.
type SeedConfig struct {
	Path string `yaml:"path"`
}

// Load reads .env, the YAML file (explicit path wins over GRADSCRAPE_CONFIG)
// and finally applies environment overrides.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: cannot read .env: %v", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Sources) == 0 {
		cfg.Sources = defaultConfig().Sources
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(dbDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	} else if dsn := composeDSN(); dsn != "" {
		c.Database.DSN = dsn
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv(llmEndpointEnv); v != "" {
		c.LLM.Endpoint = v
	}
	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}

	if v := os.Getenv(telegramToken); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatID); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(seedPathEnv); v != "" {
		c.Seed.Path = v
	}
}

// composeDSN builds a postgres URL from DB_* parts; empty unless DB_HOST or
// DB_NAME is set.
func composeDSN() string {
	host, name := os.Getenv(dbHostEnv), os.Getenv(dbNameEnv)
	if host == "" && name == "" {
		return ""
	}
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv(dbPortEnv)
	if port == "" {
		port = "5432"
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + name,
	}
	if user := os.Getenv(dbUserEnv); user != "" {
		if password, ok := os.LookupEnv(dbPasswordEnv); ok {
			u.User = url.UserPassword(user, password)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String()
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.HTTP.Addr != "" {
		base.HTTP.Addr = override.HTTP.Addr
	}
	if override.HTTP.ReadTimeout > 0 {
		base.HTTP.ReadTimeout = override.HTTP.ReadTimeout
	}
	if override.HTTP.ShutdownTimeout > 0 {
		base.HTTP.ShutdownTimeout = override.HTTP.ShutdownTimeout
	}

	if override.Database.Driver != "" {
		base.Database.Driver = strings.ToLower(override.Database.Driver)
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}
	if override.Database.MaxOpenConns > 0 {
		base.Database.MaxOpenConns = override.Database.MaxOpenConns
	}
	if override.Database.AutoMigrate {
		base.Database.AutoMigrate = true
	}

	if override.Scheduler.Enabled {
		base.Scheduler.Enabled = true
	}
	if override.Scheduler.RunOnStart {
		base.Scheduler.RunOnStart = true
	}
	if override.Scheduler.Interval > 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Scraper.UserAgent != "" {
		base.Scraper.UserAgent = override.Scraper.UserAgent
	}
	if override.Scraper.RequestsPerSecond > 0 {
		base.Scraper.RequestsPerSecond = override.Scraper.RequestsPerSecond
	}
	if override.Scraper.Timeout > 0 {
		base.Scraper.Timeout = override.Scraper.Timeout
	}
	if override.Scraper.Attempts > 0 {
		base.Scraper.Attempts = override.Scraper.Attempts
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	if override.Validation.MaxGPA > 0 {
		base.Validation.MaxGPA = override.Validation.MaxGPA
	}
	if override.Validation.MinGRE > 0 {
		base.Validation.MinGRE = override.Validation.MinGRE
	}
	if override.Validation.MaxGRE > 0 {
		base.Validation.MaxGRE = override.Validation.MaxGRE
	}
	if override.Validation.MinGREVerbal > 0 {
		base.Validation.MinGREVerbal = override.Validation.MinGREVerbal
	}
	if override.Validation.MaxGREVerbal > 0 {
		base.Validation.MaxGREVerbal = override.Validation.MaxGREVerbal
	}
	if override.Validation.MaxGREWriting > 0 {
		base.Validation.MaxGREWriting = override.Validation.MaxGREWriting
	}

	if override.LLM.Endpoint != "" {
		base.LLM.Endpoint = override.LLM.Endpoint
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.Timeout > 0 {
		base.LLM.Timeout = override.LLM.Timeout
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}
	if override.Notifications.Telegram.BaseURL != "" {
		base.Notifications.Telegram.BaseURL = override.Notifications.Telegram.BaseURL
	}

	if override.Seed.Path != "" {
		base.Seed.Path = override.Seed.Path
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "file:gradscrape.db?_pragma=busy_timeout(5000)",
			MaxOpenConns: 10,
			AutoMigrate:  true,
		},
		Scheduler: SchedulerConfig{Interval: 24 * time.Hour, Timezone: defaultTimezone, location: tz},
		Scraper: ScraperConfig{
			UserAgent:         "GradScrape/1.0",
			RequestsPerSecond: 1,
			Timeout:           20 * time.Second,
			Attempts:          3,
		},
		Validation: ValidationConfig{
			MaxGPA:        5,
			MinGRE:        260,
			MaxGRE:        340,
			MinGREVerbal:  130,
			MaxGREVerbal:  170,
			MaxGREWriting: 6,
		},
		LLM: LLMConfig{Timeout: 30 * time.Second},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{BaseURL: "https://api.telegram.org"},
		},
		Seed: SeedConfig{Path: "data/applicant_data.json"},
		Sources: []SourceConfig{
			{
				Name:      "gradcafe",
				Scanner:   "gradcafe",
				URL:       "https://www.thegradcafe.com/survey/",
				StartPage: 1,
				EndPage:   5,
			},
		},
	}
}
