package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/camuig/bbma-trader/internal/market"
)

const (
	ModeTinkoff = "tinkoff"
	ModePaper   = "paper"
)

type Config struct {
	Symbol       string             `yaml:"symbol" validate:"required"`
	Timeframes   []string           `yaml:"timeframes"`
	Signal       SignalConfig       `yaml:"signal"`
	Trading      TradingConfig      `yaml:"trading"`
	Closure      ClosureConfig      `yaml:"closure"`
	Feed         FeedConfig         `yaml:"feed"`
	Learner      LearnerConfig      `yaml:"learner"`
	Execution    ExecutionConfig    `yaml:"execution"`
	Tinkoff      TinkoffConfig      `yaml:"tinkoff"`
	DeepSeek     DeepSeekConfig     `yaml:"deepseek"`
	News         NewsConfig         `yaml:"news"`
	Storage      StorageConfig      `yaml:"storage"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	Web          WebConfig          `yaml:"web"`
	Logging      LoggingConfig      `yaml:"logging"`
	TradingHours TradingHoursConfig `yaml:"trading_hours"`
}

type SignalConfig struct {
	Reference          string  `yaml:"reference" default:"ma5" validate:"oneof=ma5 mid"`
	RangingFilter      bool    `yaml:"ranging_filter"`
	VolatilityFilter   bool    `yaml:"volatility_filter"`
	VolatilityQuantile float64 `yaml:"volatility_quantile" default:"0.9" validate:"gt=0,lt=1"`
	BollingerWindow    int     `yaml:"bollinger_window" default:"20" validate:"gte=2"`
	Deviations         float64 `yaml:"deviations" default:"2" validate:"gt=0"`
	ATRWindow          int     `yaml:"atr_window" default:"14" validate:"gte=1"`
}

type TradingConfig struct {
	Interval           string   `yaml:"interval" default:"60s"`
	Candles            int      `yaml:"candles" default:"1000" validate:"gte=2"`
	Volume             float64  `yaml:"volume" default:"1" validate:"gt=0"`
	ReferenceTimeframe string   `yaml:"reference_timeframe" default:"M15"`
	TPTimeframes       []string `yaml:"tp_timeframes"`
	AdjustOpenPosition bool     `yaml:"adjust_open_position"`
}

type ClosureConfig struct {
	PollInterval string  `yaml:"poll_interval" default:"2s"`
	Backoff      float64 `yaml:"backoff" default:"2" validate:"gte=1"`
	MaxDelay     string  `yaml:"max_delay" default:"15s"`
	MaxAttempts  int     `yaml:"max_attempts" default:"5" validate:"gte=1"`
	Timeout      string  `yaml:"timeout" default:"45s"`
}

type FeedConfig struct {
	StaleAfterBars int `yaml:"stale_after_bars" default:"3" validate:"gte=0"`
}

type LearnerConfig struct {
	MinSamples int `yaml:"min_samples" default:"30" validate:"gte=1"`
	// EntryThreshold > 0 vetoes entries the model scores below it.
	EntryThreshold float64 `yaml:"entry_threshold" validate:"gte=0,lt=1"`
}

type ExecutionConfig struct {
	Mode string `yaml:"mode" default:"paper" validate:"oneof=tinkoff paper"`
	// PaperSpread is the simulated bid/ask distance in paper mode.
	PaperSpread float64 `yaml:"paper_spread" validate:"gte=0"`
}

type TinkoffConfig struct {
	Token     string `yaml:"token"`
	Sandbox   bool   `yaml:"sandbox"`
	AccountID string `yaml:"account_id"`
	Endpoint  string `yaml:"endpoint"`
	AppName   string `yaml:"app_name" default:"bbma-trader"`
}

type DeepSeekConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url" default:"https://api.deepseek.com/v1"`
	Model          string `yaml:"model" default:"deepseek-chat"`
	TimeoutSeconds int    `yaml:"timeout_seconds" default:"30" validate:"gte=1"`
}

type NewsConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Source      string   `yaml:"source" default:"https://iss.moex.com/iss/sitenews.json"`
	LookbackMin int      `yaml:"lookback_minutes" default:"60" validate:"gte=1"`
	Keywords    []string `yaml:"keywords"`
	UseLLM      bool     `yaml:"use_llm"`
}

type StorageConfig struct {
	DBPath  string `yaml:"db_path" default:"data/trader.db"`
	DataDir string `yaml:"data_dir" default:"data"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type WebConfig struct {
	Port int `yaml:"port" default:"8080" validate:"gte=0,lte=65535"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" default:"50"`
	MaxBackups int    `yaml:"max_backups" default:"3"`
	MaxAgeDays int    `yaml:"max_age_days" default:"14"`
}

type TradingHoursConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Location string `yaml:"location" default:"Europe/Moscow"`
	Start    string `yaml:"start" default:"10:00"`
	End      string `yaml:"end" default:"18:40"`
	Weekends bool   `yaml:"weekends"`
}

var (
	defaultKeywords     = []string{"ставк", "санкц", "ЦБ", "ключев", "дефолт", "rate", "sanction", "CPI", "NFP", "FOMC"}
	defaultTPTimeframes = []string{"M1", "M15", "H1"}
)

var validate = validator.New()

// Load reads the yaml file, applies an optional .env next to it, fills
// defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	return Parse(data)
}

// Parse decodes yaml, lets environment variables override secrets and the
// symbol, then fills defaults and validates.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(cfg)

	if err := setDefaults(cfg); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SYMBOL"); v != "" {
		cfg.Symbol = v
	}
	if v := os.Getenv("TINKOFF_TOKEN"); v != "" {
		cfg.Tinkoff.Token = v
	}
	if v := os.Getenv("TINKOFF_ACCOUNT_ID"); v != "" {
		cfg.Tinkoff.AccountID = v
	}
	if v := os.Getenv("DEEPSEEK_API_KEY"); v != "" {
		cfg.DeepSeek.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
}

func setDefaults(cfg *Config) error {
	if err := defaults.Set(cfg); err != nil {
		return err
	}
	cfg.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Symbol))
	if len(cfg.Timeframes) == 0 {
		for _, tf := range market.DefaultTimeframes {
			cfg.Timeframes = append(cfg.Timeframes, string(tf))
		}
	}
	if len(cfg.Trading.TPTimeframes) == 0 {
		cfg.Trading.TPTimeframes = append([]string(nil), defaultTPTimeframes...)
	}
	if len(cfg.News.Keywords) == 0 {
		cfg.News.Keywords = append([]string(nil), defaultKeywords...)
	}
	if cfg.Tinkoff.Endpoint == "" {
		cfg.Tinkoff.Endpoint = "invest-public-api.tinkoff.ru:443"
		if cfg.Tinkoff.Sandbox {
			cfg.Tinkoff.Endpoint = "sandbox-invest-public-api.tinkoff.ru:443"
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	set, err := market.ParseTimeframes(c.Timeframes)
	if err != nil {
		return fmt.Errorf("timeframes: %w", err)
	}
	if !set.Contains(market.Timeframe(c.Trading.ReferenceTimeframe)) {
		return fmt.Errorf("trading.reference_timeframe %q is not in timeframes", c.Trading.ReferenceTimeframe)
	}
	for _, tf := range c.Trading.TPTimeframes {
		if !set.Contains(market.Timeframe(tf)) {
			return fmt.Errorf("trading.tp_timeframes: %q is not in timeframes", tf)
		}
	}

	durations := map[string]string{
		"trading.interval":      c.Trading.Interval,
		"closure.poll_interval": c.Closure.PollInterval,
		"closure.max_delay":     c.Closure.MaxDelay,
		"closure.timeout":       c.Closure.Timeout,
	}
	for name, v := range durations {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	// Candles are fetched from Tinkoff in paper mode too.
	if c.Tinkoff.Token == "" {
		return fmt.Errorf("tinkoff.token is required")
	}
	if c.News.UseLLM && c.DeepSeek.APIKey == "" {
		return fmt.Errorf("deepseek.api_key is required when news.use_llm is set")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.TradingHours.Enabled {
		if _, _, err := c.TradingWindow(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) IsSandbox() bool {
	return c.Tinkoff.Sandbox
}

func (c *Config) TimeframeSet() market.TimeframeSet {
	set, _ := market.ParseTimeframes(c.Timeframes)
	return set
}

func (c *Config) TPTimeframes() []market.Timeframe {
	out := make([]market.Timeframe, 0, len(c.Trading.TPTimeframes))
	for _, tf := range c.Trading.TPTimeframes {
		out = append(out, market.Timeframe(tf))
	}
	return out
}

func (c *Config) ReferenceTimeframe() market.Timeframe {
	return market.Timeframe(c.Trading.ReferenceTimeframe)
}

func (c *Config) TradingInterval() time.Duration {
	d, _ := time.ParseDuration(c.Trading.Interval)
	return d
}

func (c *Config) ClosurePollInterval() time.Duration {
	d, _ := time.ParseDuration(c.Closure.PollInterval)
	return d
}

func (c *Config) ClosureMaxDelay() time.Duration {
	d, _ := time.ParseDuration(c.Closure.MaxDelay)
	return d
}

func (c *Config) ClosureTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Closure.Timeout)
	return d
}

func (c *Config) DeepSeekTimeout() time.Duration {
	return time.Duration(c.DeepSeek.TimeoutSeconds) * time.Second
}

func (c *Config) NewsLookback() time.Duration {
	return time.Duration(c.News.LookbackMin) * time.Minute
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TradingHours.Location)
	if err != nil {
		loc = time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// TradingWindow returns the session bounds as offsets from local midnight.
func (c *Config) TradingWindow() (start, end time.Duration, err error) {
	start, err = clockOffset(c.TradingHours.Start)
	if err != nil {
		return 0, 0, fmt.Errorf("trading_hours.start: %w", err)
	}
	end, err = clockOffset(c.TradingHours.End)
	if err != nil {
		return 0, 0, fmt.Errorf("trading_hours.end: %w", err)
	}
	if end <= start {
		return 0, 0, fmt.Errorf("trading_hours.end must be after start")
	}
	return start, end, nil
}

func clockOffset(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
