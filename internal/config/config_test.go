package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/camuig/bbma-trader/internal/market"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("SYMBOL", "")
	t.Setenv("TINKOFF_TOKEN", "t")
	cfg, err := Parse([]byte("symbol: eurusd\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Symbol != "EURUSD" {
		t.Fatalf("symbol=%q", cfg.Symbol)
	}
	if cfg.Execution.Mode != ModePaper {
		t.Fatalf("mode=%q want paper", cfg.Execution.Mode)
	}
	if cfg.Trading.Candles != 1000 || cfg.TradingInterval() != time.Minute {
		t.Fatalf("trading defaults %+v", cfg.Trading)
	}
	if cfg.Signal.Reference != "ma5" || cfg.Signal.BollingerWindow != 20 || cfg.Signal.Deviations != 2 {
		t.Fatalf("signal defaults %+v", cfg.Signal)
	}
	if got := cfg.TimeframeSet(); len(got) != len(market.DefaultTimeframes) {
		t.Fatalf("timeframes=%v", got)
	}
	if cfg.ReferenceTimeframe() != market.M15 {
		t.Fatalf("reference=%s", cfg.ReferenceTimeframe())
	}
	tps := cfg.TPTimeframes()
	if len(tps) != 3 || tps[0] != market.M1 || tps[1] != market.M15 || tps[2] != market.H1 {
		t.Fatalf("tp timeframes=%v", tps)
	}
	if cfg.Learner.MinSamples != 30 {
		t.Fatalf("min samples=%d", cfg.Learner.MinSamples)
	}
	if cfg.ClosureTimeout() != 45*time.Second || cfg.ClosureMaxDelay() != 15*time.Second {
		t.Fatalf("closure defaults %+v", cfg.Closure)
	}
	if cfg.Tinkoff.Endpoint != "invest-public-api.tinkoff.ru:443" {
		t.Fatalf("endpoint=%q", cfg.Tinkoff.Endpoint)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOL", "SBER")
	t.Setenv("TINKOFF_TOKEN", "t-secret")
	cfg, err := Parse([]byte("symbol: GAZP\nexecution:\n  mode: tinkoff\ntinkoff:\n  sandbox: true\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Symbol != "SBER" || cfg.Tinkoff.Token != "t-secret" {
		t.Fatalf("env not applied: %q %q", cfg.Symbol, cfg.Tinkoff.Token)
	}
	if !cfg.IsSandbox() || !strings.HasPrefix(cfg.Tinkoff.Endpoint, "sandbox-") {
		t.Fatalf("sandbox endpoint=%q", cfg.Tinkoff.Endpoint)
	}
}

func TestParseRejects(t *testing.T) {
	t.Setenv("SYMBOL", "")
	t.Setenv("TINKOFF_TOKEN", "t")
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing symbol", "timeframes: [M1]\n", "Symbol"},
		{"unknown timeframe", "symbol: X\ntimeframes: [M2]\n", "timeframes"},
		{"reference outside set", "symbol: X\ntimeframes: [M1, H1]\ntrading:\n  tp_timeframes: [M1]\n", "reference_timeframe"},
		{"bad interval", "symbol: X\ntrading:\n  interval: soon\n", "trading.interval"},
		{"bad reference ma", "symbol: X\nsignal:\n  reference: ma7\n", "Reference"},
		{"telegram without chat", "symbol: X\ntelegram:\n  enabled: true\n  bot_token: abc\n", "chat_id"},
		{"trading hours reversed", "symbol: X\ntrading_hours:\n  enabled: true\n  start: \"18:00\"\n  end: \"10:00\"\n", "trading_hours"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestParseRequiresTokenInEveryMode(t *testing.T) {
	t.Setenv("SYMBOL", "")
	t.Setenv("TINKOFF_TOKEN", "")
	for _, mode := range []string{ModePaper, ModeTinkoff} {
		_, err := Parse([]byte("symbol: X\nexecution:\n  mode: " + mode + "\n"))
		if err == nil || !strings.Contains(err.Error(), "tinkoff.token") {
			t.Fatalf("mode %s: err=%v", mode, err)
		}
	}
	if _, err := Parse([]byte("symbol: X\ntinkoff:\n  token: abc\n")); err != nil {
		t.Fatalf("token from yaml: %v", err)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("symbol: EURUSD\ntinkoff:\n  token: abc\ndeepseek:\n  timeout_seconds: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DEEPSEEK_API_KEY=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SYMBOL", "")
	t.Setenv("DEEPSEEK_API_KEY", "")
	os.Unsetenv("DEEPSEEK_API_KEY")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DeepSeek.APIKey != "from-dotenv" {
		t.Fatalf("api key=%q", cfg.DeepSeek.APIKey)
	}
	if cfg.DeepSeekTimeout() != 5*time.Second {
		t.Fatalf("timeout=%s", cfg.DeepSeekTimeout())
	}
}

func TestTradingWindow(t *testing.T) {
	cfg := &Config{TradingHours: TradingHoursConfig{Start: "10:00", End: "18:40"}}
	start, end, err := cfg.TradingWindow()
	if err != nil {
		t.Fatalf("TradingWindow: %v", err)
	}
	if start != 10*time.Hour || end != 18*time.Hour+40*time.Minute {
		t.Fatalf("window %s-%s", start, end)
	}
}
