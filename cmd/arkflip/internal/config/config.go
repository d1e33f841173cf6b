package config

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

type AppConfig struct {
	Asset    string
	Quote    string
	TradeURL string

	CookiePath  string
	ProxyPath   string
	JournalPath string

	BrowserPath string
	DebugPort   int
	UserDataDir string
	Headless    bool

	SpeedFactor float64
	Checks      int

	SizingMin    float64
	SizingMax    float64
	DeductionMin float64
	DeductionMax float64
	IncrementMin float64
	IncrementMax float64

	BuyCheckWait     time.Duration
	SellCheckWaitMin time.Duration
	SellCheckWaitMax time.Duration

	PollInterval    time.Duration
	RestartCooldown time.Duration
	CookieResave    time.Duration

	LogLevel      string
	LogFormatJSON bool
}

func DefaultConfig() AppConfig {
	return AppConfig{
		Asset:            "ETH",
		Quote:            "USDT",
		TradeURL:         "https://arkm.com/trade",
		CookiePath:       "cookies.txt",
		ProxyPath:        "proxy.txt",
		JournalPath:      "arkflip.sqlite3",
		BrowserPath:      "chromium",
		DebugPort:        9222,
		Headless:         false,
		SpeedFactor:      0.5,
		Checks:           3,
		SizingMin:        0.80,
		SizingMax:        0.95,
		DeductionMin:     1,
		DeductionMax:     2,
		IncrementMin:     0.01,
		IncrementMax:     0.04,
		BuyCheckWait:     3 * time.Second,
		SellCheckWaitMin: 5 * time.Second,
		SellCheckWaitMax: 8 * time.Second,
		PollInterval:     10 * time.Second,
		RestartCooldown:  5 * time.Second,
		CookieResave:     10 * time.Minute,
		LogLevel:         "info",
		LogFormatJSON:    false,
	}
}

// NewConfigFlagSet declares the flags against the provided struct but does not parse.
func NewConfigFlagSet(cfg *AppConfig) *pflag.FlagSet {
	fs := pflag.NewFlagSet("arkflip", pflag.ContinueOnError)
	fs.SortFlags = false

	fs.StringVar(&cfg.Asset, "asset", cfg.Asset, "Asset to trade, e.g. ETH or SOL (env: ARKFLIP_ASSET)")
	fs.StringVar(&cfg.Quote, "quote", cfg.Quote, "Quote currency (env: ARKFLIP_QUOTE)")
	fs.StringVar(&cfg.TradeURL, "trade-url", cfg.TradeURL, "Trading page base URL (env: ARKFLIP_TRADE_URL)")

	fs.StringVar(&cfg.CookiePath, "cookie-file", cfg.CookiePath, "Cookie persistence file (env: ARKFLIP_COOKIE_FILE)")
	fs.StringVar(&cfg.ProxyPath, "proxy-file", cfg.ProxyPath, "Proxy URL file (env: ARKFLIP_PROXY_FILE)")
	fs.StringVar(&cfg.JournalPath, "journal-path", cfg.JournalPath, "SQLite decision journal path (env: ARKFLIP_JOURNAL_PATH)")

	fs.StringVar(&cfg.BrowserPath, "browser-path", cfg.BrowserPath, "Chromium binary (env: ARKFLIP_BROWSER_PATH)")
	fs.IntVar(&cfg.DebugPort, "debug-port", cfg.DebugPort, "Remote debugging port (env: ARKFLIP_DEBUG_PORT)")
	fs.StringVar(&cfg.UserDataDir, "user-data-dir", cfg.UserDataDir, "Browser profile directory (env: ARKFLIP_USER_DATA_DIR)")
	fs.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run the browser headless (env: ARKFLIP_HEADLESS)")

	fs.Float64Var(&cfg.SpeedFactor, "speed-factor", cfg.SpeedFactor, "Scales every randomized wait; lower is faster (env: ARKFLIP_SPEED_FACTOR)")
	fs.IntVar(&cfg.Checks, "checks", cfg.Checks, "Observation checks per submitted order (env: ARKFLIP_CHECKS)")

	fs.Float64Var(&cfg.SizingMin, "sizing-min", cfg.SizingMin, "Lower bound of the balance share per order (env: ARKFLIP_SIZING_MIN)")
	fs.Float64Var(&cfg.SizingMax, "sizing-max", cfg.SizingMax, "Upper bound of the balance share per order (env: ARKFLIP_SIZING_MAX)")
	fs.Float64Var(&cfg.DeductionMin, "deduction-min", cfg.DeductionMin, "Lower bound of the buy-side quote holdback (env: ARKFLIP_DEDUCTION_MIN)")
	fs.Float64Var(&cfg.DeductionMax, "deduction-max", cfg.DeductionMax, "Upper bound of the buy-side quote holdback (env: ARKFLIP_DEDUCTION_MAX)")
	fs.Float64Var(&cfg.IncrementMin, "increment-min", cfg.IncrementMin, "Lower bound of the sell target increment (env: ARKFLIP_INCREMENT_MIN)")
	fs.Float64Var(&cfg.IncrementMax, "increment-max", cfg.IncrementMax, "Upper bound of the sell target increment (env: ARKFLIP_INCREMENT_MAX)")

	fs.DurationVar(&cfg.BuyCheckWait, "buy-check-wait", cfg.BuyCheckWait, "Wait between buy-order observation checks (env: ARKFLIP_BUY_CHECK_WAIT)")
	fs.DurationVar(&cfg.SellCheckWaitMin, "sell-check-wait-min", cfg.SellCheckWaitMin, "Lower bound of the sell-order check wait (env: ARKFLIP_SELL_CHECK_WAIT_MIN)")
	fs.DurationVar(&cfg.SellCheckWaitMax, "sell-check-wait-max", cfg.SellCheckWaitMax, "Upper bound of the sell-order check wait (env: ARKFLIP_SELL_CHECK_WAIT_MAX)")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Wait while an open order blocks the next phase (env: ARKFLIP_POLL_INTERVAL)")
	fs.DurationVar(&cfg.RestartCooldown, "restart-cooldown", cfg.RestartCooldown, "Pause before relaunching after a session crash (env: ARKFLIP_RESTART_COOLDOWN)")
	fs.DurationVar(&cfg.CookieResave, "cookie-resave", cfg.CookieResave, "Interval between cookie snapshots (env: ARKFLIP_COOKIE_RESAVE)")

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (env: ARKFLIP_LOG_LEVEL)")
	fs.BoolVar(&cfg.LogFormatJSON, "log-json", cfg.LogFormatJSON, "Emit logs as JSON (env: ARKFLIP_LOG_JSON)")

	return fs
}

// ApplyEnvDefaults inspects flags that were left at their zero value and pulls from env.
func ApplyEnvDefaults(fs *pflag.FlagSet, cfg *AppConfig) error {
	flagSet := map[string]struct{}{}
	fs.Visit(func(f *pflag.Flag) { flagSet[f.Name] = struct{}{} })

	setString := func(name, envKey string, target *string) {
		if _, ok := flagSet[name]; ok {
			return
		}
		if v, ok := os.LookupEnv(envKey); ok && v != "" {
			*target = v
		}
	}
	setInt := func(name, envKey string, target *int) {
		if _, ok := flagSet[name]; ok {
			return
		}
		if v, ok := os.LookupEnv(envKey); ok {
			if parsed, err := strconv.Atoi(v); err == nil {
				*target = parsed
			}
		}
	}
	setBool := func(name, envKey string, target *bool) {
		if _, ok := flagSet[name]; ok {
			return
		}
		if v, ok := os.LookupEnv(envKey); ok {
			if parsed, err := strconv.ParseBool(v); err == nil {
				*target = parsed
			}
		}
	}
	setFloat := func(name, envKey string, target *float64) {
		if _, ok := flagSet[name]; ok {
			return
		}
		if v, ok := os.LookupEnv(envKey); ok {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				*target = parsed
			}
		}
	}
	setDuration := func(name, envKey string, target *time.Duration) {
		if _, ok := flagSet[name]; ok {
			return
		}
		if v, ok := os.LookupEnv(envKey); ok {
			if parsed, err := time.ParseDuration(v); err == nil {
				*target = parsed
			}
		}
	}

	setString("asset", "ARKFLIP_ASSET", &cfg.Asset)
	setString("quote", "ARKFLIP_QUOTE", &cfg.Quote)
	setString("trade-url", "ARKFLIP_TRADE_URL", &cfg.TradeURL)

	setString("cookie-file", "ARKFLIP_COOKIE_FILE", &cfg.CookiePath)
	setString("proxy-file", "ARKFLIP_PROXY_FILE", &cfg.ProxyPath)
	setString("journal-path", "ARKFLIP_JOURNAL_PATH", &cfg.JournalPath)

	setString("browser-path", "ARKFLIP_BROWSER_PATH", &cfg.BrowserPath)
	setInt("debug-port", "ARKFLIP_DEBUG_PORT", &cfg.DebugPort)
	setString("user-data-dir", "ARKFLIP_USER_DATA_DIR", &cfg.UserDataDir)
	setBool("headless", "ARKFLIP_HEADLESS", &cfg.Headless)

	setFloat("speed-factor", "ARKFLIP_SPEED_FACTOR", &cfg.SpeedFactor)
	setInt("checks", "ARKFLIP_CHECKS", &cfg.Checks)

	setFloat("sizing-min", "ARKFLIP_SIZING_MIN", &cfg.SizingMin)
	setFloat("sizing-max", "ARKFLIP_SIZING_MAX", &cfg.SizingMax)
	setFloat("deduction-min", "ARKFLIP_DEDUCTION_MIN", &cfg.DeductionMin)
	setFloat("deduction-max", "ARKFLIP_DEDUCTION_MAX", &cfg.DeductionMax)
	setFloat("increment-min", "ARKFLIP_INCREMENT_MIN", &cfg.IncrementMin)
	setFloat("increment-max", "ARKFLIP_INCREMENT_MAX", &cfg.IncrementMax)

	setDuration("buy-check-wait", "ARKFLIP_BUY_CHECK_WAIT", &cfg.BuyCheckWait)
	setDuration("sell-check-wait-min", "ARKFLIP_SELL_CHECK_WAIT_MIN", &cfg.SellCheckWaitMin)
	setDuration("sell-check-wait-max", "ARKFLIP_SELL_CHECK_WAIT_MAX", &cfg.SellCheckWaitMax)
	setDuration("poll-interval", "ARKFLIP_POLL_INTERVAL", &cfg.PollInterval)
	setDuration("restart-cooldown", "ARKFLIP_RESTART_COOLDOWN", &cfg.RestartCooldown)
	setDuration("cookie-resave", "ARKFLIP_COOKIE_RESAVE", &cfg.CookieResave)

	setString("log-level", "ARKFLIP_LOG_LEVEL", &cfg.LogLevel)
	setBool("log-json", "ARKFLIP_LOG_JSON", &cfg.LogFormatJSON)

	return nil
}

func ValidateConfig(cfg AppConfig) error {
	var missing []string
	if strings.TrimSpace(cfg.Asset) == "" {
		missing = append(missing, "asset")
	}
	if strings.TrimSpace(cfg.Quote) == "" {
		missing = append(missing, "quote")
	}
	if strings.TrimSpace(cfg.TradeURL) == "" {
		missing = append(missing, "trade-url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if cfg.SpeedFactor <= 0 {
		return fmt.Errorf("speed-factor must be positive, got %v", cfg.SpeedFactor)
	}
	if cfg.Checks < 1 {
		return fmt.Errorf("checks must be at least 1, got %d", cfg.Checks)
	}
	type band struct {
		name     string
		min, max float64
	}
	for _, b := range []band{
		{"sizing", cfg.SizingMin, cfg.SizingMax},
		{"deduction", cfg.DeductionMin, cfg.DeductionMax},
		{"increment", cfg.IncrementMin, cfg.IncrementMax},
	} {
		if b.min > b.max {
			return fmt.Errorf("%s-min %v exceeds %s-max %v", b.name, b.min, b.name, b.max)
		}
	}
	if cfg.SizingMin <= 0 || cfg.SizingMax > 1 {
		return fmt.Errorf("sizing band must sit inside (0, 1], got [%v, %v]", cfg.SizingMin, cfg.SizingMax)
	}
	if cfg.IncrementMin <= 0 {
		return fmt.Errorf("increment-min must be positive so sell targets clear the reference, got %v", cfg.IncrementMin)
	}
	if cfg.SellCheckWaitMin > cfg.SellCheckWaitMax {
		return fmt.Errorf("sell-check-wait-min %v exceeds sell-check-wait-max %v", cfg.SellCheckWaitMin, cfg.SellCheckWaitMax)
	}
	return nil
}

func GetLogHandler(cfg AppConfig) slog.Handler {
	var level slog.Level
	if cfg.LogLevel == "" {
		level = slog.LevelInfo
	} else if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
		log.Printf("unknown log level %q, defaulting to info", cfg.LogLevel)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}

	return handler
}
