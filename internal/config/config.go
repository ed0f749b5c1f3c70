// Package config loads process configuration from the environment (and an
// optional .env file) and the operator-adjustable automation settings from
// a YAML file that is watched for changes.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"theta_watcher/internal/logger"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	App      AppConfig
	Engine   EngineConfig
	Paper    PaperConfig
	Storage  StorageConfig
	Alpaca   AlpacaConfig
	Telegram TelegramConfig
	HTTP     HTTPConfig
}

type AppConfig struct {
	Env           string `envconfig:"APP_ENV" default:"development"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile       string `envconfig:"LOG_FILE" default:"logs/theta_watcher.log"`
	LogMaxSizeMB  int64  `envconfig:"LOG_MAX_SIZE_MB" default:"10"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"3"`
}

// EngineConfig drives scanning and the tick pipeline.
type EngineConfig struct {
	UseLive         bool     `envconfig:"USE_LIVE" default:"false"`
	AlwaysDryRun    bool     `envconfig:"ALWAYS_DRY_RUN" default:"true"`
	PollIntervalMS  int      `envconfig:"POLL_INTERVAL_MS" default:"6000"`
	IVRPollSec      int      `envconfig:"IVR_POLL_SEC" default:"45"`
	StartingBalance float64  `envconfig:"STARTING_BALANCE" default:"5000"`
	Watchlist       []string `envconfig:"WATCHLIST" default:"AAPL,TSLA,MSFT,NVDA,SPY,QQQ"`
	DeltaMin        float64  `envconfig:"DELTA_MIN" default:"0.20"`
	DeltaMax        float64  `envconfig:"DELTA_MAX" default:"0.30"`
	DTEMin          int      `envconfig:"DTE_MIN" default:"7"`
	DTEMax          int      `envconfig:"DTE_MAX" default:"14"`
	BaseTarget      float64  `envconfig:"PROFIT_CAPTURE_BASE" default:"55"`
	EfficiencyCap   float64  `envconfig:"CAPTURE_EFFICIENCY_CAP" default:"2.0"`
	Slippage        float64  `envconfig:"PAPER_SLIPPAGE" default:"0.02"`
	PriceMoveSD     float64  `envconfig:"PRICE_MOVE_SD_PCT" default:"0.0035"`
	DTEDecay        float64  `envconfig:"DTE_DECAY" default:"0.2"`
	ActionLogMax    int      `envconfig:"ACTION_LOG_MAX" default:"60"`
	ScanHistoryMax  int      `envconfig:"SCAN_HISTORY_MAX" default:"50"`
	DailyProfitGoal float64  `envconfig:"DAILY_PROFIT_GOAL" default:"100"`
	AutoAdd         bool     `envconfig:"AUTO_ADD" default:"true"`
	AutoAddMax      int      `envconfig:"AUTO_ADD_MAX" default:"2"`
	NetworkTimeout  int      `envconfig:"NETWORK_TIMEOUT_SEC" default:"12"`
	MarketRate      float64  `envconfig:"MARKET_RATE_PER_SEC" default:"5"`
}

// PaperConfig seeds the automation settings when no settings file exists.
type PaperConfig struct {
	AutoClose         bool    `envconfig:"PAPER_AUTOCLOSE" default:"true"`
	PartialAt         float64 `envconfig:"PAPER_PARTIAL_AT" default:"50"`
	EarlyLockDiff     float64 `envconfig:"PAPER_EARLYLOCK_DIFF" default:"5"`
	IVRAlertThreshold float64 `envconfig:"IVR_ALERT_THRESHOLD" default:"50"`
	SettingsPath      string  `envconfig:"SETTINGS_PATH" default:"settings.yaml"`
}

type StorageConfig struct {
	StatePath string `envconfig:"STATE_PATH" default:"data/state.json"`
	BackupDir string `envconfig:"BACKUP_DIR" default:"data/backups"`
}

type AlpacaConfig struct {
	KeyID      string `envconfig:"APCA_API_KEY_ID"`
	SecretKey  string `envconfig:"APCA_API_SECRET_KEY"`
	BaseURL    string `envconfig:"APCA_API_BASE_URL" default:"https://paper-api.alpaca.markets"`
	LiveStream bool   `envconfig:"LIVE_STREAM" default:"false"`
}

type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `envconfig:"TELEGRAM_CHAT_ID"`
}

// Enabled reports whether both token and chat are set.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

type HTTPConfig struct {
	Addr string `envconfig:"HTTP_ADDR" default:":8050"`
}

// Load reads an optional .env file, then the environment, then validates.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		logger.Warnf("no .env file found, using system environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and the credentials live mode needs.
func (c *Config) Validate() error {
	var problems []string
	e := c.Engine

	if e.UseLive && (c.Alpaca.KeyID == "" || c.Alpaca.SecretKey == "") {
		problems = append(problems, "USE_LIVE needs APCA_API_KEY_ID and APCA_API_SECRET_KEY")
	}
	if e.PollIntervalMS <= 0 {
		problems = append(problems, "POLL_INTERVAL_MS must be positive")
	}
	if e.StartingBalance <= 0 {
		problems = append(problems, "STARTING_BALANCE must be positive")
	}
	if e.DeltaMin < 0 || e.DeltaMin > e.DeltaMax || e.DeltaMax > 1 {
		problems = append(problems, fmt.Sprintf("delta range %.2f-%.2f is not within 0-1", e.DeltaMin, e.DeltaMax))
	}
	if e.DTEMin < 0 || e.DTEMin > e.DTEMax {
		problems = append(problems, fmt.Sprintf("DTE range %d-%d is inverted", e.DTEMin, e.DTEMax))
	}
	if e.NetworkTimeout <= 0 {
		problems = append(problems, "NETWORK_TIMEOUT_SEC must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// PollInterval is the heartbeat period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalMS) * time.Millisecond
}

// IVRPollInterval is how often the first watchlist symbol's IV rank is read.
func (c *Config) IVRPollInterval() time.Duration {
	if c.Engine.IVRPollSec <= 0 {
		return 45 * time.Second
	}
	return time.Duration(c.Engine.IVRPollSec) * time.Second
}

// Timeout bounds every network call.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Engine.NetworkTimeout) * time.Second
}

// DryRunDefault is true unless live mode is on and dry runs are not forced.
func (c *Config) DryRunDefault() bool {
	return c.Engine.AlwaysDryRun || !c.Engine.UseLive
}

// Mode is "Live" or "Sandbox" for display.
func (c *Config) Mode() string {
	if c.Engine.UseLive {
		return "Live"
	}
	return "Sandbox"
}

var secretKeys = map[string]bool{
	"APCA_API_KEY_ID":     true,
	"APCA_API_SECRET_KEY": true,
	"TELEGRAM_BOT_TOKEN":  true,
	"TELEGRAM_CHAT_ID":    true,
}

// LogEnvFile echoes the variables defined in the .env file with secrets masked.
func LogEnvFile(envFiles ...string) {
	envMap, err := godotenv.Read(envFiles...)
	if err != nil {
		return
	}
	logger.Infof("--- .env file variables ---")
	for _, line := range MaskedEnv(envMap) {
		logger.Infof("%s", line)
	}
}

// MaskedEnv renders KEY=value lines sorted by key, showing only the last
// four characters of secrets.
func MaskedEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		v := env[k]
		if secretKeys[k] {
			v = mask(v)
		}
		out = append(out, k+"="+v)
	}
	return out
}

func mask(v string) string {
	if len(v) > 4 {
		return "***" + v[len(v)-4:]
	}
	return "***"
}
