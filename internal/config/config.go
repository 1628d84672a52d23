// Package config loads and validates the engine's YAML configuration,
// overlaying environment-variable secrets, and supports hot reload for
// the RELOAD_CONFIG IPC command.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// IBKRReconnect controls the realtime provider's reconnect backoff.
type IBKRReconnect struct {
	Enabled              bool          `mapstructure:"enabled"`
	InitialDelay         time.Duration `mapstructure:"initial_delay"`
	MaxDelay             time.Duration `mapstructure:"max_delay"`
	BackoffFactor        float64       `mapstructure:"backoff_factor"`
	MaxAttempts          int           `mapstructure:"max_attempts"`
	HealthCheckInterval  time.Duration `mapstructure:"health_check_interval"`
	GatewayRestartDelay  time.Duration `mapstructure:"gateway_restart_delay"`
}

// IBKRConfig configures the IBKR connection shared by the realtime and
// futures providers.
type IBKRConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	ClientIDBase  int           `mapstructure:"client_id_base"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	Reconnect     IBKRReconnect `mapstructure:"reconnect"`
}

// MarketDataConfig configures the historical/quote data provider
// (named `market_data` or `polygon` in the source config).
type MarketDataConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay"`
}

// DiscordConfig configures the chat-sink webhook transport.
type DiscordConfig struct {
	Webhooks map[string]string `mapstructure:"webhooks"` // breakout|position|market|system
	Default  string            `mapstructure:"default_webhook"`
	Enabled  bool              `mapstructure:"enabled"`
}

// ThreadsConfig sets per-thread poll periods.
type ThreadsConfig struct {
	BreakoutInterval    time.Duration `mapstructure:"breakout_interval"`
	PositionInterval    time.Duration `mapstructure:"position_interval"`
	RegimeInterval      time.Duration `mapstructure:"regime_interval"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
}

// AlertsConfig controls the alert pipeline's suppression/cooldown/routing.
type AlertsConfig struct {
	EnableCooldown    bool              `mapstructure:"enable_cooldown"`
	CooldownMinutes   int               `mapstructure:"cooldown_minutes"`
	EnableSuppression bool              `mapstructure:"enable_suppression"`
	Suppressed        []string          `mapstructure:"suppressed_subtypes"`
	Routing           map[string]string `mapstructure:"alert_routing"` // alert_type -> channel
}

// StopLossConfig, TrailingStopConfig, etc. are the Position Monitor's
// checker-tunable thresholds.
type StopLossConfig struct {
	WarningBufferPct float64 `mapstructure:"warning_buffer_pct"`
}

type TrailingStopConfig struct {
	ActivationPct float64 `mapstructure:"activation_pct"`
	TrailPct      float64 `mapstructure:"trail_pct"`
}

type EightWeekHoldConfig struct {
	GainThresholdPct float64 `mapstructure:"gain_threshold_pct"`
	TriggerWindowDays int    `mapstructure:"trigger_window_days"`
	HoldWeeks        int     `mapstructure:"hold_weeks"`
}

type PyramidConfig struct {
	MinBarsSinceEntry    int     `mapstructure:"min_bars_since_entry"`
	PullbackEMATolerance float64 `mapstructure:"pullback_ema_tolerance"`
}

type TechnicalConfig struct {
	MA50WarningPct       float64 `mapstructure:"ma_50_warning_pct"`
	MA50VolumeConfirm    float64 `mapstructure:"ma_50_volume_confirm"`
	EMA21ConsecutiveDays int     `mapstructure:"ema_21_consecutive_days"`
}

type ClimaxTopConfig struct {
	VolumeThreshold float64 `mapstructure:"volume_threshold"`
	SpreadPct       float64 `mapstructure:"spread_pct"`
	GapPct          float64 `mapstructure:"gap_pct"`
	MinGainPct      float64 `mapstructure:"min_gain_pct"`
	MinScore        float64 `mapstructure:"min_score"`
}

type HealthConfig struct {
	TimeThresholdDays    int     `mapstructure:"time_threshold_days"`
	DeepBaseThreshold    float64 `mapstructure:"deep_base_threshold"`
}

type EarningsConfig struct {
	WarningDays      int     `mapstructure:"warning_days"`
	CriticalDays     int     `mapstructure:"critical_days"`
	NegativeThreshold float64 `mapstructure:"negative_threshold"`
	ReduceThreshold  float64 `mapstructure:"reduce_threshold"`
}

type ExtendedConfig struct {
	WarningPct float64 `mapstructure:"warning_pct"`
	DangerPct  float64 `mapstructure:"danger_pct"`
}

type ReentryConfig struct {
	EMA21TolerancePct float64 `mapstructure:"ema_21_tolerance_pct"`
	MA50TolerancePct  float64 `mapstructure:"ma_50_tolerance_pct"`
	MinVolumeRatio    float64 `mapstructure:"min_volume_ratio"`
}

type AltEntryConfig struct {
	ExtendedMarkerPct float64 `mapstructure:"extended_marker_pct"`
	ExpiryDays        int     `mapstructure:"expiry_days"`
	TolerancePct      float64 `mapstructure:"tolerance_pct"`
	MinVolumeRatio    float64 `mapstructure:"min_volume_ratio"`
}

// PositionMonitoringConfig aggregates every checker's tunables.
type PositionMonitoringConfig struct {
	StopLoss      StopLossConfig              `mapstructure:"stop_loss"`
	TrailingStop  TrailingStopConfig         `mapstructure:"trailing_stop"`
	EightWeekHold EightWeekHoldConfig        `mapstructure:"eight_week_hold"`
	Pyramid       PyramidConfig              `mapstructure:"pyramid"`
	Technical     TechnicalConfig            `mapstructure:"technical"`
	ClimaxTop     ClimaxTopConfig            `mapstructure:"climax_top"`
	Health        HealthConfig               `mapstructure:"health"`
	Earnings      EarningsConfig             `mapstructure:"earnings"`
	Extended      ExtendedConfig             `mapstructure:"extended"`
	Reentry       ReentryConfig              `mapstructure:"reentry"`
	AltEntry      AltEntryConfig             `mapstructure:"alt_entry"`
	Cooldowns     map[string]int             `mapstructure:"cooldowns"` // subtype -> minutes
}

// PositionSizingConfig drives internal/sizing.
type PositionSizingConfig struct {
	PortfolioValue float64 `mapstructure:"portfolio_value"`
	AccountRiskPct float64 `mapstructure:"account_risk_pct"`
	MaxPositionPct float64 `mapstructure:"max_position_pct"`
	InitialPct     float64 `mapstructure:"initial_pct"`
	Pyramid1Pct    float64 `mapstructure:"pyramid1_pct"`
	Pyramid2Pct    float64 `mapstructure:"pyramid2_pct"`
}

// MarketRegimeConfig drives internal/regime's scoring weights.
type MarketRegimeConfig struct {
	DDayLookbackDays    int     `mapstructure:"dday_lookback_days"`
	DDayDeclineThreshold float64 `mapstructure:"dday_decline_threshold_pct"`
	FTDMinGainPct       float64 `mapstructure:"ftd_min_gain_pct"`
	WeightDDay          float64 `mapstructure:"weight_dday"`
	WeightFTD           float64 `mapstructure:"weight_ftd"`
	WeightTrend         float64 `mapstructure:"weight_trend"`
	WeightFutures       float64 `mapstructure:"weight_futures"`
}

// LoggingConfig configures the zap file core.
type LoggingConfig struct {
	BaseDir       string `mapstructure:"base_dir"`
	ConsoleLevel  string `mapstructure:"console_level"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// ServerConfig is the read-only HTTP/WS surface.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig points at the sqlite persistence file.
type DatabaseConfig struct {
	Path    string `mapstructure:"path"`
	Profile string `mapstructure:"profile"` // ledger|cache|standard
}

// IPCConfig configures the local socket the controller listens on.
type IPCConfig struct {
	SocketPath string `mapstructure:"socket_path"`
}

// Config is the whole hierarchical document.
type Config struct {
	IBKR               IBKRConfig               `mapstructure:"ibkr"`
	MarketData         MarketDataConfig         `mapstructure:"market_data"`
	Discord            DiscordConfig            `mapstructure:"discord"`
	Threads            ThreadsConfig            `mapstructure:"threads"`
	Alerts             AlertsConfig             `mapstructure:"alerts"`
	PositionMonitoring PositionMonitoringConfig `mapstructure:"position_monitoring"`
	PositionSizing     PositionSizingConfig     `mapstructure:"position_sizing"`
	MarketRegime       MarketRegimeConfig       `mapstructure:"market_regime"`
	Logging            LoggingConfig            `mapstructure:"logging"`
	Server             ServerConfig             `mapstructure:"server"`
	Database           DatabaseConfig           `mapstructure:"database"`
	IPC                IPCConfig                `mapstructure:"ipc"`
}

// Manager owns the live config and supports RELOAD_CONFIG.
type Manager struct {
	mu   sync.RWMutex
	v    *viper.Viper
	cfg  *Config
	path string
}

// Load reads path (YAML), overlays a .env file in the same directory
// if present, and overlays process environment variables prefixed
// CANSLIM_ (e.g. CANSLIM_DISCORD_DEFAULT_WEBHOOK).
func Load(path string) (*Manager, error) {
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env")) // best effort; secrets may also come from the real environment

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("CANSLIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &Manager{v: v, cfg: &cfg, path: path}, nil
}

// Get returns the current config snapshot. Callers must not mutate it.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Reload re-reads the config file from disk, validates it, and swaps it
// in atomically. Used by the RELOAD_CONFIG IPC command.
func (m *Manager) Reload() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reload config: %w", err)
	}
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal reloaded config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate reloaded config: %w", err)
	}
	m.cfg = &cfg
	return m.cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if cfg.Threads.BreakoutInterval <= 0 {
		return fmt.Errorf("threads.breakout_interval must be positive")
	}
	if cfg.Threads.PositionInterval <= 0 {
		return fmt.Errorf("threads.position_interval must be positive")
	}
	if cfg.Threads.RegimeInterval <= 0 {
		return fmt.Errorf("threads.regime_interval must be positive")
	}
	if cfg.Threads.MaintenanceInterval <= 0 {
		return fmt.Errorf("threads.maintenance_interval must be positive")
	}
	if cfg.PositionSizing.PortfolioValue < 0 {
		return fmt.Errorf("position_sizing.portfolio_value must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("threads.breakout_interval", 60*time.Second)
	v.SetDefault("threads.position_interval", 30*time.Second)
	v.SetDefault("threads.regime_interval", 300*time.Second)
	v.SetDefault("threads.maintenance_interval", 300*time.Second)
	v.SetDefault("alerts.enable_cooldown", true)
	v.SetDefault("alerts.cooldown_minutes", 60)
	v.SetDefault("alerts.enable_suppression", true)
	v.SetDefault("position_monitoring.climax_top.min_score", 50.0)
	v.SetDefault("position_monitoring.stop_loss.warning_buffer_pct", 2.0)
	v.SetDefault("position_monitoring.trailing_stop.activation_pct", 15.0)
	v.SetDefault("position_monitoring.trailing_stop.trail_pct", 8.0)
	v.SetDefault("position_monitoring.eight_week_hold.gain_threshold_pct", 20.0)
	v.SetDefault("position_monitoring.eight_week_hold.trigger_window_days", 21)
	v.SetDefault("position_monitoring.eight_week_hold.hold_weeks", 8)
	v.SetDefault("position_sizing.initial_pct", 50.0)
	v.SetDefault("position_sizing.pyramid1_pct", 25.0)
	v.SetDefault("position_sizing.pyramid2_pct", 25.0)
	v.SetDefault("position_sizing.max_position_pct", 25.0)
	v.SetDefault("position_sizing.account_risk_pct", 0.5)
	v.SetDefault("logging.console_level", "info")
	v.SetDefault("logging.retention_days", 30)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8099)
	v.SetDefault("database.profile", "standard")
	v.SetDefault("ipc.socket_path", "/tmp/canslim-monitor.sock")
}
