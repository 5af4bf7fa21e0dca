package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App AppConfig `mapstructure:"app"`
	Log LogConfig `mapstructure:"log"`
	DB  DBConfig  `mapstructure:"db"`

	Cron      CronConfig      `mapstructure:"cron"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Tax       TaxConfig       `mapstructure:"tax"`
	Broker    BrokerConfig    `mapstructure:"broker"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	GeneratorScan string `mapstructure:"generator_scan"`
	SignalExpiry  string `mapstructure:"signal_expiry"`
	Snapshot      string `mapstructure:"snapshot"`
}

type GeneratorConfig struct {
	DailyMoveTriggerPct   float64 `mapstructure:"daily_move_trigger_pct"`
	FiveDayMoveTriggerPct float64 `mapstructure:"five_day_move_trigger_pct"`

	// Blocking gates, applied to BUY candidates only.
	MinConviction      float64 `mapstructure:"min_conviction"`
	MinThesisAgeDays   int     `mapstructure:"min_thesis_age_days"`
	MinResearchUpdates int     `mapstructure:"min_research_updates"`
	EarningsBlockDays  int     `mapstructure:"earnings_block_days"`

	BasePositionPct  float64 `mapstructure:"base_position_pct"`
	MinConfidence    float64 `mapstructure:"min_confidence"`
	NewsLookbackDays int     `mapstructure:"news_lookback_days"`
	PolTradeDays     int     `mapstructure:"pol_trade_days"`
}

type ScoringConfig struct {
	ExpertiseDomains []string `mapstructure:"expertise_domains"`
	ExpertiseBoost   float64  `mapstructure:"expertise_boost"`
	ExpertisePenalty float64  `mapstructure:"expertise_penalty"`
}

type LifecycleConfig struct {
	PendingTTL time.Duration `mapstructure:"pending_ttl"`
}

type RiskConfig struct {
	MaxPositionPct   float64 `mapstructure:"max_position_pct"`
	MaxGrossExposure float64 `mapstructure:"max_gross_exposure"`
	NetExposureMin   float64 `mapstructure:"net_exposure_min"`
	NetExposureMax   float64 `mapstructure:"net_exposure_max"`
	MaxDrawdown      float64 `mapstructure:"max_drawdown"`
	DailyLossLimit   float64 `mapstructure:"daily_loss_limit"`
}

type TaxConfig struct {
	OrdinaryRate    float64 `mapstructure:"ordinary_rate"`
	CapitalGainRate float64 `mapstructure:"capital_gain_rate"`
	WashWindowDays  int     `mapstructure:"wash_window_days"`
	HarvestMinLoss  float64 `mapstructure:"harvest_min_loss"`
	HarvestMinPct   float64 `mapstructure:"harvest_min_pct"`
	ShortHorizonMo  int     `mapstructure:"short_horizon_months"`
}

type BrokerConfig struct {
	Mode       string        `mapstructure:"mode"` // sim | alpaca
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	JitterFrac float64       `mapstructure:"jitter_frac"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.generator_scan", "@every 15m")
	v.SetDefault("cron.signal_expiry", "@every 5m")
	v.SetDefault("cron.snapshot", "@every 1h")

	v.SetDefault("generator.daily_move_trigger_pct", 2.0)
	v.SetDefault("generator.five_day_move_trigger_pct", 5.0)
	v.SetDefault("generator.min_conviction", 0.70)
	v.SetDefault("generator.min_thesis_age_days", 7)
	v.SetDefault("generator.min_research_updates", 2)
	v.SetDefault("generator.earnings_block_days", 5)
	v.SetDefault("generator.base_position_pct", 0.02)
	v.SetDefault("generator.min_confidence", 0.30)
	v.SetDefault("generator.news_lookback_days", 7)
	v.SetDefault("generator.pol_trade_days", 90)

	v.SetDefault("scoring.expertise_domains", []string{})
	v.SetDefault("scoring.expertise_boost", 1.15)
	v.SetDefault("scoring.expertise_penalty", 0.90)

	v.SetDefault("lifecycle.pending_ttl", "24h")

	v.SetDefault("risk.max_position_pct", 0.15)
	v.SetDefault("risk.max_gross_exposure", 1.5)
	v.SetDefault("risk.net_exposure_min", -0.3)
	v.SetDefault("risk.net_exposure_max", 1.3)
	v.SetDefault("risk.max_drawdown", 0.2)
	v.SetDefault("risk.daily_loss_limit", 0.03)

	v.SetDefault("tax.ordinary_rate", 0.37)
	v.SetDefault("tax.capital_gain_rate", 0.20)
	v.SetDefault("tax.wash_window_days", 30)
	v.SetDefault("tax.harvest_min_loss", 1000)
	v.SetDefault("tax.harvest_min_pct", 0.05)
	v.SetDefault("tax.short_horizon_months", 6)

	v.SetDefault("broker.mode", "sim")
	v.SetDefault("broker.max_retries", 3)
	v.SetDefault("broker.base_delay", "500ms")
	v.SetDefault("broker.jitter_frac", 0.2)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
