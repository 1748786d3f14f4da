// Package config loads the agent configuration from an optional YAML file
// and the environment, with working defaults for a paper trading session.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all service settings.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Account   AccountConfig   `mapstructure:"account"`
	Guardrail GuardrailConfig `mapstructure:"guardrails"`
	Model     ModelConfig     `mapstructure:"model"`
	Market    MarketConfig    `mapstructure:"market"`
	TradeLog  TradeLogConfig  `mapstructure:"trade_log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AccountConfig struct {
	ID             string  `mapstructure:"id"`
	InitialCapital float64 `mapstructure:"initial_capital"`
	CommissionRate float64 `mapstructure:"commission_rate"`
	Currency       string  `mapstructure:"currency"`
}

type GuardrailConfig struct {
	MaxTradesPerDay int      `mapstructure:"max_trades_per_day"`
	DailyLossCap    float64  `mapstructure:"daily_loss_cap"`
	MaxPositionSize float64  `mapstructure:"max_position_size"`
	MaxDailyVolume  float64  `mapstructure:"max_daily_volume"`
	SessionWindows  []string `mapstructure:"session_windows"`
	IgnoreSession   bool     `mapstructure:"ignore_session"`
	PaperAnytime    bool     `mapstructure:"paper_anytime"`
}

type ModelConfig struct {
	Path       string  `mapstructure:"path"`
	Threshold  float64 `mapstructure:"threshold"`
	GateActive bool    `mapstructure:"gate_active"`
}

type MarketConfig struct {
	// InitialPrices seeds the price bus per symbol.
	InitialPrices    map[string]float64 `mapstructure:"initial_prices"`
	MutationInterval string             `mapstructure:"mutation_interval"`
	MutationPct      float64            `mapstructure:"mutation_pct"`
}

type TradeLogConfig struct {
	DSN string `mapstructure:"dsn"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("account.id", "paper-account-001")
	v.SetDefault("account.initial_capital", 100000.0)
	v.SetDefault("account.commission_rate", 0.001)
	v.SetDefault("account.currency", "USD")

	v.SetDefault("guardrails.max_trades_per_day", 5)
	v.SetDefault("guardrails.daily_loss_cap", 300.0)
	v.SetDefault("guardrails.max_position_size", 50000.0)
	v.SetDefault("guardrails.max_daily_volume", 100000.0)
	v.SetDefault("guardrails.session_windows", []string{"09:30-16:00"})
	v.SetDefault("guardrails.ignore_session", false)
	v.SetDefault("guardrails.paper_anytime", true)

	v.SetDefault("model.path", "models/gate.json")
	v.SetDefault("model.threshold", 0.55)
	v.SetDefault("model.gate_active", true)

	v.SetDefault("market.initial_prices", map[string]float64{
		"AAPL":  150.0,
		"GOOGL": 2800.0,
		"MSFT":  300.0,
		"TSLA":  200.0,
		"AMZN":  3200.0,
	})
	v.SetDefault("market.mutation_interval", "5s")
	v.SetDefault("market.mutation_pct", 0.01)

	v.SetDefault("trade_log.dsn", "trading_agent.db")
}

// Load reads configuration from the given file (optional) and the
// environment. Environment variables use the AGENT_ prefix with dots
// replaced by underscores, e.g. AGENT_SERVER_PORT.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		// A missing default config file is fine; defaults and env apply.
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
