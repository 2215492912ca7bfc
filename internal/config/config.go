// Package config loads the SnipeConfig recognized by the strategy engine:
// built-in defaults, optionally overlaid by a YAML file, then overlaid by
// environment variables (loaded from .env via godotenv if present).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/web3guy0/curvesniper/internal/types"
)

// SnipeConfig holds every recognized strategy and ambient-wiring key, all
// defaulted.
type SnipeConfig struct {
	TokenMaxAge            time.Duration    `yaml:"token_max_age"`
	MinInitialMcap         decimal.Decimal  `yaml:"min_initial_mcap"`
	MaxInitialLiquiditySol *decimal.Decimal `yaml:"max_initial_liquidity_sol"` // nil = +inf
	NoTradeTimeoutSec      time.Duration    `yaml:"no_trade_timeout_sec"`
	SkipDevSameTicker      bool             `yaml:"skip_dev_same_ticker"`
	EnableTaxBundlerFilter bool             `yaml:"enable_tax_bundler_filter"`
	MaxTransferFeeBps      int              `yaml:"max_transfer_fee_bps"`
	AllowBundler           bool             `yaml:"allow_bundler"`
	MinRuntimeMcapSol      decimal.Decimal  `yaml:"min_runtime_mcap_sol"`

	TPSWindow time.Duration `yaml:"tps_window_ms"`
	EMAShort  time.Duration `yaml:"ema_short_ms"`
	EMALong   time.Duration `yaml:"ema_long_ms"`
	ATRWindow time.Duration `yaml:"atr_window_sec"`

	MinTPS                 float64         `yaml:"min_tps"`
	MinUniqueWallets       int             `yaml:"min_unique_wallets"`
	MaxAvgSolPerTx         decimal.Decimal `yaml:"max_avg_sol_per_tx"`
	ExceptionalMomentumPct float64         `yaml:"exceptional_momentum_pct"`
	MinLiquiditySol        decimal.Decimal `yaml:"min_liquidity_sol"`
	MinVolumeSol           decimal.Decimal `yaml:"min_volume_sol"`

	TradeSizeSol      decimal.Decimal `yaml:"trade_size_sol"`
	DevBlacklistSec   time.Duration   `yaml:"dev_blacklist_sec"`
	RequireDevSold    bool            `yaml:"require_dev_sold"`
	SkipDevFirstToken bool            `yaml:"skip_dev_first_token"`

	RugLiquidityDropPct float64  `yaml:"rug_liquidity_drop_pct"`
	MigrateFillPct      float64  `yaml:"migrate_fill_pct"`
	TakeProfit          *float64 `yaml:"take_profit"` // nil = unset

	BaseTrailDD          float64 `yaml:"base_trail_dd"`
	TPSTrailScale        float64 `yaml:"tps_trail_scale"`
	ATRMult              float64 `yaml:"atr_mult"`
	DisableEMATPSGainPct float64 `yaml:"disable_ema_tps_gain_pct"`
	ExitTPS              float64 `yaml:"exit_tps"`

	LGBMEnabled       bool    `yaml:"lgbm_enabled"`
	LGBMModelDir      string  `yaml:"lgbm_model_dir"`
	LGBMThresholdBuy  float64 `yaml:"lgbm_threshold_buy"`
	LGBMThresholdSell float64 `yaml:"lgbm_threshold_sell"`
	PureML            bool    `yaml:"pure_ml"`

	FeatureLogging bool   `yaml:"feature_logging"`
	FeatureLogPath string `yaml:"feature_log_path"`
	PredLogging    bool   `yaml:"pred_logging"`
	PredLogPath    string `yaml:"pred_log_path"`

	BundlerPrograms []string `yaml:"bundler_programs"`
	DebugFilters    bool     `yaml:"debug_filters"`

	MaxRiskConcurrency int64 `yaml:"max_risk_concurrency"`

	// Ambient wiring required to run the binary end to end, layered on
	// top of the strategy knobs above.
	SolanaRPCURL     string `yaml:"solana_rpc_url"`
	PoolStreamURL    string `yaml:"pool_stream_url"`
	PriceStreamURL   string `yaml:"price_stream_url"`
	ExecutionSinkURL string `yaml:"execution_sink_url"`
	TelegramToken    string `yaml:"-"`
	TelegramChatID   int64  `yaml:"-"`
	MetricsAddr      string `yaml:"metrics_addr"`
	PersistDSN       string `yaml:"persist_dsn"`
	PersistDriver    string `yaml:"persist_driver"` // "sqlite" | "postgres"
}

// Default returns the engine's built-in defaults.
func Default() SnipeConfig {
	return SnipeConfig{
		TokenMaxAge:            600 * time.Second,
		MinInitialMcap:         decimal.Zero,
		NoTradeTimeoutSec:      60 * time.Second,
		SkipDevSameTicker:      false,
		EnableTaxBundlerFilter: true,
		MaxTransferFeeBps:      0,
		AllowBundler:           false,
		MinRuntimeMcapSol:      decimal.NewFromInt(30),

		TPSWindow: 4000 * time.Millisecond,
		ATRWindow: 20 * time.Second,

		MinTPS:                 5,
		MinUniqueWallets:       0,
		MaxAvgSolPerTx:         decimal.NewFromInt(2),
		ExceptionalMomentumPct: 2.0,

		TradeSizeSol:      decimal.NewFromFloat(0.5),
		DevBlacklistSec:   3600 * time.Second,
		RequireDevSold:    true,
		SkipDevFirstToken: true,

		RugLiquidityDropPct: 0.4,
		MigrateFillPct:      0.97,

		BaseTrailDD:          0.2,
		TPSTrailScale:        0.04,
		ATRMult:              3,
		DisableEMATPSGainPct: 0.3,

		LGBMModelDir:      "models",
		LGBMThresholdBuy:  0.5,
		LGBMThresholdSell: 0.5,

		FeatureLogPath: "data/features.log",
		PredLogPath:    "data/predictions.log",

		BundlerPrograms: []string{"BundLR1osKgkKcQ6PeBwjV7PrRX8V3zqFQ5g9dqDYj6"},

		MaxRiskConcurrency: 6,
		MetricsAddr:        ":9090",
		PersistDriver:      "sqlite",
		PersistDSN:         "data/sniper.db",
	}
}

// Resolve fills derived defaults (exit_tps = max(1, min_tps/2)) and
// validates the loaded config, returning ErrConfigInvalid on failure.
func (c *SnipeConfig) Resolve() error {
	if c.ExitTPS == 0 {
		c.ExitTPS = maxFloat(1, c.MinTPS/2)
	}
	if c.EMAShort <= 0 || c.EMALong <= 0 {
		return fmt.Errorf("%w: ema_short_ms and ema_long_ms must be positive", types.ErrConfigInvalid)
	}
	if c.MaxRiskConcurrency <= 0 {
		return fmt.Errorf("%w: max_risk_concurrency must be positive", types.ErrConfigInvalid)
	}
	return nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Load builds a SnipeConfig from defaults, an optional YAML file at
// yamlPath (skipped entirely if empty), and environment variables.
func Load(yamlPath string) (*SnipeConfig, error) {
	_ = godotenv.Load()

	cfg := Default()
	// ema_short_ms/ema_long_ms have no universal default; set workable
	// built-ins so Resolve doesn't reject an out-of-the-box run.
	cfg.EMAShort = 30 * time.Second
	cfg.EMALong = 120 * time.Second

	if yamlPath != "" {
		raw, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", types.ErrConfigInvalid, yamlPath, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", types.ErrConfigInvalid, yamlPath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Resolve(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnvOverrides(c *SnipeConfig) {
	c.TokenMaxAge = getEnvDuration("TOKEN_MAX_AGE_SEC", c.TokenMaxAge, time.Second)
	c.MinInitialMcap = getEnvDecimal("MIN_INITIAL_MCAP", c.MinInitialMcap)
	c.NoTradeTimeoutSec = getEnvDuration("NO_TRADE_TIMEOUT_SEC", c.NoTradeTimeoutSec, time.Second)
	c.SkipDevSameTicker = getEnvBool("SKIP_DEV_SAME_TICKER", c.SkipDevSameTicker)
	c.EnableTaxBundlerFilter = getEnvBool("ENABLE_TAX_BUNDLER_FILTER", c.EnableTaxBundlerFilter)
	c.MaxTransferFeeBps = getEnvInt("MAX_TRANSFER_FEE_BPS", c.MaxTransferFeeBps)
	c.AllowBundler = getEnvBool("ALLOW_BUNDLER", c.AllowBundler)
	c.MinRuntimeMcapSol = getEnvDecimal("MIN_RUNTIME_MCAP_SOL", c.MinRuntimeMcapSol)

	c.TPSWindow = getEnvDuration("TPS_WINDOW_MS", c.TPSWindow, time.Millisecond)
	c.EMAShort = getEnvDuration("EMA_SHORT_MS", c.EMAShort, time.Millisecond)
	c.EMALong = getEnvDuration("EMA_LONG_MS", c.EMALong, time.Millisecond)
	c.ATRWindow = getEnvDuration("ATR_WINDOW_SEC", c.ATRWindow, time.Second)

	c.MinTPS = getEnvFloat("MIN_TPS", c.MinTPS)
	c.MinUniqueWallets = getEnvInt("MIN_UNIQUE_WALLETS", c.MinUniqueWallets)
	c.MaxAvgSolPerTx = getEnvDecimal("MAX_AVG_SOL_PER_TX", c.MaxAvgSolPerTx)
	c.ExceptionalMomentumPct = getEnvFloat("EXCEPTIONAL_MOMENTUM_PCT", c.ExceptionalMomentumPct)
	c.MinLiquiditySol = getEnvDecimal("MIN_LIQUIDITY_SOL", c.MinLiquiditySol)
	c.MinVolumeSol = getEnvDecimal("MIN_VOLUME_SOL", c.MinVolumeSol)

	c.TradeSizeSol = getEnvDecimal("TRADE_SIZE_SOL", c.TradeSizeSol)
	c.DevBlacklistSec = getEnvDuration("DEV_BLACKLIST_SEC", c.DevBlacklistSec, time.Second)
	c.RequireDevSold = getEnvBool("REQUIRE_DEV_SOLD", c.RequireDevSold)
	c.SkipDevFirstToken = getEnvBool("SKIP_DEV_FIRST_TOKEN", c.SkipDevFirstToken)

	c.RugLiquidityDropPct = getEnvFloat("RUG_LIQUIDITY_DROP_PCT", c.RugLiquidityDropPct)
	c.MigrateFillPct = getEnvFloat("MIGRATE_FILL_PCT", c.MigrateFillPct)
	if v := os.Getenv("TAKE_PROFIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.TakeProfit = &f
		}
	}

	c.BaseTrailDD = getEnvFloat("BASE_TRAIL_DD", c.BaseTrailDD)
	c.TPSTrailScale = getEnvFloat("TPS_TRAIL_SCALE", c.TPSTrailScale)
	c.ATRMult = getEnvFloat("ATR_MULT", c.ATRMult)
	c.DisableEMATPSGainPct = getEnvFloat("DISABLE_EMA_TPS_GAIN_PCT", c.DisableEMATPSGainPct)
	c.ExitTPS = getEnvFloat("EXIT_TPS", c.ExitTPS)

	c.LGBMEnabled = getEnvBool("LGBM_ENABLED", c.LGBMEnabled)
	c.LGBMModelDir = getEnv("LGBM_MODEL_DIR", c.LGBMModelDir)
	c.LGBMThresholdBuy = getEnvFloat("LGBM_THRESHOLD_BUY", c.LGBMThresholdBuy)
	c.LGBMThresholdSell = getEnvFloat("LGBM_THRESHOLD_SELL", c.LGBMThresholdSell)
	c.PureML = getEnvBool("PURE_ML", c.PureML)

	c.FeatureLogging = getEnvBool("FEATURE_LOGGING", c.FeatureLogging)
	c.FeatureLogPath = getEnv("FEATURE_LOG_PATH", c.FeatureLogPath)
	c.PredLogging = getEnvBool("PRED_LOGGING", c.PredLogging)
	c.PredLogPath = getEnv("PRED_LOG_PATH", c.PredLogPath)

	c.DebugFilters = getEnvBool("DEBUG_FILTERS", c.DebugFilters)
	c.MaxRiskConcurrency = int64(getEnvInt("MAX_RISK_CONCURRENCY", int(c.MaxRiskConcurrency)))

	c.SolanaRPCURL = getEnv("SOLANA_RPC_URL", c.SolanaRPCURL)
	c.PoolStreamURL = getEnv("POOL_STREAM_URL", c.PoolStreamURL)
	c.PriceStreamURL = getEnv("PRICE_STREAM_URL", c.PriceStreamURL)
	c.ExecutionSinkURL = getEnv("EXECUTION_SINK_URL", c.ExecutionSinkURL)
	c.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			c.TelegramChatID = id
		}
	}
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.PersistDSN = getEnv("PERSIST_DSN", c.PersistDSN)
	c.PersistDriver = getEnv("PERSIST_DRIVER", c.PersistDriver)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration, unit time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return time.Duration(f * float64(unit))
		}
	}
	return defaultValue
}
