package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every knob enumerated in spec §6, plus the ops knobs the
// teacher's Config carried (Port, DryRun).
type Config struct {
	// Statistical Engine (§4.1, §6)
	WindowSeconds  int
	DepthLevels    int
	WarmupMin      int
	StalenessBudget time.Duration
	HaltStaleness   time.Duration

	// Signal Generator (§4.2, §6)
	SignalPeriodMS int
	ZOpen          float64
	ZClose         float64
	CoreAllocationPct float64

	// Vacuum Detector (§4.3, §6)
	VacuumThreshold float64
	VacuumMinLiq    float64
	VacuumWindowMS  int
	VacuumMaxHold   time.Duration

	// Cross-venue Router (§4.4)
	CrossVenueMarginBps float64

	// Atomic Executor (§4.5, §6)
	TWAPThreshold   float64
	TWAPClipMax     float64
	TWAPIntervalMin time.Duration
	TWAPIntervalMax time.Duration
	TWAPAbortBps    float64
	DefaultTTL      time.Duration
	DeltaToleranceNotional float64

	// Risk Guardian (§4.7, §6)
	DeltaWarnBps         float64
	DeltaBlockBps        float64
	DDReducePct          float64
	DDSafePct            float64
	MinNAVFloor          float64
	LeverageCap          float64
	PositionCapPerPair   float64
	PositionCapAggregate float64
	UnrealizedLossReviewPct float64

	// Portfolio Rebalancer (§4.6, §6)
	MarginCompoundPct float64
	MarginTier1Pct    float64
	MarginTier2TargetPct float64

	// Open Question flag (§9)
	VacuumCountsTowardDelta bool

	// Ops
	Port   int
	DryRun bool

	PostgresDSN string
	RedisAddr   string
}

// Load reads .env via godotenv (ignored if absent — matches the teacher's
// "never requires shell exports" behavior) then builds a Config from the
// process environment, applying the defaults named in spec §6.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		WindowSeconds:   getEnvInt("WINDOW_SECONDS", 3600),
		DepthLevels:     getEnvInt("DEPTH_LEVELS", 10),
		WarmupMin:       getEnvInt("WARMUP_MIN", 30),
		StalenessBudget: time.Duration(getEnvFloat("STALENESS_BUDGET_S", 2)) * time.Second,
		HaltStaleness:   time.Duration(getEnvFloat("HALT_STALENESS_S", 10)) * time.Second,

		SignalPeriodMS:    getEnvInt("SIGNAL_PERIOD_MS", 200),
		ZOpen:             getEnvFloat("Z_OPEN", 2.0),
		ZClose:            getEnvFloat("Z_CLOSE", 0.0),
		CoreAllocationPct: getEnvFloat("CORE_ALLOCATION_PCT", 50),

		VacuumThreshold: getEnvFloat("VACUUM_THRESHOLD", 0.005),
		VacuumMinLiq:    getEnvFloat("VACUUM_MIN_LIQ", 1_000_000),
		VacuumWindowMS:  getEnvInt("VACUUM_WINDOW_MS", 10_000),
		VacuumMaxHold:   time.Duration(getEnvInt("VACUUM_MAX_HOLD_S", 3600)) * time.Second,

		CrossVenueMarginBps: getEnvFloat("CROSS_VENUE_MARGIN_BPS", 5),

		TWAPThreshold:          getEnvFloat("TWAP_THRESHOLD", 5000),
		TWAPClipMax:            getEnvFloat("TWAP_CLIP_MAX", 500),
		TWAPIntervalMin:        time.Duration(getEnvInt("TWAP_INTERVAL_MIN_S", 30)) * time.Second,
		TWAPIntervalMax:        time.Duration(getEnvInt("TWAP_INTERVAL_MAX_S", 90)) * time.Second,
		TWAPAbortBps:           getEnvFloat("TWAP_ABORT_BPS", 20),
		DefaultTTL:             time.Duration(getEnvFloat("DEFAULT_TTL_S", 5)) * time.Second,
		DeltaToleranceNotional: getEnvFloat("DELTA_TOLERANCE_NOTIONAL", 50),

		DeltaWarnBps:  getEnvFloat("DELTA_WARN_BPS", 200),
		DeltaBlockBps: getEnvFloat("DELTA_BLOCK_BPS", 500),
		DDReducePct:   getEnvFloat("DD_REDUCE_PCT", 5),
		DDSafePct:     getEnvFloat("DD_SAFE_PCT", 10),
		MinNAVFloor:   getEnvFloat("MIN_NAV_FLOOR", 0),
		LeverageCap:          getEnvFloat("LEVERAGE_CAP", 3),
		PositionCapPerPair:   getEnvFloat("POSITION_CAP_PER_PAIR", 50_000),
		PositionCapAggregate: getEnvFloat("POSITION_CAP_AGGREGATE", 250_000),
		UnrealizedLossReviewPct: getEnvFloat("UNREALIZED_LOSS_REVIEW_PCT", 10),

		MarginCompoundPct:    getEnvFloat("MARGIN_COMPOUND_PCT", 5),
		MarginTier1Pct:       getEnvFloat("MARGIN_TIER1_PCT", 30),
		MarginTier2TargetPct: getEnvFloat("MARGIN_TIER2_TARGET_PCT", 20),

		VacuumCountsTowardDelta: getEnvBool("VACUUM_COUNTS_TOWARD_DELTA", true),

		Port:   getEnvInt("PORT", 8080),
		DryRun: getEnvBool("DRY_RUN", true),

		PostgresDSN: getEnv("POSTGRES_DSN", ""),
		RedisAddr:   getEnv("REDIS_ADDR", ""),
	}
}

// Validate fails fast on configuration that cannot produce correct
// behavior (§7 "Configuration/validation: fail fast at startup").
func (c Config) Validate() error {
	switch {
	case c.WindowSeconds <= 0:
		return fmt.Errorf("%w: window_seconds must be > 0", errInvalid)
	case c.WarmupMin <= 0:
		return fmt.Errorf("%w: warmup_min must be > 0", errInvalid)
	case c.DepthLevels <= 0:
		return fmt.Errorf("%w: depth_levels must be > 0", errInvalid)
	case c.ZClose >= c.ZOpen:
		return fmt.Errorf("%w: z_close must be < z_open", errInvalid)
	case c.VacuumThreshold <= 0:
		return fmt.Errorf("%w: vacuum_threshold must be > 0", errInvalid)
	case c.TWAPClipMax <= 0:
		return fmt.Errorf("%w: twap_clip_max must be > 0", errInvalid)
	case c.DeltaWarnBps <= 0 || c.DeltaBlockBps <= c.DeltaWarnBps:
		return fmt.Errorf("%w: delta_block_bps must be > delta_warn_bps > 0", errInvalid)
	case c.DDSafePct <= c.DDReducePct:
		return fmt.Errorf("%w: dd_safe_pct must be > dd_reduce_pct", errInvalid)
	case c.MarginTier1Pct <= c.MarginCompoundPct:
		return fmt.Errorf("%w: margin_tier1_pct must be > margin_compound_pct", errInvalid)
	case c.CoreAllocationPct < 0 || c.CoreAllocationPct > 100:
		return fmt.Errorf("%w: core_allocation_pct must be within [0,100]", errInvalid)
	case c.LeverageCap <= 0:
		return fmt.Errorf("%w: leverage_cap must be > 0", errInvalid)
	case c.PositionCapPerPair <= 0 || c.PositionCapAggregate < c.PositionCapPerPair:
		return fmt.Errorf("%w: position_cap_aggregate must be >= position_cap_per_pair > 0", errInvalid)
	}
	return nil
}
