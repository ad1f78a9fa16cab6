package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/chidi150c/sentinel/internal/config"
	"github.com/chidi150c/sentinel/internal/executor"
	"github.com/chidi150c/sentinel/internal/ledger"
	"github.com/chidi150c/sentinel/internal/model"
	"github.com/chidi150c/sentinel/internal/orchestrator"
	"github.com/chidi150c/sentinel/internal/portfolio"
	"github.com/chidi150c/sentinel/internal/risk"
	"github.com/chidi150c/sentinel/internal/router"
	"github.com/chidi150c/sentinel/internal/signal"
	"github.com/chidi150c/sentinel/internal/stats"
	"github.com/chidi150c/sentinel/internal/vacuum"
	"github.com/chidi150c/sentinel/internal/venue"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// parsePairs reads the "venue:symbol:spotID:perpID" comma-separated
// format; an empty spec falls back to a single paper BTC-USD pair.
// Only venue.SimVenue-backed adapters are wired in this command (real
// venue clients are out of scope, §1) — "paper" stands in for whatever
// venue name the deployment is paper-trading against.
func parsePairs(spec string) []model.Pair {
	spec = strings.TrimSpace(spec)
	var pairs []model.Pair
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 4 {
			continue
		}
		pairs = append(pairs, model.Pair{
			Venue: model.Venue(parts[0]), Symbol: parts[1], SpotID: parts[2], PerpID: parts[3],
		})
	}
	if len(pairs) == 0 {
		pairs = []model.Pair{{Venue: "paper", Symbol: "BTC-USD", SpotID: "BTC", PerpID: "BTC-PERP"}}
	}
	return pairs
}

// deployment bundles everything buildDeployment wires, so run and
// flatten can share construction without duplicating it.
type deployment struct {
	cfg   *config.Snapshot
	orch  *orchestrator.Orchestrator
	pf    *portfolio.Portfolio
	guard *risk.Guardian
	store ledger.Store
}

func buildDeployment(pairsSpec string, initialSpotUSDT, initialPerpMargin float64, log zerolog.Logger) (*deployment, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	snap := config.NewSnapshot(cfg)
	pairs := parsePairs(pairsSpec)

	// Each venue gets its own circuit breaker + rate limiter (§4.4(i),
	// SPEC_FULL.md "Resilience: circuit breaker & rate limiting"); a
	// venue tripping its breaker falls out of Router eligibility without
	// the Router needing its own per-venue cooldown bookkeeping. 10rps
	// burst 20 is a conservative default for the paper-trading SimVenue
	// this command wires; no dedicated Config knob exists for it yet.
	const venueRPS, venueBurst = 10.0, 20
	venues := make(map[model.Venue]venue.Adapter)
	costModels := make(map[model.Venue]venue.CostModel)
	for _, p := range pairs {
		if _, ok := venues[p.Venue]; ok {
			continue
		}
		sim := venue.NewSimVenue(p.Venue)
		sim.AutoFill = true
		venues[p.Venue] = venue.NewResilient(sim, venueRPS, venueBurst, log)
		costModels[p.Venue] = venue.CostModel{TakerFeeBps: cfg.CrossVenueMarginBps}
	}

	pf := portfolio.New(cfg.VacuumCountsTowardDelta, log)
	for v := range venues {
		pf.SetWallet(model.WalletID{Venue: v, Kind: model.WalletSpotUSDT}, decimal.NewFromFloat(initialSpotUSDT))
		pf.SetWallet(model.WalletID{Venue: v, Kind: model.WalletPerpMargin}, decimal.NewFromFloat(initialPerpMargin))
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	pub := stats.NewPublisher(rdb, log)
	engine := stats.NewEngine(
		time.Duration(cfg.WindowSeconds)*time.Second, cfg.WarmupMin, 10_000, cfg.DepthLevels,
		cfg.StalenessBudget, cfg.HaltStaleness, pub, log,
	)

	depthCache := orchestrator.NewDepthCache(cfg.DepthLevels)

	// ALERT_WEBHOOK_URL is an ops-only knob with no typed Config field,
	// read straight from the environment the way the pack's webhook
	// alerters do; both Guardian and Executor share the one webhook.
	var execAlert executor.Alerter
	var riskAlert risk.Alerter
	if url := os.Getenv("ALERT_WEBHOOK_URL"); url != "" {
		webhook := risk.NewWebhookAlerter(url, log)
		riskAlert, execAlert = webhook, webhook
	}

	exec := executor.New(venues, executor.Params{
		DeltaToleranceNotional: decimal.NewFromFloat(cfg.DeltaToleranceNotional),
		TWAPThreshold:          decimal.NewFromFloat(cfg.TWAPThreshold),
		TWAPClipMax:            decimal.NewFromFloat(cfg.TWAPClipMax),
		TWAPIntervalMin:        cfg.TWAPIntervalMin,
		TWAPIntervalMax:        cfg.TWAPIntervalMax,
		TWAPAbortBps:           cfg.TWAPAbortBps,
		DispatchWindow:         100 * time.Millisecond,
		PollInterval:           250 * time.Millisecond,
	}, execAlert, log)

	sigGen := signal.New(engine, depthCache, pf, exec, signal.Params{
		ZOpen: cfg.ZOpen, ZClose: cfg.ZClose, CoreAllocationPct: cfg.CoreAllocationPct,
		DeltaBlockBps: cfg.DeltaBlockBps, MinNAVFloor: cfg.MinNAVFloor,
		DefaultTTL: cfg.DefaultTTL, MaxSlippageBps: cfg.TWAPAbortBps,
	}, log)

	vacDet := vacuum.New(vacuum.Params{
		Window: time.Duration(cfg.VacuumWindowMS) * time.Millisecond, MinLiqNotional: cfg.VacuumMinLiq,
		Threshold: cfg.VacuumThreshold, MaxHold: cfg.VacuumMaxHold,
		DefaultTTL: cfg.DefaultTTL, MaxSlippageBps: cfg.TWAPAbortBps,
	}, log)

	rtr := router.New(cfg.CrossVenueMarginBps, log)

	rebal := portfolio.NewRebalancer(pf, venues, portfolio.RebalanceParams{
		CompoundingThresholdPct: cfg.MarginCompoundPct, Tier1ThresholdPct: cfg.MarginTier1Pct,
		Tier2TargetPct: cfg.MarginTier2TargetPct,
	}, log)

	guardian := risk.New(pf, risk.Params{
		DeltaWarnBps: cfg.DeltaWarnBps, DeltaBlockBps: cfg.DeltaBlockBps,
		DDReducePct: cfg.DDReducePct, DDSafePct: cfg.DDSafePct,
		MinNAVFloor:             decimal.NewFromFloat(cfg.MinNAVFloor),
		LeverageCap:             cfg.LeverageCap,
		PositionCapPerPair:      decimal.NewFromFloat(cfg.PositionCapPerPair),
		PositionCapAggregate:    decimal.NewFromFloat(cfg.PositionCapAggregate),
		UnrealizedLossReviewPct: cfg.UnrealizedLossReviewPct,
	}, riskAlert, log)

	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	orch := orchestrator.New(orchestrator.Deps{
		Cfg:    snap,
		Venues: orchestrator.VenueSet{Adapters: venues, CostModels: costModels},
		Pairs:  pairs, Stats: engine, Signal: sigGen, Vacuum: vacDet, Router: rtr,
		Executor: exec, Portfolio: pf, Rebalancer: rebal, Guardian: guardian,
		Store: store, DepthCache: depthCache, Log: log,
	})

	return &deployment{cfg: snap, orch: orch, pf: pf, guard: guardian, store: store}, nil
}

func buildStore(cfg config.Config) (ledger.Store, error) {
	if cfg.PostgresDSN == "" {
		return ledger.NewMemoryStore(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return ledger.OpenPostgresStore(ctx, cfg.PostgresDSN)
}
