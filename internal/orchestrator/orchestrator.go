// Package orchestrator – Event loop, cancellation, and wiring (§5).
//
// Grounded on the teacher's main.go boot sequence (wire broker + model +
// trader, start metrics server, run the live loop) and live.go's ticking
// loop (fixed-interval scan, single goroutine driving decisions); this
// package generalizes that single-broker, single-interval loop into the
// Sentinel core's multiple concurrent tasks (§5): per-venue market-data
// ingestion, a statistics task, a signal task, an Executor task, and
// periodic Rebalancer/Risk tasks, all owned by one cancellation tree
// rooted in the context passed to Run.
package orchestrator

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/chidi150c/sentinel/internal/config"
	"github.com/chidi150c/sentinel/internal/executor"
	"github.com/chidi150c/sentinel/internal/ledger"
	"github.com/chidi150c/sentinel/internal/model"
	"github.com/chidi150c/sentinel/internal/portfolio"
	"github.com/chidi150c/sentinel/internal/risk"
	"github.com/chidi150c/sentinel/internal/router"
	"github.com/chidi150c/sentinel/internal/signal"
	"github.com/chidi150c/sentinel/internal/stats"
	"github.com/chidi150c/sentinel/internal/telemetry"
	"github.com/chidi150c/sentinel/internal/vacuum"
	"github.com/chidi150c/sentinel/internal/venue"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// VenueSet is every adapter and its cost model the orchestrator can
// route across. Cost-model lookup is kept here rather than on
// venue.Adapter because cost terms (fees, rebates, transfer cost) are
// commercial/contractual, not a property the adapter protocol itself
// carries (§4.4, §6).
type VenueSet struct {
	Adapters   map[model.Venue]venue.Adapter
	CostModels map[model.Venue]venue.CostModel
}

// Orchestrator wires every component named in §4 into the task graph
// described in §5 and owns the root cancellation scope.
type Orchestrator struct {
	cfg    *config.Snapshot
	venues VenueSet
	pairs  []model.Pair

	stats      *stats.Engine
	signalGen  *signal.Generator
	vacuumDet  *vacuum.Detector
	router     *router.Router
	exec       *executor.Executor
	portfolio  *portfolio.Portfolio
	rebalancer *portfolio.Rebalancer
	guardian   *risk.Guardian
	store      ledger.Store
	depthCache *DepthCache

	log zerolog.Logger

	mu            sync.Mutex
	openPosition  map[string]string // pair.Key()+"/"+kind -> OpeningIntentID, while the matching position is open

	dispatchWG sync.WaitGroup // outstanding spawnDispatch goroutines, drained on shutdown
}

// Deps bundles every pre-constructed component New requires; the root
// composition object (cmd/sentinel) builds each of these per Design
// Notes §9 ("global singletons become explicit dependencies passed into
// components at construction; a root composition object assembles
// them").
type Deps struct {
	Cfg        *config.Snapshot
	Venues     VenueSet
	Pairs      []model.Pair
	Stats      *stats.Engine
	Signal     *signal.Generator
	Vacuum     *vacuum.Detector
	Router     *router.Router
	Executor   *executor.Executor
	Portfolio  *portfolio.Portfolio
	Rebalancer *portfolio.Rebalancer
	Guardian   *risk.Guardian
	Store      ledger.Store
	DepthCache *DepthCache
	Log        zerolog.Logger
}

func New(d Deps) *Orchestrator {
	return &Orchestrator{
		cfg: d.Cfg, venues: d.Venues, pairs: d.Pairs,
		stats: d.Stats, signalGen: d.Signal, vacuumDet: d.Vacuum, router: d.Router,
		exec: d.Executor, portfolio: d.Portfolio, rebalancer: d.Rebalancer, guardian: d.Guardian,
		store: d.Store, depthCache: d.DepthCache, log: d.Log.With().Str("component", "orchestrator").Logger(),
		openPosition: make(map[string]string),
	}
}

// Run starts every long-lived task (§5 items 1-6) plus the health
// endpoint and blocks until ctx is canceled. Task failures are logged
// and the task idles rather than crashing the process, matching §7's
// "the core continues to serve statistics and read-only queries under
// SAFE_MODE" resilience stance.
func (o *Orchestrator) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for _, pair := range o.pairs {
		pair := pair
		wg.Add(1)
		go func() { defer wg.Done(); o.marketDataTask(ctx, pair) }()
	}
	for v, a := range o.venues.Adapters {
		v, a := v, a
		wg.Add(1)
		go func() { defer wg.Done(); o.liquidationTask(ctx, v, a) }()
	}

	wg.Add(1)
	go func() { defer wg.Done(); o.signalTask(ctx) }()

	wg.Add(1)
	go func() { defer wg.Done(); o.rebalanceTask(ctx) }()

	wg.Add(1)
	go func() { defer wg.Done(); o.riskTask(ctx) }()

	wg.Add(1)
	go func() { defer wg.Done(); o.healthTask(ctx) }()

	wg.Add(1)
	go func() { defer wg.Done(); o.snapshotTask(ctx) }()

	wg.Wait()
	o.dispatchWG.Wait()
}

// spawnDispatch runs dispatchIntent on its own goroutine so a
// long-running TWAP Intent on one pair (up to dozens of 30-90s clips,
// §4.5 step 4) never stalls signal evaluation or market-data-triggered
// dispatch for unrelated pairs (§5 item 4 "each Intent runs as a
// structured subtask... cancellable as a unit"). Neither spawnDispatch
// nor dispatchIntent consults Executor.InFlight; only the Signal
// Generator's Evaluate skips pairs with an Intent in flight, so a
// Vacuum or CORE-sizing dispatch can run concurrently with another
// Intent on the same pair.
func (o *Orchestrator) spawnDispatch(ctx context.Context, in model.Intent) {
	o.dispatchWG.Add(1)
	go func() {
		defer o.dispatchWG.Done()
		o.dispatchIntent(ctx, in)
	}()
}

// snapshotTask persists portfolio_state for crash recovery every 60s.
// No snapshot is written on individual mutations; closed trades and
// rebalance actions are recorded inline in their own logs instead.
func (o *Orchestrator) snapshotTask(ctx context.Context) {
	if o.store == nil {
		return
	}
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			_ = o.store.RecordSnapshot(ctx, ledger.SnapshotRecord{At: now, Snapshot: o.portfolio.Snapshot()})
		}
	}
}

// marketDataTask is one per-pair market-data task (§5 item 1): it
// subscribes the pair's spot and perp book streams and, on every
// update, refreshes marks, feeds the Statistical Engine, and evaluates
// the Vacuum Detector's basis trigger.
func (o *Orchestrator) marketDataTask(ctx context.Context, pair model.Pair) {
	adapter, ok := o.venues.Adapters[pair.Venue]
	if !ok {
		o.log.Error().Str("pair", pair.Key()).Msg("no venue adapter for pair")
		return
	}
	spotCh, err := adapter.SubscribeBook(ctx, pair.SpotID, model.SideSpot)
	if err != nil {
		o.log.Error().Err(err).Str("pair", pair.Key()).Msg("subscribe spot book failed")
		return
	}
	perpCh, err := adapter.SubscribeBook(ctx, pair.PerpID, model.SidePerp)
	if err != nil {
		o.log.Error().Err(err).Str("pair", pair.Key()).Msg("subscribe perp book failed")
		return
	}

	var lastSpot, lastPerp *model.BookSnapshot
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-spotCh:
			if !ok {
				return
			}
			cp := s
			lastSpot = &cp
			o.onPairedBooks(ctx, pair, lastSpot, lastPerp)
		case p, ok := <-perpCh:
			if !ok {
				return
			}
			cp := p
			lastPerp = &cp
			o.onPairedBooks(ctx, pair, lastSpot, lastPerp)
		}
	}
}

// onPairedBooks is the statistics task's per-pair ingest step (§5 item
// 2): a BookSnapshot only advances the Statistical Engine once both
// sides of the pair have a reading. Back-pressure (drop-oldest) is
// internal to stats.Engine.Ingest's bounded window; here it surfaces as
// the DroppedSnapshotsTotal counter when Ingest rejects a stale/crossed
// pairing.
func (o *Orchestrator) onPairedBooks(ctx context.Context, pair model.Pair, spot, perp *model.BookSnapshot) {
	if spot == nil || perp == nil {
		return
	}
	now := time.Now()
	cfg := o.cfg.Get()
	targetNotional := o.satelliteNotional(cfg)
	sample, err := o.stats.Ingest(pair, *spot, *perp, targetNotional, now)
	if err != nil {
		telemetry.DroppedSnapshotsTotal.WithLabelValues(pair.Key()).Inc()
		return
	}
	o.portfolio.SetMarks(pair, portfolio.Marks{SpotPrice: spot.Mid(), PerpPrice: perp.Mid()})
	if o.depthCache != nil {
		o.depthCache.Update(pair, spot, perp, targetNotional)
	}

	if in, ok := o.vacuumDet.OnBasisUpdate(pair, sample.Basis, decimalFromFloat(targetNotional), now); ok {
		if in.Kind == model.VacuumOpen {
			telemetry.VacuumCapturesTotal.WithLabelValues(pair.Key()).Inc()
		}
		o.spawnDispatch(ctx, in)
	}
}

// satelliteNotional is the capital-policy size for a SATELLITE/VACUUM
// Intent: NAV not already committed to CORE hedges, split evenly across
// configured pairs (§4.2 "target notional per capital policy"; the
// CORE/SATELLITE split itself is core_allocation_pct, §6).
func (o *Orchestrator) satelliteNotional(cfg config.Config) float64 {
	n := len(o.pairs)
	if n == 0 {
		n = 1
	}
	nav := o.portfolio.NAV()
	satellitePct := decimal.NewFromFloat((100 - cfg.CoreAllocationPct) / 100)
	per := nav.Mul(satellitePct).Div(decimal.NewFromInt(int64(n)))
	f, _ := per.Float64()
	if f <= 0 {
		return cfg.TWAPClipMax
	}
	return f
}

// liquidationTask is the per-venue liquidation stream consumer feeding
// the Vacuum Detector's sliding window (§4.3 step 1, §5 item 1).
func (o *Orchestrator) liquidationTask(ctx context.Context, v model.Venue, a venue.Adapter) {
	var wg sync.WaitGroup
	for _, pair := range o.pairs {
		if pair.Venue != v {
			continue
		}
		pair := pair
		ch, err := a.SubscribeLiquidations(ctx, pair.Symbol)
		if err != nil {
			o.log.Error().Err(err).Str("venue", string(v)).Msg("subscribe liquidations failed")
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-ch:
					if !ok {
						return
					}
					o.vacuumDet.OnLiquidation(pair, ev, time.Now())
				}
			}
		}()
	}
	wg.Wait()
}

// signalTask ticks at signal_period_ms (§5 item 3) and evaluates the
// Signal Generator across every pair, plus the independent CORE sizing
// rebalance per pair.
func (o *Orchestrator) signalTask(ctx context.Context) {
	cfg := o.cfg.Get()
	period := time.Duration(cfg.SignalPeriodMS) * time.Millisecond
	if period <= 0 {
		period = 200 * time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			o.evaluateSignals(ctx, now)
		}
	}
}

func (o *Orchestrator) evaluateSignals(ctx context.Context, now time.Time) {
	cfg := o.cfg.Get()

	if in, ok := o.signalGen.Evaluate(o.pairs, now, func(pair model.Pair) decimal.Decimal {
		return decimalFromFloat(o.satelliteNotional(cfg))
	}); ok {
		o.spawnDispatch(ctx, in)
	}

	tolerance := decimalFromFloat(cfg.DeltaToleranceNotional)
	for _, pair := range o.pairs {
		current := o.portfolio.CorePositionNotional(pair)
		if in, ok := o.signalGen.CoreRebalance(pair, current, o.portfolio.NAV(), tolerance, now); ok {
			in.Cause = model.CauseCoreSizing
			o.spawnDispatch(ctx, in)
		}
	}
}

// rebalanceTask is the periodic Rebalancer task (§5 item 6, 1 s cadence).
func (o *Orchestrator) rebalanceTask(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.runRebalanceOnce(ctx)
		}
	}
}

// runRebalanceOnce is one Rebalancer pass (§4.6, scenario S5), factored
// out of rebalanceTask so tests can drive it without waiting on a real
// 1 s ticker.
func (o *Orchestrator) runRebalanceOnce(ctx context.Context) []portfolio.RebalanceAction {
	coreTarget := o.signalGen.CoreTarget(o.portfolio.NAV())
	actions := o.rebalancer.Run(ctx, coreTarget)
	for _, a := range actions {
		telemetry.RebalanceActionsTotal.WithLabelValues(string(a.Venue), a.Trigger).Inc()
		if o.store != nil && a.Trigger != "none" {
			_ = o.store.RecordRebalance(ctx, ledger.RebalanceRecord{
				At: time.Now(), Venue: a.Venue, Trigger: a.Trigger,
				Inputs: a.Inputs, Outputs: a.Outputs, ElapsedMS: a.ElapsedMS,
			})
		}
	}
	return actions
}

// riskTask is the periodic Risk monitor task (§5 item 6, 250 ms
// cadence): recomputes NAV/drawdown, reviews unrealized loss per
// position, and triggers emergency_flatten on a newly-entered SAFE_MODE
// (§4.7, scenario S6).
func (o *Orchestrator) riskTask(ctx context.Context) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	dayTicker := time.NewTicker(24 * time.Hour)
	defer dayTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-dayTicker.C:
			o.guardian.RollDay()
		case <-ticker.C:
			o.runRiskOnce(ctx)
		}
	}
}

// runRiskOnce is one Risk monitor pass, factored out of riskTask so
// tests can drive it without waiting on a real 250 ms ticker.
func (o *Orchestrator) runRiskOnce(ctx context.Context) {
	newlySafe := o.guardian.RecomputeNAV(ctx)
	nav, _ := o.portfolio.NAV().Float64()
	telemetry.NAVGauge.Set(nav)
	telemetry.DeltaGauge.Set(o.portfolio.Delta())
	telemetry.DrawdownGauge.Set(o.guardian.DrawdownPct())
	telemetry.SafeModeGauge.Set(telemetry.SafeModeValue(o.guardian.SafeMode()))

	for _, pos := range o.portfolio.Positions() {
		marks, ok := o.portfolio.Marks(pos.Pair)
		if !ok {
			continue
		}
		o.guardian.ReviewUnrealizedLoss(ctx, pos, marks.SpotPrice, marks.PerpPrice, nil)
	}

	if newlySafe {
		o.guardian.EmergencyFlatten(ctx,
			func(pair model.Pair) { o.exec.Cancel(ctx, pair, pair.Venue, pair.Venue, "", "") },
			func(ctx context.Context, in model.Intent) { o.dispatchIntent(ctx, in) },
		)
	}
}

// Flatten forces an immediate emergency_flatten regardless of current
// drawdown (§4.7's operator-triggered path, SPEC_FULL.md "sentinel
// flatten"), the same path a newly-entered SAFE_MODE drives from
// runRiskOnce: every open position produces a close-Intent. The cancel
// callback passes no order ids to Executor.Cancel, so it marks each
// such pair CANCELED without canceling any venue order; an Intent
// already executing runs on to its own terminal state.
func (o *Orchestrator) Flatten(ctx context.Context) {
	o.guardian.EmergencyFlatten(ctx,
		func(pair model.Pair) { o.exec.Cancel(ctx, pair, pair.Venue, pair.Venue, "", "") },
		func(ctx context.Context, in model.Intent) { o.dispatchIntent(ctx, in) },
	)
}

// healthTask serves /healthz and /metrics until ctx is canceled (§5
// "health", grounded on the teacher's Prometheus HTTP server in
// main.go).
func (o *Orchestrator) healthTask(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if o.guardian.SafeMode() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("SAFE_MODE"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: ":" + strconv.Itoa(o.cfg.Get().Port), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		o.log.Error().Err(err).Msg("health server stopped")
	}
}

func decimalFromFloat(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }
