package stats

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Publisher distributes StatsView snapshots to readers outside the
// statistics task (§5 "Statistical state is owned by the statistics
// task; other tasks see it via a read-mostly snapshot updated at each
// ingest"). The in-process path is a plain mutex-guarded map — adequate
// for the single-process orchestrator — with an optional Redis mirror
// (SPEC_FULL.md "Read-mostly shared state") for a separate read-only
// dashboard/query process. Redis is additive: Publish never blocks the
// ingest path on it failing.
type Publisher struct {
	mu    sync.RWMutex
	local map[string]StatsView

	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

// NewPublisher builds a Publisher. Pass a nil *redis.Client to run purely
// in-process (no cross-process mirroring).
func NewPublisher(rdb *redis.Client, log zerolog.Logger) *Publisher {
	return &Publisher{
		local:  make(map[string]StatsView),
		rdb:    rdb,
		prefix: "sentinel:stats:",
		ttl:    30 * time.Second,
		log:    log.With().Str("component", "stats-publisher").Logger(),
	}
}

// Publish installs the latest view for pair, visible immediately to
// Get and, best-effort, to Redis mirror readers.
func (p *Publisher) Publish(pair model.Pair, view StatsView) {
	p.mu.Lock()
	p.local[pair.Key()] = view
	p.mu.Unlock()

	if p.rdb == nil {
		return
	}
	buf, err := json.Marshal(view)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if err := p.rdb.Set(ctx, p.prefix+pair.Key(), buf, p.ttl).Err(); err != nil {
		p.log.Warn().Err(err).Str("pair", pair.Key()).Msg("redis mirror publish failed, local snapshot still served")
	}
}

// Get returns the most recently published view for pair from the
// in-process cache (always authoritative in a single-process deployment).
func (p *Publisher) Get(pair model.Pair) (StatsView, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.local[pair.Key()]
	return v, ok
}

// GetRemote reads the Redis mirror directly, for a process that is not
// the owning statistics task (e.g. a read-only dashboard). Returns false
// if no Redis client is configured or the key has expired/missing.
func (p *Publisher) GetRemote(ctx context.Context, pair model.Pair) (StatsView, bool) {
	if p.rdb == nil {
		return StatsView{}, false
	}
	buf, err := p.rdb.Get(ctx, p.prefix+pair.Key()).Bytes()
	if err != nil {
		return StatsView{}, false
	}
	var v StatsView
	if err := json.Unmarshal(buf, &v); err != nil {
		return StatsView{}, false
	}
	return v, true
}
