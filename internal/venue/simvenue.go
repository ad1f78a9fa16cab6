package venue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SimVenue is an in-memory Adapter used by the test suites in
// internal/executor, internal/orchestrator, and internal/portfolio (and
// as the paper venue cmd/sentinel wires) to synthesize paired spot/perp
// books, orders and liquidation events without a
// real venue connection — the role the teacher's PaperBroker
// (broker_paper.go) plays for the single-instrument bot, generalized to
// the multi-pair, two-sided book shape this core needs.
type SimVenue struct {
	mu       sync.Mutex
	name     model.Venue
	status   Status
	books    map[string]chan model.BookSnapshot
	liqs     map[string]chan model.LiquidationEvent
	orders   map[string]*model.LegOrder
	tagToID  map[string]string
	balances []WalletBalance
	funding  map[string]float64

	// AutoFill, when true, makes PlaceOrder synchronously fill the whole
	// order at the request's Price, whatever its order kind — used by
	// tests that don't need partial-fill control.
	AutoFill bool
}

// NewSimVenue constructs a ready-to-use simulator reporting status Fresh.
func NewSimVenue(name model.Venue) *SimVenue {
	return &SimVenue{
		name:    name,
		status:  StatusFresh,
		books:   make(map[string]chan model.BookSnapshot),
		liqs:    make(map[string]chan model.LiquidationEvent),
		orders:  make(map[string]*model.LegOrder),
		tagToID: make(map[string]string),
		funding: make(map[string]float64),
	}
}

func (s *SimVenue) Name() model.Venue { return s.name }

func (s *SimVenue) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus lets tests flip a venue UNSAFE to exercise Router eligibility
// (§4.4(i)).
func (s *SimVenue) SetStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

func (s *SimVenue) key(symbol string, side model.BookSide) string {
	return symbol + ":" + string(side)
}

// SubscribeBook returns a channel tests push BookSnapshots onto via
// PushBook; it is created lazily and reused across calls for the same
// (symbol, side), mirroring a real venue's single persistent stream.
func (s *SimVenue) SubscribeBook(ctx context.Context, symbol string, side model.BookSide) (<-chan model.BookSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(symbol, side)
	ch, ok := s.books[k]
	if !ok {
		ch = make(chan model.BookSnapshot, 64)
		s.books[k] = ch
	}
	return ch, nil
}

// PushBook feeds a snapshot to a subscriber, creating the channel if no
// one has subscribed yet (buffered so test setup order doesn't matter).
func (s *SimVenue) PushBook(snap model.BookSnapshot) {
	s.mu.Lock()
	k := s.key(snap.Pair.Symbol, snap.Side)
	ch, ok := s.books[k]
	if !ok {
		ch = make(chan model.BookSnapshot, 64)
		s.books[k] = ch
	}
	s.mu.Unlock()
	ch <- snap
}

func (s *SimVenue) SubscribeLiquidations(ctx context.Context, symbol string) (<-chan model.LiquidationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.liqs[symbol]
	if !ok {
		ch = make(chan model.LiquidationEvent, 64)
		s.liqs[symbol] = ch
	}
	return ch, nil
}

// PushLiquidation feeds a liquidation event to subscribers.
func (s *SimVenue) PushLiquidation(ev model.LiquidationEvent) {
	s.mu.Lock()
	ch, ok := s.liqs[ev.Symbol]
	if !ok {
		ch = make(chan model.LiquidationEvent, 64)
		s.liqs[ev.Symbol] = ch
	}
	s.mu.Unlock()
	ch <- ev
}

// PlaceOrder records the order; if AutoFill is set it is immediately
// marked FILLED at req.Price.
func (s *SimVenue) PlaceOrder(ctx context.Context, req model.VenueOrderRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New().String()
	lo := &model.LegOrder{
		ID:        id,
		Side:      req.Side,
		Kind:      req.Kind,
		Price:     req.Price,
		Qty:       decimal.NewFromFloat(req.Qty),
		PlacedAt:  time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
		State:     model.LegLive,
	}
	if s.AutoFill {
		lo.State = model.LegFilled
		lo.AvgPrice = req.Price
		lo.FilledQty = lo.Qty
	}
	s.orders[id] = lo
	if req.ClientTag != "" {
		s.tagToID[req.ClientTag] = id
	}
	return id, nil
}

// TagID looks up the order id placed with the given ClientTag, for tests
// that need to drive fills against an order the Executor placed
// internally. Returns ok=false until PlaceOrder has registered the tag.
func (s *SimVenue) TagID(tag string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tagToID[tag]
	return id, ok
}

func (s *SimVenue) CancelOrder(ctx context.Context, legOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[legOrderID]
	if !ok {
		return errors.New("sim: unknown order")
	}
	if o.State.Terminal() {
		return nil
	}
	o.State = model.LegCanceled
	return nil
}

func (s *SimVenue) GetOrder(ctx context.Context, legOrderID string) (*model.LegOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[legOrderID]
	if !ok {
		return nil, errors.New("sim: unknown order")
	}
	cp := *o
	return &cp, nil
}

// Fill manually marks an order partially or fully filled, for tests
// exercising partial-fill reconciliation (§4.5 step 3, scenario S2). A
// qty that reaches the order's requested Qty moves it to LegFilled;
// anything less leaves it LegPartial. Repeated calls accumulate
// FilledQty with a notional-weighted AvgPrice.
func (s *SimVenue) Fill(legOrderID string, qty float64, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[legOrderID]
	if !ok {
		return
	}
	fillQty := decimal.NewFromFloat(qty)
	prevNotional := o.FilledQty.Mul(decimal.NewFromFloat(o.AvgPrice))
	newNotional := prevNotional.Add(fillQty.Mul(decimal.NewFromFloat(price)))
	o.FilledQty = o.FilledQty.Add(fillQty)
	if o.FilledQty.IsPositive() {
		avg, _ := newNotional.Div(o.FilledQty).Float64()
		o.AvgPrice = avg
	}
	if o.Qty.IsZero() || o.FilledQty.GreaterThanOrEqual(o.Qty) {
		o.State = model.LegFilled
	} else {
		o.State = model.LegPartial
	}
	o.UpdatedAt = time.Now().UTC()
}

// Reject marks an order rejected; any quantity already filled is left
// untouched on the order so the Executor can still reconcile it.
func (s *SimVenue) Reject(legOrderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[legOrderID]; ok {
		o.State = model.LegRejected
		o.UpdatedAt = time.Now().UTC()
	}
}

func (s *SimVenue) GetWalletBalances(ctx context.Context) ([]WalletBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WalletBalance, len(s.balances))
	copy(out, s.balances)
	return out, nil
}

// SetBalances lets tests seed wallet state.
func (s *SimVenue) SetBalances(b []WalletBalance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = b
}

func (s *SimVenue) Transfer(ctx context.Context, from, to model.WalletID, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.balances {
		if s.balances[i].Wallet == from {
			s.balances[i].Amount -= amount
		}
		if s.balances[i].Wallet == to {
			s.balances[i].Amount += amount
		}
	}
	return nil
}

func (s *SimVenue) SetFunding(symbol string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funding[symbol] = rate
}

func (s *SimVenue) FundingRate(ctx context.Context, symbol string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.funding[symbol]
	return r, ok, nil
}
