package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// IntentKind enumerates the atomic actions the Signal Generator and
// Vacuum Detector may emit (§3).
type IntentKind string

const (
	OpenHedge   IntentKind = "OPEN_HEDGE"
	CloseHedge  IntentKind = "CLOSE_HEDGE"
	VacuumOpen  IntentKind = "VACUUM_OPEN"
	VacuumClose IntentKind = "VACUUM_CLOSE"
)

// IntentCause records why an Intent was emitted, for logs and alerts.
type IntentCause string

const (
	CauseZScore       IntentCause = "z_score"
	CauseCoreSizing   IntentCause = "core_sizing"
	CauseVacuum       IntentCause = "vacuum"
	CauseRiskFlatten  IntentCause = "risk_flatten"
	CauseRebalance    IntentCause = "rebalance"
)

// IntentState is the explicit Intent state enum (§4.5, §9 "per-Intent ad
// hoc state machines... become an explicit state enum with a transition
// table"). Compensation is a first-class state, not a side branch.
type IntentState string

const (
	StateCreated      IntentState = "CREATED"
	StatePlacing      IntentState = "PLACING"
	StateLive         IntentState = "LIVE"
	StateFilled       IntentState = "FILLED"
	StatePartial      IntentState = "PARTIAL"
	StateReconciling  IntentState = "RECONCILING"
	StateCompensating IntentState = "COMPENSATING"
	StateCompensated  IntentState = "COMPENSATED"
	StateDone         IntentState = "DONE"
	StateFailed       IntentState = "FAILED"
	StateTimedOut     IntentState = "TIMED_OUT"
	StateCanceled     IntentState = "CANCELED"
)

// Terminal reports whether the state is one an Intent cannot leave.
func (s IntentState) Terminal() bool {
	switch s {
	case StateDone, StateCompensated, StateFailed, StateTimedOut, StateCanceled:
		return true
	default:
		return false
	}
}

// validIntentTransitions is the Intent state machine's transition table,
// queried through CanTransition. internal/executor sets Intent states
// directly and does not consult this table.
var validIntentTransitions = map[IntentState][]IntentState{
	StateCreated:      {StatePlacing, StateFailed},
	StatePlacing:      {StateLive, StateFailed, StateTimedOut},
	StateLive:         {StateFilled, StatePartial, StateReconciling, StateTimedOut, StateCanceled, StateCompensating},
	StatePartial:      {StateReconciling, StateCompensating, StateTimedOut},
	StateFilled:       {StateReconciling, StateDone},
	StateReconciling:  {StateDone, StateCompensating},
	StateCompensating: {StateCompensated, StateFailed},
	StateCompensated:  {},
	StateDone:         {},
	StateFailed:       {},
	StateTimedOut:     {StateCompensating, StateDone},
	StateCanceled:     {StateCompensating, StateDone},
}

// CanTransition reports whether from -> to is an edge in the Intent state
// machine (§4.5's state diagram).
func CanTransition(from, to IntentState) bool {
	for _, s := range validIntentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Intent is a desired atomic action emitted by the Signal Generator or
// Vacuum Detector (§3). Immutable once emitted; owned by the Executor
// until terminal state.
type Intent struct {
	ID              string
	Kind            IntentKind
	Pair            Pair
	Direction       OrderSide // direction of the *spot* leg; perp leg is implied opposite for hedges
	TargetNotional  decimal.Decimal
	MaxSlippageBps  float64
	TTL             time.Duration
	Cause           IntentCause
	CreatedAt       time.Time
	Deadline        time.Time
	VenueSpot       Venue // chosen by the Router; zero value until routed
	VenuePerp       Venue
	ExpectedImpactBps float64
	ConvergenceBasis  *float64 // VACUUM_* only: target basis for convergence
	Urgent            bool    // emergency_flatten close-Intents bypass TWAP slicing (§4.7)
}

// Expired reports whether the Intent's TTL has elapsed as of now.
func (in Intent) Expired(now time.Time) bool {
	return !in.Deadline.IsZero() && now.After(in.Deadline)
}

// HalfConsumed reports whether at least half of the Intent's TTL has
// elapsed, the trigger for falling back to IOC/market (§4.5 step 2).
func (in Intent) HalfConsumed(now time.Time) bool {
	if in.TTL <= 0 {
		return true
	}
	half := in.CreatedAt.Add(in.TTL / 2)
	return !now.Before(half)
}
