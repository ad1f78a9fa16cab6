package model

import "errors"

// Sentinel errors for the taxonomy in §7. Components wrap these with
// errors.Is-compatible context; they are never stringly compared.
var (
	// Market-data gap (§7): stale or crossed book.
	ErrStaleBook   = errors.New("sentinel: stale book")
	ErrCrossedBook = errors.New("sentinel: crossed book")

	// Statistical Engine (§4.1).
	ErrInsufficientSamples = errors.New("sentinel: insufficient samples")
	ErrPairUnsafe          = errors.New("sentinel: pair marked unsafe")

	// Execution failure (§4.5, §7).
	ErrBothLegsFailed   = errors.New("sentinel: both legs failed")
	ErrLegRejected      = errors.New("sentinel: leg rejected")
	ErrIntentTimedOut   = errors.New("sentinel: intent timed out")
	ErrIntentInFlight   = errors.New("sentinel: intent already in flight for pair")

	// Invariant violation (§7): log, block new Intents, raise alert; do
	// not auto-recover.
	ErrDeltaInvariant = errors.New("sentinel: delta invariant violated")
	ErrNAVMismatch    = errors.New("sentinel: NAV recomputation mismatch")

	// Risk Guardian (§4.7).
	ErrSafeMode       = errors.New("sentinel: refused, core is in SAFE_MODE")
	ErrDeltaBlock     = errors.New("sentinel: refused, delta at or beyond block threshold")
	ErrNAVFloor       = errors.New("sentinel: refused, NAV at or below floor")
	ErrPositionCapped = errors.New("sentinel: refused, position cap exceeded")

	// Transient I/O (§7): caller should retry within the Intent TTL.
	ErrTransient = errors.New("sentinel: transient venue I/O error")

	// Configuration/validation (§7): fail fast at startup.
	ErrInvalidConfig = errors.New("sentinel: invalid configuration")
)
