package executor

import "context"

// Alerter is the SPEC_FULL.md structured-alerting hook the Executor
// raises on compensation and TWAP abort (§4.5 step 5, scenario S3). The
// Risk Guardian (internal/risk) implements the same interface for its
// own drawdown/SAFE_MODE alerts.
type Alerter interface {
	Alert(ctx context.Context, event, detail string)
}

type noopAlerter struct{}

func (noopAlerter) Alert(context.Context, string, string) {}
