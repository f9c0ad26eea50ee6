package status

import (
	"fmt"
	"time"

	"github.com/goran-ethernal/GiftIndexer/internal/backfill"
	"github.com/goran-ethernal/GiftIndexer/internal/reconcile"
	"github.com/goran-ethernal/GiftIndexer/internal/stream"
)

// Severity ranks how urgently an alert needs an operator.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Alert codes.
const (
	AlertIndexerDown      = "indexer_down"
	AlertRPCDown          = "rpc_down"
	AlertLagAboveMax      = "lag_above_threshold"
	AlertDLQNotEmpty      = "dlq_not_empty"
	AlertBackfillNeeded   = "backfill_needed"
	AlertReorgTooDeep     = "reorg_too_deep"
	AlertSubscriptionDown = "subscription_down"
)

// KnownAlerts maps every alert code to its severity.
var KnownAlerts = map[string]string{
	AlertIndexerDown:      string(SeverityCritical),
	AlertRPCDown:          string(SeverityCritical),
	AlertReorgTooDeep:     string(SeverityCritical),
	AlertLagAboveMax:      string(SeverityWarning),
	AlertDLQNotEmpty:      string(SeverityWarning),
	AlertBackfillNeeded:   string(SeverityWarning),
	AlertSubscriptionDown: string(SeverityWarning),
}

// Alert is an actionable condition derived from a snapshot.
type Alert struct {
	Code     string    `json:"code"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Since    time.Time `json:"since"`
}

func newAlert(code, message string) Alert {
	return Alert{Code: code, Severity: Severity(KnownAlerts[code]), Message: message}
}

// evaluateAlerts derives the raised alerts from a snapshot, most severe first.
func evaluateAlerts(s *Snapshot, maxLag time.Duration, backfillLeader bool) []Alert {
	var alerts []Alert

	if !s.Running {
		alerts = append(alerts, newAlert(AlertIndexerDown, "indexer engines are not running"))
	}

	if s.RPCChecked && !s.RPC.HTTP {
		msg := "RPC endpoint is unreachable"
		if s.RPC.Error != "" {
			msg = fmt.Sprintf("%s: %s", msg, s.RPC.Error)
		}
		alerts = append(alerts, newAlert(AlertRPCDown, msg))
	}

	if s.Reconcile != nil && s.Reconcile.State == reconcile.StateHalted {
		alerts = append(alerts, newAlert(AlertReorgTooDeep,
			fmt.Sprintf("reconciliation halted: %s", s.Reconcile.HaltReason)))
	}

	if maxLag > 0 && s.LagSeconds > maxLag.Seconds() {
		alerts = append(alerts, newAlert(AlertLagAboveMax,
			fmt.Sprintf("indexed head is %.0fs (%d blocks) behind the chain, threshold %s",
				s.LagSeconds, s.LagBlocks, maxLag)))
	}

	if s.Counts.DLQ > 0 {
		alerts = append(alerts, newAlert(AlertDLQNotEmpty,
			fmt.Sprintf("%d events in the dead-letter queue", s.Counts.DLQ)))
	}

	if needed, target := backfillNeeded(s, backfillLeader); needed {
		alerts = append(alerts, newAlert(AlertBackfillNeeded,
			fmt.Sprintf("history is indexed up to block %d, expected %d",
				s.Checkpoints[checkpointBackfill], target)))
	}

	if s.Stream != nil && s.Stream.State == stream.StateRunning && !s.Stream.Subscribed {
		alerts = append(alerts, newAlert(AlertSubscriptionDown, "log subscription is down, following the chain by polling"))
	}

	return alerts
}

// backfillNeeded reports whether history stops short of where live following starts and
// nothing here is catching it up.
func backfillNeeded(s *Snapshot, leader bool) (bool, uint64) {
	if s.Backfill == nil || !leader || s.Backfill.State == backfill.StateRunning {
		return false, 0
	}

	target := s.SafeHead
	if s.Stream != nil && s.Stream.StartBlock > 0 {
		target = s.Stream.StartBlock - 1
	}
	if target == 0 {
		return false, 0
	}

	return s.Checkpoints[checkpointBackfill] < target, target
}

// mergeSince keeps the first-seen time of alerts that stay raised.
func mergeSince(alerts []Alert, previous map[string]time.Time, now time.Time) map[string]time.Time {
	seen := make(map[string]time.Time, len(alerts))
	for i := range alerts {
		since, ok := previous[alerts[i].Code]
		if !ok {
			since = now
		}
		alerts[i].Since = since
		seen[alerts[i].Code] = since
	}
	return seen
}
