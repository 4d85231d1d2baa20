package session

import (
	"github.com/sirupsen/logrus"

	"github.com/tickforge/netsync/pkg/netsyncerr"
	"github.com/tickforge/netsync/pkg/prediction"
	"github.com/tickforge/netsync/pkg/tick"
)

// LogRollbackOverflow reports a rollback the embedding simulation skipped
// because MismatchTracker.Resolve found the required depth past
// max_rollback_ticks (spec.md §7 RollbackOverflow: "skip rollback this
// frame; log"). A no-op unless plan.Overflowed.
func LogRollbackOverflow(log *logrus.Entry, plan prediction.Plan, at tick.Tick) {
	if !plan.Overflowed {
		return
	}
	err := netsyncerr.New(netsyncerr.RollbackOverflow, "session.LogRollbackOverflow", nil)
	log.WithError(err).WithField("tick", at).Warn("rollback depth exceeded cap, skipping this frame")
}
