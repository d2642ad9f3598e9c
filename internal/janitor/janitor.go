// internal/janitor/janitor.go
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/proctord/internal/types"
)

// Janitor periodically clears out terminated sessions whose retention
// window has passed: it makes sure the final report artifacts exist, then
// drops the event log and the registry entry. Active sessions are never
// touched.
type Janitor struct {
	registry  types.SessionRegistry
	log       types.EventLog
	reports   types.ReportRenderer
	retention time.Duration
	cron      *cron.Cron
}

// New creates a Janitor. reports may be nil to skip artifact rendering.
func New(registry types.SessionRegistry, log types.EventLog, reports types.ReportRenderer, retention time.Duration) *Janitor {
	return &Janitor{
		registry:  registry,
		log:       log,
		reports:   reports,
		retention: retention,
		cron:      cron.New(),
	}
}

// Start registers the sweep on the given cron schedule and starts the
// ticker.
func (j *Janitor) Start(schedule string) error {
	_, err := j.cron.AddFunc(schedule, func() {
		n := j.Sweep(context.Background())
		if n > 0 {
			slog.Info("retention sweep", "cleared", n)
		}
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop stops the cron ticker.
func (j *Janitor) Stop() {
	j.cron.Stop()
}

// Sweep clears every terminated session older than the retention window
// and returns how many were removed.
func (j *Janitor) Sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-j.retention)
	cleared := 0
	for _, sess := range j.registry.List(ctx) {
		view := sess.View()
		if !view.Terminated || view.StartedAt.After(cutoff) {
			continue
		}
		if j.reports != nil {
			entries, err := j.log.Entries(ctx, view.CallID)
			if err == nil {
				if _, err := j.reports.RenderText(view.CallID, entries, view.TerminationReason); err != nil {
					slog.Warn("sweep report failed", "call_id", string(view.CallID), "error", err)
				}
				if _, err := j.reports.RenderPDF(view.CallID, entries, view.TerminationReason); err != nil {
					slog.Warn("sweep pdf failed", "call_id", string(view.CallID), "error", err)
				}
			}
		}
		j.log.Clear(ctx, view.CallID)
		j.registry.Remove(ctx, view.CallID)
		cleared++
	}
	return cleared
}
