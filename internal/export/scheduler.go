package export

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "shifpost/internal/log"
)

// cronLogger routes cron's own messages into the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}

// Scheduler runs RunOnce on the configured cron expression.
type Scheduler struct {
	cron *cron.Cron
	id   cron.EntryID
}

// Schedule registers the export job for spec (5 fields, evaluated in the
// store's zone). Jobs that are still running when the next tick fires are
// skipped. Call Start to begin.
func (e *Exporter) Schedule(ctx context.Context, spec string) (*Scheduler, error) {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(e.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	id, err := c.AddFunc(spec, func() {
		appLog.Info("scheduled export start")
		if err := e.RunOnce(ctx); err != nil {
			appLog.Error("scheduled export finished with errors", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("export: cron %q: %w", spec, err)
	}
	return &Scheduler{cron: c, id: id}, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	appLog.Info("export scheduler started", "next", s.cron.Entry(s.id).Next)
}

// Stop stops the scheduler and waits for a running export to finish or ctx
// to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
