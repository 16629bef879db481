// Package maintenance keeps the run history bounded by pruning old runs on
// a schedule.
package maintenance

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// PruneStore is the slice of the state store pruning needs
type PruneStore interface {
	PruneRunsBefore(cutoff time.Time) (int64, error)
}

// Pruner deletes runs older than the retention window, together with their
// tasks, logs, and executions
type Pruner struct {
	store     PruneStore
	retention time.Duration
	logger    *slog.Logger

	cron *cron.Cron
}

// NewPruner creates a Pruner keeping retentionDays of history. A retention
// of zero days disables pruning entirely.
func NewPruner(store PruneStore, retentionDays int) *Pruner {
	return &Pruner{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    slog.Default(),
	}
}

// PruneOnce removes runs older than the retention window and returns how
// many were deleted
func (p *Pruner) PruneOnce() (int64, error) {
	if p.retention == 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().Add(-p.retention)
	deleted, err := p.store.PruneRunsBefore(cutoff)
	if err != nil {
		p.logger.Error("pruning run history failed", "error", err)
		return 0, err
	}
	if deleted > 0 {
		p.logger.Info("pruned run history", "runs", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// Schedule runs PruneOnce on a cron schedule until Stop is called
func (p *Pruner) Schedule(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { p.PruneOnce() }); err != nil {
		return err
	}
	c.Start()
	p.cron = c
	return nil
}

// Stop halts the prune schedule, waiting for an in-flight prune to finish
func (p *Pruner) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
		p.cron = nil
	}
}
