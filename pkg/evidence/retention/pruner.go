package retention

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/aegis/pkg/evidence"
	"mercator-hq/aegis/pkg/evidence/export"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM). Empty disables the scheduler.
	PruneSchedule string

	// ArchiveBeforeDelete uploads expired records to the archive sink
	// before they are deleted.
	ArchiveBeforeDelete bool
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		PruneSchedule:       "0 3 * * *",
		ArchiveBeforeDelete: false,
	}
}

// Pruner deletes audit records whose own retention horizon has passed.
// A record is never removed before its RetentionEnd.
type Pruner struct {
	storage   evidence.Storage
	archive   export.Sink
	config    *Config
	logger    *slog.Logger
	scheduler *Scheduler
	now       func() time.Time
}

// NewPruner creates a new retention pruner. archive may be nil when
// ArchiveBeforeDelete is off.
func NewPruner(storage evidence.Storage, archive export.Sink, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	pruner := &Pruner{
		storage: storage,
		archive: archive,
		config:  config,
		logger:  slog.Default().With("component", "evidence.retention"),
		now:     time.Now,
	}
	pruner.scheduler = NewScheduler(pruner)

	return pruner
}

// Prune removes every record with RetentionEnd at or before now and returns
// the number deleted. When archiving is enabled and the upload fails,
// nothing is deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC()
	query := &evidence.Query{ExpiredBefore: &cutoff}

	if p.config.ArchiveBeforeDelete {
		if err := p.archiveExpired(ctx, query, cutoff); err != nil {
			return 0, evidence.NewRetentionError(0, err)
		}
	}

	deleted, err := p.storage.Delete(ctx, query)
	if err != nil {
		return 0, evidence.NewRetentionError(0, err)
	}

	if deleted == 0 {
		p.logger.Debug("no expired records pruned", "cutoff_time", cutoff)
	} else {
		p.logger.Info("expired audit records pruned",
			"deleted_count", deleted,
			"cutoff_time", cutoff,
		)
	}
	return deleted, nil
}

// archiveExpired uploads the records selected by query as one JSON object.
func (p *Pruner) archiveExpired(ctx context.Context, query *evidence.Query, cutoff time.Time) error {
	if p.archive == nil {
		return fmt.Errorf("archiving enabled but no archive sink configured")
	}

	records, err := p.storage.Query(ctx, &evidence.Query{
		ExpiredBefore: query.ExpiredBefore,
		SortBy:        "retention_end",
		SortOrder:     "asc",
	})
	if err != nil {
		return fmt.Errorf("failed to query records for archiving: %w", err)
	}
	if len(records) == 0 {
		p.logger.Debug("no records to archive")
		return nil
	}

	var buf bytes.Buffer
	if err := export.NewJSONExporter(true).Export(ctx, records, &buf); err != nil {
		return fmt.Errorf("failed to encode archive: %w", err)
	}

	key := fmt.Sprintf("archive/expired-%s.json", cutoff.Format("20060102-150405"))
	location, err := p.archive.Put(ctx, key, buf.Bytes(), "application/json")
	if err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}

	p.logger.Info("expired records archived",
		"location", location,
		"record_count", len(records),
	)
	return nil
}

// Start starts the automatic pruning scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the automatic pruning scheduler.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled pruning.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
