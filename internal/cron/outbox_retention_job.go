package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/foodrescue-backend/pkg/logger"
)

const outboxRetentionDays = 30

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxRetentionRepo
	DLQ        dlqRetentionRepo
	Retention  int
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type dlqRetentionRepo interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = outboxRetentionDays
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		dlq:       params.DLQ,
		retention: retention,
		now:       time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	repo      outboxRetentionRepo
	dlq       dlqRetentionRepo
	retention int
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run deletes dispatched outbox rows and dead letters past retention. Both
// deletes are attempted even when one fails.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := retentionCutoff(j.now(), j.retention)

	var errs error
	published, err := j.repo.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("delete published events: %w", err))
	}
	var deadLetters int64
	if j.dlq != nil {
		deadLetters, err = j.dlq.DeleteBefore(ctx, cutoff)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("delete dead letters: %w", err))
		}
	}
	if errs != nil {
		return fmt.Errorf("outbox retention: %w", errs)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":           cutoff,
		"retention_days":   j.retention,
		"events_deleted":   published,
		"dlq_rows_deleted": deadLetters,
	})
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}
