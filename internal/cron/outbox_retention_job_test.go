package cron

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/foodrescue-backend/pkg/logger"
)

func TestOutboxRetentionJobDeletesPublishedRowsAndDeadLetters(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{}
	dlq := &fakeDLQRetentionRepo{}
	job := newOutboxRetentionJob(t, repo, dlq)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expectedCutoff := now.UTC().Add(-outboxRetentionDays * 24 * time.Hour)
	if !repo.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s, got %s", expectedCutoff, repo.lastCutoff)
	}
	if !dlq.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected dlq cutoff %s, got %s", expectedCutoff, dlq.lastCutoff)
	}
	if repo.called != 1 || dlq.called != 1 {
		t.Fatalf("expected each repo called once, got %d and %d", repo.called, dlq.called)
	}
}

func TestOutboxRetentionJobReportsEveryFailure(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{err: errors.New("events boom")}
	dlq := &fakeDLQRetentionRepo{err: errors.New("dlq boom")}
	job := newOutboxRetentionJob(t, repo, dlq)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if dlq.called != 1 {
		t.Fatal("expected dlq cleanup attempted after event cleanup failed")
	}
	if got := len(multierr.Errors(errors.Unwrap(err))); got != 2 {
		t.Fatalf("expected 2 combined errors, got %d: %v", got, err)
	}
	if !strings.Contains(err.Error(), "dlq boom") {
		t.Fatalf("expected dlq failure in %q", err)
	}
}

func TestOutboxRetentionJobWithoutDLQ(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo, nil)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxRetentionRepo, dlq *fakeDLQRetentionRepo) *outboxRetentionJob {
	t.Helper()
	params := OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Repository: repo,
	}
	if dlq != nil {
		params.DLQ = dlq
	}
	jobIface, err := NewOutboxRetentionJob(params)
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job, ok := jobIface.(*outboxRetentionJob)
	if !ok {
		t.Fatalf("expected outboxRetentionJob, got %T", jobIface)
	}
	return job
}

type fakeOutboxRetentionRepo struct {
	lastCutoff time.Time
	called     int
	err        error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

type fakeDLQRetentionRepo struct {
	lastCutoff time.Time
	called     int
	err        error
}

func (f *fakeDLQRetentionRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}
