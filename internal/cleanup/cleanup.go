package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatguard/internal/config"
	"chatguard/internal/platform"
	"chatguard/internal/storage"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job purges time-windowed tables past retention and drains the two
// delayed-action queues. It shares the store with the live pipeline without
// locking: every operation it performs is an atomic delete/update and the
// audit log is append-only.
type Job struct {
	cfg    config.Config
	store  *storage.Store
	client platform.Client
	logger *zap.Logger
	cron   *cron.Cron
	now    func() time.Time
}

func New(cfg config.Config, store *storage.Store, client platform.Client, logger *zap.Logger) *Job {
	return &Job{
		cfg:    cfg,
		store:  store,
		client: client,
		logger: logger,
		cron:   cron.New(),
		now:    time.Now,
	}
}

// WithNow replaces the clock, for tests.
func (j *Job) WithNow(now func() time.Time) { j.now = now }

// Start schedules the job on its fixed interval.
func (j *Job) Start() error {
	spec := fmt.Sprintf("@every %dm", j.cfg.Cleanup.IntervalMinutes)
	if _, err := j.cron.AddFunc(spec, func() {
		j.RunOnce(context.Background())
	}); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

func (j *Job) Stop() {
	<-j.cron.Stop().Done()
}

// RunOnce performs one full cleanup pass. Step failures are logged and the
// remaining steps still run.
func (j *Job) RunOnce(ctx context.Context) {
	now := j.now()
	retention := j.cfg.RetentionWindow()

	if err := j.store.PurgeActions(ctx, now.Add(-retention)); err != nil {
		j.logger.Warn("action purge failed", zap.Error(err))
	}
	if err := j.store.PurgeMessageEvents(ctx, now.Add(-retention)); err != nil {
		j.logger.Warn("event purge failed", zap.Error(err))
	}
	if err := j.store.PurgeExpiredRestrictions(ctx, now); err != nil {
		j.logger.Warn("restriction purge failed", zap.Error(err))
	}
	if err := j.store.PurgeProcessed(ctx, now.Add(-retention)); err != nil {
		j.logger.Warn("dedup purge failed", zap.Error(err))
	}
	if err := j.store.PurgeStrikes(ctx, now.Add(-retention)); err != nil {
		j.logger.Warn("strike purge failed", zap.Error(err))
	}
	if err := j.store.PurgeDailyCounters(ctx, now.Add(-retention).Format("2006-01-02")); err != nil {
		j.logger.Warn("daily counter purge failed", zap.Error(err))
	}
	ceiling := time.Duration(j.cfg.Cleanup.QueueCeilingDays) * 24 * time.Hour
	if err := j.store.PurgeQueues(ctx, now.Add(-ceiling)); err != nil {
		j.logger.Warn("queue purge failed", zap.Error(err))
	}

	j.drainDeletes(ctx, now)
	j.drainRejoins(ctx, now)
}

// drainDeletes processes due bot-message deletions. A failed item is pushed
// forward by the retry delay instead of blocking the batch.
func (j *Job) drainDeletes(ctx context.Context, now time.Time) {
	items, err := j.store.DueDeletes(ctx, now, j.cfg.Cleanup.BatchSize)
	if err != nil {
		j.logger.Warn("delete queue read failed", zap.Error(err))
		return
	}
	retry := time.Duration(j.cfg.Cleanup.RetryMinutes) * time.Minute
	for _, item := range items {
		err := j.client.DeleteMessage(ctx, item.ChatID, item.MessageID)
		if err != nil && !errors.Is(err, platform.ErrNotFound) {
			j.logger.Warn("scheduled delete failed, postponing",
				zap.Int64("chat_id", item.ChatID),
				zap.String("message_id", item.MessageID),
				zap.Error(err))
			if err := j.store.PostponeDelete(ctx, item.ID, now.Add(retry)); err != nil {
				j.logger.Warn("postpone failed", zap.Int64("id", item.ID), zap.Error(err))
			}
			continue
		}
		if err := j.store.DeletePendingDelete(ctx, item.ID); err != nil {
			j.logger.Warn("delete dequeue failed", zap.Int64("id", item.ID), zap.Error(err))
		}
	}
}

// drainRejoins re-adds temporarily removed users whose wait has elapsed.
func (j *Job) drainRejoins(ctx context.Context, now time.Time) {
	items, err := j.store.DueRejoins(ctx, now, j.cfg.Cleanup.BatchSize)
	if err != nil {
		j.logger.Warn("rejoin queue read failed", zap.Error(err))
		return
	}
	retry := time.Duration(j.cfg.Cleanup.RetryMinutes) * time.Minute
	for _, item := range items {
		if err := j.client.AddMember(ctx, item.ChatID, item.UserID); err != nil {
			j.logger.Warn("rejoin failed, postponing",
				zap.Int64("chat_id", item.ChatID),
				zap.Int64("user_id", item.UserID),
				zap.Error(err))
			if err := j.store.PostponeRejoin(ctx, item.ID, now.Add(retry)); err != nil {
				j.logger.Warn("postpone failed", zap.Int64("id", item.ID), zap.Error(err))
			}
			continue
		}
		if err := j.store.DeleteRejoin(ctx, item.ID); err != nil {
			j.logger.Warn("rejoin dequeue failed", zap.Int64("id", item.ID), zap.Error(err))
		}
	}
}
