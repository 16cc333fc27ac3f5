package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/coolkeypoint/mailblast/internal/campaign"
	"github.com/coolkeypoint/mailblast/internal/mailer"
	"github.com/coolkeypoint/mailblast/pkg/logx"
	"github.com/coolkeypoint/mailblast/pkg/metrics"
)

const defaultMaxBatch = 50

// Store is the persistence surface one campaign pass needs. *store.Store
// implements it; tests use an in-memory fake.
type Store interface {
	HourlySentCount(ctx context.Context, campaignID int64, hour time.Time) (int, error)
	NextRecipients(ctx context.Context, campaignID, afterID int64, limit int) ([]campaign.Recipient, error)
	EnsureLogEntry(ctx context.Context, campaignID int64, email string) (int64, string, error)
	MarkLogSent(ctx context.Context, logID int64) error
	MarkLogFailed(ctx context.Context, logID int64, errMsg string) error
	UpsertHourlyStats(ctx context.Context, campaignID int64, hour time.Time, sent, failed int) error
	ApplyBatchTotals(ctx context.Context, campaignID int64, sent, failed int, lastID int64) error
	MarkCampaignCompleted(ctx context.Context, campaignID int64) error
}

// Dispatcher sends one email and classifies the outcome. Failures come back
// inside the Result, never as an error.
type Dispatcher interface {
	Send(ctx context.Context, to, subject, body string) mailer.Result
}

type Runner struct {
	Store      Store
	Dispatcher Dispatcher

	// MaxBatch caps how many recipients one pass may pull; the hourly
	// quota shrinks the batch further. Zero means the default of 50.
	MaxBatch  int
	OpTimeout time.Duration

	// Now is injectable so tests control the hour bucket.
	Now func() time.Time
}

func New(st Store, d Dispatcher, maxBatch int, opTimeout time.Duration) *Runner {
	return &Runner{
		Store:      st,
		Dispatcher: d,
		MaxBatch:   maxBatch,
		OpTimeout:  opTimeout,
		Now:        time.Now,
	}
}

func (r *Runner) maxBatch() int {
	if r.MaxBatch > 0 {
		return r.MaxBatch
	}
	return defaultMaxBatch
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.OpTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.OpTimeout)
}

// ProcessCampaign runs one batch pass for one campaign: quota check, cursor
// fetch, per-recipient dispatch, then the stats and cursor write-back. A
// panic anywhere inside is converted to an error so one bad campaign cannot
// take down the rest of the invocation.
func (r *Runner) ProcessCampaign(ctx context.Context, c campaign.Campaign) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("campaign %d panicked: %v", c.ID, p)
		}
	}()

	fields := []any{"campaign_id", c.ID, "campaign_name", c.Name}

	hour := r.now().Truncate(time.Hour)

	ctx1, cancel1 := r.opCtx(ctx)
	sentThisHour, err := r.Store.HourlySentCount(ctx1, c.ID, hour)
	cancel1()
	if err != nil {
		return fmt.Errorf("hourly sent count: %w", err)
	}

	quota := c.HourlyLimit - sentThisHour
	if quota <= 0 {
		metrics.QuotaSkips.Inc()
		logx.L().Infow("hourly_limit_reached",
			append(fields, "hourly_limit", c.HourlyLimit, "sent_this_hour", sentThisHour)...)
		return nil
	}

	batchSize := r.maxBatch()
	if quota < batchSize {
		batchSize = quota
	}

	ctx2, cancel2 := r.opCtx(ctx)
	recipients, err := r.Store.NextRecipients(ctx2, c.ID, c.LastProcessedID, batchSize)
	cancel2()
	if err != nil {
		return fmt.Errorf("fetch recipients: %w", err)
	}

	if len(recipients) == 0 {
		ctx3, cancel3 := r.opCtx(ctx)
		err := r.Store.MarkCampaignCompleted(ctx3, c.ID)
		cancel3()
		if err != nil {
			return fmt.Errorf("mark completed: %w", err)
		}
		metrics.CampaignsCompleted.Inc()
		logx.L().Infow("campaign_completed", fields...)
		return nil
	}

	logx.L().Infow("batch_start",
		append(fields, "batch_size", len(recipients), "quota", quota, "after_id", c.LastProcessedID)...)

	success := 0
	failed := 0
	lastID := c.LastProcessedID

	for _, rec := range recipients {
		// every fetched recipient advances the cursor, whatever the outcome
		if rec.UserID > lastID {
			lastID = rec.UserID
		}

		recFields := append(fields, "user_id", rec.UserID, "email", rec.Email)

		ctxL, cancelL := r.opCtx(ctx)
		logID, status, err := r.Store.EnsureLogEntry(ctxL, c.ID, rec.Email)
		cancelL()
		if err != nil {
			// This recipient is abandoned for the round and stays
			// eligible next invocation.
			logx.L().Errorw("log_entry_error", append(recFields, "error", err)...)
			continue
		}
		if status == campaign.LogSent {
			logx.L().Debugw("already_sent_skip", recFields...)
			continue
		}

		res := r.Dispatcher.Send(ctx, rec.Email, c.Subject, c.Body)
		if res.Success {
			ctxS, cancelS := r.opCtx(ctx)
			err := r.Store.MarkLogSent(ctxS, logID)
			cancelS()
			if err != nil {
				logx.L().Errorw("mark_sent_error", append(recFields, "error", err)...)
				continue
			}
			success++
			metrics.EmailsSent.Inc()
			logx.L().Infow("send_success", recFields...)
		} else {
			ctxF, cancelF := r.opCtx(ctx)
			err := r.Store.MarkLogFailed(ctxF, logID, res.ErrorMessage)
			cancelF()
			if err != nil {
				logx.L().Errorw("mark_failed_error", append(recFields, "error", err)...)
				continue
			}
			failed++
			metrics.EmailsFailed.Inc()
			logx.L().Infow("send_failed", append(recFields, "error", res.ErrorMessage)...)
		}
	}

	ctx4, cancel4 := r.opCtx(ctx)
	err = r.Store.UpsertHourlyStats(ctx4, c.ID, hour, success, failed)
	cancel4()
	if err != nil {
		return fmt.Errorf("upsert hourly stats: %w", err)
	}

	ctx5, cancel5 := r.opCtx(ctx)
	err = r.Store.ApplyBatchTotals(ctx5, c.ID, success, failed, lastID)
	cancel5()
	if err != nil {
		return fmt.Errorf("apply batch totals: %w", err)
	}

	logx.L().Infow("batch_complete",
		append(fields, "sent", success, "failed", failed, "last_processed_id", lastID)...)
	return nil
}
