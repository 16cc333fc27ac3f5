package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coolkeypoint/mailblast/internal/campaign"
	"github.com/coolkeypoint/mailblast/pkg/logx"
	"github.com/coolkeypoint/mailblast/pkg/metrics"
)

// DriverStore is what the invocation-level pass needs beyond the per-campaign
// Store: the running-campaign list and the single-flight guard.
type DriverStore interface {
	ListRunningCampaigns(ctx context.Context) ([]campaign.Campaign, error)
	TryLockCampaign(ctx context.Context, campaignID int64) (func(context.Context) error, error)
}

// Driver is the scheduler-invoked entry point. One call is one sequential
// pass over every running campaign; the external scheduler owns periodicity.
type Driver struct {
	Store  DriverStore
	Runner *Runner

	// UseLocks enables the per-campaign advisory lock so overlapping
	// scheduler triggers do not process the same campaign concurrently.
	UseLocks bool
}

// RunOnce processes all running campaigns and returns an error only for a
// driver-level failure (the campaign list itself). Per-campaign failures are
// logged and do not stop the pass.
func (d *Driver) RunOnce(ctx context.Context) error {
	runID := uuid.NewString()
	log := logx.L().With("run_id", runID)

	log.Infow("run_start")

	campaigns, err := d.Store.ListRunningCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("list running campaigns: %w", err)
	}

	if len(campaigns) == 0 {
		log.Infow("no_active_campaigns")
		return nil
	}

	log.Infow("campaigns_found", "count", len(campaigns))

	for _, c := range campaigns {
		d.processOne(ctx, log, c)
	}

	log.Infow("run_complete")
	return nil
}

func (d *Driver) processOne(ctx context.Context, log *zap.SugaredLogger, c campaign.Campaign) {
	metrics.CampaignsProcessed.Inc()

	if d.UseLocks {
		release, err := d.Store.TryLockCampaign(ctx, c.ID)
		if err != nil {
			log.Errorw("campaign_lock_error", "campaign_id", c.ID, "error", err)
			return
		}
		if release == nil {
			metrics.LockSkips.Inc()
			log.Infow("campaign_locked_elsewhere", "campaign_id", c.ID)
			return
		}
		defer func() {
			relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := release(relCtx); err != nil {
				log.Errorw("campaign_unlock_error", "campaign_id", c.ID, "error", err)
			}
		}()
	}

	start := time.Now()
	if err := d.Runner.ProcessCampaign(ctx, c); err != nil {
		log.Errorw("campaign_error", "campaign_id", c.ID, "error", err)
	}
	metrics.CampaignDuration.Observe(time.Since(start).Seconds())
}
