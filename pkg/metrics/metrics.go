package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CampaignsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "processor_campaigns_processed_total", Help: "Campaign passes attempted"},
	)
	CampaignsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "processor_campaigns_completed_total", Help: "Campaigns marked completed"},
	)
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "processor_emails_sent_total", Help: "Emails delivered to the relay"},
	)
	EmailsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "processor_emails_failed_total", Help: "Emails the relay rejected"},
	)
	QuotaSkips = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "processor_quota_skips_total", Help: "Campaigns skipped on exhausted hourly quota"},
	)
	LockSkips = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "processor_lock_skips_total", Help: "Campaigns skipped because another worker holds the lock"},
	)
	CampaignDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "processor_campaign_duration_seconds",
			Help:    "Time spent processing one campaign batch",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		CampaignsProcessed, CampaignsCompleted,
		EmailsSent, EmailsFailed,
		QuotaSkips, LockSkips,
		CampaignDuration,
	)
}
