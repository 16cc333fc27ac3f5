package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/coolkeypoint/mailblast/internal/campaign"
)

// advisoryClass namespaces the processor's advisory locks so they cannot
// collide with other users of pg_advisory_lock on the same database.
const advisoryClass = 7231

type Store struct {
	DB *sql.DB
}

func New(db *sql.DB) *Store { return &Store{DB: db} }

func (s *Store) ListRunningCampaigns(ctx context.Context) ([]campaign.Campaign, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT campaign_id, campaign_name, subject, body, status,
		       hourly_limit, sent_emails, failed_emails, total_emails,
		       last_processed_id, start_time, completed_time
		FROM email_campaigns
		WHERE status = 'running'
		ORDER BY campaign_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []campaign.Campaign
	for rows.Next() {
		var c campaign.Campaign
		var started, completed sql.NullTime
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Subject, &c.Body, &c.Status,
			&c.HourlyLimit, &c.SentEmails, &c.FailedEmails, &c.TotalEmails,
			&c.LastProcessedID, &started, &completed,
		); err != nil {
			return nil, err
		}
		if started.Valid {
			t := started.Time
			c.StartTime = &t
		}
		if completed.Valid {
			t := completed.Time
			c.CompletedTime = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// HourlySentCount returns how many emails a campaign has already pushed out
// within the given hour bucket.
func (s *Store) HourlySentCount(ctx context.Context, campaignID int64, hour time.Time) (int, error) {
	var sent int
	err := s.DB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(emails_sent), 0)
		FROM email_campaign_stats
		WHERE campaign_id = $1 AND hour_bucket = $2
	`, campaignID, hour).Scan(&sent)
	return sent, err
}

// NextRecipients pages through the campaign's audience in ascending user id
// order, starting strictly after afterID. Recipients whose delivery-log entry
// is already sent are filtered out; absent, pending and failed entries stay
// eligible.
func (s *Store) NextRecipients(ctx context.Context, campaignID, afterID int64, limit int) ([]campaign.Recipient, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT DISTINCT u.id, u.email
		FROM users u
		JOIN user_recipient_groups urg ON urg.user_id = u.id
		JOIN campaign_recipient_groups crg ON crg.group_id = urg.group_id
		LEFT JOIN email_campaign_logs ecl
		       ON ecl.campaign_id = $1 AND ecl.email = u.email
		WHERE crg.campaign_id = $1
		  AND u.id > $2
		  AND (ecl.status IS NULL OR ecl.status <> 'sent')
		ORDER BY u.id
		LIMIT $3
	`, campaignID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []campaign.Recipient
	for rows.Next() {
		var r campaign.Recipient
		if err := rows.Scan(&r.UserID, &r.Email); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EnsureLogEntry returns the existing delivery-log row for (campaign, email),
// or inserts a pending one. The unique key on (campaign_id, email) keeps this
// safe under overlapping invocations.
func (s *Store) EnsureLogEntry(ctx context.Context, campaignID int64, email string) (int64, string, error) {
	var id int64
	var status string
	err := s.DB.QueryRowContext(ctx, `
		SELECT log_id, status FROM email_campaign_logs
		WHERE campaign_id = $1 AND email = $2
	`, campaignID, email).Scan(&id, &status)
	if err == nil {
		return id, status, nil
	}
	if err != sql.ErrNoRows {
		return 0, "", err
	}

	err = s.DB.QueryRowContext(ctx, `
		INSERT INTO email_campaign_logs (campaign_id, email, status)
		VALUES ($1, $2, 'pending')
		ON CONFLICT (campaign_id, email) DO UPDATE SET email = EXCLUDED.email
		RETURNING log_id, status
	`, campaignID, email).Scan(&id, &status)
	if err != nil {
		return 0, "", err
	}
	return id, status, nil
}

func (s *Store) MarkLogSent(ctx context.Context, logID int64) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE email_campaign_logs
		   SET status = 'sent', sent_time = NOW(), error_message = NULL
		 WHERE log_id = $1
	`, logID)
	return err
}

func (s *Store) MarkLogFailed(ctx context.Context, logID int64, errMsg string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE email_campaign_logs
		   SET status = 'failed', error_message = $1
		 WHERE log_id = $2
	`, errMsg, logID)
	return err
}

// UpsertHourlyStats adds a batch's outcome counts to the campaign's bucket
// for the given hour.
func (s *Store) UpsertHourlyStats(ctx context.Context, campaignID int64, hour time.Time, sent, failed int) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO email_campaign_stats (campaign_id, hour_bucket, emails_sent, emails_failed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (campaign_id, hour_bucket) DO UPDATE
		   SET emails_sent   = email_campaign_stats.emails_sent   + EXCLUDED.emails_sent,
		       emails_failed = email_campaign_stats.emails_failed + EXCLUDED.emails_failed
	`, campaignID, hour, sent, failed)
	return err
}

// ApplyBatchTotals advances the campaign counters and cursor after a batch.
// GREATEST keeps last_processed_id monotone even if an overlapping run
// committed a higher watermark in between.
func (s *Store) ApplyBatchTotals(ctx context.Context, campaignID int64, sent, failed int, lastID int64) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE email_campaigns
		   SET sent_emails       = sent_emails + $1,
		       failed_emails     = failed_emails + $2,
		       last_processed_id = GREATEST(last_processed_id, $3)
		 WHERE campaign_id = $4
	`, sent, failed, lastID, campaignID)
	return err
}

func (s *Store) MarkCampaignCompleted(ctx context.Context, campaignID int64) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE email_campaigns
		   SET status = 'completed', completed_time = NOW()
		 WHERE campaign_id = $1 AND status = 'running'
	`, campaignID)
	return err
}

// TryLockCampaign takes a non-blocking advisory lock for one campaign. The
// lock is session-scoped, so it is pinned to a dedicated connection and the
// returned release func must run on that same connection. A nil release with
// nil error means another worker owns the campaign right now.
func (s *Store) TryLockCampaign(ctx context.Context, campaignID int64) (func(context.Context) error, error) {
	conn, err := s.DB.Conn(ctx)
	if err != nil {
		return nil, err
	}

	var ok bool
	err = conn.QueryRowContext(ctx,
		`SELECT pg_try_advisory_lock($1, $2)`, advisoryClass, campaignID,
	).Scan(&ok)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if !ok {
		_ = conn.Close()
		return nil, nil
	}

	release := func(ctx context.Context) error {
		defer conn.Close()
		_, err := conn.ExecContext(ctx,
			`SELECT pg_advisory_unlock($1, $2)`, advisoryClass, campaignID,
		)
		return err
	}
	return release, nil
}
