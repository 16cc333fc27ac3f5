package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestListRunningCampaigns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	cols := []string{
		"campaign_id", "campaign_name", "subject", "body", "status",
		"hourly_limit", "sent_emails", "failed_emails", "total_emails",
		"last_processed_id", "start_time", "completed_time",
	}
	started := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE status = 'running'`)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(3), "spring", "Hello", "body text", "running",
				100, 40, 2, 500, int64(812), started, nil))

	campaigns, err := s.ListRunningCampaigns(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(campaigns) != 1 {
		t.Fatalf("want 1 campaign, got %d", len(campaigns))
	}
	c := campaigns[0]
	if c.ID != 3 || c.HourlyLimit != 100 || c.LastProcessedID != 812 {
		t.Fatalf("unexpected campaign: %+v", c)
	}
	if c.StartTime == nil || !c.StartTime.Equal(started) {
		t.Fatalf("want start_time %v, got %v", started, c.StartTime)
	}
	if c.CompletedTime != nil {
		t.Fatalf("want nil completed_time, got %v", c.CompletedTime)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestHourlySentCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := New(db)
	hour := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(emails_sent), 0)`)).
		WithArgs(int64(3), hour).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(17))

	sent, err := s.HourlySentCount(context.Background(), 3, hour)
	if err != nil {
		t.Fatal(err)
	}
	if sent != 17 {
		t.Fatalf("want 17, got %d", sent)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestNextRecipients(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := New(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT DISTINCT u.id, u.email`)).
		WithArgs(int64(3), int64(812), 25).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).
			AddRow(int64(815), "a@x.com").
			AddRow(int64(820), "b@x.com"))

	recs, err := s.NextRecipients(context.Background(), 3, 812, 25)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("want 2 recipients, got %d", len(recs))
	}
	if recs[0].UserID != 815 || recs[1].Email != "b@x.com" {
		t.Fatalf("unexpected recipients: %+v", recs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestEnsureLogEntry_Existing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := New(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT log_id, status FROM email_campaign_logs`)).
		WithArgs(int64(3), "a@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"log_id", "status"}).AddRow(int64(44), "failed"))

	id, status, err := s.EnsureLogEntry(context.Background(), 3, "a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if id != 44 || status != "failed" {
		t.Fatalf("want (44, failed), got (%d, %s)", id, status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestEnsureLogEntry_InsertsPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := New(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT log_id, status FROM email_campaign_logs`)).
		WithArgs(int64(3), "new@x.com").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO email_campaign_logs (campaign_id, email, status)`)).
		WithArgs(int64(3), "new@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"log_id", "status"}).AddRow(int64(45), "pending"))

	id, status, err := s.EnsureLogEntry(context.Background(), 3, "new@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if id != 45 || status != "pending" {
		t.Fatalf("want (45, pending), got (%d, %s)", id, status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMarkLogSent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := New(db)

	mock.ExpectExec(regexp.QuoteMeta(`SET status = 'sent', sent_time = NOW(), error_message = NULL`)).
		WithArgs(int64(44)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.MarkLogSent(context.Background(), 44); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMarkLogFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := New(db)

	mock.ExpectExec(regexp.QuoteMeta(`SET status = 'failed', error_message = $1`)).
		WithArgs("550 mailbox unavailable", int64(44)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.MarkLogFailed(context.Background(), 44, "550 mailbox unavailable"); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpsertHourlyStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := New(db)
	hour := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO email_campaign_stats (campaign_id, hour_bucket, emails_sent, emails_failed)`)).
		WithArgs(int64(3), hour, 5, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UpsertHourlyStats(context.Background(), 3, hour, 5, 2); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestApplyBatchTotals(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := New(db)

	mock.ExpectExec(regexp.QuoteMeta(`last_processed_id = GREATEST(last_processed_id, $3)`)).
		WithArgs(5, 2, int64(820), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.ApplyBatchTotals(context.Background(), 3, 5, 2, 820); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMarkCampaignCompleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := New(db)

	mock.ExpectExec(regexp.QuoteMeta(`SET status = 'completed', completed_time = NOW()`)).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.MarkCampaignCompleted(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTryLockCampaign_AcquiredAndReleased(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT pg_try_advisory_lock($1, $2)`)).
		WithArgs(advisoryClass, int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_unlock($1, $2)`)).
		WithArgs(advisoryClass, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	release, err := s.TryLockCampaign(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if release == nil {
		t.Fatal("want lock acquired")
	}
	if err := release(ctx); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTryLockCampaign_HeldElsewhere(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := New(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT pg_try_advisory_lock($1, $2)`)).
		WithArgs(advisoryClass, int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	release, err := s.TryLockCampaign(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if release != nil {
		t.Fatal("want nil release when lock is held elsewhere")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
