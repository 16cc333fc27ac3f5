package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects to Postgres through the pgx stdlib driver and pings with
// exponential backoff so a cron start racing a database restart still comes up.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetConnMaxIdleTime(time.Minute)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 15 * time.Second

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return sqlDB.PingContext(pingCtx)
	}

	if err := backoff.Retry(ping, backoff.WithContext(b, ctx)); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return sqlDB, nil
}
