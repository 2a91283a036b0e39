package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/example/plasma-match/internal/models"
)

// Postgres is the durable ledger. Atomicity of the conditional insert is
// delegated to a partial unique index over live rows:
//
//	CREATE UNIQUE INDEX auto_requests_live_pair
//	    ON auto_requests (requester_id, donor_id)
//	    WHERE status IN ('pending', 'accepted') AND NOT fraudulent;
//
// A lost race surfaces as SQLSTATE 23505 and is mapped to ErrConflict.
// Expired rows are neutralized lazily in the queries; the index stays
// unique because Record first downgrades any expired live row for the
// pair before inserting.
type Postgres struct {
	db       *sql.DB
	cooldown time.Duration
}

func NewPostgres(dsn string, cooldown time.Duration) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Postgres{db: db, cooldown: cooldown}, nil
}

func (p *Postgres) HasLive(ctx context.Context, requesterID, donorID string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(
		     SELECT 1 FROM auto_requests
		     WHERE requester_id=$1 AND donor_id=$2
		       AND status IN ('pending','accepted')
		       AND NOT fraudulent
		       AND expires_at > now())`,
		requesterID, donorID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ledger liveness check: %w", err)
	}
	return exists, nil
}

func (p *Postgres) Record(ctx context.Context, requesterID, donorID string) (models.LedgerEntry, error) {
	// expired rows still hold the unique slot; free it first
	_, err := p.db.ExecContext(ctx,
		`UPDATE auto_requests SET status='expired'
		 WHERE requester_id=$1 AND donor_id=$2
		   AND status IN ('pending','accepted') AND expires_at <= now()`,
		requesterID, donorID)
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("ledger expiry sweep: %w", err)
	}

	var e models.LedgerEntry
	e.RequesterID, e.DonorID, e.Status = requesterID, donorID, models.StatusPending
	err = p.db.QueryRowContext(ctx,
		`INSERT INTO auto_requests (requester_id, donor_id, status, fraudulent, created_at, expires_at)
		 VALUES ($1, $2, 'pending', false, now(), now() + make_interval(secs => $3))
		 RETURNING created_at, expires_at`,
		requesterID, donorID, p.cooldown.Seconds()).Scan(&e.CreatedAt, &e.ExpiresAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.LedgerEntry{}, ErrConflict
		}
		return models.LedgerEntry{}, fmt.Errorf("ledger insert: %w", err)
	}
	return e, nil
}

func (p *Postgres) Resolve(ctx context.Context, requesterID, donorID string, outcome models.LedgerStatus) (models.LedgerEntry, error) {
	if outcome != models.StatusAccepted && outcome != models.StatusRejected {
		return models.LedgerEntry{}, ErrNotFound
	}
	var e models.LedgerEntry
	e.RequesterID, e.DonorID, e.Status = requesterID, donorID, outcome
	err := p.db.QueryRowContext(ctx,
		`UPDATE auto_requests SET status=$3
		 WHERE requester_id=$1 AND donor_id=$2
		   AND status='pending' AND NOT fraudulent AND expires_at > now()
		 RETURNING created_at, expires_at`,
		requesterID, donorID, string(outcome)).Scan(&e.CreatedAt, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LedgerEntry{}, ErrNotFound
	}
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("ledger resolve: %w", err)
	}
	return e, nil
}

func (p *Postgres) Close() error { return p.db.Close() }
