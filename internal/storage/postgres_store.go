package storage

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/example/plasma-match/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) FetchCandidates(ctx context.Context) ([]models.Donor, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, blood_type, lat, lng, available, last_active, successful_donations, COALESCE(phone, '')
		 FROM donors WHERE lat IS NOT NULL AND lng IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Donor
	for rows.Next() {
		var d models.Donor
		var lastActive sql.NullTime
		if err := rows.Scan(&d.ID, &d.BloodType, &d.Loc.Lat, &d.Loc.Lng, &d.Available, &lastActive, &d.SuccessfulDonations, &d.Phone); err != nil {
			return nil, err
		}
		if lastActive.Valid {
			d.LastActive = lastActive.Time
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpsertDonor(ctx context.Context, d models.Donor) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO donors (id, blood_type, lat, lng, available, last_active, successful_donations, phone)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (id) DO UPDATE SET
		   blood_type=EXCLUDED.blood_type, lat=EXCLUDED.lat, lng=EXCLUDED.lng,
		   available=EXCLUDED.available, last_active=EXCLUDED.last_active,
		   successful_donations=EXCLUDED.successful_donations, phone=EXCLUDED.phone`,
		d.ID, d.BloodType, d.Loc.Lat, d.Loc.Lng, d.Available, d.LastActive, d.SuccessfulDonations, d.Phone)
	return err
}

func (p *PostgresStore) Close() error { return p.db.Close() }
