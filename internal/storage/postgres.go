package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-hailing/internal/models"
)

// PostgresStore backs all three stores with one *sql.DB. The conditional
// updates rely on `UPDATE ... WHERE status = $expected` affecting exactly one
// row, which is what serializes driver reservation and ride transitions.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

// Exec runs raw SQL; used by the migrations hook in cmd/server.
func (p *PostgresStore) Exec(ctx context.Context, query string) error {
	_, err := p.db.ExecContext(ctx, query)
	return err
}

func (p *PostgresStore) Riders() RiderStore   { return &pgRiders{db: p.db} }
func (p *PostgresStore) Drivers() DriverStore { return &pgDrivers{db: p.db} }
func (p *PostgresStore) Rides() RideStore     { return &pgRides{db: p.db} }

type pgRiders struct{ db *sql.DB }

func (s *pgRiders) Get(ctx context.Context, id string) (*models.Rider, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, loc_lat, loc_lng, updated_at FROM riders WHERE id = $1`, id)
	var r models.Rider
	var lat, lng sql.NullFloat64
	if err := row.Scan(&r.ID, &r.Name, &lat, &lng, &r.Updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lat.Valid && lng.Valid {
		r.Loc = &models.Coord{Lat: lat.Float64, Lng: lng.Float64}
	}
	return &r, nil
}

func (s *pgRiders) Put(ctx context.Context, r *models.Rider) error {
	var lat, lng interface{}
	if r.Loc != nil {
		lat, lng = r.Loc.Lat, r.Loc.Lng
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO riders (id, name, loc_lat, loc_lng, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, loc_lat = EXCLUDED.loc_lat,
		    loc_lng = EXCLUDED.loc_lng, updated_at = NOW()`,
		r.ID, r.Name, lat, lng)
	return err
}

func (s *pgRiders) SetLocation(ctx context.Context, id string, loc models.Coord) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE riders SET loc_lat = $1, loc_lng = $2, updated_at = NOW() WHERE id = $3`,
		loc.Lat, loc.Lng, id)
	if err != nil {
		return err
	}
	return oneRowOrNotFound(res)
}

type pgDrivers struct{ db *sql.DB }

func (s *pgDrivers) Get(ctx context.Context, id string) (*models.Driver, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, loc_lat, loc_lng, status, rating, updated_at FROM drivers WHERE id = $1`, id)
	var d models.Driver
	var lat, lng sql.NullFloat64
	if err := row.Scan(&d.ID, &d.Name, &lat, &lng, &d.Status, &d.Rating, &d.Updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lat.Valid && lng.Valid {
		d.Loc = &models.Coord{Lat: lat.Float64, Lng: lng.Float64}
	}
	return &d, nil
}

func (s *pgDrivers) Put(ctx context.Context, d *models.Driver) error {
	var lat, lng interface{}
	if d.Loc != nil {
		lat, lng = d.Loc.Lat, d.Loc.Lng
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drivers (id, name, loc_lat, loc_lng, status, rating, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, loc_lat = EXCLUDED.loc_lat, loc_lng = EXCLUDED.loc_lng,
		    status = EXCLUDED.status, rating = EXCLUDED.rating, updated_at = NOW()`,
		d.ID, d.Name, lat, lng, string(d.Status), d.Rating)
	return err
}

func (s *pgDrivers) SetLocation(ctx context.Context, id string, loc models.Coord, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE drivers SET loc_lat = $1, loc_lng = $2, updated_at = $3 WHERE id = $4`,
		loc.Lat, loc.Lng, at, id)
	if err != nil {
		return err
	}
	return oneRowOrNotFound(res)
}

func (s *pgDrivers) UpdateStatusIf(ctx context.Context, id string, from, to models.DriverStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE drivers SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		string(to), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type pgRides struct{ db *sql.DB }

func (s *pgRides) Create(ctx context.Context, r *models.Ride) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rides (
			id, rider_id, driver_id, status, rider_name, driver_name,
			pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
			service_type, deposit, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		r.ID, r.RiderID, nullString(r.DriverID), string(r.Status), r.RiderName, r.DriverName,
		r.Pickup.Lat, r.Pickup.Lng, r.Dropoff.Lat, r.Dropoff.Lng,
		string(r.ServiceType), r.Deposit, r.CreatedAt, r.UpdatedAt)
	return err
}

func (s *pgRides) Get(ctx context.Context, id string) (*models.Ride, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, rider_id, driver_id, status, rider_name, driver_name,
		       pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
		       service_type, deposit,
		       driver_arrived_at, accepted_at, started_at, completed_at, cancelled_at,
		       final_price, cancellation_fee, created_at, updated_at
		FROM rides WHERE id = $1`, id)

	var r models.Ride
	var driverID sql.NullString
	var arrivedAt, acceptedAt, startedAt, completedAt, cancelledAt sql.NullTime
	var finalPrice, cancellationFee sql.NullInt64

	err := row.Scan(&r.ID, &r.RiderID, &driverID, &r.Status, &r.RiderName, &r.DriverName,
		&r.Pickup.Lat, &r.Pickup.Lng, &r.Dropoff.Lat, &r.Dropoff.Lng,
		&r.ServiceType, &r.Deposit,
		&arrivedAt, &acceptedAt, &startedAt, &completedAt, &cancelledAt,
		&finalPrice, &cancellationFee, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if driverID.Valid {
		r.DriverID = driverID.String
	}
	r.DriverArrivedAt = timePtr(arrivedAt)
	r.AcceptedAt = timePtr(acceptedAt)
	r.StartedAt = timePtr(startedAt)
	r.CompletedAt = timePtr(completedAt)
	r.CancelledAt = timePtr(cancelledAt)
	r.FinalPrice = int64Ptr(finalPrice)
	r.CancellationFee = int64Ptr(cancellationFee)
	return &r, nil
}

func (s *pgRides) UpdateStatusIf(ctx context.Context, id string, from, to models.RideStatus, upd RideUpdate) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rides
		SET status = $1,
		    driver_arrived_at = COALESCE($2, driver_arrived_at),
		    accepted_at      = COALESCE($3, accepted_at),
		    started_at       = COALESCE($4, started_at),
		    completed_at     = COALESCE($5, completed_at),
		    cancelled_at     = COALESCE($6, cancelled_at),
		    final_price      = COALESCE($7, final_price),
		    cancellation_fee = COALESCE($8, cancellation_fee),
		    updated_at = NOW()
		WHERE id = $9 AND status = $10`,
		string(to),
		upd.DriverArrivedAt, upd.AcceptedAt, upd.StartedAt, upd.CompletedAt, upd.CancelledAt,
		upd.FinalPrice, upd.CancellationFee,
		id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func oneRowOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
