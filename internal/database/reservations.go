package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"reservo/internal/models"
)

var reservationColumns = []string{
	"id", "user_id", "workspace_id", "item_id", "start_time", "end_time", "quantity",
	"no_show", "returned_count", "in_cart", "hold_expires_at", "created_at", "updated_at",
}

func scanReservation(row interface{ Scan(dest ...any) error }) (*models.Reservation, error) {
	var (
		r             models.Reservation
		holdExpiresAt sql.NullTime
	)
	err := row.Scan(
		&r.ID, &r.UserID, &r.WorkspaceID, &r.ItemID, &r.StartTime, &r.EndTime, &r.Quantity,
		&r.NoShow, &r.ReturnedCount, &r.InCart, &holdExpiresAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if holdExpiresAt.Valid {
		t := holdExpiresAt.Time
		r.HoldExpiresAt = &t
	}
	return &r, nil
}

func (db *DB) scanReservations(rows *sql.Rows) ([]*models.Reservation, error) {
	defer rows.Close()

	var out []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// countsAt matches rows that claim capacity at now: confirmed rows and
// holds that have not expired.
func countsAt(now time.Time) sq.Sqlizer {
	return sq.Or{
		sq.And{sq.Eq{"in_cart": false}, sq.Eq{"hold_expires_at": nil}},
		sq.Gt{"hold_expires_at": now.UTC()},
	}
}

func overlapping(f models.OverlapFilter) sq.And {
	cond := sq.And{
		sq.Eq{"item_id": f.ItemID},
		sq.Lt{"start_time": f.End.UTC()},
		sq.Gt{"end_time": f.Start.UTC()},
		countsAt(f.Now),
	}
	if f.ExcludeHoldsOf != 0 {
		// Keep confirmed rows of that user and every row of other users.
		cond = append(cond, sq.Or{
			sq.NotEq{"user_id": f.ExcludeHoldsOf},
			sq.And{sq.Eq{"in_cart": false}, sq.Eq{"hold_expires_at": nil}},
		})
	}
	return cond
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	row, err := db.queryRow(ctx, sq.Select(reservationColumns...).From("reservations").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	r, err := scanReservation(row)
	if err != nil {
		return nil, notFound(err, "reservation", id)
	}
	return r, nil
}

func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation) error {
	if !r.StartTime.Before(r.EndTime) {
		return fmt.Errorf("reservation end %s must be after start %s", r.EndTime, r.StartTime)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("reservation quantity must be positive, got %d", r.Quantity)
	}

	now := time.Now().UTC()
	var holdExpiresAt any
	if r.HoldExpiresAt != nil {
		holdExpiresAt = r.HoldExpiresAt.UTC()
	}

	res, err := db.exec(ctx, sq.Insert("reservations").
		Columns("user_id", "workspace_id", "item_id", "start_time", "end_time", "quantity",
			"no_show", "returned_count", "in_cart", "hold_expires_at", "created_at", "updated_at").
		Values(r.UserID, r.WorkspaceID, r.ItemID, r.StartTime.UTC(), r.EndTime.UTC(), r.Quantity,
			r.NoShow, r.ReturnedCount, r.InCart, holdExpiresAt, now, now))
	if err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

func (db *DB) DestroyReservation(ctx context.Context, id int64) error {
	res, err := db.exec(ctx, sq.Delete("reservations").Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to destroy reservation %d: %w", id, err)
	}
	return requireAffected(res, "reservation", id)
}

// SumOverlapping adds up the quantity of every row selected by f. The sum is
// an upper bound of the peak concurrent demand over the range.
func (db *DB) SumOverlapping(ctx context.Context, f models.OverlapFilter) (int64, error) {
	row, err := db.queryRow(ctx, sq.Select("COALESCE(SUM(quantity), 0)").From("reservations").Where(overlapping(f)))
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum overlapping reservations: %w", err)
	}
	return sum, nil
}

func (db *DB) FindOverlapping(ctx context.Context, f models.OverlapFilter) ([]*models.Reservation, error) {
	rows, err := db.query(ctx, sq.Select(reservationColumns...).From("reservations").
		Where(overlapping(f)).
		OrderBy("start_time", "id"))
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping reservations: %w", err)
	}
	return db.scanReservations(rows)
}

// FindActiveForCapacity returns the rows of an item that still end after now
// and still claim capacity, oldest first.
func (db *DB) FindActiveForCapacity(ctx context.Context, itemID int64, now time.Time) ([]*models.Reservation, error) {
	rows, err := db.query(ctx, sq.Select(reservationColumns...).From("reservations").
		Where(sq.Eq{"item_id": itemID}).
		Where(sq.Gt{"end_time": now.UTC()}).
		Where(countsAt(now)).
		OrderBy("created_at", "id"))
	if err != nil {
		return nil, fmt.Errorf("failed to find active reservations: %w", err)
	}
	return db.scanReservations(rows)
}

// FindUserActiveHolds returns the user's unexpired holds selected by f, oldest first.
func (db *DB) FindUserActiveHolds(ctx context.Context, userID int64, f models.OverlapFilter) ([]*models.Reservation, error) {
	rows, err := db.query(ctx, sq.Select(reservationColumns...).From("reservations").
		Where(sq.Eq{"user_id": userID, "item_id": f.ItemID}).
		Where(sq.Lt{"start_time": f.End.UTC()}).
		Where(sq.Gt{"end_time": f.Start.UTC()}).
		Where(sq.Gt{"hold_expires_at": f.Now.UTC()}).
		OrderBy("created_at", "id"))
	if err != nil {
		return nil, fmt.Errorf("failed to find user holds: %w", err)
	}
	return db.scanReservations(rows)
}

// ConvertHoldToConfirmed turns a hold into a confirmed reservation for the
// given range and quantity in a single statement.
func (db *DB) ConvertHoldToConfirmed(ctx context.Context, id int64, start, end time.Time, quantity int64) error {
	res, err := db.exec(ctx, sq.Update("reservations").
		Set("start_time", start.UTC()).
		Set("end_time", end.UTC()).
		Set("quantity", quantity).
		Set("in_cart", false).
		Set("hold_expires_at", nil).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		Where(sq.Or{sq.Eq{"in_cart": true}, sq.NotEq{"hold_expires_at": nil}}))
	if err != nil {
		return fmt.Errorf("failed to convert hold %d: %w", id, err)
	}
	return requireAffected(res, "hold", id)
}

// DeleteExpiredHolds removes holds whose expiry is at or before now and
// returns them.
func (db *DB) DeleteExpiredHolds(ctx context.Context, now time.Time) ([]*models.Reservation, error) {
	var expired []*models.Reservation
	err := db.WithTx(ctx, func(ctx context.Context) error {
		rows, err := db.query(ctx, sq.Select(reservationColumns...).From("reservations").
			Where(sq.LtOrEq{"hold_expires_at": now.UTC()}).
			OrderBy("id"))
		if err != nil {
			return fmt.Errorf("failed to find expired holds: %w", err)
		}
		expired, err = db.scanReservations(rows)
		if err != nil || len(expired) == 0 {
			return err
		}

		ids := make([]int64, 0, len(expired))
		for _, r := range expired {
			ids = append(ids, r.ID)
		}
		if _, err := db.exec(ctx, sq.Delete("reservations").Where(sq.Eq{"id": ids})); err != nil {
			return fmt.Errorf("failed to delete expired holds: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// DeleteUserHolds removes every hold of the user on the given items.
func (db *DB) DeleteUserHolds(ctx context.Context, userID int64, itemIDs []int64) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	res, err := db.exec(ctx, sq.Delete("reservations").
		Where(sq.Eq{"user_id": userID, "item_id": itemIDs}).
		Where(sq.Or{sq.Eq{"in_cart": true}, sq.NotEq{"hold_expires_at": nil}}))
	if err != nil {
		return 0, fmt.Errorf("failed to delete user holds: %w", err)
	}
	return res.RowsAffected()
}

func (db *DB) MarkNoShow(ctx context.Context, id int64) error {
	res, err := db.exec(ctx, sq.Update("reservations").
		Set("no_show", true).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to mark no-show: %w", err)
	}
	return requireAffected(res, "reservation", id)
}

// RecordReturn adds count to the returned units, capped at the reservation quantity.
func (db *DB) RecordReturn(ctx context.Context, id int64, count int64) error {
	res, err := db.exec(ctx, sq.Update("reservations").
		Set("returned_count", sq.Expr("MIN(quantity, returned_count + ?)", count)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to record return: %w", err)
	}
	return requireAffected(res, "reservation", id)
}

// CountNoShows counts the user's no-show reservations in a workspace that
// started at or after since.
func (db *DB) CountNoShows(ctx context.Context, userID, workspaceID int64, since time.Time) (int, error) {
	row, err := db.queryRow(ctx, sq.Select("COUNT(*)").From("reservations").
		Where(sq.Eq{"user_id": userID, "workspace_id": workspaceID, "no_show": true}).
		Where(sq.GtOrEq{"start_time": since.UTC()}))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count no-shows: %w", err)
	}
	return n, nil
}
