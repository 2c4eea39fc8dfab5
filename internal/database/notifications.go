package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"reservo/internal/models"
)

func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	now := time.Now().UTC()
	var reservationID any
	if n.ReservationID != nil {
		reservationID = *n.ReservationID
	}
	res, err := db.exec(ctx, sq.Insert("notifications").
		Columns("user_id", "reservation_id", "message", "created_at").
		Values(n.UserID, reservationID, n.Message, now))
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	n.ID = id
	n.CreatedAt = now
	return nil
}

// ListNotifications returns the newest notifications of a user first.
func (db *DB) ListNotifications(ctx context.Context, userID int64, limit int) ([]*models.Notification, error) {
	q := sq.Select("id", "user_id", "reservation_id", "message", "created_at").
		From("notifications").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	rows, err := db.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var (
			n             models.Notification
			reservationID sql.NullInt64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &reservationID, &n.Message, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if reservationID.Valid {
			id := reservationID.Int64
			n.ReservationID = &id
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}
