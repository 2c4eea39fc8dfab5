package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"reservo/internal/models"
)

var itemColumns = []string{
	"id", "workspace_id", "name", "description", "quantity",
	"window_start", "window_end", "is_active", "created_at", "updated_at",
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanItem(row interface{ Scan(dest ...any) error }) (*models.Item, error) {
	var (
		item                   models.Item
		windowStart, windowEnd sql.NullString
	)
	err := row.Scan(
		&item.ID, &item.WorkspaceID, &item.Name, &item.Description, &item.Quantity,
		&windowStart, &windowEnd, &item.IsActive, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.WindowStart = windowStart.String
	item.WindowEnd = windowEnd.String
	return &item, nil
}

func (db *DB) CreateItem(ctx context.Context, item *models.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}

	now := time.Now().UTC()
	columns := []string{"workspace_id", "name", "description", "quantity", "window_start", "window_end", "is_active", "created_at", "updated_at"}
	values := []any{item.WorkspaceID, item.Name, item.Description, item.Quantity,
		nullString(item.WindowStart), nullString(item.WindowEnd), item.IsActive, now, now}
	if item.ID != 0 {
		columns = append([]string{"id"}, columns...)
		values = append([]any{item.ID}, values...)
	}

	res, err := db.exec(ctx, sq.Insert("items").Columns(columns...).Values(values...))
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	item.ID = id
	item.CreatedAt = now
	item.UpdatedAt = now
	return nil
}

// SeedItems inserts the given items, overwriting rows that share an id.
func (db *DB) SeedItems(ctx context.Context, items []models.Item) error {
	return db.WithTx(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		for i := range items {
			item := &items[i]
			if err := item.Validate(); err != nil {
				return fmt.Errorf("invalid item %q: %w", item.Name, err)
			}
			q := sq.Insert("items").
				Columns("id", "workspace_id", "name", "description", "quantity", "window_start", "window_end", "is_active", "created_at", "updated_at").
				Values(item.ID, item.WorkspaceID, item.Name, item.Description, item.Quantity,
					nullString(item.WindowStart), nullString(item.WindowEnd), item.IsActive, now, now).
				Suffix(`ON CONFLICT(id) DO UPDATE SET
					workspace_id = excluded.workspace_id,
					name = excluded.name,
					description = excluded.description,
					quantity = excluded.quantity,
					window_start = excluded.window_start,
					window_end = excluded.window_end,
					is_active = excluded.is_active,
					updated_at = excluded.updated_at`)
			if _, err := db.exec(ctx, q); err != nil {
				return fmt.Errorf("failed to seed item %q: %w", item.Name, err)
			}
		}
		return nil
	})
}

func (db *DB) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	row, err := db.queryRow(ctx, sq.Select(itemColumns...).From("items").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	item, err := scanItem(row)
	if err != nil {
		return nil, notFound(err, "item", id)
	}
	return item, nil
}

func (db *DB) ListItemsByWorkspace(ctx context.Context, workspaceID int64) ([]*models.Item, error) {
	rows, err := db.query(ctx, sq.Select(itemColumns...).From("items").
		Where(sq.Eq{"workspace_id": workspaceID, "is_active": true}).
		OrderBy("name", "id"))
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (db *DB) UpdateItemQuantity(ctx context.Context, id int64, quantity int64) error {
	if quantity < 0 {
		return fmt.Errorf("quantity must be >= 0, got %d", quantity)
	}
	res, err := db.exec(ctx, sq.Update("items").
		Set("quantity", quantity).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to update item quantity: %w", err)
	}
	return requireAffected(res, "item", id)
}
