package domain

import (
	"context"
	"time"

	"reservo/internal/models"
)

// TxManager runs fn inside one transaction. Repository calls made with the
// context passed to fn join that transaction.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ItemRepository interface {
	GetItem(ctx context.Context, id int64) (*models.Item, error)
	ListItemsByWorkspace(ctx context.Context, workspaceID int64) ([]*models.Item, error)
	CreateItem(ctx context.Context, item *models.Item) error
	UpdateItemQuantity(ctx context.Context, id int64, quantity int64) error
}

type ReservationRepository interface {
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	CreateReservation(ctx context.Context, r *models.Reservation) error
	DestroyReservation(ctx context.Context, id int64) error
	SumOverlapping(ctx context.Context, f models.OverlapFilter) (int64, error)
	FindOverlapping(ctx context.Context, f models.OverlapFilter) ([]*models.Reservation, error)
	FindActiveForCapacity(ctx context.Context, itemID int64, now time.Time) ([]*models.Reservation, error)
	FindUserActiveHolds(ctx context.Context, userID int64, f models.OverlapFilter) ([]*models.Reservation, error)
	ConvertHoldToConfirmed(ctx context.Context, id int64, start, end time.Time, quantity int64) error
	DeleteExpiredHolds(ctx context.Context, now time.Time) ([]*models.Reservation, error)
	DeleteUserHolds(ctx context.Context, userID int64, itemIDs []int64) (int64, error)
	MarkNoShow(ctx context.Context, id int64) error
	RecordReturn(ctx context.Context, id int64, count int64) error
	CountNoShows(ctx context.Context, userID, workspaceID int64, since time.Time) (int, error)
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID int64, limit int) ([]*models.Notification, error)
}

type ReminderJobRepository interface {
	CreateReminderJob(ctx context.Context, job *models.ReminderJob) error
	GetDueReminderJobs(ctx context.Context, now time.Time, limit int) ([]*models.ReminderJob, error)
	UpdateReminderJobStatus(ctx context.Context, id, status, errMsg string, nextRunAt *time.Time) error
}

// CartStorage is the persistence boundary of the cart: an ordered list of
// entries under a string key.
type CartStorage interface {
	GetEntries(ctx context.Context, key string) ([]models.CartEntry, error)
	SetEntries(ctx context.Context, key string, entries []models.CartEntry) error
}

// BlockingPolicy decides whether a user may reserve in a workspace.
type BlockingPolicy interface {
	BlockedFromReserving(ctx context.Context, userID, workspaceID int64) (bool, error)
}

// NotificationSink records that a user must be told something.
type NotificationSink interface {
	Notify(ctx context.Context, userID int64, message string, reservationID *int64) error
}

// ReminderScheduler queues a reminder of the given kind for a reservation.
type ReminderScheduler interface {
	Schedule(ctx context.Context, reservationID int64, kind string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
