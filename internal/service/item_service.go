package service

import (
	"context"

	"reservo/internal/domain"
	"reservo/internal/models"
	"reservo/internal/rebalance"

	"github.com/rs/zerolog"
)

// CapacityRebalancer reconciles reservations with an item's quantity.
type CapacityRebalancer interface {
	Rebalance(ctx context.Context, item *models.Item) (*rebalance.Result, error)
}

type ItemService struct {
	tx         domain.TxManager
	repo       domain.ItemRepository
	rebalancer CapacityRebalancer
	logger     *zerolog.Logger
}

func NewItemService(tx domain.TxManager, repo domain.ItemRepository, rebalancer CapacityRebalancer, logger *zerolog.Logger) *ItemService {
	return &ItemService{
		tx:         tx,
		repo:       repo,
		rebalancer: rebalancer,
		logger:     logger,
	}
}

func (s *ItemService) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	return s.repo.GetItem(ctx, id)
}

func (s *ItemService) ListItems(ctx context.Context, workspaceID int64) ([]*models.Item, error) {
	return s.repo.ListItemsByWorkspace(ctx, workspaceID)
}

func (s *ItemService) CreateItem(ctx context.Context, item *models.Item) error {
	if err := item.Validate(); err != nil {
		return domain.NewValidationError("item", err.Error())
	}
	return s.repo.CreateItem(ctx, item)
}

// UpdateQuantity stores the new quantity and rebalances the item's
// reservations in the same transaction.
func (s *ItemService) UpdateQuantity(ctx context.Context, id int64, quantity int64) (*rebalance.Result, error) {
	if quantity < 0 {
		return nil, domain.NewValidationError("quantity", "must be >= 0")
	}

	var result *rebalance.Result
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.UpdateItemQuantity(ctx, id, quantity); err != nil {
			return err
		}
		item, err := s.repo.GetItem(ctx, id)
		if err != nil {
			return err
		}
		result, err = s.rebalancer.Rebalance(ctx, item)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("item_id", id).
		Int64("quantity", quantity).
		Int("cancelled", len(result.Cancelled)).
		Msg("Item quantity updated")
	return result, nil
}
