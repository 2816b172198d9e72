package scylla

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/model"
	"github.com/shopfive/backend/internal/util"
)

type CartRepository struct {
	client *ScyllaClient
}

func NewCartRepository(client *ScyllaClient, logger *zap.Logger) *CartRepository {
	// Using global util logger instead of individual logger
	return &CartRepository{
		client: client,
	}
}

// AddItem inserts a cart row. Returns false when the product is already
// in the user's cart (LWT not applied).
func (r *CartRepository) AddItem(item *model.CartItem) (bool, error) {
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now().UTC()
	}

	var existingUser, existingProduct string
	var existingQty int
	var existingAt time.Time
	applied, err := r.client.Prepared.AddCartItem.
		Bind(item.UserID, item.ProductID, item.Quantity, item.AddedAt).
		ScanCAS(&existingUser, &existingProduct, &existingQty, &existingAt)
	if err != nil {
		util.Error("Failed to add cart item",
			zap.String("user_id", item.UserID),
			zap.String("product_id", item.ProductID),
			zap.Error(err))
		return false, fmt.Errorf("failed to add cart item: %w", err)
	}

	if applied {
		util.Info("Cart item added",
			zap.String("user_id", item.UserID),
			zap.String("product_id", item.ProductID),
			zap.Int("quantity", item.Quantity))
	}

	return applied, nil
}

func (r *CartRepository) ListItems(userID string) ([]*model.CartItem, error) {
	iter := r.client.Prepared.GetCartItems.Bind(userID).Iter()

	var items []*model.CartItem
	item := &model.CartItem{}
	for iter.Scan(&item.UserID, &item.ProductID, &item.Quantity, &item.AddedAt) {
		i := *item
		items = append(items, &i)
		item = &model.CartItem{}
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to list cart items",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}

	return items, nil
}

func (r *CartRepository) Clear(userID string) error {
	query := r.client.Prepared.ClearCart.Bind(userID)
	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to clear cart",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	util.Info("Cart cleared", zap.String("user_id", userID))
	return nil
}
