package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/model"
	"github.com/shopfive/backend/internal/repository/scylla"
	"github.com/shopfive/backend/internal/util"
)

// CartEntry joins a cart row with its product for the cart view.
type CartEntry struct {
	Product  *model.Product `json:"product"`
	Quantity int            `json:"quantity"`
	AddedAt  time.Time      `json:"added_at"`
}

// CartService handles the per-user shopping cart
type CartService struct {
	carts    scylla.CartStore
	products scylla.ProductStore
	logger   *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(carts scylla.CartStore, products scylla.ProductStore, logger *zap.Logger) *CartService {
	return &CartService{
		carts:    carts,
		products: products,
		logger:   logger,
	}
}

// AddToCart puts a product in the user's cart. A product already in the
// cart is rejected; the client adjusts quantity by re-adding after a
// clear, matching the storefront flow.
func (s *CartService) AddToCart(ctx context.Context, userID, productID string, quantity int) (*CartEntry, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: product_id is required", ErrInvalidInput)
	}
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}

	product, err := s.products.GetProductByID(productID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	if !product.IsActive || product.IsDeleted {
		return nil, ErrProductNotFound
	}

	item := &model.CartItem{
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
	}

	applied, err := s.carts.AddItem(item)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrDuplicateCartItem
	}

	s.logger.Info("Product added to cart",
		util.String("user_id", userID),
		util.String("product_id", productID),
		util.Int("quantity", quantity),
	)

	return &CartEntry{Product: product, Quantity: item.Quantity, AddedAt: item.AddedAt}, nil
}

// ListCart returns the cart joined with product details. Rows whose
// product has since been removed from the storefront are skipped.
func (s *CartService) ListCart(ctx context.Context, userID string) ([]*CartEntry, error) {
	items, err := s.carts.ListItems(userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	entries := make([]*CartEntry, 0, len(items))
	for _, item := range items {
		product, err := s.products.GetProductByID(item.ProductID)
		if err != nil {
			if errors.Is(err, scylla.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !product.IsActive || product.IsDeleted {
			continue
		}
		entries = append(entries, &CartEntry{
			Product:  product,
			Quantity: item.Quantity,
			AddedAt:  item.AddedAt,
		})
	}

	if len(entries) == 0 {
		return nil, ErrEmptyCart
	}

	return entries, nil
}

// ClearCart empties the user's cart.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if err := s.carts.Clear(userID); err != nil {
		return err
	}

	s.logger.Info("Cart cleared", util.String("user_id", userID))
	return nil
}
