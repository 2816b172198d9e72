package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/model"
)

// fakeCartStore keeps cart rows in memory, one row per (user, product).
type fakeCartStore struct {
	items map[string][]*model.CartItem
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{items: make(map[string][]*model.CartItem)}
}

func (f *fakeCartStore) AddItem(item *model.CartItem) (bool, error) {
	for _, existing := range f.items[item.UserID] {
		if existing.ProductID == item.ProductID {
			return false, nil
		}
	}
	item.AddedAt = time.Now().UTC()
	f.items[item.UserID] = append(f.items[item.UserID], item)
	return true, nil
}

func (f *fakeCartStore) ListItems(userID string) ([]*model.CartItem, error) {
	return f.items[userID], nil
}

func (f *fakeCartStore) Clear(userID string) error {
	delete(f.items, userID)
	return nil
}

func newCartFixture(t *testing.T) (*CartService, *fakeProductStore, *model.Product) {
	t.Helper()

	products := newFakeProductStore()
	product := &model.Product{
		SKU:      "SKU-AAAAAAAAAA",
		Name:     "Widget",
		Price:    9.99,
		Stock:    3,
		AdminID:  "admin-1",
		IsActive: true,
	}
	require.NoError(t, products.CreateProduct(product))

	return NewCartService(newFakeCartStore(), products, zap.NewNop()), products, product
}

func TestAddToCart(t *testing.T) {
	svc, _, product := newCartFixture(t)
	ctx := context.Background()

	entry, err := svc.AddToCart(ctx, "user-1", product.ProductID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Quantity)
	assert.Equal(t, product.ProductID, entry.Product.ProductID)
}

func TestAddToCartDefaultsQuantity(t *testing.T) {
	svc, _, product := newCartFixture(t)

	entry, err := svc.AddToCart(context.Background(), "user-1", product.ProductID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Quantity)
}

func TestAddToCartRejectsDuplicate(t *testing.T) {
	svc, _, product := newCartFixture(t)
	ctx := context.Background()

	_, err := svc.AddToCart(ctx, "user-1", product.ProductID, 1)
	require.NoError(t, err)

	_, err = svc.AddToCart(ctx, "user-1", product.ProductID, 1)
	assert.ErrorIs(t, err, ErrDuplicateCartItem)

	// Another user's cart is unaffected
	_, err = svc.AddToCart(ctx, "user-2", product.ProductID, 1)
	assert.NoError(t, err)
}

func TestAddToCartValidation(t *testing.T) {
	svc, _, product := newCartFixture(t)
	ctx := context.Background()

	_, err := svc.AddToCart(ctx, "user-1", "", 1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.AddToCart(ctx, "user-1", product.ProductID, -1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.AddToCart(ctx, "user-1", "no-such-product", 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestAddToCartRejectsUnpurchasableProduct(t *testing.T) {
	svc, products, product := newCartFixture(t)

	products.byID[product.ProductID].IsDeleted = true

	_, err := svc.AddToCart(context.Background(), "user-1", product.ProductID, 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestListCartEmpty(t *testing.T) {
	svc, _, _ := newCartFixture(t)

	_, err := svc.ListCart(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestListCartSkipsRemovedProducts(t *testing.T) {
	svc, products, product := newCartFixture(t)
	ctx := context.Background()

	other := &model.Product{Name: "Gadget", AdminID: "admin-1", IsActive: true}
	require.NoError(t, products.CreateProduct(other))

	_, err := svc.AddToCart(ctx, "user-1", product.ProductID, 1)
	require.NoError(t, err)
	_, err = svc.AddToCart(ctx, "user-1", other.ProductID, 1)
	require.NoError(t, err)

	// One product leaves the storefront after it was carted
	products.byID[other.ProductID].IsActive = false

	entries, err := svc.ListCart(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, product.ProductID, entries[0].Product.ProductID)

	// When every carted product is gone the cart reads as empty
	products.byID[product.ProductID].IsDeleted = true
	_, err = svc.ListCart(ctx, "user-1")
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestClearCart(t *testing.T) {
	svc, _, product := newCartFixture(t)
	ctx := context.Background()

	_, err := svc.AddToCart(ctx, "user-1", product.ProductID, 1)
	require.NoError(t, err)

	require.NoError(t, svc.ClearCart(ctx, "user-1"))

	_, err = svc.ListCart(ctx, "user-1")
	assert.ErrorIs(t, err, ErrEmptyCart)
}
