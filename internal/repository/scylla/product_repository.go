package scylla

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/model"
	"github.com/shopfive/backend/internal/util"
)

type ProductRepository struct {
	client *ScyllaClient
}

func NewProductRepository(client *ScyllaClient, logger *zap.Logger) *ProductRepository {
	// Using global util logger instead of individual logger
	return &ProductRepository{
		client: client,
	}
}

func (r *ProductRepository) CreateProduct(product *model.Product) error {
	if product.ProductID == "" {
		product.ProductID = uuid.New().String()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	// Claim the SKU first; the LWT loses if another product holds it
	var existingID string
	applied, err := r.client.Prepared.CreateSKUToProduct.
		Bind(product.SKU, product.ProductID).
		ScanCAS(&existingID)
	if err != nil {
		util.Error("Failed to claim SKU",
			zap.String("sku", product.SKU),
			zap.Error(err))
		return fmt.Errorf("failed to claim SKU: %w", err)
	}
	if !applied {
		return fmt.Errorf("sku %s already taken", product.SKU)
	}

	batch := r.client.Session.NewBatch(gocql.LoggedBatch)

	batch.Query(r.client.Prepared.CreateProduct.Statement(),
		product.ProductID, product.SKU, product.Name, product.Description,
		product.PhotoPath, product.Price, product.Stock, product.AdminID,
		product.IsActive, product.IsDeleted, product.CreatedAt)

	batch.Query(r.client.Prepared.CreateProductByAdmin.Statement(),
		product.AdminID, product.ProductID, product.CreatedAt)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create product",
			zap.String("product_id", product.ProductID),
			zap.String("sku", product.SKU),
			zap.Error(err))
		return fmt.Errorf("failed to create product: %w", err)
	}

	util.Info("Product created",
		zap.String("product_id", product.ProductID),
		zap.String("sku", product.SKU),
		zap.String("admin_id", product.AdminID))

	return nil
}

func (r *ProductRepository) GetProductByID(productID string) (*model.Product, error) {
	product := &model.Product{}

	query := r.client.Prepared.GetProductByID.Bind(productID)

	err := r.client.ScanWithRetry(query,
		&product.ProductID, &product.SKU, &product.Name, &product.Description,
		&product.PhotoPath, &product.Price, &product.Stock, &product.AdminID,
		&product.IsActive, &product.IsDeleted, &product.CreatedAt, &product.UpdatedAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("product %s: %w", productID, ErrNotFound)
		}
		util.Error("Failed to get product",
			zap.String("product_id", productID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return product, nil
}

func (r *ProductRepository) IsSKUTaken(sku string) (bool, error) {
	var productID string

	query := r.client.Prepared.GetProductBySKU.Bind(sku)
	err := query.Scan(&productID)
	if err != nil {
		if err == gocql.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to check SKU: %w", err)
	}
	return true, nil
}

// ListActiveProducts returns the storefront view: active, not soft-deleted.
func (r *ProductRepository) ListActiveProducts() ([]*model.Product, error) {
	iter := r.client.Prepared.ListProducts.Iter()

	var products []*model.Product
	product := &model.Product{}
	for iter.Scan(&product.ProductID, &product.SKU, &product.Name,
		&product.Description, &product.PhotoPath, &product.Price,
		&product.Stock, &product.AdminID, &product.IsActive,
		&product.IsDeleted, &product.CreatedAt, &product.UpdatedAt) {
		if product.IsActive && !product.IsDeleted {
			p := *product
			products = append(products, &p)
		}
		product = &model.Product{}
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to list products", zap.Error(err))
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	return products, nil
}

// ListProductsByAdmin returns everything an admin owns, soft-deleted rows
// included, so the admin view can offer restore.
func (r *ProductRepository) ListProductsByAdmin(adminID string) ([]*model.Product, error) {
	iter := r.client.Prepared.ListProductsByAdmin.Bind(adminID).Iter()

	var productIDs []string
	var productID string
	for iter.Scan(&productID) {
		productIDs = append(productIDs, productID)
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to list admin products",
			zap.String("admin_id", adminID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list admin products: %w", err)
	}

	products := make([]*model.Product, 0, len(productIDs))
	for _, id := range productIDs {
		product, err := r.GetProductByID(id)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}

	return products, nil
}

// UpdateProduct applies the allow-listed field set and refreshes the
// caller's product struct in place.
func (r *ProductRepository) UpdateProduct(product *model.Product, update *model.ProductUpdate) error {
	now := time.Now().UTC()

	if update.Name != nil {
		product.Name = *update.Name
	}
	if update.Description != nil {
		product.Description = *update.Description
	}
	if update.Price != nil {
		product.Price = *update.Price
	}
	if update.Stock != nil {
		product.Stock = *update.Stock
	}
	if update.IsActive != nil {
		product.IsActive = *update.IsActive
	}
	product.UpdatedAt = &now

	query := r.client.Session.Query(`
        UPDATE products SET name = ?, description = ?, price = ?, stock = ?,
            is_active = ?, updated_at = ?
        WHERE product_id = ?`,
		product.Name, product.Description, product.Price, product.Stock,
		product.IsActive, now, product.ProductID)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update product",
			zap.String("product_id", product.ProductID),
			zap.Error(err))
		return fmt.Errorf("failed to update product: %w", err)
	}

	util.Info("Product updated", zap.String("product_id", product.ProductID))
	return nil
}

// SetDeleted soft-deletes or restores a product. Deleting also
// deactivates; restoring reactivates.
func (r *ProductRepository) SetDeleted(productID string, deleted bool) error {
	now := time.Now().UTC()

	query := r.client.Prepared.SetProductDeleted.Bind(deleted, !deleted, now, productID)
	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to change product delete state",
			zap.String("product_id", productID),
			zap.Bool("deleted", deleted),
			zap.Error(err))
		return fmt.Errorf("failed to change product delete state: %w", err)
	}

	util.Info("Product delete state changed",
		zap.String("product_id", productID),
		zap.Bool("deleted", deleted))
	return nil
}
