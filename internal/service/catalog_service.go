package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shopfive/backend/internal/client"
	"github.com/shopfive/backend/internal/model"
	"github.com/shopfive/backend/internal/repository/scylla"
	"github.com/shopfive/backend/internal/util"
)

const skuGenerateAttempts = 5

// AddProductRequest represents a new catalog entry. PhotoPath is filled
// by the handler after storing the uploaded file.
type AddProductRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=200"`
	Description string  `json:"description" validate:"max=2000"`
	Price       float64 `json:"price" validate:"gte=0"`
	Stock       int     `json:"stock" validate:"gte=0"`
	PhotoPath   string  `json:"-"`
}

// productDoc is the search index projection of a product.
type productDoc struct {
	ProductID   string  `json:"product_id"`
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	PhotoPath   string  `json:"photo_path"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	IsActive    bool    `json:"is_active"`
	IsDeleted   bool    `json:"is_deleted"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source productDoc `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// CatalogService handles the product catalog and keeps the search index
// in step with the database. The database is the source of truth; index
// writes are best effort and only logged on failure.
type CatalogService struct {
	products scylla.ProductStore
	es       *client.ESClient
	index    string
	logger   *zap.Logger
}

// NewCatalogService creates a new catalog service. es may be nil when
// search is not configured.
func NewCatalogService(products scylla.ProductStore, es *client.ESClient, index string, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		products: products,
		es:       es,
		index:    index,
		logger:   logger,
	}
}

// AddProduct creates a product with a generated unique SKU and indexes it.
func (s *CatalogService) AddProduct(ctx context.Context, req *AddProductRequest, adminID string) (*model.Product, error) {
	if err := s.validateAddRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	sku, err := s.generateSKU()
	if err != nil {
		return nil, err
	}

	product := &model.Product{
		SKU:         sku,
		Name:        util.SanitizeInput(req.Name),
		Description: util.SanitizeInput(req.Description),
		PhotoPath:   req.PhotoPath,
		Price:       req.Price,
		Stock:       req.Stock,
		AdminID:     adminID,
		IsActive:    true,
	}

	if err := s.products.CreateProduct(product); err != nil {
		return nil, err
	}

	s.indexProduct(ctx, product)

	s.logger.Info("Product added",
		util.String("product_id", product.ProductID),
		util.String("sku", product.SKU),
		util.String("admin_id", adminID),
	)

	return product, nil
}

// generateSKU draws random SKUs until one is free. The create path's
// conditional insert remains the final uniqueness guard.
func (s *CatalogService) generateSKU() (string, error) {
	for attempt := 0; attempt < skuGenerateAttempts; attempt++ {
		buf := make([]byte, 5)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate SKU: %w", err)
		}
		sku := "SKU-" + strings.ToUpper(hex.EncodeToString(buf))

		taken, err := s.products.IsSKUTaken(sku)
		if err != nil {
			return "", err
		}
		if !taken {
			return sku, nil
		}
	}
	return "", errors.New("failed to generate a unique SKU")
}

// GetProduct returns a product for the storefront. Soft-deleted and
// inactive products are not found.
func (s *CatalogService) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
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
	return product, nil
}

// ListStorefront returns all purchasable products.
func (s *CatalogService) ListStorefront(ctx context.Context) ([]*model.Product, error) {
	return s.products.ListActiveProducts()
}

// ListMine returns everything the admin owns, soft-deleted rows included.
func (s *CatalogService) ListMine(ctx context.Context, adminID string) ([]*model.Product, error) {
	return s.products.ListProductsByAdmin(adminID)
}

// UpdateProduct applies the allow-listed fields to a product the admin
// owns and refreshes the search index.
func (s *CatalogService) UpdateProduct(ctx context.Context, productID, adminID string, update *model.ProductUpdate) (*model.Product, error) {
	product, err := s.ownedProduct(productID, adminID)
	if err != nil {
		return nil, err
	}

	if update == nil {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	if update.Name != nil {
		name := util.SanitizeInput(*update.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
		}
		update.Name = &name
	}
	if update.Price != nil && *update.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if update.Stock != nil && *update.Stock < 0 {
		return nil, fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	}

	if err := s.products.UpdateProduct(product, update); err != nil {
		return nil, err
	}

	s.indexProduct(ctx, product)

	return product, nil
}

// DeleteProduct soft-deletes a product the admin owns and drops it from
// the search index. The row stays for restore.
func (s *CatalogService) DeleteProduct(ctx context.Context, productID, adminID string) error {
	product, err := s.ownedProduct(productID, adminID)
	if err != nil {
		return err
	}

	if err := s.products.SetDeleted(product.ProductID, true); err != nil {
		return err
	}

	if s.es != nil {
		if res, err := s.es.DeleteDocument(ctx, s.index, product.ProductID); err != nil {
			s.logger.Warn("Failed to remove product from search index",
				util.String("product_id", product.ProductID), util.ErrorField(err))
		} else {
			res.Body.Close()
		}
	}

	return nil
}

// RestoreProduct undoes a soft delete and puts the product back in the
// search index.
func (s *CatalogService) RestoreProduct(ctx context.Context, productID, adminID string) (*model.Product, error) {
	product, err := s.ownedProduct(productID, adminID)
	if err != nil {
		return nil, err
	}

	if err := s.products.SetDeleted(product.ProductID, false); err != nil {
		return nil, err
	}
	product.IsDeleted = false
	product.IsActive = true

	s.indexProduct(ctx, product)

	return product, nil
}

// Search queries the search index over name, description and SKU,
// filtered to purchasable products.
func (s *CatalogService) Search(ctx context.Context, term string) ([]*model.Product, error) {
	if s.es == nil {
		return nil, errors.New("search is not configured")
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: search term is required", ErrInvalidInput)
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":  term,
						"fields": []string{"name^2", "description", "sku"},
					},
				},
				"filter": []map[string]interface{}{
					{"term": map[string]interface{}{"is_active": true}},
					{"term": map[string]interface{}{"is_deleted": false}},
				},
			},
		},
		"size": 50,
	}

	res, err := s.es.Search(ctx, s.index, query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	var parsed searchResponse
	if err := s.es.ParseResponse(res, &parsed); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	products := make([]*model.Product, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		doc := hit.Source
		products = append(products, &model.Product{
			ProductID:   doc.ProductID,
			SKU:         doc.SKU,
			Name:        doc.Name,
			Description: doc.Description,
			PhotoPath:   doc.PhotoPath,
			Price:       doc.Price,
			Stock:       doc.Stock,
			IsActive:    doc.IsActive,
			IsDeleted:   doc.IsDeleted,
		})
	}

	return products, nil
}

// ReindexAll rebuilds the search index from the database, a few
// documents at a time.
func (s *CatalogService) ReindexAll(ctx context.Context) (int, error) {
	if s.es == nil {
		return 0, errors.New("search is not configured")
	}

	products, err := s.products.ListActiveProducts()
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, product := range products {
		p := product
		g.Go(func() error {
			res, err := s.es.IndexDocument(gctx, s.index, p.ProductID, toDoc(p))
			if err != nil {
				return fmt.Errorf("product %s: %w", p.ProductID, err)
			}
			res.Body.Close()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("reindex failed: %w", err)
	}

	s.logger.Info("Search index rebuilt", util.Int("products", len(products)))

	return len(products), nil
}

// ownedProduct loads a product and checks the admin owns it. Soft-deleted
// rows are returned so the owner can restore them.
func (s *CatalogService) ownedProduct(productID, adminID string) (*model.Product, error) {
	product, err := s.products.GetProductByID(productID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	if product.AdminID != adminID {
		return nil, ErrPermissionDenied
	}
	return product, nil
}

func (s *CatalogService) indexProduct(ctx context.Context, product *model.Product) {
	if s.es == nil {
		return
	}
	res, err := s.es.IndexDocument(ctx, s.index, product.ProductID, toDoc(product))
	if err != nil {
		s.logger.Warn("Failed to index product",
			util.String("product_id", product.ProductID), util.ErrorField(err))
		return
	}
	res.Body.Close()
}

func toDoc(product *model.Product) *productDoc {
	return &productDoc{
		ProductID:   product.ProductID,
		SKU:         product.SKU,
		Name:        product.Name,
		Description: product.Description,
		PhotoPath:   product.PhotoPath,
		Price:       product.Price,
		Stock:       product.Stock,
		IsActive:    product.IsActive,
		IsDeleted:   product.IsDeleted,
	}
}

func (s *CatalogService) validateAddRequest(req *AddProductRequest) error {
	if req == nil {
		return errors.New("request is empty")
	}
	if strings.TrimSpace(req.Name) == "" {
		return errors.New("name is required")
	}
	if len(req.Name) > 200 {
		return errors.New("name too long")
	}
	if req.Price < 0 {
		return errors.New("price must not be negative")
	}
	if req.Stock < 0 {
		return errors.New("stock must not be negative")
	}
	return nil
}
