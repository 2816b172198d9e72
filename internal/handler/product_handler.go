package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/model"
	"github.com/shopfive/backend/internal/service"
	"github.com/shopfive/backend/internal/token"
	"github.com/shopfive/backend/internal/upload"
	"github.com/shopfive/backend/internal/util"
)

// ProductHandler handles HTTP requests for the catalog and the cart
type ProductHandler struct {
	catalogService *service.CatalogService
	cartService    *service.CartService
	saver          *upload.Saver
	issuer         *token.Issuer
	logger         *zap.Logger
}

// NewProductHandler creates a new product handler
func NewProductHandler(
	catalogService *service.CatalogService,
	cartService *service.CartService,
	saver *upload.Saver,
	issuer *token.Issuer,
	logger *zap.Logger,
) *ProductHandler {
	return &ProductHandler{
		catalogService: catalogService,
		cartService:    cartService,
		saver:          saver,
		issuer:         issuer,
		logger:         logger,
	}
}

// RegisterRoutes registers all product and cart routes
func (h *ProductHandler) RegisterRoutes(router chi.Router) {
	router.Route("/product", func(r chi.Router) {
		// Storefront routes
		r.Get("/all_products", h.ListProducts)
		r.Get("/search", h.SearchProducts)
		r.Get("/{productID}", h.GetProduct)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(h.issuer))
			r.Use(RequireAdmin)
			r.Post("/add_product", h.AddProduct)
			r.Get("/my_products", h.MyProducts)
			r.Put("/{productID}", h.UpdateProduct)
			r.Delete("/{productID}", h.DeleteProduct)
			r.Post("/{productID}/restore", h.RestoreProduct)
			r.Post("/reindex", h.Reindex)
		})
	})

	router.Route("/cart", func(r chi.Router) {
		r.Use(RequireAuth(h.issuer))
		r.Post("/", h.AddToCart)
		r.Get("/", h.ListCart)
		r.Delete("/", h.ClearCart)
	})
}

// AddProduct creates a catalog entry. The request is multipart so the
// product photo can ride along with the form fields.
func (h *ProductHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid multipart form", service.ErrInvalidInput))
		return
	}

	price, err := strconv.ParseFloat(r.FormValue("price"), 64)
	if err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid price", service.ErrInvalidInput))
		return
	}
	stock, err := strconv.Atoi(r.FormValue("stock"))
	if err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid stock", service.ErrInvalidInput))
		return
	}

	req := &service.AddProductRequest{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Price:       price,
		Stock:       stock,
	}

	if file, header, err := r.FormFile("photo"); err == nil {
		defer file.Close()
		path, err := h.saver.Save(file, header.Filename)
		if err != nil {
			respondWithError(w, err)
			return
		}
		req.PhotoPath = path
	}

	product, err := h.catalogService.AddProduct(ctx, req, GetUserID(ctx))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, ok(map[string]interface{}{
		"product": product,
	}))
	h.logger.Info("Product added via HTTP",
		util.String("product_id", product.ProductID),
		util.String("sku", product.SKU),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "AddProduct"),
	)
}

// ListProducts returns the storefront catalog.
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalogService.ListStorefront(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"products": products,
	}))
}

// MyProducts returns everything the admin owns, soft-deleted included.
func (h *ProductHandler) MyProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	products, err := h.catalogService.ListMine(ctx, GetUserID(ctx))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"products": products,
	}))
}

// GetProduct returns a single storefront product.
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalogService.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"product": product,
	}))
}

// SearchProducts queries the search index.
func (h *ProductHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalogService.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"products": products,
	}))
}

// UpdateProduct applies the allow-listed field set to an owned product.
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var update model.ProductUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request body", service.ErrInvalidInput))
		return
	}

	product, err := h.catalogService.UpdateProduct(ctx, chi.URLParam(r, "productID"), GetUserID(ctx), &update)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"product": product,
	}))
}

// DeleteProduct soft-deletes an owned product.
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID := chi.URLParam(r, "productID")

	if err := h.catalogService.DeleteProduct(ctx, productID, GetUserID(ctx)); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"detail": "product deleted",
	}))
	h.logger.Info("Product deleted via HTTP",
		util.String("product_id", productID),
		util.String("method", "DeleteProduct"),
	)
}

// RestoreProduct undoes a soft delete on an owned product.
func (h *ProductHandler) RestoreProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	product, err := h.catalogService.RestoreProduct(ctx, chi.URLParam(r, "productID"), GetUserID(ctx))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"product": product,
	}))
}

// Reindex rebuilds the search index from the database.
func (h *ProductHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	count, err := h.catalogService.ReindexAll(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"indexed": count,
	}))
}

// AddToCart puts a product in the authenticated user's cart.
func (h *ProductHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request body", service.ErrInvalidInput))
		return
	}

	entry, err := h.cartService.AddToCart(ctx, GetUserID(ctx), req.ProductID, req.Quantity)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, ok(map[string]interface{}{
		"item": entry,
	}))
}

// ListCart returns the authenticated user's cart.
func (h *ProductHandler) ListCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, err := h.cartService.ListCart(ctx, GetUserID(ctx))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"items": entries,
	}))
}

// ClearCart empties the authenticated user's cart.
func (h *ProductHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.cartService.ClearCart(ctx, GetUserID(ctx)); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"detail": "cart cleared",
	}))
}
