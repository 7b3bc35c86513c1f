package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/go-chi/chi/v5"
)

type ProductHandler struct {
	catalog catalog.Catalog
	timeout time.Duration
	log     *slog.Logger
}

func NewProductHandler(products catalog.Catalog, timeout time.Duration, log *slog.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: products,
		timeout: timeout,
		log:     log,
	}
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		h.log.Error("list products failed", "request_id", getRequestID(r.Context()), "error", err)
		respondError(w, http.StatusBadGateway, "catalog_unavailable", "catalog unavailable")
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "slug"))
	if errors.Is(err, catalog.ErrProductNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "Product not found")
		return
	}
	if err != nil {
		h.log.Error("get product failed", "request_id", getRequestID(r.Context()), "error", err)
		respondError(w, http.StatusBadGateway, "catalog_unavailable", "catalog unavailable")
		return
	}
	respondJSON(w, http.StatusOK, product)
}
