package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
)

// CartStore is the cart state the handlers read and mutate.
type CartStore interface {
	GetCart(ctx context.Context) domain.Cart
	AddToCart(ctx context.Context, ref domain.ProductRef, qty int) domain.Cart
	UpdateQuantity(ctx context.Context, id int64, quantity int) domain.Cart
	RemoveFromCart(ctx context.Context, id int64) domain.Cart
	ClearCart(ctx context.Context)
	Subscribe(l cart.Listener) (unsubscribe func())
}

type CartHandler struct {
	store   CartStore
	catalog catalog.Catalog
	timeout time.Duration
	log     *slog.Logger
}

func NewCartHandler(store CartStore, products catalog.Catalog, timeout time.Duration, log *slog.Logger) *CartHandler {
	return &CartHandler{
		store:   store,
		catalog: products,
		timeout: timeout,
		log:     log,
	}
}

// MaxRequestQuantity bounds the quantity a single request may add or set.
const MaxRequestQuantity = 999

type AddItemRequestDTO struct {
	Slug     string `json:"slug"`
	Quantity int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponse struct {
	Items domain.Cart `json:"items"`
	domain.Totals
}

func newCartResponse(c domain.Cart) CartResponse {
	return CartResponse{Items: c.Clone(), Totals: c.Totals()}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	respondJSON(w, http.StatusOK, newCartResponse(h.store.GetCart(ctx)))
}

// AddItem resolves the slug through the catalog so the stored line carries
// the catalog's name and price, never the caller's.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Slug == "" {
		respondError(w, http.StatusBadRequest, "invalid_slug", "slug is required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 || req.Quantity > MaxRequestQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", fmt.Sprintf("quantity must be between 1 and %d", MaxRequestQuantity))
		return
	}

	ref, err := catalog.Resolve(ctx, h.catalog, req.Slug)
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "not_found", "Product not found")
		return
	case errors.Is(err, catalog.ErrOutOfStock):
		respondError(w, http.StatusConflict, "out_of_stock", "Product is out of stock")
		return
	case err != nil:
		h.log.Error("catalog lookup failed", "slug", req.Slug, "request_id", getRequestID(r.Context()), "error", err)
		respondError(w, http.StatusBadGateway, "catalog_unavailable", "catalog unavailable")
		return
	}

	respondJSON(w, http.StatusCreated, newCartResponse(h.store.AddToCart(ctx, ref, req.Quantity)))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.Quantity > MaxRequestQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", fmt.Sprintf("quantity must be between 1 and %d", MaxRequestQuantity))
		return
	}

	respondJSON(w, http.StatusOK, newCartResponse(h.store.UpdateQuantity(ctx, productID, req.Quantity)))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, newCartResponse(h.store.RemoveFromCart(ctx, productID)))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.store.ClearCart(ctx)
	respondJSON(w, http.StatusOK, newCartResponse(domain.Cart{}))
}

// Events streams the cart as server-sent events: the current cart first,
// then one event per mutation. Slow readers miss intermediate snapshots but
// always see a later one.
func (h *CartHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming unsupported")
		return
	}

	updates := make(chan domain.Cart, 1)
	unsubscribe := h.store.Subscribe(func(c domain.Cart) {
		select {
		case updates <- c:
		default:
			// replace the pending snapshot with the newer one
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- c:
			default:
			}
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeCartEvent(w, h.store.GetCart(r.Context())); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case c := <-updates:
			if err := writeCartEvent(w, c); err != nil {
				h.log.Debug("cart event stream closed", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeCartEvent(w http.ResponseWriter, c domain.Cart) error {
	data, err := json.Marshal(newCartResponse(c))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: cart\ndata: %s\n\n", data)
	return err
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, false
	}
	return productID, true
}
