package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/checkout"
)

// Submitter places an order from the current cart.
type Submitter interface {
	Submit(ctx context.Context, email string) (*checkout.Receipt, error)
}

type CheckoutHandler struct {
	submitter Submitter
	timeout   time.Duration
}

func NewCheckoutHandler(submitter Submitter, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		submitter: submitter,
		timeout:   timeout,
	}
}

type CheckoutRequestDTO struct {
	Email string `json:"email"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	receipt, err := h.submitter.Submit(ctx, req.Email)
	if err != nil {
		handleCheckoutError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, receipt)
}

func handleCheckoutError(w http.ResponseWriter, err error) {
	var (
		validationErr *checkout.ValidationError
		apiErr        *checkout.ApiError
		netErr        *checkout.NetworkError
	)

	switch {
	case errors.As(err, &validationErr):
		code := "invalid_request"
		switch validationErr.Reason {
		case checkout.ReasonMissingEmail:
			code = "missing_email"
		case checkout.ReasonEmptyCart:
			code = "empty_cart"
		}
		respondError(w, http.StatusBadRequest, code, validationErr.Reason)
	case errors.Is(err, checkout.ErrCheckoutInProgress):
		respondError(w, http.StatusConflict, "checkout_in_progress", err.Error())
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			respondError(w, http.StatusUnprocessableEntity, "order_rejected", apiErr.Message)
			return
		}
		respondError(w, http.StatusBadGateway, "order_api_error", apiErr.Message)
	case errors.As(err, &netErr):
		respondError(w, http.StatusBadGateway, "order_api_unreachable", netErr.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", checkout.DefaultFailureMessage)
	}
}
