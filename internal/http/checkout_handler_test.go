package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type SubmitterMock struct {
	receipt *checkout.Receipt
	err     error
	email   string
}

func (s *SubmitterMock) Submit(_ context.Context, email string) (*checkout.Receipt, error) {
	s.email = email
	return s.receipt, s.err
}

func TestCheckout_Success(t *testing.T) {
	mock := &SubmitterMock{receipt: &checkout.Receipt{OrderID: "42", Message: "Order #42 placed successfully!"}}
	tr := newTestRouter(t, newCatalogMock(), mock)

	recorder := tr.do(http.MethodPost, "/api/v1/checkout", CheckoutRequestDTO{Email: "a@b.co"})
	require.Equal(t, http.StatusCreated, recorder.Code)

	var receipt checkout.Receipt
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&receipt))
	assert.Equal(t, domain.OrderID("42"), receipt.OrderID)
	assert.Equal(t, "Order #42 placed successfully!", receipt.Message)
	assert.Equal(t, "a@b.co", mock.email)
}

func TestCheckout_Errors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{"missing email", &checkout.ValidationError{Reason: checkout.ReasonMissingEmail}, http.StatusBadRequest, "missing_email", "missing email"},
		{"empty cart", &checkout.ValidationError{Reason: checkout.ReasonEmptyCart}, http.StatusBadRequest, "empty_cart", "empty cart"},
		{"in progress", checkout.ErrCheckoutInProgress, http.StatusConflict, "checkout_in_progress", "checkout already in progress"},
		{"rejected", &checkout.ApiError{StatusCode: 400, Message: "Out of stock"}, http.StatusUnprocessableEntity, "order_rejected", "Out of stock"},
		{"server error", &checkout.ApiError{StatusCode: 500, Message: checkout.DefaultFailureMessage}, http.StatusBadGateway, "order_api_error", checkout.DefaultFailureMessage},
		{"unreachable", &checkout.NetworkError{Err: errors.New("dial tcp: refused")}, http.StatusBadGateway, "order_api_unreachable", checkout.DefaultFailureMessage},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_error", checkout.DefaultFailureMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestRouter(t, newCatalogMock(), &SubmitterMock{err: tt.err})

			recorder := tr.do(http.MethodPost, "/api/v1/checkout", CheckoutRequestDTO{Email: "a@b.co"})
			assert.Equal(t, tt.wantStatus, recorder.Code)

			body := decodeError(t, recorder)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantMessage, body.Error)
		})
	}
}

func TestCheckout_InvalidJSON(t *testing.T) {
	mock := &SubmitterMock{}
	tr := newTestRouter(t, newCatalogMock(), mock)

	recorder := tr.do(http.MethodPost, "/api/v1/checkout", "invalid json")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "invalid_request", decodeError(t, recorder).Code)
	assert.Empty(t, mock.email)
}
