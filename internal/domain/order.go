package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type OrderItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// OrderRequest is the create-order payload built from a cart snapshot at submission time.
type OrderRequest struct {
	Email string      `json:"email"`
	Items []OrderItem `json:"items"`
}

func NewOrderRequest(email string, cart Cart) OrderRequest {
	return OrderRequest{
		Email: email,
		Items: cart.OrderItems(),
	}
}

// OrderID is the identifier the order API assigns. The API may send it as a
// JSON number or a string.
type OrderID string

func (id *OrderID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("order id is null")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode order id: %w", err)
		}
		*id = OrderID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode order id: %w", err)
	}
	*id = OrderID(n.String())
	return nil
}

func (id OrderID) String() string {
	return string(id)
}

// Order is the part of the create-order response the client reads.
type Order struct {
	ID    OrderID `json:"id"`
	Email string  `json:"email,omitempty"`
}
