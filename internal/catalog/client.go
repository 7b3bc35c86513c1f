package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrOutOfStock      = errors.New("product out of stock")
)

const (
	maxResponseBody = 4 << 20 // 4MB

	// fetchTimeout bounds a shared lookup, which outlives any one caller.
	fetchTimeout = 15 * time.Second
)

// Catalog reads products from the catalog API.
type Catalog interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, slug string) (*domain.Product, error)
}

// Client talks to GET {API_BASE}/products/ and GET {API_BASE}/products/{slug}.
type Client struct {
	baseURL string
	client  *http.Client
	sfg     singleflight.Group // coalesces concurrent lookups of one slug
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	if err := c.get(ctx, "/products/", &products); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}

func (c *Client) GetProduct(ctx context.Context, slug string) (*domain.Product, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, ErrProductNotFound
	}

	ch := c.sfg.DoChan(slug, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		var p domain.Product
		err := c.get(fetchCtx, "/products/"+url.PathEscape(slug), &p)
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, ErrProductNotFound
		}
		if err != nil {
			return nil, err
		}
		return &p, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("get product %q: %w", slug, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		if errors.Is(res.Err, ErrProductNotFound) {
			return nil, res.Err
		}
		return nil, fmt.Errorf("get product %q: %w", slug, res.Err)
	}

	// callers sharing a flight must not share the product
	p := *res.Val.(*domain.Product)
	return &p, nil
}

// Resolve returns the cart reference of an in-stock product.
func Resolve(ctx context.Context, c Catalog, slug string) (domain.ProductRef, error) {
	p, err := c.GetProduct(ctx, slug)
	if err != nil {
		return domain.ProductRef{}, err
	}
	if !p.InStock {
		return domain.ProductRef{}, fmt.Errorf("%s: %w", p.Slug, ErrOutOfStock)
	}
	return p.Ref(), nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}
