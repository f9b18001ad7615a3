package shopify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonesrussell/catalog-classifier/internal/domain"
)

// ListMetafields fetches all metafields attached to a product.
func (c *Client) ListMetafields(ctx context.Context, productID int64) ([]domain.Metafield, error) {
	var envelope struct {
		Metafields []domain.Metafield `json:"metafields"`
	}
	path := fmt.Sprintf("/products/%d/metafields.json", productID)
	if _, err := c.do(ctx, http.MethodGet, path, nil, nil, &envelope); err != nil {
		return nil, fmt.Errorf("list metafields for product %d: %w", productID, err)
	}
	return envelope.Metafields, nil
}

// GetMetafield looks up a single metafield by namespace and key. Returns nil
// when the product carries no such metafield.
func (c *Client) GetMetafield(ctx context.Context, productID int64, namespace, key string) (*domain.Metafield, error) {
	metafields, err := c.ListMetafields(ctx, productID)
	if err != nil {
		return nil, err
	}
	for i := range metafields {
		if metafields[i].Namespace == namespace && metafields[i].Key == key {
			return &metafields[i], nil
		}
	}
	return nil, nil
}

// CreateMetafield attaches a new metafield to a product.
func (c *Client) CreateMetafield(ctx context.Context, productID int64, mf domain.Metafield) (*domain.Metafield, error) {
	if mf.Type == "" {
		mf.Type = domain.MetafieldTypeText
	}
	payload := map[string]domain.Metafield{"metafield": mf}
	var envelope struct {
		Metafield domain.Metafield `json:"metafield"`
	}
	path := fmt.Sprintf("/products/%d/metafields.json", productID)
	if _, err := c.do(ctx, http.MethodPost, path, nil, payload, &envelope); err != nil {
		return nil, fmt.Errorf("create metafield %s.%s: %w", mf.Namespace, mf.Key, err)
	}
	return &envelope.Metafield, nil
}

// UpdateMetafield rewrites an existing metafield's value by metafield ID.
func (c *Client) UpdateMetafield(ctx context.Context, mf domain.Metafield) (*domain.Metafield, error) {
	payload := map[string]domain.Metafield{"metafield": mf}
	var envelope struct {
		Metafield domain.Metafield `json:"metafield"`
	}
	path := fmt.Sprintf("/metafields/%d.json", mf.ID)
	if _, err := c.do(ctx, http.MethodPut, path, nil, payload, &envelope); err != nil {
		return nil, fmt.Errorf("update metafield %d: %w", mf.ID, err)
	}
	return &envelope.Metafield, nil
}

// UpsertMetafield creates the metafield when absent and updates it in place
// when present.
func (c *Client) UpsertMetafield(ctx context.Context, productID int64, mf domain.Metafield) (*domain.Metafield, error) {
	existing, err := c.GetMetafield(ctx, productID, mf.Namespace, mf.Key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return c.CreateMetafield(ctx, productID, mf)
	}
	existing.Value = mf.Value
	return c.UpdateMetafield(ctx, *existing)
}
