package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonesrussell/catalog-classifier/internal/domain"
	"github.com/jonesrussell/catalog-classifier/internal/logger"
	"github.com/jonesrussell/catalog-classifier/internal/telemetry"
)

const (
	defaultAPIVersion = "2024-01"
	defaultPageSize   = 250
	defaultTimeout    = 30 * time.Second
)

// Config holds the admin API connection settings.
type Config struct {
	ShopURL     string        `env:"SHOP_URL"          yaml:"shop_url"`
	AccessToken string        `env:"SHOP_ACCESS_TOKEN" yaml:"access_token"`
	APIVersion  string        `yaml:"api_version"`
	MinInterval time.Duration `yaml:"min_interval"`
	PageSize    int           `yaml:"page_size"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SetDefaults applies default values to the config if not set.
func (c *Config) SetDefaults() {
	if c.APIVersion == "" {
		c.APIVersion = defaultAPIVersion
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

// APIError is a non-retryable error response from the admin API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("admin API returned %d: %s", e.Status, e.Body)
}

// Client is a throttled client for the shop admin API. Every request passes
// through the single throttle lane.
type Client struct {
	baseURL    string
	token      string
	pageSize   int
	httpClient *http.Client
	throttle   *Throttle
	logger     logger.Logger
}

// NewClient creates an admin API client with its own throttle lane.
func NewClient(cfg Config, log logger.Logger, tp *telemetry.Provider) *Client {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.ShopURL, "/") + "/admin/api/" + cfg.APIVersion,
		token:      cfg.AccessToken,
		pageSize:   cfg.PageSize,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		throttle:   NewThrottle(cfg.MinInterval, log, tp),
		logger:     log,
	}
}

// PageOptions bounds a single listing call. When PageInfo is set the cursor
// is authoritative and the Since filter is not resent; the API rejects
// filtered cursor requests.
type PageOptions struct {
	Since    string
	PageInfo string
	Limit    int
}

// GetProduct fetches a single product by ID.
func (c *Client) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var envelope struct {
		Product domain.Product `json:"product"`
	}
	path := fmt.Sprintf("/products/%d.json", id)
	if _, err := c.do(ctx, http.MethodGet, path, nil, nil, &envelope); err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return &envelope.Product, nil
}

// UpdateProduct writes the given fields back as a single product update.
func (c *Client) UpdateProduct(ctx context.Context, update domain.ProductUpdate) (*domain.Product, error) {
	payload := map[string]domain.ProductUpdate{"product": update}
	var envelope struct {
		Product domain.Product `json:"product"`
	}
	path := fmt.Sprintf("/products/%d.json", update.ID)
	if _, err := c.do(ctx, http.MethodPut, path, nil, payload, &envelope); err != nil {
		return nil, fmt.Errorf("update product %d: %w", update.ID, err)
	}
	return &envelope.Product, nil
}

// ListProducts fetches one page of products and returns the next page cursor,
// empty when this was the last page.
func (c *Client) ListProducts(ctx context.Context, opts PageOptions) ([]domain.Product, string, error) {
	limit := opts.Limit
	if limit <= 0 || limit > c.pageSize {
		limit = c.pageSize
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if opts.PageInfo != "" {
		query.Set("page_info", opts.PageInfo)
	} else if opts.Since != "" {
		query.Set("updated_at_min", opts.Since)
	}

	var envelope struct {
		Products []domain.Product `json:"products"`
	}
	header, err := c.do(ctx, http.MethodGet, "/products.json", query, nil, &envelope)
	if err != nil {
		return nil, "", fmt.Errorf("list products: %w", err)
	}
	return envelope.Products, nextPageInfo(header.Get("Link")), nil
}

// ListAllProducts walks the cursor pagination until the Link header carries
// no next page, materializing the complete working set. A max of 0 means
// unbounded.
func (c *Client) ListAllProducts(ctx context.Context, since string, max int) ([]domain.Product, error) {
	var all []domain.Product
	opts := PageOptions{Since: since}
	for {
		page, next, err := c.ListProducts(ctx, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if max > 0 && len(all) >= max {
			return all[:max], nil
		}
		if next == "" {
			return all, nil
		}
		opts = PageOptions{PageInfo: next}
	}
}

// do builds the request, dispatches it through the throttle lane, and decodes
// the response body into out when a destination is given.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (http.Header, error) {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		payload = encoded
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	// The operation is re-invoked on retry, so the request (and its body
	// reader) must be rebuilt per attempt.
	op := func() (*http.Response, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Shopify-Access-Token", c.token)
		return c.httpClient.Do(req)
	}

	resp, err := c.throttle.Do(ctx, op)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.Header, nil
}

// nextPageInfo extracts the page_info cursor from a Link response header.
// A malformed or missing header means no next page, never an error; the last
// page of a listing simply carries no rel="next" entry.
func nextPageInfo(linkHeader string) string {
	for _, entry := range strings.Split(linkHeader, ",") {
		segments := strings.Split(entry, ";")
		if len(segments) < 2 {
			continue
		}
		if !strings.Contains(segments[1], `rel="next"`) {
			continue
		}
		raw := strings.TrimSpace(segments[0])
		raw = strings.TrimSuffix(strings.TrimPrefix(raw, "<"), ">")
		parsed, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		return parsed.Query().Get("page_info")
	}
	return ""
}
