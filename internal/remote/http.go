package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TokenSource resolves the access token of a tenant.
type TokenSource interface {
	AccessToken(ctx context.Context, tenantID string) (string, error)
}

type HTTPConfig struct {
	BaseURL     string
	APIVersion  string
	Timeout     time.Duration
	MaxAttempts int
}

type HTTPClientFactory struct {
	cfg        HTTPConfig
	tokens     TokenSource
	httpClient *http.Client
}

func NewHTTPClientFactory(cfg HTTPConfig, tokens TokenSource, httpClient *http.Client) *HTTPClientFactory {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &HTTPClientFactory{cfg: cfg, tokens: tokens, httpClient: httpClient}
}

func (f *HTTPClientFactory) ForTenant(ctx context.Context, tenantID string) (Client, error) {
	token, err := f.tokens.AccessToken(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(token) == "" {
		return nil, ErrNoCredentials
	}
	return NewHTTPClient(f.cfg, token, f.httpClient), nil
}

type HTTPClient struct {
	baseURL    string
	apiVersion string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewHTTPClient(cfg HTTPConfig, token string, httpClient *http.Client) *HTTPClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://connect.squareup.com"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	maxRetries := cfg.MaxAttempts - 1
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &HTTPClient{
		baseURL:    baseURL,
		apiVersion: cfg.APIVersion,
		token:      token,
		httpClient: httpClient,
		maxRetries: maxRetries,
		baseDelay:  500 * time.Millisecond,
		maxDelay:   10 * time.Second,
	}
}

func (c *HTTPClient) ListCatalog(ctx context.Context, req ListCatalogRequest) (*CatalogPage, error) {
	q := url.Values{}
	if len(req.Types) > 0 {
		q.Set("types", strings.Join(req.Types, ","))
	}
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}
	var out struct {
		Objects []CatalogObject `json:"objects"`
		Cursor  string          `json:"cursor"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v2/catalog/list?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &CatalogPage{Objects: out.Objects, Cursor: out.Cursor}, nil
}

func (c *HTTPClient) SearchCatalogObjects(ctx context.Context, req SearchCatalogRequest) (*CatalogPage, error) {
	body := map[string]any{
		"object_types":            req.ObjectTypes,
		"include_deleted_objects": req.IncludeDeleted,
	}
	if req.BeginTime != nil {
		body["begin_time"] = req.BeginTime.UTC().Format(time.RFC3339)
	}
	if req.Cursor != "" {
		body["cursor"] = req.Cursor
	}
	if req.Limit > 0 {
		body["limit"] = req.Limit
	}
	var out struct {
		Objects    []CatalogObject `json:"objects"`
		Cursor     string          `json:"cursor"`
		LatestTime *time.Time      `json:"latest_time"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v2/catalog/search", body, &out); err != nil {
		return nil, err
	}
	page := &CatalogPage{Objects: out.Objects, Cursor: out.Cursor}
	if out.LatestTime != nil {
		page.LatestTime = *out.LatestTime
	}
	return page, nil
}

func (c *HTTPClient) BatchRetrieveCatalogObjects(ctx context.Context, ids []string) ([]CatalogObject, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	body := map[string]any{"object_ids": ids}
	var out struct {
		Objects []CatalogObject `json:"objects"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v2/catalog/batch-retrieve", body, &out); err != nil {
		return nil, err
	}
	return out.Objects, nil
}

func (c *HTTPClient) BatchUpsertCatalogObjects(ctx context.Context, idempotencyKey string, objects []CatalogObject) ([]CatalogObject, error) {
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	body := map[string]any{
		"idempotency_key": idempotencyKey,
		"batches":         []map[string]any{{"objects": objects}},
	}
	var out struct {
		Objects []CatalogObject `json:"objects"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v2/catalog/batch-upsert", body, &out); err != nil {
		return nil, err
	}
	return out.Objects, nil
}

func (c *HTTPClient) RetrieveVendor(ctx context.Context, vendorID string) (*Vendor, error) {
	var out struct {
		Vendor *Vendor `json:"vendor"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v2/vendors/"+url.PathEscape(vendorID), nil, &out); err != nil {
		return nil, err
	}
	if out.Vendor == nil {
		return nil, &APIError{StatusCode: http.StatusNotFound, Code: "NOT_FOUND", Detail: "vendor " + vendorID}
	}
	return out.Vendor, nil
}

func (c *HTTPClient) ListLocations(ctx context.Context) ([]Location, error) {
	var out struct {
		Locations []Location `json:"locations"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v2/locations", nil, &out); err != nil {
		return nil, err
	}
	return out.Locations, nil
}

func (c *HTTPClient) SearchInvoices(ctx context.Context, req SearchInvoicesRequest) (*InvoicePage, error) {
	body := map[string]any{
		"query": map[string]any{
			"filter": map[string]any{"location_ids": req.LocationIDs},
		},
	}
	if req.Cursor != "" {
		body["cursor"] = req.Cursor
	}
	if req.Limit > 0 {
		body["limit"] = req.Limit
	}
	var out struct {
		Invoices []Invoice `json:"invoices"`
		Cursor   string    `json:"cursor"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v2/invoices/search", body, &out); err != nil {
		return nil, err
	}
	return &InvoicePage{Invoices: out.Invoices, Cursor: out.Cursor}, nil
}

func (c *HTTPClient) BatchRetrieveOrders(ctx context.Context, locationID string, orderIDs []string) ([]Order, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	body := map[string]any{"location_id": locationID, "order_ids": orderIDs}
	var out struct {
		Orders []Order `json:"orders"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v2/orders/batch-retrieve", body, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

func (c *HTTPClient) SearchOrders(ctx context.Context, req SearchOrdersRequest) (*OrderPage, error) {
	filter := map[string]any{}
	if len(req.States) > 0 {
		filter["state_filter"] = map[string]any{"states": req.States}
	}
	if req.ClosedAtStart != nil || req.ClosedAtEnd != nil {
		closedAt := map[string]any{}
		if req.ClosedAtStart != nil {
			closedAt["start_at"] = req.ClosedAtStart.UTC().Format(time.RFC3339)
		}
		if req.ClosedAtEnd != nil {
			closedAt["end_at"] = req.ClosedAtEnd.UTC().Format(time.RFC3339)
		}
		filter["date_time_filter"] = map[string]any{"closed_at": closedAt}
	}
	body := map[string]any{
		"location_ids": req.LocationIDs,
		"query": map[string]any{
			"filter": filter,
			"sort":   map[string]any{"sort_field": "CLOSED_AT", "sort_order": "ASC"},
		},
	}
	if req.Cursor != "" {
		body["cursor"] = req.Cursor
	}
	if req.Limit > 0 {
		body["limit"] = req.Limit
	}
	var out struct {
		Orders []Order `json:"orders"`
		Cursor string  `json:"cursor"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v2/orders/search", body, &out); err != nil {
		return nil, err
	}
	return &OrderPage{Orders: out.Orders, Cursor: out.Cursor}, nil
}

func (c *HTTPClient) BatchRetrieveInventoryCounts(ctx context.Context, req InventoryCountsRequest) (*InventoryCountPage, error) {
	body := map[string]any{}
	if len(req.LocationIDs) > 0 {
		body["location_ids"] = req.LocationIDs
	}
	if len(req.States) > 0 {
		body["states"] = req.States
	}
	if req.Cursor != "" {
		body["cursor"] = req.Cursor
	}
	var out struct {
		Counts []InventoryCount `json:"counts"`
		Cursor string           `json:"cursor"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v2/inventory/counts/batch-retrieve", body, &out); err != nil {
		return nil, err
	}
	return &InventoryCountPage{Counts: out.Counts, Cursor: out.Cursor}, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, requestPath string, body any, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if c.apiVersion != "" {
			req.Header.Set("Square-Version", c.apiVersion)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries && ctx.Err() == nil {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			return json.Unmarshal(payload, out)
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}
		return parseAPIError(resp.StatusCode, payload)
	}
}

func parseAPIError(status int, payload []byte) error {
	var body struct {
		Errors []struct {
			Category string `json:"category"`
			Code     string `json:"code"`
			Detail   string `json:"detail"`
		} `json:"errors"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(payload, &body); err == nil && len(body.Errors) > 0 {
		apiErr.Category = body.Errors[0].Category
		apiErr.Code = body.Errors[0].Code
		apiErr.Detail = body.Errors[0].Detail
	} else {
		apiErr.Detail = http.StatusText(status)
	}
	return apiErr
}

func (c *HTTPClient) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		return time.Until(at)
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

