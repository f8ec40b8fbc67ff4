package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	v1 "github.com/acme/catalog-console/api/v1"
	"github.com/acme/catalog-console/pkg/metrics"
	"github.com/acme/catalog-console/pkg/requestid"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	ErrEmptyResponse = errors.New("empty response")
	ErrEmptyJobID    = errors.New("response carries no job id")

	prometheusRegisterer prometheus.Registerer = prometheus.DefaultRegisterer
)

// Route templates, used as metric labels and for error messages.
const (
	routeHealth         = "/api/health"
	routeUpload         = "/api/upload"
	routeProducts       = "/api/products"
	routeProduct        = "/api/products/{id}"
	routeDeleteAll      = "/api/products/delete-all"
	routeWebhooks       = "/api/webhooks"
	routeWebhook        = "/api/webhooks/{id}"
	routeWebhookTest    = "/api/webhooks/test/{id}"
	uploadFormFieldName = "file"
)

// Client talks to the catalog REST API.
type Client struct {
	server     *url.URL
	httpClient *http.Client
	contract   *ContractValidator
}

type Option func(c *Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithContractValidation checks every response against the API contract and
// fails calls whose response does not conform.
func WithContractValidation(v *ContractValidator) Option {
	return func(c *Client) {
		c.contract = v
	}
}

func New(server string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server url %q: %w", server, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server url %q must be absolute", server)
	}

	c := &Client{
		server:     u,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Server returns the base URL of the API.
func (c *Client) Server() string {
	return c.server.String()
}

func (c *Client) Health(ctx context.Context) (*v1.Health, error) {
	var out v1.Health
	if err := c.do(ctx, request{route: routeHealth, method: http.MethodGet, path: routeHealth, expect: http.StatusOK}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload sends the content of r as a multipart file named filename and
// returns the import job.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*v1.JobAccepted, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile(uploadFormFieldName, filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("copying file into multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	var out v1.JobAccepted
	err = c.do(ctx, request{
		route:       routeUpload,
		method:      http.MethodPost,
		path:        routeUpload,
		body:        &buf,
		contentType: mw.FormDataContentType(),
		expect:      http.StatusAccepted,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.JobId == "" {
		return nil, ErrEmptyJobID
	}
	return &out, nil
}

// ListProducts fetches one page of products. Empty filter fields and a zero
// page or perPage are left out of the query.
func (c *Client) ListProducts(ctx context.Context, filter v1.ProductFilter, page, perPage int) (*v1.ProductPage, error) {
	query := url.Values{}
	if page > 0 {
		if err := addQueryParam(query, "page", page); err != nil {
			return nil, err
		}
	}
	if perPage > 0 {
		if err := addQueryParam(query, "per_page", perPage); err != nil {
			return nil, err
		}
	}
	for name, value := range map[string]string{
		"sku":         filter.Sku,
		"name":        filter.Name,
		"description": filter.Description,
		"active":      string(filter.Active),
	} {
		if value == "" {
			continue
		}
		if err := addQueryParam(query, name, value); err != nil {
			return nil, err
		}
	}

	var out v1.ProductPage
	if err := c.do(ctx, request{route: routeProducts, method: http.MethodGet, path: routeProducts, query: query, expect: http.StatusOK}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateProduct(ctx context.Context, body v1.ProductCreate) (*v1.Product, error) {
	var out v1.Product
	if err := c.doJSON(ctx, routeProducts, http.MethodPost, routeProducts, body, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProduct(ctx context.Context, id int64, body v1.ProductUpdate) (*v1.Product, error) {
	path, err := idPath("/api/products/", id)
	if err != nil {
		return nil, err
	}
	var out v1.Product
	if err := c.doJSON(ctx, routeProduct, http.MethodPut, path, body, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	path, err := idPath("/api/products/", id)
	if err != nil {
		return err
	}
	return c.do(ctx, request{route: routeProduct, method: http.MethodDelete, path: path, expect: http.StatusOK}, nil)
}

// DeleteAllProducts starts the bulk delete job.
func (c *Client) DeleteAllProducts(ctx context.Context) (*v1.JobAccepted, error) {
	var out v1.JobAccepted
	if err := c.do(ctx, request{route: routeDeleteAll, method: http.MethodDelete, path: routeDeleteAll, expect: http.StatusAccepted}, &out); err != nil {
		return nil, err
	}
	if out.JobId == "" {
		return nil, ErrEmptyJobID
	}
	return &out, nil
}

func (c *Client) ListWebhooks(ctx context.Context) ([]v1.Webhook, error) {
	out := []v1.Webhook{}
	if err := c.do(ctx, request{route: routeWebhooks, method: http.MethodGet, path: routeWebhooks, expect: http.StatusOK}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateWebhook(ctx context.Context, body v1.WebhookCreate) (*v1.Webhook, error) {
	var out v1.Webhook
	if err := c.doJSON(ctx, routeWebhooks, http.MethodPost, routeWebhooks, body, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateWebhook(ctx context.Context, id int64, body v1.WebhookUpdate) (*v1.Webhook, error) {
	path, err := idPath("/api/webhooks/", id)
	if err != nil {
		return nil, err
	}
	var out v1.Webhook
	if err := c.doJSON(ctx, routeWebhook, http.MethodPut, path, body, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteWebhook(ctx context.Context, id int64) error {
	path, err := idPath("/api/webhooks/", id)
	if err != nil {
		return err
	}
	return c.do(ctx, request{route: routeWebhook, method: http.MethodDelete, path: path, expect: http.StatusOK}, nil)
}

// TestWebhook asks the server to simulate a delivery to the webhook.
func (c *Client) TestWebhook(ctx context.Context, id int64) (*v1.WebhookTestResult, error) {
	path, err := idPath("/api/webhooks/test/", id)
	if err != nil {
		return nil, err
	}
	var out v1.WebhookTestResult
	if err := c.do(ctx, request{route: routeWebhookTest, method: http.MethodPost, path: path, expect: http.StatusOK}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type request struct {
	route       string
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	expect      int
}

func (c *Client) doJSON(ctx context.Context, route, method, path string, in any, expect int, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, request{
		route:       route,
		method:      method,
		path:        path,
		body:        bytes.NewReader(body),
		contentType: "application/json",
		expect:      expect,
	}, out)
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	u := *c.server
	u.Path = strings.TrimSuffix(u.Path, "/") + r.path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	reqID := requestid.FromContextOrNew(ctx)
	ctx = metrics.WithRoute(requestid.ToContext(ctx, reqID), r.route)

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), r.body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(middleware.RequestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", r.method, r.route, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	zap.S().Named("catalog_client").Debugw("api call", "request_id", reqID, "method", r.method, "route", r.route, "status", resp.StatusCode)

	if c.contract != nil {
		if err := c.contract.ValidateResponse(ctx, req, resp.StatusCode, resp.Header, body); err != nil {
			return err
		}
	}

	if resp.StatusCode != r.expect {
		return newAPIError(r.method, r.route, resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%s %s: %w", r.method, r.route, ErrEmptyResponse)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func idPath(prefix string, id int64) (string, error) {
	pathParam0, err := runtime.StyleParamWithLocation("simple", false, "id", runtime.ParamLocationPath, id)
	if err != nil {
		return "", err
	}
	return prefix + pathParam0, nil
}

func addQueryParam(query url.Values, name string, value any) error {
	queryFrag, err := runtime.StyleParamWithLocation("form", true, name, runtime.ParamLocationQuery, value)
	if err != nil {
		return err
	}
	parsed, err := url.ParseQuery(queryFrag)
	if err != nil {
		return err
	}
	for k, v := range parsed {
		for _, v2 := range v {
			query.Add(k, v2)
		}
	}
	return nil
}
