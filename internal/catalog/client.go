// Package catalog talks to the catalog REST API and keeps the local category snapshot.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"storeadmin/internal/common"
	"storeadmin/internal/models"

	"go.uber.org/zap"
)

const (
	categoriesEndpoint = "/api/categories"
	productsEndpoint   = "/api/products"
	uploadEndpoint     = "/api/upload"

	maxErrorBody = 64 * 1024
)

// ErrMissingID is returned when an update is attempted without an _id.
var ErrMissingID = errors.New("catalog: _id is required")

// APIError is a non-2xx answer from the catalog API.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog API %s %s returned status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Client handles REST communication with the catalog API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewClient creates a catalog API client. A zero timeout leaves the transport default.
func NewClient(baseURL string, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// makeRequest performs an HTTP request against the catalog API, forwarding the caller's credential.
func (c *Client) makeRequest(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := common.CredentialFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debugw("catalog request", "method", method, "endpoint", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s %s: %w", method, endpoint, err)
	}
	return resp, nil
}

// doJSON sends payload as JSON (when non-nil) and decodes a 2xx body into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.makeRequest(ctx, method, endpoint, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.decode(resp, method, endpoint, out)
}

func (c *Client) decode(resp *http.Response, method, endpoint string, out interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Method: method, Path: endpoint, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		c.logger.Warnw("catalog API error", "method", method, "endpoint", endpoint, "status", resp.StatusCode)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s %s response: %w", method, endpoint, err)
	}
	return nil
}

// ListCategories fetches every category with its denormalized parent.
func (c *Client) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := c.doJSON(ctx, http.MethodGet, categoriesEndpoint, nil, &categories); err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []models.Category{}
	}
	return categories, nil
}

func (c *Client) CreateCategory(ctx context.Context, in models.CategoryInput) (*models.Category, error) {
	in.ID = ""
	var created models.Category
	if err := c.doJSON(ctx, http.MethodPost, categoriesEndpoint, in, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateCategory sends PUT /api/categories; the body must carry _id.
func (c *Client) UpdateCategory(ctx context.Context, in models.CategoryInput) error {
	if in.ID == "" {
		return ErrMissingID
	}
	return c.doJSON(ctx, http.MethodPut, categoriesEndpoint, in, nil)
}

func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}
	endpoint := categoriesEndpoint + "?_id=" + url.QueryEscape(id)
	return c.doJSON(ctx, http.MethodDelete, endpoint, nil, nil)
}

// GetProduct loads one product by id.
func (c *Client) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	var product models.Product
	endpoint := productsEndpoint + "?id=" + url.QueryEscape(id)
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &product); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = id
	}
	return &product, nil
}

func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := c.doJSON(ctx, http.MethodGet, productsEndpoint, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) CreateProduct(ctx context.Context, p models.Product) (*models.Product, error) {
	p.ID = ""
	created := p
	if err := c.doJSON(ctx, http.MethodPost, productsEndpoint, p, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateProduct sends the full field set with _id to PUT /api/products.
func (c *Client) UpdateProduct(ctx context.Context, p models.Product) error {
	if p.ID == "" {
		return ErrMissingID
	}
	return c.doJSON(ctx, http.MethodPut, productsEndpoint, p, nil)
}

// Upload posts one file as multipart field "file" and returns the stored links.
func (c *Client) Upload(ctx context.Context, file models.UploadFile) ([]string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(file.Filename)))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := io.Copy(part, file.Reader); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file.Filename, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	resp, err := c.makeRequest(ctx, http.MethodPost, uploadEndpoint, &buf, writer.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var uploaded models.UploadResponse
	if err := c.decode(resp, http.MethodPost, uploadEndpoint, &uploaded); err != nil {
		return nil, err
	}
	return uploaded.Links, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
