// Package http is the request dispatcher for the OIC management API: it
// authenticates each call, retries once on token expiry and maps status
// codes onto the oic error taxonomy.
package http

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
	"sort"
	"strings"
	"time"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/pkg/oic"
	"github.com/hashicorp/go-retryablehttp"
)

const maxLoggedBody = 2048

// RequestObserver is notified once per completed HTTP exchange.
type RequestObserver interface {
	ObserveRequest(method string, statusCode int, duration time.Duration)
}

// Client executes authenticated requests against one OIC instance.
type Client struct {
	baseURL        string
	identityDomain string
	tokenManager   oic.TokenManager
	httpClient     *retryablehttp.Client
	userAgent      string
	logger         oic.Logger
	debug          bool
	observer       RequestObserver
}

// Option configures the client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger oic.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDebug enables request/response logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithUserAgent sets the user agent.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.HTTPClient.Timeout = timeout
		}
	}
}

// WithRetryConfig configures transport retries on 5xx and 429.
func WithRetryConfig(maxRetries int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.httpClient.RetryMax = maxRetries
		c.httpClient.RetryWaitMin = waitMin
		c.httpClient.RetryWaitMax = waitMax
	}
}

// WithIdentityDomain adds the integrationInstance query parameter to every call.
func WithIdentityDomain(identityDomain string) Option {
	return func(c *Client) {
		c.identityDomain = identityDomain
	}
}

// WithRequestObserver reports every exchange to observer.
func WithRequestObserver(observer RequestObserver) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient.HTTPClient = httpClient
		}
	}
}

// NewClient creates a new dispatcher. A nil tokenManager sends no credentials.
func NewClient(baseURL string, tokenManager oic.TokenManager, opts ...Option) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &http.Client{Timeout: constants.DefaultHTTPTimeout}
	retryClient.Logger = nil
	retryClient.RetryMax = 0
	retryClient.CheckRetry = checkRetry
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		tokenManager: tokenManager,
		httpClient:   retryClient,
		userAgent:    constants.DefaultUserAgent,
		logger:       oic.NoopLogger{},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// BaseURL returns the instance URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// checkRetry retries transport failures, 429 and 5xx other than 501.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return true, nil
	}

	if resp.StatusCode >= http.StatusInternalServerError && resp.StatusCode != http.StatusNotImplemented {
		return true, nil
	}

	return false, nil
}

// Request represents an HTTP request.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    interface{}
	Headers map[string]string
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Object decodes the body the way every gateway consumes it: empty bodies
// become an empty object, arrays are wrapped under "items" and anything that
// is not JSON is returned under "content".
func (r *Response) Object() oic.Object {
	if r.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(r.Body)) == 0 {
		return oic.Object{}
	}

	var decoded interface{}

	err := json.Unmarshal(r.Body, &decoded)
	if err != nil {
		return oic.Object{"content": r.Body}
	}

	switch typed := decoded.(type) {
	case map[string]interface{}:
		return oic.Object(typed)
	case []interface{}:
		return oic.Object{"items": typed}
	default:
		return oic.Object{"content": r.Body}
	}
}

// Do executes req. On HTTP errors the response is returned alongside the error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	fullURL := c.resolveURL(req.Path, req.Query)

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	token, err := c.currentToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, req, fullURL, body, contentType, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && c.tokenManager != nil {
		c.logger.Debug("token rejected, refreshing", map[string]interface{}{"url": fullURL})

		token, err = c.tokenManager.RefreshToken(ctx, token)
		if err != nil {
			return resp, asAuthError("token refresh failed", err)
		}

		resp, err = c.send(ctx, req, fullURL, body, contentType, token)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return resp, &oic.AuthenticationError{Message: "request still unauthorized after token refresh: " + fullURL}
		}
	}

	return resp, c.statusError(resp, fullURL)
}

func (c *Client) currentToken(ctx context.Context) (string, error) {
	if c.tokenManager == nil {
		return "", nil
	}

	token, err := c.tokenManager.GetToken(ctx)
	if err != nil {
		return "", asAuthError("obtaining token", err)
	}

	return token, nil
}

func asAuthError(message string, err error) error {
	var authErr *oic.AuthenticationError
	if errors.As(err, &authErr) {
		return err
	}

	return &oic.AuthenticationError{Message: message, Err: err}
}

func (c *Client) send(ctx context.Context, req *Request, fullURL string, body []byte, contentType, token string) (*Response, error) {
	var rawBody interface{}
	if body != nil {
		rawBody = body
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, fullURL, rawBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpReq.Header.Set("Accept", constants.ContentTypeJSON)
	httpReq.Header.Set("User-Agent", c.userAgent)

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	if c.debug {
		fields := map[string]interface{}{"method": req.Method, "url": fullURL}
		if len(body) > 0 && strings.HasPrefix(httpReq.Header.Get("Content-Type"), constants.ContentTypeJSON) {
			fields["body"] = truncate(body)
		}

		c.logger.Debug("HTTP Request", fields)
	}

	start := time.Now()

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.observe(req.Method, 0, time.Since(start))

		return nil, &oic.APIError{Message: "transport failure", URL: fullURL, Err: err}
	}

	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &oic.APIError{StatusCode: httpResp.StatusCode, Message: "reading response body", URL: fullURL, Err: err}
	}

	duration := time.Since(start)
	c.observe(req.Method, httpResp.StatusCode, duration)

	if c.debug {
		fields := map[string]interface{}{
			"status":   httpResp.StatusCode,
			"duration": duration.String(),
			"bytes":    len(respBody),
		}
		if strings.HasPrefix(httpResp.Header.Get("Content-Type"), constants.ContentTypeJSON) {
			fields["body"] = truncate(respBody)
		}

		c.logger.Debug("HTTP Response", fields)
	}

	return &Response{StatusCode: httpResp.StatusCode, Body: respBody, Headers: httpResp.Header}, nil
}

func (c *Client) observe(method string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(method, status, duration)
	}
}

func (c *Client) statusError(resp *Response, fullURL string) error {
	switch {
	case resp.StatusCode < http.StatusBadRequest:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return &oic.ResourceNotFoundError{URL: fullURL}
	case resp.StatusCode == http.StatusUnauthorized:
		return &oic.AuthenticationError{Message: "request unauthorized: " + fullURL}
	default:
		return &oic.APIError{StatusCode: resp.StatusCode, Message: ErrorMessage(resp), URL: fullURL}
	}
}

// ErrorMessage extracts the best available description of a failed response.
func ErrorMessage(resp *Response) string {
	var payload map[string]interface{}

	if json.Unmarshal(resp.Body, &payload) == nil {
		for _, key := range []string{"detail", "message", "title"} {
			if text, ok := payload[key].(string); ok && text != "" {
				return text
			}
		}
	}

	if text := strings.TrimSpace(string(resp.Body)); text != "" {
		return text
	}

	return http.StatusText(resp.StatusCode)
}

func (c *Client) resolveURL(path string, query url.Values) string {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.baseURL + "/" + strings.TrimPrefix(path, "/")
	}

	values := url.Values{}
	for key, list := range query {
		values[key] = append([]string(nil), list...)
	}

	if c.identityDomain != "" && values.Get(constants.QueryIntegrationInstance) == "" {
		values.Set(constants.QueryIntegrationInstance, c.identityDomain)
	}

	if len(values) == 0 {
		return target
	}

	separator := "?"
	if strings.Contains(target, "?") {
		separator = "&"
	}

	return target + separator + values.Encode()
}

func encodeBody(body interface{}) ([]byte, string, error) {
	switch typed := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return typed, constants.ContentTypeOctet, nil
	default:
		data, err := json.Marshal(typed)
		if err != nil {
			return nil, "", fmt.Errorf("marshaling request body: %w", err)
		}

		return data, constants.ContentTypeJSON, nil
	}
}

func truncate(body []byte) string {
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "..."
	}

	return string(body)
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// PostRaw posts an already encoded body, such as a multipart form.
func (c *Client) PostRaw(ctx context.Context, path string, body []byte, contentType string) (*Response, error) {
	return c.Do(ctx, &Request{
		Method:  http.MethodPost,
		Path:    path,
		Body:    body,
		Headers: map[string]string{"Content-Type": contentType},
	})
}

// Download fetches a binary representation.
func (c *Client) Download(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{
		Method:  http.MethodGet,
		Path:    path,
		Query:   query,
		Headers: map[string]string{"Accept": constants.ContentTypeOctet},
	})
}

// FilePart is one file attached to a multipart upload.
type FilePart struct {
	FieldName string
	FileName  string
	Content   []byte
}

// PostMultipart uploads file together with plain form fields.
func (c *Client) PostMultipart(ctx context.Context, path string, file FilePart, fields map[string]string) (*Response, error) {
	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(file.FieldName, file.FileName)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}

	_, err = part.Write(file.Content)
	if err != nil {
		return nil, fmt.Errorf("writing file content: %w", err)
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		err = writer.WriteField(key, fields[key])
		if err != nil {
			return nil, fmt.Errorf("writing form field %s: %w", key, err)
		}
	}

	err = writer.Close()
	if err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	return c.PostRaw(ctx, path, buf.Bytes(), writer.FormDataContentType())
}
