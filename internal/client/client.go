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
	"strconv"
	"strings"
	"sync"
	"time"

	"cutout/internal/domain/image"
)

// Client is the typed data layer over the images API. The list is cached
// until a mutation through the same Client invalidates it.
type Client struct {
	base *url.URL
	http *http.Client

	mu     sync.Mutex
	cached []image.Image
	valid  bool
	// gen is bumped by Invalidate; a fetch that started under an older
	// generation is returned but not cached.
	gen uint64
}

// New parses baseURL, e.g. "http://localhost:8080". A nil httpClient gets a
// default with a generous timeout.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parse api url: %q is not absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Client{base: u, http: httpClient}, nil
}

// CreateInput is the body of a create call.
type CreateInput struct {
	OriginalURL string        `json:"originalUrl"`
	Status      *image.Status `json:"status,omitempty"`
}

// UpdateInput is the body of a patch call. Nil fields are left unchanged.
type UpdateInput struct {
	ProcessedURL *string       `json:"processedUrl,omitempty"`
	Status       *image.Status `json:"status,omitempty"`
}

// List returns every record, serving the cached copy when it is still valid.
func (c *Client) List(ctx context.Context) ([]image.Image, error) {
	c.mu.Lock()
	if c.valid {
		out := append([]image.Image(nil), c.cached...)
		c.mu.Unlock()
		return out, nil
	}
	gen := c.gen
	c.mu.Unlock()

	var images []image.Image
	if err := c.do(ctx, http.MethodGet, "/api/images", nil, &images); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.cached = append([]image.Image(nil), images...)
		c.valid = true
	}
	c.mu.Unlock()
	return images, nil
}

// Invalidate drops the cached list.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.valid = false
	c.gen++
	c.mu.Unlock()
}

// Get returns one record or ErrNotFound.
func (c *Client) Get(ctx context.Context, id int64) (*image.Image, error) {
	var img image.Image
	if err := c.do(ctx, http.MethodGet, imagePath(id), nil, &img); err != nil {
		return nil, err
	}
	return &img, nil
}

func (c *Client) Create(ctx context.Context, in CreateInput) (*image.Image, error) {
	var img image.Image
	if err := c.do(ctx, http.MethodPost, "/api/images", in, &img); err != nil {
		return nil, err
	}
	c.Invalidate()
	return &img, nil
}

func (c *Client) Update(ctx context.Context, id int64, in UpdateInput) (*image.Image, error) {
	var img image.Image
	if err := c.do(ctx, http.MethodPatch, imagePath(id), in, &img); err != nil {
		return nil, err
	}
	c.Invalidate()
	return &img, nil
}

// Delete removes a record. A 404 counts as success.
func (c *Client) Delete(ctx context.Context, id int64) error {
	err := c.do(ctx, http.MethodDelete, imagePath(id), nil, nil)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	c.Invalidate()
	return nil
}

// Process asks the server to remove the background itself.
func (c *Client) Process(ctx context.Context, id int64) (*image.ProcessResponse, error) {
	var out image.ProcessResponse
	if err := c.do(ctx, http.MethodPost, imagePath(id)+"/process", nil, &out); err != nil {
		return nil, err
	}
	c.Invalidate()
	return &out, nil
}

// Upload sends r as the multipart "file" field and returns the stored URL.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("copy form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve("/api/upload"), body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out struct {
		URL string `json:"url"`
	}
	if err := c.send(req, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("upload: empty url in response")
	}
	return out.URL, nil
}

// Download streams the file at rawURL. Relative URLs resolve against the API base.
func (c *Client) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(rawURL), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp.Body, nil
}

// ResolveURL turns a server-relative URL into an absolute one.
func (c *Client) ResolveURL(rawURL string) string {
	return c.resolve(rawURL)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) resolve(raw string) string {
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return c.base.ResolveReference(ref).String()
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Field   string `json:"field"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Message
		if apiErr.Message == "" {
			apiErr.Message = body.Error
		}
		apiErr.Field = body.Field
	}
	return apiErr
}

func imagePath(id int64) string {
	return "/api/images/" + strconv.FormatInt(id, 10)
}
