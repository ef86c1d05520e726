package processing

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// HTTPRemover delegates to an external inference service that accepts a
// multipart "image" field and answers with the cut-out image.
type HTTPRemover struct {
	URL    string
	Client *http.Client
}

func NewHTTPRemover(url string, client *http.Client) *HTTPRemover {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &HTTPRemover{URL: url, Client: client}
}

func (r *HTTPRemover) Remove(ctx context.Context, img image.Image, progress Progress) (image.Image, error) {
	if progress == nil {
		progress = func(float64) {}
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "image.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := EncodePNG(part, img); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	progress(0.2)

	resp, err := r.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: call remover: %v", ErrProcessing, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: remover returned %d: %s", ErrProcessing, resp.StatusCode, bytes.TrimSpace(msg))
	}
	progress(0.8)

	out, _, err := Decode(resp.Body)
	if err != nil {
		return nil, err
	}
	progress(1)
	return out, nil
}
