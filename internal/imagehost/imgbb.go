// Package imagehost uploads form background images to ImgBB and returns their public URL.
package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const defaultBaseURL = "https://api.imgbb.com"

var (
	// ErrEmptyImage is returned when the upload has no bytes.
	ErrEmptyImage = errors.New("image file is required")
	// ErrNotConfigured is returned when no API key was configured.
	ErrNotConfigured = errors.New("image host API key is not configured")
)

// ClientOptions configures the ImgBB client.
type ClientOptions struct {
	// BaseURL defaults to https://api.imgbb.com.
	BaseURL string
	APIKey  string
	// RetryMax defaults to 3.
	RetryMax int
	// Timeout defaults to 30 seconds.
	Timeout time.Duration
	// RetryWaitMin and RetryWaitMax override the retry backoff bounds when set.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// ImgBBClient uploads images to ImgBB.
type ImgBBClient struct {
	baseURL    string
	apiKey     string
	httpClient *retryablehttp.Client
}

// NewImgBBClient creates a client for the given API key with default settings.
func NewImgBBClient(apiKey string) *ImgBBClient {
	return NewImgBBClientWithOptions(ClientOptions{APIKey: apiKey})
}

// NewImgBBClientWithOptions creates a client with custom options.
func NewImgBBClientWithOptions(opts ClientOptions) *ImgBBClient {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}

	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	if opts.RetryMax == 0 {
		opts.RetryMax = 3
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	if opts.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = opts.RetryWaitMin
	}

	if opts.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = opts.RetryWaitMax
	}

	return &ImgBBClient{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: retryClient,
	}
}

type uploadResponse struct {
	Data struct {
		ID         string `json:"id"`
		URL        string `json:"url"`
		DisplayURL string `json:"display_url"`
	} `json:"data"`
	Success bool `json:"success"`
	Status  int  `json:"status"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload sends data as the multipart field "image" and returns the hosted URL, preferring display_url.
func (c *ImgBBClient) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	if len(data) == 0 {
		return "", ErrEmptyImage
	}

	body, contentType, err := multipartImage(filename, data)
	if err != nil {
		return "", err
	}

	reqURL := c.baseURL + "/1/upload?" + url.Values{"key": {c.apiKey}}.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the URL carries the API key
		return "", errors.New("failed to execute upload request")
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var result uploadResponse
	if err := json.Unmarshal(raw, &result); err != nil && resp.StatusCode == http.StatusOK {
		return "", fmt.Errorf("failed to unmarshal upload response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := result.Error.Message
		if msg == "" {
			msg = "unknown error"
		}

		return "", fmt.Errorf("image upload failed with status %d: %s", resp.StatusCode, msg)
	}

	if !result.Success || (result.Data.DisplayURL == "" && result.Data.URL == "") {
		return "", errors.New("image host did not return a success status or image URL")
	}

	if result.Data.DisplayURL != "" {
		return result.Data.DisplayURL, nil
	}

	return result.Data.URL, nil
}

func multipartImage(filename string, data []byte) (*bytes.Buffer, string, error) {
	if filename == "" {
		filename = "image"
	}

	var buf bytes.Buffer

	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create multipart field: %w", err)
	}

	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write multipart field: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}
