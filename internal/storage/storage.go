package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// Per-attempt timeouts. Uploads carry rendered videos.
	uploadTimeout   = 180 * time.Second
	downloadTimeout = 120 * time.Second
	controlTimeout  = 30 * time.Second

	// Retry configuration
	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// StatusError is a non-2xx reply from the storage API.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.Status, e.Body)
}

// Storage is a client for a Supabase Storage bucket.
type Storage struct {
	url        string
	serviceKey string
	Bucket     string
	client     *http.Client
	baseDelay  time.Duration
}

func New(url, serviceKey, bucket string) *Storage {
	return &Storage{
		url:        strings.TrimRight(url, "/"),
		serviceKey: serviceKey,
		Bucket:     bucket,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseDelay: baseRetryDelay,
	}
}

// Upload stores data at objectPath, overwriting any existing object.
func (s *Storage) Upload(ctx context.Context, objectPath string, data []byte, contentType string) error {
	_, err := s.do(ctx, "upload", objectPath, uploadTimeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(objectPath), bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("x-upsert", "true")
		req.ContentLength = int64(len(data))
		return req, nil
	})
	return err
}

// Download fetches the object at objectPath.
func (s *Storage) Download(ctx context.Context, objectPath string) ([]byte, error) {
	return s.do(ctx, "download", objectPath, downloadTimeout, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(objectPath), nil)
	})
}

// Remove deletes objects from the bucket. Missing objects are not an error.
func (s *Storage) Remove(ctx context.Context, objectPaths ...string) error {
	if len(objectPaths) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string][]string{"prefixes": objectPaths})
	if err != nil {
		return fmt.Errorf("failed to marshal remove request: %w", err)
	}

	label := fmt.Sprintf("%d objects", len(objectPaths))
	_, err = s.do(ctx, "remove", label, controlTimeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
			fmt.Sprintf("%s/storage/v1/object/%s", s.url, s.Bucket), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	return err
}

// GetPublicURL returns the public URL for an object
func (s *Storage) GetPublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.Bucket, objectPath)
}

// GetSignedURL creates a signed URL valid for expiresIn seconds.
func (s *Storage) GetSignedURL(ctx context.Context, objectPath string, expiresIn int) (string, error) {
	payload := fmt.Sprintf(`{"expiresIn": %d}`, expiresIn)
	body, err := s.do(ctx, "sign", objectPath, controlTimeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.url, s.Bucket, objectPath), strings.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var result struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse signed URL response: %w", err)
	}
	if result.SignedURL == "" {
		return "", fmt.Errorf("sign response for %s has no URL", objectPath)
	}

	return s.url + result.SignedURL, nil
}

// GenerateStoragePath creates a storage path for a render asset:
// renders/{render_id}/{filename}
func (s *Storage) GenerateStoragePath(renderID uuid.UUID, filename string) string {
	return path.Join("renders", renderID.String(), path.Base(filename))
}

// ContentTypeFor guesses the MIME type of an upload from its file extension.
func ContentTypeFor(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".mp4":
		return "video/mp4"
	case ".srt":
		return "application/x-subrip"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (s *Storage) objectURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, objectPath)
}

// do sends the request built by newReq with exponential backoff and returns
// the 2xx response body. Each attempt gets its own timeout under ctx.
func (s *Storage) do(ctx context.Context, op, target string, timeout time.Duration, newReq func(context.Context) (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.retryDelay(attempt)
			log.Printf("[Storage] %s retry %d/%d for %s (waiting %v)...", op, attempt, maxRetries, target, delay)

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s cancelled: %w", op, ctx.Err())
			case <-time.After(delay):
			}
		}

		body, err := s.attempt(ctx, timeout, newReq)
		if err == nil {
			if attempt > 0 {
				log.Printf("[Storage] %s succeeded on attempt %d for %s", op, attempt+1, target)
			}
			return body, nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			statusErr.Op = op
			lastErr = statusErr
			if !isRetryableStatus(statusErr.Status) {
				return nil, lastErr
			}
			log.Printf("[Storage] %s attempt %d returned status %d (retryable): %s", op, attempt+1, statusErr.Status, truncate(statusErr.Body, 200))
			continue
		}

		lastErr = fmt.Errorf("failed to %s %s: %w", op, target, err)
		if !isRetryableError(err) {
			return nil, lastErr
		}
		log.Printf("[Storage] %s attempt %d failed (retryable): %v", op, attempt+1, err)
	}

	return nil, fmt.Errorf("%s failed after %d attempts: %w", op, maxRetries+1, lastErr)
}

func (s *Storage) attempt(ctx context.Context, timeout time.Duration, newReq func(context.Context) (*http.Request, error)) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := newReq(attemptCtx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// retryDelay calculates exponential backoff with jitter: base * 2^attempt + random jitter
func (s *Storage) retryDelay(attempt int) time.Duration {
	delay := float64(s.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	// Add up to 25% jitter
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// isRetryableStatus checks if an HTTP status code is worth retrying
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || // 429
		status == http.StatusRequestTimeout || // 408
		status == http.StatusBadGateway || // 502
		status == http.StatusServiceUnavailable || // 503
		status == http.StatusGatewayTimeout // 504
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
