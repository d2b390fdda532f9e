// Package stowrystore implements filedock.ObjectStore on a Stowry server.
// URLs are signed locally with stowry-go; deletes are executed as presigned
// DELETE requests.
package stowrystore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sagarc03/filedock"
	"github.com/sagarc03/stowry-go"
)

const DefaultTimeout = 30 * time.Second

// Config holds the Stowry endpoint and signing keys.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
}

type Store struct {
	signer     *stowry.Client
	httpClient *http.Client
}

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient sets a custom HTTP client for delete requests.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) {
		s.httpClient = client
	}
}

func New(cfg Config, opts ...Option) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("new stowry store: endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("new stowry store: access key and secret key are required")
	}

	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	s := &Store{
		signer:     stowry.NewClient(endpoint, cfg.AccessKey, cfg.SecretKey),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Presign signs a URL for key. Stowry expiries have one-second granularity;
// ttl is rounded up.
func (s *Store) Presign(_ context.Context, key string, intent filedock.Intent, ttl time.Duration, _ filedock.PresignOptions) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("presign %s: ttl must be positive", key)
	}
	expires := int(math.Ceil(ttl.Seconds()))
	path := objectPath(key)

	switch intent {
	case filedock.IntentRead:
		return s.signer.PresignGet(path, expires), nil
	case filedock.IntentWrite:
		return s.signer.PresignPut(path, expires), nil
	default:
		return "", fmt.Errorf("presign %s: unsupported intent %q", key, intent)
	}
}

// Delete sends a presigned DELETE. A 404 means the object is already gone.
func (s *Store) Delete(ctx context.Context, key string) error {
	presignURL := s.signer.PresignDelete(objectPath(key), int(DefaultTimeout.Seconds()))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, presignURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("delete %s: create request: %w", key, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete %s: do request: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("delete %s: %w", key, &APIError{StatusCode: resp.StatusCode, Body: string(body)})
}

func objectPath(key string) string {
	if !strings.HasPrefix(key, "/") {
		return "/" + key
	}
	return key
}

// APIError is a non-success response from the Stowry server.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return "server error: " + strconv.Itoa(e.StatusCode) + " - " + e.Body
}
