package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/bobarin/reelrender/internal/retry"
	"github.com/google/uuid"
)

const (
	// Upload timeout per attempt; a finished render can be tens of MB
	uploadTimeout = 180 * time.Second

	rendersPrefix = "renders"
)

type Storage struct {
	url        string
	serviceKey string
	Bucket     string
	client     *http.Client
	policy     retry.Policy
}

func New(url, serviceKey, bucket string) *Storage {
	return NewWithPolicy(url, serviceKey, bucket, retry.Default)
}

// NewWithPolicy is New with a custom backoff schedule.
func NewWithPolicy(url, serviceKey, bucket string, policy retry.Policy) *Storage {
	return &Storage{
		url:        url,
		serviceKey: serviceKey,
		Bucket:     bucket,
		policy:     policy,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (s *Storage) objectURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, objectPath)
}

// Upload uploads a file to Supabase Storage with retries and exponential backoff.
// Uses PUT with Content-Length and x-upsert so a retried job overwrites its artifact.
func (s *Storage) Upload(ctx context.Context, objectPath string, data []byte, contentType string) error {
	url := s.objectURL(objectPath)

	var lastErr error
	for attempt := 0; attempt <= s.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[Storage] Upload retry %d/%d for %s...", attempt, s.policy.MaxRetries, objectPath)
			if err := s.policy.Wait(ctx, attempt); err != nil {
				return fmt.Errorf("upload cancelled: %w", err)
			}
		}

		retryable, err := s.uploadOnce(ctx, url, data, contentType)
		if err == nil {
			if attempt > 0 {
				log.Printf("[Storage] Upload succeeded on attempt %d for %s", attempt+1, objectPath)
			}
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
		log.Printf("[Storage] Upload attempt %d failed (retryable): %s", attempt+1, retry.Truncate(err.Error(), 200))
	}

	return fmt.Errorf("upload failed after %d attempts: %w", s.policy.MaxRetries+1, lastErr)
}

func (s *Storage) uploadOnce(ctx context.Context, url string, data []byte, contentType string) (bool, error) {
	// Each attempt gets its own timeout, bounded by the caller's ctx
	uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(uploadCtx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Length", strconv.Itoa(len(data)))
	req.Header.Set("x-upsert", "true")

	resp, err := s.client.Do(req)
	if err != nil {
		return retry.IsRetryableError(err), fmt.Errorf("failed to upload: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return false, nil
	}
	return retry.IsRetryableStatus(resp.StatusCode), fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
}

// GetPublicURL returns the public URL for a file
func (s *Storage) GetPublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.Bucket, objectPath)
}

// GetSignedURL creates a signed URL for temporary access
func (s *Storage) GetSignedURL(ctx context.Context, objectPath string, expiresIn int) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.url, s.Bucket, objectPath)

	body, _ := json.Marshal(map[string]int{"expiresIn": expiresIn})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get signed URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse signed URL response: %w", err)
	}
	if result.SignedURL == "" {
		return "", fmt.Errorf("signed URL response was empty")
	}

	return s.url + "/storage/v1" + result.SignedURL, nil
}

// GenerateStoragePath creates the object path of a job's file
func (s *Storage) GenerateStoragePath(jobID uuid.UUID, filename string) string {
	return path.Join(rendersPrefix, jobID.String(), filename)
}
