package imagestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	dcmerrors "github.com/caio-sobreiro/dicomizer/errors"
)

const maxErrorBody = 512

// HTTPStore talks to an image store exposing the HealthImaging style REST
// routes:
//
//	POST {endpoint}/datastore/{datastoreId}/imageSet/{imageSetId}/getImageSetMetadata
//	POST {endpoint}/datastore/{datastoreId}/imageSet/{imageSetId}/getImageFrame
//
// The frame request body is {"imageFrameId": "<id>"}.
type HTTPStore struct {
	endpoint *url.URL
	client   *http.Client
	token    string
	limiter  *rateLimiter
	logger   *slog.Logger
}

// NewHTTPStore creates a store for the given base URL.
func NewHTTPStore(endpoint string, opts ...Option) (*HTTPStore, error) {
	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}

	o := applyOptions(opts)
	s := &HTTPStore{
		endpoint: base,
		client:   http.DefaultClient,
		token:    o.token,
		limiter:  newRateLimiter(o.rps),
		logger:   o.logger,
	}
	if o.httpClient != nil {
		s.client = o.httpClient
	}
	return s, nil
}

func (s *HTTPStore) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// GetStudyMetadata implements Store.
func (s *HTTPStore) GetStudyMetadata(ctx context.Context, datastoreID, studyID string) ([]byte, error) {
	body, err := s.post(ctx, s.imageSetURL(datastoreID, studyID, "getImageSetMetadata"), nil)
	if err != nil {
		return nil, dcmerrors.NewFetchError(opGetStudyMetadata, studyID,
			fmt.Errorf("%w: %w", dcmerrors.ErrMetadataFetch, err))
	}
	return body, nil
}

type frameRequest struct {
	ImageFrameID string `json:"imageFrameId"`
}

// GetFrame implements Store.
func (s *HTTPStore) GetFrame(ctx context.Context, datastoreID, studyID, frameID string) ([]byte, error) {
	payload, err := json.Marshal(frameRequest{ImageFrameID: frameID})
	if err != nil {
		return nil, err
	}
	body, err := s.post(ctx, s.imageSetURL(datastoreID, studyID, "getImageFrame"), payload)
	if err != nil {
		return nil, dcmerrors.NewFetchError(opGetFrame, frameID,
			fmt.Errorf("%w: %w", dcmerrors.ErrFrameFetch, err))
	}
	return body, nil
}

func (s *HTTPStore) imageSetURL(datastoreID, studyID, action string) string {
	return s.endpoint.JoinPath("datastore", datastoreID, "imageSet", studyID, action).String()
}

func (s *HTTPStore) post(ctx context.Context, target string, payload []byte) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			s.limiter.Throttled(retryAfter(resp.Header.Get("Retry-After")))
		}
		statusErr := fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %w", dcmerrors.ErrNotFound, statusErr)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	s.log().Debug("Image store request completed",
		"url", target,
		"size_bytes", len(body),
		"duration", time.Since(start))
	return body, nil
}

func retryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
