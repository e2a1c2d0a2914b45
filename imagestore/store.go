// Package imagestore retrieves study metadata and frame payloads from an
// image store: AWS HealthImaging, a HealthImaging style HTTP endpoint or a
// local directory tree.
package imagestore

import (
	"context"
	"log/slog"
	"net/http"
)

// Store is the image store consulted by the converter.
type Store interface {
	// GetStudyMetadata returns the (usually gzip compressed) metadata
	// document of one study.
	GetStudyMetadata(ctx context.Context, datastoreID, studyID string) ([]byte, error)

	// GetFrame returns the compressed payload of one image frame.
	GetFrame(ctx context.Context, datastoreID, studyID, frameID string) ([]byte, error)
}

const (
	opGetStudyMetadata = "GetStudyMetadata"
	opGetFrame         = "GetFrame"
)

type options struct {
	httpClient *http.Client
	token      string
	rps        float64
	region     string
	logger     *slog.Logger
}

// Option configures a store. Options a store does not use are ignored.
type Option func(*options)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithToken sends token as a bearer Authorization header (HTTPStore).
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithRateLimit limits requests to rps per second. Zero means unlimited.
func WithRateLimit(rps float64) Option {
	return func(o *options) {
		o.rps = rps
	}
}

// WithRegion selects the AWS region (AWSStore). Empty keeps the region of
// the default AWS configuration.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
