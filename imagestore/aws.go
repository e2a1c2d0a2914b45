package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/medicalimaging"
	"github.com/aws/aws-sdk-go-v2/service/medicalimaging/types"

	dcmerrors "github.com/caio-sobreiro/dicomizer/errors"
)

// medicalImagingAPI is the subset of the HealthImaging client used by AWSStore.
type medicalImagingAPI interface {
	GetImageSetMetadata(ctx context.Context, params *medicalimaging.GetImageSetMetadataInput, optFns ...func(*medicalimaging.Options)) (*medicalimaging.GetImageSetMetadataOutput, error)
	GetImageFrame(ctx context.Context, params *medicalimaging.GetImageFrameInput, optFns ...func(*medicalimaging.Options)) (*medicalimaging.GetImageFrameOutput, error)
}

// AWSStore reads studies from AWS HealthImaging. A study is an image set;
// credentials and region come from the default AWS configuration chain.
type AWSStore struct {
	api     medicalImagingAPI
	limiter *rateLimiter
	logger  *slog.Logger
}

// NewAWSStore loads the default AWS configuration and creates a store.
func NewAWSStore(ctx context.Context, opts ...Option) (*AWSStore, error) {
	o := applyOptions(opts)

	var loadOpts []func(*awsconfig.LoadOptions) error
	if o.region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(o.region))
	}
	if o.httpClient != nil {
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(o.httpClient))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	if cfg.Region == "" {
		return nil, dcmerrors.NewArgumentError("region", "no AWS region configured", dcmerrors.ErrMissingArgument)
	}

	return newAWSStore(medicalimaging.NewFromConfig(cfg), o), nil
}

func newAWSStore(api medicalImagingAPI, o options) *AWSStore {
	return &AWSStore{
		api:     api,
		limiter: newRateLimiter(o.rps),
		logger:  o.logger,
	}
}

func (s *AWSStore) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// GetStudyMetadata implements Store. The blob is returned as sent, gzip
// compressed.
func (s *AWSStore) GetStudyMetadata(ctx context.Context, datastoreID, studyID string) ([]byte, error) {
	body, err := s.call(ctx, "GetImageSetMetadata", func() (io.ReadCloser, error) {
		out, err := s.api.GetImageSetMetadata(ctx, &medicalimaging.GetImageSetMetadataInput{
			DatastoreId: aws.String(datastoreID),
			ImageSetId:  aws.String(studyID),
		})
		if err != nil {
			return nil, err
		}
		return out.ImageSetMetadataBlob, nil
	})
	if err != nil {
		return nil, dcmerrors.NewFetchError(opGetStudyMetadata, studyID,
			fmt.Errorf("%w: %w", dcmerrors.ErrMetadataFetch, err))
	}
	return body, nil
}

// GetFrame implements Store.
func (s *AWSStore) GetFrame(ctx context.Context, datastoreID, studyID, frameID string) ([]byte, error) {
	body, err := s.call(ctx, "GetImageFrame", func() (io.ReadCloser, error) {
		out, err := s.api.GetImageFrame(ctx, &medicalimaging.GetImageFrameInput{
			DatastoreId: aws.String(datastoreID),
			ImageSetId:  aws.String(studyID),
			ImageFrameInformation: &types.ImageFrameInformation{
				ImageFrameId: aws.String(frameID),
			},
		})
		if err != nil {
			return nil, err
		}
		return out.ImageFrameBlob, nil
	})
	if err != nil {
		return nil, dcmerrors.NewFetchError(opGetFrame, frameID,
			fmt.Errorf("%w: %w", dcmerrors.ErrFrameFetch, err))
	}
	return body, nil
}

func (s *AWSStore) call(ctx context.Context, operation string, do func() (io.ReadCloser, error)) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	blob, err := do()
	if err != nil {
		var throttled *types.ThrottlingException
		if errors.As(err, &throttled) {
			s.limiter.Throttled(0)
		}
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %w", dcmerrors.ErrNotFound, err)
		}
		return nil, err
	}
	if blob == nil {
		return nil, fmt.Errorf("%s returned no payload", operation)
	}
	defer blob.Close()

	body, err := io.ReadAll(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s payload: %w", operation, err)
	}

	s.log().Debug("Image store request completed",
		"operation", operation,
		"size_bytes", len(body),
		"duration", time.Since(start))
	return body, nil
}
