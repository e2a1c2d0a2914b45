package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	dcmerrors "github.com/caio-sobreiro/dicomizer/errors"
)

// MetadataFileName is the name of the metadata document inside a study directory.
const MetadataFileName = "metadata.json.gz"

// DirStore serves studies from a directory tree:
//
//	<root>/<datastoreId>/<studyId>/metadata.json.gz
//	<root>/<datastoreId>/<studyId>/frames/<frameId>
type DirStore struct {
	root string
}

// NewDirStore creates a store rooted at root, which must be a directory.
func NewDirStore(root string) (*DirStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("store directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store directory %s is not a directory", root)
	}
	return &DirStore{root: root}, nil
}

// StudyDir returns the directory holding one study.
func (s *DirStore) StudyDir(datastoreID, studyID string) string {
	return filepath.Join(s.root, datastoreID, studyID)
}

// GetStudyMetadata implements Store.
func (s *DirStore) GetStudyMetadata(ctx context.Context, datastoreID, studyID string) ([]byte, error) {
	data, err := s.read(ctx, datastoreID, studyID, MetadataFileName)
	if err != nil {
		return nil, dcmerrors.NewFetchError(opGetStudyMetadata, studyID,
			fmt.Errorf("%w: %w", dcmerrors.ErrMetadataFetch, err))
	}
	return data, nil
}

// GetFrame implements Store.
func (s *DirStore) GetFrame(ctx context.Context, datastoreID, studyID, frameID string) ([]byte, error) {
	data, err := s.read(ctx, datastoreID, studyID, "frames", frameID)
	if err != nil {
		return nil, dcmerrors.NewFetchError(opGetFrame, frameID,
			fmt.Errorf("%w: %w", dcmerrors.ErrFrameFetch, err))
	}
	return data, nil
}

func (s *DirStore) read(ctx context.Context, parts ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, part := range parts {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return nil, fmt.Errorf("invalid path element %q", part)
		}
	}

	data, err := os.ReadFile(filepath.Join(append([]string{s.root}, parts...)...))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", dcmerrors.ErrNotFound, err)
	}
	return data, err
}
