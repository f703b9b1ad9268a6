package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"matrixhub/internal/models"
)

const (
	stateFileName    = "state.json"
	imageFileName    = "picture.png"
	imageRevFileName = "picture.rev"
)

// FileStore persists the document as JSON and the image as a flat file
// under a single directory. The revision counter lives in its own file
// so restarts keep bumping it.
type FileStore struct {
	dir    string
	logger *zap.Logger

	mu   sync.Mutex
	last models.StateDocument
}

func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, logger: logger, last: models.DefaultState()}, nil
}

func (s *FileStore) LoadState(ctx context.Context) models.StateDocument {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, stateFileName))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("file store: state read failed, using last known document",
				zap.Error(err))
		}
		return s.last
	}

	var doc models.StateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("file store: state decode failed, using last known document",
			zap.Error(err))
		return s.last
	}
	s.last = Normalize(doc)
	return s.last
}

func (s *FileStore) SaveState(ctx context.Context, doc models.StateDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc = Normalize(doc)
	s.last = doc

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, stateFileName), data, 0o644)
}

func (s *FileStore) SaveImage(ctx context.Context, png []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(filepath.Join(s.dir, imageFileName), png, 0o644); err != nil {
		return 0, err
	}

	rev := s.readRev() + 1
	if err := os.WriteFile(filepath.Join(s.dir, imageRevFileName),
		[]byte(strconv.FormatInt(rev, 10)), 0o644); err != nil {
		return 0, err
	}
	return rev, nil
}

func (s *FileStore) LoadImage(ctx context.Context) ([]byte, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, imageFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrNoImage
		}
		return nil, 0, err
	}
	return data, s.readRev(), nil
}

// readRev returns the stored revision counter, or 0 when missing or
// unparsable. Callers hold s.mu.
func (s *FileStore) readRev() int64 {
	data, err := os.ReadFile(filepath.Join(s.dir, imageRevFileName))
	if err != nil {
		return 0
	}
	rev, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0
	}
	return rev
}
