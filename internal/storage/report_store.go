package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/devghori1264/vinreport/internal/models"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// DefaultURLPath is where the static file server exposes the report directory.
const DefaultURLPath = "/reports"

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ReportStore keeps one rendered document per VIN on disk and records its
// metadata in an Index.
//
// Writes overwrite: a second Persist for a VIN replaces the first. Concurrent
// writers for the same VIN are not serialised; the last rename wins. A
// returned location always refers to a complete file.
type ReportStore struct {
	dir         string
	publicBase  string
	urlPath     string
	ext         string
	contentType string
	index       Index
	now         func() time.Time
	log         *zap.Logger
}

// Option configures a ReportStore.
type Option func(*ReportStore)

// WithPublicBase prefixes returned locations, e.g. "https://reports.example.com".
func WithPublicBase(base string) Option {
	return func(s *ReportStore) { s.publicBase = strings.TrimRight(base, "/") }
}

// WithURLPath changes the path under which the directory is served.
func WithURLPath(p string) Option {
	return func(s *ReportStore) { s.urlPath = "/" + strings.Trim(p, "/") }
}

// WithDocumentType sets the file extension and MIME type of stored documents.
func WithDocumentType(ext, contentType string) Option {
	return func(s *ReportStore) {
		s.ext = ext
		s.contentType = contentType
	}
}

// WithClock overrides the timestamp source for artifact records.
func WithClock(now func() time.Time) Option {
	return func(s *ReportStore) { s.now = now }
}

// WithLogger sets the store's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *ReportStore) { s.log = l }
}

// NewReportStore returns a store rooted at dir. The directory is created
// lazily on the first write.
func NewReportStore(dir string, index Index, opts ...Option) *ReportStore {
	s := &ReportStore{
		dir:         filepath.Clean(dir),
		urlPath:     DefaultURLPath,
		ext:         ".pdf",
		contentType: "application/pdf",
		index:       index,
		now:         time.Now,
		log:         zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Dir is the directory holding the documents.
func (s *ReportStore) Dir() string { return s.dir }

// URLPath is the path prefix under which Dir is served.
func (s *ReportStore) URLPath() string { return s.urlPath }

func (s *ReportStore) filename(vin string) string { return vin + s.ext }

// Location is the retrievable reference reported for vin.
func (s *ReportStore) Location(vin string) string {
	return s.publicBase + path.Join(s.urlPath, s.filename(vin))
}

// Persist writes content for vin and returns the stored artifact. It does
// not return until the bytes are on disk.
func (s *ReportStore) Persist(ctx context.Context, vin string, content []byte) (models.ReportArtifact, error) {
	if !validKey.MatchString(vin) {
		return models.ReportArtifact{}, &StoreError{VIN: vin, Kind: KindKey, Err: fmt.Errorf("vin %q is not a valid storage key", vin)}
	}
	if err := ctx.Err(); err != nil {
		return models.ReportArtifact{}, &StoreError{VIN: vin, Kind: KindWrite, Err: err}
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return models.ReportArtifact{}, &StoreError{VIN: vin, Kind: KindContainer, Err: err}
	}

	finalPath := filepath.Join(s.dir, s.filename(vin))
	tmpPath, err := stageFile(s.dir, finalPath, content)
	if err != nil {
		return models.ReportArtifact{}, &StoreError{VIN: vin, Kind: KindWrite, Err: err}
	}

	sum := blake3.Sum256(content)
	artifact := models.ReportArtifact{
		VIN:         vin,
		Location:    s.Location(vin),
		ContentType: s.contentType,
		Size:        int64(len(content)),
		Digest:      "blake3:" + hex.EncodeToString(sum[:]),
		CreatedAt:   s.now().UTC(),
	}

	// The index is written before the rename so a failed Persist leaves the
	// served file and its metadata as they were.
	var prev *models.ReportArtifact
	if s.index != nil {
		if old, err := s.index.GetArtifact(ctx, vin); err == nil {
			prev = &old
		}
		if err := s.index.SaveArtifact(ctx, artifact); err != nil {
			os.Remove(tmpPath)
			return models.ReportArtifact{}, &StoreError{VIN: vin, Kind: KindIndex, Err: err}
		}
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		s.rollbackIndex(vin, prev)
		return models.ReportArtifact{}, &StoreError{VIN: vin, Kind: KindWrite, Err: fmt.Errorf("rename: %w", err)}
	}

	s.log.Debug("artifact stored",
		zap.String("vin", vin),
		zap.String("path", finalPath),
		zap.Int64("size", artifact.Size),
	)
	return artifact, nil
}

// rollbackIndex restores the entry that was replaced before a failed rename.
func (s *ReportStore) rollbackIndex(vin string, prev *models.ReportArtifact) {
	if s.index == nil {
		return
	}
	ctx := context.Background()
	var err error
	if prev != nil {
		err = s.index.SaveArtifact(ctx, *prev)
	} else {
		err = s.index.DeleteArtifact(ctx, vin)
	}
	if err != nil {
		s.log.Warn("index rollback failed", zap.String("vin", vin), zap.Error(err))
	}
}

// stageFile writes content to a synced temp file next to finalPath and
// returns its path. The caller renames it into place or removes it.
func stageFile(dir, finalPath string, content []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(finalPath)+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("chmod: %w", err)
	}
	return tmpPath, nil
}

// Open returns the stored bytes for vin.
func (s *ReportStore) Open(vin string) ([]byte, error) {
	if !validKey.MatchString(vin) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.dir, s.filename(vin)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Get returns the indexed metadata for vin.
func (s *ReportStore) Get(ctx context.Context, vin string) (models.ReportArtifact, error) {
	if s.index == nil {
		return models.ReportArtifact{}, ErrNotFound
	}
	return s.index.GetArtifact(ctx, vin)
}

// List returns every indexed artifact ordered by VIN.
func (s *ReportStore) List(ctx context.Context) ([]models.ReportArtifact, error) {
	if s.index == nil {
		return nil, nil
	}
	return s.index.ListArtifacts(ctx)
}

// Close releases the index.
func (s *ReportStore) Close() error {
	if s.index == nil {
		return nil
	}
	return s.index.Close()
}
