package loam

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/hirokts/enikki/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

const ext = ".md"

// frontMatter is the metadata header of a diary file. The diary text itself
// is the document body.
type frontMatter struct {
	ID           string   `mapstructure:"id"`
	Status       string   `mapstructure:"status"`
	Date         string   `mapstructure:"date"`
	Keywords     []string `mapstructure:"keywords"`
	ImageURL     *string  `mapstructure:"image_url"`
	Error        *string  `mapstructure:"error"`
	RetryCount   int      `mapstructure:"retry_count"`
	QualityScore *float64 `mapstructure:"quality_score"`
	CreatedAt    int64    `mapstructure:"created_at_ms"`
	UpdatedAt    int64    `mapstructure:"updated_at_ms"`
}

// Store implements ports.DiaryStore on a Loam document repository.
// Each run is a Markdown file named <runID>.md whose front matter carries the
// document fields and whose body is the diary text.
type Store struct {
	repo core.Repository
	dir  string
}

// New initializes a Loam repository in dir and returns a store on top of it.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(".enikki", "diaries")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure diary directory: %w", err)
	}

	repo, err := loam.Init(abs, loam.WithVersioning(false))
	if err != nil {
		return nil, fmt.Errorf("failed to init loam: %w", err)
	}
	return NewFromRepository(abs, repo), nil
}

// NewFromRepository wraps an initialized repository rooted at dir.
func NewFromRepository(dir string, repo core.Repository) *Store {
	return &Store{repo: repo, dir: dir}
}

func (s *Store) path(runID string) string {
	return filepath.Join(s.dir, runID+ext)
}

// Save writes the diary file, replacing any previous version.
func (s *Store) Save(ctx context.Context, runID string, doc domain.Document) error {
	if runID == "" {
		return errors.New("runID cannot be empty")
	}

	meta := core.Metadata{
		"id":            runID,
		"status":        string(doc.Status),
		"date":          doc.Date,
		"keywords":      append([]string{}, doc.Keywords...),
		"retry_count":   doc.RetryCount,
		"created_at_ms": doc.CreatedAt.UnixMilli(),
		"updated_at_ms": doc.UpdatedAt.UnixMilli(),
	}
	if doc.ImageURL != nil {
		meta["image_url"] = *doc.ImageURL
	}
	if doc.Error != nil {
		meta["error"] = *doc.Error
	}
	if doc.QualityScore != nil {
		meta["quality_score"] = *doc.QualityScore
	}

	err := s.repo.Save(ctx, core.Document{
		ID:       runID + ext,
		Content:  doc.DiaryText,
		Metadata: meta,
	})
	if err != nil {
		return &domain.StorageError{Key: runID, Err: err}
	}
	return nil
}

// Load reads the diary file back into a document.
func (s *Store) Load(ctx context.Context, runID string) (domain.Document, error) {
	if runID == "" {
		return domain.Document{}, domain.ErrRunNotFound
	}
	if _, err := os.Stat(s.path(runID)); err != nil {
		if os.IsNotExist(err) {
			return domain.Document{}, domain.ErrRunNotFound
		}
		return domain.Document{}, &domain.StorageError{Key: runID, Err: err}
	}

	raw, err := s.repo.Get(ctx, runID+ext)
	if err != nil {
		return domain.Document{}, &domain.StorageError{Key: runID, Err: fmt.Errorf("loam get failed: %w", err)}
	}

	fm, err := decodeFrontMatter(raw.Metadata)
	if err != nil {
		return domain.Document{}, &domain.StorageError{Key: runID, Err: err}
	}

	doc := domain.Document{
		ID:           runID,
		Status:       domain.Status(fm.Status),
		Date:         fm.Date,
		Keywords:     fm.Keywords,
		DiaryText:    strings.TrimSpace(raw.Content),
		ImageURL:     fm.ImageURL,
		Error:        fm.Error,
		RetryCount:   fm.RetryCount,
		QualityScore: fm.QualityScore,
		CreatedAt:    time.UnixMilli(fm.CreatedAt).UTC(),
		UpdatedAt:    time.UnixMilli(fm.UpdatedAt).UTC(),
	}
	if doc.Keywords == nil {
		doc.Keywords = []string{}
	}
	return doc, nil
}

// Delete removes the diary file.
func (s *Store) Delete(ctx context.Context, runID string) error {
	if runID == "" {
		return errors.New("runID cannot be empty")
	}
	if err := os.Remove(s.path(runID)); err != nil && !os.IsNotExist(err) {
		return &domain.StorageError{Key: runID, Err: fmt.Errorf("failed to delete diary file: %w", err)}
	}
	return nil
}

// List returns stored run ids, newest first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list diaries: %w", err)
	}

	type item struct {
		id      string
		created time.Time
	}
	items := make([]item, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ext {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ext)
		doc, err := s.Load(ctx, id)
		if err != nil {
			// Files not written by the store are skipped.
			continue
		}
		items = append(items, item{id: id, created: doc.CreatedAt})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].created.After(items[j].created)
	})

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids, nil
}

func decodeFrontMatter(meta map[string]any) (frontMatter, error) {
	var fm frontMatter
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       timeToStringHook,
		Result:           &fm,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fm, err
	}
	if err := decoder.Decode(meta); err != nil {
		return fm, fmt.Errorf("failed to decode front matter: %w", err)
	}
	return fm, nil
}

// timeToStringHook turns YAML timestamps back into the date strings they were
// written as.
func timeToStringHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if t, ok := data.(time.Time); ok && to.Kind() == reflect.String {
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(time.DateOnly), nil
		}
		return t.Format(time.RFC3339Nano), nil
	}
	return data, nil
}
