package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"photoframe/internal/logging"
	"photoframe/internal/mediatypes"
)

// localProvider stores objects under a configured absolute base directory.
// Keys map to file paths relative to the base; the optional prefix is the
// rooting path shared with the other path-based providers.
type localProvider struct {
	basePath string
	baseURL  string
	prefix   string
}

func newLocalProvider(cfg *LocalConfig) (*localProvider, error) {
	if !filepath.IsAbs(cfg.BasePath) {
		logging.Warn("Local storage basePath is not absolute: %s", cfg.BasePath)
	}

	// Create the directory tree on first use. A hot-swap to this kind
	// constructs a new provider, so the swap re-runs this too.
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to prepare local storage directory %s: %w", cfg.BasePath, err)
	}
	logging.Info("Local storage ready at: %s", cfg.BasePath)

	return &localProvider{
		basePath: cfg.BasePath,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		prefix:   NormalizeRoot(cfg.Prefix),
	}, nil
}

func (p *localProvider) Kind() Kind {
	return KindLocal
}

// filePath resolves a key to a path inside basePath, rejecting traversal
// outside the base directory.
func (p *localProvider) filePath(key string) (string, error) {
	rooted := WithRoot(p.prefix, key)
	full := filepath.Join(p.basePath, filepath.FromSlash(rooted))
	rel, err := filepath.Rel(p.basePath, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("storage key escapes base directory: %s", key)
	}
	return full, nil
}

func (p *localProvider) Create(ctx context.Context, key string, data []byte, contentType string) (*Object, error) {
	start := time.Now()
	var err error
	defer func() { record(KindLocal, "create", start, err) }()

	rooted := WithRoot(p.prefix, key)
	full, err := p.filePath(key)
	if err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", rooted, err)
	}
	if err = os.WriteFile(full, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write object %s: %w", rooted, err)
	}

	info, statErr := os.Stat(full)
	obj := &Object{Key: rooted, Size: int64(len(data)), LastModified: time.Now()}
	if statErr == nil {
		obj.Size = info.Size()
		obj.LastModified = info.ModTime()
	}
	return obj, nil
}

func (p *localProvider) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	var err error
	defer func() { record(KindLocal, "get", start, err) }()

	full, err := p.filePath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		err = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

func (p *localProvider) Delete(ctx context.Context, key string) error {
	start := time.Now()
	var err error
	defer func() { record(KindLocal, "delete", start, err) }()

	full, err := p.filePath(key)
	if err != nil {
		return err
	}

	err = os.Remove(full)
	if errors.Is(err, fs.ErrNotExist) {
		// Idempotent delete.
		err = nil
	}
	return err
}

func (p *localProvider) FileMeta(ctx context.Context, key string) (*Object, error) {
	start := time.Now()
	var err error
	defer func() { record(KindLocal, "meta", start, err) }()

	rooted := WithRoot(p.prefix, key)
	full, err := p.filePath(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		err = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat object %s: %w", key, err)
	}
	if info.IsDir() {
		return nil, nil
	}

	return &Object{
		Key:          rooted,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

func (p *localProvider) ListAll(ctx context.Context) ([]Object, error) {
	start := time.Now()
	var err error
	defer func() { record(KindLocal, "list", start, err) }()

	root := filepath.Join(p.basePath, filepath.FromSlash(p.prefix))
	var objects []Object

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		rel, relErr := filepath.Rel(p.basePath, path)
		if relErr != nil {
			return relErr
		}
		objects = append(objects, Object{
			Key:          filepath.ToSlash(rel),
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk local storage: %w", err)
	}
	return objects, nil
}

func (p *localProvider) ListImages(ctx context.Context) ([]Object, error) {
	all, err := p.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	images := all[:0:0]
	for _, obj := range all {
		if mediatypes.IsImageKey(obj.Key) {
			images = append(images, obj)
		}
	}
	return images, nil
}

// PublicURL maps a key onto the configured base URL, or the internal proxy
// route when none is configured.
func (p *localProvider) PublicURL(key string) string {
	rooted := WithRoot(p.prefix, key)
	if p.baseURL != "" {
		return p.baseURL + "/" + rooted
	}
	return "/image/" + rooted
}
