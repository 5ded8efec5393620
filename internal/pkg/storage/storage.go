package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuelReschke/CaptionFox/internal/pkg/env"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("storage: object not found")

// Store persists photo blobs and their variants under opaque keys.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// NewFromEnv builds the store selected by STORAGE_DRIVER (local or s3).
func NewFromEnv(ctx context.Context) (Store, error) {
	switch env.GetEnv("STORAGE_DRIVER", "local") {
	case "s3":
		cfg, err := LoadS3Config()
		if err != nil {
			return nil, err
		}
		return NewS3Store(ctx, cfg)
	case "local":
		return NewLocalStore(env.GetEnv("STORAGE_LOCAL_PATH", "./uploads"))
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", env.GetEnv("STORAGE_DRIVER", ""))
	}
}

// PutFile uploads a local file under key.
func PutFile(ctx context.Context, s Store, key, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := s.Put(ctx, key, f, info.Size(), ContentTypeFor(filepath.Ext(path))); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Download copies the object at key into dst, creating or truncating it.
func Download(ctx context.Context, s Store, key, dst string) error {
	rc, err := s.Open(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", key, err)
	}
	return out.Close()
}

// PhotoKey is where an original upload lives.
func PhotoKey(userID uint, id, ext string) string {
	return fmt.Sprintf("photos/%d/%s%s", userID, id, strings.ToLower(ext))
}

// VariantKey is where a generated variant lives.
func VariantKey(photoID uint, name string) string {
	return fmt.Sprintf("variants/%d/%s.jpg", photoID, name)
}

// ContentTypeFor returns the MIME type for a file extension.
func ContentTypeFor(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}
