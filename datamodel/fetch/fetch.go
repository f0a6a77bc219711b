// Package fetch retrieves sample data files from blob storage into a
// local cache directory.  Buckets are addressed by URL the way
// gocloud.dev does it (file://, s3://, gs://...); callers must import
// the driver for the scheme they use.
package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gocloud.dev/blob"

	"github.com/spacephys/go-datamodel/internal"
)

// Config locates the cache.  The zero value caches under the working
// directory.
type Config struct {
	// CacheDir is where fetched files land, one file per key basename.
	CacheDir string
}

func (c Config) dir() string {
	if c.CacheDir == "" {
		return "."
	}
	return c.CacheDir
}

// Path returns where Fetch would place the given key, whether or not
// the file exists yet.
func (c Config) Path(key string) string {
	return filepath.Join(c.dir(), filepath.Base(key))
}

// Fetch downloads key from the bucket into the cache and returns the
// local path.  A file already in the cache is reused without touching
// the bucket.  The download goes through a temp file, so a cached file
// is always complete.
func (c Config) Fetch(ctx context.Context, bucketURL, key string) (string, error) {
	local := c.Path(key)
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}
	if err := os.MkdirAll(c.dir(), 0o755); err != nil {
		return "", err
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return "", fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	defer bucket.Close()

	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return "", fmt.Errorf("fetch %s from %s: %w", key, bucketURL, err)
	}
	defer r.Close()

	aw, err := internal.NewAtomicWriter(local)
	if err != nil {
		return "", err
	}
	defer aw.Abort()
	if _, err := io.Copy(aw, r); err != nil {
		return "", err
	}
	if err := aw.Publish(); err != nil {
		return "", err
	}
	return local, nil
}
