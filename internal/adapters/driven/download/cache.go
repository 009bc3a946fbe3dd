package download

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DownloadCache = (*BoltCache)(nil)

const indexFile = "index.db"

var bucketArtifacts = []byte("artifacts")

// DefaultCacheDir is where catalog artifacts are kept between runs
const DefaultCacheDir = "/tmp/ncert_pdfs"

type artifactMeta struct {
	File      string `json:"file"`
	Size      int64  `json:"size"`
	SHA256    string `json:"sha256"`
	FetchedAt int64  `json:"fetched_at"`
}

// BoltCache keeps downloaded artifacts as files in a directory with a
// bbolt index keyed by URL. Index entries record size and checksum so a
// truncated or replaced file reads as a miss.
type BoltCache struct {
	dir string
	db  *bbolt.DB
}

// NewBoltCache opens (or creates) the cache in dir.
func NewBoltCache(dir string) (*BoltCache, error) {
	if dir == "" {
		dir = DefaultCacheDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dir, indexFile), 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache index: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketArtifacts)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &BoltCache{dir: dir, db: db}, nil
}

// Dir returns the cache directory
func (c *BoltCache) Dir() string {
	return c.dir
}

// fileName maps a URL to its artifact file name (the last path element).
func fileName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		if base := path.Base(u.Path); base != "/" && base != "." {
			return base
		}
	}
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:8])
}

// Get returns the cached bytes for rawURL. A file already present in the
// directory without an index entry is adopted.
func (c *BoltCache) Get(rawURL string) ([]byte, bool, error) {
	var meta *artifactMeta
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketArtifacts).Get([]byte(rawURL))
		if data == nil {
			return nil
		}
		var m artifactMeta
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		meta = &m
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache index: %w", err)
	}

	if meta == nil {
		data, err := os.ReadFile(filepath.Join(c.dir, fileName(rawURL)))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to read cached file: %w", err)
		}
		if len(data) == 0 {
			return nil, false, nil
		}
		if err := c.index(rawURL, data); err != nil {
			return nil, false, err
		}
		return data, true, nil
	}

	data, err := os.ReadFile(filepath.Join(c.dir, meta.File))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, c.forget(rawURL)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached file: %w", err)
	}
	if int64(len(data)) != meta.Size || checksum(data) != meta.SHA256 {
		return nil, false, c.forget(rawURL)
	}
	return data, true, nil
}

// Put writes the artifact atomically and indexes it.
func (c *BoltCache) Put(rawURL string, data []byte) error {
	name := fileName(rawURL)
	tmp, err := os.CreateTemp(c.dir, name+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(c.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return c.index(rawURL, data)
}

func (c *BoltCache) index(rawURL string, data []byte) error {
	meta, err := json.Marshal(artifactMeta{
		File:      fileName(rawURL),
		Size:      int64(len(data)),
		SHA256:    checksum(data),
		FetchedAt: time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketArtifacts).Put([]byte(rawURL), meta)
	})
}

func (c *BoltCache) forget(rawURL string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketArtifacts).Delete([]byte(rawURL))
	})
}

// Len returns the number of indexed artifacts
func (c *BoltCache) Len() (int, error) {
	n := 0
	err := c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketArtifacts).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the index
func (c *BoltCache) Close() error {
	return c.db.Close()
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
