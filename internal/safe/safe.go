// internal/safe/safe.go
package safe

import (
	"encoding/hex"
	"errors"
	"fmt"

	"ghusers/shared/utils"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrContentNotFound = errors.New("content not found")
	ErrInvalidHash     = errors.New("invalid content hash")
)

const (
	flagRaw        byte = 0
	flagCompressed byte = 1
)

// Safe is a content-addressed blob store kept inside badger. Blobs are
// immutable: the key is the hash of the content.
type Safe struct {
	db    *badger.DB
	cache *lru.Cache[string, []byte]
	cm    *compressionManager
}

// Options configures Safe behavior
type Options struct {
	CacheSize   int // Number of blobs to cache
	Compression CompressionOptions
}

// New creates a new Safe instance
func New(db *badger.DB, opts Options) (*Safe, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.Compression == (CompressionOptions{}) {
		opts.Compression = DefaultCompressionOptions()
	}

	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	cm, err := newCompressionManager(opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("creating compression manager: %w", err)
	}

	return &Safe{
		db:    db,
		cache: cache,
		cm:    cm,
	}, nil
}

// Put stores content and returns its hash. Storing the same content twice is
// a no-op.
func (s *Safe) Put(content []byte) (string, error) {
	if content == nil {
		content = []byte{}
	}
	hash := utils.HashContent(content)

	exists, err := s.Exists(hash)
	if err != nil {
		return "", fmt.Errorf("checking existence: %w", err)
	}
	if exists {
		return hash, nil
	}

	stored, compressed := s.cm.compress(content)
	flag := flagRaw
	if compressed {
		flag = flagCompressed
	}
	value := make([]byte, 0, len(stored)+1)
	value = append(value, flag)
	value = append(value, stored...)

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blobKey(hash), value)
	})
	if err != nil {
		return "", fmt.Errorf("writing blob: %w", err)
	}

	s.cache.Add(hash, content)
	return hash, nil
}

// Get retrieves content by hash
func (s *Safe) Get(hash string) ([]byte, error) {
	if !isValidHash(hash) {
		return nil, ErrInvalidHash
	}

	if content, ok := s.cache.Get(hash); ok {
		return content, nil
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blobKey(hash))
		if err == badger.ErrKeyNotFound {
			return ErrContentNotFound
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(value) == 0 {
		return nil, fmt.Errorf("blob %s has no header", hash)
	}

	content := value[1:]
	if value[0] == flagCompressed {
		content, err = s.cm.decompress(content)
		if err != nil {
			return nil, fmt.Errorf("decompressing content: %w", err)
		}
	}

	if utils.HashContent(content) != hash {
		return nil, fmt.Errorf("content hash mismatch")
	}

	s.cache.Add(hash, content)
	return content, nil
}

// Exists checks if content exists
func (s *Safe) Exists(hash string) (bool, error) {
	if !isValidHash(hash) {
		return false, ErrInvalidHash
	}

	if s.cache.Contains(hash) {
		return true, nil
	}

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(blobKey(hash))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func blobKey(hash string) []byte {
	return []byte("blob:" + hash)
}

func isValidHash(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}
