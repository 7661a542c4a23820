package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	appErr "ojassist/pkg/errors"
	"ojassist/pkg/utils/logger"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// Store persists one session.
// Load returns nil without error when nothing usable is cached.
type Store interface {
	Save(ctx context.Context, s Session) error
	Load(ctx context.Context) (*Session, error)
	Clear(ctx context.Context) error
}

var (
	sessionBucket = []byte("session")
	currentKey    = []byte("current")
)

const boltOpenTimeout = 2 * time.Second

// BoltStore keeps the session blob in a bbolt file.
type BoltStore struct {
	path  string
	codec Codec
}

func NewBoltStore(path string, codec Codec) *BoltStore {
	return &BoltStore{path: path, codec: codec}
}

func (s *BoltStore) Path() string {
	return s.path
}

func (s *BoltStore) open() (*bbolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("create session cache dir failed: %w", err)
	}
	return bbolt.Open(s.path, 0o600, &bbolt.Options{Timeout: boltOpenTimeout})
}

func (s *BoltStore) Save(ctx context.Context, sess Session) error {
	blob, err := s.codec.Encode(sess)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "encode session failed")
	}

	db, err := s.open()
	if err != nil && isCorruptDB(err) {
		logger.Warn(ctx, "session cache file unreadable, recreating", zap.String("path", s.path), zap.Error(err))
		if rmErr := os.Remove(s.path); rmErr != nil {
			return appErr.Wrapf(rmErr, appErr.CacheError, "remove session cache failed")
		}
		db, err = s.open()
	}
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "open session cache failed")
	}
	defer func() { _ = db.Close() }()

	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(sessionBucket)
		if err != nil {
			return err
		}
		return b.Put(currentKey, blob)
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "write session cache failed")
	}
	logger.Debug(ctx, "session saved", zap.String("path", s.path), zap.Int("cookies", len(sess.Cookies)))
	return nil
}

func (s *BoltStore) Load(ctx context.Context) (*Session, error) {
	if _, err := os.Stat(s.path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, appErr.Wrapf(err, appErr.CacheError, "stat session cache failed")
	}

	db, err := s.open()
	if err != nil {
		if isCorruptDB(err) {
			logger.Warn(ctx, "session cache file unreadable, ignoring", zap.String("path", s.path), zap.Error(err))
			return nil, nil
		}
		return nil, appErr.Wrapf(err, appErr.CacheError, "open session cache failed")
	}
	defer func() { _ = db.Close() }()

	var blob []byte
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionBucket)
		if b == nil {
			return nil
		}
		if v := b.Get(currentKey); v != nil {
			blob = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "read session cache failed")
	}
	if blob == nil {
		return nil, nil
	}
	return decodeOrMiss(ctx, s.codec, blob), nil
}

func (s *BoltStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return appErr.Wrapf(err, appErr.CacheError, "remove session cache failed")
	}
	logger.Debug(ctx, "session cache cleared", zap.String("path", s.path))
	return nil
}

func decodeOrMiss(ctx context.Context, codec Codec, blob []byte) *Session {
	sess, err := codec.Decode(blob)
	if err != nil {
		logger.Warn(ctx, "session cache corrupt, treating as miss", zap.Error(err))
		return nil
	}
	return sess
}

// isCorruptDB treats every open failure except lock contention and
// permission problems as a damaged cache file.
func isCorruptDB(err error) bool {
	return !errors.Is(err, bbolt.ErrTimeout) && !errors.Is(err, os.ErrPermission)
}
