package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"greenstorm/pkg/logger"
	"greenstorm/pkg/models"
)

// ErrNotFound is returned when a key is absent from the store.
var ErrNotFound = errors.New("not found")

var (
	db     *pebble.DB
	dbPath string
)

// Open opens (or creates) a Pebble database at the given path and keeps a
// global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func get(key string, v any) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	val, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	defer closer.Close()
	return json.Unmarshal(val, v)
}

func set(key string, v any) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return db.Set([]byte(key), b, pebble.Sync)
}

// --- users ---
// Key format: user:<first_name>

// GetUser returns the user record for the given first name, or ErrNotFound.
func GetUser(firstName string) (models.User, error) {
	var u models.User
	err := get("user:"+firstName, &u)
	return u, err
}

// SaveUser writes the user record, stamping created/updated timestamps.
func SaveUser(u models.User) error {
	now := time.Now().UTC().UnixNano()
	if u.CreatedTS == 0 {
		u.CreatedTS = now
	}
	u.UpdatedTS = now
	if err := set("user:"+u.FirstName, u); err != nil {
		logger.Error("save_user_failed", "user", u.FirstName, "error", err)
		return err
	}
	logger.Info("user_saved", "user", u.FirstName, "thread", u.ThreadID)
	return nil
}

// --- sessions ---
// Key format: session:<token>

// GetSession resolves a session token. Expired sessions are deleted and
// reported as ErrNotFound.
func GetSession(token string) (models.Session, error) {
	var s models.Session
	if err := get("session:"+token, &s); err != nil {
		return s, err
	}
	if s.ExpiresTS != 0 && time.Now().Unix() > s.ExpiresTS {
		_ = DeleteSession(token)
		return models.Session{}, ErrNotFound
	}
	return s, nil
}

// SaveSession writes a session record.
func SaveSession(s models.Session) error {
	return set("session:"+s.Token, s)
}

// DeleteSession removes a session record.
func DeleteSession(token string) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	return db.Delete([]byte("session:"+token), pebble.Sync)
}

// --- feed cache ---
// Key format: feedcache:<sha256(url)>

// FeedCacheEntry is one cached calendar fetch, keyed by the hash of the
// normalized feed URL.
type FeedCacheEntry struct {
	FetchedTS int64           `json:"fetched_ts"`
	Payload   json.RawMessage `json:"payload"`
}

// GetFeedCache returns the cached entry for the given URL hash.
func GetFeedCache(urlHash string) (FeedCacheEntry, error) {
	var e FeedCacheEntry
	err := get("feedcache:"+urlHash, &e)
	return e, err
}

// SaveFeedCache writes a cache entry for the given URL hash.
func SaveFeedCache(urlHash string, e FeedCacheEntry) error {
	return set("feedcache:"+urlHash, e)
}

// SweepFeedCache deletes feed cache entries older than maxAge and returns
// the number removed.
func SweepFeedCache(maxAge time.Duration) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte("feedcache:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	cutoff := time.Now().Add(-maxAge).UnixNano()
	var stale [][]byte
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var e FeedCacheEntry
		if json.Unmarshal(iter.Value(), &e) != nil || e.FetchedTS < cutoff {
			stale = append(stale, append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	for _, k := range stale {
		if err := db.Delete(k, pebble.Sync); err != nil {
			return 0, err
		}
	}
	if len(stale) > 0 {
		logger.Info("feed_cache_swept", "removed", len(stale))
	}
	return len(stale), nil
}

// CountUsers iterates the user prefix; used by the readiness/stats surface.
func CountUsers() (int, error) {
	if db == nil {
		return 0, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte("user:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		n++
	}
	return n, iter.Error()
}
