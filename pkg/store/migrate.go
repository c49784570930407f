package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"

	"greenstorm/pkg/logger"
	"greenstorm/pkg/models"
)

const (
	systemVersionKey    = "system:version"
	systemInProgressKey = "system:migration_in_progress"
)

// Migrate checks the stored schema version against the running version and
// runs sync work when they differ. Returns (invoked, error): invoked is true
// if sync ran.
func Migrate(ctx context.Context, newVersion string) (bool, error) {
	stored := storedVersion()
	logger.Info("migration_version_check", "stored", stored, "running", newVersion)

	if stored == newVersion {
		logger.Info("migration_noop", "version", newVersion)
		return false, nil
	}

	marker := map[string]string{
		"from":       stored,
		"to":         newVersion,
		"started_at": time.Now().UTC().Format(time.RFC3339),
	}
	mb, _ := json.Marshal(marker)
	if err := saveRaw(systemInProgressKey, mb); err != nil {
		logger.Error("migration_write_inprogress_failed", "error", err)
		return true, fmt.Errorf("failed to write in-progress marker: %w", err)
	}

	logger.Info("migration_sync_start", "from", stored, "to", newVersion)
	if err := syncUsers(ctx); err != nil {
		logger.Error("migration_sync_failed", "from", stored, "to", newVersion, "error", err)
		return true, err
	}
	logger.Info("migration_sync_done", "from", stored, "to", newVersion)

	if err := saveRaw(systemVersionKey, []byte(newVersion)); err != nil {
		logger.Error("migration_persist_version_failed", "version", newVersion, "error", err)
		return true, fmt.Errorf("failed to persist new version: %w", err)
	}
	if err := deleteRaw(systemInProgressKey); err != nil {
		logger.Error("migration_delete_inprogress_failed", "error", err)
	}

	logger.Info("migration_version_persisted", "version", newVersion)
	return true, nil
}

// syncUsers performs upgrade work between versions. Edit in-place for
// migration logic.
//
// Current migration: trim stray whitespace from stored feed URLs and stamp
// timestamps on records written before those fields existed. Idempotent and
// safe to run multiple times.
func syncUsers(ctx context.Context) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte("user:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		var u models.User
		if err := json.Unmarshal(iter.Value(), &u); err != nil {
			logger.Error("migration_unmarshal_user_failed", "key", string(iter.Key()), "error", err)
			continue
		}
		changed := false
		if t := strings.TrimSpace(u.Settings.ClassSchedulesURL); t != u.Settings.ClassSchedulesURL {
			u.Settings.ClassSchedulesURL = t
			changed = true
		}
		if t := strings.TrimSpace(u.Settings.AllAssignmentsURL); t != u.Settings.AllAssignmentsURL {
			u.Settings.AllAssignmentsURL = t
			changed = true
		}
		if u.CreatedTS == 0 {
			changed = true
		}
		if !changed {
			continue
		}
		if err := SaveUser(u); err != nil {
			logger.Error("migration_save_user_failed", "user", u.FirstName, "error", err)
			continue
		}
		logger.Info("migration_user_updated", "user", u.FirstName)
	}
	return iter.Error()
}

func storedVersion() string {
	b, err := getRaw(systemVersionKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Error("migration_read_version_failed", "error", err)
		}
		return ""
	}
	return string(b)
}

func getRaw(key string) ([]byte, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	val, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func saveRaw(key string, val []byte) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	return db.Set([]byte(key), val, pebble.Sync)
}

func deleteRaw(key string) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	return db.Delete([]byte(key), pebble.Sync)
}
