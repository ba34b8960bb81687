// Package store persists the planner's documents in a local SQLite
// key-value table with rolling backups and a byte quota.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Load when the key has never been saved.
	ErrNotFound = errors.New("store: key not found")

	// ErrQuotaExceeded is returned by Save when the write would push the
	// stored payload over the configured byte limit.
	ErrQuotaExceeded = errors.New("store: quota exceeded")
)

// KV is the minimal blob persistence contract.
type KV interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
}

// Store is a KV that also keeps backup copies of previous values.
type Store interface {
	KV

	// LatestBackup returns the most recent backup of key, or ErrNotFound.
	LatestBackup(ctx context.Context, key string) ([]byte, error)

	// ClearBackups deletes every backup to free quota. Primary values stay.
	ClearBackups(ctx context.Context) error
}

// Options tune an SQLiteStore.
type Options struct {
	// MaxBytes caps the summed size of values and backups. Zero means unlimited.
	MaxBytes int64

	// MaxBackups is how many previous values are kept per key.
	MaxBackups int
}
