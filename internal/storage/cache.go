package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	pceerrors "pce/internal/errors"
)

// CacheEntry represents one cached enhancement result.
type CacheEntry struct {
	Key            string
	EnhancedText   string
	ContextSummary string // JSON-encoded summary
	CreatedAt      time.Time
	ExpiresAt      time.Time
	HitCount       int
}

// CacheStats summarizes cache usage.
type CacheStats struct {
	Entries     int   `json:"entries"`
	Expired     int   `json:"expired"`
	TotalHits   int   `json:"totalHits"`
	StoredBytes int64 `json:"storedBytes"`
}

// Cache is the persistent fingerprint-keyed enhancement cache. Expiry is
// pure TTL: reads never extend expires_at. Payloads are zstd-compressed
// at rest.
type Cache struct {
	db  *DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCache creates a cache over the given database.
func NewCache(db *DB) (*Cache, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Cache{db: db, enc: enc, dec: dec}, nil
}

// Get retrieves a cache entry. A hit increments hit_count but never
// extends the expiry. Expired entries are deleted and reported as misses.
func (c *Cache) Get(key string) (*CacheEntry, bool, error) {
	var entry CacheEntry
	var blob []byte
	var createdAt, expiresAt string

	err := c.db.QueryRow(`
		SELECT key, enhanced_text, context_summary, created_at, expires_at, hit_count
		FROM enhancement_cache
		WHERE key = ?
	`, key).Scan(&entry.Key, &blob, &entry.ContextSummary, &createdAt, &expiresAt, &entry.HitCount)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, pceerrors.New(pceerrors.CacheUnavailable, "cache lookup failed", err)
	}

	entry.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, false, fmt.Errorf("invalid created_at format: %w", err)
	}
	entry.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, false, fmt.Errorf("invalid expires_at format: %w", err)
	}

	if time.Now().After(entry.ExpiresAt) {
		_, _ = c.db.Exec("DELETE FROM enhancement_cache WHERE key = ?", key)
		return nil, false, nil
	}

	text, err := c.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decompress cached payload: %w", err)
	}
	entry.EnhancedText = string(text)

	if _, err := c.db.Exec(
		"UPDATE enhancement_cache SET hit_count = hit_count + 1 WHERE key = ?", key,
	); err != nil {
		c.db.logger.Warn("Failed to record cache hit", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
	entry.HitCount++

	return &entry, true, nil
}

// Put stores an enhancement result under its fingerprint. Writing the
// same key with identical content is idempotent: created_at and
// hit_count are preserved, only the expiry is refreshed. Divergent
// content under an existing key indicates a fingerprint collision; it is
// logged as a data-integrity warning before the new content wins.
func (c *Cache) Put(key, enhancedText, contextSummary string, ttl time.Duration) error {
	now := time.Now()
	expiresAt := now.Add(ttl)
	hash := contentHash(enhancedText, contextSummary)

	return c.db.WithTx(func(tx *sql.Tx) error {
		var existingHash string
		err := tx.QueryRow(
			"SELECT content_hash FROM enhancement_cache WHERE key = ?", key,
		).Scan(&existingHash)

		switch {
		case err == sql.ErrNoRows:
			// First write

		case err != nil:
			return pceerrors.New(pceerrors.CacheUnavailable, "cache probe failed", err)

		case existingHash == hash:
			_, err := tx.Exec(
				"UPDATE enhancement_cache SET expires_at = ? WHERE key = ?",
				expiresAt.Format(time.RFC3339), key,
			)
			return err

		default:
			c.db.logger.Warn("Fingerprint collision: divergent content for cached key", map[string]interface{}{
				"key":          key,
				"existingHash": existingHash,
				"newHash":      hash,
			})
		}

		blob := c.enc.EncodeAll([]byte(enhancedText), nil)

		_, err = tx.Exec(`
			INSERT OR REPLACE INTO enhancement_cache
				(key, enhanced_text, context_summary, content_hash, created_at, expires_at, hit_count)
			VALUES (?, ?, ?, ?, ?, ?, 0)
		`, key, blob, contextSummary, hash, now.Format(time.RFC3339), expiresAt.Format(time.RFC3339))
		if err != nil {
			return pceerrors.New(pceerrors.CacheUnavailable, "cache write failed", err)
		}
		return nil
	})
}

// Invalidate removes all entries whose key starts with the given prefix.
func (c *Cache) Invalidate(keyPrefix string) (int64, error) {
	res, err := c.db.Exec(
		"DELETE FROM enhancement_cache WHERE key LIKE ?", keyPrefix+"%",
	)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// InvalidateAll clears the entire cache.
func (c *Cache) InvalidateAll() error {
	if _, err := c.db.Exec("DELETE FROM enhancement_cache"); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// CleanupExpired removes all expired entries. Called periodically while
// serving.
func (c *Cache) CleanupExpired() (int64, error) {
	res, err := c.db.Exec(
		"DELETE FROM enhancement_cache WHERE expires_at < ?",
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Stats returns usage statistics for the cache.
func (c *Cache) Stats() (*CacheStats, error) {
	stats := &CacheStats{}
	now := time.Now().Format(time.RFC3339)

	err := c.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN expires_at < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(hit_count), 0),
			COALESCE(SUM(LENGTH(enhanced_text)), 0)
		FROM enhancement_cache
	`, now).Scan(&stats.Entries, &stats.Expired, &stats.TotalHits, &stats.StoredBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to get cache stats: %w", err)
	}

	return stats, nil
}

func contentHash(enhancedText, contextSummary string) string {
	h := sha256.New()
	h.Write([]byte(enhancedText))
	h.Write([]byte{0})
	h.Write([]byte(contextSummary))
	return hex.EncodeToString(h.Sum(nil))
}
