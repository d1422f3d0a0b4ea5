// Package cachex implements the two-tier cache: a process-local Redis
// client plus a durable SQLite mirror, with TTLs, prefix invalidation, and
// cold-start restoration (spec.md §4.2).
package cachex

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/newapi-sidecar/sidecar/internal/config"
	"github.com/newapi-sidecar/sidecar/internal/dbx"
)

// durablePrefixes lists key prefixes mirrored into SQLite so they survive a
// Redis restart; everything else is ephemeral (Redis/memory only).
var durablePrefixes = []string{
	"app:config",
	"ai_ban:",
	"model_status:",
}

// Manager implements the cache contract of spec.md §4.2.
type Manager struct {
	client *redis.Client
	local  *dbx.Local
	logger zerolog.Logger

	mu  sync.RWMutex
	mem map[string]memEntry

	stats Stats
}

type memEntry struct {
	value    string
	expireAt time.Time // zero means no expiry
}

// Stats is a snapshot of cache activity, returned by GetStats.
type Stats struct {
	Hits        int64
	Misses      int64
	MemoryItems int
	RedisUp     bool
}

// New constructs a cache manager. Redis is optional: when cfg.Host is empty
// or the ping fails, the manager degrades to in-process storage plus the
// SQLite mirror, per spec.md §6.6.
func New(cfg config.RedisConfig, local *dbx.Local, logger zerolog.Logger) *Manager {
	m := &Manager{
		local:  local,
		logger: logger,
		mem:    make(map[string]memEntry),
	}

	if cfg.Host == "" {
		logger.Warn().Msg("No Redis host configured; cache degraded to in-process + SQLite mirror")
		return m
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis unreachable; cache degraded to in-process + SQLite mirror")
		return m
	}

	m.client = client
	logger.Info().Msg("Cache manager connected to Redis")
	return m
}

// IsRedisAvailable reports whether the Redis tier is usable.
func (m *Manager) IsRedisAvailable() bool {
	if m.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return m.client.Ping(ctx).Err() == nil
}

// Health/Ready satisfy the HealthChecker interface.
func (m *Manager) Health() bool { return true } // cache degrading is not a liveness failure
func (m *Manager) Ready() bool  { return true }

func isDurable(key string) bool {
	for _, p := range durablePrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// Get retrieves a raw string value.
func (m *Manager) Get(ctx context.Context, key string) (string, bool, error) {
	if m.client != nil {
		val, err := m.client.Get(ctx, key).Result()
		if err == nil {
			m.stats.Hits++
			return val, true, nil
		}
		if err != redis.Nil {
			m.logger.Warn().Err(err).Str("key", key).Msg("Redis GET failed, falling back")
		}
	}

	m.mu.RLock()
	entry, ok := m.mem[key]
	m.mu.RUnlock()
	if ok && !m.expired(entry) {
		m.stats.Hits++
		return entry.value, true, nil
	}

	if isDurable(key) && m.local != nil {
		if val, ok, err := m.getFromLocal(ctx, key); err == nil && ok {
			m.stats.Hits++
			return val, true, nil
		}
	}

	m.stats.Misses++
	return "", false, nil
}

// GetJSON retrieves and unmarshals a JSON value into out.
func (m *Manager) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	val, found, err := m.Get(ctx, key)
	if err != nil || !found {
		return found, err
	}
	return true, json.Unmarshal([]byte(val), out)
}

// Set stores value with the given TTL (0 means no expiry). Durable-prefix
// keys are mirrored into SQLite after the Redis write (Redis-first, then
// SQLite, per spec.md §9 — eventually consistent, corrected by the next
// overwriting write if a crash lands between the two).
func (m *Manager) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if m.client != nil {
		if err := m.client.Set(ctx, key, value, ttl).Err(); err != nil {
			m.logger.Warn().Err(err).Str("key", key).Msg("Redis SET failed, using fallback tier")
		}
	}

	m.mu.Lock()
	entry := memEntry{value: value}
	if ttl > 0 {
		entry.expireAt = time.Now().Add(ttl)
	}
	m.mem[key] = entry
	m.mu.Unlock()

	if isDurable(key) && m.local != nil {
		return m.setToLocal(ctx, key, value, ttl)
	}
	return nil
}

// SetJSON marshals value and stores it.
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return m.Set(ctx, key, string(b), ttl)
}

// Delete removes a key from every tier.
func (m *Manager) Delete(ctx context.Context, key string) error {
	if m.client != nil {
		m.client.Del(ctx, key)
	}
	m.mu.Lock()
	delete(m.mem, key)
	m.mu.Unlock()
	if m.local != nil {
		_, err := m.local.DB.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key)
		return err
	}
	return nil
}

// DeleteByPrefix scans and deletes every key with the given prefix.
func (m *Manager) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	count := 0

	if m.client != nil {
		iter := m.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			m.logger.Warn().Err(err).Msg("Redis SCAN failed during prefix invalidation")
		}
		if len(keys) > 0 {
			m.client.Del(ctx, keys...)
			count += len(keys)
		}
	}

	m.mu.Lock()
	memDeleted := 0
	for k := range m.mem {
		if strings.HasPrefix(k, prefix) {
			delete(m.mem, k)
			memDeleted++
		}
	}
	m.mu.Unlock()
	if m.client == nil {
		count += memDeleted
	}

	if m.local != nil {
		res, err := m.local.DB.ExecContext(ctx, `DELETE FROM cache WHERE key LIKE ?`, prefix+"%")
		if err != nil {
			return count, err
		}
		n, _ := res.RowsAffected()
		count += int(n)
	}

	return count, nil
}

// HashSet sets a hash field.
func (m *Manager) HashSet(ctx context.Context, hashKey, field, value string) error {
	if m.client != nil {
		return m.client.HSet(ctx, hashKey, field, value).Err()
	}
	m.mu.Lock()
	m.mem[hashKey+":"+field] = memEntry{value: value}
	m.mu.Unlock()
	return nil
}

// HashGet gets a hash field.
func (m *Manager) HashGet(ctx context.Context, hashKey, field string) (string, bool, error) {
	if m.client != nil {
		val, err := m.client.HGet(ctx, hashKey, field).Result()
		if err == nil {
			return val, true, nil
		}
		if err != redis.Nil {
			return "", false, err
		}
		return "", false, nil
	}
	m.mu.RLock()
	entry, ok := m.mem[hashKey+":"+field]
	m.mu.RUnlock()
	return entry.value, ok, nil
}

// HashDelete deletes a hash field.
func (m *Manager) HashDelete(ctx context.Context, hashKey, field string) error {
	if m.client != nil {
		return m.client.HDel(ctx, hashKey, field).Err()
	}
	m.mu.Lock()
	delete(m.mem, hashKey+":"+field)
	m.mu.Unlock()
	return nil
}

// GetAllHashFields returns all fields of a hash.
func (m *Manager) GetAllHashFields(ctx context.Context, hashKey string) (map[string]string, error) {
	if m.client != nil {
		return m.client.HGetAll(ctx, hashKey).Result()
	}
	out := make(map[string]string)
	m.mu.RLock()
	prefix := hashKey + ":"
	for k, v := range m.mem {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = v.value
		}
	}
	m.mu.RUnlock()
	return out, nil
}

// RestoreToRedis reloads unexpired durable entries from SQLite into Redis
// after a cold start, returning the count restored.
func (m *Manager) RestoreToRedis(ctx context.Context) (int, error) {
	if m.local == nil {
		return 0, nil
	}

	now := time.Now().Unix()
	rows, err := m.local.DB.QueryContext(ctx,
		`SELECT key, value, expire_at FROM cache WHERE expire_at IS NULL OR expire_at > ?`, now)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var key, value string
		var expireAt *int64
		if err := rows.Scan(&key, &value, &expireAt); err != nil {
			continue
		}
		var ttl time.Duration
		if expireAt != nil {
			ttl = time.Until(time.Unix(*expireAt, 0))
			if ttl <= 0 {
				continue
			}
		}
		if m.client != nil {
			if err := m.client.Set(ctx, key, value, ttl).Err(); err != nil {
				continue
			}
		}
		m.mu.Lock()
		entry := memEntry{value: value}
		if expireAt != nil {
			entry.expireAt = time.Unix(*expireAt, 0)
		}
		m.mem[key] = entry
		m.mu.Unlock()
		count++
	}
	m.logger.Info().Int("restored", count).Msg("Cache restored from SQLite mirror")
	return count, rows.Err()
}

// CleanupExpired deletes expired rows from the SQLite mirror.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	if m.local == nil {
		return 0, nil
	}
	res, err := m.local.DB.ExecContext(ctx, `DELETE FROM cache WHERE expire_at IS NOT NULL AND expire_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// GetStats returns a snapshot of cache activity.
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := m.stats
	stats.MemoryItems = len(m.mem)
	stats.RedisUp = m.client != nil
	return stats
}

func (m *Manager) expired(e memEntry) bool {
	return !e.expireAt.IsZero() && time.Now().After(e.expireAt)
}

func (m *Manager) getFromLocal(ctx context.Context, key string) (string, bool, error) {
	row := m.local.DB.QueryRowContext(ctx, `SELECT value, expire_at FROM cache WHERE key = ?`, key)
	var value string
	var expireAt *int64
	if err := row.Scan(&value, &expireAt); err != nil {
		return "", false, nil
	}
	if expireAt != nil && *expireAt <= time.Now().Unix() {
		return "", false, nil
	}
	return value, true, nil
}

func (m *Manager) setToLocal(ctx context.Context, key, value string, ttl time.Duration) error {
	var expireAt *int64
	if ttl > 0 {
		t := time.Now().Add(ttl).Unix()
		expireAt = &t
	}
	_, err := m.local.DB.ExecContext(ctx,
		`INSERT INTO cache (key, value, expire_at, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expire_at = excluded.expire_at`,
		key, value, expireAt, time.Now().Unix())
	return err
}
