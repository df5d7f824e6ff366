// Package mirror persists server-side copies of browser storage areas.
//
// While a context is connected its storage lives in memory on the
// server. The mirror stores carry that state across disconnects: when
// a context returns, or when its browser storage is unavailable, the
// persisted snapshot re-seeds the server-side copy.
//
// # Backends
//
// Four implementations of Store are provided:
//
//   - MemoryStore: in-process map with TTL eviction, for development
//     and single-instance deployments
//   - FileStore: JSON files with atomic temp-file writes
//   - SQLStore: any database/sql driver, PostgreSQL, MySQL or SQLite
//     dialects
//   - S3Store: AWS S3 via aws-sdk-go-v2
//
// A Redis-backed store is available through the RedisClient interface,
// which matches github.com/redis/go-redis/v9; adapt a *redis.Client
// with a few lines and no direct dependency:
//
//	store := mirror.NewRedisStore(adapter, mirror.WithRedisTTL(24*time.Hour))
//
// # Merging
//
// At connect time a client snapshot may disagree with a persisted
// mirror. Merge picks the winner under a MergeStrategy; the default
// ClientWins treats the browser as the source of truth and uses the
// mirror only to fill an empty area.
package mirror
