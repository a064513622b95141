package kv

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendSQLite  = "sqlite"
	BackendRedis   = "redis"
)

// Open creates a Backend by name.
//
// Supported backends:
//
//	"memory"  - in-memory LevelDB (default, dsn ignored)
//	"leveldb" - LevelDB database directory at dsn
//	"sqlite"  - SQLite database file at dsn (":memory:" allowed)
//	"redis"   - Redis server at dsn (redis://host:port/db)
func Open(ctx context.Context, backend, dsn string) (Backend, error) {
	switch backend {
	case BackendMemory, "":
		return OpenMemory()
	case BackendLevelDB:
		if dsn == "" {
			return nil, fmt.Errorf("leveldb backend requires a directory")
		}
		return OpenLevelDB(dsn)
	case BackendSQLite:
		if dsn == "" {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		return OpenSQLite(dsn)
	case BackendRedis:
		if dsn == "" {
			return nil, fmt.Errorf("redis backend requires a url")
		}
		return OpenRedis(ctx, dsn, DefaultRedisHash)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q (supported: memory, leveldb, sqlite, redis)", backend)
	}
}
