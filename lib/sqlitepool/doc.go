// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite databases with the security
// manager's standard connection settings.
//
// A [Pool] wraps zombiezen's sqlitex.Pool. Every connection gets the
// same pragmas before first use:
//
//	journal_mode=WAL      readers do not block the writer
//	synchronous=NORMAL    durable at checkpoints, fast commits
//	busy_timeout=5000     wait for the write lock instead of failing
//	foreign_keys=OFF      schemas here carry no foreign keys
//	cache_size=-2048      2 MiB page cache per connection
//	temp_store=MEMORY     temporary tables stay off disk
//
// followed by the caller's [Config].OnConnect hook, which is where a
// store creates its schema.
//
// The default pool size is one. The privilege database keeps that one
// connection for its whole lifetime: it takes it in Open, runs every
// transaction on it, and puts it back in Close. Callers that need
// concurrent readers set PoolSize and Take per operation.
package sqlitepool
