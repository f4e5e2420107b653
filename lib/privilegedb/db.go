// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package privilegedb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/secmgr/lib/sqlitepool"
)

var (
	// ErrIO reports that the database file could not be opened or
	// initialized.
	ErrIO = errors.New("privilegedb: I/O error")

	// ErrInternal reports an engine failure after open.
	ErrInternal = errors.New("privilegedb: internal error")
)

// Config holds the parameters for opening the privilege database.
type Config struct {
	// Path is the filesystem path to the SQLite file. The parent
	// directory must exist; the file is created if missing.
	Path string

	// Logger receives operational messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// DB is the privilege database. It holds the single connection of a
// one-connection pool and is not safe for concurrent use.
type DB struct {
	pool   *sqlitepool.Pool
	conn   *sqlite.Conn
	logger *slog.Logger
	path   string
}

const schema = `
	CREATE TABLE IF NOT EXISTS app (
		app_id TEXT PRIMARY KEY NOT NULL,
		pkg_id TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_app_pkg ON app(pkg_id);

	CREATE TABLE IF NOT EXISTS app_privilege (
		app_id    TEXT NOT NULL,
		privilege TEXT NOT NULL,
		PRIMARY KEY (app_id, privilege)
	);
`

type queryType int

const (
	queryPkgIDExists queryType = iota
	queryAddApplication
	queryRemoveApplication
	queryGetPkgPrivileges
	queryAddAppPrivileges
	queryRemoveAppPrivileges
	queryGetAppPkgID
	queryGetAppPrivileges
)

var queries = map[queryType]string{
	queryPkgIDExists:       `SELECT 1 FROM app WHERE pkg_id = ? LIMIT 1`,
	queryAddApplication:    `INSERT OR IGNORE INTO app (app_id, pkg_id) VALUES (?, ?)`,
	queryRemoveApplication: `DELETE FROM app WHERE app_id = ? AND pkg_id = ?`,
	queryGetPkgPrivileges: `SELECT DISTINCT p.privilege
		FROM app_privilege p JOIN app a ON a.app_id = p.app_id
		WHERE a.pkg_id = ?
		ORDER BY p.privilege`,
	queryAddAppPrivileges:    `INSERT OR IGNORE INTO app_privilege (app_id, privilege) VALUES (?, ?)`,
	queryRemoveAppPrivileges: `DELETE FROM app_privilege WHERE app_id = ?`,
	queryGetAppPkgID:         `SELECT pkg_id FROM app WHERE app_id = ?`,
	queryGetAppPrivileges:    `SELECT privilege FROM app_privilege WHERE app_id = ? ORDER BY privilege`,
}

// queryNames are the stable names of the queries, used in logs and
// error messages.
var queryNames = map[queryType]string{
	queryPkgIDExists:         "PkgIdExists",
	queryAddApplication:      "AddApplication",
	queryRemoveApplication:   "RemoveApplication",
	queryGetPkgPrivileges:    "GetPkgPrivileges",
	queryAddAppPrivileges:    "AddAppPrivileges",
	queryRemoveAppPrivileges: "RemoveAppPrivileges",
	queryGetAppPkgID:         "GetAppPkgId",
	queryGetAppPrivileges:    "GetAppPrivileges",
}

// Open opens (creating if needed) the privilege database at cfg.Path
// and ensures the schema exists. Any failure is wrapped in ErrIO. The
// caller must call Close.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: Path is required", ErrIO)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   cfg.Path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		logger.Error("privilege database open failed", "path", cfg.Path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	// The database runs on one connection for its whole lifetime.
	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		logger.Error("privilege database initialization failed", "path", cfg.Path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	logger.Info("privilege database opened", "path", cfg.Path)

	return &DB{
		pool:   pool,
		conn:   conn,
		logger: logger,
		path:   cfg.Path,
	}, nil
}

// Close releases the connection and closes the database. A transaction
// left open is rolled back by SQLite.
func (db *DB) Close() error {
	db.pool.Put(db.conn)
	db.conn = nil
	if err := db.pool.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrInternal, err)
	}
	db.logger.Info("privilege database closed", "path", db.path)
	return nil
}

// internal wraps an engine error as ErrInternal and logs it with the
// SQLite result code.
func (db *DB) internal(what string, err error) error {
	db.logger.Error("privilege database error",
		"operation", what,
		"code", sqlite.ErrCode(err).String(),
		"error", err,
	)
	return fmt.Errorf("%w: %s: %w", ErrInternal, what, err)
}

// execute runs one of the named queries with args, calling row for
// each result row.
func (db *DB) execute(query queryType, row func(stmt *sqlite.Stmt) error, args ...any) error {
	err := sqlitex.Execute(db.conn, queries[query], &sqlitex.ExecOptions{
		Args:       args,
		ResultFunc: row,
	})
	if err != nil {
		return db.internal(queryNames[query], err)
	}
	return nil
}

// BeginTransaction starts a write transaction. It takes the write lock
// immediately so the transaction cannot fail later with SQLITE_BUSY on
// upgrade.
func (db *DB) BeginTransaction() error {
	if err := sqlitex.ExecuteTransient(db.conn, "BEGIN IMMEDIATE", nil); err != nil {
		return db.internal("begin transaction", err)
	}
	return nil
}

// CommitTransaction commits the open transaction.
func (db *DB) CommitTransaction() error {
	if err := sqlitex.ExecuteTransient(db.conn, "COMMIT", nil); err != nil {
		return db.internal("commit transaction", err)
	}
	return nil
}

// RollbackTransaction abandons the open transaction.
func (db *DB) RollbackTransaction() error {
	if err := sqlitex.ExecuteTransient(db.conn, "ROLLBACK", nil); err != nil {
		return db.internal("rollback transaction", err)
	}
	return nil
}

// PkgIDExists reports whether any application is registered under
// pkgID.
func (db *DB) PkgIDExists(pkgID string) (bool, error) {
	found := false
	err := db.execute(queryPkgIDExists, func(*sqlite.Stmt) error {
		found = true
		return nil
	}, pkgID)
	if err != nil {
		return false, err
	}
	if found {
		db.logger.Debug("package found in database", "pkg", pkgID)
	}
	return found, nil
}

// AddApplication registers appID under pkgID. It reports whether the
// package was new, i.e. no application was registered under pkgID
// before this call. Registering an existing (appID, pkgID) pair again
// changes nothing.
func (db *DB) AddApplication(appID, pkgID string) (pkgIDIsNew bool, err error) {
	exists, err := db.PkgIDExists(pkgID)
	if err != nil {
		return false, err
	}

	if err := db.execute(queryAddApplication, nil, appID, pkgID); err != nil {
		return false, err
	}
	db.logger.Debug("added application", "app", appID, "pkg", pkgID)

	return !exists, nil
}

// RemoveApplication unregisters appID from pkgID. It reports whether
// pkgID has no applications left afterwards.
func (db *DB) RemoveApplication(appID, pkgID string) (pkgIDIsNoMore bool, err error) {
	if err := db.execute(queryRemoveApplication, nil, appID, pkgID); err != nil {
		return false, err
	}
	db.logger.Debug("removed application", "app", appID, "pkg", pkgID)

	exists, err := db.PkgIDExists(pkgID)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// GetPkgPrivileges returns the union of the privileges of every
// application in pkgID, sorted bytewise and without duplicates.
func (db *DB) GetPkgPrivileges(pkgID string) ([]string, error) {
	privileges := []string{}
	err := db.execute(queryGetPkgPrivileges, func(stmt *sqlite.Stmt) error {
		privileges = append(privileges, stmt.ColumnText(0))
		return nil
	}, pkgID)
	if err != nil {
		return nil, err
	}
	return privileges, nil
}

// GetAppPrivileges returns the privileges granted to appID, sorted.
func (db *DB) GetAppPrivileges(appID string) ([]string, error) {
	privileges := []string{}
	err := db.execute(queryGetAppPrivileges, func(stmt *sqlite.Stmt) error {
		privileges = append(privileges, stmt.ColumnText(0))
		return nil
	}, appID)
	if err != nil {
		return nil, err
	}
	return privileges, nil
}

// GetAppPkgID returns the package appID is registered under. found is
// false when the application is unknown.
func (db *DB) GetAppPkgID(appID string) (pkgID string, found bool, err error) {
	err = db.execute(queryGetAppPkgID, func(stmt *sqlite.Stmt) error {
		pkgID = stmt.ColumnText(0)
		found = true
		return nil
	}, appID)
	if err != nil {
		return "", false, err
	}
	return pkgID, found, nil
}

// RemoveAppPrivileges drops every privilege granted to appID.
func (db *DB) RemoveAppPrivileges(appID string) error {
	return db.execute(queryRemoveAppPrivileges, nil, appID)
}

// UpdateAppPrivileges replaces the privileges of appID with
// privileges: all current grants are erased, then each element is
// inserted. Duplicates in privileges collapse to one grant. This is a
// replacement, not a diff; the reconciler computes the diff from the
// package aggregates before and after.
func (db *DB) UpdateAppPrivileges(appID string, privileges []string) error {
	if err := db.RemoveAppPrivileges(appID); err != nil {
		return err
	}

	for _, privilege := range privileges {
		if err := db.execute(queryAddAppPrivileges, nil, appID, privilege); err != nil {
			return err
		}
	}
	db.logger.Debug("updated application privileges", "app", appID, "count", len(privileges))
	return nil
}
