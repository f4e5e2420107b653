// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package privilegedb records which applications belong to which
// packages and which privileges each application holds. It is the
// security manager's memory of what it has already told the policy
// store: the reconciler reads the previous package privileges from
// here, writes the new ones, and derives the rule diff from the two.
//
// The database is a single SQLite file opened through a one-connection
// sqlitepool.Pool, which applies the standard pragmas and creates the
// schema. The connection is taken in [Open] and held until [DB.Close]. There is no internal locking and
// no implicit transaction: callers bracket every lifecycle operation
// with [DB.BeginTransaction] and [DB.CommitTransaction] (or
// [DB.RollbackTransaction]) and serialize access themselves.
//
// # Schema
//
//	app           (app_id PRIMARY KEY, pkg_id)
//	app_privilege (app_id, privilege, PRIMARY KEY (app_id, privilege))
//
// Tables are created on open if missing. Schema migration is not this
// package's concern.
//
// # Errors
//
// Failure to open or initialize the file is reported as [ErrIO]. Every
// engine error after that, constraint violations included, is reported
// as [ErrInternal]: the schema is expected to hold, so a violation is
// a bug rather than a caller mistake. Both wrap the underlying SQLite
// error.
package privilegedb
