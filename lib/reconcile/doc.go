// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reconcile applies application and user lifecycle events to
// both the privilege database and the policy store.
//
// The reconciler is the only component that knows both stores. For an
// install or uninstall it opens a database transaction, records the
// package's aggregate privileges before and after the change, sends
// the difference to the policy store as one MANIFESTS batch, and
// commits only if the store accepted the batch. Any failure rolls the
// database back, so the database never records grants the store has
// not seen.
//
// The converse is not guaranteed: if the store accepts the batch and
// the commit then fails, the store holds rules the database does not
// know about. Reinstalling the package re-sends the same grants, which
// the store applies idempotently.
//
// Rules are keyed by a package label derived from the package id
// (by default "User::Pkg::<pkg>") and the wildcard user, so one set of
// grants serves every user.
//
// Lifecycle operations are serialized by the reconciler.
package reconcile
