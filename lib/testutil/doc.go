// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for the security
// manager's packages.
//
// [RequireReceive], [RequireNoReceive], and [RequireClosed] wrap the
// select-with-timeout pattern that guards every channel wait in the
// test suite, so a lost permission response fails the test instead of
// hanging it.
//
// [DatabasePath] returns a fresh SQLite path inside the test's
// temporary directory.
//
// [UniqueID] generates distinct identifiers (application labels,
// package ids) without consulting the clock.
//
// All helpers call t.Fatalf on failure. This package has no
// dependencies on other packages in the module.
package testutil
