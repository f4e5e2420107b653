// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package manager wires the security manager's policy core together
// from a [config.Config].
//
// [Open] builds the components in dependency order: the privilege
// database, the administrative policy client, the reconciler that
// joins them, and the asynchronous permission client. [Manager.Close]
// tears them down in reverse. There is no global state; a process may
// open several managers against different stores and databases.
//
// The store handles are injected: the caller supplies the
// administrative handle and a dialer for the asynchronous one. Tests
// pass [policystore.FakeAdmin] and [policystore.FakeAsync].
package manager
