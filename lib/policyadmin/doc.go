// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package policyadmin is the security manager's synchronous client for
// the policy store's administrative API. It knows the bucket layout
// (see [policystore.Bucket]) and turns lifecycle facts into rule
// batches:
//
//   - [DiffPrivileges] and [Client.UpdateAppPolicy] compute the minimal
//     MANIFESTS batch between two sorted privilege lists with a
//     sort-merge walk.
//   - [Client.UserInit] redirects a user in MAIN to the template bucket
//     of its [UserType]; [Client.ListUsers] reads those redirects back.
//   - [Client.UserRemove] erases the user's rules starting from the
//     default bucket.
//
// The client also owns the store's policy description table, the
// bijection between result codes and their names (Allow, Deny, and
// any custom levels the store has been configured with). The table is
// fetched lazily on first use and can be refreshed on demand; an empty
// answer from the store never clears it.
//
// Store statuses are translated with [policystore.Classify]: failures
// come back as *[policystore.Error], matchable with
// [policystore.IsStatus].
//
// A Client is not safe for concurrent administration. The description
// table is the exception: lookups may run concurrently with a refresh.
package policyadmin
