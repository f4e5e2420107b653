// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package policystore describes the contract between the security
// manager and the external policy decision service (the "policy
// store"). The store keeps rules in named buckets and answers
// allow/deny/redirect questions; this package only models its
// published API surface so that the rest of the security manager can
// structure rules and forward queries without ever deciding policy
// itself.
//
// # Rules and results
//
// A [Rule] is (bucket, client, user, privilege) → [Result]. Client,
// user and privilege are opaque strings. Two tokens are reserved:
//
//	*   Wildcard: stored in a rule, matches any value at check time.
//	#   Any: only meaningful in list/erase filters, matches any stored
//	    value including the wildcard itself.
//
// Results are a small tagged variant (Deny, None, BucketRedirect,
// Allow, Delete) plus custom numeric levels that the store advertises
// through its description list. Delete is a write-only operation code:
// setting a Delete rule removes whatever rule has the same key in that
// bucket.
//
// # Buckets
//
// The security manager organizes rules into a fixed layout of
// well-known buckets ([Bucket]). Lookups start in PRIVACY_MANAGER (the
// store's default bucket, whose name is the empty string) and fall
// through redirects:
//
//	PRIVACY_MANAGER (allow)  * * * → MAIN
//	MAIN (deny)              * * * → MANIFESTS, <uid> → USER_TYPE_*
//	MANIFESTS (deny)         rules declared by installed packages
//	USER_TYPE_* (deny)       allow-only templates per user class
//	ADMIN (none)             administrator overrides
//
// # Status codes
//
// Every store call returns a [Status]. [Classify] turns a status into
// the security manager's error model: Success and AccessAllowed are
// true, AccessDenied is false, anything else becomes an [*Error] that
// callers can inspect with [IsStatus].
//
// # Fakes
//
// [FakeAdmin] and [FakeAsync] are in-memory implementations of
// [AdminAPI] and [AsyncAPI] for tests. FakeAsync exposes a real
// eventfd so that poll-driven clients run their production loops
// against it.
package policystore
