// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package permcheck answers runtime permission checks against the
// policy store's asynchronous API.
//
// The store's async handle is single-threaded, but callers arrive on
// many goroutines. A [Client] serializes every call into the handle
// behind one mutex and runs a worker goroutine that drives the
// handle's I/O:
//
//   - [Client.Check] probes the store's local cache under the mutex.
//     A cached Allowed or Denied answers immediately. On a miss it
//     creates a request whose response callback completes a
//     per-call channel, wakes the worker through an eventfd, releases
//     the mutex, and waits on the channel.
//   - The worker polls two descriptors: the eventfd and the store's
//     connection descriptor, with the events the store last asked
//     for through its status callback. When the store descriptor is
//     ready it calls Process under the mutex, which dispatches every
//     response that has arrived.
//
// Responses complete in the order the store dispatches them, not in
// request order. A request the store cancels or abandons at shutdown
// completes as a denial; a lost connection completes with a
// StatusServiceNotAvailable error.
//
// [Client.Close] stops the worker, then finishes the handle under the
// mutex, which completes any outstanding checks with a denial.
//
// The client exports Prometheus counters for checks by source
// (cache or request) and responses by cause.
package permcheck
