// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policystore

// AdminAPI is the store's synchronous administrative interface. A
// handle is owned by one client and released with Finish. Handles are
// not safe for concurrent use.
type AdminAPI interface {
	// SetPolicies applies a batch of rules atomically. Rules with a
	// ResultDelete result remove the rule with the same key.
	SetPolicies(rules []Rule) Status

	// ListPolicies returns the rules in bucket matching the filter.
	// Filter fields are compared literally, except Any which matches
	// every stored value.
	ListPolicies(bucket, client, user, privilege string) ([]Rule, Status)

	// Erase removes the rules in bucket matching the filter. With
	// recursive set, buckets reachable through redirects are erased
	// with the same filter.
	Erase(bucket string, recursive bool, client, user, privilege string) Status

	// Check evaluates (client, user, privilege) starting in bucket.
	// Without recursive, a redirect is returned as-is instead of
	// being followed.
	Check(bucket string, recursive bool, client, user, privilege string) (Result, Status)

	// ListPoliciesDescriptions returns the result codes the store
	// understands and their names.
	ListPoliciesDescriptions() ([]PolicyDescription, Status)

	// Finish releases the handle.
	Finish() Status
}

// CheckID identifies an asynchronous check request.
type CheckID uint16

// ConnStatus tells the client which readiness to wait for on the
// store's descriptor.
type ConnStatus int

const (
	// ConnForRead means the client should wait for the descriptor to
	// become readable.
	ConnForRead ConnStatus = iota

	// ConnForReadWrite means the store has queued output: wait for
	// readable or writable.
	ConnForReadWrite
)

func (s ConnStatus) String() string {
	if s == ConnForReadWrite {
		return "read-write"
	}
	return "read"
}

// CallCause is the reason a response callback fires.
type CallCause int

const (
	// CauseAnswer carries the store's decision.
	CauseAnswer CallCause = iota

	// CauseCancel means the request was cancelled.
	CauseCancel

	// CauseFinish means the handle was finished with the request
	// outstanding.
	CauseFinish

	// CauseServiceNotAvailable means the connection to the store was
	// lost before an answer arrived.
	CauseServiceNotAvailable
)

func (c CallCause) String() string {
	switch c {
	case CauseAnswer:
		return "answer"
	case CauseCancel:
		return "cancel"
	case CauseFinish:
		return "finish"
	case CauseServiceNotAvailable:
		return "service_not_available"
	default:
		return "unknown"
	}
}

// StatusFunc is invoked by an async handle whenever the descriptor the
// client should poll changes. newFD is -1 when there is nothing to
// poll (disconnected).
type StatusFunc func(oldFD, newFD int, status ConnStatus)

// ResponseFunc is invoked by an async handle, from inside Process,
// Cancel or Finish, once per request. response is meaningful only for
// CauseAnswer and is StatusAccessAllowed or StatusAccessDenied.
type ResponseFunc func(id CheckID, cause CallCause, response Status)

// AsyncAPI is the store's asynchronous check interface. The handle is
// single-threaded: callers serialize every method, including Process.
// Response callbacks run on the goroutine that called Process, Cancel
// or Finish.
type AsyncAPI interface {
	// CheckCache answers from the local cache. StatusCacheMiss means
	// the caller must create a request.
	CheckCache(client, session, user, privilege string) Status

	// CreateRequest queues a check. onResponse is called exactly once.
	CreateRequest(client, session, user, privilege string, onResponse ResponseFunc) (CheckID, Status)

	// Process performs pending I/O and dispatches ready responses.
	Process() Status

	// Cancel abandons a request; its callback fires with CauseCancel.
	Cancel(id CheckID) Status

	// Finish releases the handle. Outstanding requests receive
	// CauseFinish before Finish returns.
	Finish() Status
}

// AsyncDialer opens an async handle. onStatus may be called during
// the dial and from any later handle method.
type AsyncDialer func(onStatus StatusFunc) (AsyncAPI, Status)
