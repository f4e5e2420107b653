// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policystore

import (
	"fmt"
	"strconv"
)

const (
	// Wildcard matches any value when stored in a rule.
	Wildcard = "*"

	// Any matches any stored value, the wildcard included. Valid only
	// in list and erase filters, never in a stored rule.
	Any = "#"
)

// ResultType is the numeric result code of a rule. The named
// constants cover the fixed variants; any other value is a custom
// level negotiated through the store's description list.
type ResultType int

const (
	// ResultDelete removes the rule with the same key from the
	// bucket. Write-only: it never comes back from a list or check.
	ResultDelete ResultType = -1

	// ResultDeny denies access.
	ResultDeny ResultType = 0

	// ResultNone means "no opinion": the lookup continues as if the
	// rule did not match.
	ResultNone ResultType = 1

	// ResultBucket redirects the lookup into another bucket, named by
	// Result.Bucket.
	ResultBucket ResultType = 0xFFFE

	// ResultAllow grants access.
	ResultAllow ResultType = 0xFFFF
)

// String returns the variant name, or the decimal code for custom
// levels.
func (t ResultType) String() string {
	switch t {
	case ResultDelete:
		return "delete"
	case ResultDeny:
		return "deny"
	case ResultNone:
		return "none"
	case ResultBucket:
		return "bucket"
	case ResultAllow:
		return "allow"
	default:
		return strconv.Itoa(int(t))
	}
}

// IsCustom reports whether t is a store-defined level rather than one
// of the fixed variants.
func (t ResultType) IsCustom() bool {
	switch t {
	case ResultDelete, ResultDeny, ResultNone, ResultBucket, ResultAllow:
		return false
	}
	return true
}

// Result is the right-hand side of a rule. Bucket is set only when
// Type is ResultBucket and names the redirect target.
type Result struct {
	Type   ResultType
	Bucket string
}

// Allow returns an allow result.
func Allow() Result { return Result{Type: ResultAllow} }

// Deny returns a deny result.
func Deny() Result { return Result{Type: ResultDeny} }

// None returns a no-opinion result.
func None() Result { return Result{Type: ResultNone} }

// Delete returns the write-only delete operation.
func Delete() Result { return Result{Type: ResultDelete} }

// RedirectTo returns a result that continues the lookup in bucket.
func RedirectTo(bucket string) Result {
	return Result{Type: ResultBucket, Bucket: bucket}
}

// Level returns a custom-level result. Passing a fixed variant's code
// yields that variant without a redirect target.
func Level(code ResultType) Result { return Result{Type: code} }

// String renders the result as "allow", "deny", "bucket:MAIN", etc.
func (r Result) String() string {
	if r.Type == ResultBucket {
		return "bucket:" + r.Bucket
	}
	return r.Type.String()
}

// Rule is one entry of a bucket: (Client, User, Privilege) → Result,
// owned by Bucket. Rules are plain values; the strings they hold are
// owned by the Rule itself.
type Rule struct {
	Bucket    string
	Client    string
	User      string
	Privilege string
	Result    Result
}

// String formats the rule for logs.
func (r Rule) String() string {
	return fmt.Sprintf("{bucket=%q client=%q user=%q privilege=%q result=%s}",
		r.Bucket, r.Client, r.User, r.Privilege, r.Result)
}

// PolicyDescription is one entry of the store's description list: a
// result code and its human-readable name ("Allow", "Deny", or a
// custom level such as "Ask user").
type PolicyDescription struct {
	Code ResultType
	Name string
}
