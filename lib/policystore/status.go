// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policystore

import (
	"errors"
	"fmt"
)

// Status is the result code of a policy store call.
type Status int

const (
	StatusSuccess Status = iota
	StatusAccessAllowed
	StatusAccessDenied
	StatusCacheMiss
	StatusMaxPendingRequests
	StatusOutOfMemory
	StatusInvalidParam
	StatusServiceNotAvailable
	StatusMethodNotSupported
	StatusOperationNotAllowed
	StatusOperationFailed
	StatusBucketNotFound
	StatusUnknownError
)

var statusNames = map[Status]string{
	StatusSuccess:             "success",
	StatusAccessAllowed:       "access allowed",
	StatusAccessDenied:        "access denied",
	StatusCacheMiss:           "cache miss",
	StatusMaxPendingRequests:  "max pending requests",
	StatusOutOfMemory:         "out of memory",
	StatusInvalidParam:        "invalid parameter",
	StatusServiceNotAvailable: "service not available",
	StatusMethodNotSupported:  "method not supported",
	StatusOperationNotAllowed: "operation not allowed",
	StatusOperationFailed:     "operation failed",
	StatusBucketNotFound:      "bucket not found",
	StatusUnknownError:        "unknown error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Error is a failed policy store call. Callers can use errors.As to
// extract the status, or the IsStatus shortcut:
//
//	if policystore.IsStatus(err, policystore.StatusServiceNotAvailable) { ... }
type Error struct {
	// Status is the classified failure. Statuses outside the known
	// failure set are reported as StatusUnknownError.
	Status Status

	// Message describes the operation that failed.
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("policy store: %s: %s", e.Message, e.Status)
}

// IsStatus reports whether err is an *Error with the given status.
func IsStatus(err error, status Status) bool {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Status == status
	}
	return false
}

// Classify translates a store status into the security manager's
// error model. Success and AccessAllowed return true, AccessDenied
// returns false, and every other status returns an *Error whose
// Message is message. Unrecognized statuses (CacheMiss included, which
// callers must handle before classifying) become StatusUnknownError.
func Classify(status Status, message string) (bool, error) {
	switch status {
	case StatusSuccess, StatusAccessAllowed:
		return true, nil
	case StatusAccessDenied:
		return false, nil
	case StatusMaxPendingRequests,
		StatusOutOfMemory,
		StatusInvalidParam,
		StatusServiceNotAvailable,
		StatusMethodNotSupported,
		StatusOperationNotAllowed,
		StatusOperationFailed,
		StatusBucketNotFound:
		return false, &Error{Status: status, Message: message}
	default:
		return false, &Error{
			Status:  StatusUnknownError,
			Message: fmt.Sprintf("%s (store returned %s)", message, status),
		}
	}
}

// Check is Classify for calls whose boolean outcome is irrelevant.
func Check(status Status, message string) error {
	_, err := Classify(status, message)
	return err
}
