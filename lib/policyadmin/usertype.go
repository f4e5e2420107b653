// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policyadmin

import (
	"fmt"

	"github.com/bureau-foundation/secmgr/lib/policystore"
)

// UserType classifies a platform user. Each concrete type has a
// template bucket holding the privileges users of that type receive.
type UserType int

const (
	UserTypeNone UserType = iota
	UserTypeSystem
	UserTypeAdmin
	UserTypeGuest
	UserTypeNormal

	// UserTypeAny is a query-side value and cannot be assigned.
	UserTypeAny

	// UserTypeEnd bounds the enumeration.
	UserTypeEnd
)

func (t UserType) String() string {
	switch t {
	case UserTypeNone:
		return "none"
	case UserTypeSystem:
		return "system"
	case UserTypeAdmin:
		return "admin"
	case UserTypeGuest:
		return "guest"
	case UserTypeNormal:
		return "normal"
	case UserTypeAny:
		return "any"
	case UserTypeEnd:
		return "end"
	default:
		return fmt.Sprintf("user_type(%d)", int(t))
	}
}

// templateBucket returns the bucket holding the privilege template for
// t. ok is false for types that cannot be assigned to a user.
func (t UserType) templateBucket() (bucket policystore.Bucket, ok bool) {
	switch t {
	case UserTypeSystem:
		return policystore.BucketUserTypeSystem, true
	case UserTypeAdmin:
		return policystore.BucketUserTypeAdmin, true
	case UserTypeGuest:
		return policystore.BucketUserTypeGuest, true
	case UserTypeNormal:
		return policystore.BucketUserTypeNormal, true
	default:
		return 0, false
	}
}
