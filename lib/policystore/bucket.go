// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policystore

// Bucket identifies one of the well-known buckets the security
// manager maintains in the store.
type Bucket int

const (
	// BucketPrivacyManager is the store's default bucket and the entry
	// point of every lookup. User preferences live here.
	BucketPrivacyManager Bucket = iota

	// BucketMain holds manufacturer denials and the per-user
	// redirects into user-type buckets.
	BucketMain

	// BucketManifests holds the rules declared by installed packages.
	BucketManifests

	// BucketUserTypeAdmin is the privilege template for admin users.
	BucketUserTypeAdmin

	// BucketUserTypeNormal is the privilege template for normal users.
	BucketUserTypeNormal

	// BucketUserTypeGuest is the privilege template for guest users.
	BucketUserTypeGuest

	// BucketUserTypeSystem is the privilege template for system users.
	BucketUserTypeSystem

	// BucketAdmin holds administrator overrides.
	BucketAdmin
)

// bucketNames maps each well-known bucket to its name in the store.
// The default bucket's name is the empty string.
var bucketNames = [...]string{
	BucketPrivacyManager: "",
	BucketMain:           "MAIN",
	BucketManifests:      "MANIFESTS",
	BucketUserTypeAdmin:  "USER_TYPE_ADMIN",
	BucketUserTypeNormal: "USER_TYPE_NORMAL",
	BucketUserTypeGuest:  "USER_TYPE_GUEST",
	BucketUserTypeSystem: "USER_TYPE_SYSTEM",
	BucketAdmin:          "ADMIN",
}

// Name returns the bucket's name in the store. Panics on values
// outside the declared constants, which indicates a programming error.
func (b Bucket) Name() string {
	return bucketNames[b]
}

// String returns a printable name; the default bucket is rendered as
// PRIVACY_MANAGER rather than the empty string.
func (b Bucket) String() string {
	if b == BucketPrivacyManager {
		return "PRIVACY_MANAGER"
	}
	return b.Name()
}

// Buckets returns every well-known bucket in declaration order.
func Buckets() []Bucket {
	buckets := make([]Bucket, len(bucketNames))
	for i := range bucketNames {
		buckets[i] = Bucket(i)
	}
	return buckets
}
