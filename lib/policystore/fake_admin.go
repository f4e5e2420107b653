// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policystore

import (
	"slices"
	"sync"
)

// NewFakeAdmin returns a FakeAdmin seeded with the security manager's
// bucket layout:
//
//	PRIVACY_MANAGER  default allow, * * * → MAIN
//	MAIN             default deny,  * * * → MANIFESTS
//	MANIFESTS        default deny
//	USER_TYPE_*      default deny
//	ADMIN            default none
//
// and the two descriptions every store advertises (Deny and Allow).
func NewFakeAdmin() *FakeAdmin {
	fake := &FakeAdmin{
		buckets:  make(map[string]*fakeBucket),
		failures: make(map[string]Status),
		descriptions: []PolicyDescription{
			{Code: ResultDeny, Name: "Deny"},
			{Code: ResultAllow, Name: "Allow"},
		},
	}

	defaults := map[Bucket]ResultType{
		BucketPrivacyManager: ResultAllow,
		BucketMain:           ResultDeny,
		BucketManifests:      ResultDeny,
		BucketUserTypeAdmin:  ResultDeny,
		BucketUserTypeNormal: ResultDeny,
		BucketUserTypeGuest:  ResultDeny,
		BucketUserTypeSystem: ResultDeny,
		BucketAdmin:          ResultNone,
	}
	for _, bucket := range Buckets() {
		fake.AddBucket(bucket.Name(), defaults[bucket])
	}

	fake.buckets[BucketPrivacyManager.Name()].put(Rule{
		Bucket: BucketPrivacyManager.Name(), Client: Wildcard, User: Wildcard, Privilege: Wildcard,
		Result: RedirectTo(BucketMain.Name()),
	})
	fake.buckets[BucketMain.Name()].put(Rule{
		Bucket: BucketMain.Name(), Client: Wildcard, User: Wildcard, Privilege: Wildcard,
		Result: RedirectTo(BucketManifests.Name()),
	})

	return fake
}

// FakeAdmin is an in-memory AdminAPI. It evaluates checks with a
// simplified version of the store's algorithm: the most specific
// matching rule wins (fewest wildcards, then the lowest result code),
// redirects are followed when recursive, and a bucket with no match
// answers with its default.
//
// FakeAdmin is safe for concurrent use so tests can inspect it while a
// client is running.
type FakeAdmin struct {
	mu           sync.Mutex
	buckets      map[string]*fakeBucket
	descriptions []PolicyDescription
	failures     map[string]Status
	batches      [][]Rule
	calls        map[string]int
	finished     int
}

type fakeBucket struct {
	defaultResult ResultType
	rules         []Rule
}

// put inserts or replaces the rule with the same key.
func (b *fakeBucket) put(rule Rule) {
	for i := range b.rules {
		if sameKey(b.rules[i], rule) {
			b.rules[i] = rule
			return
		}
	}
	b.rules = append(b.rules, rule)
}

func (b *fakeBucket) remove(rule Rule) {
	b.rules = slices.DeleteFunc(b.rules, func(existing Rule) bool {
		return sameKey(existing, rule)
	})
}

func sameKey(a, b Rule) bool {
	return a.Client == b.Client && a.User == b.User && a.Privilege == b.Privilege
}

// filterMatches implements list/erase filter semantics: Any matches
// everything, any other value (the wildcard included) is literal.
func filterMatches(filter, value string) bool {
	return filter == Any || filter == value
}

// checkMatches implements check semantics: a stored wildcard matches
// every value.
func checkMatches(stored, value string) bool {
	return stored == Wildcard || stored == value
}

// AddBucket creates a bucket with the given default result. An
// existing bucket keeps its rules and only has its default replaced.
func (f *FakeAdmin) AddBucket(name string, defaultResult ResultType) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if bucket, exists := f.buckets[name]; exists {
		bucket.defaultResult = defaultResult
		return
	}
	f.buckets[name] = &fakeBucket{defaultResult: defaultResult}
}

// Fail makes every subsequent call to method ("SetPolicies",
// "ListPolicies", "Erase", "Check", "ListPoliciesDescriptions",
// "Finish") return status without side effects. Pass StatusSuccess to
// clear the failure.
func (f *FakeAdmin) Fail(method string, status Status) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if status == StatusSuccess {
		delete(f.failures, method)
		return
	}
	f.failures[method] = status
}

// SetDescriptions replaces the description list.
func (f *FakeAdmin) SetDescriptions(descriptions []PolicyDescription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descriptions = slices.Clone(descriptions)
}

// Batches returns every batch accepted by SetPolicies, in order.
func (f *FakeAdmin) Batches() [][]Rule {
	f.mu.Lock()
	defer f.mu.Unlock()

	batches := make([][]Rule, len(f.batches))
	for i, batch := range f.batches {
		batches[i] = slices.Clone(batch)
	}
	return batches
}

// Rules returns the rules currently stored in bucket.
func (f *FakeAdmin) Rules(bucket string) []Rule {
	f.mu.Lock()
	defer f.mu.Unlock()

	if stored, exists := f.buckets[bucket]; exists {
		return slices.Clone(stored.rules)
	}
	return nil
}

// Calls returns how many times method was invoked, failed calls
// included.
func (f *FakeAdmin) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Finished returns how many times Finish was called.
func (f *FakeAdmin) Finished() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished
}

// enter records a call and returns the injected failure for method,
// if any. Callers hold f.mu.
func (f *FakeAdmin) enter(method string) (Status, bool) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[method]++
	status, failing := f.failures[method]
	return status, failing
}

func (f *FakeAdmin) SetPolicies(rules []Rule) Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	if status, failing := f.enter("SetPolicies"); failing {
		return status
	}

	// Validate the whole batch before applying any of it.
	for _, rule := range rules {
		if _, exists := f.buckets[rule.Bucket]; !exists {
			return StatusBucketNotFound
		}
		if rule.Client == Any || rule.User == Any || rule.Privilege == Any {
			return StatusInvalidParam
		}
		if rule.Result.Type == ResultBucket {
			if _, exists := f.buckets[rule.Result.Bucket]; !exists {
				return StatusBucketNotFound
			}
		}
	}

	for _, rule := range rules {
		bucket := f.buckets[rule.Bucket]
		if rule.Result.Type == ResultDelete {
			bucket.remove(rule)
			continue
		}
		bucket.put(rule)
	}

	f.batches = append(f.batches, slices.Clone(rules))
	return StatusSuccess
}

func (f *FakeAdmin) ListPolicies(bucket, client, user, privilege string) ([]Rule, Status) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if status, failing := f.enter("ListPolicies"); failing {
		return nil, status
	}

	stored, exists := f.buckets[bucket]
	if !exists {
		return nil, StatusBucketNotFound
	}

	var matched []Rule
	for _, rule := range stored.rules {
		if filterMatches(client, rule.Client) && filterMatches(user, rule.User) &&
			filterMatches(privilege, rule.Privilege) {
			matched = append(matched, rule)
		}
	}
	return matched, StatusSuccess
}

func (f *FakeAdmin) Erase(bucket string, recursive bool, client, user, privilege string) Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	if status, failing := f.enter("Erase"); failing {
		return status
	}

	if _, exists := f.buckets[bucket]; !exists {
		return StatusBucketNotFound
	}
	f.erase(bucket, recursive, client, user, privilege, make(map[string]bool))
	return StatusSuccess
}

func (f *FakeAdmin) erase(bucketName string, recursive bool, client, user, privilege string, visited map[string]bool) {
	if visited[bucketName] {
		return
	}
	visited[bucketName] = true

	bucket, exists := f.buckets[bucketName]
	if !exists {
		return
	}

	// Collect redirect targets before erasing: the redirect rule
	// itself may match the filter.
	var targets []string
	for _, rule := range bucket.rules {
		if rule.Result.Type == ResultBucket {
			targets = append(targets, rule.Result.Bucket)
		}
	}

	bucket.rules = slices.DeleteFunc(bucket.rules, func(rule Rule) bool {
		return filterMatches(client, rule.Client) && filterMatches(user, rule.User) &&
			filterMatches(privilege, rule.Privilege)
	})

	if recursive {
		for _, target := range targets {
			f.erase(target, recursive, client, user, privilege, visited)
		}
	}
}

func (f *FakeAdmin) Check(bucket string, recursive bool, client, user, privilege string) (Result, Status) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if status, failing := f.enter("Check"); failing {
		return Result{}, status
	}

	if _, exists := f.buckets[bucket]; !exists {
		return Result{}, StatusBucketNotFound
	}
	return f.evaluate(bucket, recursive, client, user, privilege, make(map[string]bool)), StatusSuccess
}

func (f *FakeAdmin) evaluate(bucketName string, recursive bool, client, user, privilege string, visited map[string]bool) Result {
	bucket, exists := f.buckets[bucketName]
	if !exists || visited[bucketName] {
		return Deny()
	}
	visited[bucketName] = true

	var best *Rule
	bestWildcards := 4
	for i := range bucket.rules {
		rule := &bucket.rules[i]
		if !checkMatches(rule.Client, client) || !checkMatches(rule.User, user) ||
			!checkMatches(rule.Privilege, privilege) {
			continue
		}
		wildcards := 0
		for _, field := range []string{rule.Client, rule.User, rule.Privilege} {
			if field == Wildcard {
				wildcards++
			}
		}
		if best == nil || wildcards < bestWildcards ||
			(wildcards == bestWildcards && rule.Result.Type < best.Result.Type) {
			best = rule
			bestWildcards = wildcards
		}
	}

	if best == nil {
		return Level(bucket.defaultResult)
	}
	if best.Result.Type != ResultBucket || !recursive {
		return best.Result
	}

	result := f.evaluate(best.Result.Bucket, recursive, client, user, privilege, visited)
	if result.Type == ResultNone {
		return Level(bucket.defaultResult)
	}
	return result
}

func (f *FakeAdmin) ListPoliciesDescriptions() ([]PolicyDescription, Status) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if status, failing := f.enter("ListPoliciesDescriptions"); failing {
		return nil, status
	}
	return slices.Clone(f.descriptions), StatusSuccess
}

func (f *FakeAdmin) Finish() Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	if status, failing := f.enter("Finish"); failing {
		return status
	}
	f.finished++
	return StatusSuccess
}
