// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policyadmin

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/bureau-foundation/secmgr/lib/policystore"
)

// Config holds the parameters for creating a Client.
type Config struct {
	// API is an open administrative handle. The Client takes
	// ownership and finishes it on Close. Required.
	API policystore.AdminAPI

	// Logger receives operational messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Client is the administrative client. Create one with New and release
// it with Close.
type Client struct {
	api    policystore.AdminAPI
	logger *slog.Logger

	// descriptionsMu guards the description table below. Lookups
	// vastly outnumber refreshes.
	descriptionsMu     *xsync.RBMutex
	descriptionsLoaded bool
	codeToName         map[policystore.ResultType]string
	nameToCode         map[string]policystore.ResultType

	closed bool
}

// New creates a Client over cfg.API.
func New(cfg Config) (*Client, error) {
	if cfg.API == nil {
		return nil, errors.New("policyadmin: API is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		api:            cfg.API,
		logger:         logger,
		descriptionsMu: xsync.NewRBMutex(),
		codeToName:     make(map[policystore.ResultType]string),
		nameToCode:     make(map[string]policystore.ResultType),
	}, nil
}

// Close finishes the administrative handle. Calling Close more than
// once is a no-op.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if err := policystore.Check(c.api.Finish(), "finishing admin handle"); err != nil {
		return fmt.Errorf("policyadmin: %w", err)
	}
	return nil
}

// SetPolicies sends rules to the store as one atomic batch. An empty
// batch is logged and not sent.
func (c *Client) SetPolicies(rules []policystore.Rule) error {
	if len(rules) == 0 {
		c.logger.Debug("no policies to set")
		return nil
	}

	c.logger.Debug("sending policies", "count", len(rules))
	for i, rule := range rules {
		c.logger.Debug("policy",
			"index", i,
			"bucket", rule.Bucket,
			"client", rule.Client,
			"user", rule.User,
			"privilege", rule.Privilege,
			"result", rule.Result.String(),
		)
	}

	return policystore.Check(c.api.SetPolicies(rules), "updating policy")
}

// DiffPrivileges returns the MANIFESTS rules that turn the grants in
// oldPrivileges into those in newPrivileges for (label, user). Both
// lists must be sorted and free of duplicates. Privileges present in
// both produce nothing; the result is ordered as a merge of the two
// inputs, with the residue of oldPrivileges before that of
// newPrivileges.
func DiffPrivileges(label, user string, oldPrivileges, newPrivileges []string) []policystore.Rule {
	var rules []policystore.Rule

	manifests := policystore.BucketManifests.Name()
	rule := func(privilege string, result policystore.Result) policystore.Rule {
		return policystore.Rule{
			Bucket:    manifests,
			Client:    label,
			User:      user,
			Privilege: privilege,
			Result:    result,
		}
	}

	oldIndex, newIndex := 0, 0
	for oldIndex < len(oldPrivileges) && newIndex < len(newPrivileges) {
		oldPrivilege, newPrivilege := oldPrivileges[oldIndex], newPrivileges[newIndex]
		switch {
		case oldPrivilege == newPrivilege:
			oldIndex++
			newIndex++
		case oldPrivilege < newPrivilege:
			rules = append(rules, rule(oldPrivilege, policystore.Delete()))
			oldIndex++
		default:
			rules = append(rules, rule(newPrivilege, policystore.Allow()))
			newIndex++
		}
	}
	for _, privilege := range oldPrivileges[oldIndex:] {
		rules = append(rules, rule(privilege, policystore.Delete()))
	}
	for _, privilege := range newPrivileges[newIndex:] {
		rules = append(rules, rule(privilege, policystore.Allow()))
	}

	return rules
}

// UpdateAppPolicy replaces the MANIFESTS grants of (label, user) from
// oldPrivileges to newPrivileges with one batch. When the lists are
// equal no call is made.
func (c *Client) UpdateAppPolicy(label, user string, oldPrivileges, newPrivileges []string) error {
	rules := DiffPrivileges(label, user, oldPrivileges, newPrivileges)
	for _, rule := range rules {
		c.logger.Debug("privilege change",
			"label", label,
			"user", user,
			"privilege", rule.Privilege,
			"result", rule.Result.String(),
		)
	}
	return c.SetPolicies(rules)
}

// userName renders a uid the way the store expects users.
func userName(uid uint32) string {
	return strconv.FormatUint(uint64(uid), 10)
}

// UserInit redirects uid in MAIN to the template bucket for userType.
// Types without a template fail with StatusInvalidParam.
func (c *Client) UserInit(uid uint32, userType UserType) error {
	bucket, ok := userType.templateBucket()
	if !ok {
		return &policystore.Error{
			Status:  policystore.StatusInvalidParam,
			Message: fmt.Sprintf("user type %s cannot be assigned", userType),
		}
	}

	return c.SetPolicies([]policystore.Rule{{
		Bucket:    policystore.BucketMain.Name(),
		Client:    policystore.Wildcard,
		User:      userName(uid),
		Privilege: policystore.Wildcard,
		Result:    policystore.RedirectTo(bucket.Name()),
	}})
}

// UserRemove erases the rules for uid from the default bucket and,
// recursively, the buckets it redirects to. It does not target the
// MAIN redirect installed by UserInit; whether that redirect survives
// is up to the store's recursive erase.
func (c *Client) UserRemove(uid uint32) error {
	return c.EmptyBucket(policystore.BucketPrivacyManager.Name(), true,
		policystore.Any, userName(uid), policystore.Any)
}

// ListUsers returns the uids that have a user-type redirect in MAIN,
// in the store's order. Entries whose user is not a decimal uid are
// logged and skipped.
func (c *Client) ListUsers() ([]uint32, error) {
	rules, err := c.ListPolicies(policystore.BucketMain.Name(),
		policystore.Wildcard, policystore.Any, policystore.Wildcard)
	if err != nil {
		return nil, err
	}

	users := []uint32{}
	for _, rule := range rules {
		if rule.User == policystore.Wildcard {
			continue
		}
		uid, err := strconv.ParseUint(rule.User, 10, 32)
		if err != nil {
			c.logger.Error("invalid uid in MAIN bucket", "user", rule.User, "error", err)
			continue
		}
		users = append(users, uint32(uid))
	}
	c.logger.Debug("found users", "count", len(users))
	return users, nil
}

// ListPolicies returns the rules in bucket matching the filter. Use
// policystore.Any to leave a field unconstrained.
func (c *Client) ListPolicies(bucket, client, user, privilege string) ([]policystore.Rule, error) {
	rules, status := c.api.ListPolicies(bucket, client, user, privilege)
	if err := policystore.Check(status, "listing policies in bucket "+bucketLabel(bucket)); err != nil {
		return nil, err
	}
	return rules, nil
}

// EmptyBucket erases the rules in bucket matching the filter, and with
// recursive set, in every bucket reachable from it.
func (c *Client) EmptyBucket(bucket string, recursive bool, client, user, privilege string) error {
	return policystore.Check(c.api.Erase(bucket, recursive, client, user, privilege),
		fmt.Sprintf("emptying bucket %s, filter (%s, %s, %s)", bucketLabel(bucket), client, user, privilege))
}

// Check asks the store what (label, user, privilege) evaluates to
// starting in bucket. Without recursive, a redirect comes back as a
// ResultBucket result naming its target.
func (c *Client) Check(label, user, privilege, bucket string, recursive bool) (policystore.Result, error) {
	result, status := c.api.Check(bucket, recursive, label, user, privilege)
	if err := policystore.Check(status, fmt.Sprintf(
		"checking label %s, user %s, privilege %s in bucket %s", label, user, privilege, bucketLabel(bucket))); err != nil {
		return policystore.Result{}, err
	}
	return result, nil
}

// PrivilegeManagerCurrLevel returns the level currently in effect for
// (label, user, privilege), user preferences included.
func (c *Client) PrivilegeManagerCurrLevel(label, user, privilege string) (policystore.ResultType, error) {
	result, err := c.Check(label, user, privilege, policystore.BucketPrivacyManager.Name(), true)
	if err != nil {
		return 0, err
	}
	return result.Type, nil
}

// PrivilegeManagerMaxLevel returns the most permissive level a user
// preference could reach for (label, user, privilege): the answer
// without the default bucket's rules.
func (c *Client) PrivilegeManagerMaxLevel(label, user, privilege string) (policystore.ResultType, error) {
	result, err := c.Check(label, user, privilege, policystore.BucketMain.Name(), true)
	if err != nil {
		return 0, err
	}
	return result.Type, nil
}

func bucketLabel(bucket string) string {
	if bucket == "" {
		return policystore.BucketPrivacyManager.String()
	}
	return bucket
}
