// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policyadmin

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/bureau-foundation/secmgr/lib/policystore"
)

// ErrUnknownPolicy reports a code or name missing from the store's
// description table.
var ErrUnknownPolicy = errors.New("policyadmin: unknown policy")

// FetchPolicyDescriptions loads the description table from the store.
// Once loaded, the table is reused unless forceRefresh is set. An empty
// answer is logged and leaves the table as it was: every store
// describes at least Allow and Deny.
func (c *Client) FetchPolicyDescriptions(forceRefresh bool) error {
	if !forceRefresh {
		token := c.descriptionsMu.RLock()
		loaded := c.descriptionsLoaded
		c.descriptionsMu.RUnlock(token)
		if loaded {
			return nil
		}
	}

	descriptions, status := c.api.ListPoliciesDescriptions()
	if err := policystore.Check(status, "listing policy descriptions"); err != nil {
		return err
	}
	if len(descriptions) == 0 {
		c.logger.Error("store returned no policy descriptions, expected at least Allow and Deny")
		return nil
	}

	c.descriptionsMu.Lock()
	defer c.descriptionsMu.Unlock()

	c.descriptionsLoaded = false
	clear(c.codeToName)
	clear(c.nameToCode)
	for _, description := range descriptions {
		c.codeToName[description.Code] = description.Name
		c.nameToCode[description.Name] = description.Code
	}
	c.descriptionsLoaded = true

	c.logger.Debug("loaded policy descriptions", "count", len(descriptions))
	return nil
}

// ListPoliciesDescriptions returns the names of every policy level the
// store knows, ordered by result code.
func (c *Client) ListPoliciesDescriptions() ([]string, error) {
	if err := c.FetchPolicyDescriptions(false); err != nil {
		return nil, err
	}

	token := c.descriptionsMu.RLock()
	defer c.descriptionsMu.RUnlock(token)

	names := make([]string, 0, len(c.codeToName))
	for _, code := range slices.Sorted(maps.Keys(c.codeToName)) {
		names = append(names, c.codeToName[code])
	}
	return names, nil
}

// PolicyDescription returns the name of result code.
func (c *Client) PolicyDescription(code policystore.ResultType, forceRefresh bool) (string, error) {
	if err := c.FetchPolicyDescriptions(forceRefresh); err != nil {
		return "", err
	}

	token := c.descriptionsMu.RLock()
	name, found := c.codeToName[code]
	c.descriptionsMu.RUnlock(token)
	if !found {
		return "", fmt.Errorf("%w: code %d", ErrUnknownPolicy, int(code))
	}
	return name, nil
}

// PolicyType returns the result code named name.
func (c *Client) PolicyType(name string, forceRefresh bool) (policystore.ResultType, error) {
	if err := c.FetchPolicyDescriptions(forceRefresh); err != nil {
		return 0, err
	}

	token := c.descriptionsMu.RLock()
	code, found := c.nameToCode[name]
	c.descriptionsMu.RUnlock(token)
	if !found {
		return 0, fmt.Errorf("%w: name %q", ErrUnknownPolicy, name)
	}
	return code, nil
}
