// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"slices"
	"strings"
)

// Capability returns the names of the gated tools enabled for an identity.
// Tools that are not gated are always available and never appear here.
type Capability func(props Props) []string

// Enabled reports whether tool is in the set c returns for props.
// A nil Capability enables nothing.
func (c Capability) Enabled(props Props, tool string) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c(props), tool)
}

// NewAllowSetCapability enables tools for identities whose email is in
// emails. Comparison ignores case and surrounding whitespace.
func NewAllowSetCapability(emails []string, tools ...string) Capability {
	allowed := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = normalizeEmail(e); e != "" {
			allowed[e] = struct{}{}
		}
	}
	enabled := slices.Clone(tools)

	return func(props Props) []string {
		email := normalizeEmail(props.Email)
		if email == "" {
			return nil
		}
		if _, ok := allowed[email]; !ok {
			return nil
		}
		return enabled
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
