// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"net/http"
	"net/url"
	"slices"

	"github.com/ory/fosite"
)

// ErrInvalidTarget is the RFC 8707 error for an invalid or unknown resource
// parameter.
var ErrInvalidTarget = &fosite.RFC6749Error{
	ErrorField:       "invalid_target",
	DescriptionField: "The requested resource is invalid, unknown, or malformed.",
	CodeField:        http.StatusBadRequest,
}

// validateResource checks an RFC 8707 resource parameter: an absolute
// http(s) URI with a host and no fragment, naming one of allowed. An empty
// resource requests no audience binding.
func validateResource(resource string, allowed []string) error {
	if resource == "" {
		return nil
	}

	parsed, err := url.Parse(resource)
	switch {
	case err != nil:
		return ErrInvalidTarget.WithHintf("Resource parameter is not a valid URI: %s", err.Error())
	case !parsed.IsAbs():
		return ErrInvalidTarget.WithHint("Resource must be an absolute URI")
	case parsed.Host == "":
		return ErrInvalidTarget.WithHint("Resource must include a host")
	case parsed.Fragment != "":
		return ErrInvalidTarget.WithHint("Resource must not contain a fragment")
	case parsed.Scheme != "http" && parsed.Scheme != "https":
		return ErrInvalidTarget.WithHint("Resource must use http or https scheme")
	}

	if !slices.Contains(allowed, resource) {
		return ErrInvalidTarget.WithHintf("Resource %q is not served by this authorization server", resource)
	}
	return nil
}

// audienceAllows reports whether a token granted for audience may be used at
// resource. A token bound to no audience is accepted anywhere on this server.
func audienceAllows(audience []string, resource string) bool {
	return len(audience) == 0 || slices.Contains(audience, resource)
}
