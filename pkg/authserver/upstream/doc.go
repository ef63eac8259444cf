// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package upstream talks to the upstream identity provider on behalf of the
authorization relay.

It contains three small, independent pieces that the relay drives in a fixed
order during one authorization attempt:

  - RedirectBuilder constructs the upstream authorization URL. It is a pure
    function of its configuration and the opaque state it is given.
  - TokenExchanger trades the authorization code for a bearer token with a
    single form-encoded POST.
  - ClaimsFetcher reads subject, name and email from the userinfo endpoint.

Failures of the exchanger and the fetcher are returned as *Error values that
carry a ready-to-write HTTP response (status and body), so the relay can hand
them back to the end user unchanged. None of these components retry.

Discover resolves missing endpoints from an OIDC issuer at startup. It is the
only place in this package that retries, and it never runs on the request
path.
*/
package upstream
