// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import "context"

// PropsContextKey is the request-context key under which the bearer-token
// middleware stores the session Props.
type PropsContextKey struct{}

// WithProps stores props in the context. A nil props leaves ctx unchanged.
func WithProps(ctx context.Context, props *Props) context.Context {
	if props == nil {
		return ctx
	}
	return context.WithValue(ctx, PropsContextKey{}, props)
}

// PropsFromContext retrieves the Props stored by WithProps.
func PropsFromContext(ctx context.Context) (*Props, bool) {
	props, ok := ctx.Value(PropsContextKey{}).(*Props)
	return props, ok && props != nil
}
