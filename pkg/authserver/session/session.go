// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session provides the fosite session stored with every grant the
// relay issues. It carries the upstream identity (Props) so that bearer
// tokens presented to the MCP endpoint resolve back to the user.
package session

import (
	"maps"
	"time"

	"github.com/ory/fosite"

	"github.com/stacklok/mcp-authrelay/pkg/auth"
)

// Session is a fosite.Session with the relay's identity properties attached.
type Session struct {
	*fosite.DefaultSession

	// Label is the display label recorded with the grant.
	Label string `json:"label,omitempty"`

	// Props is the identity bundle handed to tool handlers.
	Props auth.Props `json:"props"`
}

// New creates a session for subject. An empty subject is valid for sessions
// used only as deserialization templates.
func New(subject, label string, props auth.Props) *Session {
	return &Session{
		DefaultSession: &fosite.DefaultSession{
			Subject:   subject,
			Username:  label,
			ExpiresAt: make(map[fosite.TokenType]time.Time),
		},
		Label: label,
		Props: props,
	}
}

// Clone returns a deep copy that keeps the concrete type, which fosite
// relies on when it re-reads sessions from storage.
func (s *Session) Clone() fosite.Session {
	if s == nil {
		return nil
	}
	clone := &Session{
		DefaultSession: &fosite.DefaultSession{},
		Label:          s.Label,
		Props:          s.Props,
	}
	if s.DefaultSession != nil {
		clone.Subject = s.Subject
		clone.Username = s.Username
		clone.ExpiresAt = maps.Clone(s.ExpiresAt)
		clone.Extra = maps.Clone(s.Extra)
	}
	if clone.ExpiresAt == nil {
		clone.ExpiresAt = make(map[fosite.TokenType]time.Time)
	}
	return clone
}

// FromRequester extracts the relay session from a fosite requester.
func FromRequester(r fosite.Requester) (*Session, bool) {
	if r == nil {
		return nil, false
	}
	sess, ok := r.GetSession().(*Session)
	return sess, ok && sess != nil
}
