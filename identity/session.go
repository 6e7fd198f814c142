// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"encoding/json"
	"fmt"
)

// Session is the minimal interface an Auth needs over the hosting
// application's per-user session store. Values are opaque strings; this
// package only ever stores JSON encoded blobs, so any backend that can
// round-trip strings (cookie stores, server side stores, etc) will work.
//
// A Session is expected to be used from a single request's goroutine, which
// matches the model of common web session middleware. The Auth itself is safe
// for concurrent use across many sessions.
type Session interface {
	// Get returns the value stored under key and whether it was present.
	Get(key string) (string, bool)

	// Set stores value under key, replacing any existing value.
	Set(key, value string)

	// Delete removes key from the session. Deleting an absent key is a
	// no-op.
	Delete(key string)
}

// Reserved session keys. Applications sharing a Session with an Auth must
// treat these keys as reserved. The names are part of the stored data's
// contract and remain stable across releases, so existing sessions survive an
// upgrade.
const (
	// SessionKeyTokenCache holds the serialized token cache for the
	// logged in user.
	SessionKeyTokenCache = "_token_cache"

	// SessionKeyAuthFlow holds the serialized in-flight authentication
	// flow between the two legs of a login.
	SessionKeyAuthFlow = "_auth_flow"

	// SessionKeyLoggedInUser holds the validated ID token claims of the
	// logged in user.
	SessionKeyLoggedInUser = "_logged_in_user"
)

// sessionPutJSON marshals v and stores it in the session under key.
func sessionPutJSON(s Session, key string, v interface{}) error {
	const op = "identity.sessionPutJSON"
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: unable to marshal session value for %q: %w", op, key, err)
	}
	s.Set(key, string(b))
	return nil
}

// sessionGetJSON reads key from the session and unmarshals it into v. It
// returns false without error when the key is absent or empty.
func sessionGetJSON(s Session, key string, v interface{}) (bool, error) {
	const op = "identity.sessionGetJSON"
	raw, ok := s.Get(key)
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("%s: unable to unmarshal session value for %q: %w", op, key, err)
	}
	return true, nil
}
