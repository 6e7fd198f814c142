// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Claims are the validated claims of the logged in user's ID token, as stored
// in the session by a successful CompleteLogIn. Readers always receive a
// fresh copy decoded from the session, so mutating a Claims value never
// changes what the session holds.
type Claims map[string]interface{}

// Subject returns the "sub" claim, or an empty string when absent.
func (c Claims) Subject() string {
	return c.StringClaim("sub")
}

// Issuer returns the "iss" claim, or an empty string when absent.
func (c Claims) Issuer() string {
	return c.StringClaim("iss")
}

// PreferredUsername returns the "preferred_username" claim, or an empty
// string when absent.
func (c Claims) PreferredUsername() string {
	return c.StringClaim("preferred_username")
}

// Email returns the "email" claim, or an empty string when absent.
func (c Claims) Email() string {
	return c.StringClaim("email")
}

// StringClaim returns the named claim when it is a string, or an empty string
// otherwise.
func (c Claims) StringClaim(name string) string {
	if c == nil {
		return ""
	}
	if v, ok := c[name].(string); ok {
		return v
	}
	return ""
}

// Audience returns the "aud" claim. The claim may arrive as either a single
// JSON string or an array of strings; both forms are returned as a slice.
func (c Claims) Audience() []string {
	if c == nil {
		return nil
	}
	switch v := c["aud"].(type) {
	case string:
		return []string{v}
	case []interface{}:
		auds := make([]string, 0, len(v))
		for _, a := range v {
			if s, ok := a.(string); ok {
				auds = append(auds, s)
			}
		}
		return auds
	case []string:
		return v
	default:
		return nil
	}
}

// Expiration returns the "exp" claim as a time. The second return value
// reports whether the claim was present and a number.
func (c Claims) Expiration() (time.Time, bool) {
	return c.numericDate("exp")
}

// IssuedAt returns the "iat" claim as a time. The second return value reports
// whether the claim was present and a number.
func (c Claims) IssuedAt() (time.Time, bool) {
	return c.numericDate("iat")
}

// AuthTime returns the "auth_time" claim as a time. The second return value
// reports whether the claim was present and a number.
func (c Claims) AuthTime() (time.Time, bool) {
	return c.numericDate("auth_time")
}

// unmarshalClaims will retrieve the claims from the provided raw JWT token
// without verifying its signature.
func unmarshalClaims(rawToken string, claims interface{}) error {
	const op = "identity.unmarshalClaims"
	parts := strings.Split(rawToken, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%s: malformed jwt, expected 3 parts got %d: %w", op, len(parts), ErrInvalidParameter)
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("%s: malformed jwt claims: %w", op, err)
	}
	if err := json.Unmarshal(raw, claims); err != nil {
		return fmt.Errorf("%s: unable to unmarshal jwt JSON: %w", op, err)
	}
	return nil
}

// numericDate reads a NumericDate claim (seconds since the unix epoch).
// Decoding JSON into an interface produces float64 values, but json.Number
// and integer types are handled as well for claims built in code.
func (c Claims) numericDate(name string) (time.Time, bool) {
	if c == nil {
		return time.Time{}, false
	}
	switch v := c[name].(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(n, 0), true
	case int64:
		return time.Unix(v, 0), true
	case int:
		return time.Unix(int64(v), 0), true
	default:
		return time.Time{}, false
	}
}
