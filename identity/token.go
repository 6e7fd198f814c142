// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"encoding/json"
	"fmt"
	"time"
)

// AccessToken is an oauth access_token.
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token.
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token.
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token.
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// RefreshToken is an oauth refresh_token.
type RefreshToken string

// RedactedRefreshToken is the redacted string or json for an oauth refresh_token.
const RedactedRefreshToken = "[REDACTED: refresh_token]"

// String will redact the token.
func (t RefreshToken) String() string {
	return RedactedRefreshToken
}

// MarshalJSON will redact the token.
func (t RefreshToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedRefreshToken)
}

// IDToken is an oidc id_token.
type IDToken string

// RedactedIDToken is the redacted string or json for an oidc id_token.
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token.
func (t IDToken) String() string {
	return RedactedIDToken
}

// MarshalJSON will redact the token.
func (t IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIDToken)
}

// Claims unmarshals the IDToken's payload claims. The signature is not
// checked; only verified tokens should be handed to it.
func (t IDToken) Claims(claims interface{}) error {
	const op = "identity.(IDToken).Claims"
	if len(t) == 0 {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	return unmarshalClaims(string(t), claims)
}

// expirySkew is how close to its expiry a token is still treated as expired,
// allowing for clock skew and request latency.
const expirySkew = 10 * time.Second

// Token is an access token retrieved from the session's token cache by
// GetToken. The refresh token, if any, never leaves the session cache.
type Token struct {
	// AccessToken is the bearer token for the logged in user. Its String()
	// and json representations are redacted; callers needing the raw value
	// must convert it with string().
	AccessToken AccessToken

	// TokenType is the access token's type, commonly "Bearer".
	TokenType string

	// Expiry is when the access token expires. A zero value means the
	// provider reported no expiry.
	Expiry time.Time
}

// Expired reports whether the token is within expirySkew of its expiry. A
// token without an expiry never expires.
func (t *Token) Expired() bool {
	if t.Expiry.IsZero() {
		return false
	}
	return t.Expiry.Round(0).Before(time.Now().Add(expirySkew))
}

// Valid reports whether the token exists, has an access token and is not
// expired.
func (t *Token) Valid() bool {
	if t == nil {
		return false
	}
	if t.AccessToken == "" {
		return false
	}
	return !t.Expired()
}
