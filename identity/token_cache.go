// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// tokenCache is the serialized per-session token cache, stored under
// SessionKeyTokenCache. The tokens are held verbatim: the session store is
// the trusted owner of the user's credentials, and the blob must survive a
// JSON round-trip intact. Redaction only applies to the exported types that
// leave the session.
type tokenCache struct {
	AccessToken  string    `json:"access_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
}

// newTokenCache builds a cache entry from a token response, capturing the
// id_token extra when the provider sent one.
func newTokenCache(t *oauth2.Token) *tokenCache {
	tc := &tokenCache{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
	if idToken, ok := t.Extra("id_token").(string); ok {
		tc.IDToken = idToken
	}
	return tc
}

// token converts the cache entry back into a token usable as a refresh seed
// for an oauth2.TokenSource.
func (tc *tokenCache) token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  tc.AccessToken,
		TokenType:    tc.TokenType,
		RefreshToken: tc.RefreshToken,
		Expiry:       tc.Expiry,
	}
}

// update applies a token returned by a TokenSource and reports whether the
// cache changed and needs to be re-saved. A refresh response without a
// rotated refresh_token or id_token keeps the cached ones.
func (tc *tokenCache) update(t *oauth2.Token) bool {
	changed := false
	if t.AccessToken != "" && t.AccessToken != tc.AccessToken {
		tc.AccessToken = t.AccessToken
		changed = true
	}
	if t.TokenType != "" && t.TokenType != tc.TokenType {
		tc.TokenType = t.TokenType
		changed = true
	}
	if t.RefreshToken != "" && t.RefreshToken != tc.RefreshToken {
		tc.RefreshToken = t.RefreshToken
		changed = true
	}
	if !t.Expiry.Equal(tc.Expiry) {
		tc.Expiry = t.Expiry
		changed = true
	}
	if idToken, ok := t.Extra("id_token").(string); ok && idToken != "" && idToken != tc.IDToken {
		tc.IDToken = idToken
		changed = true
	}
	return changed
}

// expired reports whether the cached access token is within expirySkew of
// its expiry. A zero expiry never expires.
func (tc *tokenCache) expired() bool {
	if tc.Expiry.IsZero() {
		return false
	}
	return tc.Expiry.Round(0).Before(time.Now().Add(expirySkew))
}

// loadTokenCache reads the session's token cache. It returns (nil, nil) when
// the session holds none.
func loadTokenCache(s Session) (*tokenCache, error) {
	const op = "identity.loadTokenCache"
	var tc tokenCache
	ok, err := sessionGetJSON(s, SessionKeyTokenCache, &tc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, nil
	}
	return &tc, nil
}

// saveTokenCache stores the token cache in the session.
func saveTokenCache(s Session, tc *tokenCache) error {
	const op = "identity.saveTokenCache"
	if err := sessionPutJSON(s, SessionKeyTokenCache, tc); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
