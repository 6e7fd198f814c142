// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

var (
	ErrInvalidParameter      = errors.New("invalid parameter")
	ErrNilParameter          = errors.New("nil parameter")
	ErrInvalidCACert         = errors.New("invalid CA certificate")
	ErrIDGeneratorFailed     = errors.New("id generation failed")
	ErrNoAuthFlow            = errors.New("no authentication flow in progress")
	ErrMissingIDToken        = errors.New("id_token is missing")
	ErrInvalidNonce          = errors.New("invalid nonce")
	ErrInvalidAudience       = errors.New("invalid audience")
	ErrNoCurrentUser         = errors.New("no currently logged in user")
	ErrNoTokenCache          = errors.New("no token cache in the session")
	ErrDeviceFlowUnsupported = errors.New("device authorization flow is not supported by the provider")
)

// AuthErrorResponse represents an error reported by the provider during an
// authentication flow: an error sent back on the authorization response, an
// error from the token endpoint, or a pending/expired device authorization.
// It is returned as the error from CompleteLogIn and GetToken so callers can
// branch on the provider's error code (via errors.As) instead of treating
// every failed leg as fatal.
type AuthErrorResponse struct {
	// Code is the provider's error code (examples: "access_denied",
	// "invalid_grant", "authorization_pending", "expired_token").
	Code string `json:"error"`

	// Description is the provider's optional human readable
	// error_description.
	Description string `json:"error_description,omitempty"`

	// Uri is the provider's optional error_uri with more information about
	// the error.
	Uri string `json:"error_uri,omitempty"`
}

// Error implements the error interface.
func (e *AuthErrorResponse) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// asAuthErrorResponse converts a token endpoint rejection into the
// provider's error response, when the rejection carried a parseable error
// code. Transport level failures and unparseable responses report false and
// are propagated by callers as ordinary errors.
func asAuthErrorResponse(err error) (*AuthErrorResponse, bool) {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.ErrorCode != "" {
		return &AuthErrorResponse{
			Code:        rErr.ErrorCode,
			Description: rErr.ErrorDescription,
			Uri:         rErr.ErrorURI,
		}, true
	}
	return nil, false
}
