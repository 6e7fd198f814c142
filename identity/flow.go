// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

const (
	flowAuthorizationCode = "authorization_code"
	flowDeviceCode        = "device_code"
)

// DefaultFlowExpiry defines how long an in-flight login flow stays usable
// between its two legs before CompleteLogIn refuses it.
const DefaultFlowExpiry = 10 * time.Minute

// DefaultFlowExpirySkew defines a default time skew when checking a flow's
// expiration.
const DefaultFlowExpirySkew = 1 * time.Second

// authFlow is the in-flight state of a login between its two legs,
// serialized into the session under SessionKeyAuthFlow. A flow uniquely
// represents one login attempt; its State and Nonce tie the authorization
// response and the issued id_token back to this session, preventing CSRF and
// replay (see the oidc spec for specifics).
type authFlow struct {
	// Kind is the flow's grant: flowAuthorizationCode or flowDeviceCode.
	Kind string `json:"kind"`

	// State is an opaque value used to maintain state between the request
	// and the callback of an authorization code flow. State cannot equal
	// the Nonce.
	State string `json:"state,omitempty"`

	// Nonce associates this session with the id_token the provider will
	// issue. Nonce cannot equal the State.
	Nonce string `json:"nonce,omitempty"`

	// PKCEVerifier is the code verifier whose S256 challenge was sent on
	// the authorization request.
	PKCEVerifier string `json:"pkce_verifier,omitempty"`

	// RedirectURI is the redirect the authorization request was issued
	// with; the token exchange must repeat it.
	RedirectURI string `json:"redirect_uri,omitempty"`

	// DeviceCode through Interval mirror the provider's device
	// authorization response for a device flow.
	DeviceCode              string `json:"device_code,omitempty"`
	UserCode                string `json:"user_code,omitempty"`
	VerificationURI         string `json:"verification_uri,omitempty"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	Interval                int64  `json:"interval,omitempty"`

	// Scopes are the scopes requested for this login, "openid" included.
	Scopes []string `json:"scopes,omitempty"`

	// Expiration is absolute. For device flows it is the provider's
	// expiry; for authorization code flows it defaults to
	// DefaultFlowExpiry from the time LogIn stored the flow.
	Expiration time.Time `json:"expiration"`
}

// IsExpired returns true if the flow has expired. Supports the
// WithExpirySkew and WithNow options; without them it uses
// DefaultFlowExpirySkew and the wall clock.
func (f *authFlow) IsExpired(opt ...Option) bool {
	opts := getFlowOpts(opt...)
	return f.Expiration.Before(opts.withNowFunc().Add(opts.withExpirySkew))
}

// deviceAuthResponse rebuilds the provider's device authorization response
// for the token polling call. The stored absolute Expiration is carried over
// directly, instead of round-tripping through the response type's relative
// expires_in encoding.
func (f *authFlow) deviceAuthResponse() *oauth2.DeviceAuthResponse {
	return &oauth2.DeviceAuthResponse{
		DeviceCode:              f.DeviceCode,
		UserCode:                f.UserCode,
		VerificationURI:         f.VerificationURI,
		VerificationURIComplete: f.VerificationURIComplete,
		Interval:                f.Interval,
		Expiry:                  f.Expiration,
	}
}

// loadAuthFlow reads the in-flight flow from the session. It returns
// ErrNoAuthFlow when the session holds none.
func loadAuthFlow(s Session) (*authFlow, error) {
	const op = "identity.loadAuthFlow"
	var f authFlow
	ok, err := sessionGetJSON(s, SessionKeyAuthFlow, &f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrNoAuthFlow)
	}
	return &f, nil
}

// saveAuthFlow stores the flow in the session, replacing any in-flight flow.
func saveAuthFlow(s Session, f *authFlow) error {
	const op = "identity.saveAuthFlow"
	if err := sessionPutJSON(s, SessionKeyAuthFlow, f); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// flowOptions is the set of available options for flow functions.
type flowOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

// flowDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func flowDefaults() flowOptions {
	return flowOptions{
		withExpirySkew: DefaultFlowExpirySkew,
		withNowFunc:    time.Now,
	}
}

// getFlowOpts gets the flow defaults and applies the opt overrides passed
// in.
func getFlowOpts(opt ...Option) flowOptions {
	opts := flowDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithExpirySkew provides an optional expiry skew for a flow's expiration
// check.
//
// Valid for: flow expiration checks
func WithExpirySkew(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok {
			o.withExpirySkew = d
		}
	}
}
