// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/websession/identity/internal/strutils"
)

// ClientSecret is a relying party's client secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for a client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// Config represents the configuration for a relying party authenticating its
// users against an OIDC provider.
type Config struct {
	// ClientID is the relying party ID.
	ClientID string

	// ClientSecret is the relying party secret. It may be empty for public
	// clients that only use the device authorization flow.
	ClientSecret ClientSecret

	// Issuer is a case-sensitive URL string using the https scheme that
	// contains scheme, host, and optionally, port number and path
	// components and no query or fragment components. The provider's
	// discovery document and endpoints are derived from it.
	Issuer string

	// SupportedSigningAlgs is a list of supported signing algorithms. List
	// of currently supported algs: RS256, RS384, RS512, ES256, ES384,
	// ES512, PS256, PS384, PS512, EdDSA
	SupportedSigningAlgs []Alg

	// Scopes is a list of additional oidc scopes to request of the
	// provider on every login. The required "openid" scope is requested by
	// default, and should not be part of this optional list.
	Scopes []string

	// Audiences is an optional list of case-sensitive strings to use when
	// verifying an id_token's "aud" claim. When empty, the ClientID is
	// required to be among the audiences.
	Audiences []string

	// ProviderCA is an optional CA cert to use when sending requests to
	// the provider.
	ProviderCA string

	// Logger is an optional logger. When nil, logging is discarded.
	Logger hclog.Logger
}

// NewConfig composes a new config for a relying party.
//
// Supported options: WithScopes, WithAudiences, WithProviderCA, WithLogger
func NewConfig(issuer string, clientID string, clientSecret ClientSecret, supported []Alg, opt ...Option) (*Config, error) {
	const op = "identity.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Issuer:               issuer,
		ClientID:             clientID,
		ClientSecret:         clientSecret,
		SupportedSigningAlgs: supported,
		Scopes:               opts.withScopes,
		Audiences:            opts.withAudiences,
		ProviderCA:           opts.withProviderCA,
		Logger:               opts.withLogger,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid relying party config: %w", op, err)
	}
	return c, nil
}

// Validate the config. Among other validations, it verifies the issuer is
// not empty, but it doesn't verify the Issuer is discoverable via an http
// request. SupportedSigningAlgs are validated against the list of currently
// supported algs: RS256, RS384, RS512, ES256, ES384, ES512, PS256, PS384,
// PS512, EdDSA
func (c *Config) Validate() error {
	const op = "identity.(Config).Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	}
	if c.Issuer == "" {
		return fmt.Errorf("%s: discovery URL is empty: %w", op, ErrInvalidParameter)
	}
	u, err := url.Parse(c.Issuer)
	if err != nil {
		return fmt.Errorf("%s: issuer %s is invalid (%s): %w", op, c.Issuer, err, ErrInvalidParameter)
	}
	if !strutils.StrListContains([]string{"https", "http"}, u.Scheme) {
		return fmt.Errorf("%s: issuer %s scheme is not http or https: %w", op, c.Issuer, ErrInvalidParameter)
	}
	if len(c.SupportedSigningAlgs) == 0 {
		return fmt.Errorf("%s: supported algorithms is empty: %w", op, ErrInvalidParameter)
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			return fmt.Errorf("%s: unsupported algorithm %s: %w", op, a, ErrInvalidParameter)
		}
	}
	return nil
}

// HTTPClient returns an http client for the relying party, configured with
// the ProviderCA when one was provided.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "identity.(Config).HTTPClient"
	client, err := newHTTPClient(c.ProviderCA)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return client, nil
}

// configOptions is the set of available options.
type configOptions struct {
	withScopes     []string
	withAudiences  []string
	withProviderCA string
	withLogger     hclog.Logger
}

// configDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func configDefaults() configOptions {
	return configOptions{}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithAudiences provides an optional list of audiences to use when verifying
// an id_token's "aud" claim.
//
// Valid for: Config
func WithAudiences(auds ...string) Option {
	return func(o interface{}) {
		if len(auds) == 0 {
			return
		}
		if o, ok := o.(*configOptions); ok {
			o.withAudiences = append(o.withAudiences, auds...)
		}
	}
}

// WithProviderCA provides an optional CA cert, in a PEM format, to use when
// sending requests to the provider.
//
// Valid for: Config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}
