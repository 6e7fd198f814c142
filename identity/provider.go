// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/websession/identity/internal/strutils"
	"golang.org/x/oauth2"
)

// provider returns the discovered provider, performing the discovery request
// on first use and caching the result for the life of the Auth. Discovery
// and the provider's JWKS fetches run on the Auth's background context so
// they can outlive the request that happened to trigger them; see Done.
func (a *Auth) provider() (*oidc.Provider, error) {
	const op = "identity.(Auth).provider"
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.oidcProvider != nil {
		return a.oidcProvider, nil
	}
	p, err := oidc.NewProvider(HTTPClientContext(a.backgroundCtx, a.client), a.config.Issuer)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to discover provider %s: %w", op, a.config.Issuer, err)
	}
	a.oidcProvider = p
	a.logger.Debug("discovered provider", "issuer", a.config.Issuer)
	return p, nil
}

// oauth2Config assembles the oauth2 configuration for a login leg or a
// refresh against the discovered provider.
func (a *Auth) oauth2Config(p *oidc.Provider, redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.config.ClientID,
		ClientSecret: string(a.config.ClientSecret),
		RedirectURL:  redirectURI,
		Endpoint:     p.Endpoint(),
		Scopes:       scopes,
	}
}

// verifyIDToken verifies the inbound id_token: it verifies it's been signed
// by the provider, validates the nonce, and checks the audiences depending
// on the relying party's config. An empty nonce skips the nonce check, since
// device flows send none.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (a *Auth) verifyIDToken(ctx context.Context, p *oidc.Provider, rawIDToken string, nonce string) (Claims, error) {
	const op = "identity.(Auth).verifyIDToken"
	if rawIDToken == "" {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	algs := make([]string, 0, len(a.config.SupportedSigningAlgs))
	for _, alg := range a.config.SupportedSigningAlgs {
		algs = append(algs, string(alg))
	}
	oidcConfig := &oidc.Config{
		SupportedSigningAlgs: algs,
	}
	switch {
	case len(a.config.Audiences) > 0:
		// the audience membership check below replaces the library's
		// client id equality check
		oidcConfig.SkipClientIDCheck = true
	default:
		oidcConfig.ClientID = a.config.ClientID
	}

	idToken, err := p.Verifier(oidcConfig).Verify(HTTPClientContext(ctx, a.client), rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%s: id_token failed verification: %w", op, err)
	}

	if nonce != "" && idToken.Nonce != nonce {
		return nil, fmt.Errorf("%s: id_token nonce does not match the flow's nonce: %w", op, ErrInvalidNonce)
	}

	if len(a.config.Audiences) > 0 {
		found := false
		for _, aud := range a.config.Audiences {
			if strutils.StrListContains(idToken.Audience, aud) {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%s: invalid id_token audiences: %w", op, ErrInvalidAudience)
		}
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: unable to unmarshal id_token claims: %w", op, err)
	}
	return claims, nil
}

// endSessionEndpoint returns the end_session_endpoint from the provider's
// discovery document when the provider has already been discovered, and an
// empty string otherwise. It never performs network I/O, which keeps LogOut
// usable when the provider is unreachable.
func (a *Auth) endSessionEndpoint() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.oidcProvider == nil {
		return ""
	}
	var discovered struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := a.oidcProvider.Claims(&discovered); err != nil {
		return ""
	}
	return discovered.EndSessionEndpoint
}
