// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/websession/identity/internal/strutils"
	"golang.org/x/oauth2"
	"golang.org/x/text/language"
)

// Auth orchestrates the authentication of a web application's users against
// an OIDC provider, binding everything it learns to the caller's Session:
// the in-flight login flow, the logged in user's validated claims, and the
// serialized token cache. One Auth is created per process and shared across
// requests; it is safe for concurrent use.
type Auth struct {
	config     *Config
	client     *http.Client
	logger     hclog.Logger
	validators []Validator

	mu           sync.Mutex
	oidcProvider *oidc.Provider

	// backgroundCtx is the context used by the provider for background
	// activities like refreshing JWKs key sets.
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities.
	backgroundCtxCancel context.CancelFunc
}

// NewAuth creates an Auth for a relying party config. No network I/O is
// performed: the provider's discovery document is fetched lazily on first
// use and cached for the life of the Auth, so every request shares one
// discovery result and one JWKS cache.
//
// See Auth.Done() which must be called to release the Auth's resources.
//
// Supported options: WithValidators
func NewAuth(c *Config, opt ...Option) (*Auth, error) {
	const op = "identity.NewAuth"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getAuthOpts(opt...)
	client, err := c.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	logger := c.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Auth{
		config:              c,
		client:              client,
		logger:              logger,
		validators:          opts.withValidators,
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}, nil
}

// Done with the Auth's background resources and must be called for every
// Auth created.
func (a *Auth) Done() {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.backgroundCtxCancel != nil {
		a.backgroundCtxCancel()
		a.backgroundCtxCancel = nil
	}
}

// LoginResult is the outcome of a login's first leg, carrying what the user
// needs to continue the login out of band.
type LoginResult struct {
	// AuthURL is where the user authenticates: the authorization request
	// URL to redirect to for an authorization code flow, or the
	// verification URI the user must visit for a device flow.
	AuthURL string

	// UserCode is only set for device flows. The user enters it at the
	// verification URI to approve the login.
	UserCode string
}

// LogIn begins a login and stores the in-flight flow in the session,
// replacing any previous flow. With WithRedirectURI it prepares an
// authorization code flow, with PKCE, and returns the URL to redirect the
// user's browser to. Without a redirect URI it requests a device
// authorization from the provider and returns the verification URI and user
// code to present to the user; ErrDeviceFlowUnsupported is returned when the
// provider does not advertise a device authorization endpoint.
//
// Supported options: WithRedirectURI, WithScopes, WithPrompts,
// WithLoginHint, WithUILocales, WithMaxAge, WithExpiry
func (a *Auth) LogIn(ctx context.Context, s Session, opt ...Option) (*LoginResult, error) {
	const op = "identity.(Auth).LogIn"
	if s == nil {
		return nil, fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	opts := getLoginOpts(opt...)

	p, err := a.provider()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// "openid" is required for every flow; configured and per call scopes
	// follow it, deduplicated with the first occurrence winning.
	scopes := make([]string, 0, 1+len(a.config.Scopes)+len(opts.withScopes))
	scopes = append(scopes, oidc.ScopeOpenID)
	scopes = append(scopes, a.config.Scopes...)
	scopes = append(scopes, opts.withScopes...)
	scopes = strutils.RemoveDuplicatesStable(scopes, false)

	if opts.withRedirectURI == "" {
		return a.startDeviceFlow(ctx, s, p, scopes)
	}
	return a.startAuthCodeFlow(s, p, scopes, opts)
}

// startAuthCodeFlow generates the flow's state, nonce and PKCE verifier,
// stores the flow and builds the authorization request URL.
func (a *Auth) startAuthCodeFlow(s Session, p *oidc.Provider, scopes []string, opts loginOptions) (*LoginResult, error) {
	const op = "identity.(Auth).startAuthCodeFlow"
	state, err := NewID(WithPrefix("st"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a flow state: %w", op, err)
	}
	nonce, err := NewID(WithPrefix("n"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a flow nonce: %w", op, err)
	}
	verifier := oauth2.GenerateVerifier()

	f := &authFlow{
		Kind:         flowAuthorizationCode,
		State:        state,
		Nonce:        nonce,
		PKCEVerifier: verifier,
		RedirectURI:  opts.withRedirectURI,
		Scopes:       scopes,
		Expiration:   time.Now().Add(opts.withExpiry),
	}

	authCodeOpts := []oauth2.AuthCodeOption{
		oidc.Nonce(nonce),
		oauth2.S256ChallengeOption(verifier),
	}
	if len(opts.withPrompts) > 0 {
		prompts := make([]string, 0, len(opts.withPrompts))
		for _, prompt := range opts.withPrompts {
			prompts = append(prompts, string(prompt))
		}
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("prompt", strings.Join(prompts, " ")))
	}
	if opts.withLoginHint != "" {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("login_hint", opts.withLoginHint))
	}
	if len(opts.withUILocales) > 0 {
		locales := make([]string, 0, len(opts.withUILocales))
		for _, l := range opts.withUILocales {
			locales = append(locales, l.String())
		}
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("ui_locales", strings.Join(locales, " ")))
	}
	if opts.withMaxAge != nil {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("max_age", strconv.FormatUint(uint64(opts.withMaxAge.seconds), 10)))
	}

	authURL := a.oauth2Config(p, opts.withRedirectURI, scopes).AuthCodeURL(state, authCodeOpts...)

	if err := saveAuthFlow(s, f); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.logger.Debug("started authorization code flow", "state", state)
	return &LoginResult{AuthURL: authURL}, nil
}

// startDeviceFlow requests a device authorization from the provider and
// stores it as the session's in-flight flow.
func (a *Auth) startDeviceFlow(ctx context.Context, s Session, p *oidc.Provider, scopes []string) (*LoginResult, error) {
	const op = "identity.(Auth).startDeviceFlow"
	if p.Endpoint().DeviceAuthURL == "" {
		return nil, fmt.Errorf("%s: provider %s does not advertise a device authorization endpoint: %w", op, a.config.Issuer, ErrDeviceFlowUnsupported)
	}
	conf := a.oauth2Config(p, "", scopes)
	da, err := conf.DeviceAuth(HTTPClientContext(ctx, a.client))
	if err != nil {
		return nil, fmt.Errorf("%s: device authorization request failed: %w", op, err)
	}
	expiration := da.Expiry
	if expiration.IsZero() {
		expiration = time.Now().Add(DefaultFlowExpiry)
	}

	f := &authFlow{
		Kind:                    flowDeviceCode,
		DeviceCode:              da.DeviceCode,
		UserCode:                da.UserCode,
		VerificationURI:         da.VerificationURI,
		VerificationURIComplete: da.VerificationURIComplete,
		Interval:                da.Interval,
		Scopes:                  scopes,
		Expiration:              expiration,
	}
	if err := saveAuthFlow(s, f); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.logger.Debug("started device authorization flow", "user_code", da.UserCode)
	return &LoginResult{AuthURL: da.VerificationURI, UserCode: da.UserCode}, nil
}

// CompleteLogIn finishes a login's second leg using the session's in-flight
// flow. For an authorization code flow the authResponse is the query the
// provider redirected back with (state, code, or error values); for a device
// flow it is ignored and the token endpoint is polled under the caller's
// ctx.
//
// Failures the provider reported (an error on the authorization response, a
// rejected code or device authorization, a pending or expired device login,
// a missing or mismatched flow) are returned as a *AuthErrorResponse so
// callers can branch on the provider's error code; other failures propagate
// as ordinary errors. On success the user's validated id_token claims are
// stored in the session along with the token cache, the flow is cleared,
// and the claims are returned subject to the Auth's validator chain.
func (a *Auth) CompleteLogIn(ctx context.Context, s Session, authResponse url.Values) (Claims, error) {
	const op = "identity.(Auth).CompleteLogIn"
	if s == nil {
		return nil, fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	if errCode := authResponse.Get("error"); errCode != "" {
		return nil, &AuthErrorResponse{
			Code:        errCode,
			Description: authResponse.Get("error_description"),
			Uri:         authResponse.Get("error_uri"),
		}
	}

	f, err := loadAuthFlow(s)
	if err != nil {
		if errors.Is(err, ErrNoAuthFlow) {
			return nil, &AuthErrorResponse{Code: "invalid_grant", Description: "no authentication flow in progress"}
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	p, err := a.provider()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var token *oauth2.Token
	switch f.Kind {
	case flowAuthorizationCode:
		token, err = a.exchangeAuthCode(ctx, p, f, authResponse)
	case flowDeviceCode:
		token, err = a.pollDeviceToken(ctx, p, f)
	default:
		return nil, fmt.Errorf("%s: unknown flow kind %q: %w", op, f.Kind, ErrInvalidParameter)
	}
	if err != nil {
		var authErr *AuthErrorResponse
		if errors.As(err, &authErr) {
			return nil, authErr
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%s: id_token is missing from the provider's token response: %w", op, ErrMissingIDToken)
	}
	claims, err := a.verifyIDToken(ctx, p, rawIDToken, f.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := sessionPutJSON(s, SessionKeyLoggedInUser, claims); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := saveTokenCache(s, newTokenCache(token)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.Delete(SessionKeyAuthFlow)
	a.logger.Debug("completed login", "flow", f.Kind, "sub", claims.Subject())

	valid, err := validate(a.validators, claims)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, nil
	}
	return claims, nil
}

// exchangeAuthCode checks the authorization response against the stored
// flow and redeems its code at the token endpoint, with the flow's PKCE
// verifier attached.
func (a *Auth) exchangeAuthCode(ctx context.Context, p *oidc.Provider, f *authFlow, authResponse url.Values) (*oauth2.Token, error) {
	const op = "identity.(Auth).exchangeAuthCode"
	if f.IsExpired() {
		return nil, &AuthErrorResponse{Code: "invalid_grant", Description: "authentication flow is expired"}
	}
	if authResponse.Get("state") != f.State {
		return nil, &AuthErrorResponse{Code: "invalid_grant", Description: "state does not match the flow in progress"}
	}
	code := authResponse.Get("code")
	if code == "" {
		return nil, &AuthErrorResponse{Code: "invalid_grant", Description: "authorization code is missing"}
	}

	conf := a.oauth2Config(p, f.RedirectURI, f.Scopes)
	token, err := conf.Exchange(HTTPClientContext(ctx, a.client), code, oauth2.VerifierOption(f.PKCEVerifier))
	if err != nil {
		if resp, ok := asAuthErrorResponse(err); ok {
			return nil, resp
		}
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w", op, err)
	}
	return token, nil
}

// pollDeviceToken polls the token endpoint for the device flow's token
// under the caller's ctx. The poll honors the interval the provider asked
// for, so callers wanting one bounded poll per request should give the ctx
// a deadline comfortably above that interval (commonly 5 seconds); reaching
// the deadline while the device flow is still alive reports
// authorization_pending, letting the next request pick the flow back up.
func (a *Auth) pollDeviceToken(ctx context.Context, p *oidc.Provider, f *authFlow) (*oauth2.Token, error) {
	const op = "identity.(Auth).pollDeviceToken"
	if f.IsExpired() {
		return nil, &AuthErrorResponse{Code: "expired_token", Description: "device authorization flow is expired"}
	}

	conf := a.oauth2Config(p, "", f.Scopes)
	token, err := conf.DeviceAccessToken(HTTPClientContext(ctx, a.client), f.deviceAuthResponse())
	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		if f.IsExpired() {
			return nil, &AuthErrorResponse{Code: "expired_token", Description: "device authorization flow is expired"}
		}
		return nil, &AuthErrorResponse{Code: "authorization_pending", Description: "the user has not yet approved the device login"}
	default:
		if resp, ok := asAuthErrorResponse(err); ok {
			return nil, resp
		}
		return nil, fmt.Errorf("%s: device token request failed: %w", op, err)
	}
}

// GetUser returns the logged in user's claims from the session, passed
// through the validator chain: nil before a login, after a log out, and
// when a validator rejects the user. Validators configured with an error
// surface it; otherwise rejection is silent and (nil, nil) is returned.
//
// Supported options: WithValidators
func (a *Auth) GetUser(s Session, opt ...Option) (Claims, error) {
	const op = "identity.(Auth).GetUser"
	if s == nil {
		return nil, fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	opts := getUserOpts(opt...)

	var claims Claims
	ok, err := sessionGetJSON(s, SessionKeyLoggedInUser, &claims)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, nil
	}

	validators := a.validators
	if opts.withValidators != nil {
		validators = opts.withValidators
	}
	valid, err := validate(validators, claims)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, nil
	}
	return claims, nil
}

// GetToken returns an access token for the logged in user: the cached token
// while it is still valid, otherwise one refreshed silently with the cached
// refresh token. When the refresh reports a changed token the session's
// cache is re-saved, so later requests skip the refresh. It returns
// (nil, nil) when there is no logged in user (validators included) or no
// usable cached token. Refresh rejections the provider reported are
// returned as a *AuthErrorResponse.
//
// Supported options: WithValidators
func (a *Auth) GetToken(ctx context.Context, s Session, opt ...Option) (*Token, error) {
	const op = "identity.(Auth).GetToken"
	user, err := a.GetUser(s, opt...)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	tc, err := loadTokenCache(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	switch {
	case tc == nil:
		return nil, nil
	case tc.AccessToken != "" && !tc.expired():
		return &Token{AccessToken: AccessToken(tc.AccessToken), TokenType: tc.TokenType, Expiry: tc.Expiry}, nil
	case tc.RefreshToken == "":
		return nil, nil
	}

	p, err := a.provider()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ts := a.oauth2Config(p, "", nil).TokenSource(HTTPClientContext(ctx, a.client), tc.token())
	token, err := ts.Token()
	if err != nil {
		if resp, ok := asAuthErrorResponse(err); ok {
			return nil, resp
		}
		return nil, fmt.Errorf("%s: unable to refresh token: %w", op, err)
	}
	if tc.update(token) {
		if err := saveTokenCache(s, tc); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.logger.Debug("refreshed the session's cached token", "expiry", token.Expiry)
	}
	return &Token{AccessToken: AccessToken(token.AccessToken), TokenType: token.Type(), Expiry: token.Expiry}, nil
}

// UserInfo gets the UserInfo claims from the provider for the logged in
// user, using the session's cached access token (refreshed first when
// needed), and decodes them into claims. ErrNoCurrentUser is returned when
// no valid user is logged in, and ErrNoTokenCache when the session holds no
// token to present.
func (a *Auth) UserInfo(ctx context.Context, s Session, claims interface{}) error {
	const op = "identity.(Auth).UserInfo"
	if s == nil {
		return fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	user, err := a.GetUser(s)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%s: %w", op, ErrNoCurrentUser)
	}
	token, err := a.GetToken(ctx, s)
	if err != nil {
		return err
	}
	if token == nil {
		return fmt.Errorf("%s: %w", op, ErrNoTokenCache)
	}

	p, err := a.provider()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: string(token.AccessToken),
		TokenType:   token.TokenType,
	})
	info, err := p.UserInfo(HTTPClientContext(ctx, a.client), ts)
	if err != nil {
		return fmt.Errorf("%s: provider UserInfo request failed: %w", op, err)
	}
	if err := info.Claims(claims); err != nil {
		return fmt.Errorf("%s: failed to get UserInfo claims: %w", op, err)
	}
	return nil
}

// LogOut removes the logged in user and the token cache from the session
// and returns the provider URL that completes the federated log out, with
// the post-logout redirect embedded when one is given. The discovered
// end_session_endpoint is used when available; otherwise the conventional
// "/oauth2/v2.0/logout" path under the issuer is assumed. No network I/O is
// performed, so logging out works even when the provider is unreachable.
func (a *Auth) LogOut(s Session, postLogoutRedirectURI string) (string, error) {
	const op = "identity.(Auth).LogOut"
	if s == nil {
		return "", fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	s.Delete(SessionKeyLoggedInUser)
	s.Delete(SessionKeyTokenCache)

	endpoint := a.endSessionEndpoint()
	if endpoint == "" {
		endpoint = strings.TrimSuffix(a.config.Issuer, "/") + "/oauth2/v2.0/logout"
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%s: invalid end session endpoint %q: %w", op, endpoint, err)
	}
	if postLogoutRedirectURI != "" {
		q := u.Query()
		q.Set("post_logout_redirect_uri", postLogoutRedirectURI)
		u.RawQuery = q.Encode()
	}
	a.logger.Debug("logged out user")
	return u.String(), nil
}

// Prompt represents the OIDC prompt values the provider can be asked for on
// an authorization request.
type Prompt string

const (
	None          Prompt = "none"
	Login         Prompt = "login"
	Consent       Prompt = "consent"
	SelectAccount Prompt = "select_account"
)

// maxAge holds the max_age request parameter. Zero seconds is meaningful
// (it requires re-authentication), so presence is tracked by pointer.
type maxAge struct {
	seconds uint
}

// authOptions is the set of available options for NewAuth.
type authOptions struct {
	withValidators []Validator
}

// authDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func authDefaults() authOptions {
	return authOptions{}
}

// getAuthOpts gets the defaults and applies the opt overrides passed in.
func getAuthOpts(opt ...Option) authOptions {
	opts := authDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// loginOptions is the set of available options for LogIn.
type loginOptions struct {
	withRedirectURI string
	withScopes      []string
	withPrompts     []Prompt
	withLoginHint   string
	withUILocales   []language.Tag
	withMaxAge      *maxAge
	withExpiry      time.Duration
}

// loginDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func loginDefaults() loginOptions {
	return loginOptions{
		withExpiry: DefaultFlowExpiry,
	}
}

// getLoginOpts gets the defaults and applies the opt overrides passed in.
func getLoginOpts(opt ...Option) loginOptions {
	opts := loginDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// userOptions is the set of available options for GetUser and GetToken.
type userOptions struct {
	withValidators []Validator
}

// userDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func userDefaults() userOptions {
	return userOptions{}
}

// getUserOpts gets the defaults and applies the opt overrides passed in.
func getUserOpts(opt ...Option) userOptions {
	opts := userDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithRedirectURI selects the authorization code flow for a LogIn and
// provides the redirect URI the provider sends the user's browser back to.
// Without it, LogIn starts a device authorization flow.
//
// Valid for: LogIn
func WithRedirectURI(uri string) Option {
	return func(o interface{}) {
		if o, ok := o.(*loginOptions); ok {
			o.withRedirectURI = uri
		}
	}
}

// WithPrompts provides an optional list of prompts for the authorization
// request.
//
// Valid for: LogIn
func WithPrompts(prompts ...Prompt) Option {
	return func(o interface{}) {
		if len(prompts) == 0 {
			return
		}
		if o, ok := o.(*loginOptions); ok {
			o.withPrompts = append(o.withPrompts, prompts...)
		}
	}
}

// WithLoginHint provides an optional login_hint, pre-filling the provider's
// sign in form with the user's identifier.
//
// Valid for: LogIn
func WithLoginHint(hint string) Option {
	return func(o interface{}) {
		if o, ok := o.(*loginOptions); ok {
			o.withLoginHint = hint
		}
	}
}

// WithUILocales provides an optional list of language tags for the
// provider's user interface, ordered by preference.
//
// Valid for: LogIn
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		if len(locales) == 0 {
			return
		}
		if o, ok := o.(*loginOptions); ok {
			o.withUILocales = append(o.withUILocales, locales...)
		}
	}
}

// WithMaxAge provides an optional max_age, in seconds, since the user's
// last authentication with the provider; a max_age of 0 requires the user
// to re-authenticate.
//
// Valid for: LogIn
func WithMaxAge(seconds uint) Option {
	return func(o interface{}) {
		if o, ok := o.(*loginOptions); ok {
			o.withMaxAge = &maxAge{
				seconds: seconds,
			}
		}
	}
}

// WithExpiry overrides DefaultFlowExpiry, bounding how long the started
// flow may wait for its second leg.
//
// Valid for: LogIn
func WithExpiry(d time.Duration) Option {
	return func(o interface{}) {
		if d <= 0 {
			return
		}
		if o, ok := o.(*loginOptions); ok {
			o.withExpiry = d
		}
	}
}
