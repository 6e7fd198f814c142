// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// Validator decides whether a logged in user's claims are still acceptable.
// Validators run as an ordered chain on every read of the logged in user
// (GetUser, GetToken, UserInfo and the tail of CompleteLogIn); the user is
// only visible while every validator in the chain passes.
//
// A Validator that wants a failed check reported as an error, rather than
// the user silently appearing logged out, can carry a configured error (see
// WithOnError on LifespanValidator).
type Validator interface {
	// IsValid reports whether the claims are acceptable.
	IsValid(claims Claims) bool
}

// ValidatorFunc is an adapter to allow the use of ordinary functions as
// Validators.
type ValidatorFunc func(claims Claims) bool

// IsValid implements the Validator interface.
func (f ValidatorFunc) IsValid(claims Claims) bool {
	return f(claims)
}

// errorReporter is implemented by validators carrying a configured error to
// surface when their check fails.
type errorReporter interface {
	validationErr() error
}

// validate runs the claims through every validator in the chain. It does not
// short-circuit: each validator sees the claims, and every configured error
// from a failing validator is collected into the returned error.
func validate(chain []Validator, claims Claims) (bool, error) {
	valid := true
	var retErr *multierror.Error
	for _, v := range chain {
		if v == nil {
			continue
		}
		if v.IsValid(claims) {
			continue
		}
		valid = false
		if r, ok := v.(errorReporter); ok {
			if err := r.validationErr(); err != nil {
				retErr = multierror.Append(retErr, err)
			}
		}
	}
	return valid, retErr.ErrorOrNil()
}

// DefaultValidatorSkew defines the default allowance for clock skew between
// the token issuer and this host when checking a lifespan.
const DefaultValidatorSkew = 210 * time.Second

// LifespanValidator bounds how long a login stays valid. With a lifespan
// configured, a user is valid while now < iat + lifespan + skew; without
// one, the id_token's own exp claim governs. Claims missing the relevant
// time are invalid.
type LifespanValidator struct {
	lifespan time.Duration
	skew     time.Duration
	nowFunc  func() time.Time
	onError  error
	logger   hclog.Logger
}

// NewLifespanValidator creates a validator bounding the lifespan of a login.
//
// Supported options: WithLifespan, WithSkew, WithOnError, WithNow,
// WithLogger
func NewLifespanValidator(opt ...Option) *LifespanValidator {
	opts := getLifespanOpts(opt...)
	return &LifespanValidator{
		lifespan: opts.withLifespan,
		skew:     opts.withSkew,
		nowFunc:  opts.withNowFunc,
		onError:  opts.withOnError,
		logger:   opts.withLogger,
	}
}

// IsValid implements the Validator interface.
func (v *LifespanValidator) IsValid(claims Claims) bool {
	var deadline time.Time
	switch {
	case v.lifespan > 0:
		iat, ok := claims.IssuedAt()
		if !ok {
			v.log().Debug("rejecting claims without a usable iat")
			return false
		}
		deadline = iat.Add(v.lifespan)
	default:
		exp, ok := claims.Expiration()
		if !ok {
			v.log().Debug("rejecting claims without a usable exp")
			return false
		}
		deadline = exp
	}
	valid := v.now().Before(deadline.Add(v.skew))
	v.log().Debug("evaluated login lifespan", "valid", valid, "deadline", deadline)
	return valid
}

// validationErr returns the error configured with WithOnError, if any.
func (v *LifespanValidator) validationErr() error {
	return v.onError
}

// now returns the validator's notion of the current time.
func (v *LifespanValidator) now() time.Time {
	if v.nowFunc != nil {
		return v.nowFunc()
	}
	return time.Now()
}

// log returns the validator's logger, discarding output when none was
// configured.
func (v *LifespanValidator) log() hclog.Logger {
	if v.logger != nil {
		return v.logger
	}
	return hclog.NewNullLogger()
}

// lifespanOptions is the set of available options for a LifespanValidator.
type lifespanOptions struct {
	withLifespan time.Duration
	withSkew     time.Duration
	withNowFunc  func() time.Time
	withOnError  error
	withLogger   hclog.Logger
}

// lifespanDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func lifespanDefaults() lifespanOptions {
	return lifespanOptions{
		withSkew:   DefaultValidatorSkew,
		withLogger: hclog.NewNullLogger(),
	}
}

// getLifespanOpts gets the defaults and applies the opt overrides passed in.
func getLifespanOpts(opt ...Option) lifespanOptions {
	opts := lifespanDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLifespan provides an optional lifespan measured from the id_token's
// iat claim. Without it, the validator falls back to the token's exp claim.
//
// Valid for: LifespanValidator
func WithLifespan(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*lifespanOptions); ok {
			o.withLifespan = d
		}
	}
}

// WithSkew provides an optional clock skew allowance, overriding
// DefaultValidatorSkew.
//
// Valid for: LifespanValidator
func WithSkew(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*lifespanOptions); ok {
			o.withSkew = d
		}
	}
}

// WithOnError provides an optional error to surface from the validator chain
// when this validator rejects a user. Without it, rejection is silent and
// the caller simply sees no logged in user.
//
// Valid for: LifespanValidator
func WithOnError(err error) Option {
	return func(o interface{}) {
		if o, ok := o.(*lifespanOptions); ok {
			o.withOnError = err
		}
	}
}

// WithValidators provides an optional validator chain. On NewAuth it becomes
// the Auth's default chain; on GetUser or GetToken it replaces the chain for
// that call (an empty WithValidators() clears it).
//
// Valid for: NewAuth, GetUser and GetToken
func WithValidators(validators ...Validator) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *authOptions:
			v.withValidators = append([]Validator{}, validators...)
		case *userOptions:
			v.withValidators = append([]Validator{}, validators...)
		}
	}
}
