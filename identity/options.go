// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithNow provides an optional func for determining what the current time it
// is.
//
// Valid for: LifespanValidator and flow expiration checks
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch v := o.(type) {
		case *lifespanOptions:
			v.withNowFunc = now
		case *flowOptions:
			v.withNowFunc = now
		}
	}
}

// WithLogger provides an optional hclog.Logger. Debug level output is written
// for flow transitions and validator evaluations.
//
// Valid for: Config and LifespanValidator
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if l == nil {
			return
		}
		switch v := o.(type) {
		case *configOptions:
			v.withLogger = l
		case *lifespanOptions:
			v.withLogger = l
		}
	}
}

// WithScopes provides an optional list of scopes to request of the provider.
// The required "openid" scope is always requested and should not be part of
// this list.
//
// Valid for: Config and LogIn
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if len(scopes) == 0 {
			return
		}
		switch v := o.(type) {
		case *configOptions:
			v.withScopes = append(v.withScopes, scopes...)
		case *loginOptions:
			v.withScopes = append(v.withScopes, scopes...)
		}
	}
}
