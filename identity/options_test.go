// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"errors"
	"reflect"
	"runtime"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

// testAssertEqualFunc gives you a way to assert that two functions are
// equal, since funcs are never deeply equal to each other.
func testAssertEqualFunc(t *testing.T, wantFunc, gotFunc interface{}, format string, args ...interface{}) {
	t.Helper()
	want := runtime.FuncForPC(reflect.ValueOf(wantFunc).Pointer()).Name()
	got := runtime.FuncForPC(reflect.ValueOf(gotFunc).Pointer()).Name()
	assert.Equalf(t, want, got, format, args...)
}

func TestApplyOpts(t *testing.T) {
	// ApplyOpts is exercised by every option test; this just makes sure we
	// don't panic on nil options or a target no option recognizes.
	anonymousOpts := struct {
		Names []string
	}{
		nil,
	}
	ApplyOpts(anonymousOpts, nil)
	ApplyOpts(&anonymousOpts, WithPrefix("ignored"))
}

func Test_WithNow(t *testing.T) {
	t.Parallel()
	testNow := func() time.Time {
		return time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	t.Run("lifespanOptions", func(t *testing.T) {
		t.Parallel()
		opts := getLifespanOpts(WithNow(testNow))
		testAssertEqualFunc(t, testNow, opts.withNowFunc, "now = %p,want %p", testNow, opts.withNowFunc)
	})
	t.Run("flowOptions", func(t *testing.T) {
		t.Parallel()
		opts := getFlowOpts(WithNow(testNow))
		testAssertEqualFunc(t, testNow, opts.withNowFunc, "now = %p,want %p", testNow, opts.withNowFunc)
	})
	t.Run("nil-now-keeps-default", func(t *testing.T) {
		t.Parallel()
		opts := getFlowOpts(WithNow(nil))
		testAssertEqualFunc(t, time.Now, opts.withNowFunc, "now = %p,want %p", time.Now, opts.withNowFunc)
	})
}

func Test_WithLogger(t *testing.T) {
	t.Parallel()
	logger := hclog.New(&hclog.LoggerOptions{Name: "test"})
	t.Run("configOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getConfigOpts(WithLogger(logger))
		assert.Equal(logger, opts.withLogger)
	})
	t.Run("lifespanOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getLifespanOpts(WithLogger(logger))
		assert.Equal(logger, opts.withLogger)
	})
}

func Test_WithScopes(t *testing.T) {
	t.Parallel()
	t.Run("configOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getConfigOpts()
		testOpts := configDefaults()
		assert.Equal(opts, testOpts)

		opts = getConfigOpts(WithScopes("profile", "email"))
		testOpts = configDefaults()
		testOpts.withScopes = []string{"profile", "email"}
		assert.Equal(opts, testOpts)
	})
	t.Run("loginOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getLoginOpts(WithScopes("profile", "email"))
		testOpts := loginDefaults()
		testOpts.withScopes = []string{"profile", "email"}
		assert.Equal(opts, testOpts)
	})
	t.Run("empty-call-is-ignored", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getConfigOpts(WithScopes())
		assert.Nil(opts.withScopes)
	})
}

func Test_WithAudiences(t *testing.T) {
	t.Parallel()
	t.Run("configOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getConfigOpts(WithAudiences("alice", "bob"))
		testOpts := configDefaults()
		testOpts.withAudiences = []string{"alice", "bob"}
		assert.Equal(opts, testOpts)
	})
}

func Test_WithProviderCA(t *testing.T) {
	t.Parallel()
	t.Run("configOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getConfigOpts(WithProviderCA("-----BEGIN CERTIFICATE-----"))
		testOpts := configDefaults()
		testOpts.withProviderCA = "-----BEGIN CERTIFICATE-----"
		assert.Equal(opts, testOpts)
	})
}

func Test_WithPrefix(t *testing.T) {
	t.Parallel()
	t.Run("idOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getIDOpts(WithPrefix("alice"))
		testOpts := idDefaults()
		testOpts.withPrefix = "alice"
		assert.Equal(opts, testOpts)
	})
}

func Test_WithRedirectURI(t *testing.T) {
	t.Parallel()
	t.Run("loginOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getLoginOpts(WithRedirectURI("https://example.com/callback"))
		testOpts := loginDefaults()
		testOpts.withRedirectURI = "https://example.com/callback"
		assert.Equal(opts, testOpts)
	})
}

func Test_WithPrompts(t *testing.T) {
	t.Parallel()
	t.Run("loginOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getLoginOpts(WithPrompts(Login, SelectAccount))
		testOpts := loginDefaults()
		testOpts.withPrompts = []Prompt{Login, SelectAccount}
		assert.Equal(opts, testOpts)
	})
}

func Test_WithLoginHint(t *testing.T) {
	t.Parallel()
	t.Run("loginOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getLoginOpts(WithLoginHint("alice@example.com"))
		testOpts := loginDefaults()
		testOpts.withLoginHint = "alice@example.com"
		assert.Equal(opts, testOpts)
	})
}

func Test_WithUILocales(t *testing.T) {
	t.Parallel()
	t.Run("loginOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getLoginOpts(WithUILocales(language.AmericanEnglish, language.French))
		testOpts := loginDefaults()
		testOpts.withUILocales = []language.Tag{language.AmericanEnglish, language.French}
		assert.Equal(opts, testOpts)
	})
}

func Test_WithMaxAge(t *testing.T) {
	t.Parallel()
	t.Run("loginOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getLoginOpts(WithMaxAge(0))
		testOpts := loginDefaults()
		testOpts.withMaxAge = &maxAge{
			seconds: 0,
		}
		assert.Equal(opts, testOpts)
	})
}

func Test_WithExpiry(t *testing.T) {
	t.Parallel()
	t.Run("loginOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getLoginOpts()
		testOpts := loginDefaults()
		assert.Equal(DefaultFlowExpiry, testOpts.withExpiry)
		assert.Equal(opts, testOpts)

		opts = getLoginOpts(WithExpiry(time.Minute))
		testOpts = loginDefaults()
		testOpts.withExpiry = time.Minute
		assert.Equal(opts, testOpts)
	})
	t.Run("non-positive-is-ignored", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getLoginOpts(WithExpiry(-time.Minute))
		assert.Equal(DefaultFlowExpiry, opts.withExpiry)
	})
}

func Test_WithExpirySkew(t *testing.T) {
	t.Parallel()
	t.Run("flowOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getFlowOpts(WithExpirySkew(5 * time.Second))
		assert.Equal(5*time.Second, opts.withExpirySkew)

		defaults := flowDefaults()
		assert.Equal(DefaultFlowExpirySkew, defaults.withExpirySkew)
	})
}

func Test_WithLifespan(t *testing.T) {
	t.Parallel()
	t.Run("lifespanOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getLifespanOpts(WithLifespan(24 * time.Hour))
		assert.Equal(24*time.Hour, opts.withLifespan)
	})
}

func Test_WithSkew(t *testing.T) {
	t.Parallel()
	t.Run("lifespanOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getLifespanOpts(WithSkew(time.Minute))
		assert.Equal(time.Minute, opts.withSkew)

		defaults := lifespanDefaults()
		assert.Equal(DefaultValidatorSkew, defaults.withSkew)
	})
}

func Test_WithOnError(t *testing.T) {
	t.Parallel()
	t.Run("lifespanOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		errTooOld := errors.New("login is too old")
		opts := getLifespanOpts(WithOnError(errTooOld))
		assert.Equal(errTooOld, opts.withOnError)
	})
}

func Test_WithValidators(t *testing.T) {
	t.Parallel()
	v := NewLifespanValidator()
	t.Run("authOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getAuthOpts()
		testOpts := authDefaults()
		assert.Equal(opts, testOpts)

		opts = getAuthOpts(WithValidators(v))
		testOpts = authDefaults()
		testOpts.withValidators = []Validator{v}
		assert.Equal(opts, testOpts)
	})
	t.Run("userOptions", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getUserOpts(WithValidators(v))
		testOpts := userDefaults()
		testOpts.withValidators = []Validator{v}
		assert.Equal(opts, testOpts)
	})
	t.Run("empty-call-clears", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		opts := getUserOpts(WithValidators())
		assert.NotNil(opts.withValidators)
		assert.Empty(opts.withValidators)
	})
}
