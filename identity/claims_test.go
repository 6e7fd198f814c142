// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaims_accessors(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	claims := Claims{
		"iss":                "https://your-issuer.com",
		"sub":                "alice@example.com",
		"preferred_username": "alice",
		"email":              "alice@example.com",
		"groups":             []interface{}{"admin"},
	}
	assert.Equal("https://your-issuer.com", claims.Issuer())
	assert.Equal("alice@example.com", claims.Subject())
	assert.Equal("alice", claims.PreferredUsername())
	assert.Equal("alice@example.com", claims.Email())
	assert.Equal("", claims.StringClaim("missing"))
	assert.Equal("", claims.StringClaim("groups"))

	var none Claims
	assert.Equal("", none.Subject())
	assert.Nil(none.Audience())
}

func TestClaims_Audience(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		claims Claims
		want   []string
	}{
		{
			name:   "single-string",
			claims: Claims{"aud": "your-client-id"},
			want:   []string{"your-client-id"},
		},
		{
			name:   "json-array",
			claims: Claims{"aud": []interface{}{"your-client-id", "https://your-api.com"}},
			want:   []string{"your-client-id", "https://your-api.com"},
		},
		{
			name:   "string-slice",
			claims: Claims{"aud": []string{"your-client-id"}},
			want:   []string{"your-client-id"},
		},
		{
			name:   "missing",
			claims: Claims{},
			want:   nil,
		},
		{
			name:   "wrong-type",
			claims: Claims{"aud": 42},
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			assert.Equal(tt.want, tt.claims.Audience())
		})
	}
}

func TestClaims_numericDates(t *testing.T) {
	t.Parallel()
	now := time.Now().Truncate(time.Second)
	tests := []struct {
		name   string
		claims Claims
		want   time.Time
		wantOk bool
	}{
		{
			name:   "float64",
			claims: Claims{"exp": float64(now.Unix())},
			want:   now,
			wantOk: true,
		},
		{
			name:   "json-number",
			claims: Claims{"exp": json.Number("1700000000")},
			want:   time.Unix(1700000000, 0),
			wantOk: true,
		},
		{
			name:   "int64",
			claims: Claims{"exp": now.Unix()},
			want:   now,
			wantOk: true,
		},
		{
			name:   "int",
			claims: Claims{"exp": int(now.Unix())},
			want:   now,
			wantOk: true,
		},
		{
			name:   "missing",
			claims: Claims{},
			wantOk: false,
		},
		{
			name:   "wrong-type",
			claims: Claims{"exp": "tomorrow"},
			wantOk: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			got, ok := tt.claims.Expiration()
			assert.Equal(tt.wantOk, ok)
			if tt.wantOk {
				assert.True(tt.want.Equal(got))
			}
		})
	}
	t.Run("iat-and-auth-time", func(t *testing.T) {
		assert := assert.New(t)
		claims := Claims{
			"iat":       float64(now.Unix()),
			"auth_time": float64(now.Add(-time.Minute).Unix()),
		}
		iat, ok := claims.IssuedAt()
		assert.True(ok)
		assert.True(now.Equal(iat))
		at, ok := claims.AuthTime()
		assert.True(ok)
		assert.True(now.Add(-time.Minute).Equal(at))
	})
}

func TestUnmarshalClaims(t *testing.T) {
	t.Parallel()
	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, priv := TestGenerateKeys(t)
		raw := TestSignJWT(t, priv, testDefaultClaims(t), map[string]interface{}{"flavor": "umami"})
		var claims Claims
		require.NoError(unmarshalClaims(raw, &claims))
		assert.Equal("alice@example.com", claims.Subject())
		assert.Equal("umami", claims.StringClaim("flavor"))
	})
	t.Run("not-three-parts", func(t *testing.T) {
		require := require.New(t)
		var claims Claims
		err := unmarshalClaims("too.short", &claims)
		require.Error(err)
		require.ErrorIs(err, ErrInvalidParameter)
	})
	t.Run("payload-not-base64", func(t *testing.T) {
		require := require.New(t)
		var claims Claims
		err := unmarshalClaims("part.!!!!.part", &claims)
		require.Error(err)
	})
	t.Run("payload-not-json", func(t *testing.T) {
		require := require.New(t)
		var claims Claims
		err := unmarshalClaims("part.bm90LWpzb24.part", &claims)
		require.Error(err)
	})
}
