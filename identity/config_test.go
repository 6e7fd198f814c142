// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		issuer       string
		clientID     string
		clientSecret ClientSecret
		supported    []Alg
		opt          []Option
		want         *Config
		wantErr      bool
		wantIsErr    error
	}{
		{
			name:         "valid",
			issuer:       "https://your-issuer.com",
			clientID:     "your-client-id",
			clientSecret: "your-client-secret",
			supported:    []Alg{ES256},
			want: &Config{
				Issuer:               "https://your-issuer.com",
				ClientID:             "your-client-id",
				ClientSecret:         "your-client-secret",
				SupportedSigningAlgs: []Alg{ES256},
			},
		},
		{
			name:      "valid-empty-client-secret",
			issuer:    "https://your-issuer.com",
			clientID:  "your-client-id",
			supported: []Alg{ES256},
			want: &Config{
				Issuer:               "https://your-issuer.com",
				ClientID:             "your-client-id",
				SupportedSigningAlgs: []Alg{ES256},
			},
		},
		{
			name:         "valid-with-scopes-and-audiences",
			issuer:       "https://your-issuer.com",
			clientID:     "your-client-id",
			clientSecret: "your-client-secret",
			supported:    []Alg{RS256, ES256},
			opt: []Option{
				WithScopes("profile", "email"),
				WithAudiences("https://your-api.com"),
			},
			want: &Config{
				Issuer:               "https://your-issuer.com",
				ClientID:             "your-client-id",
				ClientSecret:         "your-client-secret",
				SupportedSigningAlgs: []Alg{RS256, ES256},
				Scopes:               []string{"profile", "email"},
				Audiences:            []string{"https://your-api.com"},
			},
		},
		{
			name:         "empty-client-id",
			issuer:       "https://your-issuer.com",
			clientSecret: "your-client-secret",
			supported:    []Alg{ES256},
			wantErr:      true,
			wantIsErr:    ErrInvalidParameter,
		},
		{
			name:         "empty-issuer",
			clientID:     "your-client-id",
			clientSecret: "your-client-secret",
			supported:    []Alg{ES256},
			wantErr:      true,
			wantIsErr:    ErrInvalidParameter,
		},
		{
			name:         "bad-issuer-scheme",
			issuer:       "ldap://your-issuer.com",
			clientID:     "your-client-id",
			clientSecret: "your-client-secret",
			supported:    []Alg{ES256},
			wantErr:      true,
			wantIsErr:    ErrInvalidParameter,
		},
		{
			name:         "empty-algs",
			issuer:       "https://your-issuer.com",
			clientID:     "your-client-id",
			clientSecret: "your-client-secret",
			wantErr:      true,
			wantIsErr:    ErrInvalidParameter,
		},
		{
			name:         "unsupported-alg",
			issuer:       "https://your-issuer.com",
			clientID:     "your-client-id",
			clientSecret: "your-client-secret",
			supported:    []Alg{"HS256"},
			wantErr:      true,
			wantIsErr:    ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewConfig(tt.issuer, tt.clientID, tt.clientSecret, tt.supported, tt.opt...)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			require.NotNil(got)
			assert.Equal(tt.want, got)
		})
	}
	t.Run("valid-with-provider-ca", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		pem := TestGenerateCA(t, []string{"localhost"})
		c, err := NewConfig(
			"https://your-issuer.com",
			"your-client-id",
			"your-client-secret",
			[]Alg{ES256},
			WithProviderCA(pem),
		)
		require.NoError(err)
		assert.Equal(pem, c.ProviderCA)
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	t.Run("nil-config", func(t *testing.T) {
		require := require.New(t)
		var c *Config
		err := c.Validate()
		require.Error(err)
		require.ErrorIs(err, ErrNilParameter)
	})
	t.Run("logger-survives-validation", func(t *testing.T) {
		require := require.New(t)
		c, err := NewConfig(
			"https://your-issuer.com",
			"your-client-id",
			"your-client-secret",
			[]Alg{ES256},
			WithLogger(hclog.NewNullLogger()),
		)
		require.NoError(err)
		require.NotNil(c.Logger)
	})
}

func TestConfig_HTTPClient(t *testing.T) {
	t.Parallel()
	t.Run("no-ca", func(t *testing.T) {
		require := require.New(t)
		c, err := NewConfig("https://your-issuer.com", "your-client-id", "your-client-secret", []Alg{ES256})
		require.NoError(err)
		client, err := c.HTTPClient()
		require.NoError(err)
		require.NotNil(client)
	})
	t.Run("valid-ca", func(t *testing.T) {
		require := require.New(t)
		c, err := NewConfig(
			"https://your-issuer.com",
			"your-client-id",
			"your-client-secret",
			[]Alg{ES256},
			WithProviderCA(TestGenerateCA(t, []string{"localhost"})),
		)
		require.NoError(err)
		client, err := c.HTTPClient()
		require.NoError(err)
		require.NotNil(client)
	})
	t.Run("invalid-ca", func(t *testing.T) {
		require := require.New(t)
		c, err := NewConfig(
			"https://your-issuer.com",
			"your-client-id",
			"your-client-secret",
			[]Alg{ES256},
			WithProviderCA("not a pem"),
		)
		require.NoError(err)
		_, err = c.HTTPClient()
		require.Error(err)
		require.ErrorIs(err, ErrInvalidCACert)
	})
}

func TestClientSecret_String(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	secret := ClientSecret("bob's phone number")
	assert.Equal(RedactedClientSecret, secret.String())
}

func TestClientSecret_MarshalJSON(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	want, err := json.Marshal(RedactedClientSecret)
	require.NoError(err)
	secret := ClientSecret("bob's phone number")
	got, err := secret.MarshalJSON()
	require.NoError(err)
	assert.Equal(want, got)
}
