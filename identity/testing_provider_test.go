// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testProviderClient returns an http client that trusts the test provider's
// CA.
func testProviderClient(t *testing.T, tp *TestProvider) *http.Client {
	t.Helper()
	require := require.New(t)
	client, err := newHTTPClient(tp.CACert())
	require.NoError(err)
	return client
}

func testProviderJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	require := require.New(t)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(err)
	var decoded map[string]interface{}
	require.NoError(json.Unmarshal(body, &decoded))
	return decoded
}

func TestStartTestProvider(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)

	assert.True(strings.HasPrefix(tp.Addr(), "https://"))
	assert.NotEmpty(tp.UserCode())

	block, _ := pem.Decode([]byte(tp.CACert()))
	require.NotNil(block)
	_, err := x509.ParseCertificate(block.Bytes)
	require.NoError(err)

	pub, priv := tp.SigningKeys()
	assert.NotEmpty(pub)
	assert.NotEmpty(priv)
}

func TestTestProvider_discovery(t *testing.T) {
	t.Run("default-endpoints", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		client := testProviderClient(t, tp)

		resp, err := client.Get(tp.Addr() + "/.well-known/openid-configuration")
		require.NoError(err)
		require.Equal(http.StatusOK, resp.StatusCode)
		reply := testProviderJSON(t, resp)

		assert.Equal(tp.Addr(), reply["issuer"])
		assert.Equal(tp.Addr()+"/auth", reply["authorization_endpoint"])
		assert.Equal(tp.Addr()+"/token", reply["token_endpoint"])
		assert.Equal(tp.Addr()+"/certs", reply["jwks_uri"])
		assert.Equal(tp.Addr()+"/userinfo", reply["userinfo_endpoint"])
		assert.Equal(tp.Addr()+"/device", reply["device_authorization_endpoint"])
		assert.Equal(tp.Addr()+"/endsession", reply["end_session_endpoint"])
	})
	t.Run("disabled-endpoints-are-omitted", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.DisableDeviceAuth()
		tp.DisableEndSession()
		tp.DisableUserInfo()
		client := testProviderClient(t, tp)

		resp, err := client.Get(tp.Addr() + "/.well-known/openid-configuration")
		require.NoError(err)
		reply := testProviderJSON(t, resp)

		_, ok := reply["device_authorization_endpoint"]
		assert.False(ok)
		_, ok = reply["end_session_endpoint"]
		assert.False(ok)
		_, ok = reply["userinfo_endpoint"]
		assert.False(ok)
	})
}

func TestTestProvider_deviceEndpoint(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)
	client := testProviderClient(t, tp)

	resp, err := client.PostForm(tp.Addr()+"/device", url.Values{"client_id": []string{"test-client-id"}})
	require.NoError(err)
	require.Equal(http.StatusOK, resp.StatusCode)
	reply := testProviderJSON(t, resp)

	assert.NotEmpty(reply["device_code"])
	assert.Equal(tp.UserCode(), reply["user_code"])
	assert.Equal(tp.Addr()+"/device/activate", reply["verification_uri"])
	assert.Equal(float64(1), reply["interval"])
	assert.Equal(float64(300), reply["expires_in"])

	getResp, err := client.Get(tp.Addr() + "/device")
	require.NoError(err)
	defer getResp.Body.Close()
	assert.Equal(http.StatusMethodNotAllowed, getResp.StatusCode)
}

func TestTestProvider_jwks(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)
	client := testProviderClient(t, tp)

	resp, err := client.Get(tp.Addr() + "/certs")
	require.NoError(err)
	require.Equal(http.StatusOK, resp.StatusCode)
	reply := testProviderJSON(t, resp)

	keys, ok := reply["keys"].([]interface{})
	require.True(ok)
	assert.Len(keys, 1)
}

func TestTestProvider_unknownPath(t *testing.T) {
	require := require.New(t)
	tp := StartTestProvider(t)
	client := testProviderClient(t, tp)

	resp, err := client.Get(tp.Addr() + "/nothing-here")
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusNotFound, resp.StatusCode)
}
