// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
identity is a package for authenticating a web application's users against
an OIDC provider and binding what it learns to each user's session: the
in-flight login flow, the logged in user's validated ID token claims, and a
serialized token cache for silent access token retrieval.

Primary types provided by the package:

* Auth: orchestrates logins for every session of the application. It wraps
one lazily discovered provider, one pooled http client and one id_token
verifier, and exposes the operations LogIn, CompleteLogIn, GetUser,
GetToken, UserInfo and LogOut. Token acquisition and cryptographic id_token
validation are delegated to github.com/coreos/go-oidc/v3 and
golang.org/x/oauth2.

* Config: the relying party's configuration (client ID/secret, issuer,
supported signing algorithms, additional scopes, audiences, provider CA).

* Session: the minimal interface over the hosting framework's per-user
session store. The package stores JSON blobs under three reserved keys, so
any backend that round-trips strings works.

* Claims: the validated claims of the logged in user's id_token, with typed
accessors for the common OIDC claims.

* Token: an access token retrieved from the session's cache by GetToken,
with redacted printing.

* Validator and LifespanValidator: a small chain deciding whether the
logged in user is still acceptable on every read, with an optional lifespan
bound on the login itself.

* TestProvider: an in-process OIDC provider for tests, covering the
authorization code (with PKCE), device authorization and refresh_token
grants.

The package supports two login shapes. A web application uses the
authorization code flow: LogIn(WithRedirectURI(...)) returns the URL to
redirect the user to, and the provider's callback query is handed to
CompleteLogIn. A device without a browser uses the device authorization
flow: LogIn without a redirect URI returns a verification URI and user code
to present, and CompleteLogIn polls for the user's approval under the
caller's context.

Examples:

* Authorization code flow web app:
examples/webapp

* Device flow CLI:
examples/devicecli
*/
package identity
