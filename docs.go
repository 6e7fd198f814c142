// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// websession binds OIDC authentication to an application's existing per-user
// sessions. Package identity orchestrates logins with the authorization code
// (with PKCE) and device authorization flows, then keeps track of the
// session's user and tokens from there.
//
// See README.md
package websession
