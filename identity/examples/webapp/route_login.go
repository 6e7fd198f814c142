// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/hashicorp/websession/identity"
)

func LoginHandler(auth *identity.Auth, sessions *memSessions, redirectURI string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessions.Load(w, r)
		result, err := auth.LogIn(r.Context(), s, identity.WithRedirectURI(redirectURI))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error starting login: %s\n", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, result.AuthURL, http.StatusFound)
	}
}
