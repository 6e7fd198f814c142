// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/hashicorp/websession/identity"
)

func CallbackHandler(auth *identity.Auth, sessions *memSessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessions.Load(w, r)
		claims, err := auth.CompleteLogIn(r.Context(), s, r.URL.Query())
		if err != nil {
			var providerErr *identity.AuthErrorResponse
			if errors.As(err, &providerErr) {
				fmt.Fprintf(os.Stderr, "error response from provider: %s\n", providerErr)
				http.Error(w, providerErr.Error(), http.StatusUnauthorized)
				return
			}
			fmt.Fprintf(os.Stderr, "error completing login: %s\n", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(os.Stderr, "logged in: %s\n", claims.Subject())

		// Redirect to logged in page
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}
