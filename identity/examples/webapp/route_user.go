// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/hashicorp/websession/identity"
)

func IndexHandler(auth *identity.Auth, sessions *memSessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessions.Load(w, r)
		claims, err := auth.GetUser(s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading logged in user: %s\n", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if claims == nil {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		data, err := json.MarshalIndent(claims, "", "    ")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "hello, %s\n\nid_token claims: %s\n\nsee also: /userinfo /logout\n",
			claims.Subject(), data)
	}
}

func UserInfoHandler(auth *identity.Auth, sessions *memSessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessions.Load(w, r)
		var infoClaims map[string]interface{}
		err := auth.UserInfo(r.Context(), s, &infoClaims)
		switch {
		case errors.Is(err, identity.ErrNoCurrentUser):
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		case err != nil:
			fmt.Fprintf(os.Stderr, "error getting UserInfo claims: %s\n", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		infoData, err := json.MarshalIndent(infoClaims, "", "    ")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "UserInfo claims: %s\n", infoData)
	}
}

func LogOutHandler(auth *identity.Auth, sessions *memSessions, postLogoutRedirectURI string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessions.Load(w, r)
		logoutURL, err := auth.LogOut(s, postLogoutRedirectURI)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error logging out: %s\n", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		// Send the browser on to the provider so its session ends too
		http.Redirect(w, r, logoutURL, http.StatusFound)
	}
}
