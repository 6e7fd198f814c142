// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/websession/identity"
)

// List of required configuration environment variables
const (
	clientID     = "OIDC_CLIENT_ID"
	clientSecret = "OIDC_CLIENT_SECRET"
	issuer       = "OIDC_ISSUER"
	port         = "OIDC_PORT"
)

func envConfig() (map[string]interface{}, error) {
	env := map[string]interface{}{
		clientID:     os.Getenv("OIDC_CLIENT_ID"),
		clientSecret: os.Getenv("OIDC_CLIENT_SECRET"),
		issuer:       os.Getenv("OIDC_ISSUER"),
		port:         os.Getenv("OIDC_PORT"),
	}
	for k, v := range env {
		switch t := v.(type) {
		case string:
			if t == "" {
				return nil, fmt.Errorf("%s is empty", k)
			}
		default:
			return nil, fmt.Errorf("%s is an unhandled type %t", k, t)
		}
	}
	return env, nil
}

func main() {
	env, err := envConfig()
	if err != nil {
		fmt.Fprint(os.Stderr, err.Error())
		return
	}

	// handle ctrl-c while the server runs
	sigintCh := make(chan os.Signal, 1)
	signal.Notify(sigintCh, os.Interrupt)
	defer signal.Stop(sigintCh)

	issuer := env[issuer].(string)
	clientID := env[clientID].(string)
	clientSecret := identity.ClientSecret(env[clientSecret].(string))
	baseURL := fmt.Sprintf("http://localhost:%s", env[port].(string))

	c, err := identity.NewConfig(issuer, clientID, clientSecret,
		[]identity.Alg{identity.RS256},
		identity.WithScopes("email", "profile"),
		identity.WithLogger(hclog.New(&hclog.LoggerOptions{Name: "webapp"})),
	)
	if err != nil {
		fmt.Fprint(os.Stderr, err.Error())
		return
	}

	auth, err := identity.NewAuth(c,
		identity.WithValidators(identity.NewLifespanValidator(
			identity.WithLifespan(8*time.Hour),
		)),
	)
	if err != nil {
		fmt.Fprint(os.Stderr, err.Error())
		return
	}
	defer auth.Done()

	sessions := newMemSessions()

	http.HandleFunc("/", IndexHandler(auth, sessions))
	http.HandleFunc("/login", LoginHandler(auth, sessions, baseURL+"/callback"))
	http.HandleFunc("/callback", CallbackHandler(auth, sessions))
	http.HandleFunc("/userinfo", UserInfoHandler(auth, sessions))
	http.HandleFunc("/logout", LogOutHandler(auth, sessions, baseURL+"/"))

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%s", env[port]))
	if err != nil {
		fmt.Fprint(os.Stderr, err.Error())
		return
	}
	defer listener.Close()

	srvCh := make(chan error)
	// Start local server
	go func() {
		err := http.Serve(listener, nil)
		if err != nil && err != http.ErrServerClosed {
			srvCh <- err
		}
	}()

	fmt.Fprintf(os.Stderr, "Serving on %s, log in at %s/login\n", baseURL, baseURL)

	// Wait for either the server to fail or SIGINT to be received
	select {
	case err := <-srvCh:
		fmt.Fprintf(os.Stderr, "server closed with error: %s", err.Error())
		return
	case <-sigintCh:
		fmt.Fprintf(os.Stderr, "Interrupted")
		return
	}
}
