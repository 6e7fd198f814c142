// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/hashicorp/websession/identity"
)

// List of required configuration environment variables. Device flow clients
// are public clients, so no client secret is needed.
const (
	clientID   = "OIDC_CLIENT_ID"
	issuer     = "OIDC_ISSUER"
	attemptExp = "attemptExp"
)

func envConfig() (map[string]interface{}, error) {
	const op = "envConfig"
	env := map[string]interface{}{
		clientID:   os.Getenv("OIDC_CLIENT_ID"),
		issuer:     os.Getenv("OIDC_ISSUER"),
		attemptExp: time.Duration(5 * time.Minute),
	}
	for k, v := range env {
		switch t := v.(type) {
		case string:
			if t == "" {
				return nil, fmt.Errorf("%s: %s is empty", op, k)
			}
		case time.Duration:
			if t == 0 {
				return nil, fmt.Errorf("%s: %s is empty", op, k)
			}
		default:
			return nil, fmt.Errorf("%s: %s is an unhandled type %t", op, k, t)
		}
	}
	return env, nil
}

// memSession is an in-memory Session. A CLI owns its whole process, so a
// plain map takes the place of a web framework's session store.
type memSession map[string]string

func (s memSession) Get(key string) (string, bool) { v, ok := s[key]; return v, ok }
func (s memSession) Set(key, value string)         { s[key] = value }
func (s memSession) Delete(key string)             { delete(s, key) }

type loginResp struct {
	Claims identity.Claims // Claims is populated when polling finishes with an approved login.
	Error  error           // Error is populated when the flow fails or expires
}

func main() {
	scopes := flag.String("scopes", "", "comma separated list of additional scopes to request")
	flag.Parse()

	env, err := envConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n\n", err)
		return
	}

	// handle ctrl-c while polling for the user's approval
	sigintCh := make(chan os.Signal, 1)
	signal.Notify(sigintCh, os.Interrupt)
	defer signal.Stop(sigintCh)

	var cfgOptions []identity.Option
	if *scopes != "" {
		optScopes := strings.Split(*scopes, ",")
		for i := range optScopes {
			optScopes[i] = strings.TrimSpace(optScopes[i])
		}
		cfgOptions = append(cfgOptions, identity.WithScopes(optScopes...))
	}

	c, err := identity.NewConfig(
		env[issuer].(string),
		env[clientID].(string),
		"",
		[]identity.Alg{identity.RS256},
		cfgOptions...,
	)
	if err != nil {
		fmt.Fprint(os.Stderr, err.Error())
		return
	}

	auth, err := identity.NewAuth(c)
	if err != nil {
		fmt.Fprint(os.Stderr, err.Error())
		return
	}
	defer auth.Done()

	ctx, cancel := context.WithTimeout(context.Background(), env[attemptExp].(time.Duration))
	defer cancel()

	s := memSession{}

	// Without a redirect URI, LogIn starts a device authorization flow
	result, err := auth.LogIn(ctx, s)
	if err != nil {
		if errors.Is(err, identity.ErrDeviceFlowUnsupported) {
			fmt.Fprint(os.Stderr, "the provider does not support the device authorization flow")
			return
		}
		fmt.Fprint(os.Stderr, err.Error())
		return
	}

	fmt.Fprintf(os.Stderr, "To sign in, visit:\n\n    %s\n\nand enter the code:\n\n    %s\n\n", result.AuthURL, result.UserCode)

	doneCh := make(chan loginResp)
	go func() {
		claims, err := auth.CompleteLogIn(ctx, s, nil)
		doneCh <- loginResp{claims, err}
	}()

	// Wait for the user to approve the login, SIGINT to be received or the
	// flow to expire
	select {
	case resp := <-doneCh:
		if resp.Error != nil {
			fmt.Fprintf(os.Stderr, "polling received error: %s", resp.Error)
			return
		}
		printClaims(resp.Claims)
		printToken(ctx, auth, s)
		printUserInfo(ctx, auth, s)
		return
	case <-sigintCh:
		fmt.Fprintf(os.Stderr, "Interrupted")
		return
	}
}

func printClaims(claims identity.Claims) {
	const op = "printClaims"
	data, err := json.MarshalIndent(claims, "", "    ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s", op, err)
		return
	}
	fmt.Fprintf(os.Stderr, "id_token claims:%s\n", data)
}

type respToken struct {
	AccessToken string
	TokenType   string
	Expiry      time.Time
}

// printableToken is needed because the identity.Token redacts the
// AccessToken
func printableToken(t *identity.Token) respToken {
	return respToken{
		AccessToken: string(t.AccessToken),
		TokenType:   t.TokenType,
		Expiry:      t.Expiry,
	}
}

func printToken(ctx context.Context, auth *identity.Auth, s identity.Session) {
	const op = "printToken"
	t, err := auth.GetToken(ctx, s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s", op, err)
		return
	}
	if t == nil {
		fmt.Fprintf(os.Stderr, "%s: no token for the logged in user", op)
		return
	}
	tokenData, err := json.MarshalIndent(printableToken(t), "", "    ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s", op, err)
		return
	}
	fmt.Fprintf(os.Stderr, "Token:%s\n", tokenData)
}

func printUserInfo(ctx context.Context, auth *identity.Auth, s identity.Session) {
	const op = "printUserInfo"
	var infoClaims map[string]interface{}
	if err := auth.UserInfo(ctx, s, &infoClaims); err != nil {
		fmt.Fprintf(os.Stderr, "%s: unable to get UserInfo claims: %s", op, err)
		return
	}
	infoData, err := json.MarshalIndent(infoClaims, "", "    ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s", op, err)
		return
	}
	fmt.Fprintf(os.Stderr, "UserInfo claims:%s\n", infoData)
}
