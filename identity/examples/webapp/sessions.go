// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/hashicorp/go-uuid"
	"github.com/hashicorp/websession/identity"
)

const sessionCookie = "webapp-session"

// memSessions is a server side session store keyed by a session cookie. It
// stands in for whatever session middleware a real application already has.
type memSessions struct {
	m sync.Mutex
	c map[string]map[string]string
}

func newMemSessions() *memSessions {
	return &memSessions{
		c: map[string]map[string]string{},
	}
}

// Load returns the request's session, minting a session cookie and a fresh
// session when the request doesn't carry one.
func (ms *memSessions) Load(w http.ResponseWriter, r *http.Request) identity.Session {
	ms.m.Lock()
	defer ms.m.Unlock()
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if _, ok := ms.c[cookie.Value]; ok {
			return &memSession{ms: ms, id: cookie.Value}
		}
	}
	id, err := uuid.GenerateUUID()
	if err != nil {
		// out of randomness; nothing sensible to recover with
		fmt.Fprintf(os.Stderr, "error generating session id: %s\n", err)
		os.Exit(1)
	}
	ms.c[id] = map[string]string{}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
	})
	return &memSession{ms: ms, id: id}
}

// memSession implements identity.Session over one entry of the store.
type memSession struct {
	ms *memSessions
	id string
}

func (s *memSession) Get(key string) (string, bool) {
	s.ms.m.Lock()
	defer s.ms.m.Unlock()
	v, ok := s.ms.c[s.id][key]
	return v, ok
}

func (s *memSession) Set(key, value string) {
	s.ms.m.Lock()
	defer s.ms.m.Unlock()
	s.ms.c[s.id][key] = value
}

func (s *memSession) Delete(key string) {
	s.ms.m.Lock()
	defer s.ms.m.Unlock()
	delete(s.ms.c[s.id], key)
}
