package main

import (
	"strings"
	"sync"
)

// --- Conversation Sessions ---

type expectKind int

const (
	expectLink expectKind = iota
	expectValue
)

// expectation is what the bot is waiting for from one user: either a
// completion link for a task or a new value for an objective.
type expectation struct {
	kind   expectKind
	taskID string
	okrID  string
}

// SessionStore maps a username to at most one pending expectation. Starting
// a new prompt replaces whatever the user was asked before.
type SessionStore struct {
	mu      sync.Mutex
	pending map[string]expectation
}

func newSessionStore() *SessionStore {
	return &SessionStore{pending: make(map[string]expectation)}
}

func (s *SessionStore) Set(user string, e expectation) {
	s.mu.Lock()
	s.pending[user] = e
	s.mu.Unlock()
}

func (s *SessionStore) Get(user string) (expectation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[user]
	return e, ok
}

func (s *SessionStore) Clear(user string) {
	s.mu.Lock()
	delete(s.pending, user)
	s.mu.Unlock()
}

// evaluateLinkReply interprets a free-text answer to the completion-link
// prompt. "none" (any case) means done without a link; an http(s) URL is
// accepted as the link; anything else is rejected so the caller re-prompts.
func evaluateLinkReply(text string) (string, bool) {
	t := strings.TrimSpace(text)
	if strings.EqualFold(t, "none") {
		return "", true
	}
	if strings.HasPrefix(t, "http://") || strings.HasPrefix(t, "https://") {
		return t, true
	}
	return "", false
}
