package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionSingleSlotReplaces(t *testing.T) {
	s := newSessionStore()

	s.Set("alice", expectation{kind: expectLink, taskID: "t1"})
	s.Set("alice", expectation{kind: expectValue, okrID: "okr1"})

	e, ok := s.Get("alice")
	assert.True(t, ok)
	assert.Equal(t, expectValue, e.kind)
	assert.Equal(t, "okr1", e.okrID)
	assert.Empty(t, e.taskID)
}

func TestSessionClear(t *testing.T) {
	s := newSessionStore()
	s.Set("alice", expectation{kind: expectLink, taskID: "t1"})
	s.Clear("alice")

	_, ok := s.Get("alice")
	assert.False(t, ok)
}

func TestSessionIsolatedPerUser(t *testing.T) {
	s := newSessionStore()
	s.Set("alice", expectation{kind: expectLink, taskID: "t1"})

	_, ok := s.Get("bob")
	assert.False(t, ok)
}

func TestEvaluateLinkReply(t *testing.T) {
	cases := []struct {
		in   string
		link string
		ok   bool
	}{
		{"https://example.com/doc", "https://example.com/doc", true},
		{"http://example.com", "http://example.com", true},
		{"none", "", true},
		{"NONE", "", true},
		{" None ", "", true},
		{"ftp://example.com", "", false},
		{"just some text", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		link, ok := evaluateLinkReply(c.in)
		assert.Equal(t, c.ok, ok, "input %q", c.in)
		assert.Equal(t, c.link, link, "input %q", c.in)
	}
}
