package main

import (
	"testing"
	"time"
)

func TestParseCronExprBasic(t *testing.T) {
	e, err := parseCronExpr("0 10 * * *")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	at := time.Date(2025, 7, 10, 10, 0, 0, 0, time.UTC)
	if !e.matches(at) {
		t.Error("expected 10:00 to match")
	}
	if e.matches(at.Add(time.Minute)) {
		t.Error("expected 10:01 not to match")
	}
	if e.matches(at.Add(time.Hour)) {
		t.Error("expected 11:00 not to match")
	}
}

func TestParseCronExprErrors(t *testing.T) {
	cases := []string{
		"",
		"0 10 * *",
		"60 10 * * *",
		"0 24 * * *",
		"x 10 * * *",
		"0 10 * * 7",
	}
	for _, c := range cases {
		if _, err := parseCronExpr(c); err == nil {
			t.Errorf("parseCronExpr(%q): expected error", c)
		}
	}
}

func TestParseFieldListAndRange(t *testing.T) {
	vals, err := parseField("1,3,5-7", 0, 59)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{1, 3, 5, 6, 7}
	if len(vals) != len(want) {
		t.Fatalf("got %v, want %v", vals, want)
	}
	for i := range want {
		if vals[i] != want[i] {
			t.Fatalf("got %v, want %v", vals, want)
		}
	}
}

func TestNextRunAfter(t *testing.T) {
	e, err := parseCronExpr("30 19 * * *")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Before today's trigger → fires today.
	after := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	next := nextRunAfter(e, time.UTC, after)
	want := time.Date(2025, 7, 10, 19, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	// After today's trigger → fires tomorrow.
	after = time.Date(2025, 7, 10, 20, 0, 0, 0, time.UTC)
	next = nextRunAfter(e, time.UTC, after)
	want = time.Date(2025, 7, 11, 19, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestParseHHMM(t *testing.T) {
	h, m := parseHHMM("19:05")
	if h != 19 || m != 5 {
		t.Errorf("got %d:%d, want 19:05", h, m)
	}
	for _, bad := range []string{"", "19", "25:00", "10:60", "ab:cd"} {
		if h, _ := parseHHMM(bad); h != -1 {
			t.Errorf("parseHHMM(%q): expected -1, got %d", bad, h)
		}
	}
}

func TestScheduleFromHHMM(t *testing.T) {
	s, err := scheduleFromHHMM("10:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != "0 10 * * *" {
		t.Errorf("schedule = %q, want %q", s, "0 10 * * *")
	}
	if _, err := scheduleFromHHMM("noon"); err == nil {
		t.Error("expected error for bad time")
	}
}
