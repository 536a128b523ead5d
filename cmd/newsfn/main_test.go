package main

import (
	"testing"
	"time"
)

func TestBuildKey(t *testing.T) {
	ts := time.Date(2025, 3, 7, 9, 5, 2, 0, time.UTC)
	got := buildKey("TEST", ts)
	want := "Ext/TEST/2025/03/07/news-090502.json"
	if got != want {
		t.Fatalf("buildKey = %q, want %q", got, want)
	}
}
