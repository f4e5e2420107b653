// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

// recorder captures Fatalf instead of stopping the test.
type recorder struct {
	failed  bool
	message string
}

func (r *recorder) Helper() {}

func (r *recorder) Fatalf(format string, args ...any) {
	r.failed = true
	r.message = fmt.Sprintf(format, args...)
	panic(r)
}

// capture runs fn and reports whether it failed through r.
func capture(fn func(*recorder)) (r *recorder) {
	r = &recorder{}
	defer func() {
		if recovered := recover(); recovered != nil && recovered != r {
			panic(recovered)
		}
	}()
	fn(r)
	return r
}

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	if got := RequireReceive(t, ch, time.Second, "buffered value"); got != 7 {
		t.Errorf("RequireReceive = %d, want 7", got)
	}

	r := capture(func(r *recorder) { RequireReceive(r, make(chan int), 10*time.Millisecond, "waiting for %s", "nothing") })
	if !r.failed || !strings.Contains(r.message, "waiting for nothing") {
		t.Errorf("timeout not reported: %+v", r)
	}

	closed := make(chan int)
	close(closed)
	r = capture(func(r *recorder) { RequireReceive(r, closed, time.Second) })
	if !r.failed || !strings.Contains(r.message, "closed") {
		t.Errorf("closed channel not reported: %+v", r)
	}
}

func TestRequireNoReceive(t *testing.T) {
	RequireNoReceive(t, make(chan int), 10*time.Millisecond, "idle channel")

	ch := make(chan string, 1)
	ch <- "early"
	r := capture(func(r *recorder) { RequireNoReceive(r, ch, time.Second) })
	if !r.failed || !strings.Contains(r.message, "early") {
		t.Errorf("unexpected value not reported: %+v", r)
	}
}

func TestUniqueID(t *testing.T) {
	first, second := UniqueID("app"), UniqueID("app")
	if first == second {
		t.Errorf("UniqueID returned %q twice", first)
	}
	if !strings.HasPrefix(first, "app-") {
		t.Errorf("UniqueID = %q, want app- prefix", first)
	}
}
