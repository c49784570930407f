package client

import (
	"strings"
	"testing"
)

// TestRendererStepsInBatches verifies each step reveals at most five
// characters and the visible prefix never regresses.
func TestRendererStepsInBatches(t *testing.T) {
	r := &Renderer{}
	r.Append("hello world")

	prev := ""
	visible, _, cont := r.Step()
	if visible != "hello" {
		t.Fatalf("first step %q", visible)
	}
	for cont {
		if !strings.HasPrefix(visible, prev) {
			t.Fatalf("display regressed: %q then %q", prev, visible)
		}
		if len(visible)-len(prev) > typeStep {
			t.Fatalf("step too large: %q to %q", prev, visible)
		}
		prev = visible
		if visible == "hello world" {
			break
		}
		visible, _, cont = r.Step()
	}
	if visible != "hello world" {
		t.Fatalf("final display %q", visible)
	}
}

// TestRendererTerminatesOnlyWhenDoneAndCaughtUp verifies the animation
// keeps running while a drained backlog might still grow, and stops once
// the stream is finished and fully displayed.
func TestRendererTerminatesOnlyWhenDoneAndCaughtUp(t *testing.T) {
	r := &Renderer{}
	r.Append("abc")

	visible, _, cont := r.Step()
	if visible != "abc" || !cont {
		t.Fatalf("caught up but not done: visible=%q cont=%v", visible, cont)
	}

	r.Append("def")
	visible, _, cont = r.Step()
	if visible != "abcdef" || !cont {
		t.Fatalf("after late append: visible=%q cont=%v", visible, cont)
	}

	r.Finish()
	visible, delay, cont := r.Step()
	if visible != "abcdef" || cont {
		t.Fatalf("after finish: visible=%q cont=%v", visible, cont)
	}
	if delay != 0 {
		t.Fatalf("terminal delay %v", delay)
	}
}

// TestRendererDelayBounds verifies the backlog-dependent pacing: slow at
// small backlogs, fast at large ones, monotone in between.
func TestRendererDelayBounds(t *testing.T) {
	r := &Renderer{}
	r.Append(strings.Repeat("x", 20))
	if d := r.delay(); d != maxTypeDelay {
		t.Fatalf("small backlog delay %v", d)
	}

	r = &Renderer{}
	r.Append(strings.Repeat("x", 300))
	if d := r.delay(); d != minTypeDelay {
		t.Fatalf("large backlog delay %v", d)
	}

	r = &Renderer{}
	r.Append(strings.Repeat("x", 100))
	mid := r.delay()
	if mid <= minTypeDelay || mid >= maxTypeDelay {
		t.Fatalf("mid backlog delay %v out of range", mid)
	}
}

// TestRendererUnicodeSafe verifies stepping never splits a multi-byte
// character.
func TestRendererUnicodeSafe(t *testing.T) {
	r := &Renderer{}
	r.Append("héllo wörld é")
	r.Finish()
	for {
		visible, _, cont := r.Step()
		if !strings.HasPrefix("héllo wörld é", visible) {
			t.Fatalf("invalid prefix %q", visible)
		}
		if !cont {
			if visible != "héllo wörld é" {
				t.Fatalf("final display %q", visible)
			}
			return
		}
	}
}
