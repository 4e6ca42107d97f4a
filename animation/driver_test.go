package animation_test

import (
	"testing"
	"time"

	"github.com/Skryldev/rasterpipe/animation"
	"github.com/Skryldev/rasterpipe/config"
)

func uniform(n int, d time.Duration) []time.Duration {
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = d
	}
	return out
}

func TestDriver_LoopForever(t *testing.T) {
	d := animation.NewDriver(uniform(10, 100*time.Millisecond), config.LoopForever)

	steps := []struct {
		dt      time.Duration
		frame   int
		changed bool
	}{
		{50 * time.Millisecond, 0, false},
		{50 * time.Millisecond, 1, true},
		{850 * time.Millisecond, 9, true},
		{100 * time.Millisecond, 0, true}, // wraps
		{2 * time.Second, 0, false},       // two whole loops
		{-time.Second, 0, false},
	}
	for i, s := range steps {
		changed := d.Tick(s.dt)
		if got := d.CurrentFrame(); got != s.frame || changed != s.changed {
			t.Errorf("step %d: frame=%d changed=%v, want frame=%d changed=%v", i, got, changed, s.frame, s.changed)
		}
	}
	if d.Done() {
		t.Error("looping animation should never be done")
	}
}

func TestDriver_FullCycleVisitsEveryFrame(t *testing.T) {
	d := animation.NewDriver(uniform(10, 100*time.Millisecond), config.LoopForever)
	seen := []int{d.CurrentFrame()}
	for i := 0; i < 10; i++ {
		d.Tick(100 * time.Millisecond)
		seen = append(seen, d.CurrentFrame())
	}
	for i, f := range seen {
		if f != i%10 {
			t.Fatalf("sequence = %v, want 0..9 then 0", seen)
		}
	}
}

func TestDriver_LoopOnceHaltsOnLastFrame(t *testing.T) {
	d := animation.NewDriver(uniform(10, 100*time.Millisecond), config.LoopOnce)
	if !d.Tick(5 * time.Second) {
		t.Error("tick past the end should change the frame")
	}
	if d.CurrentFrame() != 9 || !d.Done() {
		t.Fatalf("frame=%d done=%v, want 9/true", d.CurrentFrame(), d.Done())
	}
	if d.Tick(time.Second) {
		t.Error("finished animation should not change")
	}
	if _, ok := d.NextDeadline(); ok {
		t.Error("finished animation should have no deadline")
	}
	d.Reset()
	if d.CurrentFrame() != 0 || d.Done() {
		t.Error("reset should rewind")
	}
}

func TestDriver_StillImage(t *testing.T) {
	d := animation.NewDriver([]time.Duration{0}, config.LoopForever)
	if d.Animated() || d.Tick(time.Second) || d.CurrentFrame() != 0 {
		t.Error("single frame should never advance")
	}
	empty := animation.NewDriver(nil, config.LoopForever)
	if empty.CurrentFrame() != 0 || empty.FrameCount() != 0 {
		t.Error("empty driver should report frame 0")
	}
}

func TestDriver_UnevenDelaysAndDeadline(t *testing.T) {
	d := animation.NewDriver([]time.Duration{
		30 * time.Millisecond, 0, 70 * time.Millisecond,
	}, config.LoopForever)
	if next, ok := d.NextDeadline(); !ok || next != 30*time.Millisecond {
		t.Errorf("deadline = %v,%v want 30ms", next, ok)
	}
	d.Tick(40 * time.Millisecond)
	if d.CurrentFrame() != 2 {
		t.Errorf("zero-length frame should be skipped, got frame %d", d.CurrentFrame())
	}
	if next, _ := d.NextDeadline(); next != 60*time.Millisecond {
		t.Errorf("deadline = %v, want 60ms", next)
	}
	first := d.CurrentFrame()
	if second := d.CurrentFrame(); first != second || d.Position() != 40*time.Millisecond {
		t.Error("CurrentFrame moved playback")
	}
}
