// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package pacer

import (
	"math/rand"
	"testing"
	"time"

	"ipfixgen/common/helpers"
)

func TestAdvanceSubdivision(t *testing.T) {
	cases := []struct {
		Pos   helpers.Pos
		Steps []time.Duration
	}{
		{helpers.Mark(), []time.Duration{10 * time.Second}},
		{helpers.Mark(), repeat(time.Second, 10)},
		{helpers.Mark(), repeat(100*time.Millisecond, 100)},
		{helpers.Mark(), repeat(10*time.Millisecond, 1000)},
		{helpers.Mark(), append(repeat(7*time.Millisecond, 1428), 4*time.Millisecond)},
		{helpers.Mark(), append(repeat(3*time.Second, 3), time.Second)},
		{helpers.Mark(), randomSteps(10*time.Second, 1)},
		{helpers.Mark(), randomSteps(10*time.Second, 2)},
	}
	for _, tc := range cases {
		var p Pacer
		templates, data := 0, 0
		for _, step := range tc.Steps {
			tpl, d := p.Advance(step, 1, 3, true)
			templates += tpl
			data += d
		}
		if templates != 10 || data != 30 {
			t.Errorf("%sAdvance() released %d templates and %d data, expected 10 and 30",
				tc.Pos, templates, data)
		}
	}
}

func TestAdvanceFraction(t *testing.T) {
	var p Pacer
	expected := []int{1, 2, 1, 2}
	got := []int{}
	for range 4 {
		_, data := p.Advance(time.Second, 0, 1.5, true)
		got = append(got, data)
	}
	if diff := helpers.Diff(got, expected); diff != "" {
		t.Fatalf("Advance() (-got, +want):\n%s", diff)
	}
}

func TestAdvanceDisabled(t *testing.T) {
	var p Pacer
	if tpl, data := p.Advance(10*time.Second, 1, 3, false); tpl != 0 || data != 0 {
		t.Fatalf("Advance() when disabled = %d, %d", tpl, data)
	}
	// Nothing was accumulated while disabled
	if tpl, data := p.Advance(500*time.Millisecond, 1, 3, true); tpl != 0 || data != 1 {
		t.Fatalf("Advance() after enabling = %d, %d, expected 0, 1", tpl, data)
	}
	if tpl, data := p.Advance(-time.Second, 1, 3, true); tpl != 0 || data != 0 {
		t.Fatalf("Advance() with negative duration = %d, %d", tpl, data)
	}
}

func TestAdvanceRateChange(t *testing.T) {
	var p Pacer
	if _, data := p.Advance(500*time.Millisecond, 0, 1, true); data != 0 {
		t.Fatalf("Advance() = %d, expected 0", data)
	}
	// The half credit is kept when the rate changes
	if _, data := p.Advance(250*time.Millisecond, 0, 2, true); data != 1 {
		t.Fatalf("Advance() after rate change = %d, expected 1", data)
	}
	// A null rate accrues nothing
	if _, data := p.Advance(time.Hour, 0, 0, true); data != 0 {
		t.Fatalf("Advance() with null rate = %d, expected 0", data)
	}
	if _, data := p.Advance(250*time.Millisecond, 0, 2, true); data != 0 {
		t.Fatalf("Advance() after null rate = %d, expected 0", data)
	}
	if _, data := p.Advance(250*time.Millisecond, 0, 2, true); data != 1 {
		t.Fatalf("Advance() after null rate = %d, expected 1", data)
	}
}

func TestReset(t *testing.T) {
	var p Pacer
	p.Advance(900*time.Millisecond, 1, 1, true)
	p.Reset()
	if tpl, data := p.Advance(200*time.Millisecond, 1, 1, true); tpl != 0 || data != 0 {
		t.Fatalf("Advance() after Reset() = %d, %d, expected 0, 0", tpl, data)
	}
}

func TestAdvanceLongRun(t *testing.T) {
	var p Pacer
	data := 0
	for range 3 * 3600 {
		_, d := p.Advance(time.Second, 0, 0.3, true)
		data += d
	}
	if data != 3240 {
		t.Fatalf("Advance() released %d data packets in 3 hours, expected 3240", data)
	}
}

func repeat(d time.Duration, n int) []time.Duration {
	steps := make([]time.Duration, n)
	for i := range steps {
		steps[i] = d
	}
	return steps
}

// randomSteps splits total into random steps.
func randomSteps(total time.Duration, seed int64) []time.Duration {
	rng := rand.New(rand.NewSource(seed))
	steps := []time.Duration{}
	for total > 0 {
		step := time.Duration(rng.Int63n(int64(50*time.Millisecond))) + 1
		if step > total {
			step = total
		}
		steps = append(steps, step)
		total -= step
	}
	return steps
}
