// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package pacer converts rates in packets per second into a number of
// packets to send for an elapsed duration.
//
// Each pacer has two independent accumulators: one for template
// packets, one for data packets. Credits are accumulated over time and
// only whole packets are released. The fractional part is kept for the
// next pass, so the number of released packets does not depend on how
// the time is divided between calls.
package pacer

import (
	"math"
	"time"
)

// rebaseAfter is the elapsed time after which an accumulator folds its
// state to keep the float computation precise.
const rebaseAfter = time.Hour

// epsilon absorbs float rounding errors when computing whole packets.
const epsilon = 1e-9

// Pacer is a credit-based pacer for one generator. It is not safe for
// concurrent use.
type Pacer struct {
	templates accumulator
	data      accumulator
}

// Advance accounts for dt and returns the number of template packets
// and data packets due. When disabled, nothing is accumulated.
func (p *Pacer) Advance(dt time.Duration, templateRate, dataRate float64, enabled bool) (templates, data int) {
	if !enabled || dt <= 0 {
		return 0, 0
	}
	return p.templates.advance(dt, templateRate), p.data.advance(dt, dataRate)
}

// Reset discards accumulated credits.
func (p *Pacer) Reset() {
	p.templates = accumulator{}
	p.data = accumulator{}
}

// accumulator releases floor(rate × elapsed) packets. The elapsed
// time is kept as an integer number of nanoseconds since the last rate
// change, with the credit left by previous rates in base.
type accumulator struct {
	rate    float64
	base    float64
	elapsed time.Duration
	emitted int
}

func (a *accumulator) credit() float64 {
	return a.base + a.rate*a.elapsed.Seconds() - float64(a.emitted)
}

func (a *accumulator) fold() {
	a.base = a.credit()
	a.elapsed = 0
	a.emitted = 0
}

func (a *accumulator) advance(dt time.Duration, rate float64) int {
	if rate <= 0 {
		// Nothing accrues, but the fraction is kept.
		if a.rate != 0 {
			a.fold()
			a.rate = 0
		}
		return 0
	}
	if rate != a.rate || a.elapsed >= rebaseAfter {
		a.fold()
		a.rate = rate
	}
	a.elapsed += dt
	total := int(math.Floor(a.base + a.rate*a.elapsed.Seconds() + epsilon))
	due := total - a.emitted
	if due < 0 {
		due = 0
	}
	a.emitted += due
	return due
}
