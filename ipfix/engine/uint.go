// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package engine

import (
	"errors"
	"math/rand"
)

// UintParams are the parameters of the uint engine.
type UintParams struct {
	Placement `mapstructure:",squash"`

	Op   string `validate:"oneof=inc dec rand"`
	Init *uint64
	Min  uint64
	Max  *uint64
	Step uint64 `validate:"min=1"`
}

type uintEngine struct {
	Placement
	op       string
	min, max uint64
	step     uint64
	current  uint64
	rng      *rand.Rand
}

func newUint(params map[string]any, fieldLength int, rng *rand.Rand) (Engine, error) {
	p := UintParams{
		Placement: Placement{Size: defaultSize(fieldLength, 8)},
		Op:        "inc",
		Step:      1,
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := p.check(fieldLength); err != nil {
		return nil, err
	}
	e := uintEngine{
		Placement: p.Placement,
		op:        p.Op,
		min:       p.Min,
		max:       p.maxValue(),
		step:      p.Step,
		rng:       rng,
	}
	if p.Max != nil {
		e.max = *p.Max
	}
	if e.max > p.maxValue() {
		return nil, errors.New("max does not fit in size")
	}
	if e.min > e.max {
		return nil, errors.New("min should not be greater than max")
	}
	e.current = e.min
	if p.Init != nil {
		e.current = *p.Init
	}
	if e.current < e.min || e.current > e.max {
		return nil, errors.New("init should be between min and max")
	}
	if e.op == "dec" && p.Init == nil {
		e.current = e.max
	}
	return &e, nil
}

// Update writes the current value and computes the next one. Values
// wrap around inside [min, max].
func (e *uintEngine) Update(data []byte) {
	if e.op == "rand" {
		e.write(data, uniform(e.rng, e.min, e.max))
		return
	}
	e.write(data, e.current)
	span := e.max - e.min
	step := e.step
	if span != ^uint64(0) {
		step %= span + 1
	}
	position := e.current - e.min
	switch e.op {
	case "inc":
		if span-position >= step {
			position += step
		} else {
			position = step - (span - position) - 1
		}
	case "dec":
		if position >= step {
			position -= step
		} else {
			position = span - (step - position) + 1
		}
	}
	e.current = e.min + position
}
