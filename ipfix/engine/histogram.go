// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package engine

import (
	"errors"
	"fmt"
	"math/rand"
)

// HistogramEntry is one bucket of an histogram engine. Depending on
// the engine, the bucket is a single value (V), a range (Min, Max) or
// a list of values (List).
type HistogramEntry struct {
	V    uint64
	Min  uint64
	Max  uint64
	List []uint64
	Prob uint32
}

// HistogramParams are the parameters of the histogram engines.
type HistogramParams struct {
	Placement `mapstructure:",squash"`

	Entries []HistogramEntry `validate:"min=1"`
}

// histogramKind selects how a value is drawn from an entry.
type histogramKind int

const (
	histogramValue histogramKind = iota
	histogramRange
	histogramList
)

type histogramEngine struct {
	Placement
	kind    histogramKind
	entries []HistogramEntry
	// cumulative weights, same order as entries
	weights []uint64
	total   uint64
	rng     *rand.Rand
}

// check verifies an entry is coherent with the kind of histogram.
func (k histogramKind) check(entry HistogramEntry, max uint64) error {
	switch k {
	case histogramValue:
		if entry.Min != 0 || entry.Max != 0 || len(entry.List) > 0 {
			return errors.New("only v and prob are expected")
		}
		if entry.V > max {
			return fmt.Errorf("value %d does not fit", entry.V)
		}
	case histogramRange:
		if entry.V != 0 || len(entry.List) > 0 {
			return errors.New("only min, max and prob are expected")
		}
		if entry.Min > entry.Max {
			return errors.New("min should not be greater than max")
		}
		if entry.Max > max {
			return fmt.Errorf("value %d does not fit", entry.Max)
		}
	case histogramList:
		if entry.V != 0 || entry.Min != 0 || entry.Max != 0 {
			return errors.New("only list and prob are expected")
		}
		if len(entry.List) == 0 {
			return errors.New("empty list")
		}
		for _, v := range entry.List {
			if v > max {
				return fmt.Errorf("value %d does not fit", v)
			}
		}
	}
	return nil
}

// newHistogram returns a factory for an histogram engine. preferred is
// the default size of the value.
func newHistogram(kind histogramKind, preferred int) factory {
	return func(params map[string]any, fieldLength int, rng *rand.Rand) (Engine, error) {
		p := HistogramParams{
			Placement: Placement{Size: defaultSize(fieldLength, preferred)},
		}
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		if p.Size > preferred {
			return nil, fmt.Errorf("size %d is too large", p.Size)
		}
		if err := p.check(fieldLength); err != nil {
			return nil, err
		}
		e := histogramEngine{
			Placement: p.Placement,
			kind:      kind,
			entries:   p.Entries,
			weights:   make([]uint64, len(p.Entries)),
			rng:       rng,
		}
		for i, entry := range p.Entries {
			if err := kind.check(entry, p.maxValue()); err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			e.total += uint64(entry.Prob)
			e.weights[i] = e.total
		}
		if e.total == 0 {
			return nil, errors.New("at least one entry should have a non-zero probability")
		}
		return &e, nil
	}
}

// Update picks an entry according to the weights and writes a value
// from it.
func (e *histogramEngine) Update(data []byte) {
	pick := uint64(e.rng.Int63n(int64(e.total)))
	i := 0
	for e.weights[i] <= pick {
		i++
	}
	entry := e.entries[i]
	switch e.kind {
	case histogramValue:
		e.write(data, entry.V)
	case histogramRange:
		e.write(data, uniform(e.rng, entry.Min, entry.Max))
	case histogramList:
		e.write(data, entry.List[e.rng.Intn(len(entry.List))])
	}
}
