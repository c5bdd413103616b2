// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package engine implements value engines. An engine is bound to one
// field of a generator and updates its value before each data record.
package engine

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"slices"

	"github.com/go-viper/mapstructure/v2"

	"ipfixgen/common/helpers"
	"ipfixgen/ipfix/template"
)

// Engine updates the value of a field. Update is called with the data
// of the field before each data record.
type Engine interface {
	Update(data []byte)
}

// Configuration is the configuration of an engine.
type Configuration struct {
	// EngineName is the name of the field the engine is bound to.
	EngineName string `json:"engine_name" validate:"required"`
	// EngineType is the kind of engine.
	EngineType string `json:"engine_type" validate:"required"`
	// Params are the engine-specific parameters.
	Params map[string]any `json:"params"`
}

// factory builds an engine for a field of the provided length.
type factory func(params map[string]any, fieldLength int, rng *rand.Rand) (Engine, error)

var factories = map[string]factory{
	"uint":                   newUint,
	"histogram_uint":         newHistogram(histogramValue, 4),
	"histogram_uint_range":   newHistogram(histogramRange, 4),
	"histogram_uint_list":    newHistogram(histogramList, 4),
	"histogram_uint64":       newHistogram(histogramValue, 8),
	"histogram_uint64_range": newHistogram(histogramRange, 8),
	"histogram_uint64_list":  newHistogram(histogramList, 8),
}

// Types returns the list of known engine types.
func Types() []string {
	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// New creates a new engine for a field. The seed is used for engines
// using random values.
func New(config Configuration, field template.Field, seed int64) (Engine, error) {
	if err := helpers.Validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid engine configuration: %w: %w", template.ErrValidation, err)
	}
	f, ok := factories[config.EngineType]
	if !ok {
		return nil, fmt.Errorf("unknown engine type %q for %q: %w",
			config.EngineType, config.EngineName, template.ErrValidation)
	}
	e, err := f(config.Params, int(field.Length), rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, fmt.Errorf("engine %q (%s): %w: %w", config.EngineName, config.EngineType, template.ErrValidation, err)
	}
	return e, nil
}

// decodeParams decodes and validates engine parameters into out. out
// should already contain the default values.
func decodeParams(params map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(helpers.GetMapStructureDecoderConfig(out))
	if err != nil {
		return err
	}
	if err := decoder.Decode(params); err != nil {
		return err
	}
	return helpers.Validate.Struct(out)
}

// Placement tells where the value is written inside the field.
type Placement struct {
	Size   int `validate:"oneof=1 2 4 8"`
	Offset int `validate:"min=0"`
}

// check verifies the value fits in the field.
func (p Placement) check(fieldLength int) error {
	if p.Offset+p.Size > fieldLength {
		return fmt.Errorf("offset %d and size %d do not fit a field of %d bytes",
			p.Offset, p.Size, fieldLength)
	}
	return nil
}

// maxValue is the largest value fitting in the placement.
func (p Placement) maxValue() uint64 {
	if p.Size >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*p.Size) - 1
}

// write writes a value in big endian at the right place.
func (p Placement) write(data []byte, value uint64) {
	dst := data[p.Offset : p.Offset+p.Size]
	switch p.Size {
	case 1:
		dst[0] = uint8(value)
	case 2:
		binary.BigEndian.PutUint16(dst, uint16(value))
	case 4:
		binary.BigEndian.PutUint32(dst, uint32(value))
	case 8:
		binary.BigEndian.PutUint64(dst, value)
	}
}

// defaultSize returns the default size for a field of the provided
// length: the largest supported size not exceeding preferred and the
// field length.
func defaultSize(fieldLength, preferred int) int {
	for _, size := range []int{8, 4, 2, 1} {
		if size <= preferred && size <= fieldLength {
			return size
		}
	}
	return 1
}

// uniform returns a random value in [min, max].
func uniform(rng *rand.Rand, min, max uint64) uint64 {
	span := max - min
	if span == ^uint64(0) {
		return rng.Uint64()
	}
	if span < 1<<63 {
		return min + uint64(rng.Int63n(int64(span+1)))
	}
	for {
		if v := rng.Uint64(); v <= span {
			return min + v
		}
	}
}
