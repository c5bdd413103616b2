// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package generator

import (
	"bytes"
	"encoding/json"
	"fmt"

	"ipfixgen/ipfix/engine"
	"ipfixgen/ipfix/template"
)

// Configuration describes a generator.
type Configuration struct {
	// Name is the name of the generator, unique inside a domain.
	Name string `json:"name" validate:"required"`
	// AutoStart tells if the generator is enabled at creation.
	AutoStart bool `json:"auto_start"`
	// TemplateRatePPS is the number of template packets per second.
	TemplateRatePPS float64 `json:"template_rate_pps" validate:"gte=0"`
	// RatePPS is the number of data packets per second.
	RatePPS float64 `json:"rate_pps" validate:"gte=0"`
	// DataRecordsNum is the number of data records in each data
	// packet. 0 means as many as fit in the MTU.
	DataRecordsNum int `json:"data_records_num" validate:"gte=0"`
	// TemplateID is the ID of the template.
	TemplateID uint16 `json:"template_id" validate:"min=256"`
	// IsOptionsTemplate tells if the template is an options template.
	IsOptionsTemplate bool `json:"is_options_template"`
	// ScopeCount is the number of scope fields of an options
	// template. They are the first fields.
	ScopeCount int `json:"scope_count" validate:"gte=0"`
	// Fields are the fields of the template, in order.
	Fields []template.FieldConfiguration `json:"fields" validate:"min=1"`
	// Engines are bound to fields to update their values.
	Engines []engine.Configuration `json:"engines"`
}

// DefaultConfiguration represents the default configuration for a
// generator.
func DefaultConfiguration() Configuration {
	return Configuration{
		AutoStart:       true,
		TemplateRatePPS: 1,
		RatePPS:         3,
	}
}

// UnmarshalJSON decodes a generator configuration. Missing keys get
// their default value and unknown keys are rejected.
func (c *Configuration) UnmarshalJSON(input []byte) error {
	type plain Configuration
	config := plain(DefaultConfiguration())
	decoder := json.NewDecoder(bytes.NewReader(input))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&config); err != nil {
		return fmt.Errorf("%w: %w", template.ErrValidation, err)
	}
	*c = Configuration(config)
	return nil
}
